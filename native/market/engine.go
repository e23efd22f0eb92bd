package market

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"nftmarket/observability/metrics"
)

const (
	roleOperator = "operator"
	roleProvider = "provider"
	roleCreator  = "creator"
	roleSeller   = "seller"
)

type engineState interface {
	storeState
	Atomic(fn func() error) error
	View(fn func() error) error
}

// Engine is the offering lifecycle controller of one marketplace instance.
// Every mutating call runs as a single atomic state transition: either all
// of its writes, value movements and events land, or none do.
type Engine struct {
	mu        sync.Mutex
	cfg       Config
	state     engineState
	store     *Store
	fees      *feeRegistry
	ledger    Ledger
	directory AssetDirectory
	nowFn     func() time.Time
	logger    *slog.Logger
	telemetry *metrics.MarketMetrics
}

// NewEngine constructs a marketplace engine for cfg. State, ledger and asset
// directory must be configured before use.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		cfg:       cfg,
		nowFn:     time.Now,
		logger:    slog.Default(),
		telemetry: metrics.Market(),
	}, nil
}

// SetState configures the persistence backend.
func (e *Engine) SetState(state engineState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = state
	if state == nil {
		e.store = nil
		e.fees = nil
		return
	}
	e.store = NewStore(state, e.cfg.Address)
	e.fees = newFeeRegistry(state, e.store.ns, e.cfg.feeSchedule())
	e.seedOpenOfferings()
}

// SetTelemetry replaces the metrics sink and seeds its open offering gauge
// from state.
func (e *Engine) SetTelemetry(telemetry *metrics.MarketMetrics) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.telemetry = telemetry
	e.seedOpenOfferings()
}

// seedOpenOfferings aligns the gauge with persisted offerings so that a
// restarted daemon does not count from zero.
func (e *Engine) seedOpenOfferings() {
	if e.telemetry == nil || e.state == nil || e.store == nil {
		return
	}
	var open int
	err := e.state.View(func() error {
		list, err := e.store.List(false)
		open = len(list)
		return err
	})
	if err != nil {
		e.logger.Warn("open offering gauge not seeded", slog.String("market", e.marketLabel()), slog.Any("error", err))
		return
	}
	e.telemetry.SetOpenOfferings(e.marketLabel(), open)
}

// SetLedger configures the native value collaborator.
func (e *Engine) SetLedger(ledger Ledger) {
	e.mu.Lock()
	e.ledger = ledger
	e.mu.Unlock()
}

// SetDirectory configures how stored asset contracts are resolved.
func (e *Engine) SetDirectory(directory AssetDirectory) {
	e.mu.Lock()
	e.directory = directory
	e.mu.Unlock()
}

// SetNowFunc overrides the clock used for offering timestamps.
func (e *Engine) SetNowFunc(now func() time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if now == nil {
		e.nowFn = time.Now
		return
	}
	e.nowFn = now
}

// SetLogger overrides the structured logger.
func (e *Engine) SetLogger(logger *slog.Logger) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if logger == nil {
		e.logger = slog.Default()
		return
	}
	e.logger = logger
}

// Address returns the marketplace account.
func (e *Engine) Address() common.Address { return e.cfg.Address }

// Settlement returns the configured settlement mode.
func (e *Engine) Settlement() SettlementMode { return e.cfg.Settlement }

func (e *Engine) ready() error {
	if e.state == nil || e.store == nil {
		return errNilState
	}
	if e.ledger == nil {
		return errNilLedger
	}
	if e.directory == nil {
		return errNilDirectory
	}
	return nil
}

func (e *Engine) now() uint64 {
	return uint64(e.nowFn().UTC().Unix())
}

func (e *Engine) marketLabel() string { return e.cfg.Address.Hex() }

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrNotOwner):
		return "not_owner"
	case errors.Is(err, ErrStaleOffering):
		return "stale"
	case errors.Is(err, ErrClosed):
		return "closed"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInsufficientPayment):
		return "insufficient_payment"
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrInvalidPrice), errors.Is(err, ErrInvalidAddress):
		return "invalid"
	case errors.Is(err, ErrFeeTooHigh), errors.Is(err, ErrRoyaltyExceedsPrice):
		return "limit"
	case errors.Is(err, ErrNoBalance):
		return "no_balance"
	default:
		return "error"
	}
}

// transition runs fn atomically against state and records its outcome.
func (e *Engine) transition(op string, fn func() error) error {
	if err := e.ready(); err != nil {
		return err
	}
	start := time.Now()
	err := e.state.Atomic(fn)
	elapsed := time.Since(start)
	if e.telemetry != nil {
		e.telemetry.ObserveOperation(e.marketLabel(), op, outcome(err), elapsed)
	}
	if err != nil {
		e.logger.Debug("market transition rejected",
			slog.String("market", e.marketLabel()),
			slog.String("op", op),
			slog.Any("error", err))
	}
	return err
}

func (e *Engine) view(fn func() error) error {
	if err := e.ready(); err != nil {
		return err
	}
	return e.state.View(fn)
}

func (e *Engine) resolve(addr common.Address) (Asset, error) {
	asset, err := e.directory.Resolve(addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknownAsset, err)
	}
	if asset == nil {
		return nil, ErrUnknownAsset
	}
	return asset, nil
}

func checkAmount(kind AssetKind, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidAmount)
	}
	if kind == AssetSingle && amount.Cmp(big.NewInt(1)) != 0 {
		return fmt.Errorf("%w: single assets trade one unit", ErrInvalidAmount)
	}
	return nil
}

// quote validates a listing request and computes its split. It performs no
// writes and is shared by placement and preview.
func (e *Engine) quote(caller common.Address, asset Asset, assetID, price *big.Int, operator common.Address, amount *big.Int) (Quote, error) {
	if asset == nil {
		return Quote{}, ErrUnknownAsset
	}
	kind, err := kindOf(asset)
	if err != nil {
		return Quote{}, err
	}
	if assetID == nil || assetID.Sign() < 0 {
		return Quote{}, fmt.Errorf("%w: asset id required", ErrInvalidAmount)
	}
	if err := checkAmount(kind, amount); err != nil {
		return Quote{}, err
	}
	if err := validatePrice(price); err != nil {
		return Quote{}, err
	}
	owned, err := controls(asset, caller, assetID, amount)
	if err != nil {
		return Quote{}, fmt.Errorf("%w: %v", ErrNotOwner, err)
	}
	if !owned {
		return Quote{}, ErrNotOwner
	}
	fees, err := e.fees.load()
	if err != nil {
		return Quote{}, err
	}
	if operator == (common.Address{}) {
		operator = fees.Operator
	}
	if operator != fees.Operator {
		return Quote{}, fmt.Errorf("%w: operator %s is not the marketplace operator", ErrUnauthorized, operator.Hex())
	}
	royalty, err := ResolveRoyalty(asset, assetID)
	if err != nil {
		return Quote{}, err
	}
	split, err := ComputeSplit(price, fees.OperatorFeeBps, fees.ProviderFeeBps, royalty)
	if err != nil {
		return Quote{}, err
	}
	return Quote{
		Kind:     kind,
		Amount:   cloneBigInt(amount),
		Fees:     fees,
		Royalty:  royalty,
		Split:    split,
		Operator: operator,
	}, nil
}

// PlaceOffering lists amount units of assetID at price and returns the new
// offering identifier. A zero operator selects the registry operator.
func (e *Engine) PlaceOffering(caller common.Address, asset Asset, assetID, price *big.Int, operator common.Address, amount *big.Int) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var placed *Offering
	err := e.transition("place", func() error {
		q, err := e.quote(caller, asset, assetID, price, operator, amount)
		if err != nil {
			return err
		}
		at := e.now()
		offering := &Offering{
			AssetContract: asset.Address(),
			Kind:          q.Kind,
			AssetID:       cloneBigInt(assetID),
			Amount:        q.Amount,
			Seller:        caller,
			Operator:      q.Operator,
			Provider:      q.Fees.Provider,
			Creator:       q.Royalty.Beneficiary(),
			CreatedAt:     at,
			UpdatedAt:     at,
		}
		offering.applySplit(price, q.Split)
		if _, err := e.store.Create(offering); err != nil {
			return err
		}
		e.state.Emit(OfferingPlaced{Market: e.cfg.Address, Offering: offering.Clone()})
		placed = offering
		return nil
	})
	if err != nil {
		return 0, err
	}
	if e.telemetry != nil {
		e.telemetry.AddOpenOfferings(e.marketLabel(), 1)
	}
	e.logger.Info("offering placed",
		slog.String("market", e.marketLabel()),
		slog.Uint64("offering", placed.ID),
		slog.String("seller", placed.Seller.Hex()),
		slog.String("price", placed.Price.String()))
	return placed.ID, nil
}

// PreviewPlaceOffering runs the placement checks and returns the split a
// listing would record, without writing state or emitting events.
func (e *Engine) PreviewPlaceOffering(caller common.Address, asset Asset, assetID, price *big.Int, operator common.Address, amount *big.Int) (Split, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var split Split
	err := e.view(func() error {
		q, err := e.quote(caller, asset, assetID, price, operator, amount)
		if err != nil {
			return err
		}
		split = q.Split
		return nil
	})
	return split, err
}

// UpdateOffering changes the price of an open offering and recomputes its
// split with the fees and royalty in force now.
func (e *Engine) UpdateOffering(caller common.Address, id uint64, newPrice *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.transition("update", func() error {
		offering, err := e.store.Get(id)
		if err != nil {
			return err
		}
		if offering.Closed {
			return ErrClosed
		}
		if caller != offering.Seller {
			return ErrNotOwner
		}
		asset, err := e.resolve(offering.AssetContract)
		if err != nil {
			return err
		}
		owned, err := controls(asset, caller, offering.AssetID, offering.Amount)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrNotOwner, err)
		}
		if !owned {
			return ErrNotOwner
		}
		if err := validatePrice(newPrice); err != nil {
			return err
		}
		fees, err := e.fees.load()
		if err != nil {
			return err
		}
		royalty, err := ResolveRoyalty(asset, offering.AssetID)
		if err != nil {
			return err
		}
		split, err := ComputeSplit(newPrice, fees.OperatorFeeBps, fees.ProviderFeeBps, royalty)
		if err != nil {
			return err
		}
		oldPrice := cloneBigInt(offering.Price)
		updated, err := e.store.Update(id, newPrice, split, royalty.Beneficiary(), e.now())
		if err != nil {
			return err
		}
		e.state.Emit(OfferingUpdated{Market: e.cfg.Address, Offering: updated, OldPrice: oldPrice})
		return nil
	})
}

// CloseOffering settles an offering for buyer. payment must equal price *
// amount. The whole offering closes regardless of amount.
func (e *Engine) CloseOffering(buyer common.Address, id uint64, amount, payment *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var (
		closed *Offering
		total  *big.Int
		paid   Split
	)
	err := e.transition("close", func() error {
		offering, err := e.store.Get(id)
		if err != nil {
			return err
		}
		if offering.Closed {
			return ErrClosed
		}
		if buyer == e.cfg.Address {
			return fmt.Errorf("%w: marketplace account cannot buy", ErrUnauthorized)
		}
		if err := checkAmount(offering.Kind, amount); err != nil {
			return err
		}
		if amount.Cmp(offering.Amount) > 0 {
			return fmt.Errorf("%w: only %s units listed", ErrInvalidAmount, offering.Amount)
		}
		total, err = totalDue(offering.Price, amount)
		if err != nil {
			return err
		}
		if payment == nil || payment.Cmp(total) != 0 {
			return fmt.Errorf("%w: expected %s", ErrInsufficientPayment, total)
		}
		asset, err := e.resolve(offering.AssetContract)
		if err != nil {
			return err
		}
		owned, err := controls(asset, offering.Seller, offering.AssetID, amount)
		if err != nil || !owned {
			return ErrStaleOffering
		}

		market := e.cfg.Address
		if err := e.ledger.Transfer(buyer, market, total); err != nil {
			return fmt.Errorf("market: collect payment: %w", err)
		}
		paid = offering.Split().scale(amount)
		payouts := []struct {
			to  common.Address
			cut *big.Int
		}{
			{offering.Provider, paid.ProviderCut},
			{offering.Operator, paid.OperatorCut},
			{offering.Creator, paid.CreatorCut},
		}
		for _, p := range payouts {
			if p.cut.Sign() == 0 {
				continue
			}
			if err := e.ledger.Transfer(market, p.to, p.cut); err != nil {
				return fmt.Errorf("market: pay out: %w", err)
			}
		}
		switch e.cfg.Settlement {
		case SettlementDirect:
			if paid.SellerCut.Sign() > 0 {
				if err := e.ledger.Transfer(market, offering.Seller, paid.SellerCut); err != nil {
					return fmt.Errorf("market: pay seller: %w", err)
				}
			}
		default:
			if err := e.store.Credit(offering.Seller, paid.SellerCut); err != nil {
				return err
			}
		}
		closed, err = e.store.Close(id, e.now())
		if err != nil {
			return err
		}
		if err := deliver(asset, market, offering.Seller, buyer, offering.AssetID, amount); err != nil {
			return fmt.Errorf("market: transfer asset: %w", err)
		}
		e.state.Emit(OfferingClosed{
			Market:     market,
			Offering:   closed.Clone(),
			Buyer:      buyer,
			Units:      cloneBigInt(amount),
			Paid:       cloneBigInt(total),
			Settlement: e.cfg.Settlement,
		})
		return nil
	})
	if err != nil {
		return err
	}
	if e.telemetry != nil {
		e.telemetry.AddOpenOfferings(e.marketLabel(), -1)
		e.telemetry.ObserveSale(e.marketLabel(), total, map[string]*big.Int{
			roleProvider: paid.ProviderCut,
			roleOperator: paid.OperatorCut,
			roleCreator:  paid.CreatorCut,
			roleSeller:   paid.SellerCut,
		})
	}
	e.logger.Info("offering closed",
		slog.String("market", e.marketLabel()),
		slog.Uint64("offering", closed.ID),
		slog.String("buyer", buyer.Hex()),
		slog.String("total", total.String()))
	return nil
}

// WithdrawOffering cancels an open offering. The record is tombstoned and
// reads as not found afterwards.
func (e *Engine) WithdrawOffering(caller common.Address, id uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	err := e.transition("withdraw", func() error {
		offering, err := e.store.Get(id)
		if err != nil {
			return err
		}
		if caller != offering.Seller {
			return fmt.Errorf("%w: only the seller can withdraw an offering", ErrUnauthorized)
		}
		if offering.Closed {
			return ErrClosed
		}
		if err := e.store.Tombstone(id); err != nil {
			return err
		}
		e.state.Emit(OfferingWithdrawn{Market: e.cfg.Address, OfferingID: id, Seller: caller})
		return nil
	})
	if err != nil {
		return err
	}
	if e.telemetry != nil {
		e.telemetry.AddOpenOfferings(e.marketLabel(), -1)
	}
	return nil
}

// WithdrawBalance pays out the caller's escrowed proceeds.
func (e *Engine) WithdrawBalance(caller common.Address) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var amount *big.Int
	err := e.transition("withdraw_balance", func() error {
		balance, err := e.store.Balance(caller)
		if err != nil {
			return err
		}
		if balance.Sign() == 0 {
			return ErrNoBalance
		}
		if err := e.store.ClearBalance(caller); err != nil {
			return err
		}
		if err := e.ledger.Transfer(e.cfg.Address, caller, balance); err != nil {
			return fmt.Errorf("market: pay balance: %w", err)
		}
		e.state.Emit(BalanceWithdrawn{Market: e.cfg.Address, Account: caller, Amount: cloneBigInt(balance)})
		amount = balance
		return nil
	})
	if err != nil {
		return nil, err
	}
	if e.telemetry != nil {
		e.telemetry.ObserveWithdrawal(e.marketLabel(), amount)
	}
	return amount, nil
}

// ViewBalance returns the escrowed balance of addr.
func (e *Engine) ViewBalance(addr common.Address) (*big.Int, error) {
	var balance *big.Int
	err := e.view(func() error {
		var err error
		balance, err = e.store.Balance(addr)
		return err
	})
	return balance, err
}

// ViewOffering returns the stored record for id, including closed and
// tombstoned ones. Identifiers never issued return ErrNotFound.
func (e *Engine) ViewOffering(id uint64) (*Offering, error) {
	var offering *Offering
	err := e.view(func() error {
		record, ok, err := e.store.View(id)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotFound
		}
		offering = record
		return nil
	})
	return offering, err
}

// Offering returns a live offering. Withdrawn offerings return ErrNotFound.
func (e *Engine) Offering(id uint64) (*Offering, error) {
	var offering *Offering
	err := e.view(func() error {
		var err error
		offering, err = e.store.Get(id)
		return err
	})
	return offering, err
}

// Offerings lists live offerings in identifier order.
func (e *Engine) Offerings(includeClosed bool) ([]*Offering, error) {
	var out []*Offering
	err := e.view(func() error {
		var err error
		out, err = e.store.List(includeClosed)
		return err
	})
	return out, err
}

// Fees returns the fee schedule currently in force.
func (e *Engine) Fees() (FeeSchedule, error) {
	var schedule FeeSchedule
	err := e.view(func() error {
		var err error
		schedule, err = e.fees.load()
		return err
	})
	return schedule, err
}

// SetOperatorFee changes the operator rate. Only the operator may call it.
func (e *Engine) SetOperatorFee(caller common.Address, bps uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.transition("set_operator_fee", func() error {
		before, err := e.fees.load()
		if err != nil {
			return err
		}
		after, err := e.fees.setOperatorFee(caller, bps)
		if err != nil {
			return err
		}
		e.state.Emit(FeeUpdated{Market: e.cfg.Address, Role: roleOperator, OldBps: before.OperatorFeeBps, NewBps: after.OperatorFeeBps})
		return nil
	})
}

// SetProviderFee changes the provider rate. Only the provider may call it.
func (e *Engine) SetProviderFee(caller common.Address, bps uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.transition("set_provider_fee", func() error {
		before, err := e.fees.load()
		if err != nil {
			return err
		}
		after, err := e.fees.setProviderFee(caller, bps)
		if err != nil {
			return err
		}
		e.state.Emit(FeeUpdated{Market: e.cfg.Address, Role: roleProvider, OldBps: before.ProviderFeeBps, NewBps: after.ProviderFeeBps})
		return nil
	})
}

// ChangeOperator hands the operator role to next.
func (e *Engine) ChangeOperator(caller, next common.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.transition("change_operator", func() error {
		if next == e.cfg.Address {
			return fmt.Errorf("%w: operator must differ from the marketplace account", ErrInvalidAddress)
		}
		if _, err := e.fees.changeOperator(caller, next); err != nil {
			return err
		}
		e.state.Emit(RoleChanged{Market: e.cfg.Address, Role: roleOperator, Previous: caller, Next: next})
		return nil
	})
}

// ChangeProvider hands the provider role to next.
func (e *Engine) ChangeProvider(caller, next common.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.transition("change_provider", func() error {
		if next == e.cfg.Address {
			return fmt.Errorf("%w: provider must differ from the marketplace account", ErrInvalidAddress)
		}
		if _, err := e.fees.changeProvider(caller, next); err != nil {
			return err
		}
		e.state.Emit(RoleChanged{Market: e.cfg.Address, Role: roleProvider, Previous: caller, Next: next})
		return nil
	})
}
