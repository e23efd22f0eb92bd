package market

import (
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"nftmarket/core/events"
)

type storeState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	Emit(events.Event)
}

// storedOffering is the persisted layout. Big integers are kept non-nil so
// the record round-trips through RLP unchanged.
type storedOffering struct {
	ID            uint64
	AssetContract common.Address
	Kind          uint8
	AssetID       *big.Int
	Amount        *big.Int
	Seller        common.Address
	Price         *big.Int
	Operator      common.Address
	OperatorCut   *big.Int
	Provider      common.Address
	ProviderCut   *big.Int
	Creator       common.Address
	CreatorCut    *big.Int
	SellerCut     *big.Int
	Closed        bool
	CreatedAt     uint64
	UpdatedAt     uint64
}

func toStored(o *Offering) *storedOffering {
	c := o.Clone()
	return &storedOffering{
		ID:            c.ID,
		AssetContract: c.AssetContract,
		Kind:          uint8(c.Kind),
		AssetID:       c.AssetID,
		Amount:        c.Amount,
		Seller:        c.Seller,
		Price:         c.Price,
		Operator:      c.Operator,
		OperatorCut:   c.OperatorCut,
		Provider:      c.Provider,
		ProviderCut:   c.ProviderCut,
		Creator:       c.Creator,
		CreatorCut:    c.CreatorCut,
		SellerCut:     c.SellerCut,
		Closed:        c.Closed,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
}

func (s *storedOffering) toOffering() *Offering {
	return &Offering{
		ID:            s.ID,
		AssetContract: s.AssetContract,
		Kind:          AssetKind(s.Kind),
		AssetID:       cloneBigInt(s.AssetID),
		Amount:        cloneBigInt(s.Amount),
		Seller:        s.Seller,
		Price:         cloneBigInt(s.Price),
		Operator:      s.Operator,
		OperatorCut:   cloneBigInt(s.OperatorCut),
		Provider:      s.Provider,
		ProviderCut:   cloneBigInt(s.ProviderCut),
		Creator:       s.Creator,
		CreatorCut:    cloneBigInt(s.CreatorCut),
		SellerCut:     cloneBigInt(s.SellerCut),
		Closed:        s.Closed,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}
}

func nsKey(ns []byte, parts ...string) []byte {
	key := append([]byte("market/"), ns...)
	for _, p := range parts {
		key = append(key, '/')
		key = append(key, p...)
	}
	return key
}

// Store keeps the offerings and escrowed seller balances of one
// marketplace instance. Keys are namespaced by the marketplace address so
// several instances can share one state.
type Store struct {
	state storeState
	ns    []byte
}

// NewStore binds an offering store for the marketplace at market.
func NewStore(state storeState, market common.Address) *Store {
	return &Store{state: state, ns: []byte(market.Hex())}
}

func (s *Store) offeringKey(id uint64) []byte {
	return nsKey(s.ns, "offering", strconv.FormatUint(id, 10))
}

func (s *Store) balanceKey(addr common.Address) []byte {
	return nsKey(s.ns, "balance", addr.Hex())
}

// Next returns the number of identifiers issued so far.
func (s *Store) Next() (uint64, error) {
	var count uint64
	if _, err := s.state.KVGet(nsKey(s.ns, "next"), &count); err != nil {
		return 0, fmt.Errorf("market: load offering counter: %w", err)
	}
	return count, nil
}

// Create assigns the next identifier, starting at 1, and persists o.
func (s *Store) Create(o *Offering) (uint64, error) {
	count, err := s.Next()
	if err != nil {
		return 0, err
	}
	id := count + 1
	if err := s.state.KVPut(nsKey(s.ns, "next"), id); err != nil {
		return 0, err
	}
	o.ID = id
	if err := s.put(o); err != nil {
		return 0, err
	}
	return id, nil
}

func (s *Store) put(o *Offering) error {
	return s.state.KVPut(s.offeringKey(o.ID), toStored(o))
}

// View returns the raw record, including closed and tombstoned ones.
func (s *Store) View(id uint64) (*Offering, bool, error) {
	if id == 0 {
		return nil, false, nil
	}
	var stored storedOffering
	ok, err := s.state.KVGet(s.offeringKey(id), &stored)
	if err != nil {
		return nil, false, fmt.Errorf("market: load offering %d: %w", id, err)
	}
	if !ok {
		return nil, false, nil
	}
	return stored.toOffering(), true, nil
}

// Get returns a live offering. Unknown and tombstoned records map to
// ErrNotFound.
func (s *Store) Get(id uint64) (*Offering, error) {
	offering, ok, err := s.View(id)
	if err != nil {
		return nil, err
	}
	if !ok || offering.Tombstoned() {
		return nil, ErrNotFound
	}
	return offering, nil
}

// Update overwrites the price and split of an open offering.
func (s *Store) Update(id uint64, price *big.Int, split Split, creator common.Address, at uint64) (*Offering, error) {
	offering, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if offering.Closed {
		return nil, ErrClosed
	}
	offering.applySplit(price, split)
	offering.Creator = creator
	offering.UpdatedAt = at
	return offering, s.put(offering)
}

// Close marks an offering as settled.
func (s *Store) Close(id uint64, at uint64) (*Offering, error) {
	offering, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if offering.Closed {
		return nil, ErrClosed
	}
	offering.Closed = true
	offering.UpdatedAt = at
	return offering, s.put(offering)
}

// Tombstone resets the record to its zero value with the closed flag set.
func (s *Store) Tombstone(id uint64) error {
	return s.put(&Offering{ID: id, Closed: true})
}

// List returns every live offering in identifier order. Closed offerings are
// included only when includeClosed is set.
func (s *Store) List(includeClosed bool) ([]*Offering, error) {
	count, err := s.Next()
	if err != nil {
		return nil, err
	}
	out := make([]*Offering, 0)
	for id := uint64(1); id <= count; id++ {
		offering, ok, err := s.View(id)
		if err != nil {
			return nil, err
		}
		if !ok || offering.Tombstoned() {
			continue
		}
		if offering.Closed && !includeClosed {
			continue
		}
		out = append(out, offering)
	}
	return out, nil
}

// Balance returns the escrowed proceeds owed to addr.
func (s *Store) Balance(addr common.Address) (*big.Int, error) {
	amount := new(big.Int)
	ok, err := s.state.KVGet(s.balanceKey(addr), amount)
	if err != nil {
		return nil, fmt.Errorf("market: load balance: %w", err)
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return amount, nil
}

// Credit adds amount to the escrowed proceeds of addr.
func (s *Store) Credit(addr common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	current, err := s.Balance(addr)
	if err != nil {
		return err
	}
	return s.state.KVPut(s.balanceKey(addr), current.Add(current, amount))
}

// ClearBalance zeroes the escrowed proceeds of addr after a withdrawal.
func (s *Store) ClearBalance(addr common.Address) error {
	return s.state.KVPut(s.balanceKey(addr), big.NewInt(0))
}
