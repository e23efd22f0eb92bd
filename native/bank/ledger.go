package bank

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"nftmarket/core/events"
)

var (
	// ErrInsufficientFunds is returned when a debit exceeds the available balance.
	ErrInsufficientFunds = errors.New("bank: insufficient funds")
	// ErrInvalidAmount is returned for negative amounts.
	ErrInvalidAmount = errors.New("bank: invalid amount")
	// ErrBalanceOverflow is returned when a credit would exceed 256 bits.
	ErrBalanceOverflow = errors.New("bank: balance overflow")

	errNilState = errors.New("bank: state not configured")
)

var balancePrefix = []byte("bank/balance/")

type ledgerState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	Emit(events.Event)
}

// Ledger tracks native value balances. It is the value-transfer collaborator
// consumed by the marketplace.
type Ledger struct {
	state ledgerState
}

// NewLedger binds a ledger to the provided state.
func NewLedger(state ledgerState) *Ledger {
	return &Ledger{state: state}
}

func balanceKey(addr common.Address) []byte {
	buf := make([]byte, len(balancePrefix)+common.AddressLength)
	copy(buf, balancePrefix)
	copy(buf[len(balancePrefix):], addr.Bytes())
	return buf
}

// Balance returns the native balance of addr.
func (l *Ledger) Balance(addr common.Address) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	amount := new(big.Int)
	ok, err := l.state.KVGet(balanceKey(addr), amount)
	if err != nil {
		return nil, fmt.Errorf("bank: load balance: %w", err)
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return amount, nil
}

func (l *Ledger) setBalance(addr common.Address, amount *big.Int) error {
	if _, overflow := uint256.FromBig(amount); overflow {
		return ErrBalanceOverflow
	}
	return l.state.KVPut(balanceKey(addr), amount)
}

// Credit mints amount into addr. It backs the devnet faucet and genesis
// allocations.
func (l *Ledger) Credit(addr common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	current, err := l.Balance(addr)
	if err != nil {
		return err
	}
	if err := l.setBalance(addr, current.Add(current, amount)); err != nil {
		return err
	}
	l.state.Emit(events.Transfer{To: addr, Amount: new(big.Int).Set(amount), Memo: "credit"})
	return nil
}

// Transfer moves amount from one account to another. Zero transfers are
// accepted and leave state untouched.
func (l *Ledger) Transfer(from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if amount.Sign() == 0 || from == to {
		return nil
	}
	fromBal, err := l.Balance(from)
	if err != nil {
		return err
	}
	if fromBal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientFunds, fromBal, amount)
	}
	toBal, err := l.Balance(to)
	if err != nil {
		return err
	}
	if err := l.setBalance(from, fromBal.Sub(fromBal, amount)); err != nil {
		return err
	}
	if err := l.setBalance(to, toBal.Add(toBal, amount)); err != nil {
		return err
	}
	l.state.Emit(events.Transfer{From: from, To: to, Amount: new(big.Int).Set(amount)})
	return nil
}
