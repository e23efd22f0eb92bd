package bank

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"nftmarket/core/state"
	"nftmarket/storage"
)

func TestTransferMovesValue(t *testing.T) {
	st := state.NewManager(storage.NewMemDB())
	ledger := NewLedger(st)
	alice, bob := common.Address{0xA1}, common.Address{0xB0}

	if err := st.Atomic(func() error { return ledger.Credit(alice, big.NewInt(100)) }); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := st.Atomic(func() error { return ledger.Transfer(alice, bob, big.NewInt(40)) }); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	aBal, _ := ledger.Balance(alice)
	bBal, _ := ledger.Balance(bob)
	if aBal.Int64() != 60 || bBal.Int64() != 40 {
		t.Fatalf("unexpected balances alice=%s bob=%s", aBal, bBal)
	}
}

func TestTransferRejectsOverdraft(t *testing.T) {
	st := state.NewManager(storage.NewMemDB())
	ledger := NewLedger(st)
	alice, bob := common.Address{0xA1}, common.Address{0xB0}

	err := st.Atomic(func() error { return ledger.Transfer(alice, bob, big.NewInt(1)) })
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if err := ledger.Transfer(alice, bob, big.NewInt(-1)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestCreditRejectsOverflow(t *testing.T) {
	st := state.NewManager(storage.NewMemDB())
	ledger := NewLedger(st)
	addr := common.Address{0x01}
	max := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

	if err := st.Atomic(func() error { return ledger.Credit(addr, max) }); err != nil {
		t.Fatalf("credit max: %v", err)
	}
	err := st.Atomic(func() error { return ledger.Credit(addr, big.NewInt(1)) })
	if !errors.Is(err, ErrBalanceOverflow) {
		t.Fatalf("expected ErrBalanceOverflow, got %v", err)
	}
}
