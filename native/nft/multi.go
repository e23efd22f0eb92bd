package nft

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var balancePrefix = []byte("nft/balance/")

// MultiCollection is a multi-asset (ERC-1155 style) token contract kept in
// state. Each token id carries a fungible supply.
type MultiCollection struct {
	base
}

func (c *MultiCollection) balanceKey(owner common.Address, id *big.Int) []byte {
	return idKey(balancePrefix, c.addr, tokenBytes(id), owner.Bytes())
}

// Mint creates the next token id with amount units held by to.
func (c *MultiCollection) Mint(caller, to, beneficiary common.Address, royaltyBps uint64, uri string, amount *big.Int) (*big.Int, error) {
	meta, err := c.metadata()
	if err != nil {
		return nil, err
	}
	if err := c.requireOwner(meta, caller); err != nil {
		return nil, err
	}
	if to == (common.Address{}) {
		return nil, ErrInvalidReceiver
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if _, overflow := uint256.FromBig(amount); overflow {
		return nil, ErrInvalidAmount
	}
	if err := validateRoyalty(royaltyBps); err != nil {
		return nil, err
	}
	id := c.nextTokenID(meta)
	if err := c.storeMetadata(meta); err != nil {
		return nil, err
	}
	if err := c.state.KVPut(c.balanceKey(to, id), new(big.Int).Set(amount)); err != nil {
		return nil, err
	}
	if err := c.setTokenRoyalty(id, beneficiary, royaltyBps); err != nil {
		return nil, err
	}
	if err := c.setURI(id, uri); err != nil {
		return nil, err
	}
	c.state.Emit(transferEvent{collection: c.addr, operator: caller, to: to, id: id, amount: new(big.Int).Set(amount)})
	return id, nil
}

// BalanceOf returns how many units of id owner holds.
func (c *MultiCollection) BalanceOf(owner common.Address, id *big.Int) (*big.Int, error) {
	if c == nil || c.state == nil {
		return nil, errNilState
	}
	balance := new(big.Int)
	ok, err := c.state.KVGet(c.balanceKey(owner, id), balance)
	if err != nil {
		return nil, fmt.Errorf("nft: load balance: %w", err)
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return balance, nil
}

// URI returns the metadata URI recorded at mint time.
func (c *MultiCollection) URI(id *big.Int) (string, error) {
	return c.uri(id)
}

// SafeTransferFrom moves amount units of id. The spender must be from or an
// approved operator of from.
func (c *MultiCollection) SafeTransferFrom(spender, from, to common.Address, id, amount *big.Int) error {
	if to == (common.Address{}) {
		return ErrInvalidReceiver
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if spender != from && !c.IsApprovedForAll(from, spender) {
		return ErrNotOwnerNorApproved
	}
	fromBal, err := c.BalanceOf(from, id)
	if err != nil {
		return err
	}
	if fromBal.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	if from != to {
		toBal, err := c.BalanceOf(to, id)
		if err != nil {
			return err
		}
		toBal.Add(toBal, amount)
		if _, overflow := uint256.FromBig(toBal); overflow {
			return ErrInvalidAmount
		}
		if err := c.state.KVPut(c.balanceKey(from, id), fromBal.Sub(fromBal, amount)); err != nil {
			return err
		}
		if err := c.state.KVPut(c.balanceKey(to, id), toBal); err != nil {
			return err
		}
	}
	c.state.Emit(transferEvent{collection: c.addr, operator: spender, from: from, to: to, id: new(big.Int).Set(id), amount: new(big.Int).Set(amount)})
	return nil
}
