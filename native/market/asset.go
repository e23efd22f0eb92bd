package market

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Asset is a handle on a token contract. The concrete token interface is
// discovered by probing for SingleAsset or MultiAsset.
type Asset interface {
	Address() common.Address
}

// SingleAsset is an ERC-721 style contract.
type SingleAsset interface {
	Asset
	OwnerOf(id *big.Int) (common.Address, error)
	TransferFrom(spender, from, to common.Address, id *big.Int) error
}

// MultiAsset is an ERC-1155 style contract.
type MultiAsset interface {
	Asset
	BalanceOf(owner common.Address, id *big.Int) (*big.Int, error)
	SafeTransferFrom(spender, from, to common.Address, id, amount *big.Int) error
}

// RoyaltySource is the optional ERC-2981 capability.
type RoyaltySource interface {
	RoyaltyInfo(id, salePrice *big.Int) (common.Address, *big.Int, error)
}

// Ledger moves native value between accounts.
type Ledger interface {
	Balance(addr common.Address) (*big.Int, error)
	Transfer(from, to common.Address, amount *big.Int) error
}

// AssetDirectory re-binds a stored contract address to a live asset handle.
type AssetDirectory interface {
	Resolve(addr common.Address) (Asset, error)
}

// DirectoryFunc adapts a function to AssetDirectory.
type DirectoryFunc func(addr common.Address) (Asset, error)

// Resolve implements AssetDirectory.
func (f DirectoryFunc) Resolve(addr common.Address) (Asset, error) { return f(addr) }

func kindOf(asset Asset) (AssetKind, error) {
	switch asset.(type) {
	case SingleAsset:
		return AssetSingle, nil
	case MultiAsset:
		return AssetMulti, nil
	default:
		return 0, ErrUnknownAsset
	}
}

// controls reports whether holder owns the asset (single) or holds at least
// amount units of it (multi).
func controls(asset Asset, holder common.Address, id, amount *big.Int) (bool, error) {
	switch token := asset.(type) {
	case SingleAsset:
		owner, err := token.OwnerOf(id)
		if err != nil {
			return false, err
		}
		return owner == holder, nil
	case MultiAsset:
		balance, err := token.BalanceOf(holder, id)
		if err != nil {
			return false, err
		}
		return balance.Cmp(amount) >= 0, nil
	default:
		return false, ErrUnknownAsset
	}
}

func deliver(asset Asset, spender, from, to common.Address, id, amount *big.Int) error {
	switch token := asset.(type) {
	case SingleAsset:
		return token.TransferFrom(spender, from, to, id)
	case MultiAsset:
		return token.SafeTransferFrom(spender, from, to, id, amount)
	default:
		return ErrUnknownAsset
	}
}
