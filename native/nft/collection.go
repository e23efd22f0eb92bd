package nft

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ownerPrefix    = []byte("nft/owner/")
	approvedPrefix = []byte("nft/approved/")
)

// Collection is a single-asset (ERC-721 style) token contract kept in state.
type Collection struct {
	base
}

func (c *Collection) ownerKey(id *big.Int) []byte {
	return idKey(ownerPrefix, c.addr, tokenBytes(id))
}

func (c *Collection) approvedKey(id *big.Int) []byte {
	return idKey(approvedPrefix, c.addr, tokenBytes(id))
}

// Mint creates the next token for to and records its royalty. Only the
// collection owner may mint.
func (c *Collection) Mint(caller, to, beneficiary common.Address, royaltyBps uint64, uri string) (*big.Int, error) {
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
	if err := validateRoyalty(royaltyBps); err != nil {
		return nil, err
	}
	id := c.nextTokenID(meta)
	if err := c.storeMetadata(meta); err != nil {
		return nil, err
	}
	if err := c.state.KVPut(c.ownerKey(id), to); err != nil {
		return nil, err
	}
	if err := c.setTokenRoyalty(id, beneficiary, royaltyBps); err != nil {
		return nil, err
	}
	if err := c.setURI(id, uri); err != nil {
		return nil, err
	}
	c.state.Emit(transferEvent{collection: c.addr, operator: caller, to: to, id: id, amount: big.NewInt(1)})
	return id, nil
}

// OwnerOf returns the current holder of id.
func (c *Collection) OwnerOf(id *big.Int) (common.Address, error) {
	if c == nil || c.state == nil {
		return common.Address{}, errNilState
	}
	var owner common.Address
	ok, err := c.state.KVGet(c.ownerKey(id), &owner)
	if err != nil {
		return common.Address{}, fmt.Errorf("nft: load owner: %w", err)
	}
	if !ok {
		return common.Address{}, ErrNonexistentToken
	}
	return owner, nil
}

// TokenURI returns the metadata URI recorded at mint time.
func (c *Collection) TokenURI(id *big.Int) (string, error) {
	if _, err := c.OwnerOf(id); err != nil {
		return "", err
	}
	return c.uri(id)
}

// Approve lets to move id on behalf of its owner. The caller must be the
// owner or an approved operator of the owner.
func (c *Collection) Approve(caller, to common.Address, id *big.Int) error {
	owner, err := c.OwnerOf(id)
	if err != nil {
		return err
	}
	if caller != owner && !c.IsApprovedForAll(owner, caller) {
		return ErrNotOwnerNorApproved
	}
	if err := c.state.KVPut(c.approvedKey(id), to); err != nil {
		return err
	}
	c.state.Emit(approvalEvent{collection: c.addr, owner: owner, operator: to, tokenID: new(big.Int).Set(id), approved: true})
	return nil
}

// GetApproved returns the single-token approval for id, if any.
func (c *Collection) GetApproved(id *big.Int) (common.Address, error) {
	if _, err := c.OwnerOf(id); err != nil {
		return common.Address{}, err
	}
	var approved common.Address
	if _, err := c.state.KVGet(c.approvedKey(id), &approved); err != nil {
		return common.Address{}, err
	}
	return approved, nil
}

func (c *Collection) isApprovedOrOwner(spender, owner common.Address, id *big.Int) (bool, error) {
	if spender == owner || c.IsApprovedForAll(owner, spender) {
		return true, nil
	}
	approved, err := c.GetApproved(id)
	if err != nil {
		return false, err
	}
	return approved == spender && approved != (common.Address{}), nil
}

// TransferFrom moves id from from to to. The spender must be the owner, the
// token's approved address, or an operator of the owner.
func (c *Collection) TransferFrom(spender, from, to common.Address, id *big.Int) error {
	owner, err := c.OwnerOf(id)
	if err != nil {
		return err
	}
	if owner != from {
		return fmt.Errorf("%w: transfer from incorrect owner", ErrNotOwnerNorApproved)
	}
	if to == (common.Address{}) {
		return ErrInvalidReceiver
	}
	ok, err := c.isApprovedOrOwner(spender, owner, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotOwnerNorApproved
	}
	if err := c.state.KVDelete(c.approvedKey(id)); err != nil {
		return err
	}
	if err := c.state.KVPut(c.ownerKey(id), to); err != nil {
		return err
	}
	c.state.Emit(transferEvent{collection: c.addr, operator: spender, from: from, to: to, id: new(big.Int).Set(id), amount: big.NewInt(1)})
	return nil
}
