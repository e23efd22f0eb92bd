package nft

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var (
	metaPrefix     = []byte("nft/meta/")
	uriPrefix      = []byte("nft/uri/")
	royaltyPrefix  = []byte("nft/royalty/")
	operatorPrefix = []byte("nft/operator/")
)

// base carries the state shared by both collection kinds: metadata, token
// URIs, operator approvals and ERC-2981 royalty records.
type base struct {
	addr  common.Address
	state collectionState
}

// Address returns the collection's contract address.
func (b *base) Address() common.Address { return b.addr }

func (b *base) metadata() (*Metadata, error) {
	if b == nil || b.state == nil {
		return nil, errNilState
	}
	meta := new(Metadata)
	ok, err := b.state.KVGet(idKey(metaPrefix, b.addr), meta)
	if err != nil {
		return nil, fmt.Errorf("nft: load metadata: %w", err)
	}
	if !ok {
		return nil, ErrUnknownCollection
	}
	return meta, nil
}

// Metadata returns a copy of the collection metadata.
func (b *base) Metadata() (*Metadata, error) { return b.metadata() }

func (b *base) storeMetadata(meta *Metadata) error {
	return b.state.KVPut(idKey(metaPrefix, b.addr), meta)
}

// nextTokenID reserves the next identifier. Identifiers start at 1.
func (b *base) nextTokenID(meta *Metadata) *big.Int {
	meta.NextTokenID++
	return new(big.Int).SetUint64(meta.NextTokenID)
}

func (b *base) requireOwner(meta *Metadata, caller common.Address) error {
	if meta.Owner != caller {
		return ErrUnauthorized
	}
	return nil
}

// SetDefaultRoyalty configures the royalty applied to tokens minted without
// their own beneficiary.
func (b *base) SetDefaultRoyalty(caller, receiver common.Address, bps uint64) error {
	meta, err := b.metadata()
	if err != nil {
		return err
	}
	if err := b.requireOwner(meta, caller); err != nil {
		return err
	}
	if err := validateRoyalty(bps); err != nil {
		return err
	}
	meta.DefaultReceiver = receiver
	meta.DefaultBps = bps
	return b.storeMetadata(meta)
}

func (b *base) setTokenRoyalty(id *big.Int, receiver common.Address, bps uint64) error {
	if err := validateRoyalty(bps); err != nil {
		return err
	}
	if receiver == (common.Address{}) {
		return nil
	}
	return b.state.KVPut(idKey(royaltyPrefix, b.addr, tokenBytes(id)), &royaltyRecord{Receiver: receiver, Bps: bps})
}

// RoyaltyInfo implements the ERC-2981 query: the token-specific record wins,
// otherwise the collection default applies.
func (b *base) RoyaltyInfo(id, salePrice *big.Int) (common.Address, *big.Int, error) {
	meta, err := b.metadata()
	if err != nil {
		return common.Address{}, nil, err
	}
	var rec royaltyRecord
	ok, err := b.state.KVGet(idKey(royaltyPrefix, b.addr, tokenBytes(id)), &rec)
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("nft: load royalty: %w", err)
	}
	if !ok {
		rec = royaltyRecord{Receiver: meta.DefaultReceiver, Bps: meta.DefaultBps}
	}
	return rec.Receiver, royaltyAmount(salePrice, rec.Bps), nil
}

func (b *base) setURI(id *big.Int, uri string) error {
	if uri == "" {
		return nil
	}
	return b.state.KVPut(idKey(uriPrefix, b.addr, tokenBytes(id)), uri)
}

func (b *base) uri(id *big.Int) (string, error) {
	var uri string
	if _, err := b.state.KVGet(idKey(uriPrefix, b.addr, tokenBytes(id)), &uri); err != nil {
		return "", err
	}
	return uri, nil
}

// SetApprovalForAll grants or revokes operator rights over every token the
// caller holds in this collection.
func (b *base) SetApprovalForAll(caller, operator common.Address, approved bool) error {
	if b == nil || b.state == nil {
		return errNilState
	}
	if caller == operator {
		return fmt.Errorf("nft: approve to caller")
	}
	key := idKey(operatorPrefix, b.addr, caller.Bytes(), operator.Bytes())
	if !approved {
		if err := b.state.KVDelete(key); err != nil {
			return err
		}
	} else if err := b.state.KVPut(key, true); err != nil {
		return err
	}
	b.state.Emit(approvalEvent{collection: b.addr, owner: caller, operator: operator, approved: approved})
	return nil
}

// IsApprovedForAll reports whether operator may move every token of owner.
func (b *base) IsApprovedForAll(owner, operator common.Address) bool {
	if b == nil || b.state == nil {
		return false
	}
	var approved bool
	ok, err := b.state.KVGet(idKey(operatorPrefix, b.addr, owner.Bytes(), operator.Bytes()), &approved)
	return err == nil && ok && approved
}
