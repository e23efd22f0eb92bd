package nft

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/text/unicode/norm"
)

const maxNameLength = 64

var (
	nonceKeyPrefix = []byte("nft/registry/nonce/")
	collectionList = []byte("nft/registry/collections")
)

// Token is the common surface of both collection kinds.
type Token interface {
	Address() common.Address
	Metadata() (*Metadata, error)
}

// Registry deploys collections into state and resolves addresses back to
// collection handles.
type Registry struct {
	state collectionState
}

// NewRegistry binds a registry to the provided state.
func NewRegistry(state collectionState) *Registry {
	return &Registry{state: state}
}

func normalizeName(raw string) (string, error) {
	name := norm.NFKC.String(strings.TrimSpace(raw))
	if name == "" || utf8.RuneCountInString(name) > maxNameLength {
		return "", fmt.Errorf("%w: name must be 1-%d characters", ErrInvalidMetadata, maxNameLength)
	}
	return name, nil
}

// Deploy creates a new collection owned by caller. The address is derived
// from the caller and its deployment nonce.
func (r *Registry) Deploy(caller common.Address, kind Kind, name, symbol string) (common.Address, error) {
	if r == nil || r.state == nil {
		return common.Address{}, errNilState
	}
	if kind != KindSingle && kind != KindMulti {
		return common.Address{}, ErrUnknownKind
	}
	normalizedName, err := normalizeName(name)
	if err != nil {
		return common.Address{}, err
	}
	normalizedSymbol, err := normalizeName(strings.ToUpper(symbol))
	if err != nil {
		return common.Address{}, err
	}

	nonceKey := append(append([]byte(nil), nonceKeyPrefix...), caller.Bytes()...)
	var nonce uint64
	if _, err := r.state.KVGet(nonceKey, &nonce); err != nil {
		return common.Address{}, err
	}
	addr := ethcrypto.CreateAddress(caller, nonce)
	if err := r.state.KVPut(nonceKey, nonce+1); err != nil {
		return common.Address{}, err
	}

	meta := Metadata{
		Address: addr,
		Kind:    kind,
		Name:    normalizedName,
		Symbol:  normalizedSymbol,
		Owner:   caller,
	}
	b := base{addr: addr, state: r.state}
	if err := b.storeMetadata(&meta); err != nil {
		return common.Address{}, err
	}
	if err := r.state.KVAppend(collectionList, addr.Bytes()); err != nil {
		return common.Address{}, err
	}
	r.state.Emit(deployedEvent{meta: meta})
	return addr, nil
}

// Lookup resolves addr to a *Collection or *MultiCollection.
func (r *Registry) Lookup(addr common.Address) (Token, error) {
	if r == nil || r.state == nil {
		return nil, errNilState
	}
	b := base{addr: addr, state: r.state}
	meta, err := b.metadata()
	if err != nil {
		return nil, err
	}
	switch meta.Kind {
	case KindSingle:
		return &Collection{base: b}, nil
	case KindMulti:
		return &MultiCollection{base: b}, nil
	default:
		return nil, ErrUnknownKind
	}
}

// Collection resolves addr to a single-asset collection.
func (r *Registry) Collection(addr common.Address) (*Collection, error) {
	token, err := r.Lookup(addr)
	if err != nil {
		return nil, err
	}
	single, ok := token.(*Collection)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a single-asset collection", ErrUnknownKind, addr.Hex())
	}
	return single, nil
}

// Multi resolves addr to a multi-asset collection.
func (r *Registry) Multi(addr common.Address) (*MultiCollection, error) {
	token, err := r.Lookup(addr)
	if err != nil {
		return nil, err
	}
	multi, ok := token.(*MultiCollection)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a multi-asset collection", ErrUnknownKind, addr.Hex())
	}
	return multi, nil
}

// Collections lists the metadata of every deployed collection in deployment
// order.
func (r *Registry) Collections() ([]Metadata, error) {
	if r == nil || r.state == nil {
		return nil, errNilState
	}
	var raw [][]byte
	if err := r.state.KVGetList(collectionList, &raw); err != nil {
		return nil, err
	}
	out := make([]Metadata, 0, len(raw))
	for _, entry := range raw {
		b := base{addr: common.BytesToAddress(entry), state: r.state}
		meta, err := b.metadata()
		if err != nil {
			return nil, err
		}
		out = append(out, *meta)
	}
	return out, nil
}
