package nft

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"nftmarket/core/events"
)

// BpsDenominator is the basis-point scale used for royalty rates.
const BpsDenominator = 10_000

// Kind distinguishes single-asset collections from multi-asset collections.
type Kind uint8

const (
	KindSingle Kind = iota + 1
	KindMulti
)

func (k Kind) String() string {
	switch k {
	case KindSingle:
		return "erc721"
	case KindMulti:
		return "erc1155"
	default:
		return "unknown"
	}
}

// ParseKind maps the wire names back to a Kind.
func ParseKind(raw string) (Kind, error) {
	switch raw {
	case "erc721", "single":
		return KindSingle, nil
	case "erc1155", "multi":
		return KindMulti, nil
	default:
		return 0, ErrUnknownKind
	}
}

var (
	ErrUnauthorized        = errors.New("nft: caller is not the collection owner")
	ErrNotOwnerNorApproved = errors.New("nft: caller is not token owner nor approved")
	ErrNonexistentToken    = errors.New("nft: nonexistent token")
	ErrInsufficientBalance = errors.New("nft: insufficient balance for transfer")
	ErrInvalidReceiver     = errors.New("nft: transfer to the zero address")
	ErrRoyaltyExceedsPrice = errors.New("nft: royalty fee will exceed salePrice")
	ErrInvalidAmount       = errors.New("nft: amount must be positive")
	ErrUnknownCollection   = errors.New("nft: unknown collection")
	ErrUnknownKind         = errors.New("nft: unknown collection kind")
	ErrInvalidMetadata     = errors.New("nft: invalid collection metadata")

	errNilState = errors.New("nft: state not configured")
)

type collectionState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
	KVAppend(key []byte, value []byte) error
	KVGetList(key []byte, out interface{}) error
	Emit(events.Event)
}

// Metadata describes a deployed collection.
type Metadata struct {
	Address         common.Address
	Kind            Kind
	Name            string
	Symbol          string
	Owner           common.Address
	NextTokenID     uint64
	DefaultReceiver common.Address
	DefaultBps      uint64
}

type royaltyRecord struct {
	Receiver common.Address
	Bps      uint64
}

func validateRoyalty(bps uint64) error {
	if bps > BpsDenominator {
		return ErrRoyaltyExceedsPrice
	}
	return nil
}

// royaltyAmount follows ERC-2981: salePrice * bps / 10000, rounded down.
func royaltyAmount(salePrice *big.Int, bps uint64) *big.Int {
	if salePrice == nil || bps == 0 {
		return big.NewInt(0)
	}
	amount := new(big.Int).Mul(salePrice, new(big.Int).SetUint64(bps))
	return amount.Quo(amount, big.NewInt(BpsDenominator))
}

func idKey(prefix []byte, collection common.Address, parts ...[]byte) []byte {
	size := len(prefix) + common.AddressLength
	for _, p := range parts {
		size += 1 + len(p)
	}
	buf := make([]byte, 0, size)
	buf = append(buf, prefix...)
	buf = append(buf, collection.Bytes()...)
	for _, p := range parts {
		buf = append(buf, '/')
		buf = append(buf, p...)
	}
	return buf
}

func tokenBytes(id *big.Int) []byte {
	if id == nil {
		return []byte{0}
	}
	return common.LeftPadBytes(id.Bytes(), 32)
}
