package market

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// BpsDenominator is the basis-point scale: 10000 = 100%.
const BpsDenominator = 10_000

// AssetKind records which token interface an offering was placed against.
type AssetKind uint8

const (
	AssetSingle AssetKind = iota + 1
	AssetMulti
)

func (k AssetKind) String() string {
	switch k {
	case AssetSingle:
		return "single"
	case AssetMulti:
		return "multi"
	default:
		return "unknown"
	}
}

// Offering is a fixed-price listing. Once Closed the record only changes by
// being tombstoned.
type Offering struct {
	ID            uint64
	AssetContract common.Address
	Kind          AssetKind
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

// Tombstoned reports whether the offering was withdrawn and reset.
func (o *Offering) Tombstoned() bool {
	return o != nil && o.AssetContract == (common.Address{})
}

// Split returns the stored proceeds breakdown.
func (o *Offering) Split() Split {
	return Split{
		ProviderCut: cloneBigInt(o.ProviderCut),
		OperatorCut: cloneBigInt(o.OperatorCut),
		CreatorCut:  cloneBigInt(o.CreatorCut),
		SellerCut:   cloneBigInt(o.SellerCut),
	}
}

// Clone returns a deep copy of the offering.
func (o *Offering) Clone() *Offering {
	if o == nil {
		return nil
	}
	clone := *o
	clone.AssetID = cloneBigInt(o.AssetID)
	clone.Amount = cloneBigInt(o.Amount)
	clone.Price = cloneBigInt(o.Price)
	clone.OperatorCut = cloneBigInt(o.OperatorCut)
	clone.ProviderCut = cloneBigInt(o.ProviderCut)
	clone.CreatorCut = cloneBigInt(o.CreatorCut)
	clone.SellerCut = cloneBigInt(o.SellerCut)
	return &clone
}

func (o *Offering) applySplit(price *big.Int, split Split) {
	o.Price = cloneBigInt(price)
	o.ProviderCut = cloneBigInt(split.ProviderCut)
	o.OperatorCut = cloneBigInt(split.OperatorCut)
	o.CreatorCut = cloneBigInt(split.CreatorCut)
	o.SellerCut = cloneBigInt(split.SellerCut)
}

// Royalty is the resolved creator royalty of an asset: either None or Some
// beneficiary with a rate in basis points.
type Royalty struct {
	beneficiary common.Address
	bps         uint64
	some        bool
}

// NoRoyalty is the zero-royalty case.
func NoRoyalty() Royalty { return Royalty{} }

// SomeRoyalty builds a royalty paying bps to beneficiary.
func SomeRoyalty(beneficiary common.Address, bps uint64) Royalty {
	return Royalty{beneficiary: beneficiary, bps: bps, some: true}
}

// IsSome reports whether a creator royalty applies.
func (r Royalty) IsSome() bool { return r.some }

// Beneficiary returns the creator address, or the zero address for None.
func (r Royalty) Beneficiary() common.Address { return r.beneficiary }

// Bps returns the royalty rate, or zero for None.
func (r Royalty) Bps() uint64 {
	if !r.some {
		return 0
	}
	return r.bps
}

// Split is a price partitioned among the four stakeholders.
type Split struct {
	ProviderCut *big.Int
	OperatorCut *big.Int
	CreatorCut  *big.Int
	SellerCut   *big.Int
}

// Total returns the sum of every cut.
func (s Split) Total() *big.Int {
	total := new(big.Int)
	for _, cut := range []*big.Int{s.ProviderCut, s.OperatorCut, s.CreatorCut, s.SellerCut} {
		if cut != nil {
			total.Add(total, cut)
		}
	}
	return total
}

// Quote is the full listing computation shared by placement and preview.
type Quote struct {
	Kind     AssetKind
	Amount   *big.Int
	Fees     FeeSchedule
	Royalty  Royalty
	Split    Split
	Operator common.Address
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
