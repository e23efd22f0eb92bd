package market

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

var (
	bpsDenominator = big.NewInt(BpsDenominator)
	bpsRoundUp     = big.NewInt(BpsDenominator - 1)
)

func mulBps(amount *big.Int, bps uint64) *big.Int {
	out := new(big.Int).Mul(amount, new(big.Int).SetUint64(bps))
	return out
}

func floorBps(amount *big.Int, bps uint64) *big.Int {
	out := mulBps(amount, bps)
	return out.Quo(out, bpsDenominator)
}

func ceilBps(amount *big.Int, bps uint64) *big.Int {
	out := mulBps(amount, bps)
	out.Add(out, bpsRoundUp)
	return out.Quo(out, bpsDenominator)
}

func validatePrice(price *big.Int) error {
	if price == nil || price.Sign() < 0 {
		return ErrInvalidPrice
	}
	if _, overflow := uint256.FromBig(price); overflow {
		return fmt.Errorf("%w: exceeds 256 bits", ErrInvalidPrice)
	}
	return nil
}

// ComputeSplit partitions price among provider, operator, creator and seller.
// The provider share is taken first and the operator share from what
// remains, both rounded down. The creator share is taken from the remainder
// and rounded up, and the seller keeps the rest, so the four cuts always add
// up to price exactly.
func ComputeSplit(price *big.Int, operatorBps, providerBps uint64, royalty Royalty) (Split, error) {
	if err := validatePrice(price); err != nil {
		return Split{}, err
	}
	if operatorBps > BpsDenominator || providerBps > BpsDenominator {
		return Split{}, ErrFeeTooHigh
	}
	if royalty.Bps() > BpsDenominator {
		return Split{}, ErrRoyaltyExceedsPrice
	}

	providerCut := floorBps(price, providerBps)
	remaining := new(big.Int).Sub(price, providerCut)
	operatorCut := floorBps(remaining, operatorBps)
	remaining.Sub(remaining, operatorCut)

	creatorCut := big.NewInt(0)
	if royalty.IsSome() {
		creatorCut = ceilBps(remaining, royalty.Bps())
	}
	sellerCut := remaining.Sub(remaining, creatorCut)

	return Split{
		ProviderCut: providerCut,
		OperatorCut: operatorCut,
		CreatorCut:  creatorCut,
		SellerCut:   sellerCut,
	}, nil
}

// totalDue returns price * amount, failing when the product leaves the
// 256-bit native value range.
func totalDue(price, amount *big.Int) (*big.Int, error) {
	p, overflow := uint256.FromBig(price)
	if overflow {
		return nil, ErrInvalidPrice
	}
	a, overflow := uint256.FromBig(amount)
	if overflow {
		return nil, ErrInvalidAmount
	}
	total, overflow := new(uint256.Int).MulOverflow(p, a)
	if overflow {
		return nil, fmt.Errorf("%w: price * amount overflows", ErrInvalidAmount)
	}
	return total.ToBig(), nil
}

// scale multiplies every cut by amount for multi-asset settlement.
func (s Split) scale(amount *big.Int) Split {
	mul := func(v *big.Int) *big.Int { return new(big.Int).Mul(cloneBigInt(v), amount) }
	return Split{
		ProviderCut: mul(s.ProviderCut),
		OperatorCut: mul(s.OperatorCut),
		CreatorCut:  mul(s.CreatorCut),
		SellerCut:   mul(s.SellerCut),
	}
}
