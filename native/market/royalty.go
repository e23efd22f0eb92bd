package market

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ResolveRoyalty probes asset for the optional RoyaltySource capability.
// Assets without it resolve to NoRoyalty. The rate is derived by quoting a
// sale of exactly BpsDenominator units, which makes the returned amount the
// rate in basis points.
func ResolveRoyalty(asset Asset, assetID *big.Int) (Royalty, error) {
	source, ok := asset.(RoyaltySource)
	if !ok {
		return NoRoyalty(), nil
	}
	beneficiary, amount, err := source.RoyaltyInfo(assetID, big.NewInt(BpsDenominator))
	if err != nil {
		return Royalty{}, fmt.Errorf("market: royalty lookup: %w", err)
	}
	if amount == nil || amount.Sign() <= 0 || beneficiary == (common.Address{}) {
		return NoRoyalty(), nil
	}
	if !amount.IsUint64() || amount.Uint64() > BpsDenominator {
		return Royalty{}, ErrRoyaltyExceedsPrice
	}
	return SomeRoyalty(beneficiary, amount.Uint64()), nil
}
