package market

import (
	"errors"
	"math/big"
	"math/rand"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

var creatorAddr = common.HexToAddress("0x00000000000000000000000000000000000000c7")

func expectSplit(t *testing.T, got Split, provider, operator, creator, seller int64) {
	t.Helper()
	want := []int64{provider, operator, creator, seller}
	cuts := []*big.Int{got.ProviderCut, got.OperatorCut, got.CreatorCut, got.SellerCut}
	names := []string{"provider", "operator", "creator", "seller"}
	for i := range want {
		if cuts[i].Cmp(big.NewInt(want[i])) != 0 {
			t.Fatalf("%s cut: expected %d, got %s", names[i], want[i], cuts[i])
		}
	}
}

func TestComputeSplitWithoutRoyalty(t *testing.T) {
	split, err := ComputeSplit(big.NewInt(1000), 500, 500, NoRoyalty())
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	expectSplit(t, split, 50, 47, 0, 903)
}

func TestComputeSplitWithRoyalty(t *testing.T) {
	split, err := ComputeSplit(big.NewInt(100_000), 500, 0, SomeRoyalty(creatorAddr, 1000))
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	expectSplit(t, split, 0, 5000, 9500, 85500)
}

func TestComputeSplitRoundsCreatorUp(t *testing.T) {
	// remainder 999 at 1% is 9.99, which rounds up to 10 for the creator.
	split, err := ComputeSplit(big.NewInt(999), 0, 0, SomeRoyalty(creatorAddr, 100))
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	expectSplit(t, split, 0, 0, 10, 989)
}

func TestComputeSplitSumsToPrice(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 2000; i++ {
		price := new(big.Int).Rand(rng, new(big.Int).Lsh(big.NewInt(1), uint(rng.Intn(200)+1)))
		operatorBps := uint64(rng.Intn(BpsDenominator + 1))
		providerBps := uint64(rng.Intn(DefaultProviderCeilingBps + 1))
		royalty := NoRoyalty()
		if rng.Intn(2) == 0 {
			royalty = SomeRoyalty(creatorAddr, uint64(rng.Intn(BpsDenominator+1)))
		}
		split, err := ComputeSplit(price, operatorBps, providerBps, royalty)
		if err != nil {
			t.Fatalf("split(%s): %v", price, err)
		}
		if split.Total().Cmp(price) != 0 {
			t.Fatalf("cuts %s do not sum to price %s", split.Total(), price)
		}
		for _, cut := range []*big.Int{split.ProviderCut, split.OperatorCut, split.CreatorCut, split.SellerCut} {
			if cut.Sign() < 0 {
				t.Fatalf("negative cut in split of %s", price)
			}
		}
	}
}

func TestComputeSplitRejectsInvalidInputs(t *testing.T) {
	if _, err := ComputeSplit(big.NewInt(-1), 0, 0, NoRoyalty()); !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("expected ErrInvalidPrice, got %v", err)
	}
	huge := new(big.Int).Lsh(big.NewInt(1), 256)
	if _, err := ComputeSplit(huge, 0, 0, NoRoyalty()); !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("expected ErrInvalidPrice for 2^256, got %v", err)
	}
	if _, err := ComputeSplit(big.NewInt(10), BpsDenominator+1, 0, NoRoyalty()); !errors.Is(err, ErrFeeTooHigh) {
		t.Fatalf("expected ErrFeeTooHigh, got %v", err)
	}
	if _, err := ComputeSplit(big.NewInt(10), 0, 0, SomeRoyalty(creatorAddr, BpsDenominator+1)); !errors.Is(err, ErrRoyaltyExceedsPrice) {
		t.Fatalf("expected ErrRoyaltyExceedsPrice, got %v", err)
	}
}

func TestTotalDueOverflow(t *testing.T) {
	max := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	if _, err := totalDue(max, big.NewInt(2)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected overflow to be rejected, got %v", err)
	}
	total, err := totalDue(big.NewInt(250), big.NewInt(4))
	if err != nil || total.Int64() != 1000 {
		t.Fatalf("unexpected total %v (%v)", total, err)
	}
}
