package nft

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"nftmarket/core/state"
	"nftmarket/storage"
)

var (
	deployer    = common.HexToAddress("0x00000000000000000000000000000000000000d1")
	builderA    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	builderB    = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	beneficiary = common.HexToAddress("0x00000000000000000000000000000000000000be")
	marketAddr  = common.HexToAddress("0x00000000000000000000000000000000000000ee")
)

func newTestRegistry(t *testing.T) (*Registry, *state.Manager) {
	t.Helper()
	st := state.NewManager(storage.NewMemDB())
	return NewRegistry(st), st
}

func deploySingle(t *testing.T, reg *Registry) *Collection {
	t.Helper()
	addr, err := reg.Deploy(deployer, KindSingle, "Dappify Tokens", "dpf")
	if err != nil {
		t.Fatalf("deploy: %v", err)
	}
	coll, err := reg.Collection(addr)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	return coll
}

func TestMintIncrementsFromOne(t *testing.T) {
	reg, _ := newTestRegistry(t)
	coll := deploySingle(t, reg)

	first, err := coll.Mint(deployer, builderA, beneficiary, 500, "ipfs://a")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	second, err := coll.Mint(deployer, builderA, beneficiary, 500, "ipfs://b")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if first.Uint64() != 1 || second.Uint64() != 2 {
		t.Fatalf("expected ids 1 and 2, got %s and %s", first, second)
	}
	uri, err := coll.TokenURI(second)
	if err != nil || uri != "ipfs://b" {
		t.Fatalf("unexpected uri %q (%v)", uri, err)
	}
}

func TestMintRoyaltyBounds(t *testing.T) {
	reg, _ := newTestRegistry(t)
	coll := deploySingle(t, reg)

	for _, bps := range []uint64{0, 10_000} {
		if _, err := coll.Mint(deployer, builderA, beneficiary, bps, ""); err != nil {
			t.Fatalf("bps %d should be accepted: %v", bps, err)
		}
	}
	if _, err := coll.Mint(deployer, builderA, beneficiary, 10_001, ""); !errors.Is(err, ErrRoyaltyExceedsPrice) {
		t.Fatalf("expected ErrRoyaltyExceedsPrice, got %v", err)
	}
	if _, err := coll.Mint(builderA, builderA, beneficiary, 0, ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for non-owner mint, got %v", err)
	}
}

func TestRoyaltyInfoUsesTokenThenDefault(t *testing.T) {
	reg, _ := newTestRegistry(t)
	coll := deploySingle(t, reg)

	withRoyalty, _ := coll.Mint(deployer, builderA, beneficiary, 1_000, "")
	without, _ := coll.Mint(deployer, builderA, common.Address{}, 0, "")

	receiver, amount, err := coll.RoyaltyInfo(withRoyalty, big.NewInt(100_000))
	if err != nil {
		t.Fatalf("royalty info: %v", err)
	}
	if receiver != beneficiary || amount.Int64() != 10_000 {
		t.Fatalf("unexpected royalty %s %s", receiver.Hex(), amount)
	}

	receiver, amount, _ = coll.RoyaltyInfo(without, big.NewInt(100_000))
	if receiver != (common.Address{}) || amount.Sign() != 0 {
		t.Fatalf("expected empty royalty, got %s %s", receiver.Hex(), amount)
	}

	if err := coll.SetDefaultRoyalty(deployer, builderB, 250); err != nil {
		t.Fatalf("set default: %v", err)
	}
	receiver, amount, _ = coll.RoyaltyInfo(without, big.NewInt(100_000))
	if receiver != builderB || amount.Int64() != 2_500 {
		t.Fatalf("expected default royalty, got %s %s", receiver.Hex(), amount)
	}
	if err := coll.SetDefaultRoyalty(builderA, builderB, 250); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := coll.SetDefaultRoyalty(deployer, builderB, 10_001); !errors.Is(err, ErrRoyaltyExceedsPrice) {
		t.Fatalf("expected ErrRoyaltyExceedsPrice, got %v", err)
	}
}

func TestTransferRequiresApproval(t *testing.T) {
	reg, _ := newTestRegistry(t)
	coll := deploySingle(t, reg)
	id, _ := coll.Mint(deployer, builderA, beneficiary, 0, "")

	if err := coll.TransferFrom(marketAddr, builderA, builderB, id); !errors.Is(err, ErrNotOwnerNorApproved) {
		t.Fatalf("expected unapproved transfer to fail, got %v", err)
	}
	if err := coll.Approve(builderA, marketAddr, id); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := coll.TransferFrom(marketAddr, builderA, builderB, id); err != nil {
		t.Fatalf("approved transfer: %v", err)
	}
	owner, _ := coll.OwnerOf(id)
	if owner != builderB {
		t.Fatalf("expected builderB to own token, got %s", owner.Hex())
	}
	approved, _ := coll.GetApproved(id)
	if approved != (common.Address{}) {
		t.Fatalf("approval must be cleared after transfer")
	}

	if err := coll.SetApprovalForAll(builderB, marketAddr, true); err != nil {
		t.Fatalf("set approval for all: %v", err)
	}
	if err := coll.TransferFrom(marketAddr, builderB, builderA, id); err != nil {
		t.Fatalf("operator transfer: %v", err)
	}
	if _, err := coll.OwnerOf(big.NewInt(99)); !errors.Is(err, ErrNonexistentToken) {
		t.Fatalf("expected ErrNonexistentToken, got %v", err)
	}
}

func TestMultiCollectionBalances(t *testing.T) {
	reg, _ := newTestRegistry(t)
	addr, err := reg.Deploy(deployer, KindMulti, "Editions", "ed")
	if err != nil {
		t.Fatalf("deploy: %v", err)
	}
	multi, err := reg.Multi(addr)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if _, err := reg.Collection(addr); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected kind mismatch, got %v", err)
	}

	id, err := multi.Mint(deployer, builderA, beneficiary, 300, "ipfs://ed", big.NewInt(10))
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := multi.Mint(deployer, builderA, beneficiary, 10_001, "", big.NewInt(1)); !errors.Is(err, ErrRoyaltyExceedsPrice) {
		t.Fatalf("expected ErrRoyaltyExceedsPrice, got %v", err)
	}

	if err := multi.SafeTransferFrom(marketAddr, builderA, builderB, id, big.NewInt(3)); !errors.Is(err, ErrNotOwnerNorApproved) {
		t.Fatalf("expected unapproved transfer to fail, got %v", err)
	}
	if err := multi.SetApprovalForAll(builderA, marketAddr, true); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := multi.SafeTransferFrom(marketAddr, builderA, builderB, id, big.NewInt(3)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if err := multi.SafeTransferFrom(marketAddr, builderA, builderB, id, big.NewInt(8)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	a, _ := multi.BalanceOf(builderA, id)
	b, _ := multi.BalanceOf(builderB, id)
	if a.Int64() != 7 || b.Int64() != 3 {
		t.Fatalf("unexpected balances a=%s b=%s", a, b)
	}
}

func TestMultiTransferRejectsBalanceOverflow(t *testing.T) {
	reg, st := newTestRegistry(t)
	addr, err := reg.Deploy(deployer, KindMulti, "Editions", "ed")
	if err != nil {
		t.Fatalf("deploy: %v", err)
	}
	multi, err := reg.Multi(addr)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	id, err := multi.Mint(deployer, builderA, common.Address{}, 0, "", big.NewInt(5))
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	maxUnits := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	if err := st.KVPut(multi.balanceKey(builderB, id), maxUnits); err != nil {
		t.Fatalf("seed balance: %v", err)
	}

	if err := multi.SafeTransferFrom(builderA, builderA, builderB, id, big.NewInt(1)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	a, _ := multi.BalanceOf(builderA, id)
	b, _ := multi.BalanceOf(builderB, id)
	if a.Int64() != 5 || b.Cmp(maxUnits) != 0 {
		t.Fatalf("balances changed on rejected transfer a=%s b=%s", a, b)
	}
}

func TestRegistryNormalisesMetadata(t *testing.T) {
	reg, _ := newTestRegistry(t)
	first, err := reg.Deploy(deployer, KindSingle, "  Ｆｕｌｌ Width ", "fw")
	if err != nil {
		t.Fatalf("deploy: %v", err)
	}
	second, err := reg.Deploy(deployer, KindSingle, "Other", "ot")
	if err != nil {
		t.Fatalf("deploy: %v", err)
	}
	if first == second {
		t.Fatalf("deployments must get distinct addresses")
	}
	list, err := reg.Collections()
	if err != nil {
		t.Fatalf("collections: %v", err)
	}
	if len(list) != 2 || list[0].Name != "Full Width" || list[0].Symbol != "FW" {
		t.Fatalf("unexpected collection list %+v", list)
	}
	if _, err := reg.Deploy(deployer, KindSingle, "   ", "x"); !errors.Is(err, ErrInvalidMetadata) {
		t.Fatalf("expected ErrInvalidMetadata, got %v", err)
	}
	if _, err := reg.Lookup(common.Address{0x42}); !errors.Is(err, ErrUnknownCollection) {
		t.Fatalf("expected ErrUnknownCollection, got %v", err)
	}
}
