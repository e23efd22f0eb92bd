package market

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"nftmarket/core/state"
	"nftmarket/storage"
)

type plainAsset struct{ addr common.Address }

func (p plainAsset) Address() common.Address { return p.addr }

func (p plainAsset) OwnerOf(*big.Int) (common.Address, error) { return sellerAddr, nil }

func (p plainAsset) TransferFrom(common.Address, common.Address, common.Address, *big.Int) error {
	return nil
}

type royaltyAsset struct {
	plainAsset
	receiver common.Address
	bps      int64
	err      error
}

func (r royaltyAsset) RoyaltyInfo(_ *big.Int, salePrice *big.Int) (common.Address, *big.Int, error) {
	if r.err != nil {
		return common.Address{}, nil, r.err
	}
	amount := new(big.Int).Mul(salePrice, big.NewInt(r.bps))
	return r.receiver, amount.Quo(amount, big.NewInt(BpsDenominator)), nil
}

func TestResolveRoyalty(t *testing.T) {
	id := big.NewInt(1)
	asset := plainAsset{addr: common.HexToAddress("0x01")}

	royalty, err := ResolveRoyalty(asset, id)
	if err != nil || royalty.IsSome() {
		t.Fatalf("asset without capability must resolve to none, got %+v (%v)", royalty, err)
	}

	royalty, err = ResolveRoyalty(royaltyAsset{plainAsset: asset, receiver: creatorAddr, bps: 250}, id)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !royalty.IsSome() || royalty.Bps() != 250 || royalty.Beneficiary() != creatorAddr {
		t.Fatalf("unexpected royalty %+v", royalty)
	}

	royalty, err = ResolveRoyalty(royaltyAsset{plainAsset: asset, bps: 250}, id)
	if err != nil || royalty.IsSome() {
		t.Fatalf("zero receiver must resolve to none, got %+v (%v)", royalty, err)
	}

	royalty, err = ResolveRoyalty(royaltyAsset{plainAsset: asset, receiver: creatorAddr}, id)
	if err != nil || royalty.IsSome() {
		t.Fatalf("zero rate must resolve to none, got %+v (%v)", royalty, err)
	}

	if _, err := ResolveRoyalty(royaltyAsset{plainAsset: asset, receiver: creatorAddr, bps: 10_001}, id); !errors.Is(err, ErrRoyaltyExceedsPrice) {
		t.Fatalf("expected ErrRoyaltyExceedsPrice, got %v", err)
	}

	lookupErr := errors.New("boom")
	if _, err := ResolveRoyalty(royaltyAsset{plainAsset: asset, receiver: creatorAddr, err: lookupErr}, id); !errors.Is(err, lookupErr) {
		t.Fatalf("expected wrapped lookup error, got %v", err)
	}
}

func TestStoreLifecycle(t *testing.T) {
	st := state.NewManager(storage.NewMemDB())
	store := NewStore(st, marketAddr)

	if _, err := store.Get(0); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for id 0, got %v", err)
	}
	offering := &Offering{
		AssetContract: common.HexToAddress("0x01"),
		Kind:          AssetSingle,
		AssetID:       big.NewInt(7),
		Amount:        big.NewInt(1),
		Seller:        sellerAddr,
		Price:         big.NewInt(100),
	}
	id, err := store.Create(offering)
	if err != nil || id != 1 {
		t.Fatalf("create: %d (%v)", id, err)
	}
	next, _ := store.Next()
	if next != 1 {
		t.Fatalf("expected counter 1, got %d", next)
	}

	split := Split{ProviderCut: big.NewInt(1), OperatorCut: big.NewInt(2), CreatorCut: big.NewInt(3), SellerCut: big.NewInt(194)}
	updated, err := store.Update(id, big.NewInt(200), split, creatorAddr, 5)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Price.Int64() != 200 || updated.Split().Total().Int64() != 200 || updated.Creator != creatorAddr {
		t.Fatalf("unexpected update %+v", updated)
	}

	if _, err := store.Close(id, 6); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := store.Close(id, 7); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if _, err := store.Update(id, big.NewInt(1), split, creatorAddr, 8); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed on update, got %v", err)
	}

	open, err := store.List(false)
	if err != nil || len(open) != 0 {
		t.Fatalf("closed offering listed as open: %d (%v)", len(open), err)
	}
	all, _ := store.List(true)
	if len(all) != 1 {
		t.Fatalf("expected closed offering in full listing, got %d", len(all))
	}

	if err := store.Tombstone(id); err != nil {
		t.Fatalf("tombstone: %v", err)
	}
	if _, err := store.Get(id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after tombstone, got %v", err)
	}
	raw, ok, err := store.View(id)
	if err != nil || !ok || !raw.Tombstoned() || !raw.Closed {
		t.Fatalf("unexpected raw record %+v ok=%v (%v)", raw, ok, err)
	}
}

func TestStoresAreNamespaced(t *testing.T) {
	st := state.NewManager(storage.NewMemDB())
	a := NewStore(st, marketAddr)
	b := NewStore(st, common.HexToAddress("0x00000000000000000000000000000000000000ef"))

	if err := a.Credit(sellerAddr, big.NewInt(10)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	other, err := b.Balance(sellerAddr)
	if err != nil || other.Sign() != 0 {
		t.Fatalf("balance leaked across markets: %v (%v)", other, err)
	}
	mine, _ := a.Balance(sellerAddr)
	if mine.Int64() != 10 {
		t.Fatalf("expected 10, got %s", mine)
	}
}
