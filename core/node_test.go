package core

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"nftmarket/core/events"
	"nftmarket/native/market"
	"nftmarket/native/nft"
	"nftmarket/storage"
)

var (
	marketAddr = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	operator   = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	provider   = common.HexToAddress("0x00000000000000000000000000000000000000cc")
	seller     = common.HexToAddress("0x0000000000000000000000000000000000000011")
	buyer      = common.HexToAddress("0x0000000000000000000000000000000000000022")
	creator    = common.HexToAddress("0x0000000000000000000000000000000000000033")
)

func newTestNode(t *testing.T, devnet bool, sinks ...events.Emitter) *Node {
	t.Helper()
	cfg := market.DefaultConfig()
	cfg.Address = marketAddr
	cfg.Operator = operator
	cfg.Provider = provider
	cfg.OperatorFeeBps = 500
	cfg.ProviderFeeBps = 500
	node, err := NewNode(storage.NewMemDB(), cfg, sinks, WithDevnet(devnet))
	require.NoError(t, err)
	t.Cleanup(func() { _ = node.Close() })
	return node
}

func TestNodeSingleAssetSale(t *testing.T) {
	buf := &events.Buffer{}
	node := newTestNode(t, true, buf)

	collection, err := node.DeployCollection(seller, nft.KindSingle, "Genesis", "GEN")
	require.NoError(t, err)
	id, err := node.Mint(seller, collection, seller, creator, 1000, "ipfs://1", nil)
	require.NoError(t, err)
	require.NoError(t, node.SetApprovalForAll(seller, collection, marketAddr, true))

	asset, err := node.Asset(collection)
	require.NoError(t, err)
	offering, err := node.Market().PlaceOffering(seller, asset, id, big.NewInt(1000), common.Address{}, big.NewInt(1))
	require.NoError(t, err)

	require.NoError(t, node.Faucet(buyer, big.NewInt(5000)))
	require.NoError(t, node.Market().CloseOffering(buyer, offering, big.NewInt(1), big.NewInt(1000)))

	owner, err := node.OwnerOf(collection, id)
	require.NoError(t, err)
	require.Equal(t, buyer, owner)

	balance, err := node.Balance(creator)
	require.NoError(t, err)
	require.Equal(t, "91", balance.String())

	pending, err := node.Market().ViewBalance(seller)
	require.NoError(t, err)
	require.Equal(t, "812", pending.String())

	var closed bool
	for _, evt := range buf.Events() {
		if evt.EventType() == market.EventTypeOfferingClosed {
			closed = true
		}
	}
	require.True(t, closed)
}

func TestNodeMultiAssetBalance(t *testing.T) {
	node := newTestNode(t, false)

	collection, err := node.DeployCollection(seller, nft.KindMulti, "Editions", "ED")
	require.NoError(t, err)
	id, err := node.Mint(seller, collection, seller, common.Address{}, 0, "", big.NewInt(7))
	require.NoError(t, err)

	balance, err := node.BalanceOf(collection, seller, id)
	require.NoError(t, err)
	require.Equal(t, int64(7), balance.Int64())

	_, err = node.OwnerOf(collection, id)
	require.Error(t, err)

	collections, err := node.Collections()
	require.NoError(t, err)
	require.Len(t, collections, 1)
}

func TestNodeFaucetRequiresDevnet(t *testing.T) {
	node := newTestNode(t, false)
	err := node.Faucet(buyer, big.NewInt(1))
	require.True(t, errors.Is(err, ErrFaucetDisabled))
}
