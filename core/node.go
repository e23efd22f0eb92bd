package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"nftmarket/core/events"
	"nftmarket/core/state"
	"nftmarket/native/bank"
	"nftmarket/native/market"
	"nftmarket/native/nft"
	"nftmarket/storage"
)

// ErrFaucetDisabled is returned by Faucet when the node was not started in
// devnet mode.
var ErrFaucetDisabled = errors.New("node: faucet disabled")

// Node is the central controller, wiring state, the native ledger, the
// collection registry and the marketplace engine together.
type Node struct {
	db       storage.Database
	state    *state.Manager
	ledger   *bank.Ledger
	registry *nft.Registry
	market   *market.Engine
	broker   *events.Broker
	logger   *slog.Logger
	devnet   bool
}

// NodeOption customises a Node during construction.
type NodeOption func(*Node)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) NodeOption {
	return func(n *Node) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// WithDevnet enables the faucet.
func WithDevnet(enabled bool) NodeOption {
	return func(n *Node) { n.devnet = enabled }
}

// NewNode opens the marketplace on db. Committed events are fanned out to the
// stream broker and to every extra sink.
func NewNode(db storage.Database, cfg market.Config, sinks []events.Emitter, opts ...NodeOption) (*Node, error) {
	if db == nil {
		return nil, fmt.Errorf("node: database required")
	}
	engine, err := market.NewEngine(cfg)
	if err != nil {
		return nil, err
	}
	n := &Node{
		db:     db,
		state:  state.NewManager(db),
		broker: events.NewBroker(),
		logger: slog.Default(),
		market: engine,
	}
	for _, opt := range opts {
		opt(n)
	}
	fanout := events.Multi{n.broker}
	for _, sink := range sinks {
		if sink != nil {
			fanout = append(fanout, sink)
		}
	}
	n.state.SetEmitter(fanout)
	n.ledger = bank.NewLedger(n.state)
	n.registry = nft.NewRegistry(n.state)

	engine.SetState(n.state)
	engine.SetLedger(n.ledger)
	engine.SetDirectory(market.DirectoryFunc(func(addr common.Address) (market.Asset, error) {
		return n.registry.Lookup(addr)
	}))
	engine.SetLogger(n.logger.With(slog.String("component", "market")))

	n.logger.Info("node ready",
		slog.String("market", cfg.Address.Hex()),
		slog.String("settlement", cfg.Settlement.String()),
		slog.Bool("devnet", n.devnet))
	return n, nil
}

// Market returns the marketplace engine.
func (n *Node) Market() *market.Engine { return n.market }

// Devnet reports whether devnet helpers are enabled.
func (n *Node) Devnet() bool { return n.devnet }

// Subscribe streams committed events starting after cursor.
func (n *Node) Subscribe(ctx context.Context, cursor string) (<-chan events.Record, func(), []events.Record, error) {
	return n.broker.Subscribe(ctx, cursor)
}

// Balance returns the native balance of addr.
func (n *Node) Balance(addr common.Address) (*big.Int, error) {
	var out *big.Int
	err := n.state.View(func() error {
		var err error
		out, err = n.ledger.Balance(addr)
		return err
	})
	return out, err
}

// Faucet credits amount to addr. Only available in devnet mode.
func (n *Node) Faucet(addr common.Address, amount *big.Int) error {
	if !n.devnet {
		return ErrFaucetDisabled
	}
	return n.state.Atomic(func() error { return n.ledger.Credit(addr, amount) })
}

// DeployCollection creates a collection owned by caller.
func (n *Node) DeployCollection(caller common.Address, kind nft.Kind, name, symbol string) (common.Address, error) {
	var addr common.Address
	err := n.state.Atomic(func() error {
		var err error
		addr, err = n.registry.Deploy(caller, kind, name, symbol)
		return err
	})
	if err == nil {
		n.logger.Info("collection deployed",
			slog.String("collection", addr.Hex()),
			slog.String("kind", kind.String()),
			slog.String("owner", caller.Hex()))
	}
	return addr, err
}

// Collections lists every deployed collection.
func (n *Node) Collections() ([]nft.Metadata, error) {
	var out []nft.Metadata
	err := n.state.View(func() error {
		var err error
		out, err = n.registry.Collections()
		return err
	})
	return out, err
}

// Asset resolves a collection address to a marketplace asset handle.
func (n *Node) Asset(addr common.Address) (market.Asset, error) {
	var asset market.Asset
	err := n.state.View(func() error {
		token, err := n.registry.Lookup(addr)
		if err != nil {
			return err
		}
		asset = token
		return nil
	})
	return asset, err
}

// Mint issues a token from collection. amount is ignored for single
// collections.
func (n *Node) Mint(caller, collection, to, beneficiary common.Address, royaltyBps uint64, uri string, amount *big.Int) (*big.Int, error) {
	var id *big.Int
	err := n.state.Atomic(func() error {
		token, err := n.registry.Lookup(collection)
		if err != nil {
			return err
		}
		switch c := token.(type) {
		case *nft.Collection:
			id, err = c.Mint(caller, to, beneficiary, royaltyBps, uri)
		case *nft.MultiCollection:
			id, err = c.Mint(caller, to, beneficiary, royaltyBps, uri, amount)
		default:
			err = nft.ErrUnknownKind
		}
		return err
	})
	return id, err
}

// SetApprovalForAll grants or revokes operator rights on collection.
func (n *Node) SetApprovalForAll(caller, collection, operator common.Address, approved bool) error {
	return n.state.Atomic(func() error {
		token, err := n.registry.Lookup(collection)
		if err != nil {
			return err
		}
		approver, ok := token.(interface {
			SetApprovalForAll(caller, operator common.Address, approved bool) error
		})
		if !ok {
			return nft.ErrUnknownKind
		}
		return approver.SetApprovalForAll(caller, operator, approved)
	})
}

// OwnerOf reports the holder of a single-asset token.
func (n *Node) OwnerOf(collection common.Address, id *big.Int) (common.Address, error) {
	var owner common.Address
	err := n.state.View(func() error {
		c, err := n.registry.Collection(collection)
		if err != nil {
			return err
		}
		owner, err = c.OwnerOf(id)
		return err
	})
	return owner, err
}

// BalanceOf reports how many units of a multi-asset token holder owns.
func (n *Node) BalanceOf(collection, holder common.Address, id *big.Int) (*big.Int, error) {
	var balance *big.Int
	err := n.state.View(func() error {
		c, err := n.registry.Multi(collection)
		if err != nil {
			return err
		}
		balance, err = c.BalanceOf(holder, id)
		return err
	})
	return balance, err
}

// Close releases the underlying database.
func (n *Node) Close() error {
	if n == nil || n.db == nil {
		return nil
	}
	return n.db.Close()
}
