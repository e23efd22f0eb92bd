package nft

import (
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"nftmarket/core/types"
)

const (
	EventTypeTransfer = "nft.transfer"
	EventTypeApproval = "nft.approval"
	EventTypeDeployed = "nft.collection.deployed"
)

type transferEvent struct {
	collection common.Address
	operator   common.Address
	from       common.Address
	to         common.Address
	id         *big.Int
	amount     *big.Int
}

func (transferEvent) EventType() string { return EventTypeTransfer }

func (e transferEvent) Event() *types.Event {
	return &types.Event{Type: EventTypeTransfer, Attributes: map[string]string{
		"collection": e.collection.Hex(),
		"operator":   e.operator.Hex(),
		"from":       e.from.Hex(),
		"to":         e.to.Hex(),
		"tokenId":    e.id.String(),
		"amount":     e.amount.String(),
	}}
}

type approvalEvent struct {
	collection common.Address
	owner      common.Address
	operator   common.Address
	tokenID    *big.Int
	approved   bool
}

func (approvalEvent) EventType() string { return EventTypeApproval }

func (e approvalEvent) Event() *types.Event {
	attrs := map[string]string{
		"collection": e.collection.Hex(),
		"owner":      e.owner.Hex(),
		"operator":   e.operator.Hex(),
		"approved":   strconv.FormatBool(e.approved),
	}
	if e.tokenID != nil {
		attrs["tokenId"] = e.tokenID.String()
	}
	return &types.Event{Type: EventTypeApproval, Attributes: attrs}
}

type deployedEvent struct {
	meta Metadata
}

func (deployedEvent) EventType() string { return EventTypeDeployed }

func (e deployedEvent) Event() *types.Event {
	return &types.Event{Type: EventTypeDeployed, Attributes: map[string]string{
		"collection": e.meta.Address.Hex(),
		"kind":       e.meta.Kind.String(),
		"name":       e.meta.Name,
		"symbol":     e.meta.Symbol,
		"owner":      e.meta.Owner.Hex(),
	}}
}
