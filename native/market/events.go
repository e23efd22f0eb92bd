package market

import (
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"nftmarket/core/types"
)

const (
	EventTypeOfferingPlaced    = "market.offering.placed"
	EventTypeOfferingUpdated   = "market.offering.updated"
	EventTypeOfferingClosed    = "market.offering.closed"
	EventTypeOfferingWithdrawn = "market.offering.withdrawn"
	EventTypeBalanceWithdrawn  = "market.balance.withdrawn"
	EventTypeFeeUpdated        = "market.fee.updated"
	EventTypeRoleChanged       = "market.role.changed"
)

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func offeringAttrs(market common.Address, o *Offering) map[string]string {
	attrs := map[string]string{
		"market":     market.Hex(),
		"offeringId": strconv.FormatUint(o.ID, 10),
	}
	if o.Tombstoned() {
		return attrs
	}
	attrs["assetContract"] = o.AssetContract.Hex()
	attrs["assetKind"] = o.Kind.String()
	attrs["assetId"] = amountString(o.AssetID)
	attrs["amount"] = amountString(o.Amount)
	attrs["seller"] = o.Seller.Hex()
	attrs["price"] = amountString(o.Price)
	attrs["operator"] = o.Operator.Hex()
	attrs["operatorAmount"] = amountString(o.OperatorCut)
	attrs["provider"] = o.Provider.Hex()
	attrs["providerAmount"] = amountString(o.ProviderCut)
	attrs["creator"] = o.Creator.Hex()
	attrs["creatorAmount"] = amountString(o.CreatorCut)
	attrs["sellerAmount"] = amountString(o.SellerCut)
	return attrs
}

// OfferingPlaced is emitted when a new offering is created.
type OfferingPlaced struct {
	Market   common.Address
	Offering *Offering
}

func (OfferingPlaced) EventType() string { return EventTypeOfferingPlaced }

func (e OfferingPlaced) Event() *types.Event {
	return &types.Event{Type: EventTypeOfferingPlaced, Attributes: offeringAttrs(e.Market, e.Offering)}
}

// OfferingUpdated is emitted after a price change and split recompute.
type OfferingUpdated struct {
	Market   common.Address
	Offering *Offering
	OldPrice *big.Int
}

func (OfferingUpdated) EventType() string { return EventTypeOfferingUpdated }

func (e OfferingUpdated) Event() *types.Event {
	attrs := offeringAttrs(e.Market, e.Offering)
	attrs["previousPrice"] = amountString(e.OldPrice)
	return &types.Event{Type: EventTypeOfferingUpdated, Attributes: attrs}
}

// OfferingClosed is emitted when a buyer settles an offering.
type OfferingClosed struct {
	Market     common.Address
	Offering   *Offering
	Buyer      common.Address
	Units      *big.Int
	Paid       *big.Int
	Settlement SettlementMode
}

func (OfferingClosed) EventType() string { return EventTypeOfferingClosed }

func (e OfferingClosed) Event() *types.Event {
	attrs := offeringAttrs(e.Market, e.Offering)
	// amount is the quantity bought; listed keeps the offered quantity.
	attrs["listed"] = attrs["amount"]
	attrs["amount"] = amountString(e.Units)
	attrs["buyer"] = e.Buyer.Hex()
	attrs["total"] = amountString(e.Paid)
	attrs["settlement"] = e.Settlement.String()
	return &types.Event{Type: EventTypeOfferingClosed, Attributes: attrs}
}

// OfferingWithdrawn is emitted when a seller cancels an open offering.
type OfferingWithdrawn struct {
	Market     common.Address
	OfferingID uint64
	Seller     common.Address
}

func (OfferingWithdrawn) EventType() string { return EventTypeOfferingWithdrawn }

func (e OfferingWithdrawn) Event() *types.Event {
	return &types.Event{Type: EventTypeOfferingWithdrawn, Attributes: map[string]string{
		"market":     e.Market.Hex(),
		"offeringId": strconv.FormatUint(e.OfferingID, 10),
		"seller":     e.Seller.Hex(),
	}}
}

// BalanceWithdrawn is emitted when a seller pulls escrowed proceeds.
type BalanceWithdrawn struct {
	Market  common.Address
	Account common.Address
	Amount  *big.Int
}

func (BalanceWithdrawn) EventType() string { return EventTypeBalanceWithdrawn }

func (e BalanceWithdrawn) Event() *types.Event {
	return &types.Event{Type: EventTypeBalanceWithdrawn, Attributes: map[string]string{
		"market":      e.Market.Hex(),
		"beneficiary": e.Account.Hex(),
		"amount":      amountString(e.Amount),
	}}
}

// FeeUpdated is emitted when the operator or provider changes its rate.
type FeeUpdated struct {
	Market common.Address
	Role   string
	OldBps uint64
	NewBps uint64
}

func (FeeUpdated) EventType() string { return EventTypeFeeUpdated }

func (e FeeUpdated) Event() *types.Event {
	return &types.Event{Type: EventTypeFeeUpdated, Attributes: map[string]string{
		"market":      e.Market.Hex(),
		"role":        e.Role,
		"bps":         strconv.FormatUint(e.NewBps, 10),
		"previousBps": strconv.FormatUint(e.OldBps, 10),
	}}
}

// RoleChanged is emitted when the operator or provider address is handed
// over.
type RoleChanged struct {
	Market   common.Address
	Role     string
	Previous common.Address
	Next     common.Address
}

func (RoleChanged) EventType() string { return EventTypeRoleChanged }

func (e RoleChanged) Event() *types.Event {
	return &types.Event{Type: EventTypeRoleChanged, Attributes: map[string]string{
		"market":   e.Market.Hex(),
		"role":     e.Role,
		"address":  e.Next.Hex(),
		"previous": e.Previous.Hex(),
	}}
}
