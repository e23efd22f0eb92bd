package rpc

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"nftmarket/crypto"
	"nftmarket/native/market"
	"nftmarket/native/nft"
)

// OfferingResult is the wire form of a stored offering. Amounts are decimal
// strings so clients never lose precision.
type OfferingResult struct {
	ID             uint64 `json:"id"`
	AssetContract  string `json:"assetContract"`
	AssetKind      string `json:"assetKind"`
	AssetID        string `json:"assetId"`
	Amount         string `json:"amount"`
	Seller         string `json:"seller"`
	Price          string `json:"price"`
	Operator       string `json:"operator"`
	OperatorAmount string `json:"operatorAmount"`
	Provider       string `json:"provider"`
	ProviderAmount string `json:"providerAmount"`
	Creator        string `json:"creator"`
	CreatorAmount  string `json:"creatorAmount"`
	SellerAmount   string `json:"sellerAmount"`
	Closed         bool   `json:"closed"`
	CreatedAt      uint64 `json:"createdAt"`
	UpdatedAt      uint64 `json:"updatedAt"`
}

// SplitResult is the wire form of a proceeds breakdown.
type SplitResult struct {
	ProviderAmount string `json:"providerAmount"`
	OperatorAmount string `json:"operatorAmount"`
	CreatorAmount  string `json:"creatorAmount"`
	SellerAmount   string `json:"sellerAmount"`
}

// FeesResult mirrors the fee registry.
type FeesResult struct {
	Operator           string `json:"operator"`
	Provider           string `json:"provider"`
	OperatorFeeBps     uint64 `json:"operatorFeeBps"`
	ProviderFeeBps     uint64 `json:"providerFeeBps"`
	OperatorCeilingBps uint64 `json:"operatorCeilingBps"`
	ProviderCeilingBps uint64 `json:"providerCeilingBps"`
	Settlement         string `json:"settlement"`
}

// CollectionResult describes a deployed collection.
type CollectionResult struct {
	Address string `json:"address"`
	Kind    string `json:"kind"`
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
	Owner   string `json:"owner"`
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func offeringResult(o *market.Offering) OfferingResult {
	return OfferingResult{
		ID:             o.ID,
		AssetContract:  o.AssetContract.Hex(),
		AssetKind:      o.Kind.String(),
		AssetID:        amountString(o.AssetID),
		Amount:         amountString(o.Amount),
		Seller:         o.Seller.Hex(),
		Price:          amountString(o.Price),
		Operator:       o.Operator.Hex(),
		OperatorAmount: amountString(o.OperatorCut),
		Provider:       o.Provider.Hex(),
		ProviderAmount: amountString(o.ProviderCut),
		Creator:        o.Creator.Hex(),
		CreatorAmount:  amountString(o.CreatorCut),
		SellerAmount:   amountString(o.SellerCut),
		Closed:         o.Closed,
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}
}

func splitResult(s market.Split) SplitResult {
	return SplitResult{
		ProviderAmount: amountString(s.ProviderCut),
		OperatorAmount: amountString(s.OperatorCut),
		CreatorAmount:  amountString(s.CreatorCut),
		SellerAmount:   amountString(s.SellerCut),
	}
}

func feesResult(f market.FeeSchedule, mode market.SettlementMode) FeesResult {
	return FeesResult{
		Operator:           f.Operator.Hex(),
		Provider:           f.Provider.Hex(),
		OperatorFeeBps:     f.OperatorFeeBps,
		ProviderFeeBps:     f.ProviderFeeBps,
		OperatorCeilingBps: f.OperatorCeilingBps,
		ProviderCeilingBps: f.ProviderCeilingBps,
		Settlement:         mode.String(),
	}
}

func collectionResult(m nft.Metadata) CollectionResult {
	return CollectionResult{
		Address: m.Address.Hex(),
		Kind:    m.Kind.String(),
		Name:    m.Name,
		Symbol:  m.Symbol,
		Owner:   m.Owner.Hex(),
	}
}

// decodeParams unmarshals the single positional parameter object.
func decodeParams(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("parameter object required")
	}
	dec := json.NewDecoder(strings.NewReader(string(req.Params[0])))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("invalid parameter object: %w", err)
	}
	return nil
}

// parseAmount accepts decimal or 0x-prefixed hex integers. An empty string
// yields nil so callers can apply defaults.
func parseAmount(field, raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}
	value, ok := new(big.Int).SetString(trimmed, 0)
	if !ok {
		return nil, fmt.Errorf("%s must be an integer", field)
	}
	if value.Sign() < 0 {
		return nil, fmt.Errorf("%s must not be negative", field)
	}
	return value, nil
}

func requireAmount(field, raw string) (*big.Int, error) {
	value, err := parseAmount(field, raw)
	if err != nil {
		return nil, err
	}
	if value == nil {
		return nil, fmt.Errorf("%s required", field)
	}
	return value, nil
}

func parseAddressField(field, raw string) (common.Address, error) {
	addr, err := crypto.ParseAddress(raw)
	if err != nil {
		return common.Address{}, fmt.Errorf("%s: %w", field, err)
	}
	return addr, nil
}

// optionalAddress returns the zero address for an empty field.
func optionalAddress(field, raw string) (common.Address, error) {
	if strings.TrimSpace(raw) == "" {
		return common.Address{}, nil
	}
	return parseAddressField(field, raw)
}

// parseOfferingID accepts a JSON number or a decimal string.
func parseOfferingID(raw json.RawMessage) (uint64, error) {
	trimmed := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if trimmed == "" {
		return 0, fmt.Errorf("id required")
	}
	id, err := strconv.ParseUint(trimmed, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("id must be an unsigned integer")
	}
	return id, nil
}
