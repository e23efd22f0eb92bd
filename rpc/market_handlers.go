package rpc

import (
	"encoding/json"
	"math/big"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"nftmarket/indexer"
)

type placeOfferingParams struct {
	Collection string `json:"collection"`
	TokenID    string `json:"tokenId"`
	Price      string `json:"price"`
	Operator   string `json:"operator,omitempty"`
	Amount     string `json:"amount,omitempty"`
}

type updateOfferingParams struct {
	ID    json.RawMessage `json:"id"`
	Price string          `json:"price"`
}

type closeOfferingParams struct {
	ID      json.RawMessage `json:"id"`
	Amount  string          `json:"amount,omitempty"`
	Payment string          `json:"payment"`
}

type offeringIDParams struct {
	ID json.RawMessage `json:"id"`
}

type listOfferingsParams struct {
	IncludeClosed bool `json:"includeClosed"`
}

type addressParams struct {
	Address string `json:"address"`
}

type feeParams struct {
	Bps uint64 `json:"bps"`
}

type queryEventsParams struct {
	Type       string `json:"type,omitempty"`
	OfferingID uint64 `json:"offeringId,omitempty"`
	AfterID    int64  `json:"afterId,omitempty"`
	Limit      int    `json:"limit,omitempty"`
}

// PlaceOfferingResult is returned by market_placeOffering.
type PlaceOfferingResult struct {
	ID uint64 `json:"id"`
}

// WithdrawBalanceResult is returned by market_withdrawBalance.
type WithdrawBalanceResult struct {
	Amount string `json:"amount"`
}

// BalanceResult reports a native or escrowed balance.
type BalanceResult struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

func (s *Server) handleAuthenticated(w http.ResponseWriter, _ *http.Request, req *RPCRequest, caller common.Address) {
	switch req.Method {
	case "market_placeOffering":
		s.handlePlaceOffering(w, req, caller, false)
	case "market_previewOffering":
		s.handlePlaceOffering(w, req, caller, true)
	case "market_updateOffering":
		s.handleUpdateOffering(w, req, caller)
	case "market_closeOffering":
		s.handleCloseOffering(w, req, caller)
	case "market_withdrawOffering":
		s.handleWithdrawOffering(w, req, caller)
	case "market_withdrawBalance":
		s.handleWithdrawBalance(w, req, caller)
	case "market_setOperatorFee", "market_setProviderFee":
		s.handleSetFee(w, req, caller)
	case "market_changeOperator", "market_changeProvider":
		s.handleChangeRole(w, req, caller)
	case "nft_deployCollection":
		s.handleDeployCollection(w, req, caller)
	case "nft_mint":
		s.handleMint(w, req, caller)
	case "nft_setApprovalForAll":
		s.handleSetApprovalForAll(w, req, caller)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "unknown method: "+req.Method, nil)
	}
}

func (s *Server) handlePlaceOffering(w http.ResponseWriter, req *RPCRequest, caller common.Address, preview bool) {
	var params placeOfferingParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	collection, err := parseAddressField("collection", params.Collection)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	tokenID, err := requireAmount("tokenId", params.TokenID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	price, err := requireAmount("price", params.Price)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	operator, err := optionalAddress("operator", params.Operator)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	amount, err := parseAmount("amount", params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	asset, err := s.node.Asset(collection)
	if err != nil {
		s.writeDomainError(w, req.ID, err)
		return
	}
	if amount == nil {
		amount = big.NewInt(1)
	}

	engine := s.node.Market()
	if preview {
		split, err := engine.PreviewPlaceOffering(caller, asset, tokenID, price, operator, amount)
		if err != nil {
			s.writeDomainError(w, req.ID, err)
			return
		}
		writeResult(w, req.ID, splitResult(split))
		return
	}
	id, err := engine.PlaceOffering(caller, asset, tokenID, price, operator, amount)
	if err != nil {
		s.writeDomainError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, PlaceOfferingResult{ID: id})
}

func (s *Server) handleUpdateOffering(w http.ResponseWriter, req *RPCRequest, caller common.Address) {
	var params updateOfferingParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	id, err := parseOfferingID(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	price, err := requireAmount("price", params.Price)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	engine := s.node.Market()
	if err := engine.UpdateOffering(caller, id, price); err != nil {
		s.writeDomainError(w, req.ID, err)
		return
	}
	offering, err := engine.Offering(id)
	if err != nil {
		s.writeDomainError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, offeringResult(offering))
}

func (s *Server) handleCloseOffering(w http.ResponseWriter, req *RPCRequest, caller common.Address) {
	var params closeOfferingParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	id, err := parseOfferingID(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	payment, err := requireAmount("payment", params.Payment)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	amount, err := parseAmount("amount", params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	engine := s.node.Market()
	if amount == nil {
		offering, err := engine.Offering(id)
		if err != nil {
			s.writeDomainError(w, req.ID, err)
			return
		}
		amount = new(big.Int).Set(offering.Amount)
	}
	if err := engine.CloseOffering(caller, id, amount, payment); err != nil {
		s.writeDomainError(w, req.ID, err)
		return
	}
	offering, err := engine.ViewOffering(id)
	if err != nil {
		s.writeDomainError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, offeringResult(offering))
}

func (s *Server) handleWithdrawOffering(w http.ResponseWriter, req *RPCRequest, caller common.Address) {
	var params offeringIDParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	id, err := parseOfferingID(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.node.Market().WithdrawOffering(caller, id); err != nil {
		s.writeDomainError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, true)
}

func (s *Server) handleWithdrawBalance(w http.ResponseWriter, req *RPCRequest, caller common.Address) {
	amount, err := s.node.Market().WithdrawBalance(caller)
	if err != nil {
		s.writeDomainError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, WithdrawBalanceResult{Amount: amountString(amount)})
}

func (s *Server) handleSetFee(w http.ResponseWriter, req *RPCRequest, caller common.Address) {
	var params feeParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	engine := s.node.Market()
	var err error
	if req.Method == "market_setOperatorFee" {
		err = engine.SetOperatorFee(caller, params.Bps)
	} else {
		err = engine.SetProviderFee(caller, params.Bps)
	}
	if err != nil {
		s.writeDomainError(w, req.ID, err)
		return
	}
	s.writeFees(w, req)
}

func (s *Server) handleChangeRole(w http.ResponseWriter, req *RPCRequest, caller common.Address) {
	var params addressParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	next, err := parseAddressField("address", params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	engine := s.node.Market()
	if req.Method == "market_changeOperator" {
		err = engine.ChangeOperator(caller, next)
	} else {
		err = engine.ChangeProvider(caller, next)
	}
	if err != nil {
		s.writeDomainError(w, req.ID, err)
		return
	}
	s.writeFees(w, req)
}

func (s *Server) writeFees(w http.ResponseWriter, req *RPCRequest) {
	engine := s.node.Market()
	fees, err := engine.Fees()
	if err != nil {
		s.writeDomainError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, feesResult(fees, engine.Settlement()))
}

func (s *Server) handleGetFees(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	s.writeFees(w, req)
}

func (s *Server) handleGetOffering(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params offeringIDParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	id, err := parseOfferingID(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	offering, err := s.node.Market().Offering(id)
	if err != nil {
		s.writeDomainError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, offeringResult(offering))
}

func (s *Server) handleViewOffering(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params offeringIDParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	id, err := parseOfferingID(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	offering, err := s.node.Market().ViewOffering(id)
	if err != nil {
		s.writeDomainError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, offeringResult(offering))
}

func (s *Server) handleListOfferings(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params listOfferingsParams
	if len(req.Params) > 0 {
		if err := decodeParams(req, &params); err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
			return
		}
	}
	offerings, err := s.node.Market().Offerings(params.IncludeClosed)
	if err != nil {
		s.writeDomainError(w, req.ID, err)
		return
	}
	out := make([]OfferingResult, 0, len(offerings))
	for _, o := range offerings {
		out = append(out, offeringResult(o))
	}
	writeResult(w, req.ID, out)
}

func (s *Server) handleMarketBalance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params addressParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	addr, err := parseAddressField("address", params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	balance, err := s.node.Market().ViewBalance(addr)
	if err != nil {
		s.writeDomainError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, BalanceResult{Address: addr.Hex(), Balance: amountString(balance)})
}

func (s *Server) handleQueryEvents(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if s.cfg.Index == nil {
		writeError(w, http.StatusServiceUnavailable, req.ID, codeServerError, "event index not configured", nil)
		return
	}
	var params queryEventsParams
	if len(req.Params) > 0 {
		if err := decodeParams(req, &params); err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
			return
		}
	}
	entries, err := s.cfg.Index.Query(r.Context(), indexer.Filter{
		Type:       strings.TrimSpace(params.Type),
		Market:     s.node.Market().Address().Hex(),
		OfferingID: params.OfferingID,
		AfterID:    params.AfterID,
		Limit:      params.Limit,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to query events", err.Error())
		return
	}
	if entries == nil {
		entries = []indexer.Entry{}
	}
	writeResult(w, req.ID, entries)
}
