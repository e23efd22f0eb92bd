package rpc

import (
	"math/big"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"nftmarket/native/nft"
)

type deployCollectionParams struct {
	Kind   string `json:"kind"`
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
}

type mintParams struct {
	Collection      string `json:"collection"`
	To              string `json:"to,omitempty"`
	RoyaltyReceiver string `json:"royaltyReceiver,omitempty"`
	RoyaltyBps      uint64 `json:"royaltyBps,omitempty"`
	URI             string `json:"uri,omitempty"`
	Amount          string `json:"amount,omitempty"`
}

type approvalParams struct {
	Collection string `json:"collection"`
	Operator   string `json:"operator"`
	Approved   bool   `json:"approved"`
}

type tokenParams struct {
	Collection string `json:"collection"`
	TokenID    string `json:"tokenId"`
	Owner      string `json:"owner,omitempty"`
}

type faucetParams struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
}

// DeployCollectionResult is returned by nft_deployCollection.
type DeployCollectionResult struct {
	Address string `json:"address"`
}

// MintResult is returned by nft_mint.
type MintResult struct {
	TokenID string `json:"tokenId"`
}

// OwnerResult is returned by nft_ownerOf.
type OwnerResult struct {
	Owner string `json:"owner"`
}

func (s *Server) handleDeployCollection(w http.ResponseWriter, req *RPCRequest, caller common.Address) {
	var params deployCollectionParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	kind, err := nft.ParseKind(strings.ToLower(strings.TrimSpace(params.Kind)))
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "kind must be erc721 or erc1155", params.Kind)
		return
	}
	addr, err := s.node.DeployCollection(caller, kind, params.Name, params.Symbol)
	if err != nil {
		s.writeDomainError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, DeployCollectionResult{Address: addr.Hex()})
}

func (s *Server) handleMint(w http.ResponseWriter, req *RPCRequest, caller common.Address) {
	var params mintParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	collection, err := parseAddressField("collection", params.Collection)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	to, err := optionalAddress("to", params.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if to == (common.Address{}) {
		to = caller
	}
	receiver, err := optionalAddress("royaltyReceiver", params.RoyaltyReceiver)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	amount, err := parseAmount("amount", params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if amount == nil {
		amount = big.NewInt(1)
	}
	id, err := s.node.Mint(caller, collection, to, receiver, params.RoyaltyBps, params.URI, amount)
	if err != nil {
		s.writeDomainError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, MintResult{TokenID: id.String()})
}

func (s *Server) handleSetApprovalForAll(w http.ResponseWriter, req *RPCRequest, caller common.Address) {
	var params approvalParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	collection, err := parseAddressField("collection", params.Collection)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	operator, err := parseAddressField("operator", params.Operator)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.node.SetApprovalForAll(caller, collection, operator, params.Approved); err != nil {
		s.writeDomainError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, true)
}

func (s *Server) handleListCollections(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	collections, err := s.node.Collections()
	if err != nil {
		s.writeDomainError(w, req.ID, err)
		return
	}
	out := make([]CollectionResult, 0, len(collections))
	for _, meta := range collections {
		out = append(out, collectionResult(meta))
	}
	writeResult(w, req.ID, out)
}

func (s *Server) handleOwnerOf(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params tokenParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	collection, err := parseAddressField("collection", params.Collection)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	id, err := requireAmount("tokenId", params.TokenID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	owner, err := s.node.OwnerOf(collection, id)
	if err != nil {
		s.writeDomainError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, OwnerResult{Owner: owner.Hex()})
}

func (s *Server) handleTokenBalance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params tokenParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	collection, err := parseAddressField("collection", params.Collection)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	owner, err := parseAddressField("owner", params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	id, err := requireAmount("tokenId", params.TokenID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	balance, err := s.node.BalanceOf(collection, owner, id)
	if err != nil {
		s.writeDomainError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, BalanceResult{Address: owner.Hex(), Balance: amountString(balance)})
}

func (s *Server) handleBankBalance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
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
	balance, err := s.node.Balance(addr)
	if err != nil {
		s.writeDomainError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, BalanceResult{Address: addr.Hex(), Balance: amountString(balance)})
}

func (s *Server) handleFaucet(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params faucetParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	addr, err := parseAddressField("address", params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	amount, err := requireAmount("amount", params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.node.Faucet(addr, amount); err != nil {
		s.writeDomainError(w, req.ID, err)
		return
	}
	balance, err := s.node.Balance(addr)
	if err != nil {
		s.writeDomainError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, BalanceResult{Address: addr.Hex(), Balance: amountString(balance)})
}
