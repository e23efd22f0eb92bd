package rpc

import (
	"errors"
	"net/http"

	"nftmarket/core"
	"nftmarket/native/bank"
	"nftmarket/native/market"
	"nftmarket/native/nft"
)

// classify maps domain errors onto an HTTP status and JSON-RPC code.
func classify(err error) (int, int) {
	switch {
	case errors.Is(err, market.ErrNotFound),
		errors.Is(err, nft.ErrUnknownCollection),
		errors.Is(err, nft.ErrNonexistentToken):
		return http.StatusNotFound, codeNotFound
	case errors.Is(err, market.ErrUnauthorized),
		errors.Is(err, market.ErrNotOwner),
		errors.Is(err, nft.ErrUnauthorized),
		errors.Is(err, nft.ErrNotOwnerNorApproved),
		errors.Is(err, core.ErrFaucetDisabled):
		return http.StatusForbidden, codeForbidden
	case errors.Is(err, market.ErrClosed),
		errors.Is(err, market.ErrStaleOffering),
		errors.Is(err, market.ErrNoBalance):
		return http.StatusConflict, codeConflict
	case errors.Is(err, market.ErrInvalidAmount),
		errors.Is(err, market.ErrInsufficientPayment),
		errors.Is(err, market.ErrFeeTooHigh),
		errors.Is(err, market.ErrRoyaltyExceedsPrice),
		errors.Is(err, market.ErrInvalidPrice),
		errors.Is(err, market.ErrInvalidAddress),
		errors.Is(err, market.ErrUnknownAsset),
		errors.Is(err, bank.ErrInsufficientFunds),
		errors.Is(err, bank.ErrInvalidAmount),
		errors.Is(err, nft.ErrInvalidReceiver),
		errors.Is(err, nft.ErrInvalidAmount),
		errors.Is(err, nft.ErrInsufficientBalance),
		errors.Is(err, nft.ErrRoyaltyExceedsPrice),
		errors.Is(err, nft.ErrUnknownKind),
		errors.Is(err, nft.ErrInvalidMetadata):
		return http.StatusBadRequest, codeInvalidParams
	default:
		return http.StatusInternalServerError, codeServerError
	}
}

func (s *Server) writeDomainError(w http.ResponseWriter, id interface{}, err error) {
	status, code := classify(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("rpc call failed", "error", err)
	}
	writeError(w, status, id, code, err.Error(), nil)
}
