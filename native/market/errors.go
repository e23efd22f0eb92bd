package market

import "errors"

var (
	// ErrUnauthorized is returned when the caller lacks the role required for
	// the action (seller, operator or provider).
	ErrUnauthorized = errors.New("market: caller is not authorized to perform this action")
	// ErrNotOwner is returned when the caller does not control the asset.
	ErrNotOwner = errors.New("market: only the token owner can perform this action")
	// ErrStaleOffering is returned at settlement when the seller no longer
	// controls the asset.
	ErrStaleOffering = errors.New("market: offer is no longer valid, token was transferred outside the marketplace")
	ErrClosed        = errors.New("market: offering is closed")
	ErrInvalidAmount = errors.New("market: invalid amount")
	// ErrInsufficientPayment is returned when the attached value does not
	// equal price * amount.
	ErrInsufficientPayment = errors.New("market: payment does not match the offering price")
	ErrFeeTooHigh          = errors.New("market: fee exceeds the configured ceiling")
	ErrRoyaltyExceedsPrice = errors.New("market: royalty fee will exceed sale price")
	ErrNoBalance           = errors.New("market: you don't have any balance to withdraw")
	ErrNotFound            = errors.New("market: offering not found")
	ErrInvalidPrice        = errors.New("market: invalid price")
	ErrInvalidAddress      = errors.New("market: invalid address")
	ErrUnknownAsset        = errors.New("market: asset does not expose a supported token interface")

	errNilState     = errors.New("market engine: state not configured")
	errNilLedger    = errors.New("market engine: ledger not configured")
	errNilDirectory = errors.New("market engine: asset directory not configured")
)
