package market

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// SettlementMode selects how seller proceeds are delivered at close.
type SettlementMode uint8

const (
	// SettlementEscrow credits proceeds to an internal balance that the
	// seller pulls with WithdrawBalance.
	SettlementEscrow SettlementMode = iota
	// SettlementDirect pays the seller during close.
	SettlementDirect
)

func (m SettlementMode) String() string {
	switch m {
	case SettlementDirect:
		return "direct"
	default:
		return "escrow"
	}
}

// ParseSettlementMode accepts "escrow" or "direct". The empty string selects
// escrow.
func ParseSettlementMode(raw string) (SettlementMode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "escrow":
		return SettlementEscrow, nil
	case "direct":
		return SettlementDirect, nil
	default:
		return 0, fmt.Errorf("market: unknown settlement mode %q", raw)
	}
}

// Config describes one marketplace instance. Address is the account that
// receives payments and acts as spender on asset transfers.
type Config struct {
	Address            common.Address
	Operator           common.Address
	Provider           common.Address
	OperatorFeeBps     uint64
	ProviderFeeBps     uint64
	OperatorCeilingBps uint64
	ProviderCeilingBps uint64
	Settlement         SettlementMode
}

// DefaultConfig returns a configuration with zero fees, the standard
// ceilings and escrow settlement. Addresses must still be filled in.
func DefaultConfig() Config {
	return Config{
		OperatorCeilingBps: BpsDenominator,
		ProviderCeilingBps: DefaultProviderCeilingBps,
		Settlement:         SettlementEscrow,
	}
}

// Validate ensures the configuration describes a usable marketplace.
func (c Config) Validate() error {
	if c.Address == (common.Address{}) {
		return fmt.Errorf("%w: marketplace address must be set", ErrInvalidAddress)
	}
	if c.Operator == c.Address || c.Provider == c.Address {
		return fmt.Errorf("%w: operator and provider must differ from the marketplace account", ErrInvalidAddress)
	}
	if c.Settlement != SettlementEscrow && c.Settlement != SettlementDirect {
		return fmt.Errorf("market: unknown settlement mode %d", c.Settlement)
	}
	return c.feeSchedule().Validate()
}

func (c Config) feeSchedule() FeeSchedule {
	return FeeSchedule{
		Operator:           c.Operator,
		Provider:           c.Provider,
		OperatorFeeBps:     c.OperatorFeeBps,
		ProviderFeeBps:     c.ProviderFeeBps,
		OperatorCeilingBps: c.OperatorCeilingBps,
		ProviderCeilingBps: c.ProviderCeilingBps,
	}
}
