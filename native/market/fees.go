package market

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// DefaultProviderCeilingBps caps the provider fee at 5%.
const DefaultProviderCeilingBps = 500

// FeeSchedule holds the two stakeholder roles, their fee rates and the
// ceilings the rates are validated against.
type FeeSchedule struct {
	Operator           common.Address
	Provider           common.Address
	OperatorFeeBps     uint64
	ProviderFeeBps     uint64
	OperatorCeilingBps uint64
	ProviderCeilingBps uint64
}

// Validate checks the schedule's internal consistency.
func (f FeeSchedule) Validate() error {
	if f.Operator == (common.Address{}) || f.Provider == (common.Address{}) {
		return fmt.Errorf("%w: operator and provider must be set", ErrInvalidAddress)
	}
	if f.OperatorCeilingBps > BpsDenominator || f.ProviderCeilingBps > BpsDenominator {
		return fmt.Errorf("%w: ceilings must not exceed %d bps", ErrFeeTooHigh, BpsDenominator)
	}
	if f.OperatorFeeBps > f.OperatorCeilingBps {
		return fmt.Errorf("%w: operator fee %d above ceiling %d", ErrFeeTooHigh, f.OperatorFeeBps, f.OperatorCeilingBps)
	}
	if f.ProviderFeeBps > f.ProviderCeilingBps {
		return fmt.Errorf("%w: provider fee %d above ceiling %d", ErrFeeTooHigh, f.ProviderFeeBps, f.ProviderCeilingBps)
	}
	return nil
}

// feeRegistry persists the fee schedule of one marketplace instance. Until
// the first change is written it serves the seed schedule from config.
type feeRegistry struct {
	state storeState
	key   []byte
	seed  FeeSchedule
}

func newFeeRegistry(state storeState, ns []byte, seed FeeSchedule) *feeRegistry {
	return &feeRegistry{state: state, key: nsKey(ns, "fees"), seed: seed}
}

func (r *feeRegistry) load() (FeeSchedule, error) {
	var schedule FeeSchedule
	ok, err := r.state.KVGet(r.key, &schedule)
	if err != nil {
		return FeeSchedule{}, fmt.Errorf("market: load fees: %w", err)
	}
	if !ok {
		return r.seed, nil
	}
	return schedule, nil
}

func (r *feeRegistry) store(schedule FeeSchedule) error {
	return r.state.KVPut(r.key, &schedule)
}

func (r *feeRegistry) setOperatorFee(caller common.Address, bps uint64) (FeeSchedule, error) {
	schedule, err := r.load()
	if err != nil {
		return FeeSchedule{}, err
	}
	if caller != schedule.Operator {
		return FeeSchedule{}, fmt.Errorf("%w: only the operator can perform this action", ErrUnauthorized)
	}
	if bps > schedule.OperatorCeilingBps {
		return FeeSchedule{}, fmt.Errorf("%w: operator fee cannot exceed %d bps", ErrFeeTooHigh, schedule.OperatorCeilingBps)
	}
	schedule.OperatorFeeBps = bps
	return schedule, r.store(schedule)
}

func (r *feeRegistry) setProviderFee(caller common.Address, bps uint64) (FeeSchedule, error) {
	schedule, err := r.load()
	if err != nil {
		return FeeSchedule{}, err
	}
	if caller != schedule.Provider {
		return FeeSchedule{}, fmt.Errorf("%w: only the provider can perform this action", ErrUnauthorized)
	}
	if bps > schedule.ProviderCeilingBps {
		return FeeSchedule{}, fmt.Errorf("%w: provider fee cannot exceed %d bps", ErrFeeTooHigh, schedule.ProviderCeilingBps)
	}
	schedule.ProviderFeeBps = bps
	return schedule, r.store(schedule)
}

func (r *feeRegistry) changeOperator(caller, next common.Address) (FeeSchedule, error) {
	schedule, err := r.load()
	if err != nil {
		return FeeSchedule{}, err
	}
	if caller != schedule.Operator {
		return FeeSchedule{}, fmt.Errorf("%w: only the operator can perform this action", ErrUnauthorized)
	}
	if next == (common.Address{}) {
		return FeeSchedule{}, ErrInvalidAddress
	}
	schedule.Operator = next
	return schedule, r.store(schedule)
}

func (r *feeRegistry) changeProvider(caller, next common.Address) (FeeSchedule, error) {
	schedule, err := r.load()
	if err != nil {
		return FeeSchedule{}, err
	}
	if caller != schedule.Provider {
		return FeeSchedule{}, fmt.Errorf("%w: only the provider can perform this action", ErrUnauthorized)
	}
	if next == (common.Address{}) {
		return FeeSchedule{}, ErrInvalidAddress
	}
	schedule.Provider = next
	return schedule, r.store(schedule)
}
