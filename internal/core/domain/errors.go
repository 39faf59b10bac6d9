package domain

import (
	"errors"
	"fmt"
)

var (
	ErrPaymentNotFound   = errors.New("payment not found")
	ErrPaymentFinalized  = errors.New("payment already finalized")
	ErrSwapNotFound      = errors.New("swap not found")
	ErrSwapFinalized     = errors.New("swap already finalized")
	ErrChannelIDNotFound = errors.New("channel id not found")
	ErrSpendNotCached    = errors.New("no cached spend for descriptor set")

	ErrInvariantViolated = errors.New("invariant violated")
	ErrDurability        = errors.New("durability failure")

	// ErrAssetAlreadyRegistered is returned by asset wallets when the contract
	// is already known.
	ErrAssetAlreadyRegistered = errors.New("asset already registered")
)

// InvariantError signals a state transition that can never happen in a
// correct program.
type InvariantError struct {
	Msg string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant violated: %s", e.Msg)
}

func (e *InvariantError) Is(target error) bool {
	return target == ErrInvariantViolated
}

func newInvariantError(format string, args ...interface{}) error {
	return &InvariantError{fmt.Sprintf(format, args...)}
}

func IsInvariantViolation(err error) bool {
	var e *InvariantError
	return errors.As(err, &e)
}

// DurabilityError wraps a failure to persist a ledger map. The in-memory copy is
// left as it was before the failed mutation.
type DurabilityError struct {
	Key string
	Err error
}

func (e *DurabilityError) Error() string {
	return fmt.Sprintf("failed to persist %s: %s", e.Key, e.Err)
}

func (e *DurabilityError) Is(target error) bool {
	return target == ErrDurability
}

func (e *DurabilityError) Unwrap() error {
	return e.Err
}

func IsDurabilityFailure(err error) bool {
	var e *DurabilityError
	return errors.As(err, &e)
}
