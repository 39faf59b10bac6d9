package domain

import (
	"fmt"
	"time"
)

const (
	SwapStatusWaiting SwapStatus = iota
	SwapStatusPending
	SwapStatusSucceeded
	SwapStatusFailed
	SwapStatusExpired
)

type SwapStatus uint8

func (s SwapStatus) String() string {
	switch s {
	case SwapStatusWaiting:
		return "WAITING"
	case SwapStatusPending:
		return "PENDING"
	case SwapStatusSucceeded:
		return "SUCCEEDED"
	case SwapStatusFailed:
		return "FAILED"
	case SwapStatusExpired:
		return "EXPIRED"
	default:
		return "UNKNOWN"
	}
}

func (s SwapStatus) IsFinal() bool {
	return s == SwapStatusSucceeded || s == SwapStatusFailed || s == SwapStatusExpired
}

const (
	SwapKindFromBtc SwapKind = iota
	SwapKindToBtc
	SwapKindAssetForAsset
)

type SwapKind uint8

func (k SwapKind) String() string {
	switch k {
	case SwapKindFromBtc:
		return "FROM_BTC"
	case SwapKindToBtc:
		return "TO_BTC"
	default:
		return "ASSET_FOR_ASSET"
	}
}

// SwapInfo holds the whitelisted terms of a swap. A nil asset stands for
// bitcoin, in which case the related quantity is expressed in millisatoshis.
type SwapInfo struct {
	FromAsset *string
	ToAsset   *string
	QtyFrom   uint64
	QtyTo     uint64
}

func (i SwapInfo) Kind() SwapKind {
	switch {
	case i.FromAsset == nil:
		return SwapKindFromBtc
	case i.ToAsset == nil:
		return SwapKindToBtc
	default:
		return SwapKindAssetForAsset
	}
}

func (i SwapInfo) validate() error {
	if i.FromAsset == nil && i.ToAsset == nil {
		return fmt.Errorf("swap must involve at least one asset")
	}
	if i.QtyFrom == 0 || i.QtyTo == 0 {
		return fmt.Errorf("swap quantities must be greater than 0")
	}
	return nil
}

type SwapData struct {
	Info        SwapInfo
	Status      SwapStatus
	InitiatedAt *time.Time
	CompletedAt *time.Time
}

func NewSwap(info SwapInfo) (*SwapData, error) {
	if err := info.validate(); err != nil {
		return nil, err
	}
	return &SwapData{
		Info:   info,
		Status: SwapStatusWaiting,
	}, nil
}

// Transition applies a status change and stamps the related timestamp.
// Entering Waiting, or re-entering Pending, is an invariant violation.
// Changing an already final status is rejected with ErrSwapFinalized.
func (s *SwapData) Transition(status SwapStatus, now time.Time) error {
	if status == SwapStatusWaiting {
		return newInvariantError("swap cannot go back to %s from %s", status, s.Status)
	}
	if s.Status.IsFinal() {
		if s.Status == status {
			return nil
		}
		return fmt.Errorf(
			"%w: cannot move from %s to %s", ErrSwapFinalized, s.Status, status,
		)
	}

	switch status {
	case SwapStatusPending:
		if s.Status != SwapStatusWaiting {
			return newInvariantError("swap cannot enter %s from %s", status, s.Status)
		}
		s.InitiatedAt = &now
	case SwapStatusSucceeded, SwapStatusFailed, SwapStatusExpired:
		s.CompletedAt = &now
	default:
		return fmt.Errorf("unknown swap status %d", status)
	}

	s.Status = status
	return nil
}

func (s SwapData) IsActive() bool {
	return s.Status == SwapStatusWaiting
}
