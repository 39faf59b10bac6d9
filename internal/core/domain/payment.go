package domain

import (
	"encoding/hex"
	"fmt"

	"github.com/lightningnetwork/lnd/lntypes"
)

const (
	HTLCStatusPending HTLCStatus = iota
	HTLCStatusSucceeded
	HTLCStatusFailed
)

type HTLCStatus uint8

func (s HTLCStatus) String() string {
	switch s {
	case HTLCStatusPending:
		return "PENDING"
	case HTLCStatusSucceeded:
		return "SUCCEEDED"
	case HTLCStatusFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

func (s HTLCStatus) IsFinal() bool {
	return s == HTLCStatusSucceeded || s == HTLCStatusFailed
}

// PaymentID identifies an outbound payment as chosen by the sender.
type PaymentID [32]byte

func (id PaymentID) String() string {
	return hex.EncodeToString(id[:])
}

func NewPaymentIDFromStr(str string) (PaymentID, error) {
	var id PaymentID
	buf, err := hex.DecodeString(str)
	if err != nil {
		return id, fmt.Errorf("invalid payment id: %w", err)
	}
	if len(buf) != len(id) {
		return id, fmt.Errorf("invalid payment id length %d", len(buf))
	}
	copy(id[:], buf)
	return id, nil
}

type PaymentSecret [32]byte

func (s PaymentSecret) String() string {
	return hex.EncodeToString(s[:])
}

type PaymentInfo struct {
	Preimage   *lntypes.Preimage
	Secret     *PaymentSecret
	Status     HTLCStatus
	AmountMsat *uint64
}

func NewPendingPayment(amountMsat *uint64) PaymentInfo {
	return PaymentInfo{
		Status:     HTLCStatusPending,
		AmountMsat: amountMsat,
	}
}

// SetStatus moves the payment forward. Once the payment reached a final status
// it can only be set again to the very same status.
func (p *PaymentInfo) SetStatus(status HTLCStatus) error {
	if p.Status.IsFinal() {
		if p.Status == status {
			return nil
		}
		return fmt.Errorf(
			"%w: cannot move from %s to %s", ErrPaymentFinalized, p.Status, status,
		)
	}
	p.Status = status
	return nil
}

func (p PaymentInfo) IsPending() bool {
	return p.Status == HTLCStatusPending
}
