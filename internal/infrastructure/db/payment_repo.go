package db

import (
	"context"
	"fmt"

	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/rgb-ln/rlnd/internal/core/domain"
	"github.com/rgb-ln/rlnd/internal/core/ports"
)

const (
	inboundPaymentsKey  = "inbound_payments"
	outboundPaymentsKey = "outbound_payments"
)

type inboundPaymentRepository struct {
	ledger *ledger[lntypes.Hash, domain.PaymentInfo]
}

func NewInboundPaymentRepository(store ports.KVStore) domain.InboundPaymentRepository {
	payments := newLedger[lntypes.Hash, domain.PaymentInfo](
		store, inboundPaymentsKey, inboundPaymentsCodec,
	)
	return &inboundPaymentRepository{payments}
}

func (r *inboundPaymentRepository) Add(
	ctx context.Context, hash lntypes.Hash, info domain.PaymentInfo,
) error {
	return r.ledger.update(ctx, func(payments map[lntypes.Hash]domain.PaymentInfo) error {
		payments[hash] = info
		return nil
	})
}

func (r *inboundPaymentRepository) Get(
	ctx context.Context, hash lntypes.Hash,
) (*domain.PaymentInfo, error) {
	info, ok, err := r.ledger.get(ctx, hash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrPaymentNotFound, hash)
	}
	return &info, nil
}

func (r *inboundPaymentRepository) GetAll(
	ctx context.Context,
) (map[lntypes.Hash]domain.PaymentInfo, error) {
	return r.ledger.view(ctx)
}

func (r *inboundPaymentRepository) Upsert(
	ctx context.Context, hash lntypes.Hash, status domain.HTLCStatus,
	preimage *lntypes.Preimage, secret *domain.PaymentSecret, amountMsat *uint64,
) error {
	return r.ledger.update(ctx, func(payments map[lntypes.Hash]domain.PaymentInfo) error {
		info, ok := payments[hash]
		if !ok {
			payments[hash] = domain.PaymentInfo{
				Preimage:   preimage,
				Secret:     secret,
				Status:     status,
				AmountMsat: amountMsat,
			}
			return nil
		}

		if err := info.SetStatus(status); err != nil {
			return err
		}
		info.Preimage = preimage
		info.Secret = secret
		payments[hash] = info
		return nil
	})
}

func (r *inboundPaymentRepository) UpdateStatus(
	ctx context.Context, hash lntypes.Hash, status domain.HTLCStatus,
) error {
	return r.ledger.update(ctx, func(payments map[lntypes.Hash]domain.PaymentInfo) error {
		info, ok := payments[hash]
		if !ok {
			return fmt.Errorf("%w: %s", domain.ErrPaymentNotFound, hash)
		}
		if err := info.SetStatus(status); err != nil {
			return err
		}
		payments[hash] = info
		return nil
	})
}

func (r *inboundPaymentRepository) FailPending(ctx context.Context) ([]lntypes.Hash, error) {
	failed := make([]lntypes.Hash, 0)
	err := r.ledger.update(ctx, func(payments map[lntypes.Hash]domain.PaymentInfo) error {
		failed = failPending(payments, nil)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return failed, nil
}

type outboundPaymentRepository struct {
	ledger *ledger[domain.PaymentID, domain.PaymentInfo]
}

func NewOutboundPaymentRepository(store ports.KVStore) domain.OutboundPaymentRepository {
	payments := newLedger[domain.PaymentID, domain.PaymentInfo](
		store, outboundPaymentsKey, outboundPaymentsCodec,
	)
	return &outboundPaymentRepository{payments}
}

func (r *outboundPaymentRepository) Add(
	ctx context.Context, id domain.PaymentID, info domain.PaymentInfo,
) error {
	return r.ledger.update(ctx, func(payments map[domain.PaymentID]domain.PaymentInfo) error {
		payments[id] = info
		return nil
	})
}

func (r *outboundPaymentRepository) Get(
	ctx context.Context, id domain.PaymentID,
) (*domain.PaymentInfo, error) {
	info, ok, err := r.ledger.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrPaymentNotFound, id)
	}
	return &info, nil
}

func (r *outboundPaymentRepository) GetAll(
	ctx context.Context,
) (map[domain.PaymentID]domain.PaymentInfo, error) {
	return r.ledger.view(ctx)
}

func (r *outboundPaymentRepository) Update(
	ctx context.Context, id domain.PaymentID, status domain.HTLCStatus,
	preimage *lntypes.Preimage,
) (*domain.PaymentInfo, error) {
	var updated domain.PaymentInfo
	err := r.ledger.update(ctx, func(payments map[domain.PaymentID]domain.PaymentInfo) error {
		info, ok := payments[id]
		if !ok {
			return fmt.Errorf("%w: %s", domain.ErrPaymentNotFound, id)
		}
		if err := info.SetStatus(status); err != nil {
			return err
		}
		info.Preimage = preimage
		payments[id] = info
		updated = info
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (r *outboundPaymentRepository) UpdateStatus(
	ctx context.Context, id domain.PaymentID, status domain.HTLCStatus,
) error {
	return r.ledger.update(ctx, func(payments map[domain.PaymentID]domain.PaymentInfo) error {
		info, ok := payments[id]
		if !ok {
			return fmt.Errorf("%w: %s", domain.ErrPaymentNotFound, id)
		}
		if err := info.SetStatus(status); err != nil {
			return err
		}
		payments[id] = info
		return nil
	})
}

func (r *outboundPaymentRepository) FailPending(ctx context.Context) ([]domain.PaymentID, error) {
	return r.FailPendingExcept(ctx, nil)
}

func (r *outboundPaymentRepository) FailPendingExcept(
	ctx context.Context, keep []domain.PaymentID,
) ([]domain.PaymentID, error) {
	skip := make(map[domain.PaymentID]struct{}, len(keep))
	for _, id := range keep {
		skip[id] = struct{}{}
	}

	failed := make([]domain.PaymentID, 0)
	err := r.ledger.update(ctx, func(payments map[domain.PaymentID]domain.PaymentInfo) error {
		failed = failPending(payments, skip)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return failed, nil
}

func failPending[K comparable](
	payments map[K]domain.PaymentInfo, skip map[K]struct{},
) []K {
	failed := make([]K, 0)
	for key, info := range payments {
		if !info.IsPending() {
			continue
		}
		if _, ok := skip[key]; ok {
			continue
		}
		info.Status = domain.HTLCStatusFailed
		payments[key] = info
		failed = append(failed, key)
	}
	return failed
}
