package db

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/rgb-ln/rlnd/internal/core/domain"
	"github.com/rgb-ln/rlnd/internal/core/ports"
)

const trackedOutputsKey = "tracked_outputs"

type trackedOutputsRepository struct {
	ledger *ledger[chainhash.Hash, domain.TrackedOutputs]
}

func NewTrackedOutputsRepository(store ports.KVStore) domain.TrackedOutputsRepository {
	outputs := newLedger[chainhash.Hash, domain.TrackedOutputs](
		store, trackedOutputsKey, trackedOutputsCodec,
	)
	return &trackedOutputsRepository{outputs}
}

func (r *trackedOutputsRepository) Add(
	ctx context.Context, key chainhash.Hash, outputs domain.TrackedOutputs,
) error {
	return r.ledger.update(ctx, func(tracked map[chainhash.Hash]domain.TrackedOutputs) error {
		if _, ok := tracked[key]; ok {
			return nil
		}
		tracked[key] = outputs
		return nil
	})
}

func (r *trackedOutputsRepository) GetAll(
	ctx context.Context,
) (map[chainhash.Hash]domain.TrackedOutputs, error) {
	return r.ledger.view(ctx)
}

func (r *trackedOutputsRepository) Update(
	ctx context.Context, key chainhash.Hash, outputs domain.TrackedOutputs,
) error {
	return r.ledger.update(ctx, func(tracked map[chainhash.Hash]domain.TrackedOutputs) error {
		if _, ok := tracked[key]; !ok {
			return fmt.Errorf("outputs %s not tracked", key)
		}
		tracked[key] = outputs
		return nil
	})
}

func (r *trackedOutputsRepository) Delete(ctx context.Context, key chainhash.Hash) error {
	return r.ledger.update(ctx, func(tracked map[chainhash.Hash]domain.TrackedOutputs) error {
		delete(tracked, key)
		return nil
	})
}
