package db

import (
	"context"
	"fmt"
	"time"

	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/rgb-ln/rlnd/internal/core/domain"
	"github.com/rgb-ln/rlnd/internal/core/ports"
)

const (
	makerSwapsKey = "maker_swaps"
	takerSwapsKey = "taker_swaps"
)

type swapRepository struct {
	ledger *ledger[lntypes.Hash, domain.SwapData]
	now    func() time.Time
}

func NewMakerSwapRepository(store ports.KVStore) domain.SwapRepository {
	return newSwapRepository(store, makerSwapsKey)
}

func NewTakerSwapRepository(store ports.KVStore) domain.SwapRepository {
	return newSwapRepository(store, takerSwapsKey)
}

func newSwapRepository(store ports.KVStore, key string) *swapRepository {
	swaps := newLedger[lntypes.Hash, domain.SwapData](store, key, swapsCodec)
	return &swapRepository{swaps, time.Now}
}

func (r *swapRepository) Add(
	ctx context.Context, hash lntypes.Hash, swap domain.SwapData,
) error {
	return r.ledger.update(ctx, func(swaps map[lntypes.Hash]domain.SwapData) error {
		swaps[hash] = swap
		return nil
	})
}

func (r *swapRepository) Get(ctx context.Context, hash lntypes.Hash) (*domain.SwapData, error) {
	swap, ok, err := r.ledger.get(ctx, hash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrSwapNotFound, hash)
	}
	return &swap, nil
}

func (r *swapRepository) GetAll(ctx context.Context) (map[lntypes.Hash]domain.SwapData, error) {
	return r.ledger.view(ctx)
}

func (r *swapRepository) Contains(ctx context.Context, hash lntypes.Hash) (bool, error) {
	_, ok, err := r.ledger.get(ctx, hash)
	return ok, err
}

func (r *swapRepository) UpdateStatus(
	ctx context.Context, hash lntypes.Hash, status domain.SwapStatus,
) (*domain.SwapData, error) {
	var updated domain.SwapData
	err := r.ledger.update(ctx, func(swaps map[lntypes.Hash]domain.SwapData) error {
		swap, ok := swaps[hash]
		if !ok {
			return fmt.Errorf("%w: %s", domain.ErrSwapNotFound, hash)
		}
		if err := swap.Transition(status, r.now().UTC()); err != nil {
			return err
		}
		swaps[hash] = swap
		updated = swap
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}
