package db

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/rgb-ln/rlnd/internal/core/domain"
	"github.com/rgb-ln/rlnd/internal/core/ports"
)

const spendCacheKey = "output_spender_txes"

type spendCacheRepository struct {
	ledger *ledger[chainhash.Hash, *wire.MsgTx]
}

func NewSpendCacheRepository(store ports.KVStore) domain.SpendCacheRepository {
	txs := newLedger[chainhash.Hash, *wire.MsgTx](store, spendCacheKey, spendCacheCodec)
	return &spendCacheRepository{txs}
}

func (r *spendCacheRepository) Get(ctx context.Context, key chainhash.Hash) (*wire.MsgTx, error) {
	tx, ok, err := r.ledger.get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrSpendNotCached, key)
	}
	return tx.Copy(), nil
}

func (r *spendCacheRepository) Add(ctx context.Context, key chainhash.Hash, tx *wire.MsgTx) error {
	return r.ledger.update(ctx, func(txs map[chainhash.Hash]*wire.MsgTx) error {
		txs[key] = tx.Copy()
		return nil
	})
}
