package ports

import (
	"context"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

type BlockTip struct {
	Height uint32
	Hash   chainhash.Hash
}

type ChainSource interface {
	BestTip(ctx context.Context) (*BlockTip, error)
	Broadcast(ctx context.Context, tx *wire.MsgTx) error
	// Confirmations returns 0 for unconfirmed or unknown transactions.
	Confirmations(ctx context.Context, txid chainhash.Hash) (uint32, error)
	Close()
}
