package domain

import (
	"context"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/lightningnetwork/lnd/lnwire"
	"github.com/lightningnetwork/lnd/routing/route"
)

type InboundPaymentRepository interface {
	Add(ctx context.Context, hash lntypes.Hash, info PaymentInfo) error
	Get(ctx context.Context, hash lntypes.Hash) (*PaymentInfo, error)
	GetAll(ctx context.Context) (map[lntypes.Hash]PaymentInfo, error)
	// Upsert creates the payment, or overwrites status, preimage and secret
	// of an existing one.
	Upsert(
		ctx context.Context, hash lntypes.Hash, status HTLCStatus,
		preimage *lntypes.Preimage, secret *PaymentSecret, amountMsat *uint64,
	) error
	UpdateStatus(ctx context.Context, hash lntypes.Hash, status HTLCStatus) error
	// FailPending marks every pending payment as failed and returns them.
	FailPending(ctx context.Context) ([]lntypes.Hash, error)
}

type OutboundPaymentRepository interface {
	Add(ctx context.Context, id PaymentID, info PaymentInfo) error
	Get(ctx context.Context, id PaymentID) (*PaymentInfo, error)
	GetAll(ctx context.Context) (map[PaymentID]PaymentInfo, error)
	Update(
		ctx context.Context, id PaymentID, status HTLCStatus, preimage *lntypes.Preimage,
	) (*PaymentInfo, error)
	UpdateStatus(ctx context.Context, id PaymentID, status HTLCStatus) error
	FailPending(ctx context.Context) ([]PaymentID, error)
	// FailPendingExcept fails pending payments whose id is not listed.
	FailPendingExcept(ctx context.Context, keep []PaymentID) ([]PaymentID, error)
}

type SwapRepository interface {
	Add(ctx context.Context, hash lntypes.Hash, swap SwapData) error
	Get(ctx context.Context, hash lntypes.Hash) (*SwapData, error)
	GetAll(ctx context.Context) (map[lntypes.Hash]SwapData, error)
	Contains(ctx context.Context, hash lntypes.Hash) (bool, error)
	UpdateStatus(ctx context.Context, hash lntypes.Hash, status SwapStatus) (*SwapData, error)
}

type ChannelIDRepository interface {
	Add(ctx context.Context, temporary, final lnwire.ChannelID) error
	GetFinal(ctx context.Context, temporary lnwire.ChannelID) (lnwire.ChannelID, error)
	GetAll(ctx context.Context) ([]ChannelIDs, error)
	DeleteByFinal(ctx context.Context, final lnwire.ChannelID) error
}

type SpendCacheRepository interface {
	Get(ctx context.Context, key chainhash.Hash) (*wire.MsgTx, error)
	Add(ctx context.Context, key chainhash.Hash, tx *wire.MsgTx) error
}

type PeerAddressRepository interface {
	GetAll(ctx context.Context) (map[route.Vertex]string, error)
	Add(ctx context.Context, node route.Vertex, addr string) error
}

// TrackedOutputs is a batch of spendable outputs waiting for a confirmed sweep.
type TrackedOutputs struct {
	Descriptors     []SpendableOutputDescriptor
	ChannelID       *lnwire.ChannelID
	SpendTxid       *chainhash.Hash
	BroadcastHeight uint32
}

type TrackedOutputsRepository interface {
	Add(ctx context.Context, key chainhash.Hash, outputs TrackedOutputs) error
	GetAll(ctx context.Context) (map[chainhash.Hash]TrackedOutputs, error)
	Update(ctx context.Context, key chainhash.Hash, outputs TrackedOutputs) error
	Delete(ctx context.Context, key chainhash.Hash) error
}
