package ports

import (
	"context"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/lightningnetwork/lnd/lnwire"
	"github.com/rgb-ln/rlnd/internal/core/domain"
)

// ChannelColorSource owns the per channel asset accounting. The node only
// reads it and asks for updates, it never keeps a copy.
type ChannelColorSource interface {
	IsColored(ctx context.Context, channelID lnwire.ChannelID) (bool, error)
	// PendingChannelInfo returns the allocation negotiated for a channel being
	// opened.
	PendingChannelInfo(ctx context.Context, channelID lnwire.ChannelID) (*domain.RgbChannelInfo, error)
	// ChannelInfo returns nil when the channel carries no asset.
	ChannelInfo(ctx context.Context, channelID lnwire.ChannelID) (*domain.RgbChannelInfo, error)
	// UpdatePaymentAmounts applies the asset amount of a settled payment to the
	// channel it went through.
	UpdatePaymentAmounts(ctx context.Context, hash lntypes.Hash, receiver bool) error
	UpdateChannelAmount(ctx context.Context, channelID lnwire.ChannelID, offered, received uint64) error
	// TransferInfo returns nil when no allocation is recorded for txid.
	TransferInfo(ctx context.Context, txid chainhash.Hash) (*domain.TransferInfo, error)
}
