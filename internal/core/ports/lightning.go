package ports

import (
	"context"
	"net"

	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/lightningnetwork/lnd/lnwire"
	"github.com/lightningnetwork/lnd/routing/route"
	"github.com/rgb-ln/rlnd/internal/core/domain"
)

// LightningEngine is the command surface of the underlying Lightning
// implementation plus its event feed.
type LightningEngine interface {
	Events() <-chan domain.Event
	NodeID() route.Vertex

	FundingTransactionGenerated(
		ctx context.Context, temporaryChannelID lnwire.ChannelID,
		counterparty route.Vertex, fundingTx *wire.MsgTx,
	) error
	AcceptInboundChannel(
		ctx context.Context, temporaryChannelID lnwire.ChannelID,
		counterparty route.Vertex, userChannelID domain.UserChannelID,
	) error
	ClaimFunds(ctx context.Context, preimage lntypes.Preimage) error
	ForwardInterceptedHTLC(
		ctx context.Context, interceptID domain.InterceptID,
		nextHop lnwire.ShortChannelID, nextNode route.Vertex,
		amountMsat lnwire.MilliSatoshi, rgbAmount *uint64,
	) error
	FailInterceptedHTLC(ctx context.Context, interceptID domain.InterceptID) error
	BroadcastNodeAnnouncement(ctx context.Context, alias string, addresses []string) error
	ProcessPendingHTLCForwards(ctx context.Context) error
	ListChannels(ctx context.Context) ([]domain.ChannelDetails, error)
	ListRecentPayments(ctx context.Context) ([]domain.PaymentID, error)
	Close()
}

type PeerManager interface {
	ListPeers(ctx context.Context) ([]route.Vertex, error)
	ConnectPeer(ctx context.Context, node route.Vertex, addr string) error
	// SetupInbound hands an accepted connection over to the engine.
	SetupInbound(conn net.Conn)
	DisconnectAll(ctx context.Context)
}

type EntropySource interface {
	SecureRandomBytes() [32]byte
}

type BumpTransactionHandler interface {
	HandleBumpTransaction(ctx context.Context, event domain.BumpTransaction) error
}
