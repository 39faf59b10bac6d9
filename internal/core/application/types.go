package application

import (
	"context"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/lightningnetwork/lnd/lnwallet/chainfee"
	"github.com/lightningnetwork/lnd/routing/route"
	"github.com/rgb-ln/rlnd/internal/core/domain"
)

const (
	// FeeRate is the fixed on-chain fee rate in sat/vB.
	FeeRate float32 = 7.0
	// UtxoSizeSat is the value of the colorable UTXOs created by the wallet.
	UtxoSizeSat = 32000
	// MinChannelConfirmations is required for funding inputs.
	MinChannelConfirmations uint8 = 6
	// DustLimitMsat is the value of every output allocated to an asset.
	DustLimitMsat = 546000
	// StaticBlinding is the blinding factor used for funding witness recipients.
	StaticBlinding uint64 = 777

	RegtestProxyEndpoint = "rpc://127.0.0.1:3000/json-rpc"
	TestnetProxyEndpoint = "rpcs://proxy.iriswallet.com/0.2/json-rpc"

	sweepConfirmations   = 6
	portReleaseTimeout   = 10 * time.Second
	portReleasePoll      = 100 * time.Millisecond
	announcementDelay    = 60 * time.Second
	announcementInterval = time.Hour
	reconnectInterval    = time.Second
	chainPollInterval    = time.Second
)

// feeRatePerKw is FeeRate expressed in sat/kw.
var feeRatePerKw = chainfee.SatPerKVByte(FeeRate * 1000).FeePerKWeight()

type Service interface {
	Start() error
	Stop() error
	// HandleEvent processes one event to completion.
	HandleEvent(ctx context.Context, event domain.Event) error
	// ConnectPeer connects to "pubkey@host:port" and remembers the address
	// for the reconnection loop.
	ConnectPeer(ctx context.Context, peerInfo string) error
	GetInfo(ctx context.Context) (*ServiceInfo, error)
}

type Config struct {
	Network              *chaincfg.Params
	PeerPort             uint16
	AnnouncedNodeName    string
	AnnouncedListenAddrs []string
	ProxyEndpoint        string
	// SweepInterval is expressed in seconds.
	SweepInterval  int64
	WorkerPoolSize int64
	// OnFatal is invoked for errors the node cannot survive. Defaults to
	// log.Fatal.
	OnFatal func(err error)
}

type ServiceInfo struct {
	NodeID         route.Vertex
	Network        string
	PeerPort       uint16
	NumChannels    int
	NumPeers       int
	SendLocked     bool
	TrackedOutputs int
}
