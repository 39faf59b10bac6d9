package rpcbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/lightningnetwork/lnd/lnwallet/chainfee"
	"github.com/lightningnetwork/lnd/lnwire"
	"github.com/lightningnetwork/lnd/routing/route"
	"github.com/rgb-ln/rlnd/internal/core/domain"
	"github.com/rgb-ln/rlnd/internal/core/ports"
	log "github.com/sirupsen/logrus"
)

const (
	// Seconds the engine holds a nextevent request open when idle.
	eventPollTimeout = 30
	eventRetryDelay  = time.Second
	eventBufferSize  = 64
)

type EngineConfig struct {
	ConnConfig
	// PeerAddr is where the engine accepts the raw peer connections the
	// node hands over.
	PeerAddr string
}

type jsonChannel struct {
	ChannelID      hex32   `json:"channel_id"`
	ShortChannelID *uint64 `json:"short_channel_id"`
	Counterparty   hex33   `json:"counterparty_node_id"`
	FundingTxo     *string `json:"funding_txo"`
	CapacitySat    uint64  `json:"channel_value_satoshis"`
	IsPublic       bool    `json:"is_public"`
	IsUsable       bool    `json:"is_usable"`
}

func (c jsonChannel) toDomain() (domain.ChannelDetails, error) {
	details := domain.ChannelDetails{
		ChannelID:    lnwire.ChannelID(c.ChannelID),
		Counterparty: route.Vertex(c.Counterparty),
		CapacitySat:  c.CapacitySat,
		IsPublic:     c.IsPublic,
		IsUsable:     c.IsUsable,
	}
	if c.ShortChannelID != nil {
		scid := lnwire.NewShortChanIDFromInt(*c.ShortChannelID)
		details.ShortChannelID = &scid
	}
	if c.FundingTxo != nil {
		txo, err := outpoint(*c.FundingTxo)
		if err != nil {
			return details, err
		}
		details.FundingTxo = &txo
	}
	return details, nil
}

type jsonTxOut struct {
	Value  int64    `json:"value"`
	Script hexBytes `json:"script_pubkey"`
}

// Engine drives the Lightning engine sidecar. It serves as the event feed,
// the peer manager, the output signer and the fee bumper of the node.
type Engine struct {
	rpc      *conn
	peerAddr string
	nodeID   route.Vertex

	events    chan domain.Event
	quit      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func NewEngine(ctx context.Context, cfg EngineConfig) (*Engine, error) {
	if cfg.PeerAddr == "" {
		return nil, fmt.Errorf("missing engine peer address")
	}
	rpc, err := dial("engine", cfg.ConnConfig)
	if err != nil {
		return nil, err
	}

	var nodeID hex33
	if err := rpc.call(ctx, "getnodeid", &nodeID); err != nil {
		rpc.close()
		return nil, fmt.Errorf("failed to get node id: %w", err)
	}

	e := &Engine{
		rpc:      rpc,
		peerAddr: cfg.PeerAddr,
		nodeID:   route.Vertex(nodeID),
		events:   make(chan domain.Event, eventBufferSize),
		quit:     make(chan struct{}),
	}
	e.wg.Add(1)
	go e.pollEvents()
	return e, nil
}

func (e *Engine) Events() <-chan domain.Event {
	return e.events
}

func (e *Engine) NodeID() route.Vertex {
	return e.nodeID
}

func (e *Engine) pollEvents() {
	defer e.wg.Done()
	defer close(e.events)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-e.quit
		cancel()
	}()

	for {
		var raw json.RawMessage
		if err := e.rpc.call(ctx, "nextevent", &raw, eventPollTimeout); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.WithError(err).Warn("failed to fetch engine event, retrying")
			select {
			case <-e.quit:
				return
			case <-time.After(eventRetryDelay):
			}
			continue
		}
		if len(raw) == 0 {
			continue
		}

		event, err := decodeEvent(raw)
		if err != nil {
			log.WithError(err).Error("dropping engine event")
			continue
		}
		select {
		case <-e.quit:
			return
		case e.events <- event:
		}
	}
}

func (e *Engine) FundingTransactionGenerated(
	ctx context.Context, temporaryChannelID lnwire.ChannelID,
	counterparty route.Vertex, fundingTx *wire.MsgTx,
) error {
	txhex, err := encodeTx(fundingTx)
	if err != nil {
		return err
	}
	return e.rpc.call(
		ctx, "fundingtransactiongenerated", nil,
		hex32(temporaryChannelID), hex33(counterparty), txhex,
	)
}

func (e *Engine) AcceptInboundChannel(
	ctx context.Context, temporaryChannelID lnwire.ChannelID,
	counterparty route.Vertex, userChannelID domain.UserChannelID,
) error {
	return e.rpc.call(
		ctx, "acceptinboundchannel", nil,
		hex32(temporaryChannelID), hex33(counterparty), hex16(userChannelID),
	)
}

func (e *Engine) ClaimFunds(ctx context.Context, preimage lntypes.Preimage) error {
	return e.rpc.call(ctx, "claimfunds", nil, hex32(preimage))
}

func (e *Engine) ForwardInterceptedHTLC(
	ctx context.Context, interceptID domain.InterceptID,
	nextHop lnwire.ShortChannelID, nextNode route.Vertex,
	amountMsat lnwire.MilliSatoshi, rgbAmount *uint64,
) error {
	return e.rpc.call(
		ctx, "forwardinterceptedhtlc", nil,
		hex32(interceptID), nextHop.ToUint64(), hex33(nextNode), uint64(amountMsat), rgbAmount,
	)
}

func (e *Engine) FailInterceptedHTLC(ctx context.Context, interceptID domain.InterceptID) error {
	return e.rpc.call(ctx, "failinterceptedhtlc", nil, hex32(interceptID))
}

func (e *Engine) BroadcastNodeAnnouncement(
	ctx context.Context, alias string, addresses []string,
) error {
	return e.rpc.call(ctx, "broadcastnodeannouncement", nil, alias, addresses)
}

func (e *Engine) ProcessPendingHTLCForwards(ctx context.Context) error {
	return e.rpc.call(ctx, "processpendinghtlcforwards", nil)
}

func (e *Engine) ListChannels(ctx context.Context) ([]domain.ChannelDetails, error) {
	var channels []jsonChannel
	if err := e.rpc.call(ctx, "listchannels", &channels); err != nil {
		return nil, err
	}
	res := make([]domain.ChannelDetails, 0, len(channels))
	for _, c := range channels {
		details, err := c.toDomain()
		if err != nil {
			return nil, err
		}
		res = append(res, details)
	}
	return res, nil
}

func (e *Engine) ListRecentPayments(ctx context.Context) ([]domain.PaymentID, error) {
	var ids []hex32
	if err := e.rpc.call(ctx, "listrecentpayments", &ids); err != nil {
		return nil, err
	}
	res := make([]domain.PaymentID, 0, len(ids))
	for _, id := range ids {
		res = append(res, domain.PaymentID(id))
	}
	return res, nil
}

func (e *Engine) ListPeers(ctx context.Context) ([]route.Vertex, error) {
	var peers []hex33
	if err := e.rpc.call(ctx, "listpeers", &peers); err != nil {
		return nil, err
	}
	res := make([]route.Vertex, 0, len(peers))
	for _, p := range peers {
		res = append(res, route.Vertex(p))
	}
	return res, nil
}

func (e *Engine) ConnectPeer(ctx context.Context, node route.Vertex, addr string) error {
	return e.rpc.call(ctx, "connectpeer", nil, hex33(node), addr)
}

// SetupInbound pipes an accepted connection to the engine peer listener.
func (e *Engine) SetupInbound(inbound net.Conn) {
	outbound, err := net.DialTimeout("tcp", e.peerAddr, 10*time.Second)
	if err != nil {
		log.WithError(err).Warnf("failed to hand over inbound connection from %s", inbound.RemoteAddr())
		inbound.Close()
		return
	}

	done := make(chan struct{}, 2)
	pipe := func(dst, src net.Conn) {
		_, _ = io.Copy(dst, src)
		done <- struct{}{}
	}
	go pipe(outbound, inbound)
	go pipe(inbound, outbound)
	go func() {
		select {
		case <-e.quit:
		case <-done:
		}
		inbound.Close()
		outbound.Close()
	}()
}

func (e *Engine) DisconnectAll(ctx context.Context) {
	if err := e.rpc.call(ctx, "disconnectallpeers", nil); err != nil {
		log.WithError(err).Warn("failed to disconnect peers")
	}
}

func (e *Engine) SpendSpendableOutputs(
	ctx context.Context, descriptors []domain.SpendableOutputDescriptor,
	outputs []*wire.TxOut, changeScript []byte,
	feeRate chainfee.SatPerKWeight, locktime *uint32,
) (*wire.MsgTx, error) {
	var txhex string
	if err := e.rpc.call(
		ctx, "spendspendableoutputs", &txhex,
		fromDescriptors(descriptors), fromTxOuts(outputs), hexBytes(changeScript),
		uint64(feeRate), locktime,
	); err != nil {
		return nil, err
	}
	return decodeTx(txhex)
}

func (e *Engine) CreateSpendableOutputsPsbt(
	ctx context.Context, descriptors []domain.SpendableOutputDescriptor,
	outputs []*wire.TxOut, changeScript []byte,
	feeRate chainfee.SatPerKWeight, locktime *uint32,
) (*psbt.Packet, error) {
	var b64 string
	if err := e.rpc.call(
		ctx, "createspendableoutputspsbt", &b64,
		fromDescriptors(descriptors), fromTxOuts(outputs), hexBytes(changeScript),
		uint64(feeRate), locktime,
	); err != nil {
		return nil, err
	}
	return decodePsbt(b64)
}

func (e *Engine) SignSpendableOutputsPsbt(
	ctx context.Context, descriptors []domain.SpendableOutputDescriptor,
	packet *psbt.Packet,
) (*psbt.Packet, error) {
	b64, err := packet.B64Encode()
	if err != nil {
		return nil, err
	}
	var signed string
	if err := e.rpc.call(
		ctx, "signspendableoutputspsbt", &signed, fromDescriptors(descriptors), b64,
	); err != nil {
		return nil, err
	}
	return decodePsbt(signed)
}

func (e *Engine) HandleBumpTransaction(ctx context.Context, event domain.BumpTransaction) error {
	return e.rpc.call(ctx, "handlebumptransaction", nil, json.RawMessage(event.Payload))
}

func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		close(e.quit)
		e.wg.Wait()
		e.rpc.close()
	})
}

func fromTxOuts(outputs []*wire.TxOut) []jsonTxOut {
	res := make([]jsonTxOut, 0, len(outputs))
	for _, o := range outputs {
		res = append(res, jsonTxOut{o.Value, o.PkScript})
	}
	return res
}

func decodePsbt(b64 string) (*psbt.Packet, error) {
	return psbt.NewFromRawBytes(strings.NewReader(b64), true)
}

var (
	_ ports.LightningEngine        = (*Engine)(nil)
	_ ports.PeerManager            = (*Engine)(nil)
	_ ports.OutputSigner           = (*Engine)(nil)
	_ ports.BumpTransactionHandler = (*Engine)(nil)
)
