package application

import (
	"context"
	"net"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/lightningnetwork/lnd/lnwire"
	"github.com/lightningnetwork/lnd/routing/route"
	"github.com/rgb-ln/rlnd/internal/core/domain"
	"github.com/rgb-ln/rlnd/internal/core/ports"
	"github.com/stretchr/testify/mock"
)

type mockedEngine struct {
	mock.Mock
	events chan domain.Event
}

func newMockedEngine() *mockedEngine {
	return &mockedEngine{events: make(chan domain.Event)}
}

func (m *mockedEngine) Events() <-chan domain.Event {
	return m.events
}

func (m *mockedEngine) NodeID() route.Vertex {
	args := m.Called()
	return args.Get(0).(route.Vertex)
}

func (m *mockedEngine) FundingTransactionGenerated(
	ctx context.Context, temporaryChannelID lnwire.ChannelID,
	counterparty route.Vertex, fundingTx *wire.MsgTx,
) error {
	args := m.Called(ctx, temporaryChannelID, counterparty, fundingTx)
	return args.Error(0)
}

func (m *mockedEngine) AcceptInboundChannel(
	ctx context.Context, temporaryChannelID lnwire.ChannelID,
	counterparty route.Vertex, userChannelID domain.UserChannelID,
) error {
	args := m.Called(ctx, temporaryChannelID, counterparty, userChannelID)
	return args.Error(0)
}

func (m *mockedEngine) ClaimFunds(ctx context.Context, preimage lntypes.Preimage) error {
	args := m.Called(ctx, preimage)
	return args.Error(0)
}

func (m *mockedEngine) ForwardInterceptedHTLC(
	ctx context.Context, interceptID domain.InterceptID,
	nextHop lnwire.ShortChannelID, nextNode route.Vertex,
	amountMsat lnwire.MilliSatoshi, rgbAmount *uint64,
) error {
	args := m.Called(ctx, interceptID, nextHop, nextNode, amountMsat, rgbAmount)
	return args.Error(0)
}

func (m *mockedEngine) FailInterceptedHTLC(ctx context.Context, interceptID domain.InterceptID) error {
	args := m.Called(ctx, interceptID)
	return args.Error(0)
}

func (m *mockedEngine) BroadcastNodeAnnouncement(
	ctx context.Context, alias string, addresses []string,
) error {
	args := m.Called(ctx, alias, addresses)
	return args.Error(0)
}

func (m *mockedEngine) ProcessPendingHTLCForwards(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockedEngine) ListChannels(ctx context.Context) ([]domain.ChannelDetails, error) {
	args := m.Called(ctx)

	var res []domain.ChannelDetails
	if a := args.Get(0); a != nil {
		res = a.([]domain.ChannelDetails)
	}
	return res, args.Error(1)
}

func (m *mockedEngine) ListRecentPayments(ctx context.Context) ([]domain.PaymentID, error) {
	args := m.Called(ctx)

	var res []domain.PaymentID
	if a := args.Get(0); a != nil {
		res = a.([]domain.PaymentID)
	}
	return res, args.Error(1)
}

func (m *mockedEngine) Close() {
	m.Called()
}

type mockedPeers struct {
	mock.Mock
}

func (m *mockedPeers) ListPeers(ctx context.Context) ([]route.Vertex, error) {
	args := m.Called(ctx)

	var res []route.Vertex
	if a := args.Get(0); a != nil {
		res = a.([]route.Vertex)
	}
	return res, args.Error(1)
}

func (m *mockedPeers) ConnectPeer(ctx context.Context, node route.Vertex, addr string) error {
	args := m.Called(ctx, node, addr)
	return args.Error(0)
}

func (m *mockedPeers) SetupInbound(conn net.Conn) {
	m.Called(conn)
	conn.Close()
}

func (m *mockedPeers) DisconnectAll(ctx context.Context) {
	m.Called(ctx)
}

type mockedColors struct {
	mock.Mock
}

func (m *mockedColors) IsColored(ctx context.Context, channelID lnwire.ChannelID) (bool, error) {
	args := m.Called(ctx, channelID)
	return args.Bool(0), args.Error(1)
}

func (m *mockedColors) PendingChannelInfo(
	ctx context.Context, channelID lnwire.ChannelID,
) (*domain.RgbChannelInfo, error) {
	args := m.Called(ctx, channelID)

	var res *domain.RgbChannelInfo
	if a := args.Get(0); a != nil {
		res = a.(*domain.RgbChannelInfo)
	}
	return res, args.Error(1)
}

func (m *mockedColors) ChannelInfo(
	ctx context.Context, channelID lnwire.ChannelID,
) (*domain.RgbChannelInfo, error) {
	args := m.Called(ctx, channelID)

	var res *domain.RgbChannelInfo
	if a := args.Get(0); a != nil {
		res = a.(*domain.RgbChannelInfo)
	}
	return res, args.Error(1)
}

func (m *mockedColors) UpdatePaymentAmounts(
	ctx context.Context, hash lntypes.Hash, receiver bool,
) error {
	args := m.Called(ctx, hash, receiver)
	return args.Error(0)
}

func (m *mockedColors) UpdateChannelAmount(
	ctx context.Context, channelID lnwire.ChannelID, offered, received uint64,
) error {
	args := m.Called(ctx, channelID, offered, received)
	return args.Error(0)
}

func (m *mockedColors) TransferInfo(
	ctx context.Context, txid chainhash.Hash,
) (*domain.TransferInfo, error) {
	args := m.Called(ctx, txid)

	var res *domain.TransferInfo
	if a := args.Get(0); a != nil {
		res = a.(*domain.TransferInfo)
	}
	return res, args.Error(1)
}

type mockedChain struct {
	mock.Mock
}

func (m *mockedChain) BestTip(ctx context.Context) (*ports.BlockTip, error) {
	args := m.Called(ctx)

	var res *ports.BlockTip
	if a := args.Get(0); a != nil {
		res = a.(*ports.BlockTip)
	}
	return res, args.Error(1)
}

func (m *mockedChain) Broadcast(ctx context.Context, tx *wire.MsgTx) error {
	args := m.Called(ctx, tx)
	return args.Error(0)
}

func (m *mockedChain) Confirmations(ctx context.Context, txid chainhash.Hash) (uint32, error) {
	args := m.Called(ctx, txid)

	var res uint32
	if a := args.Get(0); a != nil {
		res = a.(uint32)
	}
	return res, args.Error(1)
}

func (m *mockedChain) Close() {
	m.Called()
}

type mockedScheduler struct {
	mock.Mock
}

func (m *mockedScheduler) Start() {
	m.Called()
}

func (m *mockedScheduler) Stop() {
	m.Called()
}

func (m *mockedScheduler) ScheduleTask(interval int64, immediate bool, task func()) error {
	args := m.Called(interval, immediate, task)
	return args.Error(0)
}

type staticEntropy [32]byte

func (e staticEntropy) SecureRandomBytes() [32]byte {
	return e
}
