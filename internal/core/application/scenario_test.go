package application

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/lightningnetwork/lnd/lnwire"
	"github.com/lightningnetwork/lnd/routing/route"
	"github.com/rgb-ln/rlnd/internal/core/domain"
	"github.com/rgb-ln/rlnd/internal/core/ports"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type testNode struct {
	name   string
	id     route.Vertex
	env    *testEnv
	svc    *service
	wallet *fakeWallet
	colors *fakeColors
	proxy  *fakeProxy
}

func newTestNode(t *testing.T, name, pubkey string, ledger *assetLedger) *testNode {
	id, err := route.NewVertexFromStr(pubkey)
	require.NoError(t, err)

	env := newTestEnv(t)
	wallet := newFakeWallet(name, usdt, ledger)
	colors := newFakeColors()
	proxy := &fakeProxy{}
	env.wallet, env.colors, env.proxy = wallet, colors, proxy

	env.engine.On(
		"FundingTransactionGenerated", mock.Anything, mock.Anything, mock.Anything, mock.Anything,
	).Return(nil)
	env.engine.On("ClaimFunds", mock.Anything, mock.Anything).Return(nil)
	env.chain.On("BestTip", mock.Anything).Return(&ports.BlockTip{Height: 200}, nil)
	env.chain.On("Broadcast", mock.Anything, mock.Anything).Return(nil)

	return &testNode{
		name:   name,
		id:     id,
		env:    env,
		svc:    env.service(t),
		wallet: wallet,
		colors: colors,
		proxy:  proxy,
	}
}

func (n *testNode) handle(t *testing.T, event domain.Event) {
	t.Helper()
	require.NoError(t, n.svc.HandleEvent(ctx, event))
}

func openColoredChannel(
	t *testing.T, funder, fundee *testNode, temporary, final lnwire.ChannelID, amount uint64,
) {
	funder.colors.pending[temporary] = domain.RgbChannelInfo{
		ContractID: usdt, LocalAmount: amount,
	}
	funder.handle(t, domain.FundingGenerationReady{
		TemporaryChannelID: temporary,
		CounterpartyNodeID: fundee.id,
		ChannelValueSat:    100000,
		OutputScript:       testScript(0x01),
	})
	require.True(t, funder.svc.sendLock.isLocked())

	fundingTxid := funder.wallet.fundingTxid
	posts := funder.proxy.posts
	require.NotEmpty(t, posts)
	require.Equal(t, postedConsignment{
		recipientID: fundingTxid.String(), txid: fundingTxid.String(), vout: 0,
	}, posts[len(posts)-1])

	// The counterparty gets the funding consignment from the proxy.
	consignment := []byte("consignment|" + usdt + "|" + fundingTxid.String())
	require.NoError(t, fundee.env.handoff.Write(
		ctx, consignmentHandoffKey(fundingTxid.String()), consignment,
	))

	delete(funder.colors.pending, temporary)
	funder.colors.channels[final] = &domain.RgbChannelInfo{
		ContractID: usdt, LocalAmount: amount,
	}
	fundee.colors.channels[final] = &domain.RgbChannelInfo{
		ContractID: usdt, RemoteAmount: amount,
	}

	pending := domain.ChannelPending{
		ChannelID:                final,
		FormerTemporaryChannelID: temporary,
		FundingTxo:               wire.OutPoint{Hash: fundingTxid},
	}
	pending.CounterpartyNodeID = fundee.id
	funder.handle(t, pending)
	pending.CounterpartyNodeID = funder.id
	fundee.handle(t, pending)

	require.False(t, funder.svc.sendLock.isLocked())
	exists, err := funder.env.handoff.Exists(ctx, psbtHandoffKey(fundingTxid.String()))
	require.NoError(t, err)
	require.False(t, exists)

	funder.handle(t, domain.ChannelReady{ChannelID: final, CounterpartyNodeID: fundee.id})
	fundee.handle(t, domain.ChannelReady{ChannelID: final, CounterpartyNodeID: funder.id})
}

func keysend(
	t *testing.T, from, to *testNode, channel lnwire.ChannelID, seed byte, amount uint64,
) {
	preimage := lntypes.Preimage{seed}
	hash := preimage.Hash()
	from.colors.payments[hash] = rgbPayment{channel, amount}
	to.colors.payments[hash] = rgbPayment{channel, amount}

	id := domain.PaymentID{seed}
	msat := uint64(3000000)
	require.NoError(t, from.env.repo.OutboundPayments().Add(
		ctx, id, domain.NewPendingPayment(&msat),
	))

	purpose := domain.PaymentPurpose{Preimage: &preimage, Spontaneous: true}
	to.handle(t, domain.PaymentClaimable{
		PaymentHash: hash, Purpose: purpose, AmountMsat: lnwire.MilliSatoshi(msat),
	})
	to.handle(t, domain.PaymentClaimed{
		PaymentHash: hash, Purpose: purpose, AmountMsat: lnwire.MilliSatoshi(msat),
	})
	from.handle(t, domain.PaymentSent{
		PaymentID: &id, PaymentPreimage: preimage, PaymentHash: hash,
	})

	sent, err := from.env.repo.OutboundPayments().Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, domain.HTLCStatusSucceeded, sent.Status)
	received, err := to.env.repo.InboundPayments().Get(ctx, hash)
	require.NoError(t, err)
	require.Equal(t, domain.HTLCStatusSucceeded, received.Status)
}

func closeChannel(t *testing.T, channel lnwire.ChannelID, nodes ...*testNode) {
	for _, n := range nodes {
		n.handle(t, domain.ChannelClosed{ChannelID: channel, Reason: "cooperative close"})

		commitment := chainhash.HashH([]byte(n.name + channel.String()))
		n.colors.transfers[commitment] = domain.TransferInfo{
			ContractID: usdt,
			Amount:     n.colors.channels[channel].LocalAmount,
		}
		delete(n.colors.channels, channel)

		n.handle(t, domain.SpendableOutputs{
			Outputs: []domain.SpendableOutputDescriptor{{
				Kind:     domain.StaticPaymentOutput,
				Outpoint: wire.OutPoint{Hash: commitment},
				Output:   wire.TxOut{Value: 50000, PkScript: testScript(0x04)},
			}},
			ChannelID: &channel,
		})
	}
}

func TestThreeNodesAssetTransfers(t *testing.T) {
	ledger := newAssetLedger()
	node1 := newTestNode(t, "node1", peerPubkey, ledger)
	node2 := newTestNode(t, "node2",
		"02c6047f9441ed7d6d3045406e95c07cd85c778e4b8cef3ca7abac09b95c709ee5", ledger)
	node3 := newTestNode(t, "node3",
		"02f9308a019258c31049344f85f89d5229b531c845836f99b08601f113bce036f9", ledger)

	ledger.issue(node1.name, 1000)

	balances := func(expected ...uint64) {
		t.Helper()
		for i, n := range []*testNode{node1, node2, node3}[:len(expected)] {
			require.Equal(t, expected[i], ledger.balance(n.name), n.name)
		}
	}

	openColoredChannel(t, node1, node2, channelID(1), channelID(2), 600)
	balances(400, 0)

	keysend(t, node1, node2, channelID(2), 1, 100)
	require.Equal(t, uint64(500), node1.colors.channels[channelID(2)].LocalAmount)
	require.Equal(t, uint64(100), node2.colors.channels[channelID(2)].LocalAmount)

	closeChannel(t, channelID(2), node1, node2)
	balances(900, 100)

	openColoredChannel(t, node1, node2, channelID(3), channelID(4), 600)
	balances(300, 100)

	keysend(t, node1, node2, channelID(4), 2, 100)
	closeChannel(t, channelID(4), node1, node2)
	balances(800, 200)

	require.NoError(t, node1.wallet.send(node3.name, 700))
	require.NoError(t, node2.wallet.send(node3.name, 150))
	balances(100, 50, 850)
	require.Zero(t, ledger.balance(channelsAccount))

	// The counterparty registered the asset once.
	require.Equal(t, []string{usdt}, node2.wallet.savedAssets)
	require.Equal(t, 4, node1.wallet.refreshes)
	require.Equal(t, 2, node1.wallet.sendEnds)

	for _, n := range []*testNode{node1, node2} {
		ids, err := n.env.repo.ChannelIDs().GetAll(ctx)
		require.NoError(t, err)
		require.Empty(t, ids)

		tracked, err := n.env.repo.TrackedOutputs().GetAll(ctx)
		require.NoError(t, err)
		require.Len(t, tracked, 2)
	}
}
