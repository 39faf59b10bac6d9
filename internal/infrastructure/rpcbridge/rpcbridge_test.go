package rpcbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/lightningnetwork/lnd/lnwire"
	"github.com/lightningnetwork/lnd/routing/route"
	"github.com/rgb-ln/rlnd/internal/core/domain"
	"github.com/stretchr/testify/require"
)

const (
	nodePubkey = "02a1633cafcc01ebfb6d78e39f687a1f0995c62fc95f51ead10a02ee0be551b5dc"
	channelHex = "0101010101010101010101010101010101010101010101010101010101010101"
	fundingTxo = "4a5e1e4baab89f3a32518a88c31bc87f618f76673e2cc77ab2127b7afdeda33b:1"
)

// ones is the id encoded by channelHex.
var ones = func() (id [32]byte) {
	for i := range id {
		id[i] = 1
	}
	return
}()

type rpcRequest struct {
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
	ID     interface{}       `json:"id"`
}

type rpcHandler func(params []json.RawMessage) (interface{}, *rpcErr)

type rpcErr struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// sidecar fakes the engine and wallet processes.
type sidecar struct {
	*httptest.Server
	lock     sync.Mutex
	handlers map[string]rpcHandler
	calls    map[string][][]json.RawMessage
}

func newSidecar(t *testing.T, handlers map[string]rpcHandler) *sidecar {
	s := &sidecar{handlers: handlers, calls: make(map[string][][]json.RawMessage)}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		s.lock.Lock()
		s.calls[req.Method] = append(s.calls[req.Method], req.Params)
		handler, ok := s.handlers[req.Method]
		s.lock.Unlock()

		var (
			result interface{}
			rerr   *rpcErr
		)
		if ok {
			result, rerr = handler(req.Params)
		} else {
			rerr = &rpcErr{-32601, "method not found"}
		}
		//nolint:errcheck
		json.NewEncoder(w).Encode(map[string]interface{}{
			"result": result, "error": rerr, "id": req.ID,
		})
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *sidecar) addr() string {
	return strings.TrimPrefix(s.URL, "http://")
}

func (s *sidecar) callsOf(method string) [][]json.RawMessage {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.calls[method]
}

func static(result interface{}) rpcHandler {
	return func([]json.RawMessage) (interface{}, *rpcErr) {
		return result, nil
	}
}

func TestDecodeEvent(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		preimage := lntypes.Preimage{1}
		hash := preimage.Hash()
		tests := []struct {
			name     string
			event    string
			expected domain.Event
		}{
			{
				name: "channel pending",
				event: fmt.Sprintf(`{"type":"channel_pending","event":{"channel_id":"%s",`+
					`"user_channel_id":"00000000000000000000000000000007",`+
					`"former_temporary_channel_id":"%s","counterparty_node_id":"%s",`+
					`"funding_txo":"%s"}}`, channelHex, channelHex, nodePubkey, fundingTxo),
				expected: func() domain.Event {
					e := domain.ChannelPending{
						ChannelID:                lnwire.ChannelID(ones),
						UserChannelID:            domain.UserChannelID{15: 7},
						FormerTemporaryChannelID: lnwire.ChannelID(ones),
					}
					e.CounterpartyNodeID = mustVertex(nodePubkey)
					op, _ := outpoint(fundingTxo)
					e.FundingTxo = op
					return e
				}(),
			},
			{
				name: "payment claimable",
				event: fmt.Sprintf(`{"type":"payment_claimable","event":{"payment_hash":"%s",`+
					`"purpose":{"spontaneous":true},"amount_msat":3000000}}`, hash),
				expected: domain.PaymentClaimable{
					PaymentHash: hash,
					Purpose:     domain.PaymentPurpose{Spontaneous: true},
					AmountMsat:  3000000,
				},
			},
			{
				name:     "pending htlcs forwardable",
				event:    `{"type":"pending_htlcs_forwardable","event":{"time_forwardable_ms":1500}}`,
				expected: domain.PendingHTLCsForwardable{TimeForwardable: 1500 * time.Millisecond},
			},
			{
				name: "discard funding",
				event: fmt.Sprintf(`{"type":"discard_funding","event":{"channel_id":"%s",`+
					`"funding_txid":"%s"}}`, channelHex, strings.Split(fundingTxo, ":")[0]),
				expected: domain.DiscardFunding{
					ChannelID:   lnwire.ChannelID(ones),
					FundingTxid: mustHash(strings.Split(fundingTxo, ":")[0]),
				},
			},
			{
				name: "htlc intercepted",
				event: fmt.Sprintf(`{"type":"htlc_intercepted","event":{"intercept_id":"%s",`+
					`"is_swap":true,"payment_hash":"%s","requested_next_hop_scid":1,`+
					`"prev_short_channel_id":2,"inbound_amount_msat":3000000,`+
					`"expected_outbound_amount_msat":3000000,"expected_outbound_rgb_amount":10}}`,
					channelHex, hash),
				expected: domain.HTLCIntercepted{
					InterceptID:                domain.InterceptID(ones),
					IsSwap:                     true,
					PaymentHash:                hash,
					RequestedNextHopScid:       lnwire.NewShortChanIDFromInt(1),
					PrevShortChannelID:         lnwire.NewShortChanIDFromInt(2),
					InboundAmountMsat:          3000000,
					ExpectedOutboundAmountMsat: 3000000,
					ExpectedOutboundRgbAmount:  uint64Ptr(10),
				},
			},
			{
				name: "spendable outputs",
				event: fmt.Sprintf(`{"type":"spendable_outputs","event":{"outputs":[{`+
					`"kind":"delayed_payment","outpoint":"%s","value":50000,`+
					`"script_pubkey":"0014aa","opaque":"ff"}]}}`, fundingTxo),
				expected: func() domain.Event {
					op, _ := outpoint(fundingTxo)
					return domain.SpendableOutputs{
						Outputs: []domain.SpendableOutputDescriptor{{
							Kind:     domain.DelayedPaymentOutput,
							Outpoint: op,
							Output:   wire.TxOut{Value: 50000, PkScript: []byte{0x00, 0x14, 0xaa}},
							Opaque:   []byte{0xff},
						}},
					}
				}(),
			},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				event, err := decodeEvent([]byte(tt.event))
				require.NoError(t, err)
				require.Equal(t, tt.expected, event)
			})
		}
	})

	t.Run("invalid", func(t *testing.T) {
		tests := []struct {
			name  string
			event string
		}{
			{"not json", `{`},
			{"unknown type", `{"type":"unknown","event":{}}`},
			{"short channel id", `{"type":"channel_ready","event":{"channel_id":"0101"}}`},
			{"bad outpoint", fmt.Sprintf(
				`{"type":"channel_pending","event":{"channel_id":"%s","funding_txo":"x"}}`, channelHex,
			)},
			{"probe without hash", fmt.Sprintf(
				`{"type":"probe_failed","event":{"payment_id":"%s"}}`, channelHex,
			)},
			{"unknown descriptor", fmt.Sprintf(
				`{"type":"spendable_outputs","event":{"outputs":[{"kind":"x","outpoint":"%s"}]}}`,
				fundingTxo,
			)},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := decodeEvent([]byte(tt.event))
				require.Error(t, err)
			})
		}
	})
}

func TestEngine(t *testing.T) {
	var served sync.Once
	events := make(chan struct{})
	srv := newSidecar(t, map[string]rpcHandler{
		"getnodeid": static(nodePubkey),
		"nextevent": func([]json.RawMessage) (interface{}, *rpcErr) {
			var event interface{}
			served.Do(func() {
				event = json.RawMessage(`{"type":"pending_htlcs_forwardable","event":{"time_forwardable_ms":10}}`)
				close(events)
			})
			if event == nil {
				time.Sleep(10 * time.Millisecond)
			}
			return event, nil
		},
		"listchannels": static([]map[string]interface{}{{
			"channel_id":             channelHex,
			"short_channel_id":       1,
			"counterparty_node_id":   nodePubkey,
			"funding_txo":            fundingTxo,
			"channel_value_satoshis": 100000,
			"is_public":              true,
			"is_usable":              true,
		}}),
		"listrecentpayments":     static([]string{channelHex}),
		"claimfunds":             static(nil),
		"forwardinterceptedhtlc": static(nil),
		"processpendinghtlcforwards": func([]json.RawMessage) (interface{}, *rpcErr) {
			return nil, &rpcErr{-1, "channel manager busy"}
		},
	})

	ctx := context.Background()
	engine, err := NewEngine(ctx, EngineConfig{
		ConnConfig: ConnConfig{Addr: srv.addr(), User: "user", Pass: "pass"},
		PeerAddr:   "127.0.0.1:9735",
	})
	require.NoError(t, err)
	require.Equal(t, nodePubkey, engine.NodeID().String())

	<-events
	select {
	case event := <-engine.Events():
		require.Equal(t, domain.PendingHTLCsForwardable{TimeForwardable: 10 * time.Millisecond}, event)
	case <-time.After(5 * time.Second):
		t.Fatal("no event received")
	}

	channels, err := engine.ListChannels(ctx)
	require.NoError(t, err)
	require.Len(t, channels, 1)
	require.True(t, channels[0].IsPublic)
	require.Equal(t, uint64(1), channels[0].ShortChannelID.ToUint64())
	require.Equal(t, uint32(1), channels[0].FundingTxo.Index)

	payments, err := engine.ListRecentPayments(ctx)
	require.NoError(t, err)
	require.Len(t, payments, 1)

	preimage := lntypes.Preimage{9}
	require.NoError(t, engine.ClaimFunds(ctx, preimage))
	params := srv.callsOf("claimfunds")
	require.Len(t, params, 1)
	require.JSONEq(t, fmt.Sprintf("%q", preimage.String()), string(params[0][0]))

	amount := uint64(10)
	require.NoError(t, engine.ForwardInterceptedHTLC(
		ctx, domain.InterceptID{1}, lnwire.NewShortChanIDFromInt(5), mustVertex(nodePubkey), 1000, &amount,
	))
	params = srv.callsOf("forwardinterceptedhtlc")
	require.Len(t, params, 1)
	require.Equal(t, "5", string(params[0][1]))
	require.Equal(t, "10", string(params[0][4]))

	require.Error(t, engine.ProcessPendingHTLCForwards(ctx))

	engine.Close()
	_, open := <-engine.Events()
	require.False(t, open)
}

func TestWallet(t *testing.T) {
	srv := newSidecar(t, map[string]rpcHandler{
		"savenewasset": func(params []json.RawMessage) (interface{}, *rpcErr) {
			if string(params[1]) == `"known"` {
				return nil, &rpcErr{int(errCodeAssetAlreadyRegistered), "asset already registered"}
			}
			return nil, nil
		},
		"loadconsignment": static(map[string]string{"contract_id": "rgb:abc", "schema": "Nia"}),
		"gettxheight":     static(nil),
		"sendconsignment": static("Y29uc2lnbm1lbnQ="),
		"newchangescript": static("0014aa"),
	})

	ctx := context.Background()
	w, err := NewWallet(ConnConfig{Addr: srv.addr()})
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.SaveNewAsset(ctx, "Nia", "new"))
	require.ErrorIs(t, w.SaveNewAsset(ctx, "Nia", "known"), domain.ErrAssetAlreadyRegistered)

	info, err := w.LoadConsignment(ctx, []byte("consignment"))
	require.NoError(t, err)
	require.Equal(t, "rgb:abc", info.ContractID)
	require.EqualValues(t, "Nia", info.Schema)

	height, err := w.GetTxHeight(ctx, "txid")
	require.NoError(t, err)
	require.Nil(t, height)

	consignment, err := w.SendConsignment(ctx, "txid", "rgb:abc", "recipient")
	require.NoError(t, err)
	require.Equal(t, []byte("consignment"), consignment)

	script, err := w.NewChangeScript(ctx)
	require.NoError(t, err)
	require.Equal(t, []byte{0x00, 0x14, 0xaa}, script)

	// Not served by the fake sidecar.
	require.Error(t, w.Refresh(ctx))
}

func mustVertex(s string) route.Vertex {
	v, err := route.NewVertexFromStr(s)
	if err != nil {
		panic(err)
	}
	return v
}

func mustHash(s string) chainhash.Hash {
	h, err := chainhash.NewHashFromStr(s)
	if err != nil {
		panic(err)
	}
	return *h
}

func uint64Ptr(v uint64) *uint64 {
	return &v
}
