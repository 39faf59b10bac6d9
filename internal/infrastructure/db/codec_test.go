package db

import (
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/rgb-ln/rlnd/internal/core/domain"
	"github.com/stretchr/testify/require"
)

func TestMapEncodingIsDeterministic(t *testing.T) {
	amount := uint64(42)
	payments := map[lntypes.Hash]domain.PaymentInfo{}
	for i := byte(0); i < 20; i++ {
		payments[lntypes.Hash{i}] = domain.PaymentInfo{
			Status:     domain.HTLCStatus(i % 3),
			AmountMsat: &amount,
		}
	}

	first, err := inboundPaymentsCodec.encode(payments)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		buf, err := inboundPaymentsCodec.encode(payments)
		require.NoError(t, err)
		require.Equal(t, first, buf)
	}

	decoded, err := inboundPaymentsCodec.decode(first)
	require.NoError(t, err)
	require.Equal(t, payments, decoded)
}

func TestSwapEncoding(t *testing.T) {
	asset := "rgb:asset"
	initiatedAt := time.Unix(1700000000, 0)
	swap := domain.SwapData{
		Info:        domain.SwapInfo{FromAsset: &asset, QtyFrom: 10, QtyTo: 20},
		Status:      domain.SwapStatusPending,
		InitiatedAt: &initiatedAt,
	}

	buf, err := encodeSwapData(swap)
	require.NoError(t, err)
	got, err := decodeSwapData(buf)
	require.NoError(t, err)
	require.Equal(t, asset, *got.Info.FromAsset)
	require.Nil(t, got.Info.ToAsset)
	require.Equal(t, swap.Info.QtyFrom, got.Info.QtyFrom)
	require.Equal(t, swap.Info.QtyTo, got.Info.QtyTo)
	require.Equal(t, swap.Status, got.Status)
	require.True(t, initiatedAt.Equal(*got.InitiatedAt))
	require.Nil(t, got.CompletedAt)
}

func TestMapDecodingErrors(t *testing.T) {
	tests := []struct {
		name string
		buf  []byte
	}{
		{"empty", []byte{}},
		{"count larger than buffer", []byte{0xfd, 0xff, 0xff}},
		{"truncated key", []byte{0x01, 0x20, 0x01}},
		{"bad key length", []byte{0x01, 0x01, 0x00, 0x00}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := swapsCodec.decode(tt.buf)
			require.Error(t, err)
		})
	}
}

func TestPeerCodec(t *testing.T) {
	buf := []byte(
		"0279be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798@127.0.0.1:9735\n" +
			"\n" +
			"02c6047f9441ed7d6d3045406e95c07cd85c778e4b8cef3ca7abac09b95c709ee5@localhost:9736\n",
	)
	peers, err := peerCodec{}.decode(buf)
	require.NoError(t, err)
	require.Len(t, peers, 2)

	encoded, err := peerCodec{}.encode(peers)
	require.NoError(t, err)
	decoded, err := peerCodec{}.decode(encoded)
	require.NoError(t, err)
	require.Equal(t, peers, decoded)

	_, err = peerCodec{}.decode([]byte("not-a-peer\n"))
	require.Error(t, err)
}
