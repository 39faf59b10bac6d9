package domain_test

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/rgb-ln/rlnd/internal/core/domain"
	"github.com/stretchr/testify/require"
)

func testDescriptors() []domain.SpendableOutputDescriptor {
	return []domain.SpendableOutputDescriptor{
		{
			Kind:     domain.StaticPaymentOutput,
			Outpoint: wire.OutPoint{Hash: chainhash.Hash{1}, Index: 0},
			Output:   wire.TxOut{Value: 1000, PkScript: []byte{0x00, 0x14, 0x01}},
			Opaque:   []byte{0xaa},
		},
		{
			Kind:     domain.DelayedPaymentOutput,
			Outpoint: wire.OutPoint{Hash: chainhash.Hash{2}, Index: 1},
			Output:   wire.TxOut{Value: 2000, PkScript: []byte{0x00, 0x20, 0x02}},
		},
	}
}

func TestDescriptorSerialization(t *testing.T) {
	for _, d := range testDescriptors() {
		var buf bytes.Buffer
		require.NoError(t, d.Serialize(&buf))

		got, err := domain.DeserializeDescriptor(&buf)
		require.NoError(t, err)
		require.Equal(t, d.Kind, got.Kind)
		require.Equal(t, d.Outpoint, got.Outpoint)
		require.Equal(t, d.Output, got.Output)
		require.Equal(t, len(d.Opaque), len(got.Opaque))
	}
}

func TestDescriptorSetHash(t *testing.T) {
	descriptors := testDescriptors()

	h1, err := domain.DescriptorSetHash(descriptors)
	require.NoError(t, err)
	h2, err := domain.DescriptorSetHash(testDescriptors())
	require.NoError(t, err)
	require.Equal(t, h1, h2)

	reversed := []domain.SpendableOutputDescriptor{descriptors[1], descriptors[0]}
	h3, err := domain.DescriptorSetHash(reversed)
	require.NoError(t, err)
	require.NotEqual(t, h1, h3)

	h4, err := domain.DescriptorSetHash(descriptors[:1])
	require.NoError(t, err)
	require.NotEqual(t, h1, h4)
}
