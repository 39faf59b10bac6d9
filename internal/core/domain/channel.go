package domain

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/lnwire"
	"github.com/lightningnetwork/lnd/routing/route"
)

// UserChannelID is the local handle chosen for a channel at open time.
type UserChannelID [16]byte

func (id UserChannelID) String() string {
	return hex.EncodeToString(id[:])
}

// InterceptID identifies an HTLC held by the engine until we forward or fail it.
type InterceptID [32]byte

func (id InterceptID) String() string {
	return hex.EncodeToString(id[:])
}

type ChannelDetails struct {
	ChannelID      lnwire.ChannelID
	ShortChannelID *lnwire.ShortChannelID
	Counterparty   route.Vertex
	FundingTxo     *wire.OutPoint
	CapacitySat    uint64
	IsPublic       bool
	IsUsable       bool
}

// RgbChannelInfo is the asset allocation of a colored channel.
type RgbChannelInfo struct {
	ContractID   string
	LocalAmount  uint64
	RemoteAmount uint64
}

// TransferInfo is the asset allocation recorded for the outputs of a
// commitment or closing transaction.
type TransferInfo struct {
	ContractID string
	Amount     uint64
}

type ChannelIDs struct {
	Temporary lnwire.ChannelID
	Final     lnwire.ChannelID
}

// ParsePeerInfo splits a "pubkey@host:port" string.
func ParsePeerInfo(s string) (route.Vertex, string, error) {
	pubkey, addr, ok := strings.Cut(s, "@")
	if !ok || addr == "" {
		return route.Vertex{}, "", fmt.Errorf("invalid peer info %q: expected pubkey@host:port", s)
	}
	buf, err := hex.DecodeString(pubkey)
	if err != nil {
		return route.Vertex{}, "", fmt.Errorf("invalid peer pubkey %q: %w", pubkey, err)
	}
	key, err := btcec.ParsePubKey(buf)
	if err != nil {
		return route.Vertex{}, "", fmt.Errorf("invalid peer pubkey %q: %w", pubkey, err)
	}
	return route.NewVertex(key), addr, nil
}
