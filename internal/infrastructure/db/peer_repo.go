package db

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/lightningnetwork/lnd/routing/route"
	"github.com/rgb-ln/rlnd/internal/core/domain"
	"github.com/rgb-ln/rlnd/internal/core/ports"
)

const peerAddressesKey = "channel_peer_data"

// peerCodec stores one "pubkey@host:port" line per peer.
type peerCodec struct{}

func (peerCodec) encode(peers map[route.Vertex]string) ([]byte, error) {
	lines := make([]string, 0, len(peers))
	for node, addr := range peers {
		lines = append(lines, fmt.Sprintf("%s@%s", node, addr))
	}
	sort.Strings(lines)

	var buf bytes.Buffer
	for _, line := range lines {
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

func (peerCodec) decode(buf []byte) (map[route.Vertex]string, error) {
	peers := make(map[route.Vertex]string)
	scanner := bufio.NewScanner(bytes.NewReader(buf))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		node, addr, err := domain.ParsePeerInfo(line)
		if err != nil {
			return nil, err
		}
		peers[node] = addr
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return peers, nil
}

type peerAddressRepository struct {
	ledger *ledger[route.Vertex, string]
}

func NewPeerAddressRepository(store ports.KVStore) domain.PeerAddressRepository {
	peers := newLedger[route.Vertex, string](store, peerAddressesKey, peerCodec{})
	return &peerAddressRepository{peers}
}

func (r *peerAddressRepository) GetAll(ctx context.Context) (map[route.Vertex]string, error) {
	return r.ledger.view(ctx)
}

func (r *peerAddressRepository) Add(ctx context.Context, node route.Vertex, addr string) error {
	return r.ledger.update(ctx, func(peers map[route.Vertex]string) error {
		peers[node] = addr
		return nil
	})
}
