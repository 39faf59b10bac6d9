package application

import (
	"context"
	"fmt"

	"github.com/lightningnetwork/lnd/routing/route"
	"github.com/lightningnetwork/lnd/ticker"
	"github.com/rgb-ln/rlnd/internal/core/domain"
	log "github.com/sirupsen/logrus"
)

func (s *service) ConnectPeer(ctx context.Context, peerInfo string) error {
	node, addr, err := domain.ParsePeerInfo(peerInfo)
	if err != nil {
		return err
	}
	if err := s.peers.ConnectPeer(ctx, node, addr); err != nil {
		return fmt.Errorf("failed to connect to peer %s: %w", peerInfo, err)
	}
	log.Infof("connected to peer %s", peerInfo)
	return s.repoManager.PeerAddresses().Add(ctx, node, addr)
}

func (s *service) OnConnectionNeeded(_ context.Context, e domain.ConnectionNeeded) error {
	s.goDetached(func(ctx context.Context) {
		for _, addr := range e.Addresses {
			if ctx.Err() != nil {
				return
			}
			if err := s.peers.ConnectPeer(ctx, e.NodeID, addr); err != nil {
				log.WithError(err).Debugf("failed to connect to %s@%s", e.NodeID, addr)
				continue
			}
			log.Infof("connected to %s@%s", e.NodeID, addr)
			return
		}
		log.Warnf("could not reach peer %s at any of its addresses", e.NodeID)
	})
	return nil
}

// reconnectLoop keeps us connected to the counterparties of our channels.
func (s *service) reconnectLoop(ctx context.Context) {
	t := ticker.New(reconnectInterval)
	t.Resume()
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.Ticks():
			s.reconnectPeers(ctx)
		}
	}
}

func (s *service) reconnectPeers(ctx context.Context) {
	known, err := s.repoManager.PeerAddresses().GetAll(ctx)
	if err != nil {
		log.WithError(err).Warn("failed to get channel peers")
		return
	}
	if len(known) <= 0 {
		return
	}

	connected, err := s.peers.ListPeers(ctx)
	if err != nil {
		log.WithError(err).Warn("failed to list connected peers")
		return
	}
	isConnected := make(map[route.Vertex]bool, len(connected))
	for _, node := range connected {
		isConnected[node] = true
	}

	for node, addr := range known {
		if s.stopping.Load() {
			return
		}
		if isConnected[node] {
			continue
		}
		if err := s.peers.ConnectPeer(ctx, node, addr); err != nil {
			log.WithError(err).Debugf("failed to reconnect to %s@%s", node, addr)
			continue
		}
		log.Debugf("reconnected to %s@%s", node, addr)
	}
}

// announceLoop broadcasts our node announcement once we have public channels.
func (s *service) announceLoop(ctx context.Context) {
	if !s.sleep(ctx, announcementDelay) {
		return
	}
	for {
		s.announce(ctx)
		if !s.sleep(ctx, announcementInterval) {
			return
		}
	}
}

func (s *service) announce(ctx context.Context) {
	channels, err := s.engine.ListChannels(ctx)
	if err != nil {
		log.WithError(err).Warn("failed to list channels")
		return
	}
	for _, c := range channels {
		if !c.IsPublic {
			continue
		}
		if err := s.engine.BroadcastNodeAnnouncement(
			ctx, s.cfg.AnnouncedNodeName, s.cfg.AnnouncedListenAddrs,
		); err != nil {
			log.WithError(err).Warn("failed to broadcast node announcement")
			return
		}
		log.Debug("broadcasted node announcement")
		return
	}
}

// chainLoop notifies the sweeper of every new block.
func (s *service) chainLoop(ctx context.Context) {
	t := ticker.New(chainPollInterval)
	t.Resume()
	defer t.Stop()

	var lastHeight uint32
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.Ticks():
			tip, err := s.chain.BestTip(ctx)
			if err != nil {
				log.WithError(err).Debug("failed to get chain tip")
				continue
			}
			if tip.Height <= lastHeight {
				continue
			}
			lastHeight = tip.Height
			log.Debugf("new block %d (%s)", tip.Height, tip.Hash)
			s.sweeper.sweepAll(ctx)
		}
	}
}
