package application

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rgb-ln/rlnd/internal/core/ports"
	log "github.com/sirupsen/logrus"
)

type service struct {
	cfg Config

	engine      ports.LightningEngine
	peers       ports.PeerManager
	wallet      ports.AssetWallet
	colors      ports.ChannelColorSource
	chain       ports.ChainSource
	proxy       ports.ConsignmentProxy
	entropy     ports.EntropySource
	bumper      ports.BumpTransactionHandler
	repoManager ports.RepoManager
	// handoff holds the psbt and consignment files exchanged between the
	// handlers of different events.
	handoff ports.KVStore

	pool     *workerPool
	sendLock *sendLock
	spender  *coloredOutputSpender
	sweeper  *sweeper

	ctx       context.Context
	cancel    context.CancelFunc
	stopping  atomic.Bool
	stopCh    chan struct{}
	stopOnce  sync.Once
	fatalOnce sync.Once
	loopDone  chan struct{}
	wg        sync.WaitGroup

	lock       sync.Mutex
	started    bool
	listener   net.Listener
	listenPort uint16
}

// NewService wires the node. bumper may be nil, in which case fee bump
// requests are only logged.
func NewService(
	cfg Config,
	engine ports.LightningEngine, peers ports.PeerManager,
	wallet ports.AssetWallet, signer ports.OutputSigner,
	colors ports.ChannelColorSource, chain ports.ChainSource,
	proxy ports.ConsignmentProxy, entropy ports.EntropySource,
	bumper ports.BumpTransactionHandler,
	repoManager ports.RepoManager, handoff ports.KVStore,
	scheduler ports.SchedulerService,
) (Service, error) {
	if cfg.Network == nil {
		return nil, fmt.Errorf("missing network")
	}
	if len(cfg.ProxyEndpoint) <= 0 {
		return nil, fmt.Errorf("missing proxy endpoint")
	}
	if cfg.OnFatal == nil {
		cfg.OnFatal = func(err error) {
			log.WithError(err).Fatal("shutting down")
		}
	}

	pool := newWorkerPool(cfg.WorkerPoolSize)
	lock := &sendLock{}
	spender := newColoredOutputSpender(
		wallet, signer, colors, proxy, handoff, repoManager.SpendCache(),
		pool, cfg.ProxyEndpoint,
	)
	ctx, cancel := context.WithCancel(context.Background())

	svc := &service{
		cfg:         cfg,
		engine:      engine,
		peers:       peers,
		wallet:      wallet,
		colors:      colors,
		chain:       chain,
		proxy:       proxy,
		entropy:     entropy,
		bumper:      bumper,
		repoManager: repoManager,
		handoff:     handoff,
		pool:        pool,
		sendLock:    lock,
		spender:     spender,
		ctx:         ctx,
		cancel:      cancel,
		stopCh:      make(chan struct{}),
		loopDone:    make(chan struct{}),
	}
	svc.sweeper = newSweeper(
		chain, wallet, repoManager, scheduler, spender, lock, cfg.SweepInterval,
		svc.fatal,
	)
	return svc, nil
}

func (s *service) Start() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.started {
		return ErrAlreadyStarted
	}
	if s.stopping.Load() {
		return fmt.Errorf("service already stopped")
	}

	if err := s.reconcile(s.ctx); err != nil {
		return err
	}

	log.Debug("starting sweeper service")
	if err := s.sweeper.start(); err != nil {
		return fmt.Errorf("failed to start sweeper: %w", err)
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.PeerPort))
	if err != nil {
		s.sweeper.stop()
		return fmt.Errorf("failed to listen on peer port %d: %w", s.cfg.PeerPort, err)
	}
	s.listener = listener
	s.listenPort = uint16(listener.Addr().(*net.TCPAddr).Port)
	log.Infof("listening for peers on port %d", s.listenPort)

	s.wg.Add(1)
	go s.acceptLoop(listener)
	s.goDetached(s.chainLoop)
	s.goDetached(s.reconnectLoop)
	s.goDetached(s.announceLoop)
	go s.eventLoop()

	s.started = true
	log.Debug("started app service")
	return nil
}

func (s *service) Stop() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if !s.started {
		return ErrNotStarted
	}

	s.halt()

	s.peers.DisconnectAll(context.Background())
	log.Debug("disconnected peers")

	<-s.loopDone
	log.Debug("event loop exited")

	// Wake up the acceptor so that it notices the stop flag.
	if conn, err := net.DialTimeout(
		"tcp", fmt.Sprintf("127.0.0.1:%d", s.listenPort), time.Second,
	); err == nil {
		conn.Close()
	} else {
		s.listener.Close()
	}

	s.wg.Wait()
	s.sweeper.stop()
	log.Debug("stopped background tasks")

	portErr := waitPortRelease(s.listenPort)

	s.engine.Close()
	s.wallet.Close()
	log.Debug("closed connection to wallet")
	s.chain.Close()
	s.repoManager.Close()
	log.Debug("closed connection to db")
	s.handoff.Close()

	s.started = false
	return portErr
}

// halt stops event processing and cancels the background tasks.
func (s *service) halt() {
	s.stopOnce.Do(func() {
		s.stopping.Store(true)
		close(s.stopCh)
		s.cancel()
	})
}

// fatal halts the node and reports err to OnFatal, once. OnFatal runs on its
// own goroutine since it usually ends up calling Stop, which waits for the
// caller to return.
func (s *service) fatal(err error) {
	s.fatalOnce.Do(func() {
		s.halt()
		go s.cfg.OnFatal(err)
	})
}

func (s *service) GetInfo(ctx context.Context) (*ServiceInfo, error) {
	channels, err := s.engine.ListChannels(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list channels: %w", err)
	}
	peers, err := s.peers.ListPeers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list peers: %w", err)
	}
	tracked, err := s.repoManager.TrackedOutputs().GetAll(ctx)
	if err != nil {
		return nil, err
	}

	port := s.cfg.PeerPort
	s.lock.Lock()
	if s.started {
		port = s.listenPort
	}
	s.lock.Unlock()

	return &ServiceInfo{
		NodeID:         s.engine.NodeID(),
		Network:        s.cfg.Network.Name,
		PeerPort:       port,
		NumChannels:    len(channels),
		NumPeers:       len(peers),
		SendLocked:     s.sendLock.isLocked(),
		TrackedOutputs: len(tracked),
	}, nil
}

// reconcile fails the outbound payments left pending by a previous run that
// the engine doesn't know about anymore.
func (s *service) reconcile(ctx context.Context) error {
	recent, err := s.engine.ListRecentPayments(ctx)
	if err != nil {
		return fmt.Errorf("failed to list recent payments: %w", err)
	}
	failed, err := s.repoManager.OutboundPayments().FailPendingExcept(ctx, recent)
	if err != nil {
		return err
	}
	if len(failed) > 0 {
		log.Infof("marked %d stale outbound payments as failed", len(failed))
	}
	return nil
}

func (s *service) acceptLoop(listener net.Listener) {
	defer s.wg.Done()
	defer listener.Close()

	for {
		conn, err := listener.Accept()
		if s.stopping.Load() {
			if conn != nil {
				conn.Close()
			}
			return
		}
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.WithError(err).Warn("failed to accept peer connection")
			continue
		}
		s.peers.SetupInbound(conn)
	}
}

func waitPortRelease(port uint16) error {
	addr := fmt.Sprintf(":%d", port)
	deadline := time.Now().Add(portReleaseTimeout)
	for {
		listener, err := net.Listen("tcp", addr)
		if err == nil {
			listener.Close()
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: %d", ErrPortNotReleased, port)
		}
		time.Sleep(portReleasePoll)
	}
}
