package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/rgb-ln/rlnd/internal/core/application"
	"github.com/rgb-ln/rlnd/internal/core/ports"
	bitcoindchain "github.com/rgb-ln/rlnd/internal/infrastructure/chain/bitcoind"
	"github.com/rgb-ln/rlnd/internal/infrastructure/colorsource"
	"github.com/rgb-ln/rlnd/internal/infrastructure/db"
	filedb "github.com/rgb-ln/rlnd/internal/infrastructure/db/file"
	"github.com/rgb-ln/rlnd/internal/infrastructure/keystore"
	"github.com/rgb-ln/rlnd/internal/infrastructure/rpcbridge"
	timescheduler "github.com/rgb-ln/rlnd/internal/infrastructure/scheduler/gocron"
	"github.com/rgb-ln/rlnd/internal/infrastructure/transport/proxy"
	envunlocker "github.com/rgb-ln/rlnd/internal/infrastructure/unlocker/env"
	fileunlocker "github.com/rgb-ln/rlnd/internal/infrastructure/unlocker/file"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

var (
	supportedDbs = supportedType{
		"file":   {},
		"badger": {},
		"sqlite": {},
	}
	supportedSchedulers = supportedType{
		"gocron": {},
	}
	supportedUnlockers = supportedType{
		"env":  {},
		"file": {},
	}
	supportedNetworks = map[string]*chaincfg.Params{
		"mainnet": &chaincfg.MainNetParams,
		"testnet": &chaincfg.TestNet3Params,
		"signet":  &chaincfg.SigNetParams,
		"regtest": &chaincfg.RegressionNetParams,
	}
)

type Config struct {
	Datadir       string
	EngineDatadir string
	LogLevel      int
	Network       string

	DbType string
	DbDir  string

	PeerPort             uint16
	AnnouncedNodeName    string
	AnnouncedListenAddrs []string
	ProxyEndpoint        string

	BitcoindRpcHost string
	BitcoindRpcUser string
	BitcoindRpcPass string

	EngineAddr     string
	EngineRpcUser  string
	EngineRpcPass  string
	EnginePeerAddr string
	WalletAddr     string
	WalletRpcUser  string
	WalletRpcPass  string

	SchedulerType  string
	SweepInterval  int64
	WorkerPoolSize int64

	UnlockerType     string
	UnlockerFilePath string // file unlocker
	UnlockerPassword string // env unlocker

	network   *chaincfg.Params
	repo      ports.RepoManager
	handoff   ports.KVStore
	colors    ports.ChannelColorSource
	proxy     ports.ConsignmentProxy
	scheduler ports.SchedulerService
	unlocker  ports.Unlocker
	keystore  *keystore.Store
	svc       application.Service
}

func (c *Config) String() string {
	clone := *c
	if clone.UnlockerPassword != "" {
		clone.UnlockerPassword = "••••••"
	}
	if clone.BitcoindRpcPass != "" {
		clone.BitcoindRpcPass = "••••••"
	}
	json, err := json.MarshalIndent(clone, "", "  ")
	if err != nil {
		return fmt.Sprintf("error while marshalling config JSON: %s", err)
	}
	return string(json)
}

var (
	Datadir              = "DATADIR"
	EngineDatadir        = "ENGINE_DATADIR"
	LogLevel             = "LOG_LEVEL"
	Network              = "NETWORK"
	DbType               = "DB_TYPE"
	PeerPort             = "PEER_PORT"
	AnnouncedNodeName    = "ANNOUNCED_NODE_NAME"
	AnnouncedListenAddr  = "ANNOUNCED_LISTEN_ADDR"
	ProxyEndpoint        = "PROXY_ENDPOINT"
	BitcoindRpcHost      = "BITCOIND_RPC_HOST"
	BitcoindRpcUser      = "BITCOIND_RPC_USER"
	BitcoindRpcPass      = "BITCOIND_RPC_PASS"
	EngineAddr           = "ENGINE_ADDR"
	EngineRpcUser        = "ENGINE_RPC_USER"
	EngineRpcPass        = "ENGINE_RPC_PASS"
	EnginePeerAddr       = "ENGINE_PEER_ADDR"
	WalletAddr           = "WALLET_ADDR"
	WalletRpcUser        = "WALLET_RPC_USER"
	WalletRpcPass        = "WALLET_RPC_PASS"
	SchedulerType        = "SCHEDULER_TYPE"
	SweepInterval        = "SWEEP_INTERVAL"
	WorkerPoolSize       = "WORKER_POOL_SIZE"
	UnlockerType         = "UNLOCKER_TYPE"
	UnlockerFilePath     = "UNLOCKER_FILE_PATH"
	UnlockerPassword     = "UNLOCKER_PASSWORD"
	defaultDatadir       = btcutil.AppDataDir("rlnd", false)
	defaultLogLevel      = 4
	defaultNetwork       = "regtest"
	defaultDbType        = "badger"
	DefaultPeerPort      = 9735
	defaultNodeName      = "rlnd"
	defaultSchedulerType = "gocron"
	defaultSweepInterval = 60
	defaultWorkerPool    = 4
)

func LoadConfig() (*Config, error) {
	viper.SetEnvPrefix("RLN")
	viper.AutomaticEnv()

	viper.SetDefault(Datadir, defaultDatadir)
	viper.SetDefault(LogLevel, defaultLogLevel)
	viper.SetDefault(Network, defaultNetwork)
	viper.SetDefault(DbType, defaultDbType)
	viper.SetDefault(PeerPort, DefaultPeerPort)
	viper.SetDefault(AnnouncedNodeName, defaultNodeName)
	viper.SetDefault(SchedulerType, defaultSchedulerType)
	viper.SetDefault(SweepInterval, defaultSweepInterval)
	viper.SetDefault(WorkerPoolSize, defaultWorkerPool)

	if err := initDatadir(); err != nil {
		return nil, fmt.Errorf("error while creating datadir: %s", err)
	}

	datadir := viper.GetString(Datadir)
	engineDatadir := viper.GetString(EngineDatadir)
	if engineDatadir == "" {
		engineDatadir = filepath.Join(datadir, "engine")
	}

	return &Config{
		Datadir:              datadir,
		EngineDatadir:        engineDatadir,
		LogLevel:             viper.GetInt(LogLevel),
		Network:              viper.GetString(Network),
		DbType:               viper.GetString(DbType),
		DbDir:                filepath.Join(datadir, "db"),
		PeerPort:             uint16(viper.GetUint32(PeerPort)),
		AnnouncedNodeName:    viper.GetString(AnnouncedNodeName),
		AnnouncedListenAddrs: viper.GetStringSlice(AnnouncedListenAddr),
		ProxyEndpoint:        viper.GetString(ProxyEndpoint),
		BitcoindRpcHost:      viper.GetString(BitcoindRpcHost),
		BitcoindRpcUser:      viper.GetString(BitcoindRpcUser),
		BitcoindRpcPass:      viper.GetString(BitcoindRpcPass),
		EngineAddr:           viper.GetString(EngineAddr),
		EngineRpcUser:        viper.GetString(EngineRpcUser),
		EngineRpcPass:        viper.GetString(EngineRpcPass),
		EnginePeerAddr:       viper.GetString(EnginePeerAddr),
		WalletAddr:           viper.GetString(WalletAddr),
		WalletRpcUser:        viper.GetString(WalletRpcUser),
		WalletRpcPass:        viper.GetString(WalletRpcPass),
		SchedulerType:        viper.GetString(SchedulerType),
		SweepInterval:        viper.GetInt64(SweepInterval),
		WorkerPoolSize:       viper.GetInt64(WorkerPoolSize),
		UnlockerType:         viper.GetString(UnlockerType),
		UnlockerFilePath:     viper.GetString(UnlockerFilePath),
		UnlockerPassword:     viper.GetString(UnlockerPassword),
	}, nil
}

func initDatadir() error {
	datadir := viper.GetString(Datadir)
	return makeDirectoryIfNotExists(datadir)
}

func makeDirectoryIfNotExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, os.ModeDir|0755)
	}
	return nil
}

// Validate checks the config and builds every service that does not need
// the sidecars to be running.
func (c *Config) Validate() error {
	network, ok := supportedNetworks[c.Network]
	if !ok {
		return fmt.Errorf("network not supported, please select one of: %s", supportedNetworkNames())
	}
	c.network = network

	if !supportedDbs.supports(c.DbType) {
		return fmt.Errorf("db type not supported, please select one of: %s", supportedDbs)
	}
	if !supportedSchedulers.supports(c.SchedulerType) {
		return fmt.Errorf("scheduler type not supported, please select one of: %s", supportedSchedulers)
	}
	if len(c.UnlockerType) > 0 && !supportedUnlockers.supports(c.UnlockerType) {
		return fmt.Errorf("unlocker type not supported, please select one of: %s", supportedUnlockers)
	}
	if c.SweepInterval < 1 {
		return fmt.Errorf("invalid sweep interval, must be at least 1 second")
	}
	if c.WorkerPoolSize < 1 {
		return fmt.Errorf("invalid worker pool size, must be at least 1")
	}
	if len(c.ProxyEndpoint) <= 0 {
		switch c.Network {
		case "regtest":
			c.ProxyEndpoint = application.RegtestProxyEndpoint
		case "testnet":
			c.ProxyEndpoint = application.TestnetProxyEndpoint
		default:
			return fmt.Errorf("missing proxy endpoint for network %s", c.Network)
		}
		log.Debugf("using default proxy endpoint %s", c.ProxyEndpoint)
	}

	if err := c.repoManager(); err != nil {
		return err
	}
	if err := c.handoffStore(); err != nil {
		return err
	}
	c.colors = colorsource.NewService(c.handoff)
	c.proxy = proxy.NewClient(0)
	if err := c.schedulerService(); err != nil {
		return err
	}
	if err := c.unlockerService(); err != nil {
		return err
	}
	c.keystore = keystore.NewStore(c.Datadir)
	return nil
}

// AppService connects to the sidecars, unlocks the node and builds the
// application service. The result is cached.
func (c *Config) AppService(ctx context.Context) (application.Service, error) {
	if c.svc == nil {
		if err := c.appService(ctx); err != nil {
			return nil, err
		}
	}
	return c.svc, nil
}

func (c *Config) RepoManager() ports.RepoManager {
	return c.repo
}

func (c *Config) Keystore() *keystore.Store {
	return c.keystore
}

func (c *Config) UnlockerService() ports.Unlocker {
	return c.unlocker
}

func (c *Config) repoManager() error {
	var dataStoreConfig []interface{}
	logger := log.New()

	switch c.DbType {
	case "badger":
		dataStoreConfig = []interface{}{c.DbDir, logger}
	case "sqlite", "file":
		dataStoreConfig = []interface{}{c.DbDir}
	default:
		return fmt.Errorf("unknown db type")
	}

	svc, err := db.NewService(db.ServiceConfig{
		DataStoreType:   c.DbType,
		DataStoreConfig: dataStoreConfig,
	})
	if err != nil {
		return err
	}

	c.repo = svc
	return nil
}

// handoffStore is shared with the engine: funding psbts, consignments and
// asset allocations are exchanged as files in its data dir.
func (c *Config) handoffStore() error {
	store, err := filedb.NewStore(c.EngineDatadir)
	if err != nil {
		return fmt.Errorf("failed to open engine data dir: %w", err)
	}
	c.handoff = store
	return nil
}

func (c *Config) schedulerService() error {
	var svc ports.SchedulerService
	var err error
	switch c.SchedulerType {
	case "gocron":
		svc = timescheduler.NewScheduler()
	default:
		err = fmt.Errorf("unknown scheduler type")
	}
	if err != nil {
		return err
	}

	c.scheduler = svc
	return nil
}

func (c *Config) unlockerService() error {
	if len(c.UnlockerType) <= 0 {
		return nil
	}

	var svc ports.Unlocker
	var err error
	switch c.UnlockerType {
	case "file":
		svc, err = fileunlocker.NewService(c.UnlockerFilePath)
	case "env":
		svc, err = envunlocker.NewService(c.UnlockerPassword)
	default:
		err = fmt.Errorf("unknown unlocker type")
	}
	if err != nil {
		return err
	}
	c.unlocker = svc
	return nil
}

func (c *Config) entropySource(ctx context.Context) (ports.EntropySource, error) {
	if !c.keystore.IsInitialized() {
		return nil, fmt.Errorf("%w, run the init command first", keystore.ErrNotInitialized)
	}
	if c.unlocker == nil {
		log.Warn("no unlocker configured, node seed left out of the entropy source")
		return keystore.NewEntropySource(nil), nil
	}

	password, err := c.unlocker.GetPassword(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get password: %s", err)
	}
	seed, err := c.keystore.Seed(password)
	if err != nil {
		return nil, fmt.Errorf("failed to unlock node: %w", err)
	}
	return keystore.NewEntropySource(seed), nil
}

func (c *Config) appService(ctx context.Context) error {
	entropy, err := c.entropySource(ctx)
	if err != nil {
		return err
	}

	chain, err := bitcoindchain.NewService(bitcoindchain.Config{
		Host: c.BitcoindRpcHost,
		User: c.BitcoindRpcUser,
		Pass: c.BitcoindRpcPass,
	})
	if err != nil {
		return err
	}

	engine, err := rpcbridge.NewEngine(ctx, rpcbridge.EngineConfig{
		ConnConfig: rpcbridge.ConnConfig{
			Addr: c.EngineAddr,
			User: c.EngineRpcUser,
			Pass: c.EngineRpcPass,
		},
		PeerAddr: c.EnginePeerAddr,
	})
	if err != nil {
		chain.Close()
		return err
	}

	wallet, err := rpcbridge.NewWallet(rpcbridge.ConnConfig{
		Addr: c.WalletAddr,
		User: c.WalletRpcUser,
		Pass: c.WalletRpcPass,
	})
	if err != nil {
		chain.Close()
		engine.Close()
		return err
	}

	svc, err := application.NewService(
		application.Config{
			Network:              c.network,
			PeerPort:             c.PeerPort,
			AnnouncedNodeName:    c.AnnouncedNodeName,
			AnnouncedListenAddrs: c.AnnouncedListenAddrs,
			ProxyEndpoint:        c.ProxyEndpoint,
			SweepInterval:        c.SweepInterval,
			WorkerPoolSize:       c.WorkerPoolSize,
		},
		engine, engine, wallet, engine, c.colors, chain, c.proxy, entropy, engine,
		c.repo, c.handoff, c.scheduler,
	)
	if err != nil {
		chain.Close()
		engine.Close()
		wallet.Close()
		return err
	}

	c.svc = svc
	return nil
}

type supportedType map[string]struct{}

func (t supportedType) String() string {
	types := make([]string, 0, len(t))
	for tt := range t {
		types = append(types, tt)
	}
	return strings.Join(types, " | ")
}

func (t supportedType) supports(typeStr string) bool {
	_, ok := t[typeStr]
	return ok
}

func supportedNetworkNames() string {
	names := make([]string, 0, len(supportedNetworks))
	for name := range supportedNetworks {
		names = append(names, name)
	}
	return strings.Join(names, " | ")
}
