package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rgb-ln/rlnd/internal/config"
	"github.com/rgb-ln/rlnd/internal/core/domain"
	"github.com/rgb-ln/rlnd/internal/core/ports"
	"github.com/urfave/cli/v2"
)

// flags
var (
	passwordFlag = &cli.StringFlag{
		Name:     "password",
		Usage:    "password used to encrypt the node mnemonic",
		Required: true,
	}
	peerFlag = &cli.StringFlag{
		Name:     "peer",
		Usage:    "peer to connect to, in the form pubkey@host:port",
		Required: true,
	}
)

// commands
var (
	startCmd = &cli.Command{
		Name:   "start",
		Usage:  "Start the node",
		Action: startAction,
	}
	initCmd = &cli.Command{
		Name:   "init",
		Usage:  "Generate and store the node mnemonic",
		Action: initAction,
		Flags:  []cli.Flag{passwordFlag},
	}
	addPeerCmd = &cli.Command{
		Name:   "add-peer",
		Usage:  "Store a peer address, the node connects to it at next start",
		Action: addPeerAction,
		Flags:  []cli.Flag{peerFlag},
	}
	paymentsCmd = &cli.Command{
		Name:   "payments",
		Usage:  "List inbound and outbound payments",
		Action: paymentsAction,
	}
	swapsCmd = &cli.Command{
		Name:   "swaps",
		Usage:  "List maker and taker swaps",
		Action: swapsAction,
	}
	channelIDsCmd = &cli.Command{
		Name:   "channel-ids",
		Usage:  "List the mapping of temporary to final channel ids",
		Action: channelIDsAction,
	}
)

func initAction(ctx *cli.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer cfg.RepoManager().Close()

	mnemonic, err := cfg.Keystore().Init(ctx.String(passwordFlag.Name))
	if err != nil {
		return err
	}

	return printJSON(map[string]string{
		"mnemonic": mnemonic,
	})
}

func addPeerAction(ctx *cli.Context) error {
	node, addr, err := domain.ParsePeerInfo(ctx.String(peerFlag.Name))
	if err != nil {
		return err
	}

	repo, err := openRepo()
	if err != nil {
		return err
	}
	defer repo.Close()

	return repo.PeerAddresses().Add(ctx.Context, node, addr)
}

type payment struct {
	Status     string  `json:"status"`
	AmountMsat *uint64 `json:"amount_msat,omitempty"`
	Preimage   string  `json:"preimage,omitempty"`
}

func newPayment(info domain.PaymentInfo) payment {
	p := payment{
		Status:     info.Status.String(),
		AmountMsat: info.AmountMsat,
	}
	if info.Preimage != nil {
		p.Preimage = info.Preimage.String()
	}
	return p
}

func paymentsAction(ctx *cli.Context) error {
	repo, err := openRepo()
	if err != nil {
		return err
	}
	defer repo.Close()

	inbound, err := repo.InboundPayments().GetAll(ctx.Context)
	if err != nil {
		return err
	}
	outbound, err := repo.OutboundPayments().GetAll(ctx.Context)
	if err != nil {
		return err
	}

	res := map[string]map[string]payment{
		"inbound":  make(map[string]payment, len(inbound)),
		"outbound": make(map[string]payment, len(outbound)),
	}
	for hash, info := range inbound {
		res["inbound"][hash.String()] = newPayment(info)
	}
	for id, info := range outbound {
		res["outbound"][id.String()] = newPayment(info)
	}
	return printJSON(res)
}

type swap struct {
	FromAsset   string     `json:"from_asset"`
	ToAsset     string     `json:"to_asset"`
	QtyFrom     uint64     `json:"qty_from"`
	QtyTo       uint64     `json:"qty_to"`
	Status      string     `json:"status"`
	InitiatedAt *time.Time `json:"initiated_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func newSwap(data domain.SwapData) swap {
	asset := func(a *string) string {
		if a == nil {
			return "BTC"
		}
		return *a
	}
	return swap{
		FromAsset:   asset(data.Info.FromAsset),
		ToAsset:     asset(data.Info.ToAsset),
		QtyFrom:     data.Info.QtyFrom,
		QtyTo:       data.Info.QtyTo,
		Status:      data.Status.String(),
		InitiatedAt: data.InitiatedAt,
		CompletedAt: data.CompletedAt,
	}
}

func swapsAction(ctx *cli.Context) error {
	repo, err := openRepo()
	if err != nil {
		return err
	}
	defer repo.Close()

	res := make(map[string]map[string]swap)
	for kind, swaps := range map[string]domain.SwapRepository{
		"maker": repo.MakerSwaps(),
		"taker": repo.TakerSwaps(),
	} {
		all, err := swaps.GetAll(ctx.Context)
		if err != nil {
			return err
		}
		res[kind] = make(map[string]swap, len(all))
		for hash, data := range all {
			res[kind][hash.String()] = newSwap(data)
		}
	}
	return printJSON(res)
}

func channelIDsAction(ctx *cli.Context) error {
	repo, err := openRepo()
	if err != nil {
		return err
	}
	defer repo.Close()

	ids, err := repo.ChannelIDs().GetAll(ctx.Context)
	if err != nil {
		return err
	}

	res := make(map[string]string, len(ids))
	for _, id := range ids {
		res[id.Temporary.String()] = id.Final.String()
	}
	return printJSON(res)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("invalid config: %s", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %s", err)
	}
	return cfg, nil
}

// openRepo opens the node db. It fails with badger while the node is
// running since the db directory is locked.
func openRepo() (ports.RepoManager, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return cfg.RepoManager(), nil
}

func printJSON(resp interface{}) error {
	jsonBytes, err := json.MarshalIndent(resp, "", "\t")
	if err != nil {
		return err
	}
	fmt.Println(string(jsonBytes))
	return nil
}
