package bitcoindchain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/btcsuite/btcd/wire"
	"github.com/rgb-ln/rlnd/internal/core/ports"
	log "github.com/sirupsen/logrus"
)

type Config struct {
	Host string
	User string
	Pass string
}

type service struct {
	client *rpcclient.Client
}

func NewService(cfg Config) (ports.ChainSource, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("missing bitcoind rpc host")
	}

	client, err := rpcclient.New(&rpcclient.ConnConfig{
		Host:         cfg.Host,
		User:         cfg.User,
		Pass:         cfg.Pass,
		HTTPPostMode: true,
		DisableTLS:   true,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create bitcoind client: %w", err)
	}
	return &service{client}, nil
}

func (s *service) BestTip(_ context.Context) (*ports.BlockTip, error) {
	hash, height, err := s.client.GetBestBlock()
	if err != nil {
		return nil, err
	}
	return &ports.BlockTip{Height: uint32(height), Hash: *hash}, nil
}

func (s *service) Broadcast(_ context.Context, tx *wire.MsgTx) error {
	if _, err := s.client.SendRawTransaction(tx, true); err != nil {
		if isAlreadyKnown(err) {
			log.Debugf("tx %s already known to bitcoind", tx.TxHash())
			return nil
		}
		return err
	}
	return nil
}

func (s *service) Confirmations(_ context.Context, txid chainhash.Hash) (uint32, error) {
	tx, err := s.client.GetRawTransactionVerbose(&txid)
	if err != nil {
		var rpcErr *btcjson.RPCError
		if errors.As(err, &rpcErr) &&
			rpcErr.Code == btcjson.ErrRPCNoTxInfo {
			return 0, nil
		}
		if strings.Contains(err.Error(), "No such mempool or blockchain transaction") {
			return 0, nil
		}
		return 0, err
	}
	return uint32(tx.Confirmations), nil
}

func (s *service) Close() {
	s.client.Shutdown()
}

func isAlreadyKnown(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "already in block chain") ||
		strings.Contains(msg, "txn-already-in-mempool") ||
		strings.Contains(msg, "txn-already-known")
}
