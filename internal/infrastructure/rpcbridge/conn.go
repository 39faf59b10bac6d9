package rpcbridge

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/btcsuite/btcd/wire"
)

// Error codes the sidecars use for conditions the node reacts to.
const (
	errCodeAssetAlreadyRegistered btcjson.RPCErrorCode = -32010
)

type ConnConfig struct {
	Addr string
	User string
	Pass string
}

type conn struct {
	name   string
	client *rpcclient.Client
}

func dial(name string, cfg ConnConfig) (*conn, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("missing %s rpc address", name)
	}
	client, err := rpcclient.New(&rpcclient.ConnConfig{
		Host:         cfg.Addr,
		User:         cfg.User,
		Pass:         cfg.Pass,
		HTTPPostMode: true,
		DisableTLS:   true,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s rpc client: %w", name, err)
	}
	return &conn{name, client}, nil
}

// call sends a raw request and decodes the reply into result, if any. The
// request keeps running in background if ctx is done first.
func (c *conn) call(
	ctx context.Context, method string, result interface{}, params ...interface{},
) error {
	rawParams := make([]json.RawMessage, 0, len(params))
	for _, p := range params {
		buf, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("failed to encode %s params: %w", method, err)
		}
		rawParams = append(rawParams, buf)
	}

	type reply struct {
		buf json.RawMessage
		err error
	}
	replies := make(chan reply, 1)
	go func() {
		buf, err := c.client.RawRequest(method, rawParams)
		replies <- reply{buf, err}
	}()

	var r reply
	select {
	case <-ctx.Done():
		return ctx.Err()
	case r = <-replies:
	}
	if r.err != nil {
		return fmt.Errorf("%s %s: %w", c.name, method, r.err)
	}
	if result == nil || len(r.buf) == 0 || bytes.Equal(r.buf, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(r.buf, result); err != nil {
		return fmt.Errorf("malformed %s reply: %w", method, err)
	}
	return nil
}

func (c *conn) close() {
	c.client.Shutdown()
}

func hasErrorCode(err error, code btcjson.RPCErrorCode) bool {
	var rpcErr *btcjson.RPCError
	return errors.As(err, &rpcErr) && rpcErr.Code == code
}

func encodeTx(tx *wire.MsgTx) (string, error) {
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf.Bytes()), nil
}

func decodeTx(s string) (*wire.MsgTx, error) {
	buf, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	tx := wire.NewMsgTx(wire.TxVersion)
	if err := tx.Deserialize(bytes.NewReader(buf)); err != nil {
		return nil, fmt.Errorf("malformed tx: %w", err)
	}
	return tx, nil
}
