package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rgb-ln/rlnd/internal/core/ports"
	log "github.com/sirupsen/logrus"
)

const (
	jsonRPCVersion        = "2.0"
	methodConsignmentPost = "consignment.post"
	defaultTimeout        = 30 * time.Second
)

type postParams struct {
	RecipientID string  `json:"recipient_id"`
	Txid        string  `json:"txid"`
	Vout        *uint32 `json:"vout,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type client struct {
	http *http.Client
}

// NewClient returns a consignment transport speaking the proxy JSON-RPC
// protocol over HTTP multipart requests.
func NewClient(timeout time.Duration) ports.ConsignmentProxy {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &client{&http.Client{Timeout: timeout}}
}

func (c *client) PostConsignment(
	ctx context.Context, endpoint, recipientID, txid string, vout *uint32,
	consignment []byte,
) error {
	url, err := endpointURL(endpoint)
	if err != nil {
		return err
	}

	params, err := json.Marshal(postParams{recipientID, txid, vout})
	if err != nil {
		return err
	}
	id := uuid.New().String()

	body := &bytes.Buffer{}
	form := multipart.NewWriter(body)
	fields := [][2]string{
		{"jsonrpc", jsonRPCVersion},
		{"id", id},
		{"method", methodConsignmentPost},
		{"params", string(params)},
	}
	for _, f := range fields {
		if err := form.WriteField(f[0], f[1]); err != nil {
			return err
		}
	}
	file, err := form.CreateFormFile("file", fmt.Sprintf("consignment_%s", txid))
	if err != nil {
		return err
	}
	if _, err := file.Write(consignment); err != nil {
		return err
	}
	if err := form.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach proxy: %w", err)
	}
	defer resp.Body.Close()

	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read proxy response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("proxy replied with status %d: %s", resp.StatusCode, buf)
	}

	var res rpcResponse
	if err := json.Unmarshal(buf, &res); err != nil {
		return fmt.Errorf("invalid proxy response: %w", err)
	}
	if res.Error != nil {
		return fmt.Errorf("proxy error %d: %s", res.Error.Code, res.Error.Message)
	}
	if res.ID != id {
		return fmt.Errorf("proxy response id mismatch: got %s, expected %s", res.ID, id)
	}

	var ok bool
	if err := json.Unmarshal(res.Result, &ok); err != nil || !ok {
		return fmt.Errorf("proxy refused consignment for %s", recipientID)
	}

	log.Debugf("posted consignment of %s for recipient %s", txid, recipientID)
	return nil
}

// endpointURL turns an rpc:// or rpcs:// transport endpoint into the URL of
// the proxy.
func endpointURL(endpoint string) (string, error) {
	switch {
	case strings.HasPrefix(endpoint, "rpcs://"):
		return "https://" + strings.TrimPrefix(endpoint, "rpcs://"), nil
	case strings.HasPrefix(endpoint, "rpc://"):
		return "http://" + strings.TrimPrefix(endpoint, "rpc://"), nil
	default:
		return "", fmt.Errorf("unsupported transport endpoint %s", endpoint)
	}
}
