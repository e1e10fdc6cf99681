package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/harun/browsy/internal/config"
	"github.com/harun/browsy/pkg/gateway"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const gatewayCallTimeout = 2 * time.Minute

// gatewayClient makes single-shot JSON-RPC calls against a running bridge
type gatewayClient struct {
	url    string
	secret string
	http   *http.Client
}

func newGatewayClient(cfg *config.Config) *gatewayClient {
	return &gatewayClient{
		url:    "http://" + cfg.GatewayAddr() + "/rpc",
		secret: cfg.Gateway.SharedSecret,
		http:   &http.Client{Timeout: gatewayCallTimeout},
	}
}

// call runs method and decodes its result into out. An RPC error is
// returned as *gateway.RPCError.
func (c *gatewayClient) call(ctx context.Context, method string, params map[string]interface{}, idempotencyKey string, out interface{}) error {
	id, err := gonanoid.New()
	if err != nil {
		return err
	}
	body, err := json.Marshal(gateway.RPCRequest{
		ID:             id,
		Method:         method,
		Params:         params,
		JSONRPC:        "2.0",
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.secret != "" {
		req.Header.Set(gateway.SecretHeader, c.secret)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("gateway unreachable at %s: %w", c.url, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK && res.StatusCode != http.StatusBadRequest {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return fmt.Errorf("gateway returned %d: %s", res.StatusCode, bytes.TrimSpace(msg))
	}

	var resp struct {
		Result json.RawMessage   `json:"result"`
		Error  *gateway.RPCError `json:"error"`
	}
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		return fmt.Errorf("failed to decode gateway response: %w", err)
	}
	if resp.Error != nil {
		return resp.Error
	}
	if out == nil || len(resp.Result) == 0 {
		return nil
	}
	return json.Unmarshal(resp.Result, out)
}

// runRemoteCommand runs a text command on the bridge and returns its output
func runRemoteCommand(ctx context.Context, c *gatewayClient, name string) (string, error) {
	var result struct {
		Output string `json:"output"`
	}
	if err := c.call(ctx, "commands.run", map[string]interface{}{"name": name}, "", &result); err != nil {
		return "", err
	}
	return result.Output, nil
}
