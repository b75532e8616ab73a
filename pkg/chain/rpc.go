package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// rpcTimeout bounds every JSON-RPC round trip.
const rpcTimeout = 10 * time.Second

// rpcClient is a minimal JSON-RPC 2.0 client for read-only eth_ calls.
type rpcClient struct {
	endpoint string
	http     *http.Client
}

func newRPCClient(endpoint string, client *http.Client) *rpcClient {
	if client == nil {
		client = &http.Client{Timeout: rpcTimeout}
	}
	return &rpcClient{endpoint: endpoint, http: client}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// RPCError is the error object a node returns for a failed call, typically
// an execution revert. It is distinct from a transport failure: the node
// answered, the call itself failed.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// call performs one JSON-RPC request and decodes the result into a hex
// string (every eth_ read used here returns one).
func (c *rpcClient) call(ctx context.Context, method string, params ...any) (string, error) {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return "", fmt.Errorf("chain: marshal %s request: %w", method, err)
	}

	ctx, cancel := context.WithTimeout(ctx, rpcTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("chain: build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("chain: %s against %s: %w", method, c.endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("chain: %s against %s: HTTP %d", method, c.endpoint, resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("chain: read %s response: %w", method, err)
	}

	var parsed rpcResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("chain: decode %s response: %w", method, err)
	}
	if parsed.Error != nil {
		return "", parsed.Error
	}

	var result string
	if err := json.Unmarshal(parsed.Result, &result); err != nil {
		return "", fmt.Errorf("chain: %s result is not a hex string: %w", method, err)
	}
	return result, nil
}
