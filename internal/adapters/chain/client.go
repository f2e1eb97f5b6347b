package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/p2ramp/settlement_service/pkg/logger"
	"github.com/p2ramp/settlement_service/pkg/retry"
)

// RPCError represents a JSON-RPC error returned by the node
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error: %d - %s", e.Code, e.Message)
}

type rpcRequest struct {
	JsonRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	JsonRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error,omitempty"`
	ID      int             `json:"id"`
}

// Log is one EVM event log as returned by eth_getLogs
type Log struct {
	Address     string   `json:"address"`
	Topics      []string `json:"topics"`
	Data        string   `json:"data"`
	BlockNumber string   `json:"blockNumber"`
	TxHash      string   `json:"transactionHash"`
	LogIndex    string   `json:"logIndex"`
	Removed     bool     `json:"removed"`
}

// Client is a JSON-RPC client for the escrow chain's node
type Client struct {
	rpcURL      string
	httpClient  *http.Client
	retryConfig retry.RetryConfig
	log         *logger.Logger
}

// NewClient creates a chain RPC client
func NewClient(rpcURL string, log *logger.Logger) *Client {
	return &Client{
		rpcURL: rpcURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		retryConfig: retry.RetryConfig{
			MaxAttempts:  4,
			BaseDelay:    500 * time.Millisecond,
			MaxDelay:     8 * time.Second,
			Multiplier:   2.0,
			JitterFactor: 0.2,
		},
		log: log,
	}
}

// BlockNumber returns the node's current head block height
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	var result string
	if err := c.call(ctx, "eth_blockNumber", nil, &result); err != nil {
		return 0, err
	}
	return ParseHexUint64(result)
}

// GetLogs fetches event logs for contract address in (fromBlock, toBlock],
// filtered by topic0 when set.
func (c *Client) GetLogs(ctx context.Context, address string, topic0 string, fromBlock, toBlock uint64) ([]Log, error) {
	filter := map[string]interface{}{
		"address":   address,
		"fromBlock": EncodeUint64(fromBlock),
		"toBlock":   EncodeUint64(toBlock),
	}
	if topic0 != "" {
		filter["topics"] = []interface{}{topic0}
	}

	var logs []Log
	if err := c.call(ctx, "eth_getLogs", []interface{}{filter}, &logs); err != nil {
		return nil, err
	}
	return logs, nil
}

// SendTransaction submits a contract call from an account the node manages.
// Returns the transaction hash.
func (c *Client) SendTransaction(ctx context.Context, from, to, data string) (string, error) {
	tx := map[string]interface{}{
		"from": from,
		"to":   to,
		"data": data,
	}

	var txHash string
	if err := c.call(ctx, "eth_sendTransaction", []interface{}{tx}, &txHash); err != nil {
		return "", err
	}
	return txHash, nil
}

// call performs one JSON-RPC method call with retry on transport failures
// and retryable node errors.
func (c *Client) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	if params == nil {
		params = []interface{}{}
	}

	var raw json.RawMessage
	err := retry.WithExponentialBackoff(ctx, c.retryConfig, func() error {
		var callErr error
		raw, callErr = c.doCall(ctx, method, params)
		return callErr
	}, isRetryableError)
	if err != nil {
		return fmt.Errorf("chain rpc %s: %w", method, err)
	}

	if result != nil {
		if err := json.Unmarshal(raw, result); err != nil {
			return fmt.Errorf("chain rpc %s: failed to decode result: %w", method, err)
		}
	}
	return nil
}

func (c *Client) doCall(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	payload := rpcRequest{
		JsonRPC: "2.0",
		ID:      1,
		Method:  method,
		Params:  params,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal rpc request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create rpc request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &transportError{err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &transportError{err: err}
	}

	if resp.StatusCode >= 500 {
		return nil, &transportError{err: fmt.Errorf("node returned status %d", resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("node returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, fmt.Errorf("failed to decode rpc response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}

	return rpcResp.Result, nil
}

// transportError marks network-level failures as retryable
type transportError struct {
	err error
}

func (e *transportError) Error() string { return e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

func isRetryableError(err error) bool {
	if _, ok := err.(*transportError); ok {
		return true
	}
	if rpcErr, ok := err.(*RPCError); ok {
		// node overloaded or still syncing
		return rpcErr.Code == -32000 || rpcErr.Code == -32005
	}
	return false
}

// ParseHexUint64 decodes a 0x-prefixed hex quantity
func ParseHexUint64(s string) (uint64, error) {
	cleaned := strings.TrimPrefix(s, "0x")
	if cleaned == "" {
		return 0, fmt.Errorf("empty hex quantity")
	}
	v, err := strconv.ParseUint(cleaned, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid hex quantity %q: %w", s, err)
	}
	return v, nil
}

// EncodeUint64 encodes a block height as a 0x-prefixed hex quantity
func EncodeUint64(v uint64) string {
	return "0x" + strconv.FormatUint(v, 16)
}
