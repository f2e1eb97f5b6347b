package rail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	domainerrors "github.com/p2ramp/settlement_service/internal/domain/errors"
	"github.com/p2ramp/settlement_service/pkg/logger"
	"github.com/p2ramp/settlement_service/pkg/metrics"
	"github.com/p2ramp/settlement_service/pkg/security"
)

// tokenRefreshWindow triggers a refresh when the cached token is within this
// much of its expiry.
const tokenRefreshWindow = 5 * time.Minute

// Client is a payment rail API client. Without credentials it runs in mock
// mode: payouts are simulated deterministically from the reference so the
// pipeline stays exercisable in development.
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *logger.Logger

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewClient creates a new payment rail client
func NewClient(config Config, logger *logger.Logger) *Client {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = 3
	}

	if config.MockMode() {
		logger.Warn("Payment rail credentials not set, running in mock mode")
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger: logger,
	}
}

// SendFunds initiates a bank transfer. The reference is the idempotency key
// on the rail side: re-sending the same reference never creates a second
// transfer. A message matching the pending pattern means the outcome arrives
// later by webhook and surfaces as ErrRailPending.
func (c *Client) SendFunds(ctx context.Context, req *SendFundsRequest) (*Payment, error) {
	if req.SenderName == "" {
		req.SenderName = c.config.SenderName
	}

	if c.config.MockMode() {
		return c.mockSendFunds(req)
	}

	c.logger.Info("Initiating rail transfer",
		"reference", req.MerchantTxRef,
		"amount", req.Amount,
		"bank_code", req.BankCode,
		"account_number", security.MaskAccountNumber(req.AccountNumber),
		"account_name", security.MaskName(req.AccountName),
	)

	var response SendFundsResponse
	if err := c.doRequest(ctx, http.MethodPost, "v1/transfers", req, &response); err != nil {
		metrics.RailRequestsTotal.WithLabelValues("error", "live").Inc()
		return nil, fmt.Errorf("send funds failed: %w", err)
	}

	if response.Success {
		metrics.RailRequestsTotal.WithLabelValues("success", "live").Inc()
		c.logger.Info("Rail transfer initiated", "reference", req.MerchantTxRef, "payment_id", response.Data.ID)
		return &Payment{
			ID:        response.Data.ID,
			Reference: response.Data.MerchantTxRef,
			Status:    response.Data.Status,
		}, nil
	}

	// error-body classification: the rail signals in-flight transfers with a
	// processing/pending message rather than a distinct status
	message := response.Error
	if message == "" {
		message = response.Message
	}
	if IsPendingMessage(message) {
		metrics.RailRequestsTotal.WithLabelValues("pending", "live").Inc()
		c.logger.Info("Rail transfer accepted for processing", "reference", req.MerchantTxRef, "message", message)
		return nil, domainerrors.RailPendingError(message)
	}

	metrics.RailRequestsTotal.WithLabelValues("failure", "live").Inc()
	c.logger.Error("Rail transfer rejected", "reference", req.MerchantTxRef, "message", message)
	return nil, domainerrors.RailFailureError(message)
}

// GetTransferStatus looks up a transfer by reference
func (c *Client) GetTransferStatus(ctx context.Context, reference string) (*Payment, error) {
	if c.config.MockMode() {
		return &Payment{
			ID:        mockPaymentID(reference),
			Reference: reference,
			Status:    "successful",
		}, nil
	}

	endpoint := fmt.Sprintf("v1/transfers/%s", url.PathEscape(reference))
	var response TransferStatusResponse
	if err := c.doRequest(ctx, http.MethodGet, endpoint, nil, &response); err != nil {
		return nil, fmt.Errorf("get transfer status failed: %w", err)
	}

	return &Payment{
		ID:        response.Data.ID,
		Reference: response.Data.MerchantTxRef,
		Status:    response.Data.Status,
	}, nil
}

// mockSendFunds simulates the rail deterministically: the same reference
// always produces the same outcome, with 95% of references succeeding.
func (c *Client) mockSendFunds(req *SendFundsRequest) (*Payment, error) {
	h := fnv.New32a()
	h.Write([]byte(req.MerchantTxRef))
	roll := h.Sum32() % 100

	if roll < 95 {
		metrics.RailRequestsTotal.WithLabelValues("success", "mock").Inc()
		c.logger.Info("Mock rail transfer succeeded", "reference", req.MerchantTxRef, "roll", roll)
		return &Payment{
			ID:        mockPaymentID(req.MerchantTxRef),
			Reference: req.MerchantTxRef,
			Status:    "successful",
		}, nil
	}

	metrics.RailRequestsTotal.WithLabelValues("failure", "mock").Inc()
	c.logger.Warn("Mock rail transfer failed", "reference", req.MerchantTxRef, "roll", roll)
	return nil, domainerrors.RailFailureError("mock transfer declined")
}

func mockPaymentID(reference string) string {
	h := fnv.New32a()
	h.Write([]byte(reference))
	return fmt.Sprintf("mock-%08x", h.Sum32())
}

// token returns a valid access token, exchanging credentials when no cached
// token exists or the cached one is close to expiry.
func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Until(c.tokenExpiry) > tokenRefreshWindow {
		return c.accessToken, nil
	}

	body, err := json.Marshal(map[string]string{
		"client_id":     c.config.ClientID,
		"client_secret": c.config.ClientSecret,
		"grant_type":    "client_credentials",
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal token request: %w", err)
	}

	tokenURL := strings.TrimSuffix(c.config.BaseURL, "/") + "/v1/auth/token"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("token exchange failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", domainerrors.AuthenticationError(fmt.Sprintf("token exchange returned %d: %s", resp.StatusCode, string(respBody)))
	}

	var tokenResp tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return "", domainerrors.AuthenticationError("token exchange returned empty access token")
	}

	c.accessToken = tokenResp.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)
	c.logger.Debug("Refreshed rail access token", "expires_in", tokenResp.ExpiresIn)

	return c.accessToken, nil
}

func (c *Client) doRequest(ctx context.Context, method, endpoint string, reqBody, respBody interface{}) error {
	token, err := c.token(ctx)
	if err != nil {
		return err
	}

	var bodyReader io.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	fullURL := strings.TrimSuffix(c.config.BaseURL, "/") + "/" + endpoint
	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		// force a token refresh on the next call
		c.mu.Lock()
		c.accessToken = ""
		c.mu.Unlock()
		return domainerrors.AuthenticationError("rail rejected access token")
	}
	if resp.StatusCode >= 400 {
		// non-2xx with a parseable body is classified by the caller, not
		// treated as transport failure
		if respBody != nil && json.Unmarshal(data, respBody) == nil {
			return nil
		}
		return fmt.Errorf("rail returned status %d: %s", resp.StatusCode, string(data))
	}

	if respBody != nil {
		if err := json.Unmarshal(data, respBody); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}
