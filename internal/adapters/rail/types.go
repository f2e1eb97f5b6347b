package rail

import (
	"regexp"
	"time"
)

// Config represents payment rail API configuration. Leaving ClientID or
// ClientSecret empty switches the client into mock mode.
type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	SenderName   string
	Timeout      time.Duration
	MaxRetries   int
}

// MockMode reports whether payouts should be simulated
func (c Config) MockMode() bool {
	return c.ClientID == "" || c.ClientSecret == ""
}

// tokenResponse is the rail's OAuth token exchange response
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// SendFundsRequest initiates a bank transfer. MerchantTxRef is the rail-side
// idempotency key; for deposit settlements it is the chain transaction hash.
type SendFundsRequest struct {
	Amount        string `json:"amount"`
	AccountNumber string `json:"accountNumber"`
	AccountName   string `json:"accountName"`
	BankCode      string `json:"bankCode"`
	MerchantTxRef string `json:"merchantTxRef"`
	SenderName    string `json:"senderName"`
	Narration     string `json:"narration,omitempty"`
}

// SendFundsResponse is the rail's transfer initiation response
type SendFundsResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    struct {
		ID            string `json:"id"`
		MerchantTxRef string `json:"merchantTxRef"`
		Status        string `json:"status"`
	} `json:"data"`
	Error string `json:"error,omitempty"`
}

// TransferStatusResponse is the rail's transfer lookup response
type TransferStatusResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    struct {
		ID            string `json:"id"`
		MerchantTxRef string `json:"merchantTxRef"`
		Status        string `json:"status"`
		Amount        string `json:"amount"`
	} `json:"data"`
}

// Payment is the settled view of an initiated transfer
type Payment struct {
	ID        string
	Reference string
	Status    string
}

// pendingMessagePattern matches rail responses that mean "accepted, not yet
// settled" rather than a hard failure.
var pendingMessagePattern = regexp.MustCompile(`(?i)process|pending`)

// IsPendingMessage reports whether a rail message indicates an in-flight
// transfer whose outcome arrives later by webhook.
func IsPendingMessage(message string) bool {
	return pendingMessagePattern.MatchString(message)
}
