package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/p2ramp/settlement_service/internal/domain/entities"
	domainerrors "github.com/p2ramp/settlement_service/internal/domain/errors"
	"github.com/p2ramp/settlement_service/pkg/logger"
	"github.com/p2ramp/settlement_service/pkg/metrics"
	"github.com/p2ramp/settlement_service/pkg/security"
	"github.com/p2ramp/settlement_service/pkg/webhook"
)

// signatureHeaders and timestampHeaders are the header-name aliases the rail
// has been observed to deliver under.
var (
	signatureHeaders = []string{"X-Signature", "X-Auth-Signature", "Signature"}
	timestampHeaders = []string{"X-Timestamp", "X-Auth-Timestamp", "Timestamp"}
)

// TransactionStore is the webhook reconciler's transaction port
type TransactionStore interface {
	GetByTxHash(ctx context.Context, txHash string) (*entities.Transaction, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status entities.TransactionStatus, failureReason, railPaymentID *string) error
}

// WithdrawalStore resolves withdrawal callbacks by rail reference
type WithdrawalStore interface {
	GetByReference(ctx context.Context, reference string) (*entities.Withdrawal, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status entities.WithdrawalStatus, failureReason, railPaymentID *string) error
}

// LedgerCrediter credits merchant funding payments
type LedgerCrediter interface {
	CreditByEmail(ctx context.Context, email string, amount decimal.Decimal) (*entities.Merchant, error)
}

// TradeCompleter marks trades complete on the escrow contract
type TradeCompleter interface {
	CompleteTrade(ctx context.Context, tradeID int64) (string, error)
}

// RailWebhookHandler reconciles asynchronous payment-rail callbacks against
// the transaction and ledger state. It runs concurrently with the poller's
// settlement path; both converge on the same transaction rows, so all status
// writes go through the terminality-guarded repository updates.
type RailWebhookHandler struct {
	transactions  TransactionStore
	withdrawals   WithdrawalStore
	ledger        LedgerCrediter
	escrow        TradeCompleter
	webhookSecret string
	logger        *logger.Logger
}

// NewRailWebhookHandler creates a new rail webhook handler
func NewRailWebhookHandler(
	transactions TransactionStore,
	withdrawals WithdrawalStore,
	ledger LedgerCrediter,
	escrow TradeCompleter,
	webhookSecret string,
	logger *logger.Logger,
) *RailWebhookHandler {
	return &RailWebhookHandler{
		transactions:  transactions,
		withdrawals:   withdrawals,
		ledger:        ledger,
		escrow:        escrow,
		webhookSecret: webhookSecret,
		logger:        logger,
	}
}

// RailWebhookPayload is the rail's callback envelope
type RailWebhookPayload struct {
	EventType string          `json:"event_type"`
	RequestID string          `json:"requestId"`
	Data      RailWebhookData `json:"data"`
}

// RailWebhookData carries the merchant, transaction, and customer sections
type RailWebhookData struct {
	Merchant    RailWebhookMerchant    `json:"merchant"`
	Transaction RailWebhookTransaction `json:"transaction"`
	Customer    RailWebhookCustomer    `json:"customer"`
}

type RailWebhookMerchant struct {
	UserID        string `json:"userId"`
	WalletID      string `json:"walletId"`
	WalletBalance string `json:"walletBalance"`
}

type RailWebhookTransaction struct {
	TransactionID         string `json:"transactionId"`
	Type                  string `json:"type"`
	Time                  string `json:"time"`
	ResponseCode          string `json:"responseCode"`
	TransactionAmount     string `json:"transactionAmount"`
	MerchantTxRef         string `json:"merchantTxRef"`
	AliasAccountReference string `json:"aliasAccountReference"`
}

type RailWebhookCustomer struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// SignatureVerificationEnabled reports whether a webhook secret is
// configured. Exposed through the config-validation endpoint so a missing
// secret is never silently assumed safe.
func (h *RailWebhookHandler) SignatureVerificationEnabled() bool {
	return h.webhookSecret != ""
}

// HandleWebhook processes an inbound rail callback
// POST /webhooks/rail
//
// Response contract: 200 for every recoverable condition (unmapped event,
// unknown reference) so the rail never retry-storms over business-logic
// misses; 401 only for signature failure; 400 only for a malformed payload.
func (h *RailWebhookHandler) HandleWebhook(c *gin.Context) {
	rawBody, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.logger.Error("Failed to read webhook body", "error", err)
		metrics.WebhookEventsTotal.WithLabelValues("malformed").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}

	var payload RailWebhookPayload
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		h.logger.Error("Failed to parse webhook payload", "error", err)
		metrics.WebhookEventsTotal.WithLabelValues("malformed").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	if err := h.verify(c, &payload); err != nil {
		h.logger.Warn("Webhook signature rejected",
			"event_type", payload.EventType,
			"request_id", payload.RequestID,
			"error", err,
		)
		metrics.WebhookEventsTotal.WithLabelValues("auth_failed").Inc()
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication failed"})
		return
	}

	event := entities.MapRailEvent(payload.EventType)
	h.logger.Info("Received rail webhook",
		"event_type", payload.EventType,
		"mapped", string(event),
		"request_id", payload.RequestID,
	)

	switch event {
	case entities.RailEventTransferSuccessful:
		h.handleTransferSuccessful(c, &payload)
	case entities.RailEventTransferFailed:
		h.handleTransferTerminal(c, &payload, "transfer failed")
	case entities.RailEventTransferReversed:
		h.handleTransferTerminal(c, &payload, "transfer reversed")
	case entities.RailEventTransferPending, entities.RailEventPaymentPending:
		metrics.WebhookEventsTotal.WithLabelValues("pending_ack").Inc()
		c.JSON(http.StatusOK, gin.H{"status": "acknowledged"})
	case entities.RailEventPaymentSuccessful:
		h.handlePaymentSuccessful(c, &payload)
	case entities.RailEventPaymentFailed:
		h.logger.Warn("Merchant funding payment failed",
			"request_id", payload.RequestID,
			"customer_email", payload.Data.Customer.Email,
		)
		metrics.WebhookEventsTotal.WithLabelValues("payment_failed").Inc()
		c.JSON(http.StatusOK, gin.H{"status": "acknowledged"})
	default:
		h.logger.Info("Ignoring unmapped rail event", "event_type", payload.EventType)
		metrics.WebhookEventsTotal.WithLabelValues("unmapped").Inc()
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
	}
}

// verify checks the HMAC signature over the colon-joined field tuple. An
// empty configured secret disables verification for development setups.
func (h *RailWebhookHandler) verify(c *gin.Context, payload *RailWebhookPayload) error {
	if h.webhookSecret == "" {
		h.logger.Warn("Webhook signature verification disabled, no secret configured")
		return nil
	}

	signature := firstHeader(c, signatureHeaders)
	if signature == "" {
		return domainerrors.AuthenticationError("missing signature header")
	}
	timestamp := firstHeader(c, timestampHeaders)
	if timestamp == "" {
		return domainerrors.AuthenticationError("missing timestamp header")
	}

	ok := webhook.VerifySignature(h.webhookSecret, signature,
		payload.EventType,
		payload.RequestID,
		payload.Data.Merchant.UserID,
		payload.Data.Merchant.WalletID,
		payload.Data.Transaction.TransactionID,
		payload.Data.Transaction.Type,
		payload.Data.Transaction.Time,
		payload.Data.Transaction.ResponseCode,
		timestamp,
	)
	if !ok {
		return domainerrors.AuthenticationError("signature mismatch")
	}
	return nil
}

func (h *RailWebhookHandler) handleTransferSuccessful(c *gin.Context, payload *RailWebhookPayload) {
	ref := payload.Data.Transaction.MerchantTxRef
	railPaymentID := payload.Data.Transaction.TransactionID

	if strings.HasPrefix(ref, entities.WithdrawalReferencePrefix) {
		withdrawal, err := h.withdrawals.GetByReference(c.Request.Context(), ref)
		if err != nil {
			h.orphaned(c, ref, err)
			return
		}
		if err := h.withdrawals.UpdateStatus(c.Request.Context(), withdrawal.ID, entities.WithdrawalStatusConfirmed, nil, &railPaymentID); err != nil {
			h.updateFailed(c, ref, err)
			return
		}
		metrics.WebhookEventsTotal.WithLabelValues("withdrawal_confirmed").Inc()
		c.JSON(http.StatusOK, gin.H{"status": "success"})
		return
	}

	tx, err := h.transactions.GetByTxHash(c.Request.Context(), ref)
	if err != nil {
		h.orphaned(c, ref, err)
		return
	}

	// same advisory completion call as the orchestrator's success path
	if _, err := h.escrow.CompleteTrade(c.Request.Context(), tx.TradeID); err != nil {
		h.logger.Error("Trade completion call failed", "trade_id", tx.TradeID, "error", err)
	}

	if err := h.transactions.UpdateStatus(c.Request.Context(), tx.ID, entities.TransactionStatusConfirmed, nil, &railPaymentID); err != nil {
		h.updateFailed(c, ref, err)
		return
	}

	h.logger.Info("Transfer confirmed by webhook", "tx_hash", ref, "rail_payment_id", railPaymentID)
	metrics.WebhookEventsTotal.WithLabelValues("transfer_confirmed").Inc()
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (h *RailWebhookHandler) handleTransferTerminal(c *gin.Context, payload *RailWebhookPayload, reason string) {
	ref := payload.Data.Transaction.MerchantTxRef
	railPaymentID := payload.Data.Transaction.TransactionID
	if code := payload.Data.Transaction.ResponseCode; code != "" {
		reason = reason + ": response code " + code
	}

	if strings.HasPrefix(ref, entities.WithdrawalReferencePrefix) {
		withdrawal, err := h.withdrawals.GetByReference(c.Request.Context(), ref)
		if err != nil {
			h.orphaned(c, ref, err)
			return
		}
		if err := h.withdrawals.UpdateStatus(c.Request.Context(), withdrawal.ID, entities.WithdrawalStatusFailed, &reason, &railPaymentID); err != nil {
			h.updateFailed(c, ref, err)
			return
		}
		metrics.WebhookEventsTotal.WithLabelValues("withdrawal_failed").Inc()
		c.JSON(http.StatusOK, gin.H{"status": "success"})
		return
	}

	tx, err := h.transactions.GetByTxHash(c.Request.Context(), ref)
	if err != nil {
		h.orphaned(c, ref, err)
		return
	}

	// the ledger debit stays reserved; the reconciliation report picks up
	// the unreturned funds
	if err := h.transactions.UpdateStatus(c.Request.Context(), tx.ID, entities.TransactionStatusFailed, &reason, &railPaymentID); err != nil {
		h.updateFailed(c, ref, err)
		return
	}

	h.logger.Warn("Transfer failed by webhook", "tx_hash", ref, "reason", reason)
	metrics.WebhookEventsTotal.WithLabelValues("transfer_failed").Inc()
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

// handlePaymentSuccessful credits a merchant funding payment. The rail
// identifies the payer by customer email, not by transaction reference.
func (h *RailWebhookHandler) handlePaymentSuccessful(c *gin.Context, payload *RailWebhookPayload) {
	email := payload.Data.Customer.Email
	if email == "" {
		h.logger.Warn("Funding payment without customer email", "request_id", payload.RequestID)
		metrics.WebhookEventsTotal.WithLabelValues("funding_orphaned").Inc()
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	amount, err := decimal.NewFromString(payload.Data.Transaction.TransactionAmount)
	if err != nil || !amount.IsPositive() {
		h.logger.Warn("Funding payment with invalid amount",
			"request_id", payload.RequestID,
			"amount", payload.Data.Transaction.TransactionAmount,
		)
		metrics.WebhookEventsTotal.WithLabelValues("funding_invalid").Inc()
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	merchant, err := h.ledger.CreditByEmail(c.Request.Context(), email, amount)
	if err != nil {
		if domainerrors.IsNotFound(err) {
			h.logger.Warn("Funding payment for unknown merchant email", "email", security.MaskEmail(email))
			metrics.WebhookEventsTotal.WithLabelValues("funding_orphaned").Inc()
			c.JSON(http.StatusOK, gin.H{"status": "ignored"})
			return
		}
		h.updateFailed(c, email, err)
		return
	}

	h.logger.Info("Merchant funding credited",
		"merchant_id", merchant.ID,
		"amount", amount.String(),
	)
	metrics.WebhookEventsTotal.WithLabelValues("funding_credited").Inc()
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

// orphaned acknowledges a callback whose reference matches nothing we track
func (h *RailWebhookHandler) orphaned(c *gin.Context, ref string, err error) {
	h.logger.Warn("Orphaned webhook reference", "reference", ref, "error", err)
	metrics.WebhookEventsTotal.WithLabelValues("orphaned").Inc()
	c.JSON(http.StatusOK, gin.H{"status": "ignored"})
}

// updateFailed still returns 200: a terminal row means a redelivery already
// landed, and a 5xx for anything else would only trigger a retry storm
func (h *RailWebhookHandler) updateFailed(c *gin.Context, ref string, err error) {
	if errors.Is(err, domainerrors.ErrTerminalState) {
		h.logger.Info("Webhook redelivery for settled reference", "reference", ref)
		metrics.WebhookEventsTotal.WithLabelValues("redelivery").Inc()
		c.JSON(http.StatusOK, gin.H{"status": "already processed"})
		return
	}

	h.logger.Error("Failed to apply webhook update", "reference", ref, "error", err)
	metrics.WebhookEventsTotal.WithLabelValues("update_error").Inc()
	c.JSON(http.StatusOK, gin.H{"status": "error"})
}

func firstHeader(c *gin.Context, names []string) string {
	for _, name := range names {
		if v := c.GetHeader(name); v != "" {
			return v
		}
	}
	return ""
}
