package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/p2ramp/settlement_service/internal/domain/entities"
	domainerrors "github.com/p2ramp/settlement_service/internal/domain/errors"
	"github.com/p2ramp/settlement_service/pkg/logger"
	"github.com/p2ramp/settlement_service/pkg/webhook"
)

const testWebhookSecret = "test-secret"

type MockTransactionStore struct {
	mock.Mock
}

func (m *MockTransactionStore) GetByTxHash(ctx context.Context, txHash string) (*entities.Transaction, error) {
	args := m.Called(ctx, txHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Transaction), args.Error(1)
}

func (m *MockTransactionStore) UpdateStatus(ctx context.Context, id uuid.UUID, status entities.TransactionStatus, failureReason, railPaymentID *string) error {
	args := m.Called(ctx, id, status, failureReason, railPaymentID)
	return args.Error(0)
}

type MockWithdrawalStore struct {
	mock.Mock
}

func (m *MockWithdrawalStore) GetByReference(ctx context.Context, reference string) (*entities.Withdrawal, error) {
	args := m.Called(ctx, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Withdrawal), args.Error(1)
}

func (m *MockWithdrawalStore) UpdateStatus(ctx context.Context, id uuid.UUID, status entities.WithdrawalStatus, failureReason, railPaymentID *string) error {
	args := m.Called(ctx, id, status, failureReason, railPaymentID)
	return args.Error(0)
}

type MockLedgerCrediter struct {
	mock.Mock
}

func (m *MockLedgerCrediter) CreditByEmail(ctx context.Context, email string, amount decimal.Decimal) (*entities.Merchant, error) {
	args := m.Called(ctx, email, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Merchant), args.Error(1)
}

type MockTradeCompleter struct {
	mock.Mock
}

func (m *MockTradeCompleter) CompleteTrade(ctx context.Context, tradeID int64) (string, error) {
	args := m.Called(ctx, tradeID)
	return args.String(0), args.Error(1)
}

type webhookFixture struct {
	handler      *RailWebhookHandler
	transactions *MockTransactionStore
	withdrawals  *MockWithdrawalStore
	ledger       *MockLedgerCrediter
	escrow       *MockTradeCompleter
	router       *gin.Engine
}

func newWebhookFixture(secret string) *webhookFixture {
	gin.SetMode(gin.TestMode)

	f := &webhookFixture{
		transactions: new(MockTransactionStore),
		withdrawals:  new(MockWithdrawalStore),
		ledger:       new(MockLedgerCrediter),
		escrow:       new(MockTradeCompleter),
	}
	f.handler = NewRailWebhookHandler(f.transactions, f.withdrawals, f.ledger, f.escrow, secret, logger.NewNop())

	f.router = gin.New()
	f.router.POST("/webhooks/rail", f.handler.HandleWebhook)
	return f
}

func signedPayload(eventType, ref, transactionID, amount, email string) ([]byte, http.Header) {
	payload := RailWebhookPayload{
		EventType: eventType,
		RequestID: "req-1",
		Data: RailWebhookData{
			Merchant: RailWebhookMerchant{UserID: "user-1", WalletID: "wallet-1"},
			Transaction: RailWebhookTransaction{
				TransactionID:     transactionID,
				Type:              "transfer",
				Time:              "2026-08-31T12:00:00Z",
				ResponseCode:      "00",
				TransactionAmount: amount,
				MerchantTxRef:     ref,
			},
			Customer: RailWebhookCustomer{Email: email},
		},
	}
	body, _ := json.Marshal(payload)

	timestamp := "1756600000"
	signature := webhook.ComputeSignature(testWebhookSecret,
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

	header := http.Header{}
	header.Set("X-Signature", signature)
	header.Set("X-Timestamp", timestamp)
	return body, header
}

func (f *webhookFixture) post(body []byte, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/rail", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for name, values := range header {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestWebhookMalformedBody(t *testing.T) {
	f := newWebhookFixture(testWebhookSecret)

	w := f.post([]byte("{not json"), nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhookMissingSignature(t *testing.T) {
	f := newWebhookFixture(testWebhookSecret)
	body, _ := signedPayload("transfer.successful", "0xabc123", "rail-tx-1", "", "")

	w := f.post(body, nil)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	f.transactions.AssertNotCalled(t, "GetByTxHash", mock.Anything, mock.Anything)
}

func TestWebhookBadSignature(t *testing.T) {
	f := newWebhookFixture(testWebhookSecret)
	body, header := signedPayload("transfer.successful", "0xabc123", "rail-tx-1", "", "")
	header.Set("X-Signature", "dGFtcGVyZWQ=")

	w := f.post(body, header)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWebhookNoSecretSkipsVerification(t *testing.T) {
	f := newWebhookFixture("")
	assert.False(t, f.handler.SignatureVerificationEnabled())

	body, _ := signedPayload("unknown.event", "", "", "", "")

	// no signature headers at all
	w := f.post(body, nil)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWebhookTransferSuccessfulConfirmsTransaction(t *testing.T) {
	f := newWebhookFixture(testWebhookSecret)

	tx := &entities.Transaction{ID: uuid.New(), TxHash: "0xabc123", TradeID: 1, Status: entities.TransactionStatusPending}
	f.transactions.On("GetByTxHash", mock.Anything, "0xabc123").Return(tx, nil)
	f.escrow.On("CompleteTrade", mock.Anything, int64(1)).Return("0xcompletion", nil)
	f.transactions.On("UpdateStatus", mock.Anything, tx.ID, entities.TransactionStatusConfirmed, (*string)(nil), mock.MatchedBy(func(id *string) bool {
		return id != nil && *id == "rail-tx-1"
	})).Return(nil)

	body, header := signedPayload("transfer.successful", "0xabc123", "rail-tx-1", "", "")
	w := f.post(body, header)

	assert.Equal(t, http.StatusOK, w.Code)
	f.transactions.AssertExpectations(t)
	f.escrow.AssertExpectations(t)
}

func TestWebhookTransferFailedMarksTransactionFailed(t *testing.T) {
	f := newWebhookFixture(testWebhookSecret)

	tx := &entities.Transaction{ID: uuid.New(), TxHash: "0xabc123", TradeID: 1, Status: entities.TransactionStatusPending}
	f.transactions.On("GetByTxHash", mock.Anything, "0xabc123").Return(tx, nil)
	f.transactions.On("UpdateStatus", mock.Anything, tx.ID, entities.TransactionStatusFailed, mock.MatchedBy(func(reason *string) bool {
		return reason != nil && *reason == "transfer failed: response code 00"
	}), mock.Anything).Return(nil)

	body, header := signedPayload("transfer.failed", "0xabc123", "rail-tx-1", "", "")
	w := f.post(body, header)

	assert.Equal(t, http.StatusOK, w.Code)
	f.escrow.AssertNotCalled(t, "CompleteTrade", mock.Anything, mock.Anything)
	f.transactions.AssertExpectations(t)
}

func TestWebhookRedeliveryForConfirmedTransaction(t *testing.T) {
	f := newWebhookFixture(testWebhookSecret)

	tx := &entities.Transaction{ID: uuid.New(), TxHash: "0xabc123", TradeID: 1, Status: entities.TransactionStatusConfirmed}
	f.transactions.On("GetByTxHash", mock.Anything, "0xabc123").Return(tx, nil)
	f.escrow.On("CompleteTrade", mock.Anything, int64(1)).Return("0xcompletion", nil)
	f.transactions.On("UpdateStatus", mock.Anything, tx.ID, entities.TransactionStatusConfirmed, mock.Anything, mock.Anything).Return(domainerrors.ErrTerminalState)

	body, header := signedPayload("transfer.successful", "0xabc123", "rail-tx-1", "", "")
	w := f.post(body, header)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "already processed")
}

func TestWebhookOrphanedReference(t *testing.T) {
	f := newWebhookFixture(testWebhookSecret)

	f.transactions.On("GetByTxHash", mock.Anything, "0xunknown").Return(nil, domainerrors.NotFoundError("transaction"))

	body, header := signedPayload("transfer.successful", "0xunknown", "rail-tx-1", "", "")
	w := f.post(body, header)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ignored")
	f.transactions.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestWebhookUnmappedEventAcknowledged(t *testing.T) {
	f := newWebhookFixture(testWebhookSecret)

	body, header := signedPayload("kyc.approved", "", "", "", "")
	w := f.post(body, header)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ignored")
}

func TestWebhookWithdrawalConfirmation(t *testing.T) {
	f := newWebhookFixture(testWebhookSecret)

	withdrawal := &entities.Withdrawal{ID: uuid.New(), Reference: "wd-ref-1", Status: entities.WithdrawalStatusPending}
	f.withdrawals.On("GetByReference", mock.Anything, "wd-ref-1").Return(withdrawal, nil)
	f.withdrawals.On("UpdateStatus", mock.Anything, withdrawal.ID, entities.WithdrawalStatusConfirmed, (*string)(nil), mock.Anything).Return(nil)

	body, header := signedPayload("transfer.successful", "wd-ref-1", "rail-tx-9", "", "")
	w := f.post(body, header)

	assert.Equal(t, http.StatusOK, w.Code)
	f.withdrawals.AssertExpectations(t)
	f.transactions.AssertNotCalled(t, "GetByTxHash", mock.Anything, mock.Anything)
	f.escrow.AssertNotCalled(t, "CompleteTrade", mock.Anything, mock.Anything)
}

func TestWebhookPaymentSuccessfulCreditsMerchant(t *testing.T) {
	f := newWebhookFixture(testWebhookSecret)

	merchant := &entities.Merchant{ID: 10, Email: "merchant@example.com"}
	f.ledger.On("CreditByEmail", mock.Anything, "merchant@example.com", mock.MatchedBy(func(d decimal.Decimal) bool {
		return d.Equal(decimal.RequireFromString("500.00"))
	})).Return(merchant, nil)

	body, header := signedPayload("payment.successful", "", "rail-tx-2", "500.00", "merchant@example.com")
	w := f.post(body, header)

	assert.Equal(t, http.StatusOK, w.Code)
	f.ledger.AssertExpectations(t)
}

func TestWebhookPaymentSuccessfulUnknownEmail(t *testing.T) {
	f := newWebhookFixture(testWebhookSecret)

	f.ledger.On("CreditByEmail", mock.Anything, "nobody@example.com", mock.Anything).Return(nil, domainerrors.NotFoundError("merchant"))

	body, header := signedPayload("payment.successful", "", "rail-tx-2", "500.00", "nobody@example.com")
	w := f.post(body, header)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ignored")
}

func TestWebhookPaymentSuccessfulWithoutEmail(t *testing.T) {
	f := newWebhookFixture(testWebhookSecret)

	body, header := signedPayload("payment.successful", "", "rail-tx-2", "500.00", "")
	w := f.post(body, header)

	assert.Equal(t, http.StatusOK, w.Code)
	f.ledger.AssertNotCalled(t, "CreditByEmail", mock.Anything, mock.Anything, mock.Anything)
}

func TestWebhookPaymentSuccessfulInvalidAmount(t *testing.T) {
	f := newWebhookFixture(testWebhookSecret)

	body, header := signedPayload("payment.successful", "", "rail-tx-2", "-5", "merchant@example.com")
	w := f.post(body, header)

	assert.Equal(t, http.StatusOK, w.Code)
	f.ledger.AssertNotCalled(t, "CreditByEmail", mock.Anything, mock.Anything, mock.Anything)
}

func TestWebhookAcceptsAlternateHeaderNames(t *testing.T) {
	f := newWebhookFixture(testWebhookSecret)

	body, header := signedPayload("unknown.event", "", "", "", "")
	alt := http.Header{}
	alt.Set("X-Auth-Signature", header.Get("X-Signature"))
	alt.Set("X-Auth-Timestamp", header.Get("X-Timestamp"))

	w := f.post(body, alt)

	assert.Equal(t, http.StatusOK, w.Code)
}
