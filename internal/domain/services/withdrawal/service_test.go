package withdrawal

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/p2ramp/settlement_service/internal/adapters/rail"
	"github.com/p2ramp/settlement_service/internal/domain/entities"
	domainerrors "github.com/p2ramp/settlement_service/internal/domain/errors"
	"github.com/p2ramp/settlement_service/pkg/logger"
)

type MockWithdrawalRepository struct {
	mock.Mock
}

func (m *MockWithdrawalRepository) Create(ctx context.Context, withdrawal *entities.Withdrawal) error {
	args := m.Called(ctx, withdrawal)
	return args.Error(0)
}

func (m *MockWithdrawalRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.Withdrawal, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Withdrawal), args.Error(1)
}

func (m *MockWithdrawalRepository) GetByMerchant(ctx context.Context, merchantID int64, limit, offset int) ([]*entities.Withdrawal, error) {
	args := m.Called(ctx, merchantID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Withdrawal), args.Error(1)
}

func (m *MockWithdrawalRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status entities.WithdrawalStatus, failureReason, railPaymentID *string) error {
	args := m.Called(ctx, id, status, failureReason, railPaymentID)
	return args.Error(0)
}

type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) Debit(ctx context.Context, merchantID int64, amount decimal.Decimal) error {
	args := m.Called(ctx, merchantID, amount)
	return args.Error(0)
}

type MockRailClient struct {
	mock.Mock
}

func (m *MockRailClient) SendFunds(ctx context.Context, req *rail.SendFundsRequest) (*rail.Payment, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*rail.Payment), args.Error(1)
}

func testRequest() *Request {
	return &Request{
		MerchantID:    10,
		Amount:        decimal.RequireFromString("200"),
		AccountName:   "Ada Lovelace",
		AccountNumber: "0123456789",
		BankCode:      "058",
	}
}

func TestWithdrawHappyPath(t *testing.T) {
	repo := new(MockWithdrawalRepository)
	ledger := new(MockLedger)
	railClient := new(MockRailClient)
	svc := NewService(repo, ledger, railClient, logger.NewNop())

	ledger.On("Debit", mock.Anything, int64(10), mock.MatchedBy(func(d decimal.Decimal) bool {
		return d.Equal(decimal.RequireFromString("200"))
	})).Return(nil)
	repo.On("Create", mock.Anything, mock.MatchedBy(func(w *entities.Withdrawal) bool {
		return w.Status == entities.WithdrawalStatusPending &&
			strings.HasPrefix(w.Reference, entities.WithdrawalReferencePrefix)
	})).Return(nil)
	railClient.On("SendFunds", mock.Anything, mock.MatchedBy(func(req *rail.SendFundsRequest) bool {
		return req.Amount == "200.00" && strings.HasPrefix(req.MerchantTxRef, "wd-")
	})).Return(&rail.Payment{ID: "pay-9", Status: "successful"}, nil)
	repo.On("UpdateStatus", mock.Anything, mock.Anything, entities.WithdrawalStatusConfirmed, (*string)(nil), mock.Anything).Return(nil)

	withdrawal, err := svc.Withdraw(context.Background(), testRequest())

	assert.NoError(t, err)
	assert.Equal(t, entities.WithdrawalStatusConfirmed, withdrawal.Status)
	assert.NotNil(t, withdrawal.RailPaymentID)
	assert.Equal(t, "pay-9", *withdrawal.RailPaymentID)
	repo.AssertExpectations(t)
	ledger.AssertExpectations(t)
}

func TestWithdrawRejectsNonPositiveAmount(t *testing.T) {
	repo := new(MockWithdrawalRepository)
	ledger := new(MockLedger)
	railClient := new(MockRailClient)
	svc := NewService(repo, ledger, railClient, logger.NewNop())

	req := testRequest()
	req.Amount = decimal.Zero

	withdrawal, err := svc.Withdraw(context.Background(), req)

	assert.Nil(t, withdrawal)
	assert.Error(t, err)
	ledger.AssertNotCalled(t, "Debit", mock.Anything, mock.Anything, mock.Anything)
}

func TestWithdrawInsufficientBalance(t *testing.T) {
	repo := new(MockWithdrawalRepository)
	ledger := new(MockLedger)
	railClient := new(MockRailClient)
	svc := NewService(repo, ledger, railClient, logger.NewNop())

	repo.On("Create", mock.Anything, mock.Anything).Return(nil)
	ledger.On("Debit", mock.Anything, int64(10), mock.Anything).Return(domainerrors.InsufficientBalanceError("50", "200"))
	repo.On("UpdateStatus", mock.Anything, mock.Anything, entities.WithdrawalStatusFailed, mock.Anything, (*string)(nil)).Return(nil)

	withdrawal, err := svc.Withdraw(context.Background(), testRequest())

	assert.True(t, domainerrors.IsInsufficientBalance(err))
	assert.Equal(t, entities.WithdrawalStatusFailed, withdrawal.Status)
	railClient.AssertNotCalled(t, "SendFunds", mock.Anything, mock.Anything)
	repo.AssertExpectations(t)
}

func TestWithdrawCreateFailureLeavesLedgerUntouched(t *testing.T) {
	repo := new(MockWithdrawalRepository)
	ledger := new(MockLedger)
	railClient := new(MockRailClient)
	svc := NewService(repo, ledger, railClient, logger.NewNop())

	// the row is written before any funds move, so a failed insert must not
	// leave an unrecorded debit behind
	repo.On("Create", mock.Anything, mock.Anything).Return(errors.New("database unavailable"))

	withdrawal, err := svc.Withdraw(context.Background(), testRequest())

	assert.Nil(t, withdrawal)
	assert.Error(t, err)
	ledger.AssertNotCalled(t, "Debit", mock.Anything, mock.Anything, mock.Anything)
	railClient.AssertNotCalled(t, "SendFunds", mock.Anything, mock.Anything)
}

func TestWithdrawRailPendingStaysPending(t *testing.T) {
	repo := new(MockWithdrawalRepository)
	ledger := new(MockLedger)
	railClient := new(MockRailClient)
	svc := NewService(repo, ledger, railClient, logger.NewNop())

	ledger.On("Debit", mock.Anything, int64(10), mock.Anything).Return(nil)
	repo.On("Create", mock.Anything, mock.Anything).Return(nil)
	railClient.On("SendFunds", mock.Anything, mock.Anything).Return(nil, domainerrors.RailPendingError("transfer is processing"))

	withdrawal, err := svc.Withdraw(context.Background(), testRequest())

	assert.NoError(t, err)
	assert.Equal(t, entities.WithdrawalStatusPending, withdrawal.Status)
	repo.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestWithdrawRailFailureMarksFailed(t *testing.T) {
	repo := new(MockWithdrawalRepository)
	ledger := new(MockLedger)
	railClient := new(MockRailClient)
	svc := NewService(repo, ledger, railClient, logger.NewNop())

	ledger.On("Debit", mock.Anything, int64(10), mock.Anything).Return(nil)
	repo.On("Create", mock.Anything, mock.Anything).Return(nil)
	railClient.On("SendFunds", mock.Anything, mock.Anything).Return(nil, domainerrors.RailFailureError("could not resolve account"))
	repo.On("UpdateStatus", mock.Anything, mock.Anything, entities.WithdrawalStatusFailed, mock.Anything, (*string)(nil)).Return(nil)

	withdrawal, err := svc.Withdraw(context.Background(), testRequest())

	assert.Error(t, err)
	assert.Equal(t, entities.WithdrawalStatusFailed, withdrawal.Status)
	assert.NotNil(t, withdrawal.FailureReason)
	repo.AssertExpectations(t)
}

func TestListByMerchantClampsLimit(t *testing.T) {
	repo := new(MockWithdrawalRepository)
	svc := NewService(repo, new(MockLedger), new(MockRailClient), logger.NewNop())

	repo.On("GetByMerchant", mock.Anything, int64(10), 20, 0).Return([]*entities.Withdrawal{}, nil)

	_, err := svc.ListByMerchant(context.Background(), 10, 500, 0)

	assert.NoError(t, err)
	repo.AssertExpectations(t)
}
