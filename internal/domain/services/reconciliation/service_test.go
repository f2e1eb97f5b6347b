package reconciliation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/p2ramp/settlement_service/internal/adapters/rail"
	"github.com/p2ramp/settlement_service/internal/domain/entities"
	"github.com/p2ramp/settlement_service/pkg/logger"
)

type MockTransactionRepository struct {
	mock.Mock
}

func (m *MockTransactionRepository) ListByStatus(ctx context.Context, status entities.TransactionStatus, limit int) ([]*entities.Transaction, error) {
	args := m.Called(ctx, status, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) ListPendingOlderThan(ctx context.Context, cutoff time.Time) ([]*entities.Transaction, error) {
	args := m.Called(ctx, cutoff)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Transaction), args.Error(1)
}

type MockRailClient struct {
	mock.Mock
}

func (m *MockRailClient) GetTransferStatus(ctx context.Context, reference string) (*rail.Payment, error) {
	args := m.Called(ctx, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*rail.Payment), args.Error(1)
}

func failedTx(txHash, reason string, payout string, debited bool) *entities.Transaction {
	r := reason
	return &entities.Transaction{
		TxHash:        txHash,
		MerchantID:    10,
		PayoutAmount:  decimal.RequireFromString(payout),
		Status:        entities.TransactionStatusFailed,
		FailureReason: &r,
		LedgerDebited: debited,
	}
}

func TestRunReportsReservedUnspentFunds(t *testing.T) {
	repo := new(MockTransactionRepository)
	railClient := new(MockRailClient)
	svc := NewService(repo, railClient, 24*time.Hour, logger.NewNop())

	failed := []*entities.Transaction{
		// debit landed before the rail rejected: funds still reserved
		failedTx("0xaaa", "could not resolve account", "105", true),
		failedTx("0xbbb", "transfer reversed: response code 91", "50", true),
		// aborted before the debit step: nothing reserved
		failedTx("0xccc", "insufficient merchant balance", "300", false),
		failedTx("0xddd", "advertisement not found", "0", false),
		failedTx("0xeee", "deposited amount is not a positive number", "0", false),
	}
	repo.On("ListByStatus", mock.Anything, entities.TransactionStatusFailed, 500).Return(failed, nil)
	repo.On("ListPendingOlderThan", mock.Anything, mock.Anything).Return([]*entities.Transaction{}, nil)

	report, err := svc.Run(context.Background())

	assert.NoError(t, err)
	assert.Len(t, report.ReservedUnspent, 2)
	assert.True(t, report.ReservedTotal.Equal(decimal.RequireFromString("155")))
	assert.Empty(t, report.StalePending)
}

func TestRunKeepsDebitedRowsRegardlessOfReasonWording(t *testing.T) {
	repo := new(MockTransactionRepository)
	railClient := new(MockRailClient)
	svc := NewService(repo, railClient, 24*time.Hour, logger.NewNop())

	// rail rejection wording is arbitrary and must not decide whether a
	// reserved debit shows up in the report
	failed := []*entities.Transaction{
		failedTx("0xaaa", "beneficiary account not found", "105", true),
		failedTx("0xbbb", "amount is not a positive number at rail", "50", true),
	}
	repo.On("ListByStatus", mock.Anything, entities.TransactionStatusFailed, 500).Return(failed, nil)
	repo.On("ListPendingOlderThan", mock.Anything, mock.Anything).Return([]*entities.Transaction{}, nil)

	report, err := svc.Run(context.Background())

	assert.NoError(t, err)
	assert.Len(t, report.ReservedUnspent, 2)
	assert.True(t, report.ReservedTotal.Equal(decimal.RequireFromString("155")))
}

func TestRunReportsStalePendingWithRailLookup(t *testing.T) {
	repo := new(MockTransactionRepository)
	railClient := new(MockRailClient)
	svc := NewService(repo, railClient, 24*time.Hour, logger.NewNop())

	stale := &entities.Transaction{
		TxHash:       "0xstale",
		MerchantID:   10,
		PayoutAmount: decimal.RequireFromString("105"),
		Status:       entities.TransactionStatusPending,
		CreatedAt:    time.Now().Add(-48 * time.Hour),
	}
	repo.On("ListByStatus", mock.Anything, entities.TransactionStatusFailed, 500).Return([]*entities.Transaction{}, nil)
	repo.On("ListPendingOlderThan", mock.Anything, mock.MatchedBy(func(cutoff time.Time) bool {
		return time.Since(cutoff) > 23*time.Hour && time.Since(cutoff) < 25*time.Hour
	})).Return([]*entities.Transaction{stale}, nil)
	railClient.On("GetTransferStatus", mock.Anything, "0xstale").Return(&rail.Payment{Status: "processing"}, nil)

	report, err := svc.Run(context.Background())

	assert.NoError(t, err)
	assert.Len(t, report.StalePending, 1)
	railClient.AssertExpectations(t)
}

func TestRunSurvivesRailLookupFailure(t *testing.T) {
	repo := new(MockTransactionRepository)
	railClient := new(MockRailClient)
	svc := NewService(repo, railClient, 24*time.Hour, logger.NewNop())

	stale := &entities.Transaction{
		TxHash:    "0xstale",
		Status:    entities.TransactionStatusPending,
		CreatedAt: time.Now().Add(-48 * time.Hour),
	}
	repo.On("ListByStatus", mock.Anything, entities.TransactionStatusFailed, 500).Return([]*entities.Transaction{}, nil)
	repo.On("ListPendingOlderThan", mock.Anything, mock.Anything).Return([]*entities.Transaction{stale}, nil)
	railClient.On("GetTransferStatus", mock.Anything, "0xstale").Return(nil, errors.New("rail unavailable"))

	report, err := svc.Run(context.Background())

	assert.NoError(t, err)
	assert.Len(t, report.StalePending, 1)
}

func TestRunPropagatesRepositoryError(t *testing.T) {
	repo := new(MockTransactionRepository)
	railClient := new(MockRailClient)
	svc := NewService(repo, railClient, 24*time.Hour, logger.NewNop())

	repo.On("ListByStatus", mock.Anything, entities.TransactionStatusFailed, 500).Return(nil, errors.New("database unavailable"))

	report, err := svc.Run(context.Background())

	assert.Error(t, err)
	assert.Nil(t, report)
}

