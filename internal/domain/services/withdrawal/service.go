package withdrawal

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/p2ramp/settlement_service/internal/adapters/rail"
	"github.com/p2ramp/settlement_service/internal/domain/entities"
	domainerrors "github.com/p2ramp/settlement_service/internal/domain/errors"
	"github.com/p2ramp/settlement_service/pkg/logger"
)

// WithdrawalRepository is the withdrawal persistence port
type WithdrawalRepository interface {
	Create(ctx context.Context, withdrawal *entities.Withdrawal) error
	GetByID(ctx context.Context, id uuid.UUID) (*entities.Withdrawal, error)
	GetByMerchant(ctx context.Context, merchantID int64, limit, offset int) ([]*entities.Withdrawal, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status entities.WithdrawalStatus, failureReason, railPaymentID *string) error
}

// Ledger reserves merchant funds for the payout
type Ledger interface {
	Debit(ctx context.Context, merchantID int64, amount decimal.Decimal) error
}

// RailClient initiates bank transfers
type RailClient interface {
	SendFunds(ctx context.Context, req *rail.SendFundsRequest) (*rail.Payment, error)
}

// Service handles merchant-initiated ledger withdrawals. It shares the rail
// contract and the optimistic-debit policy with deposit settlement: funds
// leave the ledger before the rail confirms.
type Service struct {
	withdrawalRepo WithdrawalRepository
	ledger         Ledger
	rail           RailClient
	logger         *logger.Logger
}

// NewService creates a new withdrawal service
func NewService(withdrawalRepo WithdrawalRepository, ledger Ledger, railClient RailClient, logger *logger.Logger) *Service {
	return &Service{
		withdrawalRepo: withdrawalRepo,
		ledger:         ledger,
		rail:           railClient,
		logger:         logger,
	}
}

// Request describes a merchant withdrawal to a bank account
type Request struct {
	MerchantID    int64           `json:"merchantId" binding:"required"`
	Amount        decimal.Decimal `json:"amount" binding:"required"`
	AccountName   string          `json:"accountName" binding:"required"`
	AccountNumber string          `json:"accountNumber" binding:"required"`
	BankCode      string          `json:"bankCode" binding:"required"`
}

// Withdraw debits the merchant ledger and dispatches the payout. The
// generated reference carries the withdrawal prefix so webhook callbacks
// route to withdrawals instead of deposit transactions.
func (s *Service) Withdraw(ctx context.Context, req *Request) (*entities.Withdrawal, error) {
	if !req.Amount.IsPositive() {
		return nil, domainerrors.ValidationError("amount", "withdrawal amount must be positive")
	}

	now := time.Now()
	withdrawal := &entities.Withdrawal{
		ID:            uuid.New(),
		Reference:     fmt.Sprintf("%s%s", entities.WithdrawalReferencePrefix, uuid.New().String()),
		MerchantID:    req.MerchantID,
		Amount:        req.Amount,
		AccountName:   req.AccountName,
		AccountNumber: req.AccountNumber,
		BankCode:      req.BankCode,
		Status:        entities.WithdrawalStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	// the PENDING row must exist before the debit: if the debit lands and a
	// later step fails, the row is the only record of the reserved funds
	if err := s.withdrawalRepo.Create(ctx, withdrawal); err != nil {
		return nil, err
	}

	if err := s.ledger.Debit(ctx, req.MerchantID, req.Amount); err != nil {
		if domainerrors.IsInsufficientBalance(err) {
			reason := "insufficient merchant balance"
			if updErr := s.withdrawalRepo.UpdateStatus(ctx, withdrawal.ID, entities.WithdrawalStatusFailed, &reason, nil); updErr != nil {
				s.logger.Error("Failed to mark withdrawal failed", "reference", withdrawal.Reference, "error", updErr)
			}
			withdrawal.Status = entities.WithdrawalStatusFailed
			withdrawal.FailureReason = &reason
			return withdrawal, err
		}
		return nil, err
	}

	payment, err := s.rail.SendFunds(ctx, &rail.SendFundsRequest{
		Amount:        req.Amount.StringFixed(2),
		AccountNumber: req.AccountNumber,
		AccountName:   req.AccountName,
		BankCode:      req.BankCode,
		MerchantTxRef: withdrawal.Reference,
		Narration:     "Merchant ledger withdrawal",
	})
	if err != nil {
		if domainerrors.IsRailPending(err) {
			// webhook resolves the final state
			s.logger.Info("Withdrawal awaiting rail confirmation", "reference", withdrawal.Reference)
			return withdrawal, nil
		}

		reason := err.Error()
		if updErr := s.withdrawalRepo.UpdateStatus(ctx, withdrawal.ID, entities.WithdrawalStatusFailed, &reason, nil); updErr != nil {
			s.logger.Error("Failed to mark withdrawal failed", "reference", withdrawal.Reference, "error", updErr)
		}
		withdrawal.Status = entities.WithdrawalStatusFailed
		withdrawal.FailureReason = &reason
		return withdrawal, err
	}

	if err := s.withdrawalRepo.UpdateStatus(ctx, withdrawal.ID, entities.WithdrawalStatusConfirmed, nil, &payment.ID); err != nil {
		return nil, err
	}
	withdrawal.Status = entities.WithdrawalStatusConfirmed
	withdrawal.RailPaymentID = &payment.ID

	s.logger.Info("Withdrawal confirmed", "reference", withdrawal.Reference, "payment_id", payment.ID)
	return withdrawal, nil
}

// Get retrieves a withdrawal by ID
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*entities.Withdrawal, error) {
	return s.withdrawalRepo.GetByID(ctx, id)
}

// ListByMerchant retrieves a merchant's withdrawals
func (s *Service) ListByMerchant(ctx context.Context, merchantID int64, limit, offset int) ([]*entities.Withdrawal, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.withdrawalRepo.GetByMerchant(ctx, merchantID, limit, offset)
}
