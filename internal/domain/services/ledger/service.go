package ledger

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/p2ramp/settlement_service/internal/domain/entities"
	"github.com/p2ramp/settlement_service/pkg/logger"
)

// MerchantRepository is the ledger's persistence port. Debit and Credit are
// atomic per merchant row.
type MerchantRepository interface {
	GetByID(ctx context.Context, id int64) (*entities.Merchant, error)
	DebitBalance(ctx context.Context, merchantID int64, amount decimal.Decimal) error
	CreditBalance(ctx context.Context, merchantID int64, amount decimal.Decimal) error
	CreditByEmail(ctx context.Context, email string, amount decimal.Decimal) (*entities.Merchant, error)
}

// Service owns all merchant balance mutation. Nothing else in the pipeline
// writes balances directly.
type Service struct {
	merchantRepo MerchantRepository
	logger       *logger.Logger
}

// NewService creates a new ledger service
func NewService(merchantRepo MerchantRepository, logger *logger.Logger) *Service {
	return &Service{
		merchantRepo: merchantRepo,
		logger:       logger,
	}
}

// Balance returns a merchant's current ledger balance
func (s *Service) Balance(ctx context.Context, merchantID int64) (decimal.Decimal, error) {
	merchant, err := s.merchantRepo.GetByID(ctx, merchantID)
	if err != nil {
		return decimal.Zero, err
	}
	return merchant.Balance, nil
}

// Debit reserves amount from the merchant's balance. Returns
// ErrInsufficientBalance without mutating anything when the balance cannot
// cover the amount.
func (s *Service) Debit(ctx context.Context, merchantID int64, amount decimal.Decimal) error {
	if err := s.merchantRepo.DebitBalance(ctx, merchantID, amount); err != nil {
		return err
	}

	s.logger.Info("Debited merchant ledger",
		"merchant_id", merchantID,
		"amount", amount.String(),
	)
	return nil
}

// Credit adds amount to the merchant's balance
func (s *Service) Credit(ctx context.Context, merchantID int64, amount decimal.Decimal) error {
	if err := s.merchantRepo.CreditBalance(ctx, merchantID, amount); err != nil {
		return err
	}

	s.logger.Info("Credited merchant ledger",
		"merchant_id", merchantID,
		"amount", amount.String(),
	)
	return nil
}

// CreditByEmail credits the merchant matching email. Used by the funding
// webhook path, where the rail identifies the payer by email only.
func (s *Service) CreditByEmail(ctx context.Context, email string, amount decimal.Decimal) (*entities.Merchant, error) {
	merchant, err := s.merchantRepo.CreditByEmail(ctx, email, amount)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Credited merchant ledger from funding payment",
		"merchant_id", merchant.ID,
		"amount", amount.String(),
	)
	return merchant, nil
}
