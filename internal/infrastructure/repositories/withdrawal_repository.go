package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/p2ramp/settlement_service/internal/domain/entities"
	domainerrors "github.com/p2ramp/settlement_service/internal/domain/errors"
)

// WithdrawalRepository handles merchant withdrawal persistence
type WithdrawalRepository struct {
	db *sqlx.DB
}

// NewWithdrawalRepository creates a new withdrawal repository
func NewWithdrawalRepository(db *sqlx.DB) *WithdrawalRepository {
	return &WithdrawalRepository{db: db}
}

// Create inserts a new withdrawal record
func (r *WithdrawalRepository) Create(ctx context.Context, withdrawal *entities.Withdrawal) error {
	query := `
		INSERT INTO withdrawals (
			id, reference, merchant_id, amount, account_name, account_number, bank_code,
			status, failure_reason, rail_payment_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.db.ExecContext(ctx, query,
		withdrawal.ID,
		withdrawal.Reference,
		withdrawal.MerchantID,
		withdrawal.Amount,
		withdrawal.AccountName,
		withdrawal.AccountNumber,
		withdrawal.BankCode,
		withdrawal.Status,
		withdrawal.FailureReason,
		withdrawal.RailPaymentID,
		withdrawal.CreatedAt,
		withdrawal.UpdatedAt,
	)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return domainerrors.ErrAlreadyExists
		}
		return fmt.Errorf("failed to create withdrawal: %w", err)
	}

	return nil
}

// GetByID retrieves a withdrawal by ID
func (r *WithdrawalRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.Withdrawal, error) {
	query := `
		SELECT id, reference, merchant_id, amount, account_name, account_number, bank_code,
			status, failure_reason, rail_payment_id, created_at, updated_at
		FROM withdrawals
		WHERE id = $1
	`

	var withdrawal entities.Withdrawal
	err := r.db.GetContext(ctx, &withdrawal, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domainerrors.NotFoundError("withdrawal")
		}
		return nil, fmt.Errorf("failed to get withdrawal: %w", err)
	}

	return &withdrawal, nil
}

// GetByReference retrieves a withdrawal by its rail reference
func (r *WithdrawalRepository) GetByReference(ctx context.Context, reference string) (*entities.Withdrawal, error) {
	query := `
		SELECT id, reference, merchant_id, amount, account_name, account_number, bank_code,
			status, failure_reason, rail_payment_id, created_at, updated_at
		FROM withdrawals
		WHERE reference = $1
	`

	var withdrawal entities.Withdrawal
	err := r.db.GetContext(ctx, &withdrawal, query, reference)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domainerrors.NotFoundError("withdrawal")
		}
		return nil, fmt.Errorf("failed to get withdrawal by reference: %w", err)
	}

	return &withdrawal, nil
}

// GetByMerchant retrieves a merchant's withdrawals, newest first
func (r *WithdrawalRepository) GetByMerchant(ctx context.Context, merchantID int64, limit, offset int) ([]*entities.Withdrawal, error) {
	query := `
		SELECT id, reference, merchant_id, amount, account_name, account_number, bank_code,
			status, failure_reason, rail_payment_id, created_at, updated_at
		FROM withdrawals
		WHERE merchant_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	var withdrawals []*entities.Withdrawal
	err := r.db.SelectContext(ctx, &withdrawals, query, merchantID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get withdrawals: %w", err)
	}

	return withdrawals, nil
}

// UpdateStatus moves a withdrawal to a new status, skipping terminal rows
func (r *WithdrawalRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status entities.WithdrawalStatus, failureReason, railPaymentID *string) error {
	query := `
		UPDATE withdrawals
		SET status = $1, failure_reason = $2, rail_payment_id = COALESCE($3, rail_payment_id), updated_at = $4
		WHERE id = $5 AND status != 'CONFIRMED'
	`

	result, err := r.db.ExecContext(ctx, query, status, failureReason, railPaymentID, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update withdrawal status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if rows == 0 {
		return domainerrors.ErrTerminalState
	}

	return nil
}
