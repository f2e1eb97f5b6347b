package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/p2ramp/settlement_service/internal/domain/entities"
	domainerrors "github.com/p2ramp/settlement_service/internal/domain/errors"
	"github.com/p2ramp/settlement_service/internal/infrastructure/database"
)

// MerchantRepository handles merchant ledger persistence. Balance mutations
// are single conditional UPDATEs so concurrent settlements against the same
// merchant serialize on the row without an explicit transaction.
type MerchantRepository struct {
	db *sqlx.DB
}

// NewMerchantRepository creates a new merchant repository
func NewMerchantRepository(db *sqlx.DB) *MerchantRepository {
	return &MerchantRepository{db: db}
}

// GetByID retrieves a merchant by chain-assigned ID
func (r *MerchantRepository) GetByID(ctx context.Context, id int64) (*entities.Merchant, error) {
	query := `
		SELECT id, name, email, wallet_address, balance, is_active, created_at, updated_at
		FROM merchants
		WHERE id = $1
	`

	var merchant entities.Merchant
	err := r.db.GetContext(ctx, &merchant, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domainerrors.NotFoundError("merchant")
		}
		return nil, fmt.Errorf("failed to get merchant: %w", err)
	}

	return &merchant, nil
}

// CreditByEmail resolves a merchant by email and credits the balance in one
// transaction, locking the row between lookup and write. Rail funding
// webhooks identify the payer by email only, so this is the credit path for
// inbound merchant funding.
func (r *MerchantRepository) CreditByEmail(ctx context.Context, email string, amount decimal.Decimal) (*entities.Merchant, error) {
	var merchant entities.Merchant

	err := database.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		query := `
			SELECT id, name, email, wallet_address, balance, is_active, created_at, updated_at
			FROM merchants
			WHERE LOWER(email) = LOWER($1)
			FOR UPDATE
		`
		if err := tx.GetContext(ctx, &merchant, query, email); err != nil {
			if err == sql.ErrNoRows {
				return domainerrors.NotFoundError("merchant")
			}
			return fmt.Errorf("failed to get merchant by email: %w", err)
		}

		update := `UPDATE merchants SET balance = balance + $1, updated_at = $2 WHERE id = $3`
		if _, err := tx.ExecContext(ctx, update, amount, time.Now(), merchant.ID); err != nil {
			return fmt.Errorf("failed to credit merchant balance: %w", err)
		}

		merchant.Balance = merchant.Balance.Add(amount)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &merchant, nil
}

// DebitBalance atomically subtracts amount from the merchant's ledger
// balance. Returns ErrInsufficientBalance when the balance cannot cover the
// debit; the balance check and the subtraction are a single statement.
func (r *MerchantRepository) DebitBalance(ctx context.Context, merchantID int64, amount decimal.Decimal) error {
	query := `
		UPDATE merchants
		SET balance = balance - $1, updated_at = $2
		WHERE id = $3 AND balance >= $1
	`

	result, err := r.db.ExecContext(ctx, query, amount, time.Now(), merchantID)
	if err != nil {
		return fmt.Errorf("failed to debit merchant balance: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if rows == 0 {
		merchant, getErr := r.GetByID(ctx, merchantID)
		if getErr != nil {
			return getErr
		}
		return domainerrors.InsufficientBalanceError(merchant.Balance.String(), amount.String())
	}

	return nil
}

// CreditBalance atomically adds amount to the merchant's ledger balance
func (r *MerchantRepository) CreditBalance(ctx context.Context, merchantID int64, amount decimal.Decimal) error {
	query := `
		UPDATE merchants
		SET balance = balance + $1, updated_at = $2
		WHERE id = $3
	`

	result, err := r.db.ExecContext(ctx, query, amount, time.Now(), merchantID)
	if err != nil {
		return fmt.Errorf("failed to credit merchant balance: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if rows == 0 {
		return domainerrors.NotFoundError("merchant")
	}

	return nil
}

// ListActive retrieves all active merchants
func (r *MerchantRepository) ListActive(ctx context.Context) ([]*entities.Merchant, error) {
	query := `
		SELECT id, name, email, wallet_address, balance, is_active, created_at, updated_at
		FROM merchants
		WHERE is_active = true
		ORDER BY id ASC
	`

	var merchants []*entities.Merchant
	err := r.db.SelectContext(ctx, &merchants, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list active merchants: %w", err)
	}

	return merchants, nil
}
