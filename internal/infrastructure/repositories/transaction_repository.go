package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/p2ramp/settlement_service/internal/domain/entities"
	domainerrors "github.com/p2ramp/settlement_service/internal/domain/errors"
)

// TransactionRepository handles settlement transaction persistence. The
// tx_hash column carries a unique constraint; Create surfaces a duplicate
// insert as ErrAlreadyExists so the caller can fall back to the existing row.
type TransactionRepository struct {
	db *sqlx.DB
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(db *sqlx.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Create inserts a new settlement transaction
func (r *TransactionRepository) Create(ctx context.Context, tx *entities.Transaction) error {
	query := `
		INSERT INTO transactions (
			id, tx_hash, trade_id, buyer_address, merchant_id, ad_id, block_number,
			amount_raw, amount_tokens, payout_amount, rate,
			account_name, account_number, bank_code,
			status, failure_reason, rail_payment_id, ledger_debited, metadata, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
	`

	_, err := r.db.ExecContext(ctx, query,
		tx.ID,
		tx.TxHash,
		tx.TradeID,
		tx.BuyerAddress,
		tx.MerchantID,
		tx.AdID,
		tx.BlockNumber,
		tx.AmountRaw,
		tx.AmountTokens,
		tx.PayoutAmount,
		tx.Rate,
		tx.AccountName,
		tx.AccountNumber,
		tx.BankCode,
		tx.Status,
		tx.FailureReason,
		tx.RailPaymentID,
		tx.LedgerDebited,
		tx.Metadata,
		tx.CreatedAt,
		tx.UpdatedAt,
	)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return domainerrors.ErrAlreadyExists
		}
		return fmt.Errorf("failed to create transaction: %w", err)
	}

	return nil
}

// GetByID retrieves a transaction by ID
func (r *TransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`

	var tx entities.Transaction
	err := r.db.GetContext(ctx, &tx, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domainerrors.NotFoundError("transaction")
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}

	return &tx, nil
}

// GetByTxHash retrieves the transaction for a chain transaction hash
func (r *TransactionRepository) GetByTxHash(ctx context.Context, txHash string) (*entities.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE tx_hash = $1`

	var tx entities.Transaction
	err := r.db.GetContext(ctx, &tx, query, txHash)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domainerrors.NotFoundError("transaction")
		}
		return nil, fmt.Errorf("failed to get transaction by hash: %w", err)
	}

	return &tx, nil
}

// UpdateStatus moves a transaction to a new status with a guard against
// overwriting terminal rows. Returns ErrTerminalState when the row is already
// CONFIRMED or CANCELLED.
func (r *TransactionRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status entities.TransactionStatus, failureReason, railPaymentID *string) error {
	query := `
		UPDATE transactions
		SET status = $1, failure_reason = $2, rail_payment_id = COALESCE($3, rail_payment_id), updated_at = $4
		WHERE id = $5 AND status NOT IN ('CONFIRMED', 'CANCELLED')
	`

	result, err := r.db.ExecContext(ctx, query, status, failureReason, railPaymentID, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update transaction status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if rows == 0 {
		var current entities.Transaction
		if getErr := r.db.GetContext(ctx, &current, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id); getErr != nil {
			if getErr == sql.ErrNoRows {
				return domainerrors.NotFoundError("transaction")
			}
			return fmt.Errorf("failed to check transaction state: %w", getErr)
		}
		return domainerrors.ErrTerminalState
	}

	return nil
}

// MarkRetried resets a FAILED transaction to PENDING for a retriggered event.
// The pricing is recomputed on every attempt, so the retry persists the fresh
// amounts and rate over whatever the failed attempt recorded. The retry
// timestamp lands in metadata; ledger_debited survives from the prior attempt
// because a debit already reserved stays reserved.
func (r *TransactionRepository) MarkRetried(ctx context.Context, id uuid.UUID, amountTokens, payout, rate decimal.Decimal) error {
	query := `
		UPDATE transactions
		SET status = 'PENDING', failure_reason = NULL,
			amount_tokens = $1, payout_amount = $2, rate = $3,
			metadata = COALESCE(metadata, '{}'::jsonb) || jsonb_build_object('retried_at', $4::text),
			updated_at = $5
		WHERE id = $6 AND status = 'FAILED'
	`

	now := time.Now()
	result, err := r.db.ExecContext(ctx, query, amountTokens, payout, rate, now.UTC().Format(time.RFC3339), now, id)
	if err != nil {
		return fmt.Errorf("failed to reset transaction for retry: %w", err)
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

// MarkDebited records that the merchant ledger was debited for a transaction.
// The reconciliation report keys off this flag to find reserved funds whose
// payout never settled.
func (r *TransactionRepository) MarkDebited(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE transactions SET ledger_debited = TRUE, updated_at = $1 WHERE id = $2`

	_, err := r.db.ExecContext(ctx, query, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to mark transaction debited: %w", err)
	}

	return nil
}

// AppendMeta merges keys into a transaction's metadata without touching the
// rest of the row
func (r *TransactionRepository) AppendMeta(ctx context.Context, id uuid.UUID, meta entities.Metadata) error {
	query := `
		UPDATE transactions
		SET metadata = COALESCE(metadata, '{}'::jsonb) || $1::jsonb, updated_at = $2
		WHERE id = $3
	`

	_, err := r.db.ExecContext(ctx, query, meta, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to append transaction metadata: %w", err)
	}

	return nil
}

// ListByStatus retrieves transactions in a given status, oldest first
func (r *TransactionRepository) ListByStatus(ctx context.Context, status entities.TransactionStatus, limit int) ([]*entities.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2
	`

	var txs []*entities.Transaction
	err := r.db.SelectContext(ctx, &txs, query, status, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}

	return txs, nil
}

// ListPendingOlderThan retrieves PENDING transactions created before cutoff.
// Used by the reconciliation report to flag settlements stuck waiting on a
// rail webhook that never arrived.
func (r *TransactionRepository) ListPendingOlderThan(ctx context.Context, cutoff time.Time) ([]*entities.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE status = 'PENDING' AND created_at < $1
		ORDER BY created_at ASC
	`

	var txs []*entities.Transaction
	err := r.db.SelectContext(ctx, &txs, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale pending transactions: %w", err)
	}

	return txs, nil
}

const transactionColumns = `id, tx_hash, trade_id, buyer_address, merchant_id, ad_id, block_number,
	amount_raw, amount_tokens, payout_amount, rate,
	account_name, account_number, bank_code,
	status, failure_reason, rail_payment_id, ledger_debited, metadata, created_at, updated_at`
