package entities

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionStatus represents the settlement state of a deposit
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "PENDING"
	TransactionStatusConfirmed TransactionStatus = "CONFIRMED"
	TransactionStatusFailed    TransactionStatus = "FAILED"
	TransactionStatusCancelled TransactionStatus = "CANCELLED"
)

// ValidTransactionStatuses contains all valid transaction statuses
var ValidTransactionStatuses = map[TransactionStatus]bool{
	TransactionStatusPending:   true,
	TransactionStatusConfirmed: true,
	TransactionStatusFailed:    true,
	TransactionStatusCancelled: true,
}

// ValidTransactionTransitions defines allowed status transitions. PENDING is
// the only re-enterable state; FAILED may be re-entered as PENDING when the
// source event is retriggered.
var ValidTransactionTransitions = map[TransactionStatus][]TransactionStatus{
	TransactionStatusPending:   {TransactionStatusConfirmed, TransactionStatusFailed, TransactionStatusCancelled},
	TransactionStatusFailed:    {TransactionStatusPending, TransactionStatusConfirmed},
	TransactionStatusConfirmed: {}, // terminal
	TransactionStatusCancelled: {}, // terminal
}

// IsValid checks if the status is a known transaction status
func (s TransactionStatus) IsValid() bool {
	return ValidTransactionStatuses[s]
}

// IsTerminal returns true once no further mutation may change the status
func (s TransactionStatus) IsTerminal() bool {
	return s == TransactionStatusConfirmed || s == TransactionStatusCancelled
}

// CanTransitionTo checks whether moving to newStatus is allowed
func (s TransactionStatus) CanTransitionTo(newStatus TransactionStatus) bool {
	for _, allowed := range ValidTransactionTransitions[s] {
		if allowed == newStatus {
			return true
		}
	}
	return false
}

// Metadata is the free-form context stored with a transaction: the original
// chain event, rail responses, retry timestamps. Persisted as JSONB.
type Metadata map[string]interface{}

// Value implements driver.Valuer for JSONB storage
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner
func (m *Metadata) Scan(src interface{}) error {
	if src == nil {
		*m = nil
		return nil
	}
	data, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("unsupported metadata type %T", src)
	}
	return json.Unmarshal(data, m)
}

// Transaction is one attempted deposit-to-payout settlement. The chain
// transaction hash is the idempotency key: at most one row exists per hash.
type Transaction struct {
	ID            uuid.UUID         `db:"id" json:"id"`
	TxHash        string            `db:"tx_hash" json:"txHash"`
	TradeID       int64             `db:"trade_id" json:"tradeId"`
	BuyerAddress  string            `db:"buyer_address" json:"buyerAddress"`
	MerchantID    int64             `db:"merchant_id" json:"merchantId"`
	AdID          int64             `db:"ad_id" json:"adId"`
	BlockNumber   int64             `db:"block_number" json:"blockNumber"`
	AmountRaw     decimal.Decimal   `db:"amount_raw" json:"amountRaw"`
	AmountTokens  decimal.Decimal   `db:"amount_tokens" json:"amountTokens"`
	PayoutAmount  decimal.Decimal   `db:"payout_amount" json:"payoutAmount"`
	Rate          decimal.Decimal   `db:"rate" json:"rate"`
	AccountName   string            `db:"account_name" json:"accountName"`
	AccountNumber string            `db:"account_number" json:"accountNumber"`
	BankCode      string            `db:"bank_code" json:"bankCode"`
	Status        TransactionStatus `db:"status" json:"status"`
	FailureReason *string           `db:"failure_reason" json:"failureReason,omitempty"`
	RailPaymentID *string           `db:"rail_payment_id" json:"railPaymentId,omitempty"`
	LedgerDebited bool              `db:"ledger_debited" json:"ledgerDebited"`
	Metadata      Metadata          `db:"metadata" json:"metadata,omitempty"`
	CreatedAt     time.Time         `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time         `db:"updated_at" json:"updatedAt"`
}

// MarkConfirmed records a successful payout
func (t *Transaction) MarkConfirmed(railPaymentID string) {
	t.Status = TransactionStatusConfirmed
	t.RailPaymentID = &railPaymentID
	t.UpdatedAt = time.Now()
}

// MarkFailed records a terminal settlement failure
func (t *Transaction) MarkFailed(reason string) {
	t.Status = TransactionStatusFailed
	t.FailureReason = &reason
	t.UpdatedAt = time.Now()
}

// SetMeta sets a metadata key, allocating the map on first use
func (t *Transaction) SetMeta(key string, value interface{}) {
	if t.Metadata == nil {
		t.Metadata = Metadata{}
	}
	t.Metadata[key] = value
}
