package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// WithdrawalStatus mirrors TransactionStatus for merchant-initiated payouts
type WithdrawalStatus string

const (
	WithdrawalStatusPending   WithdrawalStatus = "PENDING"
	WithdrawalStatusConfirmed WithdrawalStatus = "CONFIRMED"
	WithdrawalStatusFailed    WithdrawalStatus = "FAILED"
)

// IsTerminal returns true when the withdrawal can no longer change status
func (s WithdrawalStatus) IsTerminal() bool {
	return s == WithdrawalStatusConfirmed
}

// Withdrawal is a merchant-initiated payout of ledger funds to their own bank
// account. It shares the payment rail contract and the ledger store with
// deposit settlements; the Reference is the rail's idempotency key.
type Withdrawal struct {
	ID            uuid.UUID        `db:"id" json:"id"`
	Reference     string           `db:"reference" json:"reference"`
	MerchantID    int64            `db:"merchant_id" json:"merchantId"`
	Amount        decimal.Decimal  `db:"amount" json:"amount"`
	AccountName   string           `db:"account_name" json:"accountName"`
	AccountNumber string           `db:"account_number" json:"accountNumber"`
	BankCode      string           `db:"bank_code" json:"bankCode"`
	Status        WithdrawalStatus `db:"status" json:"status"`
	FailureReason *string          `db:"failure_reason" json:"failureReason,omitempty"`
	RailPaymentID *string          `db:"rail_payment_id" json:"railPaymentId,omitempty"`
	CreatedAt     time.Time        `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time        `db:"updated_at" json:"updatedAt"`
}

// WithdrawalReferencePrefix distinguishes withdrawal rail references from
// deposit references (which are chain tx hashes).
const WithdrawalReferencePrefix = "wd-"
