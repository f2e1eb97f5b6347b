package entities

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeCreatedEvent is one decoded trade-creation log from the escrow
// contract. Amount is in the token's smallest integer unit; conversion to
// token units happens at settlement time using the configured decimals.
type TradeCreatedEvent struct {
	TradeID       int64
	BuyerAddress  string
	MerchantID    int64
	AdID          int64
	AccountName   string
	AccountNumber string
	BankCode      string
	Amount        decimal.Decimal
	Timestamp     time.Time
	TxHash        string
	BlockNumber   uint64
	LogIndex      uint
}
