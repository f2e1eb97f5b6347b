package entities

import (
	"time"

	"github.com/shopspring/decimal"

	domainerrors "github.com/p2ramp/settlement_service/internal/domain/errors"
)

// Merchant is a liquidity provider funding fiat payouts. IDs are assigned by
// the escrow contract and referenced in trade-creation events, so the chain
// ID is the primary key rather than a UUID.
type Merchant struct {
	ID            int64           `db:"id" json:"id"`
	Name          string          `db:"name" json:"name"`
	Email         string          `db:"email" json:"email"`
	WalletAddress string          `db:"wallet_address" json:"walletAddress"`
	Balance       decimal.Decimal `db:"balance" json:"balance"`
	IsActive      bool            `db:"is_active" json:"isActive"`
	CreatedAt     time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updatedAt"`
}

// Advertisement is a merchant-posted rate with order-size bounds. Read-only
// from the settlement pipeline's perspective.
type Advertisement struct {
	ID         int64           `db:"id" json:"id"`
	MerchantID int64           `db:"merchant_id" json:"merchantId"`
	Rate       decimal.Decimal `db:"rate" json:"rate"`
	MinOrder   decimal.Decimal `db:"min_order" json:"minOrder"`
	MaxOrder   decimal.Decimal `db:"max_order" json:"maxOrder"`
	IsActive   bool            `db:"is_active" json:"isActive"`
	CreatedAt  time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt  time.Time       `db:"updated_at" json:"updatedAt"`
}

// Validate checks the ad's rate and order bounds
func (a *Advertisement) Validate() error {
	if !a.Rate.IsPositive() {
		return domainerrors.ValidationError("rate", "ad rate must be a positive number")
	}
	if a.MinOrder.GreaterThanOrEqual(a.MaxOrder) {
		return domainerrors.ValidationError("min_order", "minOrder must be less than maxOrder")
	}
	return nil
}

// RateQuote is the resolved pricing context for one settlement: the merchant,
// the rate applied, and the ad's order bounds at resolution time.
type RateQuote struct {
	Merchant *Merchant
	Rate     decimal.Decimal
	MinOrder decimal.Decimal
	MaxOrder decimal.Decimal
}
