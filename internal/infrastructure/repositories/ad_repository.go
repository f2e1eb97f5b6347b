package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/p2ramp/settlement_service/internal/domain/entities"
	domainerrors "github.com/p2ramp/settlement_service/internal/domain/errors"
)

// AdRepository handles advertisement reads. Ads are written by the trading
// surface; the settlement pipeline only resolves rates from them.
type AdRepository struct {
	db *sqlx.DB
}

// NewAdRepository creates a new advertisement repository
func NewAdRepository(db *sqlx.DB) *AdRepository {
	return &AdRepository{db: db}
}

// GetByID retrieves an advertisement by ID
func (r *AdRepository) GetByID(ctx context.Context, id int64) (*entities.Advertisement, error) {
	query := `
		SELECT id, merchant_id, rate, min_order, max_order, is_active, created_at, updated_at
		FROM advertisements
		WHERE id = $1
	`

	var ad entities.Advertisement
	err := r.db.GetContext(ctx, &ad, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domainerrors.NotFoundError("advertisement")
		}
		return nil, fmt.Errorf("failed to get advertisement: %w", err)
	}

	return &ad, nil
}

// GetActiveByMerchant retrieves a merchant's active advertisements
func (r *AdRepository) GetActiveByMerchant(ctx context.Context, merchantID int64) ([]*entities.Advertisement, error) {
	query := `
		SELECT id, merchant_id, rate, min_order, max_order, is_active, created_at, updated_at
		FROM advertisements
		WHERE merchant_id = $1 AND is_active = true
		ORDER BY id ASC
	`

	var ads []*entities.Advertisement
	err := r.db.SelectContext(ctx, &ads, query, merchantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list merchant advertisements: %w", err)
	}

	return ads, nil
}
