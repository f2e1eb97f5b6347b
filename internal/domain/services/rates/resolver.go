package rates

import (
	"context"

	"github.com/p2ramp/settlement_service/internal/domain/entities"
	domainerrors "github.com/p2ramp/settlement_service/internal/domain/errors"
	"github.com/p2ramp/settlement_service/pkg/logger"
)

// AdRepository is the advertisement read port
type AdRepository interface {
	GetByID(ctx context.Context, id int64) (*entities.Advertisement, error)
}

// MerchantRepository is the merchant read port
type MerchantRepository interface {
	GetByID(ctx context.Context, id int64) (*entities.Merchant, error)
}

// Resolver resolves an advertisement into a priced settlement quote. Pure
// read path; no side effects.
type Resolver struct {
	adRepo       AdRepository
	merchantRepo MerchantRepository
	logger       *logger.Logger
}

// NewResolver creates a new rate resolver
func NewResolver(adRepo AdRepository, merchantRepo MerchantRepository, logger *logger.Logger) *Resolver {
	return &Resolver{
		adRepo:       adRepo,
		merchantRepo: merchantRepo,
		logger:       logger,
	}
}

// Resolve returns the merchant, rate, and order bounds for an advertisement.
// The rate returned is the ad's rate at resolution time; later ad edits do
// not affect settlements already priced.
func (r *Resolver) Resolve(ctx context.Context, adID int64) (*entities.RateQuote, error) {
	ad, err := r.adRepo.GetByID(ctx, adID)
	if err != nil {
		return nil, err
	}

	if !ad.IsActive {
		return nil, domainerrors.NotFoundError("advertisement")
	}
	if err := ad.Validate(); err != nil {
		return nil, err
	}

	merchant, err := r.merchantRepo.GetByID(ctx, ad.MerchantID)
	if err != nil {
		return nil, err
	}
	if !merchant.IsActive {
		return nil, domainerrors.NotFoundError("merchant")
	}

	return &entities.RateQuote{
		Merchant: merchant,
		Rate:     ad.Rate,
		MinOrder: ad.MinOrder,
		MaxOrder: ad.MaxOrder,
	}, nil
}
