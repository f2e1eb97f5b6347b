// Package reconciliation reports the gaps the settlement pipeline leaves
// open by design: ledger debits are never automatically credited back when a
// payout ultimately fails, and PENDING settlements rely on a webhook that may
// never arrive. The periodic report surfaces both for manual follow-up.
package reconciliation

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/p2ramp/settlement_service/internal/adapters/rail"
	"github.com/p2ramp/settlement_service/internal/domain/entities"
	"github.com/p2ramp/settlement_service/pkg/logger"
)

// TransactionRepository is the reconciliation read port
type TransactionRepository interface {
	ListByStatus(ctx context.Context, status entities.TransactionStatus, limit int) ([]*entities.Transaction, error)
	ListPendingOlderThan(ctx context.Context, cutoff time.Time) ([]*entities.Transaction, error)
}

// RailClient looks up transfer state for stale settlements
type RailClient interface {
	GetTransferStatus(ctx context.Context, reference string) (*rail.Payment, error)
}

// Report summarizes the pipeline's open reconciliation items
type Report struct {
	GeneratedAt      time.Time               `json:"generatedAt"`
	ReservedUnspent  []*entities.Transaction `json:"reservedUnspent"`
	ReservedTotal    decimal.Decimal         `json:"reservedTotal"`
	StalePending     []*entities.Transaction `json:"stalePending"`
	StalePendingAges []time.Duration         `json:"-"`
}

// Service builds reconciliation reports
type Service struct {
	txRepo     TransactionRepository
	rail       RailClient
	pendingAge time.Duration
	logger     *logger.Logger
}

// NewService creates a new reconciliation service
func NewService(txRepo TransactionRepository, railClient RailClient, pendingAge time.Duration, logger *logger.Logger) *Service {
	return &Service{
		txRepo:     txRepo,
		rail:       railClient,
		pendingAge: pendingAge,
		logger:     logger,
	}
}

// Run builds the report and logs every open item. FAILED settlements whose
// rail transfer was actually attempted still hold their ledger debit; those
// are the reserved-but-unspent funds an operator must credit back manually.
func (s *Service) Run(ctx context.Context) (*Report, error) {
	report := &Report{
		GeneratedAt:   time.Now(),
		ReservedTotal: decimal.Zero,
	}

	failed, err := s.txRepo.ListByStatus(ctx, entities.TransactionStatusFailed, 500)
	if err != nil {
		return nil, err
	}
	for _, tx := range failed {
		// the orchestrator flags the row the moment the debit lands, so
		// validation and balance failures never carry the flag
		if !tx.LedgerDebited {
			continue
		}
		report.ReservedUnspent = append(report.ReservedUnspent, tx)
		report.ReservedTotal = report.ReservedTotal.Add(tx.PayoutAmount)

		s.logger.Warn("Reserved ledger funds without settled payout",
			"tx_hash", tx.TxHash,
			"merchant_id", tx.MerchantID,
			"payout", tx.PayoutAmount.String(),
			"reason", stringOrEmpty(tx.FailureReason),
		)
	}

	cutoff := time.Now().Add(-s.pendingAge)
	stale, err := s.txRepo.ListPendingOlderThan(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	for _, tx := range stale {
		report.StalePending = append(report.StalePending, tx)
		report.StalePendingAges = append(report.StalePendingAges, time.Since(tx.CreatedAt))

		age := time.Since(tx.CreatedAt).Round(time.Minute)
		fields := []interface{}{
			"tx_hash", tx.TxHash,
			"merchant_id", tx.MerchantID,
			"age", age.String(),
		}

		// ask the rail what it thinks; log only, the webhook stays the
		// authority for state transitions
		if payment, railErr := s.rail.GetTransferStatus(ctx, tx.TxHash); railErr == nil {
			fields = append(fields, "rail_status", payment.Status)
		} else {
			fields = append(fields, "rail_lookup_error", railErr.Error())
		}

		s.logger.Warn("Settlement pending beyond threshold", fields...)
	}

	s.logger.Info("Reconciliation report complete",
		"reserved_unspent", len(report.ReservedUnspent),
		"reserved_total", report.ReservedTotal.String(),
		"stale_pending", len(report.StalePending),
	)

	return report, nil
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
