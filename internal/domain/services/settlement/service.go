// Package settlement implements the deposit orchestrator: it turns one
// on-chain trade-creation event into one reconciled transaction record,
// coordinating the rate resolver, the merchant ledger, the payment rail, and
// the escrow contract's completion call.
package settlement

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/p2ramp/settlement_service/internal/adapters/rail"
	"github.com/p2ramp/settlement_service/internal/domain/entities"
	domainerrors "github.com/p2ramp/settlement_service/internal/domain/errors"
	"github.com/p2ramp/settlement_service/pkg/logger"
	"github.com/p2ramp/settlement_service/pkg/metrics"
	"github.com/p2ramp/settlement_service/pkg/security"
)

// Outcome is the result of settling one chain event
type Outcome string

const (
	// OutcomeAlreadyProcessed means a non-FAILED transaction already exists
	// for the event's hash
	OutcomeAlreadyProcessed Outcome = "already_processed"
	// OutcomePendingExternally means the rail accepted the transfer but has
	// not resolved it; the webhook decides the final state
	OutcomePendingExternally Outcome = "pending_externally"
	// OutcomeConfirmed means the payout settled
	OutcomeConfirmed Outcome = "confirmed"
	// OutcomeFailed means the settlement failed terminally
	OutcomeFailed Outcome = "failed"
)

// TransactionRepository is the orchestrator's transaction persistence port
type TransactionRepository interface {
	Create(ctx context.Context, tx *entities.Transaction) error
	GetByTxHash(ctx context.Context, txHash string) (*entities.Transaction, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status entities.TransactionStatus, failureReason, railPaymentID *string) error
	MarkRetried(ctx context.Context, id uuid.UUID, amountTokens, payout, rate decimal.Decimal) error
	MarkDebited(ctx context.Context, id uuid.UUID) error
	AppendMeta(ctx context.Context, id uuid.UUID, meta entities.Metadata) error
}

// RateResolver prices an advertisement
type RateResolver interface {
	Resolve(ctx context.Context, adID int64) (*entities.RateQuote, error)
}

// Ledger is the merchant balance port
type Ledger interface {
	Balance(ctx context.Context, merchantID int64) (decimal.Decimal, error)
	Debit(ctx context.Context, merchantID int64, amount decimal.Decimal) error
}

// RailClient initiates bank transfers
type RailClient interface {
	SendFunds(ctx context.Context, req *rail.SendFundsRequest) (*rail.Payment, error)
}

// TradeCompleter marks trades complete on the escrow contract
type TradeCompleter interface {
	CompleteTrade(ctx context.Context, tradeID int64) (string, error)
}

// Service is the deposit orchestrator
type Service struct {
	txRepo        TransactionRepository
	rates         RateResolver
	ledger        Ledger
	rail          RailClient
	escrow        TradeCompleter
	tokenDecimals int32
	logger        *logger.Logger
}

// NewService creates a new settlement orchestrator
func NewService(
	txRepo TransactionRepository,
	rates RateResolver,
	ledger Ledger,
	railClient RailClient,
	escrow TradeCompleter,
	tokenDecimals int,
	logger *logger.Logger,
) *Service {
	return &Service{
		txRepo:        txRepo,
		rates:         rates,
		ledger:        ledger,
		rail:          railClient,
		escrow:        escrow,
		tokenDecimals: int32(tokenDecimals),
		logger:        logger,
	}
}

// Settle reconciles one trade-creation event end to end. The event's
// transaction hash is the idempotency key: a second delivery of the same
// event short-circuits without touching the ledger. A prior FAILED row for
// the hash is reused as a retry rather than duplicated.
//
// The ledger debit is optimistic: funds are reserved before the rail
// confirms, and a later rail failure does not credit them back. Reserved but
// unspent funds surface in the reconciliation report instead.
func (s *Service) Settle(ctx context.Context, event *entities.TradeCreatedEvent) (Outcome, error) {
	log := s.logger.With("tx_hash", event.TxHash, "trade_id", event.TradeID)

	existing, err := s.txRepo.GetByTxHash(ctx, event.TxHash)
	var retryOf *entities.Transaction
	if err == nil {
		if existing.Status != entities.TransactionStatusFailed {
			log.Info("Event already processed", "status", existing.Status)
			metrics.SettlementsTotal.WithLabelValues(string(OutcomeAlreadyProcessed)).Inc()
			return OutcomeAlreadyProcessed, nil
		}
		retryOf = existing
		log.Info("Retrying previously failed settlement", "transaction_id", existing.ID)
	} else if !domainerrors.IsNotFound(err) {
		return "", err
	}

	quote, err := s.rates.Resolve(ctx, event.AdID)
	if err != nil {
		log.Error("Failed to resolve advertisement", "ad_id", event.AdID, "error", err)
		return s.fail(ctx, event, retryOf, decimal.Zero, decimal.Zero, decimal.Zero, err.Error())
	}
	if !quote.Rate.IsPositive() {
		return s.fail(ctx, event, retryOf, decimal.Zero, decimal.Zero, quote.Rate, "ad rate is not a positive number")
	}

	amountTokens := event.Amount.Shift(-s.tokenDecimals)
	if !amountTokens.IsPositive() {
		return s.fail(ctx, event, retryOf, amountTokens, decimal.Zero, quote.Rate, "deposited amount is not a positive number")
	}
	payout := amountTokens.Mul(quote.Rate)

	balance, err := s.ledger.Balance(ctx, event.MerchantID)
	if err != nil {
		return "", err
	}
	if balance.LessThan(payout) {
		log.Warn("Insufficient merchant balance",
			"merchant_id", event.MerchantID,
			"balance", balance.String(),
			"payout", payout.String(),
		)
		return s.fail(ctx, event, retryOf, amountTokens, payout, quote.Rate, "insufficient merchant balance")
	}

	// the PENDING row must exist before any external call: the webhook
	// reconciler and later idempotency checks key off it
	tx := s.buildTransaction(event, amountTokens, payout, quote.Rate, entities.TransactionStatusPending)
	if retryOf != nil {
		// the stored pricing is from the failed attempt; the retry moves
		// money with the fresh quote, so the row must carry it too
		tx.ID = retryOf.ID
		if err := s.txRepo.MarkRetried(ctx, retryOf.ID, amountTokens, payout, quote.Rate); err != nil {
			return "", err
		}
	} else {
		if err := s.txRepo.Create(ctx, tx); err != nil {
			if errors.Is(err, domainerrors.ErrAlreadyExists) {
				// concurrent delivery won the insert race
				metrics.SettlementsTotal.WithLabelValues(string(OutcomeAlreadyProcessed)).Inc()
				return OutcomeAlreadyProcessed, nil
			}
			return "", err
		}
	}

	// reserve funds before the rail call; the conditional debit guards the
	// balance check above against concurrent settlements
	if err := s.ledger.Debit(ctx, event.MerchantID, payout); err != nil {
		if domainerrors.IsInsufficientBalance(err) {
			reason := "insufficient merchant balance"
			if updErr := s.txRepo.UpdateStatus(ctx, tx.ID, entities.TransactionStatusFailed, &reason, nil); updErr != nil {
				log.Error("Failed to mark transaction failed", "error", updErr)
			}
			metrics.SettlementsTotal.WithLabelValues(string(OutcomeFailed)).Inc()
			return OutcomeFailed, nil
		}
		return "", err
	}
	if err := s.txRepo.MarkDebited(ctx, tx.ID); err != nil {
		// the report under-counts reserved funds until the row is touched
		// again; not worth failing the settlement over
		log.Error("Failed to record ledger debit marker", "error", err)
	}

	payment, err := s.rail.SendFunds(ctx, &rail.SendFundsRequest{
		Amount:        payout.StringFixed(2),
		AccountNumber: event.AccountNumber,
		AccountName:   event.AccountName,
		BankCode:      event.BankCode,
		MerchantTxRef: event.TxHash,
		Narration:     "P2P trade settlement",
	})
	if err != nil {
		if domainerrors.IsRailPending(err) {
			// final state arrives by webhook; the debit stays reserved
			log.Info("Rail processing, awaiting webhook", "payout", payout.String())
			metrics.SettlementsTotal.WithLabelValues(string(OutcomePendingExternally)).Inc()
			return OutcomePendingExternally, nil
		}

		reason := err.Error()
		if updErr := s.txRepo.UpdateStatus(ctx, tx.ID, entities.TransactionStatusFailed, &reason, nil); updErr != nil {
			log.Error("Failed to mark transaction failed", "error", updErr)
		}
		log.Error("Rail transfer failed", "error", err)
		metrics.SettlementsTotal.WithLabelValues(string(OutcomeFailed)).Inc()
		return OutcomeFailed, nil
	}

	// payment has left the building: on-chain completion is advisory
	// bookkeeping, never a condition of success
	if _, err := s.escrow.CompleteTrade(ctx, event.TradeID); err != nil {
		log.Error("Trade completion call failed", "error", err)
	}

	if err := s.txRepo.UpdateStatus(ctx, tx.ID, entities.TransactionStatusConfirmed, nil, &payment.ID); err != nil {
		log.Error("Failed to mark transaction confirmed", "payment_id", payment.ID, "error", err)
		return "", err
	}

	if err := s.txRepo.AppendMeta(ctx, tx.ID, entities.Metadata{
		"rail_response": map[string]interface{}{
			"id":        payment.ID,
			"reference": payment.Reference,
			"status":    payment.Status,
		},
	}); err != nil {
		log.Error("Failed to record rail response", "payment_id", payment.ID, "error", err)
	}

	log.Info("Settlement confirmed",
		"payout", payout.String(),
		"payment_id", payment.ID,
		"buyer", security.MaskAddress(event.BuyerAddress),
	)
	metrics.SettlementsTotal.WithLabelValues(string(OutcomeConfirmed)).Inc()
	return OutcomeConfirmed, nil
}

// fail records a terminal failure, inserting a FAILED row when none exists
// yet or resetting the reused retry row.
func (s *Service) fail(ctx context.Context, event *entities.TradeCreatedEvent, retryOf *entities.Transaction, amountTokens, payout, rate decimal.Decimal, reason string) (Outcome, error) {
	if retryOf != nil {
		if err := s.txRepo.UpdateStatus(ctx, retryOf.ID, entities.TransactionStatusFailed, &reason, nil); err != nil {
			return "", err
		}
	} else {
		tx := s.buildTransaction(event, amountTokens, payout, rate, entities.TransactionStatusFailed)
		tx.FailureReason = &reason
		if err := s.txRepo.Create(ctx, tx); err != nil && !errors.Is(err, domainerrors.ErrAlreadyExists) {
			return "", err
		}
	}

	s.logger.Warn("Settlement failed", "tx_hash", event.TxHash, "reason", reason)
	metrics.SettlementsTotal.WithLabelValues(string(OutcomeFailed)).Inc()
	return OutcomeFailed, nil
}

func (s *Service) buildTransaction(event *entities.TradeCreatedEvent, amountTokens, payout, rate decimal.Decimal, status entities.TransactionStatus) *entities.Transaction {
	now := time.Now()
	tx := &entities.Transaction{
		ID:            uuid.New(),
		TxHash:        event.TxHash,
		TradeID:       event.TradeID,
		BuyerAddress:  event.BuyerAddress,
		MerchantID:    event.MerchantID,
		AdID:          event.AdID,
		BlockNumber:   int64(event.BlockNumber),
		AmountRaw:     event.Amount,
		AmountTokens:  amountTokens,
		PayoutAmount:  payout,
		Rate:          rate,
		AccountName:   event.AccountName,
		AccountNumber: event.AccountNumber,
		BankCode:      event.BankCode,
		Status:        status,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	// the log position and on-chain timestamp have no columns of their own
	tx.SetMeta("log_index", event.LogIndex)
	tx.SetMeta("event_timestamp", event.Timestamp.UTC().Format(time.RFC3339))

	return tx
}
