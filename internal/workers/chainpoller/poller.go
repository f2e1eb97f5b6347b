// Package chainpoller watches the escrow contract for trade-creation events
// and feeds each decoded event to the settlement orchestrator exactly once
// per watermark advance.
package chainpoller

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/p2ramp/settlement_service/internal/adapters/chain"
	"github.com/p2ramp/settlement_service/internal/domain/entities"
	"github.com/p2ramp/settlement_service/internal/domain/services/settlement"
	"github.com/p2ramp/settlement_service/internal/infrastructure/cache"
	"github.com/p2ramp/settlement_service/pkg/logger"
	"github.com/p2ramp/settlement_service/pkg/metrics"
)

// ChainReader is the node capability the poller needs
type ChainReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
	GetLogs(ctx context.Context, address string, topic0 string, fromBlock, toBlock uint64) ([]chain.Log, error)
}

// Settler settles one decoded event
type Settler interface {
	Settle(ctx context.Context, event *entities.TradeCreatedEvent) (settlement.Outcome, error)
}

// Config holds poller configuration
type Config struct {
	EscrowAddress string
	Interval      time.Duration
	StartBlock    uint64
}

// Poller scans (lastCheckedBlock, head] every interval. Ticks never overlap:
// the loop processes one batch fully before waiting for the next tick. The
// watermark advances to head whenever the scan itself succeeds, regardless of
// per-event settlement outcomes; event failures are terminal per event, not
// grounds for re-scanning the range.
type Poller struct {
	config     Config
	chain      ChainReader
	settler    Settler
	watermarks cache.WatermarkStore
	logger     *logger.Logger

	lastChecked uint64

	wg             sync.WaitGroup
	shutdownCtx    context.Context
	shutdownCancel context.CancelFunc
}

// NewPoller creates a new chain event poller
func NewPoller(config Config, chainReader ChainReader, settler Settler, watermarks cache.WatermarkStore, logger *logger.Logger) *Poller {
	ctx, cancel := context.WithCancel(context.Background())

	return &Poller{
		config:         config,
		chain:          chainReader,
		settler:        settler,
		watermarks:     watermarks,
		logger:         logger,
		shutdownCtx:    ctx,
		shutdownCancel: cancel,
	}
}

// Start initializes the watermark and begins polling
func (p *Poller) Start(ctx context.Context) error {
	if err := p.initWatermark(ctx); err != nil {
		return fmt.Errorf("failed to initialize poller watermark: %w", err)
	}

	p.logger.Info("Starting chain poller",
		"escrow_address", p.config.EscrowAddress,
		"interval", p.config.Interval.String(),
		"from_block", p.lastChecked,
	)

	p.wg.Add(1)
	go p.loop()

	return nil
}

// Stop halts polling, waiting up to timeout for an in-flight batch
func (p *Poller) Stop(timeout time.Duration) error {
	p.logger.Info("Shutting down chain poller", "timeout", timeout)
	p.shutdownCancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("Chain poller shutdown complete")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("shutdown timeout exceeded")
	}
}

// initWatermark resumes from the persisted watermark when one exists, else
// from the configured start block, else from the current chain head.
func (p *Poller) initWatermark(ctx context.Context) error {
	height, ok, err := p.watermarks.LastCheckedBlock(ctx)
	if err != nil {
		p.logger.Warn("Failed to read persisted watermark, falling back", "error", err)
	} else if ok {
		p.lastChecked = height
		return nil
	}

	if p.config.StartBlock > 0 {
		p.lastChecked = p.config.StartBlock
		return nil
	}

	head, err := p.chain.BlockNumber(ctx)
	if err != nil {
		return err
	}
	p.lastChecked = head
	return nil
}

func (p *Poller) loop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.shutdownCtx.Done():
			return
		case <-ticker.C:
			p.poll(p.shutdownCtx)
		}
	}
}

// poll runs one scan. RPC failures leave the watermark untouched so the same
// range is retried next tick.
func (p *Poller) poll(ctx context.Context) {
	head, err := p.chain.BlockNumber(ctx)
	if err != nil {
		p.logger.Error("Failed to fetch chain head", "error", err)
		metrics.PollTicksTotal.WithLabelValues("rpc_error").Inc()
		return
	}
	metrics.ChainHeadGauge.Set(float64(head))

	if head <= p.lastChecked {
		metrics.PollTicksTotal.WithLabelValues("no_new_blocks").Inc()
		return
	}

	logs, err := p.chain.GetLogs(ctx, p.config.EscrowAddress, chain.TradeCreatedTopic, p.lastChecked+1, head)
	if err != nil {
		p.logger.Error("Failed to fetch trade logs",
			"from_block", p.lastChecked+1,
			"to_block", head,
			"error", err,
		)
		metrics.PollTicksTotal.WithLabelValues("rpc_error").Inc()
		return
	}

	events := p.decodeBatch(logs)
	if len(events) > 0 {
		p.logger.Info("Found trade events",
			"count", len(events),
			"from_block", p.lastChecked+1,
			"to_block", head,
		)
	}

	// sequential, block-then-log order: events within one batch never race
	// each other on the ledger
	for _, event := range events {
		select {
		case <-p.shutdownCtx.Done():
			return
		default:
		}

		outcome, err := p.settler.Settle(ctx, event)
		if err != nil {
			p.logger.Error("Settlement errored",
				"tx_hash", event.TxHash,
				"trade_id", event.TradeID,
				"error", err,
			)
			continue
		}
		p.logger.Info("Settled trade event",
			"tx_hash", event.TxHash,
			"trade_id", event.TradeID,
			"outcome", string(outcome),
		)
	}

	// the scan succeeded: advance past head even when events failed
	// downstream, per-event failures are not re-scanned
	p.lastChecked = head
	if err := p.watermarks.SetLastCheckedBlock(ctx, head); err != nil {
		p.logger.Warn("Failed to persist watermark", "height", head, "error", err)
	}
	metrics.PollTicksTotal.WithLabelValues("ok").Inc()
}

func (p *Poller) decodeBatch(logs []chain.Log) []*entities.TradeCreatedEvent {
	events := make([]*entities.TradeCreatedEvent, 0, len(logs))
	for _, l := range logs {
		if l.Removed {
			continue
		}
		event, err := chain.DecodeTradeCreated(l)
		if err != nil {
			p.logger.Error("Failed to decode trade log", "tx_hash", l.TxHash, "error", err)
			continue
		}
		events = append(events, event)
	}

	sort.SliceStable(events, func(i, j int) bool {
		if events[i].BlockNumber != events[j].BlockNumber {
			return events[i].BlockNumber < events[j].BlockNumber
		}
		return events[i].LogIndex < events[j].LogIndex
	})

	return events
}
