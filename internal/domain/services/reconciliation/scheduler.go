package reconciliation

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/p2ramp/settlement_service/pkg/logger"
)

// Scheduler runs the reconciliation report on a cron schedule
type Scheduler struct {
	cron    *cron.Cron
	service *Service
	logger  *logger.Logger
}

// NewScheduler creates a scheduler for the reconciliation report
func NewScheduler(service *Service, schedule string, logger *logger.Logger) (*Scheduler, error) {
	c := cron.New()

	s := &Scheduler{
		cron:    c,
		service: service,
		logger:  logger,
	}

	if _, err := c.AddFunc(schedule, s.run); err != nil {
		return nil, err
	}

	return s, nil
}

// Start begins scheduled execution
func (s *Scheduler) Start() {
	s.logger.Info("Starting reconciliation scheduler")
	s.cron.Start()
}

// Stop halts the schedule, waiting for a running report up to timeout
func (s *Scheduler) Stop(timeout time.Duration) error {
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
		return nil
	case <-time.After(timeout):
		return context.DeadlineExceeded
	}
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if _, err := s.service.Run(ctx); err != nil {
		s.logger.Error("Reconciliation report failed", "error", err)
	}
}
