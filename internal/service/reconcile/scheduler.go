package reconcile

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/nkiryanov/numbermart/internal/logger"
)

const DefaultSchedule = "@every 1h"

// Scheduler periodically scans all balances and logs drift. It never fixes anything.
type Scheduler struct {
	cron    *cron.Cron
	service *Service
	logger  logger.Logger
}

func NewScheduler(spec string, service *Service, l logger.Logger) (*Scheduler, error) {
	s := &Scheduler{
		service: service,
		logger:  l,
	}

	cl := CronLogger{l: l.With("component", "reconcile-cron")}
	s.cron = cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	if _, err := s.cron.AddFunc(spec, s.scan); err != nil {
		return nil, fmt.Errorf("invalid reconcile schedule %q: %w", spec, err)
	}

	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop waits for a running scan to finish or ctx to expire
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}

func (s *Scheduler) scan() {
	s.Scan(context.Background())
}

// Scan checks every customer once and returns the number of findings
func (s *Scheduler) Scan(ctx context.Context) int {
	found, err := s.service.CheckInconsistencies(ctx, nil)
	if err != nil {
		s.logger.Error("Reconciliation scan failed", "error", err)
		return 0
	}

	for _, inc := range found {
		s.logger.Warn("Balance inconsistency",
			"customer_id", inc.CustomerID,
			"expected", inc.ExpectedBalance,
			"actual", inc.ActualBalance,
			"difference", inc.Difference,
			"severity", inc.Severity,
		)
	}
	s.logger.Info("Reconciliation scan finished", "inconsistencies", len(found))

	return len(found)
}

// CronLogger adapts logger.Logger to cron.Logger
type CronLogger struct {
	l logger.Logger
}

func (c CronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug(msg, keysAndValues...)
}

func (c CronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error(msg, append([]any{"error", err}, keysAndValues...)...)
}
