// Package jobs runs background maintenance on a cron schedule.
package jobs

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/congo-pay/walletd/internal/gateway"
	"github.com/congo-pay/walletd/internal/ledger"
	"github.com/congo-pay/walletd/internal/metrics"
)

// Reconciler settles deposits that stayed pending for too long.
type Reconciler interface {
	ReconcileStaleDeposits(ctx context.Context, checker ledger.SettlementChecker, olderThan time.Duration, limit int) (ledger.Reconciliation, error)
}

// GatewayChecker reads a deposit's settlement from the payment gateway.
type GatewayChecker struct {
	Gateway gateway.Gateway
}

func (g GatewayChecker) Settlement(ctx context.Context, reference string) (ledger.Settlement, error) {
	v, err := g.Gateway.Verify(ctx, reference)
	if err != nil {
		return ledger.SettlementOpen, err
	}
	switch strings.ToLower(v.Status) {
	case "success":
		return ledger.SettlementSucceeded, nil
	case "failed", "abandoned", "reversed":
		return ledger.SettlementFailed, nil
	default:
		return ledger.SettlementOpen, nil
	}
}

// Sweeper periodically reconciles deposits the gateway webhook never
// settled: captured ones are credited, failed ones are failed, and the rest
// are left pending.
type Sweeper struct {
	reconciler Reconciler
	checker    ledger.SettlementChecker
	olderThan  time.Duration
	batch     int
	timeout   time.Duration
	logger    *slog.Logger
	cron      *cron.Cron
}

// NewSweeper builds a sweeper that reconciles up to batch deposits older
// than olderThan per run.
func NewSweeper(reconciler Reconciler, checker ledger.SettlementChecker, olderThan time.Duration, batch int, logger *slog.Logger) *Sweeper {
	if batch <= 0 {
		batch = 500
	}
	return &Sweeper{
		reconciler: reconciler,
		checker:    checker,
		olderThan:  olderThan,
		batch:      batch,
		timeout:    time.Minute,
		logger:     logger,
		cron:       cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
	}
}

// Start schedules the sweep with a standard five-field cron spec or a
// descriptor such as "@every 5m".
func (s *Sweeper) Start(spec string) error {
	if _, err := s.cron.AddFunc(spec, func() { s.RunOnce(context.Background()) }); err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts scheduling and waits for a running sweep, bounded by ctx.
func (s *Sweeper) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// RunOnce performs a single sweep.
func (s *Sweeper) RunOnce(ctx context.Context) ledger.Reconciliation {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.reconciler.ReconcileStaleDeposits(ctx, s.checker, s.olderThan, s.batch)
	if err != nil {
		metrics.RecordSweep("error")
		s.logger.Error("deposit sweep failed",
			slog.Int("confirmed", res.Confirmed), slog.Int("failed", res.Failed), slog.Any("error", err))
		return res
	}
	metrics.RecordSweep("ok")
	if res.Confirmed > 0 || res.Failed > 0 {
		s.logger.Info("reconciled stale deposits",
			slog.Int("confirmed", res.Confirmed), slog.Int("failed", res.Failed), slog.Int("skipped", res.Skipped))
	}
	return res
}
