package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-net-api/internal/dto"
	"github.com/noah-isme/campus-net-api/pkg/config"
)

type sweepRunner interface {
	RunSweep(ctx context.Context) (dto.SweepSummary, error)
}

type sweepMetrics interface {
	ObserveSweep(duration time.Duration)
}

// Scheduler triggers the daily maintenance sweep on a cron schedule.
type Scheduler struct {
	cron        *cron.Cron
	maintenance sweepRunner
	metrics     sweepMetrics
	cfg         config.MaintenanceConfig
	logger      *zap.Logger
}

// New constructs the scheduler.
func New(maintenance sweepRunner, metrics sweepMetrics, cfg config.MaintenanceConfig, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cron:        cron.New(),
		maintenance: maintenance,
		metrics:     metrics,
		cfg:         cfg,
		logger:      logger,
	}
}

// Start registers the sweep job and launches the cron loop. Disabled
// maintenance leaves the scheduler idle.
func (s *Scheduler) Start() error {
	if !s.cfg.Enabled {
		s.logger.Info("maintenance scheduler disabled")
		return nil
	}
	if _, err := s.cron.AddFunc(s.cfg.CronSpec, s.runSweep); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("maintenance scheduler started", zap.String("spec", s.cfg.CronSpec))
	return nil
}

// Stop halts the cron loop and waits for a running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Scheduler) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout())
	defer cancel()

	started := time.Now()
	summary, err := s.maintenance.RunSweep(ctx)
	if s.metrics != nil {
		s.metrics.ObserveSweep(time.Since(started))
	}
	if err != nil {
		s.logger.Error("scheduled sweep failed", zap.Error(err))
		return
	}
	s.logger.Info("scheduled sweep finished",
		zap.Int("released", summary.Released),
		zap.Int("expired", summary.Expired),
		zap.Int("converted", summary.Converted),
		zap.Int("duplicateGroups", summary.DuplicateGroups))
}

func (s *Scheduler) timeout() time.Duration {
	if s.cfg.Timeout > 0 {
		return s.cfg.Timeout
	}
	return 10 * time.Minute
}
