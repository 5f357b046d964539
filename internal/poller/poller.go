package poller

import (
	"context"
	"time"

	"go.uber.org/zap"

	"mailtriage/internal/model"
)

type CycleRunner interface {
	RunCycle(ctx context.Context) (*model.CycleReport, error)
}

// Poller triggers a polling cycle on a fixed interval. It is the scheduled
// counterpart of the HTTP trigger; both share the same entry point, so a
// manual run overlapping a scheduled one is safe.
type Poller struct {
	runner   CycleRunner
	interval time.Duration
	logger   *zap.Logger
}

func New(runner CycleRunner, interval time.Duration, logger *zap.Logger) *Poller {
	return &Poller{
		runner:   runner,
		interval: interval,
		logger:   logger,
	}
}

// Start blocks until the context is cancelled. Call it in a goroutine.
func (p *Poller) Start(ctx context.Context) {
	if p.interval <= 0 {
		p.logger.Info("Interval poller disabled, cycles run on HTTP trigger only")
		return
	}

	p.logger.Info("Starting interval poller", zap.Duration("interval", p.interval))

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Interval poller stopped")
			return
		case <-ticker.C:
			report, err := p.runner.RunCycle(ctx)
			if err != nil {
				p.logger.Error("Scheduled polling cycle failed", zap.Error(err))
				continue
			}
			p.logger.Info("Scheduled polling cycle completed",
				zap.Int("messages", len(report.Messages)),
				zap.Int("account_failures", len(report.AccountFailures)),
			)
		}
	}
}
