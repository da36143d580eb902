package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/fathomsearch/fathom/pkg/config"
)

// Sweeper periodically deletes audit records older than the retention
// window.
type Sweeper struct {
	sink Sink
	cfg  *config.AuditConfig
	now  func() time.Time
}

func NewSweeper(sink Sink, cfg *config.AuditConfig) *Sweeper {
	return &Sweeper{sink: sink, cfg: cfg, now: time.Now}
}

// Run sweeps immediately and then on every interval tick until ctx is
// cancelled. Intended to run as a goroutine.
func (s *Sweeper) Run(ctx context.Context) {
	interval := s.cfg.SweepInterval
	if interval <= 0 {
		interval = time.Hour
	}
	s.sweepOnce(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	cutoff := s.now().AddDate(0, 0, -s.cfg.RetentionDays)
	n, err := s.sink.Sweep(ctx, cutoff)
	if err != nil {
		if ctx.Err() == nil {
			slog.Error("Audit retention sweep failed", "error", err)
		}
		return
	}
	if n > 0 {
		slog.Info("Audit retention sweep complete", "deleted", n, "cutoff", cutoff)
	}
}
