package service

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// StalledResumer finishes jobs stuck in sending.
type StalledResumer interface {
	ResumeStalled(ctx context.Context, olderThan time.Duration) (int, error)
}

// Sweeper periodically resumes broadcast jobs a crashed process left in sending.
type Sweeper struct {
	Resumer    StalledResumer
	StaleAfter time.Duration
	Logger     *zap.Logger

	c   *cron.Cron
	ctx context.Context
}

// NewSweeper parses schedule (standard five fields, optional seconds, or a
// descriptor such as "@every 1m") and registers the sweep.
func NewSweeper(resumer StalledResumer, schedule string, staleAfter time.Duration, logger *zap.Logger) (*Sweeper, error) {
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	s := &Sweeper{
		Resumer:    resumer,
		StaleAfter: staleAfter,
		Logger:     logger.With(zap.String("component", "sweeper")),
		ctx:        context.Background(),
	}
	s.c = cron.New(
		cron.WithParser(parser),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	if _, err := s.c.AddFunc(schedule, func() { s.RunOnce(s.ctx) }); err != nil {
		return nil, fmt.Errorf("invalid sweeper schedule %q: %w", schedule, err)
	}
	return s, nil
}

// RunOnce performs a single sweep and returns how many jobs were finished.
func (s *Sweeper) RunOnce(ctx context.Context) int {
	n, err := s.Resumer.ResumeStalled(ctx, s.StaleAfter)
	if err != nil {
		s.Logger.Error("sweep failed", zap.Error(err))
		return 0
	}
	if n > 0 {
		s.Logger.Info("resumed stalled broadcasts", zap.Int("jobs", n))
	}
	return n
}

// Start runs the schedule until Stop. ctx is handed to every sweep.
func (s *Sweeper) Start(ctx context.Context) {
	s.ctx = ctx
	s.c.Start()
	s.Logger.Info("sweeper started", zap.Duration("stale_after", s.StaleAfter))
}

// Stop waits for a running sweep to return or ctx to expire.
func (s *Sweeper) Stop(ctx context.Context) {
	select {
	case <-s.c.Stop().Done():
	case <-ctx.Done():
		s.Logger.Warn("sweeper stop timed out")
	}
}
