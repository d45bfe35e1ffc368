package room

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
)

// DefaultTickInterval is how often the supervisor visits every room
const DefaultTickInterval = 500 * time.Millisecond

// Supervisor ticks a Manager on a fixed interval
type Supervisor struct {
	manager  *Manager
	clock    quartz.Clock
	interval time.Duration
	logger   *log.Logger
}

// NewSupervisor creates a supervisor; a zero interval uses the default
func NewSupervisor(manager *Manager, clock quartz.Clock, interval time.Duration, logger *log.Logger) *Supervisor {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	return &Supervisor{
		manager:  manager,
		clock:    clock,
		interval: interval,
		logger:   logger.WithPrefix("supervisor"),
	}
}

// Run ticks until ctx is cancelled
func (s *Supervisor) Run(ctx context.Context) error {
	s.logger.Info("Supervisor started", "interval", s.interval)
	w := s.clock.TickerFunc(ctx, s.interval, func() error {
		if err := s.manager.Tick(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("Tick failed", "error", err)
		}
		return nil
	}, "supervisor")

	err := w.Wait()
	s.logger.Info("Supervisor stopped")
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}
