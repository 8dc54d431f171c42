package convstate

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"github.com/charlabot/charla/pkg/logger"
)

// Sweeper periodically clears expired contexts. Expiry-on-read already
// keeps individual users correct; the sweep reclaims contexts of users
// who simply stopped writing.
type Sweeper struct {
	manager  *Manager
	schedule string
	stopChan chan struct{}
	running  bool
}

// NewSweeper validates the cron schedule and returns a Sweeper.
func NewSweeper(manager *Manager, schedule string) (*Sweeper, error) {
	gron := gronx.New()
	if !gron.IsValid(schedule) {
		return nil, fmt.Errorf("invalid sweep schedule %q", schedule)
	}
	return &Sweeper{
		manager:  manager,
		schedule: schedule,
	}, nil
}

// Start launches the sweep loop. Safe to call once.
func (s *Sweeper) Start(ctx context.Context) error {
	if s.running {
		return fmt.Errorf("sweeper already running")
	}
	s.stopChan = make(chan struct{})
	s.running = true

	go s.loop(ctx)

	logger.InfoCF("convstate", "context sweeper started", map[string]any{
		"schedule": s.schedule,
	})
	return nil
}

// Stop terminates the sweep loop.
func (s *Sweeper) Stop() {
	if !s.running {
		return
	}
	close(s.stopChan)
	s.running = false
	logger.InfoC("convstate", "context sweeper stopped")
}

func (s *Sweeper) loop(ctx context.Context) {
	for {
		next, err := gronx.NextTickAfter(s.schedule, time.Now(), false)
		if err != nil {
			logger.ErrorCF("convstate", "sweep schedule evaluation failed", map[string]any{
				"schedule": s.schedule,
				"error":    err.Error(),
			})
			return
		}

		timer := time.NewTimer(time.Until(next))
		select {
		case <-timer.C:
			s.runSweep(ctx)
		case <-s.stopChan:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}
}

func (s *Sweeper) runSweep(ctx context.Context) {
	cleared := s.manager.Sweep(ctx)
	if cleared > 0 {
		logger.InfoCF("convstate", "cleared expired contexts", map[string]any{
			"count": cleared,
		})
	}
}
