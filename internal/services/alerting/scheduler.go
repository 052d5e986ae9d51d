package alerting

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/LeonardoBeccarini/irrigation_alerts/internal/logger"
)

var ErrSweepRunning = errors.New("alerting: sweep already running")

// Scheduler runs each sweep on its own ticker. A sweep never overlaps with
// itself; a tick or trigger that finds it running is dropped.
type Scheduler struct {
	svc       *Service
	intervals map[string]time.Duration

	mu      sync.Mutex
	running map[string]bool
	log     zerolog.Logger
}

func NewScheduler(svc *Service, intervals map[string]time.Duration) *Scheduler {
	return &Scheduler{
		svc:       svc,
		intervals: intervals,
		running:   make(map[string]bool),
		log:       logger.WithComponent("scheduler"),
	}
}

// Run executes one sweep now unless it is already running.
func (s *Scheduler) Run(ctx context.Context, name string) (Report, error) {
	s.mu.Lock()
	if s.running[name] {
		s.mu.Unlock()
		return Report{Sweep: name}, ErrSweepRunning
	}
	s.running[name] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.running, name)
		s.mu.Unlock()
	}()
	return s.svc.Sweep(ctx, name)
}

// Start blocks until ctx is done. Sweeps with a non-positive interval are
// never ticked.
func (s *Scheduler) Start(ctx context.Context) {
	var wg sync.WaitGroup
	for name, every := range s.intervals {
		if every <= 0 {
			s.log.Info().Str("sweep", name).Msg("sweep disabled")
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.loop(ctx, name, every)
		}()
	}
	wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, name string, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	s.log.Info().Str("sweep", name).Dur("every", every).Msg("sweep scheduled")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rep, err := s.Run(ctx, name)
			switch {
			case errors.Is(err, ErrSweepRunning):
				s.log.Warn().Str("sweep", name).Msg("previous sweep still running, tick skipped")
			case err != nil:
				s.log.Error().Err(err).Str("sweep", name).Int("failed", rep.Failed).Msg("sweep finished with errors")
			}
		}
	}
}
