// Package scheduler runs the minute-resolution background job loop. Exactly
// one worker process in the fleet runs a scheduler at a time; the coordinator
// guards Start with a distributed gate and calls Stop on hot reload.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Job is the work invoked once per minute with the tick's wall-clock time.
type Job func(ctx context.Context, now time.Time)

// Scheduler wraps a cron runner around a single minutely job. Stop blocks
// until an in-flight tick finishes, so teardown-then-rebuild during reload
// can never leave two ticks running.
type Scheduler struct {
	cron *cron.Cron
	loc  *time.Location
	log  *zerolog.Logger

	mu      sync.Mutex
	running bool
}

// New builds a scheduler firing job every minute in loc.
func New(loc *time.Location, job Job) (*Scheduler, error) {
	s := &Scheduler{
		cron: cron.New(cron.WithLocation(loc)),
		loc:  loc,
		log:  &log.Logger,
	}
	_, err := s.cron.AddFunc("* * * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 55*time.Second)
		defer cancel()
		job(ctx, time.Now().In(loc))
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Start launches the cron loop. Idempotent.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.cron.Start()
	s.running = true
	s.log.Info().Str("tz", s.loc.String()).Msg("scheduler started")
}

// Stop halts the loop and joins the in-flight tick, if any.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	s.log.Info().Msg("scheduler stopped")
}

// Running reports whether the loop is live.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
