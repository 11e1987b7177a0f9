// Package jobs runs periodic maintenance on a cron schedule.
package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/diewo77/go-btp/internal/logger"
	"github.com/robfig/cron"
)

// Purger deletes notifications that expired before now.
type Purger interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type Scheduler struct {
	cron    *cron.Cron
	log     *logger.Logger
	timeout time.Duration
	now     func() time.Time

	mu      sync.Mutex
	running []*sync.Mutex
}

func NewScheduler(log *logger.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		log:     log.With("service", "Scheduler"),
		timeout: 5 * time.Minute,
		now:     time.Now,
	}
}

// AddPurge schedules p.DeleteExpired. Runs never overlap; a tick arriving while the
// previous run is still going is skipped.
func (s *Scheduler) AddPurge(spec string, p Purger) error {
	running := &sync.Mutex{}
	err := s.cron.AddFunc(spec, func() {
		if !running.TryLock() {
			s.log.Warn("purge still running, tick skipped")
			return
		}
		defer running.Unlock()
		if _, err := PurgeOnce(context.Background(), p, s.now(), s.timeout); err != nil {
			s.log.Error("notification purge failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule %q: %w", spec, err)
	}
	s.mu.Lock()
	s.running = append(s.running, running)
	s.mu.Unlock()
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started", "jobs", len(s.cron.Entries()))
}

// Stop halts scheduling and waits for in-flight jobs.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.running {
		m.Lock()
		m.Unlock() //nolint:staticcheck // waits for the in-flight run
	}
}

// PurgeOnce runs a single purge bounded by timeout.
func PurgeOnce(ctx context.Context, p Purger, now time.Time, timeout time.Duration) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.DeleteExpired(ctx, now)
}
