package newsletter

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// NextRun returns the first time at hour:00 strictly after now, in now's
// location.
func NextRun(now time.Time, hour int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Schedule runs a job once a day at a fixed hour until stopped.
type Schedule struct {
	run    func(ctx context.Context) error
	hour   int
	log    *log.Logger
	stopCh chan struct{}
	once   sync.Once

	now   func() time.Time
	after func(time.Duration) <-chan time.Time
}

func NewSchedule(hour int, run func(ctx context.Context) error, logger *log.Logger) *Schedule {
	return &Schedule{
		run:    run,
		hour:   hour,
		log:    logger.WithPrefix("schedule"),
		stopCh: make(chan struct{}),
		now:    time.Now,
		after:  time.After,
	}
}

// Stop ends Run. It is safe to call more than once, from any goroutine.
func (s *Schedule) Stop() {
	s.once.Do(func() { close(s.stopCh) })
}

// Run blocks, firing the job at every occurrence of the configured hour,
// until ctx is done or Stop is called. A failed run is logged and the
// schedule continues.
func (s *Schedule) Run(ctx context.Context) {
	for {
		next := NextRun(s.now(), s.hour)
		s.log.Info("next newsletter", "at", next.Format(time.RFC3339))

		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-s.after(next.Sub(s.now())):
		}
		select {
		case <-s.stopCh:
			return
		default:
		}

		s.log.Info("running scheduled newsletter")
		if err := s.run(ctx); err != nil {
			s.log.Error("scheduled newsletter failed", "err", err)
		}
	}
}
