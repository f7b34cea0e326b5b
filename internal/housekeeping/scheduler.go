package housekeeping

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wolfman30/diagnostico-bot/pkg/logging"
)

// JobFunc is one run of a periodic job.
type JobFunc func(ctx context.Context) error

type job struct {
	name     string
	interval time.Duration
	run      JobFunc
}

// Scheduler runs registered jobs at the start of every interval until its context ends.
type Scheduler struct {
	logger *logging.Logger
	jobs   []job
	wg     sync.WaitGroup
}

func NewScheduler(logger *logging.Logger) *Scheduler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Scheduler{logger: logger}
}

// Every registers fn to run immediately on Start and then once per interval.
// Jobs with a non-positive interval are ignored.
func (s *Scheduler) Every(name string, interval time.Duration, fn JobFunc) {
	if interval <= 0 || fn == nil {
		s.logger.Info("housekeeping job disabled", "job", name)
		return
	}
	s.jobs = append(s.jobs, job{name: name, interval: interval, run: fn})
}

// Start launches every job in its own goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	for _, j := range s.jobs {
		s.wg.Add(1)
		go func(j job) {
			defer s.wg.Done()
			s.loop(ctx, j)
		}(j)
	}
}

// Wait blocks until every job goroutine has returned.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, j job) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	s.runOnce(ctx, j)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, j)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, j job) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("housekeeping job panicked", "job", j.name, "panic", fmt.Sprint(rec))
		}
	}()
	if ctx.Err() != nil {
		return
	}
	if err := j.run(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("housekeeping job failed", "job", j.name, "error", err)
	}
}
