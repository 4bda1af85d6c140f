package janitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// Scheduler runs registered jobs on their cron schedules. A tick that fires
// while the previous run of the same job is still in flight is skipped.
type Scheduler struct {
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]*entry
	order   []string
	cron    *cron.Cron
	cancel  context.CancelFunc
}

// entry pairs a job with the mutex guarding overlapping runs.
type entry struct {
	job     Job
	running sync.Mutex
}

// NewScheduler creates an empty scheduler.
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		logger:  logger,
		entries: make(map[string]*entry),
	}
}

// RegisterJob adds a job. Job names must be unique, and registration is
// rejected once the scheduler has started.
func (s *Scheduler) RegisterJob(j Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return fmt.Errorf("janitor: cannot register %q after start", j.Name())
	}
	name := j.Name()
	if _, dup := s.entries[name]; dup {
		return fmt.Errorf("janitor: duplicate job name %q", name)
	}
	s.entries[name] = &entry{job: j}
	s.order = append(s.order, name)
	return nil
}

// Start parses every schedule and begins ticking. Schedules are standard
// five-field cron expressions.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())

	c := cron.New(cron.WithParser(cron.NewParser(
		cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
	)))
	for _, name := range s.order {
		e := s.entries[name]
		if _, err := c.AddFunc(e.job.Schedule(), func() { s.tick(ctx, e) }); err != nil {
			cancel()
			return fmt.Errorf("janitor: invalid schedule for job %q: %w", name, err)
		}
	}

	s.cron = c
	s.cancel = cancel
	c.Start()
	s.logger.Info("janitor: scheduler started", "jobs", len(s.order))
	return nil
}

// tick runs one scheduled invocation of a job.
func (s *Scheduler) tick(ctx context.Context, e *entry) {
	if !e.running.TryLock() {
		s.logger.Warn("janitor: previous run still in flight, skipping tick",
			"job", e.job.Name(),
		)
		return
	}
	defer e.running.Unlock()

	if err := e.job.Run(ctx); err != nil {
		s.logger.Error("janitor: job failed",
			"job", e.job.Name(),
			"error", err,
		)
	}
}

// Stop cancels the job context and waits for in-flight runs, bounded by the
// caller's context.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	if s.cron == nil {
		return nil
	}
	select {
	case <-s.cron.Stop().Done():
		s.logger.Info("janitor: scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
