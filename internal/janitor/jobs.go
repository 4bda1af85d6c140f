package janitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/pbellet/sessionlog/pkg/conversation"
)

// Sweeper is the subset of the message cache needed by the sweep job.
type Sweeper interface {
	Sweep() int
}

// CacheSweepJob removes expired cache entries to reclaim memory. Reads
// already treat expired entries as misses; this only bounds memory use.
type CacheSweepJob struct {
	Cache        Sweeper
	Logger       *slog.Logger
	ScheduleExpr string // empty = default "*/5 * * * *"
}

// Compile-time interface check.
var _ Job = (*CacheSweepJob)(nil)

// Name implements Job.
func (j *CacheSweepJob) Name() string { return "cache_sweep" }

// Schedule implements Job.
func (j *CacheSweepJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "*/5 * * * *"
}

// Run sweeps expired cache entries.
func (j *CacheSweepJob) Run(_ context.Context) error {
	removed := j.Cache.Sweep()
	if removed > 0 {
		j.Logger.Info("janitor: swept expired cache entries", "count", removed)
	}
	return nil
}

// SessionLister deletes sessions through the history manager so caches and
// subscriptions stay coherent.
type SessionLister interface {
	ListSessions() ([]conversation.Metadata, error)
	DeleteSession(sessionID string) error
}

// RetentionJob deletes sessions that have not been updated for MaxIdle.
type RetentionJob struct {
	History      SessionLister
	MaxIdle      time.Duration
	Logger       *slog.Logger
	ScheduleExpr string // empty = default "0 * * * *"

	// Now is injectable for testing. Nil defaults to time.Now.
	Now func() time.Time
}

// Compile-time interface check.
var _ Job = (*RetentionJob)(nil)

// Name implements Job.
func (j *RetentionJob) Name() string { return "retention_prune" }

// Schedule implements Job.
func (j *RetentionJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "0 * * * *"
}

// Run deletes sessions idle longer than MaxIdle.
func (j *RetentionJob) Run(ctx context.Context) error {
	if j.MaxIdle <= 0 {
		return nil
	}
	now := time.Now
	if j.Now != nil {
		now = j.Now
	}

	sessions, err := j.History.ListSessions()
	if err != nil {
		return err
	}

	cutoff := now().Add(-j.MaxIdle)
	pruned := 0
	for _, meta := range sessions {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if meta.Updated.Before(cutoff) {
			if err := j.History.DeleteSession(meta.SessionID); err != nil {
				j.Logger.Warn("janitor: retention delete failed",
					"session", meta.SessionID,
					"error", err,
				)
				continue
			}
			pruned++
		}
	}
	if pruned > 0 {
		j.Logger.Info("janitor: pruned stale sessions", "count", pruned)
	}
	return nil
}
