package janitor_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/pbellet/sessionlog/internal/janitor"
	"github.com/pbellet/sessionlog/pkg/conversation"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSweeper struct {
	removed int
	calls   int
}

func (f *fakeSweeper) Sweep() int {
	f.calls++
	return f.removed
}

func TestCacheSweepJob(t *testing.T) {
	t.Parallel()
	sweeper := &fakeSweeper{removed: 3}
	job := &janitor.CacheSweepJob{Cache: sweeper, Logger: discardLogger()}

	if got, want := job.Name(), "cache_sweep"; got != want {
		t.Errorf("Name() = %q, want %q", got, want)
	}
	if got, want := job.Schedule(), "*/5 * * * *"; got != want {
		t.Errorf("default Schedule() = %q, want %q", got, want)
	}
	job.ScheduleExpr = "*/1 * * * *"
	if got, want := job.Schedule(), "*/1 * * * *"; got != want {
		t.Errorf("Schedule() = %q, want %q", got, want)
	}

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sweeper.calls != 1 {
		t.Errorf("Sweep called %d times, want 1", sweeper.calls)
	}
}

type fakeHistory struct {
	sessions  []conversation.Metadata
	deleted   []string
	deleteErr map[string]error
}

func (f *fakeHistory) ListSessions() ([]conversation.Metadata, error) {
	return f.sessions, nil
}

func (f *fakeHistory) DeleteSession(sessionID string) error {
	if err := f.deleteErr[sessionID]; err != nil {
		return err
	}
	f.deleted = append(f.deleted, sessionID)
	return nil
}

func TestRetentionJob_PrunesIdleSessions(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	hist := &fakeHistory{
		sessions: []conversation.Metadata{
			{SessionID: "stale", Updated: now.Add(-48 * time.Hour)},
			{SessionID: "fresh", Updated: now.Add(-time.Hour)},
			{SessionID: "boundary", Updated: now.Add(-24 * time.Hour)},
		},
	}
	job := &janitor.RetentionJob{
		History: hist,
		MaxIdle: 24 * time.Hour,
		Logger:  discardLogger(),
		Now:     func() time.Time { return now },
	}

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(hist.deleted) != 1 || hist.deleted[0] != "stale" {
		t.Errorf("deleted = %v, want [stale]", hist.deleted)
	}
}

func TestRetentionJob_ZeroMaxIdleIsNoop(t *testing.T) {
	t.Parallel()
	hist := &fakeHistory{
		sessions: []conversation.Metadata{
			{SessionID: "ancient", Updated: time.Unix(0, 0)},
		},
	}
	job := &janitor.RetentionJob{History: hist, Logger: discardLogger()}

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(hist.deleted) != 0 {
		t.Errorf("deleted = %v, want none with MaxIdle unset", hist.deleted)
	}
}

func TestRetentionJob_DeleteFailureContinues(t *testing.T) {
	t.Parallel()
	now := time.Now()
	hist := &fakeHistory{
		sessions: []conversation.Metadata{
			{SessionID: "locked", Updated: now.Add(-48 * time.Hour)},
			{SessionID: "stale", Updated: now.Add(-48 * time.Hour)},
		},
		deleteErr: map[string]error{"locked": errors.New("permission denied")},
	}
	job := &janitor.RetentionJob{
		History: hist,
		MaxIdle: 24 * time.Hour,
		Logger:  discardLogger(),
		Now:     func() time.Time { return now },
	}

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run must not fail on a single delete error: %v", err)
	}
	if len(hist.deleted) != 1 || hist.deleted[0] != "stale" {
		t.Errorf("deleted = %v, want [stale] despite the failing session", hist.deleted)
	}
}

func TestRetentionJob_HonorsContextCancellation(t *testing.T) {
	t.Parallel()
	now := time.Now()
	hist := &fakeHistory{
		sessions: []conversation.Metadata{
			{SessionID: "one", Updated: now.Add(-48 * time.Hour)},
			{SessionID: "two", Updated: now.Add(-48 * time.Hour)},
		},
	}
	job := &janitor.RetentionJob{
		History: hist,
		MaxIdle: 24 * time.Hour,
		Logger:  discardLogger(),
		Now:     func() time.Time { return now },
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := job.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Run(cancelled ctx) = %v, want context.Canceled", err)
	}
	if len(hist.deleted) != 0 {
		t.Errorf("deleted = %v, want none after cancellation", hist.deleted)
	}
}
