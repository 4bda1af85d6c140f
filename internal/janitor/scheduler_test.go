package janitor_test

import (
	"context"
	"strings"
	"testing"

	"github.com/pbellet/sessionlog/internal/janitor"
)

type namedJob struct {
	name     string
	schedule string
}

func (j *namedJob) Name() string              { return j.name }
func (j *namedJob) Schedule() string          { return j.schedule }
func (j *namedJob) Run(context.Context) error { return nil }

func TestScheduler_RejectsDuplicateName(t *testing.T) {
	t.Parallel()
	s := janitor.NewScheduler(discardLogger())

	if err := s.RegisterJob(&namedJob{name: "sweep", schedule: "*/5 * * * *"}); err != nil {
		t.Fatalf("RegisterJob: %v", err)
	}
	err := s.RegisterJob(&namedJob{name: "sweep", schedule: "0 * * * *"})
	if err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Errorf("duplicate registration error = %v", err)
	}
}

func TestScheduler_RejectsInvalidSchedule(t *testing.T) {
	t.Parallel()
	s := janitor.NewScheduler(discardLogger())

	if err := s.RegisterJob(&namedJob{name: "broken", schedule: "not a schedule"}); err != nil {
		t.Fatalf("RegisterJob: %v", err)
	}
	if err := s.Start(); err == nil {
		t.Error("Start must fail on an unparsable schedule")
	}
}

func TestScheduler_StartStop(t *testing.T) {
	t.Parallel()
	s := janitor.NewScheduler(discardLogger())

	if err := s.RegisterJob(&namedJob{name: "sweep", schedule: "*/5 * * * *"}); err != nil {
		t.Fatalf("RegisterJob: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Registration after start is rejected.
	if err := s.RegisterJob(&namedJob{name: "late", schedule: "0 * * * *"}); err == nil {
		t.Error("RegisterJob after Start must fail")
	}

	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
