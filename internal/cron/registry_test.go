package cron

import (
	"context"
	"testing"
)

type noopJob struct{ name string }

func (n *noopJob) Name() string                  { return n.name }
func (n *noopJob) Run(ctx context.Context) error { return nil }

func TestRegistrySkipsNilJobsAndPreservesOrder(t *testing.T) {
	registry := NewRegistry(&noopJob{name: "first"}, nil, &noopJob{name: "second"})
	registry.Register(nil)
	registry.Register(&noopJob{name: "third"})

	jobs := registry.Jobs()
	if len(jobs) != 3 {
		t.Fatalf("expected 3 jobs, got %d", len(jobs))
	}
	for i, want := range []string{"first", "second", "third"} {
		if jobs[i].Name() != want {
			t.Fatalf("job %d: expected %q, got %q", i, want, jobs[i].Name())
		}
	}
}
