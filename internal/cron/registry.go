package cron

import "context"

// Job is one unit of scheduled work inside the reconciler worker.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Registry holds the jobs a Service runs each cycle, in registration order.
type Registry struct {
	jobs []Job
}

// NewRegistry seeds a registry, dropping nil entries.
func NewRegistry(jobs ...Job) *Registry {
	r := &Registry{}
	for _, job := range jobs {
		r.Register(job)
	}
	return r
}

// Register appends a job; nil is ignored.
func (r *Registry) Register(job Job) {
	if job == nil {
		return
	}
	r.jobs = append(r.jobs, job)
}

// Jobs returns a copy so callers cannot mutate the schedule.
func (r *Registry) Jobs() []Job {
	jobs := make([]Job, len(r.jobs))
	copy(jobs, r.jobs)
	return jobs
}
