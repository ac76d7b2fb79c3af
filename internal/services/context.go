package services

import "context"

// JobScope identifies the encode a context belongs to. Loggers derived from
// the context carry these fields.
type JobScope struct {
	JobID   string
	BatchID string
	Clip    string
	Worker  string
}

type jobScopeKey struct{}

// WithJob stamps scope onto ctx. Blank fields keep the value of a scope
// already on ctx, so callers can narrow a worker-level scope to one job.
func WithJob(ctx context.Context, scope JobScope) context.Context {
	if prev, ok := JobFromContext(ctx); ok {
		scope = prev.overlay(scope)
	}
	if scope == (JobScope{}) {
		return ctx
	}
	return context.WithValue(ctx, jobScopeKey{}, scope)
}

// JobFromContext returns the scope stamped by WithJob.
func JobFromContext(ctx context.Context) (JobScope, bool) {
	if ctx == nil {
		return JobScope{}, false
	}
	scope, ok := ctx.Value(jobScopeKey{}).(JobScope)
	return scope, ok
}

func (s JobScope) overlay(next JobScope) JobScope {
	if next.JobID != "" {
		s.JobID = next.JobID
	}
	if next.BatchID != "" {
		s.BatchID = next.BatchID
	}
	if next.Clip != "" {
		s.Clip = next.Clip
	}
	if next.Worker != "" {
		s.Worker = next.Worker
	}
	return s
}
