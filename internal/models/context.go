package models

import (
	"context"
	"time"
)

type jobRunContextKey struct{}

// JobRun identifies one execution of a batch job so that every log line
// emitted during the run can be correlated.
type JobRun struct {
	Job       string
	RunId     string
	Trigger   string // "schedule" or "manual"
	StartedAt time.Time
}

// WithJobRun attaches run metadata to a context.
func WithJobRun(ctx context.Context, run *JobRun) context.Context {
	return context.WithValue(ctx, jobRunContextKey{}, run)
}

// GetJobRun retrieves run metadata from context, or nil if absent.
func GetJobRun(ctx context.Context) *JobRun {
	run, _ := ctx.Value(jobRunContextKey{}).(*JobRun)
	return run
}
