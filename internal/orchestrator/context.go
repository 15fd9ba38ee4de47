package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/neurolab-io/corepipe/internal/corepipeerrors"
	"github.com/neurolab-io/corepipe/internal/metadata"
)

// ProgressPublisher is the narrow slice of internal/eventbus.Bus the
// orchestrator needs: a best-effort, error-free job_progress broadcast.
// Defined here rather than imported so this package stays free of any
// dependency on eventbus.
type ProgressPublisher interface {
	PublishJobProgress(jobID string, progress float64, status, log string)
}

// JobContext is the handle a TaskFunc uses to report progress and observe
// cancellation. It wraps the per-execution context (already carrying the
// hard-timeout deadline) and the job's checkpoint table.
type JobContext struct {
	ctx         context.Context
	jobs        metadata.JobRepository
	jobID       string
	checkpoints []Checkpoint
	events      ProgressPublisher
}

func newJobContext(ctx context.Context, jobs metadata.JobRepository, jobID string, checkpoints []Checkpoint, events ProgressPublisher) *JobContext {
	return &JobContext{ctx: ctx, jobs: jobs, jobID: jobID, checkpoints: checkpoints, events: events}
}

// Context returns the execution context. Handlers must pass this to every
// blocking call they make so a hard timeout or explicit cancellation
// actually aborts the work.
func (jc *JobContext) Context() context.Context {
	return jc.ctx
}

// Checkpoint reports progress against the named checkpoint table and
// checks for cancellation. It returns a TimeoutError if the job's hard
// deadline has passed and a Cancelled error if its context was otherwise
// cancelled (explicit stop); in either case the handler must return
// immediately without further writes.
func (jc *JobContext) Checkpoint(name string) error {
	progress := 0.0
	found := false
	for _, c := range jc.checkpoints {
		if c.Name == name {
			progress = c.Progress
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("orchestrator: unknown checkpoint %q for this job step", name)
	}
	return jc.Progress(progress, name)
}

// Progress reports an arbitrary progress value with a log line, for
// handlers (training) with no fixed checkpoint table.
func (jc *JobContext) Progress(value float64, logLine string) error {
	if err := jc.ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return corepipeerrors.NewTimeoutError(logLine, err)
		}
		return corepipeerrors.NewCancelledError(logLine)
	}
	if err := jc.jobs.UpdateProgress(jc.ctx, jc.jobID, value, logLine); err != nil {
		return err
	}
	if jc.events != nil {
		jc.events.PublishJobProgress(jc.jobID, value, string(metadata.JobRunning), logLine)
	}
	// UpdateProgress is a no-op against a cancelled row; re-check so the
	// handler notices a cancellation that raced the write.
	if err := jc.ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return corepipeerrors.NewTimeoutError(logLine, err)
		}
		return corepipeerrors.NewCancelledError(logLine)
	}
	return nil
}
