package metadata

import (
	"context"
	"time"
)

// SubjectRepository persists Subjects.
type SubjectRepository interface {
	Create(ctx context.Context, s *Subject) error
	Get(ctx context.Context, id string) (*Subject, error)
}

// SessionRepository persists Sessions.
type SessionRepository interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	ListBySubject(ctx context.Context, subjectID string) ([]Session, error)
}

// RecordingRepository persists Recordings and enforces the status
// transition graph and the cleaned_path/features_path invariants on every
// mutation.
type RecordingRepository interface {
	Create(ctx context.Context, r *Recording) error
	Get(ctx context.Context, id string) (*Recording, error)
	ListBySession(ctx context.Context, sessionID string) ([]Recording, error)

	// TransitionStatus moves the recording to newStatus, returning an
	// error if the transition is not allowed by the state graph.
	TransitionStatus(ctx context.Context, id string, newStatus RecordingStatus) error

	// SetDecodeMetadata populates sample rate and channel count on first
	// successful decode. Calling it a second time is a no-op by contract
	// (callers should not call it more than once per recording).
	SetDecodeMetadata(ctx context.Context, id string, sampleRateHz float64, channelCount int, durationSeconds float64) error

	// SetCleanedPath records the cleaned-blob logical path. Only valid
	// when the recording's status is processed or needs_review.
	SetCleanedPath(ctx context.Context, id, path string) error

	// SetFeaturesPath records the feature-table logical path. Only valid
	// once CleanedPath is already set.
	SetFeaturesPath(ctx context.Context, id, path string) error

	// CountNewSince counts recordings created after t with a non-null
	// features_path, for the auto-retrain tick.
	CountNewSince(ctx context.Context, t time.Time) (int, error)
}

// JobRepository persists ProcessingJobs and enforces at-most-one-running
// per (recording, step) via an atomic claim.
type JobRepository interface {
	Create(ctx context.Context, j *ProcessingJob) error
	Get(ctx context.Context, id string) (*ProcessingJob, error)

	// ClaimPending atomically transitions a pending job to running,
	// stamping workerID/taskID/started_at. Returns (job, true, nil) on a
	// fresh claim, (job, false, nil) if the job was already running or
	// terminal (idempotent short-circuit per the at-least-once queue
	// contract), and a non-nil error only for a genuine storage failure.
	ClaimPending(ctx context.Context, jobID, workerID, taskID string) (job *ProcessingJob, claimed bool, err error)

	// UpdateProgress writes monotone-non-decreasing progress and appends
	// a log line. Both are no-ops on a job that is not running.
	UpdateProgress(ctx context.Context, jobID string, progress float64, logLine string) error

	Complete(ctx context.Context, jobID string) error
	Fail(ctx context.Context, jobID string, errMsg string) error

	// Cancel flips status to cancelled. Cancelling an already-terminal
	// job is a no-op, not an error.
	Cancel(ctx context.Context, jobID string) error

	// RunningForRecordingStep returns the running job, if any, for the
	// given (recording, step) key.
	RunningForRecordingStep(ctx context.Context, recordingID string, step JobStep) (*ProcessingJob, error)
}

// ModelRepository persists MLModels and enforces the single-production
// invariant via an atomic Promote.
type ModelRepository interface {
	Create(ctx context.Context, m *MLModel) error
	Get(ctx context.Context, id string) (*MLModel, error)
	ListByStage(ctx context.Context, stage ModelStage) ([]MLModel, error)
	GetProduction(ctx context.Context) (*MLModel, error)

	// Promote atomically sets modelID's stage to production, demoting
	// any existing production model to candidate in the same operation.
	// If it fails midway the caller must treat the target model's stage
	// as unchanged (see corepipeerrors.ModelError).
	Promote(ctx context.Context, modelID string) error

	SetStage(ctx context.Context, modelID string, stage ModelStage) error
}
