// Package orchestrator runs the durable job state machine: pending jobs
// are claimed at-most-once, dispatched to a per-step worker pool, and
// walked through a named-checkpoint progress table until they terminate.
//
// It generalizes the teacher's run/lease lifecycle (RunManager: a
// mutex-protected map of typed records, an append-only per-record event
// log, a CanTransition state-machine guard, and a drain-timeout goroutine
// per run) from "load-test run" to "recording processing job," trading the
// teacher's in-memory RunRecord map for the already-durable
// metadata.JobRepository, since every orchestrator here can be killed and
// replaced without losing job state.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/neurolab-io/corepipe/internal/config"
	"github.com/neurolab-io/corepipe/internal/corepipeerrors"
	"github.com/neurolab-io/corepipe/internal/metadata"
	"github.com/neurolab-io/corepipe/internal/otel"
)

// TaskFunc is the work a handler performs for one claimed job. It must
// honor jc.Context()'s cancellation and report progress through
// jc.Checkpoint/jc.Progress as it proceeds.
type TaskFunc func(jc *JobContext, job *metadata.ProcessingJob) error

// Orchestrator dispatches claimed jobs to registered handlers across the
// two durable worker pools (preprocessing, which feature_extraction jobs
// share, and training), matching spec's per-queue concurrency model. The
// realtime path is a third logical queue but is never claimed here: it
// bypasses the durable job machinery entirely (see internal/realtime).
type Orchestrator struct {
	jobs       metadata.JobRepository
	recordings metadata.RecordingRepository
	queue      JobQueue
	cfg        *config.Config
	workerID   string
	log        *slog.Logger

	handlers map[metadata.JobStep]TaskFunc
	events   ProgressPublisher
	metrics  JobObserver
	tracer   *otel.Tracer

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// JobObserver records a terminal job outcome. internal/metrics.Collector
// satisfies this.
type JobObserver interface {
	Observe(step, status string, durationSeconds float64)
}

// New builds an Orchestrator. workerID identifies this process in claimed
// jobs' worker_id column, for operational tracing across a fleet.
func New(jobs metadata.JobRepository, recordings metadata.RecordingRepository, queue JobQueue, cfg *config.Config, workerID string) *Orchestrator {
	return &Orchestrator{
		jobs:       jobs,
		recordings: recordings,
		queue:      queue,
		cfg:        cfg,
		workerID:   workerID,
		log:        slog.Default().With("component", "orchestrator", "worker_id", workerID),
		handlers:   make(map[metadata.JobStep]TaskFunc),
		cancels:    make(map[string]context.CancelFunc),
		tracer:     otel.NoopTracer(),
	}
}

// RegisterHandler wires step's TaskFunc. Must be called before Run.
func (o *Orchestrator) RegisterHandler(step metadata.JobStep, fn TaskFunc) {
	o.handlers[step] = fn
}

// SetEventBus wires a best-effort job_progress publisher, matching the
// teacher's builder-style Set* wiring methods
// (SetScheduler/SetAssignmentSender/SetArtifactStore). Optional: an
// Orchestrator with no bus wired still runs jobs, it just emits no
// interim progress events.
func (o *Orchestrator) SetEventBus(events ProgressPublisher) {
	o.events = events
}

// SetMetrics wires a job outcome observer. Optional: an Orchestrator with
// no observer wired still runs jobs, it just exposes no Prometheus metrics.
func (o *Orchestrator) SetMetrics(m JobObserver) {
	o.metrics = m
}

// SetTracer wires an OpenTelemetry tracer around each job execution. A
// disabled/noop tracer (the default) adds no overhead beyond a no-op span.
func (o *Orchestrator) SetTracer(t *otel.Tracer) {
	if t != nil {
		o.tracer = t
	}
}

// Submit enqueues an already-created pending job for dispatch.
func (o *Orchestrator) Submit(ctx context.Context, job *metadata.ProcessingJob) error {
	return o.queue.Enqueue(ctx, queueName(job.Step), job.ID)
}

// queueName maps a JobStep to one of the three logical queues named in
// spec: preprocessing, training, realtime. feature_extraction shares the
// preprocessing queue, since both stages are CPU-bound single-threaded DSP
// work with the same concurrency=1 default; the realtime queue is never
// used here since the realtime path bypasses the orchestrator entirely.
func queueName(step metadata.JobStep) string {
	switch step {
	case metadata.StepTraining:
		return "training"
	default:
		return "preprocessing"
	}
}

// Run starts one worker pool per logical queue (preprocessing, training),
// sized per cfg.Orchestrator's concurrency fields, and blocks until ctx is
// done. Each worker dispatches a dequeued job to whichever handler its
// JobStep names, since preprocessing and feature_extraction jobs share one
// queue but run different handlers.
func (o *Orchestrator) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, q := range []string{"preprocessing", "training"} {
		concurrency := o.concurrencyForQueue(q)
		for i := 0; i < concurrency; i++ {
			wg.Add(1)
			go func(queue string) {
				defer wg.Done()
				o.runWorker(ctx, queue)
			}(q)
		}
	}
	wg.Wait()
}

func (o *Orchestrator) concurrencyForQueue(queue string) int {
	switch queue {
	case "training":
		return maxInt(1, o.cfg.Orchestrator.TrainingConcurrency)
	default:
		return maxInt(1, o.cfg.Orchestrator.PreprocessingConcurrency)
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// runWorker is one slot of a queue's worker pool: it long-polls the queue
// and executes whatever job IDs it dequeues, one at a time, until ctx is
// cancelled.
func (o *Orchestrator) runWorker(ctx context.Context, queue string) {
	pollInterval := o.cfg.Orchestrator.PollInterval
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	for {
		if ctx.Err() != nil {
			return
		}
		jobID, ok, err := o.queue.Dequeue(ctx, queue, pollInterval)
		if err != nil {
			o.log.Error("dequeue failed", "queue", queue, "error", err)
			continue
		}
		if !ok {
			continue
		}
		o.executeJob(ctx, jobID)
	}
}

// executeJob claims jobID, runs its step's handler under a
// deadline-bounded context, and resolves the job's terminal state from the
// outcome.
func (o *Orchestrator) executeJob(ctx context.Context, jobID string) {
	taskID := fmt.Sprintf("%s-%d", o.workerID, time.Now().UnixNano())
	job, claimed, err := o.jobs.ClaimPending(ctx, jobID, o.workerID, taskID)
	if err != nil {
		o.log.Error("claim failed", "job_id", jobID, "error", err)
		return
	}
	if !claimed {
		// Already running (another worker raced us) or already terminal:
		// the at-least-once queue contract means this is a routine
		// duplicate delivery, not an error.
		return
	}

	fn, ok := o.handlers[job.Step]
	if !ok {
		o.log.Error("no handler registered for job step", "job_id", jobID, "step", job.Step)
		if err := o.jobs.Fail(ctx, jobID, fmt.Sprintf("no handler registered for step %q", job.Step)); err != nil {
			o.log.Error("mark failed failed", "job_id", jobID, "error", err)
		}
		return
	}

	if job.Step == metadata.StepPreprocessing {
		// uploaded -> processing is the only edge the recording state
		// graph allows before a preprocessing job may run; a retried
		// claim on an already-processing recording is a harmless no-op
		// error we deliberately swallow.
		_ = o.recordings.TransitionStatus(ctx, job.RecordingID, metadata.RecordingProcessing)
	}

	execCtx, span := o.tracer.StartOperationSpan(ctx, otel.OperationSpanOptions{
		JobID:       jobID,
		RecordingID: job.RecordingID,
		WorkerID:    o.workerID,
		Step:        string(job.Step),
	})
	defer span.End()

	execCtx, cancel := context.WithTimeout(execCtx, o.cfg.Orchestrator.HardTimeout)
	o.mu.Lock()
	o.cancels[jobID] = cancel
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		delete(o.cancels, jobID)
		o.mu.Unlock()
		cancel()
	}()

	softTimer := time.AfterFunc(o.cfg.Orchestrator.SoftTimeout, func() {
		o.log.Warn("job exceeded soft time limit", "job_id", jobID, "step", job.Step)
	})
	defer softTimer.Stop()

	started := time.Now()
	jc := newJobContext(execCtx, o.jobs, jobID, CheckpointsFor(job.Step), o.events)
	runErr := fn(jc, job)
	if runErr != nil && !corepipeerrors.IsKind(runErr, corepipeerrors.KindCancelled) {
		otel.RecordError(span, runErr, string(job.Step), corepipeerrors.IsKind(runErr, corepipeerrors.KindStorageTransient))
	}
	o.finish(ctx, job, runErr, time.Since(started))
}

func (o *Orchestrator) finish(ctx context.Context, job *metadata.ProcessingJob, runErr error, elapsed time.Duration) {
	if o.metrics != nil {
		defer func() {
			status := string(metadata.JobFailed)
			switch {
			case runErr == nil:
				status = string(metadata.JobCompleted)
			case corepipeerrors.IsKind(runErr, corepipeerrors.KindCancelled):
				status = string(metadata.JobCancelled)
			}
			o.metrics.Observe(string(job.Step), status, elapsed.Seconds())
		}()
	}

	switch {
	case runErr == nil:
		if err := o.jobs.Complete(ctx, job.ID); err != nil {
			o.log.Error("mark complete failed", "job_id", job.ID, "error", err)
		}
		if o.events != nil {
			o.events.PublishJobProgress(job.ID, 1.0, string(metadata.JobCompleted), "")
		}
		return

	case corepipeerrors.IsKind(runErr, corepipeerrors.KindCancelled):
		if err := o.jobs.Cancel(ctx, job.ID); err != nil {
			o.log.Error("mark cancelled failed", "job_id", job.ID, "error", err)
		}
		if o.events != nil {
			o.events.PublishJobProgress(job.ID, job.Progress, string(metadata.JobCancelled), "")
		}
		return
	}

	// A hard timeout surfaces as context.DeadlineExceeded from whatever
	// blocking call the handler was in; normalize it to a typed error
	// before recording it.
	failErr := runErr
	if corepipeerrors.As(runErr) == nil && errors.Is(runErr, context.DeadlineExceeded) {
		failErr = corepipeerrors.NewTimeoutError(string(job.Step), runErr)
	}

	if err := o.jobs.Fail(ctx, job.ID, failErr.Error()); err != nil {
		o.log.Error("mark failed failed", "job_id", job.ID, "error", err)
	}
	if o.events != nil {
		o.events.PublishJobProgress(job.ID, job.Progress, string(metadata.JobFailed), failErr.Error())
	}

	// Only a failed preprocessing job flips its owning recording; feature
	// and training job failures leave the recording's status untouched
	// (it may still be reprocessed or retrained independently).
	if job.Step == metadata.StepPreprocessing {
		if err := o.recordings.TransitionStatus(ctx, job.RecordingID, metadata.RecordingFailed); err != nil {
			o.log.Error("recording transition to failed rejected", "recording_id", job.RecordingID, "error", err)
		}
	}
}

// Cancel flips jobID's status to cancelled and, if a worker is currently
// executing it, cancels that worker's context so it observes cancellation
// at its next checkpoint. Cancelling a non-running or already-terminal
// job is idempotent, per Cancel's own contract.
func (o *Orchestrator) Cancel(ctx context.Context, jobID string) error {
	if err := o.jobs.Cancel(ctx, jobID); err != nil {
		return err
	}
	o.mu.Lock()
	cancel, ok := o.cancels[jobID]
	o.mu.Unlock()
	if ok {
		cancel()
	}
	return nil
}
