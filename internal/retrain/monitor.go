// Package retrain runs the auto-retrain tick: a periodic check of how many
// newly-featurized recordings have accumulated since the production model
// was trained, surfacing a recommendation (or, if a default label map is
// configured, enqueuing a training job outright) once the count clears a
// threshold.
//
// It generalizes the teacher's periodic-sweep shape
// (internal/retention.Manager: a mutex-guarded idempotent Start/Stop pair
// around a time.Ticker-driven run loop) from "delete stale artifacts" to
// "recommend a retrain," keeping the same lifecycle but replacing the body
// of the tick.
package retrain

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/neurolab-io/corepipe/internal/config"
	"github.com/neurolab-io/corepipe/internal/jobhandlers"
	"github.com/neurolab-io/corepipe/internal/metadata"
	"github.com/neurolab-io/corepipe/internal/orchestrator"
)

// trainingRootRecordingID is the synthetic recording id auto-enqueued
// training jobs are attached to, per ProcessingJob's doc comment.
const trainingRootRecordingID = "training-root"

// defaultRandomSeed matches the reference pipeline's random_state=42 for
// training jobs the tick enqueues itself, since there is no per-tick
// caller to supply one.
const defaultRandomSeed = 42

// Recommendation is what a tick records when it finds enough new data but
// has no configured label map to enqueue a training job with.
type Recommendation struct {
	At               time.Time
	NewRecordingCount int
	ProductionModelID string
}

// Monitor runs the auto-retrain tick.
type Monitor struct {
	recordings metadata.RecordingRepository
	models     metadata.ModelRepository
	jobs       metadata.JobRepository
	queue      orchestrator.JobQueue
	cfg        *config.Config
	log        *slog.Logger

	stopCh    chan struct{}
	stoppedCh chan struct{}
	mu        sync.Mutex
	running   bool

	recMu          sync.Mutex
	lastRecommendation *Recommendation
}

// NewMonitor builds a Monitor. queue is used to enqueue a training job when
// cfg.Retrain.DefaultLabelMap is configured; it may be nil if the deployment
// only ever wants recommendations recorded, never auto-enqueued.
func NewMonitor(recordings metadata.RecordingRepository, models metadata.ModelRepository, jobs metadata.JobRepository, queue orchestrator.JobQueue, cfg *config.Config) *Monitor {
	return &Monitor{
		recordings: recordings,
		models:     models,
		jobs:       jobs,
		queue:      queue,
		cfg:        cfg,
		log:        slog.Default().With("component", "retrain"),
		stopCh:     make(chan struct{}),
		stoppedCh:  make(chan struct{}),
	}
}

// Start begins the background tick goroutine. Calling Start twice without
// an intervening Stop is a no-op.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	m.running = true
	go m.run()
}

// Stop signals the tick goroutine to exit and waits for it to finish.
// Calling Stop without a prior Start is a no-op.
func (m *Monitor) Stop() {
	shouldStop := false
	func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if !m.running {
			return
		}
		m.running = false
		shouldStop = true
	}()
	if !shouldStop {
		return
	}
	close(m.stopCh)
	<-m.stoppedCh
}

func (m *Monitor) run() {
	defer close(m.stoppedCh)

	period := m.cfg.Retrain.Period
	if period <= 0 {
		period = time.Hour
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.tick(context.Background())
		case <-m.stopCh:
			return
		}
	}
}

// tick runs one evaluation. It only ever reports or schedules; it never
// trains a model itself.
func (m *Monitor) tick(ctx context.Context) {
	production, err := m.models.GetProduction(ctx)
	if err != nil {
		m.log.Error("get production model failed", "error", err)
		return
	}
	if production == nil {
		// No production model to compare against: report nothing, per
		// the reimplementation's read-after-guard resolution of the
		// source's new_recordings-outside-its-guard ambiguity.
		return
	}

	count, err := m.recordings.CountNewSince(ctx, production.CreatedAt)
	if err != nil {
		m.log.Error("count new recordings failed", "error", err)
		return
	}
	if count < m.cfg.Retrain.NewRecordingThreshold {
		return
	}

	if len(m.cfg.Retrain.DefaultLabelMap) > 0 {
		if err := m.enqueueTraining(ctx, count); err != nil {
			m.log.Error("enqueue retrain job failed", "error", err)
		}
		return
	}

	m.recordRecommendation(count, production.ID)
}

func (m *Monitor) enqueueTraining(ctx context.Context, newRecordingCount int) error {
	recordingIDs := make([]string, 0, len(m.cfg.Retrain.DefaultLabelMap))
	for id := range m.cfg.Retrain.DefaultLabelMap {
		recordingIDs = append(recordingIDs, id)
	}
	trainingParams := jobhandlers.TrainingParams{
		Provenance: metadata.DatasetProvenance{
			RecordingIDs: recordingIDs,
			LabelMap:     m.cfg.Retrain.DefaultLabelMap,
		},
		ModelType:  metadata.ModelLogistic,
		RandomSeed: defaultRandomSeed,
	}
	params, err := json.Marshal(trainingParams)
	if err != nil {
		return err
	}

	job := &metadata.ProcessingJob{
		ID:          uuid.NewString(),
		RecordingID: trainingRootRecordingID,
		Step:        metadata.StepTraining,
		Parameters:  params,
	}
	if err := m.jobs.Create(ctx, job); err != nil {
		return err
	}

	m.log.Info("auto-retrain threshold reached, enqueuing training job",
		"new_recording_count", newRecordingCount, "job_id", job.ID)

	if m.queue == nil {
		return nil
	}
	return m.queue.Enqueue(ctx, "training", job.ID)
}

func (m *Monitor) recordRecommendation(newRecordingCount int, productionModelID string) {
	rec := &Recommendation{
		At:                time.Now().UTC(),
		NewRecordingCount: newRecordingCount,
		ProductionModelID: productionModelID,
	}
	m.recMu.Lock()
	m.lastRecommendation = rec
	m.recMu.Unlock()

	m.log.Warn("auto-retrain threshold reached, no default label map configured",
		"new_recording_count", newRecordingCount, "production_model_id", productionModelID)
}

// LastRecommendation returns the most recent recommendation recorded, or
// nil if none has fired (or the last tick instead auto-enqueued a job).
func (m *Monitor) LastRecommendation() *Recommendation {
	m.recMu.Lock()
	defer m.recMu.Unlock()
	if m.lastRecommendation == nil {
		return nil
	}
	cp := *m.lastRecommendation
	return &cp
}

// TickNow runs one evaluation immediately, bypassing the ticker. Exposed
// for tests and for an operator-triggered manual check.
func (m *Monitor) TickNow(ctx context.Context) {
	m.tick(ctx)
}
