package retrain

import (
	"context"
	"testing"
	"time"

	"github.com/neurolab-io/corepipe/internal/config"
	"github.com/neurolab-io/corepipe/internal/metadata"
)

type fakeQueue struct {
	enqueued []string
}

func (q *fakeQueue) Enqueue(_ context.Context, queueName, jobID string) error {
	q.enqueued = append(q.enqueued, queueName+":"+jobID)
	return nil
}

func (q *fakeQueue) Dequeue(_ context.Context, _ string, _ time.Duration) (string, bool, error) {
	return "", false, nil
}

func newTestMonitor(t *testing.T, cfg *config.Config, queue *fakeQueue) (*Monitor, *metadata.MemoryStore) {
	t.Helper()
	store := metadata.NewMemoryStore()
	var q interface {
		Enqueue(context.Context, string, string) error
		Dequeue(context.Context, string, time.Duration) (string, bool, error)
	}
	if queue != nil {
		q = queue
	}
	m := NewMonitor(store.RecordingRepository(), store.ModelRepository(), store.JobRepository(), q, cfg)
	return m, store
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Retrain.NewRecordingThreshold = 2
	return cfg
}

func createProductionModel(t *testing.T, store *metadata.MemoryStore, id string, createdAt time.Time) {
	t.Helper()
	ctx := context.Background()
	if err := store.ModelRepository().Create(ctx, &metadata.MLModel{ID: id, Name: "m", Version: "v1", Stage: metadata.StageCandidate}); err != nil {
		t.Fatalf("create model: %v", err)
	}
	if err := store.PromoteModel(ctx, id); err != nil {
		t.Fatalf("promote model: %v", err)
	}
}

func createFeaturizedRecording(t *testing.T, store *metadata.MemoryStore, id string) {
	t.Helper()
	ctx := context.Background()
	if err := store.Create(ctx, &metadata.Subject{ID: "subj-" + id}); err != nil {
		t.Fatalf("create subject: %v", err)
	}
	if err := store.CreateSession(ctx, &metadata.Session{ID: "sess-" + id, SubjectID: "subj-" + id}); err != nil {
		t.Fatalf("create session: %v", err)
	}
	rec := &metadata.Recording{ID: id, SessionID: "sess-" + id, Status: metadata.RecordingUploaded, Format: metadata.FormatEDF}
	if err := store.CreateRecording(ctx, rec); err != nil {
		t.Fatalf("create recording: %v", err)
	}
	if err := store.TransitionRecordingStatus(ctx, id, metadata.RecordingProcessing); err != nil {
		t.Fatalf("transition to processing: %v", err)
	}
	if err := store.TransitionRecordingStatus(ctx, id, metadata.RecordingProcessed); err != nil {
		t.Fatalf("transition to processed: %v", err)
	}
	if err := store.SetRecordingCleanedPath(ctx, id, "blob://cleaned/"+id); err != nil {
		t.Fatalf("set cleaned path: %v", err)
	}
	if err := store.SetRecordingFeaturesPath(ctx, id, "blob://features/"+id); err != nil {
		t.Fatalf("set features path: %v", err)
	}
}

func TestTickSkipsWhenNoProductionModel(t *testing.T) {
	m, store := newTestMonitor(t, testConfig(), nil)
	createFeaturizedRecording(t, store, "rec-1")
	createFeaturizedRecording(t, store, "rec-2")

	m.TickNow(context.Background())

	if rec := m.LastRecommendation(); rec != nil {
		t.Fatalf("expected no recommendation with no production model, got %+v", rec)
	}
}

func TestTickSkipsBelowThreshold(t *testing.T) {
	m, store := newTestMonitor(t, testConfig(), nil)
	createProductionModel(t, store, "model-1", time.Now().Add(-time.Hour))
	createFeaturizedRecording(t, store, "rec-1")

	m.TickNow(context.Background())

	if rec := m.LastRecommendation(); rec != nil {
		t.Fatalf("expected no recommendation below threshold, got %+v", rec)
	}
}

func TestTickRecordsRecommendationWithoutDefaultLabelMap(t *testing.T) {
	cfg := testConfig()
	m, store := newTestMonitor(t, cfg, nil)
	createProductionModel(t, store, "model-1", time.Now().Add(-time.Hour))
	createFeaturizedRecording(t, store, "rec-1")
	createFeaturizedRecording(t, store, "rec-2")

	m.TickNow(context.Background())

	rec := m.LastRecommendation()
	if rec == nil {
		t.Fatal("expected a recommendation")
	}
	if rec.NewRecordingCount != 2 {
		t.Errorf("NewRecordingCount = %d, want 2", rec.NewRecordingCount)
	}
	if rec.ProductionModelID != "model-1" {
		t.Errorf("ProductionModelID = %q, want model-1", rec.ProductionModelID)
	}
}

func TestTickEnqueuesTrainingJobWithDefaultLabelMap(t *testing.T) {
	cfg := testConfig()
	cfg.Retrain.DefaultLabelMap = map[string]int{"rec-1": 0, "rec-2": 1}
	queue := &fakeQueue{}
	m, store := newTestMonitor(t, cfg, queue)
	createProductionModel(t, store, "model-1", time.Now().Add(-time.Hour))
	createFeaturizedRecording(t, store, "rec-1")
	createFeaturizedRecording(t, store, "rec-2")

	m.TickNow(context.Background())

	if m.LastRecommendation() != nil {
		t.Fatal("expected no recorded recommendation when a job is enqueued instead")
	}
	if len(queue.enqueued) != 1 {
		t.Fatalf("expected exactly one enqueued job, got %v", queue.enqueued)
	}
	if got := queue.enqueued[0]; got[:len("training:")] != "training:" {
		t.Errorf("enqueued = %q, want training queue", got)
	}
}

func TestStartStopIsIdempotent(t *testing.T) {
	cfg := testConfig()
	cfg.Retrain.Period = 10 * time.Millisecond
	m, _ := newTestMonitor(t, cfg, nil)

	m.Start()
	m.Start()
	time.Sleep(25 * time.Millisecond)
	m.Stop()
	m.Stop()
}
