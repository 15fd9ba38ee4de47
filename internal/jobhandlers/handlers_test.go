package jobhandlers

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/neurolab-io/corepipe/internal/config"
	"github.com/neurolab-io/corepipe/internal/features"
	"github.com/neurolab-io/corepipe/internal/metadata"
	"github.com/neurolab-io/corepipe/internal/objectstore"
	"github.com/neurolab-io/corepipe/internal/orchestrator"
	"github.com/neurolab-io/corepipe/internal/signalio"
)

// fakeQueue is an in-memory orchestrator.JobQueue, mirroring the one
// internal/orchestrator tests itself with.
type fakeQueue struct {
	mu   sync.Mutex
	data map[string][]string
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{data: make(map[string][]string)}
}

func (q *fakeQueue) Enqueue(ctx context.Context, queueName, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.data[queueName] = append(q.data[queueName], jobID)
	return nil
}

func (q *fakeQueue) Dequeue(ctx context.Context, queueName string, timeout time.Duration) (string, bool, error) {
	deadline := time.Now().Add(timeout)
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.data[queueName]) == 0 {
		if time.Now().After(deadline) || ctx.Err() != nil {
			return "", false, nil
		}
		waitCh := make(chan struct{})
		go func() {
			time.Sleep(time.Millisecond)
			close(waitCh)
		}()
		q.mu.Unlock()
		<-waitCh
		q.mu.Lock()
	}
	id := q.data[queueName][0]
	q.data[queueName] = q.data[queueName][1:]
	return id, true, nil
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Orchestrator.HardTimeout = 5 * time.Second
	cfg.Orchestrator.SoftTimeout = 2 * time.Second
	cfg.Orchestrator.PollInterval = 10 * time.Millisecond
	return cfg
}

func waitForTerminal(t *testing.T, store *metadata.MemoryStore, jobID string) *metadata.ProcessingJob {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		j, err := store.GetJob(context.Background(), jobID)
		if err == nil && (j.Status == metadata.JobCompleted || j.Status == metadata.JobFailed || j.Status == metadata.JobCancelled) {
			return j
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s never reached a terminal status", jobID)
	return nil
}

func sineWave(freqHz, amplitude, sfreq float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = amplitude * math.Sin(2*math.Pi*freqHz*float64(i)/sfreq)
	}
	return out
}

// syntheticBuffer builds a small multichannel recording dominated by one
// frequency, good enough to exercise the cleaning kernel and feature
// engine without a real EDF/BDF file.
func syntheticBuffer(freqHz, sfreq float64, seconds int) *signalio.Buffer {
	channels := []string{"Fz", "Pz", "Cz", "Oz"}
	n := seconds * int(sfreq)
	data := make([][]float64, len(channels))
	for i := range data {
		// Slight per-channel amplitude/phase variation so bad-channel
		// detection sees ordinary, non-identical signals.
		data[i] = sineWave(freqHz, 20.0+float64(i), sfreq, n)
	}
	return &signalio.Buffer{Data: data, Channels: channels, SampleRate: sfreq}
}

func newTestDeps(t *testing.T, store *metadata.MemoryStore) *Deps {
	t.Helper()
	objStore, err := objectstore.NewFilesystemStore(t.TempDir())
	if err != nil {
		t.Fatalf("new filesystem store: %v", err)
	}
	return &Deps{
		Store:      objStore,
		Recordings: store.RecordingRepository(),
		Models:     store.ModelRepository(),
		Cfg:        testConfig(),
		ScratchDir: t.TempDir(),
	}
}

func createRecording(t *testing.T, store *metadata.MemoryStore, id string) {
	t.Helper()
	ctx := context.Background()
	if err := store.Create(ctx, &metadata.Subject{ID: "subj-" + id}); err != nil {
		t.Fatalf("create subject: %v", err)
	}
	if err := store.CreateSession(ctx, &metadata.Session{ID: "sess-" + id, SubjectID: "subj-" + id}); err != nil {
		t.Fatalf("create session: %v", err)
	}
	if err := store.CreateRecording(ctx, &metadata.Recording{ID: id, SessionID: "sess-" + id, Status: metadata.RecordingProcessed}); err != nil {
		t.Fatalf("create recording: %v", err)
	}
}

func runJob(t *testing.T, store *metadata.MemoryStore, deps *Deps, step metadata.JobStep, fn orchestrator.TaskFunc, job *metadata.ProcessingJob) *metadata.ProcessingJob {
	t.Helper()
	o := orchestrator.New(store.JobRepository(), store.RecordingRepository(), newFakeQueue(), deps.Cfg, "test-worker")
	o.RegisterHandler(step, fn)

	if err := store.CreateJob(context.Background(), job); err != nil {
		t.Fatalf("create job: %v", err)
	}
	if err := o.Submit(context.Background(), job); err != nil {
		t.Fatalf("submit: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		o.Run(ctx)
		close(done)
	}()

	got := waitForTerminal(t, store, job.ID)
	cancel()
	<-done
	return got
}

func TestDspStageToCheckpoint(t *testing.T) {
	cases := map[string]string{
		"bandpass":     "band-pass",
		"bad_channels": "bad-channels",
		"ica":          "ICA",
		"resample":     "resample",
		"notch":        "notch",
	}
	for stage, want := range cases {
		if got := dspStageToCheckpoint(stage); got != want {
			t.Errorf("dspStageToCheckpoint(%q) = %q, want %q", stage, got, want)
		}
	}
}

func TestChannelAveragedRows(t *testing.T) {
	names := []string{"band_alpha", "band_beta"}
	rows := []features.Row{
		{EpochID: 0, Channel: "Fz", Values: map[string]float64{"band_alpha": 1, "band_beta": 3}},
		{EpochID: 0, Channel: "Pz", Values: map[string]float64{"band_alpha": 3, "band_beta": 5}},
		{EpochID: 1, Channel: "Fz", Values: map[string]float64{"band_alpha": 10, "band_beta": 0}},
		{EpochID: 1, Channel: "Pz", Values: map[string]float64{"band_alpha": 20, "band_beta": 2}},
	}

	got := channelAveragedRows(rows, names)
	if len(got) != 2 {
		t.Fatalf("len(got) = %d, want 2", len(got))
	}
	want := [][]float64{{2, 4}, {15, 1}}
	for epoch, row := range got {
		for j := range names {
			if row[j] != want[epoch][j] {
				t.Errorf("epoch %d feature %d = %v, want %v", epoch, j, row[j], want[epoch][j])
			}
		}
	}
}

func TestPreprocessingHandlerCleansRecordingAndPersistsCleanedBuffer(t *testing.T) {
	store := metadata.NewMemoryStore()
	deps := newTestDeps(t, store)
	ctx := context.Background()

	if err := store.Create(ctx, &metadata.Subject{ID: "subj-rec-pre"}); err != nil {
		t.Fatalf("create subject: %v", err)
	}
	if err := store.CreateSession(ctx, &metadata.Session{ID: "sess-rec-pre", SubjectID: "subj-rec-pre"}); err != nil {
		t.Fatalf("create session: %v", err)
	}

	buf := syntheticBuffer(10, 256, 12)
	rawLocal := deps.ScratchDir + "/raw-fixture.fif"
	if err := signalio.WriteCleaned(rawLocal, buf); err != nil {
		t.Fatalf("write raw fixture: %v", err)
	}
	rawPath := objectstore.RawPath("subj-rec-pre", "sess-rec-pre", "rec-pre", "fif")
	if err := deps.Store.PutFile(ctx, rawPath, rawLocal); err != nil {
		t.Fatalf("put raw fixture: %v", err)
	}
	if err := store.CreateRecording(ctx, &metadata.Recording{ID: "rec-pre", SessionID: "sess-rec-pre", Status: metadata.RecordingUploaded, RawPath: rawPath}); err != nil {
		t.Fatalf("create recording: %v", err)
	}

	job := &metadata.ProcessingJob{ID: "job-pre", RecordingID: "rec-pre", Step: metadata.StepPreprocessing, Status: metadata.JobPending}
	got := runJob(t, store, deps, metadata.StepPreprocessing, NewPreprocessingHandler(deps), job)

	if got.Status != metadata.JobCompleted {
		t.Fatalf("job status = %v, want completed (log=%q)", got.Status, got.Log)
	}

	finalRec, err := store.GetRecording(ctx, "rec-pre")
	if err != nil {
		t.Fatalf("get recording: %v", err)
	}
	if finalRec.Status != metadata.RecordingProcessed && finalRec.Status != metadata.RecordingNeedsReview {
		t.Errorf("recording status = %v, want processed or needs_review", finalRec.Status)
	}
	if finalRec.CleanedPath == nil {
		t.Fatal("expected CleanedPath to be set")
	}
	if finalRec.SampleRateHz == nil || *finalRec.SampleRateHz != buf.SampleRate {
		t.Errorf("SampleRateHz = %v, want decoded rate %v", finalRec.SampleRateHz, buf.SampleRate)
	}

	localCleaned := deps.ScratchDir + "/cleaned-check.fif"
	if err := deps.Store.GetFile(ctx, *finalRec.CleanedPath, localCleaned); err != nil {
		t.Fatalf("get cleaned file: %v", err)
	}
	cleanedBuf, err := signalio.ReadCleaned(localCleaned)
	if err != nil {
		t.Fatalf("read cleaned buffer: %v", err)
	}
	if cleanedBuf.NumChannels() != buf.NumChannels() {
		t.Errorf("cleaned channel count = %d, want %d", cleanedBuf.NumChannels(), buf.NumChannels())
	}
}

func TestFeatureExtractionHandlerWritesParquetAndSummary(t *testing.T) {
	store := metadata.NewMemoryStore()
	createRecording(t, store, "rec-feat")
	deps := newTestDeps(t, store)
	ctx := context.Background()

	buf := syntheticBuffer(10, 250, 10)
	localCleaned := deps.ScratchDir + "/cleaned-fixture.fif"
	if err := signalio.WriteCleaned(localCleaned, buf); err != nil {
		t.Fatalf("write cleaned fixture: %v", err)
	}
	cleanedPath := objectstore.CleanedPath("rec-feat")
	if err := deps.Store.PutFile(ctx, cleanedPath, localCleaned); err != nil {
		t.Fatalf("put cleaned fixture: %v", err)
	}
	if err := store.SetRecordingCleanedPath(ctx, "rec-feat", cleanedPath); err != nil {
		t.Fatalf("set cleaned path: %v", err)
	}

	job := &metadata.ProcessingJob{ID: "job-feat", RecordingID: "rec-feat", Step: metadata.StepFeatureExtract, Status: metadata.JobPending}
	got := runJob(t, store, deps, metadata.StepFeatureExtract, NewFeatureExtractionHandler(deps), job)

	if got.Status != metadata.JobCompleted {
		t.Fatalf("job status = %v, want completed (log=%q)", got.Status, got.Log)
	}

	finalRec, err := store.GetRecording(ctx, "rec-feat")
	if err != nil {
		t.Fatalf("get recording: %v", err)
	}
	if finalRec.FeaturesPath == nil {
		t.Fatal("expected FeaturesPath to be set")
	}

	parquetBytes, err := deps.Store.GetBytes(ctx, *finalRec.FeaturesPath)
	if err != nil {
		t.Fatalf("get features parquet: %v", err)
	}
	rows, err := features.ReadParquet(bytes.NewReader(parquetBytes))
	if err != nil {
		t.Fatalf("read parquet: %v", err)
	}
	if len(rows) == 0 {
		t.Fatal("expected non-empty feature rows")
	}
	wantCols := len(features.FeatureNames(deps.Cfg.Features.Bands))
	if len(rows[0].Values) != wantCols {
		t.Errorf("row has %d feature values, want %d", len(rows[0].Values), wantCols)
	}

	if _, err := deps.Store.GetBytes(ctx, objectstore.FeaturesSummaryPath("rec-feat")); err != nil {
		t.Errorf("expected summary.json to be written: %v", err)
	}
}

func TestTrainingHandlerFitsAndPersistsModel(t *testing.T) {
	store := metadata.NewMemoryStore()
	deps := newTestDeps(t, store)
	ctx := context.Background()

	writeFeaturesFixture := func(recID string, freqHz float64) {
		createRecording(t, store, recID)
		buf := syntheticBuffer(freqHz, 250, 10)
		table, err := features.Extract(buf, deps.Cfg)
		if err != nil {
			t.Fatalf("extract %s: %v", recID, err)
		}
		local := deps.ScratchDir + "/" + recID + ".parquet"
		f, err := os.Create(local)
		if err != nil {
			t.Fatalf("create parquet file: %v", err)
		}
		if err := features.WriteParquet(f, table); err != nil {
			t.Fatalf("write parquet: %v", err)
		}
		f.Close()
		path := objectstore.FeaturesParquetPath(recID)
		if err := deps.Store.PutFile(ctx, path, local); err != nil {
			t.Fatalf("put parquet: %v", err)
		}
		if err := store.SetRecordingCleanedPath(ctx, recID, objectstore.CleanedPath(recID)); err != nil {
			t.Fatalf("set cleaned path: %v", err)
		}
		if err := store.SetRecordingFeaturesPath(ctx, recID, path); err != nil {
			t.Fatalf("set features path: %v", err)
		}
	}

	writeFeaturesFixture("rec-a", 10) // alpha-dominant
	writeFeaturesFixture("rec-b", 25) // beta-dominant

	params := TrainingParams{
		Provenance: metadata.DatasetProvenance{
			RecordingIDs: []string{"rec-a", "rec-b"},
			LabelMap:     map[string]int{"rec-a": 0, "rec-b": 1},
			SplitSeed:    1,
		},
		ModelType:  metadata.ModelLogistic,
		RandomSeed: 1,
	}
	paramBytes, err := json.Marshal(params)
	if err != nil {
		t.Fatalf("marshal params: %v", err)
	}

	job := &metadata.ProcessingJob{ID: "job-train", RecordingID: "rec-a", Step: metadata.StepTraining, Status: metadata.JobPending, Parameters: paramBytes}
	got := runJob(t, store, deps, metadata.StepTraining, NewTrainingHandler(deps), job)

	if got.Status != metadata.JobCompleted {
		t.Fatalf("job status = %v, want completed (log=%q)", got.Status, got.Log)
	}

	candidates, err := store.ListModelsByStage(ctx, metadata.StageCandidate)
	if err != nil {
		t.Fatalf("list candidates: %v", err)
	}
	production, err := store.ListModelsByStage(ctx, metadata.StageProduction)
	if err != nil {
		t.Fatalf("list production: %v", err)
	}
	models := append(candidates, production...)
	if len(models) != 1 {
		t.Fatalf("expected exactly one trained model, got %d", len(models))
	}
	model := models[0]
	if model.ArtifactPath == "" {
		t.Fatal("expected ArtifactPath to be set")
	}
	if _, err := deps.Store.GetBytes(ctx, model.ArtifactPath); err != nil {
		t.Errorf("expected model artifact to be stored: %v", err)
	}
	if len(model.FeatureNames) != len(features.FeatureNames(deps.Cfg.Features.Bands)) {
		t.Errorf("FeatureNames len = %d, want %d", len(model.FeatureNames), len(features.FeatureNames(deps.Cfg.Features.Bands)))
	}
	if len(model.Metrics) == 0 {
		t.Error("expected non-empty metrics")
	}
}
