package realtime

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/neurolab-io/corepipe/internal/config"
	"github.com/neurolab-io/corepipe/internal/ringbuffer"
)

type fakePublisher struct {
	features   []FeaturesEvent
	predicted  []PredictionEvent
}

func (f *fakePublisher) PublishFeatures(e FeaturesEvent)     { f.features = append(f.features, e) }
func (f *fakePublisher) PublishPrediction(e PredictionEvent) { f.predicted = append(f.predicted, e) }

func newTestBuffer(t *testing.T) *ringbuffer.Store {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return ringbuffer.NewStore(client, 30)
}

func alphaChunk(sfreq float64, n int) [][]float64 {
	samples := make([]float64, n)
	for i := range samples {
		t := float64(i) / sfreq
		samples[i] = math.Sin(2 * math.Pi * 10 * t)
	}
	return [][]float64{samples, samples}
}

func TestProcessChunkBelowMinBufferEmitsNoEvent(t *testing.T) {
	ctx := context.Background()
	buf := newTestBuffer(t)
	pub := &fakePublisher{}
	cfg := config.Default()

	p := NewProcessor(buf, pub, cfg, nil, 8)
	p.processChunk(ctx, Chunk{RecordingID: "rec-1", Channels: []string{"Fz", "Pz"}, SampleRate: 250, Data: alphaChunk(250, 100)})

	if len(pub.features) != 0 {
		t.Errorf("expected no features event below min buffer duration, got %d", len(pub.features))
	}
}

func TestProcessChunkEmitsAlphaDominantFeatures(t *testing.T) {
	ctx := context.Background()
	buf := newTestBuffer(t)
	pub := &fakePublisher{}
	cfg := config.Default()

	p := NewProcessor(buf, pub, cfg, nil, 8)
	p.processChunk(ctx, Chunk{RecordingID: "rec-1", Channels: []string{"Fz", "Pz"}, SampleRate: 250, Data: alphaChunk(250, 250*3)})

	if len(pub.features) != 1 {
		t.Fatalf("expected one features event, got %d", len(pub.features))
	}
	relAlpha := pub.features[0].Features["rel_alpha"]
	if relAlpha < 0.3 {
		t.Errorf("rel_alpha = %v, expected a clearly alpha-dominant window", relAlpha)
	}
}

func TestThirtySecondStreamEventuallyCrossesAlphaThreshold(t *testing.T) {
	ctx := context.Background()
	buf := newTestBuffer(t)
	pub := &fakePublisher{}
	cfg := config.Default()

	p := NewProcessor(buf, pub, cfg, nil, 8)
	sfreq := 250.0
	for i := 0; i < 30; i++ {
		p.processChunk(ctx, Chunk{RecordingID: "rec-1", Channels: []string{"Fz", "Pz"}, SampleRate: sfreq, Data: alphaChunk(sfreq, int(sfreq))})
	}

	if len(pub.features) == 0 {
		t.Fatal("expected at least one features event over a 30s alpha stream")
	}
	last := pub.features[len(pub.features)-1]
	if last.Features["rel_alpha"] <= 0.5 {
		t.Errorf("final rel_alpha = %v, want > 0.5", last.Features["rel_alpha"])
	}
}

type fakeModel struct {
	names  []string
	vector []float64
}

func (m *fakeModel) FeatureNames() []string { return m.names }
func (m *fakeModel) Predict(vector []float64) (int, float64, []float64, error) {
	m.vector = vector
	return 1, 0.9, []float64{0.1, 0.9}, nil
}

func TestRequestInferenceBuildsVectorWithZeroForMissingFeature(t *testing.T) {
	ctx := context.Background()
	buf := newTestBuffer(t)
	pub := &fakePublisher{}
	cfg := config.Default()

	model := &fakeModel{names: []string{"band_alpha", "no_such_feature"}}
	lookup := func(ctx context.Context, modelID string) (Predictor, error) {
		return model, nil
	}
	p := NewProcessor(buf, pub, cfg, lookup, 8)

	buf.Append(ctx, "rec-1", []string{"Fz", "Pz"}, 250, alphaChunk(250, 250*3))
	p.runInference(ctx, InferenceRequest{RecordingID: "rec-1", ModelID: "m1"})

	if len(pub.predicted) != 1 {
		t.Fatalf("expected one prediction event, got %d", len(pub.predicted))
	}
	if pub.predicted[0].Prediction != 1 {
		t.Errorf("Prediction = %d, want 1", pub.predicted[0].Prediction)
	}
	if len(model.vector) != 2 || model.vector[1] != 0 {
		t.Errorf("vector = %v, want 2 entries with 0 for no_such_feature", model.vector)
	}
}

func TestSubmitRespectsContextCancellation(t *testing.T) {
	buf := newTestBuffer(t)
	pub := &fakePublisher{}
	cfg := config.Default()
	p := NewProcessor(buf, pub, cfg, nil, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Fill the only slot so Submit would otherwise block.
	_ = p.Submit(context.Background(), Chunk{RecordingID: "rec-1"})
	if err := p.Submit(ctx, Chunk{RecordingID: "rec-2"}); err == nil {
		t.Error("expected Submit to return an error once ctx is cancelled and the queue is full")
	}
}

func TestRunDrainsUntilContextDone(t *testing.T) {
	buf := newTestBuffer(t)
	pub := &fakePublisher{}
	cfg := config.Default()
	p := NewProcessor(buf, pub, cfg, nil, 8)

	ctx, cancel := context.WithCancel(context.Background())
	go p.Run(ctx, 2)

	p.Submit(ctx, Chunk{RecordingID: "rec-1", Channels: []string{"Fz", "Pz"}, SampleRate: 250, Data: alphaChunk(250, 250*3)})
	time.Sleep(50 * time.Millisecond)
	cancel()

	if len(pub.features) == 0 {
		t.Error("expected the worker pool to have processed the submitted chunk before cancellation")
	}
}
