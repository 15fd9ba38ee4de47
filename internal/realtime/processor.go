// Package realtime implements the streaming chunk path: notch + band-pass
// filtering, a lightweight channel-averaged feature path, and on-demand
// inference against the ring buffer's trailing window. It is deliberately
// decoupled from the batch feature-extraction and training engines (only
// the band-power math is shared, via internal/features' exported Welch
// helpers) so a slow training run can never stall the realtime path.
package realtime

import (
	"context"
	"time"

	"github.com/neurolab-io/corepipe/internal/config"
	"github.com/neurolab-io/corepipe/internal/corepipeerrors"
	"github.com/neurolab-io/corepipe/internal/ringbuffer"
)

const minBufferSeconds = 2.0

// FeaturesEvent is the payload for a `realtime_features` broadcast.
type FeaturesEvent struct {
	RecordingID string
	Timestamp   time.Time
	Features    map[string]float64
}

// PredictionEvent is the payload for a `realtime_prediction` broadcast.
type PredictionEvent struct {
	RecordingID   string
	Prediction    int
	Probability   float64
	Probabilities []float64
	Timestamp     time.Time
}

// Publisher is the narrow slice of the event bus the realtime path needs;
// internal/eventbus's Bus satisfies it.
type Publisher interface {
	PublishFeatures(FeaturesEvent)
	PublishPrediction(PredictionEvent)
}

// Predictor is the narrow slice of a trained model the realtime path
// needs to run inference without importing the trainer package (which in
// turn would pull in the full scaler/PCA/classifier pipeline).
type Predictor interface {
	FeatureNames() []string
	Predict(vector []float64) (class int, probability float64, probabilities []float64, err error)
}

// ModelLookup resolves a model id to a loaded Predictor, deferring the
// actual artifact fetch/deserialize to whatever owns model storage.
type ModelLookup func(ctx context.Context, modelID string) (Predictor, error)

// Chunk is one streaming append: channel-major samples for recordingID at
// sfreq, to be folded into the ring buffer and (if enough history has
// accumulated) processed into a features event.
type Chunk struct {
	RecordingID string
	Channels    []string
	SampleRate  float64
	Data        [][]float64
}

// InferenceRequest asks the processor to run a model against the current
// ring-buffer tail for a recording.
type InferenceRequest struct {
	RecordingID string
	ModelID     string
}

// Processor drains chunks and inference requests from bounded queues with
// a fixed pool of workers, matching the per-queue-concurrency model the
// job orchestrator uses for its own queues. The worker count is Run's
// numWorkers argument; queueDepth only bounds the two channels.
type Processor struct {
	buffer      *ringbuffer.Store
	events      Publisher
	cfg         *config.Config
	lookupModel ModelLookup

	chunks     chan Chunk
	inferences chan InferenceRequest
}

// NewProcessor builds a processor. lookupModel may be nil if the caller
// never submits InferenceRequests.
func NewProcessor(buffer *ringbuffer.Store, events Publisher, cfg *config.Config, lookupModel ModelLookup, queueDepth int) *Processor {
	if queueDepth <= 0 {
		queueDepth = 256
	}
	return &Processor{
		buffer:      buffer,
		events:      events,
		cfg:         cfg,
		lookupModel: lookupModel,
		chunks:      make(chan Chunk, queueDepth),
		inferences: make(chan InferenceRequest, queueDepth),
	}
}

// Run starts numWorkers goroutines draining both queues, returning when
// ctx is cancelled. Each worker handles whichever queue has work, so a
// burst of inference requests cannot starve chunk processing and vice
// versa.
func (p *Processor) Run(ctx context.Context, numWorkers int) {
	if numWorkers < 1 {
		numWorkers = 1
	}
	done := make(chan struct{})
	for i := 0; i < numWorkers; i++ {
		go p.worker(ctx, done)
	}
	<-ctx.Done()
	for i := 0; i < numWorkers; i++ {
		<-done
	}
}

func (p *Processor) worker(ctx context.Context, done chan<- struct{}) {
	defer func() { done <- struct{}{} }()
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-p.chunks:
			p.processChunk(ctx, c)
		case r := <-p.inferences:
			p.runInference(ctx, r)
		}
	}
}

// Submit enqueues a chunk for processing, blocking if the queue is full.
func (p *Processor) Submit(ctx context.Context, c Chunk) error {
	select {
	case p.chunks <- c:
		return nil
	case <-ctx.Done():
		return corepipeerrors.NewCancelledError("realtime.submit_chunk")
	}
}

// RequestInference enqueues an inference request, blocking if the queue
// is full.
func (p *Processor) RequestInference(ctx context.Context, r InferenceRequest) error {
	select {
	case p.inferences <- r:
		return nil
	case <-ctx.Done():
		return corepipeerrors.NewCancelledError("realtime.submit_inference")
	}
}

// processChunk implements C6's append/filter/feature/emit sequence. It
// returns silently (no event) while the buffer is still below
// minBufferSeconds, matching the reference task's {'status': 'buffering'}
// early return.
func (p *Processor) processChunk(ctx context.Context, c Chunk) {
	if err := p.buffer.Append(ctx, c.RecordingID, c.Channels, c.SampleRate, c.Data); err != nil {
		return
	}

	snap, err := p.buffer.GetLast(ctx, c.RecordingID, 24*time.Hour)
	if err != nil || snap == nil {
		return
	}
	if float64(snap.NumSamples())/snap.SampleRate < minBufferSeconds {
		return
	}

	filtered := filterBuffer(snap.Data, snap.SampleRate, p.cfg)

	hopSamples := int(p.cfg.Realtime.HopSeconds * snap.SampleRate)
	window := tailWindow(filtered, hopSamples)

	feats := extractLightweight(window, snap.SampleRate, p.cfg.Features.Bands)

	if p.events != nil {
		p.events.PublishFeatures(FeaturesEvent{
			RecordingID: c.RecordingID,
			Timestamp:   time.Now().UTC(),
			Features:    feats,
		})
	}
}

func (p *Processor) runInference(ctx context.Context, r InferenceRequest) {
	if p.lookupModel == nil || p.events == nil {
		return
	}
	model, err := p.lookupModel(ctx, r.ModelID)
	if err != nil {
		return
	}

	snap, err := p.buffer.GetLast(ctx, r.RecordingID, 2*time.Second)
	if err != nil || snap == nil {
		return
	}

	filtered := filterBuffer(snap.Data, snap.SampleRate, p.cfg)
	feats := extractLightweight(filtered, snap.SampleRate, p.cfg.Features.Bands)

	names := model.FeatureNames()
	vector := make([]float64, len(names))
	for i, name := range names {
		vector[i] = feats[name] // zero value for a missing feature, by design
	}

	class, probability, probabilities, err := model.Predict(vector)
	if err != nil {
		return
	}

	p.events.PublishPrediction(PredictionEvent{
		RecordingID:   r.RecordingID,
		Prediction:    class,
		Probability:   probability,
		Probabilities: probabilities,
		Timestamp:     time.Now().UTC(),
	})
}

func filterBuffer(data [][]float64, sfreq float64, cfg *config.Config) [][]float64 {
	notchSections := make([]biquad, 0, len(cfg.NotchFreqs))
	for _, f := range cfg.NotchFreqs {
		notchSections = append(notchSections, designNotch(float64(f), sfreq, 30))
	}
	bandpassSections := designBandpassSections(cfg.Bandpass.Low, cfg.Bandpass.High, sfreq, 4)

	out := make([][]float64, len(data))
	for ch, samples := range data {
		y := applyZeroPhase(notchSections, samples)
		y = applyZeroPhase(bandpassSections, y)
		out[ch] = y
	}
	return out
}

func tailWindow(data [][]float64, n int) [][]float64 {
	out := make([][]float64, len(data))
	for ch, samples := range data {
		if n <= 0 || n > len(samples) {
			out[ch] = samples
			continue
		}
		out[ch] = samples[len(samples)-n:]
	}
	return out
}
