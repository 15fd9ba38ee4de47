// Package jobhandlers wires the DSP kernel (internal/dsp), the feature
// engine (internal/features), and the trainer (internal/trainer) into
// internal/orchestrator.TaskFunc handlers: the glue between "a claimed job
// row" and "the pipeline stage that actually does the work."
package jobhandlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"

	"github.com/google/uuid"

	"github.com/neurolab-io/corepipe/internal/config"
	"github.com/neurolab-io/corepipe/internal/corepipeerrors"
	"github.com/neurolab-io/corepipe/internal/dsp"
	"github.com/neurolab-io/corepipe/internal/features"
	"github.com/neurolab-io/corepipe/internal/metadata"
	"github.com/neurolab-io/corepipe/internal/objectstore"
	"github.com/neurolab-io/corepipe/internal/orchestrator"
	"github.com/neurolab-io/corepipe/internal/signalio"
	"github.com/neurolab-io/corepipe/internal/trainer"
)

// RecordingPublisher is the narrow slice of internal/eventbus.Bus the
// handlers need for recording_update broadcasts. Defined locally so this
// package stays free of any dependency on eventbus.
type RecordingPublisher interface {
	PublishRecordingUpdate(recordingID, status string, data map[string]any)
}

// Deps bundles everything every handler needs. ScratchDir is a local
// directory the handlers use for decode/encode round-trips through
// objectstore, since every format reader in internal/signalio works off a
// local path, not a stream.
type Deps struct {
	Store      objectstore.Store
	Recordings metadata.RecordingRepository
	Models     metadata.ModelRepository
	Cfg        *config.Config
	ScratchDir string
	Events     RecordingPublisher
}

func (d *Deps) scratchFile(prefix string) string {
	return fmt.Sprintf("%s/%s-%s", d.ScratchDir, prefix, uuid.NewString())
}

// dspStageToCheckpoint translates dsp.Run's internal stage names to the
// checkpoint table's names, which follow spec's own wording rather than
// the kernel's internal vocabulary.
func dspStageToCheckpoint(stage string) string {
	switch stage {
	case "bandpass":
		return "band-pass"
	case "bad_channels":
		return "bad-channels"
	case "ica":
		return "ICA"
	default:
		return stage
	}
}

// NewPreprocessingHandler builds the StepPreprocessing TaskFunc: download
// raw recording, decode, run the cleaning kernel, persist the cleaned
// buffer, and flip the recording to processed or needs_review.
func NewPreprocessingHandler(d *Deps) orchestrator.TaskFunc {
	return func(jc *orchestrator.JobContext, job *metadata.ProcessingJob) error {
		ctx := jc.Context()

		recording, err := d.Recordings.Get(ctx, job.RecordingID)
		if err != nil {
			return err
		}

		localRaw := d.scratchFile("raw") + path.Ext(recording.RawPath)
		if err := orchestrator.WithRetry(ctx, func() error {
			return d.Store.GetFile(ctx, recording.RawPath, localRaw)
		}); err != nil {
			return err
		}
		defer os.Remove(localRaw)
		if err := jc.Checkpoint("download"); err != nil {
			return err
		}

		buf, err := signalio.Decode(localRaw)
		if err != nil {
			return err
		}
		buf = buf.Normalize().AttachStandardMontage()
		if err := d.Recordings.SetDecodeMetadata(ctx, job.RecordingID, buf.SampleRate, buf.NumChannels(), buf.DurationSeconds()); err != nil {
			return err
		}
		if err := jc.Checkpoint("decode"); err != nil {
			return err
		}

		report, err := dsp.Run(buf, d.Cfg, func(stage string) {
			_ = jc.Checkpoint(dspStageToCheckpoint(stage))
		})
		if err != nil {
			return err
		}

		localCleaned := d.scratchFile("cleaned")
		if err := signalio.WriteCleaned(localCleaned, buf); err != nil {
			return err
		}
		defer os.Remove(localCleaned)

		cleanedPath := objectstore.CleanedPath(job.RecordingID)
		if err := orchestrator.WithRetry(ctx, func() error {
			return d.Store.PutFile(ctx, cleanedPath, localCleaned)
		}); err != nil {
			return err
		}
		finalStatus := metadata.RecordingProcessed
		if report.NeedsReview {
			finalStatus = metadata.RecordingNeedsReview
		}
		if err := d.Recordings.TransitionStatus(ctx, job.RecordingID, finalStatus); err != nil {
			return err
		}
		if err := d.Recordings.SetCleanedPath(ctx, job.RecordingID, cleanedPath); err != nil {
			return err
		}
		if err := jc.Checkpoint("save"); err != nil {
			return err
		}

		// The visualizations checkpoint only marks its slot in the progress
		// table; this handler renders and uploads no plots.
		if err := jc.Checkpoint("visualizations"); err != nil {
			return err
		}

		if d.Events != nil {
			d.Events.PublishRecordingUpdate(job.RecordingID, string(finalStatus), map[string]any{
				"bad_channel_pct": report.BadChannelPct,
				"needs_review":    report.NeedsReview,
			})
		}

		return jc.Checkpoint("done")
	}
}

// NewFeatureExtractionHandler builds the StepFeatureExtract TaskFunc: load
// the cleaned buffer, run the feature engine, and persist the feature
// table and its summary.
func NewFeatureExtractionHandler(d *Deps) orchestrator.TaskFunc {
	return func(jc *orchestrator.JobContext, job *metadata.ProcessingJob) error {
		ctx := jc.Context()

		recording, err := d.Recordings.Get(ctx, job.RecordingID)
		if err != nil {
			return err
		}
		if recording.CleanedPath == nil {
			return corepipeerrors.NewDataError("feature extraction requires a cleaned recording", nil)
		}

		localCleaned := d.scratchFile("cleaned")
		if err := orchestrator.WithRetry(ctx, func() error {
			return d.Store.GetFile(ctx, *recording.CleanedPath, localCleaned)
		}); err != nil {
			return err
		}
		defer os.Remove(localCleaned)
		if err := jc.Checkpoint("download"); err != nil {
			return err
		}

		buf, err := signalio.ReadCleaned(localCleaned)
		if err != nil {
			return err
		}
		if err := jc.Checkpoint("load"); err != nil {
			return err
		}

		table, err := features.Extract(buf, d.Cfg)
		if err != nil {
			return err
		}
		if err := jc.Checkpoint("per-epoch"); err != nil {
			return err
		}
		// Coherence is computed inside Extract alongside per-epoch rows;
		// the checkpoint here only marks the pipeline stage boundary the
		// spec names, not a separate call.
		if err := jc.Checkpoint("connectivity"); err != nil {
			return err
		}

		localParquet := d.scratchFile("features") + ".parquet"
		if err := writeParquetFile(localParquet, table); err != nil {
			return err
		}
		defer os.Remove(localParquet)

		featuresPath := objectstore.FeaturesParquetPath(job.RecordingID)
		if err := orchestrator.WithRetry(ctx, func() error {
			return d.Store.PutFile(ctx, featuresPath, localParquet)
		}); err != nil {
			return err
		}

		summaryPath := objectstore.FeaturesSummaryPath(job.RecordingID)
		summaryBytes, err := buildSummaryBytes(table)
		if err != nil {
			return err
		}
		if err := orchestrator.WithRetry(ctx, func() error {
			return d.Store.PutBytes(ctx, summaryPath, summaryBytes, "application/json")
		}); err != nil {
			return err
		}

		if err := d.Recordings.SetFeaturesPath(ctx, job.RecordingID, featuresPath); err != nil {
			return err
		}
		if err := jc.Checkpoint("save"); err != nil {
			return err
		}
		if d.Events != nil {
			d.Events.PublishRecordingUpdate(job.RecordingID, string(recording.Status), map[string]any{
				"features_path": featuresPath,
			})
		}

		return jc.Checkpoint("done")
	}
}

// TrainingParams is the job.Parameters payload for a StepTraining job.
type TrainingParams struct {
	Provenance metadata.DatasetProvenance `json:"provenance"`
	ModelType  metadata.ModelType         `json:"model_type"`
	RandomSeed int64                      `json:"random_seed"`
}

// NewTrainingHandler builds the StepTraining TaskFunc: load every labeled
// recording's feature table, fit a pipeline, persist the model, and mark
// it a candidate if it clears the configured promotion thresholds.
func NewTrainingHandler(d *Deps) orchestrator.TaskFunc {
	return func(jc *orchestrator.JobContext, job *metadata.ProcessingJob) error {
		ctx := jc.Context()

		var params TrainingParams
		if err := json.Unmarshal(job.Parameters, &params); err != nil {
			return corepipeerrors.NewDataError("invalid training job parameters", err)
		}
		if params.ModelType == "" {
			params.ModelType = metadata.ModelLogistic
		}

		if err := jc.Progress(0.1, "loading datasets"); err != nil {
			return err
		}

		var featureNames []string
		datasets := make([]trainer.Dataset, 0, len(params.Provenance.RecordingIDs))
		for _, recordingID := range params.Provenance.RecordingIDs {
			recording, err := d.Recordings.Get(ctx, recordingID)
			if err != nil {
				return err
			}
			if recording.FeaturesPath == nil {
				return corepipeerrors.NewDataError("training requires a featurized recording: "+recordingID, nil)
			}

			tableBytes, err := d.Store.GetBytes(ctx, *recording.FeaturesPath)
			if err != nil {
				return err
			}
			perEpochPerChannel, err := features.ReadParquet(bytes.NewReader(tableBytes))
			if err != nil {
				return err
			}
			if featureNames == nil {
				featureNames = features.FeatureNames(d.Cfg.Features.Bands)
			}

			rows := channelAveragedRows(perEpochPerChannel, featureNames)
			datasets = append(datasets, trainer.Dataset{
				RecordingID: recordingID,
				Label:       params.Provenance.LabelMap[recordingID],
				Rows:        rows,
			})
		}

		if err := jc.Progress(0.3, "fitting pipeline"); err != nil {
			return err
		}

		result, err := trainer.Train(datasets, featureNames, params.ModelType, d.Cfg, params.RandomSeed)
		if err != nil {
			return err
		}
		if err := jc.Progress(0.7, "cross-validated"); err != nil {
			return err
		}

		modelBytes, err := trainer.SaveBytes(result.Model)
		if err != nil {
			return err
		}

		model := &metadata.MLModel{
			ID:           uuid.NewString(),
			Name:         "eeg-classifier",
			Version:      uuid.NewString()[:8],
			ModelType:    params.ModelType,
			Metrics:      result.Metrics.ToMap(),
			FeatureNames: result.FeatureNames,
			Scaler:       metadata.ScalerParams{Mean: result.Model.Scaler.Mean, Scale: result.Model.Scaler.Scale},
			CVFolds:      result.CVFolds,
			Provenance:   params.Provenance,
			Stage:        metadata.StageDevelopment,
			RandomSeed:   params.RandomSeed,
		}

		// Stage gates development vs. candidate per spec.md §4.7 step 8:
		// clearing the promotion thresholds only makes a model eligible
		// for production, it does not promote it. Promotion to
		// `production` is a distinct, separately-invoked operation — see
		// trainer.PromoteToProduction, invoked out-of-band via
		// cmd/server's /models/{id}/promote route — never performed
		// automatically inside the training job itself.
		thresholds := d.Cfg.Training.PromotionThresholds
		if model.MeetsPromotionThresholds(thresholds.ROCAUC, thresholds.F1) {
			model.Stage = metadata.StageCandidate
		}

		if err := model.MarshalJSONColumns(); err != nil {
			return err
		}

		artifactPath := objectstore.ModelArtifactPath(model.ID)
		if err := orchestrator.WithRetry(ctx, func() error {
			return d.Store.PutBytes(ctx, artifactPath, modelBytes, "application/octet-stream")
		}); err != nil {
			return err
		}
		model.ArtifactPath = artifactPath

		if err := d.Models.Create(ctx, model); err != nil {
			return err
		}
		if err := jc.Progress(0.9, "persisted model"); err != nil {
			return err
		}

		return jc.Progress(1.0, "done")
	}
}

func writeParquetFile(path string, table *features.Table) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return features.WriteParquet(f, table)
}

func buildSummaryBytes(table *features.Table) ([]byte, error) {
	var buf bytes.Buffer
	if err := features.WriteSummary(&buf, table); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// channelAveragedRows averages perEpochPerChannel's feature vectors across
// channels within each epoch, since ReadParquet only returns the raw
// per-(epoch, channel) rows the Parquet artifact persists and the trainer
// expects one row per epoch.
func channelAveragedRows(perEpochPerChannel []features.Row, featureNames []string) [][]float64 {
	sums := make(map[int][]float64)
	counts := make(map[int]int)
	order := make([]int, 0)
	for _, row := range perEpochPerChannel {
		if _, ok := sums[row.EpochID]; !ok {
			sums[row.EpochID] = make([]float64, len(featureNames))
			order = append(order, row.EpochID)
		}
		for j, name := range featureNames {
			sums[row.EpochID][j] += row.Values[name]
		}
		counts[row.EpochID]++
	}

	rows := make([][]float64, 0, len(order))
	for _, epochID := range order {
		sum := sums[epochID]
		n := float64(counts[epochID])
		vec := make([]float64, len(featureNames))
		for j, v := range sum {
			vec[j] = v / n
		}
		rows = append(rows, vec)
	}
	return rows
}
