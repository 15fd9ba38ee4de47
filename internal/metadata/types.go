// Package metadata models the relational entities that own identity for
// the pipeline: Subject, Session, Recording, ProcessingJob, and MLModel.
// The metadata store owns entity identity; the object store (package
// objectstore) owns artifact bytes. Entities are plain data records with a
// thin persistence port — no traversable ORM graph, relationships are IDs
// plus a lookup call.
package metadata

import (
	"encoding/json"
	"time"
)

// Subject is a stable-labeled participant owning zero or more Sessions.
// Label is immutable once created.
type Subject struct {
	ID          string          `db:"id" json:"id"`
	Label       string          `db:"label" json:"label"`
	DateOfBirth *time.Time      `db:"date_of_birth" json:"date_of_birth,omitempty"`
	Notes       json.RawMessage `db:"notes" json:"notes,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}

// Session belongs to one Subject and owns zero or more Recordings.
type Session struct {
	ID        string          `db:"id" json:"id"`
	SubjectID string          `db:"subject_id" json:"subject_id"`
	Timestamp time.Time       `db:"timestamp" json:"timestamp"`
	Protocol  json.RawMessage `db:"protocol" json:"protocol,omitempty"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// RecordingStatus is the finite-state value of a Recording's processing
// lifecycle. See recording_status.go for the transition graph.
type RecordingStatus string

const (
	RecordingUploaded   RecordingStatus = "uploaded"
	RecordingProcessing RecordingStatus = "processing"
	RecordingProcessed  RecordingStatus = "processed"
	RecordingFailed     RecordingStatus = "failed"
	RecordingNeedsReview RecordingStatus = "needs_review"
)

// RecordingFormat is the source encoding of the uploaded recording.
type RecordingFormat string

const (
	FormatEDF    RecordingFormat = "EDF"
	FormatBDF    RecordingFormat = "BDF"
	FormatFIF    RecordingFormat = "FIF"
	FormatEEGLAB RecordingFormat = "EEGLAB"
)

// Recording belongs to one Session. SampleRate and ChannelCount are
// populated on first successful decode and never changed thereafter.
// CleanedPath is non-null iff Status is processed or needs_review;
// FeaturesPath non-null implies CleanedPath non-null (enforced by the
// RecordingRepository implementations and the schema, not by this type).
type Recording struct {
	ID               string          `db:"id" json:"id"`
	SessionID        string          `db:"session_id" json:"session_id"`
	OriginalFilename string          `db:"original_filename" json:"original_filename"`
	Format           RecordingFormat `db:"format" json:"format"`
	SampleRateHz     *float64        `db:"sample_rate_hz" json:"sample_rate_hz,omitempty"`
	ChannelCount     *int            `db:"channel_count" json:"channel_count,omitempty"`
	DurationSeconds  *float64        `db:"duration_seconds" json:"duration_seconds,omitempty"`
	Status           RecordingStatus `db:"status" json:"status"`
	RawPath          string          `db:"raw_path" json:"raw_path"`
	CleanedPath      *string         `db:"cleaned_path" json:"cleaned_path,omitempty"`
	FeaturesPath     *string         `db:"features_path" json:"features_path,omitempty"`
	Meta             json.RawMessage `db:"meta" json:"meta,omitempty"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updated_at"`
}

// JobStep names one of the three pipeline stages a ProcessingJob runs.
type JobStep string

const (
	StepPreprocessing   JobStep = "preprocessing"
	StepFeatureExtract  JobStep = "feature_extraction"
	StepTraining        JobStep = "training"
)

// JobStatus is the finite-state value of a ProcessingJob's run lifecycle.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// ProcessingJob belongs to one Recording (training jobs may instead be
// attached to a synthetic training-root recording id). At most one job per
// (RecordingID, Step) may be Running at any instant.
type ProcessingJob struct {
	ID          string          `db:"id" json:"id"`
	RecordingID string          `db:"recording_id" json:"recording_id"`
	Step        JobStep         `db:"step" json:"step"`
	Parameters  json.RawMessage `db:"parameters" json:"parameters,omitempty"`
	Status      JobStatus       `db:"status" json:"status"`
	Progress    float64         `db:"progress" json:"progress"`
	Log         string          `db:"log" json:"log,omitempty"`
	Error       *string         `db:"error" json:"error,omitempty"`
	TaskID      *string         `db:"task_id" json:"task_id,omitempty"`
	WorkerID    *string         `db:"worker_id" json:"worker_id,omitempty"`
	StartedAt   *time.Time      `db:"started_at" json:"started_at,omitempty"`
	FinishedAt  *time.Time      `db:"finished_at" json:"finished_at,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}

// ModelStage controls which model, if any, serves live predictions.
type ModelStage string

const (
	StageDevelopment ModelStage = "development"
	StageCandidate   ModelStage = "candidate"
	StageProduction  ModelStage = "production"
)

// ModelType is the trainable family a MLModel was fit with.
type ModelType string

const (
	ModelLogistic      ModelType = "logistic"
	ModelRandomForest  ModelType = "random_forest"
)

// CVFoldResult is one stratified K-fold cross-validation result.
type CVFoldResult struct {
	Fold     int     `json:"fold"`
	Accuracy float64 `json:"accuracy"`
	F1       float64 `json:"f1"`
	ROCAUC   float64 `json:"roc_auc"`
}

// DatasetProvenance records which recordings contributed to training, how
// labels were assigned, and the split seed, so a trained model's inputs can
// be reconstructed.
type DatasetProvenance struct {
	RecordingIDs []string       `json:"recording_ids"`
	LabelMap     map[string]int `json:"label_map"`
	SplitSeed    int64          `json:"split_seed"`
}

// ScalerParams is the fitted StandardScaler persisted alongside the model
// so the realtime inference path can normalize features identically.
type ScalerParams struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// MLModel is a trained pipeline: scaler + optional PCA + classifier,
// identified by name+semantic version. At most one model with
// Stage=production exists at any instant (enforced by the repository's
// Promote operation, not by this type).
type MLModel struct {
	ID             string              `db:"id" json:"id"`
	Name           string              `db:"name" json:"name"`
	Version        string              `db:"version" json:"version"`
	ModelType      ModelType           `db:"model_type" json:"model_type"`
	Hyperparams    json.RawMessage     `db:"hyperparams" json:"hyperparams,omitempty"`
	Metrics        map[string]float64  `db:"-" json:"metrics"`
	MetricsJSON    json.RawMessage     `db:"metrics" json:"-"`
	FeatureNames   []string            `db:"-" json:"feature_names"`
	FeatureNamesJSON json.RawMessage   `db:"feature_names" json:"-"`
	Scaler         ScalerParams        `db:"-" json:"scaler"`
	ScalerJSON     json.RawMessage     `db:"scaler" json:"-"`
	CVFolds        []CVFoldResult      `db:"-" json:"cv_folds"`
	CVFoldsJSON    json.RawMessage     `db:"cv_folds" json:"-"`
	Provenance     DatasetProvenance   `db:"-" json:"provenance"`
	ProvenanceJSON json.RawMessage     `db:"provenance" json:"-"`
	Stage          ModelStage          `db:"stage" json:"stage"`
	ArtifactPath   string              `db:"artifact_path" json:"artifact_path"`
	RandomSeed     int64               `db:"random_seed" json:"random_seed"`
	CreatedAt      time.Time           `db:"created_at" json:"created_at"`
}

// MarshalJSONColumns serializes the Go-native fields (Metrics, FeatureNames,
// Scaler, CVFolds, Provenance) into their db-column JSON counterparts
// before a write. Repositories call this; callers constructing an MLModel
// by hand for tests do not need to.
func (m *MLModel) MarshalJSONColumns() error {
	var err error
	if m.MetricsJSON, err = json.Marshal(m.Metrics); err != nil {
		return err
	}
	if m.FeatureNamesJSON, err = json.Marshal(m.FeatureNames); err != nil {
		return err
	}
	if m.ScalerJSON, err = json.Marshal(m.Scaler); err != nil {
		return err
	}
	if m.CVFoldsJSON, err = json.Marshal(m.CVFolds); err != nil {
		return err
	}
	if m.ProvenanceJSON, err = json.Marshal(m.Provenance); err != nil {
		return err
	}
	return nil
}

// UnmarshalJSONColumns is the inverse of MarshalJSONColumns, called after a
// read.
func (m *MLModel) UnmarshalJSONColumns() error {
	if len(m.MetricsJSON) > 0 {
		if err := json.Unmarshal(m.MetricsJSON, &m.Metrics); err != nil {
			return err
		}
	}
	if len(m.FeatureNamesJSON) > 0 {
		if err := json.Unmarshal(m.FeatureNamesJSON, &m.FeatureNames); err != nil {
			return err
		}
	}
	if len(m.ScalerJSON) > 0 {
		if err := json.Unmarshal(m.ScalerJSON, &m.Scaler); err != nil {
			return err
		}
	}
	if len(m.CVFoldsJSON) > 0 {
		if err := json.Unmarshal(m.CVFoldsJSON, &m.CVFolds); err != nil {
			return err
		}
	}
	if len(m.ProvenanceJSON) > 0 {
		if err := json.Unmarshal(m.ProvenanceJSON, &m.Provenance); err != nil {
			return err
		}
	}
	return nil
}

// MeetsPromotionThresholds reports whether m's holdout metrics clear the
// configured roc_auc and f1 gates.
func (m *MLModel) MeetsPromotionThresholds(rocAUCThreshold, f1Threshold float64) bool {
	return m.Metrics["roc_auc"] >= rocAUCThreshold && m.Metrics["f1"] >= f1Threshold
}
