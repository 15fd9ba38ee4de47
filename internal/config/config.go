// Package config loads the pipeline's typed configuration from an optional
// YAML file, overlaid on the defaults named in the external interface
// contract. Every field is addressable by the DSP kernel, feature engine,
// trainer, and orchestrator without re-deriving defaults at each call site.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Band is one named PSD integration band.
type Band struct {
	Name string  `yaml:"name"`
	Low  float64 `yaml:"low"`
	High float64 `yaml:"high"`
}

// Bandpass is the DSP kernel's pass-band.
type Bandpass struct {
	Low  float64 `yaml:"low"`
	High float64 `yaml:"high"`
}

// ICA configures independent component analysis artifact removal.
type ICA struct {
	NComponents      int     `yaml:"n_components"`
	RandomState      int64   `yaml:"random_state"`
	EOGCorrThreshold float64 `yaml:"eog_corr_threshold"`
	ECGCorrThreshold float64 `yaml:"ecg_corr_threshold"`
}

// Artifact configures bad-channel and muscle-artifact detection.
type Artifact struct {
	FlatThreshold      float64 `yaml:"flat_threshold"`
	HighVarianceZScore float64 `yaml:"high_variance_zscore"`
	KurtosisThreshold  float64 `yaml:"kurtosis_threshold"`
	MuscleRMSThreshold float64 `yaml:"muscle_rms_threshold"`
	MaxBadChannelsPct  float64 `yaml:"max_bad_channels_pct"`
}

// ChannelPair names two channels whose coherence is computed per band.
type ChannelPair struct {
	A string `yaml:"a"`
	B string `yaml:"b"`
}

// Features configures the feature-extraction engine.
type Features struct {
	Bands           []Band        `yaml:"bands"`
	WelchWindowSec  float64       `yaml:"welch_window_sec"`
	EntropyM        int           `yaml:"entropy_m"`
	EntropyRFactor  float64       `yaml:"entropy_r_factor"`
	EpochLengthSec  float64       `yaml:"epoch_length_sec"`
	EpochOverlap    float64       `yaml:"epoch_overlap"`
	CoherencePairs  []ChannelPair `yaml:"coherence_pairs"`
}

// PromotionThresholds gates candidate-stage promotion.
type PromotionThresholds struct {
	ROCAUC float64 `yaml:"roc_auc"`
	F1     float64 `yaml:"f1"`
}

// Training configures the trainer's CV/holdout/promotion behavior.
type Training struct {
	CVFolds             int                 `yaml:"cv_folds"`
	TestSplit           float64             `yaml:"test_split"`
	PromotionThresholds PromotionThresholds `yaml:"promotion_thresholds"`
}

// Realtime configures the ring buffer and realtime processor.
type Realtime struct {
	BufferSeconds int     `yaml:"buffer_seconds"`
	HopSeconds    float64 `yaml:"hop_seconds"`
}

// Orchestrator configures per-queue worker concurrency and the soft/hard
// wall-clock limits enforced on every running job.
type Orchestrator struct {
	PreprocessingConcurrency int           `yaml:"preprocessing_concurrency"`
	TrainingConcurrency      int           `yaml:"training_concurrency"`
	RealtimeConcurrency      int           `yaml:"realtime_concurrency"`
	SoftTimeout              time.Duration `yaml:"soft_timeout"`
	HardTimeout              time.Duration `yaml:"hard_timeout"`
	PollInterval             time.Duration `yaml:"poll_interval"`
}

// Retrain configures the auto-retrain tick. DefaultLabelMap, when
// non-empty, maps recording_id to its label for the training job the tick
// enqueues automatically; when empty, the tick only records a
// recommendation, since it has no labels to build a dataset from.
type Retrain struct {
	Period                time.Duration  `yaml:"period"`
	NewRecordingThreshold int            `yaml:"new_recording_threshold"`
	DefaultLabelMap       map[string]int `yaml:"default_label_map"`
}

// Config is the complete, resolved pipeline configuration.
type Config struct {
	TargetSfreq  int          `yaml:"target_sfreq"`
	NotchFreqs   []int        `yaml:"notch_freqs"`
	Bandpass     Bandpass     `yaml:"bandpass"`
	ICA          ICA          `yaml:"ica"`
	Artifact     Artifact     `yaml:"artifact"`
	Features     Features     `yaml:"features"`
	Training     Training     `yaml:"training"`
	Realtime     Realtime     `yaml:"realtime"`
	Orchestrator Orchestrator `yaml:"orchestrator"`
	Retrain      Retrain      `yaml:"retrain"`
}

// Default returns the configuration with every default named in the
// external interface contract (§6 of the spec this module implements).
func Default() *Config {
	return &Config{
		TargetSfreq: 250,
		NotchFreqs:  []int{50},
		Bandpass:    Bandpass{Low: 1.0, High: 40.0},
		ICA: ICA{
			NComponents:      20,
			RandomState:      42,
			EOGCorrThreshold: 0.35,
			ECGCorrThreshold: 0.30,
		},
		Artifact: Artifact{
			FlatThreshold:      1e-6,
			HighVarianceZScore: 5,
			KurtosisThreshold:  10,
			MuscleRMSThreshold: 1e-4,
			MaxBadChannelsPct:  0.25,
		},
		Features: Features{
			Bands: []Band{
				{Name: "delta", Low: 1, High: 4},
				{Name: "theta", Low: 4, High: 8},
				{Name: "alpha", Low: 8, High: 12},
				{Name: "beta", Low: 12, High: 30},
				{Name: "gamma", Low: 30, High: 45},
			},
			WelchWindowSec: 2.0,
			EntropyM:       2,
			EntropyRFactor: 0.2,
			EpochLengthSec: 2.0,
			EpochOverlap:   0.5,
			CoherencePairs: []ChannelPair{
				{A: "Fz", B: "Pz"},
				{A: "F3", B: "P3"},
				{A: "F4", B: "P4"},
			},
		},
		Training: Training{
			CVFolds:   5,
			TestSplit: 0.2,
			PromotionThresholds: PromotionThresholds{
				ROCAUC: 0.75,
				F1:     0.65,
			},
		},
		Realtime: Realtime{
			BufferSeconds: 30,
			HopSeconds:    1.0,
		},
		Orchestrator: Orchestrator{
			PreprocessingConcurrency: 1,
			TrainingConcurrency:      1,
			RealtimeConcurrency:      4,
			SoftTimeout:              50 * time.Minute,
			HardTimeout:              60 * time.Minute,
			PollInterval:             2 * time.Second,
		},
		Retrain: Retrain{
			Period:                time.Hour,
			NewRecordingThreshold: 20,
		},
	}
}

// Load reads an optional YAML config file and overlays it on Default(). A
// missing path is not an error; it simply returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	return cfg, nil
}

// TotalPowerBand is the fixed integration window for total_power, per the
// feature engine's canonical ordering contract. It is not configurable.
var TotalPowerBand = Band{Name: "total", Low: 1, High: 45}
