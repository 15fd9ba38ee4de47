package orchestrator

import "github.com/neurolab-io/corepipe/internal/metadata"

// Checkpoint is one named, monotone progress point a handler reports
// through as it works. Checkpoints exist so a job's progress column always
// carries the same meaning across workers and restarts, rather than each
// handler inventing its own fractions.
type Checkpoint struct {
	Name     string
	Progress float64
}

// preprocessingCheckpoints is the fixed progress table a preprocessing
// handler reports through, in order.
var preprocessingCheckpoints = []Checkpoint{
	{"download", 0.1},
	{"decode", 0.2},
	{"resample", 0.3},
	{"notch", 0.4},
	{"band-pass", 0.5},
	{"bad-channels", 0.6},
	{"ICA", 0.7},
	{"save", 0.85},
	{"visualizations", 0.9},
	{"done", 1.0},
}

// featureCheckpoints is the fixed progress table a feature-extraction
// handler reports through, in order.
var featureCheckpoints = []Checkpoint{
	{"download", 0.2},
	{"load", 0.3},
	{"per-epoch", 0.5},
	{"connectivity", 0.7},
	{"save", 0.85},
	{"done", 1.0},
}

// CheckpointsFor returns the named checkpoint table for step, or nil for
// steps with no fixed table (training reports ad-hoc progress via
// JobContext.Progress instead).
func CheckpointsFor(step metadata.JobStep) []Checkpoint {
	switch step {
	case metadata.StepPreprocessing:
		return preprocessingCheckpoints
	case metadata.StepFeatureExtract:
		return featureCheckpoints
	default:
		return nil
	}
}
