package dsp

import (
	"github.com/neurolab-io/corepipe/internal/config"
	"github.com/neurolab-io/corepipe/internal/corepipeerrors"
	"github.com/neurolab-io/corepipe/internal/signalio"
)

// Report is the structured metadata the kernel emits alongside the cleaned
// buffer: everything a caller needs to explain what was done to the
// recording, independent of the mutated samples themselves.
type Report struct {
	ResampledRateHz  float64
	NotchFreqsHz     []int
	BandpassLowHz    float64
	BandpassHighHz   float64
	BadChannels      []string
	BadChannelPct    float64
	NeedsReview      bool
	ExcludedICA      []ICAComponentScore
	MuscleSegments   []MuscleSegment
	// ExcludedChannels lists bad channels InterpolateBads could not repair
	// (no montage, or no montage entry for that channel) — §4.3 step 5's
	// "retained and excluded from feature computation" channels.
	ExcludedChannels []string
}

// Checkpoint is called after each named stage completes, letting the
// caller (the job orchestrator) report progress without the kernel
// depending on the orchestrator's types.
type Checkpoint func(stage string)

// Run executes the seven-stage cleaning kernel on buf in place and returns
// a structured report. Any stage failure aborts the kernel and returns a
// DSPError carrying the failing stage name.
func Run(buf *signalio.Buffer, cfg *config.Config, checkpoint Checkpoint) (*Report, error) {
	if checkpoint == nil {
		checkpoint = func(string) {}
	}
	report := &Report{}

	if buf.NumChannels() == 0 || buf.NumSamples() == 0 {
		return nil, corepipeerrors.NewDSPError("resample", corepipeerrors.NewDataError("empty recording buffer", nil))
	}

	buf.Data = Resample(buf.Data, buf.SampleRate, float64(cfg.TargetSfreq))
	buf.SampleRate = float64(cfg.TargetSfreq)
	report.ResampledRateHz = buf.SampleRate
	checkpoint("resample")

	ApplyNotch(buf.Data, buf.SampleRate, cfg.NotchFreqs)
	report.NotchFreqsHz = cfg.NotchFreqs
	checkpoint("notch")

	ApplyBandpass(buf.Data, buf.SampleRate, cfg.Bandpass.Low, cfg.Bandpass.High)
	report.BandpassLowHz = cfg.Bandpass.Low
	report.BandpassHighHz = cfg.Bandpass.High
	checkpoint("bandpass")

	bad, badPct := DetectBadChannels(buf.Data, buf.Channels, cfg.Artifact)
	report.BadChannels = bad
	report.BadChannelPct = badPct
	report.NeedsReview = badPct > cfg.Artifact.MaxBadChannelsPct
	checkpoint("bad_channels")

	report.ExcludedChannels = InterpolateBads(buf.Data, buf.Channels, buf.Montage, bad)
	buf.ExcludedChannels = report.ExcludedChannels

	cleaned, excludedICA := RunICA(buf.Data, buf.Channels, cfg.ICA)
	buf.Data = cleaned
	report.ExcludedICA = excludedICA
	checkpoint("ica")

	report.MuscleSegments = DetectMuscleArtifacts(buf.Data, buf.SampleRate, cfg.Artifact.MuscleRMSThreshold)

	return report, nil
}
