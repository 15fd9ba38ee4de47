package features

import (
	"encoding/json"
	"io"
	"math"
)

// FeatureStat is the (mean, std, min, max) summary of one feature column
// across every (epoch, channel) row.
type FeatureStat struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
}

// Summary is the JSON schema persisted alongside the Parquet feature table
// (features/{recording}/summary.json).
type Summary struct {
	EpochCount   int                    `json:"epoch_count"`
	ChannelCount int                    `json:"channel_count"`
	FeatureNames []string               `json:"feature_names"`
	Stats        map[string]FeatureStat `json:"stats"`
}

// BuildSummary computes the per-feature (mean, std, min, max) across every
// row of the table.
func BuildSummary(table *Table) Summary {
	stats := make(map[string]FeatureStat, len(table.Columns))
	for _, name := range table.Columns {
		var sum, sumSq float64
		min := math.Inf(1)
		max := math.Inf(-1)
		n := 0
		for _, r := range table.Rows {
			v, ok := r.Values[name]
			if !ok {
				continue
			}
			sum += v
			sumSq += v * v
			if v < min {
				min = v
			}
			if v > max {
				max = v
			}
			n++
		}
		if n == 0 {
			stats[name] = FeatureStat{}
			continue
		}
		mean := sum / float64(n)
		variance := sumSq/float64(n) - mean*mean
		if variance < 0 {
			variance = 0
		}
		stats[name] = FeatureStat{
			Mean: mean,
			Std:  math.Sqrt(variance),
			Min:  min,
			Max:  max,
		}
	}

	return Summary{
		EpochCount:   table.NumEpochs,
		ChannelCount: table.NumChannels,
		FeatureNames: table.Columns,
		Stats:        stats,
	}
}

// WriteSummary writes the summary as JSON to w.
func WriteSummary(w io.Writer, table *Table) error {
	return json.NewEncoder(w).Encode(BuildSummary(table))
}
