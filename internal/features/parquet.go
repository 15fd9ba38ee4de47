package features

import (
	"io"

	"github.com/parquet-go/parquet-go"
)

// parquetRow is the on-disk schema for the full per-epoch-per-channel
// feature table: `epoch_id:int, channel:string, <feature_columns>:float64`
// per the external interface contract. The column set is fixed to the
// canonical five-band default (delta/theta/alpha/beta/gamma); a
// differently-named band configuration still computes correctly in Table
// but is only exposed in the JSON summary, not this Parquet schema, since
// parquet-go's generic writer requires a schema fixed at compile time.
type parquetRow struct {
	EpochID          int64   `parquet:"epoch_id"`
	Channel          string  `parquet:"channel"`
	BandDelta        float64 `parquet:"band_delta"`
	BandTheta        float64 `parquet:"band_theta"`
	BandAlpha        float64 `parquet:"band_alpha"`
	BandBeta         float64 `parquet:"band_beta"`
	BandGamma        float64 `parquet:"band_gamma"`
	RelDelta         float64 `parquet:"rel_delta"`
	RelTheta         float64 `parquet:"rel_theta"`
	RelAlpha         float64 `parquet:"rel_alpha"`
	RelBeta          float64 `parquet:"rel_beta"`
	RelGamma         float64 `parquet:"rel_gamma"`
	Mean             float64 `parquet:"mean"`
	Std              float64 `parquet:"std"`
	Skewness         float64 `parquet:"skewness"`
	Kurtosis         float64 `parquet:"kurtosis"`
	RMS              float64 `parquet:"rms"`
	PeakToPeak       float64 `parquet:"peak_to_peak"`
	ZeroCrossings    float64 `parquet:"zero_crossings"`
	HjorthActivity   float64 `parquet:"hjorth_activity"`
	HjorthMobility   float64 `parquet:"hjorth_mobility"`
	HjorthComplexity float64 `parquet:"hjorth_complexity"`
	SampleEntropy    float64 `parquet:"sample_entropy"`
}

func toParquetRow(r Row) parquetRow {
	v := r.Values
	return parquetRow{
		EpochID:          int64(r.EpochID),
		Channel:          r.Channel,
		BandDelta:        v["band_delta"],
		BandTheta:        v["band_theta"],
		BandAlpha:        v["band_alpha"],
		BandBeta:         v["band_beta"],
		BandGamma:        v["band_gamma"],
		RelDelta:         v["rel_delta"],
		RelTheta:         v["rel_theta"],
		RelAlpha:         v["rel_alpha"],
		RelBeta:          v["rel_beta"],
		RelGamma:         v["rel_gamma"],
		Mean:             v["mean"],
		Std:              v["std"],
		Skewness:         v["skewness"],
		Kurtosis:         v["kurtosis"],
		RMS:              v["rms"],
		PeakToPeak:       v["peak_to_peak"],
		ZeroCrossings:    v["zero_crossings"],
		HjorthActivity:   v["hjorth_activity"],
		HjorthMobility:   v["hjorth_mobility"],
		HjorthComplexity: v["hjorth_complexity"],
		SampleEntropy:    v["sample_entropy"],
	}
}

// WriteParquet serializes the full per-epoch-per-channel table to w in
// columnar Parquet, one row group flushed on Close.
func WriteParquet(w io.Writer, table *Table) error {
	pw := parquet.NewGenericWriter[parquetRow](w)
	rows := make([]parquetRow, len(table.Rows))
	for i, r := range table.Rows {
		rows[i] = toParquetRow(r)
	}
	if _, err := pw.Write(rows); err != nil {
		pw.Close()
		return err
	}
	return pw.Close()
}

// ReadParquet decodes a feature table previously written by WriteParquet
// back into Rows (Columns/ChannelAveraged/Coherence are not persisted in
// the Parquet artifact and are left empty; callers needing them should
// re-read summary.json alongside). input must additionally implement
// io.ReaderAt, as *os.File and bytes.Reader do.
func ReadParquet(input interface {
	io.Reader
	io.ReaderAt
}) ([]Row, error) {
	pr := parquet.NewGenericReader[parquetRow](input)
	defer pr.Close()

	rows := make([]parquetRow, pr.NumRows())
	n, err := pr.Read(rows)
	if err != nil && err != io.EOF {
		return nil, err
	}
	rows = rows[:n]

	out := make([]Row, len(rows))
	for i, pr := range rows {
		out[i] = Row{
			EpochID: int(pr.EpochID),
			Channel: pr.Channel,
			Values: map[string]float64{
				"band_delta": pr.BandDelta, "band_theta": pr.BandTheta, "band_alpha": pr.BandAlpha,
				"band_beta": pr.BandBeta, "band_gamma": pr.BandGamma,
				"rel_delta": pr.RelDelta, "rel_theta": pr.RelTheta, "rel_alpha": pr.RelAlpha,
				"rel_beta": pr.RelBeta, "rel_gamma": pr.RelGamma,
				"mean": pr.Mean, "std": pr.Std, "skewness": pr.Skewness, "kurtosis": pr.Kurtosis,
				"rms": pr.RMS, "peak_to_peak": pr.PeakToPeak, "zero_crossings": pr.ZeroCrossings,
				"hjorth_activity": pr.HjorthActivity, "hjorth_mobility": pr.HjorthMobility, "hjorth_complexity": pr.HjorthComplexity,
				"sample_entropy": pr.SampleEntropy,
			},
		}
	}
	return out, nil
}
