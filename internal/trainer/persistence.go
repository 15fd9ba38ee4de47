package trainer

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"io"

	"gonum.org/v1/gonum/mat"

	"github.com/neurolab-io/corepipe/internal/corepipeerrors"
	"github.com/neurolab-io/corepipe/internal/metadata"
)

// gobModel is the on-the-wire representation of Model: gob cannot encode
// interface-free concrete types holding a *mat.Dense directly without a
// registered concrete type, so PCA components are flattened to a plain
// row-major slice plus dimensions.
type gobModel struct {
	Type         metadata.ModelType
	FeatureNames []string
	ScalerMean   []float64
	ScalerScale  []float64
	HasPCA       bool
	PCAMean      []float64
	PCARows      int
	PCACols      int
	PCAData      []float64
	Logistic     *LogisticModel
	Forest       *RandomForest
}

// Save serializes m with encoding/gob, this pipeline's answer to the
// reference implementation's joblib.dump (no ecosystem portable-model
// format is attested anywhere in the retrieval pack).
func Save(w io.Writer, m *Model) error {
	g := gobModel{
		Type:         m.Type,
		FeatureNames: m.FeatureNames,
		ScalerMean:   m.Scaler.Mean,
		ScalerScale:  m.Scaler.Scale,
		Logistic:     m.Logistic,
		Forest:       m.Forest,
	}
	if m.PCA != nil && m.PCA.Components != nil {
		g.HasPCA = true
		g.PCAMean = m.PCA.Mean
		g.PCARows, g.PCACols = m.PCA.Components.Dims()
		g.PCAData = mat.DenseCopyOf(m.PCA.Components).RawMatrix().Data
	}
	if err := gob.NewEncoder(w).Encode(g); err != nil {
		return corepipeerrors.NewModelError("encode model artifact", err)
	}
	return nil
}

// Load deserializes a Model previously written by Save.
func Load(r io.Reader) (*Model, error) {
	var g gobModel
	if err := gob.NewDecoder(r).Decode(&g); err != nil {
		return nil, corepipeerrors.NewModelError("decode model artifact", err)
	}

	m := &Model{
		Type:         g.Type,
		FeatureNames: g.FeatureNames,
		Scaler:       &Scaler{Mean: g.ScalerMean, Scale: g.ScalerScale},
		Logistic:     g.Logistic,
		Forest:       g.Forest,
	}
	if g.HasPCA {
		m.PCA = &PCA{
			Mean:       g.PCAMean,
			Components: mat.NewDense(g.PCARows, g.PCACols, g.PCAData),
		}
	}
	return m, nil
}

// SaveBytes is a convenience wrapper returning the encoded bytes directly,
// for callers writing straight to the object store.
func SaveBytes(m *Model) ([]byte, error) {
	var buf bytes.Buffer
	if err := Save(&buf, m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// PromoteToProduction is the caller-initiated action spec.md §4.7 step 8
// keeps distinct from the training job itself: it is never called from
// inside a training TaskFunc, only from an operator- or API-triggered
// path (cmd/server's /models/{id}/promote route). It re-checks the
// model's holdout metrics against cfg's thresholds and returns a
// ThresholdError rather than promoting when they fall short; a passing
// model is promoted via models.Promote, which atomically demotes any
// prior production model to candidate in the same operation.
func PromoteToProduction(ctx context.Context, models metadata.ModelRepository, modelID string, rocAUCThreshold, f1Threshold float64) error {
	model, err := models.Get(ctx, modelID)
	if err != nil {
		return err
	}
	if !model.MeetsPromotionThresholds(rocAUCThreshold, f1Threshold) {
		return corepipeerrors.NewThresholdError(fmt.Sprintf(
			"model %s metrics roc_auc=%.4f f1=%.4f do not clear thresholds roc_auc>=%.4f f1>=%.4f",
			modelID, model.Metrics["roc_auc"], model.Metrics["f1"], rocAUCThreshold, f1Threshold))
	}
	return models.Promote(ctx, modelID)
}
