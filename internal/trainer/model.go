package trainer

import (
	"github.com/neurolab-io/corepipe/internal/metadata"
)

// Model is the fitted pipeline: scaler, optional PCA, then exactly one
// classifier. Exactly one of Logistic/Forest is non-nil, selected by
// Type.
type Model struct {
	Type         metadata.ModelType
	FeatureNames []string
	Scaler       *Scaler
	PCA          *PCA // nil when PCA is disabled
	Logistic     *LogisticModel
	Forest       *RandomForest
}

// Predict has the signature of realtime.Predictor's Predict method. Model
// does not itself satisfy realtime.Predictor: FeatureNames is a field,
// not a method.
func (m *Model) Predict(vector []float64) (class int, probability float64, probabilities []float64, err error) {
	row := m.Scaler.Transform([][]float64{vector})[0]
	if m.PCA != nil {
		row = m.PCA.Transform([][]float64{row})[0]
	}

	var p1 float64
	switch m.Type {
	case metadata.ModelLogistic:
		p1 = m.Logistic.PredictProba(row)
	case metadata.ModelRandomForest:
		p1 = m.Forest.PredictProba(row)
	}

	class = 0
	if p1 >= 0.5 {
		class = 1
	}
	probability = p1
	if class == 0 {
		probability = 1 - p1
	}
	return class, probability, []float64{1 - p1, p1}, nil
}

func (m *Model) predictProba(row []float64) float64 {
	transformed := m.Scaler.Transform([][]float64{row})[0]
	if m.PCA != nil {
		transformed = m.PCA.Transform([][]float64{transformed})[0]
	}
	switch m.Type {
	case metadata.ModelLogistic:
		return m.Logistic.PredictProba(transformed)
	case metadata.ModelRandomForest:
		return m.Forest.PredictProba(transformed)
	default:
		return 0
	}
}

func (m *Model) predictClass(row []float64) int {
	if m.predictProba(row) >= 0.5 {
		return 1
	}
	return 0
}

// FeatureImportances returns a per-feature importance score. For the
// random forest this is the accumulated impurity decrease; for logistic
// regression it is the absolute standardized weight, a common proxy when
// no tree-based importances exist.
func (m *Model) FeatureImportances() []float64 {
	switch m.Type {
	case metadata.ModelRandomForest:
		return append([]float64(nil), m.Forest.Importances...)
	case metadata.ModelLogistic:
		out := make([]float64, len(m.Logistic.Weights))
		for i, w := range m.Logistic.Weights {
			if w < 0 {
				w = -w
			}
			out[i] = w
		}
		return out
	default:
		return nil
	}
}
