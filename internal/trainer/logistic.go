package trainer

import "math"

// LogisticModel is a binary logistic regression classifier: a weight per
// feature plus a bias, fit by batch gradient descent with L2
// regularization (sklearn's default penalty).
type LogisticModel struct {
	Weights []float64
	Bias    float64
}

const (
	logisticLearningRate = 0.1
	logisticL2           = 0.01
	logisticIterations   = 500
)

// FitLogistic trains on rows/labels (labels must be 0/1).
func FitLogistic(rows [][]float64, labels []int) *LogisticModel {
	if len(rows) == 0 {
		return &LogisticModel{}
	}
	nFeatures := len(rows[0])
	m := &LogisticModel{Weights: make([]float64, nFeatures)}

	n := float64(len(rows))
	for iter := 0; iter < logisticIterations; iter++ {
		gradW := make([]float64, nFeatures)
		gradB := 0.0
		for i, r := range rows {
			z := m.Bias
			for j, v := range r {
				z += m.Weights[j] * v
			}
			pred := sigmoid(z)
			errTerm := pred - float64(labels[i])
			for j, v := range r {
				gradW[j] += errTerm * v
			}
			gradB += errTerm
		}
		for j := range m.Weights {
			grad := gradW[j]/n + logisticL2*m.Weights[j]
			m.Weights[j] -= logisticLearningRate * grad
		}
		m.Bias -= logisticLearningRate * gradB / n
	}
	return m
}

// PredictProba returns P(class=1) for a single row.
func (m *LogisticModel) PredictProba(row []float64) float64 {
	z := m.Bias
	for j, v := range row {
		z += m.Weights[j] * v
	}
	return sigmoid(z)
}

func sigmoid(z float64) float64 {
	return 1.0 / (1.0 + math.Exp(-z))
}
