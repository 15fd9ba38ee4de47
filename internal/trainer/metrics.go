package trainer

import (
	"math"
	"sort"
)

// Metrics mirrors the reference pipeline's metrics dict: cross-validation
// mean/std plus holdout-test scores, all on a 0-1 scale.
type Metrics struct {
	CVAccuracyMean float64
	CVAccuracyStd  float64
	CVF1Mean       float64
	CVF1Std        float64
	CVROCAUCMean   float64
	CVROCAUCStd    float64

	TestAccuracy  float64
	TestPrecision float64
	TestRecall    float64
	TestF1        float64
	TestROCAUC    float64
}

// ToMap flattens Metrics into the map[string]float64 the metadata store
// persists, with the bare "accuracy"/"f1"/"roc_auc" aliases the
// reference implementation also writes (promotion thresholds read
// "roc_auc"/"f1" without the test_ prefix).
func (m Metrics) ToMap() map[string]float64 {
	return map[string]float64{
		"cv_accuracy_mean": m.CVAccuracyMean,
		"cv_accuracy_std":  m.CVAccuracyStd,
		"cv_f1_mean":       m.CVF1Mean,
		"cv_f1_std":        m.CVF1Std,
		"cv_roc_auc_mean":  m.CVROCAUCMean,
		"cv_roc_auc_std":   m.CVROCAUCStd,
		"test_accuracy":    m.TestAccuracy,
		"test_precision":   m.TestPrecision,
		"test_recall":      m.TestRecall,
		"test_f1":          m.TestF1,
		"test_roc_auc":     m.TestROCAUC,
		"accuracy":         m.TestAccuracy,
		"f1":               m.TestF1,
		"roc_auc":          m.TestROCAUC,
	}
}

// ConfusionMatrix is a binary 2x2 confusion matrix: [actual][predicted].
type ConfusionMatrix [2][2]int

func computeConfusionMatrix(yTrue, yPred []int) ConfusionMatrix {
	var cm ConfusionMatrix
	for i := range yTrue {
		cm[yTrue[i]][yPred[i]]++
	}
	return cm
}

func accuracy(yTrue, yPred []int) float64 {
	correct := 0
	for i := range yTrue {
		if yTrue[i] == yPred[i] {
			correct++
		}
	}
	if len(yTrue) == 0 {
		return 0
	}
	return float64(correct) / float64(len(yTrue))
}

func precisionRecallF1(yTrue, yPred []int) (precision, recall, f1 float64) {
	cm := computeConfusionMatrix(yTrue, yPred)
	tp, fp, fn := float64(cm[1][1]), float64(cm[0][1]), float64(cm[1][0])
	if tp+fp > 0 {
		precision = tp / (tp + fp)
	}
	if tp+fn > 0 {
		recall = tp / (tp + fn)
	}
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}
	return
}

// rocAUC computes the area under the ROC curve via the rank-sum
// (Mann-Whitney U) formula, avoiding an explicit threshold sweep.
func rocAUC(yTrue []int, scores []float64) float64 {
	type pair struct {
		score float64
		label int
	}
	pairs := make([]pair, len(yTrue))
	for i := range yTrue {
		pairs[i] = pair{scores[i], yTrue[i]}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].score < pairs[j].score })

	var nPos, nNeg int
	rankSum := 0.0
	i := 0
	for i < len(pairs) {
		j := i
		for j < len(pairs) && pairs[j].score == pairs[i].score {
			j++
		}
		avgRank := float64(i+1+j) / 2.0
		for k := i; k < j; k++ {
			if pairs[k].label == 1 {
				rankSum += avgRank
			}
		}
		i = j
	}
	for _, p := range pairs {
		if p.label == 1 {
			nPos++
		} else {
			nNeg++
		}
	}
	if nPos == 0 || nNeg == 0 {
		return 0.5
	}
	return (rankSum - float64(nPos)*float64(nPos+1)/2) / (float64(nPos) * float64(nNeg))
}

func meanStd(values []float64) (mean, std float64) {
	if len(values) == 0 {
		return 0, 0
	}
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	for _, v := range values {
		d := v - mean
		std += d * d
	}
	std /= float64(len(values))
	return mean, math.Sqrt(std)
}
