package trainer

import (
	"math/rand"

	"github.com/neurolab-io/corepipe/internal/config"
	"github.com/neurolab-io/corepipe/internal/corepipeerrors"
	"github.com/neurolab-io/corepipe/internal/metadata"
)

// Dataset is one recording's feature table, already epoch-averaged across
// channels (the reference implementation's `groupby('epoch_id').mean()`),
// with the label this recording contributes to every one of its rows.
type Dataset struct {
	RecordingID string
	Label       int
	Rows        [][]float64 // one row per epoch
}

// numForestTrees matches spec.md §4.7 step 3's random forest default of
// n_estimators=200.
const numForestTrees = 200

// pcaComponents matches the reference pipeline's PCA(n_components=20).
const pcaComponents = 20

// TrainResult bundles everything a training job needs to persist: the
// fitted model, its metrics, per-fold CV results, and the feature names
// the pipeline was fit with (in the order C4 emits them).
type TrainResult struct {
	Model        *Model
	Metrics      Metrics
	CVFolds      []metadata.CVFoldResult
	FeatureNames []string
}

// Train fits a pipeline of the given type over datasets, using cfg's
// test split fraction, CV fold count, and a deterministic RNG seeded by
// randomSeed (the reference implementation's random_state=42, made
// caller-controlled instead of hardcoded).
func Train(datasets []Dataset, featureNames []string, modelType metadata.ModelType, cfg *config.Config, randomSeed int64) (*TrainResult, error) {
	rows, labels := flattenDatasets(datasets)
	if len(rows) == 0 {
		return nil, corepipeerrors.NewDataError("no feature rows available for training", nil)
	}

	rng := rand.New(rand.NewSource(randomSeed))

	trainIdx, testIdx := StratifiedTrainTestSplit(labels, cfg.Training.TestSplit, rng)
	trainRows, trainLabels := subset(rows, labels, trainIdx)
	testRows, testLabels := subset(rows, labels, testIdx)

	cvFolds := StratifiedKFold(labels, cfg.Training.CVFolds, rng)
	var cvAcc, cvF1, cvROC []float64
	var foldResults []metadata.CVFoldResult

	for fold := 0; fold < cfg.Training.CVFolds; fold++ {
		valIdx := cvFolds[fold]
		fitIdx := foldComplement(cvFolds, fold)

		fitRows, fitLabels := subset(rows, labels, fitIdx)
		valRows, valLabels := subset(rows, labels, valIdx)

		m := fitPipeline(fitRows, fitLabels, modelType, rng)
		preds := make([]int, len(valRows))
		probs := make([]float64, len(valRows))
		for i, r := range valRows {
			probs[i] = m.predictProba(r)
			preds[i] = m.predictClass(r)
		}

		acc := accuracy(valLabels, preds)
		_, _, f1 := precisionRecallF1(valLabels, preds)
		roc := rocAUC(valLabels, probs)

		cvAcc = append(cvAcc, acc)
		cvF1 = append(cvF1, f1)
		cvROC = append(cvROC, roc)
		foldResults = append(foldResults, metadata.CVFoldResult{Fold: fold, Accuracy: acc, F1: f1, ROCAUC: roc})
	}

	finalModel := fitPipeline(trainRows, trainLabels, modelType, rng)
	finalModel.FeatureNames = featureNames

	testPreds := make([]int, len(testRows))
	testProbs := make([]float64, len(testRows))
	for i, r := range testRows {
		testProbs[i] = finalModel.predictProba(r)
		testPreds[i] = finalModel.predictClass(r)
	}

	cvAccMean, cvAccStd := meanStd(cvAcc)
	cvF1Mean, cvF1Std := meanStd(cvF1)
	cvROCMean, cvROCStd := meanStd(cvROC)
	testAcc := accuracy(testLabels, testPreds)
	testPrecision, testRecall, testF1 := precisionRecallF1(testLabels, testPreds)
	testROC := rocAUC(testLabels, testProbs)

	metrics := Metrics{
		CVAccuracyMean: cvAccMean, CVAccuracyStd: cvAccStd,
		CVF1Mean: cvF1Mean, CVF1Std: cvF1Std,
		CVROCAUCMean: cvROCMean, CVROCAUCStd: cvROCStd,
		TestAccuracy: testAcc, TestPrecision: testPrecision, TestRecall: testRecall, TestF1: testF1,
		TestROCAUC: testROC,
	}

	return &TrainResult{Model: finalModel, Metrics: metrics, CVFolds: foldResults, FeatureNames: featureNames}, nil
}

// fitPipeline fits scaler -> classifier, inserting PCA only on the
// logistic branch: spec.md §4.7 step 3 names
// "StandardScaler -> PCA(20) -> Logistic Regression" for `logistic` but
// "StandardScaler -> RandomForest" (no PCA) for `random_forest`, since
// the forest's own feature-subsampling already handles high-dimensional
// inputs and PCA components would otherwise corrupt FeatureImportances'
// 1:1 correspondence with named feature columns.
func fitPipeline(rows [][]float64, labels []int, modelType metadata.ModelType, rng *rand.Rand) *Model {
	scaler := FitScaler(rows)
	scaled := scaler.Transform(rows)

	m := &Model{Type: modelType, Scaler: scaler}

	switch modelType {
	case metadata.ModelRandomForest:
		m.Forest = FitRandomForest(scaled, labels, numForestTrees, rng)
	default:
		pca := FitPCA(scaled, pcaComponents)
		m.PCA = pca
		m.Logistic = FitLogistic(pca.Transform(scaled), labels)
		m.Type = metadata.ModelLogistic
	}
	return m
}

func flattenDatasets(datasets []Dataset) ([][]float64, []int) {
	var rows [][]float64
	var labels []int
	for _, d := range datasets {
		for _, r := range d.Rows {
			rows = append(rows, r)
			labels = append(labels, d.Label)
		}
	}
	return rows, labels
}

func foldComplement(folds [][]int, exclude int) []int {
	var out []int
	for i, f := range folds {
		if i == exclude {
			continue
		}
		out = append(out, f...)
	}
	return out
}
