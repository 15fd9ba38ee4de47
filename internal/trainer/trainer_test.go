package trainer

import (
	"bytes"
	"context"
	"math/rand"
	"testing"

	"github.com/neurolab-io/corepipe/internal/config"
	"github.com/neurolab-io/corepipe/internal/corepipeerrors"
	"github.com/neurolab-io/corepipe/internal/metadata"
)

func syntheticDatasets(nPerClass int, nFeatures int) ([]Dataset, []string) {
	names := make([]string, nFeatures)
	for i := range names {
		names[i] = "f" + string(rune('a'+i))
	}
	rng := rand.New(rand.NewSource(1))

	mkRows := func(label int, offset float64) [][]float64 {
		rows := make([][]float64, nPerClass)
		for i := range rows {
			row := make([]float64, nFeatures)
			for j := range row {
				row[j] = offset + rng.NormFloat64()*0.2
			}
			rows[i] = row
		}
		return rows
	}

	return []Dataset{
		{RecordingID: "rec-0", Label: 0, Rows: mkRows(0, 0.0)},
		{RecordingID: "rec-1", Label: 1, Rows: mkRows(1, 3.0)},
	}, names
}

func TestFitScalerZeroMeansUnitVariance(t *testing.T) {
	rows := [][]float64{{1, 10}, {2, 20}, {3, 30}}
	scaler := FitScaler(rows)
	scaled := scaler.Transform(rows)

	for col := 0; col < 2; col++ {
		mean := 0.0
		for _, r := range scaled {
			mean += r[col]
		}
		mean /= float64(len(scaled))
		if mean > 1e-9 || mean < -1e-9 {
			t.Errorf("column %d mean after scaling = %v, want ~0", col, mean)
		}
	}
}

func TestFitScalerConstantColumnDoesNotDivideByZero(t *testing.T) {
	rows := [][]float64{{5}, {5}, {5}}
	scaler := FitScaler(rows)
	scaled := scaler.Transform(rows)
	for _, r := range scaled {
		if r[0] != 0 {
			t.Errorf("constant column should scale to 0, got %v", r[0])
		}
	}
}

func TestLogisticRegressionSeparatesClasses(t *testing.T) {
	rows := [][]float64{{-2}, {-1.5}, {-1}, {1}, {1.5}, {2}}
	labels := []int{0, 0, 0, 1, 1, 1}
	m := FitLogistic(rows, labels)

	if m.PredictProba([]float64{-2}) >= 0.5 {
		t.Error("expected low probability for a strongly negative example")
	}
	if m.PredictProba([]float64{2}) < 0.5 {
		t.Error("expected high probability for a strongly positive example")
	}
}

func TestRandomForestSeparatesClasses(t *testing.T) {
	rows := make([][]float64, 0, 40)
	labels := make([]int, 0, 40)
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		rows = append(rows, []float64{rng.NormFloat64() - 3})
		labels = append(labels, 0)
		rows = append(rows, []float64{rng.NormFloat64() + 3})
		labels = append(labels, 1)
	}
	rf := FitRandomForest(rows, labels, 30, rng)

	if rf.PredictProba([]float64{-4}) >= 0.5 {
		t.Error("expected low probability for a strongly negative example")
	}
	if rf.PredictProba([]float64{4}) < 0.5 {
		t.Error("expected high probability for a strongly positive example")
	}
}

func TestStratifiedSplitPreservesClassBalance(t *testing.T) {
	labels := make([]int, 100)
	for i := range labels {
		if i < 30 {
			labels[i] = 1
		}
	}
	rng := rand.New(rand.NewSource(1))
	trainIdx, testIdx := StratifiedTrainTestSplit(labels, 0.2, rng)

	if len(trainIdx)+len(testIdx) != 100 {
		t.Fatalf("split should cover every index, got %d+%d", len(trainIdx), len(testIdx))
	}
	testPos := 0
	for _, i := range testIdx {
		if labels[i] == 1 {
			testPos++
		}
	}
	if testPos != 6 {
		t.Errorf("expected 6 positive examples in a 20%% stratified test split of 30, got %d", testPos)
	}
}

func TestTrainProducesPromotableMetricsOnSeparableData(t *testing.T) {
	datasets, names := syntheticDatasets(30, 4)
	cfg := config.Default()
	result, err := Train(datasets, names, metadata.ModelLogistic, cfg, 42)
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	if result.Metrics.TestAccuracy < 0.8 {
		t.Errorf("TestAccuracy = %v, expected a well-separated synthetic dataset to score high", result.Metrics.TestAccuracy)
	}
	if len(result.CVFolds) != cfg.Training.CVFolds {
		t.Errorf("len(CVFolds) = %d, want %d", len(result.CVFolds), cfg.Training.CVFolds)
	}
}

func TestTrainRandomForestSkipsPCA(t *testing.T) {
	datasets, names := syntheticDatasets(20, 6)
	cfg := config.Default()
	result, err := Train(datasets, names, metadata.ModelRandomForest, cfg, 7)
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	if result.Model.PCA != nil {
		t.Error("random_forest model should not carry a PCA stage (spec.md §4.7 step 3: StandardScaler -> RandomForest, no PCA)")
	}
	if len(result.Model.FeatureImportances()) != len(names) {
		t.Errorf("FeatureImportances len = %d, want %d (1:1 with named feature columns)", len(result.Model.FeatureImportances()), len(names))
	}
}

func TestTrainLogisticUsesPCA(t *testing.T) {
	datasets, names := syntheticDatasets(20, 6)
	cfg := config.Default()
	result, err := Train(datasets, names, metadata.ModelLogistic, cfg, 7)
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	if result.Model.PCA == nil {
		t.Error("logistic model should carry a PCA stage (spec.md §4.7 step 3: StandardScaler -> PCA(20) -> Logistic Regression)")
	}
}

func TestPromoteToProductionRejectsBelowThreshold(t *testing.T) {
	ctx := context.Background()
	store := metadata.NewMemoryStore()
	models := store.ModelRepository()
	model := &metadata.MLModel{
		ID:      "model-low",
		Name:    "eeg-classifier",
		Version: "v1",
		Metrics: map[string]float64{"roc_auc": 0.70, "f1": 0.60},
		Stage:   metadata.StageCandidate,
	}
	if err := models.Create(ctx, model); err != nil {
		t.Fatalf("create: %v", err)
	}

	err := PromoteToProduction(ctx, models, "model-low", 0.75, 0.65)
	if !corepipeerrors.IsKind(err, corepipeerrors.KindThreshold) {
		t.Fatalf("PromoteToProduction = %v, want a ThresholdError", err)
	}

	got, getErr := models.Get(ctx, "model-low")
	if getErr != nil {
		t.Fatalf("get: %v", getErr)
	}
	if got.Stage != metadata.StageCandidate {
		t.Errorf("stage = %v, want unchanged candidate after a rejected promotion", got.Stage)
	}
}

func TestPromoteToProductionDemotesPriorProduction(t *testing.T) {
	ctx := context.Background()
	store := metadata.NewMemoryStore()
	models := store.ModelRepository()

	prior := &metadata.MLModel{ID: "model-prior", Metrics: map[string]float64{"roc_auc": 0.90, "f1": 0.85}, Stage: metadata.StageProduction}
	if err := models.Create(ctx, prior); err != nil {
		t.Fatalf("create prior: %v", err)
	}
	next := &metadata.MLModel{ID: "model-next", Metrics: map[string]float64{"roc_auc": 0.90, "f1": 0.85}, Stage: metadata.StageCandidate}
	if err := models.Create(ctx, next); err != nil {
		t.Fatalf("create next: %v", err)
	}

	if err := PromoteToProduction(ctx, models, "model-next", 0.75, 0.65); err != nil {
		t.Fatalf("PromoteToProduction: %v", err)
	}

	gotNext, err := models.Get(ctx, "model-next")
	if err != nil {
		t.Fatalf("get next: %v", err)
	}
	if gotNext.Stage != metadata.StageProduction {
		t.Errorf("model-next stage = %v, want production", gotNext.Stage)
	}
	gotPrior, err := models.Get(ctx, "model-prior")
	if err != nil {
		t.Fatalf("get prior: %v", err)
	}
	if gotPrior.Stage != metadata.StageCandidate {
		t.Errorf("model-prior stage = %v, want demoted to candidate", gotPrior.Stage)
	}
}

func TestTrainOnEmptyDatasetsIsDataError(t *testing.T) {
	cfg := config.Default()
	_, err := Train(nil, nil, metadata.ModelLogistic, cfg, 42)
	if err == nil {
		t.Fatal("expected a DataError for empty datasets")
	}
}

func TestSaveLoadRoundTripsPredictions(t *testing.T) {
	datasets, names := syntheticDatasets(20, 3)
	cfg := config.Default()
	result, err := Train(datasets, names, metadata.ModelRandomForest, cfg, 11)
	if err != nil {
		t.Fatalf("Train: %v", err)
	}

	var buf bytes.Buffer
	if err := Save(&buf, result.Model); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load(&buf)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	probe := []float64{3, 3, 3}
	wantClass, wantProb, _, _ := result.Model.Predict(probe)
	gotClass, gotProb, _, _ := loaded.Predict(probe)
	if gotClass != wantClass {
		t.Errorf("loaded model class = %d, want %d", gotClass, wantClass)
	}
	if diff := gotProb - wantProb; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("loaded model probability = %v, want %v", gotProb, wantProb)
	}
}

func TestPlotConfusionMatrixProducesValidPNG(t *testing.T) {
	var buf bytes.Buffer
	cm := ConfusionMatrix{{10, 2}, {1, 12}}
	if err := PlotConfusionMatrix(&buf, cm); err != nil {
		t.Fatalf("PlotConfusionMatrix: %v", err)
	}
	if buf.Len() == 0 {
		t.Error("expected non-empty PNG output")
	}
}

func TestRocAUCPerfectSeparationIsOne(t *testing.T) {
	yTrue := []int{0, 0, 0, 1, 1, 1}
	scores := []float64{0.1, 0.2, 0.3, 0.7, 0.8, 0.9}
	auc := rocAUC(yTrue, scores)
	if auc != 1.0 {
		t.Errorf("rocAUC = %v, want 1.0 for perfectly separated scores", auc)
	}
}
