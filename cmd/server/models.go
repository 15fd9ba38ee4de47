package main

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/neurolab-io/corepipe/internal/config"
	"github.com/neurolab-io/corepipe/internal/corepipeerrors"
	"github.com/neurolab-io/corepipe/internal/metadata"
	"github.com/neurolab-io/corepipe/internal/trainer"
)

// handleModelPromote serves POST /models/{id}/promote, the caller-initiated
// production-promotion action spec.md §4.7 step 8 keeps separate from the
// training job that produces a development/candidate model. A model whose
// holdout metrics miss the configured thresholds is reported back as 422
// with the ThresholdError detail rather than promoted.
func handleModelPromote(w http.ResponseWriter, r *http.Request, models metadata.ModelRepository, cfg *config.Config) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/models/")
	modelID, action, ok := strings.Cut(path, "/")
	if !ok || action != "promote" || modelID == "" {
		http.NotFound(w, r)
		return
	}

	thresholds := cfg.Training.PromotionThresholds
	err := trainer.PromoteToProduction(r.Context(), models, modelID, thresholds.ROCAUC, thresholds.F1)
	w.Header().Set("Content-Type", "application/json")
	switch {
	case err == nil:
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"model_id": modelID, "stage": string(metadata.StageProduction)})
	case corepipeerrors.IsKind(err, corepipeerrors.KindThreshold):
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
	case corepipeerrors.IsKind(err, corepipeerrors.KindStorageNotFound):
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
	default:
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
	}
}
