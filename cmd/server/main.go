package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/neurolab-io/corepipe/internal/config"
	"github.com/neurolab-io/corepipe/internal/eventbus"
	"github.com/neurolab-io/corepipe/internal/metadata"
	"github.com/neurolab-io/corepipe/internal/metrics"
	"github.com/neurolab-io/corepipe/internal/orchestrator"
	"github.com/neurolab-io/corepipe/internal/otel"
	"github.com/neurolab-io/corepipe/internal/retrain"
)

func main() {
	addr := flag.String("addr", ":8080", "HTTP address for health checks and the event stream")
	configPath := flag.String("config", "", "Path to YAML config file (defaults used if empty)")
	postgresDSN := flag.String("postgres-dsn", "", "Postgres DSN (in-memory metadata store used if empty, dev only)")
	otelExporter := flag.String("otel-exporter", "none", "Trace exporter: none or stdout")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var recordings metadata.RecordingRepository
	var models metadata.ModelRepository
	var jobs metadata.JobRepository
	if *postgresDSN != "" {
		db, err := metadata.Open(ctx, *postgresDSN)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to connect to postgres: %v\n", err)
			os.Exit(1)
		}
		defer db.Close()
		recordings = db.RecordingRepository()
		models = db.ModelRepository()
		jobs = db.JobRepository()
	} else {
		slog.Warn("no --postgres-dsn given, using in-memory metadata store (dev only, no persistence across restarts)")
		store := metadata.NewMemoryStore()
		recordings = store.RecordingRepository()
		models = store.ModelRepository()
		jobs = store.JobRepository()
	}

	tracer, err := otel.NewTracer(ctx, &otel.Config{
		Enabled:      *otelExporter != "none",
		ServiceName:  "corepipe-server",
		ExporterType: otel.ExporterType(*otelExporter),
		SampleRate:   1.0,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init tracer: %v\n", err)
		os.Exit(1)
	}
	defer tracer.Shutdown(context.Background())

	bus := eventbus.New()

	// The monitor takes the same JobQueue contract the orchestrator
	// dequeues from in cmd/worker, but this control-plane process passes a
	// nil queue and runs no worker pool of its own. With a nil queue the
	// tick records recommendations (LastRecommendation) when
	// config.Retrain.DefaultLabelMap is empty; when it is set, the tick
	// creates the pending training job row and does not enqueue it.
	var queue orchestrator.JobQueue
	monitor := retrain.NewMonitor(recordings, models, jobs, queue, cfg)
	monitor.Start()
	defer monitor.Stop()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/models/", func(w http.ResponseWriter, r *http.Request) {
		handleModelPromote(w, r, models, cfg)
	})
	mux.HandleFunc("/retrain/recommendation", func(w http.ResponseWriter, r *http.Request) {
		rec := monitor.LastRecommendation()
		w.Header().Set("Content-Type", "application/json")
		if rec == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		_ = json.NewEncoder(w).Encode(rec)
	})
	registerEventStream(mux, bus)
	mux.Handle("/metrics", metrics.Handler())

	server := &http.Server{Addr: *addr, Handler: otel.Middleware(tracer)(mux)}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("http server failed", "error", err)
		}
	}()

	fmt.Printf("corepipe control plane listening on %s\n", *addr)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	fmt.Println("\nShutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "Error during shutdown: %v\n", err)
	}
	fmt.Println("Server stopped")
}
