package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/neurolab-io/corepipe/internal/config"
	"github.com/neurolab-io/corepipe/internal/eventbus"
	"github.com/neurolab-io/corepipe/internal/jobhandlers"
	"github.com/neurolab-io/corepipe/internal/metadata"
	"github.com/neurolab-io/corepipe/internal/metrics"
	"github.com/neurolab-io/corepipe/internal/objectstore"
	"github.com/neurolab-io/corepipe/internal/orchestrator"
	"github.com/neurolab-io/corepipe/internal/otel"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file (defaults used if empty)")
	postgresDSN := flag.String("postgres-dsn", "", "Postgres DSN (in-memory metadata store used if empty, dev only)")
	redisAddr := flag.String("redis-addr", "localhost:6379", "Redis address for the job queue and ring buffer")
	storeDir := flag.String("store-dir", "./data/objectstore", "Local filesystem object store root (dev only; set s3 flags for production)")
	s3Bucket := flag.String("s3-bucket", "", "S3 bucket name (enables S3Store when set)")
	s3Region := flag.String("s3-region", "us-east-1", "S3 region")
	s3Endpoint := flag.String("s3-endpoint", "", "S3-compatible endpoint override (for MinIO)")
	workerID := flag.String("worker-id", "", "Worker identity stamped on claimed jobs (hostname used if empty)")
	scratchDir := flag.String("scratch-dir", "./data/scratch", "Local scratch directory for decode/encode round-trips")
	metricsAddr := flag.String("metrics-addr", ":9090", "HTTP address exposing /metrics (Prometheus)")
	otelExporter := flag.String("otel-exporter", "none", "Trace exporter: none or stdout")
	flag.Parse()

	if *workerID == "" {
		hostname, _ := os.Hostname()
		*workerID = fmt.Sprintf("worker-%s-%d", hostname, os.Getpid())
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(*scratchDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create scratch dir: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var jobs metadata.JobRepository
	var recordings metadata.RecordingRepository
	var models metadata.ModelRepository
	if *postgresDSN != "" {
		db, err := metadata.Open(ctx, *postgresDSN)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to connect to postgres: %v\n", err)
			os.Exit(1)
		}
		defer db.Close()
		jobs = db.JobRepository()
		recordings = db.RecordingRepository()
		models = db.ModelRepository()
	} else {
		slog.Warn("no --postgres-dsn given, using in-memory metadata store (dev only, no persistence across restarts)")
		store := metadata.NewMemoryStore()
		jobs = store.JobRepository()
		recordings = store.RecordingRepository()
		models = store.ModelRepository()
	}

	var objStore objectstore.Store
	if *s3Bucket != "" {
		objStore, err = objectstore.NewS3Store(ctx, objectstore.S3Config{
			Bucket:   *s3Bucket,
			Region:   *s3Region,
			Endpoint: *s3Endpoint,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to connect to S3: %v\n", err)
			os.Exit(1)
		}
	} else {
		slog.Warn("no --s3-bucket given, using local filesystem object store (dev only)", "dir", *storeDir)
		objStore, err = objectstore.NewFilesystemStore(*storeDir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create filesystem object store: %v\n", err)
			os.Exit(1)
		}
	}

	redisClient := redis.NewClient(&redis.Options{Addr: *redisAddr})
	defer redisClient.Close()
	queue := orchestrator.NewRedisJobQueue(redisClient)

	bus := eventbus.New()

	tracer, err := otel.NewTracer(ctx, &otel.Config{
		Enabled:      *otelExporter != "none",
		ServiceName:  "corepipe-worker",
		ExporterType: otel.ExporterType(*otelExporter),
		SampleRate:   1.0,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init tracer: %v\n", err)
		os.Exit(1)
	}
	defer tracer.Shutdown(context.Background())

	o := orchestrator.New(jobs, recordings, queue, cfg, *workerID)
	o.SetEventBus(bus)
	o.SetMetrics(metrics.NewCollector(prometheus.DefaultRegisterer))
	o.SetTracer(tracer)

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
			slog.Error("metrics server failed", "error", err)
		}
	}()

	deps := &jobhandlers.Deps{
		Store:      objStore,
		Recordings: recordings,
		Models:     models,
		Cfg:        cfg,
		ScratchDir: *scratchDir,
		Events:     bus,
	}
	o.RegisterHandler(metadata.StepPreprocessing, jobhandlers.NewPreprocessingHandler(deps))
	o.RegisterHandler(metadata.StepFeatureExtract, jobhandlers.NewFeatureExtractionHandler(deps))
	o.RegisterHandler(metadata.StepTraining, jobhandlers.NewTrainingHandler(deps))

	fmt.Printf("Worker %s started (preprocessing=%d training=%d pollInterval=%s)\n",
		*workerID, maxInt(1, cfg.Orchestrator.PreprocessingConcurrency), maxInt(1, cfg.Orchestrator.TrainingConcurrency), cfg.Orchestrator.PollInterval)

	done := make(chan struct{})
	go func() {
		o.Run(ctx)
		close(done)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	fmt.Println("\nShutting down worker...")
	cancel()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		fmt.Println("Shutdown timeout, forcing exit")
	}
	fmt.Println("Worker stopped")
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
