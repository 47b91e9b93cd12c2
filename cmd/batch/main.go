// Command batch runs one extraction pass over all pending documents without
// going through the HTTP API. Useful for cron jobs and reprocessing after a
// reset.
// Usage: go run ./cmd/batch
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"ddtcorpus/internal/compare"
	"ddtcorpus/internal/config"
	"ddtcorpus/internal/extractor/azureocr"
	"ddtcorpus/internal/extractor/datalab"
	"ddtcorpus/internal/extractor/gemini"
	"ddtcorpus/internal/pipeline"
	"ddtcorpus/internal/ratelimit"
	"ddtcorpus/internal/repository/postgres"
	"ddtcorpus/internal/schema"
	s3storage "ddtcorpus/internal/storage/s3"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	db, err := postgres.NewDB(&cfg.DB)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer func() { _ = db.Close() }()

	s3Client, err := s3storage.NewS3Client(&cfg.S3)
	if err != nil {
		return fmt.Errorf("initializing S3 client: %w", err)
	}

	docRepo := postgres.NewDocumentRepo(db)
	statsRepo := postgres.NewStatsRepo(db)

	datalabGate := ratelimit.New("datalab",
		cfg.Datalab.RateLimit.RequestsPerWindow, cfg.Datalab.RateLimit.Window, cfg.Datalab.RateLimit.MaxConcurrent)
	azureGate := ratelimit.New("azure",
		cfg.Azure.RateLimit.RequestsPerWindow, cfg.Azure.RateLimit.Window, cfg.Azure.RateLimit.MaxConcurrent)
	geminiGate := ratelimit.New("gemini",
		cfg.Gemini.RateLimit.RequestsPerWindow, cfg.Gemini.RateLimit.Window, cfg.Gemini.RateLimit.MaxConcurrent)

	cmpCfg := compare.DefaultConfig(schema.Fields())
	cmpCfg.FuzzyThreshold = cfg.Pipeline.FuzzyThreshold
	cmpCfg.FuzzyMinLen = cfg.Pipeline.FuzzyMinLen

	pipe := pipeline.New(
		docRepo, statsRepo, s3Client,
		datalab.NewExtractor(&cfg.Datalab, datalabGate),
		azureocr.NewExtractor(&cfg.Azure, azureGate),
		gemini.NewExtractor(&cfg.Gemini, geminiGate),
		cmpCfg,
		pipeline.Options{
			BaselineProvider:   cfg.Pipeline.BaselineProvider,
			AutoValidThreshold: cfg.Pipeline.AutoValidThreshold,
			MaxConcurrentDocs:  cfg.Pipeline.MaxConcurrentDocs,
			ClaimBatchSize:     cfg.Pipeline.ClaimBatchSize,
			Profile:            schema.DefaultProfile(cfg.Gemini.Model),
		},
	)

	// SIGINT/SIGTERM stops claiming new documents; in-flight ones finish.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := pipe.ProcessPending(ctx)
	if err != nil {
		return fmt.Errorf("batch run aborted: %w", err)
	}

	log.Printf("batch run complete: %d processed, %d auto-validated, %d needs review, %d errored",
		summary.Processed, summary.AutoValidated, summary.NeedsReview, summary.Errored)
	return nil
}
