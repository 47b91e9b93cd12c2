package main

import (
	"fmt"
	"log"

	"ddtcorpus/internal/compare"
	"ddtcorpus/internal/config"
	"ddtcorpus/internal/extractor/azureocr"
	"ddtcorpus/internal/extractor/datalab"
	"ddtcorpus/internal/extractor/gemini"
	"ddtcorpus/internal/handler"
	"ddtcorpus/internal/pipeline"
	"ddtcorpus/internal/ratelimit"
	"ddtcorpus/internal/repository/postgres"
	"ddtcorpus/internal/router"
	"ddtcorpus/internal/schema"
	"ddtcorpus/internal/service"
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
		return fmt.Errorf("failed to load config: %w", err)
	}

	db, err := postgres.NewDB(&cfg.DB)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	// Initialize repositories
	docRepo := postgres.NewDocumentRepo(db)
	statsRepo := postgres.NewStatsRepo(db)

	// Initialize storage
	s3Client, err := s3storage.NewS3Client(&cfg.S3)
	if err != nil {
		return fmt.Errorf("failed to initialize S3 client: %w", err)
	}

	// Initialize providers, each behind its own admission gate
	datalabGate := ratelimit.New("datalab",
		cfg.Datalab.RateLimit.RequestsPerWindow, cfg.Datalab.RateLimit.Window, cfg.Datalab.RateLimit.MaxConcurrent)
	azureGate := ratelimit.New("azure",
		cfg.Azure.RateLimit.RequestsPerWindow, cfg.Azure.RateLimit.Window, cfg.Azure.RateLimit.MaxConcurrent)
	geminiGate := ratelimit.New("gemini",
		cfg.Gemini.RateLimit.RequestsPerWindow, cfg.Gemini.RateLimit.Window, cfg.Gemini.RateLimit.MaxConcurrent)

	datalabExt := datalab.NewExtractor(&cfg.Datalab, datalabGate)
	azureExt := azureocr.NewExtractor(&cfg.Azure, azureGate)
	geminiExt := gemini.NewExtractor(&cfg.Gemini, geminiGate)

	// Initialize the extraction pipeline
	cmpCfg := compare.DefaultConfig(schema.Fields())
	cmpCfg.FuzzyThreshold = cfg.Pipeline.FuzzyThreshold
	cmpCfg.FuzzyMinLen = cfg.Pipeline.FuzzyMinLen
	pipe := pipeline.New(docRepo, statsRepo, s3Client, datalabExt, azureExt, geminiExt, cmpCfg, pipeline.Options{
		BaselineProvider:   cfg.Pipeline.BaselineProvider,
		AutoValidThreshold: cfg.Pipeline.AutoValidThreshold,
		MaxConcurrentDocs:  cfg.Pipeline.MaxConcurrentDocs,
		ClaimBatchSize:     cfg.Pipeline.ClaimBatchSize,
		Profile:            schema.DefaultProfile(cfg.Gemini.Model),
	})

	// Initialize services
	authSvc := service.NewAuthService(cfg.Auth, cfg.JWT)
	docSvc := service.NewDocumentService(docRepo, statsRepo, s3Client, cfg.S3)
	reviewSvc := service.NewReviewService(docRepo, statsRepo)
	batchSvc := service.NewBatchService(pipe)
	exportSvc := service.NewExportService(docRepo, cfg.Export)

	// Initialize handlers
	authH := handler.NewAuthHandler(authSvc)
	docH := handler.NewDocumentHandler(docSvc)
	batchH := handler.NewBatchHandler(batchSvc)
	reviewH := handler.NewReviewHandler(reviewSvc)
	exportH := handler.NewExportHandler(exportSvc)
	statsH := handler.NewStatsHandler(docSvc)
	healthH := handler.NewHealthHandler(db)

	// Setup router
	r := router.Setup(cfg, authSvc, authH, docH, batchH, reviewH, exportH, statsH, healthH)

	log.Printf("Server starting on %s", cfg.Server.Port)
	if err := r.Run(cfg.Server.Port); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}
