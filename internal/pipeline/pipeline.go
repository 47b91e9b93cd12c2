// Package pipeline implements the extraction-validation orchestrator: it
// claims pending documents, runs the providers under their rate gates,
// cross-validates the structured outputs and drives each document's status
// transition.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"ddtcorpus/internal/compare"
	"ddtcorpus/internal/domain"
	"ddtcorpus/internal/extractor"
	"ddtcorpus/internal/port"
)

// Options fixes the orchestrator's policy knobs.
type Options struct {
	// BaselineProvider's structured output becomes validated_output when a
	// document auto-validates.
	BaselineProvider   string
	AutoValidThreshold float64
	MaxConcurrentDocs  int
	ClaimBatchSize     int
	Profile            domain.ExtractionProfile
}

// Pipeline coordinates extraction across a queue of pending documents.
type Pipeline struct {
	docs    port.DocumentRepository
	stats   port.StatsRepository
	storage port.ObjectStorage

	datalab port.Extractor
	azure   port.Extractor
	gemini  port.Extractor

	cmp  compare.Config
	opts Options

	mu  sync.Mutex
	run *domain.BatchRun
}

// New creates a pipeline. The datalab extractor is the submit/poll provider;
// azure feeds gemini, which structures azure's OCR text.
func New(
	docs port.DocumentRepository,
	stats port.StatsRepository,
	storage port.ObjectStorage,
	datalab, azure, gemini port.Extractor,
	cmp compare.Config,
	opts Options,
) *Pipeline {
	if opts.BaselineProvider == "" {
		opts.BaselineProvider = domain.ProviderDatalab
	}
	if opts.AutoValidThreshold == 0 {
		opts.AutoValidThreshold = 0.95
	}
	if opts.MaxConcurrentDocs <= 0 {
		opts.MaxConcurrentDocs = 2
	}
	if opts.ClaimBatchSize <= 0 {
		opts.ClaimBatchSize = 10
	}
	return &Pipeline{
		docs:    docs,
		stats:   stats,
		storage: storage,
		datalab: datalab,
		azure:   azure,
		gemini:  gemini,
		cmp:     cmp,
		opts:    opts,
	}
}

// CurrentRun returns a snapshot of the active (or most recent) batch run.
func (p *Pipeline) CurrentRun() (domain.BatchSummary, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.run == nil {
		return domain.BatchSummary{}, false
	}
	return p.run.Snapshot(), true
}

// ErrRunInProgress is returned when a new run is requested while a batch is
// still draining.
var ErrRunInProgress = errors.New("pipeline: batch run already in progress")

// Begin registers a new batch run, failing when one is still draining. The
// returned run is visible through CurrentRun before any document is claimed,
// so callers that drain on a background goroutine can report it immediately.
func (p *Pipeline) Begin() (*domain.BatchRun, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.run != nil && p.run.InProgress() {
		return nil, ErrRunInProgress
	}
	run := domain.NewBatchRun(0)
	p.run = run
	return run, nil
}

// ProcessPending claims every pending document and processes them with at most
// MaxConcurrentDocs in flight. Individual document failures never abort the
// batch; infrastructure failures (persistence or storage unavailable) do.
// Cancellation is observed only between claims, so in-flight documents always
// reach a terminal state.
func (p *Pipeline) ProcessPending(ctx context.Context) (domain.BatchSummary, error) {
	run, err := p.Begin()
	if err != nil {
		return domain.BatchSummary{}, err
	}
	return p.Drain(ctx, run)
}

// Drain processes the queue for a run previously registered with Begin.
func (p *Pipeline) Drain(ctx context.Context, run *domain.BatchRun) (domain.BatchSummary, error) {
	if err := p.stats.SetProcessing(ctx, true); err != nil {
		run.Finish()
		return run.Snapshot(), fmt.Errorf("pipeline.Drain: %w", err)
	}

	sem := make(chan struct{}, p.opts.MaxConcurrentDocs)
	var wg sync.WaitGroup

	var infraMu sync.Mutex
	var infraErr error
	setInfraErr := func(err error) {
		infraMu.Lock()
		if infraErr == nil {
			infraErr = err
		}
		infraMu.Unlock()
	}
	hasInfraErr := func() bool {
		infraMu.Lock()
		defer infraMu.Unlock()
		return infraErr != nil
	}

	log.Printf("pipeline.Drain: starting run (max_concurrent_docs=%d)", p.opts.MaxConcurrentDocs)

claimLoop:
	for {
		// Cancellation and infra failures are observed here, never mid-document.
		if ctx.Err() != nil || hasInfraErr() {
			break claimLoop
		}

		claimed, err := p.docs.ClaimPending(ctx, p.opts.ClaimBatchSize)
		if err != nil {
			setInfraErr(fmt.Errorf("pipeline.Drain: claim: %w", err))
			break claimLoop
		}
		if len(claimed) == 0 {
			break claimLoop
		}
		run.AddClaimed(len(claimed))

		for i := range claimed {
			doc := claimed[i]
			sem <- struct{}{}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer func() { <-sem }()

				status, err := p.ProcessOne(ctx, &doc)
				if err != nil {
					setInfraErr(err)
					return
				}
				run.Record(status)
				p.applyStats(ctx, &doc, status)
			}()
		}
	}

	wg.Wait()
	run.Finish()

	if err := p.stats.SetProcessing(context.WithoutCancel(ctx), false); err != nil {
		log.Printf("pipeline.Drain: clearing processing flag: %v", err)
	}

	summary := run.Snapshot()
	log.Printf("pipeline.Drain: run complete (processed=%d auto_validated=%d needs_review=%d errored=%d)",
		summary.Processed, summary.AutoValidated, summary.NeedsReview, summary.Errored)

	infraMu.Lock()
	defer infraMu.Unlock()
	return summary, infraErr
}

// ProcessOne runs the providers for one claimed document, scores the outputs
// and persists exactly one transition out of processing. The returned error is
// non-nil only for infrastructure failures; provider failures land in the
// document's error fields instead.
func (p *Pipeline) ProcessOne(ctx context.Context, doc *domain.Document) (domain.DocumentStatus, error) {
	fileBytes, err := p.storage.Download(ctx, doc.S3Bucket, doc.S3Key)
	if err != nil {
		return "", fmt.Errorf("pipeline.ProcessOne: download %s: %w", doc.ID, err)
	}

	input := port.ExtractInput{
		FileBytes:   fileBytes,
		ContentType: "application/pdf",
		Filename:    doc.Filename,
		Profile:     p.opts.Profile,
	}

	var (
		wg                       sync.WaitGroup
		datalabOut, geminiOut    *domain.ExtractionOutcome
		datalabErr, geminiErr    error
		azureOut                 *domain.ExtractionOutcome
		azureErr                 error
		datalabMS, azMS, gemMS   int64
	)

	// The two cross-validated chains run in parallel; within the second chain
	// gemini depends on azure's OCR text.
	wg.Add(2)
	go func() {
		defer wg.Done()
		datalabOut, datalabMS, datalabErr = p.invoke(ctx, p.datalab, input)
	}()
	go func() {
		defer wg.Done()
		azureOut, azMS, azureErr = p.invoke(ctx, p.azure, input)
		if azureErr != nil {
			return
		}
		gemInput := input
		gemInput.RawText = azureOut.RawText
		geminiOut, gemMS, geminiErr = p.invoke(ctx, p.gemini, gemInput)
	}()
	wg.Wait()

	p.recordOutcomes(doc, datalabOut, datalabErr, datalabMS, azureOut, azureErr, azMS, geminiOut, geminiErr, gemMS)

	p.resolve(doc, datalabOut, datalabErr, azureErr, geminiErr)

	if err := p.docs.UpdateExtractionResults(ctx, doc); err != nil {
		return "", fmt.Errorf("pipeline.ProcessOne: persist %s: %w", doc.ID, err)
	}
	log.Printf("pipeline.ProcessOne: %s -> %s (score=%v)", doc.ID, doc.Status, scoreOrNull(doc.MatchScore))
	return doc.Status, nil
}

// invoke times one provider call. Elapsed is reported on failure too.
func (p *Pipeline) invoke(ctx context.Context, e port.Extractor, input port.ExtractInput) (*domain.ExtractionOutcome, int64, error) {
	start := time.Now()
	out, err := e.Extract(ctx, input)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		log.Printf("pipeline.invoke: %s failed after %dms: %v", e.Name(), elapsed, err)
		return nil, elapsed, err
	}
	return out, elapsed, nil
}

func (p *Pipeline) recordOutcomes(
	doc *domain.Document,
	datalabOut *domain.ExtractionOutcome, datalabErr error, datalabMS int64,
	azureOut *domain.ExtractionOutcome, azureErr error, azMS int64,
	geminiOut *domain.ExtractionOutcome, geminiErr error, gemMS int64,
) {
	doc.DatalabTimeMS = &datalabMS
	if datalabErr != nil {
		doc.DatalabError = strPtr(datalabErr.Error())
	} else {
		doc.DatalabRawOCR = strPtr(datalabOut.RawText)
		if datalabOut.Structured() {
			doc.DatalabJSON = datalabOut.StructuredData
		}
	}

	doc.AzureTimeMS = &azMS
	if azureErr != nil {
		doc.AzureError = strPtr(azureErr.Error())
		doc.GeminiError = strPtr("skipped: no OCR text available")
	} else {
		doc.AzureRawOCR = strPtr(azureOut.RawText)
		doc.GeminiTimeMS = &gemMS
		if geminiErr != nil {
			doc.GeminiError = strPtr(geminiErr.Error())
		} else if geminiOut.Structured() {
			doc.GeminiJSON = geminiOut.StructuredData
		}
	}
}

// resolve drives the transition out of processing. A match score exists only
// when both cross-validated providers produced structured output; anything
// less is a document-level error, never a silent single-source validation.
func (p *Pipeline) resolve(doc *domain.Document, datalabOut *domain.ExtractionOutcome, datalabErr, azureErr, geminiErr error) {
	cv := domain.CrossValidation{
		BaselineStructured:  len(doc.DatalabJSON) > 0,
		SecondaryStructured: len(doc.GeminiJSON) > 0,
		Threshold:           p.opts.AutoValidThreshold,
	}

	if cv.Comparable() {
		res, err := p.cmp.CompareJSON(doc.DatalabJSON, doc.GeminiJSON)
		if err != nil {
			doc.Status = domain.StatusError
			doc.ErrorClass = classPtr(domain.ErrClassInvalidOutput)
			doc.ErrorMessage = strPtr(err.Error())
			return
		}
		cv.Score = res.Score
		doc.MatchScore = &res.Score
		doc.Discrepancies = res.Discrepancies

		doc.Status = cv.Resolve()
		if doc.Status == domain.StatusAutoValidated {
			doc.ValidatedOutput = p.baselineOutput(doc)
			src := p.baselineSource()
			doc.ValidationSource = &src
		}
		return
	}

	doc.Status = domain.StatusError
	class, msg := firstFailure(datalabOut, datalabErr, azureErr, geminiErr)
	doc.ErrorClass = classPtr(class)
	doc.ErrorMessage = strPtr(msg)
}

// baselineOutput returns the structured record of the configured baseline
// provider. Both records exist when this is called.
func (p *Pipeline) baselineOutput(doc *domain.Document) json.RawMessage {
	if p.opts.BaselineProvider == domain.ProviderGemini {
		return doc.GeminiJSON
	}
	return doc.DatalabJSON
}

func (p *Pipeline) baselineSource() domain.ValidationSource {
	if p.opts.BaselineProvider == domain.ProviderGemini {
		return domain.SourceGemini
	}
	return domain.SourceDatalab
}

// firstFailure picks the classification persisted at document level, baseline
// chain first.
func firstFailure(datalabOut *domain.ExtractionOutcome, datalabErr, azureErr, geminiErr error) (domain.ErrorClass, string) {
	if datalabErr != nil {
		return extractor.ClassOf(datalabErr), datalabErr.Error()
	}
	if azureErr != nil {
		return extractor.ClassOf(azureErr), azureErr.Error()
	}
	if geminiErr != nil {
		return extractor.ClassOf(geminiErr), geminiErr.Error()
	}
	// Providers succeeded but at least one produced no structured record.
	if datalabOut != nil && !datalabOut.Structured() {
		return domain.ErrClassInvalidOutput, "datalab returned no structured output"
	}
	return domain.ErrClassInvalidOutput, "gemini returned no structured output"
}

func (p *Pipeline) applyStats(ctx context.Context, doc *domain.Document, status domain.DocumentStatus) {
	delta := domain.StatsDelta{Processed: 1}
	switch status {
	case domain.StatusAutoValidated:
		delta.AutoValidated = 1
	case domain.StatusNeedsReview:
		delta.NeedsReview = 1
	case domain.StatusError:
		delta.Errors = 1
	}
	if doc.DatalabTimeMS != nil {
		delta.ProcessingTimeMS += *doc.DatalabTimeMS
	}
	if doc.AzureTimeMS != nil {
		delta.ProcessingTimeMS += *doc.AzureTimeMS
	}
	if doc.GeminiTimeMS != nil {
		delta.ProcessingTimeMS += *doc.GeminiTimeMS
	}
	if err := p.stats.Apply(ctx, delta); err != nil {
		log.Printf("pipeline.applyStats: %s: %v", doc.ID, err)
	}
}

func strPtr(s string) *string {
	return &s
}

func classPtr(c domain.ErrorClass) *domain.ErrorClass {
	return &c
}

func scoreOrNull(s *float64) interface{} {
	if s == nil {
		return "null"
	}
	return *s
}
