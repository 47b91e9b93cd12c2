package service

import (
	"context"
	"log"
	"sync"

	"ddtcorpus/internal/domain"
	"ddtcorpus/internal/pipeline"
)

// BatchService starts and observes extraction runs.
type BatchService interface {
	// Start launches a run in the background. It fails fast when a run is
	// already draining.
	Start(ctx context.Context) (domain.BatchSummary, error)
	// Status reports the active or most recent run.
	Status() (domain.BatchSummary, bool)
	// Cancel stops the active run from claiming further documents. In-flight
	// documents finish.
	Cancel()
}

type batchService struct {
	pipe *pipeline.Pipeline

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewBatchService creates a new BatchService around the extraction pipeline.
func NewBatchService(pipe *pipeline.Pipeline) BatchService {
	return &batchService{pipe: pipe}
}

func (s *batchService) Start(ctx context.Context) (domain.BatchSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Register the run before returning so the summary always describes this
	// run, not a previous one.
	run, err := s.pipe.Begin()
	if err != nil {
		summary, _ := s.pipe.CurrentRun()
		return summary, err
	}

	// The run outlives the triggering HTTP request.
	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go func() {
		defer cancel()
		if _, err := s.pipe.Drain(runCtx, run); err != nil {
			log.Printf("batchService.Start: run aborted: %v", err)
		}
	}()

	return run.Snapshot(), nil
}

func (s *batchService) Status() (domain.BatchSummary, bool) {
	return s.pipe.CurrentRun()
}

func (s *batchService) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}
