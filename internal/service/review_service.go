package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/google/uuid"

	"ddtcorpus/internal/domain"
	"ddtcorpus/internal/port"
	"ddtcorpus/internal/schema"
)

// ValidateDocumentInput is the DTO for a manual validation decision.
type ValidateDocumentInput struct {
	DocumentID uuid.UUID
	// ValidatedData is the final structured record: one provider's output
	// accepted verbatim, or a hand-edited record.
	ValidatedData json.RawMessage
	Source        domain.ValidationSource
	Notes         string
}

// ReviewService defines the manual review contract over needs_review documents.
type ReviewService interface {
	Queue(ctx context.Context, offset, limit int) ([]domain.Document, int, error)
	Validate(ctx context.Context, input *ValidateDocumentInput) (*domain.Document, error)
	Reject(ctx context.Context, id uuid.UUID, notes string) (*domain.Document, error)
}

type reviewService struct {
	docs  port.DocumentRepository
	stats port.StatsRepository
}

// NewReviewService creates a new ReviewService implementation.
func NewReviewService(docs port.DocumentRepository, stats port.StatsRepository) ReviewService {
	return &reviewService{docs: docs, stats: stats}
}

func (s *reviewService) Queue(ctx context.Context, offset, limit int) ([]domain.Document, int, error) {
	status := domain.StatusNeedsReview
	return s.docs.List(ctx, port.DocumentFilter{Status: &status, Offset: offset, Limit: limit})
}

// Validate moves a needs_review document to manually_validated with the
// reviewer-supplied record. The record must satisfy the extraction schema so
// hand edits cannot corrupt the dataset.
func (s *reviewService) Validate(ctx context.Context, input *ValidateDocumentInput) (*domain.Document, error) {
	doc, err := s.docs.GetByID(ctx, input.DocumentID)
	if err != nil {
		return nil, err
	}
	if !domain.ValidTransition(doc.Status, domain.StatusManuallyValidated) {
		return nil, fmt.Errorf("reviewService.Validate: %s is %s: %w",
			doc.ID, doc.Status, domain.ErrInvalidTransition)
	}

	var record map[string]interface{}
	if err := json.Unmarshal(input.ValidatedData, &record); err != nil {
		return nil, fmt.Errorf("reviewService.Validate: %w: %v", domain.ErrInvalidValidatedData, err)
	}
	if err := schema.Validate(record); err != nil {
		return nil, fmt.Errorf("reviewService.Validate: %w: %v", domain.ErrInvalidValidatedData, err)
	}

	source := input.Source
	if source == "" {
		source = domain.SourceManual
	}

	doc.Status = domain.StatusManuallyValidated
	doc.ValidatedOutput = input.ValidatedData
	doc.ValidationSource = &source
	doc.ValidatorNotes = input.Notes

	if err := s.docs.UpdateReviewStatus(ctx, doc); err != nil {
		return nil, err
	}
	if err := s.stats.Apply(ctx, domain.StatsDelta{ManuallyValidated: 1, NeedsReview: -1}); err != nil {
		log.Printf("reviewService.Validate: stats: %v", err)
	}
	log.Printf("reviewService.Validate: %s manually validated (source=%s)", doc.ID, source)
	return doc, nil
}

// Reject marks a needs_review document unusable.
func (s *reviewService) Reject(ctx context.Context, id uuid.UUID, notes string) (*domain.Document, error) {
	doc, err := s.docs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	// pending->rejected exists only for upload pre-flight; a reviewer may
	// reject documents that actually reached the review queue.
	if doc.Status != domain.StatusNeedsReview {
		return nil, fmt.Errorf("reviewService.Reject: %s is %s: %w",
			doc.ID, doc.Status, domain.ErrInvalidTransition)
	}

	doc.Status = domain.StatusRejected
	doc.ValidatedOutput = nil
	doc.ValidationSource = nil
	doc.ValidatorNotes = notes

	if err := s.docs.UpdateReviewStatus(ctx, doc); err != nil {
		return nil, err
	}
	if err := s.stats.Apply(ctx, domain.StatsDelta{Rejected: 1, NeedsReview: -1}); err != nil {
		log.Printf("reviewService.Reject: stats: %v", err)
	}
	log.Printf("reviewService.Reject: %s rejected", doc.ID)
	return doc, nil
}
