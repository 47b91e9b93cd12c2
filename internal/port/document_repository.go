package port

import (
	"context"

	"github.com/google/uuid"

	"ddtcorpus/internal/domain"
)

// DocumentFilter narrows listing queries. Zero value lists everything.
type DocumentFilter struct {
	Status *domain.DocumentStatus
	Offset int
	Limit  int
}

// DocumentRepository defines the contract for document persistence.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Document, error)
	List(ctx context.Context, filter DocumentFilter) ([]domain.Document, int, error)
	// ClaimPending atomically moves up to limit pending documents to
	// processing and returns them. Concurrent claimers never receive the same
	// document twice.
	ClaimPending(ctx context.Context, limit int) ([]domain.Document, error)
	CountByStatus(ctx context.Context) (map[domain.DocumentStatus]int, error)
	UpdateExtractionResults(ctx context.Context, doc *domain.Document) error
	UpdateReviewStatus(ctx context.Context, doc *domain.Document) error
	UpdateDatasetSplit(ctx context.Context, id uuid.UUID, split domain.DatasetSplit) error
	// ListValidated returns every auto_validated and manually_validated
	// document, oldest first, for dataset assembly.
	ListValidated(ctx context.Context) ([]domain.Document, error)
	// ResetToPending clears a document's extraction results and returns it to
	// the queue. Only non-terminal review states and error are resettable.
	ResetToPending(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
}
