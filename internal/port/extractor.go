package port

import (
	"context"

	"ddtcorpus/internal/domain"
)

// ExtractInput carries the data needed for one provider invocation.
type ExtractInput struct {
	FileBytes   []byte
	ContentType string
	Filename    string
	// RawText is set for structuring-only providers that operate on OCR text
	// instead of the original file.
	RawText string
	Profile domain.ExtractionProfile
}

// Extractor abstracts one extraction provider. Implementations classify their
// own failures: a returned error always unwraps to an extractor error class,
// and the outcome is nil iff err is non-nil.
type Extractor interface {
	Name() string
	Extract(ctx context.Context, input ExtractInput) (*domain.ExtractionOutcome, error)
}
