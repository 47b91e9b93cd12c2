package port

import (
	"context"

	"ddtcorpus/internal/domain"
)

// StatsRepository maintains the single aggregate processing stats row.
type StatsRepository interface {
	Get(ctx context.Context) (*domain.ProcessingStats, error)
	// Apply adds a delta to the counters and recomputes the average match
	// score from the documents table.
	Apply(ctx context.Context, delta domain.StatsDelta) error
	SetProcessing(ctx context.Context, processing bool) error
	// Recompute rebuilds every counter from the documents table. Used after
	// resets and manual review actions.
	Recompute(ctx context.Context) error
}
