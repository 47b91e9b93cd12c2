package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"ddtcorpus/internal/domain"
	"ddtcorpus/internal/port"
)

type statsRepo struct {
	db *sqlx.DB
}

// NewStatsRepo creates a new PostgreSQL-backed StatsRepository.
func NewStatsRepo(db *sqlx.DB) port.StatsRepository {
	return &statsRepo{db: db}
}

// Get returns the aggregate stats row, creating it on first use.
func (r *statsRepo) Get(ctx context.Context) (*domain.ProcessingStats, error) {
	var stats domain.ProcessingStats
	err := r.db.GetContext(ctx, &stats, "SELECT * FROM processing_stats LIMIT 1")
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return r.create(ctx)
		}
		return nil, fmt.Errorf("statsRepo.Get: %w", err)
	}
	return &stats, nil
}

func (r *statsRepo) create(ctx context.Context) (*domain.ProcessingStats, error) {
	now := time.Now().UTC()
	stats := &domain.ProcessingStats{
		ID:        uuid.New(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO processing_stats (id, created_at, updated_at) VALUES ($1, $2, $3)`,
		stats.ID, stats.CreatedAt, stats.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("statsRepo.create: %w", err)
	}
	return stats, nil
}

// Apply adds a delta to the counters and refreshes avg_match_score from the
// documents table in the same statement.
func (r *statsRepo) Apply(ctx context.Context, delta domain.StatsDelta) error {
	if _, err := r.Get(ctx); err != nil {
		return err
	}
	query := `UPDATE processing_stats SET
		total_samples = total_samples + $1,
		processed = processed + $2,
		auto_validated = auto_validated + $3,
		needs_review = needs_review + $4,
		manually_validated = manually_validated + $5,
		rejected = rejected + $6,
		errors = errors + $7,
		total_processing_time_ms = total_processing_time_ms + $8,
		avg_match_score = (SELECT AVG(match_score) FROM documents WHERE match_score IS NOT NULL),
		updated_at = $9`

	_, err := r.db.ExecContext(ctx, query,
		delta.TotalSamples, delta.Processed, delta.AutoValidated, delta.NeedsReview,
		delta.ManuallyValidated, delta.Rejected, delta.Errors, delta.ProcessingTimeMS,
		time.Now().UTC())
	if err != nil {
		return fmt.Errorf("statsRepo.Apply: %w", err)
	}
	return nil
}

func (r *statsRepo) SetProcessing(ctx context.Context, processing bool) error {
	if _, err := r.Get(ctx); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx,
		"UPDATE processing_stats SET is_processing = $1, updated_at = $2",
		processing, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("statsRepo.SetProcessing: %w", err)
	}
	return nil
}

// Recompute rebuilds every counter from the documents table.
func (r *statsRepo) Recompute(ctx context.Context) error {
	if _, err := r.Get(ctx); err != nil {
		return err
	}
	query := `UPDATE processing_stats SET
		total_samples = (SELECT COUNT(*) FROM documents),
		processed = (SELECT COUNT(*) FROM documents WHERE status NOT IN ($1, $2)),
		auto_validated = (SELECT COUNT(*) FROM documents WHERE status = $3),
		needs_review = (SELECT COUNT(*) FROM documents WHERE status = $4),
		manually_validated = (SELECT COUNT(*) FROM documents WHERE status = $5),
		rejected = (SELECT COUNT(*) FROM documents WHERE status = $6),
		errors = (SELECT COUNT(*) FROM documents WHERE status = $7),
		avg_match_score = (SELECT AVG(match_score) FROM documents WHERE match_score IS NOT NULL),
		updated_at = $8`

	_, err := r.db.ExecContext(ctx, query,
		domain.StatusPending, domain.StatusProcessing,
		domain.StatusAutoValidated, domain.StatusNeedsReview,
		domain.StatusManuallyValidated, domain.StatusRejected, domain.StatusError,
		time.Now().UTC())
	if err != nil {
		return fmt.Errorf("statsRepo.Recompute: %w", err)
	}
	return nil
}
