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

type documentRepo struct {
	db *sqlx.DB
}

// NewDocumentRepo creates a new PostgreSQL-backed DocumentRepository.
func NewDocumentRepo(db *sqlx.DB) port.DocumentRepository {
	return &documentRepo{db: db}
}

func (r *documentRepo) Create(ctx context.Context, doc *domain.Document) error {
	now := time.Now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	if doc.Status == "" {
		doc.Status = domain.StatusPending
	}

	query := `INSERT INTO documents (
		id, filename, s3_bucket, s3_key, file_size_bytes,
		status, created_at, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.ExecContext(ctx, query,
		doc.ID, doc.Filename, doc.S3Bucket, doc.S3Key, doc.FileSizeBytes,
		doc.Status, doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("documentRepo.Create: %w", err)
	}
	return nil
}

func (r *documentRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Document, error) {
	var doc domain.Document
	err := r.db.GetContext(ctx, &doc, "SELECT * FROM documents WHERE id = $1", id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrDocumentNotFound
		}
		return nil, fmt.Errorf("documentRepo.GetByID: %w", err)
	}
	return &doc, nil
}

func (r *documentRepo) List(ctx context.Context, filter port.DocumentFilter) ([]domain.Document, int, error) {
	where := ""
	args := []interface{}{}
	if filter.Status != nil {
		where = "WHERE status = $1"
		args = append(args, *filter.Status)
	}

	var total int
	err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM documents "+where, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("documentRepo.List count: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf("SELECT * FROM documents %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		where, len(args)+1, len(args)+2)
	args = append(args, limit, filter.Offset)

	var docs []domain.Document
	if err := r.db.SelectContext(ctx, &docs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("documentRepo.List: %w", err)
	}
	return docs, total, nil
}

// ClaimPending flips up to limit pending rows to processing in one statement.
// FOR UPDATE SKIP LOCKED keeps concurrent claimers from racing on the same rows.
func (r *documentRepo) ClaimPending(ctx context.Context, limit int) ([]domain.Document, error) {
	query := `UPDATE documents SET status = $1, updated_at = $2
		WHERE id IN (
			SELECT id FROM documents WHERE status = $3
			ORDER BY created_at ASC LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		RETURNING *`

	var docs []domain.Document
	err := r.db.SelectContext(ctx, &docs, query,
		domain.StatusProcessing, time.Now().UTC(), domain.StatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("documentRepo.ClaimPending: %w", err)
	}
	return docs, nil
}

func (r *documentRepo) CountByStatus(ctx context.Context) (map[domain.DocumentStatus]int, error) {
	rows, err := r.db.QueryxContext(ctx,
		"SELECT status, COUNT(*) AS n FROM documents GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("documentRepo.CountByStatus: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[domain.DocumentStatus]int)
	for rows.Next() {
		var status domain.DocumentStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("documentRepo.CountByStatus scan: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// UpdateExtractionResults persists everything the pipeline learned about a
// document, including the transition out of processing, in one statement.
func (r *documentRepo) UpdateExtractionResults(ctx context.Context, doc *domain.Document) error {
	doc.UpdatedAt = time.Now().UTC()

	query := `UPDATE documents SET
		datalab_raw_ocr = $1, datalab_json = $2, datalab_time_ms = $3, datalab_error = $4,
		azure_raw_ocr = $5, azure_time_ms = $6, azure_error = $7,
		gemini_json = $8, gemini_time_ms = $9, gemini_error = $10,
		match_score = $11, discrepancies = $12,
		status = $13, error_class = $14, error_message = $15,
		validated_output = $16, validation_source = $17,
		updated_at = $18
	WHERE id = $19`

	res, err := r.db.ExecContext(ctx, query,
		doc.DatalabRawOCR, doc.DatalabJSON, doc.DatalabTimeMS, doc.DatalabError,
		doc.AzureRawOCR, doc.AzureTimeMS, doc.AzureError,
		doc.GeminiJSON, doc.GeminiTimeMS, doc.GeminiError,
		doc.MatchScore, doc.Discrepancies,
		doc.Status, doc.ErrorClass, doc.ErrorMessage,
		doc.ValidatedOutput, doc.ValidationSource,
		doc.UpdatedAt, doc.ID)
	if err != nil {
		return fmt.Errorf("documentRepo.UpdateExtractionResults: %w", err)
	}
	return requireOneRow(res, "documentRepo.UpdateExtractionResults")
}

func (r *documentRepo) UpdateReviewStatus(ctx context.Context, doc *domain.Document) error {
	doc.UpdatedAt = time.Now().UTC()

	query := `UPDATE documents SET
		status = $1, validated_output = $2, validation_source = $3, validator_notes = $4,
		updated_at = $5
	WHERE id = $6`

	res, err := r.db.ExecContext(ctx, query,
		doc.Status, doc.ValidatedOutput, doc.ValidationSource, doc.ValidatorNotes,
		doc.UpdatedAt, doc.ID)
	if err != nil {
		return fmt.Errorf("documentRepo.UpdateReviewStatus: %w", err)
	}
	return requireOneRow(res, "documentRepo.UpdateReviewStatus")
}

func (r *documentRepo) UpdateDatasetSplit(ctx context.Context, id uuid.UUID, split domain.DatasetSplit) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE documents SET dataset_split = $1, updated_at = $2 WHERE id = $3",
		split, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("documentRepo.UpdateDatasetSplit: %w", err)
	}
	return requireOneRow(res, "documentRepo.UpdateDatasetSplit")
}

func (r *documentRepo) ListValidated(ctx context.Context) ([]domain.Document, error) {
	var docs []domain.Document
	err := r.db.SelectContext(ctx, &docs,
		`SELECT * FROM documents WHERE status IN ($1, $2) ORDER BY created_at ASC`,
		domain.StatusAutoValidated, domain.StatusManuallyValidated)
	if err != nil {
		return nil, fmt.Errorf("documentRepo.ListValidated: %w", err)
	}
	return docs, nil
}

// ResetToPending clears extraction output and requeues the document. Guarded
// by status so a document being processed cannot be reset under the pipeline.
func (r *documentRepo) ResetToPending(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE documents SET
		status = $1,
		datalab_raw_ocr = NULL, datalab_json = NULL, datalab_time_ms = NULL, datalab_error = NULL,
		azure_raw_ocr = NULL, azure_time_ms = NULL, azure_error = NULL,
		gemini_json = NULL, gemini_time_ms = NULL, gemini_error = NULL,
		match_score = NULL, discrepancies = NULL,
		error_class = NULL, error_message = NULL,
		validated_output = NULL, validation_source = NULL, validator_notes = '',
		dataset_split = NULL,
		updated_at = $2
	WHERE id = $3 AND status IN ($4, $5)`

	res, err := r.db.ExecContext(ctx, query,
		domain.StatusPending, time.Now().UTC(), id,
		domain.StatusNeedsReview, domain.StatusError)
	if err != nil {
		return fmt.Errorf("documentRepo.ResetToPending: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("documentRepo.ResetToPending: %w", err)
	}
	if n == 0 {
		return domain.ErrInvalidTransition
	}
	return nil
}

func (r *documentRepo) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM documents WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("documentRepo.Delete: %w", err)
	}
	return requireOneRow(res, "documentRepo.Delete")
}

func requireOneRow(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}
