package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/google/uuid"

	"ddtcorpus/internal/config"
	"ddtcorpus/internal/domain"
	"ddtcorpus/internal/port"
)

// pdfMagic is the signature every uploaded PDF must start with.
var pdfMagic = []byte("%PDF-")

// UploadDocumentInput is the DTO for uploading a new source document.
type UploadDocumentInput struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// DocumentService defines the document management contract.
type DocumentService interface {
	Upload(ctx context.Context, input *UploadDocumentInput) (*domain.Document, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Document, error)
	List(ctx context.Context, status *domain.DocumentStatus, offset, limit int) ([]domain.Document, int, error)
	GetDownloadURL(ctx context.Context, id uuid.UUID) (string, error)
	Reset(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
	Stats(ctx context.Context) (*domain.ProcessingStats, map[domain.DocumentStatus]int, error)
}

type documentService struct {
	docs    port.DocumentRepository
	stats   port.StatsRepository
	storage port.ObjectStorage
	s3cfg   config.S3Config
}

// NewDocumentService creates a new DocumentService implementation.
func NewDocumentService(
	docs port.DocumentRepository,
	stats port.StatsRepository,
	storage port.ObjectStorage,
	s3cfg config.S3Config,
) DocumentService {
	return &documentService{
		docs:    docs,
		stats:   stats,
		storage: storage,
		s3cfg:   s3cfg,
	}
}

// Upload validates the file before any provider quota is spent, stores the
// bytes, and queues the document as pending. A pre-flight rejection persists
// the document as rejected with an input_rejected classification so the
// failure stays queryable.
func (s *documentService) Upload(ctx context.Context, input *UploadDocumentInput) (*domain.Document, error) {
	data, err := io.ReadAll(input.Body)
	if err != nil {
		return nil, fmt.Errorf("documentService.Upload: reading body: %w", err)
	}

	doc := &domain.Document{
		ID:            uuid.New(),
		Filename:      input.Filename,
		S3Bucket:      s.s3cfg.Bucket,
		S3Key:         fmt.Sprintf("uploads/%s/%s", time.Now().UTC().Format("2006/01/02"), uuid.New()),
		FileSizeBytes: int64(len(data)),
		Status:        domain.StatusPending,
	}

	if rejectMsg := s.preflight(input, data); rejectMsg != "" {
		doc.Status = domain.StatusRejected
		doc.ErrorClass = classPtr(domain.ErrClassInputRejected)
		doc.ErrorMessage = &rejectMsg
		if err := s.docs.Create(ctx, doc); err != nil {
			return nil, err
		}
		log.Printf("documentService.Upload: rejected %s: %s", input.Filename, rejectMsg)
		return doc, domain.ErrUnsupportedFileType
	}

	if _, err := s.storage.Upload(ctx, port.UploadInput{
		Bucket:      doc.S3Bucket,
		Key:         doc.S3Key,
		Body:        bytes.NewReader(data),
		ContentType: input.ContentType,
		Size:        doc.FileSizeBytes,
	}); err != nil {
		return nil, fmt.Errorf("documentService.Upload: %w: %v", domain.ErrUploadFailed, err)
	}

	if err := s.docs.Create(ctx, doc); err != nil {
		// Best effort: do not leave an orphan object behind.
		if delErr := s.storage.Delete(ctx, doc.S3Bucket, doc.S3Key); delErr != nil {
			log.Printf("documentService.Upload: orphan cleanup %s: %v", doc.S3Key, delErr)
		}
		return nil, err
	}

	if err := s.stats.Apply(ctx, domain.StatsDelta{TotalSamples: 1}); err != nil {
		log.Printf("documentService.Upload: stats: %v", err)
	}
	log.Printf("documentService.Upload: queued %s (%d bytes)", doc.Filename, doc.FileSizeBytes)
	return doc, nil
}

// preflight returns a rejection message, or "" when the input is acceptable.
func (s *documentService) preflight(input *UploadDocumentInput, data []byte) string {
	if _, ok := domain.AllowedContentTypes[input.ContentType]; !ok {
		return fmt.Sprintf("unsupported content type %q", input.ContentType)
	}
	maxBytes := s.s3cfg.MaxFileSizeMB * 1024 * 1024
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return fmt.Sprintf("file exceeds %dMB limit", s.s3cfg.MaxFileSizeMB)
	}
	if len(data) == 0 {
		return "empty file"
	}
	if input.ContentType == "application/pdf" && !bytes.HasPrefix(data, pdfMagic) {
		return "corrupt PDF: missing %PDF header"
	}
	return ""
}

func (s *documentService) GetByID(ctx context.Context, id uuid.UUID) (*domain.Document, error) {
	return s.docs.GetByID(ctx, id)
}

func (s *documentService) List(ctx context.Context, status *domain.DocumentStatus, offset, limit int) ([]domain.Document, int, error) {
	return s.docs.List(ctx, port.DocumentFilter{Status: status, Offset: offset, Limit: limit})
}

func (s *documentService) GetDownloadURL(ctx context.Context, id uuid.UUID) (string, error) {
	doc, err := s.docs.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	return s.storage.GetPresignedURL(ctx, doc.S3Bucket, doc.S3Key, s.s3cfg.PresignExpiry)
}

// Reset requeues an errored or needs_review document and rebuilds stats.
func (s *documentService) Reset(ctx context.Context, id uuid.UUID) error {
	if err := s.docs.ResetToPending(ctx, id); err != nil {
		return err
	}
	if err := s.stats.Recompute(ctx); err != nil {
		log.Printf("documentService.Reset: stats recompute: %v", err)
	}
	return nil
}

func (s *documentService) Delete(ctx context.Context, id uuid.UUID) error {
	doc, err := s.docs.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.docs.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.storage.Delete(ctx, doc.S3Bucket, doc.S3Key); err != nil {
		log.Printf("documentService.Delete: object cleanup %s: %v", doc.S3Key, err)
	}
	if err := s.stats.Recompute(ctx); err != nil {
		log.Printf("documentService.Delete: stats recompute: %v", err)
	}
	return nil
}

func (s *documentService) Stats(ctx context.Context) (*domain.ProcessingStats, map[domain.DocumentStatus]int, error) {
	stats, err := s.stats.Get(ctx)
	if err != nil {
		return nil, nil, err
	}
	counts, err := s.docs.CountByStatus(ctx)
	if err != nil {
		return nil, nil, err
	}
	return stats, counts, nil
}

func classPtr(c domain.ErrorClass) *domain.ErrorClass {
	return &c
}
