package service

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ddtcorpus/internal/config"
	"ddtcorpus/internal/domain"
	"ddtcorpus/mocks"
)

func newDocumentService(docs *mocks.MockDocumentRepo, stats *mocks.MockStatsRepo, storage *mocks.MockObjectStorage) DocumentService {
	return NewDocumentService(docs, stats, storage, config.S3Config{
		Bucket:        "ddt-corpus",
		MaxFileSizeMB: 1,
		PresignExpiry: 900,
	})
}

func pdfUpload(content string) *UploadDocumentInput {
	return &UploadDocumentInput{
		Filename:    "ddt_0001.pdf",
		ContentType: "application/pdf",
		Size:        int64(len(content)),
		Body:        strings.NewReader(content),
	}
}

func TestUploadQueuesPendingDocument(t *testing.T) {
	docs := new(mocks.MockDocumentRepo)
	stats := new(mocks.MockStatsRepo)
	storage := new(mocks.MockObjectStorage)
	svc := newDocumentService(docs, stats, storage)

	storage.On("Upload", mock.Anything, mock.Anything).Return(nil, nil)
	docs.On("Create", mock.Anything, mock.Anything).Return(nil)
	stats.On("Apply", mock.Anything, domain.StatsDelta{TotalSamples: 1}).Return(nil)

	doc, err := svc.Upload(context.Background(), pdfUpload("%PDF-1.7 contenuto"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, doc.Status)
	assert.Equal(t, "ddt-corpus", doc.S3Bucket)
	assert.True(t, strings.HasPrefix(doc.S3Key, "uploads/"))
	assert.Equal(t, int64(len("%PDF-1.7 contenuto")), doc.FileSizeBytes)
	docs.AssertExpectations(t)
	stats.AssertExpectations(t)
}

func TestUploadRejectsBeforeTouchingStorage(t *testing.T) {
	tests := []struct {
		name  string
		input *UploadDocumentInput
	}{
		{
			"unsupported content type",
			&UploadDocumentInput{
				Filename:    "ddt.docx",
				ContentType: "application/msword",
				Body:        strings.NewReader("contenuto"),
			},
		},
		{
			"missing pdf header",
			pdfUpload("not a pdf at all"),
		},
		{
			"empty file",
			pdfUpload(""),
		},
		{
			"oversized file",
			pdfUpload("%PDF-" + strings.Repeat("x", 2*1024*1024)),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs := new(mocks.MockDocumentRepo)
			stats := new(mocks.MockStatsRepo)
			storage := new(mocks.MockObjectStorage)
			svc := newDocumentService(docs, stats, storage)

			docs.On("Create", mock.Anything, mock.MatchedBy(func(d *domain.Document) bool {
				return d.Status == domain.StatusRejected &&
					d.ErrorClass != nil && *d.ErrorClass == domain.ErrClassInputRejected
			})).Return(nil)

			doc, err := svc.Upload(context.Background(), tt.input)
			require.ErrorIs(t, err, domain.ErrUnsupportedFileType)
			require.NotNil(t, doc)
			assert.Equal(t, domain.StatusRejected, doc.Status)

			storage.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything)
			docs.AssertExpectations(t)
		})
	}
}

func TestUploadCleansUpOrphanOnCreateFailure(t *testing.T) {
	docs := new(mocks.MockDocumentRepo)
	stats := new(mocks.MockStatsRepo)
	storage := new(mocks.MockObjectStorage)
	svc := newDocumentService(docs, stats, storage)

	storage.On("Upload", mock.Anything, mock.Anything).Return(nil, nil)
	docs.On("Create", mock.Anything, mock.Anything).Return(assert.AnError)
	storage.On("Delete", mock.Anything, "ddt-corpus", mock.Anything).Return(nil)

	_, err := svc.Upload(context.Background(), pdfUpload("%PDF-1.4"))
	require.Error(t, err)
	storage.AssertCalled(t, "Delete", mock.Anything, "ddt-corpus", mock.Anything)
}

func TestGetDownloadURL(t *testing.T) {
	docs := new(mocks.MockDocumentRepo)
	stats := new(mocks.MockStatsRepo)
	storage := new(mocks.MockObjectStorage)
	svc := newDocumentService(docs, stats, storage)

	id := uuid.New()
	docs.On("GetByID", mock.Anything, id).Return(&domain.Document{
		ID: id, S3Bucket: "ddt-corpus", S3Key: "uploads/2024/03/15/abc",
	}, nil)
	storage.On("GetPresignedURL", mock.Anything, "ddt-corpus", "uploads/2024/03/15/abc", int64(900)).
		Return("https://s3.example/presigned", nil)

	url, err := svc.GetDownloadURL(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "https://s3.example/presigned", url)
}

func TestResetRequeuesAndRecomputes(t *testing.T) {
	docs := new(mocks.MockDocumentRepo)
	stats := new(mocks.MockStatsRepo)
	storage := new(mocks.MockObjectStorage)
	svc := newDocumentService(docs, stats, storage)

	id := uuid.New()
	docs.On("ResetToPending", mock.Anything, id).Return(nil)
	stats.On("Recompute", mock.Anything).Return(nil)

	require.NoError(t, svc.Reset(context.Background(), id))
	docs.AssertExpectations(t)
	stats.AssertExpectations(t)
}

func TestDeleteRemovesObjectAndRow(t *testing.T) {
	docs := new(mocks.MockDocumentRepo)
	stats := new(mocks.MockStatsRepo)
	storage := new(mocks.MockObjectStorage)
	svc := newDocumentService(docs, stats, storage)

	id := uuid.New()
	docs.On("GetByID", mock.Anything, id).Return(&domain.Document{
		ID: id, S3Bucket: "ddt-corpus", S3Key: "uploads/k",
	}, nil)
	docs.On("Delete", mock.Anything, id).Return(nil)
	storage.On("Delete", mock.Anything, "ddt-corpus", "uploads/k").Return(nil)
	stats.On("Recompute", mock.Anything).Return(nil)

	require.NoError(t, svc.Delete(context.Background(), id))
	docs.AssertExpectations(t)
	storage.AssertExpectations(t)
}
