package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ddtcorpus/internal/compare"
	"ddtcorpus/internal/domain"
	"ddtcorpus/internal/pipeline"
	"ddtcorpus/internal/schema"
	"ddtcorpus/mocks"
)

const batchRecord = `{"mittente":"Barilla S.p.A.","destinatario":"Esselunga S.p.A.","indirizzo_destinazione_completo":"Via Roma 12, 20121 Milano MI","data_documento":"2024-01-15","data_trasporto":null,"data_consegna_effettiva":null,"numero_documento":"1234/A","numero_ordine":null,"codice_cliente":null,"targa_automezzo":"AB123CD"}`

type batchFixture struct {
	docs    *mocks.MockDocumentRepo
	stats   *mocks.MockStatsRepo
	storage *mocks.MockObjectStorage
	svc     BatchService
}

func newBatchFixture() *batchFixture {
	f := &batchFixture{
		docs:    new(mocks.MockDocumentRepo),
		stats:   new(mocks.MockStatsRepo),
		storage: new(mocks.MockObjectStorage),
	}
	datalab := &mocks.MockExtractor{ProviderName: domain.ProviderDatalab}
	azure := &mocks.MockExtractor{ProviderName: domain.ProviderAzure}
	gemini := &mocks.MockExtractor{ProviderName: domain.ProviderGemini}

	out := func(provider, structured, raw string) *domain.ExtractionOutcome {
		return domain.SuccessOutcome(provider, json.RawMessage(structured), raw, time.Millisecond)
	}
	datalab.On("Extract", mock.Anything, mock.Anything).Return(out(domain.ProviderDatalab, batchRecord, "ocr"), nil)
	azure.On("Extract", mock.Anything, mock.Anything).Return(out(domain.ProviderAzure, "", "ocr"), nil)
	gemini.On("Extract", mock.Anything, mock.Anything).Return(out(domain.ProviderGemini, batchRecord, ""), nil)

	pipe := pipeline.New(f.docs, f.stats, f.storage, datalab, azure, gemini,
		compare.DefaultConfig(schema.Fields()), pipeline.Options{})
	f.svc = NewBatchService(pipe)
	return f
}

func (f *batchFixture) expectInfra() {
	f.stats.On("SetProcessing", mock.Anything, mock.Anything).Return(nil)
	f.stats.On("Apply", mock.Anything, mock.Anything).Return(nil)
	f.storage.On("Download", mock.Anything, mock.Anything, mock.Anything).Return([]byte("%PDF-1.4"), nil)
	f.docs.On("UpdateExtractionResults", mock.Anything, mock.Anything).Return(nil)
}

func claimedDoc() domain.Document {
	return domain.Document{
		ID:       uuid.New(),
		Filename: "ddt.pdf",
		S3Bucket: "bucket",
		S3Key:    "uploads/ddt.pdf",
		Status:   domain.StatusProcessing,
	}
}

func waitIdle(t *testing.T, svc BatchService) {
	t.Helper()
	require.Eventually(t, func() bool {
		summary, ok := svc.Status()
		return ok && !summary.InProgress
	}, time.Second, time.Millisecond)
}

func TestStartReportsNewRunBeforeFirstClaim(t *testing.T) {
	f := newBatchFixture()
	f.expectInfra()

	release := make(chan struct{})
	f.docs.On("ClaimPending", mock.Anything, mock.Anything).
		Return([]domain.Document{}, nil).
		Run(func(mock.Arguments) { <-release })

	summary, err := f.svc.Start(context.Background())
	require.NoError(t, err)
	assert.True(t, summary.InProgress)
	assert.Equal(t, 0, summary.Processed)

	close(release)
	waitIdle(t, f.svc)
}

func TestStartRejectsConcurrentRun(t *testing.T) {
	f := newBatchFixture()
	f.expectInfra()

	release := make(chan struct{})
	f.docs.On("ClaimPending", mock.Anything, mock.Anything).
		Return([]domain.Document{}, nil).
		Run(func(mock.Arguments) { <-release })

	_, err := f.svc.Start(context.Background())
	require.NoError(t, err)

	_, err = f.svc.Start(context.Background())
	assert.ErrorIs(t, err, pipeline.ErrRunInProgress)

	close(release)
	waitIdle(t, f.svc)
}

func TestStartSummaryExcludesPreviousRun(t *testing.T) {
	f := newBatchFixture()
	f.expectInfra()

	// First run drains one document to completion.
	f.docs.On("ClaimPending", mock.Anything, mock.Anything).
		Return([]domain.Document{claimedDoc()}, nil).Once()
	f.docs.On("ClaimPending", mock.Anything, mock.Anything).
		Return([]domain.Document{}, nil).Once()

	_, err := f.svc.Start(context.Background())
	require.NoError(t, err)
	waitIdle(t, f.svc)

	previous, ok := f.svc.Status()
	require.True(t, ok)
	require.Equal(t, 1, previous.Processed)

	// The second run's summary must start from zero, not echo the first.
	release := make(chan struct{})
	f.docs.On("ClaimPending", mock.Anything, mock.Anything).
		Return([]domain.Document{}, nil).
		Run(func(mock.Arguments) { <-release })

	summary, err := f.svc.Start(context.Background())
	require.NoError(t, err)
	assert.True(t, summary.InProgress)
	assert.Equal(t, 0, summary.Processed)
	assert.Equal(t, 0, summary.Total)

	close(release)
	waitIdle(t, f.svc)
}

func TestCancelStopsClaiming(t *testing.T) {
	f := newBatchFixture()
	f.expectInfra()

	// An endless queue: every claim yields another document until the run is
	// cancelled between claims.
	f.docs.On("ClaimPending", mock.Anything, mock.Anything).
		Return([]domain.Document{claimedDoc()}, nil)

	_, err := f.svc.Start(context.Background())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		summary, _ := f.svc.Status()
		return summary.Processed >= 1
	}, time.Second, time.Millisecond)

	f.svc.Cancel()
	waitIdle(t, f.svc)

	summary, _ := f.svc.Status()
	assert.False(t, summary.InProgress)
}

func TestCancelWithoutRunIsNoOp(t *testing.T) {
	f := newBatchFixture()
	f.svc.Cancel()

	_, ok := f.svc.Status()
	assert.False(t, ok)
}
