package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"ddtcorpus/internal/domain"
	"ddtcorpus/internal/port"
)

// MockExtractor is a mock implementation of port.Extractor.
type MockExtractor struct {
	mock.Mock
	ProviderName string
}

func (m *MockExtractor) Name() string {
	if m.ProviderName != "" {
		return m.ProviderName
	}
	return "mock"
}

func (m *MockExtractor) Extract(ctx context.Context, input port.ExtractInput) (*domain.ExtractionOutcome, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ExtractionOutcome), args.Error(1)
}
