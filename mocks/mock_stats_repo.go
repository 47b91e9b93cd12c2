package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"ddtcorpus/internal/domain"
)

// MockStatsRepo is a mock implementation of port.StatsRepository.
type MockStatsRepo struct {
	mock.Mock
}

func (m *MockStatsRepo) Get(ctx context.Context) (*domain.ProcessingStats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ProcessingStats), args.Error(1)
}

func (m *MockStatsRepo) Apply(ctx context.Context, delta domain.StatsDelta) error {
	args := m.Called(ctx, delta)
	return args.Error(0)
}

func (m *MockStatsRepo) SetProcessing(ctx context.Context, processing bool) error {
	args := m.Called(ctx, processing)
	return args.Error(0)
}

func (m *MockStatsRepo) Recompute(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
