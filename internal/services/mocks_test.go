package services

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/mangaverse/backend/internal/catalogue"
	"github.com/mangaverse/backend/internal/models"
)

// MockCatalogue serves works from a Directory but lets tests script the
// revenue callback.
type MockCatalogue struct {
	*catalogue.Directory
	mock.Mock
}

func (m *MockCatalogue) RecordRevenue(ctx context.Context, workID string, amount models.Amount) error {
	args := m.Called(ctx, workID, amount)
	return args.Error(0)
}

// MockIdentity scripts identity lookups.
type MockIdentity struct {
	mock.Mock
}

func (m *MockIdentity) Identity(ctx context.Context, userID string) (models.Identity, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return models.Identity{}, args.Error(1)
	}
	return args.Get(0).(models.Identity), args.Error(1)
}
