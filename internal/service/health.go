package service

import (
	"context"
	"fmt"

	"github.com/soundforge/generation-api/internal/store"
)

// HealthService answers liveness checks with a cheap round trip to storage.
type HealthService struct {
	store store.Store
}

func NewHealthService(store store.Store) *HealthService {
	return &HealthService{store: store}
}

func (s *HealthService) Check(ctx context.Context) error {
	if _, err := s.store.Job().Count(ctx, nil); err != nil {
		return fmt.Errorf("database not reachable: %w", err)
	}
	return nil
}
