package core

import (
	"context"
	"fmt"
)

// Default and maximum page sizes for history listings.
const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 500
)

// ListHistory returns past imports for a school, newest first.
// An optional module narrows the listing; the module must exist.
func (s *Service) ListHistory(ctx context.Context, schoolID, moduleID string, limit int) ([]ImportHistoryEntry, error) {
	if moduleID != "" {
		if _, err := s.registry.Get(moduleID); err != nil {
			return nil, err
		}
	}

	switch {
	case limit <= 0:
		limit = DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		limit = MaxHistoryLimit
	}

	entries, err := s.history.ListHistory(ctx, HistoryFilter{
		SchoolID: schoolID,
		Module:   moduleID,
		Limit:    limit,
	})
	if err != nil {
		return nil, fmt.Errorf("list import history: %w", err)
	}
	if entries == nil {
		entries = []ImportHistoryEntry{}
	}
	return entries, nil
}
