package audit

import (
	"context"
	"time"
)

// Store provides query access to the audit trail
type Store interface {
	// Search queries audit logs by filter
	Search(ctx context.Context, filter SearchFilter) ([]*Event, error)

	// Get retrieves one audit event scoped to a workspace
	Get(ctx context.Context, workspaceID, id int64) (*Event, error)

	// GetStats aggregates a workspace's audit trail
	GetStats(ctx context.Context, workspaceID int64, startTime, endTime *time.Time) (*Stats, error)

	// Export renders matching events in the given format
	Export(ctx context.Context, filter SearchFilter, format ExportFormat) ([]byte, error)
}

// DBStore implements Store over the database logger
type DBStore struct {
	logger *DBLogger
}

// NewDBStore creates a database-backed audit store
func NewDBStore(logger *DBLogger) *DBStore {
	return &DBStore{logger: logger}
}

func (s *DBStore) Search(ctx context.Context, filter SearchFilter) ([]*Event, error) {
	return s.logger.Search(ctx, filter)
}

func (s *DBStore) Get(ctx context.Context, workspaceID, id int64) (*Event, error) {
	return s.logger.Get(ctx, workspaceID, id)
}

func (s *DBStore) GetStats(ctx context.Context, workspaceID int64, startTime, endTime *time.Time) (*Stats, error) {
	return s.logger.GetStats(ctx, workspaceID, startTime, endTime)
}

func (s *DBStore) Export(ctx context.Context, filter SearchFilter, format ExportFormat) ([]byte, error) {
	events, err := s.logger.Search(ctx, filter)
	if err != nil {
		return nil, err
	}
	return Export(events, format)
}
