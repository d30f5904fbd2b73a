package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/rangealert/internal/interfaces"
	"github.com/ternarybob/rangealert/internal/models"
)

// RunStorage implements the RunStorage interface for Badger
type RunStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewRunStorage creates a new RunStorage instance
func NewRunStorage(db *BadgerDB, logger arbor.ILogger) interfaces.RunStorage {
	return &RunStorage{
		db:     db,
		logger: logger,
	}
}

func (s *RunStorage) SaveRun(ctx context.Context, run *models.SessionRun) error {
	if run.ID == "" {
		return fmt.Errorf("%w: run ID is required", models.ErrStore)
	}
	if err := s.db.Store().Upsert(run.ID, run); err != nil {
		return fmt.Errorf("%w: failed to save run: %v", models.ErrStore, err)
	}
	return nil
}

func (s *RunStorage) GetRun(ctx context.Context, id string) (*models.SessionRun, error) {
	var run models.SessionRun
	if err := s.db.Store().Get(id, &run); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("%w: run not found: %s", models.ErrStore, id)
		}
		return nil, fmt.Errorf("%w: failed to get run: %v", models.ErrStore, err)
	}
	return &run, nil
}

// ListRuns returns the most recent runs, newest first. A zero runType
// matches all types.
func (s *RunStorage) ListRuns(ctx context.Context, runType models.RunType, limit int) ([]*models.SessionRun, error) {
	query := badgerhold.Where("ID").Ne("")
	if runType != "" {
		query = badgerhold.Where("Type").Eq(runType)
	}
	query = query.SortBy("StartedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}

	var runs []models.SessionRun
	if err := s.db.Store().Find(&runs, query); err != nil {
		return nil, fmt.Errorf("%w: failed to list runs: %v", models.ErrStore, err)
	}
	result := make([]*models.SessionRun, len(runs))
	for i := range runs {
		result[i] = &runs[i]
	}
	return result, nil
}
