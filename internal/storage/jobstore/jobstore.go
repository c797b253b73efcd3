package jobstore

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/arachne/internal/common"
	"github.com/ternarybob/arachne/internal/interfaces"
)

// Store persists scheduled jobs in a Badger database so schedules survive
// restarts
type Store struct {
	store  *badgerhold.Store
	logger arbor.ILogger
}

// New opens (or creates) the job store at the given path
func New(logger arbor.ILogger, path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create job store directory: %w", err)
	}

	options := badgerhold.DefaultOptions
	options.Dir = path
	options.ValueDir = path
	options.Logger = nil // Disable default badger logger to use arbor

	store, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open job store: %w", err)
	}

	logger.Debug().Str("path", path).Msg("Job store initialized")
	return &Store{store: store, logger: logger}, nil
}

// SaveJob upserts a scheduled job by ID
func (s *Store) SaveJob(job interfaces.ScheduledJob) error {
	if err := s.store.Upsert(job.ID, &job); err != nil {
		return &common.RepositoryError{Op: "save scheduled job " + job.ID, Cause: err}
	}
	return nil
}

// DeleteJob removes a scheduled job. Deleting a missing job is not an error.
func (s *Store) DeleteJob(id string) error {
	err := s.store.Delete(id, &interfaces.ScheduledJob{})
	if err != nil && err != badgerhold.ErrNotFound {
		return &common.RepositoryError{Op: "delete scheduled job " + id, Cause: err}
	}
	return nil
}

// LoadJobs returns all persisted jobs
func (s *Store) LoadJobs() ([]interfaces.ScheduledJob, error) {
	var jobs []interfaces.ScheduledJob
	if err := s.store.Find(&jobs, nil); err != nil {
		return nil, &common.RepositoryError{Op: "load scheduled jobs", Cause: err}
	}
	return jobs, nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	if s.store != nil {
		return s.store.Close()
	}
	return nil
}
