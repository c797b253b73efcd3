package file

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/arachne/internal/common"
	"github.com/ternarybob/arachne/internal/interfaces"
	"github.com/ternarybob/arachne/internal/models"
)

// workflowStorage stores each workflow as <dir>/<name>.json holding the
// serialized action array
type workflowStorage struct {
	dir     string
	locks   *keyedMutex
	factory *models.ActionFactory
	logger  arbor.ILogger
}

func newWorkflowStorage(dir string, locks *keyedMutex, logger arbor.ILogger) interfaces.WorkflowStorage {
	return &workflowStorage{
		dir:     dir,
		locks:   locks,
		factory: models.NewActionFactory(),
		logger:  logger,
	}
}

func (s *workflowStorage) path(name string) string {
	return filepath.Join(s.dir, name+".json")
}

// Save upserts the workflow's actions under the given name
func (s *workflowStorage) Save(ctx context.Context, name string, actions []*models.Action) error {
	if !models.IsValidName(name) {
		return common.NewValidationError("name", "invalid workflow name %q", name)
	}
	data, err := models.SerializeActions(actions)
	if err != nil {
		return err
	}

	unlock := s.locks.lock("workflow:" + name)
	defer unlock()

	if err := writeFileAtomic(s.path(name), data); err != nil {
		return &common.RepositoryError{Op: "save workflow " + name, Cause: err}
	}
	s.logger.Debug().Str("workflow", name).Int("actions", len(actions)).Msg("Workflow saved")
	return nil
}

// Create saves a new empty workflow; fails if the name exists
func (s *workflowStorage) Create(ctx context.Context, name string) error {
	if !models.IsValidName(name) {
		return common.NewValidationError("name", "invalid workflow name %q", name)
	}

	unlock := s.locks.lock("workflow:" + name)
	defer unlock()

	path := s.path(name)
	if _, err := os.Stat(path); err == nil {
		return &common.RepositoryError{Op: "create workflow " + name, Cause: os.ErrExist}
	}
	if err := writeFileAtomic(path, []byte("[]")); err != nil {
		return &common.RepositoryError{Op: "create workflow " + name, Cause: err}
	}
	return nil
}

// Load returns the workflow's actions, or nil if not found
func (s *workflowStorage) Load(ctx context.Context, name string) ([]*models.Action, error) {
	data, err := os.ReadFile(s.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &common.RepositoryError{Op: "load workflow " + name, Cause: err}
	}

	actions, err := s.factory.CreateFromJSON(data)
	if err != nil {
		return nil, &common.SerializationError{What: "workflow " + name, Cause: err}
	}
	return actions, nil
}

// Delete removes the workflow; returns false if it did not exist
func (s *workflowStorage) Delete(ctx context.Context, name string) (bool, error) {
	unlock := s.locks.lock("workflow:" + name)
	defer unlock()

	err := os.Remove(s.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, &common.RepositoryError{Op: "delete workflow " + name, Cause: err}
	}
	s.logger.Debug().Str("workflow", name).Msg("Workflow deleted")
	return true, nil
}

// List returns all workflow names sorted alphabetically
func (s *workflowStorage) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, &common.RepositoryError{Op: "list workflows", Cause: err}
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ".json")
		if models.IsValidName(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// GetMetadata returns listing metadata for a workflow, or nil if not found
func (s *workflowStorage) GetMetadata(ctx context.Context, name string) (*models.WorkflowMetadata, error) {
	info, err := os.Stat(s.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &common.RepositoryError{Op: "stat workflow " + name, Cause: err}
	}
	return &models.WorkflowMetadata{
		Name:       name,
		CreatedAt:  info.ModTime(),
		ModifiedAt: info.ModTime(),
		Size:       info.Size(),
	}, nil
}
