package file

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/arachne/internal/common"
	"github.com/ternarybob/arachne/internal/interfaces"
	"github.com/ternarybob/arachne/internal/models"
)

// templateStorage stores each template as <dir>/<name>.json holding the raw
// serialized action array
type templateStorage struct {
	dir    string
	locks  *keyedMutex
	logger arbor.ILogger
}

func newTemplateStorage(dir string, locks *keyedMutex, logger arbor.ILogger) interfaces.TemplateStorage {
	return &templateStorage{dir: dir, locks: locks, logger: logger}
}

func (s *templateStorage) path(name string) string {
	return filepath.Join(s.dir, name+".json")
}

// SaveTemplate upserts a template. The payload must decode as a valid action
// array; malformed payloads are rejected before anything touches disk.
func (s *templateStorage) SaveTemplate(ctx context.Context, name string, actionsData string) error {
	if !models.IsValidName(name) {
		return common.NewValidationError("name", "invalid template name %q", name)
	}
	tpl := &models.Template{Name: name, ActionsData: actionsData}
	if err := tpl.Validate(); err != nil {
		return err
	}

	unlock := s.locks.lock("template:" + name)
	defer unlock()

	if err := writeFileAtomic(s.path(name), []byte(actionsData)); err != nil {
		return &common.RepositoryError{Op: "save template " + name, Cause: err}
	}
	s.logger.Debug().Str("template", name).Msg("Template saved")
	return nil
}

// LoadTemplate returns the template, or nil if not found
func (s *templateStorage) LoadTemplate(ctx context.Context, name string) (*models.Template, error) {
	path := s.path(name)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &common.RepositoryError{Op: "load template " + name, Cause: err}
	}

	createdAt := time.Now()
	if info, err := os.Stat(path); err == nil {
		createdAt = info.ModTime()
	}
	return &models.Template{Name: name, ActionsData: string(data), CreatedAt: createdAt}, nil
}

// DeleteTemplate removes the template; returns false if it did not exist
func (s *templateStorage) DeleteTemplate(ctx context.Context, name string) (bool, error) {
	unlock := s.locks.lock("template:" + name)
	defer unlock()

	err := os.Remove(s.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, &common.RepositoryError{Op: "delete template " + name, Cause: err}
	}
	return true, nil
}

// ListTemplates returns all template names sorted alphabetically
func (s *templateStorage) ListTemplates(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, &common.RepositoryError{Op: "list templates", Cause: err}
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
