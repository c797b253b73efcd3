package file

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/arachne/internal/common"
	"github.com/ternarybob/arachne/internal/interfaces"
	"github.com/ternarybob/arachne/internal/models"
)

// executionLogStorage writes one JSON file per run under the logs directory,
// named exec_<workflow>_<timestamp>_<status>.json. Files are append-only.
type executionLogStorage struct {
	dir    string
	mu     sync.Mutex
	logger arbor.ILogger
}

func newExecutionLogStorage(dir string, logger arbor.ILogger) interfaces.ExecutionLogStorage {
	return &executionLogStorage{dir: dir, logger: logger}
}

// SaveLog persists a completed run. An existing file for the same run is
// never overwritten.
func (s *executionLogStorage) SaveLog(ctx context.Context, log *models.ExecutionLog) error {
	data, err := json.MarshalIndent(log, "", "  ")
	if err != nil {
		return &common.SerializationError{What: "execution log", Cause: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, log.Filename())
	if _, err := os.Stat(path); err == nil {
		return &common.RepositoryError{Op: "save execution log " + log.ID, Cause: os.ErrExist}
	}
	if err := writeFileAtomic(path, data); err != nil {
		return &common.RepositoryError{Op: "save execution log " + log.ID, Cause: err}
	}
	s.logger.Debug().
		Str("execution_id", log.ID).
		Str("workflow", log.WorkflowName).
		Str("status", string(log.FinalStatus)).
		Msg("Execution log saved")
	return nil
}

// GetLog returns the log with the given ID, or nil if not found
func (s *executionLogStorage) GetLog(ctx context.Context, id string) (*models.ExecutionLog, error) {
	logs, err := s.loadAll("")
	if err != nil {
		return nil, err
	}
	for _, log := range logs {
		if log.ID == id {
			return log, nil
		}
	}
	return nil, nil
}

// ListSummaries returns summaries newest-first, optionally filtered by
// workflow name; limit <= 0 means no limit
func (s *executionLogStorage) ListSummaries(ctx context.Context, workflowName string, limit int) ([]models.ExecutionSummary, error) {
	logs, err := s.loadAll(workflowName)
	if err != nil {
		return nil, err
	}

	sort.Slice(logs, func(i, j int) bool {
		return logs[i].StartTime.After(logs[j].StartTime)
	})

	summaries := make([]models.ExecutionSummary, 0, len(logs))
	for _, log := range logs {
		summaries = append(summaries, log.Summary())
		if limit > 0 && len(summaries) >= limit {
			break
		}
	}
	return summaries, nil
}

// loadAll reads every log file, skipping entries that do not parse
func (s *executionLogStorage) loadAll(workflowName string) ([]*models.ExecutionLog, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &common.RepositoryError{Op: "list execution logs", Cause: err}
	}

	var logs []*models.ExecutionLog
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "exec_") || !strings.HasSuffix(name, ".json") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			s.logger.Warn().Err(err).Str("file", name).Msg("Skipping unreadable execution log")
			continue
		}
		var log models.ExecutionLog
		if err := json.Unmarshal(data, &log); err != nil {
			s.logger.Warn().Err(err).Str("file", name).Msg("Skipping corrupt execution log")
			continue
		}
		if workflowName != "" && log.WorkflowName != workflowName {
			continue
		}
		logs = append(logs, &log)
	}
	return logs, nil
}
