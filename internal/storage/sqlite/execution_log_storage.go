package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/arachne/internal/common"
	"github.com/ternarybob/arachne/internal/interfaces"
	"github.com/ternarybob/arachne/internal/models"
)

// executionLogStorage implements append-only SQLite persistence for
// execution logs. Rows are inserted once and never updated.
type executionLogStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
}

func newExecutionLogStorage(db *SQLiteDB, logger arbor.ILogger) interfaces.ExecutionLogStorage {
	return &executionLogStorage{db: db, logger: logger}
}

// SaveLog persists a completed run
func (s *executionLogStorage) SaveLog(ctx context.Context, log *models.ExecutionLog) error {
	resultsJSON, err := json.Marshal(log.ActionResults)
	if err != nil {
		return &common.SerializationError{What: "execution log results", Cause: err}
	}

	query := `
		INSERT INTO execution_logs (
			id, workflow_name, start_time, end_time, duration_seconds,
			final_status, error_message, results_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.DB().ExecContext(ctx, query,
		log.ID, log.WorkflowName, log.StartTime.Unix(), log.EndTime.Unix(),
		log.DurationSeconds, string(log.FinalStatus), log.ErrorMessage, string(resultsJSON))
	if err != nil {
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
	var (
		log                 models.ExecutionLog
		startUnix, endUnix  int64
		status, resultsJSON string
		errorMessage        sql.NullString
	)
	err := s.db.DB().QueryRowContext(ctx, `
		SELECT id, workflow_name, start_time, end_time, duration_seconds,
			final_status, error_message, results_json
		FROM execution_logs WHERE id = ?`, id).
		Scan(&log.ID, &log.WorkflowName, &startUnix, &endUnix, &log.DurationSeconds,
			&status, &errorMessage, &resultsJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &common.RepositoryError{Op: "load execution log " + id, Cause: err}
	}

	log.StartTime = time.Unix(startUnix, 0)
	log.EndTime = time.Unix(endUnix, 0)
	log.FinalStatus = models.ExecutionStatus(status)
	log.ErrorMessage = errorMessage.String

	if err := json.Unmarshal([]byte(resultsJSON), &log.ActionResults); err != nil {
		return nil, &common.SerializationError{What: "execution log " + id, Cause: err}
	}
	return &log, nil
}

// ListSummaries returns summaries newest-first, optionally filtered by
// workflow name; limit <= 0 means no limit
func (s *executionLogStorage) ListSummaries(ctx context.Context, workflowName string, limit int) ([]models.ExecutionSummary, error) {
	query := `
		SELECT id, workflow_name, start_time, duration_seconds, final_status
		FROM execution_logs`
	args := []interface{}{}
	if workflowName != "" {
		query += ` WHERE workflow_name = ?`
		args = append(args, workflowName)
	}
	query += ` ORDER BY start_time DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &common.RepositoryError{Op: "list execution logs", Cause: err}
	}
	defer rows.Close()

	summaries := []models.ExecutionSummary{}
	for rows.Next() {
		var (
			summary   models.ExecutionSummary
			startUnix int64
			status    string
		)
		if err := rows.Scan(&summary.ID, &summary.WorkflowName, &startUnix, &summary.DurationSeconds, &status); err != nil {
			return nil, &common.RepositoryError{Op: "list execution logs", Cause: err}
		}
		summary.StartTime = time.Unix(startUnix, 0)
		summary.FinalStatus = models.ExecutionStatus(status)
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, &common.RepositoryError{Op: "list execution logs", Cause: err}
	}
	return summaries, nil
}
