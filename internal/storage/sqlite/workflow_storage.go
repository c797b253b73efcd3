package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/arachne/internal/common"
	"github.com/ternarybob/arachne/internal/interfaces"
	"github.com/ternarybob/arachne/internal/models"
)

// workflowStorage implements SQLite persistence for workflows
type workflowStorage struct {
	db      *SQLiteDB
	factory *models.ActionFactory
	logger  arbor.ILogger
}

func newWorkflowStorage(db *SQLiteDB, logger arbor.ILogger) interfaces.WorkflowStorage {
	return &workflowStorage{
		db:      db,
		factory: models.NewActionFactory(),
		logger:  logger,
	}
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

	now := time.Now().Unix()
	query := `
		INSERT INTO workflows (name, actions_json, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			actions_json = excluded.actions_json,
			updated_at = excluded.updated_at`

	if _, err := s.db.DB().ExecContext(ctx, query, name, string(data), now, now); err != nil {
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

	now := time.Now().Unix()
	query := `INSERT INTO workflows (name, actions_json, created_at, updated_at) VALUES (?, '[]', ?, ?)`
	if _, err := s.db.DB().ExecContext(ctx, query, name, now, now); err != nil {
		return &common.RepositoryError{Op: "create workflow " + name, Cause: err}
	}
	return nil
}

// Load returns the workflow's actions, or nil if not found
func (s *workflowStorage) Load(ctx context.Context, name string) ([]*models.Action, error) {
	var actionsJSON string
	err := s.db.DB().QueryRowContext(ctx,
		`SELECT actions_json FROM workflows WHERE name = ?`, name).Scan(&actionsJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &common.RepositoryError{Op: "load workflow " + name, Cause: err}
	}

	actions, err := s.factory.CreateFromJSON([]byte(actionsJSON))
	if err != nil {
		return nil, &common.SerializationError{What: "workflow " + name, Cause: err}
	}
	return actions, nil
}

// Delete removes the workflow; returns false if it did not exist
func (s *workflowStorage) Delete(ctx context.Context, name string) (bool, error) {
	result, err := s.db.DB().ExecContext(ctx, `DELETE FROM workflows WHERE name = ?`, name)
	if err != nil {
		return false, &common.RepositoryError{Op: "delete workflow " + name, Cause: err}
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, &common.RepositoryError{Op: "delete workflow " + name, Cause: err}
	}
	return rows > 0, nil
}

// List returns all workflow names sorted alphabetically
func (s *workflowStorage) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.DB().QueryContext(ctx, `SELECT name FROM workflows ORDER BY name`)
	if err != nil {
		return nil, &common.RepositoryError{Op: "list workflows", Cause: err}
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, &common.RepositoryError{Op: "list workflows", Cause: err}
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, &common.RepositoryError{Op: "list workflows", Cause: err}
	}
	return names, nil
}

// GetMetadata returns listing metadata for a workflow, or nil if not found
func (s *workflowStorage) GetMetadata(ctx context.Context, name string) (*models.WorkflowMetadata, error) {
	var (
		actionsJSON          string
		createdAt, updatedAt int64
	)
	err := s.db.DB().QueryRowContext(ctx,
		`SELECT actions_json, created_at, updated_at FROM workflows WHERE name = ?`, name).
		Scan(&actionsJSON, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &common.RepositoryError{Op: "stat workflow " + name, Cause: err}
	}

	return &models.WorkflowMetadata{
		Name:       name,
		CreatedAt:  time.Unix(createdAt, 0),
		ModifiedAt: time.Unix(updatedAt, 0),
		Size:       int64(len(actionsJSON)),
	}, nil
}
