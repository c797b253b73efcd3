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

// templateStorage implements SQLite persistence for templates
type templateStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
}

func newTemplateStorage(db *SQLiteDB, logger arbor.ILogger) interfaces.TemplateStorage {
	return &templateStorage{db: db, logger: logger}
}

// SaveTemplate upserts a template after validating the action payload
func (s *templateStorage) SaveTemplate(ctx context.Context, name string, actionsData string) error {
	if !models.IsValidName(name) {
		return common.NewValidationError("name", "invalid template name %q", name)
	}
	tpl := &models.Template{Name: name, ActionsData: actionsData}
	if err := tpl.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO templates (name, actions_json, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			actions_json = excluded.actions_json`

	if _, err := s.db.DB().ExecContext(ctx, query, name, actionsData, time.Now().Unix()); err != nil {
		return &common.RepositoryError{Op: "save template " + name, Cause: err}
	}
	s.logger.Debug().Str("template", name).Msg("Template saved")
	return nil
}

// LoadTemplate returns the template, or nil if not found
func (s *templateStorage) LoadTemplate(ctx context.Context, name string) (*models.Template, error) {
	var (
		actionsJSON string
		createdAt   int64
	)
	err := s.db.DB().QueryRowContext(ctx,
		`SELECT actions_json, created_at FROM templates WHERE name = ?`, name).
		Scan(&actionsJSON, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &common.RepositoryError{Op: "load template " + name, Cause: err}
	}

	return &models.Template{
		Name:        name,
		ActionsData: actionsJSON,
		CreatedAt:   time.Unix(createdAt, 0),
	}, nil
}

// DeleteTemplate removes the template; returns false if it did not exist
func (s *templateStorage) DeleteTemplate(ctx context.Context, name string) (bool, error) {
	result, err := s.db.DB().ExecContext(ctx, `DELETE FROM templates WHERE name = ?`, name)
	if err != nil {
		return false, &common.RepositoryError{Op: "delete template " + name, Cause: err}
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, &common.RepositoryError{Op: "delete template " + name, Cause: err}
	}
	return rows > 0, nil
}

// ListTemplates returns all template names sorted alphabetically
func (s *templateStorage) ListTemplates(ctx context.Context) ([]string, error) {
	rows, err := s.db.DB().QueryContext(ctx, `SELECT name FROM templates ORDER BY name`)
	if err != nil {
		return nil, &common.RepositoryError{Op: "list templates", Cause: err}
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, &common.RepositoryError{Op: "list templates", Cause: err}
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, &common.RepositoryError{Op: "list templates", Cause: err}
	}
	return names, nil
}
