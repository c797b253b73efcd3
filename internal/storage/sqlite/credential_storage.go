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

// credentialStorage implements SQLite persistence for credentials. Rows carry
// password hashes only.
type credentialStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
}

func newCredentialStorage(db *SQLiteDB, logger arbor.ILogger) interfaces.CredentialStorage {
	return &credentialStorage{db: db, logger: logger}
}

// SaveCredential upserts a credential by name
func (s *credentialStorage) SaveCredential(ctx context.Context, cred *models.Credential) error {
	if err := cred.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO credentials (name, username, password_hash, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			username = excluded.username,
			password_hash = excluded.password_hash,
			updated_at = excluded.updated_at`

	if _, err := s.db.DB().ExecContext(ctx, query, cred.Name, cred.Username, cred.PasswordHash, time.Now().Unix()); err != nil {
		return &common.RepositoryError{Op: "save credential " + cred.Name, Cause: err}
	}
	s.logger.Debug().Str("credential", cred.Name).Msg("Credential saved")
	return nil
}

// GetCredential returns the credential, or nil if not found
func (s *credentialStorage) GetCredential(ctx context.Context, name string) (*models.Credential, error) {
	cred := &models.Credential{Name: name}
	err := s.db.DB().QueryRowContext(ctx,
		`SELECT username, password_hash FROM credentials WHERE name = ?`, name).
		Scan(&cred.Username, &cred.PasswordHash)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &common.RepositoryError{Op: "load credential " + name, Cause: err}
	}
	return cred, nil
}

// DeleteCredential removes the credential; returns false if it did not exist
func (s *credentialStorage) DeleteCredential(ctx context.Context, name string) (bool, error) {
	result, err := s.db.DB().ExecContext(ctx, `DELETE FROM credentials WHERE name = ?`, name)
	if err != nil {
		return false, &common.RepositoryError{Op: "delete credential " + name, Cause: err}
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, &common.RepositoryError{Op: "delete credential " + name, Cause: err}
	}
	return rows > 0, nil
}

// ListCredentials returns all credential names sorted alphabetically
func (s *credentialStorage) ListCredentials(ctx context.Context) ([]string, error) {
	rows, err := s.db.DB().QueryContext(ctx, `SELECT name FROM credentials ORDER BY name`)
	if err != nil {
		return nil, &common.RepositoryError{Op: "list credentials", Cause: err}
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, &common.RepositoryError{Op: "list credentials", Cause: err}
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, &common.RepositoryError{Op: "list credentials", Cause: err}
	}
	return names, nil
}
