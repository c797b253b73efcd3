package file

import (
	"context"
	"encoding/json"
	"os"
	"sort"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/arachne/internal/common"
	"github.com/ternarybob/arachne/internal/interfaces"
	"github.com/ternarybob/arachne/internal/models"
)

// credentialStorage keeps all credentials in a single JSON array file.
// Every mutation is a read-modify-write under one mutex.
type credentialStorage struct {
	path   string
	mu     sync.Mutex
	logger arbor.ILogger
}

func newCredentialStorage(path string, logger arbor.ILogger) interfaces.CredentialStorage {
	return &credentialStorage{path: path, logger: logger}
}

func (s *credentialStorage) readAll() ([]*models.Credential, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []*models.Credential{}, nil
		}
		return nil, &common.RepositoryError{Op: "read credentials", Cause: err}
	}
	if len(data) == 0 {
		return []*models.Credential{}, nil
	}

	var creds []*models.Credential
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, &common.SerializationError{What: "credentials file", Cause: err}
	}
	return creds, nil
}

func (s *credentialStorage) writeAll(creds []*models.Credential) error {
	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return &common.SerializationError{What: "credentials", Cause: err}
	}
	if err := writeFileAtomic(s.path, data); err != nil {
		return &common.RepositoryError{Op: "write credentials", Cause: err}
	}
	return nil
}

// SaveCredential upserts a credential by name
func (s *credentialStorage) SaveCredential(ctx context.Context, cred *models.Credential) error {
	if err := cred.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	creds, err := s.readAll()
	if err != nil {
		return err
	}

	replaced := false
	for i, existing := range creds {
		if existing.Name == cred.Name {
			creds[i] = cred
			replaced = true
			break
		}
	}
	if !replaced {
		creds = append(creds, cred)
	}

	if err := s.writeAll(creds); err != nil {
		return err
	}
	s.logger.Debug().Str("credential", cred.Name).Msg("Credential saved")
	return nil
}

// GetCredential returns the credential, or nil if not found
func (s *credentialStorage) GetCredential(ctx context.Context, name string) (*models.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	creds, err := s.readAll()
	if err != nil {
		return nil, err
	}
	for _, cred := range creds {
		if cred.Name == name {
			return cred, nil
		}
	}
	return nil, nil
}

// DeleteCredential removes the credential; returns false if it did not exist
func (s *credentialStorage) DeleteCredential(ctx context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	creds, err := s.readAll()
	if err != nil {
		return false, err
	}

	kept := creds[:0]
	found := false
	for _, cred := range creds {
		if cred.Name == name {
			found = true
			continue
		}
		kept = append(kept, cred)
	}
	if !found {
		return false, nil
	}
	if err := s.writeAll(kept); err != nil {
		return false, err
	}
	return true, nil
}

// ListCredentials returns all credential names sorted alphabetically
func (s *credentialStorage) ListCredentials(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	creds, err := s.readAll()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(creds))
	for _, cred := range creds {
		names = append(names, cred.Name)
	}
	sort.Strings(names)
	return names, nil
}
