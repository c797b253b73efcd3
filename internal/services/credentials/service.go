package credentials

import (
	"context"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/arachne/internal/common"
	"github.com/ternarybob/arachne/internal/interfaces"
	"github.com/ternarybob/arachne/internal/models"
)

// Service is the hash-on-write facade over credential storage. Plaintext
// passwords exist only transiently inside Create and Verify; storage ever
// sees the encoded hash.
type Service struct {
	storage  interfaces.CredentialStorage
	security *common.SecurityConfig
	logger   arbor.ILogger
}

// NewService creates a new credential service
func NewService(logger arbor.ILogger, storage interfaces.CredentialStorage, security *common.SecurityConfig) interfaces.CredentialService {
	return &Service{storage: storage, security: security, logger: logger}
}

// Create hashes the plaintext and stores the credential; fails if the name
// already exists
func (s *Service) Create(ctx context.Context, name, username, plaintext string) error {
	if !models.IsValidName(name) {
		return common.NewValidationError("name", "invalid credential name %q", name)
	}
	if plaintext == "" {
		return common.NewValidationError("password", "password must not be empty")
	}

	existing, err := s.storage.GetCredential(ctx, name)
	if err != nil {
		return err
	}
	if existing != nil {
		return &common.CredentialError{Name: name, Reason: "already exists"}
	}

	hash, err := hashPassword(s.security.PasswordHashMethod, s.security.PasswordSaltLength, plaintext)
	if err != nil {
		return err
	}

	cred := &models.Credential{Name: name, Username: username, PasswordHash: hash}
	if err := s.storage.SaveCredential(ctx, cred); err != nil {
		return err
	}
	s.logger.Info().Str("credential", name).Msg("Credential stored")
	return nil
}

// Verify checks a plaintext against the stored hash. An unknown name is not
// an error; it verifies as false.
func (s *Service) Verify(ctx context.Context, name, plaintext string) (bool, error) {
	cred, err := s.storage.GetCredential(ctx, name)
	if err != nil {
		return false, err
	}
	if cred == nil {
		return false, nil
	}
	return verifyPassword(cred.PasswordHash, plaintext)
}

// Get returns the stored credential, or nil if not found. The password field
// carries the hash, never plaintext.
func (s *Service) Get(ctx context.Context, name string) (*models.Credential, error) {
	return s.storage.GetCredential(ctx, name)
}

// Delete removes the credential; returns false if it did not exist
func (s *Service) Delete(ctx context.Context, name string) (bool, error) {
	return s.storage.DeleteCredential(ctx, name)
}

// List returns all credential names
func (s *Service) List(ctx context.Context) ([]string, error) {
	return s.storage.ListCredentials(ctx)
}

// ResolveForAction resolves a credential field for a type action. Password
// fields are refused: stored hashes are one-way, so there is no plaintext to
// type and pretending otherwise would put garbage into login forms.
func (s *Service) ResolveForAction(ctx context.Context, name, field string) (string, error) {
	cred, err := s.storage.GetCredential(ctx, name)
	if err != nil {
		return "", err
	}
	if cred == nil {
		return "", &common.CredentialError{Name: name, Reason: "not found"}
	}

	switch field {
	case "username":
		return cred.Username, nil
	case "password":
		return "", &common.CredentialError{Name: name, Reason: "password fields cannot be resolved: only the hash is stored"}
	default:
		return "", &common.CredentialError{Name: name, Reason: "unknown credential field " + field}
	}
}
