package models

import (
	"github.com/ternarybob/arachne/internal/common"
)

// Credential is a named username/password-hash pair. The plaintext password
// is never stored.
type Credential struct {
	Name         string `json:"name"`
	Username     string `json:"username"`
	PasswordHash string `json:"password_hash"`
}

// Validate checks the credential name and required fields
func (c *Credential) Validate() error {
	if !IsValidName(c.Name) {
		return common.NewValidationError("name", "credential name %q must match [A-Za-z0-9_-]+", c.Name)
	}
	if c.Username == "" {
		return common.NewValidationError("username", "credential %q requires a username", c.Name)
	}
	if c.PasswordHash == "" {
		return common.NewValidationError("password_hash", "credential %q requires a password hash", c.Name)
	}
	return nil
}
