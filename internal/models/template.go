package models

import (
	"time"

	"github.com/ternarybob/arachne/internal/common"
)

// Template is a named ordered sequence of actions stored in serialized form.
// Templates are expanded by the interpreter at execution time, not nested by
// reference in the action model.
type Template struct {
	Name        string    `json:"name"`
	ActionsData string    `json:"actions_data"` // JSON array of serialized actions
	CreatedAt   time.Time `json:"created_at"`
}

// Validate checks the template name and that the stored actions decode and
// validate
func (t *Template) Validate() error {
	if !IsValidName(t.Name) {
		return common.NewValidationError("name", "template name %q must match [A-Za-z0-9_-]+", t.Name)
	}
	factory := NewActionFactory()
	if _, err := factory.CreateFromJSON([]byte(t.ActionsData)); err != nil {
		return err
	}
	return nil
}
