package models

import (
	"regexp"
	"time"

	"github.com/ternarybob/arachne/internal/common"
)

// namePattern restricts workflow, template and credential names to
// filesystem-safe identifiers
var namePattern = regexp.MustCompile(`^[A-Za-z0-9_\-]+$`)

// IsValidName reports whether a name is a filesystem-safe identifier
func IsValidName(name string) bool {
	return namePattern.MatchString(name)
}

// Workflow is a named ordered sequence of actions
type Workflow struct {
	Name       string    `json:"name"`
	Actions    []*Action `json:"actions"`
	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`
}

// WorkflowMetadata describes a stored workflow without loading its actions
type WorkflowMetadata struct {
	Name       string    `json:"name"`
	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`
	Size       int64     `json:"size"`
}

// Validate checks the workflow name and every action
func (w *Workflow) Validate() error {
	if !IsValidName(w.Name) {
		return common.NewValidationError("name", "workflow name %q must match [A-Za-z0-9_-]+", w.Name)
	}
	for i, action := range w.Actions {
		if action == nil {
			return common.NewValidationError("actions", "workflow %q action %d is nil", w.Name, i)
		}
		if err := action.Validate(); err != nil {
			return err
		}
	}
	return nil
}
