package interfaces

import (
	"context"

	"github.com/ternarybob/arachne/internal/models"
)

// WorkflowStorage - interface for workflow persistence
type WorkflowStorage interface {
	// Save upserts the workflow's actions under the given name
	Save(ctx context.Context, name string, actions []*models.Action) error
	// Create saves a new empty workflow; fails if the name exists
	Create(ctx context.Context, name string) error
	// Load returns the workflow's actions, or nil if not found
	Load(ctx context.Context, name string) ([]*models.Action, error)
	// Delete removes the workflow; returns false if it did not exist
	Delete(ctx context.Context, name string) (bool, error)
	List(ctx context.Context) ([]string, error)
	GetMetadata(ctx context.Context, name string) (*models.WorkflowMetadata, error)
}

// TemplateStorage - interface for template persistence
type TemplateStorage interface {
	SaveTemplate(ctx context.Context, name string, actionsData string) error
	// LoadTemplate returns the template, or nil if not found
	LoadTemplate(ctx context.Context, name string) (*models.Template, error)
	DeleteTemplate(ctx context.Context, name string) (bool, error)
	ListTemplates(ctx context.Context) ([]string, error)
}

// CredentialStorage - interface for credential persistence. Values carry
// password hashes only; plaintext never reaches this layer.
type CredentialStorage interface {
	SaveCredential(ctx context.Context, cred *models.Credential) error
	// GetCredential returns the credential, or nil if not found
	GetCredential(ctx context.Context, name string) (*models.Credential, error)
	DeleteCredential(ctx context.Context, name string) (bool, error)
	ListCredentials(ctx context.Context) ([]string, error)
}

// ExecutionLogStorage - append-only interface for execution logs
type ExecutionLogStorage interface {
	SaveLog(ctx context.Context, log *models.ExecutionLog) error
	// GetLog returns the log, or nil if not found
	GetLog(ctx context.Context, id string) (*models.ExecutionLog, error)
	// ListSummaries returns summaries newest-first, optionally filtered by
	// workflow name; limit <= 0 means no limit
	ListSummaries(ctx context.Context, workflowName string, limit int) ([]models.ExecutionSummary, error)
}

// StorageManager - composite interface for all storage operations
type StorageManager interface {
	WorkflowStorage() WorkflowStorage
	TemplateStorage() TemplateStorage
	CredentialStorage() CredentialStorage
	ExecutionLogStorage() ExecutionLogStorage
	Close() error
}
