package interfaces

import (
	"context"

	"github.com/ternarybob/arachne/internal/models"
)

// CredentialResolver resolves credential fields for runtime typing
type CredentialResolver interface {
	ResolveForAction(ctx context.Context, name, field string) (string, error)
}

// CredentialService is the hash-on-write facade over credential storage
type CredentialService interface {
	CredentialResolver

	Create(ctx context.Context, name, username, plaintext string) error
	Verify(ctx context.Context, name, plaintext string) (bool, error)
	Get(ctx context.Context, name string) (*models.Credential, error)
	Delete(ctx context.Context, name string) (bool, error)
	List(ctx context.Context) ([]string, error)
}

// ProgressFunc receives per-leaf progress during a run. Callers supply a
// bounded-channel consumer; the engine never blocks UI state.
type ProgressFunc func(result models.ActionResult)

// RunOptions configures a single workflow run
type RunOptions struct {
	CredentialName string
	BrowserType    string
	OnProgress     ProgressFunc
}

// WorkflowService orchestrates workflow runs and exposes CRUD pass-throughs
type WorkflowService interface {
	// Run executes the named workflow and always returns an execution log;
	// failures are folded into the log, never returned as errors
	Run(ctx context.Context, name string, opts RunOptions) *models.ExecutionLog

	SaveWorkflow(ctx context.Context, name string, actions []*models.Action) error
	CreateWorkflow(ctx context.Context, name string) error
	LoadWorkflow(ctx context.Context, name string) ([]*models.Action, error)
	DeleteWorkflow(ctx context.Context, name string) (bool, error)
	ListWorkflows(ctx context.Context) ([]string, error)
	GetWorkflowMetadata(ctx context.Context, name string) (*models.WorkflowMetadata, error)

	SaveTemplate(ctx context.Context, name string, actions []*models.Action) error
	LoadTemplate(ctx context.Context, name string) ([]*models.Action, error)
	DeleteTemplate(ctx context.Context, name string) (bool, error)
	ListTemplates(ctx context.Context) ([]string, error)

	GetExecutionLog(ctx context.Context, id string) (*models.ExecutionLog, error)
	ListExecutions(ctx context.Context, workflowName string, limit int) ([]models.ExecutionSummary, error)
}
