package workflows

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/arachne/internal/common"
	"github.com/ternarybob/arachne/internal/engine"
	"github.com/ternarybob/arachne/internal/interfaces"
	"github.com/ternarybob/arachne/internal/models"
)

// Service orchestrates workflow runs: it loads the workflow, acquires a
// fresh browser, hands both to the interpreter and persists the resulting
// execution log
type Service struct {
	storage           interfaces.StorageManager
	drivers           interfaces.DriverFactory
	credentials       interfaces.CredentialResolver
	maxLoopIterations int
	logger            arbor.ILogger
}

// NewService creates a new workflow service
func NewService(logger arbor.ILogger, storage interfaces.StorageManager, drivers interfaces.DriverFactory, credentials interfaces.CredentialResolver, maxLoopIterations int) interfaces.WorkflowService {
	return &Service{
		storage:           storage,
		drivers:           drivers,
		credentials:       credentials,
		maxLoopIterations: maxLoopIterations,
		logger:            logger,
	}
}

// Run executes the named workflow and always returns an execution log;
// failures are folded into the log, never returned as errors
func (s *Service) Run(ctx context.Context, name string, opts interfaces.RunOptions) *models.ExecutionLog {
	started := time.Now()

	actions, err := s.storage.WorkflowStorage().Load(ctx, name)
	if err != nil {
		return s.failedRun(ctx, name, started, err)
	}
	if actions == nil {
		return s.failedRun(ctx, name, started, fmt.Errorf("workflow %q not found", name))
	}

	driver, err := s.drivers.Acquire(opts.BrowserType)
	if err != nil {
		return s.failedRun(ctx, name, started, err)
	}
	defer func() {
		if err := driver.Quit(); err != nil {
			s.logger.Warn().Err(err).Str("workflow", name).Msg("Browser shutdown failed")
		}
	}()

	s.logger.Info().
		Str("workflow", name).
		Str("browser", driver.Type()).
		Msg("Workflow run started")

	interpreterOpts := []engine.Option{
		engine.WithMaxLoopIterations(s.maxLoopIterations),
	}
	if opts.CredentialName != "" {
		// Workflows reference the run's credential as ${credential}, e.g.
		// value_key "${credential}.username"
		interpreterOpts = append(interpreterOpts, engine.WithVariables(map[string]interface{}{
			"credential": opts.CredentialName,
		}))
	}
	if opts.OnProgress != nil {
		interpreterOpts = append(interpreterOpts, engine.WithProgress(opts.OnProgress))
	}

	interpreter := engine.NewInterpreter(driver, s.credentials, s.storage.TemplateStorage(), s.logger, interpreterOpts...)
	log := interpreter.Run(ctx, actions, name)

	s.saveLog(log)

	s.logger.Info().
		Str("workflow", name).
		Str("execution_id", log.ID).
		Str("status", string(log.FinalStatus)).
		Float64("duration_seconds", log.DurationSeconds).
		Msg("Workflow run finished")

	return log
}

// failedRun builds and persists a log for a run that never reached the
// interpreter
func (s *Service) failedRun(ctx context.Context, name string, started time.Time, cause error) *models.ExecutionLog {
	ended := time.Now()
	log := &models.ExecutionLog{
		ID:              common.NewExecutionID(),
		WorkflowName:    name,
		StartTime:       started,
		EndTime:         ended,
		DurationSeconds: ended.Sub(started).Seconds(),
		FinalStatus:     models.StatusFailed,
		ErrorMessage:    cause.Error(),
		ActionResults:   []models.ActionResult{},
	}

	s.logger.Warn().Err(cause).Str("workflow", name).Msg("Workflow run failed before execution")
	s.saveLog(log)
	return log
}

// saveLog persists the log on a fresh context so a cancelled run is still
// recorded
func (s *Service) saveLog(log *models.ExecutionLog) {
	saveCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.storage.ExecutionLogStorage().SaveLog(saveCtx, log); err != nil {
		s.logger.Error().Err(err).
			Str("execution_id", log.ID).
			Str("workflow", log.WorkflowName).
			Msg("Failed to persist execution log")
	}
}

// SaveWorkflow validates and upserts a workflow's actions
func (s *Service) SaveWorkflow(ctx context.Context, name string, actions []*models.Action) error {
	for _, action := range actions {
		if err := action.Validate(); err != nil {
			return err
		}
	}
	return s.storage.WorkflowStorage().Save(ctx, name, actions)
}

// CreateWorkflow creates a new empty workflow
func (s *Service) CreateWorkflow(ctx context.Context, name string) error {
	return s.storage.WorkflowStorage().Create(ctx, name)
}

// LoadWorkflow returns the workflow's actions, or nil if not found
func (s *Service) LoadWorkflow(ctx context.Context, name string) ([]*models.Action, error) {
	return s.storage.WorkflowStorage().Load(ctx, name)
}

// DeleteWorkflow removes the workflow; returns false if it did not exist
func (s *Service) DeleteWorkflow(ctx context.Context, name string) (bool, error) {
	return s.storage.WorkflowStorage().Delete(ctx, name)
}

// ListWorkflows returns all workflow names
func (s *Service) ListWorkflows(ctx context.Context) ([]string, error) {
	return s.storage.WorkflowStorage().List(ctx)
}

// GetWorkflowMetadata returns listing metadata, or nil if not found
func (s *Service) GetWorkflowMetadata(ctx context.Context, name string) (*models.WorkflowMetadata, error) {
	return s.storage.WorkflowStorage().GetMetadata(ctx, name)
}

// SaveTemplate validates and upserts a template
func (s *Service) SaveTemplate(ctx context.Context, name string, actions []*models.Action) error {
	for _, action := range actions {
		if err := action.Validate(); err != nil {
			return err
		}
	}
	data, err := models.SerializeActions(actions)
	if err != nil {
		return err
	}
	return s.storage.TemplateStorage().SaveTemplate(ctx, name, string(data))
}

// LoadTemplate returns the template's actions, or nil if not found
func (s *Service) LoadTemplate(ctx context.Context, name string) ([]*models.Action, error) {
	tpl, err := s.storage.TemplateStorage().LoadTemplate(ctx, name)
	if err != nil || tpl == nil {
		return nil, err
	}
	factory := models.NewActionFactory()
	actions, err := factory.CreateFromJSON([]byte(tpl.ActionsData))
	if err != nil {
		return nil, &common.SerializationError{What: "template " + name, Cause: err}
	}
	return actions, nil
}

// DeleteTemplate removes the template; returns false if it did not exist
func (s *Service) DeleteTemplate(ctx context.Context, name string) (bool, error) {
	return s.storage.TemplateStorage().DeleteTemplate(ctx, name)
}

// ListTemplates returns all template names
func (s *Service) ListTemplates(ctx context.Context) ([]string, error) {
	return s.storage.TemplateStorage().ListTemplates(ctx)
}

// GetExecutionLog returns a stored execution log, or nil if not found
func (s *Service) GetExecutionLog(ctx context.Context, id string) (*models.ExecutionLog, error) {
	return s.storage.ExecutionLogStorage().GetLog(ctx, id)
}

// ListExecutions returns execution summaries newest-first
func (s *Service) ListExecutions(ctx context.Context, workflowName string, limit int) ([]models.ExecutionSummary, error) {
	return s.storage.ExecutionLogStorage().ListSummaries(ctx, workflowName, limit)
}
