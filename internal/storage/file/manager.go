package file

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/arachne/internal/common"
	"github.com/ternarybob/arachne/internal/interfaces"
)

// Manager implements the StorageManager interface over a directory of JSON
// files: one file per workflow, templates under templates/, credentials in a
// single array file and execution logs under logs/
type Manager struct {
	workflows   interfaces.WorkflowStorage
	templates   interfaces.TemplateStorage
	credentials interfaces.CredentialStorage
	logs        interfaces.ExecutionLogStorage
	logger      arbor.ILogger
}

// NewManager creates a new file storage manager
func NewManager(logger arbor.ILogger, config *common.FileStoreConfig) (interfaces.StorageManager, error) {
	workflowsDir := config.WorkflowsDir
	templatesDir := filepath.Join(workflowsDir, "templates")
	logsDir := filepath.Join(workflowsDir, "logs")
	credentialsPath := config.CredentialsPath

	if config.CreateIfMissing {
		for _, dir := range []string{workflowsDir, templatesDir, logsDir, filepath.Dir(credentialsPath)} {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create storage directory %s: %w", dir, err)
			}
		}
	} else {
		if _, err := os.Stat(workflowsDir); err != nil {
			return nil, fmt.Errorf("workflows directory %s is not accessible: %w", workflowsDir, err)
		}
	}

	locks := newKeyedMutex()

	m := &Manager{
		workflows:   newWorkflowStorage(workflowsDir, locks, logger),
		templates:   newTemplateStorage(templatesDir, locks, logger),
		credentials: newCredentialStorage(credentialsPath, logger),
		logs:        newExecutionLogStorage(logsDir, logger),
		logger:      logger,
	}

	logger.Info().
		Str("workflows_dir", workflowsDir).
		Str("credentials_path", credentialsPath).
		Msg("File storage initialized")

	return m, nil
}

// WorkflowStorage returns the workflow storage interface
func (m *Manager) WorkflowStorage() interfaces.WorkflowStorage { return m.workflows }

// TemplateStorage returns the template storage interface
func (m *Manager) TemplateStorage() interfaces.TemplateStorage { return m.templates }

// CredentialStorage returns the credential storage interface
func (m *Manager) CredentialStorage() interfaces.CredentialStorage { return m.credentials }

// ExecutionLogStorage returns the execution log storage interface
func (m *Manager) ExecutionLogStorage() interfaces.ExecutionLogStorage { return m.logs }

// Close is a no-op for the file backend
func (m *Manager) Close() error { return nil }
