package sqlite

import (
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/arachne/internal/common"
	"github.com/ternarybob/arachne/internal/interfaces"
)

// Manager implements the StorageManager interface over a single SQLite file
type Manager struct {
	db          *SQLiteDB
	workflows   interfaces.WorkflowStorage
	templates   interfaces.TemplateStorage
	credentials interfaces.CredentialStorage
	logs        interfaces.ExecutionLogStorage
	logger      arbor.ILogger
}

// NewManager creates a new SQLite storage manager
func NewManager(logger arbor.ILogger, config *common.SQLiteConfig) (interfaces.StorageManager, error) {
	db, err := NewSQLiteDB(logger, config)
	if err != nil {
		return nil, err
	}

	return &Manager{
		db:          db,
		workflows:   newWorkflowStorage(db, logger),
		templates:   newTemplateStorage(db, logger),
		credentials: newCredentialStorage(db, logger),
		logs:        newExecutionLogStorage(db, logger),
		logger:      logger,
	}, nil
}

// WorkflowStorage returns the workflow storage interface
func (m *Manager) WorkflowStorage() interfaces.WorkflowStorage { return m.workflows }

// TemplateStorage returns the template storage interface
func (m *Manager) TemplateStorage() interfaces.TemplateStorage { return m.templates }

// CredentialStorage returns the credential storage interface
func (m *Manager) CredentialStorage() interfaces.CredentialStorage { return m.credentials }

// ExecutionLogStorage returns the execution log storage interface
func (m *Manager) ExecutionLogStorage() interfaces.ExecutionLogStorage { return m.logs }

// Close closes the underlying database
func (m *Manager) Close() error {
	return m.db.Close()
}
