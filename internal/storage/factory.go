package storage

import (
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/arachne/internal/common"
	"github.com/ternarybob/arachne/internal/interfaces"
	"github.com/ternarybob/arachne/internal/storage/file"
	"github.com/ternarybob/arachne/internal/storage/sqlite"
)

// NewStorageManager creates a new storage manager based on config
func NewStorageManager(logger arbor.ILogger, config *common.Config) (interfaces.StorageManager, error) {
	switch config.Storage.Type {
	case "file", "":
		return file.NewManager(logger, &config.Storage.File)
	case "sqlite":
		return sqlite.NewManager(logger, &config.Storage.SQLite)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s (expected 'file' or 'sqlite')", config.Storage.Type)
	}
}
