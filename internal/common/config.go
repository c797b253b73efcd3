package common

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Logging     LoggingConfig   `toml:"logging"`
	Storage     StorageConfig   `toml:"storage"`
	Browser     BrowserConfig   `toml:"browser"`
	Security    SecurityConfig  `toml:"security"`
	Scheduler   SchedulerConfig `toml:"scheduler"`
}

type LoggingConfig struct {
	Level  string   `toml:"level" validate:"omitempty,oneof=debug info warn error"`
	Output []string `toml:"output"` // "stdout", "file"
	File   string   `toml:"file"`   // log file path when file output is enabled
}

type StorageConfig struct {
	Type   string          `toml:"type" validate:"oneof=file sqlite"`
	File   FileStoreConfig `toml:"file"`
	SQLite SQLiteConfig    `toml:"sqlite"`
}

// FileStoreConfig configures the JSON file backend
type FileStoreConfig struct {
	WorkflowsDir    string `toml:"workflows_dir"`
	CredentialsPath string `toml:"credentials_path"`
	CreateIfMissing bool   `toml:"create_if_missing"`
}

// SQLiteConfig configures the SQLite backend
type SQLiteConfig struct {
	Path          string `toml:"path"`
	WALMode       bool   `toml:"wal_mode"`
	BusyTimeoutMS int    `toml:"busy_timeout_ms" validate:"gte=0"`
	CacheSizeMB   int    `toml:"cache_size_mb" validate:"gte=0"`
}

type BrowserConfig struct {
	Default          string `toml:"default" validate:"oneof=chrome chromium edge"`
	Headless         bool   `toml:"headless"`
	NoSandbox        bool   `toml:"no_sandbox"`
	ExecPath         string `toml:"exec_path"`         // optional browser binary path
	ImplicitWaitSecs int    `toml:"implicit_wait" validate:"gte=0"`
	UserAgent        string `toml:"user_agent"`
}

type SecurityConfig struct {
	PasswordHashMethod string `toml:"password_hash_method"`
	PasswordSaltLength int    `toml:"password_salt_length" validate:"gte=8"`
}

type SchedulerConfig struct {
	Enabled           bool   `toml:"enabled"`
	Workers           int    `toml:"workers" validate:"gte=1"`
	MaxLoopIterations int    `toml:"max_loop_iterations" validate:"gte=1"`
	JobsPath          string `toml:"jobs_path"`  // directory of YAML job definitions, optional
	StorePath         string `toml:"store_path"` // Badger job store path, empty = in-memory only
}

// NewDefaultConfig creates a configuration with default values.
// Only user-facing settings are exposed in arachne.toml; technical
// parameters are hardcoded here for production stability.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
			File:   "logs/arachne.log",
		},
		Storage: StorageConfig{
			Type: "file",
			File: FileStoreConfig{
				WorkflowsDir:    "./data/workflows",
				CredentialsPath: "./data/credentials.json",
				CreateIfMissing: true,
			},
			SQLite: SQLiteConfig{
				Path:          "./data/arachne.db",
				WALMode:       true,
				BusyTimeoutMS: 5000,
				CacheSizeMB:   64,
			},
		},
		Browser: BrowserConfig{
			Default:          "chrome",
			Headless:         true,
			NoSandbox:        false,
			ImplicitWaitSecs: 10,
			UserAgent:        "",
		},
		Security: SecurityConfig{
			PasswordHashMethod: "pbkdf2:sha256:600000",
			PasswordSaltLength: 16,
		},
		Scheduler: SchedulerConfig{
			Enabled:           true,
			Workers:           5,
			MaxLoopIterations: 1000,
		},
	}
}

// LoadFromFile loads configuration with priority: defaults -> file -> env
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration from multiple files, later files
// overriding earlier ones. Environment variables override all files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies ARACHNE_* environment variable overrides
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("ARACHNE_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	if level := os.Getenv("ARACHNE_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("ARACHNE_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	if storageType := os.Getenv("ARACHNE_STORAGE_TYPE"); storageType != "" {
		config.Storage.Type = storageType
	}
	if dir := os.Getenv("ARACHNE_WORKFLOWS_DIR"); dir != "" {
		config.Storage.File.WorkflowsDir = dir
	}
	if path := os.Getenv("ARACHNE_CREDENTIALS_PATH"); path != "" {
		config.Storage.File.CredentialsPath = path
	}
	if path := os.Getenv("ARACHNE_SQLITE_PATH"); path != "" {
		config.Storage.SQLite.Path = path
	}

	if browser := os.Getenv("ARACHNE_BROWSER"); browser != "" {
		config.Browser.Default = browser
	}
	if headless := os.Getenv("ARACHNE_BROWSER_HEADLESS"); headless != "" {
		if h, err := strconv.ParseBool(headless); err == nil {
			config.Browser.Headless = h
		}
	}
	if execPath := os.Getenv("ARACHNE_BROWSER_EXEC_PATH"); execPath != "" {
		config.Browser.ExecPath = execPath
	}
	if wait := os.Getenv("ARACHNE_IMPLICIT_WAIT"); wait != "" {
		if w, err := strconv.Atoi(wait); err == nil && w >= 0 {
			config.Browser.ImplicitWaitSecs = w
		}
	}

	if workers := os.Getenv("ARACHNE_SCHEDULER_WORKERS"); workers != "" {
		if w, err := strconv.Atoi(workers); err == nil && w > 0 {
			config.Scheduler.Workers = w
		}
	}
}

// Validate checks structural constraints plus the cross-field rules the
// validator tags cannot express
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &ConfigError{Key: fe.Namespace(), Reason: fmt.Sprintf("failed %q constraint", fe.Tag())}
		}
		return &ConfigError{Key: "config", Reason: err.Error()}
	}

	if !strings.HasPrefix(c.Security.PasswordHashMethod, "pbkdf2:sha256") {
		if c.IsProduction() {
			return &ConfigError{Key: "security.password_hash_method", Reason: "plaintext or unsupported hash methods are refused in production"}
		}
		if c.Security.PasswordHashMethod != "plain" {
			return &ConfigError{Key: "security.password_hash_method", Reason: fmt.Sprintf("unsupported method %q", c.Security.PasswordHashMethod)}
		}
	}

	return nil
}

// ValidateCronSchedule validates a standard 5-field cron expression
func ValidateCronSchedule(schedule string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", schedule, err)
	}
	return nil
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
