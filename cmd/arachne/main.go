package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/arachne/internal/browser"
	"github.com/ternarybob/arachne/internal/common"
	"github.com/ternarybob/arachne/internal/interfaces"
	"github.com/ternarybob/arachne/internal/models"
	"github.com/ternarybob/arachne/internal/services/credentials"
	"github.com/ternarybob/arachne/internal/services/scheduler"
	"github.com/ternarybob/arachne/internal/services/workflows"
	"github.com/ternarybob/arachne/internal/storage"
	"github.com/ternarybob/arachne/internal/storage/jobstore"
)

// configPaths is a custom flag type that allows multiple -config flags
type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	configFiles  configPaths
	runWorkflow  = flag.String("run", "", "Run the named workflow once and exit")
	browserType  = flag.String("browser", "", "Browser for -run (overrides config default)")
	showVersion  = flag.Bool("version", false, "Print version information")
	showVersionV = flag.Bool("v", false, "Print version information (shorthand)")
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func main() {
	flag.Parse()

	if *showVersion || *showVersionV {
		fmt.Printf("Arachne version %s\n", common.GetVersion())
		os.Exit(0)
	}

	// Auto-discover config file if not specified
	if len(configFiles) == 0 {
		if _, err := os.Stat("arachne.toml"); err == nil {
			configFiles = append(configFiles, "arachne.toml")
		} else if _, err := os.Stat("deployments/local/arachne.toml"); err == nil {
			configFiles = append(configFiles, "deployments/local/arachne.toml")
		}
	}

	// Load configuration (defaults -> files -> env)
	config, err := common.LoadFromFiles(configFiles...)
	if err != nil {
		tempLogger := arbor.NewLogger()
		tempLogger.Fatal().Strs("paths", configFiles).Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}

	logger := common.InitLogger(config)
	common.PrintBanner(common.GetVersion())

	logger.Info().
		Strs("config_files", configFiles).
		Str("environment", config.Environment).
		Str("storage_type", config.Storage.Type).
		Msg("Configuration loaded")

	// Storage
	storageManager, err := storage.NewStorageManager(logger, config)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize storage")
		os.Exit(1)
	}
	defer storageManager.Close()

	// Services
	driverFactory := browser.NewFactory(logger, &config.Browser)
	credentialService := credentials.NewService(logger, storageManager.CredentialStorage(), &config.Security)
	workflowService := workflows.NewService(logger, storageManager, driverFactory, credentialService, config.Scheduler.MaxLoopIterations)

	if *runWorkflow != "" {
		os.Exit(runOnce(logger, workflowService, *runWorkflow, *browserType))
	}

	if !config.Scheduler.Enabled {
		logger.Fatal().Msg("Nothing to do: scheduler is disabled and no -run workflow was given")
		os.Exit(1)
	}

	// Scheduler with optional persistent job store
	var store interfaces.JobStore
	if config.Scheduler.StorePath != "" {
		bstore, err := jobstore.New(logger, config.Scheduler.StorePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to open job store")
			os.Exit(1)
		}
		store = bstore
	}

	sched := scheduler.NewService(logger, workflowService, store, config.Scheduler.Workers)
	if config.Scheduler.JobsPath != "" {
		if err := sched.LoadJobDefinitions(config.Scheduler.JobsPath); err != nil {
			logger.Fatal().Err(err).Str("dir", config.Scheduler.JobsPath).Msg("Failed to load job definitions")
			os.Exit(1)
		}
	}
	if err := sched.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start scheduler")
		os.Exit(1)
	}

	logger.Info().Msg("Scheduler running - Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("Interrupt signal received, shutting down")
	sched.Shutdown()
	logger.Info().Msg("Arachne stopped")
}

// runOnce executes a single workflow and reports its outcome as the exit code
func runOnce(logger arbor.ILogger, service interfaces.WorkflowService, name, browserType string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := service.Run(ctx, name, interfaces.RunOptions{
		BrowserType: browserType,
		OnProgress: func(result models.ActionResult) {
			logger.Info().
				Str("action", result.ActionName).
				Str("type", result.ActionType).
				Str("status", result.Status).
				Msg("Action completed")
		},
	})

	fmt.Printf("Workflow %s finished: %s (%.2fs, %d actions)\n",
		name, log.FinalStatus, log.DurationSeconds, len(log.ActionResults))
	if log.ErrorMessage != "" {
		fmt.Printf("Error: %s\n", log.ErrorMessage)
	}

	if log.FinalStatus == models.StatusSuccess {
		return 0
	}
	return 1
}
