package scheduler

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ternarybob/arachne/internal/common"
	"github.com/ternarybob/arachne/internal/interfaces"
)

// jobFile is the YAML shape of a job definitions file:
//
//	jobs:
//	  - id: nightly-report
//	    workflow: daily_report
//	    trigger: cron
//	    cron: "0 6 * * *"
//	  - workflow: health_check
//	    trigger: interval
//	    interval: 15m
type jobFile struct {
	Jobs []jobDefinition `yaml:"jobs"`
}

type jobDefinition struct {
	ID         string `yaml:"id"`
	Workflow   string `yaml:"workflow"`
	Credential string `yaml:"credential"`
	Browser    string `yaml:"browser"`
	Trigger    string `yaml:"trigger"`
	Cron       string `yaml:"cron"`
	Interval   string `yaml:"interval"`
	RunAt      string `yaml:"run_at"`
}

// LoadJobDefinitions reads every *.yaml/*.yml file in dir and schedules the
// jobs they define. Files that fail to parse are skipped with a warning so
// one bad file does not block startup.
func (s *Service) LoadJobDefinitions(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Debug().Str("dir", dir).Msg("No job definitions directory")
			return nil
		}
		return fmt.Errorf("failed to read job definitions directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || (!strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml")) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	loaded := 0
	for _, name := range names {
		path := filepath.Join(dir, name)
		jobs, err := parseJobFile(path)
		if err != nil {
			s.logger.Warn().Err(err).Str("file", name).Msg("Skipping invalid job definitions file")
			continue
		}
		for _, job := range jobs {
			if _, err := s.Schedule(job); err != nil {
				s.logger.Warn().Err(err).Str("file", name).Str("workflow", job.WorkflowName).Msg("Skipping invalid job definition")
				continue
			}
			loaded++
		}
	}

	s.logger.Info().Int("jobs", loaded).Str("dir", dir).Msg("Job definitions loaded")
	return nil
}

// parseJobFile decodes one YAML file into scheduled jobs
func parseJobFile(path string) ([]interfaces.ScheduledJob, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file jobFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}

	jobs := make([]interfaces.ScheduledJob, 0, len(file.Jobs))
	for i, def := range file.Jobs {
		job, err := def.toJob()
		if err != nil {
			return nil, fmt.Errorf("job %d: %w", i, err)
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (d *jobDefinition) toJob() (interfaces.ScheduledJob, error) {
	job := interfaces.ScheduledJob{
		ID:             d.ID,
		WorkflowName:   d.Workflow,
		CredentialName: d.Credential,
		BrowserType:    d.Browser,
		TriggerType:    d.Trigger,
		CronExpr:       d.Cron,
	}

	if d.Interval != "" {
		interval, err := time.ParseDuration(d.Interval)
		if err != nil {
			return job, common.NewValidationError("interval", "invalid duration %q", d.Interval)
		}
		job.Interval = interval
	}
	if d.RunAt != "" {
		runAt, err := time.Parse(time.RFC3339, d.RunAt)
		if err != nil {
			return job, common.NewValidationError("run_at", "invalid RFC3339 timestamp %q", d.RunAt)
		}
		job.RunAt = runAt
	}
	return job, nil
}
