package interfaces

import "time"

// Trigger kinds for scheduled jobs
const (
	TriggerCron     = "cron"
	TriggerInterval = "interval"
	TriggerDate     = "date"
)

// ScheduledJob binds a workflow to a time-based trigger
type ScheduledJob struct {
	ID             string        `json:"id" yaml:"id" badgerhold:"key"`
	WorkflowName   string        `json:"workflow_name" yaml:"workflow" validate:"required"`
	CredentialName string        `json:"credential_name,omitempty" yaml:"credential,omitempty"`
	BrowserType    string        `json:"browser_type,omitempty" yaml:"browser,omitempty"`
	TriggerType    string        `json:"trigger_type" yaml:"trigger" validate:"required,oneof=cron interval date"`
	CronExpr       string        `json:"cron_expr,omitempty" yaml:"cron,omitempty"`
	Interval       time.Duration `json:"interval,omitempty" yaml:"interval,omitempty"`
	RunAt          time.Time     `json:"run_at,omitempty" yaml:"run_at,omitempty"`
}

// JobStatus is the listing view of a scheduled job
type JobStatus struct {
	Job       ScheduledJob `json:"job"`
	IsRunning bool         `json:"is_running"`
	LastRun   *time.Time   `json:"last_run,omitempty"`
	NextRun   *time.Time   `json:"next_run,omitempty"`
	LastError string       `json:"last_error,omitempty"`
}

// SchedulerService triggers workflow runs on time-based criteria
type SchedulerService interface {
	Start() error
	// Schedule registers a job and returns its ID (generated when empty)
	Schedule(job ScheduledJob) (string, error)
	List() []JobStatus
	// Cancel removes a job's schedule; a running invocation is not
	// interrupted. Returns false if the job does not exist.
	Cancel(id string) bool
	Shutdown()
	IsRunning() bool
}

// JobStore persists scheduled jobs across restarts. A nil store keeps the
// scheduler purely in-memory.
type JobStore interface {
	SaveJob(job ScheduledJob) error
	DeleteJob(id string) error
	LoadJobs() ([]ScheduledJob, error)
	Close() error
}
