package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/arachne/internal/common"
	"github.com/ternarybob/arachne/internal/interfaces"
	"github.com/ternarybob/arachne/internal/models"
)

// Service triggers workflow runs on time-based criteria. Cron jobs ride on a
// shared cron runner; interval and date jobs get their own goroutine. A
// bounded semaphore caps concurrent workflow runs, and a job whose previous
// invocation is still running is skipped, not queued.
type Service struct {
	workflows interfaces.WorkflowService
	store     interfaces.JobStore // nil keeps the scheduler in-memory
	cron      *cron.Cron
	sem       chan struct{}
	logger    arbor.ILogger

	mu      sync.Mutex
	jobs    map[string]*jobEntry
	running bool

	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup
}

type jobEntry struct {
	job       interfaces.ScheduledJob
	cronID    cron.EntryID
	stop      chan struct{} // interval and date jobs only
	isRunning bool
	lastRun   *time.Time
	nextRun   *time.Time
	lastError string
}

// NewService creates a new scheduler service. workers caps concurrent runs;
// store may be nil.
func NewService(logger arbor.ILogger, workflows interfaces.WorkflowService, store interfaces.JobStore, workers int) *Service {
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		workflows:  workflows,
		store:      store,
		cron:       cron.New(),
		sem:        make(chan struct{}, workers),
		logger:     logger,
		jobs:       make(map[string]*jobEntry),
		baseCtx:    ctx,
		baseCancel: cancel,
	}
}

// Start arms all registered jobs and begins firing triggers. Jobs persisted
// in the store are reloaded first.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already started")
	}

	if s.store != nil {
		jobs, err := s.store.LoadJobs()
		if err != nil {
			return err
		}
		for _, job := range jobs {
			if _, exists := s.jobs[job.ID]; exists {
				continue
			}
			s.jobs[job.ID] = &jobEntry{job: job}
		}
		s.logger.Info().Int("jobs", len(jobs)).Msg("Scheduled jobs reloaded from store")
	}

	for id, entry := range s.jobs {
		if err := s.armLocked(entry); err != nil {
			s.logger.Warn().Err(err).Str("job_id", id).Msg("Failed to arm scheduled job")
		}
	}

	s.cron.Start()
	s.running = true
	s.logger.Info().Int("jobs", len(s.jobs)).Int("workers", cap(s.sem)).Msg("Scheduler started")
	return nil
}

// Schedule registers a job and returns its ID (generated when empty). On a
// started scheduler the trigger is armed immediately.
func (s *Service) Schedule(job interfaces.ScheduledJob) (string, error) {
	if err := validateJob(&job); err != nil {
		return "", err
	}
	if job.ID == "" {
		job.ID = common.NewJobID()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return "", common.NewValidationError("id", "job %q already scheduled", job.ID)
	}

	entry := &jobEntry{job: job}
	if s.running {
		if err := s.armLocked(entry); err != nil {
			return "", err
		}
	}
	s.jobs[job.ID] = entry

	if s.store != nil {
		if err := s.store.SaveJob(job); err != nil {
			s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to persist scheduled job")
		}
	}

	s.logger.Info().
		Str("job_id", job.ID).
		Str("workflow", job.WorkflowName).
		Str("trigger", job.TriggerType).
		Msg("Job scheduled")
	return job.ID, nil
}

// armLocked wires a job's trigger; the caller holds s.mu
func (s *Service) armLocked(entry *jobEntry) error {
	job := entry.job
	switch job.TriggerType {
	case interfaces.TriggerCron:
		id, err := s.cron.AddFunc(job.CronExpr, func() { s.fire(job.ID) })
		if err != nil {
			return common.NewValidationError("cron", "invalid cron expression %q: %v", job.CronExpr, err)
		}
		entry.cronID = id

	case interfaces.TriggerInterval:
		entry.stop = make(chan struct{})
		next := time.Now().Add(job.Interval)
		entry.nextRun = &next
		s.wg.Add(1)
		go s.runInterval(job.ID, job.Interval, entry.stop)

	case interfaces.TriggerDate:
		entry.stop = make(chan struct{})
		runAt := job.RunAt
		entry.nextRun = &runAt
		s.wg.Add(1)
		go s.runAt(job.ID, runAt, entry.stop)

	default:
		return common.NewValidationError("trigger", "unknown trigger type %q", job.TriggerType)
	}
	return nil
}

func (s *Service) runInterval(jobID string, interval time.Duration, stop chan struct{}) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.setNextRun(jobID, time.Now().Add(interval))
			s.fire(jobID)
		case <-stop:
			return
		case <-s.baseCtx.Done():
			return
		}
	}
}

func (s *Service) runAt(jobID string, runAt time.Time, stop chan struct{}) {
	defer s.wg.Done()
	delay := time.Until(runAt)
	if delay < 0 {
		delay = 0
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		s.fire(jobID)
		// One-shot: the schedule is spent once it fires
		s.Cancel(jobID)
	case <-stop:
	case <-s.baseCtx.Done():
	}
}

// fire runs a job's workflow unless the previous invocation is still going
func (s *Service) fire(jobID string) {
	s.mu.Lock()
	entry, ok := s.jobs[jobID]
	if !ok {
		s.mu.Unlock()
		return
	}
	if entry.isRunning {
		s.mu.Unlock()
		s.logger.Warn().Str("job_id", jobID).Msg("Skipping trigger: previous run still in progress")
		return
	}
	entry.isRunning = true
	job := entry.job
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		select {
		case s.sem <- struct{}{}:
			defer func() { <-s.sem }()
		case <-s.baseCtx.Done():
			s.finishRun(jobID, "", false)
			return
		}

		started := time.Now()
		log := s.workflows.Run(s.baseCtx, job.WorkflowName, interfaces.RunOptions{
			CredentialName: job.CredentialName,
			BrowserType:    job.BrowserType,
		})

		lastError := ""
		if log.FinalStatus == models.StatusFailed {
			lastError = log.ErrorMessage
		}
		s.finishRunAt(jobID, lastError, started)
	}()
}

func (s *Service) finishRun(jobID, lastError string, ran bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.jobs[jobID]; ok {
		entry.isRunning = false
		if ran {
			entry.lastError = lastError
		}
	}
}

func (s *Service) finishRunAt(jobID, lastError string, started time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.jobs[jobID]; ok {
		entry.isRunning = false
		entry.lastRun = &started
		entry.lastError = lastError
	}
}

func (s *Service) setNextRun(jobID string, next time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.jobs[jobID]; ok {
		entry.nextRun = &next
	}
}

// List returns the status of every registered job, sorted by ID
func (s *Service) List() []interfaces.JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	statuses := make([]interfaces.JobStatus, 0, len(s.jobs))
	for _, entry := range s.jobs {
		status := interfaces.JobStatus{
			Job:       entry.job,
			IsRunning: entry.isRunning,
			LastRun:   entry.lastRun,
			NextRun:   entry.nextRun,
			LastError: entry.lastError,
		}
		if entry.job.TriggerType == interfaces.TriggerCron && s.running {
			next := s.cron.Entry(entry.cronID).Next
			if !next.IsZero() {
				status.NextRun = &next
			}
		}
		statuses = append(statuses, status)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Job.ID < statuses[j].Job.ID })
	return statuses
}

// Cancel removes a job's schedule; a running invocation is not interrupted.
// Returns false if the job does not exist.
func (s *Service) Cancel(id string) bool {
	s.mu.Lock()
	entry, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.jobs, id)
	s.mu.Unlock()

	if entry.job.TriggerType == interfaces.TriggerCron {
		s.cron.Remove(entry.cronID)
	} else if entry.stop != nil {
		close(entry.stop)
	}

	if s.store != nil {
		if err := s.store.DeleteJob(id); err != nil {
			s.logger.Warn().Err(err).Str("job_id", id).Msg("Failed to remove job from store")
		}
	}

	s.logger.Info().Str("job_id", id).Msg("Job cancelled")
	return true
}

// Shutdown stops firing triggers, cancels in-flight runs and waits for them
// to record their logs
func (s *Service) Shutdown() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	s.cron.Stop()
	s.baseCancel()
	s.wg.Wait()

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to close job store")
		}
	}
	s.logger.Info().Msg("Scheduler stopped")
}

// IsRunning reports whether the scheduler has been started and not shut down
func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// validateJob checks trigger-specific requirements
func validateJob(job *interfaces.ScheduledJob) error {
	if job.WorkflowName == "" {
		return common.NewValidationError("workflow", "workflow name is required")
	}
	switch job.TriggerType {
	case interfaces.TriggerCron:
		if err := common.ValidateCronSchedule(job.CronExpr); err != nil {
			return err
		}
	case interfaces.TriggerInterval:
		if job.Interval <= 0 {
			return common.NewValidationError("interval", "interval must be positive")
		}
	case interfaces.TriggerDate:
		if job.RunAt.IsZero() {
			return common.NewValidationError("run_at", "run_at is required for date triggers")
		}
	default:
		return common.NewValidationError("trigger", "unknown trigger type %q", job.TriggerType)
	}
	return nil
}
