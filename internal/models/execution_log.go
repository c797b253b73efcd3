package models

import (
	"fmt"
	"time"
)

// ExecutionStatus is the terminal status of a workflow run
type ExecutionStatus string

// ExecutionStatus constants
const (
	StatusSuccess ExecutionStatus = "SUCCESS"
	StatusFailed  ExecutionStatus = "FAILED"
	StatusStopped ExecutionStatus = "STOPPED"
	StatusUnknown ExecutionStatus = "UNKNOWN"
)

// Per-action result statuses
const (
	ActionStatusSuccess = "success"
	ActionStatusFailed  = "failed"
)

// ActionResult records the outcome of a single leaf action
type ActionResult struct {
	ActionName string `json:"action_name"`
	ActionType string `json:"action_type"`
	Status     string `json:"status"`
	Message    string `json:"message,omitempty"`
}

// ExecutionLog is the append-only record of a single workflow run
type ExecutionLog struct {
	ID              string          `json:"id"`
	WorkflowName    string          `json:"workflow_name"`
	StartTime       time.Time       `json:"start_time"`
	EndTime         time.Time       `json:"end_time"`
	DurationSeconds float64         `json:"duration_seconds"`
	FinalStatus     ExecutionStatus `json:"final_status"`
	ErrorMessage    string          `json:"error_message,omitempty"`
	ActionResults   []ActionResult  `json:"action_results"`
}

// ExecutionSummary is the listing view of a stored execution log
type ExecutionSummary struct {
	ID              string          `json:"id"`
	WorkflowName    string          `json:"workflow_name"`
	StartTime       time.Time       `json:"start_time"`
	DurationSeconds float64         `json:"duration_seconds"`
	FinalStatus     ExecutionStatus `json:"final_status"`
}

// Filename returns the file backend name for this log:
// exec_<workflow>_<YYYYMMDD_HHMMSS>_<STATUS>.json
func (l *ExecutionLog) Filename() string {
	return fmt.Sprintf("exec_%s_%s_%s.json", l.WorkflowName, l.StartTime.Format("20060102_150405"), l.FinalStatus)
}

// Summary returns the listing view of the log
func (l *ExecutionLog) Summary() ExecutionSummary {
	return ExecutionSummary{
		ID:              l.ID,
		WorkflowName:    l.WorkflowName,
		StartTime:       l.StartTime,
		DurationSeconds: l.DurationSeconds,
		FinalStatus:     l.FinalStatus,
	}
}
