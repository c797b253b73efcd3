package common

import (
	"github.com/google/uuid"
)

// NewExecutionID generates a unique execution log ID with the "exec_" prefix
// Format: exec_<uuid>
func NewExecutionID() string {
	return "exec_" + uuid.New().String()
}

// NewJobID generates a unique scheduler job ID with the "job_" prefix
// Format: job_<uuid>
func NewJobID() string {
	return "job_" + uuid.New().String()
}
