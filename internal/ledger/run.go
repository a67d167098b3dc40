// Package ledger records command runs and the artifacts they write.
package ledger

import (
	"time"

	"github.com/google/uuid"
)

// Status is the state of a run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Run is one command invocation.
type Run struct {
	ID         uuid.UUID
	Command    string
	Args       []string
	Status     Status
	Error      string
	StartedAt  time.Time
	FinishedAt *time.Time
}

// Duration returns how long the run took, or zero while it is running.
func (r Run) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Artifact is a file written by a run.
type Artifact struct {
	RunID uuid.UUID
	Path  string
	Kind  string
	Rows  int
	Cols  int
}
