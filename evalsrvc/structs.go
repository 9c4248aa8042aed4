package evalsrvc

import (
	"time"

	"github.com/google/uuid"

	"github.com/repograde/backend/check"
)

const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// runLeaseDuration bounds how long one attempt may hold a claimed
// record without finishing. A running record whose lease expired is
// treated as orphaned and becomes claimable again.
const runLeaseDuration = 5 * time.Minute

// Evaluation is the aggregate outcome of running all applicable checks
// for one task submission. It is created pending, mutated only by the
// orchestrator while running, and immutable once completed or failed.
type Evaluation struct {
	TaskID    string
	AttemptID uuid.UUID // distinguishes submission attempts of a task

	Status  string
	Results []check.Result // unique kinds, append-only

	// LeaseUntil is set while an attempt holds the claim on a running
	// record. Zero on pending and final records.
	LeaseUntil time.Time

	// AggregateScore is the weight-normalized combination of per-check
	// scores, populated when the evaluation completes.
	AggregateScore float64

	ErrorMsg string // set on infrastructure failure

	CreatedAt   time.Time
	CompletedAt *time.Time
}

// Final reports whether the evaluation can no longer change.
func (e Evaluation) Final() bool {
	return e.Status == StatusCompleted || e.Status == StatusFailed
}

// Result returns the check result of a kind, nil when the kind has not
// produced one.
func (e Evaluation) Result(kind check.Kind) *check.Result {
	for i := range e.Results {
		if e.Results[i].Kind == kind {
			return &e.Results[i]
		}
	}
	return nil
}
