package evalsrvc

import (
	"context"

	"github.com/google/uuid"
)

// EvalRepo persists evaluation records keyed by task id. Save must be
// atomic with respect to concurrent reads: a reader never observes a
// record whose status disagrees with its results.
type EvalRepo interface {
	// Save overwrites the record for rec.TaskID.
	Save(ctx context.Context, rec Evaluation) error

	// Get returns the record for a task id, ErrEvalNotFound if absent.
	Get(ctx context.Context, taskID string) (Evaluation, error)

	// GetStatus returns only the status, ErrEvalNotFound if absent.
	GetStatus(ctx context.Context, taskID string) (string, error)

	// BeginRun is the single-writer gate: it atomically claims the
	// task's record for one attempt and reports claimed=true. Claimable
	// are missing records, pending records, and running records whose
	// lease has expired; a claim stamps the attempt id and a fresh
	// lease. Final records and running records under an active lease
	// are returned unchanged with claimed=false, so no two attempts
	// ever execute checks for the same task, across processes included.
	BeginRun(ctx context.Context, taskID string, attemptID uuid.UUID) (rec Evaluation, claimed bool, err error)
}
