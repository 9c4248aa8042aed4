package evalsrvc

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
)

// InMemEvalRepo keeps evaluation records in memory. Reference
// implementation of the store contract; also used by tests and by the
// server when no Postgres connection is configured.
type InMemEvalRepo struct {
	evals *xsync.MapOf[string, Evaluation]
}

func NewInMemEvalRepo() *InMemEvalRepo {
	return &InMemEvalRepo{
		evals: xsync.NewMapOf[string, Evaluation](),
	}
}

// Save implements EvalRepo. Records are stored by value, so readers
// always observe one consistent snapshot.
func (m *InMemEvalRepo) Save(ctx context.Context, rec Evaluation) error {
	m.evals.Store(rec.TaskID, rec)
	return nil
}

// Get implements EvalRepo
func (m *InMemEvalRepo) Get(ctx context.Context, taskID string) (Evaluation, error) {
	rec, ok := m.evals.Load(taskID)
	if !ok {
		return Evaluation{}, ErrEvalNotFound()
	}
	return rec, nil
}

// GetStatus implements EvalRepo
func (m *InMemEvalRepo) GetStatus(ctx context.Context, taskID string) (string, error) {
	rec, ok := m.evals.Load(taskID)
	if !ok {
		return "", ErrEvalNotFound()
	}
	return rec.Status, nil
}

// BeginRun implements EvalRepo. Compute runs its closure atomically
// per key, which makes the claim a compare-and-set: concurrent callers
// for the same task see exactly one winner.
func (m *InMemEvalRepo) BeginRun(ctx context.Context, taskID string, attemptID uuid.UUID) (Evaluation, bool, error) {
	claimed := false
	now := time.Now()
	rec, _ := m.evals.Compute(taskID,
		func(old Evaluation, loaded bool) (Evaluation, bool) {
			claimable := !loaded ||
				old.Status == StatusPending ||
				(old.Status == StatusRunning && old.LeaseUntil.Before(now))
			if !claimable {
				return old, false
			}
			fresh := old
			if !loaded {
				fresh = Evaluation{
					TaskID:    taskID,
					CreatedAt: now,
				}
			}
			fresh.AttemptID = attemptID
			fresh.Status = StatusRunning
			fresh.LeaseUntil = now.Add(runLeaseDuration)
			claimed = true
			return fresh, false
		})
	return rec, claimed, nil
}
