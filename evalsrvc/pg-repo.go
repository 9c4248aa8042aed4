package evalsrvc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/repograde/backend/check"
)

// Schema is applied by `admin db init`.
const Schema = `
CREATE TABLE IF NOT EXISTS evaluations (
	task_id text PRIMARY KEY,
	attempt_uuid uuid NOT NULL,
	status text NOT NULL,
	lease_until timestamptz NOT NULL DEFAULT 'epoch',
	aggregate_score double precision NOT NULL DEFAULT 0,
	results jsonb NOT NULL DEFAULT '[]',
	error_msg text NOT NULL DEFAULT '',
	created_at timestamptz NOT NULL,
	completed_at timestamptz
);
`

type PgEvalRepo struct {
	pool *pgxpool.Pool
}

func NewPgEvalRepo(pool *pgxpool.Pool) *PgEvalRepo {
	return &PgEvalRepo{pool: pool}
}

func CreateSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, Schema)
	if err != nil {
		return fmt.Errorf("failed to create evaluations schema: %w", err)
	}
	return nil
}

// Save upserts the whole record in one statement, so readers always
// see status and results move together.
func (r *PgEvalRepo) Save(ctx context.Context, rec Evaluation) error {
	results, err := json.Marshal(rec.Results)
	if err != nil {
		return fmt.Errorf("failed to marshal check results: %w", err)
	}

	query := `
		INSERT INTO evaluations (
			task_id, attempt_uuid, status, lease_until, aggregate_score, results, error_msg, created_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (task_id) DO UPDATE SET
			attempt_uuid = EXCLUDED.attempt_uuid,
			status = EXCLUDED.status,
			lease_until = EXCLUDED.lease_until,
			aggregate_score = EXCLUDED.aggregate_score,
			results = EXCLUDED.results,
			error_msg = EXCLUDED.error_msg,
			completed_at = EXCLUDED.completed_at
	`
	_, err = r.pool.Exec(ctx, query,
		rec.TaskID,
		rec.AttemptID,
		rec.Status,
		rec.LeaseUntil,
		rec.AggregateScore,
		results,
		rec.ErrorMsg,
		rec.CreatedAt,
		rec.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save evaluation: %w", err)
	}
	return nil
}

// Get implements EvalRepo.
func (r *PgEvalRepo) Get(ctx context.Context, taskID string) (Evaluation, error) {
	query := `
		SELECT task_id, attempt_uuid, status, lease_until, aggregate_score, results, error_msg, created_at, completed_at
		FROM evaluations
		WHERE task_id = $1
	`
	rec, err := scanEvaluation(r.pool.QueryRow(ctx, query, taskID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Evaluation{}, ErrEvalNotFound()
		}
		return Evaluation{}, fmt.Errorf("failed to get evaluation: %w", err)
	}
	return rec, nil
}

// GetStatus implements EvalRepo.
func (r *PgEvalRepo) GetStatus(ctx context.Context, taskID string) (string, error) {
	var status string
	err := r.pool.QueryRow(ctx,
		`SELECT status FROM evaluations WHERE task_id = $1`, taskID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrEvalNotFound()
		}
		return "", fmt.Errorf("failed to get evaluation status: %w", err)
	}
	return status, nil
}

// BeginRun implements EvalRepo with a row lock. The claim transition
// happens exactly once per task even across processes: a running
// record is taken over only when its lease has expired.
func (r *PgEvalRepo) BeginRun(ctx context.Context, taskID string, attemptID uuid.UUID) (Evaluation, bool, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Evaluation{}, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(context.WithoutCancel(ctx))

	now := time.Now()

	query := `
		SELECT task_id, attempt_uuid, status, lease_until, aggregate_score, results, error_msg, created_at, completed_at
		FROM evaluations
		WHERE task_id = $1
		FOR UPDATE
	`
	rec, err := scanEvaluation(tx.QueryRow(ctx, query, taskID))
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		rec = Evaluation{
			TaskID:     taskID,
			AttemptID:  attemptID,
			Status:     StatusRunning,
			LeaseUntil: now.Add(runLeaseDuration),
			CreatedAt:  now,
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO evaluations (task_id, attempt_uuid, status, lease_until, created_at)
			VALUES ($1, $2, $3, $4, $5)`,
			rec.TaskID, rec.AttemptID, rec.Status, rec.LeaseUntil, rec.CreatedAt)
		if err != nil {
			return Evaluation{}, false, fmt.Errorf("failed to create evaluation: %w", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return Evaluation{}, false, fmt.Errorf("failed to commit: %w", err)
		}
		return rec, true, nil

	case err != nil:
		return Evaluation{}, false, fmt.Errorf("failed to lock evaluation: %w", err)
	}

	claimable := rec.Status == StatusPending ||
		(rec.Status == StatusRunning && rec.LeaseUntil.Before(now))
	if !claimable {
		return rec, false, nil
	}

	rec.Status = StatusRunning
	rec.AttemptID = attemptID
	rec.LeaseUntil = now.Add(runLeaseDuration)
	_, err = tx.Exec(ctx, `
		UPDATE evaluations SET status = $1, attempt_uuid = $2, lease_until = $3 WHERE task_id = $4`,
		rec.Status, rec.AttemptID, rec.LeaseUntil, rec.TaskID)
	if err != nil {
		return Evaluation{}, false, fmt.Errorf("failed to claim evaluation: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Evaluation{}, false, fmt.Errorf("failed to commit: %w", err)
	}
	return rec, true, nil
}

func scanEvaluation(row pgx.Row) (Evaluation, error) {
	var rec Evaluation
	var results []byte
	err := row.Scan(
		&rec.TaskID,
		&rec.AttemptID,
		&rec.Status,
		&rec.LeaseUntil,
		&rec.AggregateScore,
		&results,
		&rec.ErrorMsg,
		&rec.CreatedAt,
		&rec.CompletedAt,
	)
	if err != nil {
		return Evaluation{}, err
	}
	if len(results) > 0 {
		var checkResults []check.Result
		if err := json.Unmarshal(results, &checkResults); err != nil {
			return Evaluation{}, fmt.Errorf("failed to unmarshal check results: %w", err)
		}
		rec.Results = checkResults
	}
	return rec, nil
}
