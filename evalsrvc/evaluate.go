package evalsrvc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/repograde/backend/check"
	"github.com/repograde/backend/conf"
	"github.com/repograde/backend/logger"
	"github.com/repograde/backend/repofetch"
	"github.com/repograde/backend/task"
)

// EvalSrvc orchestrates evaluation runs: it claims the task's record,
// fans out the round's checks, aggregates their results and publishes
// the final record through the store.
type EvalSrvc struct {
	repo     EvalRepo
	registry *check.Registry
	rounds   *conf.Rounds

	archive *S3EvalRepo // optional, archives final records

	queue *EvalQueue // optional, enables Enqueue / worker mode
}

func NewEvalSrvc(repo EvalRepo, registry *check.Registry, rounds *conf.Rounds) *EvalSrvc {
	return &EvalSrvc{
		repo:     repo,
		registry: registry,
		rounds:   rounds,
	}
}

// WithArchive makes the service copy final records to S3.
func (s *EvalSrvc) WithArchive(archive *S3EvalRepo) *EvalSrvc {
	s.archive = archive
	return s
}

// WithQueue enables the SQS-backed asynchronous evaluation path.
func (s *EvalSrvc) WithQueue(queue *EvalQueue) *EvalSrvc {
	s.queue = queue
	return s
}

// Evaluate runs all applicable checks for the task's round and returns
// the final evaluation record. It is idempotent: once a task's record
// is completed or failed, later calls return it unchanged. Concurrent
// calls for the same task run the checks exactly once, across
// processes: the store-level claim in BeginRun admits a single
// attempt, and losers observe the running or final record. Orphaned
// running records (a crashed or cancelled attempt) become claimable
// again once their lease expires or is released.
func (s *EvalSrvc) Evaluate(ctx context.Context, t task.Task) (Evaluation, error) {
	log := logger.FromContext(ctx)

	attemptID, err := uuid.NewV7()
	if err != nil {
		return Evaluation{}, fmt.Errorf("failed to generate attempt id: %w", err)
	}

	rec, claimed, err := s.repo.BeginRun(ctx, t.ID, attemptID)
	if err != nil {
		return Evaluation{}, ErrStoreUnavailable().SetDebug(err)
	}
	if !claimed {
		// final record, or another attempt holds the lease
		return rec, nil
	}

	round, ok := s.rounds.Get(t.Round)
	if !ok {
		return s.fail(ctx, rec, fmt.Sprintf("no configuration for round %d", t.Round))
	}
	kinds, err := s.enabledKinds(round)
	if err != nil {
		return s.fail(ctx, rec, err.Error())
	}

	if t.Subm == nil {
		return s.fail(ctx, rec, "task has no submission to evaluate")
	}
	ref := repofetch.Ref{
		RepoURL:   t.Subm.RepoURL,
		CommitSHA: t.Subm.CommitSHA,
		PagesURL:  t.Subm.PagesURL,
	}

	log.Info("evaluation started",
		"task_id", t.ID, "round", t.Round, "checks", len(kinds))

	results := s.runChecks(ctx, round, kinds, ref, t)

	if ctx.Err() != nil {
		// Leave the record running but release the lease, so a retry
		// can claim it immediately instead of waiting out the lease.
		rec.LeaseUntil = time.Time{}
		if err := s.repo.Save(context.WithoutCancel(ctx), rec); err != nil {
			log.Warn("failed to release evaluation lease",
				"task_id", t.ID, "error", err)
		}
		return rec, ctx.Err()
	}

	now := time.Now()
	rec.Results = results
	rec.Status = StatusCompleted
	rec.AggregateScore = aggregate(results, round)
	rec.LeaseUntil = time.Time{}
	rec.CompletedAt = &now

	if err := s.repo.Save(ctx, rec); err != nil {
		return Evaluation{}, ErrStoreUnavailable().SetDebug(err)
	}
	s.archiveFinal(ctx, rec)

	log.Info("evaluation completed",
		"task_id", t.ID, "score", rec.AggregateScore)
	return rec, nil
}

// enabledKinds resolves the round's check list against the registry.
// A kind without a registered runner is an infrastructure problem, not
// a check verdict.
func (s *EvalSrvc) enabledKinds(round conf.Round) ([]check.Kind, error) {
	kinds := make([]check.Kind, 0, len(round.Checks))
	for _, name := range round.Checks {
		kind, err := check.ParseKind(name)
		if err != nil {
			return nil, err
		}
		if s.registry.Get(kind) == nil {
			return nil, fmt.Errorf("no runner registered for check kind %q", kind)
		}
		kinds = append(kinds, kind)
	}
	return kinds, nil
}

// runChecks executes the enabled checks concurrently, bounded by the
// round's concurrency limit. Results come back in the round's check
// order regardless of completion order.
func (s *EvalSrvc) runChecks(ctx context.Context, round conf.Round, kinds []check.Kind, ref repofetch.Ref, t task.Task) []check.Result {
	results := make([]check.Result, len(kinds))
	sem := make(chan struct{}, round.Concurrency)
	var wg sync.WaitGroup

	for i, kind := range kinds {
		wg.Add(1)
		go func(i int, kind check.Kind) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}
			cfg := s.checkConfig(round, kind, t)
			results[i] = check.Guarded(ctx, s.registry.Get(kind), ref, cfg)
		}(i, kind)
	}
	wg.Wait()
	return results
}

func (s *EvalSrvc) checkConfig(round conf.Round, kind check.Kind, t task.Task) check.Config {
	cfg := check.Config{
		Rubric: t.Checks,
	}
	if kind == check.KindDynamic {
		cfg.RunCommand = round.RunCmd
	}
	if ms := round.Timeout(string(kind)); ms > 0 {
		cfg.Timeout = time.Duration(ms) * time.Millisecond
	}
	return cfg
}

// aggregate combines per-check scores into one weight-normalized score.
func aggregate(results []check.Result, round conf.Round) float64 {
	var sum, weights float64
	for _, res := range results {
		w := round.Weight(string(res.Kind))
		sum += w * res.Score
		weights += w
	}
	if weights == 0 {
		return 0
	}
	return sum / weights
}

// fail publishes an infrastructure failure: the orchestrator could not
// obtain a result for every required check kind.
func (s *EvalSrvc) fail(ctx context.Context, rec Evaluation, msg string) (Evaluation, error) {
	now := time.Now()
	rec.Status = StatusFailed
	rec.ErrorMsg = msg
	rec.LeaseUntil = time.Time{}
	rec.CompletedAt = &now
	if err := s.repo.Save(ctx, rec); err != nil {
		return Evaluation{}, ErrStoreUnavailable().SetDebug(err)
	}
	s.archiveFinal(ctx, rec)
	return rec, nil
}

func (s *EvalSrvc) archiveFinal(ctx context.Context, rec Evaluation) {
	if s.archive == nil {
		return
	}
	if err := s.archive.Save(ctx, rec); err != nil {
		logger.FromContext(ctx).Warn("failed to archive evaluation",
			"task_id", rec.TaskID, "error", err)
	}
}

// Get returns the evaluation record for a task id.
func (s *EvalSrvc) Get(ctx context.Context, taskID string) (Evaluation, error) {
	return s.repo.Get(ctx, taskID)
}

// GetStatus returns only the evaluation status for a task id.
func (s *EvalSrvc) GetStatus(ctx context.Context, taskID string) (string, error) {
	return s.repo.GetStatus(ctx, taskID)
}
