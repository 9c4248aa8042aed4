package evalsrvc

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repograde/backend/check"
	"github.com/repograde/backend/conf"
	"github.com/repograde/backend/repofetch"
	"github.com/repograde/backend/srvcerror"
	"github.com/repograde/backend/task"
)

// scoreRunner returns a fixed score and counts its invocations.
type scoreRunner struct {
	kind  check.Kind
	score float64
	err   error
	calls atomic.Int32
}

func (r *scoreRunner) Kind() check.Kind { return r.kind }

func (r *scoreRunner) Run(ctx context.Context, ref repofetch.Ref, cfg check.Config) (check.Result, error) {
	r.calls.Add(1)
	if r.err != nil {
		return check.Result{}, r.err
	}
	return check.Result{Passed: r.score >= 50, Score: r.score}, nil
}

func errCode(t *testing.T, err error) string {
	t.Helper()
	var srvcErr *srvcerror.Error
	require.True(t, errors.As(err, &srvcErr), "expected a service error, got %v", err)
	return srvcErr.ErrorCode()
}

func testRounds(t *testing.T) *conf.Rounds {
	t.Helper()
	rounds, err := conf.ParseRounds([]byte(`
[[round]]
number = 1
checks = ["static", "llm"]

[round.weights]
static = 0.5
llm = 0.5
`))
	require.NoError(t, err)
	return rounds
}

func submittedTask(id string) task.Task {
	return task.Task{
		ID:     id,
		Round:  1,
		Status: task.StatusReceived,
		Subm: &task.Submission{
			RepoURL:   "https://github.com/alice/widget",
			CommitSHA: "deadbeef",
		},
	}
}

func TestEvaluateAggregatesWeightedScores(t *testing.T) {
	static := &scoreRunner{kind: check.KindStatic, score: 80}
	llm := &scoreRunner{kind: check.KindLLM, score: 60}
	srvc := NewEvalSrvc(NewInMemEvalRepo(),
		check.NewRegistry(static, llm), testRounds(t))

	rec, err := srvc.Evaluate(context.Background(), submittedTask("task-1"))
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, rec.Status)
	assert.Equal(t, 70.0, rec.AggregateScore)
	require.NotNil(t, rec.CompletedAt)

	// one result per enabled kind, in round order
	require.Len(t, rec.Results, 2)
	assert.Equal(t, check.KindStatic, rec.Results[0].Kind)
	assert.Equal(t, check.KindLLM, rec.Results[1].Kind)
	assert.Equal(t, 80.0, rec.Result(check.KindStatic).Score)
	assert.Equal(t, 60.0, rec.Result(check.KindLLM).Score)
}

func TestEvaluateIsIdempotent(t *testing.T) {
	static := &scoreRunner{kind: check.KindStatic, score: 80}
	llm := &scoreRunner{kind: check.KindLLM, score: 60}
	srvc := NewEvalSrvc(NewInMemEvalRepo(),
		check.NewRegistry(static, llm), testRounds(t))

	first, err := srvc.Evaluate(context.Background(), submittedTask("task-1"))
	require.NoError(t, err)
	second, err := srvc.Evaluate(context.Background(), submittedTask("task-1"))
	require.NoError(t, err)

	assert.Equal(t, first.AttemptID, second.AttemptID)
	assert.Equal(t, first.AggregateScore, second.AggregateScore)
	assert.Equal(t, first.CompletedAt, second.CompletedAt)

	// checks ran exactly once
	assert.Equal(t, int32(1), static.calls.Load())
	assert.Equal(t, int32(1), llm.calls.Load())
}

func TestEvaluateUnreachableRepoCompletes(t *testing.T) {
	static := &scoreRunner{kind: check.KindStatic, err: repofetch.ErrUnreachable}
	llm := &scoreRunner{kind: check.KindLLM, err: repofetch.ErrUnreachable}
	srvc := NewEvalSrvc(NewInMemEvalRepo(),
		check.NewRegistry(static, llm), testRounds(t))

	rec, err := srvc.Evaluate(context.Background(), submittedTask("task-1"))
	require.NoError(t, err)

	// an unreachable repository is a verdict, not an infrastructure
	// failure
	assert.Equal(t, StatusCompleted, rec.Status)
	assert.Equal(t, 0.0, rec.AggregateScore)
	require.Len(t, rec.Results, 2)
	for _, res := range rec.Results {
		assert.False(t, res.Passed)
		assert.Equal(t, 0.0, res.Score)
		assert.Equal(t, check.FailureUnreachable, res.Failure)
	}
}

func TestEvaluateConcurrentCallsRunOnce(t *testing.T) {
	ctx := context.Background()
	static := &scoreRunner{kind: check.KindStatic, score: 80}
	llm := &scoreRunner{kind: check.KindLLM, score: 60}
	repo := NewInMemEvalRepo()
	srvc := NewEvalSrvc(repo, check.NewRegistry(static, llm), testRounds(t))

	require.NoError(t, repo.Save(ctx, Evaluation{
		TaskID:    "task-1",
		AttemptID: uuid.New(),
		Status:    StatusPending,
		CreatedAt: time.Now(),
	}))

	const callers = 8
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := srvc.Evaluate(ctx, submittedTask("task-1"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), static.calls.Load())
	assert.Equal(t, int32(1), llm.calls.Load())

	rec, err := repo.Get(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, rec.Status)
	assert.Equal(t, 70.0, rec.AggregateScore)
}

// blockingRunner holds its run open until released, so a test can keep
// an evaluation mid-flight.
type blockingRunner struct {
	kind    check.Kind
	release chan struct{}
	calls   atomic.Int32
}

func (r *blockingRunner) Kind() check.Kind { return r.kind }

func (r *blockingRunner) Run(ctx context.Context, ref repofetch.Ref, cfg check.Config) (check.Result, error) {
	r.calls.Add(1)
	select {
	case <-r.release:
	case <-ctx.Done():
		return check.Result{}, ctx.Err()
	}
	return check.Result{Passed: true, Score: 100}, nil
}

func TestEvaluateSharedStoreRunsOnceAcrossServices(t *testing.T) {
	rounds, err := conf.ParseRounds([]byte(`
[[round]]
number = 1
checks = ["static"]
`))
	require.NoError(t, err)

	// two service instances, as in two server replicas, share nothing
	// but the record store
	repo := NewInMemEvalRepo()
	runnerA := &blockingRunner{kind: check.KindStatic, release: make(chan struct{})}
	runnerB := &scoreRunner{kind: check.KindStatic, score: 100}
	srvcA := NewEvalSrvc(repo, check.NewRegistry(runnerA), rounds)
	srvcB := NewEvalSrvc(repo, check.NewRegistry(runnerB), rounds)

	done := make(chan Evaluation, 1)
	go func() {
		rec, err := srvcA.Evaluate(context.Background(), submittedTask("task-1"))
		assert.NoError(t, err)
		done <- rec
	}()
	require.Eventually(t, func() bool {
		return runnerA.calls.Load() == 1
	}, time.Second, 5*time.Millisecond)

	rec, err := srvcB.Evaluate(context.Background(), submittedTask("task-1"))
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, rec.Status)
	assert.Equal(t, int32(0), runnerB.calls.Load(),
		"second service must not start its own run while the lease is held")

	close(runnerA.release)
	final := <-done
	assert.Equal(t, StatusCompleted, final.Status)
	assert.Equal(t, 100.0, final.AggregateScore)
}

func TestEvaluateConcurrentFirstCallersAllGetRecord(t *testing.T) {
	static := &scoreRunner{kind: check.KindStatic, score: 80}
	llm := &scoreRunner{kind: check.KindLLM, score: 60}
	repo := NewInMemEvalRepo()
	srvc := NewEvalSrvc(repo, check.NewRegistry(static, llm), testRounds(t))

	// no record exists yet; losers must still get the winner's record,
	// never a not-found error
	const callers = 8
	var wg sync.WaitGroup
	recs := make([]Evaluation, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec, err := srvc.Evaluate(context.Background(), submittedTask("task-1"))
			assert.NoError(t, err)
			recs[i] = rec
		}(i)
	}
	wg.Wait()

	for _, rec := range recs {
		assert.Equal(t, "task-1", rec.TaskID)
		assert.Contains(t, []string{StatusRunning, StatusCompleted}, rec.Status)
	}
	assert.Equal(t, int32(1), static.calls.Load())
	assert.Equal(t, int32(1), llm.calls.Load())
}

func TestEvaluateCancelledRunIsResumable(t *testing.T) {
	static := &scoreRunner{kind: check.KindStatic, score: 80}
	llm := &scoreRunner{kind: check.KindLLM, score: 60}
	repo := NewInMemEvalRepo()
	srvc := NewEvalSrvc(repo, check.NewRegistry(static, llm), testRounds(t))

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := srvc.Evaluate(cancelled, submittedTask("task-1"))
	require.Error(t, err)

	// the record stays running with the lease released, so a retry can
	// claim it immediately
	stored, err := repo.Get(context.Background(), "task-1")
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, stored.Status)
	assert.True(t, stored.LeaseUntil.IsZero())

	rec, err := srvc.Evaluate(context.Background(), submittedTask("task-1"))
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, rec.Status)
	assert.Equal(t, 70.0, rec.AggregateScore)
}

func TestEvaluateWithoutSubmissionFails(t *testing.T) {
	static := &scoreRunner{kind: check.KindStatic, score: 80}
	llm := &scoreRunner{kind: check.KindLLM, score: 60}
	srvc := NewEvalSrvc(NewInMemEvalRepo(),
		check.NewRegistry(static, llm), testRounds(t))

	bare := submittedTask("task-1")
	bare.Subm = nil

	rec, err := srvc.Evaluate(context.Background(), bare)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, rec.Status)
	assert.NotEmpty(t, rec.ErrorMsg)
	require.NotNil(t, rec.CompletedAt)
}

func TestEvaluateUnknownRoundFails(t *testing.T) {
	static := &scoreRunner{kind: check.KindStatic, score: 80}
	llm := &scoreRunner{kind: check.KindLLM, score: 60}
	srvc := NewEvalSrvc(NewInMemEvalRepo(),
		check.NewRegistry(static, llm), testRounds(t))

	unknown := submittedTask("task-1")
	unknown.Round = 9

	rec, err := srvc.Evaluate(context.Background(), unknown)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, rec.Status)
	assert.Contains(t, rec.ErrorMsg, "round 9")
}

func TestEvaluateUnregisteredKindFails(t *testing.T) {
	// round enables llm, but only a static runner is registered
	static := &scoreRunner{kind: check.KindStatic, score: 80}
	srvc := NewEvalSrvc(NewInMemEvalRepo(),
		check.NewRegistry(static), testRounds(t))

	rec, err := srvc.Evaluate(context.Background(), submittedTask("task-1"))
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, rec.Status)
	assert.Contains(t, rec.ErrorMsg, "llm")
}

func TestGetStatusUnknownTaskIsNotFound(t *testing.T) {
	srvc := NewEvalSrvc(NewInMemEvalRepo(),
		check.NewRegistry(), testRounds(t))

	_, err := srvc.GetStatus(context.Background(), "no-such-task")
	require.Error(t, err)
	assert.Equal(t, ErrCodeEvalNotFound, errCode(t, err))
}

func TestAggregateNormalizesWeights(t *testing.T) {
	rounds, err := conf.ParseRounds([]byte(`
[[round]]
number = 1
checks = ["static", "llm"]

[round.weights]
static = 3.0
llm = 1.0
`))
	require.NoError(t, err)

	static := &scoreRunner{kind: check.KindStatic, score: 100}
	llm := &scoreRunner{kind: check.KindLLM, score: 0}
	srvc := NewEvalSrvc(NewInMemEvalRepo(),
		check.NewRegistry(static, llm), rounds)

	rec, err := srvc.Evaluate(context.Background(), submittedTask("task-1"))
	require.NoError(t, err)
	assert.Equal(t, 75.0, rec.AggregateScore)
}
