package evalsrvc

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBeginRunClaimsFreshRecord(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemEvalRepo()

	attemptID, err := uuid.NewV7()
	require.NoError(t, err)

	rec, claimed, err := repo.BeginRun(ctx, "task-1", attemptID)
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Equal(t, StatusRunning, rec.Status)
	assert.Equal(t, attemptID, rec.AttemptID)
	assert.True(t, rec.LeaseUntil.After(time.Now()))

	status, err := repo.GetStatus(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, status)
}

func TestBeginRunClaimsPendingExactlyOnce(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemEvalRepo()

	attemptID, err := uuid.NewV7()
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, Evaluation{
		TaskID:    "task-1",
		AttemptID: attemptID,
		Status:    StatusPending,
		CreatedAt: time.Now(),
	}))

	const callers = 16
	var wg sync.WaitGroup
	claims := make([]bool, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, claimed, err := repo.BeginRun(ctx, "task-1", uuid.New())
			assert.NoError(t, err)
			claims[i] = claimed
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, c := range claims {
		if c {
			winners++
		}
	}
	assert.Equal(t, 1, winners)
}

func TestBeginRunDoesNotClaimActivelyLeasedRecord(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemEvalRepo()

	holder, err := uuid.NewV7()
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, Evaluation{
		TaskID:     "task-1",
		AttemptID:  holder,
		Status:     StatusRunning,
		LeaseUntil: time.Now().Add(time.Minute),
		CreatedAt:  time.Now(),
	}))

	rec, claimed, err := repo.BeginRun(ctx, "task-1", uuid.New())
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.Equal(t, StatusRunning, rec.Status)
	assert.Equal(t, holder, rec.AttemptID)
}

func TestBeginRunReclaimsExpiredLease(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemEvalRepo()

	orphan, err := uuid.NewV7()
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, Evaluation{
		TaskID:     "task-1",
		AttemptID:  orphan,
		Status:     StatusRunning,
		LeaseUntil: time.Now().Add(-time.Minute),
		CreatedAt:  time.Now().Add(-time.Hour),
	}))

	fresh, err := uuid.NewV7()
	require.NoError(t, err)
	rec, claimed, err := repo.BeginRun(ctx, "task-1", fresh)
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Equal(t, StatusRunning, rec.Status)
	assert.Equal(t, fresh, rec.AttemptID)
	assert.True(t, rec.LeaseUntil.After(time.Now()))
}

func TestBeginRunDoesNotClaimFinalRecord(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemEvalRepo()

	attemptID, err := uuid.NewV7()
	require.NoError(t, err)
	now := time.Now()
	final := Evaluation{
		TaskID:         "task-1",
		AttemptID:      attemptID,
		Status:         StatusCompleted,
		AggregateScore: 70,
		CreatedAt:      now,
		CompletedAt:    &now,
	}
	require.NoError(t, repo.Save(ctx, final))

	id, err := uuid.NewV7()
	require.NoError(t, err)
	rec, claimed, err := repo.BeginRun(ctx, "task-1", id)
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.Equal(t, StatusCompleted, rec.Status)
	assert.Equal(t, 70.0, rec.AggregateScore)
	assert.Equal(t, attemptID, rec.AttemptID)
}

func TestGetStatusUnknownTask(t *testing.T) {
	repo := NewInMemEvalRepo()
	_, err := repo.GetStatus(context.Background(), "no-such-task")
	require.Error(t, err)
	assert.Equal(t, ErrCodeEvalNotFound, errCode(t, err))
}
