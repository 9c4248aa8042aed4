package http

import (
	"time"

	"github.com/repograde/backend/evalsrvc"
	"github.com/repograde/backend/task"
)

type CheckResult struct {
	Kind       string  `json:"kind"`
	Passed     bool    `json:"passed"`
	Score      float64 `json:"score"`
	Failure    string  `json:"failure,omitempty"`
	Detail     string  `json:"detail,omitempty"`
	DurationMs int64   `json:"duration_ms"`
}

type Evaluation struct {
	TaskID         string        `json:"task_id"`
	AttemptID      string        `json:"attempt_id"`
	Status         string        `json:"status"`
	AggregateScore float64       `json:"aggregate_score"`
	Results        []CheckResult `json:"results,omitempty"`
	ErrorMsg       string        `json:"error,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	CompletedAt    *time.Time    `json:"completed_at,omitempty"`
}

func mapEvaluation(rec evalsrvc.Evaluation) Evaluation {
	results := make([]CheckResult, len(rec.Results))
	for i, res := range rec.Results {
		results[i] = CheckResult{
			Kind:       string(res.Kind),
			Passed:     res.Passed,
			Score:      res.Score,
			Failure:    string(res.Failure),
			Detail:     res.Detail,
			DurationMs: res.Duration.Milliseconds(),
		}
	}
	return Evaluation{
		TaskID:         rec.TaskID,
		AttemptID:      rec.AttemptID.String(),
		Status:         rec.Status,
		AggregateScore: rec.AggregateScore,
		Results:        results,
		ErrorMsg:       rec.ErrorMsg,
		CreatedAt:      rec.CreatedAt,
		CompletedAt:    rec.CompletedAt,
	}
}

type Task struct {
	ID        string    `json:"id"`
	StudentID string    `json:"student_id"`
	Round     int       `json:"round"`
	Brief     string    `json:"brief"`
	Checks    []string  `json:"checks"`
	Status    string    `json:"status"`
	Nonce     string    `json:"nonce,omitempty"` // only populated when the task is issued
	CreatedAt time.Time `json:"created_at"`
}

func mapTask(t task.Task) Task {
	return Task{
		ID:        t.ID,
		StudentID: t.StudentID,
		Round:     t.Round,
		Brief:     t.Brief,
		Checks:    t.Checks,
		Status:    t.Status,
		CreatedAt: t.CreatedAt,
	}
}
