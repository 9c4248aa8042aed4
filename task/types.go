package task

import "time"

const (
	StatusPending    = "pending"
	StatusSent       = "sent"
	StatusReceived   = "received"
	StatusEvaluating = "evaluating"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Task is one student's assignment instance tied to a round. It is
// created by the generator, sent to the student, and later carries the
// submitted repository reference. The identifying fields never change
// after creation.
type Task struct {
	ID        string // e.g. "sum-of-sales-a1b2c"
	StudentID string // student email
	Round     int
	Nonce     string // plaintext at issue time, bcrypt hash at rest
	Brief     string
	Checks    []string // human-readable check descriptions sent to the student

	Status string

	Subm *Submission // nil until the student submits

	CreatedAt  time.Time
	SentAt     *time.Time
	ReceivedAt *time.Time
}

// Submission is the repository reference a student hands in for a task.
type Submission struct {
	RepoURL     string
	CommitSHA   string
	PagesURL    string // optional
	SubmittedAt time.Time
}
