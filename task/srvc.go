package task

import (
	"context"
	"time"

	"goa.design/clue/log"
	"golang.org/x/crypto/bcrypt"
)

// TaskRepo is the persistence boundary of the task service. The
// DynamoDB table and the in-memory repo both satisfy it.
type TaskRepo interface {
	GetTask(ctx context.Context, id string) (*Task, error)
	SaveTask(ctx context.Context, t Task) error
	ListTasks(ctx context.Context) ([]Task, error)
}

type TaskSrvc struct {
	repo TaskRepo
}

func NewTaskSrvc(repo TaskRepo) *TaskSrvc {
	return &TaskSrvc{repo: repo}
}

// IssueTasks generates one task per student from the template and
// stores them in pending state. The stored task carries only a bcrypt
// hash of the submission nonce; the plaintext nonce is returned once
// here so it can be delivered to the student.
func (s *TaskSrvc) IssueTasks(ctx context.Context, tmpl Template, students []string, round int, date string) ([]Task, error) {
	log.Printf(ctx, "task.issueTasks template=%s round=%d students=%d", tmpl.ID, round, len(students))
	tasks := make([]Task, 0, len(students))
	for _, student := range students {
		t, err := tmpl.Generate(student, round, Seed(student, date))
		if err != nil {
			return nil, err
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(t.Nonce), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		stored := t
		stored.Nonce = string(hash)
		if err := s.repo.SaveTask(ctx, stored); err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

func (s *TaskSrvc) GetTask(ctx context.Context, id string) (Task, error) {
	t, err := s.repo.GetTask(ctx, id)
	if err != nil {
		return Task{}, ErrTaskNotFound().SetDebug(err)
	}
	if t == nil {
		return Task{}, ErrTaskNotFound()
	}
	return *t, nil
}

func (s *TaskSrvc) ListTasks(ctx context.Context) ([]Task, error) {
	log.Printf(ctx, "task.listTasks")
	return s.repo.ListTasks(ctx)
}

// MarkSent records that the task brief was delivered to the student.
func (s *TaskSrvc) MarkSent(ctx context.Context, id string) error {
	t, err := s.GetTask(ctx, id)
	if err != nil {
		return err
	}
	now := time.Now()
	t.Status = StatusSent
	t.SentAt = &now
	return s.repo.SaveTask(ctx, t)
}

// AttachSubmission validates the nonce, stores the submitted repository
// reference on the task and moves it to received state. Repeat
// submissions while the task still accepts them replace the previous
// reference.
func (s *TaskSrvc) AttachSubmission(ctx context.Context, id string, nonce string, subm Submission) (Task, error) {
	t, err := s.GetTask(ctx, id)
	if err != nil {
		return Task{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(t.Nonce), []byte(nonce)) != nil {
		return Task{}, ErrInvalidNonce()
	}
	if t.Status != StatusSent && t.Status != StatusReceived {
		return Task{}, ErrTaskWrongState()
	}

	now := time.Now()
	subm.SubmittedAt = now
	t.Subm = &subm
	t.Status = StatusReceived
	t.ReceivedAt = &now

	if err := s.repo.SaveTask(ctx, t); err != nil {
		return Task{}, err
	}
	log.Printf(ctx, "task.attachSubmission id=%s repo=%s", t.ID, subm.RepoURL)
	return t, nil
}

// UpdateStatus transitions the task lifecycle status. Used by the
// evaluation worker around an evaluation run.
func (s *TaskSrvc) UpdateStatus(ctx context.Context, id string, status string) error {
	t, err := s.GetTask(ctx, id)
	if err != nil {
		return err
	}
	t.Status = status
	return s.repo.SaveTask(ctx, t)
}
