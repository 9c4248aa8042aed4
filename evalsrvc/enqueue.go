package evalsrvc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/google/uuid"

	"github.com/repograde/backend/logger"
	"github.com/repograde/backend/srvcerror"
	"github.com/repograde/backend/task"
)

// EvalQueue is the SQS-backed job queue for asynchronous evaluation.
type EvalQueue struct {
	sqsClient *sqs.Client
	queueURL  string
}

func NewEvalQueue(sqsClient *sqs.Client, queueURL string) *EvalQueue {
	return &EvalQueue{
		sqsClient: sqsClient,
		queueURL:  queueURL,
	}
}

type evalJob struct {
	TaskID string `json:"task_id"`
}

func (q *EvalQueue) Send(ctx context.Context, taskID string) error {
	body, err := json.Marshal(evalJob{TaskID: taskID})
	if err != nil {
		return fmt.Errorf("failed to marshal evaluation job: %w", err)
	}
	_, err = q.sqsClient.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("failed to send message to evaluation queue: %w", err)
	}
	return nil
}

// EnqueueEvaluation registers a pending record for the task and hands
// the work to the queue worker, or to a background goroutine when no
// queue is configured. Returns the record the caller should report.
func (s *EvalSrvc) EnqueueEvaluation(ctx context.Context, t task.Task) (Evaluation, error) {
	rec, err := s.repo.Get(ctx, t.ID)
	if err == nil {
		// a record already exists; evaluation is or was underway
		return rec, nil
	}
	if !isNotFound(err) {
		return Evaluation{}, ErrStoreUnavailable().SetDebug(err)
	}

	attemptID, err := uuid.NewV7()
	if err != nil {
		return Evaluation{}, fmt.Errorf("failed to generate attempt id: %w", err)
	}
	rec = Evaluation{
		TaskID:    t.ID,
		AttemptID: attemptID,
		Status:    StatusPending,
		CreatedAt: time.Now(),
	}
	if err := s.repo.Save(ctx, rec); err != nil {
		return Evaluation{}, ErrStoreUnavailable().SetDebug(err)
	}

	if s.queue != nil {
		if err := s.queue.Send(ctx, t.ID); err != nil {
			return Evaluation{}, ErrQueueUnavailable().SetDebug(err)
		}
		return rec, nil
	}

	// no queue configured: evaluate in-process, detached from the
	// request context so a disconnecting client does not abort checks
	go func() {
		bg := logger.WithTaskID(context.Background(), t.ID)
		if _, err := s.Evaluate(bg, t); err != nil {
			logger.FromContext(bg).Error("background evaluation failed", "error", err)
		}
	}()
	return rec, nil
}

func isNotFound(err error) bool {
	var srvcErr *srvcerror.Error
	if errors.As(err, &srvcErr) {
		return srvcErr.ErrorCode() == ErrCodeEvalNotFound
	}
	return false
}

// StartWorker consumes evaluation jobs from the queue until the
// context is cancelled. Messages whose evaluation fails at the
// infrastructure level stay on the queue and reappear after the
// visibility timeout.
func (s *EvalSrvc) StartWorker(ctx context.Context, tasks *task.TaskSrvc) error {
	if s.queue == nil {
		return fmt.Errorf("no evaluation queue configured")
	}
	log := logger.FromContext(ctx)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		out, err := s.queue.sqsClient.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(s.queue.queueURL),
			MaxNumberOfMessages: 5,
			WaitTimeSeconds:     10,
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error("failed to receive evaluation jobs", "error", err)
			time.Sleep(time.Second)
			continue
		}

		for _, msg := range out.Messages {
			var job evalJob
			if err := json.Unmarshal([]byte(aws.ToString(msg.Body)), &job); err != nil {
				log.Error("dropping malformed evaluation job", "error", err)
				s.ack(ctx, msg.ReceiptHandle)
				continue
			}
			if err := s.processJob(ctx, tasks, job.TaskID); err != nil {
				log.Error("evaluation job failed", "task_id", job.TaskID, "error", err)
				continue // redelivered after visibility timeout
			}
			s.ack(ctx, msg.ReceiptHandle)
		}
	}
}

func (s *EvalSrvc) processJob(ctx context.Context, tasks *task.TaskSrvc, taskID string) error {
	ctx = logger.WithTaskID(ctx, taskID)

	t, err := tasks.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if err := tasks.UpdateStatus(ctx, taskID, task.StatusEvaluating); err != nil {
		return err
	}

	rec, err := s.Evaluate(ctx, t)
	if err != nil {
		// best effort, the evaluation record carries the real state
		_ = tasks.UpdateStatus(ctx, taskID, task.StatusFailed)
		return err
	}
	if !rec.Final() {
		// another attempt holds the lease; leave the message on the
		// queue so it reappears after the visibility timeout
		return fmt.Errorf("evaluation for task %s is still in progress", taskID)
	}

	status := task.StatusCompleted
	if rec.Status == StatusFailed {
		status = task.StatusFailed
	}
	return tasks.UpdateStatus(ctx, taskID, status)
}

func (s *EvalSrvc) ack(ctx context.Context, handle *string) {
	_, err := s.queue.sqsClient.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(s.queue.queueURL),
		ReceiptHandle: handle,
	})
	if err != nil {
		logger.FromContext(ctx).Error("failed to ack evaluation job", "error", err)
	}
}
