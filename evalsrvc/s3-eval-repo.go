package evalsrvc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3EvalRepo archives final evaluation records, one JSON object per
// attempt, keyed by task id. The relational store keeps the live
// record; S3 keeps the full history including per-check detail.
type S3EvalRepo struct {
	client     *s3.Client
	bucketName string
}

func NewS3EvalRepo(client *s3.Client, bucketName string) *S3EvalRepo {
	return &S3EvalRepo{
		client:     client,
		bucketName: bucketName,
	}
}

func (r *S3EvalRepo) Save(ctx context.Context, rec Evaluation) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal evaluation: %w", err)
	}

	key := fmt.Sprintf("%s/%s.json", rec.TaskID, rec.AttemptID.String())
	_, err = r.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(r.bucketName),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("failed to store evaluation in S3: %w", err)
	}

	return nil
}

func (r *S3EvalRepo) Get(ctx context.Context, taskID string, attemptID string) (*Evaluation, error) {
	key := fmt.Sprintf("%s/%s.json", taskID, attemptID)

	output, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get evaluation from S3: %w", err)
	}
	defer output.Body.Close()

	data, err := io.ReadAll(output.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read evaluation data: %w", err)
	}

	var rec Evaluation
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal evaluation: %w", err)
	}

	return &rec, nil
}
