package task

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/guregu/dynamo/v2"
)

// TaskRow is the DynamoDB shape of a task.
type TaskRow struct {
	ID        string   `dynamo:"TaskID,hash"` // Primary key
	StudentID string   `dynamo:"StudentID"`
	Round     int      `dynamo:"Round"`
	Nonce     string   `dynamo:"Nonce"`
	Brief     string   `dynamo:"Brief"`
	Checks    []string `dynamo:"Checks"`
	Status    string   `dynamo:"Status"`

	RepoURL     string     `dynamo:"RepoUrl,omitempty"`
	CommitSHA   string     `dynamo:"CommitSha,omitempty"`
	PagesURL    string     `dynamo:"PagesUrl,omitempty"`
	SubmittedAt *time.Time `dynamo:"SubmittedAt,omitempty"`

	CreatedAt  time.Time  `dynamo:"CreatedAt"`
	SentAt     *time.Time `dynamo:"SentAt,omitempty"`
	ReceivedAt *time.Time `dynamo:"ReceivedAt,omitempty"`

	Version int `dynamo:"Version"` // For optimistic locking
}

// DynamoDbTaskTable represents the DynamoDB table.
type DynamoDbTaskTable struct {
	ddbClient *dynamodb.Client
	tableName string
	taskTable *dynamo.Table
}

// NewDynamoDbTaskTable initializes a new DynamoDbTaskTable.
func NewDynamoDbTaskTable(ddbClient *dynamodb.Client, tableName string) *DynamoDbTaskTable {
	ddb := &DynamoDbTaskTable{
		ddbClient: ddbClient,
		tableName: tableName,
	}
	db := dynamo.NewFromIface(ddb.ddbClient)
	table := db.Table(ddb.tableName)
	ddb.taskTable = &table

	return ddb
}

// Get retrieves a task by ID from the DynamoDB table.
// Returns nil if the task is not found.
func (ddb *DynamoDbTaskTable) Get(ctx context.Context, id string) (*TaskRow, error) {
	row := new(TaskRow)

	err := ddb.taskTable.Get("TaskID", id).One(ctx, row)
	if err != nil {
		if errors.Is(err, dynamo.ErrNotFound) {
			return nil, nil // Task not found
		}
		return nil, err
	}

	return row, nil
}

func (ddb *DynamoDbTaskTable) List(ctx context.Context) ([]*TaskRow, error) {
	var rows []*TaskRow
	err := ddb.taskTable.Scan().All(ctx, &rows)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Save writes a task row, guarding against concurrent updates with the
// version attribute.
func (ddb *DynamoDbTaskTable) Save(ctx context.Context, row *TaskRow) error {
	prevVersion := row.Version
	row.Version++

	put := ddb.taskTable.Put(row)
	if prevVersion > 0 {
		put = put.If("Version = ?", prevVersion)
	} else {
		put = put.If("attribute_not_exists(TaskID)")
	}

	err := put.Run(ctx)
	if err != nil {
		row.Version = prevVersion
		return err
	}
	return nil
}

func (ddb *DynamoDbTaskTable) Delete(ctx context.Context, id string) error {
	return ddb.taskTable.Delete("TaskID", id).Run(ctx)
}

// GetTask implements TaskRepo. Version bookkeeping stays internal to
// this type; callers see domain tasks only.
func (ddb *DynamoDbTaskTable) GetTask(ctx context.Context, id string) (*Task, error) {
	row, err := ddb.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, nil
	}
	t := row.toTask()
	return &t, nil
}

// SaveTask implements TaskRepo.
func (ddb *DynamoDbTaskTable) SaveTask(ctx context.Context, t Task) error {
	row := rowFromTask(t)
	existing, err := ddb.Get(ctx, t.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		row.Version = existing.Version
	}
	return ddb.Save(ctx, row)
}

// ListTasks implements TaskRepo.
func (ddb *DynamoDbTaskTable) ListTasks(ctx context.Context) ([]Task, error) {
	rows, err := ddb.List(ctx)
	if err != nil {
		return nil, err
	}
	tasks := make([]Task, len(rows))
	for i, row := range rows {
		tasks[i] = row.toTask()
	}
	return tasks, nil
}

func rowFromTask(t Task) *TaskRow {
	row := &TaskRow{
		ID:         t.ID,
		StudentID:  t.StudentID,
		Round:      t.Round,
		Nonce:      t.Nonce,
		Brief:      t.Brief,
		Checks:     t.Checks,
		Status:     t.Status,
		CreatedAt:  t.CreatedAt,
		SentAt:     t.SentAt,
		ReceivedAt: t.ReceivedAt,
	}
	if t.Subm != nil {
		row.RepoURL = t.Subm.RepoURL
		row.CommitSHA = t.Subm.CommitSHA
		row.PagesURL = t.Subm.PagesURL
		submittedAt := t.Subm.SubmittedAt
		row.SubmittedAt = &submittedAt
	}
	return row
}

func (row *TaskRow) toTask() Task {
	t := Task{
		ID:         row.ID,
		StudentID:  row.StudentID,
		Round:      row.Round,
		Nonce:      row.Nonce,
		Brief:      row.Brief,
		Checks:     row.Checks,
		Status:     row.Status,
		CreatedAt:  row.CreatedAt,
		SentAt:     row.SentAt,
		ReceivedAt: row.ReceivedAt,
	}
	if row.RepoURL != "" {
		t.Subm = &Submission{
			RepoURL:   row.RepoURL,
			CommitSHA: row.CommitSHA,
			PagesURL:  row.PagesURL,
		}
		if row.SubmittedAt != nil {
			t.Subm.SubmittedAt = *row.SubmittedAt
		}
	}
	return t
}
