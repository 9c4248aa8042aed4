package task

import (
	"context"
	"sort"
	"sync"
)

type inMemRepo struct {
	mu    sync.RWMutex
	tasks map[string]Task
}

func NewInMemRepo() *inMemRepo {
	return &inMemRepo{
		tasks: make(map[string]Task),
	}
}

// SaveTask implements TaskRepo
func (r *inMemRepo) SaveTask(ctx context.Context, t Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[t.ID] = t
	return nil
}

// GetTask implements TaskRepo
func (r *inMemRepo) GetTask(ctx context.Context, id string) (*Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if t, ok := r.tasks[id]; ok {
		return &t, nil
	}
	return nil, nil
}

// ListTasks implements TaskRepo
func (r *inMemRepo) ListTasks(ctx context.Context) ([]Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tasks := make([]Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		tasks = append(tasks, t)
	}
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].ID < tasks[j].ID
	})
	return tasks, nil
}
