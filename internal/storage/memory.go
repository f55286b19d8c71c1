package storage

import (
	"context"
	"sync"

	"remindd/internal/task"
)

// Memory is a volatile Store. It backs tests and "driver: memory" runs
// where reminder state only needs to live as long as the process.
type Memory struct {
	mu    sync.RWMutex
	tasks map[string]task.Task
}

func NewMemory() *Memory {
	return &Memory{tasks: map[string]task.Task{}}
}

func (m *Memory) RecurringTasks(ctx context.Context) ([]task.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]task.Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		if t.IsRecurring() {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *Memory) GetTask(ctx context.Context, id string) (task.Task, bool, error) {
	if err := ctx.Err(); err != nil {
		return task.Task{}, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[id]
	return t, ok, nil
}

func (m *Memory) PutTask(ctx context.Context, t task.Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	m.tasks[t.ID] = t
	m.mu.Unlock()
	return nil
}

func (m *Memory) DeleteTask(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.tasks, id)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Close() error { return nil }
