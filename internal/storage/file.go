package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"remindd/internal/task"
	logx "remindd/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.tasks.snapshot.json (periodic snapshot, id -> task)
//   - <prefix>.tasks.journal.jsonl (append-only journal of put/delete ops)
//
// The journal is periodically compacted into the snapshot.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	snapshotPath string
	journalFile  *os.File
	tasks        map[string]task.Task

	writes int
}

type journalRecord struct {
	Op   string     `json:"op"` // "put" or "del"
	ID   string     `json:"id,omitempty"`
	Task *task.Task `json:"task,omitempty"`
}

const compactEvery = 500

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	snapPath := prefix + ".tasks.snapshot.json"
	journalPath := prefix + ".tasks.journal.jsonl"

	// Load tasks from snapshot + journal.
	tasks := map[string]task.Task{}
	_ = loadTaskSnapshot(snapPath, tasks)
	_ = replayTaskJournal(journalPath, tasks)

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}

	return &fileStore{
		log:          log,
		snapshotPath: snapPath,
		journalFile:  jf,
		tasks:        tasks,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Compact on close so restarts start from a clean snapshot.
	if s.journalFile != nil {
		if err := s.compactLocked(); err != nil {
			s.log.Debug("task compact failed", logx.Err(err))
		}
		err := s.journalFile.Close()
		s.journalFile = nil
		return err
	}
	return nil
}

func (s *fileStore) RecurringTasks(ctx context.Context) ([]task.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]task.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		if t.IsRecurring() {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *fileStore) GetTask(ctx context.Context, id string) (task.Task, bool, error) {
	if err := ctx.Err(); err != nil {
		return task.Task{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	return t, ok, nil
}

func (s *fileStore) PutTask(ctx context.Context, t task.Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(t.ID) == "" {
		return errors.New("task id required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return errors.New("task journal closed")
	}
	s.tasks[t.ID] = t
	return s.appendLocked(journalRecord{Op: "put", Task: &t})
}

func (s *fileStore) DeleteTask(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return errors.New("task journal closed")
	}
	if _, ok := s.tasks[id]; !ok {
		return nil
	}
	delete(s.tasks, id)
	return s.appendLocked(journalRecord{Op: "del", ID: id})
}

func (s *fileStore) appendLocked(r journalRecord) error {
	enc := json.NewEncoder(s.journalFile)
	if err := enc.Encode(r); err != nil {
		return err
	}
	s.writes++
	if s.writes%compactEvery == 0 {
		// Best-effort compact.
		if err := s.compactLocked(); err != nil {
			s.log.Debug("task compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) compactLocked() error {
	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(s.tasks); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	// Truncate journal.
	if err := s.journalFile.Truncate(0); err != nil {
		return err
	}
	_, err = s.journalFile.Seek(0, 2)
	return err
}

func loadTaskSnapshot(path string, out map[string]task.Task) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var m map[string]task.Task
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return err
	}
	for k, v := range m {
		out[k] = v
	}
	return nil
}

func replayTaskJournal(path string, out map[string]task.Task) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r journalRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			continue
		}
		switch r.Op {
		case "put":
			if r.Task != nil && r.Task.ID != "" {
				out[r.Task.ID] = *r.Task
			}
		case "del":
			if r.ID != "" {
				delete(out, r.ID)
			}
		}
	}
	return sc.Err()
}
