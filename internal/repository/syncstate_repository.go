package repository

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"evernote-syncd/internal/domain"
)

// SyncStateRepository persists what the sync engine itself may not hold
// across sessions: the last revision fully consumed per remote replica,
// and the run history the control API serves.
type SyncStateRepository interface {
	ConsumedRevision(serverID string) (int, error)
	SetConsumedRevision(serverID string, revision int) error
	RecordRun(run *domain.SyncRun) error
	ListRuns(serverID string, limit int) ([]*domain.SyncRun, error)
}

const maxStoredRuns = 100

type fileState struct {
	Revisions map[string]int    `json:"revisions"`
	Runs      []*domain.SyncRun `json:"runs"`
}

type fileSyncStateRepo struct {
	path string
	mu   sync.Mutex
}

// NewFileSyncStateRepository keeps sync state in a single JSON sidecar
// file, the default backend for a single-machine daemon.
func NewFileSyncStateRepository(path string) (SyncStateRepository, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	return &fileSyncStateRepo{path: path}, nil
}

func (r *fileSyncStateRepo) load() (*fileState, error) {
	state := &fileState{Revisions: make(map[string]int)}
	data, err := os.ReadFile(r.path)
	if os.IsNotExist(err) {
		return state, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read sync state: %w", err)
	}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("parse sync state: %w", err)
	}
	if state.Revisions == nil {
		state.Revisions = make(map[string]int)
	}
	return state, nil
}

func (r *fileSyncStateRepo) save(state *fileState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write sync state: %w", err)
	}
	return os.Rename(tmp, r.path)
}

func (r *fileSyncStateRepo) ConsumedRevision(serverID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, err := r.load()
	if err != nil {
		return 0, err
	}
	return state.Revisions[serverID], nil
}

func (r *fileSyncStateRepo) SetConsumedRevision(serverID string, revision int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, err := r.load()
	if err != nil {
		return err
	}
	state.Revisions[serverID] = revision
	return r.save(state)
}

func (r *fileSyncStateRepo) RecordRun(run *domain.SyncRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, err := r.load()
	if err != nil {
		return err
	}
	state.Runs = append(state.Runs, run)
	if len(state.Runs) > maxStoredRuns {
		state.Runs = state.Runs[len(state.Runs)-maxStoredRuns:]
	}
	return r.save(state)
}

func (r *fileSyncStateRepo) ListRuns(serverID string, limit int) ([]*domain.SyncRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, err := r.load()
	if err != nil {
		return nil, err
	}

	var runs []*domain.SyncRun
	for _, run := range state.Runs {
		if serverID == "" || run.ServerID == serverID {
			runs = append(runs, run)
		}
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}
