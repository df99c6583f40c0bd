package service

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"evernote-syncd/internal/domain"
	"evernote-syncd/internal/localstore"
	"evernote-syncd/internal/repository"

	"github.com/google/uuid"
)

// SyncServer is the seam between the orchestrating manager and one remote
// replica's session. Session implements it; tests substitute it.
type SyncServer interface {
	ID() string
	CurrentSyncLock() domain.SyncLockInfo
	BeginSyncTransaction(ctx context.Context) error
	CommitSyncTransaction(ctx context.Context) error
	CancelSyncTransaction(ctx context.Context) error
	LatestRevision(ctx context.Context) int
	GetAllNoteIDs(ctx context.Context) ([]string, error)
	GetNoteUpdatesSince(ctx context.Context, revision int) map[string]domain.NoteUpdate
	UploadNotes(ctx context.Context, notes []*domain.LocalNote) error
	DeleteNotes(ctx context.Context, ids []string)
}

// EventPublisher receives progress events for connected observers. May be
// satisfied by the websocket manager or left nil.
type EventPublisher interface {
	Publish(eventType string, payload any)
}

// SyncManager drives complete sync cycles: pull remote changes into the
// local store, push local changes out, propagate local deletions. One
// cycle is one session; a mutex serializes cycles because sessions are
// not reentrant.
type SyncManager struct {
	server    SyncServer
	local     *localstore.Store
	watcher   *localstore.Watcher
	stateRepo repository.SyncStateRepository
	events    EventPublisher
	logger    *log.Logger

	mu      sync.Mutex
	status  SyncStatus
	statusM sync.RWMutex
}

// SyncStatus is the control API's view of the manager.
type SyncStatus struct {
	Syncing  bool            `json:"syncing"`
	LastRun  *domain.SyncRun `json:"last_run,omitempty"`
	ServerID string          `json:"server_id"`
}

func NewSyncManager(
	server SyncServer,
	local *localstore.Store,
	watcher *localstore.Watcher,
	stateRepo repository.SyncStateRepository,
	events EventPublisher,
	logger *log.Logger,
) *SyncManager {
	if logger == nil {
		logger = log.Default()
	}
	return &SyncManager{
		server:    server,
		local:     local,
		watcher:   watcher,
		stateRepo: stateRepo,
		events:    events,
		logger:    logger,
		status:    SyncStatus{ServerID: server.ID()},
	}
}

func (m *SyncManager) Status() SyncStatus {
	m.statusM.RLock()
	defer m.statusM.RUnlock()
	return m.status
}

func (m *SyncManager) History(limit int) ([]*domain.SyncRun, error) {
	return m.stateRepo.ListRuns(m.server.ID(), limit)
}

func (m *SyncManager) setSyncing(syncing bool, run *domain.SyncRun) {
	m.statusM.Lock()
	defer m.statusM.Unlock()
	m.status.Syncing = syncing
	if run != nil {
		m.status.LastRun = run
	}
}

func (m *SyncManager) publish(eventType string, payload any) {
	if m.events != nil {
		m.events.Publish(eventType, payload)
	}
}

// RunCycle executes one full sync cycle and records it. Pull failures
// degrade to an empty round; a push failure cancels the session and
// surfaces, with the drained change sets re-queued for the next cycle.
func (m *SyncManager) RunCycle(ctx context.Context) (*domain.SyncRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	run := &domain.SyncRun{
		ID:        uuid.New().String(),
		ServerID:  m.server.ID(),
		StartedAt: time.Now(),
		Status:    domain.RunCancelled,
	}
	m.setSyncing(true, nil)
	defer m.setSyncing(false, run)
	m.publish("sync_started", map[string]any{"run_id": run.ID})

	err := m.runCycle(ctx, run)
	run.FinishedAt = time.Now()
	if err != nil {
		run.Error = err.Error()
		m.publish("sync_failed", map[string]any{"run_id": run.ID, "error": run.Error})
	} else {
		run.Status = domain.RunCommitted
		m.publish("sync_completed", map[string]any{
			"run_id":   run.ID,
			"pulled":   run.Pulled,
			"pushed":   run.Pushed,
			"deleted":  run.Deleted,
			"revision": run.Revision,
		})
	}
	if recErr := m.stateRepo.RecordRun(run); recErr != nil {
		m.logger.Printf("[sync] could not record run %s: %v", run.ID, recErr)
	}
	return run, err
}

func (m *SyncManager) runCycle(ctx context.Context, run *domain.SyncRun) error {
	if err := m.server.BeginSyncTransaction(ctx); err != nil {
		return fmt.Errorf("begin sync: %w", err)
	}

	consumed, err := m.stateRepo.ConsumedRevision(m.server.ID())
	if err != nil {
		m.server.CancelSyncTransaction(ctx)
		return fmt.Errorf("read watermark: %w", err)
	}
	run.Revision = consumed

	// Snapshot local pending work before applying pulls, so a pulled
	// note's own write never looks like a local edit.
	dirty, removed := m.pendingChanges()

	consumed = m.pull(ctx, run, consumed)

	if err := m.push(ctx, run, dirty, removed); err != nil {
		m.server.CancelSyncTransaction(ctx)
		return err
	}

	// Our own writes bumped the remote sequence numbers; anything up to
	// the notebook's current high mark is now consumed.
	if run.Pushed > 0 || run.Deleted > 0 {
		if latest := m.server.LatestRevision(ctx); latest > consumed {
			consumed = latest
		}
	}
	if consumed > run.Revision {
		if err := m.stateRepo.SetConsumedRevision(m.server.ID(), consumed); err != nil {
			m.server.CancelSyncTransaction(ctx)
			return fmt.Errorf("store watermark: %w", err)
		}
		run.Revision = consumed
	}

	if err := m.server.CommitSyncTransaction(ctx); err != nil {
		return fmt.Errorf("commit sync: %w", err)
	}
	return nil
}

// pendingChanges drains the watcher, or treats every local note as dirty
// when no watcher is attached (first run, or watchless deployments).
func (m *SyncManager) pendingChanges() (dirty, removed []string) {
	if m.watcher != nil {
		return m.watcher.DrainDirty(), m.watcher.DrainRemoved()
	}
	notes, err := m.local.List()
	if err != nil {
		m.logger.Printf("[sync] could not list local notes: %v", err)
		return nil, nil
	}
	for _, n := range notes {
		dirty = append(dirty, n.ID)
	}
	return dirty, nil
}

// pull applies remote updates to the local store, last writer wins, and
// returns the new consumed revision. The watermark only moves past
// revisions that were actually applied.
func (m *SyncManager) pull(ctx context.Context, run *domain.SyncRun, consumed int) int {
	latest := m.server.LatestRevision(ctx)
	if latest <= consumed {
		return consumed
	}

	updates := m.server.GetNoteUpdatesSince(ctx, consumed)
	highest := consumed
	for _, u := range updates {
		// Announce the write first: the filesystem event for it lands
		// after WriteDoc returns, and must not queue the note for push.
		if m.watcher != nil {
			m.watcher.ExpectWrite(u.ID)
		}
		if err := m.local.WriteDoc(u.ID, u.Content); err != nil {
			m.logger.Printf("[sync] could not store pulled note %s: %v", u.ID, err)
			continue
		}
		if u.Revision > highest {
			highest = u.Revision
		}
		run.Pulled++
	}
	return highest
}

func (m *SyncManager) push(ctx context.Context, run *domain.SyncRun, dirty, removed []string) error {
	var notes []*domain.LocalNote
	for _, id := range dirty {
		note, err := m.local.Get(id)
		if err != nil {
			m.logger.Printf("[sync] skipping unreadable local note %s: %v", id, err)
			continue
		}
		notes = append(notes, note)
	}

	if len(notes) > 0 {
		if err := m.server.UploadNotes(ctx, notes); err != nil {
			m.requeue(dirty, removed)
			return fmt.Errorf("push local notes: %w", err)
		}
		run.Pushed = len(notes)
	}

	if len(removed) > 0 {
		m.server.DeleteNotes(ctx, removed)
		run.Deleted = len(removed)
	}
	return nil
}

func (m *SyncManager) requeue(dirty, removed []string) {
	if m.watcher == nil {
		return
	}
	for _, id := range dirty {
		m.watcher.MarkDirty(id)
	}
	for _, id := range removed {
		m.watcher.MarkRemoved(id)
	}
}
