package repository

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"evernote-syncd/internal/domain"
)

func newFileRepo(t *testing.T) SyncStateRepository {
	t.Helper()
	repo, err := NewFileSyncStateRepository(filepath.Join(t.TempDir(), "state", "state.json"))
	if err != nil {
		t.Fatalf("NewFileSyncStateRepository() error = %v", err)
	}
	return repo
}

func TestConsumedRevision(t *testing.T) {
	repo := newFileRepo(t)

	rev, err := repo.ConsumedRevision("evernote-0001")
	if err != nil {
		t.Fatalf("ConsumedRevision() error = %v", err)
	}
	if rev != 0 {
		t.Errorf("fresh repository revision = %d, want 0", rev)
	}

	if err := repo.SetConsumedRevision("evernote-0001", 42); err != nil {
		t.Fatalf("SetConsumedRevision() error = %v", err)
	}
	if err := repo.SetConsumedRevision("other-server", 7); err != nil {
		t.Fatalf("SetConsumedRevision() error = %v", err)
	}

	rev, err = repo.ConsumedRevision("evernote-0001")
	if err != nil {
		t.Fatalf("ConsumedRevision() error = %v", err)
	}
	if rev != 42 {
		t.Errorf("revision = %d, want 42", rev)
	}

	// Watermarks are tracked per replica.
	rev, _ = repo.ConsumedRevision("other-server")
	if rev != 7 {
		t.Errorf("other replica revision = %d, want 7", rev)
	}
}

func TestRunHistory(t *testing.T) {
	repo := newFileRepo(t)

	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		run := &domain.SyncRun{
			ID:        fmt.Sprintf("run-%d", i),
			ServerID:  "evernote-0001",
			StartedAt: base.Add(time.Duration(i) * time.Minute),
			Status:    domain.RunCommitted,
		}
		if err := repo.RecordRun(run); err != nil {
			t.Fatalf("RecordRun() error = %v", err)
		}
	}
	if err := repo.RecordRun(&domain.SyncRun{
		ID:        "foreign",
		ServerID:  "other-server",
		StartedAt: base.Add(time.Hour),
	}); err != nil {
		t.Fatalf("RecordRun() error = %v", err)
	}

	runs, err := repo.ListRuns("evernote-0001", 3)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("ListRuns() returned %d runs, want 3", len(runs))
	}

	// Newest first, filtered to the requested replica.
	if runs[0].ID != "run-4" || runs[1].ID != "run-3" || runs[2].ID != "run-2" {
		t.Errorf("ListRuns() order = %s, %s, %s", runs[0].ID, runs[1].ID, runs[2].ID)
	}
	for _, run := range runs {
		if run.ServerID != "evernote-0001" {
			t.Errorf("ListRuns() leaked run for %s", run.ServerID)
		}
	}
}

func TestStateSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	repo, err := NewFileSyncStateRepository(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := repo.SetConsumedRevision("evernote-0001", 9); err != nil {
		t.Fatal(err)
	}
	if err := repo.RecordRun(&domain.SyncRun{ID: "run-1", ServerID: "evernote-0001", StartedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}

	reopened, err := NewFileSyncStateRepository(path)
	if err != nil {
		t.Fatal(err)
	}
	rev, err := reopened.ConsumedRevision("evernote-0001")
	if err != nil {
		t.Fatal(err)
	}
	if rev != 9 {
		t.Errorf("revision after reopen = %d, want 9", rev)
	}
	runs, err := reopened.ListRuns("evernote-0001", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].ID != "run-1" {
		t.Errorf("runs after reopen = %v", runs)
	}
}

func TestFactoryRejectsUnknownBackend(t *testing.T) {
	if _, err := NewSyncStateRepository("redis", "", nil, ""); err == nil {
		t.Error("NewSyncStateRepository() accepted an unknown backend")
	}
	if _, err := NewSyncStateRepository(BackendCouch, "", nil, "db"); err == nil {
		t.Error("NewSyncStateRepository() accepted couch without a connection")
	}
}
