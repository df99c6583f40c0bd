package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"evernote-syncd/internal/domain"
	"evernote-syncd/internal/remote"
	"evernote-syncd/internal/transcode"

	"github.com/google/uuid"
)

// serverID distinguishes this replica type among other configured sync
// backends. It is stable across sessions and releases.
const serverID = "evernote-0001"

const clientName = "tomboy.evernote-syncd"

// sessionState is the transaction lifecycle position of a Session.
type sessionState int

const (
	stateClosed sessionState = iota
	stateAuthenticating
	stateContainerResolving
	stateOpen
	stateCommitting
	stateCancelling
)

var (
	ErrNotConfigured = errors.New("sync credentials are not configured")
	ErrSessionClosed = errors.New("sync session is not open")
	ErrVersionTooOld = errors.New("remote protocol version no longer supported")
	ErrUploadFailed  = errors.New("upload to remote store failed")
)

// Session is one sync transaction against the remote store. It is the
// only component with cross-session state (the auth token and the working
// notebook, both held for the session's lifetime only) and is not safe
// for concurrent use; callers serialize access.
type Session struct {
	store        remote.NoteStore
	creds        domain.Credentials
	notebookName string
	transcoder   *transcode.Transcoder
	logger       *log.Logger

	state    sessionState
	token    string
	notebook domain.Notebook
}

func NewSession(store remote.NoteStore, creds domain.Credentials, notebookName string, tc *transcode.Transcoder, logger *log.Logger) *Session {
	if logger == nil {
		logger = log.Default()
	}
	if notebookName == "" {
		notebookName = "Tomboy"
	}
	return &Session{
		store:        store,
		creds:        creds,
		notebookName: notebookName,
		transcoder:   tc,
		logger:       logger,
	}
}

// ID returns the stable replica identifier the orchestrating sync manager
// files this backend under.
func (s *Session) ID() string { return serverID }

// CurrentSyncLock returns the external lock token held against concurrent
// sessions. The remote store has no locking primitive, so this is always
// the empty token.
func (s *Session) CurrentSyncLock() domain.SyncLockInfo {
	return domain.SyncLockInfo{}
}

// BeginSyncTransaction validates configuration, authenticates, and
// resolves or creates the working notebook. Any failure leaves the
// session Closed with no partial state retained.
func (s *Session) BeginSyncTransaction(ctx context.Context) error {
	s.reset()

	if err := s.creds.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrNotConfigured, err)
	}

	s.state = stateAuthenticating
	ok, err := s.store.CheckVersion(ctx, clientName)
	if err != nil {
		s.reset()
		return fmt.Errorf("check protocol version: %w", err)
	}
	if !ok {
		s.reset()
		return ErrVersionTooOld
	}

	auth, err := s.store.Authenticate(ctx, s.creds)
	if err != nil {
		s.reset()
		return fmt.Errorf("authenticate %q: %w", s.creds.Username, err)
	}
	s.token = auth.Token
	s.logger.Printf("[sync] authenticated %q against shard %s", s.creds.Username, auth.ShardID)

	s.state = stateContainerResolving
	nb, err := s.resolveNotebook(ctx)
	if err != nil {
		s.reset()
		return err
	}
	s.notebook = nb

	s.state = stateOpen
	return nil
}

// resolveNotebook matches the designated notebook by trimmed,
// case-insensitive name and creates it when absent.
func (s *Session) resolveNotebook(ctx context.Context) (domain.Notebook, error) {
	want := strings.ToLower(strings.TrimSpace(s.notebookName))

	notebooks, err := s.store.ListNotebooks(ctx, s.token)
	if err != nil {
		return domain.Notebook{}, fmt.Errorf("list notebooks: %w", err)
	}
	for _, nb := range notebooks {
		if strings.ToLower(strings.TrimSpace(nb.Name)) == want {
			return nb, nil
		}
	}

	created, err := s.store.CreateNotebook(ctx, s.token, domain.Notebook{
		GUID: uuid.New().String(),
		Name: s.notebookName,
	})
	if err != nil {
		return domain.Notebook{}, fmt.Errorf("create notebook %q: %w", s.notebookName, err)
	}
	s.logger.Printf("[sync] created notebook %q with guid %s", created.Name, created.GUID)
	return created, nil
}

// CommitSyncTransaction closes the session, treating every write issued
// during it as final. There is nothing to flush: each mutating call
// already landed as a committed remote write.
func (s *Session) CommitSyncTransaction(ctx context.Context) error {
	if s.state != stateOpen {
		return ErrSessionClosed
	}
	s.state = stateCommitting
	s.reset()
	return nil
}

// CancelSyncTransaction closes the session without treating its writes as
// consumed. Writes already issued are not rolled back; the remote store is
// authoritative and has no cross-call transaction.
func (s *Session) CancelSyncTransaction(ctx context.Context) error {
	if s.state != stateOpen {
		return ErrSessionClosed
	}
	s.state = stateCancelling
	s.reset()
	return nil
}

func (s *Session) reset() {
	s.state = stateClosed
	s.token = ""
	s.notebook = domain.Notebook{}
}

// LatestRevision returns the highest per-note sequence number in the
// working notebook, this replica's watermark. This is deliberately not
// the store's global update count, which moves on changes outside the
// notebook too. Returns 0 for an empty notebook or a logged fetch
// failure.
func (s *Session) LatestRevision(ctx context.Context) int {
	if s.state != stateOpen {
		return 0
	}
	notes, err := s.store.FindNotes(ctx, s.token, s.notebook.GUID, 0, remote.UserNotesMax)
	if err != nil {
		s.logger.Printf("[sync] could not read revisions: %v", err)
		return 0
	}
	highest := 0
	for _, n := range notes {
		if n.USN > highest {
			highest = n.USN
		}
	}
	return highest
}

// GetAllNoteIDs lists the reconciled identifiers of every note in the
// working notebook.
func (s *Session) GetAllNoteIDs(ctx context.Context) ([]string, error) {
	if s.state != stateOpen {
		return nil, ErrSessionClosed
	}
	notes, err := s.store.FindNotes(ctx, s.token, s.notebook.GUID, 0, remote.UserNotesMax)
	if err != nil {
		return nil, fmt.Errorf("list remote notes: %w", err)
	}
	ids := make([]string, 0, len(notes))
	for i := range notes {
		ids = append(ids, ReconcileID(&notes[i]))
	}
	return ids, nil
}

// GetNoteUpdatesSince returns every notebook note changed after the given
// revision, keyed by remote identifier and already converted to the local
// form. A pull failure is non-fatal: it degrades to "nothing new this
// round" and is retried on the next cycle, since the caller's watermark
// only advances past revisions it actually consumed.
func (s *Session) GetNoteUpdatesSince(ctx context.Context, revision int) map[string]domain.NoteUpdate {
	updates := make(map[string]domain.NoteUpdate)
	if s.state != stateOpen {
		return updates
	}

	state, err := s.store.GetSyncState(ctx, s.token)
	if err != nil {
		s.logger.Printf("[sync] could not read sync state: %v", err)
		return updates
	}
	if state.UpdateCount <= revision {
		return updates
	}
	if revision < 0 {
		revision = 0
	}

	chunk, err := s.store.GetSyncChunk(ctx, s.token, revision, remote.UserNotesMax, false)
	if err != nil {
		s.logger.Printf("[sync] failure fetching changes since %d: %v", revision, err)
		return updates
	}

	for i := range chunk.Notes {
		note := &chunk.Notes[i]
		if note.NotebookGUID != s.notebook.GUID {
			continue
		}
		body, err := s.store.GetNoteContent(ctx, s.token, note.GUID)
		if err != nil {
			s.logger.Printf("[sync] could not fetch content of %s: %v", note.GUID, err)
			body = ""
		}
		updates[note.GUID] = domain.NoteUpdate{
			ID:       ReconcileID(note),
			Title:    note.Title,
			Content:  s.transcoder.ToLocal(note, body),
			Revision: note.USN,
		}
	}
	return updates
}

// UploadNotes pushes local notes to the working notebook: an existing
// remote note whose reconciled identifier matches is overwritten, any
// other note is created with this replica's origin marker. A failed write
// aborts the whole batch; a silently dropped upload is worse than an
// explicit failure.
func (s *Session) UploadNotes(ctx context.Context, notes []*domain.LocalNote) error {
	if s.state != stateOpen {
		return ErrSessionClosed
	}
	existing, err := s.store.FindNotes(ctx, s.token, s.notebook.GUID, 0, remote.UserNotesMax)
	if err != nil {
		return fmt.Errorf("list remote notes: %w", err)
	}
	s.logger.Printf("[sync] uploading %d notes", len(notes))

	for _, note := range notes {
		var match *domain.RemoteNote
		for i := range existing {
			if ReconcileID(&existing[i]) == note.ID {
				match = &existing[i]
				break
			}
		}

		if match != nil {
			filled := s.fillRemote(note, *match)
			if _, err := s.store.UpdateNote(ctx, s.token, filled); err != nil {
				s.logger.Printf("[sync] could not update remote note for %s: %v", note.ID, err)
				return fmt.Errorf("%w: update %s: %v", ErrUploadFailed, note.ID, err)
			}
			continue
		}

		filled := s.fillRemote(note, domain.RemoteNote{Active: true})
		if _, err := s.store.CreateNote(ctx, s.token, filled); err != nil {
			s.logger.Printf("[sync] could not create remote note for %s: %v", note.ID, err)
			return fmt.Errorf("%w: create %s: %v", ErrUploadFailed, note.ID, err)
		}
	}
	return nil
}

// fillRemote overwrites a remote note's synchronized fields from a local
// note, stamping the origin marker that later reconciles the identifiers.
func (s *Session) fillRemote(local *domain.LocalNote, target domain.RemoteNote) domain.RemoteNote {
	target.Title = local.Title
	target.Content = s.transcoder.ToRemote(local)
	target.NotebookGUID = s.notebook.GUID
	target.Created = local.CreatedAt.UnixMilli()
	target.Updated = local.ModifiedAt.UnixMilli()
	target.Attributes.SourceApplication = SourceApplication
	target.Attributes.Source = local.ID
	target.TagNames = append([]string(nil), local.Tags...)
	return target
}

// DeleteNotes marks remote notes deleted for each id whose reconciled
// identifier matches. A missing id or a failed per-note update is logged
// and skipped: the remote replica may already have dropped the note, and
// deletion converges on a later cycle.
func (s *Session) DeleteNotes(ctx context.Context, ids []string) {
	if s.state != stateOpen {
		return
	}
	existing, err := s.store.FindNotes(ctx, s.token, s.notebook.GUID, 0, remote.UserNotesMax)
	if err != nil {
		s.logger.Printf("[sync] could not list remote notes for delete: %v", err)
		return
	}

	for _, id := range ids {
		found := false
		for i := range existing {
			if ReconcileID(&existing[i]) != id {
				continue
			}
			found = true
			existing[i].Deleted = time.Now().UnixMilli()
			existing[i].Active = false
			if _, err := s.store.UpdateNote(ctx, s.token, existing[i]); err != nil {
				s.logger.Printf("[sync] could not delete remote note %s: %v", id, err)
			}
		}
		if !found {
			s.logger.Printf("[sync] could not find note %s to delete", id)
		}
	}
}
