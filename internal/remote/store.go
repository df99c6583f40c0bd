package remote

import (
	"context"

	"evernote-syncd/internal/domain"
)

// UserNotesMax caps how many notes a single FindNotes call may return,
// matching the remote store's published per-account limit.
const UserNotesMax = 100000

// NoteStore is the single seam through which every remote call passes.
// Everything above it treats the remote store as a fallible, possibly slow
// service: each method may block until the transport gives up, and each
// failure comes back as a *Error carrying its kind.
//
// Authenticate must be called first; the token it returns is passed to
// every subsequent call of the same session.
type NoteStore interface {
	// CheckVersion reports whether the store still speaks the protocol
	// revision this client was built against.
	CheckVersion(ctx context.Context, clientName string) (bool, error)

	Authenticate(ctx context.Context, creds domain.Credentials) (domain.AuthResult, error)

	ListNotebooks(ctx context.Context, token string) ([]domain.Notebook, error)
	CreateNotebook(ctx context.Context, token string, nb domain.Notebook) (domain.Notebook, error)

	// FindNotes lists note metadata in one notebook. Content is not
	// populated; fetch bodies with GetNoteContent.
	FindNotes(ctx context.Context, token, notebookGUID string, offset, max int) ([]domain.RemoteNote, error)
	GetNoteContent(ctx context.Context, token, guid string) (string, error)
	CreateNote(ctx context.Context, token string, note domain.RemoteNote) (domain.RemoteNote, error)
	UpdateNote(ctx context.Context, token string, note domain.RemoteNote) (domain.RemoteNote, error)

	GetSyncState(ctx context.Context, token string) (domain.SyncState, error)
	// GetSyncChunk returns remote changes with a USN strictly greater
	// than afterUSN. Bodies are omitted when fullContent is false.
	GetSyncChunk(ctx context.Context, token string, afterUSN, maxEntries int, fullContent bool) (domain.SyncChunk, error)
}
