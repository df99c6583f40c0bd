package domain

import "errors"

// NoteAttributes carries the origin marker a writer stamps on a remote
// note. SourceApplication and Source together record which system last
// authored the note and under which local identifier, and are the only
// durable link between replicas that survives the remote store recreating
// a note under a fresh GUID.
type NoteAttributes struct {
	SourceApplication string `json:"sourceApplication,omitempty"`
	Source            string `json:"source,omitempty"`
}

// RemoteNote is the remote store's view of a note. Timestamps are
// milliseconds since the Unix epoch, the remote store's own convention.
// USN is the per-note update sequence number, monotonically increasing
// with every remote-side change.
type RemoteNote struct {
	GUID         string         `json:"guid"`
	NotebookGUID string         `json:"notebookGuid"`
	Title        string         `json:"title"`
	Content      string         `json:"content,omitempty"`
	Created      int64          `json:"created"`
	Updated      int64          `json:"updated"`
	Deleted      int64          `json:"deleted,omitempty"`
	Active       bool           `json:"active"`
	USN          int            `json:"updateSequenceNum"`
	Attributes   NoteAttributes `json:"attributes"`
	TagNames     []string       `json:"tagNames,omitempty"`
}

// Notebook is a remote note container.
type Notebook struct {
	GUID    string `json:"guid"`
	Name    string `json:"name"`
	Default bool   `json:"defaultNotebook"`
}

// SyncState is the remote store's global change counter. UpdateCount is
// monotonically non-decreasing; if it has not moved past the revision the
// local replica already consumed, nothing on the remote side changed.
type SyncState struct {
	UpdateCount    int   `json:"updateCount"`
	FullSyncBefore int64 `json:"fullSyncBefore,omitempty"`
	CurrentTime    int64 `json:"currentTime,omitempty"`
}

// SyncChunk is one page of the remote change feed.
type SyncChunk struct {
	ChunkHighUSN int          `json:"chunkHighUSN"`
	UpdateCount  int          `json:"updateCount"`
	Notes        []RemoteNote `json:"notes,omitempty"`
}

// AuthResult is what a successful authentication hands back: the session
// token and the shard the account's note data lives on.
type AuthResult struct {
	Token   string `json:"authToken"`
	ShardID string `json:"shardId"`
	Expires int64  `json:"expiration,omitempty"`
}

// Credentials is everything the engine needs to open a remote session.
// The engine depends on this value only, never on wherever it was
// configured or stored.
type Credentials struct {
	Username       string
	Password       string
	ConsumerKey    string
	ConsumerSecret string
}

// PlaceholderConsumerKey is the value shipped in sample configuration;
// it can never authenticate and is rejected before any remote call.
const PlaceholderConsumerKey = "your_key_here"

// Validate reports whether the credentials are complete enough to open a
// session. Placeholder application keys fail here, before any remote
// call is made.
func (c Credentials) Validate() error {
	if c.Username == "" {
		return errors.New("username is empty")
	}
	if c.ConsumerKey == "" || c.ConsumerKey == PlaceholderConsumerKey {
		return errors.New("consumer key is missing or still the placeholder value")
	}
	if c.ConsumerSecret == "" {
		return errors.New("consumer secret is empty")
	}
	return nil
}
