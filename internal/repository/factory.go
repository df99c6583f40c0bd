package repository

import (
	"fmt"

	"github.com/go-kivik/kivik/v4"
)

// Backend names accepted by NewSyncStateRepository.
const (
	BackendFile  = "file"
	BackendCouch = "couch"
)

// NewSyncStateRepository selects the sync-state backend. The couch
// backend needs a connected kivik client; everything else falls back to
// the file backend at the given path.
func NewSyncStateRepository(backend, path string, client *kivik.Client, dbName string) (SyncStateRepository, error) {
	switch backend {
	case "", BackendFile:
		return NewFileSyncStateRepository(path)
	case BackendCouch:
		if client == nil {
			return nil, fmt.Errorf("couch state backend requires a database connection")
		}
		return NewCouchSyncStateRepository(client, dbName), nil
	default:
		return nil, fmt.Errorf("unknown state backend %q", backend)
	}
}
