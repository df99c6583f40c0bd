package service

import (
	"strings"

	"evernote-syncd/internal/domain"
)

// SourceApplication is the origin marker this replica stamps on every
// remote note it writes, read back later to match identifiers.
const SourceApplication = "tomboy"

// ReconcileID returns the identifier the local replica must use for a
// remote note. A note last written by this application carries the local
// identifier in its origin marker and keeps it even if the remote store
// has since recreated the note under a fresh GUID; any other note is known
// only by its remote identifier.
//
// This is a pure function of the note's origin fields. It must never
// consult a cache: the origin marker is the only channel that survives a
// remote-identifier change.
func ReconcileID(n *domain.RemoteNote) string {
	if strings.ToLower(n.Attributes.SourceApplication) == SourceApplication && n.Attributes.Source != "" {
		return n.Attributes.Source
	}
	return n.GUID
}
