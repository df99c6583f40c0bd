package domain

import "time"

// LocalNote is one note as the local Tomboy-format store owns it. The sync
// engine only reads these for upload, or writes the serialized form back
// after a pull; it never mutates one in place.
type LocalNote struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`
	Tags       []string  `json:"tags,omitempty"`
}

// NoteUpdate is the transient result of pulling one remote note: the
// identifier the local replica should file it under, plus the content
// already converted to the local on-disk form.
type NoteUpdate struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	Revision int    `json:"revision"`
}
