package localstore

import (
	"encoding/xml"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"evernote-syncd/internal/domain"
)

const noteExt = ".note"

// ErrInvalidNoteID rejects identifiers that cannot name a file inside
// the note directory. Ids reach the store from remote note metadata, so
// they are untrusted input.
var ErrInvalidNoteID = errors.New("invalid note identifier")

func validNoteID(id string) bool {
	if id == "" || id == "." || id == ".." {
		return false
	}
	return !strings.ContainsAny(id, `/\`)
}

// Store is a directory of Tomboy-format note files, one `<id>.note` XML
// document per note. The sync engine reads notes for upload and writes
// back whole serialized documents after a pull.
type Store struct {
	dir    string
	logger *log.Logger
}

func New(dir string, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create note directory: %w", err)
	}
	return &Store{dir: dir, logger: logger}, nil
}

func (s *Store) Dir() string { return s.dir }

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+noteExt)
}

// List parses every note file in the directory. Unparseable files are
// logged and skipped rather than failing the listing.
func (s *Store) List() ([]*domain.LocalNote, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read note directory: %w", err)
	}

	var notes []*domain.LocalNote
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), noteExt) {
			continue
		}
		id := strings.TrimSuffix(e.Name(), noteExt)
		note, err := s.Get(id)
		if err != nil {
			s.logger.Printf("[localstore] skipping %s: %v", e.Name(), err)
			continue
		}
		notes = append(notes, note)
	}
	return notes, nil
}

func (s *Store) Get(id string) (*domain.LocalNote, error) {
	if !validNoteID(id) {
		return nil, fmt.Errorf("note %q: %w", id, ErrInvalidNoteID)
	}
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		return nil, err
	}
	return parseNote(id, data)
}

// FindByTitle matches case-insensitively on the trimmed title.
func (s *Store) FindByTitle(title string) (*domain.LocalNote, error) {
	want := strings.ToLower(strings.TrimSpace(title))
	notes, err := s.List()
	if err != nil {
		return nil, err
	}
	for _, n := range notes {
		if strings.ToLower(strings.TrimSpace(n.Title)) == want {
			return n, nil
		}
	}
	return nil, os.ErrNotExist
}

// ResolveTitle implements the transcoder's reference resolver: a known
// note title becomes the local note URI scheme the remote markup embeds.
func (s *Store) ResolveTitle(title string) (string, bool) {
	note, err := s.FindByTitle(title)
	if err != nil {
		return "", false
	}
	return "note://tomboy/" + note.ID, true
}

// WriteDoc stores a complete serialized note document under the given
// identifier, replacing whatever was there (last writer wins per
// revision pull).
func (s *Store) WriteDoc(id, doc string) error {
	if !validNoteID(id) {
		return fmt.Errorf("note %q: %w", id, ErrInvalidNoteID)
	}
	if err := os.WriteFile(s.path(id), []byte(doc), 0o644); err != nil {
		return fmt.Errorf("write note %s: %w", id, err)
	}
	return nil
}

func (s *Store) Remove(id string) error {
	if !validNoteID(id) {
		return fmt.Errorf("note %q: %w", id, ErrInvalidNoteID)
	}
	err := os.Remove(s.path(id))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove note %s: %w", id, err)
	}
	return nil
}

type noteFile struct {
	Title      string   `xml:"title"`
	LastChange string   `xml:"last-change-date"`
	CreateDate string   `xml:"create-date"`
	Tags       []string `xml:"tags>tag"`
}

func parseNote(id string, data []byte) (*domain.LocalNote, error) {
	var meta noteFile
	if err := xml.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parse note %s: %w", id, err)
	}

	content, err := extractContent(string(data))
	if err != nil {
		return nil, fmt.Errorf("note %s: %w", id, err)
	}

	return &domain.LocalNote{
		ID:         id,
		Title:      meta.Title,
		Content:    content,
		CreatedAt:  parseNoteDate(meta.CreateDate),
		ModifiedAt: parseNoteDate(meta.LastChange),
		Tags:       meta.Tags,
	}, nil
}

// extractContent slices the raw inner markup out of <note-content>. The
// inner markup is carried verbatim; re-serializing it through a full XML
// round trip would normalize whitespace the format declares significant.
func extractContent(doc string) (string, error) {
	start := strings.Index(doc, "<note-content")
	if start < 0 {
		return "", fmt.Errorf("no note-content element")
	}
	open := strings.Index(doc[start:], ">")
	if open < 0 {
		return "", fmt.Errorf("unterminated note-content element")
	}
	end := strings.LastIndex(doc, "</note-content>")
	if end < 0 || end < start+open {
		return "", fmt.Errorf("no closing note-content element")
	}
	return doc[start+open+1 : end], nil
}

func parseNoteDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}
	}
	return t
}
