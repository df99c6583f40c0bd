package transcode

import (
	"encoding/xml"
	"errors"
	"io"
	"log"
	"strings"
	"text/template"
	"time"

	"evernote-syncd/internal/domain"
)

// NoteResolver turns a cross-note reference (a note title inside a
// <link:internal> element) into a locator the remote markup can embed.
// Unresolved references are dropped, never fatal.
type NoteResolver interface {
	ResolveTitle(title string) (uri string, ok bool)
}

const (
	tomboyNS = "http://beatniksoftware.com/tomboy"
	linkNS   = "http://beatniksoftware.com/tomboy/link"
	sizeNS   = "http://beatniksoftware.com/tomboy/size"

	noteVersion    = "0.3"
	contentVersion = "0.1"

	// conversionFailedBody is what the user sees instead of silent data
	// loss when remote content cannot be converted. The remote copy is
	// left untouched.
	conversionFailedBody = "This note could not be converted from its remote form. " +
		"The original content is still intact on the server."
)

var enmlDocTmpl = template.Must(template.New("enml").Parse(
	`<?xml version="1.0" encoding="UTF-8"?>` +
		`<!DOCTYPE en-note SYSTEM "http://xml.evernote.com/pub/enml.dtd">` +
		`<en-note>{{.Body}}</en-note>`))

var tomboyDocTmpl = template.Must(template.New("tomboy").Parse(
	`<?xml version="1.0" encoding="utf-8"?>
<note version="{{.Version}}" xmlns:link="` + linkNS + `" xmlns:size="` + sizeNS + `" xmlns="` + tomboyNS + `">
<title>{{.Title}}</title><text xml:space="preserve"><note-content version="{{.ContentVersion}}">{{.Content}}</note-content></text>
<last-change-date>{{.Changed}}</last-change-date>
<last-metadata-change-date>{{.Changed}}</last-metadata-change-date>
<create-date>{{.Created}}</create-date>
</note>
`))

// Transcoder converts note content between the local Tomboy markup and the
// remote store's ENML markup. Neither direction ever returns an error:
// inconvertible content degrades to an escaped plain-text or placeholder
// body with the cause logged, so a bad note surfaces to the user instead
// of corrupting a replica.
type Transcoder struct {
	resolver NoteResolver
	logger   *log.Logger
	validate bool
}

func New(resolver NoteResolver, logger *log.Logger, validate bool) *Transcoder {
	if logger == nil {
		logger = log.Default()
	}
	return &Transcoder{resolver: resolver, logger: logger, validate: validate}
}

// ToRemote renders a local note's content as a complete ENML document,
// envelope included.
func (t *Transcoder) ToRemote(note *domain.LocalNote) string {
	body, err := tomboyToENML(note.Content, t.resolver)
	if err != nil {
		t.logger.Printf("[transcode] note %s: falling back to plain text: %v", note.ID, err)
		body = escapeText(stripMarkup(note.Content))
	}

	var b strings.Builder
	if err := enmlDocTmpl.Execute(&b, map[string]any{"Body": body}); err != nil {
		t.logger.Printf("[transcode] note %s: render envelope: %v", note.ID, err)
	}
	doc := b.String()

	if t.validate {
		if err := checkWellFormed(doc); err != nil {
			t.logger.Printf("[transcode] note %s: generated ENML failed validation: %v", note.ID, err)
		}
	}
	return doc
}

// ToLocal renders a remote note and its raw ENML body as a complete
// Tomboy note document, translating remote millisecond timestamps into
// the local RFC 3339 convention.
func (t *Transcoder) ToLocal(n *domain.RemoteNote, body string) string {
	content, err := enmlToTomboy(body)
	if err != nil {
		t.logger.Printf("[transcode] remote note %s (%q): %v", n.GUID, n.Title, err)
		content = conversionFailedBody
	}

	changed := msToTime(n.Updated).Format(time.RFC3339)
	created := msToTime(n.Created).Format(time.RFC3339)

	var b strings.Builder
	err = tomboyDocTmpl.Execute(&b, map[string]any{
		"Version":        noteVersion,
		"ContentVersion": contentVersion,
		"Title":          escapeText(n.Title),
		"Content":        content,
		"Changed":        changed,
		"Created":        created,
	})
	if err != nil {
		t.logger.Printf("[transcode] remote note %s: render envelope: %v", n.GUID, err)
	}
	return b.String()
}

func msToTime(ms int64) time.Time {
	if ms <= 0 {
		return time.Now().UTC()
	}
	return time.UnixMilli(ms).UTC()
}

// checkWellFormed is the non-fatal validation pass: it re-reads the
// generated document and reports the first parse error, if any.
func checkWellFormed(doc string) error {
	d := xml.NewDecoder(strings.NewReader(doc))
	d.Entity = xml.HTMLEntity
	for {
		_, err := d.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}
