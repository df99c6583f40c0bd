package transcode

import (
	"io"
	"log"
	"strings"
	"testing"
	"time"

	"evernote-syncd/internal/domain"
)

type staticResolver map[string]string

func (r staticResolver) ResolveTitle(title string) (string, bool) {
	uri, ok := r[title]
	return uri, ok
}

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func localNote(content string) *domain.LocalNote {
	return &domain.LocalNote{
		ID:      "note-1",
		Title:   "Test Note",
		Content: content,
	}
}

func TestToRemoteEnvelope(t *testing.T) {
	tc := New(nil, testLogger(), true)

	doc := tc.ToRemote(localNote("hello"))

	wantPrefix := `<?xml version="1.0" encoding="UTF-8"?>` +
		`<!DOCTYPE en-note SYSTEM "http://xml.evernote.com/pub/enml.dtd">` +
		`<en-note>`
	if !strings.HasPrefix(doc, wantPrefix) {
		t.Errorf("ToRemote() missing envelope:\n%s", doc)
	}
	if !strings.HasSuffix(doc, "</en-note>") {
		t.Errorf("ToRemote() not closed:\n%s", doc)
	}
	if !strings.Contains(doc, "<en-note>hello</en-note>") {
		t.Errorf("ToRemote() body mangled:\n%s", doc)
	}
}

func TestToRemoteMarkup(t *testing.T) {
	resolver := staticResolver{"Other Note": "note://tomboy/other-id"}
	tc := New(resolver, testLogger(), false)

	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "line breaks become elements",
			content: "milk\neggs",
			want:    "<en-note>milk<br/>eggs</en-note>",
		},
		{
			name:    "inline styles",
			content: "a <bold>b</bold> <italic>c</italic> <monospace>d</monospace>",
			want:    "<en-note>a <b>b</b> <i>c</i> <tt>d</tt></en-note>",
		},
		{
			name:    "highlight becomes a styled span",
			content: "<highlight>hot</highlight>",
			want:    `<en-note><span style="background-color: #ffff00;">hot</span></en-note>`,
		},
		{
			name:    "font sizes",
			content: "<size:large>big</size:large> <size:small>tiny</size:small>",
			want:    `<en-note><font size="5">big</font> <font size="2">tiny</font></en-note>`,
		},
		{
			name:    "lists",
			content: "<list><list-item>one</list-item><list-item>two</list-item></list>",
			want:    "<en-note><ul><li>one</li><li>two</li></ul></en-note>",
		},
		{
			name:    "url reference",
			content: "<link:url>http://example.com/a?b=1&amp;c=2</link:url>",
			want:    `<en-note><a href="http://example.com/a?b=1&amp;c=2">http://example.com/a?b=1&amp;c=2</a></en-note>`,
		},
		{
			name:    "resolved internal reference",
			content: "see <link:internal>Other Note</link:internal>",
			want:    `<en-note>see <a href="note://tomboy/other-id">Other Note</a></en-note>`,
		},
		{
			name:    "unresolved internal reference flattens to text",
			content: "see <link:internal>Gone Note</link:internal>",
			want:    "<en-note>see Gone Note</en-note>",
		},
		{
			name:    "broken reference keeps the text",
			content: "<link:broken>Dead Note</link:broken>",
			want:    "<en-note>Dead Note</en-note>",
		},
		{
			name:    "entities stay escaped",
			content: "ham &amp; eggs &gt; toast",
			want:    "<en-note>ham &amp; eggs &gt; toast</en-note>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := tc.ToRemote(localNote(tt.content))
			if !strings.Contains(doc, tt.want) {
				t.Errorf("ToRemote(%q):\n got %s\nwant substring %s", tt.content, doc, tt.want)
			}
		})
	}
}

func TestToLocalEnvelope(t *testing.T) {
	tc := New(nil, testLogger(), false)
	n := &domain.RemoteNote{
		GUID:    "remote-1",
		Title:   "Grocery list",
		Created: time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC).UnixMilli(),
		Updated: time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC).UnixMilli(),
	}

	doc := tc.ToLocal(n, "<en-note>milk<br/>eggs</en-note>")

	for _, want := range []string{
		`<?xml version="1.0" encoding="utf-8"?>`,
		`<note version="0.3"`,
		`xmlns="http://beatniksoftware.com/tomboy"`,
		"<title>Grocery list</title>",
		`<note-content version="0.1">milk` + "\neggs</note-content>",
		"<last-change-date>2024-03-01T09:30:00Z</last-change-date>",
		"<create-date>2024-02-01T08:00:00Z</create-date>",
	} {
		if !strings.Contains(doc, want) {
			t.Errorf("ToLocal() missing %q:\n%s", want, doc)
		}
	}
}

func TestToLocalMarkup(t *testing.T) {
	tc := New(nil, testLogger(), false)

	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "inline styles collapse onto local tags",
			body: "<en-note><b>a</b> <strong>b</strong> <em>c</em> <code>d</code></en-note>",
			want: "<bold>a</bold> <bold>b</bold> <italic>c</italic> <monospace>d</monospace>",
		},
		{
			name: "block elements imply line breaks",
			body: "<en-note><div>one</div><div>two</div></en-note>",
			want: "one\ntwo\n",
		},
		{
			name: "todo markers",
			body: `<en-note><en-todo checked="true"/>done <en-todo/>pending</en-note>`,
			want: "[x] done [ ] pending",
		},
		{
			name: "media and crypt blocks are dropped",
			body: `<en-note>before<en-media type="image/png">blob</en-media>after</en-note>`,
			want: "beforeafter",
		},
		{
			name: "lists",
			body: "<en-note><ul><li>one</li><li>two</li></ul></en-note>",
			want: "<list><list-item>one</list-item><list-item>two</list-item></list>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := tc.ToLocal(&domain.RemoteNote{GUID: "g", Title: "T"}, tt.body)
			if !strings.Contains(doc, tt.want) {
				t.Errorf("ToLocal(%q):\n got %s\nwant substring %q", tt.body, doc, tt.want)
			}
		})
	}
}

func TestToLocalPlaceholder(t *testing.T) {
	tc := New(nil, testLogger(), false)

	// Content without the expected envelope cannot be converted; the
	// user gets an explanation instead of an empty or corrupted note.
	for _, body := range []string{"", "just plain text", "<div>no envelope</div>"} {
		doc := tc.ToLocal(&domain.RemoteNote{GUID: "g", Title: "T"}, body)
		if !strings.Contains(doc, conversionFailedBody) {
			t.Errorf("ToLocal(%q) did not substitute the placeholder:\n%s", body, doc)
		}
	}
}

func TestToLocalMissingTimestamps(t *testing.T) {
	tc := New(nil, testLogger(), false)

	before := time.Now().UTC().Add(-time.Minute)
	doc := tc.ToLocal(&domain.RemoteNote{GUID: "g", Title: "T"}, "<en-note>x</en-note>")

	// Zero remote timestamps fall back to the current time rather than
	// the epoch, which would otherwise win every freshness comparison.
	if strings.Contains(doc, "1970-01-01") {
		t.Errorf("ToLocal() rendered epoch timestamps:\n%s", doc)
	}
	start := strings.Index(doc, "<create-date>")
	end := strings.Index(doc, "</create-date>")
	if start < 0 || end < 0 {
		t.Fatalf("ToLocal() has no create-date:\n%s", doc)
	}
	created, err := time.Parse(time.RFC3339, doc[start+len("<create-date>"):end])
	if err != nil {
		t.Fatalf("create-date not RFC 3339: %v", err)
	}
	if created.Before(before) {
		t.Errorf("create-date %v predates the conversion", created)
	}
}

func TestRoundTrip(t *testing.T) {
	tc := New(nil, testLogger(), false)

	content := "first line\n<bold>second</bold>\n<list><list-item>item</list-item></list>"
	remote := tc.ToRemote(localNote(content))

	doc := tc.ToLocal(&domain.RemoteNote{GUID: "g", Title: "Test Note"}, remote)

	for _, want := range []string{
		"first line\n",
		"<bold>second</bold>",
		"<list><list-item>item</list-item></list>",
	} {
		if !strings.Contains(doc, want) {
			t.Errorf("round trip lost %q:\n%s", want, doc)
		}
	}
}

func TestToRemoteFallsBackToPlainText(t *testing.T) {
	tc := New(nil, testLogger(), false)

	// A stray '<' cannot survive the structured transform even in
	// non-strict mode; the note still uploads as escaped plain text.
	doc := tc.ToRemote(localNote("a <bold>b</bold"))
	if !strings.Contains(doc, "<en-note>") {
		t.Fatalf("ToRemote() lost the envelope:\n%s", doc)
	}
	if strings.Contains(doc, "<bold>") {
		t.Errorf("ToRemote() leaked local markup:\n%s", doc)
	}
}
