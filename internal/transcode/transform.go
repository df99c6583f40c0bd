package transcode

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Inline markup mapping, local tag -> remote open/close pair. Tags with no
// entry are dropped while their text content is kept.
var enmlTags = map[string][2]string{
	"bold":          {"<b>", "</b>"},
	"italic":        {"<i>", "</i>"},
	"strikethrough": {"<strike>", "</strike>"},
	"underline":     {"<u>", "</u>"},
	"monospace":     {"<tt>", "</tt>"},
	"highlight":     {`<span style="background-color: #ffff00;">`, "</span>"},
	"list":          {"<ul>", "</ul>"},
	"list-item":     {"<li>", "</li>"},
}

// size:* maps onto the remote font element.
var fontSizes = map[string]string{
	"small": "2",
	"large": "5",
	"huge":  "7",
}

var textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
var attrEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")

func escapeText(s string) string { return textEscaper.Replace(s) }
func escapeAttr(s string) string { return attrEscaper.Replace(s) }

// escapeBody escapes character data for the remote grammar; the remote
// markup carries line breaks as elements, not characters.
func escapeBody(s string) string {
	return strings.ReplaceAll(escapeText(s), "\n", "<br/>")
}

// tomboyToENML rewrites the inner <note-content> markup of a local note
// into the remote store's markup. Cross-note references go through the
// resolver; a reference it cannot resolve is flattened to plain text.
func tomboyToENML(content string, resolver NoteResolver) (string, error) {
	wrapped := fmt.Sprintf(`<note-content xmlns=%q xmlns:link=%q xmlns:size=%q>%s</note-content>`,
		tomboyNS, linkNS, sizeNS, content)

	d := xml.NewDecoder(strings.NewReader(wrapped))
	d.Strict = false
	d.Entity = xml.HTMLEntity

	var out strings.Builder
	var linkKind string
	var linkText strings.Builder
	depth := 0
	linkDepth := 0

	for {
		tok, err := d.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if depth == 1 {
				continue // synthetic wrapper
			}
			if linkDepth > 0 {
				continue // markup nested inside a reference is flattened
			}
			switch t.Name.Space {
			case linkNS:
				linkDepth = depth
				linkKind = t.Name.Local
				linkText.Reset()
			case sizeNS:
				if size, ok := fontSizes[t.Name.Local]; ok {
					out.WriteString(`<font size="` + size + `">`)
				}
			default:
				if pair, ok := enmlTags[t.Name.Local]; ok {
					out.WriteString(pair[0])
				}
			}

		case xml.EndElement:
			depth--
			if depth == 0 {
				continue
			}
			if linkDepth > 0 {
				if depth+1 == linkDepth {
					writeReference(&out, linkKind, linkText.String(), resolver)
					linkDepth = 0
				}
				continue
			}
			switch t.Name.Space {
			case sizeNS:
				if _, ok := fontSizes[t.Name.Local]; ok {
					out.WriteString("</font>")
				}
			default:
				if pair, ok := enmlTags[t.Name.Local]; ok {
					out.WriteString(pair[1])
				}
			}

		case xml.CharData:
			if linkDepth > 0 {
				linkText.Write(t)
			} else {
				out.WriteString(escapeBody(string(t)))
			}
		}
	}
	return out.String(), nil
}

func writeReference(out *strings.Builder, kind, text string, resolver NoteResolver) {
	switch kind {
	case "url":
		url := strings.TrimSpace(text)
		out.WriteString(`<a href="` + escapeAttr(url) + `">` + escapeBody(text) + `</a>`)
	case "internal":
		if resolver != nil {
			if uri, ok := resolver.ResolveTitle(strings.TrimSpace(text)); ok {
				out.WriteString(`<a href="` + escapeAttr(uri) + `">` + escapeBody(text) + `</a>`)
				return
			}
		}
		out.WriteString(escapeBody(text))
	default:
		// link:broken and anything newer: keep the text only
		out.WriteString(escapeBody(text))
	}
}

// Remote tag -> local open/close pair. Several remote spellings collapse
// onto one local tag.
var tomboyTags = map[string][2]string{
	"b":      {"<bold>", "</bold>"},
	"strong": {"<bold>", "</bold>"},
	"i":      {"<italic>", "</italic>"},
	"em":     {"<italic>", "</italic>"},
	"strike": {"<strikethrough>", "</strikethrough>"},
	"s":      {"<strikethrough>", "</strikethrough>"},
	"del":    {"<strikethrough>", "</strikethrough>"},
	"u":      {"<underline>", "</underline>"},
	"tt":     {"<monospace>", "</monospace>"},
	"code":   {"<monospace>", "</monospace>"},
	"ul":     {"<list>", "</list>"},
	"ol":     {"<list>", "</list>"},
	"li":     {"<list-item>", "</list-item>"},
	"a":      {"<link:url>", "</link:url>"},
}

// Remote block elements whose close implies a line break locally.
var blockTags = map[string]bool{"div": true, "p": true}

// enmlToTomboy rewrites a raw remote document (envelope included) into
// the inner markup of a local <note-content> element. Malformed remote
// content comes back as an error for the caller to substitute; this is
// the only transform direction that can fail, because the remote replica
// is the one we do not control.
func enmlToTomboy(body string) (string, error) {
	d := xml.NewDecoder(strings.NewReader(body))
	d.Strict = false
	d.AutoClose = xml.HTMLAutoClose
	d.Entity = xml.HTMLEntity

	var out strings.Builder
	inNote := false
	skipDepth := 0
	sawNote := false

	for {
		tok, err := d.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse remote content: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			name := strings.ToLower(t.Name.Local)
			if name == "en-note" {
				inNote = true
				sawNote = true
				continue
			}
			if !inNote {
				continue
			}
			if skipDepth > 0 {
				skipDepth++
				continue
			}
			switch name {
			case "br":
				out.WriteString("\n")
			case "en-todo":
				if todoChecked(t) {
					out.WriteString("[x] ")
				} else {
					out.WriteString("[ ] ")
				}
			case "en-crypt", "en-media":
				skipDepth = 1
			default:
				if pair, ok := tomboyTags[name]; ok {
					out.WriteString(pair[0])
				}
			}

		case xml.EndElement:
			name := strings.ToLower(t.Name.Local)
			if name == "en-note" {
				inNote = false
				continue
			}
			if !inNote {
				continue
			}
			if skipDepth > 0 {
				skipDepth--
				continue
			}
			if blockTags[name] {
				out.WriteString("\n")
				continue
			}
			if pair, ok := tomboyTags[name]; ok {
				out.WriteString(pair[1])
			}

		case xml.CharData:
			if inNote && skipDepth == 0 {
				out.WriteString(escapeText(string(t)))
			}
		}
	}

	if !sawNote {
		return "", errors.New("remote content has no en-note element")
	}
	return out.String(), nil
}

func todoChecked(t xml.StartElement) bool {
	for _, a := range t.Attr {
		if strings.EqualFold(a.Name.Local, "checked") && strings.EqualFold(a.Value, "true") {
			return true
		}
	}
	return false
}

// stripMarkup flattens local markup to its character data, the fallback
// body when the structured transform cannot run.
func stripMarkup(content string) string {
	d := xml.NewDecoder(strings.NewReader("<r>" + content + "</r>"))
	d.Strict = false
	d.Entity = xml.HTMLEntity
	var out strings.Builder
	for {
		tok, err := d.Token()
		if err != nil {
			break
		}
		if cd, ok := tok.(xml.CharData); ok {
			out.Write(cd)
		}
	}
	if out.Len() == 0 {
		return content
	}
	return out.String()
}
