// Package frontmatter extracts the Confluence page header from Markdown content.
package frontmatter

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/corville/confsync/internal/syncerr"
)

const delim = "---"

// Recognized header keys.
const (
	KeyPageID   = "confluence_page_id"
	KeySpaceKey = "confluence_space_key"
	KeyTitle    = "confluence_title"
	KeyParentID = "confluence_parent_id"
)

// Meta holds the recognized header fields. All fields are optional;
// empty values fall back to run-wide defaults at reconcile time.
type Meta struct {
	PageID   string
	SpaceKey string
	Title    string
	ParentID string
}

// IsZero reports whether no header field was set.
func (m Meta) IsZero() bool {
	return m == Meta{}
}

// Result holds the output of splitting a Markdown file.
type Result struct {
	Meta Meta
	Body string
}

// Parse splits raw Markdown bytes into header metadata and body.
//
// A header is only recognized when the very first line of the file is the
// "---" delimiter; a delimiter line appearing later (a horizontal rule)
// never opens a header. With no header, or with an opening delimiter that
// is never closed, the whole input is the body, byte for byte.
//
// A well-delimited header with unparseable YAML is a
// *syncerr.MetadataParseError: the file is reported as failed rather than
// silently synced with the raw header left in its body.
func Parse(data []byte) (*Result, error) {
	first, rest, found := bytes.Cut(data, []byte("\n"))
	if !found || !isDelimLine(first) {
		return &Result{Body: string(data)}, nil
	}

	block, body, closed := splitHeader(rest)
	if !closed {
		return &Result{Body: string(data)}, nil
	}

	meta, err := parseBlock(block)
	if err != nil {
		return nil, &syncerr.MetadataParseError{Err: err}
	}

	return &Result{Meta: meta, Body: body}, nil
}

// splitHeader finds the first closing delimiter line in the bytes after
// the opening line. Everything after it belongs to the body untouched;
// later delimiter lines (horizontal rules) are never considered.
func splitHeader(rest []byte) (block []byte, body string, closed bool) {
	if isDelimLine(firstLine(rest)) {
		// Empty header: "---\n---\n...".
		return nil, trimLeadingBlank(afterLine(rest)), true
	}
	offset := 0
	for {
		idx := bytes.Index(rest[offset:], []byte("\n"+delim))
		if idx < 0 {
			return nil, "", false
		}
		lineStart := offset + idx + 1
		if isDelimLine(firstLine(rest[lineStart:])) {
			return rest[:offset+idx], trimLeadingBlank(afterLine(rest[lineStart:])), true
		}
		offset = lineStart
	}
}

// parseBlock decodes the header as YAML and coerces the recognized keys
// to strings. Unknown keys are ignored; scalar ints (unquoted page IDs)
// are accepted.
func parseBlock(block []byte) (Meta, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(block, &raw); err != nil {
		return Meta{}, err
	}
	m := Meta{
		PageID:   stringValue(raw[KeyPageID]),
		SpaceKey: stringValue(raw[KeySpaceKey]),
		Title:    stringValue(raw[KeyTitle]),
		ParentID: stringValue(raw[KeyParentID]),
	}
	return m, nil
}

func stringValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", t))
	}
}

// isDelimLine reports whether line is exactly "---" modulo trailing whitespace.
func isDelimLine(line []byte) bool {
	return string(bytes.TrimRight(line, " \t\r")) == delim
}

func firstLine(data []byte) []byte {
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		return data[:i]
	}
	return data
}

func afterLine(data []byte) []byte {
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		return data[i+1:]
	}
	return nil
}

// trimLeadingBlank drops the blank line conventionally left after the
// closing delimiter.
func trimLeadingBlank(data []byte) string {
	return strings.TrimLeft(string(data), "\n\r")
}
