// Package converter transforms a Markdown subset into Confluence storage format.
//
// Supported syntax: fenced code blocks, inline code, headings, bold/italic
// emphasis, pipe tables, horizontal rules, and images. Anything else
// (lists, links, blockquotes) passes through as literal text; that is the
// documented contract, not an oversight.
//
// The converter works as an ordered pipeline: the body is first scanned
// into typed blocks (code, table, heading, rule, text) so that structural
// elements are matched whole, then inline passes run over text content
// with code spans protected before emphasis rules. This ordering is what
// keeps a "#" or "*" inside a code fence from being reinterpreted.
package converter

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/corville/confsync/internal/syncerr"
)

// Document is the result of a conversion.
type Document struct {
	// Storage is the page body in Confluence storage format.
	Storage string
	// Attachments lists relative image paths referenced by the body,
	// in order of first appearance, for upload alongside the page.
	Attachments []string
}

var (
	headingRe    = regexp.MustCompile(`^(#{1,6})\s+(.*?)\s*$`)
	inlineCodeRe = regexp.MustCompile("`([^`]*)`")
	imageRe      = regexp.MustCompile(`!\[([^\]]*)\]\(([^)\s]+)\)`)
	boldStarRe   = regexp.MustCompile(`\*\*(.+?)\*\*`)
	boldUnderRe  = regexp.MustCompile(`__(.+?)__`)
	italStarRe   = regexp.MustCompile(`\*(.+?)\*`)
	italUnderRe  = regexp.MustCompile(`_(.+?)_`)
	tableSepRe   = regexp.MustCompile(`^\|[\s:|-]+\|?\s*$`)
)

// Convert transforms Markdown body text into storage format. The output
// is deterministic: identical input yields identical output.
func Convert(body string) (*Document, error) {
	lines := strings.Split(body, "\n")
	blocks, err := scan(lines)
	if err != nil {
		return nil, err
	}

	doc := &Document{}
	seen := make(map[string]struct{})
	var out []string
	for _, b := range blocks {
		rendered := b.render(doc, seen)
		if rendered != "" {
			out = append(out, rendered)
		}
	}
	doc.Storage = strings.Join(out, "\n")
	return doc, nil
}

type blockKind int

const (
	blockText blockKind = iota
	blockCode
	blockTable
	blockHeading
	blockRule
)

type block struct {
	kind    blockKind
	lines   []string // text: paragraph lines; table: raw pipe rows; code: verbatim content
	lang    string   // code only
	level   int      // heading only
	heading string   // heading only
}

// scan groups lines into typed blocks. Code fences are consumed first so
// their content is never inspected by any other rule.
func scan(lines []string) ([]block, error) {
	var blocks []block
	var para []string

	flush := func() {
		if len(para) > 0 {
			blocks = append(blocks, block{kind: blockText, lines: para})
			para = nil
		}
	}

	for i := 0; i < len(lines); i++ {
		line := lines[i]

		switch {
		case strings.HasPrefix(line, "```"):
			flush()
			lang := strings.TrimSpace(strings.TrimPrefix(line, "```"))
			end := -1
			for j := i + 1; j < len(lines); j++ {
				if strings.TrimSpace(lines[j]) == "```" {
					end = j
					break
				}
			}
			if end < 0 {
				return nil, &syncerr.ConversionError{Err: fmt.Errorf("unclosed code fence at line %d", i+1)}
			}
			blocks = append(blocks, block{kind: blockCode, lines: lines[i+1 : end], lang: lang})
			i = end

		case isTableStart(lines, i):
			flush()
			end := i
			for end < len(lines) && strings.HasPrefix(strings.TrimSpace(lines[end]), "|") {
				end++
			}
			blocks = append(blocks, block{kind: blockTable, lines: lines[i:end]})
			i = end - 1

		case headingRe.MatchString(line):
			flush()
			m := headingRe.FindStringSubmatch(line)
			blocks = append(blocks, block{kind: blockHeading, level: len(m[1]), heading: m[2]})

		case isRule(line):
			flush()
			blocks = append(blocks, block{kind: blockRule})

		case strings.TrimSpace(line) == "":
			flush()

		default:
			para = append(para, line)
		}
	}
	flush()
	return blocks, nil
}

// isTableStart requires a pipe row immediately followed by a separator
// row; a lone pipe line stays literal text.
func isTableStart(lines []string, i int) bool {
	if !strings.HasPrefix(strings.TrimSpace(lines[i]), "|") {
		return false
	}
	return i+1 < len(lines) && tableSepRe.MatchString(strings.TrimSpace(lines[i+1])) &&
		strings.Contains(lines[i+1], "-")
}

// isRule matches a line consisting solely of three or more repeated rule
// characters (-, *, _), with optional surrounding whitespace.
func isRule(line string) bool {
	t := strings.TrimSpace(line)
	if len(t) < 3 {
		return false
	}
	c := t[0]
	if c != '-' && c != '*' && c != '_' {
		return false
	}
	for i := 1; i < len(t); i++ {
		if t[i] != c {
			return false
		}
	}
	return true
}

func (b block) render(doc *Document, seen map[string]struct{}) string {
	switch b.kind {
	case blockCode:
		return renderCode(b.lang, b.lines)
	case blockTable:
		return renderTable(b.lines, doc, seen)
	case blockHeading:
		return fmt.Sprintf("<h%d>%s</h%d>", b.level, inline(b.heading, doc, seen), b.level)
	case blockRule:
		return "<hr />"
	default:
		return renderParagraph(b.lines, doc, seen)
	}
}

func renderCode(lang string, lines []string) string {
	if lang == "" {
		lang = "none"
	}
	code := strings.Join(lines, "\n")
	if code != "" {
		code += "\n"
	}
	// A "]]>" inside the code would terminate the CDATA section early.
	code = strings.ReplaceAll(code, "]]>", "]]]]><![CDATA[>")
	return `<ac:structured-macro ac:name="code">` +
		`<ac:parameter ac:name="language">` + lang + `</ac:parameter>` +
		`<ac:plain-text-body><![CDATA[` + code + `]]></ac:plain-text-body>` +
		`</ac:structured-macro>`
}

// renderTable emits the header row as <th> cells and every row after the
// separator as <td> cells. Column count follows the source rows.
func renderTable(rows []string, doc *Document, seen map[string]struct{}) string {
	var sb strings.Builder
	sb.WriteString("<table><tbody>")

	sb.WriteString("<tr>")
	for _, cell := range splitRow(rows[0]) {
		sb.WriteString("<th>" + inline(cell, doc, seen) + "</th>")
	}
	sb.WriteString("</tr>")

	for _, row := range rows[2:] {
		sb.WriteString("<tr>")
		for _, cell := range splitRow(row) {
			sb.WriteString("<td>" + inline(cell, doc, seen) + "</td>")
		}
		sb.WriteString("</tr>")
	}

	sb.WriteString("</tbody></table>")
	return sb.String()
}

func splitRow(row string) []string {
	t := strings.TrimSpace(row)
	t = strings.TrimPrefix(t, "|")
	t = strings.TrimSuffix(t, "|")
	parts := strings.Split(t, "|")
	cells := make([]string, len(parts))
	for i, p := range parts {
		cells[i] = strings.TrimSpace(p)
	}
	return cells
}

func renderParagraph(lines []string, doc *Document, seen map[string]struct{}) string {
	raw := strings.Join(lines, "\n")
	conv := make([]string, len(lines))
	for i, l := range lines {
		conv[i] = inline(l, doc, seen)
	}
	text := strings.Join(conv, "\n")
	// Wrapping is decided on the source text: raw markup and standalone
	// image references stay unwrapped, while a paragraph that merely
	// begins with emphasis or inline code is still prose.
	if strings.HasPrefix(raw, "<") || startsWithImage(raw) {
		return text
	}
	return "<p>" + text + "</p>"
}

func startsWithImage(s string) bool {
	loc := imageRe.FindStringIndex(s)
	return loc != nil && loc[0] == 0
}

// inline applies the character-level passes to one line or cell. Inline
// code spans and image references are swapped for placeholders before the
// emphasis rules run, then restored, so their content stays verbatim.
func inline(s string, doc *Document, seen map[string]struct{}) string {
	var protected []string
	protect := func(rendered string) string {
		protected = append(protected, rendered)
		return fmt.Sprintf("\x00%d\x00", len(protected)-1)
	}

	s = inlineCodeRe.ReplaceAllStringFunc(s, func(m string) string {
		content := inlineCodeRe.FindStringSubmatch(m)[1]
		return protect("<code>" + content + "</code>")
	})

	s = imageRe.ReplaceAllStringFunc(s, func(m string) string {
		g := imageRe.FindStringSubmatch(m)
		return protect(renderImage(g[2], doc, seen))
	})

	s = boldStarRe.ReplaceAllString(s, "<strong>$1</strong>")
	s = boldUnderRe.ReplaceAllString(s, "<strong>$1</strong>")
	s = italStarRe.ReplaceAllString(s, "<em>$1</em>")
	s = italUnderRe.ReplaceAllString(s, "<em>$1</em>")

	for i, r := range protected {
		s = strings.Replace(s, fmt.Sprintf("\x00%d\x00", i), r, 1)
	}
	return s
}

// renderImage emits an external image for absolute URLs and an attachment
// reference for repository-relative paths, recording the path for upload.
func renderImage(target string, doc *Document, seen map[string]struct{}) string {
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		return `<ac:image><ri:url ri:value="` + target + `" /></ac:image>`
	}
	if _, dup := seen[target]; !dup {
		seen[target] = struct{}{}
		doc.Attachments = append(doc.Attachments, target)
	}
	return `<ac:image><ri:attachment ri:filename="` + path.Base(target) + `" /></ac:image>`
}
