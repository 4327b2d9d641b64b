package frontmatter

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const delimiter = "---"

// SyntaxError is returned by a strict Parser for a malformed block.
// Line is 1-based within the document; 0 means the block as a whole.
type SyntaxError struct {
	Line   int
	Reason string
	Err    error
}

func (e *SyntaxError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("frontmatter: line %d: %s", e.Line, e.Reason)
	}
	return "frontmatter: " + e.Reason
}

func (e *SyntaxError) Unwrap() error { return e.Err }

// Parser decodes frontmatter blocks. The zero value is lenient: lines it
// cannot read are skipped and an unterminated block counts as no block.
// A strict Parser reports those cases as *SyntaxError instead.
type Parser struct {
	Strict bool
}

// Extract returns the attributes of the leading block of document using
// the lenient rules. A document without a block yields an empty mapping.
func Extract(document string) Attributes {
	attrs, _ := Parser{}.Parse(document)
	return attrs
}

// ExtractContent returns document with its leading block and the line
// break after the closing delimiter removed. Documents without a
// complete block are returned unchanged.
func ExtractContent(document string) string {
	_, body, found, _ := splitBlock(document)
	if !found {
		return document
	}
	return body
}

// Parse decodes the leading block of document.
func (p Parser) Parse(document string) (Attributes, error) {
	var attrs Attributes
	lines, _, found, unterminated := splitBlock(document)
	if unterminated && p.Strict {
		return attrs, &SyntaxError{Line: 1, Reason: "block has no closing " + delimiter}
	}
	if !found {
		return attrs, nil
	}
	for i, line := range lines {
		key, value, reason := parseLine(line, p.Strict)
		if reason != "" {
			if p.Strict {
				return Attributes{}, &SyntaxError{Line: i + 2, Reason: reason}
			}
			continue
		}
		if key == "" {
			continue
		}
		attrs.Set(key, value)
	}
	if p.Strict {
		if err := checkYAML(lines); err != nil {
			return Attributes{}, err
		}
	}
	return attrs, nil
}

// Split returns the attributes and the body of document.
func (p Parser) Split(document string) (Attributes, string, error) {
	attrs, err := p.Parse(document)
	if err != nil {
		return Attributes{}, "", err
	}
	return attrs, ExtractContent(document), nil
}

// Render composes a document from attrs and body. String attributes with
// an empty value are left out.
func Render(attrs Attributes, body string) string {
	var b strings.Builder
	b.WriteString(delimiter)
	b.WriteByte('\n')
	for _, key := range attrs.keys {
		v := attrs.values[key]
		if v.kind == KindString && v.str == "" {
			continue
		}
		b.WriteString(key)
		b.WriteString(": ")
		b.WriteString(v.String())
		b.WriteByte('\n')
	}
	b.WriteString(delimiter)
	b.WriteByte('\n')
	b.WriteString(body)
	return b.String()
}

// splitBlock finds a block that opens on the first line of document.
// found is false when there is no opening delimiter or the block never
// closes; unterminated reports the latter.
func splitBlock(document string) (lines []string, body string, found, unterminated bool) {
	first, _, hasBreak := strings.Cut(document, "\n")
	if strings.TrimRight(first, "\r") != delimiter {
		return nil, document, false, false
	}
	if !hasBreak {
		return nil, document, false, true
	}
	pos := len(first) + 1
	for {
		idx := strings.IndexByte(document[pos:], '\n')
		var line string
		next := len(document)
		if idx < 0 {
			line = document[pos:]
		} else {
			line = document[pos : pos+idx]
			next = pos + idx + 1
		}
		line = strings.TrimRight(line, "\r")
		if line == delimiter {
			return lines, document[next:], true, false
		}
		lines = append(lines, line)
		if idx < 0 {
			return nil, document, false, true
		}
		pos = next
	}
}

// parseLine reads one "key: value" line. A non-empty reason means the
// line is malformed; blank lines return an empty key and no reason.
func parseLine(line string, strict bool) (string, Value, string) {
	if strings.TrimSpace(line) == "" {
		return "", Value{}, ""
	}
	rawKey, rawValue, ok := strings.Cut(line, ":")
	if !ok {
		return "", Value{}, "missing colon"
	}
	key := strings.TrimSpace(rawKey)
	if key == "" {
		return "", Value{}, "empty key"
	}
	value, reason := parseValue(strings.TrimSpace(rawValue), strict)
	return key, value, reason
}

func parseValue(raw string, strict bool) (Value, string) {
	switch {
	case isQuoted(raw):
		return String(unquote(raw[1 : len(raw)-1])), ""
	case strings.HasPrefix(raw, "[") && strings.HasSuffix(raw, "]"):
		items, ok := splitList(raw[1 : len(raw)-1])
		if !ok && strict {
			return Value{}, "unterminated string in list"
		}
		return List(items...), ""
	case strict && strings.HasPrefix(raw, `"`):
		return Value{}, "unterminated string"
	case strict && strings.HasPrefix(raw, "["):
		return Value{}, "unterminated list"
	}
	return Raw(raw), ""
}

// isQuoted reports whether s is a complete double-quoted string whose
// closing quote is not escaped.
func isQuoted(s string) bool {
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return false
	}
	escaped := false
	for i := 1; i < len(s)-1; i++ {
		switch {
		case escaped:
			escaped = false
		case s[i] == '\\':
			escaped = true
		}
	}
	return !escaped
}

// splitList splits the body of a flow list on commas outside quotes.
// ok is false when a quoted element never closes.
func splitList(body string) ([]string, bool) {
	if strings.TrimSpace(body) == "" {
		return []string{}, true
	}
	var (
		items   []string
		cur     strings.Builder
		inQuote bool
		escaped bool
	)
	flush := func() {
		item := strings.TrimSpace(cur.String())
		if isQuoted(item) {
			item = unquote(item[1 : len(item)-1])
		}
		items = append(items, item)
		cur.Reset()
	}
	for _, r := range body {
		switch {
		case escaped:
			escaped = false
		case inQuote && r == '\\':
			escaped = true
		case r == '"':
			inQuote = !inQuote
		case r == ',' && !inQuote:
			flush()
			continue
		}
		cur.WriteRune(r)
	}
	flush()
	return items, !inQuote
}

func quote(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

// unquote decodes the escapes written by quote. Unknown escapes are kept
// verbatim.
func unquote(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	escaped := false
	for _, r := range s {
		if !escaped {
			if r == '\\' {
				escaped = true
				continue
			}
			b.WriteRune(r)
			continue
		}
		escaped = false
		switch r {
		case '\\', '"':
			b.WriteRune(r)
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 't':
			b.WriteByte('\t')
		default:
			b.WriteByte('\\')
			b.WriteRune(r)
		}
	}
	if escaped {
		b.WriteByte('\\')
	}
	return b.String()
}

func renderList(items []string) string {
	quoted := make([]string, len(items))
	for i, item := range items {
		quoted[i] = quote(item)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

// checkYAML confirms the block also reads as a YAML mapping, which is
// how the site generator consumes it.
func checkYAML(lines []string) error {
	var out map[string]any
	if err := yaml.Unmarshal([]byte(strings.Join(lines, "\n")), &out); err != nil {
		return &SyntaxError{Reason: "not valid YAML: " + err.Error(), Err: err}
	}
	return nil
}
