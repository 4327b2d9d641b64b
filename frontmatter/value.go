// Package frontmatter reads and writes the restricted key/value header
// block that sits at the top of a Markdown post, delimited by "---" lines.
//
// Values are either strings or lists of strings. The grammar is a small
// subset of YAML: one "key: value" pair per line, double-quoted strings,
// and flow lists written as ["a", "b"].
package frontmatter

import "strings"

// Kind tells which variant a Value holds.
type Kind int

const (
	KindString Kind = iota
	KindList
)

// Value is a frontmatter value: a string or a list of strings.
type Value struct {
	kind  Kind
	str   string
	items []string
	raw   bool
}

// String returns a string value. It is rendered double-quoted.
func String(s string) Value {
	return Value{kind: KindString, str: s}
}

// Raw returns a string value that is rendered without quotes, the way
// timestamps are written. Unquoted values read from a document are Raw,
// so they are written back the way they were found.
func Raw(s string) Value {
	return Value{kind: KindString, str: s, raw: true}
}

// List returns a list value. List() with no items is an empty list,
// which is distinct from an absent key.
func List(items ...string) Value {
	cp := make([]string, len(items))
	copy(cp, items)
	return Value{kind: KindList, items: cp}
}

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsList() bool { return v.kind == KindList }

// Str returns the string variant, or "" for lists.
func (v Value) Str() string {
	if v.kind != KindString {
		return ""
	}
	return v.str
}

// Items returns a copy of the list variant, or nil for strings.
func (v Value) Items() []string {
	if v.kind != KindList {
		return nil
	}
	cp := make([]string, len(v.items))
	copy(cp, v.items)
	return cp
}

// String formats the value the way it appears in a document.
func (v Value) String() string {
	if v.kind == KindList {
		return renderList(v.items)
	}
	if v.raw {
		return v.str
	}
	return quote(v.str)
}

// Equal compares variant and contents. Quoting style is ignored.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	if v.kind == KindString {
		return v.str == o.str
	}
	if len(v.items) != len(o.items) {
		return false
	}
	for i := range v.items {
		if v.items[i] != o.items[i] {
			return false
		}
	}
	return true
}

// Attributes is an ordered mapping from key to Value. The zero value is
// an empty mapping ready to use. Insertion order is the render order.
type Attributes struct {
	keys   []string
	values map[string]Value
}

// Set adds or replaces key. Replacing keeps the original position.
func (a *Attributes) Set(key string, v Value) {
	if a.values == nil {
		a.values = make(map[string]Value)
	}
	if _, ok := a.values[key]; !ok {
		a.keys = append(a.keys, key)
	}
	a.values[key] = v
}

// Get returns the value stored under key.
func (a Attributes) Get(key string) (Value, bool) {
	v, ok := a.values[key]
	return v, ok
}

// Str returns the string stored under key, or "" when the key is absent
// or holds a list.
func (a Attributes) Str(key string) string {
	return a.values[key].Str()
}

// Has reports whether key is present.
func (a Attributes) Has(key string) bool {
	_, ok := a.values[key]
	return ok
}

// Delete removes key.
func (a *Attributes) Delete(key string) {
	if _, ok := a.values[key]; !ok {
		return
	}
	delete(a.values, key)
	for i, k := range a.keys {
		if k == key {
			a.keys = append(a.keys[:i], a.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in insertion order.
func (a Attributes) Keys() []string {
	cp := make([]string, len(a.keys))
	copy(cp, a.keys)
	return cp
}

func (a Attributes) Len() int { return len(a.keys) }

// Equal reports whether both mappings hold the same keys with equal
// values, regardless of order.
func (a Attributes) Equal(b Attributes) bool {
	if a.Len() != b.Len() {
		return false
	}
	for k, v := range a.values {
		w, ok := b.values[k]
		if !ok || !v.Equal(w) {
			return false
		}
	}
	return true
}

// Clone returns an independent copy.
func (a Attributes) Clone() Attributes {
	var out Attributes
	for _, k := range a.keys {
		out.Set(k, a.values[k])
	}
	return out
}

func (a Attributes) String() string {
	var b strings.Builder
	b.WriteString("{")
	for i, k := range a.keys {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(a.values[k].String())
	}
	b.WriteString("}")
	return b.String()
}
