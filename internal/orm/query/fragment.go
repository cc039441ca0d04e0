// Package query builds parameterized SQL for the relational persisters.
//
// Statements are assembled from fragments made of parts: raw SQL text, table
// references, identifiers and values. Nothing is rendered until Render is
// called with a dialect and a table prefix. Rendering validates and quotes
// identifiers, prefixes every table reference and emits one placeholder per
// value in textual order, so the query string and the value list always agree.
package query

import (
	"fmt"
	"strings"

	"github.com/conduit-lang/persist/internal/orm/ormerr"
	"github.com/conduit-lang/persist/internal/orm/schema"
)

type partKind int

const (
	partRaw partKind = iota
	partTable
	partIdent
	partValue
	partTextValue
)

type part struct {
	kind  partKind
	text  string
	value any
}

// Fragment is an unrendered piece of SQL. Fragments are values; the
// builder methods return a new fragment and never modify the receiver.
type Fragment struct {
	parts []part
}

// Raw returns a fragment of trusted SQL text
func Raw(sql string) Fragment {
	return Fragment{}.Raw(sql)
}

// Table returns a reference to table; the table prefix is applied on render
func Table(name string) Fragment {
	return Fragment{}.Table(name)
}

// Ident returns a quoted identifier such as a column or an alias
func Ident(name string) Fragment {
	return Fragment{}.Ident(name)
}

// Column returns a table qualified column reference
func Column(table, column string) Fragment {
	return Fragment{}.Column(table, column)
}

// Value returns a value placeholder
func Value(v any) Fragment {
	return Fragment{}.Value(v)
}

// TextValue returns a value placeholder typed as text
func TextValue(v any) Fragment {
	return Fragment{}.TextValue(v)
}

func (f Fragment) with(p ...part) Fragment {
	parts := make([]part, 0, len(f.parts)+len(p))
	parts = append(parts, f.parts...)
	parts = append(parts, p...)
	return Fragment{parts: parts}
}

// Raw appends trusted SQL text
func (f Fragment) Raw(sql string) Fragment {
	return f.with(part{kind: partRaw, text: sql})
}

// Table appends a table reference
func (f Fragment) Table(name string) Fragment {
	return f.with(part{kind: partTable, text: name})
}

// Ident appends an identifier
func (f Fragment) Ident(name string) Fragment {
	return f.with(part{kind: partIdent, text: name})
}

// Column appends a table qualified column reference
func (f Fragment) Column(table, column string) Fragment {
	return f.with(
		part{kind: partTable, text: table},
		part{kind: partRaw, text: "."},
		part{kind: partIdent, text: column},
	)
}

// Value appends a value placeholder
func (f Fragment) Value(v any) Fragment {
	return f.with(part{kind: partValue, value: v})
}

// TextValue appends a value placeholder typed as text
func (f Fragment) TextValue(v any) Fragment {
	return f.with(part{kind: partTextValue, value: v})
}

// Append appends other
func (f Fragment) Append(other Fragment) Fragment {
	return f.with(other.parts...)
}

// IsEmpty reports whether the fragment has no parts
func (f Fragment) IsEmpty() bool {
	return len(f.parts) == 0
}

// Values returns the values of the fragment in placeholder order
func (f Fragment) Values() []any {
	values := make([]any, 0)
	for _, p := range f.parts {
		if p.kind == partValue || p.kind == partTextValue {
			values = append(values, p.value)
		}
	}
	return values
}

// Join joins fragments with a raw separator
func Join(fragments []Fragment, sep string) Fragment {
	var result Fragment
	for i, frag := range fragments {
		if i > 0 {
			result = result.Raw(sep)
		}
		result = result.Append(frag)
	}
	return result
}

// Render renders the fragment for dialect d, prefixing every table
// reference with prefix
func (f Fragment) Render(d Dialect, prefix string) (string, []any, error) {
	var sb strings.Builder
	values := make([]any, 0)

	for _, p := range f.parts {
		switch p.kind {
		case partRaw:
			sb.WriteString(p.text)
		case partTable:
			name := prefix + p.text
			if !schema.ValidIdentifier(name) {
				return "", nil, fmt.Errorf("%w: table %q", ormerr.ErrInvalidIdentifier, name)
			}
			sb.WriteString(d.Quote(name))
		case partIdent:
			if !schema.ValidIdentifier(p.text) {
				return "", nil, fmt.Errorf("%w: %q", ormerr.ErrInvalidIdentifier, p.text)
			}
			sb.WriteString(d.Quote(p.text))
		case partValue:
			values = append(values, p.value)
			sb.WriteString(d.Placeholder(len(values)))
		case partTextValue:
			values = append(values, p.value)
			sb.WriteString(d.TextPlaceholder(len(values)))
		}
	}

	return sb.String(), values, nil
}

// Expression is anything that renders to a fragment, such as the JSON builders
type Expression interface {
	Fragment() Fragment
}
