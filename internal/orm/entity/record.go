// Package entity converts between database rows and entities: hydration,
// JSON projection and deep cloning.
package entity

import (
	"sort"

	"github.com/conduit-lang/persist/internal/orm/schema"
)

// Record is a map backed entity usable with any metadata
type Record struct {
	md     *schema.EntityMetadata
	values map[string]any
}

// NewRecord creates a record for md holding a copy of dto
func NewRecord(md *schema.EntityMetadata, dto map[string]any) *Record {
	values := make(map[string]any, len(dto))
	for k, v := range dto {
		values[k] = v
	}
	return &Record{md: md, values: values}
}

// RecordFactory is an EntityFactory producing records
func RecordFactory(md *schema.EntityMetadata, dto map[string]any) schema.Entity {
	return NewRecord(md, dto)
}

// Metadata implements schema.Entity
func (r *Record) Metadata() *schema.EntityMetadata {
	return r.md
}

// Get implements schema.Entity
func (r *Record) Get(property string) (any, bool) {
	v, ok := r.values[property]
	return v, ok
}

// Set implements schema.Entity
func (r *Record) Set(property string, value any) {
	r.values[property] = value
}

// Unset implements schema.Entity
func (r *Record) Unset(property string) {
	delete(r.values, property)
}

// Properties returns the set properties: declared fields first, then
// one-to-many collections, then anything else in name order
func (r *Record) Properties() []string {
	seen := make(map[string]bool, len(r.values))
	props := make([]string, 0, len(r.values))
	add := func(name string) {
		if _, ok := r.values[name]; ok && !seen[name] {
			seen[name] = true
			props = append(props, name)
		}
	}

	if r.md != nil {
		for _, f := range r.md.Fields {
			add(f.PropertyName)
		}
		for _, rel := range r.md.OneToManyRelations {
			add(rel.PropertyName)
		}
	}

	var rest []string
	for name := range r.values {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	return append(props, rest...)
}

// MarshalJSON projects the record with ToJSON
func (r *Record) MarshalJSON() ([]byte, error) {
	return marshalProjection(r)
}
