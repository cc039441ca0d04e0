package schema

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/conduit-lang/persist/internal/orm/ormerr"
)

// Registry maps table names to entity metadata and resolves the relation
// declarations between registered tables. A registry is passed by handle to
// every persister that shares a set of entity types.
type Registry struct {
	tables    map[string]*EntityMetadata
	order     []string
	copies    map[string][]*EntityMetadata
	ambiguous []Ambiguity
	logger    *zap.Logger
	mu        sync.RWMutex
}

// RegistryOption configures a Registry
type RegistryOption func(*Registry)

// WithRegistryLogger sets the logger used to report relation resolution
func WithRegistryLogger(logger *zap.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRegistry creates a new metadata registry
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		tables: make(map[string]*EntityMetadata),
		copies: make(map[string][]*EntityMetadata),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetupEntityMetadata registers md under its table name and links every
// relation that became resolvable. It returns the registered metadata, which
// is the earlier instance when a compatible one was already registered. A
// compatible copy keeps receiving the relation links of the registered
// instance, so either value can be passed to a persister.
func (r *Registry) SetupEntityMetadata(md *EntityMetadata) (*EntityMetadata, error) {
	if err := Validate(md); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.tables[md.TableName]; ok {
		if !existing.compatible(md) {
			return nil, fmt.Errorf("%w: %s", ormerr.ErrDuplicateTable, md.TableName)
		}
		if existing != md && !r.tracked(md) {
			r.copies[md.TableName] = append(r.copies[md.TableName], md)
			syncRelations(existing, md)
		}
		return existing, nil
	}

	r.tables[md.TableName] = md
	r.order = append(r.order, md.TableName)
	r.resolve()

	if pending := md.Pending(); len(pending) > 0 {
		r.logger.Debug("relations pending", zap.String("table", md.TableName), zap.Strings("properties", pending))
	}
	return md, nil
}

// resolve links relations across every registered table and propagates
// the result to compatible copies
func (r *Registry) resolve() {
	res := resolver{tables: r.snapshot()}
	links, ambiguous := res.resolve()
	for _, link := range links {
		r.logger.Debug("relation resolved",
			zap.String("table", link.Table),
			zap.String("property", link.Property),
			zap.String("kind", link.Kind),
			zap.String("target", link.TargetTable))
	}
	for _, a := range ambiguous {
		r.logger.Warn("relation is ambiguous, declare its mapped table",
			zap.String("table", a.Table),
			zap.String("property", a.Property),
			zap.Strings("candidates", a.Candidates))
	}
	r.ambiguous = ambiguous

	for table, copies := range r.copies {
		for _, c := range copies {
			syncRelations(r.tables[table], c)
		}
	}
}

func (r *Registry) tracked(md *EntityMetadata) bool {
	for _, c := range r.copies[md.TableName] {
		if c == md {
			return true
		}
	}
	return false
}

// syncRelations copies the resolution state of from into the compatible to
func syncRelations(from, to *EntityMetadata) {
	for i := range from.OneToManyRelations {
		to.OneToManyRelations[i].MappedTable = from.OneToManyRelations[i].MappedTable
	}
	for i := range from.ManyToOneRelations {
		to.ManyToOneRelations[i].TargetTable = from.ManyToOneRelations[i].TargetTable
	}
}

// snapshot returns the registered metadata in registration order
func (r *Registry) snapshot() []*EntityMetadata {
	result := make([]*EntityMetadata, 0, len(r.order))
	for _, name := range r.order {
		result = append(result, r.tables[name])
	}
	return result
}

// GetMetadataByTable retrieves metadata by table name
func (r *Registry) GetMetadataByTable(table string) (*EntityMetadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	md, ok := r.tables[table]
	return md, ok
}

// GetTableForIdPropertyName returns the first table, in registration order,
// whose id property is name. Several tables sharing an id property name is
// not supported; the result is then whichever registered first.
func (r *Registry) GetTableForIdPropertyName(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res := resolver{tables: r.snapshot()}
	table := res.tableForIDProperty(name)
	return table, table != ""
}

// GetTableForIdColumnName returns the first table, in registration order,
// whose id column is name
func (r *Registry) GetTableForIdColumnName(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res := resolver{tables: r.snapshot()}
	table := res.tableForIDColumn(name)
	return table, table != ""
}

// All returns the registered metadata in registration order
func (r *Registry) All() []*EntityMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.snapshot()
}

// Tables returns the registered table names in registration order
func (r *Registry) Tables() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]string(nil), r.order...)
}

// Links returns every resolved relation
func (r *Registry) Links() []Link {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var links []Link
	for _, md := range r.snapshot() {
		for _, rel := range md.OneToManyRelations {
			if rel.Resolved() {
				links = append(links, Link{Table: md.TableName, Property: rel.PropertyName, Kind: LinkOneToMany, TargetTable: rel.MappedTable})
			}
		}
		for _, rel := range md.ManyToOneRelations {
			if rel.Resolved() {
				links = append(links, Link{Table: md.TableName, Property: rel.PropertyName, Kind: LinkManyToOne, TargetTable: rel.TargetTable})
			}
		}
	}
	return links
}

// Pending returns the unresolved relation properties per table
func (r *Registry) Pending() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string][]string)
	for _, md := range r.snapshot() {
		if pending := md.Pending(); len(pending) > 0 {
			result[md.TableName] = pending
		}
	}
	return result
}

// Ambiguities returns the one-to-many relations left pending because
// several child tables match them
func (r *Registry) Ambiguities() []Ambiguity {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Ambiguity, 0, len(r.ambiguous))
	for _, a := range r.ambiguous {
		a.Candidates = append([]string(nil), a.Candidates...)
		result = append(result, a)
	}
	return result
}

// Clear removes all registered metadata (useful for testing)
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tables = make(map[string]*EntityMetadata)
	r.copies = make(map[string][]*EntityMetadata)
	r.order = nil
	r.ambiguous = nil
}

// Count returns the number of registered tables
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.tables)
}

// Exists checks if a table is registered
func (r *Registry) Exists(table string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.tables[table]
	return exists
}
