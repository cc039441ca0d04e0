package schema

// Link describes one resolved relation for reporting
type Link struct {
	Table       string
	Property    string
	Kind        string
	TargetTable string
}

const (
	LinkOneToMany = "one_to_many"
	LinkManyToOne = "many_to_one"
)

// Ambiguity is a one-to-many relation left pending because several child
// tables declare a matching many-to-one property
type Ambiguity struct {
	Table      string
	Property   string
	Candidates []string
}

// resolver links pending relation declarations across a set of tables.
// Callers hold the registry lock.
type resolver struct {
	tables []*EntityMetadata
}

// resolve links many-to-one relations to the table owning their join column,
// then maps every one-to-many relation to its only matching child table. A
// one-to-many relation with several candidates stays pending and is
// returned as an ambiguity, even when it was linked by an earlier run.
// Re-running it on an unchanged set is a no-op.
func (r *resolver) resolve() ([]Link, []Ambiguity) {
	var links []Link
	for _, md := range r.tables {
		for i := range md.ManyToOneRelations {
			rel := &md.ManyToOneRelations[i]
			if rel.Resolved() {
				continue
			}
			target := r.tableForIDColumn(rel.JoinColumnName)
			if target == "" {
				continue
			}
			rel.TargetTable = target
			links = append(links, Link{Table: md.TableName, Property: rel.PropertyName, Kind: LinkManyToOne, TargetTable: target})
		}
	}

	var ambiguous []Ambiguity
	for _, md := range r.tables {
		for i := range md.OneToManyRelations {
			rel := &md.OneToManyRelations[i]
			candidates := r.mappedTables(md, i)

			mapped := ""
			switch {
			case len(candidates) == 1:
				mapped = candidates[0]
			case len(candidates) > 1:
				ambiguous = append(ambiguous, Ambiguity{Table: md.TableName, Property: rel.PropertyName, Candidates: candidates})
			}
			if mapped == rel.MappedTable {
				continue
			}
			rel.MappedTable = mapped
			if mapped != "" {
				links = append(links, Link{Table: md.TableName, Property: rel.PropertyName, Kind: LinkOneToMany, TargetTable: mapped})
			}
		}
	}
	return links, ambiguous
}

// mappedTables returns the tables declaring a many-to-one property named
// after the relation's mappedBy, joined on owner's id column and targeting
// owner. A declared table restricts the search to itself; otherwise tables
// declared by sibling relations are skipped.
func (r *resolver) mappedTables(owner *EntityMetadata, index int) []string {
	rel := owner.OneToManyRelations[index]
	claimed := make(map[string]bool)
	for i, sibling := range owner.OneToManyRelations {
		if i != index && sibling.DeclaredTable != "" {
			claimed[sibling.DeclaredTable] = true
		}
	}

	idColumn := owner.IDColumnName()
	var candidates []string
	for _, md := range r.tables {
		if rel.DeclaredTable != "" && md.TableName != rel.DeclaredTable {
			continue
		}
		if rel.DeclaredTable == "" && claimed[md.TableName] {
			continue
		}
		for _, m2o := range md.ManyToOneRelations {
			if m2o.PropertyName == rel.MappedBy && m2o.JoinColumnName == idColumn && m2o.TargetTable == owner.TableName {
				candidates = append(candidates, md.TableName)
				break
			}
		}
	}
	return candidates
}

func (r *resolver) tableForIDColumn(column string) string {
	for _, md := range r.tables {
		if md.IDColumnName() == column {
			return md.TableName
		}
	}
	return ""
}

func (r *resolver) tableForIDProperty(property string) string {
	for _, md := range r.tables {
		if md.IDPropertyName == property {
			return md.TableName
		}
	}
	return ""
}
