package ir

import "sort"

// EntityPackage is an entity bundled with every relation pointing at it and
// every value attached to it. Permission checks operate on packages.
type EntityPackage struct {
	Entity    Entity     `json:"entity" yaml:"entity"`
	Relations []Relation `json:"relations" yaml:"relations"`
	Values    []Value    `json:"values" yaml:"values"`
}

// RelationsOfType returns the live relations with the given type.
func (p EntityPackage) RelationsOfType(relType string) []Relation {
	var out []Relation
	for _, r := range p.Relations {
		if r.Type == relType && (r.Kind == KindLive || r.Kind == "") {
			out = append(out, r)
		}
	}
	return out
}

// CreatorID returns the owner recorded by the creator relation, or 0.
func (p EntityPackage) CreatorID() int64 {
	for _, r := range p.RelationsOfType(RelCreator) {
		return r.FromID
	}
	return 0
}

// ParentID returns the parent recorded by the parent relation, or 0.
func (p EntityPackage) ParentID() int64 {
	for _, r := range p.RelationsOfType(RelParent) {
		return r.FromID
	}
	return 0
}

// Supers returns the local supers of the entity, sorted.
func (p EntityPackage) Supers() []int64 {
	var out []int64
	for _, r := range p.RelationsOfType(RelSuper) {
		out = append(out, r.FromID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ValueMap returns the package values keyed by Key.
func (p EntityPackage) ValueMap() map[string]string {
	m := make(map[string]string, len(p.Values))
	for _, v := range p.Values {
		m[v.Key] = v.Value
	}
	return m
}

// Rows expands the package into the (entity, relation) rows a relational
// inner join of entities with relations would produce. A package with no
// relations yields no rows.
func (p EntityPackage) Rows() []PackageRow {
	rows := make([]PackageRow, len(p.Relations))
	for i := range p.Relations {
		rows[i] = PackageRow{Entity: &p.Entity, Relation: &p.Relations[i], Package: &p}
	}
	return rows
}

// PackageRow is one joined (entity, relation) row. Fields are addressed as
// "entity.<column>" and "relation.<column>", the same names the SQL
// compiler uses.
type PackageRow struct {
	Entity   *Entity
	Relation *Relation
	Package  *EntityPackage
}

// LiveRelations returns the live relations of the row's package with the
// given type.
func (r PackageRow) LiveRelations(relType string) []Relation {
	if r.Package == nil {
		return nil
	}
	return r.Package.RelationsOfType(relType)
}

// Lookup returns the value of a qualified field. The boolean is false when
// the field is unknown or its side of the row is absent.
func (r PackageRow) Lookup(field string) (IRValue, bool) {
	if r.Entity != nil {
		if v, ok := entityField(r.Entity, field); ok {
			return v, true
		}
	}
	if r.Relation != nil {
		if v, ok := relationField(r.Relation, field); ok {
			return v, true
		}
	}
	return nil, false
}

// RelationRow exposes a single relation to predicate evaluation.
type RelationRow struct {
	Relation *Relation
}

// Lookup returns the value of a "relation.<column>" field.
func (r RelationRow) Lookup(field string) (IRValue, bool) {
	return relationField(r.Relation, field)
}

func entityField(e *Entity, field string) (IRValue, bool) {
	switch field {
	case "entity.id":
		return IRInt(e.ID), true
	case "entity.type":
		return IRString(e.Type), true
	case "entity.name":
		return IRString(e.Name), true
	case "entity.content":
		return IRString(e.Content), true
	case "entity.create_date":
		return IRInt(e.CreateDate.UnixNano()), true
	case "entity.flags":
		return IRInt(e.Flags), true
	}
	return nil, false
}

func relationField(r *Relation, field string) (IRValue, bool) {
	switch field {
	case "relation.id":
		return IRInt(r.ID), true
	case "relation.type":
		return IRString(r.Type), true
	case "relation.from_id":
		return IRInt(r.FromID), true
	case "relation.to_id":
		return IRInt(r.ToID), true
	case "relation.value":
		return IRString(r.Value), true
	case "relation.kind":
		kind := r.Kind
		if kind == "" {
			kind = KindLive
		}
		return IRString(kind), true
	case "relation.subject_id":
		return IRInt(r.SubjectID), true
	case "relation.create_date":
		return IRInt(r.CreateDate.UnixNano()), true
	}
	return nil, false
}
