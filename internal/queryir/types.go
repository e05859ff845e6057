package queryir

import "github.com/roach88/contentgraph/internal/ir"

// Query represents an abstract query. Sealed: only Select implements it.
type Query interface {
	queryNode()
}

// Predicate represents a filter condition. Sealed to this package.
//
// Predicate types:
//   - Equals, BoundEquals, In, Like, Compare, BitClear: field tests
//   - HasRelation: correlated relation existence test
//   - And, Or, Not: connectives
//   - Const: literal true/false
type Predicate interface {
	predicateNode()
}

// Source names a table and the alias its fields are qualified with.
type Source struct {
	Table string
	Alias string
}

// Known sources.
var (
	Entities  = Source{Table: "entities", Alias: "entity"}
	Relations = Source{Table: "relations", Alias: "relation"}
)

// Select is a filtered, grouped, ordered, paginated read.
//
// Semantics:
//
//	SELECT <columns> FROM <from> [INNER JOIN <join>] WHERE <filter>
//	GROUP BY <group_by> ORDER BY <order_by> LIMIT <limit> OFFSET <offset>
//
// Grouping always happens before ordering and pagination, so a join that
// fans one entity out into several rows still yields each entity once and
// LIMIT counts entities, not rows.
type Select struct {
	From    Source
	Join    *Join
	Columns []string
	Filter  Predicate // nil = no filter
	GroupBy string    // "" = no grouping
	OrderBy []Order
	Limit   int // 0 = unlimited
	Offset  int
}

func (Select) queryNode() {}

// Join is an inner join of the Select's source with Right on
// LeftField = RightField.
//
// Example:
//
//	Join{Right: Relations, LeftField: "entity.id", RightField: "relation.to_id"}
type Join struct {
	Right      Source
	LeftField  string
	RightField string
}

// Order is one ORDER BY term.
type Order struct {
	Field string
	Desc  bool
}

// Equals represents <field> = <value>. A NULL value never matches.
type Equals struct {
	Field string
	Value ir.IRValue
}

func (Equals) predicateNode() {}

// BoundEquals represents <field> = <bound variable>. The value is supplied
// at evaluation or compile time, e.g. "bound.actor".
type BoundEquals struct {
	Field    string
	BoundVar string
}

func (BoundEquals) predicateNode() {}

// In represents <field> IN (<values>). An empty list never matches.
type In struct {
	Field  string
	Values []ir.IRValue
}

func (In) predicateNode() {}

// Like represents <field> LIKE <pattern> with SQLite semantics: % matches
// any run, _ matches one character, ASCII letters compare case-insensitively.
type Like struct {
	Field   string
	Pattern string
}

func (Like) predicateNode() {}

// CompareOp is an ordering comparison operator.
type CompareOp string

const (
	OpGT  CompareOp = ">"
	OpGTE CompareOp = ">="
	OpLT  CompareOp = "<"
	OpLTE CompareOp = "<="
	OpNE  CompareOp = "<>"
)

// Compare represents <field> <op> <value>.
type Compare struct {
	Field string
	Op    CompareOp
	Value ir.IRValue
}

func (Compare) predicateNode() {}

// And is a conjunction. Empty And is always true.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Or is a disjunction. Empty Or is always false.
type Or struct {
	Predicates []Predicate
}

func (Or) predicateNode() {}

// Not negates a predicate. NOT of an unknown (NULL) result stays unknown.
type Not struct {
	Predicate Predicate
}

func (Not) predicateNode() {}

// BitClear represents (<field> & <mask>) = 0.
type BitClear struct {
	Field string
	Mask  int64
}

func (BitClear) predicateNode() {}

// HasRelation holds when the entity is the target of a live relation of
// Type whose from_id is in FromIDs. It is a correlated test and does not
// depend on the joined relation row.
type HasRelation struct {
	Type    string
	FromIDs []int64
}

func (HasRelation) predicateNode() {}

// Const is a literal truth value.
type Const struct {
	Value bool
}

func (Const) predicateNode() {}

// True and False are the two constants.
var (
	True  Predicate = Const{Value: true}
	False Predicate = Const{Value: false}
)

// AllOf builds a simplified conjunction: true constants are dropped, a false
// constant collapses the whole expression, a single term is returned bare.
func AllOf(preds ...Predicate) Predicate {
	var out []Predicate
	for _, p := range preds {
		if p == nil {
			continue
		}
		if c, ok := p.(Const); ok {
			if !c.Value {
				return False
			}
			continue
		}
		out = append(out, p)
	}
	switch len(out) {
	case 0:
		return True
	case 1:
		return out[0]
	}
	return And{Predicates: out}
}

// AnyOf builds a simplified disjunction: false constants are dropped, a true
// constant collapses the whole expression, a single term is returned bare.
func AnyOf(preds ...Predicate) Predicate {
	var out []Predicate
	for _, p := range preds {
		if p == nil {
			continue
		}
		if c, ok := p.(Const); ok {
			if c.Value {
				return True
			}
			continue
		}
		out = append(out, p)
	}
	switch len(out) {
	case 0:
		return False
	case 1:
		return out[0]
	}
	return Or{Predicates: out}
}

// FieldKind is the storage type of a column.
type FieldKind int

const (
	KindInt FieldKind = iota + 1
	KindText
)

// Columns known to the validator, by qualified name.
var knownFields = map[string]FieldKind{
	"entity.id":            KindInt,
	"entity.type":          KindText,
	"entity.name":          KindText,
	"entity.content":       KindText,
	"entity.create_date":   KindInt,
	"entity.flags":         KindInt,
	"relation.id":          KindInt,
	"relation.type":        KindText,
	"relation.from_id":     KindInt,
	"relation.to_id":       KindInt,
	"relation.value":       KindText,
	"relation.kind":        KindText,
	"relation.subject_id":  KindInt,
	"relation.create_date": KindInt,
}

// KnownField reports whether field is a valid qualified column name.
func KnownField(field string) bool {
	_, ok := knownFields[field]
	return ok
}

// KindOf returns the storage type of a known field, or 0.
func KindOf(field string) FieldKind {
	return knownFields[field]
}
