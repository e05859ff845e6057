package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/contentgraph/internal/ir"
	"github.com/roach88/contentgraph/internal/queryir"
)

// SQLCompiler compiles QueryIR to parameterized SQL for SQLite.
//
// Every query ends in an ORDER BY with the grouping (or primary) key as the
// final tiebreaker, so results and pagination are deterministic. Values are
// always bound as parameters, never interpolated.
type SQLCompiler struct {
	// BoundValues holds the values for BoundEquals predicates, keyed by the
	// full variable name.
	BoundValues map[string]ir.IRValue
}

// NewSQLCompiler creates a new SQLCompiler.
func NewSQLCompiler() *SQLCompiler {
	return &SQLCompiler{
		BoundValues: make(map[string]ir.IRValue),
	}
}

// Compile converts a QueryIR query to parameterized SQL.
// Returns (sql, params, error) tuple.
func (c *SQLCompiler) Compile(q queryir.Query) (string, []any, error) {
	if q == nil {
		return "", nil, fmt.Errorf("cannot compile nil query")
	}

	switch query := q.(type) {
	case queryir.Select:
		return c.compileSelect(query)
	case *queryir.Select:
		return c.compileSelect(*query)
	default:
		return "", nil, fmt.Errorf("unsupported query type: %T", q)
	}
}

// CompilePredicate compiles a bare predicate to a WHERE fragment.
func (c *SQLCompiler) CompilePredicate(p queryir.Predicate) (string, []any, error) {
	return c.compilePredicate(p)
}

func (c *SQLCompiler) compileSelect(q queryir.Select) (string, []any, error) {
	if len(q.Columns) == 0 {
		return "", nil, fmt.Errorf("select has no columns")
	}

	var b strings.Builder
	var params []any

	fmt.Fprintf(&b, "SELECT %s FROM %s AS %s",
		strings.Join(q.Columns, ", "), q.From.Table, q.From.Alias)

	if q.Join != nil {
		fmt.Fprintf(&b, " INNER JOIN %s AS %s ON %s = %s",
			q.Join.Right.Table, q.Join.Right.Alias, q.Join.LeftField, q.Join.RightField)
	}

	if q.Filter != nil {
		filterSQL, filterParams, err := c.compilePredicate(q.Filter)
		if err != nil {
			return "", nil, fmt.Errorf("compile filter: %w", err)
		}
		b.WriteString(" WHERE ")
		b.WriteString(filterSQL)
		params = append(params, filterParams...)
	}

	if q.GroupBy != "" {
		b.WriteString(" GROUP BY ")
		b.WriteString(q.GroupBy)
	}

	b.WriteString(" ORDER BY ")
	b.WriteString(c.stableOrderKey(q))

	switch {
	case q.Limit > 0:
		b.WriteString(" LIMIT ? OFFSET ?")
		params = append(params, int64(q.Limit), int64(q.Offset))
	case q.Offset > 0:
		b.WriteString(" LIMIT -1 OFFSET ?")
		params = append(params, int64(q.Offset))
	}

	return b.String(), params, nil
}

// stableOrderKey renders the ORDER BY terms followed by the tiebreaker key.
// Text columns sort with COLLATE BINARY so ordering does not depend on the
// connection's default collation.
func (c *SQLCompiler) stableOrderKey(q queryir.Select) string {
	key := q.GroupBy
	if key == "" {
		key = q.From.Alias + ".id"
	}

	var terms []string
	tiebreak := true
	for _, o := range q.OrderBy {
		terms = append(terms, orderTerm(o))
		if o.Field == key {
			tiebreak = false
		}
	}
	if tiebreak {
		terms = append(terms, orderTerm(queryir.Order{Field: key}))
	}
	return strings.Join(terms, ", ")
}

func orderTerm(o queryir.Order) string {
	dir := "ASC"
	if o.Desc {
		dir = "DESC"
	}
	if queryir.KindOf(o.Field) == queryir.KindText {
		return o.Field + " COLLATE BINARY " + dir
	}
	return o.Field + " " + dir
}

// compilePredicate compiles a queryir.Predicate to a WHERE fragment.
// Connectives are always parenthesized.
func (c *SQLCompiler) compilePredicate(p queryir.Predicate) (string, []any, error) {
	if p == nil {
		return "1 = 1", nil, nil
	}

	switch pred := p.(type) {
	case queryir.Const:
		if pred.Value {
			return "1 = 1", nil, nil
		}
		return "0 = 1", nil, nil
	case queryir.Equals:
		return compareSQL(pred.Field, "=", pred.Value)
	case queryir.BoundEquals:
		return c.compileBoundEquals(pred)
	case queryir.Compare:
		return compareSQL(pred.Field, string(pred.Op), pred.Value)
	case queryir.In:
		return compileIn(pred)
	case queryir.Like:
		return pred.Field + " LIKE ?", []any{pred.Pattern}, nil
	case queryir.BitClear:
		return fmt.Sprintf("(%s & ?) = 0", pred.Field), []any{pred.Mask}, nil
	case queryir.HasRelation:
		return compileHasRelation(pred)
	case queryir.And:
		return c.compileConnective(pred.Predicates, " AND ", "1 = 1")
	case queryir.Or:
		return c.compileConnective(pred.Predicates, " OR ", "0 = 1")
	case queryir.Not:
		sql, params, err := c.compilePredicate(pred.Predicate)
		if err != nil {
			return "", nil, err
		}
		return "NOT (" + sql + ")", params, nil
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func compareSQL(field, op string, v ir.IRValue) (string, []any, error) {
	param, err := ir.ToParam(v)
	if err != nil {
		return "", nil, fmt.Errorf("convert value for %s: %w", field, err)
	}
	return fmt.Sprintf("%s %s ?", field, op), []any{param}, nil
}

// compileIn renders "field IN (?, ...)". An empty list matches nothing.
func compileIn(in queryir.In) (string, []any, error) {
	if len(in.Values) == 0 {
		return "0 = 1", nil, nil
	}
	params := make([]any, len(in.Values))
	for i, v := range in.Values {
		param, err := ir.ToParam(v)
		if err != nil {
			return "", nil, fmt.Errorf("convert value for %s: %w", in.Field, err)
		}
		params[i] = param
	}
	return fmt.Sprintf("%s IN (%s)", in.Field, placeholders(len(params))), params, nil
}

func compileHasRelation(h queryir.HasRelation) (string, []any, error) {
	if len(h.FromIDs) == 0 {
		return "0 = 1", nil, nil
	}
	params := []any{h.Type, string(ir.KindLive)}
	for _, id := range h.FromIDs {
		params = append(params, id)
	}
	sql := fmt.Sprintf("entity.id IN (SELECT linked.to_id FROM relations AS linked"+
		" WHERE linked.type = ? AND linked.kind = ? AND linked.from_id IN (%s))",
		placeholders(len(h.FromIDs)))
	return sql, params, nil
}

func (c *SQLCompiler) compileConnective(preds []queryir.Predicate, sep, empty string) (string, []any, error) {
	if len(preds) == 0 {
		return empty, nil, nil
	}

	var sqlParts []string
	var allParams []any
	for _, pred := range preds {
		sql, params, err := c.compilePredicate(pred)
		if err != nil {
			return "", nil, err
		}
		sqlParts = append(sqlParts, sql)
		allParams = append(allParams, params...)
	}
	return "(" + strings.Join(sqlParts, sep) + ")", allParams, nil
}

// compileBoundEquals looks the bound value up in BoundValues. A missing
// binding is an error rather than an unbound placeholder.
func (c *SQLCompiler) compileBoundEquals(beq queryir.BoundEquals) (string, []any, error) {
	val, ok := c.BoundValues[beq.BoundVar]
	if !ok {
		return "", nil, fmt.Errorf("no value bound for %q", beq.BoundVar)
	}
	return compareSQL(beq.Field, "=", val)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
