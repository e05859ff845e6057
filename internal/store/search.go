package store

import (
	"context"
	"fmt"

	"github.com/roach88/contentgraph/internal/apperr"
	"github.com/roach88/contentgraph/internal/ir"
	"github.com/roach88/contentgraph/internal/queryir"
	"github.com/roach88/contentgraph/internal/querysql"
)

// SearchEntities executes an entity Select and returns the matching ids in
// result order. The query is validated first; a malformed query is a
// BadRequest and never reaches the database.
//
// bound supplies BoundEquals values.
func (s *Store) SearchEntities(ctx context.Context, sel queryir.Select, bound map[string]ir.IRValue) ([]int64, error) {
	sel.Columns = []string{sel.From.Alias + ".id"}
	sqlText, params, err := s.compile(sel, bound)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, sqlText, params...)
	if err != nil {
		return nil, fmt.Errorf("search entities: %w", err)
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan entity id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entity ids: %w", err)
	}
	return ids, nil
}

// SearchRelations executes a relation Select and returns full relations.
func (s *Store) SearchRelations(ctx context.Context, sel queryir.Select, bound map[string]ir.IRValue) ([]ir.Relation, error) {
	sel.Columns = queryir.RelationColumns
	sqlText, params, err := s.compile(sel, bound)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, sqlText, params...)
	if err != nil {
		return nil, fmt.Errorf("search relations: %w", err)
	}
	defer rows.Close()

	rels := []ir.Relation{}
	for rows.Next() {
		r, err := scanRelation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan relation: %w", err)
		}
		rels = append(rels, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate relations: %w", err)
	}
	return rels, nil
}

func (s *Store) compile(sel queryir.Select, bound map[string]ir.IRValue) (string, []any, error) {
	if err := queryir.Validate(sel).Err(); err != nil {
		return "", nil, err
	}
	compiler := querysql.NewSQLCompiler()
	for k, v := range bound {
		compiler.BoundValues[k] = v
	}
	sqlText, params, err := compiler.Compile(sel)
	if err != nil {
		return "", nil, apperr.BadRequest("compile query: %v", err)
	}
	s.logger.Debug("compiled query", "sql", sqlText, "params", len(params))
	return sqlText, params, nil
}
