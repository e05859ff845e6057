package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/contentgraph/internal/apperr"
	"github.com/roach88/contentgraph/internal/ir"
)

// querier is satisfied by *sql.DB and *sql.Tx. Reads made while a write
// transaction is open must go through the transaction: the pool holds a
// single connection.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

// ReadEntity returns one entity, deleted or not.
func (s *Store) ReadEntity(ctx context.Context, id int64) (ir.Entity, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, type, name, content, create_date, flags
		FROM entities WHERE id = ?
	`, id)
	e, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Entity{}, apperr.NotFound("entity %d not found", id)
	}
	if err != nil {
		return ir.Entity{}, fmt.Errorf("read entity %d: %w", id, err)
	}
	return e, nil
}

// ReadPackage returns one entity package, deleted or not.
func (s *Store) ReadPackage(ctx context.Context, id int64) (ir.EntityPackage, error) {
	return readPackage(ctx, s.db, id)
}

func readPackage(ctx context.Context, q querier, id int64) (ir.EntityPackage, error) {
	pkgs, err := readPackages(ctx, q, []int64{id})
	if err != nil {
		return ir.EntityPackage{}, err
	}
	if len(pkgs) == 0 {
		return ir.EntityPackage{}, apperr.NotFound("entity %d not found", id)
	}
	return pkgs[0], nil
}

// ReadPackages loads the packages for ids in the order given. Ids that do
// not resolve are skipped. A package holds every relation whose to_id is
// the entity, in id order, and every value, in key order.
func (s *Store) ReadPackages(ctx context.Context, ids []int64) ([]ir.EntityPackage, error) {
	return readPackages(ctx, s.db, ids)
}

func readPackages(ctx context.Context, q querier, ids []int64) ([]ir.EntityPackage, error) {
	if len(ids) == 0 {
		return []ir.EntityPackage{}, nil
	}
	in, args := inClause(ids)

	byID := make(map[int64]*ir.EntityPackage, len(ids))
	rows, err := q.QueryContext(ctx, `
		SELECT id, type, name, content, create_date, flags
		FROM entities WHERE id IN (`+in+`)
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("query entities: %w", err)
	}
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		byID[e.ID] = &ir.EntityPackage{Entity: e, Relations: []ir.Relation{}, Values: []ir.Value{}}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entities: %w", err)
	}

	rows, err = q.QueryContext(ctx, `
		SELECT id, type, from_id, to_id, value, kind, subject_id, create_date
		FROM relations WHERE to_id IN (`+in+`)
		ORDER BY id ASC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("query relations: %w", err)
	}
	for rows.Next() {
		r, err := scanRelation(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan relation: %w", err)
		}
		if pkg := byID[r.ToID]; pkg != nil {
			pkg.Relations = append(pkg.Relations, r)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate relations: %w", err)
	}

	rows, err = q.QueryContext(ctx, `
		SELECT id, entity_id, key, value, create_date
		FROM entity_values WHERE entity_id IN (`+in+`)
		ORDER BY key COLLATE BINARY ASC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("query values: %w", err)
	}
	for rows.Next() {
		var v ir.Value
		var created int64
		if err := rows.Scan(&v.ID, &v.EntityID, &v.Key, &v.Value, &created); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan value: %w", err)
		}
		v.CreateDate = fromNanos(created)
		if pkg := byID[v.EntityID]; pkg != nil {
			pkg.Values = append(pkg.Values, v)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate values: %w", err)
	}

	pkgs := make([]ir.EntityPackage, 0, len(byID))
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if pkg := byID[id]; pkg != nil && !seen[id] {
			seen[id] = true
			pkgs = append(pkgs, *pkg)
		}
	}
	return pkgs, nil
}

// ReadRelation returns one relation by id.
func (s *Store) ReadRelation(ctx context.Context, id int64) (ir.Relation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, type, from_id, to_id, value, kind, subject_id, create_date
		FROM relations WHERE id = ?
	`, id)
	r, err := scanRelation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Relation{}, apperr.NotFound("relation %d not found", id)
	}
	if err != nil {
		return ir.Relation{}, fmt.Errorf("read relation %d: %w", id, err)
	}
	return r, nil
}

// ReadValue returns one keyed value of an entity.
func (s *Store) ReadValue(ctx context.Context, entityID int64, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM entity_values WHERE entity_id = ? AND key = ?`,
		entityID, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", apperr.NotFound("value %q on entity %d not found", key, entityID)
	}
	if err != nil {
		return "", fmt.Errorf("read value %q: %w", key, err)
	}
	return value, nil
}

// MaxRelationID returns the highest relation id, or 0 for an empty store.
func (s *Store) MaxRelationID(ctx context.Context) (int64, error) {
	var id int64
	if err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(id), 0) FROM relations`,
	).Scan(&id); err != nil {
		return 0, fmt.Errorf("max relation id: %w", err)
	}
	return id, nil
}

// Categories returns every non-deleted category with its parent and local
// supers, ordered by id. This is the input of the permission closure map.
func (s *Store) Categories(ctx context.Context) ([]ir.Category, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT entity.id, relation.type, relation.from_id
		FROM entities AS entity
		LEFT JOIN relations AS relation
			ON relation.to_id = entity.id
			AND relation.kind = 'live'
			AND relation.type IN ('parent', 'super')
		WHERE (entity.type = 'category' OR entity.type LIKE 'category.%')
			AND (entity.flags & ?) = 0
		ORDER BY entity.id ASC, relation.id ASC
	`, int64(ir.FlagDeleted))
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()

	var cats []ir.Category
	for rows.Next() {
		var id int64
		var relType sql.NullString
		var fromID sql.NullInt64
		if err := rows.Scan(&id, &relType, &fromID); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		if len(cats) == 0 || cats[len(cats)-1].ID != id {
			cats = append(cats, ir.Category{ID: id})
		}
		cat := &cats[len(cats)-1]
		switch relType.String {
		case ir.RelParent:
			cat.ParentID = fromID.Int64
		case ir.RelSuper:
			cat.Supers = append(cat.Supers, fromID.Int64)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate categories: %w", err)
	}
	return cats, nil
}

func scanEntity(sc scanner) (ir.Entity, error) {
	var e ir.Entity
	var created, flags int64
	if err := sc.Scan(&e.ID, &e.Type, &e.Name, &e.Content, &created, &flags); err != nil {
		return ir.Entity{}, err
	}
	e.CreateDate = fromNanos(created)
	e.Flags = ir.EntityFlags(flags)
	return e, nil
}

func scanRelation(sc scanner) (ir.Relation, error) {
	var r ir.Relation
	var kind string
	var created int64
	if err := sc.Scan(&r.ID, &r.Type, &r.FromID, &r.ToID, &r.Value, &kind, &r.SubjectID, &created); err != nil {
		return ir.Relation{}, err
	}
	r.Kind = ir.RelationKind(kind)
	r.CreateDate = fromNanos(created)
	return r, nil
}

func inClause(ids []int64) (string, []any) {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", "), args
}
