package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/contentgraph/internal/apperr"
	"github.com/roach88/contentgraph/internal/ir"
)

// structuralTypes are the relation types owned by an entity package and
// rewritten by WritePackage. The creator relation is deliberately absent:
// it is written once at creation and never touched again.
var structuralTypes = map[string]bool{
	ir.RelParent:            true,
	ir.RelSuper:             true,
	string(ir.ActionCreate): true,
	string(ir.ActionRead):   true,
	string(ir.ActionUpdate): true,
	string(ir.ActionDelete): true,
}

// Check inspects the stored package inside a write transaction, before
// anything is changed. A non-nil error aborts the write.
type Check func(current ir.EntityPackage) error

// WritePackage persists an entity package in one transaction.
//
// Entity id 0 creates the entity, every supplied relation (pointed at the
// new id) and every value. Any other id updates the stored entity: the
// superseded state is appended to the revision log, structural relations
// are reconciled with the supplied ones, and supplied values are upserted.
// Relations of other types and the stored creator relation are left alone.
//
// A live parent relation must reference an existing, non-deleted entity;
// otherwise nothing is written and a NotFound error is returned. On update,
// checks run against the stored package inside the transaction.
//
// Observers are notified of inserted relations after commit. The stored
// package is returned.
func (s *Store) WritePackage(ctx context.Context, pkg ir.EntityPackage, editorID int64, checks ...Check) (ir.EntityPackage, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ir.EntityPackage{}, fmt.Errorf("write package: begin: %w", err)
	}
	defer tx.Rollback()

	if err := checkParents(ctx, tx, pkg); err != nil {
		return ir.EntityPackage{}, err
	}

	var id int64
	var written []ir.Relation
	if pkg.Entity.ID == 0 {
		id, written, err = s.createPackage(ctx, tx, pkg)
	} else {
		id = pkg.Entity.ID
		written, err = s.updatePackage(ctx, tx, pkg, editorID, checks)
	}
	if err != nil {
		return ir.EntityPackage{}, err
	}

	if err := tx.Commit(); err != nil {
		return ir.EntityPackage{}, fmt.Errorf("write package: commit: %w", err)
	}
	s.notify(written)

	s.logger.Debug("package written",
		"entity_id", id,
		"editor_id", editorID,
		"relations_written", len(written))

	return s.ReadPackage(ctx, id)
}

func checkParents(ctx context.Context, tx *sql.Tx, pkg ir.EntityPackage) error {
	for _, r := range pkg.RelationsOfType(ir.RelParent) {
		if r.FromID == 0 {
			continue
		}
		if pkg.Entity.ID != 0 && r.FromID == pkg.Entity.ID {
			return apperr.BadRequest("entity %d cannot be its own parent", r.FromID)
		}
		if err := requireLive(ctx, tx, r.FromID); err != nil {
			return err
		}
	}
	return nil
}

// readLivePackage reads a non-deleted package and runs checks on it.
func readLivePackage(ctx context.Context, q querier, id int64, checks []Check) (ir.EntityPackage, error) {
	current, err := readPackage(ctx, q, id)
	if err != nil {
		return ir.EntityPackage{}, err
	}
	if current.Entity.Deleted() {
		return ir.EntityPackage{}, apperr.NotFound("entity %d not found", id)
	}
	for _, check := range checks {
		if err := check(current); err != nil {
			return ir.EntityPackage{}, err
		}
	}
	return current, nil
}

// requireLive returns NotFound unless id names a non-deleted entity.
func requireLive(ctx context.Context, q querier, id int64) error {
	var flags ir.EntityFlags
	err := q.QueryRowContext(ctx, `SELECT flags FROM entities WHERE id = ?`, id).Scan(&flags)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && flags.Has(ir.FlagDeleted)) {
		return apperr.NotFound("entity %d not found", id)
	}
	if err != nil {
		return fmt.Errorf("check entity %d: %w", id, err)
	}
	return nil
}

func (s *Store) createPackage(ctx context.Context, tx *sql.Tx, pkg ir.EntityPackage) (int64, []ir.Relation, error) {
	first, err := nextIDs(ctx, tx, 1+len(pkg.Relations)+len(pkg.Values))
	if err != nil {
		return 0, nil, fmt.Errorf("create package: %w", err)
	}
	now := s.now()

	e := pkg.Entity
	e.ID = first
	e.CreateDate = now
	if err := insertEntity(ctx, tx, e); err != nil {
		return 0, nil, err
	}

	next := first + 1
	written := make([]ir.Relation, 0, len(pkg.Relations))
	for _, r := range pkg.Relations {
		r.ID = next
		r.ToID = e.ID
		r.CreateDate = now
		if r.Kind == "" {
			r.Kind = ir.KindLive
		}
		if err := insertRelation(ctx, tx, r); err != nil {
			return 0, nil, err
		}
		written = append(written, r)
		next++
	}

	for _, v := range pkg.Values {
		v.ID = next
		v.EntityID = e.ID
		v.CreateDate = now
		if err := insertValue(ctx, tx, v); err != nil {
			return 0, nil, err
		}
		next++
	}

	return e.ID, written, nil
}

func (s *Store) updatePackage(ctx context.Context, tx *sql.Tx, pkg ir.EntityPackage, editorID int64, checks []Check) ([]ir.Relation, error) {
	id := pkg.Entity.ID
	current, err := readLivePackage(ctx, tx, id, checks)
	if err != nil {
		return nil, err
	}
	now := s.now()

	if err := appendRevision(ctx, tx, ir.Revision{
		SubjectID:  id,
		EditorID:   editorID,
		Snapshot:   packageSnapshot(current),
		CreateDate: now,
	}); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE entities SET type = ?, name = ?, content = ?, flags = ?
		WHERE id = ?
	`, pkg.Entity.Type, pkg.Entity.Name, pkg.Entity.Content, int64(pkg.Entity.Flags), id)
	if err != nil {
		return nil, fmt.Errorf("update entity %d: %w", id, err)
	}

	written, err := reconcileStructural(ctx, tx, current, pkg, now)
	if err != nil {
		return nil, err
	}

	existing := current.ValueMap()
	for _, v := range pkg.Values {
		if old, ok := existing[v.Key]; ok {
			if old == v.Value {
				continue
			}
			if _, err := tx.ExecContext(ctx,
				`UPDATE entity_values SET value = ? WHERE entity_id = ? AND key = ?`,
				v.Value, id, v.Key,
			); err != nil {
				return nil, fmt.Errorf("update value %q: %w", v.Key, err)
			}
			continue
		}
		vid, err := nextIDs(ctx, tx, 1)
		if err != nil {
			return nil, err
		}
		v.ID = vid
		v.EntityID = id
		v.CreateDate = now
		if err := insertValue(ctx, tx, v); err != nil {
			return nil, err
		}
	}

	return written, nil
}

type relationKey struct {
	Type   string
	FromID int64
	Value  string
}

// reconcileStructural deletes stored structural relations absent from the
// new package and inserts new ones. Unchanged relations keep their ids, so
// rewriting a package without changes writes no relations.
func reconcileStructural(ctx context.Context, tx *sql.Tx, current, pkg ir.EntityPackage, now time.Time) ([]ir.Relation, error) {
	id := current.Entity.ID

	have := make(map[relationKey]int64)
	for _, r := range current.Relations {
		if structuralTypes[r.Type] && r.Kind == ir.KindLive {
			have[relationKey{r.Type, r.FromID, r.Value}] = r.ID
		}
	}

	want := make(map[relationKey]bool)
	var inserts []ir.Relation
	for _, r := range pkg.Relations {
		if !structuralTypes[r.Type] || (r.Kind != ir.KindLive && r.Kind != "") {
			continue
		}
		k := relationKey{r.Type, r.FromID, r.Value}
		if want[k] {
			continue
		}
		want[k] = true
		if _, ok := have[k]; !ok {
			inserts = append(inserts, r)
		}
	}

	for k, rid := range have {
		if want[k] {
			continue
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM relations WHERE id = ?`, rid); err != nil {
			return nil, fmt.Errorf("remove relation %d: %w", rid, err)
		}
	}

	first, err := nextIDs(ctx, tx, len(inserts))
	if err != nil {
		return nil, err
	}
	for i := range inserts {
		inserts[i].ID = first + int64(i)
		inserts[i].ToID = id
		inserts[i].Kind = ir.KindLive
		inserts[i].SubjectID = 0
		inserts[i].CreateDate = now
		if err := insertRelation(ctx, tx, inserts[i]); err != nil {
			return nil, err
		}
	}
	return inserts, nil
}

// WriteRelations appends relations and revisions in one transaction. Ids
// and create dates are assigned here; Kind defaults to live. Every
// non-zero ToID must reference a non-deleted entity.
//
// Observers are notified after commit. The stored relations are returned.
func (s *Store) WriteRelations(ctx context.Context, rels []ir.Relation, revisions []ir.Revision) ([]ir.Relation, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("write relations: begin: %w", err)
	}
	defer tx.Rollback()

	for _, r := range rels {
		if r.ToID == 0 {
			continue
		}
		if err := requireLive(ctx, tx, r.ToID); err != nil {
			return nil, err
		}
	}

	now := s.now()
	for _, rev := range revisions {
		rev.CreateDate = now
		if err := appendRevision(ctx, tx, rev); err != nil {
			return nil, err
		}
	}

	first, err := nextIDs(ctx, tx, len(rels))
	if err != nil {
		return nil, err
	}
	written := make([]ir.Relation, len(rels))
	for i, r := range rels {
		r.ID = first + int64(i)
		r.CreateDate = now
		if r.Kind == "" {
			r.Kind = ir.KindLive
		}
		if err := insertRelation(ctx, tx, r); err != nil {
			return nil, err
		}
		written[i] = r
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("write relations: commit: %w", err)
	}
	s.notify(written)
	return written, nil
}

// MarkDeleted sets FlagDeleted on an entity and appends the tombstone
// relation in the same transaction, so listeners observe the deletion.
// The tombstone's Kind and SubjectID are forced to tombstone and id.
// Checks run against the stored package first.
func (s *Store) MarkDeleted(ctx context.Context, id int64, tombstone ir.Relation, checks ...Check) (ir.Relation, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ir.Relation{}, fmt.Errorf("mark deleted: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := readLivePackage(ctx, tx, id, checks); err != nil {
		return ir.Relation{}, err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE entities SET flags = flags | ? WHERE id = ?`,
		int64(ir.FlagDeleted), id,
	); err != nil {
		return ir.Relation{}, fmt.Errorf("mark deleted %d: %w", id, err)
	}

	rid, err := nextIDs(ctx, tx, 1)
	if err != nil {
		return ir.Relation{}, err
	}
	tombstone.ID = rid
	tombstone.Kind = ir.KindTombstone
	tombstone.SubjectID = id
	tombstone.CreateDate = s.now()
	if err := insertRelation(ctx, tx, tombstone); err != nil {
		return ir.Relation{}, err
	}

	if err := tx.Commit(); err != nil {
		return ir.Relation{}, fmt.Errorf("mark deleted: commit: %w", err)
	}
	s.notify([]ir.Relation{tombstone})
	return tombstone, nil
}

// WriteValue upserts one keyed value on a non-deleted entity.
func (s *Store) WriteValue(ctx context.Context, entityID int64, key, value string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write value: begin: %w", err)
	}
	defer tx.Rollback()

	if err := requireLive(ctx, tx, entityID); err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE entity_values SET value = ? WHERE entity_id = ? AND key = ?`,
		value, entityID, key)
	if err != nil {
		return fmt.Errorf("write value %q: %w", key, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		id, err := nextIDs(ctx, tx, 1)
		if err != nil {
			return err
		}
		if err := insertValue(ctx, tx, ir.Value{
			ID: id, EntityID: entityID, Key: key, Value: value, CreateDate: s.now(),
		}); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write value: commit: %w", err)
	}
	return nil
}

func insertEntity(ctx context.Context, tx *sql.Tx, e ir.Entity) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO entities (id, type, name, content, create_date, flags)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.ID, e.Type, e.Name, e.Content, toNanos(e.CreateDate), int64(e.Flags))
	if err != nil {
		return fmt.Errorf("insert entity %d: %w", e.ID, err)
	}
	return nil
}

func insertRelation(ctx context.Context, tx *sql.Tx, r ir.Relation) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO relations (id, type, from_id, to_id, value, kind, subject_id, create_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.Type, r.FromID, r.ToID, r.Value, string(r.Kind), r.SubjectID, toNanos(r.CreateDate))
	if err != nil {
		return fmt.Errorf("insert relation %d: %w", r.ID, err)
	}
	return nil
}

func insertValue(ctx context.Context, tx *sql.Tx, v ir.Value) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO entity_values (id, entity_id, key, value, create_date)
		VALUES (?, ?, ?, ?, ?)
	`, v.ID, v.EntityID, v.Key, v.Value, toNanos(v.CreateDate))
	if err != nil {
		return fmt.Errorf("insert value %q: %w", v.Key, err)
	}
	return nil
}
