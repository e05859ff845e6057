package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/contentgraph/internal/ir"
)

// appendRevision assigns the next seq for rev.SubjectID, hashes the
// snapshot and inserts it. The log is append-only: rows are never updated.
func appendRevision(ctx context.Context, tx *sql.Tx, rev ir.Revision) error {
	data, err := ir.MarshalCanonical(rev.Snapshot)
	if err != nil {
		return fmt.Errorf("append revision: %w", err)
	}
	hash, err := ir.SnapshotHash(rev.Snapshot)
	if err != nil {
		return fmt.Errorf("append revision: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO revisions (subject_id, seq, editor_id, snapshot, hash, create_date)
		VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM revisions WHERE subject_id = ?), ?, ?, ?, ?)
	`, rev.SubjectID, rev.SubjectID, rev.EditorID, string(data), hash, toNanos(rev.CreateDate))
	if err != nil {
		return fmt.Errorf("append revision for %d: %w", rev.SubjectID, err)
	}
	return nil
}

// ReadRevisions returns the revision log of a subject ordered by seq.
// Returns an empty slice (not nil) if the subject has no revisions.
func (s *Store) ReadRevisions(ctx context.Context, subjectID int64) ([]ir.Revision, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT subject_id, seq, editor_id, snapshot, hash, create_date
		FROM revisions
		WHERE subject_id = ?
		ORDER BY seq ASC
	`, subjectID)
	if err != nil {
		return nil, fmt.Errorf("query revisions: %w", err)
	}
	defer rows.Close()

	revisions := []ir.Revision{}
	for rows.Next() {
		var rev ir.Revision
		var snapshot string
		var created int64
		if err := rows.Scan(&rev.SubjectID, &rev.Seq, &rev.EditorID, &snapshot, &rev.Hash, &created); err != nil {
			return nil, fmt.Errorf("scan revision: %w", err)
		}
		obj, err := decodeSnapshot(snapshot)
		if err != nil {
			return nil, fmt.Errorf("revision %d/%d: %w", rev.SubjectID, rev.Seq, err)
		}
		rev.Snapshot = obj
		rev.CreateDate = fromNanos(created)
		revisions = append(revisions, rev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate revisions: %w", err)
	}
	return revisions, nil
}

func decodeSnapshot(data string) (ir.IRObject, error) {
	dec := json.NewDecoder(strings.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	v, err := ir.FromJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	obj, ok := v.(ir.IRObject)
	if !ok {
		return nil, fmt.Errorf("decode snapshot: expected object, got %T", v)
	}
	return obj, nil
}

// packageSnapshot captures the mutable state of a package: entity fields,
// structural relations and values.
func packageSnapshot(pkg ir.EntityPackage) ir.IRObject {
	grants := ir.IRObject{}
	for _, a := range ir.Actions {
		var from []int64
		for _, r := range pkg.RelationsOfType(string(a)) {
			from = append(from, r.FromID)
		}
		if len(from) > 0 {
			grants[string(a)] = ir.IRArray(ir.Ints(from...))
		}
	}

	values := ir.IRObject{}
	for k, v := range pkg.ValueMap() {
		values[k] = ir.IRString(v)
	}

	return ir.IRObject{
		"type":    ir.IRString(pkg.Entity.Type),
		"name":    ir.IRString(pkg.Entity.Name),
		"content": ir.IRString(pkg.Entity.Content),
		"flags":   ir.IRInt(pkg.Entity.Flags),
		"parent":  ir.IRInt(pkg.ParentID()),
		"supers":  ir.IRArray(ir.Ints(pkg.Supers()...)),
		"grants":  grants,
		"values":  values,
	}
}
