package store

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/roach88/contentgraph/internal/ir"
)

var testEpoch = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

// createTestStore creates a new temp-dir store for testing with a fixed
// clock and discarded logs.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path,
		WithClock(func() time.Time { return testEpoch }),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestPackage builds a new package owned by owner with optional
// parent and public grants.
func createTestPackage(typ, name string, owner, parent int64, publicGrants ...ir.Action) ir.EntityPackage {
	pkg := ir.EntityPackage{
		Entity:    ir.Entity{Type: typ, Name: name},
		Relations: []ir.Relation{{Type: ir.RelCreator, FromID: owner}},
	}
	if parent != 0 {
		pkg.Relations = append(pkg.Relations, ir.Relation{Type: ir.RelParent, FromID: parent})
	}
	for _, a := range publicGrants {
		pkg.Relations = append(pkg.Relations, ir.Relation{Type: string(a), FromID: 0})
	}
	return pkg
}

func mustWrite(t *testing.T, s *Store, pkg ir.EntityPackage) ir.EntityPackage {
	t.Helper()
	out, err := s.WritePackage(context.Background(), pkg, 0)
	if err != nil {
		t.Fatalf("WritePackage() failed: %v", err)
	}
	return out
}

// recordingObserver collects notified batches.
type recordingObserver struct {
	mu      sync.Mutex
	batches [][]ir.Relation
}

func (o *recordingObserver) RelationsWritten(rels []ir.Relation) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.batches = append(o.batches, rels)
}

func (o *recordingObserver) Batches() [][]ir.Relation {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([][]ir.Relation(nil), o.batches...)
}
