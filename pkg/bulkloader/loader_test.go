package bulkloader

import (
	"io"
	"testing"

	"github.com/aleksaelezovic/trigo/internal/encoding"
	"github.com/aleksaelezovic/trigo/internal/storage"
	"github.com/aleksaelezovic/trigo/internal/txn"
	"github.com/aleksaelezovic/trigo/pkg/rdf"
	"github.com/aleksaelezovic/trigo/pkg/store"
)

type sliceSource struct {
	quads []*rdf.Quad
	idx   int
}

func (s *sliceSource) Next() (*rdf.Quad, error) {
	if s.idx >= len(s.quads) {
		return nil, io.EOF
	}
	q := s.quads[s.idx]
	s.idx++
	return q, nil
}

func openTestStore(t *testing.T) *txn.Store {
	t.Helper()
	tmpDir := t.TempDir()
	badgerStorage, err := storage.NewBadgerStorage(tmpDir)
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	t.Cleanup(func() { badgerStorage.Close() })
	return txn.New(badgerStorage, encoding.NewTermEncoder(), encoding.NewTermDecoder())
}

func TestLoaderInsertsAllQuads(t *testing.T) {
	s := openTestStore(t)

	alice := rdf.NewNamedNode("http://example.org/alice")
	bob := rdf.NewNamedNode("http://example.org/bob")
	name := rdf.NewNamedNode("http://xmlns.com/foaf/0.1/name")
	graph1 := rdf.NewNamedNode("http://example.org/graph1")

	quads := []*rdf.Quad{
		rdf.NewQuad(alice, name, rdf.NewLiteral("Alice"), rdf.NewDefaultGraph()),
		rdf.NewQuad(bob, name, rdf.NewLiteral("Bob"), rdf.NewDefaultGraph()),
		rdf.NewQuad(alice, name, rdf.NewLiteral("Alice in g1"), graph1),
	}

	loader := New(s, Config{ChunkQuads: 2}) // force more than one chunk/run file
	stats, err := loader.Load(&sliceSource{quads: quads})
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if stats.Inserted != int64(len(quads)) {
		t.Fatalf("expected %d inserted, got %d", len(quads), stats.Inserted)
	}

	count, err := s.Engine().Count()
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != int64(len(quads)) {
		t.Fatalf("expected store count %d, got %d", len(quads), count)
	}

	it, err := s.Engine().Query(&store.Pattern{
		Subject:   alice,
		Predicate: name,
		Object:    store.NewVariable("o"),
		Graph:     rdf.NewDefaultGraph(),
	})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	defer it.Close()

	var found bool
	for it.Next() {
		q, err := it.Quad()
		if err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		if lit, ok := q.Object.(*rdf.Literal); ok && lit.Value == "Alice" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected to find alice's default-graph name after bulk load")
	}
}

func TestLoaderDeduplicatesAcrossChunks(t *testing.T) {
	s := openTestStore(t)

	alice := rdf.NewNamedNode("http://example.org/alice")
	name := rdf.NewNamedNode("http://xmlns.com/foaf/0.1/name")
	quad := rdf.NewQuad(alice, name, rdf.NewLiteral("Alice"), rdf.NewDefaultGraph())

	// Same quad appears in two separate chunks.
	quads := []*rdf.Quad{quad, quad}

	loader := New(s, Config{ChunkQuads: 1})
	if _, err := loader.Load(&sliceSource{quads: quads}); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	count, err := s.Engine().Count()
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected duplicate quad to collapse to 1 entry, got %d", count)
	}
}

func TestLoaderRegistersNamedGraphs(t *testing.T) {
	s := openTestStore(t)

	alice := rdf.NewNamedNode("http://example.org/alice")
	name := rdf.NewNamedNode("http://xmlns.com/foaf/0.1/name")
	graph1 := rdf.NewNamedNode("http://example.org/graph1")

	quads := []*rdf.Quad{
		rdf.NewQuad(alice, name, rdf.NewLiteral("Alice"), graph1),
	}

	loader := New(s, Config{})
	if _, err := loader.Load(&sliceSource{quads: quads}); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	rtxn, err := s.Begin(false)
	if err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	defer rtxn.Rollback()

	it, err := rtxn.Query(&store.Pattern{
		Subject:   store.NewVariable("s"),
		Predicate: store.NewVariable("p"),
		Object:    store.NewVariable("o"),
		Graph:     graph1,
	})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	defer it.Close()

	if !it.Next() {
		t.Fatal("expected at least one quad in graph1")
	}
}

func TestLoaderParseErrorAbort(t *testing.T) {
	s := openTestStore(t)

	failSource := &erroringSource{err: io.ErrUnexpectedEOF}
	loader := New(s, Config{})
	_, err := loader.Load(failSource)
	if err == nil {
		t.Fatal("expected error to propagate by default")
	}
}

type erroringSource struct{ err error }

func (e *erroringSource) Next() (*rdf.Quad, error) { return nil, e.err }

func TestLoaderParseErrorCallbackAbort(t *testing.T) {
	s := openTestStore(t)

	calls := 0
	loader := New(s, Config{
		OnParseError: func(error) Action {
			calls++
			return ActionAbort
		},
	})
	_, err := loader.Load(&erroringSource{err: io.ErrUnexpectedEOF})
	if err == nil {
		t.Fatal("expected ActionAbort to surface the error")
	}
	if calls != 1 {
		t.Fatalf("expected OnParseError called once, got %d", calls)
	}
}
