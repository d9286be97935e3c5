// Package txn provides the public transaction handle around the
// TripleStore engine: single-writer serialization, read-only store
// enforcement, and commit/rollback of one storage transaction per Txn.
package txn

import (
	"sync"

	"github.com/aleksaelezovic/trigo/internal/errs"
	"github.com/aleksaelezovic/trigo/pkg/rdf"
	"github.com/aleksaelezovic/trigo/pkg/store"
)

// Store wraps a TripleStore engine with the concurrency and access-mode
// rules from spec §5: any number of concurrent readers (each gets an
// independent Badger snapshot), but only one writer at a time.
type Store struct {
	engine   *store.TripleStore
	storage  store.Storage
	readOnly bool

	writerMu sync.Mutex
}

// Option configures a Store at construction time.
type Option func(*Store)

// ReadOnly makes Begin(writable=true), TryBegin and BeginBulkLoad fail
// with ErrForbidden, for the `serve-read-only` CLI mode.
func ReadOnly() Option {
	return func(s *Store) { s.readOnly = true }
}

// New wraps storage and a codec into a Store.
func New(storage store.Storage, encoder store.TermEncoder, decoder store.TermDecoder, opts ...Option) *Store {
	s := &Store{
		engine:  store.NewTripleStore(storage, encoder, decoder),
		storage: storage,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Close() error { return s.engine.Close() }

// Engine returns the underlying TripleStore, for read-only callers (the
// query executor, the HTTP server) that only need pattern scans and
// never go through Txn's write path.
func (s *Store) Engine() *store.TripleStore { return s.engine }

// Txn is a transaction over one storage (Badger) transaction. Insert,
// Delete, CreateGraph, DropGraph and ClearAll write into that storage
// transaction immediately, so this Txn's own reads (Contains, Count,
// Query) see them at once, while other transactions see them only after
// Commit. The inserts/deletes/newGraphs/dropped/clearAll fields only
// record what was done, for Stats. Badger's transaction provides the
// repeatable-read snapshot and the all-or-nothing commit.
type Txn struct {
	store    *Store
	inner    store.Transaction
	writable bool
	done     bool

	inserts   []*rdf.Quad
	deletes   []*rdf.Quad
	newGraphs []rdf.Term
	dropped   []rdf.Term
	clearAll  bool
}

// Begin starts a transaction, blocking until any other writer commits
// or rolls back if writable is true. Readers never block on each other
// or on a writer.
func (s *Store) Begin(writable bool) (*Txn, error) {
	if writable {
		if s.readOnly {
			return nil, errs.ErrForbidden
		}
		s.writerMu.Lock()
	}
	inner, err := s.storage.Begin(writable)
	if err != nil {
		if writable {
			s.writerMu.Unlock()
		}
		return nil, err
	}
	return &Txn{store: s, inner: inner, writable: writable}, nil
}

// BulkLoad is the handle the bulk loader (C4) holds across its install
// phase: the writer lock is acquired up front (so no other writer can
// interleave), but unlike a normal Txn, Engine()/RawTxn() expose the raw
// TripleStore and storage transaction directly so the loader can install
// pre-sorted index batches without per-quad Insert staging (§4.4
// "bypassing the write path").
type BulkLoad struct {
	store *Store
	inner store.Transaction
	done  bool
}

// BeginBulkLoad acquires the writer lock for the duration of the bulk
// loader's final merge/install step; the parse/sort/spill phase before
// calling BeginBulkLoad runs with no lock held at all. Only writers are
// excluded: readers take no lock (Begin(false) never touches writerMu),
// so they keep running during the install and see the pre-load
// snapshot until Commit.
func (s *Store) BeginBulkLoad() (*BulkLoad, error) {
	if s.readOnly {
		return nil, errs.ErrForbidden
	}
	s.writerMu.Lock()
	inner, err := s.storage.Begin(true)
	if err != nil {
		s.writerMu.Unlock()
		return nil, err
	}
	return &BulkLoad{store: s, inner: inner}, nil
}

// Engine returns the TripleStore engine for raw index/dictionary writes.
func (b *BulkLoad) Engine() *store.TripleStore { return b.store.engine }

// RawTxn returns the underlying storage transaction the loader writes
// sorted batches into directly, bypassing Txn's insert/delete staging.
func (b *BulkLoad) RawTxn() store.Transaction { return b.inner }

// Commit flushes the installed batches as one storage commit and
// releases the writer lock.
func (b *BulkLoad) Commit() error {
	if b.done {
		return nil
	}
	b.done = true
	err := b.inner.Commit()
	b.store.writerMu.Unlock()
	return err
}

// Rollback discards the install and releases the writer lock.
func (b *BulkLoad) Rollback() error {
	if b.done {
		return nil
	}
	b.done = true
	err := b.inner.Rollback()
	b.store.writerMu.Unlock()
	return err
}

// TryBegin is the non-blocking fail-fast variant of Begin(true): it
// returns ErrWriterBusy immediately instead of waiting for the current
// writer to finish.
func (s *Store) TryBegin() (*Txn, error) {
	if s.readOnly {
		return nil, errs.ErrForbidden
	}
	if !s.writerMu.TryLock() {
		return nil, errs.ErrWriterBusy
	}
	inner, err := s.storage.Begin(true)
	if err != nil {
		s.writerMu.Unlock()
		return nil, err
	}
	return &Txn{store: s, inner: inner, writable: true}, nil
}

// Insert stages a quad insertion.
func (t *Txn) Insert(quad *rdf.Quad) error {
	if !t.writable {
		return errs.ErrForbidden
	}
	if err := t.store.engine.InsertQuadInTxn(t.inner, quad); err != nil {
		return err
	}
	t.inserts = append(t.inserts, quad)
	return nil
}

// Delete stages a quad removal.
func (t *Txn) Delete(quad *rdf.Quad) error {
	if !t.writable {
		return errs.ErrForbidden
	}
	if err := t.store.engine.DeleteQuadInTxn(t.inner, quad); err != nil {
		return err
	}
	t.deletes = append(t.deletes, quad)
	return nil
}

// CreateGraph registers an (initially empty) named graph so it is
// reported by graph-enumeration queries even before any quad targets it.
func (t *Txn) CreateGraph(graph rdf.Term) error {
	if !t.writable {
		return errs.ErrForbidden
	}
	encoded, str, err := t.store.engine.EncodeGraphTerm(graph)
	if err != nil {
		return err
	}
	if err := t.inner.Set(store.TableGraphs, encoded[:], []byte{}); err != nil {
		return err
	}
	if str != nil {
		if err := t.store.engine.InternGraphLabel(t.inner, encoded, str); err != nil {
			return err
		}
	}
	t.newGraphs = append(t.newGraphs, graph)
	return nil
}

// DropGraph removes a named graph's registry entry. Quads in it are not
// removed here — callers (SPARQL Update's DROP/CLEAR) issue Delete for
// each quad first, then DropGraph to prune the now-empty registry row.
func (t *Txn) DropGraph(graph rdf.Term) error {
	if !t.writable {
		return errs.ErrForbidden
	}
	encoded, _, err := t.store.engine.EncodeGraphTerm(graph)
	if err != nil {
		return err
	}
	if err := t.inner.Delete(store.TableGraphs, encoded[:]); err != nil {
		return err
	}
	t.dropped = append(t.dropped, graph)
	return nil
}

// ClearAll drops every quad across every graph, iterating the SPOG index
// and deleting each quad's six index entries.
func (t *Txn) ClearAll() error {
	if !t.writable {
		return errs.ErrForbidden
	}
	it, err := t.store.engine.QueryInTxn(t.inner, &store.Pattern{
		Subject:   store.NewVariable("s"),
		Predicate: store.NewVariable("p"),
		Object:    store.NewVariable("o"),
		Graph:     store.NewVariable("g"),
	})
	if err != nil {
		return err
	}
	defer it.Close()

	var quads []*rdf.Quad
	for it.Next() {
		q, err := it.Quad()
		if err != nil {
			return err
		}
		quads = append(quads, q)
	}
	for _, q := range quads {
		if err := t.store.engine.DeleteQuadInTxn(t.inner, q); err != nil {
			return err
		}
	}
	t.clearAll = true
	return nil
}

// Contains checks quad existence within this transaction's snapshot.
func (t *Txn) Contains(quad *rdf.Quad) (bool, error) {
	return t.store.engine.ContainsQuadInTxn(t.inner, quad)
}

// Count returns the total quad count within this transaction's snapshot.
func (t *Txn) Count() (int64, error) {
	return t.store.engine.CountInTxn(t.inner)
}

// Query runs a pattern scan within this transaction's snapshot.
func (t *Txn) Query(pattern *store.Pattern) (store.QuadIterator, error) {
	return t.store.engine.QueryInTxn(t.inner, pattern)
}

// Stats reports how many quads this transaction inserted and deleted,
// how many graphs it created and dropped, and whether ClearAll ran.
func (t *Txn) Stats() (inserted, deleted, graphsCreated, graphsDropped int, clearedAll bool) {
	return len(t.inserts), len(t.deletes), len(t.newGraphs), len(t.dropped), t.clearAll
}

// Commit commits the underlying Badger transaction, which holds every
// write made through this Txn, and releases the writer lock.
func (t *Txn) Commit() error {
	if t.done {
		return nil
	}
	t.done = true
	err := t.inner.Commit()
	if t.writable {
		t.store.writerMu.Unlock()
	}
	return err
}

// Rollback discards every write made through this Txn and releases the
// writer lock.
func (t *Txn) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	err := t.inner.Rollback()
	if t.writable {
		t.store.writerMu.Unlock()
	}
	return err
}
