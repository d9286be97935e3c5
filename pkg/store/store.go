package store

import (
	"bytes"

	"github.com/aleksaelezovic/trigo/internal/errs"
	"github.com/aleksaelezovic/trigo/pkg/rdf"
)

// TripleStore is the quad-index engine (C2): six covering indexes over
// dictionary-encoded quads, plus the id2str dictionary table and the
// named-graph registry. It has no notion of SPARQL, transactions with
// rollback semantics, or read-only enforcement — those live one layer up
// in internal/txn and pkg/store's Store handle. TripleStore only knows
// how to turn a quad into six index writes and a pattern into a range
// scan; every method here takes an already-open Transaction so the
// caller controls commit/rollback.
type TripleStore struct {
	storage Storage
	encoder TermEncoder
	decoder TermDecoder
}

// NewTripleStore creates an engine bound to a storage backend and codec.
func NewTripleStore(storage Storage, encoder TermEncoder, decoder TermDecoder) *TripleStore {
	return &TripleStore{storage: storage, encoder: encoder, decoder: decoder}
}

func (s *TripleStore) Close() error { return s.storage.Close() }

// InsertQuadInTxn inserts a quad's six index entries and its dictionary
// rows within an existing writable transaction. Per the invariant in
// §4.2, every stored quad appears in exactly the six indexes.
func (s *TripleStore) InsertQuadInTxn(txn Transaction, quad *rdf.Quad) error {
	enc, err := s.encodeQuad(txn, quad)
	if err != nil {
		return err
	}

	empty := []byte{}
	if err := txn.Set(TableSPOG, s.encoder.EncodeQuadKey(enc.s, enc.p, enc.o, enc.g), empty); err != nil {
		return err
	}
	if err := txn.Set(TablePOSG, s.encoder.EncodeQuadKey(enc.p, enc.o, enc.s, enc.g), empty); err != nil {
		return err
	}
	if err := txn.Set(TableOSPG, s.encoder.EncodeQuadKey(enc.o, enc.s, enc.p, enc.g), empty); err != nil {
		return err
	}
	if err := txn.Set(TableGSPO, s.encoder.EncodeQuadKey(enc.g, enc.s, enc.p, enc.o), empty); err != nil {
		return err
	}
	if err := txn.Set(TableGPOS, s.encoder.EncodeQuadKey(enc.g, enc.p, enc.o, enc.s), empty); err != nil {
		return err
	}
	if err := txn.Set(TableGOSP, s.encoder.EncodeQuadKey(enc.g, enc.o, enc.s, enc.p), empty); err != nil {
		return err
	}

	if quad.Graph.Type() != rdf.TermTypeDefaultGraph {
		if err := txn.Set(TableGraphs, enc.g[:], empty); err != nil {
			return err
		}
	}
	return nil
}

// DeleteQuadInTxn removes a quad's six index entries. The dictionary and
// graph registry are left untouched (no reference counting — a
// compaction pass, run by Optimize, is what actually reclaims dictionary
// rows and prunes empty named graphs).
func (s *TripleStore) DeleteQuadInTxn(txn Transaction, quad *rdf.Quad) error {
	enc, err := s.encodeQuadNoIntern(quad)
	if err != nil {
		return err
	}
	if err := txn.Delete(TableSPOG, s.encoder.EncodeQuadKey(enc.s, enc.p, enc.o, enc.g)); err != nil {
		return err
	}
	if err := txn.Delete(TablePOSG, s.encoder.EncodeQuadKey(enc.p, enc.o, enc.s, enc.g)); err != nil {
		return err
	}
	if err := txn.Delete(TableOSPG, s.encoder.EncodeQuadKey(enc.o, enc.s, enc.p, enc.g)); err != nil {
		return err
	}
	if err := txn.Delete(TableGSPO, s.encoder.EncodeQuadKey(enc.g, enc.s, enc.p, enc.o)); err != nil {
		return err
	}
	if err := txn.Delete(TableGPOS, s.encoder.EncodeQuadKey(enc.g, enc.p, enc.o, enc.s)); err != nil {
		return err
	}
	if err := txn.Delete(TableGOSP, s.encoder.EncodeQuadKey(enc.g, enc.o, enc.s, enc.p)); err != nil {
		return err
	}
	return nil
}

// ContainsQuadInTxn checks existence via the SPOG index.
func (s *TripleStore) ContainsQuadInTxn(txn Transaction, quad *rdf.Quad) (bool, error) {
	enc, err := s.encodeQuadNoIntern(quad)
	if err != nil {
		return false, err
	}
	key := s.encoder.EncodeQuadKey(enc.s, enc.p, enc.o, enc.g)
	_, err = txn.Get(TableSPOG, key)
	if err == ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CountInTxn counts entries in the SPOG index (P1: len equals the count
// in any one of the six, since they are kept in lockstep).
func (s *TripleStore) CountInTxn(txn Transaction) (int64, error) {
	it, err := txn.Scan(TableSPOG, nil, nil)
	if err != nil {
		return 0, err
	}
	defer it.Close()
	var n int64
	for it.Next() {
		n++
	}
	return n, nil
}

// Count opens its own read snapshot and counts every stored quad,
// mirroring Query's self-contained-transaction style for callers that
// have no transaction of their own to hand in (e.g. the HTTP server's
// stats endpoint).
func (s *TripleStore) Count() (int64, error) {
	txn, err := s.storage.Begin(false)
	if err != nil {
		return 0, err
	}
	defer txn.Rollback()
	return s.CountInTxn(txn)
}

// InsertTriple inserts a triple into the default graph in its own
// writable transaction. A thin convenience over InsertQuadInTxn for
// callers (e.g. the W3C test-suite runner) that work in triples, since
// every triple is just a quad in the reserved default-graph term.
func (s *TripleStore) InsertTriple(triple *rdf.Triple) error {
	return s.InsertQuadsBatch([]*rdf.Quad{
		rdf.NewQuad(triple.Subject, triple.Predicate, triple.Object, rdf.NewDefaultGraph()),
	})
}

// DeleteTriple removes a default-graph triple in its own writable
// transaction.
func (s *TripleStore) DeleteTriple(triple *rdf.Triple) error {
	txn, err := s.storage.Begin(true)
	if err != nil {
		return err
	}
	quad := rdf.NewQuad(triple.Subject, triple.Predicate, triple.Object, rdf.NewDefaultGraph())
	if err := s.DeleteQuadInTxn(txn, quad); err != nil {
		_ = txn.Rollback()
		return err
	}
	return txn.Commit()
}

// InsertQuadsBatch inserts every quad in one writable transaction,
// committing once at the end. Used by callers outside internal/txn's
// single-writer protocol (e.g. the HTTP data-upload handler) that only
// have a TripleStore handle, not a txn.Store.
func (s *TripleStore) InsertQuadsBatch(quads []*rdf.Quad) error {
	txn, err := s.storage.Begin(true)
	if err != nil {
		return err
	}
	for _, quad := range quads {
		if err := s.InsertQuadInTxn(txn, quad); err != nil {
			_ = txn.Rollback()
			return err
		}
	}
	return txn.Commit()
}

// DeleteQuadsBatch removes every quad in one writable transaction,
// committing once at the end. Mirrors InsertQuadsBatch for callers that
// only hold a TripleStore handle (SPARQL Update goes through
// internal/txn instead).
func (s *TripleStore) DeleteQuadsBatch(quads []*rdf.Quad) error {
	txn, err := s.storage.Begin(true)
	if err != nil {
		return err
	}
	for _, quad := range quads {
		if err := s.DeleteQuadInTxn(txn, quad); err != nil {
			_ = txn.Rollback()
			return err
		}
	}
	return txn.Commit()
}

type encodedQuad struct{ s, p, o, g EncodedTerm }

func (s *TripleStore) encodeQuad(txn Transaction, quad *rdf.Quad) (encodedQuad, error) {
	var enc encodedQuad
	var err error
	var sStr, pStr, oStr, gStr *string

	enc.s, sStr, err = s.encoder.EncodeTerm(quad.Subject)
	if err != nil {
		return enc, errs.Parsing("failed to encode subject: %v", err)
	}
	enc.p, pStr, err = s.encoder.EncodeTerm(quad.Predicate)
	if err != nil {
		return enc, errs.Parsing("failed to encode predicate: %v", err)
	}
	enc.o, oStr, err = s.encoder.EncodeTerm(quad.Object)
	if err != nil {
		return enc, errs.Parsing("failed to encode object: %v", err)
	}
	enc.g, gStr, err = s.encoder.EncodeTerm(quad.Graph)
	if err != nil {
		return enc, errs.Parsing("failed to encode graph: %v", err)
	}

	for _, pair := range []struct {
		enc EncodedTerm
		str *string
	}{{enc.s, sStr}, {enc.p, pStr}, {enc.o, oStr}, {enc.g, gStr}} {
		if err := s.internString(txn, pair.enc, pair.str); err != nil {
			return enc, err
		}
	}
	return enc, nil
}

func (s *TripleStore) encodeQuadNoIntern(quad *rdf.Quad) (encodedQuad, error) {
	var enc encodedQuad
	var err error
	enc.s, _, err = s.encoder.EncodeTerm(quad.Subject)
	if err != nil {
		return enc, err
	}
	enc.p, _, err = s.encoder.EncodeTerm(quad.Predicate)
	if err != nil {
		return enc, err
	}
	enc.o, _, err = s.encoder.EncodeTerm(quad.Object)
	if err != nil {
		return enc, err
	}
	enc.g, _, err = s.encoder.EncodeTerm(quad.Graph)
	if err != nil {
		return enc, err
	}
	return enc, nil
}

// internString stores a dictionary row, checking for hash collisions
// against a different lexical form (§4.1 "Collisions").
func (s *TripleStore) internString(txn Transaction, encoded EncodedTerm, str *string) error {
	if str == nil {
		return nil
	}
	key := encoded[1:]
	value := []byte(*str)

	existing, err := txn.Get(TableID2Str, key)
	if err == nil {
		if bytes.Equal(existing, value) {
			return nil
		}
		return errs.Corruption("dictionary hash collision: %q and %q share a hash", *str, string(existing))
	}
	if err != ErrNotFound {
		return err
	}
	return txn.Set(TableID2Str, key, value)
}

// DecodeTermInTxn resolves an encoded term back to an rdf.Term, looking
// up the dictionary row when the term's tag requires one. See decodeTerm
// in query.go for the tag dispatch this wraps.
func (s *TripleStore) DecodeTermInTxn(txn Transaction, encoded EncodedTerm) (rdf.Term, error) {
	return s.decodeTerm(txn, encoded)
}

// EncodeGraphTerm encodes a graph name term for use as a TableGraphs key,
// exposed for internal/txn's CreateGraph/DropGraph.
func (s *TripleStore) EncodeGraphTerm(graph rdf.Term) (EncodedTerm, *string, error) {
	return s.encoder.EncodeTerm(graph)
}

// InternGraphLabel stores a graph name's dictionary row, exposed for
// internal/txn's CreateGraph.
func (s *TripleStore) InternGraphLabel(txn Transaction, encoded EncodedTerm, str *string) error {
	return s.internString(txn, encoded, str)
}
