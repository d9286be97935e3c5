package store

import (
	"fmt"

	"github.com/aleksaelezovic/trigo/pkg/rdf"
)

// Pattern represents a triple or quad pattern with optional variables
type Pattern struct {
	Subject   any // rdf.Term or Variable
	Predicate any // rdf.Term or Variable
	Object    any // rdf.Term or Variable
	Graph     any // rdf.Term or Variable (nil means any graph)
}

// Variable represents a SPARQL variable
type Variable struct {
	Name string
}

// NewVariable creates a new variable
func NewVariable(name string) *Variable {
	return &Variable{Name: name}
}

func (v *Variable) String() string {
	return "?" + v.Name
}

// Binding represents a variable binding
type Binding struct {
	Vars   map[string]rdf.Term
	values map[string]EncodedTerm // internal encoded values
}

// NewBinding creates a new empty binding
func NewBinding() *Binding {
	return &Binding{
		Vars:   make(map[string]rdf.Term),
		values: make(map[string]EncodedTerm),
	}
}

// Clone creates a copy of the binding
func (b *Binding) Clone() *Binding {
	newBinding := NewBinding()
	for k, v := range b.Vars {
		newBinding.Vars[k] = v
	}
	for k, v := range b.values {
		newBinding.values[k] = v
	}
	return newBinding
}

// QuadIterator iterates over quads matching a pattern
type QuadIterator interface {
	Next() bool
	Quad() (*rdf.Quad, error)
	Close() error
}

// BindingIterator iterates over variable bindings
type BindingIterator interface {
	Next() bool
	Binding() *Binding
	Close() error
}

// Query executes a pattern match against a fresh read snapshot and
// returns matching quads. The returned iterator owns that snapshot and
// rolls it back on Close.
func (s *TripleStore) Query(pattern *Pattern) (QuadIterator, error) {
	txn, err := s.storage.Begin(false)
	if err != nil {
		return nil, err
	}
	it, err := s.queryWithTxn(txn, pattern, true)
	if err != nil {
		_ = txn.Rollback() // #nosec G104 - rollback error less important than original error
		return nil, err
	}
	return it, nil
}

// QueryInTxn executes a pattern match within a caller-managed
// transaction. The returned iterator does not own txn and leaves it
// open on Close.
func (s *TripleStore) QueryInTxn(txn Transaction, pattern *Pattern) (QuadIterator, error) {
	return s.queryWithTxn(txn, pattern, false)
}

func (s *TripleStore) queryWithTxn(txn Transaction, pattern *Pattern, ownsTxn bool) (QuadIterator, error) {
	// Select the best index based on bound positions
	table, keyPattern := s.selectIndex(pattern)

	// Build the prefix for scanning
	prefix, err := s.buildScanPrefix(pattern, keyPattern)
	if err != nil {
		return nil, err
	}

	// Create iterator
	it, err := txn.Scan(table, prefix, nil)
	if err != nil {
		return nil, err
	}

	return &quadIterator{
		store:      s,
		txn:        txn,
		it:         it,
		pattern:    pattern,
		keyPattern: keyPattern,
		ownsTxn:    ownsTxn,
	}, nil
}

// selectIndex chooses the best of the six covering indexes based on which
// positions are bound. Every quad, including default-graph ones, lives in
// all six GSPOG-family indexes (the default graph is just the reserved
// encoded term rdf.DefaultGraph), so there is no separate default-graph
// branch here — a nil Pattern.Graph is treated as "bound to the default
// graph" by buildScanPrefix, exactly like any other bound graph term.
//
// KeyPattern maps key position -> pattern position (S=0, P=1, O=2, G=3).
func (s *TripleStore) selectIndex(pattern *Pattern) (Table, []int) {
	sBound := !isVariable(pattern.Subject)
	pBound := !isVariable(pattern.Predicate)
	oBound := !isVariable(pattern.Object)
	gBound := pattern.Graph != nil && !isVariable(pattern.Graph)

	switch {
	case gBound && sBound && pBound:
		return TableGSPO, []int{3, 0, 1, 2}
	case gBound && pBound && oBound:
		return TableGPOS, []int{3, 1, 2, 0}
	case gBound && oBound && sBound:
		return TableGOSP, []int{3, 2, 0, 1}
	case gBound && sBound:
		return TableGSPO, []int{3, 0, 1, 2}
	case gBound && pBound:
		return TableGPOS, []int{3, 1, 2, 0}
	case gBound && oBound:
		return TableGOSP, []int{3, 2, 0, 1}
	case gBound:
		return TableGSPO, []int{3, 0, 1, 2}
	case sBound && pBound:
		return TableSPOG, []int{0, 1, 2, 3}
	case pBound && oBound:
		return TablePOSG, []int{1, 2, 3, 0}
	case oBound && sBound:
		return TableOSPG, []int{2, 3, 0, 1}
	case sBound:
		return TableSPOG, []int{0, 1, 2, 3}
	case pBound:
		return TablePOSG, []int{1, 2, 3, 0}
	case oBound:
		return TableOSPG, []int{2, 3, 0, 1}
	default:
		return TableSPOG, []int{0, 1, 2, 3}
	}
}

// buildScanPrefix builds a key prefix for scanning based on bound positions.
// An unspecified graph (pattern.Graph == nil) is treated as bound to the
// default graph — callers that want an "any graph" scan must pass an
// explicit *Variable for Pattern.Graph instead of leaving it nil.
func (s *TripleStore) buildScanPrefix(pattern *Pattern, keyPattern []int) ([]byte, error) {
	// Map pattern positions: 0=S, 1=P, 2=O, 3=G
	positions := make([]any, 4)
	positions[0] = pattern.Subject
	positions[1] = pattern.Predicate
	positions[2] = pattern.Object
	if pattern.Graph != nil {
		positions[3] = pattern.Graph
	} else {
		positions[3] = rdf.NewDefaultGraph()
	}

	// Build prefix from bound terms in key order
	var prefix []byte
	for _, idx := range keyPattern {
		if idx >= len(positions) {
			break
		}

		term := positions[idx]
		if isVariable(term) {
			// Stop at first variable
			break
		}

		// Encode the term
		encoded, _, err := s.encoder.EncodeTerm(term.(rdf.Term))
		if err != nil {
			return nil, err
		}

		prefix = append(prefix, encoded[:]...)
	}

	return prefix, nil
}

// isVariable checks if a value is a variable
func isVariable(v any) bool {
	_, ok := v.(*Variable)
	return ok
}

// quadIterator implements QuadIterator
type quadIterator struct {
	store      *TripleStore
	txn        Transaction
	it         Iterator
	pattern    *Pattern
	keyPattern []int
	closed     bool
	ownsTxn    bool
}

func (qi *quadIterator) Next() bool {
	if qi.closed {
		return false
	}
	return qi.it.Next()
}

func (qi *quadIterator) Quad() (*rdf.Quad, error) {
	if qi.closed {
		return nil, fmt.Errorf("iterator closed")
	}

	key := qi.it.Key()
	if key == nil {
		return nil, fmt.Errorf("no current key")
	}

	// Decode key based on key pattern
	// Each encoded term is 17 bytes
	const encodedTermSize = 17
	if len(key) < len(qi.keyPattern)*encodedTermSize {
		return nil, fmt.Errorf("invalid key length: %d", len(key))
	}

	// Extract encoded terms
	terms := make([]EncodedTerm, len(qi.keyPattern))
	for i := 0; i < len(qi.keyPattern); i++ {
		offset := i * encodedTermSize
		copy(terms[i][:], key[offset:offset+encodedTermSize])
	}

	// Map back to S, P, O, G positions
	positions := make([]EncodedTerm, 4)
	for i, idx := range qi.keyPattern {
		positions[idx] = terms[i]
	}

	// Decode terms
	subject, err := qi.store.decodeTerm(qi.txn, positions[0])
	if err != nil {
		return nil, fmt.Errorf("failed to decode subject: %w", err)
	}

	predicate, err := qi.store.decodeTerm(qi.txn, positions[1])
	if err != nil {
		return nil, fmt.Errorf("failed to decode predicate: %w", err)
	}

	object, err := qi.store.decodeTerm(qi.txn, positions[2])
	if err != nil {
		return nil, fmt.Errorf("failed to decode object: %w", err)
	}

	var graph rdf.Term
	if len(qi.keyPattern) > 3 {
		graph, err = qi.store.decodeTerm(qi.txn, positions[3])
		if err != nil {
			return nil, fmt.Errorf("failed to decode graph: %w", err)
		}
	} else {
		graph = rdf.NewDefaultGraph()
	}

	return &rdf.Quad{
		Subject:   subject,
		Predicate: predicate,
		Object:    object,
		Graph:     graph,
	}, nil
}

func (qi *quadIterator) Close() error {
	if qi.closed {
		return nil
	}
	qi.closed = true
	_ = qi.it.Close() // #nosec G104 - iterator close error less critical than transaction rollback error
	if !qi.ownsTxn {
		return nil
	}
	return qi.txn.Rollback()
}

// decodeTerm decodes an encoded term back to an rdf.Term
func (s *TripleStore) decodeTerm(txn Transaction, encoded EncodedTerm) (rdf.Term, error) {
	termType := rdf.TermType(encoded[0])

	// For terms that need string lookup
	var stringValue *string
	if termType == rdf.TermTypeNamedNode || termType == rdf.TermTypeBlankNode ||
		termType == rdf.TermTypeStringLiteral || termType == rdf.TermTypeLangStringLiteral ||
		termType == rdf.TermTypeTypedLiteral || termType == rdf.TermTypeQuotedTriple {

		str, err := txn.Get(TableID2Str, encoded[1:])
		if err == nil {
			strVal := string(str)
			stringValue = &strVal
		}
	}

	return s.decoder.DecodeTerm(encoded, stringValue)
}
