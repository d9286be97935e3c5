package encoding

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/aleksaelezovic/trigo/pkg/rdf"
	"github.com/aleksaelezovic/trigo/pkg/store"
	"github.com/zeebo/xxh3"
)

const (
	// MaxInlineStringSize is the largest string literal value stored
	// inline in an encoded term rather than hashed.
	MaxInlineStringSize = 16

	// EncodedTermSize is the fixed width of an encoded term: one type
	// byte plus 16 bytes of inline data or 128-bit hash.
	EncodedTermSize = 17
)

// TermEncoder packs RDF terms into store.EncodedTerm's fixed-width form for
// the quad indexes, hashing values that don't fit inline.
type TermEncoder struct{}

func NewTermEncoder() *TermEncoder {
	return &TermEncoder{}
}

// Hash128 computes the 128-bit xxh3 hash used whenever a term's value must
// be hashed rather than stored inline.
func (e *TermEncoder) Hash128(s string) [16]byte {
	h := xxh3.Hash128([]byte(s))
	var out [16]byte
	binary.BigEndian.PutUint64(out[0:8], h.Hi)
	binary.BigEndian.PutUint64(out[8:16], h.Lo)
	return out
}

// EncodeTerm packs term into its fixed-width form. The returned *string,
// when non-nil, is the value that must also be written to the id2str table
// so the hash can later be reversed.
func (e *TermEncoder) EncodeTerm(term rdf.Term) (store.EncodedTerm, *string, error) {
	switch t := term.(type) {
	case *rdf.NamedNode:
		return e.encodeNamedNode(t)
	case *rdf.BlankNode:
		return e.encodeBlankNode(t)
	case *rdf.Literal:
		return e.encodeLiteral(t)
	case *rdf.DefaultGraph:
		return e.encodeDefaultGraph()
	case *rdf.QuotedTriple:
		return e.encodeQuotedTriple(t)
	default:
		var zero store.EncodedTerm
		return zero, nil, fmt.Errorf("unknown term type: %T", term)
	}
}

// zeroTail clears encoded's bytes from start onward, for the fixed-width
// numeric encodings that only fill a type byte plus 8 data bytes.
func zeroTail(encoded *store.EncodedTerm, start int) {
	for i := start; i < EncodedTermSize; i++ {
		encoded[i] = 0
	}
}

func (e *TermEncoder) encodeNamedNode(node *rdf.NamedNode) (store.EncodedTerm, *string, error) {
	var encoded store.EncodedTerm
	encoded[0] = byte(rdf.TermTypeNamedNode)
	hash := e.Hash128(node.IRI) // IRIs are always hashed, never inlined
	copy(encoded[1:], hash[:])
	return encoded, &node.IRI, nil
}

func (e *TermEncoder) encodeBlankNode(node *rdf.BlankNode) (store.EncodedTerm, *string, error) {
	var encoded store.EncodedTerm
	encoded[0] = byte(rdf.TermTypeBlankNode)

	if num, err := strconv.ParseUint(node.ID, 10, 64); err == nil {
		binary.BigEndian.PutUint64(encoded[1:9], num)
		zeroTail(&encoded, 9)
		return encoded, nil, nil
	}

	hash := e.Hash128(node.ID)
	copy(encoded[1:], hash[:])
	return encoded, &node.ID, nil
}

func (e *TermEncoder) encodeLiteral(lit *rdf.Literal) (store.EncodedTerm, *string, error) {
	if lit.Datatype != nil {
		switch lit.Datatype.IRI {
		case rdf.XSDInteger.IRI:
			return e.encodeIntegerLiteral(lit)
		case rdf.XSDDecimal.IRI:
			return e.encodeDecimalLiteral(lit)
		case rdf.XSDDouble.IRI:
			return e.encodeDoubleLiteral(lit)
		case rdf.XSDBoolean.IRI:
			return e.encodeBooleanLiteral(lit)
		case rdf.XSDDateTime.IRI:
			return e.encodeDateTimeLiteral(lit)
		case rdf.XSDDate.IRI:
			return e.encodeDateLiteral(lit)
		default:
			return e.encodeTypedLiteral(lit)
		}
	}
	if lit.Language != "" {
		return e.encodeLangStringLiteral(lit)
	}
	return e.encodeStringLiteral(lit)
}

func (e *TermEncoder) encodeStringLiteral(lit *rdf.Literal) (store.EncodedTerm, *string, error) {
	var encoded store.EncodedTerm
	encoded[0] = byte(rdf.TermTypeStringLiteral)

	if len(lit.Value) <= MaxInlineStringSize {
		copy(encoded[1:], []byte(lit.Value))
		zeroTail(&encoded, 1+len(lit.Value))
		return encoded, nil, nil
	}

	hash := e.Hash128(lit.Value)
	copy(encoded[1:], hash[:])
	return encoded, &lit.Value, nil
}

func (e *TermEncoder) encodeLangStringLiteral(lit *rdf.Literal) (store.EncodedTerm, *string, error) {
	var encoded store.EncodedTerm
	encoded[0] = byte(rdf.TermTypeLangStringLiteral)

	// value@lang[--direction] with the language tag lowercased, so "hi"@en
	// and "hi"@fr hash to distinct encodings even though their values are
	// equal, while "hi"@EN and "hi"@en share one.
	combined := lit.Value + "@" + strings.ToLower(lit.Language)
	if lit.Direction != "" {
		combined += "--" + lit.Direction
	}
	hash := e.Hash128(combined)
	copy(encoded[1:], hash[:])
	return encoded, &combined, nil
}

func (e *TermEncoder) encodeTypedLiteral(lit *rdf.Literal) (store.EncodedTerm, *string, error) {
	var encoded store.EncodedTerm
	encoded[0] = byte(rdf.TermTypeTypedLiteral)

	// value^^datatype, so the same lexical value under two different
	// datatypes hashes to distinct encodings.
	combined := lit.Value + "^^" + lit.Datatype.IRI
	hash := e.Hash128(combined)
	copy(encoded[1:], hash[:])
	return encoded, &combined, nil
}

func (e *TermEncoder) encodeIntegerLiteral(lit *rdf.Literal) (store.EncodedTerm, *string, error) {
	var encoded store.EncodedTerm
	encoded[0] = byte(rdf.TermTypeIntegerLiteral)

	value, err := strconv.ParseInt(lit.Value, 10, 64)
	if err != nil {
		return encoded, nil, fmt.Errorf("invalid integer literal: %w", err)
	}
	binary.BigEndian.PutUint64(encoded[1:9], uint64(value)) // #nosec G115 - intentional bit-pattern conversion for binary encoding
	zeroTail(&encoded, 9)
	return encoded, nil, nil
}

func (e *TermEncoder) encodeDecimalLiteral(lit *rdf.Literal) (store.EncodedTerm, *string, error) {
	var encoded store.EncodedTerm
	encoded[0] = byte(rdf.TermTypeDecimalLiteral)

	value, err := strconv.ParseFloat(lit.Value, 64)
	if err != nil {
		return encoded, nil, fmt.Errorf("invalid decimal literal: %w", err)
	}
	binary.BigEndian.PutUint64(encoded[1:9], math.Float64bits(value))
	zeroTail(&encoded, 9)
	return encoded, nil, nil
}

func (e *TermEncoder) encodeDoubleLiteral(lit *rdf.Literal) (store.EncodedTerm, *string, error) {
	var encoded store.EncodedTerm
	encoded[0] = byte(rdf.TermTypeDoubleLiteral)

	value, err := strconv.ParseFloat(lit.Value, 64)
	if err != nil {
		return encoded, nil, fmt.Errorf("invalid double literal: %w", err)
	}
	binary.BigEndian.PutUint64(encoded[1:9], math.Float64bits(value))
	zeroTail(&encoded, 9)
	return encoded, nil, nil
}

func (e *TermEncoder) encodeBooleanLiteral(lit *rdf.Literal) (store.EncodedTerm, *string, error) {
	var encoded store.EncodedTerm
	encoded[0] = byte(rdf.TermTypeBooleanLiteral)

	value, err := strconv.ParseBool(lit.Value)
	if err != nil {
		return encoded, nil, fmt.Errorf("invalid boolean literal: %w", err)
	}
	if value {
		encoded[1] = 1
	}
	zeroTail(&encoded, 2)
	return encoded, nil, nil
}

func (e *TermEncoder) encodeDateTimeLiteral(lit *rdf.Literal) (store.EncodedTerm, *string, error) {
	var encoded store.EncodedTerm
	encoded[0] = byte(rdf.TermTypeDateTimeLiteral)

	trimmed := strings.TrimSpace(lit.Value)
	t, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		// Fall back to a bare ISO8601 timestamp with no timezone, and
		// treat it as UTC.
		t, err = time.Parse("2006-01-02T15:04:05", trimmed)
		if err != nil {
			return encoded, nil, fmt.Errorf("invalid datetime literal: %w", err)
		}
		t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
	}

	binary.BigEndian.PutUint64(encoded[1:9], uint64(t.UnixNano())) // #nosec G115 - intentional bit-pattern conversion for timestamp encoding
	zeroTail(&encoded, 9)
	return encoded, nil, nil
}

func (e *TermEncoder) encodeDateLiteral(lit *rdf.Literal) (store.EncodedTerm, *string, error) {
	var encoded store.EncodedTerm
	encoded[0] = byte(rdf.TermTypeDateLiteral)

	t, err := time.Parse("2006-01-02", strings.TrimSpace(lit.Value))
	if err != nil {
		return encoded, nil, fmt.Errorf("invalid date literal: %w", err)
	}
	days := t.Unix() / 86400
	binary.BigEndian.PutUint64(encoded[1:9], uint64(days)) // #nosec G115 - intentional bit-pattern conversion for date encoding
	zeroTail(&encoded, 9)
	return encoded, nil, nil
}

func (e *TermEncoder) encodeQuotedTriple(qt *rdf.QuotedTriple) (store.EncodedTerm, *string, error) {
	var encoded store.EncodedTerm
	encoded[0] = byte(rdf.TermTypeQuotedTriple)

	serialized := qt.String() // canonical "<< s p o >>" form, hashed and kept for reconstruction
	hash := e.Hash128(serialized)
	copy(encoded[1:], hash[:])
	return encoded, &serialized, nil
}

func (e *TermEncoder) encodeDefaultGraph() (store.EncodedTerm, *string, error) {
	var encoded store.EncodedTerm
	encoded[0] = byte(rdf.TermTypeDefaultGraph)
	zeroTail(&encoded, 1)
	return encoded, nil, nil
}

// EncodeQuadKey concatenates a quad's encoded terms into one big-endian key
// suitable for lexicographic range scans over any of the index orderings.
func (e *TermEncoder) EncodeQuadKey(terms ...store.EncodedTerm) []byte {
	key := make([]byte, 0, len(terms)*EncodedTermSize)
	for _, term := range terms {
		key = append(key, term[:]...)
	}
	return key
}

// GetTermType reads the type tag out of an encoded term.
func GetTermType(encoded store.EncodedTerm) rdf.TermType {
	return rdf.TermType(encoded[0])
}
