package store

import (
	"github.com/aleksaelezovic/trigo/pkg/rdf"
)

// EncodedTerm is a type byte plus up to 16 bytes of payload: inline value
// for short terms, or an id2str table reference for long ones. Shared by
// TermEncoder and TermDecoder so neither package needs to import the other's
// concrete type.
type EncodedTerm [17]byte

// TermEncoder turns RDF terms into the fixed-size binary form the quad
// indexes sort and store directly.
type TermEncoder interface {
	// EncodeTerm returns the fixed-size encoding, plus a non-nil string when
	// the term's full value must also be written to the id2str table.
	EncodeTerm(term rdf.Term) (EncodedTerm, *string, error)

	// EncodeQuadKey concatenates encoded terms into a big-endian key so that
	// byte-order comparison matches the intended index ordering.
	EncodeQuadKey(terms ...EncodedTerm) []byte
}

// TermDecoder is the inverse of TermEncoder.
type TermDecoder interface {
	// DecodeTerm rebuilds a term from its encoding; stringValue supplies the
	// id2str lookup result when the encoding alone isn't self-describing.
	DecodeTerm(encoded EncodedTerm, stringValue *string) (rdf.Term, error)
}
