package encoding

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/aleksaelezovic/trigo/pkg/rdf"
)

// TermDecoder handles decoding of RDF terms
type TermDecoder struct{}

// NewTermDecoder creates a new term decoder
func NewTermDecoder() *TermDecoder {
	return &TermDecoder{}
}

// DecodeTerm decodes an encoded term back to an rdf.Term
// For terms that require string lookup, stringValue should be provided
func (d *TermDecoder) DecodeTerm(encoded EncodedTerm, stringValue *string) (rdf.Term, error) {
	termType := GetTermType(encoded)

	switch termType {
	case rdf.TermTypeNamedNode:
		if stringValue == nil {
			return nil, fmt.Errorf("string value required for named node")
		}
		return rdf.NewNamedNode(*stringValue), nil

	case rdf.TermTypeBlankNode:
		if stringValue != nil {
			return rdf.NewBlankNode(*stringValue), nil
		}
		// Try to decode as numeric ID
		numericID := binary.BigEndian.Uint64(encoded[1:9])
		return rdf.NewBlankNode(strconv.FormatUint(numericID, 10)), nil

	case rdf.TermTypeStringLiteral:
		if stringValue != nil {
			return rdf.NewLiteral(*stringValue), nil
		}
		// Try to extract inline string
		// Find null terminator or end of data
		endIdx := 1
		for endIdx < EncodedTermSize && encoded[endIdx] != 0 {
			endIdx++
		}
		inlineStr := string(encoded[1:endIdx])
		return rdf.NewLiteral(inlineStr), nil

	case rdf.TermTypeLangStringLiteral:
		if stringValue == nil {
			return nil, fmt.Errorf("string value required for language-tagged literal")
		}
		// Split value@language
		for i := len(*stringValue) - 1; i >= 0; i-- {
			if (*stringValue)[i] == '@' {
				value := (*stringValue)[:i]
				lang := (*stringValue)[i+1:]
				return rdf.NewLiteralWithLanguage(value, lang), nil
			}
		}
		return rdf.NewLiteral(*stringValue), nil

	case rdf.TermTypeIntegerLiteral:
		value := int64(binary.BigEndian.Uint64(encoded[1:9])) // #nosec G115 - intentional bit-pattern conversion for binary decoding
		return rdf.NewIntegerLiteral(value), nil

	case rdf.TermTypeDecimalLiteral:
		bits := binary.BigEndian.Uint64(encoded[1:9])
		value := math.Float64frombits(bits)
		return rdf.NewLiteralWithDatatype(fmt.Sprintf("%g", value), rdf.XSDDecimal), nil

	case rdf.TermTypeDoubleLiteral:
		bits := binary.BigEndian.Uint64(encoded[1:9])
		value := math.Float64frombits(bits)
		return rdf.NewDoubleLiteral(value), nil

	case rdf.TermTypeBooleanLiteral:
		value := encoded[1] != 0
		return rdf.NewBooleanLiteral(value), nil

	case rdf.TermTypeDateTimeLiteral:
		nanos := int64(binary.BigEndian.Uint64(encoded[1:9])) // #nosec G115 - intentional bit-pattern conversion for timestamp decoding
		t := time.Unix(0, nanos)
		return rdf.NewDateTimeLiteral(t), nil

	case rdf.TermTypeDateLiteral:
		days := int64(binary.BigEndian.Uint64(encoded[1:9])) // #nosec G115 - intentional bit-pattern conversion for date decoding
		t := time.Unix(days*86400, 0)
		return rdf.NewLiteralWithDatatype(t.Format("2006-01-02"), rdf.XSDDate), nil

	case rdf.TermTypeDefaultGraph:
		return rdf.NewDefaultGraph(), nil

	case rdf.TermTypeTypedLiteral:
		if stringValue == nil {
			return nil, fmt.Errorf("string value required for typed literal")
		}
		sep := strings.LastIndex(*stringValue, "^^")
		if sep < 0 {
			return nil, fmt.Errorf("malformed typed literal dictionary entry: %q", *stringValue)
		}
		return rdf.NewLiteralWithDatatype((*stringValue)[:sep], rdf.NewNamedNode((*stringValue)[sep+2:])), nil

	case rdf.TermTypeQuotedTriple:
		if stringValue == nil {
			return nil, fmt.Errorf("string value required for quoted triple")
		}
		qt, _, err := parseQuotedTripleTerm(*stringValue)
		if err != nil {
			return nil, fmt.Errorf("malformed quoted triple dictionary entry: %w", err)
		}
		return qt, nil

	default:
		return nil, fmt.Errorf("unknown term type: %d", termType)
	}
}

// parseQuotedTripleTerm parses the canonical "<< s p o >>" form produced by
// QuotedTriple.String(), recursively handling nested quoted triples used as
// subject or object. It returns the parsed term and the number of bytes
// consumed from the front of s.
func parseQuotedTripleTerm(s string) (rdf.Term, int, error) {
	orig := s
	s = strings.TrimLeft(s, " \t")
	skipped := len(orig) - len(s)
	switch {
	case strings.HasPrefix(s, "<<"):
		rest := s[2:]

		subj, n, err := parseQuotedTripleTerm(rest)
		if err != nil {
			return nil, 0, err
		}
		rest = rest[n:]

		pred, n, err := parseQuotedTripleTerm(rest)
		if err != nil {
			return nil, 0, err
		}
		rest = rest[n:]

		obj, n, err := parseQuotedTripleTerm(rest)
		if err != nil {
			return nil, 0, err
		}
		rest = rest[n:]

		rest = strings.TrimLeft(rest, " \t")
		if !strings.HasPrefix(rest, ">>") {
			return nil, 0, fmt.Errorf("expected '>>' in quoted triple")
		}
		rest = rest[2:]

		qt, err := rdf.NewQuotedTriple(subj, pred, obj)
		if err != nil {
			return nil, 0, err
		}
		return qt, skipped + (len(s) - len(rest)), nil

	case strings.HasPrefix(s, "<"):
		end := strings.IndexByte(s, '>')
		if end < 0 {
			return nil, 0, fmt.Errorf("unterminated IRI")
		}
		return rdf.NewNamedNode(s[1:end]), skipped + end + 1, nil

	case strings.HasPrefix(s, "_:"):
		end := 2
		for end < len(s) && s[end] != ' ' && s[end] != '\t' && !strings.HasPrefix(s[end:], ">>") {
			end++
		}
		return rdf.NewBlankNode(s[2:end]), skipped + end, nil

	case strings.HasPrefix(s, `"`):
		i := 1
		var value strings.Builder
		for i < len(s) {
			if s[i] == '\\' && i+1 < len(s) {
				value.WriteByte(s[i+1])
				i += 2
				continue
			}
			if s[i] == '"' {
				break
			}
			value.WriteByte(s[i])
			i++
		}
		if i >= len(s) {
			return nil, 0, fmt.Errorf("unterminated literal")
		}
		i++ // consume closing quote
		consumed := skipped + i

		switch {
		case strings.HasPrefix(s[i:], "@"):
			j := i + 1
			for j < len(s) && s[j] != ' ' && s[j] != '\t' && !strings.HasPrefix(s[j:], ">>") {
				j++
			}
			lang := s[i+1 : j]
			if k := strings.Index(lang, "--"); k >= 0 {
				return rdf.NewLiteralWithLanguageAndDirection(value.String(), lang[:k], lang[k+2:]), consumed + (j - i), nil
			}
			return rdf.NewLiteralWithLanguage(value.String(), lang), consumed + (j - i), nil
		case strings.HasPrefix(s[i:], "^^"):
			dt, n, err := parseQuotedTripleTerm(s[i+2:])
			if err != nil {
				return nil, 0, err
			}
			dtNode, ok := dt.(*rdf.NamedNode)
			if !ok {
				return nil, 0, fmt.Errorf("expected IRI datatype")
			}
			return rdf.NewLiteralWithDatatype(value.String(), dtNode), consumed + 2 + n, nil
		default:
			return rdf.NewLiteral(value.String()), consumed, nil
		}

	default:
		return nil, 0, fmt.Errorf("unexpected input in quoted triple term: %q", s)
	}
}
