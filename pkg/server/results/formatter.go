package results

import (
	"fmt"
	"strings"

	"github.com/aleksaelezovic/trigo/pkg/sparql/executor"
)

// FormatConstructResultNTriples renders a CONSTRUCT result as N-Triples
// (https://www.w3.org/TR/n-triples/). executor.Term stores literal
// language/datatype suffixes inline in Value (`"hello"@en`,
// `"123"^^<...>`), so this splits them back out at format time.
func FormatConstructResultNTriples(result *executor.ConstructResult) ([]byte, error) {
	var b strings.Builder
	for _, triple := range result.Triples {
		if err := writeNTriplesTerm(&b, triple.Subject); err != nil {
			return nil, err
		}
		b.WriteByte(' ')
		if err := writeNTriplesTerm(&b, triple.Predicate); err != nil {
			return nil, err
		}
		b.WriteByte(' ')
		if err := writeNTriplesTerm(&b, triple.Object); err != nil {
			return nil, err
		}
		b.WriteString(" .\n")
	}
	return []byte(b.String()), nil
}

func writeNTriplesTerm(b *strings.Builder, term executor.Term) error {
	switch term.Type {
	case "iri":
		b.WriteByte('<')
		b.WriteString(term.Value)
		b.WriteByte('>')
	case "blank":
		b.WriteString("_:")
		b.WriteString(term.Value)
	case "literal":
		writeNTriplesLiteral(b, term.Value)
	default:
		return fmt.Errorf("unknown term type: %s", term.Type)
	}
	return nil
}

// writeNTriplesLiteral splits a literal's combined value ("text"@lang or
// "text"^^<datatype>) back into its lexical form and suffix.
func writeNTriplesLiteral(b *strings.Builder, value string) {
	if idx := strings.LastIndex(value, "@"); idx != -1 {
		b.WriteByte('"')
		b.WriteString(escapeNTriplesString(value[:idx]))
		b.WriteString(`"@`)
		b.WriteString(value[idx+1:])
		return
	}
	if idx := strings.Index(value, "^^<"); idx != -1 {
		b.WriteByte('"')
		b.WriteString(escapeNTriplesString(value[:idx]))
		b.WriteString(`"^^`)
		b.WriteString(value[idx+2:]) // already bracketed: <...>
		return
	}
	b.WriteByte('"')
	b.WriteString(escapeNTriplesString(value))
	b.WriteByte('"')
}

func escapeNTriplesString(s string) string {
	replacer := strings.NewReplacer(
		"\\", "\\\\",
		"\"", "\\\"",
		"\n", "\\n",
		"\r", "\\r",
		"\t", "\\t",
	)
	return replacer.Replace(s)
}
