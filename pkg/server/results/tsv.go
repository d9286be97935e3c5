package results

import (
	"fmt"
	"strings"

	"github.com/aleksaelezovic/trigo/pkg/rdf"
	"github.com/aleksaelezovic/trigo/pkg/sparql/executor"
)

// FormatSelectResultsTSV renders a SELECT result as SPARQL TSV
// (https://www.w3.org/TR/sparql11-results-csv-tsv/).
func FormatSelectResultsTSV(result *executor.SelectResult) ([]byte, error) {
	var b strings.Builder

	bnodes := tsvBlankNodeLabels(result)
	varNames := selectVarNamesSorted(result)

	for i, varName := range varNames {
		if i > 0 {
			b.WriteByte('\t')
		}
		b.WriteByte('?')
		b.WriteString(varName)
	}
	b.WriteByte('\n')

	for _, binding := range result.Bindings {
		for i, varName := range varNames {
			if i > 0 {
				b.WriteByte('\t')
			}
			if term, ok := binding.Vars[varName]; ok {
				b.WriteString(termToTSVValue(term, bnodes))
			}
		}
		b.WriteByte('\n')
	}
	return []byte(b.String()), nil
}

// FormatAskResultTSV renders an ASK result as SPARQL TSV: a single "result"
// column holding "true" or "false".
func FormatAskResultTSV(result *executor.AskResult) ([]byte, error) {
	value := "false"
	if result.Result {
		value = "true"
	}
	return []byte("?result\n" + value + "\n"), nil
}

// tsvBlankNodeLabels assigns b0, b1, b2, ... labels in order of first
// appearance, per the W3C TSV test suite's expected labeling (distinct from
// CSV's a..z, b0, b1, ... scheme — see canonicalBlankNodeLabels).
func tsvBlankNodeLabels(result *executor.SelectResult) map[string]string {
	labels := make(map[string]string)
	next := 0
	names := selectVarNamesSorted(result)
	for _, binding := range result.Bindings {
		for _, name := range names {
			bn, ok := binding.Vars[name].(*rdf.BlankNode)
			if !ok {
				continue
			}
			if _, exists := labels[bn.ID]; exists {
				continue
			}
			labels[bn.ID] = fmt.Sprintf("b%d", next)
			next++
		}
	}
	return labels
}

// numericTSVDatatypes are the xsd types the TSV format writes bare (no
// quotes, no datatype suffix); every other typed literal keeps its
// "value"^^<datatype> form.
var numericTSVDatatypes = map[string]bool{
	"http://www.w3.org/2001/XMLSchema#integer": true,
	"http://www.w3.org/2001/XMLSchema#decimal": true,
	"http://www.w3.org/2001/XMLSchema#double":  true,
}

func termToTSVValue(term rdf.Term, bnodeLabels map[string]string) string {
	switch t := term.(type) {
	case *rdf.NamedNode:
		return "<" + t.IRI + ">"

	case *rdf.BlankNode:
		if label, ok := bnodeLabels[t.ID]; ok {
			return "_:" + label
		}
		return "_:" + t.ID

	case *rdf.Literal:
		switch {
		case t.Language != "":
			return `"` + escapeTSVString(t.Value) + `"@` + t.Language

		case t.Datatype != nil && numericTSVDatatypes[t.Datatype.IRI]:
			if t.Datatype.IRI == "http://www.w3.org/2001/XMLSchema#double" {
				return formatDoubleTSV(t.Value)
			}
			return t.Value

		case t.Datatype != nil:
			return `"` + escapeTSVString(t.Value) + `"^^<` + t.Datatype.IRI + ">"

		default:
			return `"` + escapeTSVString(t.Value) + `"`
		}

	default:
		return term.String()
	}
}

// formatDoubleTSV rewrites an xsd:double lexical form into TSV's exponent
// style: lowercase e, explicit decimal point in the mantissa, no leading
// zeros or '+' in the exponent (e.g. "1e06" -> "1.0e6").
func formatDoubleTSV(value string) string {
	value = strings.ReplaceAll(value, "E+", "e")
	value = strings.ReplaceAll(value, "E-", "e-")
	value = strings.ReplaceAll(value, "E", "e")
	value = strings.ReplaceAll(value, "e+", "e")

	mantissa, exponent, hasE := strings.Cut(value, "e")
	if !hasE {
		return value
	}

	if !strings.Contains(mantissa, ".") {
		mantissa += ".0"
	}

	negative := strings.HasPrefix(exponent, "-")
	exponent = strings.TrimPrefix(exponent, "-")
	exponent = strings.TrimLeft(exponent, "0")
	if exponent == "" {
		exponent = "0"
	}
	if negative {
		exponent = "-" + exponent
	}

	return mantissa + "e" + exponent
}

func escapeTSVString(s string) string {
	replacer := strings.NewReplacer(
		"\\", "\\\\",
		"\t", "\\t",
		"\n", "\\n",
		"\r", "\\r",
		"\"", "\\\"",
	)
	return replacer.Replace(s)
}
