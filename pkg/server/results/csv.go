package results

import (
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/aleksaelezovic/trigo/pkg/rdf"
	"github.com/aleksaelezovic/trigo/pkg/sparql/executor"
)

// FormatSelectResultsCSV renders a SELECT result as SPARQL CSV
// (https://www.w3.org/TR/sparql11-results-csv-tsv/).
func FormatSelectResultsCSV(result *executor.SelectResult) ([]byte, error) {
	var out strings.Builder
	w := csv.NewWriter(&out)

	bnodes := canonicalBlankNodeLabels(result)
	varNames := selectVarNamesSorted(result)

	if err := w.Write(varNames); err != nil {
		return nil, err
	}
	for _, binding := range result.Bindings {
		row := make([]string, len(varNames))
		for i, varName := range varNames {
			if term, ok := binding.Vars[varName]; ok {
				row[i] = termToCSVValue(term, bnodes)
			}
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return []byte(out.String()), nil
}

// FormatAskResultCSV renders an ASK result as SPARQL CSV: a single "result"
// column holding "true" or "false".
func FormatAskResultCSV(result *executor.AskResult) ([]byte, error) {
	var out strings.Builder
	w := csv.NewWriter(&out)

	value := "false"
	if result.Result {
		value = "true"
	}
	if err := w.Write([]string{"result"}); err != nil {
		return nil, err
	}
	if err := w.Write([]string{value}); err != nil {
		return nil, err
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return []byte(out.String()), nil
}

// canonicalBlankNodeLabels assigns short, deterministic labels to the blank
// nodes appearing anywhere in result, in order of first appearance: a..z,
// then b0, b1, b2, ... This keeps CSV/TSV output stable even though the
// store's own blank node identifiers are opaque.
func canonicalBlankNodeLabels(result *executor.SelectResult) map[string]string {
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
			if next < 26 {
				labels[bn.ID] = string(rune('a' + next))
			} else {
				labels[bn.ID] = fmt.Sprintf("b%d", next-26)
			}
			next++
		}
	}
	return labels
}

// termToCSVValue renders term per the CSV/TSV results format: IRIs bare (no
// angle brackets), literals bare (the csv.Writer handles quoting/escaping),
// language-tagged literals as value@lang, blank nodes as _:label. The
// datatype IRI itself is never emitted — the format has no room for it —
// except that xsd:double values are reformatted to the spec's exponent
// notation.
func termToCSVValue(term rdf.Term, bnodeLabels map[string]string) string {
	switch t := term.(type) {
	case *rdf.NamedNode:
		return t.IRI

	case *rdf.BlankNode:
		if label, ok := bnodeLabels[t.ID]; ok {
			return "_:" + label
		}
		return "_:" + t.ID

	case *rdf.Literal:
		if t.Language != "" {
			return t.Value + "@" + t.Language
		}
		if t.Datatype != nil && t.Datatype.IRI == "http://www.w3.org/2001/XMLSchema#double" {
			return formatDoubleExponent(t.Value)
		}
		return t.Value

	default:
		return term.String()
	}
}

// formatDoubleExponent rewrites an xsd:double lexical form into the CSV
// results format's exponent style: uppercase E, explicit decimal point in
// the mantissa, no leading zeros or '+' in the exponent (e.g. "1E06" ->
// "1.0E6").
func formatDoubleExponent(value string) string {
	value = strings.ReplaceAll(value, "e+", "E")
	value = strings.ReplaceAll(value, "e-", "E-")
	value = strings.ReplaceAll(value, "e", "E")

	mantissa, exponent, hasE := strings.Cut(value, "E")
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

	return mantissa + "E" + exponent
}
