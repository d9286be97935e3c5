package results

import (
	"encoding/json"
	"sort"

	"github.com/aleksaelezovic/trigo/pkg/rdf"
	"github.com/aleksaelezovic/trigo/pkg/sparql/executor"
)

// sparqlResultsJSON is the SPARQL 1.1 Query Results JSON Format document
// (https://www.w3.org/TR/sparql11-results-json/).
type sparqlResultsJSON struct {
	Head    resultHead      `json:"head"`
	Results *resultBindings `json:"results,omitempty"`
	Boolean *bool           `json:"boolean,omitempty"`
}

type resultHead struct {
	Vars []string `json:"vars"`
}

type resultBindings struct {
	Bindings []map[string]bindingValue `json:"bindings"`
}

type bindingValue struct {
	Type     string  `json:"type"`
	Value    string  `json:"value"`
	Datatype *string `json:"datatype,omitempty"`
	XMLLang  *string `json:"xml:lang,omitempty"`
}

// FormatSelectResultsJSON renders a SELECT result as SPARQL Results JSON.
func FormatSelectResultsJSON(result *executor.SelectResult) ([]byte, error) {
	bindings := make([]map[string]bindingValue, 0, len(result.Bindings))
	for _, binding := range result.Bindings {
		row := make(map[string]bindingValue, len(binding.Vars))
		for varName, term := range binding.Vars {
			row[varName] = termToBindingValue(term)
		}
		bindings = append(bindings, row)
	}

	doc := sparqlResultsJSON{
		Head:    resultHead{Vars: selectVarNamesSorted(result)},
		Results: &resultBindings{Bindings: bindings},
	}
	return json.MarshalIndent(doc, "", "  ")
}

// FormatAskResultJSON renders an ASK result as SPARQL Results JSON.
func FormatAskResultJSON(result *executor.AskResult) ([]byte, error) {
	doc := sparqlResultsJSON{
		Head:    resultHead{Vars: []string{}},
		Boolean: &result.Result,
	}
	return json.MarshalIndent(doc, "", "  ")
}

// selectVarNamesSorted returns the projected variable names, alphabetized
// when the query carried no explicit projection list (SELECT *). Shared by
// the JSON and CSV/TSV formatters, which both sort the SELECT * fallback;
// the XML formatter keeps first-seen order instead (see selectVarNames).
func selectVarNamesSorted(result *executor.SelectResult) []string {
	if result.Variables != nil {
		names := make([]string, len(result.Variables))
		for i, v := range result.Variables {
			names[i] = v.Name
		}
		return names
	}

	seen := make(map[string]bool)
	var names []string
	for _, binding := range result.Bindings {
		for varName := range binding.Vars {
			if !seen[varName] {
				seen[varName] = true
				names = append(names, varName)
			}
		}
	}
	sort.Strings(names)
	return names
}

func termToBindingValue(term rdf.Term) bindingValue {
	switch t := term.(type) {
	case *rdf.NamedNode:
		return bindingValue{Type: "uri", Value: t.IRI}
	case *rdf.BlankNode:
		return bindingValue{Type: "bnode", Value: t.ID}
	case *rdf.Literal:
		bv := bindingValue{Type: "literal", Value: t.Value}
		switch {
		case t.Language != "":
			bv.XMLLang = &t.Language
		case t.Datatype != nil:
			iri := t.Datatype.IRI
			bv.Datatype = &iri
		}
		return bv
	default:
		return bindingValue{Type: "literal", Value: term.String()}
	}
}
