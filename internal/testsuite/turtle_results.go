package testsuite

import (
	"fmt"

	"github.com/aleksaelezovic/trigo/pkg/rdf"
)

// ResultSet is a SPARQL result set read from the rs: vocabulary
// (https://www.w3.org/2001/sw/DataAccess/tests/result-set), the Turtle
// encoding the W3C test suite uses for expected SELECT output.
type ResultSet struct {
	Variables []string
	Solutions []map[string]rdf.Term
}

func (rs *ResultSet) ToBindings() ([]map[string]rdf.Term, error) {
	return rs.Solutions, nil
}

const (
	rsNamespace  = "http://www.w3.org/2001/sw/DataAccess/tests/result-set#"
	rdfNamespace = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"
)

// ParseTurtleResults parses a Turtle-encoded rs:ResultSet document into its
// solution bindings.
func ParseTurtleResults(data string) ([]map[string]rdf.Term, error) {
	return ParseTurtleResultsWithBase(data, "")
}

// ParseTurtleResultsWithBase is ParseTurtleResults with relative IRIs
// resolved against baseURI.
func ParseTurtleResultsWithBase(data string, baseURI string) ([]map[string]rdf.Term, error) {
	parser := rdf.NewTurtleParser(data)
	if baseURI != "" {
		parser.SetBaseURI(baseURI)
	}
	triples, err := parser.Parse()
	if err != nil {
		return nil, fmt.Errorf("failed to parse Turtle: %w", err)
	}
	return resultSetSolutions(triples, bySubject(triples))
}

// tripleIndex groups triples by subject, the shape every rs: lookup below
// needs (find the ResultSet node's properties, then a solution's bindings,
// then a binding's variable/value pair).
type tripleIndex map[rdf.Term][]*rdf.Triple

func bySubject(triples []*rdf.Triple) tripleIndex {
	idx := make(tripleIndex)
	for _, t := range triples {
		idx[t.Subject] = append(idx[t.Subject], t)
	}
	return idx
}

// predicateIRI returns t's predicate IRI, or "" if it isn't a named node.
func predicateIRI(t *rdf.Triple) string {
	if pred, ok := t.Predicate.(*rdf.NamedNode); ok {
		return pred.IRI
	}
	return ""
}

func resultSetSolutions(triples []*rdf.Triple, idx tripleIndex) ([]map[string]rdf.Term, error) {
	resultSetNode := findResultSetNode(triples)
	if resultSetNode == nil {
		return nil, fmt.Errorf("no rs:ResultSet found in data")
	}

	var solutions []map[string]rdf.Term
	for _, t := range idx[resultSetNode] {
		if predicateIRI(t) != rsNamespace+"solution" {
			continue
		}
		if solution := decodeSolution(idx, t.Object); len(solution) > 0 {
			solutions = append(solutions, solution)
		}
	}
	return solutions, nil
}

// findResultSetNode locates the subject with `rdf:type rs:ResultSet`,
// scanning in document order so a malformed fixture with more than one
// resolves the same way every run.
func findResultSetNode(triples []*rdf.Triple) rdf.Term {
	for _, t := range triples {
		if predicateIRI(t) != rdfNamespace+"type" {
			continue
		}
		if obj, ok := t.Object.(*rdf.NamedNode); ok && obj.IRI == rsNamespace+"ResultSet" {
			return t.Subject
		}
	}
	return nil
}

// decodeSolution reads every rs:binding child of a solution node into a
// single variable-name -> value map.
func decodeSolution(idx tripleIndex, solutionNode rdf.Term) map[string]rdf.Term {
	solution := make(map[string]rdf.Term)
	for _, t := range idx[solutionNode] {
		if predicateIRI(t) != rsNamespace+"binding" {
			continue
		}
		varName, value := decodeBinding(idx, t.Object)
		if varName != "" && value != nil {
			solution[varName] = value
		}
	}
	return solution
}

func decodeBinding(idx tripleIndex, bindingNode rdf.Term) (varName string, value rdf.Term) {
	for _, t := range idx[bindingNode] {
		switch predicateIRI(t) {
		case rsNamespace + "variable":
			if lit, ok := t.Object.(*rdf.Literal); ok {
				varName = lit.Value
			}
		case rsNamespace + "value":
			value = t.Object
		}
	}
	return varName, value
}
