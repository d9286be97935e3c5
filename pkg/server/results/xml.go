package results

import (
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/aleksaelezovic/trigo/pkg/rdf"
	"github.com/aleksaelezovic/trigo/pkg/sparql/executor"
)

// Results is the decoded form of a SPARQL XML results document
// (https://www.w3.org/TR/rdf-sparql-XMLres/), used by the test-suite runner
// to check a query's actual output against an expected-results fixture.
type Results struct {
	Head    Head           `xml:"head"`
	Results ResultsElement `xml:"results"`
	Boolean *bool          `xml:"boolean"` // set only for ASK results
}

type Head struct {
	Variables []Variable `xml:"variable"`
}

type Variable struct {
	Name string `xml:"name,attr"`
}

type ResultsElement struct {
	Results []Result `xml:"result"`
}

type Result struct {
	Bindings []Binding `xml:"binding"`
}

type Binding struct {
	Name    string   `xml:"name,attr"`
	URI     *string  `xml:"uri"`
	Literal *Literal `xml:"literal"`
	BNode   *string  `xml:"bnode"`
}

type Literal struct {
	Value    string `xml:",chardata"`
	Lang     string `xml:"lang,attr,omitempty"`
	Datatype string `xml:"datatype,attr,omitempty"`
}

func ParseXMLResults(r io.Reader) (*Results, error) {
	var parsed Results
	if err := xml.NewDecoder(r).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to parse XML results: %w", err)
	}
	return &parsed, nil
}

// ToBindings converts a decoded results document into the same
// map[string]rdf.Term shape executor bindings use, for direct comparison.
func (r *Results) ToBindings() ([]map[string]rdf.Term, error) {
	if r.Boolean != nil {
		return nil, fmt.Errorf("ASK queries not supported for binding comparison")
	}

	bindings := make([]map[string]rdf.Term, 0, len(r.Results.Results))
	for _, result := range r.Results.Results {
		binding := make(map[string]rdf.Term, len(result.Bindings))
		for _, b := range result.Bindings {
			term, err := b.toTerm()
			if err != nil {
				return nil, fmt.Errorf("failed to convert binding %s: %w", b.Name, err)
			}
			binding[b.Name] = term
		}
		bindings = append(bindings, binding)
	}
	return bindings, nil
}

func (b Binding) toTerm() (rdf.Term, error) {
	switch {
	case b.URI != nil:
		return rdf.NewNamedNode(*b.URI), nil
	case b.BNode != nil:
		return rdf.NewBlankNode(*b.BNode), nil
	case b.Literal != nil:
		switch {
		case b.Literal.Lang != "":
			return rdf.NewLiteralWithLanguage(b.Literal.Value, b.Literal.Lang), nil
		case b.Literal.Datatype != "":
			return rdf.NewLiteralWithDatatype(b.Literal.Value, rdf.NewNamedNode(b.Literal.Datatype)), nil
		default:
			return rdf.NewLiteral(b.Literal.Value), nil
		}
	default:
		return nil, fmt.Errorf("binding has no value")
	}
}

// CompareResults reports whether expected and actual hold the same set of
// bindings, ignoring result order.
func CompareResults(expected, actual []map[string]rdf.Term) bool {
	if len(expected) != len(actual) {
		return false
	}
	expectedStrs := sortedBindingStrings(expected)
	actualStrs := sortedBindingStrings(actual)
	for i := range expectedStrs {
		if expectedStrs[i] != actualStrs[i] {
			return false
		}
	}
	return true
}

func sortedBindingStrings(bindings []map[string]rdf.Term) []string {
	strs := make([]string, len(bindings))
	for i, binding := range bindings {
		strs[i] = bindingToString(binding)
	}
	sort.Strings(strs)
	return strs
}

// bindingToString renders one binding as `var1=term1|var2=term2|...`, with
// variables in sorted order so two equal bindings always render the same.
func bindingToString(binding map[string]rdf.Term) string {
	vars := make([]string, 0, len(binding))
	for v := range binding {
		vars = append(vars, v)
	}
	sort.Strings(vars)

	var b strings.Builder
	for i, v := range vars {
		if i > 0 {
			b.WriteByte('|')
		}
		b.WriteString(v)
		b.WriteByte('=')
		b.WriteString(binding[v].String())
	}
	return b.String()
}

// FormatSelectResultsXML renders a SELECT result as a SPARQL XML results
// document (https://www.w3.org/TR/rdf-sparql-XMLres/).
func FormatSelectResultsXML(result *executor.SelectResult) ([]byte, error) {
	var b strings.Builder
	b.WriteString("<?xml version=\"1.0\"?>\n<sparql xmlns=\"http://www.w3.org/2005/sparql-results#\">\n  <head>\n")
	for _, name := range selectVarNames(result) {
		fmt.Fprintf(&b, "    <variable name=\"%s\"/>\n", name)
	}
	b.WriteString("  </head>\n  <results>\n")
	for _, binding := range result.Bindings {
		b.WriteString("    <result>\n")
		for varName, term := range binding.Vars {
			fmt.Fprintf(&b, "      <binding name=\"%s\">\n", varName)
			writeTermXML(&b, term, "        ")
			b.WriteString("      </binding>\n")
		}
		b.WriteString("    </result>\n")
	}
	b.WriteString("  </results>\n</sparql>\n")
	return []byte(b.String()), nil
}

// FormatAskResultXML renders an ASK result as a SPARQL XML results document.
func FormatAskResultXML(result *executor.AskResult) ([]byte, error) {
	boolStr := "false"
	if result.Result {
		boolStr = "true"
	}
	doc := "<?xml version=\"1.0\"?>\n<sparql xmlns=\"http://www.w3.org/2005/sparql-results#\">\n  <head/>\n  <boolean>" +
		boolStr + "</boolean>\n</sparql>\n"
	return []byte(doc), nil
}

// selectVarNames returns the projected variable names in declaration order,
// falling back to the union of variables actually bound (in first-seen
// order) when the query carried no explicit projection list.
func selectVarNames(result *executor.SelectResult) []string {
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
		for name := range binding.Vars {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	return names
}

func writeTermXML(b *strings.Builder, term rdf.Term, indent string) {
	b.WriteString(indent)
	switch t := term.(type) {
	case *rdf.NamedNode:
		b.WriteString("<uri>")
		b.WriteString(xmlEscape(t.IRI))
		b.WriteString("</uri>\n")
	case *rdf.BlankNode:
		b.WriteString("<bnode>")
		b.WriteString(xmlEscape(t.ID))
		b.WriteString("</bnode>\n")
	case *rdf.Literal:
		switch {
		case t.Language != "":
			fmt.Fprintf(b, "<literal xml:lang=\"%s\">%s</literal>\n", t.Language, xmlEscape(t.Value))
		case t.Datatype != nil:
			fmt.Fprintf(b, "<literal datatype=\"%s\">%s</literal>\n", xmlEscape(t.Datatype.IRI), xmlEscape(t.Value))
		default:
			b.WriteString("<literal>")
			b.WriteString(xmlEscape(t.Value))
			b.WriteString("</literal>\n")
		}
	default:
		b.WriteString("<literal>")
		b.WriteString(xmlEscape(term.String()))
		b.WriteString("</literal>\n")
	}
}

var xmlReplacer = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

func xmlEscape(s string) string {
	return xmlReplacer.Replace(s)
}
