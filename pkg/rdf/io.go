package rdf

import (
	"fmt"
	"io"
	"strings"
)

// RDFParser parses a serialized RDF document into quads.
type RDFParser interface {
	Parse(reader io.Reader) ([]*Quad, error)
	ContentType() string
}

// parserFactories maps a normalized MIME type to its parser constructor.
// text/plain and the application/x-* aliases point at the same parser as
// their canonical type.
var parserFactories = map[string]func() RDFParser{
	"application/n-triples": func() RDFParser { return &NTriplesIOParser{} },
	"text/plain":            func() RDFParser { return &NTriplesIOParser{} },
	"application/n-quads":   func() RDFParser { return &NQuadsIOParser{} },
	"text/turtle":           func() RDFParser { return &TurtleIOParser{} },
	"application/x-turtle":  func() RDFParser { return &TurtleIOParser{} },
	"application/trig":      func() RDFParser { return &TriGIOParser{} },
	"application/x-trig":    func() RDFParser { return &TriGIOParser{} },
}

// NewParser resolves an RDFParser for contentType, ignoring any `;
// charset=...`-style parameters.
func NewParser(contentType string) (RDFParser, error) {
	ct := normalizeContentType(contentType)
	factory, ok := parserFactories[ct]
	if !ok {
		return nil, fmt.Errorf("unsupported content type: %s", contentType)
	}
	return factory(), nil
}

func normalizeContentType(contentType string) string {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if idx := strings.Index(ct, ";"); idx != -1 {
		ct = strings.TrimSpace(ct[:idx])
	}
	return ct
}

// GetSupportedContentTypes lists every MIME type NewParser accepts.
func GetSupportedContentTypes() []string {
	types := make([]string, 0, len(parserFactories))
	for ct := range parserFactories {
		types = append(types, ct)
	}
	return types
}

// triplesToDefaultGraphQuads lifts a triple-only parse result into quads
// addressed at the default graph, shared by the parsers that have no
// concept of named graphs (N-Triples, Turtle).
func triplesToDefaultGraphQuads(triples []*Triple) []*Quad {
	quads := make([]*Quad, len(triples))
	defaultGraph := NewDefaultGraph()
	for i, t := range triples {
		quads[i] = NewQuad(t.Subject, t.Predicate, t.Object, defaultGraph)
	}
	return quads
}

// NTriplesIOParser parses N-Triples (triples only, default graph).
type NTriplesIOParser struct{}

func (p *NTriplesIOParser) ContentType() string { return "application/n-triples" }

func (p *NTriplesIOParser) Parse(reader io.Reader) ([]*Quad, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("error reading input: %w", err)
	}
	triples, err := NewTurtleParser(string(data)).Parse()
	if err != nil {
		return nil, fmt.Errorf("error parsing N-Triples: %w", err)
	}
	return triplesToDefaultGraphQuads(triples), nil
}

// NQuadsIOParser parses N-Quads (quads, optional graph label per line).
type NQuadsIOParser struct{}

func (p *NQuadsIOParser) ContentType() string { return "application/n-quads" }

func (p *NQuadsIOParser) Parse(reader io.Reader) ([]*Quad, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("error reading input: %w", err)
	}
	quads, err := NewNQuadsParser(string(data)).Parse()
	if err != nil {
		return nil, fmt.Errorf("error parsing N-Quads: %w", err)
	}
	return quads, nil
}

// TurtleIOParser parses Turtle (triples with prefixes, default graph).
type TurtleIOParser struct{}

func (p *TurtleIOParser) ContentType() string { return "text/turtle" }

func (p *TurtleIOParser) Parse(reader io.Reader) ([]*Quad, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("error reading input: %w", err)
	}
	triples, err := NewTurtleParser(string(data)).Parse()
	if err != nil {
		return nil, fmt.Errorf("error parsing Turtle: %w", err)
	}
	return triplesToDefaultGraphQuads(triples), nil
}

// TriGIOParser parses TriG (Turtle extended with named graph blocks).
type TriGIOParser struct{}

func (p *TriGIOParser) ContentType() string { return "application/trig" }

func (p *TriGIOParser) Parse(reader io.Reader) ([]*Quad, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("error reading input: %w", err)
	}
	quads, err := NewTriGParser(string(data)).Parse()
	if err != nil {
		return nil, fmt.Errorf("error parsing TriG: %w", err)
	}
	return quads, nil
}
