package rdf

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// JSONLDParser handles a practical subset of JSON-LD: @id/@type, string and
// value-object properties, @id references, @language/@type on value
// objects, and prefix expansion through @context. It does not implement
// full context processing (remote/nested contexts), @graph, @list/@set,
// @reverse, or the formal expansion/compaction/framing algorithms.
type JSONLDParser struct{}

func NewJSONLDParser() *JSONLDParser {
	return &JSONLDParser{}
}

// Parse reads a JSON-LD document and returns its quads, all in the default
// graph (this parser has no notion of @graph).
func (p *JSONLDParser) Parse(reader io.Reader) ([]*Quad, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("error reading JSON-LD: %w", err)
	}

	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("error parsing JSON: %w", err)
	}

	dec := &jsonLDDecoder{}
	switch v := doc.(type) {
	case map[string]interface{}:
		return dec.decodeTop(v)
	case []interface{}:
		var quads []*Quad
		for _, item := range v {
			obj, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			objQuads, err := dec.decodeTop(obj)
			if err != nil {
				return nil, err
			}
			quads = append(quads, objQuads...)
		}
		return quads, nil
	default:
		return nil, fmt.Errorf("unexpected JSON-LD structure: %T", doc)
	}
}

// jsonLDDecoder carries the state that threads through one document's worth
// of nested object decoding: the active @context (replaced wholesale by any
// nested @context found so far, matching this parser's simplified model)
// and a counter that mints fresh blank node identifiers.
type jsonLDDecoder struct {
	context map[string]interface{}
	blanks  int
}

func (d *jsonLDDecoder) decodeTop(obj map[string]interface{}) ([]*Quad, error) {
	if ctx, ok := obj["@context"].(map[string]interface{}); ok {
		d.context = ctx
	}
	quads, _, err := d.decodeObject(obj)
	return quads, err
}

// decodeObject decodes one JSON-LD node object, returning its quads and the
// term (named node from @id, or a freshly minted blank node) identifying it.
func (d *jsonLDDecoder) decodeObject(obj map[string]interface{}) ([]*Quad, Term, error) {
	subject := d.subjectOf(obj)

	var quads []*Quad
	for key, value := range obj {
		if strings.HasPrefix(key, "@") {
			continue
		}
		predicate := NewNamedNode(d.expandIRI(key))

		vs, err := d.decodeProperty(subject, predicate, value)
		if err != nil {
			return nil, nil, err
		}
		quads = append(quads, vs...)
	}
	return quads, subject, nil
}

func (d *jsonLDDecoder) subjectOf(obj map[string]interface{}) Term {
	if idStr, ok := obj["@id"].(string); ok {
		return NewNamedNode(d.expandIRI(idStr))
	}
	d.blanks++
	return NewBlankNode(fmt.Sprintf("b%d", d.blanks))
}

// decodeProperty decodes one property value, which may be a plain scalar,
// a value/nested object, or an array mixing either.
func (d *jsonLDDecoder) decodeProperty(subject, predicate Term, value interface{}) ([]*Quad, error) {
	switch v := value.(type) {
	case string:
		return []*Quad{NewQuad(subject, predicate, NewLiteral(v), NewDefaultGraph())}, nil

	case float64, bool:
		return []*Quad{NewQuad(subject, predicate, NewLiteral(fmt.Sprintf("%v", v)), NewDefaultGraph())}, nil

	case map[string]interface{}:
		return d.decodeValueObject(subject, predicate, v)

	case []interface{}:
		var quads []*Quad
		for _, item := range v {
			vs, err := d.decodeProperty(subject, predicate, item)
			if err != nil {
				return nil, err
			}
			quads = append(quads, vs...)
		}
		return quads, nil

	default:
		return nil, nil
	}
}

// decodeValueObject decodes a JSON-LD value object: an @id reference, an
// @value literal (with optional @language or @type), or — failing both — a
// nested node object linked to subject via predicate.
func (d *jsonLDDecoder) decodeValueObject(subject, predicate Term, value map[string]interface{}) ([]*Quad, error) {
	if idStr, ok := value["@id"].(string); ok {
		object := NewNamedNode(d.expandIRI(idStr))
		return []*Quad{NewQuad(subject, predicate, object, NewDefaultGraph())}, nil
	}

	if val, ok := value["@value"]; ok {
		var object Term
		switch {
		case isString(value["@language"]):
			object = &Literal{Value: fmt.Sprintf("%v", val), Language: value["@language"].(string)}
		case isString(value["@type"]):
			object = &Literal{Value: fmt.Sprintf("%v", val), Datatype: NewNamedNode(d.expandIRI(value["@type"].(string)))}
		default:
			object = NewLiteral(fmt.Sprintf("%v", val))
		}
		return []*Quad{NewQuad(subject, predicate, object, NewDefaultGraph())}, nil
	}

	nestedQuads, nestedSubject, err := d.decodeObject(value)
	if err != nil {
		return nil, err
	}
	quads := append([]*Quad{NewQuad(subject, predicate, nestedSubject, NewDefaultGraph())}, nestedQuads...)
	return quads, nil
}

func isString(v interface{}) bool {
	_, ok := v.(string)
	return ok
}

// expandIRI resolves a compact IRI (term name or prefix:local) against the
// decoder's active context, falling back to returning iri unchanged (it may
// already be absolute, or simply unresolvable under this simplified model).
func (d *jsonLDDecoder) expandIRI(iri string) string {
	if strings.Contains(iri, "://") {
		return iri
	}
	if d.context != nil {
		if expanded, ok := d.context[iri].(string); ok {
			return d.expandIRI(expanded)
		}
	}
	if prefix, local, ok := strings.Cut(iri, ":"); ok && d.context != nil {
		if ns, ok := d.context[prefix].(string); ok {
			return ns + local
		}
	}
	return iri
}
