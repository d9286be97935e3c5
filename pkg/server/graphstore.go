package server

import (
	"bytes"
	"fmt"
	"io"
	"net/http"

	"github.com/aleksaelezovic/trigo/pkg/rdf"
	"github.com/aleksaelezovic/trigo/pkg/store"
)

// handleGraphStore implements the SPARQL 1.1 Graph Store HTTP Protocol
// (https://www.w3.org/TR/sparql11-http-rdf-update/) indirect graph
// identification form: the target graph is named by the `?graph=<iri>`
// query parameter, or is the default graph when `?default` is present.
func (s *Server) handleGraphStore(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, PUT, POST, DELETE, HEAD, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept")

	if r.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}

	graph, isDefault, err := graphTargetFromRequest(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	switch r.Method {
	case "GET", "HEAD":
		s.gspRead(w, r, graph, isDefault, r.Method == "HEAD")
	case "PUT":
		s.gspPut(w, r, graph, isDefault)
	case "POST":
		s.gspPost(w, r, graph, isDefault)
	case "DELETE":
		s.gspDelete(w, graph, isDefault)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed. Use GET, PUT, POST, DELETE, or HEAD")
	}
}

// graphTargetFromRequest resolves the indirectly-identified graph from
// the request's query parameters: exactly one of `?default` or
// `?graph=<iri>` must be present.
func graphTargetFromRequest(r *http.Request) (graph rdf.Term, isDefault bool, err error) {
	q := r.URL.Query()
	if _, ok := q["default"]; ok {
		if q.Get("graph") != "" {
			return nil, false, fmt.Errorf("request must set exactly one of '?default' or '?graph=<iri>'")
		}
		return rdf.NewDefaultGraph(), true, nil
	}
	if iri := q.Get("graph"); iri != "" {
		return rdf.NewNamedNode(iri), false, nil
	}
	return nil, false, fmt.Errorf("request must set exactly one of '?default' or '?graph=<iri>'")
}

// graphPattern builds an all-variable pattern scoped to graph.
func graphPattern(graph rdf.Term) *store.Pattern {
	return &store.Pattern{
		Subject:   &store.Variable{Name: "s"},
		Predicate: &store.Variable{Name: "p"},
		Object:    &store.Variable{Name: "o"},
		Graph:     graph,
	}
}

// graphQuadCount scans graph and returns how many quads it currently
// holds, used both to answer GET/HEAD and to decide 201-vs-204 on PUT.
func (s *Server) graphQuadCount(graph rdf.Term) (int, []*rdf.Quad, error) {
	iter, err := s.store.Engine().Query(graphPattern(graph))
	if err != nil {
		return 0, nil, err
	}
	defer iter.Close()

	var quads []*rdf.Quad
	for iter.Next() {
		quad, err := iter.Quad()
		if err != nil {
			return 0, nil, err
		}
		quads = append(quads, quad)
	}
	return len(quads), quads, iter.Close()
}

func (s *Server) gspRead(w http.ResponseWriter, r *http.Request, graph rdf.Term, isDefault, headOnly bool) {
	count, quads, err := s.graphQuadCount(graph)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("query error: %v", err))
		return
	}
	if count == 0 && !isDefault {
		s.writeError(w, http.StatusNotFound, "graph not found")
		return
	}

	triples := make([]*rdf.Triple, len(quads))
	for i, q := range quads {
		triples[i] = &rdf.Triple{Subject: q.Subject, Predicate: q.Predicate, Object: q.Object}
	}

	w.Header().Set("Content-Type", "application/n-triples; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if !headOnly {
		_, _ = w.Write([]byte(rdf.SerializeTriplesCanonical(triples))) // #nosec G104
	}
}

// gspPut replaces a graph's entire contents with the parsed request body
// (§5.3/5.4): 201 Created if the graph had no triples beforehand (named
// graphs only; the default graph always exists), 204 No Content otherwise.
func (s *Server) gspPut(w http.ResponseWriter, r *http.Request, graph rdf.Term, isDefault bool) {
	quads, err := s.parseGraphBody(r, graph)
	if err != nil {
		s.writeError(w, http.StatusUnsupportedMediaType, err.Error())
		return
	}

	existingCount, existing, err := s.graphQuadCount(graph)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("query error: %v", err))
		return
	}

	wtxn, err := s.store.Begin(true)
	if err != nil {
		s.writeError(w, http.StatusForbidden, err.Error())
		return
	}
	for _, q := range existing {
		if err := wtxn.Delete(q); err != nil {
			_ = wtxn.Rollback()
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	if !isDefault {
		_ = wtxn.CreateGraph(graph)
	}
	for _, q := range quads {
		if err := wtxn.Insert(q); err != nil {
			_ = wtxn.Rollback()
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	if err := wtxn.Commit(); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if !isDefault && existingCount == 0 {
		w.WriteHeader(http.StatusCreated)
	} else {
		w.WriteHeader(http.StatusNoContent)
	}
}

// gspPost merges the parsed request body into the graph (§5.5/5.6),
// creating it first if it's a named graph with no existing triples.
func (s *Server) gspPost(w http.ResponseWriter, r *http.Request, graph rdf.Term, isDefault bool) {
	quads, err := s.parseGraphBody(r, graph)
	if err != nil {
		s.writeError(w, http.StatusUnsupportedMediaType, err.Error())
		return
	}

	existingCount, _, err := s.graphQuadCount(graph)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("query error: %v", err))
		return
	}

	wtxn, err := s.store.Begin(true)
	if err != nil {
		s.writeError(w, http.StatusForbidden, err.Error())
		return
	}
	if !isDefault && existingCount == 0 {
		_ = wtxn.CreateGraph(graph)
	}
	for _, q := range quads {
		if err := wtxn.Insert(q); err != nil {
			_ = wtxn.Rollback()
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	if err := wtxn.Commit(); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if !isDefault && existingCount == 0 {
		w.WriteHeader(http.StatusCreated)
	} else {
		w.WriteHeader(http.StatusNoContent)
	}
}

// gspDelete empties a graph (§5.7): 204 if it existed, 404 for a named
// graph that held no triples (the default graph can never 404 — it
// always exists, emptying it is a no-op success).
func (s *Server) gspDelete(w http.ResponseWriter, graph rdf.Term, isDefault bool) {
	count, quads, err := s.graphQuadCount(graph)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("query error: %v", err))
		return
	}
	if count == 0 && !isDefault {
		s.writeError(w, http.StatusNotFound, "graph not found")
		return
	}

	wtxn, err := s.store.Begin(true)
	if err != nil {
		s.writeError(w, http.StatusForbidden, err.Error())
		return
	}
	for _, q := range quads {
		if err := wtxn.Delete(q); err != nil {
			_ = wtxn.Rollback()
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	if !isDefault {
		_ = wtxn.DropGraph(graph)
	}
	if err := wtxn.Commit(); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// parseGraphBody parses the request body per its Content-Type and stamps
// every resulting quad's graph to the GSP target (GSP addresses one
// graph at a time; a TriG/N-Quads body's own graph terms are ignored in
// favor of the target named by the request URL, per §6.4).
func (s *Server) parseGraphBody(r *http.Request, graph rdf.Term) ([]*rdf.Quad, error) {
	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		return nil, fmt.Errorf("missing Content-Type header")
	}
	rdfParser, err := rdf.NewParser(contentType)
	if err != nil {
		return nil, fmt.Errorf("unsupported content type: %s", contentType)
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}
	quads, err := rdfParser.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	for _, q := range quads {
		q.Graph = graph
	}
	return quads, nil
}
