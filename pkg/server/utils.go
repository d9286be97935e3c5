package server

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/aleksaelezovic/trigo/pkg/server/results"
	"github.com/aleksaelezovic/trigo/pkg/sparql/executor"
)

// writeError logs message and writes it to w as a SPARQL-endpoint-style
// JSON error body.
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	log.Printf("Error: %s", message)

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)

	body, _ := json.Marshal(map[string]any{
		"error": map[string]any{"code": statusCode, "message": message},
	})
	_, _ = w.Write(body) // #nosec G104 - error writing response is logged elsewhere if needed
}

// acceptedFormats maps a response MIME type, in the order Accept-header
// substring matches are tried, to the result-format keyword writeResult
// understands.
var acceptedFormats = []struct {
	substr, format string
}{
	{"application/sparql-results+xml", "xml"},
	{"application/sparql-results+json", "json"},
	{"text/csv", "csv"},
	{"text/tab-separated-values", "tsv"},
	{"application/json", "json"},
	{"text/xml", "xml"},
	{"application/xml", "xml"},
}

// negotiateFormat picks a result format from an Accept header, defaulting
// to JSON when nothing recognized is present.
func (s *Server) negotiateFormat(acceptHeader string) string {
	accept := strings.ToLower(acceptHeader)
	for _, f := range acceptedFormats {
		if strings.Contains(accept, f.substr) {
			return f.format
		}
	}
	return "json"
}

// resultFormatter bundles the per-format encoders for SELECT and ASK
// results, keyed by writeResult's format keyword.
type resultFormatter struct {
	contentType string
	selectFn    func(*executor.SelectResult) ([]byte, error)
	askFn       func(*executor.AskResult) ([]byte, error)
}

var resultFormatters = map[string]resultFormatter{
	"xml": {
		contentType: "application/sparql-results+xml; charset=utf-8",
		selectFn:    results.FormatSelectResultsXML,
		askFn:       results.FormatAskResultXML,
	},
	"csv": {
		contentType: "text/csv; charset=utf-8",
		selectFn:    results.FormatSelectResultsCSV,
		askFn:       results.FormatAskResultCSV,
	},
	"tsv": {
		contentType: "text/tab-separated-values; charset=utf-8",
		selectFn:    results.FormatSelectResultsTSV,
		askFn:       results.FormatAskResultTSV,
	},
	"json": {
		contentType: "application/sparql-results+json; charset=utf-8",
		selectFn:    results.FormatSelectResultsJSON,
		askFn:       results.FormatAskResultJSON,
	},
}

// writeResult encodes a query result in format and writes it to w. CONSTRUCT
// results are RDF, not a SPARQL result set, so they bypass resultFormatters
// entirely and always go out as N-Triples.
func (s *Server) writeResult(w http.ResponseWriter, result executor.QueryResult, format string) {
	if constructResult, ok := result.(*executor.ConstructResult); ok {
		data, err := results.FormatConstructResultNTriples(constructResult)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("Formatting error: %v", err))
			return
		}
		w.Header().Set("Content-Type", "application/n-triples; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data) // #nosec G104 - error writing response is logged elsewhere if needed
		return
	}

	f, ok := resultFormatters[format]
	if !ok {
		f = resultFormatters["json"]
	}

	var data []byte
	var err error
	switch r := result.(type) {
	case *executor.SelectResult:
		data, err = f.selectFn(r)
	case *executor.AskResult:
		data, err = f.askFn(r)
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("Formatting error: %v", err))
		return
	}

	w.Header().Set("Content-Type", f.contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data) // #nosec G104 - error writing response is logged elsewhere if needed
}
