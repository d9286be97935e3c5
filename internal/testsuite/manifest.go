package testsuite

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// TestManifest is a parsed SPARQL/RDF test manifest.
type TestManifest struct {
	BaseURI string
	Tests   []TestCase
}

// TestCase is a single test drawn from a manifest.
type TestCase struct {
	Name        string
	Type        TestType
	Action      string      // Query or data file under test
	Data        []string    // Default-graph data files
	GraphData   []GraphData // Named-graph data files
	Result      string      // Expected result file
	Approved    bool
	Description string
}

// GraphData names a named graph loaded from a file for a test's dataset.
type GraphData struct {
	Name string
	File string
}

// TestType identifies which suite (and outcome) a test belongs to.
type TestType string

const (
	TestTypePositiveSyntax   TestType = "PositiveSyntaxTest"
	TestTypePositiveSyntax11 TestType = "PositiveSyntaxTest11"
	TestTypeNegativeSyntax   TestType = "NegativeSyntaxTest"
	TestTypeNegativeSyntax11 TestType = "NegativeSyntaxTest11"

	TestTypeQueryEvaluation TestType = "QueryEvaluationTest"

	TestTypeCSVResultFormat  TestType = "CSVResultFormatTest"
	TestTypeTSVResultFormat  TestType = "TSVResultFormatTest"
	TestTypeJSONResultFormat TestType = "JSONResultFormatTest"

	TestTypePositiveUpdateSyntax TestType = "PositiveUpdateSyntaxTest11"
	TestTypeNegativeUpdateSyntax TestType = "NegativeUpdateSyntaxTest11"
	TestTypeUpdateEvaluation     TestType = "UpdateEvaluationTest"

	TestTypeTurtleEval           TestType = "TestTurtleEval"
	TestTypeTurtlePositiveSyntax TestType = "TestTurtlePositiveSyntax"
	TestTypeTurtleNegativeSyntax TestType = "TestTurtleNegativeSyntax"
	TestTypeTurtleNegativeEval   TestType = "TestTurtleNegativeEval"

	TestTypeNTriplesPositiveSyntax TestType = "TestNTriplesPositiveSyntax"
	TestTypeNTriplesNegativeSyntax TestType = "TestNTriplesNegativeSyntax"
	TestTypeNTriplesPositiveC14N   TestType = "TestNTriplesPositiveC14N"

	TestTypeNQuadsPositiveSyntax TestType = "TestNQuadsPositiveSyntax"
	TestTypeNQuadsNegativeSyntax TestType = "TestNQuadsNegativeSyntax"
	TestTypeNQuadsPositiveC14N   TestType = "TestNQuadsPositiveC14N"

	TestTypeTrigEval           TestType = "TestTrigEval"
	TestTypeTrigPositiveSyntax TestType = "TestTrigPositiveSyntax"
	TestTypeTrigNegativeSyntax TestType = "TestTrigNegativeSyntax"
	TestTypeTrigNegativeEval   TestType = "TestTrigNegativeEval"

	TestTypeXMLEval           TestType = "TestXMLEval"
	TestTypeXMLNegativeSyntax TestType = "TestXMLNegativeSyntax"

	TestTypeJSONLDEval           TestType = "TestJSONLDEval"
	TestTypeJSONLDNegativeSyntax TestType = "TestJSONLDNegativeSyntax"
)

// typeMarkers maps a manifest line's "rdf:type"/"a ..." token to a TestType,
// checked longest-marker-first so e.g. "PositiveSyntaxTest11" never matches
// the "PositiveSyntaxTest" case first.
var typeMarkers = []struct {
	marker string
	typ    TestType
}{
	{"PositiveSyntaxTest11", TestTypePositiveSyntax11},
	{"PositiveSyntaxTest", TestTypePositiveSyntax},
	{"NegativeSyntaxTest11", TestTypeNegativeSyntax11},
	{"NegativeSyntaxTest", TestTypeNegativeSyntax},
	{"CSVResultFormatTest", TestTypeCSVResultFormat},
	{"JSONResultFormatTest", TestTypeJSONResultFormat},
	{"QueryEvaluationTest", TestTypeQueryEvaluation},
	{"TestTurtleNegativeEval", TestTypeTurtleNegativeEval},
	{"TestTurtleEval", TestTypeTurtleEval},
	{"TestTurtlePositiveSyntax", TestTypeTurtlePositiveSyntax},
	{"TestTurtleNegativeSyntax", TestTypeTurtleNegativeSyntax},
	{"TestNTriplesPositiveC14N", TestTypeNTriplesPositiveC14N},
	{"TestNTriplesPositiveSyntax", TestTypeNTriplesPositiveSyntax},
	{"TestNTriplesNegativeSyntax", TestTypeNTriplesNegativeSyntax},
	{"TestNQuadsPositiveC14N", TestTypeNQuadsPositiveC14N},
	{"TestNQuadsPositiveSyntax", TestTypeNQuadsPositiveSyntax},
	{"TestNQuadsNegativeSyntax", TestTypeNQuadsNegativeSyntax},
	{"TestTrigNegativeEval", TestTypeTrigNegativeEval},
	{"TestTrigEval", TestTypeTrigEval},
	{"TestTrigPositiveSyntax", TestTypeTrigPositiveSyntax},
	{"TestTrigNegativeSyntax", TestTypeTrigNegativeSyntax},
	{"TestXMLEval", TestTypeXMLEval},
	{"TestXMLNegativeSyntax", TestTypeXMLNegativeSyntax},
	{"TestJSONLDEval", TestTypeJSONLDEval},
	{"TestJSONLDNegativeSyntax", TestTypeJSONLDNegativeSyntax},
}

// ParseManifest parses a Turtle manifest file with a line-oriented scanner
// rather than a full Turtle parser: the W3C manifests follow a narrow,
// predictable subset of the grammar and this avoids a bootstrapping
// dependency on the RDF parsers under test.
func ParseManifest(path string) (*TestManifest, error) {
	return parseManifestWithVisited(path, make(map[string]bool))
}

// parseManifestWithVisited parses path and recursively follows mf:include,
// tracking absolute paths already visited so a cyclic or repeated include
// can't recurse forever.
func parseManifestWithVisited(path string, visited map[string]bool) (*TestManifest, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}
	if visited[absPath] {
		return &TestManifest{BaseURI: filepath.Dir(path)}, nil
	}
	visited[absPath] = true

	file, err := os.Open(path) // #nosec G304 - test suite legitimately reads test manifest files
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}
	defer file.Close()

	manifest := &TestManifest{BaseURI: filepath.Dir(path)}
	includeFiles, err := scanManifestLines(file, manifest)
	if err != nil {
		return nil, err
	}

	for _, includeFile := range includeFiles {
		includePath := filepath.Join(manifest.BaseURI, includeFile)
		included, err := parseManifestWithVisited(includePath, visited)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to load included manifest %s: %v\n", includePath, err)
			continue
		}
		resolveIncludedPaths(included)
		manifest.Tests = append(manifest.Tests, included.Tests...)
	}

	// A QueryEvaluationTest whose result file is TSV is really a
	// TSVResultFormatTest; the manifests don't say so directly.
	for i := range manifest.Tests {
		if manifest.Tests[i].Type == TestTypeQueryEvaluation &&
			strings.HasSuffix(manifest.Tests[i].Result, ".tsv") {
			manifest.Tests[i].Type = TestTypeTSVResultFormat
		}
	}

	return manifest, nil
}

// scanManifestLines reads file's test-case triples line by line, appending
// each completed TestCase to manifest.Tests, and returns the mf:include
// file list collected along the way.
func scanManifestLines(file *os.File, manifest *TestManifest) ([]string, error) {
	scanner := bufio.NewScanner(file)
	var currentTest *TestCase
	var inTest, inInclude bool
	var includeFiles []string

	flush := func() {
		if currentTest != nil && currentTest.Name != "" && currentTest.Type != "" {
			manifest.Tests = append(manifest.Tests, *currentTest)
		}
	}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.Contains(line, "mf:include") {
			inInclude = true
			continue
		}
		if inInclude {
			includeFiles = append(includeFiles, collectIncludeFiles(line)...)
			if strings.Contains(line, ")") && strings.Contains(line, ".") {
				inInclude = false
			}
			continue
		}

		if isTestStartLine(line) {
			flush()
			currentTest = &TestCase{}
			inTest = true
		}
		if !inTest || currentTest == nil {
			continue
		}

		parseTestLine(line, currentTest)
	}
	flush()

	return includeFiles, scanner.Err()
}

// collectIncludeFiles extracts .ttl paths from an mf:include(...) line's
// <...> tokens.
func collectIncludeFiles(line string) []string {
	var files []string
	for _, part := range strings.Split(line, "<")[1:] {
		if idx := strings.Index(part, ">"); idx != -1 {
			if f := part[:idx]; strings.HasSuffix(f, ".ttl") {
				files = append(files, f)
			}
		}
	}
	return files
}

// isTestStartLine reports whether line opens a new test definition: one of
// <#test>, :test, or prefix:test, carrying an rdf:type/"a" declaration.
func isTestStartLine(line string) bool {
	hasTestType := strings.Contains(line, "rdf:type") || strings.Contains(line, " a rdft:") || strings.Contains(line, " a mf:")
	startsWithTestID := strings.HasPrefix(line, "<#") ||
		strings.HasPrefix(line, ":") ||
		(len(line) > 0 && line[0] != ' ' && line[0] != '#' && strings.Contains(line, ":") &&
			strings.Index(line, ":") < strings.Index(line, " "))
	return startsWithTestID && hasTestType
}

// parseTestLine folds whatever property the line carries into test.
func parseTestLine(line string, test *TestCase) {
	if strings.Contains(line, "mf:name") {
		if v, ok := quotedValue(line); ok {
			test.Name = v
		}
	}

	if strings.Contains(line, "rdf:type") || strings.Contains(line, " a mf:") || strings.Contains(line, "a rdft:") {
		for _, m := range typeMarkers {
			if strings.Contains(line, m.marker) {
				test.Type = m.typ
				break
			}
		}
	}

	if strings.Contains(line, "mf:action") || strings.Contains(line, "qt:query") {
		if v, ok := angleBracketValue(line, ""); ok {
			test.Action = v
		}
	}

	if strings.Contains(line, "qt:data") && !strings.Contains(line, "qt:graphData") {
		if v, ok := angleBracketValue(line, "qt:data"); ok {
			test.Data = append(test.Data, v)
		}
	}

	if strings.Contains(line, "qt:graphData") {
		if v, ok := angleBracketValue(line, "qt:graphData"); ok {
			// The graph's name is resolved to an IRI later; for now the
			// file path stands in for both.
			test.GraphData = append(test.GraphData, GraphData{Name: v, File: v})
		}
	}

	if strings.Contains(line, "mf:result") {
		if v, ok := angleBracketValue(line, ""); ok {
			test.Result = v
		}
	}

	if strings.Contains(line, "mf:approval") && strings.Contains(line, "Approved") {
		test.Approved = true
	}

	if strings.Contains(line, "rdfs:comment") {
		if v, ok := quotedValue(line); ok {
			test.Description = v
		}
	}
}

// angleBracketValue returns the first <...> token in line, optionally
// searching only the portion of line following afterMarker.
func angleBracketValue(line, afterMarker string) (string, bool) {
	if afterMarker != "" {
		idx := strings.Index(line, afterMarker)
		if idx == -1 {
			return "", false
		}
		line = line[idx+len(afterMarker):]
	}
	parts := strings.Split(line, "<")
	if len(parts) < 2 {
		return "", false
	}
	parts2 := strings.Split(parts[1], ">")
	if len(parts2) < 1 {
		return "", false
	}
	return parts2[0], true
}

// quotedValue returns the first "..."-delimited token in line.
func quotedValue(line string) (string, bool) {
	parts := strings.Split(line, `"`)
	if len(parts) < 2 {
		return "", false
	}
	return parts[1], true
}

// resolveIncludedPaths rewrites every relative file reference in an included
// manifest's tests to an absolute path, since once merged into the parent
// manifest they're no longer relative to their own BaseURI.
func resolveIncludedPaths(included *TestManifest) {
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		if abs, err := filepath.Abs(filepath.Join(included.BaseURI, p)); err == nil {
			return abs
		}
		return p
	}

	for i := range included.Tests {
		test := &included.Tests[i]
		test.Action = resolve(test.Action)
		test.Result = resolve(test.Result)
		for j := range test.Data {
			test.Data[j] = resolve(test.Data[j])
		}
		for j := range test.GraphData {
			test.GraphData[j].File = resolve(test.GraphData[j].File)
		}
	}
}

// ResolveFile resolves a relative file path against the manifest's base
// directory.
func (m *TestManifest) ResolveFile(relPath string) string {
	if filepath.IsAbs(relPath) {
		return relPath
	}
	return filepath.Join(m.BaseURI, relPath)
}

// fileToIRI converts a manifest-relative file path to the file:// IRI the
// W3C test suite conventionally assigns it.
func (m *TestManifest) fileToIRI(relPath string) string {
	absPath := filepath.ToSlash(m.ResolveFile(relPath))
	if !strings.HasPrefix(absPath, "/") {
		absPath = "/" + absPath
	}
	return "file://" + absPath
}
