package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/aleksaelezovic/trigo/internal/encoding"
	"github.com/aleksaelezovic/trigo/internal/storage"
	"github.com/aleksaelezovic/trigo/internal/txn"
	"github.com/aleksaelezovic/trigo/pkg/bulkloader"
	"github.com/aleksaelezovic/trigo/pkg/rdf"
	"github.com/aleksaelezovic/trigo/pkg/server"
	"github.com/aleksaelezovic/trigo/pkg/sparql/executor"
	"github.com/aleksaelezovic/trigo/pkg/sparql/optimizer"
	"github.com/aleksaelezovic/trigo/pkg/sparql/parser"
	"github.com/aleksaelezovic/trigo/pkg/store"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "demo":
		runDemo()
	case "query":
		if len(args) < 1 {
			fmt.Println("Usage: trigo query <sparql-query> [db-path]")
			os.Exit(1)
		}
		runQuery(args[0], dbPathArg(args, 1))
	case "update":
		if len(args) < 1 {
			fmt.Println("Usage: trigo update <sparql-update> [db-path]")
			os.Exit(1)
		}
		runUpdate(args[0], dbPathArg(args, 1))
	case "serve":
		runServer(addrArg(args, 0), dbPathArg(args, 1), false)
	case "serve-read-only":
		runServer(addrArg(args, 0), dbPathArg(args, 1), true)
	case "load":
		if len(args) < 1 {
			fmt.Println("Usage: trigo load <nquads-file> [db-path]")
			os.Exit(1)
		}
		runLoad(args[0], dbPathArg(args, 1))
	case "dump":
		runDump(dbPathArg(args, 0))
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("Usage: trigo <command> [args]")
	fmt.Println("Commands:")
	fmt.Println("  demo                         - Run a demo with sample data")
	fmt.Println("  query <q> [db]               - Execute a SPARQL query")
	fmt.Println("  update <u> [db]              - Execute a SPARQL 1.1 Update request")
	fmt.Println("  serve [addr] [db]            - Start HTTP SPARQL endpoint (default: localhost:8080)")
	fmt.Println("  serve-read-only [addr] [db]  - Same as serve, but rejects all writes")
	fmt.Println("  load <file.nq> [db]          - Bulk load an N-Quads file")
	fmt.Println("  dump [db]                    - Write every quad to stdout as N-Quads")
}

func dbPathArg(args []string, i int) string {
	if i < len(args) && args[i] != "" {
		return args[i]
	}
	return "./trigo_data"
}

func addrArg(args []string, i int) string {
	if i < len(args) && args[i] != "" {
		return args[i]
	}
	return "localhost:8080"
}

func openStore(dbPath string, opts ...txn.Option) (*txn.Store, *storage.BadgerStorage, error) {
	badgerStorage, err := storage.NewBadgerStorage(dbPath)
	if err != nil {
		return nil, nil, err
	}
	s := txn.New(badgerStorage, encoding.NewTermEncoder(), encoding.NewTermDecoder(), opts...)
	return s, badgerStorage, nil
}

func runDemo() {
	fmt.Println("=== Trigo RDF Triplestore Demo ===")
	fmt.Println()

	dbPath := "./trigo_data"
	fmt.Printf("Opening database at: %s\n", dbPath)

	s, badgerStorage, err := openStore(dbPath)
	if err != nil {
		log.Fatalf("Failed to create storage: %v", err)
	}
	defer badgerStorage.Close()
	fmt.Println("Triplestore initialized")
	fmt.Println()

	alice := rdf.NewNamedNode("http://example.org/alice")
	bob := rdf.NewNamedNode("http://example.org/bob")
	carol := rdf.NewNamedNode("http://example.org/carol")

	knows := rdf.NewNamedNode("http://xmlns.com/foaf/0.1/knows")
	name := rdf.NewNamedNode("http://xmlns.com/foaf/0.1/name")
	age := rdf.NewNamedNode("http://xmlns.com/foaf/0.1/age")

	quads := []*rdf.Quad{
		rdf.NewQuad(alice, name, rdf.NewLiteral("Alice"), rdf.NewDefaultGraph()),
		rdf.NewQuad(alice, age, rdf.NewIntegerLiteral(30), rdf.NewDefaultGraph()),
		rdf.NewQuad(alice, knows, bob, rdf.NewDefaultGraph()),

		rdf.NewQuad(bob, name, rdf.NewLiteral("Bob"), rdf.NewDefaultGraph()),
		rdf.NewQuad(bob, age, rdf.NewIntegerLiteral(25), rdf.NewDefaultGraph()),
		rdf.NewQuad(bob, knows, carol, rdf.NewDefaultGraph()),

		rdf.NewQuad(carol, name, rdf.NewLiteral("Carol"), rdf.NewDefaultGraph()),
		rdf.NewQuad(carol, age, rdf.NewIntegerLiteral(28), rdf.NewDefaultGraph()),
	}

	fmt.Println("Inserting sample data...")
	fmt.Println("\nInserting data into named graphs...")
	graph1 := rdf.NewNamedNode("http://example.org/graph1")
	graph2 := rdf.NewNamedNode("http://example.org/graph2")
	quads = append(quads,
		rdf.NewQuad(alice, name, rdf.NewLiteral("Alice in Graph1"), graph1),
		rdf.NewQuad(bob, name, rdf.NewLiteral("Bob in Graph1"), graph1),
		rdf.NewQuad(alice, name, rdf.NewLiteral("Alice in Graph2"), graph2),
		rdf.NewQuad(carol, name, rdf.NewLiteral("Carol in Graph2"), graph2),
	)

	wtxn, err := s.Begin(true)
	if err != nil {
		log.Fatalf("Failed to start transaction: %v", err)
	}
	for _, quad := range quads {
		if err := wtxn.Insert(quad); err != nil {
			wtxn.Rollback()
			log.Fatalf("Failed to insert quad: %v", err)
		}
		fmt.Printf("  ✓ %s\n", formatNQuad(quad))
	}
	if err := wtxn.Commit(); err != nil {
		log.Fatalf("Failed to commit: %v", err)
	}

	count, err := countQuads(s)
	if err != nil {
		log.Fatalf("Failed to count triples: %v", err)
	}
	fmt.Printf("\nTotal triples stored: %d\n", count)

	fmt.Println()
	fmt.Println("=== Querying Data ===")
	fmt.Println()

	sparqlQuery := `
		SELECT ?person ?name ?age
		WHERE {
			?person <http://xmlns.com/foaf/0.1/name> ?name .
			?person <http://xmlns.com/foaf/0.1/age> ?age .
		}
	`
	fmt.Printf("Query:\n%s\n", sparqlQuery)

	result, err := execQuery(s, sparqlQuery, count)
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	fmt.Println("✓ Query parsed, optimized, and executed successfully")
	fmt.Println()

	fmt.Println("Results:")
	if selectResult, ok := result.(*executor.SelectResult); ok {
		fmt.Print("| ")
		for _, v := range selectResult.Variables {
			fmt.Printf("%-20s | ", v.Name)
		}
		fmt.Println()
		fmt.Println("|" + "----------------------|" + "----------------------|" + "----------------------|")

		for _, binding := range selectResult.Bindings {
			fmt.Print("| ")
			for _, v := range selectResult.Variables {
				if term, exists := binding.Vars[v.Name]; exists {
					fmt.Printf("%-20s | ", formatTerm(term))
				} else {
					fmt.Printf("%-20s | ", "")
				}
			}
			fmt.Println()
		}
		fmt.Printf("\nFound %d results\n", len(selectResult.Bindings))
	}

	fmt.Println("\n=== Demo Complete ===")
}

func runQuery(sparqlQuery, dbPath string) {
	s, badgerStorage, err := openStore(dbPath)
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}
	defer badgerStorage.Close()

	count, _ := countQuads(s)
	result, err := execQuery(s, sparqlQuery, count)
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}

	switch r := result.(type) {
	case *executor.SelectResult:
		fmt.Println("Results:")
		for _, binding := range r.Bindings {
			for varName, term := range binding.Vars {
				fmt.Printf("  %s = %s\n", varName, formatTerm(term))
			}
			fmt.Println()
		}
	case *executor.AskResult:
		fmt.Printf("Result: %t\n", r.Result)
	case *executor.ConstructResult:
		fmt.Printf("Constructed %d triples:\n", len(r.Triples))
		for _, triple := range r.Triples {
			fmt.Printf("<%s> <%s> ", triple.Subject.Value, triple.Predicate.Value)
			switch triple.Object.Type {
			case "iri":
				fmt.Printf("<%s>", triple.Object.Value)
			case "literal":
				fmt.Printf("\"%s\"", triple.Object.Value)
			default:
				fmt.Printf("_:%s", triple.Object.Value)
			}
			fmt.Println(" .")
		}
	}
}

// execQuery parses, optimizes, and executes one query against a snapshot
// read transaction, closing it once results are collected.
func execQuery(s *txn.Store, sparqlQuery string, totalQuads int64) (executor.QueryResult, error) {
	p := parser.NewParser(sparqlQuery)
	query, err := p.Parse()
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}

	stats := &optimizer.Statistics{TotalTriples: totalQuads}
	opt := optimizer.NewOptimizer(stats)
	optimizedQuery, err := opt.Optimize(query)
	if err != nil {
		return nil, fmt.Errorf("optimize error: %w", err)
	}

	exec := executor.NewExecutor(s.Engine())
	return exec.Execute(optimizedQuery)
}

// runUpdate parses and runs a SPARQL 1.1 Update request against the
// store at dbPath, printing how many quads were inserted/deleted.
func runUpdate(sparqlUpdate, dbPath string) {
	s, badgerStorage, err := openStore(dbPath)
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}
	defer badgerStorage.Close()

	count, _ := countQuads(s)
	result, err := execUpdate(s, sparqlUpdate, count)
	if err != nil {
		log.Fatalf("Update failed: %v", err)
	}
	fmt.Printf("Inserted %d, deleted %d quads\n", result.Inserted, result.Deleted)
}

// execUpdate parses and executes one SPARQL Update request. Unlike
// execQuery, this runs the engine's single-writer store directly rather
// than a read-only snapshot, since updates mutate the store.
func execUpdate(s *txn.Store, sparqlUpdate string, totalQuads int64) (*executor.UpdateResult, error) {
	p := parser.NewParser(sparqlUpdate)
	update, err := p.ParseUpdate()
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}

	stats := &optimizer.Statistics{TotalTriples: totalQuads}
	exec := executor.NewExecutor(s.Engine())
	return exec.ExecuteUpdate(update, s, stats)
}

func countQuads(s *txn.Store) (int64, error) {
	return s.Engine().Count()
}

func runServer(addr, dbPath string, readOnly bool) {
	fmt.Printf("Opening database at: %s\n", dbPath)

	var opts []txn.Option
	if readOnly {
		opts = append(opts, txn.ReadOnly())
	}
	s, badgerStorage, err := openStore(dbPath, opts...)
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}
	defer badgerStorage.Close()

	count, _ := countQuads(s)
	fmt.Printf("Database loaded with %d quads\n", count)

	srv := server.NewServer(s, addr)
	fmt.Printf("\nTrigo SPARQL endpoint starting...\n")
	fmt.Printf("   Endpoint: http://%s/sparql\n", addr)
	fmt.Printf("   Web UI:   http://%s/\n\n", addr)
	if readOnly {
		fmt.Println("   Mode:     read-only (writes rejected)")
	}
	fmt.Printf("Press Ctrl+C to stop\n\n")

	if err := srv.Start(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

// quadFileSource adapts a parsed N-Quads document to bulkloader.QuadSource.
type quadFileSource struct {
	quads []*rdf.Quad
	idx   int
}

func (q *quadFileSource) Next() (*rdf.Quad, error) {
	if q.idx >= len(q.quads) {
		return nil, io.EOF
	}
	quad := q.quads[q.idx]
	q.idx++
	return quad, nil
}

func runLoad(path, dbPath string) {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("Failed to read %s: %v", path, err)
	}

	p := rdf.NewNQuadsParser(string(data))
	quads, err := p.Parse()
	if err != nil {
		log.Fatalf("Failed to parse N-Quads: %v", err)
	}
	fmt.Printf("Parsed %d quads from %s\n", len(quads), path)

	s, badgerStorage, err := openStore(dbPath)
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}
	defer badgerStorage.Close()

	loader := bulkloader.New(s, bulkloader.Config{
		OnProgress: func(n int64) { fmt.Printf("  loaded %d quads\n", n) },
	})
	stats, err := loader.Load(&quadFileSource{quads: quads})
	if err != nil {
		log.Fatalf("Bulk load failed: %v", err)
	}
	fmt.Printf("Loaded %d quads (%d errors)\n", stats.Inserted, stats.Errors)
}

func runDump(dbPath string) {
	s, badgerStorage, err := openStore(dbPath)
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}
	defer badgerStorage.Close()

	rtxn, err := s.Begin(false)
	if err != nil {
		log.Fatalf("Failed to start read transaction: %v", err)
	}
	defer rtxn.Rollback()

	it, err := rtxn.Query(&store.Pattern{
		Subject:   store.NewVariable("s"),
		Predicate: store.NewVariable("p"),
		Object:    store.NewVariable("o"),
		Graph:     store.NewVariable("g"),
	})
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	defer it.Close()

	for it.Next() {
		quad, err := it.Quad()
		if err != nil {
			log.Fatalf("Failed to decode quad: %v", err)
		}
		fmt.Println(formatNQuad(quad))
	}
}

func formatNQuad(quad *rdf.Quad) string {
	line := formatNTerm(quad.Subject) + " " + formatNTerm(quad.Predicate) + " " + formatNTerm(quad.Object)
	if quad.Graph.Type() != rdf.TermTypeDefaultGraph {
		line += " " + formatNTerm(quad.Graph)
	}
	return line + " ."
}

func formatNTerm(t rdf.Term) string {
	switch v := t.(type) {
	case *rdf.NamedNode:
		return "<" + v.IRI + ">"
	case *rdf.BlankNode:
		return "_:" + v.ID
	case *rdf.Literal:
		s := "\"" + v.Value + "\""
		if v.Language != "" {
			return s + "@" + v.Language
		}
		if v.Datatype != nil {
			return s + "^^<" + v.Datatype.IRI + ">"
		}
		return s
	default:
		return t.String()
	}
}

func formatTerm(term rdf.Term) string {
	switch t := term.(type) {
	case *rdf.NamedNode:
		iri := t.IRI
		for i := len(iri) - 1; i >= 0; i-- {
			if iri[i] == '/' || iri[i] == '#' {
				return iri[i+1:]
			}
		}
		return iri
	case *rdf.Literal:
		return t.Value
	default:
		return term.String()
	}
}
