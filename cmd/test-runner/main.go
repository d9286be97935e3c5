package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/aleksaelezovic/trigo/internal/testsuite"
)

func usage() {
	fmt.Println("Usage: test-runner <manifest-file-or-directory>")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  test-runner testdata/rdf-tests/sparql/sparql11/syntax-query/manifest.ttl")
	fmt.Println("  test-runner testdata/rdf-tests/sparql/sparql11/syntax-query")
}

// resolveManifest turns a path argument into a concrete manifest.ttl file,
// descending into a directory argument if one was given.
func resolveManifest(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("failed to access path: %w", err)
	}
	if !info.IsDir() {
		return path, nil
	}
	manifestPath := filepath.Join(path, "manifest.ttl")
	if _, err := os.Stat(manifestPath); err != nil {
		return "", fmt.Errorf("no manifest.ttl found in directory: %s", path)
	}
	return manifestPath, nil
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	manifestPath, err := resolveManifest(os.Args[1])
	if err != nil {
		log.Fatal(err)
	}

	dbPath, err := os.MkdirTemp("", "trigo-test-runner-*")
	if err != nil {
		log.Fatalf("failed to create temp db dir: %v", err)
	}
	defer os.RemoveAll(dbPath)

	runner, err := testsuite.NewTestRunner(dbPath)
	if err != nil {
		log.Fatalf("failed to create test runner: %v", err)
	}
	defer runner.Close()

	if err := runner.RunManifest(manifestPath); err != nil {
		log.Fatalf("failed to run manifest: %v", err)
	}

	if stats := runner.GetStats(); stats.Failed > 0 {
		os.Exit(1)
	}
}
