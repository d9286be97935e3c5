package server

import (
	"log"
	"net/http"
	"time"

	"github.com/aleksaelezovic/trigo/internal/txn"
	"github.com/aleksaelezovic/trigo/pkg/sparql/executor"
	"github.com/aleksaelezovic/trigo/pkg/sparql/optimizer"
)

// Server represents the HTTP SPARQL server
type Server struct {
	store     *txn.Store
	executor  *executor.Executor
	optimizer *optimizer.Optimizer
	addr      string
}

// NewServer creates a new SPARQL HTTP server. Writes issued through it
// (the /data, /update and mutating /store endpoints) go through store's single-writer and
// read-only rules, unlike reads, which always hit store.Engine()
// directly since pattern scans open their own snapshot per call.
func NewServer(store *txn.Store, addr string) *Server {
	exec := executor.NewExecutor(store.Engine())

	count, _ := store.Engine().Count()
	stats := &optimizer.Statistics{TotalTriples: count}
	opt := optimizer.NewOptimizer(stats)

	return &Server{
		store:     store,
		executor:  exec,
		optimizer: opt,
		addr:      addr,
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/sparql", s.handleSPARQL)
	mux.HandleFunc("/update", s.handleUpdate)
	mux.HandleFunc("/store", s.handleGraphStore)
	mux.HandleFunc("/data", s.handleDataUpload)
	mux.HandleFunc("/", s.handleRoot)

	server := &http.Server{
		Addr:         s.addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Printf("Starting SPARQL endpoint at http://%s/sparql", s.addr)
	return server.ListenAndServe()
}

// Stats returns the optimizer statistics
func (s *Server) Stats() *optimizer.Statistics {
	count, _ := s.store.Engine().Count()
	return &optimizer.Statistics{TotalTriples: count}
}
