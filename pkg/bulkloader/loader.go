// Package bulkloader implements the external-sort ingest pipeline (C4):
// parse quads into memory-bounded chunks, sort each chunk into the six
// index key orders, spill to run files, merge-sort the runs per index,
// and install the merged, sorted batches directly into the store,
// bypassing the per-quad transaction-staging path internal/txn's Txn
// uses for ordinary writes (§4.4).
package bulkloader

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/aleksaelezovic/trigo/internal/encoding"
	"github.com/aleksaelezovic/trigo/internal/errs"
	"github.com/aleksaelezovic/trigo/internal/txn"
	"github.com/aleksaelezovic/trigo/pkg/rdf"
	"github.com/aleksaelezovic/trigo/pkg/store"
)

// recordSize is the width of one index key: four 17-byte encoded terms.
const recordSize = 4 * len(store.EncodedTerm{})

// defaultMemoryBudget is the default Config.MemoryBudgetBytes, 2 GiB.
// Load turns the budget into a number of quads buffered per chunk before
// a sort-and-spill by assuming roughly 200 bytes of in-memory overhead
// per quad (its four encoded terms, six key permutations, and Go's own
// slice/map overhead). Callers ingesting into memory-constrained environments
// (e.g. tests) should set Config.ChunkQuads directly instead of relying
// on this estimate.
const defaultMemoryBudget = 2 << 30

// Action is an on-parse-error callback's verdict.
type Action int

const (
	ActionAbort Action = iota
	ActionContinue
)

// QuadSource is a pull source of quads to ingest, e.g. a format parser
// collaborator (§1 "explicitly out of scope") adapted to this shape.
// Next returns io.EOF when exhausted.
type QuadSource interface {
	Next() (*rdf.Quad, error)
}

// Config configures one Load call.
type Config struct {
	// Threads is the merge/sort worker count (§4.4 "configurable thread
	// count, >= 2"). Only the per-chunk sort is actually parallelized
	// across Threads goroutines today; the final merge is single
	// threaded (its cost is dominated by sequential disk I/O, not CPU).
	Threads int
	// MemoryBudgetBytes bounds how large an in-memory chunk grows before
	// it is sorted and spilled to run files. Defaults to ~2GB.
	MemoryBudgetBytes int64
	// ChunkQuads, if set, overrides MemoryBudgetBytes with a fixed quad
	// count per chunk — primarily for tests that want small, deterministic
	// chunk boundaries without allocating gigabytes of quads to trigger one.
	ChunkQuads int
	// Lenient makes Load skip a quad whose read or encoding fails instead
	// of aborting, when OnParseError is nil (a non-nil OnParseError
	// decides instead). The loader does no validation of its own, so
	// Lenient turns no validation off; what a QuadSource rejects is up to
	// the source.
	Lenient bool
	// OnParseError is consulted for each parse failure when Lenient is
	// set (or always, if non-nil) and decides whether to skip it.
	OnParseError func(error) Action
	// OnProgress is called periodically with the running inserted count.
	OnProgress func(count int64)
	// TempDir overrides the run-file directory (defaults to os.TempDir()).
	TempDir string
}

// Stats summarizes one Load call.
type Stats struct {
	Inserted int64
	Errors   int64
}

// Loader drives the pipeline described in §4.4 against a txn.Store.
type Loader struct {
	store   *txn.Store
	encoder *encoding.TermEncoder
	cfg     Config
}

// New creates a Loader bound to store, applying Config defaults.
func New(s *txn.Store, cfg Config) *Loader {
	if cfg.Threads < 2 {
		cfg.Threads = 2
	}
	if cfg.MemoryBudgetBytes <= 0 {
		cfg.MemoryBudgetBytes = defaultMemoryBudget
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	return &Loader{store: s, encoder: encoding.NewTermEncoder(), cfg: cfg}
}

// indexOrder describes how to project a parsed quad's four encoded
// terms into one index's key order.
type indexOrder struct {
	table store.Table
	// permute returns the key's component order given (s,p,o,g).
	permute func(s, p, o, g store.EncodedTerm) []store.EncodedTerm
}

var indexOrders = []indexOrder{
	{store.TableSPOG, func(s, p, o, g store.EncodedTerm) []store.EncodedTerm { return []store.EncodedTerm{s, p, o, g} }},
	{store.TablePOSG, func(s, p, o, g store.EncodedTerm) []store.EncodedTerm { return []store.EncodedTerm{p, o, s, g} }},
	{store.TableOSPG, func(s, p, o, g store.EncodedTerm) []store.EncodedTerm { return []store.EncodedTerm{o, s, p, g} }},
	{store.TableGSPO, func(s, p, o, g store.EncodedTerm) []store.EncodedTerm { return []store.EncodedTerm{g, s, p, o} }},
	{store.TableGPOS, func(s, p, o, g store.EncodedTerm) []store.EncodedTerm { return []store.EncodedTerm{g, p, o, s} }},
	{store.TableGOSP, func(s, p, o, g store.EncodedTerm) []store.EncodedTerm { return []store.EncodedTerm{g, o, s, p} }},
}

// internedString pairs a dictionary hash key with its lexical value,
// collected during parsing and written in the final install step (§4.4
// step 4: "update the graph registry and dictionary" happens last).
type internedString struct {
	encoded store.EncodedTerm
	value   string
}

// Load runs the full pipeline: parse+chunk+sort+spill, then merge+install.
func (l *Loader) Load(source QuadSource) (Stats, error) {
	var stats Stats
	runFiles := make(map[store.Table][]string)
	var dict []internedString
	graphs := make(map[store.EncodedTerm]struct{})

	chunkLimit := l.cfg.ChunkQuads
	if chunkLimit <= 0 {
		// ~200 bytes of overhead per quad across four encoded terms,
		// six permutations, and bookkeeping.
		chunkLimit = int(l.cfg.MemoryBudgetBytes / 200)
		if chunkLimit <= 0 {
			chunkLimit = 1
		}
	}

	chunk := make([][4]store.EncodedTerm, 0, chunkLimit)

	flush := func() error {
		if len(chunk) == 0 {
			return nil
		}
		files, err := l.spillChunk(chunk)
		if err != nil {
			return err
		}
		for table, path := range files {
			runFiles[table] = append(runFiles[table], path)
		}
		chunk = chunk[:0]
		return nil
	}

	for {
		quad, err := source.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			stats.Errors++
			if l.cfg.OnParseError != nil {
				if l.cfg.OnParseError(err) == ActionAbort {
					return stats, err
				}
				continue
			}
			if l.cfg.Lenient {
				continue
			}
			return stats, err
		}

		enc, strs, err := l.encodeQuad(quad)
		if err != nil {
			stats.Errors++
			if l.cfg.OnParseError != nil {
				if l.cfg.OnParseError(err) == ActionAbort {
					return stats, err
				}
				continue
			}
			if l.cfg.Lenient {
				continue
			}
			return stats, err
		}

		chunk = append(chunk, enc)
		dict = append(dict, strs...)
		if quad.Graph.Type() != rdf.TermTypeDefaultGraph {
			graphs[enc[3]] = struct{}{}
		}

		stats.Inserted++
		if l.cfg.OnProgress != nil && stats.Inserted%10000 == 0 {
			l.cfg.OnProgress(stats.Inserted)
		}
		if len(chunk) >= chunkLimit {
			if err := flush(); err != nil {
				return stats, err
			}
		}
	}
	if err := flush(); err != nil {
		return stats, err
	}

	if err := l.install(runFiles, dict, graphs); err != nil {
		return stats, err
	}
	if l.cfg.OnProgress != nil {
		l.cfg.OnProgress(stats.Inserted)
	}
	return stats, nil
}

func (l *Loader) encodeQuad(quad *rdf.Quad) ([4]store.EncodedTerm, []internedString, error) {
	var enc [4]store.EncodedTerm
	var strs []internedString

	terms := [4]rdf.Term{quad.Subject, quad.Predicate, quad.Object, quad.Graph}
	for i, t := range terms {
		e, s, err := l.encoder.EncodeTerm(t)
		if err != nil {
			return enc, nil, errs.Parsing("failed to encode term: %v", err)
		}
		enc[i] = e
		if s != nil {
			strs = append(strs, internedString{encoded: e, value: *s})
		}
	}
	return enc, strs, nil
}

// spillChunk sorts chunk into each of the six index key orders and
// writes one fixed-record-size run file per index, returning the file
// paths it wrote.
func (l *Loader) spillChunk(chunk [][4]store.EncodedTerm) (map[store.Table]string, error) {
	out := make(map[store.Table]string, len(indexOrders))

	type result struct {
		table store.Table
		path  string
		err   error
	}
	results := make(chan result, len(indexOrders))
	sem := make(chan struct{}, l.cfg.Threads)

	for _, order := range indexOrders {
		order := order
		sem <- struct{}{}
		go func() {
			defer func() { <-sem }()
			path, err := l.sortAndSpill(chunk, order)
			results <- result{table: order.table, path: path, err: err}
		}()
	}

	for range indexOrders {
		r := <-results
		if r.err != nil {
			return nil, r.err
		}
		out[r.table] = r.path
	}
	return out, nil
}

func (l *Loader) sortAndSpill(chunk [][4]store.EncodedTerm, order indexOrder) (string, error) {
	keys := make([][]byte, len(chunk))
	for i, enc := range chunk {
		parts := order.permute(enc[0], enc[1], enc[2], enc[3])
		key := make([]byte, 0, recordSize)
		for _, p := range parts {
			key = append(key, p[:]...)
		}
		keys[i] = key
	}
	sort.Slice(keys, func(i, j int) bool { return string(keys[i]) < string(keys[j]) })

	f, err := os.CreateTemp(l.cfg.TempDir, fmt.Sprintf("trigo-load-%d-*.run", order.table))
	if err != nil {
		return "", err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, k := range keys {
		if _, err := w.Write(k); err != nil {
			return "", err
		}
	}
	if err := w.Flush(); err != nil {
		return "", err
	}
	return f.Name(), nil
}
