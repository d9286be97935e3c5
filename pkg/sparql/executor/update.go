package executor

import (
	"fmt"
	"os"

	"github.com/aleksaelezovic/trigo/internal/txn"
	"github.com/aleksaelezovic/trigo/pkg/rdf"
	"github.com/aleksaelezovic/trigo/pkg/sparql/optimizer"
	"github.com/aleksaelezovic/trigo/pkg/sparql/parser"
	"github.com/aleksaelezovic/trigo/pkg/store"
)

// UpdateResult reports how many quads an update request touched. SPARQL
// Update carries no result set of its own, only success/failure (and,
// over HTTP, a status code), so this is purely informational.
type UpdateResult struct {
	Inserted int
	Deleted  int
}

// ExecuteUpdate runs every operation of an Update request as one writable
// internal/txn.Txn: the whole request commits or rolls back together,
// going through the store's single-writer lock and read-only rejection
// the same way the bulk loader and /data upload path do. WHERE clauses
// (Modify's SELECT-shaped half) are still planned and solved through the
// read-only Executor bound to the engine, since a Txn's own snapshot and
// the Executor's snapshot agree: the writer lock held across this call
// means nothing else can be writing concurrently.
func (e *Executor) ExecuteUpdate(update *parser.Update, db *txn.Store, stats *optimizer.Statistics) (*UpdateResult, error) {
	wtxn, err := db.Begin(true)
	if err != nil {
		return nil, fmt.Errorf("failed to begin write transaction: %w", err)
	}

	result := &UpdateResult{}
	for _, op := range update.Operations {
		var opErr error
		switch o := op.(type) {
		case *parser.InsertDataOperation:
			opErr = e.execData(wtxn, o.Data, wtxn.Insert)
			if opErr == nil {
				result.Inserted += countTriples(o.Data)
			}

		case *parser.DeleteDataOperation:
			opErr = e.execData(wtxn, o.Data, wtxn.Delete)
			if opErr == nil {
				result.Deleted += countTriples(o.Data)
			}

		case *parser.ModifyOperation:
			var ins, del int
			ins, del, opErr = e.execModify(wtxn, o, stats)
			result.Inserted += ins
			result.Deleted += del

		case *parser.LoadOperation:
			opErr = e.execLoad(wtxn, o)
			if opErr != nil && o.Silent {
				opErr = nil
			}

		case *parser.ClearOperation:
			var n int
			n, opErr = e.clearGraphs(wtxn, o.Target, false)
			result.Deleted += n
			if opErr != nil && o.Silent {
				opErr = nil
			}

		case *parser.CreateOperation:
			opErr = wtxn.CreateGraph(o.Graph)
			if opErr != nil && o.Silent {
				opErr = nil
			}

		case *parser.DropOperation:
			var n int
			n, opErr = e.clearGraphs(wtxn, o.Target, true)
			result.Deleted += n
			if opErr != nil && o.Silent {
				opErr = nil
			}

		default:
			opErr = fmt.Errorf("unsupported update operation: %T", op)
		}

		if opErr != nil {
			_ = wtxn.Rollback()
			return result, opErr
		}
	}

	if err := wtxn.Commit(); err != nil {
		return result, fmt.Errorf("failed to commit update: %w", err)
	}
	return result, nil
}

func countTriples(blocks []parser.QuadData) int {
	n := 0
	for _, b := range blocks {
		n += len(b.Triples)
	}
	return n
}

// execData applies apply (Txn.Insert or Txn.Delete) to every ground quad
// in an INSERT DATA/DELETE DATA block list.
func (e *Executor) execData(wtxn *txn.Txn, blocks []parser.QuadData, apply func(*rdf.Quad) error) error {
	for _, block := range blocks {
		graph := rdf.Term(rdf.NewDefaultGraph())
		if block.Graph != nil {
			graph = block.Graph
		}
		for _, t := range block.Triples {
			if t.Subject.IsVariable() || t.Predicate.IsVariable() || t.Object.IsVariable() {
				return fmt.Errorf("DATA block must not contain variables")
			}
			quad := rdf.NewQuad(t.Subject.Term, t.Predicate.Term, t.Object.Term, graph)
			if err := apply(quad); err != nil {
				return err
			}
		}
	}
	return nil
}

// execModify runs a DELETE/INSERT ... WHERE operation: plan and execute
// the WHERE pattern as an ordinary SELECT, then for every solution
// instantiate the DELETE template (if any) and the INSERT template (if
// any), skipping any template triple that references a variable left
// unbound by that solution (SPARQL 1.1 Update §3.1.3). Per §3.1.3 the
// WHERE pattern is evaluated once against the pre-update state, then
// deletions and insertions are both staged from those same bindings.
func (e *Executor) execModify(wtxn *txn.Txn, op *parser.ModifyOperation, stats *optimizer.Statistics) (inserted, deleted int, err error) {
	bindings, err := e.solveWhere(op.Where, stats)
	if err != nil {
		return 0, 0, err
	}

	for _, binding := range bindings {
		if op.DeleteTemplate != nil {
			for _, quad := range instantiateTemplate(op.DeleteTemplate, binding) {
				if err := wtxn.Delete(quad); err != nil {
					return inserted, deleted, err
				}
				deleted++
			}
		}
		if op.InsertTemplate != nil {
			for _, quad := range instantiateTemplate(op.InsertTemplate, binding) {
				if err := wtxn.Insert(quad); err != nil {
					return inserted, deleted, err
				}
				inserted++
			}
		}
	}
	return inserted, deleted, nil
}

// solveWhere executes a graph pattern as if it were `SELECT * WHERE {
// pattern }` and returns every solution binding.
func (e *Executor) solveWhere(where *parser.GraphPattern, stats *optimizer.Statistics) ([]*store.Binding, error) {
	query := &parser.Query{
		QueryType: parser.QueryTypeSelect,
		Select: &parser.SelectQuery{
			Where: where,
		},
	}
	opt := optimizer.NewOptimizer(stats)
	optimized, err := opt.Optimize(query)
	if err != nil {
		return nil, fmt.Errorf("failed to plan WHERE clause: %w", err)
	}
	result, err := e.executeSelect(optimized)
	if err != nil {
		return nil, err
	}
	return result.Bindings, nil
}

// instantiateTemplate substitutes a solution binding into a template's
// triple patterns, into the store's reserved default graph. Any triple
// referencing a variable the binding leaves unbound is dropped rather
// than erroring, per SPARQL 1.1 Update semantics for templates.
func instantiateTemplate(template []*parser.TriplePattern, binding *store.Binding) []*rdf.Quad {
	var quads []*rdf.Quad
	for _, t := range template {
		subject, ok := instantiateRDFTerm(t.Subject, binding)
		if !ok {
			continue
		}
		predicate, ok := instantiateRDFTerm(t.Predicate, binding)
		if !ok {
			continue
		}
		object, ok := instantiateRDFTerm(t.Object, binding)
		if !ok {
			continue
		}
		quads = append(quads, rdf.NewQuad(subject, predicate, object, rdf.NewDefaultGraph()))
	}
	return quads
}

func instantiateRDFTerm(tov parser.TermOrVariable, binding *store.Binding) (rdf.Term, bool) {
	if !tov.IsVariable() {
		return tov.Term, true
	}
	value, found := binding.Vars[tov.Variable.Name]
	return value, found
}

// clearGraphs deletes every quad in the graphs named by ref (the default
// graph, every named graph, or one specific named graph), and when
// dropGraph is true also removes the graph's registry entry (DROP,
// rather than CLEAR, which only empties it).
func (e *Executor) clearGraphs(wtxn *txn.Txn, ref parser.GraphRef, dropGraph bool) (int, error) {
	var graphs []rdf.Term
	switch {
	case ref.Default:
		graphs = []rdf.Term{rdf.NewDefaultGraph()}
	case ref.Graph != nil:
		graphs = []rdf.Term{ref.Graph}
	case ref.Named, ref.All:
		names, err := e.listNamedGraphs(wtxn)
		if err != nil {
			return 0, err
		}
		graphs = append(graphs, names...)
		if ref.All {
			graphs = append(graphs, rdf.NewDefaultGraph())
		}
	default:
		return 0, fmt.Errorf("unspecified graph reference")
	}

	deleted := 0
	for _, g := range graphs {
		pattern := &store.Pattern{
			Subject:   &store.Variable{Name: "s"},
			Predicate: &store.Variable{Name: "p"},
			Object:    &store.Variable{Name: "o"},
			Graph:     g,
		}
		iter, err := wtxn.Query(pattern)
		if err != nil {
			return deleted, err
		}
		var quads []*rdf.Quad
		for iter.Next() {
			quad, err := iter.Quad()
			if err != nil {
				_ = iter.Close()
				return deleted, err
			}
			quads = append(quads, quad)
		}
		if err := iter.Close(); err != nil {
			return deleted, err
		}
		for _, quad := range quads {
			if err := wtxn.Delete(quad); err != nil {
				return deleted, err
			}
			deleted++
		}
		if dropGraph {
			if _, isDefault := g.(*rdf.DefaultGraph); !isDefault {
				if err := wtxn.DropGraph(g); err != nil {
					return deleted, err
				}
			}
		}
	}
	return deleted, nil
}

// listNamedGraphs enumerates the distinct non-default graph labels
// currently in use by scanning every quad once.
func (e *Executor) listNamedGraphs(wtxn *txn.Txn) ([]rdf.Term, error) {
	pattern := &store.Pattern{
		Subject:   &store.Variable{Name: "s"},
		Predicate: &store.Variable{Name: "p"},
		Object:    &store.Variable{Name: "o"},
		Graph:     &store.Variable{Name: "g"},
	}
	iter, err := wtxn.Query(pattern)
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	seen := make(map[string]bool)
	var graphs []rdf.Term
	for iter.Next() {
		quad, err := iter.Quad()
		if err != nil {
			return nil, err
		}
		if _, isDefault := quad.Graph.(*rdf.DefaultGraph); isDefault {
			continue
		}
		key := quad.Graph.String()
		if !seen[key] {
			seen[key] = true
			graphs = append(graphs, quad.Graph)
		}
	}
	return graphs, iter.Close()
}

// execLoad fetches an RDF document from source and inserts its triples
// into the target graph (the default graph when Into is nil). trigo has
// no outbound HTTP fetcher wired in yet (the server is read/write over
// its own store, not an HTTP client), so LOAD only supports loading from
// a local file path given as the source IRI — see DESIGN.md.
func (e *Executor) execLoad(wtxn *txn.Txn, op *parser.LoadOperation) error {
	path := stripFileScheme(op.Source.IRI)

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", op.Source.IRI, err)
	}

	quads, err := rdf.NewNQuadsParser(string(data)).Parse()
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", op.Source.IRI, err)
	}

	if op.Into != nil {
		if err := wtxn.CreateGraph(op.Into); err != nil {
			return err
		}
		for _, q := range quads {
			q.Graph = op.Into
		}
	}
	for _, q := range quads {
		if err := wtxn.Insert(q); err != nil {
			return err
		}
	}
	return nil
}

func stripFileScheme(iri string) string {
	const scheme = "file://"
	if len(iri) > len(scheme) && iri[:len(scheme)] == scheme {
		return iri[len(scheme):]
	}
	return iri
}
