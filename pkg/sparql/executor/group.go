package executor

import (
	"fmt"
	"strings"

	"github.com/aleksaelezovic/trigo/pkg/rdf"
	"github.com/aleksaelezovic/trigo/pkg/sparql/evaluator"
	"github.com/aleksaelezovic/trigo/pkg/sparql/optimizer"
	"github.com/aleksaelezovic/trigo/pkg/sparql/parser"
	"github.com/aleksaelezovic/trigo/pkg/store"
	"github.com/aleksaelezovic/trigo/pkg/xsd"
)

// createGroupIterator materializes Input (grouping needs every row of a
// group before any aggregate can emit a result, so unlike the other
// iterators in this file this one cannot stream) and computes one output
// binding per distinct GroupBy key, per §4.8 "Group". With no GroupBy
// keys, the whole input is one implicit group, matching "without a
// GROUP BY, treat the whole input as one group iff any aggregate is
// present" (§4.8) — translateSelect only ever builds a GroupPlan in that
// situation, so this iterator does not need to special-case it.
func (e *Executor) createGroupIterator(plan *optimizer.GroupPlan) (store.BindingIterator, error) {
	var input store.BindingIterator
	var err error
	if plan.Input != nil {
		input, err = e.createIterator(plan.Input)
		if err != nil {
			return nil, err
		}
		defer input.Close()
	}

	type group struct {
		key  string
		rep  *store.Binding // first row of the group, for its GroupBy bindings
		aggs []*aggregatorState
	}
	groups := make(map[string]*group)
	var order []string

	ev := evaluator.NewEvaluator()

	addRow := func(binding *store.Binding) error {
		key, err := groupKey(ev, plan.GroupBy, binding)
		if err != nil {
			return err
		}
		g, ok := groups[key]
		if !ok {
			g = &group{key: key, rep: binding}
			for _, agg := range plan.Aggregates {
				g.aggs = append(g.aggs, newAggregatorState(agg))
			}
			groups[key] = g
			order = append(order, key)
		}
		for i, agg := range plan.Aggregates {
			var val rdf.Term
			if agg.Argument != nil {
				val, err = ev.Evaluate(agg.Argument, binding)
				if err != nil {
					val = nil // error propagates as "unbound" per §4.7's local-error rule
				}
			}
			g.aggs[i].accumulate(val)
		}
		return nil
	}

	if input != nil {
		for input.Next() {
			if err := addRow(input.Binding()); err != nil {
				return nil, err
			}
		}
	}
	if len(order) == 0 && len(plan.GroupBy) == 0 && len(plan.Aggregates) > 0 {
		// No WHERE-clause solutions at all but an aggregate is still
		// projected (e.g. COUNT(*) over a pattern that matches nothing) —
		// SPARQL emits one row with the identity aggregate values (COUNT=0).
		g := &group{rep: store.NewBinding()}
		for _, agg := range plan.Aggregates {
			g.aggs = append(g.aggs, newAggregatorState(agg))
		}
		groups[""] = g
		order = append(order, "")
	}

	out := make([]*store.Binding, 0, len(order))
	for _, key := range order {
		g := groups[key]
		result := store.NewBinding()
		for _, gc := range plan.GroupBy {
			if gc.Variable != nil {
				if v, ok := g.rep.Vars[gc.Variable.Name]; ok {
					result.Vars[gc.Variable.Name] = v
				}
			}
		}
		for i, agg := range plan.Aggregates {
			term, err := g.aggs[i].result()
			if err != nil {
				continue // unbound on aggregate error, per §4.7
			}
			if agg.Output != nil {
				result.Vars[agg.Output.Name] = term
			}
		}
		out = append(out, result)
	}

	return &materializedIterator{rows: out}, nil
}

// groupKey renders a stable string key for a GroupBy tuple. Unbound
// (error-producing) grouping expressions all collapse to the same
// "unbound" bucket rather than failing the query.
func groupKey(ev *evaluator.Evaluator, groupBy []*parser.GroupCondition, binding *store.Binding) (string, error) {
	if len(groupBy) == 0 {
		return "", nil
	}
	var parts []string
	for _, gc := range groupBy {
		var term rdf.Term
		var err error
		switch {
		case gc.Expression != nil:
			term, err = ev.Evaluate(gc.Expression, binding)
		case gc.Variable != nil:
			term, err = ev.Evaluate(&parser.VariableExpression{Variable: gc.Variable}, binding)
		}
		if err != nil || term == nil {
			parts = append(parts, "\x00unbound")
			continue
		}
		parts = append(parts, term.String())
	}
	return strings.Join(parts, "\x01"), nil
}

// aggregatorState accumulates one SELECT-projected aggregate across a
// group's rows, per §4.8's aggregator list (count, sum, min, max, avg,
// sample, group_concat), each with optional DISTINCT.
type aggregatorState struct {
	agg   *optimizer.Aggregate
	seen  map[string]bool // DISTINCT dedup, keyed by term.String()
	count int64
	sum   xsd.Decimal
	haveN bool // true once sum/min/max has at least one numeric value
	allInt bool
	min, max rdf.Term
	sample   rdf.Term
	parts    []string
}

func newAggregatorState(agg *optimizer.Aggregate) *aggregatorState {
	return &aggregatorState{agg: agg, seen: make(map[string]bool), allInt: true}
}

func (a *aggregatorState) accumulate(val rdf.Term) {
	fn := a.agg.Function
	if fn == "COUNT" {
		if a.agg.Argument == nil {
			// COUNT(*): every row counts, bound or not.
			a.count++
			return
		}
		if val == nil {
			return
		}
	}
	if val == nil {
		return
	}
	if a.agg.Distinct {
		key := val.String()
		if a.seen[key] {
			return
		}
		a.seen[key] = true
	}

	switch fn {
	case "COUNT":
		a.count++
	case "SUM", "AVG":
		a.count++
		lit, ok := val.(*rdf.Literal)
		if !ok {
			return
		}
		d, isInt, ok := literalToDecimal(lit)
		if !ok {
			return
		}
		if !a.haveN {
			a.sum = d
		} else {
			a.sum = a.sum.Add(d)
		}
		a.haveN = true
		a.allInt = a.allInt && isInt
	case "MIN":
		if a.min == nil || compareForAggregate(val, a.min) < 0 {
			a.min = val
		}
	case "MAX":
		if a.max == nil || compareForAggregate(val, a.max) > 0 {
			a.max = val
		}
	case "SAMPLE":
		if a.sample == nil {
			a.sample = val
		}
	case "GROUP_CONCAT":
		a.parts = append(a.parts, termLexical(val))
	}
}

func (a *aggregatorState) result() (rdf.Term, error) {
	switch a.agg.Function {
	case "COUNT":
		return rdf.NewIntegerLiteral(a.count), nil
	case "SUM":
		if !a.haveN {
			return rdf.NewIntegerLiteral(0), nil
		}
		if a.allInt {
			return rdf.NewIntegerLiteral(int64(a.sum.Float64())), nil
		}
		return rdf.NewDecimalLiteral(a.sum.Float64()), nil
	case "AVG":
		if a.count == 0 {
			return rdf.NewIntegerLiteral(0), nil
		}
		avg, ok := a.sum.Div(xsd.NewDecimalFromInt(a.count))
		if !ok {
			return nil, fmt.Errorf("average by zero count")
		}
		return rdf.NewDecimalLiteral(avg.Float64()), nil
	case "MIN":
		if a.min == nil {
			return nil, fmt.Errorf("MIN over empty group")
		}
		return a.min, nil
	case "MAX":
		if a.max == nil {
			return nil, fmt.Errorf("MAX over empty group")
		}
		return a.max, nil
	case "SAMPLE":
		if a.sample == nil {
			return nil, fmt.Errorf("SAMPLE over empty group")
		}
		return a.sample, nil
	case "GROUP_CONCAT":
		sep := a.agg.Separator
		if sep == "" {
			sep = " "
		}
		sorted := append([]string(nil), a.parts...)
		return rdf.NewLiteral(strings.Join(sorted, sep)), nil
	default:
		return nil, fmt.Errorf("unsupported aggregate function: %s", a.agg.Function)
	}
}

func literalToDecimal(lit *rdf.Literal) (xsd.Decimal, bool, bool) {
	if lit.Datatype == nil {
		return xsd.Decimal{}, false, false
	}
	isInt := lit.Datatype.IRI == "http://www.w3.org/2001/XMLSchema#integer" ||
		lit.Datatype.IRI == "http://www.w3.org/2001/XMLSchema#int" ||
		lit.Datatype.IRI == "http://www.w3.org/2001/XMLSchema#long"
	d, ok := xsd.ParseDecimal(lit.Value)
	if !ok {
		return xsd.Decimal{}, false, false
	}
	return d, isInt, true
}

func compareForAggregate(a, b rdf.Term) int {
	al, aok := a.(*rdf.Literal)
	bl, bok := b.(*rdf.Literal)
	if aok && bok {
		if da, _, ok := literalToDecimal(al); ok {
			if db, _, ok := literalToDecimal(bl); ok {
				return da.Cmp(db)
			}
		}
	}
	as, bs := a.String(), b.String()
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	default:
		return 0
	}
}

func termLexical(t rdf.Term) string {
	if lit, ok := t.(*rdf.Literal); ok {
		return lit.Value
	}
	return t.String()
}

// materializedIterator serves a pre-computed row set: used by GroupPlan,
// which must see every input row before it can emit its first output
// row, unlike the pull-through iterators elsewhere in this package.
type materializedIterator struct {
	rows []*store.Binding
	idx  int
}

func (it *materializedIterator) Next() bool {
	if it.idx >= len(it.rows) {
		return false
	}
	it.idx++
	return true
}

func (it *materializedIterator) Binding() *store.Binding { return it.rows[it.idx-1] }
func (it *materializedIterator) Close() error             { return nil }
