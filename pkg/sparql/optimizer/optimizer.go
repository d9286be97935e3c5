// Package optimizer translates a parsed SPARQL query into a QueryPlan tree
// that pkg/sparql/executor can pull bindings from. "Optimizer" is a slight
// misnomer today: Translate builds a plan that mirrors the parsed query's
// structure directly (BGP as a left-deep nested-loop join chain, group
// patterns wrapped in the order FILTER/ORDER BY/PROJECT/DISTINCT/SLICE per
// the SPARQL algebra), with no cost-based rewriting yet. Optimize is the
// seam for that: constant-folding filters, reordering joins by selectivity,
// index-aware scan ordering.
package optimizer

import (
	"fmt"
	"strings"

	"github.com/aleksaelezovic/trigo/pkg/rdf"
	"github.com/aleksaelezovic/trigo/pkg/sparql/parser"
)

// OptimizedQuery pairs the original parsed query (executor needs it for
// query-type dispatch and SELECT projection details) with the plan tree to
// execute.
type OptimizedQuery struct {
	Original *parser.Query
	Plan     QueryPlan
}

// QueryPlan is any node in the plan tree. It carries no methods: the
// executor type-switches on the concrete plan types below.
type QueryPlan interface {
	planNode()
}

// ScanPlan matches a single triple pattern against the store.
type ScanPlan struct {
	Pattern *parser.TriplePattern
}

// JoinType selects a join algorithm. Only nested-loop is implemented;
// HashJoin is reserved for when the executor grows a hash-join fallback
// for large, unselective joins.
type JoinType int

const (
	JoinTypeNestedLoop JoinType = iota
	JoinTypeHash
)

// JoinPlan joins the bindings produced by Left and Right.
type JoinPlan struct {
	Left, Right QueryPlan
	Type        JoinType
}

// FilterPlan drops bindings for which Filter does not evaluate to true.
type FilterPlan struct {
	Input  QueryPlan
	Filter *parser.Filter
}

// ProjectionPlan restricts each binding to Variables. A nil Variables means
// SELECT * and is a passthrough.
type ProjectionPlan struct {
	Input     QueryPlan
	Variables []*parser.Variable
}

// LimitPlan caps the number of bindings produced.
type LimitPlan struct {
	Input QueryPlan
	Limit int
}

// OffsetPlan skips the first Offset bindings.
type OffsetPlan struct {
	Input  QueryPlan
	Offset int
}

// DistinctPlan removes duplicate bindings by their full set of bound values.
type DistinctPlan struct {
	Input QueryPlan
}

// ReducedPlan removes duplicate bindings on a best-effort basis (a bounded
// window rather than the full-result dedup DistinctPlan performs).
type ReducedPlan struct {
	Input      QueryPlan
	WindowSize int
}

// GraphPlan constrains every scan beneath Input to a specific named graph
// (or, when Graph.Variable is set, binds that variable to each graph the
// matching quads were found in).
type GraphPlan struct {
	Input QueryPlan
	Graph *parser.GraphTerm
}

// BindPlan extends each binding from Input with Variable bound to
// Expression's value, keeping the solution with Variable unbound if
// evaluation fails.
type BindPlan struct {
	Input      QueryPlan
	Expression parser.Expression
	Variable   *parser.Variable
}

// OptionalPlan is a left outer join: every Left binding is kept even when
// no Right binding is compatible with it.
type OptionalPlan struct {
	Left, Right QueryPlan
}

// UnionPlan concatenates the bindings of Left and Right.
type UnionPlan struct {
	Left, Right QueryPlan
}

// MinusPlan removes Left bindings that are compatible with some Right
// binding on their shared variables.
type MinusPlan struct {
	Left, Right QueryPlan
}

// OrderByPlan sorts Input's bindings by OrderBy, in order of precedence.
type OrderByPlan struct {
	Input   QueryPlan
	OrderBy []*parser.OrderCondition
}

// ConstructPlan instantiates Template for each binding Input produces.
type ConstructPlan struct {
	Input    QueryPlan
	Template []*parser.TriplePattern
}

// PathPlan matches a SPARQL 1.1 property path against the store, binding
// Subject/Object when they are variables.
type PathPlan struct {
	Subject parser.TermOrVariable
	Path    *parser.PathExpression
	Object  parser.TermOrVariable
}

// Aggregate is one SELECT-projected aggregate function, resolved from a
// `(COUNT(?x) AS ?c)`-shaped projection or a bare (ungrouped) one.
type Aggregate struct {
	Function  string // upper-cased: COUNT, SUM, AVG, MIN, MAX, GROUP_CONCAT, SAMPLE
	Argument  parser.Expression // nil for COUNT(*)
	Distinct  bool
	Separator string // GROUP_CONCAT only
	Output    *parser.Variable
}

// GroupPlan partitions Input's bindings by GroupBy (empty means one
// implicit group over the whole solution sequence) and computes
// Aggregates per group, emitting one output binding per group carrying
// the group-by variables plus each aggregate's Output variable.
type GroupPlan struct {
	Input      QueryPlan
	GroupBy    []*parser.GroupCondition
	Aggregates []*Aggregate
}

// ValuesPlan supplies the fixed binding rows of an inline VALUES data
// block. It has no Input: translateGraphPattern joins it into the
// surrounding pattern like any other child.
type ValuesPlan struct {
	Values *parser.ValuesClause
}

// DescribePlan computes a Concise Bounded Description for each resource:
// either the static list in Resources, or every IRI bound by Input's
// solutions when the query used `DESCRIBE ?var WHERE {...}`.
type DescribePlan struct {
	Input     QueryPlan
	Resources []rdf.Term
}

func (*ScanPlan) planNode()       {}
func (*JoinPlan) planNode()       {}
func (*FilterPlan) planNode()     {}
func (*ProjectionPlan) planNode() {}
func (*LimitPlan) planNode()      {}
func (*OffsetPlan) planNode()     {}
func (*DistinctPlan) planNode()   {}
func (*ReducedPlan) planNode()    {}
func (*GraphPlan) planNode()      {}
func (*BindPlan) planNode()       {}
func (*OptionalPlan) planNode()   {}
func (*UnionPlan) planNode()      {}
func (*MinusPlan) planNode()      {}
func (*OrderByPlan) planNode()    {}
func (*ConstructPlan) planNode()  {}
func (*DescribePlan) planNode()   {}
func (*PathPlan) planNode()       {}
func (*GroupPlan) planNode()      {}
func (*ValuesPlan) planNode()     {}

// reducedWindowSize bounds REDUCED's best-effort dedup window so it never
// buffers the whole result set the way DISTINCT does.
const reducedWindowSize = 256

// Statistics carries store-level cardinality estimates for cost-based plan
// rewrites (join reordering, scan ordering). Only TotalTriples is consulted
// today; per-predicate/per-pattern histograms are a natural extension once
// Optimize grows join reordering.
type Statistics struct {
	TotalTriples int64
}

// Optimizer is the stateful entry point cmd/trigo and internal/testsuite
// call per query, threading store Statistics through so future cost-based
// rewrites (join reordering, index-aware scan ordering) have cardinality
// estimates to work from.
type Optimizer struct {
	stats *Statistics
}

// NewOptimizer creates an Optimizer bound to the given store statistics.
func NewOptimizer(stats *Statistics) *Optimizer {
	return &Optimizer{stats: stats}
}

// Optimize translates and optimizes a parsed query in one step.
func (o *Optimizer) Optimize(query *parser.Query) (*OptimizedQuery, error) {
	return Translate(query)
}

// Translate builds an OptimizedQuery from a parsed query.
func Translate(query *parser.Query) (*OptimizedQuery, error) {
	oq := &OptimizedQuery{Original: query}

	switch query.QueryType {
	case parser.QueryTypeSelect:
		plan, err := translateSelect(query.Select)
		if err != nil {
			return nil, err
		}
		oq.Plan = plan
	case parser.QueryTypeAsk:
		plan, err := translateGraphPattern(query.Ask.Where)
		if err != nil {
			return nil, err
		}
		oq.Plan = plan
	case parser.QueryTypeConstruct:
		var input QueryPlan
		if query.Construct.Where != nil {
			plan, err := translateGraphPattern(query.Construct.Where)
			if err != nil {
				return nil, err
			}
			input = plan
		}
		oq.Plan = &ConstructPlan{Input: input, Template: query.Construct.Template}
	case parser.QueryTypeDescribe:
		plan := &DescribePlan{Resources: query.Describe.Resources}
		if query.Describe.Where != nil {
			input, err := translateGraphPattern(query.Describe.Where)
			if err != nil {
				return nil, err
			}
			plan.Input = input
		}
		oq.Plan = plan
	default:
		return nil, fmt.Errorf("unsupported query type: %v", query.QueryType)
	}

	return Optimize(oq), nil
}

// Optimize rewrites a plan tree in place (currently a no-op pass-through;
// see the package doc for planned rewrites) and returns it.
func Optimize(oq *OptimizedQuery) *OptimizedQuery {
	return oq
}

func translateSelect(sq *parser.SelectQuery) (QueryPlan, error) {
	plan, err := translateGraphPattern(sq.Where)
	if err != nil {
		return nil, err
	}

	aggregates := collectAggregates(sq)
	if len(sq.GroupBy) > 0 || len(aggregates) > 0 {
		plan = &GroupPlan{Input: plan, GroupBy: sq.GroupBy, Aggregates: aggregates}
	}

	// Computed (non-aggregate) projections, e.g. `(?x + 1 AS ?y)`, are
	// applied as BIND after grouping so they can reference the group's
	// aggregate outputs as ordinary bound variables.
	for _, v := range sq.Variables {
		expr, ok := sq.ProjectExprs[v.Name]
		if !ok || isAggregateExpr(expr) {
			continue
		}
		plan = &BindPlan{Input: plan, Expression: expr, Variable: v}
	}

	if len(sq.OrderBy) > 0 {
		plan = &OrderByPlan{Input: plan, OrderBy: sq.OrderBy}
	}

	if sq.Variables != nil {
		plan = &ProjectionPlan{Input: plan, Variables: sq.Variables}
	}

	switch {
	case sq.Distinct:
		plan = &DistinctPlan{Input: plan}
	case sq.Reduced:
		plan = &ReducedPlan{Input: plan, WindowSize: reducedWindowSize}
	}

	if sq.Offset != nil {
		plan = &OffsetPlan{Input: plan, Offset: *sq.Offset}
	}
	if sq.Limit != nil {
		plan = &LimitPlan{Input: plan, Limit: *sq.Limit}
	}

	return plan, nil
}

// collectAggregates finds every top-level projected expression that is
// directly an aggregate function call (`(SUM(?v) AS ?s)`), the shape this
// engine supports. An aggregate nested inside further arithmetic (e.g.
// `(SUM(?v)*2 AS ?s)`) is left alone here; translateSelect's BindPlan pass
// will try to evaluate it as a plain expression and fail, since this
// executor does not yet rewrite aggregate subexpressions to synthetic
// variables.
func collectAggregates(sq *parser.SelectQuery) []*Aggregate {
	var aggs []*Aggregate
	for _, v := range sq.Variables {
		expr, ok := sq.ProjectExprs[v.Name]
		if !ok {
			continue
		}
		fc, ok := expr.(*parser.FunctionCallExpression)
		if !ok || !isAggregateFunction(fc.Function) {
			continue
		}
		aggs = append(aggs, aggregateFromCall(fc, v))
	}
	return aggs
}

func isAggregateFunction(name string) bool {
	switch strings.ToUpper(name) {
	case "COUNT", "SUM", "AVG", "MIN", "MAX", "GROUP_CONCAT", "SAMPLE":
		return true
	default:
		return false
	}
}

func isAggregateExpr(e parser.Expression) bool {
	fc, ok := e.(*parser.FunctionCallExpression)
	return ok && isAggregateFunction(fc.Function)
}

func aggregateFromCall(fc *parser.FunctionCallExpression, output *parser.Variable) *Aggregate {
	agg := &Aggregate{
		Function:  strings.ToUpper(fc.Function),
		Distinct:  fc.Distinct,
		Output:    output,
		Separator: " ",
	}
	if len(fc.Arguments) > 0 {
		if ve, ok := fc.Arguments[0].(*parser.VariableExpression); !ok || ve.Variable.Name != "*" {
			agg.Argument = fc.Arguments[0]
		}
	}
	return agg
}

// translateGraphPattern builds a plan for one `{ ... }` block: its direct
// triples form a left-deep join chain, BIND/FILTER elements wrap that chain
// in source order (so BIND can feed later FILTERs and each other), and
// child blocks (OPTIONAL/MINUS/UNION/GRAPH/plain nested groups) are joined
// in after the direct content.
// TranslateGraphPattern exposes translateGraphPattern for callers outside
// this package. Nothing in this module calls it; the executor does not
// evaluate EXISTS/NOT EXISTS patterns.
func TranslateGraphPattern(gp *parser.GraphPattern) (QueryPlan, error) {
	return translateGraphPattern(gp)
}

func translateGraphPattern(gp *parser.GraphPattern) (QueryPlan, error) {
	if gp == nil {
		return nil, fmt.Errorf("nil graph pattern")
	}

	var plan QueryPlan
	join := func(next QueryPlan) {
		if plan == nil {
			plan = next
			return
		}
		plan = &JoinPlan{Left: plan, Right: next, Type: JoinTypeNestedLoop}
	}

	for _, el := range gp.Elements {
		switch {
		case el.Triple != nil && el.Triple.Path != nil:
			join(&PathPlan{Subject: el.Triple.Subject, Path: el.Triple.Path, Object: el.Triple.Object})
		case el.Triple != nil:
			join(&ScanPlan{Pattern: el.Triple})
		case el.Bind != nil:
			if plan == nil {
				plan = &BindPlan{Expression: el.Bind.Expression, Variable: el.Bind.Variable}
				continue
			}
			plan = &BindPlan{Input: plan, Expression: el.Bind.Expression, Variable: el.Bind.Variable}
		case el.Filter != nil:
			if el.Filter.Expression == nil {
				// EXISTS/NOT EXISTS filters without a captured expression
				// tree are not evaluable yet; skip rather than reject the
				// whole query.
				continue
			}
			plan = &FilterPlan{Input: plan, Filter: el.Filter}
		}
	}

	for _, child := range gp.Children {
		childPlan, err := translateChild(child)
		if err != nil {
			return nil, err
		}

		switch child.Type {
		case parser.GraphPatternTypeOptional:
			if plan == nil {
				plan = childPlan
				continue
			}
			plan = &OptionalPlan{Left: plan, Right: childPlan}
		case parser.GraphPatternTypeMinus:
			if plan == nil {
				continue
			}
			plan = &MinusPlan{Left: plan, Right: childPlan}
		default:
			join(childPlan)
		}
	}

	if plan == nil {
		return nil, fmt.Errorf("empty graph pattern")
	}
	return plan, nil
}

func translateChild(gp *parser.GraphPattern) (QueryPlan, error) {
	switch gp.Type {
	case parser.GraphPatternTypeUnion:
		if len(gp.Children) != 2 {
			return nil, fmt.Errorf("union pattern must have exactly two children, got %d", len(gp.Children))
		}
		left, err := translateGraphPattern(gp.Children[0])
		if err != nil {
			return nil, err
		}
		right, err := translateGraphPattern(gp.Children[1])
		if err != nil {
			return nil, err
		}
		return &UnionPlan{Left: left, Right: right}, nil
	case parser.GraphPatternTypeValues:
		return &ValuesPlan{Values: gp.Values}, nil
	case parser.GraphPatternTypeGraph:
		inner, err := translateGraphPattern(&parser.GraphPattern{
			Patterns: gp.Patterns,
			Filters:  gp.Filters,
			Binds:    gp.Binds,
			Children: gp.Children,
			Elements: gp.Elements,
		})
		if err != nil {
			return nil, err
		}
		return &GraphPlan{Input: inner, Graph: gp.Graph}, nil
	default:
		return translateGraphPattern(gp)
	}
}
