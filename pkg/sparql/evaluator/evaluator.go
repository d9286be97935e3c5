package evaluator

import (
	"fmt"
	"sync/atomic"

	"github.com/aleksaelezovic/trigo/pkg/rdf"
	"github.com/aleksaelezovic/trigo/pkg/sparql/parser"
	"github.com/aleksaelezovic/trigo/pkg/store"
)

// ExistsFunc checks whether a graph pattern has at least one solution
// compatible with the given outer binding. Answering it requires
// re-planning and re-executing a pattern against the store, which the
// evaluator package has no access to. No caller in this module supplies
// one: the executor builds its evaluators with NewEvaluator, so
// EXISTS/NOT EXISTS evaluates to an error there.
type ExistsFunc func(pattern *parser.GraphPattern, outer *store.Binding) (bool, error)

// Evaluator evaluates SPARQL expressions against bindings
type Evaluator struct {
	existsFn ExistsFunc
	baseIRI  string

	// bnodeSeq backs BNODE()'s fresh-label generation; BNODE(str) within
	// a single evaluator keeps a per-string cache so the same label maps
	// to the same blank node across repeated evaluation of one row (the
	// executor constructs a fresh Evaluator per query, not per row, so
	// this cache is scoped generously — callers that need strict
	// per-solution scoping should use a fresh Evaluator per row).
	bnodeSeq   atomic.Uint64
	bnodeCache map[string]*rdf.BlankNode
}

// NewEvaluator creates a new expression evaluator
func NewEvaluator() *Evaluator {
	return &Evaluator{bnodeCache: make(map[string]*rdf.BlankNode)}
}

// NewEvaluatorWithExists creates an evaluator able to answer
// EXISTS/NOT EXISTS filters using existsFn.
func NewEvaluatorWithExists(existsFn ExistsFunc) *Evaluator {
	return &Evaluator{existsFn: existsFn, bnodeCache: make(map[string]*rdf.BlankNode)}
}

// WithBaseIRI sets the base IRI that IRI()/URI() resolves relative
// references against, returning the same evaluator for chaining.
func (e *Evaluator) WithBaseIRI(base string) *Evaluator {
	e.baseIRI = base
	return e
}

// Evaluate evaluates an expression against a binding and returns the result term
// Returns (result, error) where error is nil on success
// If the expression cannot be evaluated (type error, unbound variable, etc.), returns an error
func (e *Evaluator) Evaluate(expr parser.Expression, binding *store.Binding) (rdf.Term, error) {
	if expr == nil {
		return nil, fmt.Errorf("cannot evaluate nil expression")
	}

	switch ex := expr.(type) {
	case *parser.BinaryExpression:
		return e.evaluateBinaryExpression(ex, binding)
	case *parser.UnaryExpression:
		return e.evaluateUnaryExpression(ex, binding)
	case *parser.VariableExpression:
		return e.evaluateVariableExpression(ex, binding)
	case *parser.LiteralExpression:
		return e.evaluateLiteralExpression(ex, binding)
	case *parser.FunctionCallExpression:
		return e.evaluateFunctionCall(ex, binding)
	case *parser.ExistsExpression:
		return e.evaluateExistsExpression(ex, binding)
	case *parser.InExpression:
		return e.evaluateInExpression(ex, binding)
	default:
		return nil, fmt.Errorf("unsupported expression type: %T", expr)
	}
}

// evaluateVariableExpression evaluates a variable reference
func (e *Evaluator) evaluateVariableExpression(expr *parser.VariableExpression, binding *store.Binding) (rdf.Term, error) {
	if expr.Variable == nil {
		return nil, fmt.Errorf("variable expression has nil variable")
	}

	// Special case for COUNT(*) which uses variable name "*"
	if expr.Variable.Name == "*" {
		return nil, fmt.Errorf("* is not a valid variable reference in expressions")
	}

	// Look up variable in binding
	value, exists := binding.Vars[expr.Variable.Name]
	if !exists {
		return nil, fmt.Errorf("unbound variable: ?%s", expr.Variable.Name)
	}

	return value, nil
}

// evaluateLiteralExpression evaluates a literal constant
func (e *Evaluator) evaluateLiteralExpression(expr *parser.LiteralExpression, binding *store.Binding) (rdf.Term, error) {
	if expr.Literal == nil {
		return nil, fmt.Errorf("literal expression has nil literal")
	}
	return expr.Literal, nil
}

// evaluateExistsExpression evaluates EXISTS or NOT EXISTS by delegating
// to the existsFn given to NewEvaluatorWithExists, if any, which answers
// for expr.Pattern joined against the current outer binding.
func (e *Evaluator) evaluateExistsExpression(expr *parser.ExistsExpression, binding *store.Binding) (rdf.Term, error) {
	if e.existsFn == nil {
		return nil, fmt.Errorf("EXISTS/NOT EXISTS evaluation unavailable in this context")
	}
	found, err := e.existsFn(&expr.Pattern, binding)
	if err != nil {
		return nil, err
	}
	if expr.Not {
		return rdf.NewBooleanLiteral(!found), nil
	}
	return rdf.NewBooleanLiteral(found), nil
}

// evaluateInExpression evaluates IN or NOT IN operator
// x IN (e1, e2, ...) is equivalent to (x = e1) || (x = e2) || ...
// x NOT IN (e1, e2, ...) is equivalent to !((x = e1) || (x = e2) || ...)
func (e *Evaluator) evaluateInExpression(expr *parser.InExpression, binding *store.Binding) (rdf.Term, error) {
	// Evaluate the left-hand expression
	leftValue, err := e.Evaluate(expr.Expression, binding)
	if err != nil {
		return nil, err
	}

	// Check if leftValue equals any of the values in the list
	found := false
	for _, valueExpr := range expr.Values {
		rightValue, err := e.Evaluate(valueExpr, binding)
		if err != nil {
			// If evaluation fails for any value, skip it (SPARQL semantics)
			continue
		}

		// Check equality
		if leftValue.Equals(rightValue) {
			found = true
			break
		}
	}

	// Apply NOT if needed
	if expr.Not {
		return rdf.NewBooleanLiteral(!found), nil
	}
	return rdf.NewBooleanLiteral(found), nil
}
