package evaluator

import (
	"fmt"
	"math"
	"strconv"

	"github.com/aleksaelezovic/trigo/pkg/rdf"
	"github.com/aleksaelezovic/trigo/pkg/sparql/parser"
	"github.com/aleksaelezovic/trigo/pkg/store"
	"github.com/aleksaelezovic/trigo/pkg/xsd"
)

// evaluateBinaryExpression evaluates binary operations
func (e *Evaluator) evaluateBinaryExpression(expr *parser.BinaryExpression, binding *store.Binding) (rdf.Term, error) {
	// Evaluate left and right operands
	left, err := e.Evaluate(expr.Left, binding)
	if err != nil {
		return nil, err
	}

	right, err := e.Evaluate(expr.Right, binding)
	if err != nil {
		return nil, err
	}

	switch expr.Operator {
	// Logical operators
	case parser.OpAnd:
		return e.evaluateAnd(left, right)
	case parser.OpOr:
		return e.evaluateOr(left, right)

	// Comparison operators
	case parser.OpEqual:
		return e.evaluateEqual(left, right)
	case parser.OpNotEqual:
		return e.evaluateNotEqual(left, right)
	case parser.OpLessThan:
		return e.evaluateLessThan(left, right)
	case parser.OpLessThanOrEqual:
		return e.evaluateLessThanOrEqual(left, right)
	case parser.OpGreaterThan:
		return e.evaluateGreaterThan(left, right)
	case parser.OpGreaterThanOrEqual:
		return e.evaluateGreaterThanOrEqual(left, right)

	// Arithmetic operators
	case parser.OpAdd:
		return e.evaluateAdd(left, right)
	case parser.OpSubtract:
		return e.evaluateSubtract(left, right)
	case parser.OpMultiply:
		return e.evaluateMultiply(left, right)
	case parser.OpDivide:
		return e.evaluateDivide(left, right)

	default:
		return nil, fmt.Errorf("unsupported binary operator: %v", expr.Operator)
	}
}

// evaluateUnaryExpression evaluates unary operations
func (e *Evaluator) evaluateUnaryExpression(expr *parser.UnaryExpression, binding *store.Binding) (rdf.Term, error) {
	operand, err := e.Evaluate(expr.Operand, binding)
	if err != nil {
		return nil, err
	}

	switch expr.Operator {
	case parser.OpNot:
		return e.evaluateNot(operand)
	default:
		return nil, fmt.Errorf("unsupported unary operator: %v", expr.Operator)
	}
}

// Logical operators

func (e *Evaluator) evaluateAnd(left, right rdf.Term) (rdf.Term, error) {
	leftEBV, err := e.effectiveBooleanValue(left)
	if err != nil {
		return nil, err
	}

	// If left is false the result is false whatever right's EBV (both
	// operands were already evaluated by evaluateBinaryExpression)
	if !leftEBV {
		return rdf.NewBooleanLiteral(false), nil
	}

	rightEBV, err := e.effectiveBooleanValue(right)
	if err != nil {
		return nil, err
	}

	return rdf.NewBooleanLiteral(leftEBV && rightEBV), nil
}

func (e *Evaluator) evaluateOr(left, right rdf.Term) (rdf.Term, error) {
	leftEBV, err := e.effectiveBooleanValue(left)
	if err != nil {
		// In SPARQL, if left is error but right is true, return true
		rightEBV, rightErr := e.effectiveBooleanValue(right)
		if rightErr == nil && rightEBV {
			return rdf.NewBooleanLiteral(true), nil
		}
		return nil, err
	}

	// Short-circuit: if left is true, return true
	if leftEBV {
		return rdf.NewBooleanLiteral(true), nil
	}

	rightEBV, err := e.effectiveBooleanValue(right)
	if err != nil {
		return nil, err
	}

	return rdf.NewBooleanLiteral(leftEBV || rightEBV), nil
}

func (e *Evaluator) evaluateNot(operand rdf.Term) (rdf.Term, error) {
	ebv, err := e.effectiveBooleanValue(operand)
	if err != nil {
		return nil, err
	}
	return rdf.NewBooleanLiteral(!ebv), nil
}

// effectiveBooleanValue computes the EBV of a term according to SPARQL spec
func (e *Evaluator) effectiveBooleanValue(term rdf.Term) (bool, error) {
	if term == nil {
		return false, fmt.Errorf("cannot compute EBV of nil term")
	}

	switch t := term.(type) {
	case *rdf.Literal:
		if t.Datatype != nil && t.Datatype.IRI == "http://www.w3.org/2001/XMLSchema#boolean" {
			return t.Value == "true" || t.Value == "1", nil
		}

		if num, ok := e.extractNumericValue(term); ok {
			switch num.kind {
			case numKindFloat, numKindDouble:
				return num.f != 0 && !math.IsNaN(num.f), nil
			default:
				return num.dec.Sign() != 0, nil
			}
		}

		// String literals: false if empty, true otherwise
		if t.Datatype == nil || t.Datatype.IRI == "http://www.w3.org/2001/XMLSchema#string" {
			return t.Value != "", nil
		}

		// Other literals: error
		return false, fmt.Errorf("cannot compute EBV of literal with datatype %s", t.Datatype.IRI)

	default:
		// IRIs, blank nodes, etc.: error
		return false, fmt.Errorf("cannot compute EBV of non-literal term")
	}
}

// Comparison operators

func (e *Evaluator) evaluateEqual(left, right rdf.Term) (rdf.Term, error) {
	if cmp, ok := e.numericCompare(left, right); ok {
		return rdf.NewBooleanLiteral(cmp == 0), nil
	}
	result := left.Equals(right)
	return rdf.NewBooleanLiteral(result), nil
}

func (e *Evaluator) evaluateNotEqual(left, right rdf.Term) (rdf.Term, error) {
	if cmp, ok := e.numericCompare(left, right); ok {
		return rdf.NewBooleanLiteral(cmp != 0), nil
	}
	result := !left.Equals(right)
	return rdf.NewBooleanLiteral(result), nil
}

func (e *Evaluator) evaluateLessThan(left, right rdf.Term) (rdf.Term, error) {
	cmp, err := e.compareTerms(left, right)
	if err != nil {
		return nil, err
	}
	return rdf.NewBooleanLiteral(cmp < 0), nil
}

func (e *Evaluator) evaluateLessThanOrEqual(left, right rdf.Term) (rdf.Term, error) {
	cmp, err := e.compareTerms(left, right)
	if err != nil {
		return nil, err
	}
	return rdf.NewBooleanLiteral(cmp <= 0), nil
}

func (e *Evaluator) evaluateGreaterThan(left, right rdf.Term) (rdf.Term, error) {
	cmp, err := e.compareTerms(left, right)
	if err != nil {
		return nil, err
	}
	return rdf.NewBooleanLiteral(cmp > 0), nil
}

func (e *Evaluator) evaluateGreaterThanOrEqual(left, right rdf.Term) (rdf.Term, error) {
	cmp, err := e.compareTerms(left, right)
	if err != nil {
		return nil, err
	}
	return rdf.NewBooleanLiteral(cmp >= 0), nil
}

// numericCompare compares two terms as numerics under the promotion
// ladder, returning ok=false if either side isn't numeric (so callers
// fall back to term equality / lexical ordering).
func (e *Evaluator) numericCompare(left, right rdf.Term) (int, bool) {
	lv, lok := e.extractNumericValue(left)
	rv, rok := e.extractNumericValue(right)
	if !lok || !rok {
		return 0, false
	}
	return lv.compare(rv), true
}

// compareTerms compares two terms for ordering.
// Returns: -1 if left < right, 0 if left == right, 1 if left > right
func (e *Evaluator) compareTerms(left, right rdf.Term) (int, error) {
	if cmp, ok := e.numericCompare(left, right); ok {
		return cmp, nil
	}

	// Try string comparison
	leftStr := left.String()
	rightStr := right.String()

	if leftStr < rightStr {
		return -1, nil
	} else if leftStr > rightStr {
		return 1, nil
	}
	return 0, nil
}

// Arithmetic operators

func (e *Evaluator) evaluateAdd(left, right rdf.Term) (rdf.Term, error) {
	lv, rv, err := e.numericOperands(left, right, "add")
	if err != nil {
		return nil, err
	}
	return lv.add(rv).toLiteral(), nil
}

func (e *Evaluator) evaluateSubtract(left, right rdf.Term) (rdf.Term, error) {
	lv, rv, err := e.numericOperands(left, right, "subtract")
	if err != nil {
		return nil, err
	}
	return lv.sub(rv).toLiteral(), nil
}

func (e *Evaluator) evaluateMultiply(left, right rdf.Term) (rdf.Term, error) {
	lv, rv, err := e.numericOperands(left, right, "multiply")
	if err != nil {
		return nil, err
	}
	return lv.mul(rv).toLiteral(), nil
}

func (e *Evaluator) evaluateDivide(left, right rdf.Term) (rdf.Term, error) {
	lv, rv, err := e.numericOperands(left, right, "divide")
	if err != nil {
		return nil, err
	}
	result, ok := lv.div(rv)
	if !ok {
		return nil, fmt.Errorf("division by zero")
	}
	return result.toLiteral(), nil
}

func (e *Evaluator) numericOperands(left, right rdf.Term, op string) (numericValue, numericValue, error) {
	lv, lok := e.extractNumericValue(left)
	rv, rok := e.extractNumericValue(right)
	if !lok || !rok {
		return numericValue{}, numericValue{}, fmt.Errorf("cannot %s non-numeric terms", op)
	}
	return lv, rv, nil
}

// Numeric promotion ladder (SPARQL 1.1 §17.1 / XPath op:numeric-*):
// xsd:integer is a subtype of xsd:decimal, which is promoted to
// xsd:float, which is promoted to xsd:double. The result of a binary
// numeric operation takes the wider of its two operands' types; integer
// and decimal share exact math::/big.Rat arithmetic via pkg/xsd.Decimal,
// while float and double share ordinary float64 arithmetic (their
// difference is only precision of the printed lexical form, which this
// evaluator does not model separately — float values round-trip through
// float64 same as double).
type numericKind int

const (
	numKindInteger numericKind = iota
	numKindDecimal
	numKindFloat
	numKindDouble
)

type numericValue struct {
	kind numericKind
	dec  xsd.Decimal // valid for numKindInteger, numKindDecimal
	f    float64     // valid for numKindFloat, numKindDouble
}

func (e *Evaluator) extractNumeric(term rdf.Term) (float64, bool) {
	v, ok := e.extractNumericValue(term)
	if !ok {
		return 0, false
	}
	return v.asFloat64(), true
}

// extractNumericValue extracts a numeric literal's value and position on
// the promotion ladder.
func (e *Evaluator) extractNumericValue(term rdf.Term) (numericValue, bool) {
	lit, ok := term.(*rdf.Literal)
	if !ok || lit.Datatype == nil {
		return numericValue{}, false
	}

	switch lit.Datatype.IRI {
	case "http://www.w3.org/2001/XMLSchema#integer",
		"http://www.w3.org/2001/XMLSchema#int",
		"http://www.w3.org/2001/XMLSchema#long",
		"http://www.w3.org/2001/XMLSchema#short",
		"http://www.w3.org/2001/XMLSchema#byte",
		"http://www.w3.org/2001/XMLSchema#nonNegativeInteger",
		"http://www.w3.org/2001/XMLSchema#positiveInteger",
		"http://www.w3.org/2001/XMLSchema#negativeInteger",
		"http://www.w3.org/2001/XMLSchema#nonPositiveInteger",
		"http://www.w3.org/2001/XMLSchema#unsignedLong",
		"http://www.w3.org/2001/XMLSchema#unsignedInt":
		d, ok := xsd.ParseDecimal(lit.Value)
		if !ok {
			return numericValue{}, false
		}
		return numericValue{kind: numKindInteger, dec: d}, true

	case "http://www.w3.org/2001/XMLSchema#decimal":
		d, ok := xsd.ParseDecimal(lit.Value)
		if !ok {
			return numericValue{}, false
		}
		return numericValue{kind: numKindDecimal, dec: d}, true

	case "http://www.w3.org/2001/XMLSchema#float":
		f, err := strconv.ParseFloat(lit.Value, 64)
		if err != nil {
			return numericValue{}, false
		}
		return numericValue{kind: numKindFloat, f: f}, true

	case "http://www.w3.org/2001/XMLSchema#double":
		f, err := strconv.ParseFloat(lit.Value, 64)
		if err != nil {
			return numericValue{}, false
		}
		return numericValue{kind: numKindDouble, f: f}, true

	default:
		return numericValue{}, false
	}
}

func (v numericValue) asFloat64() float64 {
	switch v.kind {
	case numKindFloat, numKindDouble:
		return v.f
	default:
		return v.dec.Float64()
	}
}

// promote widens v to at least kind k (never narrows).
func (v numericValue) promote(k numericKind) numericValue {
	if v.kind >= k {
		return v
	}
	switch k {
	case numKindDecimal:
		return numericValue{kind: numKindDecimal, dec: v.dec}
	case numKindFloat:
		return numericValue{kind: numKindFloat, f: v.asFloat64()}
	case numKindDouble:
		return numericValue{kind: numKindDouble, f: v.asFloat64()}
	default:
		return v
	}
}

func wideKind(a, b numericKind) numericKind {
	if a > b {
		return a
	}
	return b
}

func (a numericValue) add(b numericValue) numericValue {
	k := wideKind(a.kind, b.kind)
	a, b = a.promote(k), b.promote(k)
	if k == numKindFloat || k == numKindDouble {
		return numericValue{kind: k, f: a.f + b.f}
	}
	return numericValue{kind: k, dec: a.dec.Add(b.dec)}
}

func (a numericValue) sub(b numericValue) numericValue {
	k := wideKind(a.kind, b.kind)
	a, b = a.promote(k), b.promote(k)
	if k == numKindFloat || k == numKindDouble {
		return numericValue{kind: k, f: a.f - b.f}
	}
	return numericValue{kind: k, dec: a.dec.Sub(b.dec)}
}

func (a numericValue) mul(b numericValue) numericValue {
	k := wideKind(a.kind, b.kind)
	a, b = a.promote(k), b.promote(k)
	if k == numKindFloat || k == numKindDouble {
		return numericValue{kind: k, f: a.f * b.f}
	}
	return numericValue{kind: k, dec: a.dec.Mul(b.dec)}
}

// div always promotes at least to decimal, per XPath op:numeric-divide
// (dividing two integers yields a decimal, not a truncated integer).
func (a numericValue) div(b numericValue) (numericValue, bool) {
	k := wideKind(wideKind(a.kind, b.kind), numKindDecimal)
	a, b = a.promote(k), b.promote(k)
	if k == numKindFloat || k == numKindDouble {
		if b.f == 0 {
			return numericValue{}, false
		}
		return numericValue{kind: k, f: a.f / b.f}, true
	}
	res, ok := a.dec.Div(b.dec)
	if !ok {
		return numericValue{}, false
	}
	return numericValue{kind: k, dec: res}, true
}

func (a numericValue) negate() numericValue {
	switch a.kind {
	case numKindFloat, numKindDouble:
		return numericValue{kind: a.kind, f: -a.f}
	default:
		return numericValue{kind: a.kind, dec: a.dec.Neg()}
	}
}

func (a numericValue) compare(b numericValue) int {
	k := wideKind(a.kind, b.kind)
	a, b = a.promote(k), b.promote(k)
	if k == numKindFloat || k == numKindDouble {
		switch {
		case a.f < b.f:
			return -1
		case a.f > b.f:
			return 1
		default:
			return 0
		}
	}
	return a.dec.Cmp(b.dec)
}

// decimalWholePart strips a trailing ".0000..." fractional part from
// xsd.Decimal's canonical lexical form, for rendering an exact-integer
// result as an xsd:integer literal.
func decimalWholePart(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			return s[:i]
		}
	}
	return s
}

func (v numericValue) toLiteral() rdf.Term {
	switch v.kind {
	case numKindInteger:
		if n, err := strconv.ParseInt(decimalWholePart(v.dec.String()), 10, 64); err == nil {
			return rdf.NewIntegerLiteral(n)
		}
		return rdf.NewLiteralWithDatatype(v.dec.String(), rdf.XSDDecimal)
	case numKindDecimal:
		return rdf.NewLiteralWithDatatype(v.dec.String(), rdf.XSDDecimal)
	case numKindFloat:
		return rdf.NewFloatLiteral(v.f)
	default:
		return rdf.NewDoubleLiteral(v.f)
	}
}

// createNumericLiteral builds a numeric literal from a float64 result,
// widened to match the promotion of its two source operands — used by
// functions.go's unary numeric builtins (ABS, CEIL, FLOOR, ROUND) where
// the math is done in float64 but the result type still follows the
// ladder.
func (e *Evaluator) createNumericLiteral(value float64, left, right rdf.Term) rdf.Term {
	lv, lok := e.extractNumericValue(left)
	rv, rok := e.extractNumericValue(right)
	k := numKindDouble
	if lok && rok {
		k = wideKind(lv.kind, rv.kind)
	} else if lok {
		k = lv.kind
	}
	switch k {
	case numKindInteger:
		return rdf.NewIntegerLiteral(int64(value))
	case numKindDecimal:
		d, _ := xsd.ParseDecimal(strconv.FormatFloat(value, 'f', -1, 64))
		return rdf.NewLiteralWithDatatype(d.String(), rdf.XSDDecimal)
	case numKindFloat:
		return rdf.NewFloatLiteral(value)
	default:
		return rdf.NewDoubleLiteral(value)
	}
}
