package parser

import "github.com/aleksaelezovic/trigo/pkg/rdf"

// QueryType identifies which of the four SPARQL query forms a Query holds.
type QueryType int

const (
	QueryTypeSelect QueryType = iota
	QueryTypeAsk
	QueryTypeConstruct
	QueryTypeDescribe
)

// Query is the parse result: exactly one of Select/Ask/Construct/Describe
// is non-nil, selected by QueryType.
type Query struct {
	QueryType QueryType
	Select    *SelectQuery
	Ask       *AskQuery
	Construct *ConstructQuery
	Describe  *DescribeQuery
}

// SelectQuery holds a SELECT query's clauses. Variables is nil for SELECT *.
type SelectQuery struct {
	Distinct  bool
	Reduced   bool
	Variables []*Variable
	// ProjectExprs holds the expression for each projected variable that was
	// introduced via `(expr AS ?var)` rather than a bare variable reference,
	// keyed by variable name. A variable present in Variables but absent
	// here was projected directly from a WHERE-clause binding.
	ProjectExprs map[string]Expression
	Where        *GraphPattern
	GroupBy      []*GroupCondition
	Having       []*Filter
	OrderBy      []*OrderCondition
	Limit        *int
	Offset       *int
}

// AskQuery holds an ASK query's WHERE clause.
type AskQuery struct {
	Where *GraphPattern
}

// ConstructQuery holds a CONSTRUCT query's template and WHERE clause.
type ConstructQuery struct {
	Template []*TriplePattern
	Where    *GraphPattern
}

// DescribeQuery holds a DESCRIBE query. Resources is used for the static
// `DESCRIBE <iri> ...` form; Where is used for the dynamic
// `DESCRIBE ?var WHERE {...}` form. The two are not mutually exclusive:
// `DESCRIBE <iri> WHERE {...}` populates both.
type DescribeQuery struct {
	Resources []rdf.Term
	Where     *GraphPattern
}

// GraphPatternType distinguishes the shape of a GraphPattern node.
type GraphPatternType int

const (
	GraphPatternTypeBasic GraphPatternType = iota
	GraphPatternTypeOptional
	GraphPatternTypeMinus
	GraphPatternTypeUnion
	GraphPatternTypeGraph
	GraphPatternTypeValues
)

// ValuesClause is an inline VALUES data block: Variables names the bound
// columns, and each entry of Rows holds one expression per variable, in
// the same order, with a nil entry marking UNDEF for that column/row.
type ValuesClause struct {
	Variables []*Variable
	Rows      [][]Expression
}

// PatternElement preserves the textual order of triples/filters/binds
// within a single GraphPattern block, since the grammar lets them
// interleave arbitrarily (e.g. FILTER between two triple patterns).
type PatternElement struct {
	Triple *TriplePattern
	Bind   *Bind
	Filter *Filter
}

// GraphPattern is one `{ ... }` block. Patterns/Filters/Binds hold the
// block's direct triples/filters/binds; Children holds nested blocks
// (OPTIONAL, MINUS, UNION branches, GRAPH, and plain nested groups).
// Elements holds the same triples/binds in source order, for callers that
// need projection-variable discovery (SELECT *) to respect write order.
type GraphPattern struct {
	Type     GraphPatternType
	Graph    *GraphTerm    // set only when Type == GraphPatternTypeGraph
	Values   *ValuesClause // set only when Type == GraphPatternTypeValues
	Patterns []*TriplePattern
	Filters  []*Filter
	Binds    []*Bind
	Elements []PatternElement
	Children []*GraphPattern
}

// GraphTerm names a GRAPH clause's graph: either a bound IRI or a variable.
type GraphTerm struct {
	IRI      *rdf.NamedNode
	Variable *Variable
}

// TriplePattern is a single `subject predicate object` triple pattern,
// each slot either a bound term or a variable. Path is set instead of a
// meaningful Predicate when the predicate position used property path
// syntax (sequence, alternation, inverse, the `*`/`+`/`?` closures, or a
// negated property set) rather than a single IRI or variable.
type TriplePattern struct {
	Subject   TermOrVariable
	Predicate TermOrVariable
	Object    TermOrVariable
	Path      *PathExpression
}

// PathType identifies the shape of a property path expression.
type PathType int

const (
	// PathTypePredicate is a plain IRI predicate (Predicate set, no children).
	PathTypePredicate PathType = iota
	// PathTypeInverse is ^path: traverse path backwards.
	PathTypeInverse
	// PathTypeSequence is path1/path2: path1 then path2.
	PathTypeSequence
	// PathTypeAlternative is path1|path2: either path1 or path2.
	PathTypeAlternative
	// PathTypeZeroOrOne is path?.
	PathTypeZeroOrOne
	// PathTypeZeroOrMore is path*.
	PathTypeZeroOrMore
	// PathTypeOneOrMore is path+.
	PathTypeOneOrMore
	// PathTypeNegatedSet is !(iri1|^iri2|...): any predicate except the
	// listed ones, each optionally inverted.
	PathTypeNegatedSet
)

// PathExpression is a node in a SPARQL 1.1 property path expression, used
// in place of a plain predicate in a TriplePattern.
type PathExpression struct {
	Type       PathType
	Predicate  *rdf.NamedNode  // PathTypePredicate
	Left       *PathExpression // PathTypeSequence, PathTypeAlternative
	Right      *PathExpression // PathTypeSequence, PathTypeAlternative
	Sub        *PathExpression // PathTypeInverse, PathTypeZeroOrOne/More, PathTypeOneOrMore
	NegatedSet []*PathExpression
}

// TermOrVariable holds exactly one of Term or Variable.
type TermOrVariable struct {
	Term     rdf.Term
	Variable *Variable
}

// IsVariable reports whether this slot is a variable rather than a bound term.
func (t TermOrVariable) IsVariable() bool { return t.Variable != nil }

// Variable is a SPARQL query variable, named without its leading ?/$.
type Variable struct {
	Name string
}

// Filter is a FILTER clause. For FILTER EXISTS/NOT EXISTS, Expression is
// an *ExistsExpression.
type Filter struct {
	Expression Expression
}

// Bind is a BIND(expression AS ?variable) clause.
type Bind struct {
	Expression Expression
	Variable   *Variable
}

// GroupCondition is one GROUP BY key: either a bare variable (Variable
// set, Expression nil) or a parenthesized grouping expression, optionally
// bound to an output variable via AS (Expression always set in that case;
// Variable set only when AS was used).
type GroupCondition struct {
	Variable   *Variable
	Expression Expression
}

// OrderCondition is one ORDER BY key.
type OrderCondition struct {
	Expression Expression
	Ascending  bool
}

// Operator identifies a unary or binary expression operator.
type Operator int

const (
	OpAnd Operator = iota
	OpOr
	OpNot
	OpEqual
	OpNotEqual
	OpLessThan
	OpLessThanOrEqual
	OpGreaterThan
	OpGreaterThanOrEqual
	OpAdd
	OpSubtract
	OpMultiply
	OpDivide
)

// Expression is any node in a SPARQL filter/bind/order/group expression
// tree. The concrete types below are its only implementations.
type Expression interface {
	expressionNode()
}

// BinaryExpression applies a binary Operator to Left and Right.
type BinaryExpression struct {
	Left     Expression
	Operator Operator
	Right    Expression
}

// UnaryExpression applies a unary Operator to Operand.
type UnaryExpression struct {
	Operator Operator
	Operand  Expression
}

// VariableExpression evaluates to a variable's bound value. A Variable
// named "*" is the COUNT(*) marker, not a real variable reference.
type VariableExpression struct {
	Variable *Variable
}

// LiteralExpression evaluates to a fixed rdf.Term.
type LiteralExpression struct {
	Literal rdf.Term
}

// FunctionCallExpression is a built-in or extension function call.
// Function holds the expanded function IRI, or a bare keyword
// (COUNT/SUM/AVG/MIN/MAX/GROUP_CONCAT/SAMPLE and the XPath function
// library) for built-ins that aren't addressed by IRI.
type FunctionCallExpression struct {
	Function  string
	Arguments []Expression
	Distinct  bool
}

// InExpression implements `expr IN (...)`/`expr NOT IN (...)`.
type InExpression struct {
	Not        bool
	Expression Expression
	Values     []Expression
}

// ExistsExpression implements `EXISTS {...}`/`NOT EXISTS {...}`.
type ExistsExpression struct {
	Not     bool
	Pattern GraphPattern
}

func (*BinaryExpression) expressionNode()       {}
func (*UnaryExpression) expressionNode()        {}
func (*VariableExpression) expressionNode()     {}
func (*LiteralExpression) expressionNode()      {}
func (*FunctionCallExpression) expressionNode() {}
func (*InExpression) expressionNode()           {}
func (*ExistsExpression) expressionNode()       {}
