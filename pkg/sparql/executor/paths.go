package executor

import (
	"fmt"

	"github.com/aleksaelezovic/trigo/pkg/rdf"
	"github.com/aleksaelezovic/trigo/pkg/sparql/parser"
	"github.com/aleksaelezovic/trigo/pkg/store"
)

// pathEndpoint is one side of a property path pattern: either a bound
// term or an unbound slot to enumerate.
type pathEndpoint struct {
	term rdf.Term // nil when unbound
}

// endpointFromTermOrVariable converts a triple pattern's subject/object
// slot to a path endpoint. Like createScanIterator, this does not
// consult an outer join's bindings — a variable is always treated as
// free here, and any incompatibility with an outer binding is caught by
// the enclosing join's mergeBindings instead.
func endpointFromTermOrVariable(tov parser.TermOrVariable) pathEndpoint {
	if !tov.IsVariable() {
		return pathEndpoint{term: tov.Term}
	}
	return pathEndpoint{}
}

// pathPair is one (subject, object) solution of a path match.
type pathPair struct {
	s, o rdf.Term
}

// pathMatcher evaluates property path expressions (§4.6 rewrites, §4.8
// "Property-path closure") against the store by decomposing the path
// grammar into direct-edge scans, joined/unioned/inverted per the shape
// of the path tree, with a visited-set BFS for the `+`/`*` closures so
// cyclic data terminates.
type pathMatcher struct {
	store *store.TripleStore
	graph any // nil (default graph), an rdf.Term, or a *store.Variable — forwarded to store.Pattern.Graph
}

// match returns every (s,o) pair connecting s and o (bound or not) via path.
func (m *pathMatcher) match(path *parser.PathExpression, s, o pathEndpoint) ([]pathPair, error) {
	switch path.Type {
	case parser.PathTypePredicate:
		return m.matchPredicate(path.Predicate, s, o)
	case parser.PathTypeInverse:
		pairs, err := m.match(path.Sub, o, s)
		if err != nil {
			return nil, err
		}
		return swapPairs(pairs), nil
	case parser.PathTypeSequence:
		return m.matchSequence(path.Left, path.Right, s, o)
	case parser.PathTypeAlternative:
		left, err := m.match(path.Left, s, o)
		if err != nil {
			return nil, err
		}
		right, err := m.match(path.Right, s, o)
		if err != nil {
			return nil, err
		}
		return dedupPairs(append(left, right...)), nil
	case parser.PathTypeZeroOrOne:
		return m.matchZeroOrOne(path.Sub, s, o)
	case parser.PathTypeZeroOrMore:
		one, err := m.matchOneOrMore(path.Sub, s, o)
		if err != nil {
			return nil, err
		}
		zero, err := m.matchIdentity(s, o)
		if err != nil {
			return nil, err
		}
		return dedupPairs(append(one, zero...)), nil
	case parser.PathTypeOneOrMore:
		return m.matchOneOrMore(path.Sub, s, o)
	case parser.PathTypeNegatedSet:
		return m.matchNegatedSet(path.NegatedSet, s, o)
	default:
		return nil, fmt.Errorf("unsupported property path type: %v", path.Type)
	}
}

func (m *pathMatcher) matchPredicate(pred *rdf.NamedNode, s, o pathEndpoint) ([]pathPair, error) {
	pattern := &store.Pattern{
		Subject:   endpointPattern(s),
		Predicate: pred,
		Object:    endpointPattern(o),
		Graph:     m.graph,
	}
	it, err := m.store.Query(pattern)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var pairs []pathPair
	for it.Next() {
		q, err := it.Quad()
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, pathPair{s: q.Subject, o: q.Object})
	}
	return pairs, nil
}

func (m *pathMatcher) matchSequence(left, right *parser.PathExpression, s, o pathEndpoint) ([]pathPair, error) {
	leftPairs, err := m.match(left, s, pathEndpoint{})
	if err != nil {
		return nil, err
	}
	var out []pathPair
	for _, lp := range leftPairs {
		rightPairs, err := m.match(right, pathEndpoint{term: lp.o}, o)
		if err != nil {
			return nil, err
		}
		for _, rp := range rightPairs {
			out = append(out, pathPair{s: lp.s, o: rp.o})
		}
	}
	return dedupPairs(out), nil
}

// matchZeroOrOne is the reflexive identity pair unioned with one direct
// step, per spec §9's resolution of the p+/p*/p? ambiguity: p? includes
// identity even when no edge supports it.
func (m *pathMatcher) matchZeroOrOne(sub *parser.PathExpression, s, o pathEndpoint) ([]pathPair, error) {
	direct, err := m.match(sub, s, o)
	if err != nil {
		return nil, err
	}
	identity, err := m.matchIdentity(s, o)
	if err != nil {
		return nil, err
	}
	return dedupPairs(append(direct, identity...)), nil
}

// matchIdentity produces the reflexive (t,t) pairs for p?/p*. When both
// endpoints are unbound, identity is restricted to terms seen on either
// side of the stored quads (the engine has no way to enumerate "every
// term in the universe", so it approximates with every term that
// appears as a subject or object anywhere) rather than the empty set.
func (m *pathMatcher) matchIdentity(s, o pathEndpoint) ([]pathPair, error) {
	if s.term != nil {
		return []pathPair{{s: s.term, o: s.term}}, nil
	}
	if o.term != nil {
		return []pathPair{{s: o.term, o: o.term}}, nil
	}
	terms, err := m.allTerms()
	if err != nil {
		return nil, err
	}
	pairs := make([]pathPair, 0, len(terms))
	for _, t := range terms {
		pairs = append(pairs, pathPair{s: t, o: t})
	}
	return pairs, nil
}

func (m *pathMatcher) allTerms() ([]rdf.Term, error) {
	pattern := &store.Pattern{
		Subject:   store.NewVariable("__s"),
		Predicate: store.NewVariable("__p"),
		Object:    store.NewVariable("__o"),
		Graph:     m.graph,
	}
	it, err := m.store.Query(pattern)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	seen := make(map[string]rdf.Term)
	for it.Next() {
		q, err := it.Quad()
		if err != nil {
			return nil, err
		}
		seen[q.Subject.String()] = q.Subject
		seen[q.Object.String()] = q.Object
	}
	out := make([]rdf.Term, 0, len(seen))
	for _, t := range seen {
		out = append(out, t)
	}
	return out, nil
}

// matchOneOrMore implements `sub+`: BFS closure requiring at least one
// traversed edge (§9's resolution: p+ never includes reflexive identity
// on its own, even if the endpoints already coincide).
func (m *pathMatcher) matchOneOrMore(sub *parser.PathExpression, s, o pathEndpoint) ([]pathPair, error) {
	switch {
	case s.term != nil:
		reached, err := m.closureFrom(sub, s.term, false)
		if err != nil {
			return nil, err
		}
		return filterByEndpoint(reached, s.term, o, false), nil
	case o.term != nil:
		reached, err := m.closureFrom(sub, o.term, true)
		if err != nil {
			return nil, err
		}
		return filterByEndpoint(reached, o.term, s, true), nil
	default:
		// Both endpoints unbound: seed the closure from every distinct
		// subject reachable via one direct step of sub, then close each.
		seeds, err := m.match(sub, pathEndpoint{}, pathEndpoint{})
		if err != nil {
			return nil, err
		}
		seen := make(map[string]bool)
		var out []pathPair
		for _, seed := range seeds {
			key := seed.s.String()
			if seen[key] {
				continue
			}
			seen[key] = true
			reached, err := m.closureFrom(sub, seed.s, false)
			if err != nil {
				return nil, err
			}
			for _, r := range reached {
				out = append(out, pathPair{s: seed.s, o: r})
			}
		}
		return dedupPairs(out), nil
	}
}

// closureFrom does a visited-set BFS over direct sub-steps from start,
// returning every node reached after one or more steps (start itself is
// only included if a cycle actually leads back to it).
func (m *pathMatcher) closureFrom(sub *parser.PathExpression, start rdf.Term, inverse bool) ([]rdf.Term, error) {
	visited := make(map[string]bool)
	var reached []rdf.Term
	frontier := []rdf.Term{start}
	for len(frontier) > 0 {
		var next []rdf.Term
		for _, cur := range frontier {
			var pairs []pathPair
			var err error
			if inverse {
				pairs, err = m.match(sub, pathEndpoint{}, pathEndpoint{term: cur})
			} else {
				pairs, err = m.match(sub, pathEndpoint{term: cur}, pathEndpoint{})
			}
			if err != nil {
				return nil, err
			}
			for _, p := range pairs {
				step := p.o
				if inverse {
					step = p.s
				}
				key := step.String()
				if visited[key] {
					continue
				}
				visited[key] = true
				reached = append(reached, step)
				next = append(next, step)
			}
		}
		frontier = next
	}
	return reached, nil
}

func filterByEndpoint(reached []rdf.Term, fixed rdf.Term, other pathEndpoint, fixedIsObject bool) []pathPair {
	var out []pathPair
	for _, r := range reached {
		if other.term != nil && !other.term.Equals(r) {
			continue
		}
		if fixedIsObject {
			out = append(out, pathPair{s: r, o: fixed})
		} else {
			out = append(out, pathPair{s: fixed, o: r})
		}
	}
	return out
}

// matchNegatedSet implements `!(iri1|^iri2|...)`: an edge matches in the
// forward direction if its predicate is not in the non-inverted set, or
// in the inverse direction (object-to-subject) if its predicate is not
// in the inverted set.
func (m *pathMatcher) matchNegatedSet(alternatives []*parser.PathExpression, s, o pathEndpoint) ([]pathPair, error) {
	excludedForward := make(map[string]bool)
	excludedInverse := make(map[string]bool)
	for _, alt := range alternatives {
		if alt.Type == parser.PathTypeInverse && alt.Sub != nil && alt.Sub.Predicate != nil {
			excludedInverse[alt.Sub.Predicate.IRI] = true
		} else if alt.Predicate != nil {
			excludedForward[alt.Predicate.IRI] = true
		}
	}

	pattern := &store.Pattern{
		Subject:   endpointPattern(s),
		Predicate: store.NewVariable("__negp"),
		Object:    endpointPattern(o),
		Graph:     m.graph,
	}
	it, err := m.store.Query(pattern)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var out []pathPair
	for it.Next() {
		q, err := it.Quad()
		if err != nil {
			return nil, err
		}
		pred, ok := q.Predicate.(*rdf.NamedNode)
		if !ok {
			continue
		}
		if !excludedForward[pred.IRI] {
			out = append(out, pathPair{s: q.Subject, o: q.Object})
		}
		if !excludedInverse[pred.IRI] {
			out = append(out, pathPair{s: q.Object, o: q.Subject})
		}
	}
	return dedupPairs(out), nil
}

func endpointPattern(e pathEndpoint) any {
	if e.term != nil {
		return e.term
	}
	return store.NewVariable("__pe")
}

func swapPairs(pairs []pathPair) []pathPair {
	out := make([]pathPair, len(pairs))
	for i, p := range pairs {
		out[i] = pathPair{s: p.o, o: p.s}
	}
	return out
}

func dedupPairs(pairs []pathPair) []pathPair {
	seen := make(map[string]bool, len(pairs))
	out := make([]pathPair, 0, len(pairs))
	for _, p := range pairs {
		key := p.s.String() + "\x00" + p.o.String()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, p)
	}
	return out
}

// pathBindingIterator wraps a materialized set of path-matched pairs as
// a BindingIterator, binding Subject/Object variable names where the
// triple pattern used a variable rather than a fixed term.
type pathBindingIterator struct {
	pairs   []pathPair
	subject *parser.Variable
	object  *parser.Variable
	idx     int
}

func (it *pathBindingIterator) Next() bool {
	if it.idx >= len(it.pairs) {
		return false
	}
	it.idx++
	return true
}

func (it *pathBindingIterator) Binding() *store.Binding {
	p := it.pairs[it.idx-1]
	b := store.NewBinding()
	if it.subject != nil {
		b.Vars[it.subject.Name] = p.s
	}
	if it.object != nil {
		b.Vars[it.object.Name] = p.o
	}
	return b
}

func (it *pathBindingIterator) Close() error { return nil }
