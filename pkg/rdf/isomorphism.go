package rdf

import (
	"fmt"
	"sort"
)

// AreGraphsIsomorphic checks if two sets of triples are isomorphic,
// accounting for blank node label differences.
// Two graphs are isomorphic if there exists a bijection between their
// blank nodes such that when applied, the graphs are identical.
func AreGraphsIsomorphic(expected, actual []*Triple) bool {
	termsOf := func(t *Triple) []Term { return []Term{t.Subject, t.Object} }
	return isomorphic(expected, actual, termsOf, tripleKey)
}

// AreQuadsIsomorphic checks if two sets of quads are isomorphic,
// accounting for blank node label differences in both triples and graph names.
func AreQuadsIsomorphic(expected, actual []*Quad) bool {
	termsOf := func(q *Quad) []Term { return []Term{q.Subject, q.Object, q.Graph} }
	return isomorphic(expected, actual, termsOf, quadKey)
}

// isomorphic decides whether expected and actual are equal up to a
// bijective renaming of blank node labels. termsOf returns the components
// of an item (triple or quad) that may contain blank nodes; keyOf renders
// an item to a string key, applying an optional blank node mapping.
//
// The search is classic graph-isomorphism backtracking: candidate blank
// nodes are tried highest-degree first, and a partial mapping is pruned as
// soon as it produces an item with no match in actual.
func isomorphic[T any](expected, actual []T, termsOf func(T) []Term, keyOf func(T, map[string]string) string) bool {
	if len(expected) != len(actual) {
		return false
	}

	expectedBlanks := extractBlankLabels(expected, termsOf)
	actualBlanks := extractBlankLabels(actual, termsOf)
	if len(expectedBlanks) != len(actualBlanks) {
		return false
	}

	// If no blank nodes, use simple comparison
	if len(expectedBlanks) == 0 {
		return simpleCompare(expected, actual, keyOf)
	}

	// Sort blank nodes by degree (optimization: match high-degree nodes first)
	expectedBlanks = sortByDegree(expectedBlanks, expected, termsOf)
	actualBlanks = sortByDegree(actualBlanks, actual, termsOf)

	mapping := make(map[string]string)
	usedTargets := make(map[string]bool)
	return backtrack(expected, actual, expectedBlanks, actualBlanks, mapping, usedTargets, 0, termsOf, keyOf)
}

// extractBlankLabels extracts all unique blank node labels appearing in items
func extractBlankLabels[T any](items []T, termsOf func(T) []Term) []string {
	blanks := make(map[string]bool)
	for _, item := range items {
		for _, term := range termsOf(item) {
			extractBlanksFromTerm(term, blanks)
		}
	}

	result := make([]string, 0, len(blanks))
	for label := range blanks {
		result = append(result, label)
	}
	sort.Strings(result)
	return result
}

// extractBlanksFromTerm recursively extracts blank nodes from a term,
// including those inside TripleTerms, QuotedTriples, and ReifiedTriples
func extractBlanksFromTerm(term Term, blanks map[string]bool) {
	switch t := term.(type) {
	case *BlankNode:
		blanks[t.ID] = true
	case *TripleTerm:
		extractBlanksFromTerm(t.Subject, blanks)
		extractBlanksFromTerm(t.Predicate, blanks)
		extractBlanksFromTerm(t.Object, blanks)
	case *QuotedTriple:
		extractBlanksFromTerm(t.Subject, blanks)
		extractBlanksFromTerm(t.Predicate, blanks)
		extractBlanksFromTerm(t.Object, blanks)
	case *ReifiedTriple:
		extractBlanksFromTerm(t.Identifier, blanks)
		if t.Triple != nil {
			extractBlanksFromTerm(t.Triple.Subject, blanks)
			extractBlanksFromTerm(t.Triple.Predicate, blanks)
			extractBlanksFromTerm(t.Triple.Object, blanks)
		}
	}
}

// countBlanksInTerm recursively counts occurrences of blank nodes in a term,
// including those inside TripleTerms, QuotedTriples, and ReifiedTriples
func countBlanksInTerm(term Term, degrees map[string]int) {
	switch t := term.(type) {
	case *BlankNode:
		degrees[t.ID]++
	case *TripleTerm:
		countBlanksInTerm(t.Subject, degrees)
		countBlanksInTerm(t.Predicate, degrees)
		countBlanksInTerm(t.Object, degrees)
	case *QuotedTriple:
		countBlanksInTerm(t.Subject, degrees)
		countBlanksInTerm(t.Predicate, degrees)
		countBlanksInTerm(t.Object, degrees)
	case *ReifiedTriple:
		countBlanksInTerm(t.Identifier, degrees)
		if t.Triple != nil {
			countBlanksInTerm(t.Triple.Subject, degrees)
			countBlanksInTerm(t.Triple.Predicate, degrees)
			countBlanksInTerm(t.Triple.Object, degrees)
		}
	}
}

// sortByDegree sorts blank nodes by their degree (number of items they
// appear in), descending. This optimization helps backtracking by trying to
// match highly-connected nodes first.
func sortByDegree[T any](blanks []string, items []T, termsOf func(T) []Term) []string {
	degrees := make(map[string]int)
	for _, blank := range blanks {
		degrees[blank] = 0
	}

	for _, item := range items {
		for _, term := range termsOf(item) {
			countBlanksInTerm(term, degrees)
		}
	}

	sort.Slice(blanks, func(i, j int) bool {
		return degrees[blanks[i]] > degrees[blanks[j]]
	})

	return blanks
}

// simpleCompare compares two item sets without considering blank node isomorphism
func simpleCompare[T any](expected, actual []T, keyOf func(T, map[string]string) string) bool {
	expectedSet := make(map[string]bool)
	for _, item := range expected {
		expectedSet[keyOf(item, nil)] = true
	}

	for _, item := range actual {
		if !expectedSet[keyOf(item, nil)] {
			return false
		}
	}

	return true
}

// backtrack recursively tries to find a valid mapping between blank nodes
func backtrack[T any](expected, actual []T, expectedBlanks, actualBlanks []string,
	mapping map[string]string, usedTargets map[string]bool, index int,
	termsOf func(T) []Term, keyOf func(T, map[string]string) string) bool {

	// Base case: all blank nodes have been mapped
	if index == len(expectedBlanks) {
		return verifyMapping(expected, actual, mapping, keyOf)
	}

	currentBlank := expectedBlanks[index]

	// Try mapping current blank node to each candidate
	for _, candidateBlank := range actualBlanks {
		// Skip if this target blank node is already mapped
		if usedTargets[candidateBlank] {
			continue
		}

		mapping[currentBlank] = candidateBlank
		usedTargets[candidateBlank] = true

		// Early pruning: check if mapping is still consistent
		if isConsistentSoFar(expected, actual, mapping, termsOf, keyOf) {
			if backtrack(expected, actual, expectedBlanks, actualBlanks, mapping, usedTargets, index+1, termsOf, keyOf) {
				return true
			}
		}

		delete(mapping, currentBlank)
		delete(usedTargets, candidateBlank)
	}

	return false
}

// isTermFullyMapped recursively checks if all blank nodes in a term are mapped
func isTermFullyMapped(term Term, mapping map[string]string) bool {
	switch t := term.(type) {
	case *BlankNode:
		_, exists := mapping[t.ID]
		return exists
	case *TripleTerm:
		return isTermFullyMapped(t.Subject, mapping) &&
			isTermFullyMapped(t.Predicate, mapping) &&
			isTermFullyMapped(t.Object, mapping)
	case *QuotedTriple:
		return isTermFullyMapped(t.Subject, mapping) &&
			isTermFullyMapped(t.Predicate, mapping) &&
			isTermFullyMapped(t.Object, mapping)
	case *ReifiedTriple:
		if !isTermFullyMapped(t.Identifier, mapping) {
			return false
		}
		if t.Triple != nil {
			return isTermFullyMapped(t.Triple.Subject, mapping) &&
				isTermFullyMapped(t.Triple.Predicate, mapping) &&
				isTermFullyMapped(t.Triple.Object, mapping)
		}
		return true
	default:
		// Non-blank node terms are always "fully mapped"
		return true
	}
}

// isConsistentSoFar checks if the current partial mapping is consistent.
// This is an optimization to prune the search space early: for each
// expected item whose blank nodes are all currently mapped, its mapped
// form must already appear in actual.
func isConsistentSoFar[T any](expected, actual []T, mapping map[string]string,
	termsOf func(T) []Term, keyOf func(T, map[string]string) string) bool {

	for _, item := range expected {
		fullyMapped := true
		for _, term := range termsOf(item) {
			if !isTermFullyMapped(term, mapping) {
				fullyMapped = false
				break
			}
		}
		if !fullyMapped {
			continue
		}

		found := false
		mappedKey := keyOf(item, mapping)
		for _, actualItem := range actual {
			if keyOf(actualItem, nil) == mappedKey {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	return true
}

// verifyMapping checks if the given mapping makes expected and actual identical
func verifyMapping[T any](expected, actual []T, mapping map[string]string, keyOf func(T, map[string]string) string) bool {
	expectedMapped := make(map[string]bool)
	for _, item := range expected {
		expectedMapped[keyOf(item, mapping)] = true
	}

	actualSet := make(map[string]bool)
	for _, item := range actual {
		actualSet[keyOf(item, nil)] = true
	}

	if len(expectedMapped) != len(actualSet) {
		return false
	}

	for key := range expectedMapped {
		if !actualSet[key] {
			return false
		}
	}

	return true
}

// tripleKey creates a string key for a triple, applying blank node mapping if provided
func tripleKey(triple *Triple, mapping map[string]string) string {
	subject := termString(triple.Subject, mapping)
	predicate := termString(triple.Predicate, mapping)
	object := termString(triple.Object, mapping)
	return fmt.Sprintf("%s|%s|%s", subject, predicate, object)
}

// quadKey creates a string key for a quad, applying blank node mapping if provided
func quadKey(quad *Quad, mapping map[string]string) string {
	subject := termString(quad.Subject, mapping)
	predicate := termString(quad.Predicate, mapping)
	object := termString(quad.Object, mapping)
	graph := termString(quad.Graph, mapping)
	return fmt.Sprintf("%s|%s|%s|%s", subject, predicate, object, graph)
}

// termString converts a term to string, applying blank node mapping if applicable
func termString(term Term, mapping map[string]string) string {
	if mapping == nil {
		return term.String()
	}

	switch t := term.(type) {
	case *BlankNode:
		if mapped, exists := mapping[t.ID]; exists {
			return "_:" + mapped
		}
		return term.String()
	case *TripleTerm:
		subj := termString(t.Subject, mapping)
		pred := termString(t.Predicate, mapping)
		obj := termString(t.Object, mapping)
		return fmt.Sprintf("<<( %s %s %s )>>", subj, pred, obj)
	case *QuotedTriple:
		subj := termString(t.Subject, mapping)
		pred := termString(t.Predicate, mapping)
		obj := termString(t.Object, mapping)
		return fmt.Sprintf("<< %s %s %s >>", subj, pred, obj)
	case *ReifiedTriple:
		id := termString(t.Identifier, mapping)
		if t.Triple != nil {
			subj := termString(t.Triple.Subject, mapping)
			pred := termString(t.Triple.Predicate, mapping)
			obj := termString(t.Triple.Object, mapping)
			return fmt.Sprintf("<< %s %s %s ~ %s >>", subj, pred, obj, id)
		}
		return term.String()
	default:
		return term.String()
	}
}
