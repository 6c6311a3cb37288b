// Copyright 2026 The Biscuit Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package datalog implements the Biscuit authorization logic: a Datalog
// variant evaluated bottom-up over an origin-tagged fact store, where every
// rule and check carries a trust scope restricting which blocks' facts it
// may consume.
package datalog

import (
	"time"
)

type factEntry struct {
	origin Origin
	fact   Fact
	hash   uint64
}

// FactSet stores (origin set, fact) entries. Entries are kept in insertion
// order for deterministic enumeration; a hash index backs duplicate
// detection. A fact rediscovered with an origin set that a stored entry
// already covers (stored ⊆ new) is a duplicate; a rediscovery with a
// smaller origin set replaces the first stored entry it dominates. Other
// stored entries of the same fact that it also dominates are kept, so the
// store is not always a minimal antichain of the origin lattice.
type FactSet struct {
	entries []*factEntry
	index   map[uint64][]*factEntry
}

// NewFactSet returns an empty store.
func NewFactSet() *FactSet {
	return &FactSet{index: make(map[uint64][]*factEntry)}
}

// Len returns the number of stored entries.
func (s *FactSet) Len() int {
	return len(s.entries)
}

// Insert records a fact with its origin set. It reports whether the store
// gained information.
func (s *FactSet) Insert(origin Origin, fact Fact) bool {
	h := fact.Hash()
	for _, e := range s.index[h] {
		if !e.fact.Equal(fact) {
			continue
		}
		if origin.IsSuperset(e.origin) {
			// already known with equal or broader visibility
			return false
		}
		if e.origin.IsSuperset(origin) {
			// narrower origin set dominates the stored one
			e.origin = origin
			return true
		}
	}
	e := &factEntry{origin: origin, fact: fact, hash: h}
	s.entries = append(s.entries, e)
	s.index[h] = append(s.index[h], e)
	return true
}

// Contains reports whether fact is stored with exactly the given origin set.
func (s *FactSet) Contains(origin Origin, fact Fact) bool {
	for _, e := range s.index[fact.Hash()] {
		if e.fact.Equal(fact) && e.origin.Equal(origin) {
			return true
		}
	}
	return false
}

// Each invokes fn for every entry, in insertion order.
func (s *FactSet) Each(fn func(origin Origin, fact Fact)) {
	for _, e := range s.entries {
		fn(e.origin, e.fact)
	}
}

type scopedRule struct {
	origin  uint64
	trusted TrustedOrigins
	rule    Rule
}

// World holds the combined program of a token and its authorizer: the
// origin-tagged fact store and the rules loaded per block. It lives for a
// single authorization and is never mutated after the decision.
type World struct {
	facts *FactSet
	rules []scopedRule

	// protected predicates may only be derived by the authority block or
	// the authorizer; derivations from other origins are discarded without
	// error.
	protected map[uint64]struct{}
}

// NewWorld returns an empty world.
func NewWorld() *World {
	return &World{
		facts:     NewFactSet(),
		protected: make(map[uint64]struct{}),
	}
}

// AddFact records a fact under the given origin set.
func (w *World) AddFact(origin Origin, fact Fact) {
	w.facts.Insert(origin, fact)
}

// AddRule registers a rule for saturation, with the origin of its block and
// its resolved trust scope.
func (w *World) AddRule(origin uint64, trusted TrustedOrigins, rule Rule) {
	w.rules = append(w.rules, scopedRule{origin: origin, trusted: trusted, rule: rule})
}

// ProtectPredicate marks a predicate name as reserved to the authority
// block and the authorizer.
func (w *World) ProtectPredicate(name uint64) {
	w.protected[name] = struct{}{}
}

// Facts exposes the fact store for enumeration.
func (w *World) Facts() *FactSet {
	return w.facts
}

func predicateIsGround(p Predicate) bool {
	for _, t := range p.Terms {
		if !isGround(t) {
			return false
		}
	}
	return true
}

func (w *World) privileged(origin uint64) bool {
	return origin == 0 || origin == AuthorizerOrigin
}

// Run saturates the world to a fixed point under the given limits. It
// returns the number of iterations executed.
func (w *World) Run(symbols *TemporarySymbolTable, externs map[string]ExternFunc, limits RunLimits) (uint64, error) {
	clock := limits.Clock
	if clock == nil {
		clock = time.Now
	}
	deadline := clock().Add(limits.MaxTime)

	var iterations uint64
	for {
		if limits.Cancel != nil && limits.Cancel.Cancelled() {
			return iterations, &RunLimitError{Kind: RunLimitTimeout}
		}
		if clock().After(deadline) {
			return iterations, &RunLimitError{Kind: RunLimitTimeout}
		}

		type pending struct {
			origin Origin
			fact   Fact
		}
		var produced []pending

		for _, sr := range w.rules {
			sr := sr
			view := factView{facts: w.facts, trusted: sr.trusted}
			err := view.matchBody(sr.rule.Body, func(bindings map[uint32]Term, origin Origin) (bool, error) {
				ok, err := evaluateExpressions(sr.rule.Expressions, bindings, symbols, externs)
				if err != nil {
					return false, err
				}
				if !ok {
					return true, nil
				}
				head := Predicate{Name: sr.rule.Head.Name, Terms: make([]Term, len(sr.rule.Head.Terms))}
				for i, t := range sr.rule.Head.Terms {
					head.Terms[i] = substitute(t, bindings)
				}
				fact := Fact{Predicate: head}
				if !predicateIsGround(head) {
					// a head bound only by itself never materializes
					return true, nil
				}
				if !w.privileged(sr.origin) {
					if _, reserved := w.protected[head.Name]; reserved {
						return true, nil
					}
				}
				factOrigin := origin.Union(NewOrigin(sr.origin))
				produced = append(produced, pending{origin: factOrigin, fact: fact})
				return true, nil
			})
			if err != nil {
				return iterations, err
			}
		}

		inserted := 0
		for _, p := range produced {
			if w.facts.Insert(p.origin, p.fact) {
				inserted++
			}
		}
		iterations++

		if uint64(w.facts.Len()) > limits.MaxFacts {
			return iterations, &RunLimitError{Kind: RunLimitFacts}
		}
		if inserted == 0 {
			return iterations, nil
		}
		if iterations >= limits.MaxIterations {
			return iterations, &RunLimitError{Kind: RunLimitIterations}
		}
	}
}

// QueryMatch reports whether the rule-shaped query has at least one body
// assignment satisfying its expressions, under the given trust scope.
func (w *World) QueryMatch(rule Rule, trusted TrustedOrigins, symbols *TemporarySymbolTable, externs map[string]ExternFunc) (bool, error) {
	view := factView{facts: w.facts, trusted: trusted}
	matched := false
	err := view.matchBody(rule.Body, func(bindings map[uint32]Term, _ Origin) (bool, error) {
		ok, err := evaluateExpressions(rule.Expressions, bindings, symbols, externs)
		if err != nil {
			return false, err
		}
		if ok {
			matched = true
			return false, nil
		}
		return true, nil
	})
	return matched, err
}

// QueryMatchAll reports whether every body assignment of the query
// satisfies its expressions. It is false when the body has no assignment.
func (w *World) QueryMatchAll(rule Rule, trusted TrustedOrigins, symbols *TemporarySymbolTable, externs map[string]ExternFunc) (bool, error) {
	view := factView{facts: w.facts, trusted: trusted}
	matched := false
	holds := true
	err := view.matchBody(rule.Body, func(bindings map[uint32]Term, _ Origin) (bool, error) {
		matched = true
		ok, err := evaluateExpressions(rule.Expressions, bindings, symbols, externs)
		if err != nil {
			return false, err
		}
		if !ok {
			holds = false
			return false, nil
		}
		return true, nil
	})
	if err != nil {
		return false, err
	}
	return matched && holds, nil
}

// QueryAll applies a query rule once and returns the facts it produces,
// without inserting them into the world. Non-ground heads are skipped.
func (w *World) QueryAll(rule Rule, trusted TrustedOrigins, symbols *TemporarySymbolTable, externs map[string]ExternFunc) ([]Fact, error) {
	view := factView{facts: w.facts, trusted: trusted}
	seen := NewFactSet()
	var out []Fact
	err := view.matchBody(rule.Body, func(bindings map[uint32]Term, origin Origin) (bool, error) {
		ok, err := evaluateExpressions(rule.Expressions, bindings, symbols, externs)
		if err != nil {
			return false, err
		}
		if !ok {
			return true, nil
		}
		head := Predicate{Name: rule.Head.Name, Terms: make([]Term, len(rule.Head.Terms))}
		for i, t := range rule.Head.Terms {
			head.Terms[i] = substitute(t, bindings)
		}
		if !predicateIsGround(head) {
			return true, nil
		}
		fact := Fact{Predicate: head}
		if seen.Insert(Origin{}, fact) {
			out = append(out, fact)
		}
		return true, nil
	})
	return out, err
}
