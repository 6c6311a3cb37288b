// Copyright 2026 The Biscuit Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package datalog

import (
	"github.com/cespare/xxhash/v2"
)

// Predicate is a name applied to an ordered list of terms.
type Predicate struct {
	Name  uint64
	Terms []Term
}

// Equal reports structural equality.
func (p Predicate) Equal(other Predicate) bool {
	if p.Name != other.Name || len(p.Terms) != len(other.Terms) {
		return false
	}
	for i := range p.Terms {
		if !p.Terms[i].Equal(other.Terms[i]) {
			return false
		}
	}
	return true
}

// Fact is a predicate over ground terms.
type Fact struct {
	Predicate Predicate
}

// Equal reports structural equality.
func (f Fact) Equal(other Fact) bool {
	return f.Predicate.Equal(other.Predicate)
}

// Hash returns a structural hash of the fact.
func (f Fact) Hash() uint64 {
	h := xxhash.New()
	var buf [8]byte
	putUint64(buf[:], f.Predicate.Name)
	h.Write(buf[:])
	for _, t := range f.Predicate.Terms {
		hashTerm(h, t)
	}
	return h.Sum64()
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

// Rule derives head facts from conjunctive body matches constrained by
// expressions, under a trust scope.
type Rule struct {
	Head        Predicate
	Body        []Predicate
	Expressions []Expression
	Scopes      []Scope
}

// CheckKind selects how a check's queries decide.
type CheckKind int32

const (
	// CheckOne succeeds if any query produces at least one match.
	CheckOne CheckKind = 0

	// CheckAll succeeds if every body match of every query satisfies the
	// query's expressions, and there was at least one match.
	CheckAll CheckKind = 1

	// CheckReject succeeds if no query matches.
	CheckReject CheckKind = 2
)

// Check is a disjunction of rule-shaped queries with a decision mode.
type Check struct {
	Queries []Rule
	Kind    CheckKind
}

// bodyVariables collects the variables bound by the rule body.
func (r Rule) bodyVariables() map[uint32]struct{} {
	vars := make(map[uint32]struct{})
	for _, p := range r.Body {
		for _, t := range p.Terms {
			collectVariables(t, vars)
		}
	}
	return vars
}

func collectVariables(t Term, vars map[uint32]struct{}) {
	switch x := t.(type) {
	case Variable:
		vars[uint32(x)] = struct{}{}
	case Array:
		for _, e := range x {
			collectVariables(e, vars)
		}
	case Map:
		for _, e := range x.entries {
			collectVariables(e.Value, vars)
		}
	}
}

// Validate checks well-formedness: every variable in the head or in an
// expression must be bound by the body. Closure parameters bind their own
// occurrences.
func (r Rule) Validate() error {
	bound := r.bodyVariables()

	headVars := make(map[uint32]struct{})
	for _, t := range r.Head.Terms {
		collectVariables(t, headVars)
	}
	for v := range headVars {
		if _, ok := bound[v]; !ok {
			return unknownVariable(v)
		}
	}

	for _, e := range r.Expressions {
		if err := validateOps(e.Ops, bound); err != nil {
			return err
		}
	}
	return nil
}

func validateOps(ops []Op, bound map[uint32]struct{}) error {
	for _, op := range ops {
		switch op := op.(type) {
		case Value:
			vars := make(map[uint32]struct{})
			collectVariables(op.Term, vars)
			for v := range vars {
				if _, ok := bound[v]; !ok {
					return unknownVariable(v)
				}
			}
		case ClosureOp:
			inner := make(map[uint32]struct{}, len(bound)+len(op.Params))
			for v := range bound {
				inner[v] = struct{}{}
			}
			for _, p := range op.Params {
				inner[p] = struct{}{}
			}
			if err := validateOps(op.Ops, inner); err != nil {
				return err
			}
		}
	}
	return nil
}

// matchTerms unifies a body pattern term with a fact term under the current
// bindings. Returns false when they cannot unify.
func matchTerms(pattern, value Term, bindings map[uint32]Term) bool {
	if v, ok := pattern.(Variable); ok {
		if bound, ok := bindings[uint32(v)]; ok {
			return bound.Equal(value)
		}
		bindings[uint32(v)] = value
		return true
	}
	return pattern.Equal(value)
}

// substitute replaces variables in t using bindings. The result may still
// contain variables if a binding is missing.
func substitute(t Term, bindings map[uint32]Term) Term {
	switch x := t.(type) {
	case Variable:
		if bound, ok := bindings[uint32(x)]; ok {
			return bound
		}
		return x
	case Array:
		out := make(Array, len(x))
		for i, e := range x {
			out[i] = substitute(e, bindings)
		}
		return out
	case Map:
		entries := make([]MapEntry, len(x.entries))
		for i, e := range x.entries {
			entries[i] = MapEntry{Key: e.Key, Value: substitute(e.Value, bindings)}
		}
		return NewMap(entries)
	default:
		return t
	}
}

// factView is the slice of the world a rule is allowed to see: the facts
// whose origin set is within the rule's trusted origins.
type factView struct {
	facts   *FactSet
	trusted TrustedOrigins
}

// matchBody enumerates every assignment of trusted facts to the body
// predicates, invoking yield with the bindings and the union of the
// contributing fact origins. yield returns false to stop the enumeration.
func (v factView) matchBody(body []Predicate, yield func(bindings map[uint32]Term, origin Origin) (bool, error)) error {
	bindings := make(map[uint32]Term)
	var step func(i int, origin Origin) (bool, error)
	step = func(i int, origin Origin) (bool, error) {
		if i == len(body) {
			return yield(bindings, origin)
		}
		pred := body[i]
		for _, e := range v.facts.entries {
			if !v.trusted.Contains(e.origin) {
				continue
			}
			f := e.fact
			if f.Predicate.Name != pred.Name || len(f.Predicate.Terms) != len(pred.Terms) {
				continue
			}
			// record which variables this predicate binds so they can be
			// undone before trying the next fact
			added := make([]uint32, 0, len(pred.Terms))
			ok := true
			for j := range pred.Terms {
				if pv, isVar := pred.Terms[j].(Variable); isVar {
					if _, bound := bindings[uint32(pv)]; !bound {
						added = append(added, uint32(pv))
					}
				}
				if !matchTerms(pred.Terms[j], f.Predicate.Terms[j], bindings) {
					ok = false
					break
				}
			}
			if ok {
				cont, err := step(i+1, origin.Union(e.origin))
				if err != nil {
					return false, err
				}
				if !cont {
					return false, nil
				}
			}
			for _, bound := range added {
				delete(bindings, bound)
			}
		}
		return true, nil
	}
	_, err := step(0, Origin{})
	return err
}

// evaluateExpressions runs the rule's expressions under bindings; every one
// must produce boolean true. A non-boolean result is an execution error.
func evaluateExpressions(exprs []Expression, bindings map[uint32]Term, symbols *TemporarySymbolTable, externs map[string]ExternFunc) (bool, error) {
	for _, e := range exprs {
		res, err := e.Evaluate(bindings, symbols, externs)
		if err != nil {
			return false, err
		}
		b, ok := res.(Bool)
		if !ok {
			return false, ErrInvalidType
		}
		if !b {
			return false, nil
		}
	}
	return true, nil
}
