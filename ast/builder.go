// Copyright 2026 The Biscuit Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package ast

import (
	"strings"

	"github.com/eclipse-biscuit/biscuit-go/crypto"
	"github.com/eclipse-biscuit/biscuit-go/datalog"
)

// Predicate is a named pattern over terms.
type Predicate struct {
	Name  string
	Terms []Term
}

// Pred builds a predicate.
func Pred(name string, terms ...Term) Predicate {
	return Predicate{Name: name, Terms: terms}
}

func (p Predicate) String() string {
	parts := make([]string, 0, len(p.Terms))
	for _, t := range p.Terms {
		parts = append(parts, t.String())
	}
	return p.Name + "(" + strings.Join(parts, ", ") + ")"
}

// Fact is a predicate over ground terms.
type Fact struct {
	Predicate Predicate
}

// NewFact builds a fact.
func NewFact(name string, terms ...Term) Fact {
	return Fact{Predicate: Pred(name, terms...)}
}

func (f Fact) String() string {
	return f.Predicate.String()
}

// ScopeKind discriminates trust scope elements.
type ScopeKind int

const (
	// ScopeAuthority trusts the authority block.
	ScopeAuthority ScopeKind = iota

	// ScopePrevious trusts all earlier blocks.
	ScopePrevious

	// ScopePublicKey trusts blocks externally signed by PublicKey.
	ScopePublicKey
)

// Scope is one trust scope element.
type Scope struct {
	Kind      ScopeKind
	PublicKey crypto.PublicKey
}

func (s Scope) String() string {
	switch s.Kind {
	case ScopeAuthority:
		return "authority"
	case ScopePrevious:
		return "previous"
	case ScopePublicKey:
		return s.PublicKey.String()
	}
	return ""
}

// Rule derives its head from body matches satisfying the expressions.
type Rule struct {
	Head        Predicate
	Body        []Predicate
	Expressions []Expression
	Scopes      []Scope
}

// NewRule builds a rule.
func NewRule(head Predicate, body ...Predicate) Rule {
	return Rule{Head: head, Body: body}
}

// WithExpressions appends constraint expressions to the rule.
func (r Rule) WithExpressions(exprs ...Expression) Rule {
	r.Expressions = append(r.Expressions, exprs...)
	return r
}

// Trusting appends trust scope elements to the rule.
func (r Rule) Trusting(scopes ...Scope) Rule {
	r.Scopes = append(r.Scopes, scopes...)
	return r
}

func (r Rule) bodyString() string {
	parts := make([]string, 0, len(r.Body)+len(r.Expressions))
	for _, p := range r.Body {
		parts = append(parts, p.String())
	}
	for _, e := range r.Expressions {
		parts = append(parts, e.String())
	}
	out := strings.Join(parts, ", ")
	if len(r.Scopes) > 0 {
		scopes := make([]string, 0, len(r.Scopes))
		for _, s := range r.Scopes {
			scopes = append(scopes, s.String())
		}
		out += " trusting " + strings.Join(scopes, ", ")
	}
	return out
}

func (r Rule) String() string {
	return r.Head.String() + " <- " + r.bodyString()
}

// CheckKind mirrors the datalog check modes.
type CheckKind = datalog.CheckKind

// Check kinds.
const (
	CheckIf  = datalog.CheckOne
	CheckAll = datalog.CheckAll
	RejectIf = datalog.CheckReject
)

// Check is a disjunction of queries with a kind.
type Check struct {
	Queries []Rule
	Kind    CheckKind
}

// NewCheck builds a check over one or more queries.
func NewCheck(kind CheckKind, queries ...Rule) Check {
	return Check{Queries: queries, Kind: kind}
}

func (c Check) String() string {
	var kind string
	switch c.Kind {
	case CheckIf:
		kind = "check if"
	case CheckAll:
		kind = "check all"
	case RejectIf:
		kind = "reject if"
	}
	parts := make([]string, 0, len(c.Queries))
	for _, q := range c.Queries {
		parts = append(parts, q.bodyString())
	}
	return kind + " " + strings.Join(parts, " or ")
}

// PolicyKind is the verdict of a policy.
type PolicyKind int

const (
	// Allow authorizes when the policy matches.
	Allow PolicyKind = iota

	// Deny refuses when the policy matches.
	Deny
)

// Policy is an ordered allow/deny query disjunction.
type Policy struct {
	Queries []Rule
	Kind    PolicyKind
}

// NewPolicy builds a policy over one or more queries.
func NewPolicy(kind PolicyKind, queries ...Rule) Policy {
	return Policy{Queries: queries, Kind: kind}
}

// AllowIf is shorthand for a single-query allow policy.
func AllowIf(query Rule) Policy {
	return NewPolicy(Allow, query)
}

// DenyIf is shorthand for a single-query deny policy.
func DenyIf(query Rule) Policy {
	return NewPolicy(Deny, query)
}

// True is the trivial always-matching query, for "allow if true".
func True() Rule {
	return Rule{
		Head:        Pred("query"),
		Expressions: []Expression{{Ops: []Op{OpValue{Term: Bool(true)}}}},
	}
}

func (p Policy) String() string {
	kind := "allow if"
	if p.Kind == Deny {
		kind = "deny if"
	}
	parts := make([]string, 0, len(p.Queries))
	for _, q := range p.Queries {
		parts = append(parts, q.bodyString())
	}
	return kind + " " + strings.Join(parts, " or ")
}

// Expression is a builder-level stack expression.
type Expression struct {
	Ops []Op
}

// Op is one builder-level stack operation.
type Op interface {
	isAstOp()
}

// OpValue pushes a term.
type OpValue struct {
	Term Term
}

// OpUnary applies a unary operation.
type OpUnary struct {
	Kind datalog.UnaryKind

	// FFIName is the extern function name, for datalog.UnaryFfi.
	FFIName string
}

// OpBinary applies a binary operation.
type OpBinary struct {
	Kind datalog.BinaryKind

	// FFIName is the extern function name, for datalog.BinaryFfi.
	FFIName string
}

// OpClosure pushes a deferred op sequence with named parameters.
type OpClosure struct {
	Params []string
	Ops    []Op
}

func (OpValue) isAstOp()   {}
func (OpUnary) isAstOp()   {}
func (OpBinary) isAstOp()  {}
func (OpClosure) isAstOp() {}

func (e Expression) String() string {
	var stack []string
	for _, op := range e.Ops {
		switch op := op.(type) {
		case OpValue:
			stack = append(stack, op.Term.String())
		case OpUnary:
			if len(stack) < 1 {
				return "<invalid expression>"
			}
			v := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			switch op.Kind {
			case datalog.UnaryNegate:
				v = "!" + v
			case datalog.UnaryParens:
				v = "(" + v + ")"
			case datalog.UnaryLength:
				v += ".length()"
			case datalog.UnaryTypeOf:
				v += ".type()"
			case datalog.UnaryFfi:
				v += ".extern::" + op.FFIName + "()"
			}
			stack = append(stack, v)
		case OpBinary:
			if len(stack) < 2 {
				return "<invalid expression>"
			}
			right := stack[len(stack)-1]
			left := stack[len(stack)-2]
			stack = stack[:len(stack)-2]
			stack = append(stack, printBinaryAst(op, left, right))
		case OpClosure:
			body := Expression{Ops: op.Ops}.String()
			if len(op.Params) == 0 {
				stack = append(stack, body)
				continue
			}
			params := make([]string, 0, len(op.Params))
			for _, p := range op.Params {
				params = append(params, "$"+p)
			}
			stack = append(stack, strings.Join(params, ", ")+" -> "+body)
		}
	}
	if len(stack) != 1 {
		return "<invalid expression>"
	}
	return stack[0]
}

func printBinaryAst(op OpBinary, left, right string) string {
	switch op.Kind {
	case datalog.BinaryLessThan:
		return left + " < " + right
	case datalog.BinaryGreaterThan:
		return left + " > " + right
	case datalog.BinaryLessOrEqual:
		return left + " <= " + right
	case datalog.BinaryGreaterOrEqual:
		return left + " >= " + right
	case datalog.BinaryEqual:
		return left + " === " + right
	case datalog.BinaryNotEqual:
		return left + " !== " + right
	case datalog.BinaryHeterogeneousEqual:
		return left + " == " + right
	case datalog.BinaryHeterogeneousNotEqual:
		return left + " != " + right
	case datalog.BinaryContains:
		return left + ".contains(" + right + ")"
	case datalog.BinaryPrefix:
		return left + ".starts_with(" + right + ")"
	case datalog.BinarySuffix:
		return left + ".ends_with(" + right + ")"
	case datalog.BinaryRegex:
		return left + ".matches(" + right + ")"
	case datalog.BinaryAdd:
		return left + " + " + right
	case datalog.BinarySub:
		return left + " - " + right
	case datalog.BinaryMul:
		return left + " * " + right
	case datalog.BinaryDiv:
		return left + " / " + right
	case datalog.BinaryAnd:
		return left + " &&! " + right
	case datalog.BinaryOr:
		return left + " ||! " + right
	case datalog.BinaryLazyAnd:
		return left + " && " + right
	case datalog.BinaryLazyOr:
		return left + " || " + right
	case datalog.BinaryIntersection:
		return left + ".intersection(" + right + ")"
	case datalog.BinaryUnion:
		return left + ".union(" + right + ")"
	case datalog.BinaryBitwiseAnd:
		return left + " & " + right
	case datalog.BinaryBitwiseOr:
		return left + " | " + right
	case datalog.BinaryBitwiseXor:
		return left + " ^ " + right
	case datalog.BinaryAll:
		return left + ".all(" + right + ")"
	case datalog.BinaryAny:
		return left + ".any(" + right + ")"
	case datalog.BinaryGet:
		return left + ".get(" + right + ")"
	case datalog.BinaryTryOr:
		return left + ".try_or(" + right + ")"
	case datalog.BinaryFfi:
		return left + ".extern::" + op.FFIName + "(" + right + ")"
	}
	return left + " ? " + right
}
