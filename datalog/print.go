// Copyright 2026 The Biscuit Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package datalog

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SymbolResolver resolves the indices found in interned terms for display:
// a symbol table, a temporary symbol table, or anything equivalent.
type SymbolResolver interface {
	Str(i uint64) (string, bool)
}

// KeyResolver resolves public key table indices to their display form
// (e.g. "ed25519/1055c7..."). Provided by the token layer when printing
// trust scopes.
type KeyResolver interface {
	KeyString(i uint64) (string, bool)
}

// PrintTerm renders a term in surface syntax.
func PrintTerm(t Term, symbols SymbolResolver) string {
	switch x := t.(type) {
	case Variable:
		if s, ok := symbols.Str(uint64(x)); ok {
			return "$" + s
		}
		return fmt.Sprintf("$%d", uint32(x))
	case Integer:
		return strconv.FormatInt(int64(x), 10)
	case String:
		if s, ok := symbols.Str(uint64(x)); ok {
			return strconv.Quote(s)
		}
		return fmt.Sprintf("<unknown symbol %d>", uint64(x))
	case Date:
		return time.Unix(int64(x), 0).UTC().Format(time.RFC3339)
	case Bytes:
		return "hex:" + hex.EncodeToString(x)
	case Bool:
		if x {
			return "true"
		}
		return "false"
	case Null:
		return "null"
	case Set:
		if x.Len() == 0 {
			return "{,}"
		}
		parts := make([]string, 0, x.Len())
		for _, e := range x.Elems() {
			parts = append(parts, PrintTerm(e, symbols))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case Array:
		parts := make([]string, 0, len(x))
		for _, e := range x {
			parts = append(parts, PrintTerm(e, symbols))
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case Map:
		if x.Len() == 0 {
			return "{}"
		}
		parts := make([]string, 0, x.Len())
		for _, e := range x.Entries() {
			var k string
			switch key := e.Key.(type) {
			case IntKey:
				k = strconv.FormatInt(int64(key), 10)
			case StrKey:
				if s, ok := symbols.Str(uint64(key)); ok {
					k = strconv.Quote(s)
				} else {
					k = fmt.Sprintf("<unknown symbol %d>", uint64(key))
				}
			}
			parts = append(parts, k+": "+PrintTerm(e.Value, symbols))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}
	return "<invalid term>"
}

// PrintPredicate renders name(terms...).
func PrintPredicate(p Predicate, symbols SymbolResolver) string {
	name, ok := symbols.Str(p.Name)
	if !ok {
		name = fmt.Sprintf("<unknown symbol %d>", p.Name)
	}
	parts := make([]string, 0, len(p.Terms))
	for _, t := range p.Terms {
		parts = append(parts, PrintTerm(t, symbols))
	}
	return name + "(" + strings.Join(parts, ", ") + ")"
}

// PrintFact renders a fact.
func PrintFact(f Fact, symbols SymbolResolver) string {
	return PrintPredicate(f.Predicate, symbols)
}

func printUnary(u UnaryOp, value string, symbols SymbolResolver) string {
	switch u.Kind {
	case UnaryNegate:
		return "!" + value
	case UnaryParens:
		return "(" + value + ")"
	case UnaryLength:
		return value + ".length()"
	case UnaryTypeOf:
		return value + ".type()"
	case UnaryFfi:
		name, _ := symbols.Str(u.FFIName)
		return fmt.Sprintf("%s.extern::%s()", value, name)
	}
	return value
}

func printBinary(b BinaryOp, left, right string, symbols SymbolResolver) string {
	switch b.Kind {
	case BinaryLessThan:
		return left + " < " + right
	case BinaryGreaterThan:
		return left + " > " + right
	case BinaryLessOrEqual:
		return left + " <= " + right
	case BinaryGreaterOrEqual:
		return left + " >= " + right
	case BinaryEqual:
		return left + " === " + right
	case BinaryHeterogeneousEqual:
		return left + " == " + right
	case BinaryNotEqual:
		return left + " !== " + right
	case BinaryHeterogeneousNotEqual:
		return left + " != " + right
	case BinaryContains:
		return left + ".contains(" + right + ")"
	case BinaryPrefix:
		return left + ".starts_with(" + right + ")"
	case BinarySuffix:
		return left + ".ends_with(" + right + ")"
	case BinaryRegex:
		return left + ".matches(" + right + ")"
	case BinaryAdd:
		return left + " + " + right
	case BinarySub:
		return left + " - " + right
	case BinaryMul:
		return left + " * " + right
	case BinaryDiv:
		return left + " / " + right
	case BinaryAnd:
		return left + " &&! " + right
	case BinaryOr:
		return left + " ||! " + right
	case BinaryLazyAnd:
		return left + " && " + right
	case BinaryLazyOr:
		return left + " || " + right
	case BinaryIntersection:
		return left + ".intersection(" + right + ")"
	case BinaryUnion:
		return left + ".union(" + right + ")"
	case BinaryBitwiseAnd:
		return left + " & " + right
	case BinaryBitwiseOr:
		return left + " | " + right
	case BinaryBitwiseXor:
		return left + " ^ " + right
	case BinaryAll:
		return left + ".all(" + right + ")"
	case BinaryAny:
		return left + ".any(" + right + ")"
	case BinaryGet:
		return left + ".get(" + right + ")"
	case BinaryTryOr:
		return left + ".try_or(" + right + ")"
	case BinaryFfi:
		name, _ := symbols.Str(b.FFIName)
		return fmt.Sprintf("%s.extern::%s(%s)", left, name, right)
	}
	return left + " ? " + right
}

// PrintExpression reconstructs the surface form of a stack expression. It
// returns an empty string for malformed op sequences.
func PrintExpression(e Expression, symbols SymbolResolver) string {
	var stack []string
	for _, op := range e.Ops {
		switch op := op.(type) {
		case Value:
			stack = append(stack, PrintTerm(op.Term, symbols))
		case UnaryOp:
			if len(stack) < 1 {
				return ""
			}
			v := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			stack = append(stack, printUnary(op, v, symbols))
		case BinaryOp:
			if len(stack) < 2 {
				return ""
			}
			right := stack[len(stack)-1]
			left := stack[len(stack)-2]
			stack = stack[:len(stack)-2]
			stack = append(stack, printBinary(op, left, right, symbols))
		case ClosureOp:
			body := PrintExpression(Expression{Ops: op.Ops}, symbols)
			if body == "" {
				return ""
			}
			if len(op.Params) == 0 {
				stack = append(stack, body)
				continue
			}
			params := make([]string, 0, len(op.Params))
			for _, p := range op.Params {
				params = append(params, PrintTerm(Variable(p), symbols))
			}
			stack = append(stack, strings.Join(params, ", ")+" -> "+body)
		}
	}
	if len(stack) != 1 {
		return ""
	}
	return stack[0]
}

// PrintScopes renders a "trusting ..." suffix, or an empty string when the
// scope list is empty.
func PrintScopes(scopes []Scope, keys KeyResolver) string {
	if len(scopes) == 0 {
		return ""
	}
	parts := make([]string, 0, len(scopes))
	for _, s := range scopes {
		switch s.Kind {
		case ScopeAuthority:
			parts = append(parts, "authority")
		case ScopePrevious:
			parts = append(parts, "previous")
		case ScopePublicKey:
			if keys != nil {
				if k, ok := keys.KeyString(s.Key); ok {
					parts = append(parts, k)
					continue
				}
			}
			parts = append(parts, fmt.Sprintf("<unknown key %d>", s.Key))
		}
	}
	return " trusting " + strings.Join(parts, ", ")
}

// printRuleBody renders the part after the arrow.
func printRuleBody(r Rule, symbols SymbolResolver, keys KeyResolver) string {
	parts := make([]string, 0, len(r.Body)+len(r.Expressions))
	for _, p := range r.Body {
		parts = append(parts, PrintPredicate(p, symbols))
	}
	for _, e := range r.Expressions {
		parts = append(parts, PrintExpression(e, symbols))
	}
	return strings.Join(parts, ", ") + PrintScopes(r.Scopes, keys)
}

// PrintRule renders head <- body.
func PrintRule(r Rule, symbols SymbolResolver, keys KeyResolver) string {
	return PrintPredicate(r.Head, symbols) + " <- " + printRuleBody(r, symbols, keys)
}

// PrintCheck renders a check in surface syntax, including its kind keyword.
func PrintCheck(c Check, symbols SymbolResolver, keys KeyResolver) string {
	var kind string
	switch c.Kind {
	case CheckOne:
		kind = "check if"
	case CheckAll:
		kind = "check all"
	case CheckReject:
		kind = "reject if"
	}
	parts := make([]string, 0, len(c.Queries))
	for _, q := range c.Queries {
		parts = append(parts, printRuleBody(q, symbols, keys))
	}
	return kind + " " + strings.Join(parts, " or ")
}
