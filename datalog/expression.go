// Copyright 2026 The Biscuit Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package datalog

import (
	"math"
	"regexp"
	"strings"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ExternFunc is a host-registered function reachable from expressions with
// the extern::name(...) syntax. right is nil for the unary form. A returned
// error aborts the authorization as an execution error; the engine itself
// registers no extern functions.
type ExternFunc func(symbols *TemporarySymbolTable, left Term, right Term) (Term, error)

// Expression is a compiled stack expression: ops are executed left to right,
// each consuming its operands from the stack and pushing its result.
type Expression struct {
	Ops []Op
}

// Op is one stack operation.
type Op interface {
	isOp()
}

// Value pushes a term; variables resolve through the environment.
type Value struct {
	Term Term
}

// UnaryOp applies a unary operation to the top of the stack.
type UnaryOp struct {
	Kind UnaryKind

	// FFIName is the symbol index of the extern function name, meaningful
	// for UnaryFfi.
	FFIName uint64
}

// BinaryOp applies a binary operation to the two topmost stack entries.
type BinaryOp struct {
	Kind BinaryKind

	// FFIName is the symbol index of the extern function name, meaningful
	// for BinaryFfi.
	FFIName uint64
}

// ClosureOp pushes a deferred op sequence with its parameter list. Consumed
// by the lazy boolean operators, .all(), .any() and .try_or().
type ClosureOp struct {
	Params []uint32
	Ops    []Op
}

func (Value) isOp()     {}
func (UnaryOp) isOp()   {}
func (BinaryOp) isOp()  {}
func (ClosureOp) isOp() {}

// UnaryKind numbers follow the wire format.
type UnaryKind int32

const (
	UnaryNegate UnaryKind = 0
	UnaryParens UnaryKind = 1
	UnaryLength UnaryKind = 2
	UnaryTypeOf UnaryKind = 3
	UnaryFfi    UnaryKind = 4
)

// BinaryKind numbers follow the wire format.
type BinaryKind int32

const (
	BinaryLessThan              BinaryKind = 0
	BinaryGreaterThan           BinaryKind = 1
	BinaryLessOrEqual           BinaryKind = 2
	BinaryGreaterOrEqual        BinaryKind = 3
	BinaryEqual                 BinaryKind = 4
	BinaryContains              BinaryKind = 5
	BinaryPrefix                BinaryKind = 6
	BinarySuffix                BinaryKind = 7
	BinaryRegex                 BinaryKind = 8
	BinaryAdd                   BinaryKind = 9
	BinarySub                   BinaryKind = 10
	BinaryMul                   BinaryKind = 11
	BinaryDiv                   BinaryKind = 12
	BinaryAnd                   BinaryKind = 13
	BinaryOr                    BinaryKind = 14
	BinaryIntersection          BinaryKind = 15
	BinaryUnion                 BinaryKind = 16
	BinaryBitwiseAnd            BinaryKind = 17
	BinaryBitwiseOr             BinaryKind = 18
	BinaryBitwiseXor            BinaryKind = 19
	BinaryNotEqual              BinaryKind = 20
	BinaryHeterogeneousEqual    BinaryKind = 21
	BinaryHeterogeneousNotEqual BinaryKind = 22
	BinaryLazyAnd               BinaryKind = 23
	BinaryLazyOr                BinaryKind = 24
	BinaryAll                   BinaryKind = 25
	BinaryAny                   BinaryKind = 26
	BinaryGet                   BinaryKind = 27
	BinaryFfi                   BinaryKind = 28
	BinaryTryOr                 BinaryKind = 29
)

// regexCache bounds the cost of repeated .matches() calls with the same
// pattern across rules and authorizations.
var regexCache, _ = lru.New[string, *regexp.Regexp](512)

// matchRegex compiles (or reuses) pattern and matches s. An invalid pattern
// matches nothing rather than erroring, so a malformed regex in a token
// fails the check instead of aborting the authorization.
func matchRegex(pattern, s string) bool {
	re, ok := regexCache.Get(pattern)
	if !ok {
		var err error
		re, err = regexp.Compile(pattern)
		if err != nil {
			return false
		}
		regexCache.Add(pattern, re)
	}
	return re.MatchString(s)
}

type stackElem struct {
	term    Term
	closure *ClosureOp
}

// Evaluate runs the expression against a variable environment. The result
// is the single term left on the stack; anything else is an error.
func (e Expression) Evaluate(values map[uint32]Term, symbols *TemporarySymbolTable, externs map[string]ExternFunc) (Term, error) {
	stack := make([]stackElem, 0, len(e.Ops))

	pop := func() (stackElem, bool) {
		if len(stack) == 0 {
			return stackElem{}, false
		}
		el := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return el, true
	}

	for _, op := range e.Ops {
		switch op := op.(type) {
		case Value:
			if v, ok := op.Term.(Variable); ok {
				term, ok := values[uint32(v)]
				if !ok {
					return nil, unknownVariable(uint32(v))
				}
				stack = append(stack, stackElem{term: term})
				continue
			}
			stack = append(stack, stackElem{term: op.Term})
		case UnaryOp:
			el, ok := pop()
			if !ok || el.closure != nil {
				return nil, ErrInvalidStack
			}
			res, err := op.evaluate(el.term, symbols, externs)
			if err != nil {
				return nil, err
			}
			stack = append(stack, stackElem{term: res})
		case BinaryOp:
			right, okr := pop()
			left, okl := pop()
			if !okr || !okl {
				return nil, ErrInvalidStack
			}
			switch {
			case right.closure == nil && left.closure == nil:
				res, err := op.evaluate(left.term, right.term, symbols, externs)
				if err != nil {
					return nil, err
				}
				stack = append(stack, stackElem{term: res})
			case right.closure != nil && left.closure == nil:
				res, err := op.evaluateWithClosure(left.term, right.closure, values, symbols, externs)
				if err != nil {
					return nil, err
				}
				stack = append(stack, stackElem{term: res})
			case right.closure == nil && left.closure != nil:
				res, err := op.evaluateWithClosure(right.term, left.closure, values, symbols, externs)
				if err != nil {
					return nil, err
				}
				stack = append(stack, stackElem{term: res})
			default:
				return nil, ErrInvalidStack
			}
		case ClosureOp:
			stack = append(stack, stackElem{closure: &op})
		default:
			return nil, ErrInvalidStack
		}
	}

	if len(stack) != 1 || stack[0].closure != nil {
		return nil, ErrInvalidStack
	}
	return stack[0].term, nil
}

func (u UnaryOp) evaluate(value Term, symbols *TemporarySymbolTable, externs map[string]ExternFunc) (Term, error) {
	switch u.Kind {
	case UnaryParens:
		return value, nil
	case UnaryNegate:
		if b, ok := value.(Bool); ok {
			return Bool(!b), nil
		}
		if i, ok := value.(Integer); ok {
			if i == math.MinInt64 {
				return nil, ErrOverflow
			}
			return Integer(-i), nil
		}
	case UnaryLength:
		switch x := value.(type) {
		case String:
			s, ok := symbols.Str(uint64(x))
			if !ok {
				return nil, unknownSymbol(uint64(x))
			}
			return Integer(utf8.RuneCountInString(s)), nil
		case Bytes:
			return Integer(len(x)), nil
		case Set:
			return Integer(x.Len()), nil
		case Array:
			return Integer(len(x)), nil
		case Map:
			return Integer(x.Len()), nil
		}
	case UnaryTypeOf:
		if _, ok := value.(Variable); ok {
			return nil, ErrInvalidType
		}
		return String(symbols.Insert(typeName(value))), nil
	case UnaryFfi:
		name, ok := symbols.Str(u.FFIName)
		if !ok {
			return nil, unknownSymbol(u.FFIName)
		}
		fn, ok := externs[name]
		if !ok {
			return nil, undefinedExtern(name)
		}
		res, err := fn(symbols, value, nil)
		if err != nil {
			return nil, externEvalError(name, err.Error())
		}
		return res, nil
	}
	return nil, ErrInvalidType
}

func (b BinaryOp) evaluateWithClosure(param Term, closure *ClosureOp, values map[uint32]Term, symbols *TemporarySymbolTable, externs map[string]ExternFunc) (Term, error) {
	for _, p := range closure.Params {
		if _, bound := values[p]; bound {
			return nil, ErrShadowedVariable
		}
	}
	inner := make(map[uint32]Term, len(values)+1)
	for k, v := range values {
		inner[k] = v
	}
	body := Expression{Ops: closure.Ops}

	switch {
	case b.Kind == BinaryTryOr && len(closure.Params) == 0:
		// param holds the already evaluated fallback; errors raised by the
		// receiver (the closure body) select it, errors in the fallback
		// itself have already propagated.
		res, err := body.Evaluate(inner, symbols, externs)
		if err != nil {
			return param, nil
		}
		return res, nil

	case b.Kind == BinaryLazyOr && len(closure.Params) == 0:
		cond, ok := param.(Bool)
		if !ok {
			return nil, ErrInvalidType
		}
		if cond {
			return Bool(true), nil
		}
		return body.Evaluate(inner, symbols, externs)

	case b.Kind == BinaryLazyAnd && len(closure.Params) == 0:
		cond, ok := param.(Bool)
		if !ok {
			return nil, ErrInvalidType
		}
		if !cond {
			return Bool(false), nil
		}
		return body.Evaluate(inner, symbols, externs)

	case (b.Kind == BinaryAll || b.Kind == BinaryAny) && len(closure.Params) == 1:
		p := closure.Params[0]
		var elems []Term
		switch x := param.(type) {
		case Set:
			elems = x.Elems()
		case Array:
			elems = x
		case Map:
			elems = make([]Term, 0, x.Len())
			for _, e := range x.Entries() {
				elems = append(elems, Array{e.Key.Term(), e.Value})
			}
		default:
			return nil, ErrInvalidType
		}
		for _, elem := range elems {
			inner[p] = elem
			res, err := body.Evaluate(inner, symbols, externs)
			delete(inner, p)
			if err != nil {
				return nil, err
			}
			cond, ok := res.(Bool)
			if !ok {
				return nil, ErrInvalidType
			}
			if b.Kind == BinaryAll && !cond {
				return Bool(false), nil
			}
			if b.Kind == BinaryAny && cond {
				return Bool(true), nil
			}
		}
		return Bool(b.Kind == BinaryAll), nil
	}
	return nil, ErrInvalidType
}

func (b BinaryOp) evaluate(left, right Term, symbols *TemporarySymbolTable, externs map[string]ExternFunc) (Term, error) {
	switch b.Kind {
	case BinaryFfi:
		name, ok := symbols.Str(b.FFIName)
		if !ok {
			return nil, unknownSymbol(b.FFIName)
		}
		fn, ok := externs[name]
		if !ok {
			return nil, undefinedExtern(name)
		}
		res, err := fn(symbols, left, right)
		if err != nil {
			return nil, externEvalError(name, err.Error())
		}
		return res, nil

	case BinaryHeterogeneousEqual:
		return Bool(heterogeneousEqual(left, right)), nil
	case BinaryHeterogeneousNotEqual:
		return Bool(!heterogeneousEqual(left, right)), nil

	case BinaryEqual:
		if sameKind(left, right) {
			return Bool(left.Equal(right)), nil
		}
		return nil, ErrInvalidType
	case BinaryNotEqual:
		if sameKind(left, right) {
			return Bool(!left.Equal(right)), nil
		}
		return nil, ErrInvalidType
	}

	switch l := left.(type) {
	case Integer:
		if r, ok := right.(Integer); ok {
			return integerBinary(b.Kind, l, r)
		}
	case Date:
		if r, ok := right.(Date); ok {
			switch b.Kind {
			case BinaryLessThan:
				return Bool(l < r), nil
			case BinaryGreaterThan:
				return Bool(l > r), nil
			case BinaryLessOrEqual:
				return Bool(l <= r), nil
			case BinaryGreaterOrEqual:
				return Bool(l >= r), nil
			}
		}
	case String:
		if r, ok := right.(String); ok {
			return stringBinary(b.Kind, l, r, symbols)
		}
	case Bool:
		if r, ok := right.(Bool); ok {
			switch b.Kind {
			case BinaryAnd, BinaryBitwiseAnd:
				return Bool(l && r), nil
			case BinaryOr, BinaryBitwiseOr:
				return Bool(l || r), nil
			case BinaryBitwiseXor:
				return Bool(l != r), nil
			}
		}
	case Set:
		switch b.Kind {
		case BinaryIntersection:
			if r, ok := right.(Set); ok {
				return l.Intersection(r), nil
			}
		case BinaryUnion:
			if r, ok := right.(Set); ok {
				return l.Union(r), nil
			}
		case BinaryContains:
			switch r := right.(type) {
			case Set:
				return Bool(l.IsSuperset(r)), nil
			case Integer, Date, Bool, String, Bytes:
				return Bool(l.Contains(r)), nil
			}
		}
	case Array:
		switch b.Kind {
		case BinaryContains:
			for _, e := range l {
				if e.Equal(right) {
					return Bool(true), nil
				}
			}
			return Bool(false), nil
		case BinaryPrefix:
			if r, ok := right.(Array); ok {
				if len(r) > len(l) {
					return Bool(false), nil
				}
				return Bool(Array(l[:len(r)]).Equal(r)), nil
			}
		case BinarySuffix:
			if r, ok := right.(Array); ok {
				if len(r) > len(l) {
					return Bool(false), nil
				}
				return Bool(Array(l[len(l)-len(r):]).Equal(r)), nil
			}
		case BinaryGet:
			if r, ok := right.(Integer); ok {
				if r < 0 || int64(r) >= int64(len(l)) {
					return Null{}, nil
				}
				return l[r], nil
			}
		}
	case Map:
		switch b.Kind {
		case BinaryContains:
			switch r := right.(type) {
			case Integer:
				return Bool(l.ContainsKey(IntKey(r))), nil
			case String:
				return Bool(l.ContainsKey(StrKey(r))), nil
			default:
				return Bool(false), nil
			}
		case BinaryGet:
			var v Term
			switch r := right.(type) {
			case Integer:
				v = l.Get(IntKey(r))
			case String:
				v = l.Get(StrKey(r))
			default:
				return nil, ErrInvalidType
			}
			if v == nil {
				return Null{}, nil
			}
			return v, nil
		}
	}
	return nil, ErrInvalidType
}

func integerBinary(kind BinaryKind, l, r Integer) (Term, error) {
	switch kind {
	case BinaryLessThan:
		return Bool(l < r), nil
	case BinaryGreaterThan:
		return Bool(l > r), nil
	case BinaryLessOrEqual:
		return Bool(l <= r), nil
	case BinaryGreaterOrEqual:
		return Bool(l >= r), nil
	case BinaryAdd:
		s := l + r
		if (s > l) != (r > 0) {
			return nil, ErrOverflow
		}
		return s, nil
	case BinarySub:
		s := l - r
		if (s < l) != (r > 0) {
			return nil, ErrOverflow
		}
		return s, nil
	case BinaryMul:
		if l == 0 || r == 0 {
			return Integer(0), nil
		}
		p := l * r
		if p/r != l || (l == math.MinInt64 && r == -1) {
			return nil, ErrOverflow
		}
		return p, nil
	case BinaryDiv:
		if r == 0 {
			return nil, ErrDivideByZero
		}
		if l == math.MinInt64 && r == -1 {
			return nil, ErrOverflow
		}
		return l / r, nil
	case BinaryBitwiseAnd:
		return l & r, nil
	case BinaryBitwiseOr:
		return l | r, nil
	case BinaryBitwiseXor:
		return l ^ r, nil
	}
	return nil, ErrInvalidType
}

func stringBinary(kind BinaryKind, l, r String, symbols *TemporarySymbolTable) (Term, error) {
	ls, ok := symbols.Str(uint64(l))
	if !ok {
		return nil, unknownSymbol(uint64(l))
	}
	rs, ok := symbols.Str(uint64(r))
	if !ok {
		return nil, unknownSymbol(uint64(r))
	}
	switch kind {
	case BinaryPrefix:
		return Bool(strings.HasPrefix(ls, rs)), nil
	case BinarySuffix:
		return Bool(strings.HasSuffix(ls, rs)), nil
	case BinaryContains:
		return Bool(strings.Contains(ls, rs)), nil
	case BinaryRegex:
		return Bool(matchRegex(rs, ls)), nil
	case BinaryAdd:
		return String(symbols.Insert(ls + rs)), nil
	}
	return nil, ErrInvalidType
}

// sameKind reports whether two terms share a type tag, the precondition for
// the strict equality family.
func sameKind(a, b Term) bool {
	return termTag(a) == termTag(b)
}

// heterogeneousEqual implements the == family: total, never errors,
// different kinds compare unequal.
func heterogeneousEqual(a, b Term) bool {
	if !sameKind(a, b) {
		return false
	}
	return a.Equal(b)
}
