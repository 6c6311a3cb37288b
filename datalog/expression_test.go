// Copyright 2026 The Biscuit Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package datalog

import (
	"errors"
	"fmt"
	"math"
	"testing"
)

func evalTestExpr(t *testing.T, ops []Op, values map[uint32]Term) (Term, error) {
	t.Helper()
	symbols := NewSymbolTable()
	tmp := NewTemporarySymbolTable(symbols)
	return Expression{Ops: ops}.Evaluate(values, tmp, nil)
}

func TestNegate(t *testing.T) {
	symbols := NewSymbolTable()
	symbols.Insert("test1")
	symbols.Insert("test2")
	v := symbols.Insert("var1")
	tmp := NewTemporarySymbolTable(symbols)

	ops := []Op{
		Value{Term: Integer(1)},
		Value{Term: Variable(v)},
		BinaryOp{Kind: BinaryLessThan},
		UnaryOp{Kind: UnaryParens},
		UnaryOp{Kind: UnaryNegate},
	}
	values := map[uint32]Term{uint32(v): Integer(0)}

	res, err := Expression{Ops: ops}.Evaluate(values, tmp, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res != Bool(true) {
		t.Fatalf("expected true, got %v", res)
	}
}

func TestBitwise(t *testing.T) {
	tests := []struct {
		kind     BinaryKind
		v1, v2   int64
		expected int64
	}{
		{BinaryBitwiseAnd, 9, 10, 8},
		{BinaryBitwiseAnd, 9, 1, 1},
		{BinaryBitwiseAnd, 9, 0, 0},
		{BinaryBitwiseOr, 1, 2, 3},
		{BinaryBitwiseOr, 2, 2, 2},
		{BinaryBitwiseOr, 2, 0, 2},
		{BinaryBitwiseXor, 1, 0, 1},
		{BinaryBitwiseXor, 1, 1, 0},
	}
	for _, tc := range tests {
		t.Run(fmt.Sprintf("%d_%d_%d", tc.kind, tc.v1, tc.v2), func(t *testing.T) {
			ops := []Op{
				Value{Term: Integer(tc.v1)},
				Value{Term: Integer(tc.v2)},
				BinaryOp{Kind: tc.kind},
			}
			res, err := evalTestExpr(t, ops, nil)
			if err != nil {
				t.Fatal(err)
			}
			if res != Integer(tc.expected) {
				t.Fatalf("expected %d, got %v", tc.expected, res)
			}
		})
	}
}

func TestCheckedArithmetic(t *testing.T) {
	tests := []struct {
		name   string
		ops    []Op
		expect *Error
	}{
		{
			name: "divide by zero",
			ops: []Op{
				Value{Term: Integer(1)},
				Value{Term: Integer(0)},
				BinaryOp{Kind: BinaryDiv},
			},
			expect: ErrDivideByZero,
		},
		{
			name: "add overflow",
			ops: []Op{
				Value{Term: Integer(1)},
				Value{Term: Integer(math.MaxInt64)},
				BinaryOp{Kind: BinaryAdd},
			},
			expect: ErrOverflow,
		},
		{
			name: "sub overflow",
			ops: []Op{
				Value{Term: Integer(-10)},
				Value{Term: Integer(math.MaxInt64)},
				BinaryOp{Kind: BinarySub},
			},
			expect: ErrOverflow,
		},
		{
			name: "mul overflow",
			ops: []Op{
				Value{Term: Integer(2)},
				Value{Term: Integer(math.MaxInt64)},
				BinaryOp{Kind: BinaryMul},
			},
			expect: ErrOverflow,
		},
		{
			name: "div overflow",
			ops: []Op{
				Value{Term: Integer(math.MinInt64)},
				Value{Term: Integer(-1)},
				BinaryOp{Kind: BinaryDiv},
			},
			expect: ErrOverflow,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := evalTestExpr(t, tc.ops, nil)
			if !errors.Is(err, tc.expect) {
				t.Fatalf("expected %v, got %v", tc.expect, err)
			}
		})
	}
}

func TestHeterogeneousEquality(t *testing.T) {
	operandSamples := [][]Op{
		{Value{Term: Bool(true)}, Value{Term: Integer(1)}},
		{Value{Term: Bool(true)}, Value{Term: String(1)}},
		{Value{Term: Integer(1)}, Value{Term: String(1)}},
		{Value{Term: Bytes(nil)}, Value{Term: Integer(1)}},
		{Value{Term: Date(12)}, Value{Term: Integer(1)}},
		{Value{Term: Null{}}, Value{Term: Integer(1)}},
	}
	for i, operands := range operandSamples {
		reversed := []Op{operands[1], operands[0]}
		for _, pair := range [][]Op{operands, reversed} {
			// == across kinds is false, != is true, neither errors
			res, err := evalTestExpr(t, append(append([]Op{}, pair...), BinaryOp{Kind: BinaryHeterogeneousEqual}), nil)
			if err != nil || res != Bool(false) {
				t.Fatalf("sample %d: == got (%v, %v)", i, res, err)
			}
			res, err = evalTestExpr(t, append(append([]Op{}, pair...), BinaryOp{Kind: BinaryHeterogeneousNotEqual}), nil)
			if err != nil || res != Bool(true) {
				t.Fatalf("sample %d: != got (%v, %v)", i, res, err)
			}

			// the strict family errors across kinds
			for _, kind := range []BinaryKind{BinaryEqual, BinaryNotEqual} {
				_, err = evalTestExpr(t, append(append([]Op{}, pair...), BinaryOp{Kind: kind}), nil)
				if !errors.Is(err, ErrInvalidType) {
					t.Fatalf("sample %d: strict equality expected type error, got %v", i, err)
				}
			}
		}
	}
}

func TestNullEquality(t *testing.T) {
	for _, kind := range []BinaryKind{BinaryEqual, BinaryHeterogeneousEqual} {
		res, err := evalTestExpr(t, []Op{
			Value{Term: Null{}},
			Value{Term: Null{}},
			BinaryOp{Kind: kind},
		}, nil)
		if err != nil || res != Bool(true) {
			t.Fatalf("null equality: got (%v, %v)", res, err)
		}
	}
	for _, kind := range []BinaryKind{BinaryNotEqual, BinaryHeterogeneousNotEqual} {
		res, err := evalTestExpr(t, []Op{
			Value{Term: Null{}},
			Value{Term: Null{}},
			BinaryOp{Kind: kind},
		}, nil)
		if err != nil || res != Bool(false) {
			t.Fatalf("null inequality: got (%v, %v)", res, err)
		}
	}
}

func TestLaziness(t *testing.T) {
	// false || (true && true)
	ops := []Op{
		Value{Term: Bool(false)},
		ClosureOp{Ops: []Op{
			Value{Term: Bool(true)},
			ClosureOp{Ops: []Op{Value{Term: Bool(true)}}},
			BinaryOp{Kind: BinaryLazyAnd},
		}},
		BinaryOp{Kind: BinaryLazyOr},
	}
	res, err := evalTestExpr(t, ops, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res != Bool(true) {
		t.Fatalf("expected true, got %v", res)
	}

	// true || <division by zero> never evaluates the right side
	ops = []Op{
		Value{Term: Bool(true)},
		ClosureOp{Ops: []Op{
			Value{Term: Integer(1)},
			Value{Term: Integer(0)},
			BinaryOp{Kind: BinaryDiv},
		}},
		BinaryOp{Kind: BinaryLazyOr},
	}
	res, err = evalTestExpr(t, ops, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res != Bool(true) {
		t.Fatalf("expected true, got %v", res)
	}

	// false && <overflow> never evaluates the right side
	ops = []Op{
		Value{Term: Bool(false)},
		ClosureOp{Ops: []Op{
			Value{Term: Integer(math.MaxInt64)},
			Value{Term: Integer(1)},
			BinaryOp{Kind: BinaryAdd},
		}},
		BinaryOp{Kind: BinaryLazyAnd},
	}
	res, err = evalTestExpr(t, ops, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res != Bool(false) {
		t.Fatalf("expected false, got %v", res)
	}
}

func TestAnyAll(t *testing.T) {
	symbols := NewSymbolTable()
	p := uint32(symbols.Insert("param"))
	tmp := NewTemporarySymbolTable(symbols)

	// {false, true}.any($param -> $param)
	ops := []Op{
		Value{Term: NewSet([]Term{Bool(false), Bool(true)})},
		ClosureOp{Params: []uint32{p}, Ops: []Op{Value{Term: Variable(p)}}},
		BinaryOp{Kind: BinaryAny},
	}
	res, err := Expression{Ops: ops}.Evaluate(nil, tmp, nil)
	if err != nil || res != Bool(true) {
		t.Fatalf("any: got (%v, %v)", res, err)
	}

	// {1, 2}.any($param -> $param < 0)
	ops = []Op{
		Value{Term: NewSet([]Term{Integer(1), Integer(2)})},
		ClosureOp{Params: []uint32{p}, Ops: []Op{
			Value{Term: Variable(p)},
			Value{Term: Integer(0)},
			BinaryOp{Kind: BinaryLessThan},
		}},
		BinaryOp{Kind: BinaryAny},
	}
	res, err = Expression{Ops: ops}.Evaluate(nil, tmp, nil)
	if err != nil || res != Bool(false) {
		t.Fatalf("any: got (%v, %v)", res, err)
	}

	// {1, 2}.all($param -> $param > 0)
	ops = []Op{
		Value{Term: NewSet([]Term{Integer(1), Integer(2)})},
		ClosureOp{Params: []uint32{p}, Ops: []Op{
			Value{Term: Variable(p)},
			Value{Term: Integer(0)},
			BinaryOp{Kind: BinaryGreaterThan},
		}},
		BinaryOp{Kind: BinaryAll},
	}
	res, err = Expression{Ops: ops}.Evaluate(nil, tmp, nil)
	if err != nil || res != Bool(true) {
		t.Fatalf("all: got (%v, %v)", res, err)
	}

	// a closure body producing a non-boolean is a type error
	ops = []Op{
		Value{Term: NewSet([]Term{Integer(1), Integer(2)})},
		ClosureOp{Params: []uint32{p}, Ops: []Op{Value{Term: Integer(0)}}},
		BinaryOp{Kind: BinaryAll},
	}
	_, err = Expression{Ops: ops}.Evaluate(nil, tmp, nil)
	if !errors.Is(err, ErrInvalidType) {
		t.Fatalf("all: expected type error, got %v", err)
	}
}

func TestVariableShadowing(t *testing.T) {
	symbols := NewSymbolTable()
	p := uint32(symbols.Insert("param"))
	tmp := NewTemporarySymbolTable(symbols)

	ops := []Op{
		Value{Term: NewSet([]Term{Integer(1), Integer(2)})},
		ClosureOp{Params: []uint32{p}, Ops: []Op{
			Value{Term: Variable(p)},
			Value{Term: Integer(0)},
			BinaryOp{Kind: BinaryGreaterThan},
		}},
		BinaryOp{Kind: BinaryAll},
	}
	values := map[uint32]Term{p: Null{}}
	_, err := Expression{Ops: ops}.Evaluate(values, tmp, nil)
	if !errors.Is(err, ErrShadowedVariable) {
		t.Fatalf("expected shadowed variable, got %v", err)
	}

	// nested closures reusing the same parameter also fail
	ops = []Op{
		Value{Term: NewSet([]Term{Integer(1), Integer(2), Integer(3)})},
		ClosureOp{Params: []uint32{p}, Ops: []Op{
			Value{Term: Variable(p)},
			Value{Term: Integer(1)},
			BinaryOp{Kind: BinaryGreaterThan},
			ClosureOp{Ops: []Op{
				Value{Term: NewSet([]Term{Integer(3), Integer(4)})},
				ClosureOp{Params: []uint32{p}, Ops: []Op{
					Value{Term: Variable(p)},
					Value{Term: Variable(p)},
					BinaryOp{Kind: BinaryEqual},
				}},
				BinaryOp{Kind: BinaryAny},
			}},
			BinaryOp{Kind: BinaryLazyAnd},
		}},
		BinaryOp{Kind: BinaryAny},
	}
	_, err = Expression{Ops: ops}.Evaluate(nil, tmp, nil)
	if !errors.Is(err, ErrShadowedVariable) {
		t.Fatalf("expected shadowed variable, got %v", err)
	}
}

func TestNestedClosures(t *testing.T) {
	symbols := NewSymbolTable()
	p := uint32(symbols.Insert("p"))
	q := uint32(symbols.Insert("q"))
	tmp := NewTemporarySymbolTable(symbols)

	// {1,2,3}.any($p -> $p > 1 && {3,4,5}.any($q -> $p === $q))
	ops := []Op{
		Value{Term: NewSet([]Term{Integer(1), Integer(2), Integer(3)})},
		ClosureOp{Params: []uint32{p}, Ops: []Op{
			Value{Term: Variable(p)},
			Value{Term: Integer(1)},
			BinaryOp{Kind: BinaryGreaterThan},
			ClosureOp{Ops: []Op{
				Value{Term: NewSet([]Term{Integer(3), Integer(4), Integer(5)})},
				ClosureOp{Params: []uint32{q}, Ops: []Op{
					Value{Term: Variable(p)},
					Value{Term: Variable(q)},
					BinaryOp{Kind: BinaryEqual},
				}},
				BinaryOp{Kind: BinaryAny},
			}},
			BinaryOp{Kind: BinaryLazyAnd},
		}},
		BinaryOp{Kind: BinaryAny},
	}
	res, err := Expression{Ops: ops}.Evaluate(nil, tmp, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res != Bool(true) {
		t.Fatalf("expected true, got %v", res)
	}
}

func TestTryOr(t *testing.T) {
	// (1/0).try_or(42) recovers the receiver's error
	ops := []Op{
		Value{Term: Integer(42)},
		ClosureOp{Ops: []Op{
			Value{Term: Integer(1)},
			Value{Term: Integer(0)},
			BinaryOp{Kind: BinaryDiv},
		}},
		BinaryOp{Kind: BinaryTryOr},
	}
	res, err := evalTestExpr(t, ops, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res != Integer(42) {
		t.Fatalf("expected 42, got %v", res)
	}

	// a clean receiver keeps its own value
	ops = []Op{
		Value{Term: Integer(42)},
		ClosureOp{Ops: []Op{
			Value{Term: Integer(6)},
			Value{Term: Integer(2)},
			BinaryOp{Kind: BinaryDiv},
		}},
		BinaryOp{Kind: BinaryTryOr},
	}
	res, err = evalTestExpr(t, ops, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res != Integer(3) {
		t.Fatalf("expected 3, got %v", res)
	}

	// an error in the default itself surfaces: the default operand is
	// evaluated before the try_or applies
	ops = []Op{
		Value{Term: Integer(1)},
		Value{Term: Integer(0)},
		BinaryOp{Kind: BinaryDiv},
		ClosureOp{Ops: []Op{Value{Term: Integer(1)}}},
		BinaryOp{Kind: BinaryTryOr},
	}
	_, err = evalTestExpr(t, ops, nil)
	if !errors.Is(err, ErrDivideByZero) {
		t.Fatalf("expected divide by zero, got %v", err)
	}
}

func TestArrayOps(t *testing.T) {
	arr := Array{Integer(0), Integer(1), Integer(2)}

	tests := []struct {
		name     string
		ops      []Op
		expected Term
	}{
		{
			"equal",
			[]Op{Value{Term: Array{Integer(0), Integer(1)}}, Value{Term: Array{Integer(0), Integer(1)}}, BinaryOp{Kind: BinaryEqual}},
			Bool(true),
		},
		{
			"not equal lengths",
			[]Op{Value{Term: Array{Integer(0), Integer(1)}}, Value{Term: Array{Integer(0)}}, BinaryOp{Kind: BinaryEqual}},
			Bool(false),
		},
		{
			"contains",
			[]Op{Value{Term: arr}, Value{Term: Integer(1)}, BinaryOp{Kind: BinaryContains}},
			Bool(true),
		},
		{
			"contains miss",
			[]Op{Value{Term: arr}, Value{Term: Integer(4)}, BinaryOp{Kind: BinaryContains}},
			Bool(false),
		},
		{
			"prefix",
			[]Op{Value{Term: arr}, Value{Term: Array{Integer(0), Integer(1)}}, BinaryOp{Kind: BinaryPrefix}},
			Bool(true),
		},
		{
			"prefix miss",
			[]Op{Value{Term: arr}, Value{Term: Array{Integer(2), Integer(1)}}, BinaryOp{Kind: BinaryPrefix}},
			Bool(false),
		},
		{
			"suffix",
			[]Op{Value{Term: arr}, Value{Term: Array{Integer(1), Integer(2)}}, BinaryOp{Kind: BinarySuffix}},
			Bool(true),
		},
		{
			"suffix miss",
			[]Op{Value{Term: arr}, Value{Term: Array{Integer(0), Integer(2)}}, BinaryOp{Kind: BinarySuffix}},
			Bool(false),
		},
		{
			"get",
			[]Op{Value{Term: arr}, Value{Term: Integer(1)}, BinaryOp{Kind: BinaryGet}},
			Integer(1),
		},
		{
			"get out of bounds",
			[]Op{Value{Term: arr}, Value{Term: Integer(3)}, BinaryOp{Kind: BinaryGet}},
			Null{},
		},
		{
			"length",
			[]Op{Value{Term: arr}, UnaryOp{Kind: UnaryLength}},
			Integer(3),
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res, err := evalTestExpr(t, tc.ops, nil)
			if err != nil {
				t.Fatal(err)
			}
			if !res.Equal(tc.expected) {
				t.Fatalf("expected %v, got %v", tc.expected, res)
			}
		})
	}

	// indexing with a non-integer is a type error
	_, err := evalTestExpr(t, []Op{Value{Term: arr}, Value{Term: Bool(true)}, BinaryOp{Kind: BinaryGet}}, nil)
	if !errors.Is(err, ErrInvalidType) {
		t.Fatalf("expected type error, got %v", err)
	}
}

func TestMapOps(t *testing.T) {
	symbols := NewSymbolTable()
	k := symbols.Insert("key")
	tmp := NewTemporarySymbolTable(symbols)

	m := NewMap([]MapEntry{
		{Key: StrKey(k), Value: Integer(7)},
		{Key: IntKey(3), Value: Bool(true)},
	})

	// key presence through .contains
	res, err := Expression{Ops: []Op{
		Value{Term: m},
		Value{Term: String(k)},
		BinaryOp{Kind: BinaryContains},
	}}.Evaluate(nil, tmp, nil)
	if err != nil || res != Bool(true) {
		t.Fatalf("contains: got (%v, %v)", res, err)
	}

	// get hit and miss
	res, err = Expression{Ops: []Op{
		Value{Term: m},
		Value{Term: Integer(3)},
		BinaryOp{Kind: BinaryGet},
	}}.Evaluate(nil, tmp, nil)
	if err != nil || res != Bool(true) {
		t.Fatalf("get: got (%v, %v)", res, err)
	}
	res, err = Expression{Ops: []Op{
		Value{Term: m},
		Value{Term: Integer(4)},
		BinaryOp{Kind: BinaryGet},
	}}.Evaluate(nil, tmp, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, isNull := res.(Null); !isNull {
		t.Fatalf("expected null, got %v", res)
	}

	// .all over a map binds [key, value] pairs
	p := uint32(symbols.Insert("param"))
	tmp = NewTemporarySymbolTable(symbols)
	res, err = Expression{Ops: []Op{
		Value{Term: m},
		ClosureOp{Params: []uint32{p}, Ops: []Op{
			Value{Term: Variable(p)},
			UnaryOp{Kind: UnaryLength},
			Value{Term: Integer(2)},
			BinaryOp{Kind: BinaryEqual},
		}},
		BinaryOp{Kind: BinaryAll},
	}}.Evaluate(nil, tmp, nil)
	if err != nil || res != Bool(true) {
		t.Fatalf("map all: got (%v, %v)", res, err)
	}
}

func TestStringOps(t *testing.T) {
	symbols := NewSymbolTable()
	ab := symbols.Insert("aaab")
	a := symbols.Insert("aaa")
	b := symbols.Insert("b")
	pattern := symbols.Insert("a+b")
	accents := symbols.Insert("héhé")
	tmp := NewTemporarySymbolTable(symbols)

	eval := func(ops []Op) (Term, error) {
		return Expression{Ops: ops}.Evaluate(nil, tmp, nil)
	}

	res, err := eval([]Op{Value{Term: String(ab)}, Value{Term: String(a)}, BinaryOp{Kind: BinaryPrefix}})
	if err != nil || res != Bool(true) {
		t.Fatalf("starts_with: got (%v, %v)", res, err)
	}
	res, err = eval([]Op{Value{Term: String(ab)}, Value{Term: String(b)}, BinaryOp{Kind: BinarySuffix}})
	if err != nil || res != Bool(true) {
		t.Fatalf("ends_with: got (%v, %v)", res, err)
	}
	res, err = eval([]Op{Value{Term: String(ab)}, Value{Term: String(pattern)}, BinaryOp{Kind: BinaryRegex}})
	if err != nil || res != Bool(true) {
		t.Fatalf("matches: got (%v, %v)", res, err)
	}

	// concatenation allocates a new temporary symbol
	res, err = eval([]Op{Value{Term: String(a)}, Value{Term: String(b)}, BinaryOp{Kind: BinaryAdd}})
	if err != nil {
		t.Fatal(err)
	}
	sym, ok := res.(String)
	if !ok {
		t.Fatalf("expected string, got %v", res)
	}
	if s, _ := tmp.Str(uint64(sym)); s != "aaab" {
		t.Fatalf("expected aaab, got %q", s)
	}

	// length counts code points, not bytes
	res, err = eval([]Op{Value{Term: String(accents)}, UnaryOp{Kind: UnaryLength}})
	if err != nil || res != Integer(4) {
		t.Fatalf("length: got (%v, %v)", res, err)
	}
}

func TestTypeOf(t *testing.T) {
	tests := []struct {
		term     Term
		expected string
	}{
		{Integer(1), "integer"},
		{Date(1), "date"},
		{Bytes{1}, "bytes"},
		{Bool(true), "bool"},
		{Null{}, "null"},
		{NewSet([]Term{Integer(1)}), "set"},
		{Array{Integer(1)}, "array"},
		{NewMap([]MapEntry{{Key: IntKey(1), Value: Integer(1)}}), "map"},
	}
	for _, tc := range tests {
		symbols := NewSymbolTable()
		tmp := NewTemporarySymbolTable(symbols)
		res, err := Expression{Ops: []Op{
			Value{Term: tc.term},
			UnaryOp{Kind: UnaryTypeOf},
		}}.Evaluate(nil, tmp, nil)
		if err != nil {
			t.Fatal(err)
		}
		s, _ := tmp.Str(uint64(res.(String)))
		if s != tc.expected {
			t.Fatalf("expected %q, got %q", tc.expected, s)
		}
	}
}

func TestExternDispatch(t *testing.T) {
	symbols := NewSymbolTable()
	name := symbols.Insert("double")
	tmp := NewTemporarySymbolTable(symbols)

	externs := map[string]ExternFunc{
		"double": func(_ *TemporarySymbolTable, left Term, right Term) (Term, error) {
			i, ok := left.(Integer)
			if !ok {
				return nil, fmt.Errorf("expected integer")
			}
			return i * 2, nil
		},
	}

	res, err := Expression{Ops: []Op{
		Value{Term: Integer(21)},
		UnaryOp{Kind: UnaryFfi, FFIName: name},
	}}.Evaluate(nil, tmp, externs)
	if err != nil {
		t.Fatal(err)
	}
	if res != Integer(42) {
		t.Fatalf("expected 42, got %v", res)
	}

	// unregistered externs fail with an execution error
	missing := symbols.Insert("missing")
	_, err = Expression{Ops: []Op{
		Value{Term: Integer(1)},
		UnaryOp{Kind: UnaryFfi, FFIName: missing},
	}}.Evaluate(nil, NewTemporarySymbolTable(symbols), externs)
	var derr *Error
	if !errors.As(err, &derr) || derr.Code != UndefinedExternErr {
		t.Fatalf("expected undefined extern, got %v", err)
	}
}

func TestInvalidStack(t *testing.T) {
	// leftover operand
	_, err := evalTestExpr(t, []Op{Value{Term: Integer(1)}, Value{Term: Integer(2)}}, nil)
	if !errors.Is(err, ErrInvalidStack) {
		t.Fatalf("expected invalid stack, got %v", err)
	}
	// missing operand
	_, err = evalTestExpr(t, []Op{Value{Term: Integer(1)}, BinaryOp{Kind: BinaryAdd}}, nil)
	if !errors.Is(err, ErrInvalidStack) {
		t.Fatalf("expected invalid stack, got %v", err)
	}
	// closure in terminal position
	_, err = evalTestExpr(t, []Op{ClosureOp{Ops: []Op{Value{Term: Bool(true)}}}}, nil)
	if !errors.Is(err, ErrInvalidStack) {
		t.Fatalf("expected invalid stack, got %v", err)
	}
}

func TestPrintExpression(t *testing.T) {
	symbols := NewSymbolTable()
	symbols.Insert("test1")
	symbols.Insert("test2")
	v := symbols.Insert("var1")

	e1 := Expression{Ops: []Op{
		Value{Term: Integer(-1)},
		Value{Term: Variable(v)},
		BinaryOp{Kind: BinaryLessThan},
	}}
	if got := PrintExpression(e1, symbols); got != "-1 < $var1" {
		t.Fatalf("got %q", got)
	}

	e2 := Expression{Ops: []Op{
		Value{Term: Integer(1)},
		Value{Term: Integer(2)},
		Value{Term: Integer(3)},
		BinaryOp{Kind: BinaryAdd},
		BinaryOp{Kind: BinaryLessThan},
	}}
	if got := PrintExpression(e2, symbols); got != "1 < 2 + 3" {
		t.Fatalf("got %q", got)
	}

	e3 := Expression{Ops: []Op{
		Value{Term: Integer(1)},
		Value{Term: Integer(2)},
		BinaryOp{Kind: BinaryAdd},
		Value{Term: Integer(3)},
		BinaryOp{Kind: BinaryLessThan},
	}}
	if got := PrintExpression(e3, symbols); got != "1 + 2 < 3" {
		t.Fatalf("got %q", got)
	}
}
