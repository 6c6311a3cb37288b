// Copyright 2026 The Biscuit Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package ast

import (
	"errors"
	"fmt"
	"time"

	"github.com/eclipse-biscuit/biscuit-go/datalog"
)

// Conversion errors.
var (
	ErrSetElement      = errors.New("ast: sets may only hold scalar values")
	ErrDuplicateMapKey = errors.New("ast: duplicate map key")
)

// ToDatalog interns a term into symbols. Set elements are validated: no
// nested containers, no null, no variables.
func ToDatalog(t Term, symbols datalog.SymbolInterner) (datalog.Term, error) {
	switch x := t.(type) {
	case Variable:
		return datalog.Variable(symbols.Insert(string(x))), nil
	case Integer:
		return datalog.Integer(x), nil
	case String:
		return datalog.String(symbols.Insert(string(x))), nil
	case Date:
		return datalog.Date(time.Time(x).Unix()), nil
	case Bytes:
		return datalog.Bytes(x), nil
	case Bool:
		return datalog.Bool(x), nil
	case Null:
		return datalog.Null{}, nil
	case Set:
		elems := make([]datalog.Term, 0, len(x))
		for _, e := range x {
			switch e.(type) {
			case Integer, String, Date, Bytes, Bool:
			default:
				return nil, ErrSetElement
			}
			d, err := ToDatalog(e, symbols)
			if err != nil {
				return nil, err
			}
			elems = append(elems, d)
		}
		return datalog.NewSet(elems), nil
	case Array:
		out := make(datalog.Array, 0, len(x))
		for _, e := range x {
			d, err := ToDatalog(e, symbols)
			if err != nil {
				return nil, err
			}
			out = append(out, d)
		}
		return out, nil
	case Map:
		entries := make([]datalog.MapEntry, 0, len(x))
		seen := make(map[MapKey]struct{}, len(x))
		for _, e := range x {
			if _, dup := seen[e.Key]; dup {
				return nil, ErrDuplicateMapKey
			}
			seen[e.Key] = struct{}{}
			var key datalog.MapKey
			switch k := e.Key.(type) {
			case MapIntKey:
				key = datalog.IntKey(k)
			case MapStrKey:
				key = datalog.StrKey(symbols.Insert(string(k)))
			}
			v, err := ToDatalog(e.Value, symbols)
			if err != nil {
				return nil, err
			}
			entries = append(entries, datalog.MapEntry{Key: key, Value: v})
		}
		return datalog.NewMap(entries), nil
	}
	return nil, fmt.Errorf("ast: cannot convert term %v", t)
}

// FromDatalog resolves an interned term back into a builder term.
func FromDatalog(t datalog.Term, symbols datalog.SymbolResolver) (Term, error) {
	switch x := t.(type) {
	case datalog.Variable:
		s, ok := symbols.Str(uint64(x))
		if !ok {
			return nil, fmt.Errorf("ast: unknown variable symbol %d", uint32(x))
		}
		return Variable(s), nil
	case datalog.Integer:
		return Integer(x), nil
	case datalog.String:
		s, ok := symbols.Str(uint64(x))
		if !ok {
			return nil, fmt.Errorf("ast: unknown symbol %d", uint64(x))
		}
		return String(s), nil
	case datalog.Date:
		return Date(time.Unix(int64(x), 0).UTC()), nil
	case datalog.Bytes:
		return Bytes(x), nil
	case datalog.Bool:
		return Bool(x), nil
	case datalog.Null:
		return Null{}, nil
	case datalog.Set:
		out := make(Set, 0, x.Len())
		for _, e := range x.Elems() {
			v, err := FromDatalog(e, symbols)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case datalog.Array:
		out := make(Array, 0, len(x))
		for _, e := range x {
			v, err := FromDatalog(e, symbols)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case datalog.Map:
		out := make(Map, 0, x.Len())
		for _, e := range x.Entries() {
			var key MapKey
			switch k := e.Key.(type) {
			case datalog.IntKey:
				key = MapIntKey(k)
			case datalog.StrKey:
				s, ok := symbols.Str(uint64(k))
				if !ok {
					return nil, fmt.Errorf("ast: unknown symbol %d", uint64(k))
				}
				key = MapStrKey(s)
			}
			v, err := FromDatalog(e.Value, symbols)
			if err != nil {
				return nil, err
			}
			out = append(out, MapEntry{Key: key, Value: v})
		}
		return out, nil
	}
	return nil, fmt.Errorf("ast: cannot convert datalog term %v", t)
}

// ConvertFact interns a fact.
func ConvertFact(f Fact, symbols datalog.SymbolInterner) (datalog.Fact, error) {
	p, err := convertPredicate(f.Predicate, symbols)
	if err != nil {
		return datalog.Fact{}, err
	}
	return datalog.Fact{Predicate: p}, nil
}

func convertPredicate(p Predicate, symbols datalog.SymbolInterner) (datalog.Predicate, error) {
	out := datalog.Predicate{Name: symbols.Insert(p.Name)}
	for _, t := range p.Terms {
		d, err := ToDatalog(t, symbols)
		if err != nil {
			return datalog.Predicate{}, err
		}
		out.Terms = append(out.Terms, d)
	}
	return out, nil
}

// ConvertRule interns a rule. Scope public keys are resolved by the keys
// callback, which returns the key's index in the token's key table.
func ConvertRule(r Rule, symbols datalog.SymbolInterner, keys func(Scope) (uint64, error)) (datalog.Rule, error) {
	head, err := convertPredicate(r.Head, symbols)
	if err != nil {
		return datalog.Rule{}, err
	}
	out := datalog.Rule{Head: head}
	for _, p := range r.Body {
		d, err := convertPredicate(p, symbols)
		if err != nil {
			return datalog.Rule{}, err
		}
		out.Body = append(out.Body, d)
	}
	for _, e := range r.Expressions {
		d, err := ConvertExpression(e, symbols)
		if err != nil {
			return datalog.Rule{}, err
		}
		out.Expressions = append(out.Expressions, d)
	}
	for _, s := range r.Scopes {
		d, err := convertScope(s, keys)
		if err != nil {
			return datalog.Rule{}, err
		}
		out.Scopes = append(out.Scopes, d)
	}
	return out, nil
}

func convertScope(s Scope, keys func(Scope) (uint64, error)) (datalog.Scope, error) {
	switch s.Kind {
	case ScopeAuthority:
		return datalog.Scope{Kind: datalog.ScopeAuthority}, nil
	case ScopePrevious:
		return datalog.Scope{Kind: datalog.ScopePrevious}, nil
	case ScopePublicKey:
		if keys == nil {
			return datalog.Scope{}, errors.New("ast: no key table available for public key scope")
		}
		idx, err := keys(s)
		if err != nil {
			return datalog.Scope{}, err
		}
		return datalog.Scope{Kind: datalog.ScopePublicKey, Key: idx}, nil
	}
	return datalog.Scope{}, fmt.Errorf("ast: unknown scope kind %d", s.Kind)
}

// ConvertExpression interns an expression.
func ConvertExpression(e Expression, symbols datalog.SymbolInterner) (datalog.Expression, error) {
	ops, err := convertOps(e.Ops, symbols)
	if err != nil {
		return datalog.Expression{}, err
	}
	return datalog.Expression{Ops: ops}, nil
}

func convertOps(ops []Op, symbols datalog.SymbolInterner) ([]datalog.Op, error) {
	out := make([]datalog.Op, 0, len(ops))
	for _, op := range ops {
		switch op := op.(type) {
		case OpValue:
			t, err := ToDatalog(op.Term, symbols)
			if err != nil {
				return nil, err
			}
			out = append(out, datalog.Value{Term: t})
		case OpUnary:
			d := datalog.UnaryOp{Kind: op.Kind}
			if op.Kind == datalog.UnaryFfi {
				d.FFIName = symbols.Insert(op.FFIName)
			}
			out = append(out, d)
		case OpBinary:
			d := datalog.BinaryOp{Kind: op.Kind}
			if op.Kind == datalog.BinaryFfi {
				d.FFIName = symbols.Insert(op.FFIName)
			}
			out = append(out, d)
		case OpClosure:
			params := make([]uint32, 0, len(op.Params))
			for _, p := range op.Params {
				params = append(params, uint32(symbols.Insert(p)))
			}
			inner, err := convertOps(op.Ops, symbols)
			if err != nil {
				return nil, err
			}
			out = append(out, datalog.ClosureOp{Params: params, Ops: inner})
		default:
			return nil, fmt.Errorf("ast: unknown op %T", op)
		}
	}
	return out, nil
}

// ConvertCheck interns a check.
func ConvertCheck(c Check, symbols datalog.SymbolInterner, keys func(Scope) (uint64, error)) (datalog.Check, error) {
	out := datalog.Check{Kind: c.Kind}
	for _, q := range c.Queries {
		d, err := ConvertRule(q, symbols, keys)
		if err != nil {
			return datalog.Check{}, err
		}
		out.Queries = append(out.Queries, d)
	}
	return out, nil
}
