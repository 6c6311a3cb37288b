// Copyright 2026 The Biscuit Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package biscuit

import (
	"github.com/eclipse-biscuit/biscuit-go/crypto"
	"github.com/eclipse-biscuit/biscuit-go/datalog"
	"github.com/eclipse-biscuit/biscuit-go/format"
	"github.com/eclipse-biscuit/biscuit-go/format/schema"
)

func deserializationError(msg string) error {
	return &format.DeserializationError{Msg: msg}
}

func ptr[T any](v T) *T { return &v }

// --- terms ---

func protoFromTerm(t datalog.Term) *schema.Term {
	switch x := t.(type) {
	case datalog.Variable:
		return &schema.Term{Variable: ptr(uint32(x))}
	case datalog.Integer:
		return &schema.Term{Integer: ptr(int64(x))}
	case datalog.String:
		return &schema.Term{String: ptr(uint64(x))}
	case datalog.Date:
		return &schema.Term{Date: ptr(uint64(x))}
	case datalog.Bytes:
		out := x
		if out == nil {
			out = []byte{}
		}
		return &schema.Term{Bytes: out}
	case datalog.Bool:
		return &schema.Term{Bool: ptr(bool(x))}
	case datalog.Null:
		return &schema.Term{Null: true}
	case datalog.Set:
		set := &schema.TermSet{}
		for _, e := range x.Elems() {
			set.Set = append(set.Set, protoFromTerm(e))
		}
		return &schema.Term{Set: set}
	case datalog.Array:
		arr := &schema.Array{}
		for _, e := range x {
			arr.Array = append(arr.Array, protoFromTerm(e))
		}
		return &schema.Term{Array: arr}
	case datalog.Map:
		m := &schema.Map{}
		for _, e := range x.Entries() {
			key := &schema.MapKey{}
			switch k := e.Key.(type) {
			case datalog.IntKey:
				key.Integer = ptr(int64(k))
			case datalog.StrKey:
				key.String = ptr(uint64(k))
			}
			m.Entries = append(m.Entries, &schema.MapEntry{
				Key:   key,
				Value: protoFromTerm(e.Value),
			})
		}
		return &schema.Term{Map: m}
	}
	return &schema.Term{}
}

func termFromProto(pb *schema.Term) (datalog.Term, error) {
	switch {
	case pb.Variable != nil:
		return datalog.Variable(*pb.Variable), nil
	case pb.Integer != nil:
		return datalog.Integer(*pb.Integer), nil
	case pb.String != nil:
		return datalog.String(*pb.String), nil
	case pb.Date != nil:
		return datalog.Date(*pb.Date), nil
	case pb.Bytes != nil:
		return datalog.Bytes(pb.Bytes), nil
	case pb.Bool != nil:
		return datalog.Bool(*pb.Bool), nil
	case pb.Null:
		return datalog.Null{}, nil
	case pb.Set != nil:
		var elems []datalog.Term
		kind := -1
		for _, e := range pb.Set.Set {
			switch {
			case e.Variable != nil:
				return nil, deserializationError("sets cannot contain variables")
			case e.Set != nil:
				return nil, deserializationError("sets cannot contain other sets")
			case e.Array != nil || e.Map != nil || e.Null:
				return nil, deserializationError("sets may only hold scalar values")
			}
			t, err := termFromProto(e)
			if err != nil {
				return nil, err
			}
			tk := termKindIndex(t)
			if kind == -1 {
				kind = tk
			} else if kind != tk {
				return nil, deserializationError("set elements must have the same type")
			}
			elems = append(elems, t)
		}
		return datalog.NewSet(elems), nil
	case pb.Array != nil:
		out := make(datalog.Array, 0, len(pb.Array.Array))
		for _, e := range pb.Array.Array {
			t, err := termFromProto(e)
			if err != nil {
				return nil, err
			}
			out = append(out, t)
		}
		return out, nil
	case pb.Map != nil:
		entries := make([]datalog.MapEntry, 0, len(pb.Map.Entries))
		seenInt := make(map[int64]struct{})
		seenStr := make(map[uint64]struct{})
		for _, e := range pb.Map.Entries {
			var key datalog.MapKey
			switch {
			case e.Key.Integer != nil:
				if _, dup := seenInt[*e.Key.Integer]; dup {
					return nil, deserializationError("duplicate map key")
				}
				seenInt[*e.Key.Integer] = struct{}{}
				key = datalog.IntKey(*e.Key.Integer)
			case e.Key.String != nil:
				if _, dup := seenStr[*e.Key.String]; dup {
					return nil, deserializationError("duplicate map key")
				}
				seenStr[*e.Key.String] = struct{}{}
				key = datalog.StrKey(*e.Key.String)
			default:
				return nil, deserializationError("map key content is empty")
			}
			v, err := termFromProto(e.Value)
			if err != nil {
				return nil, err
			}
			entries = append(entries, datalog.MapEntry{Key: key, Value: v})
		}
		return datalog.NewMap(entries), nil
	}
	return nil, deserializationError("term content is empty")
}

func termKindIndex(t datalog.Term) int {
	switch t.(type) {
	case datalog.Integer:
		return 2
	case datalog.String:
		return 3
	case datalog.Date:
		return 4
	case datalog.Bytes:
		return 5
	case datalog.Bool:
		return 6
	}
	return 0
}

// --- predicates, facts ---

func protoFromPredicate(p datalog.Predicate) *schema.Predicate {
	out := &schema.Predicate{Name: p.Name}
	for _, t := range p.Terms {
		out.Terms = append(out.Terms, protoFromTerm(t))
	}
	return out
}

func predicateFromProto(pb *schema.Predicate) (datalog.Predicate, error) {
	out := datalog.Predicate{Name: pb.Name}
	for _, t := range pb.Terms {
		term, err := termFromProto(t)
		if err != nil {
			return datalog.Predicate{}, err
		}
		out.Terms = append(out.Terms, term)
	}
	return out, nil
}

func protoFromFact(f datalog.Fact) *schema.Fact {
	return &schema.Fact{Predicate: protoFromPredicate(f.Predicate)}
}

func factFromProto(pb *schema.Fact) (datalog.Fact, error) {
	p, err := predicateFromProto(pb.Predicate)
	if err != nil {
		return datalog.Fact{}, err
	}
	return datalog.Fact{Predicate: p}, nil
}

// --- expressions ---

func protoFromOp(op datalog.Op) *schema.Op {
	switch x := op.(type) {
	case datalog.Value:
		return &schema.Op{Value: protoFromTerm(x.Term)}
	case datalog.UnaryOp:
		u := &schema.OpUnary{Kind: int32(x.Kind)}
		if x.Kind == datalog.UnaryFfi {
			u.FFIName = ptr(x.FFIName)
		}
		return &schema.Op{Unary: u}
	case datalog.BinaryOp:
		b := &schema.OpBinary{Kind: int32(x.Kind)}
		if x.Kind == datalog.BinaryFfi {
			b.FFIName = ptr(x.FFIName)
		}
		return &schema.Op{Binary: b}
	case datalog.ClosureOp:
		c := &schema.OpClosure{Params: x.Params}
		for _, inner := range x.Ops {
			c.Ops = append(c.Ops, protoFromOp(inner))
		}
		return &schema.Op{Closure: c}
	}
	return &schema.Op{}
}

func opFromProto(pb *schema.Op) (datalog.Op, error) {
	switch {
	case pb.Value != nil:
		t, err := termFromProto(pb.Value)
		if err != nil {
			return nil, err
		}
		return datalog.Value{Term: t}, nil
	case pb.Unary != nil:
		kind := datalog.UnaryKind(pb.Unary.Kind)
		if kind < datalog.UnaryNegate || kind > datalog.UnaryFfi {
			return nil, deserializationError("unary operation is invalid")
		}
		if (kind == datalog.UnaryFfi) != (pb.Unary.FFIName != nil) {
			return nil, deserializationError("mismatched ffi name on unary operation")
		}
		out := datalog.UnaryOp{Kind: kind}
		if pb.Unary.FFIName != nil {
			out.FFIName = *pb.Unary.FFIName
		}
		return out, nil
	case pb.Binary != nil:
		kind := datalog.BinaryKind(pb.Binary.Kind)
		if kind < datalog.BinaryLessThan || kind > datalog.BinaryTryOr {
			return nil, deserializationError("binary operation is invalid")
		}
		if (kind == datalog.BinaryFfi) != (pb.Binary.FFIName != nil) {
			return nil, deserializationError("mismatched ffi name on binary operation")
		}
		out := datalog.BinaryOp{Kind: kind}
		if pb.Binary.FFIName != nil {
			out.FFIName = *pb.Binary.FFIName
		}
		return out, nil
	case pb.Closure != nil:
		out := datalog.ClosureOp{Params: pb.Closure.Params}
		for _, inner := range pb.Closure.Ops {
			op, err := opFromProto(inner)
			if err != nil {
				return nil, err
			}
			out.Ops = append(out.Ops, op)
		}
		return out, nil
	}
	return nil, deserializationError("operation is empty")
}

func protoFromExpression(e datalog.Expression) *schema.Expression {
	out := &schema.Expression{}
	for _, op := range e.Ops {
		out.Ops = append(out.Ops, protoFromOp(op))
	}
	return out
}

func expressionFromProto(pb *schema.Expression) (datalog.Expression, error) {
	var out datalog.Expression
	for _, op := range pb.Ops {
		o, err := opFromProto(op)
		if err != nil {
			return datalog.Expression{}, err
		}
		out.Ops = append(out.Ops, o)
	}
	return out, nil
}

// --- scopes, rules, checks ---

func protoFromScope(s datalog.Scope) *schema.Scope {
	switch s.Kind {
	case datalog.ScopeAuthority:
		return &schema.Scope{ScopeType: ptr(int32(0))}
	case datalog.ScopePrevious:
		return &schema.Scope{ScopeType: ptr(int32(1))}
	case datalog.ScopePublicKey:
		return &schema.Scope{PublicKey: ptr(int64(s.Key))}
	}
	return &schema.Scope{}
}

func scopeFromProto(pb *schema.Scope) (datalog.Scope, error) {
	switch {
	case pb.ScopeType != nil:
		switch *pb.ScopeType {
		case 0:
			return datalog.Scope{Kind: datalog.ScopeAuthority}, nil
		case 1:
			return datalog.Scope{Kind: datalog.ScopePrevious}, nil
		default:
			return datalog.Scope{}, deserializationError("unexpected scope type")
		}
	case pb.PublicKey != nil:
		return datalog.Scope{Kind: datalog.ScopePublicKey, Key: uint64(*pb.PublicKey)}, nil
	}
	return datalog.Scope{}, deserializationError("scope content is empty")
}

func protoFromRule(r datalog.Rule) *schema.Rule {
	out := &schema.Rule{Head: protoFromPredicate(r.Head)}
	for _, p := range r.Body {
		out.Body = append(out.Body, protoFromPredicate(p))
	}
	for _, e := range r.Expressions {
		out.Expressions = append(out.Expressions, protoFromExpression(e))
	}
	for _, s := range r.Scopes {
		out.Scope = append(out.Scope, protoFromScope(s))
	}
	return out
}

func ruleFromProto(pb *schema.Rule) (datalog.Rule, error) {
	head, err := predicateFromProto(pb.Head)
	if err != nil {
		return datalog.Rule{}, err
	}
	out := datalog.Rule{Head: head}
	for _, p := range pb.Body {
		pred, err := predicateFromProto(p)
		if err != nil {
			return datalog.Rule{}, err
		}
		out.Body = append(out.Body, pred)
	}
	for _, e := range pb.Expressions {
		expr, err := expressionFromProto(e)
		if err != nil {
			return datalog.Rule{}, err
		}
		out.Expressions = append(out.Expressions, expr)
	}
	for _, s := range pb.Scope {
		scope, err := scopeFromProto(s)
		if err != nil {
			return datalog.Rule{}, err
		}
		out.Scopes = append(out.Scopes, scope)
	}
	return out, nil
}

func protoFromCheck(c datalog.Check) *schema.Check {
	out := &schema.Check{}
	for _, q := range c.Queries {
		out.Queries = append(out.Queries, protoFromRule(q))
	}
	switch c.Kind {
	case datalog.CheckOne:
		// the default kind stays implicit for compatibility with v3 readers
	case datalog.CheckAll:
		out.Kind = ptr(int32(1))
	case datalog.CheckReject:
		out.Kind = ptr(int32(2))
	}
	return out
}

func checkFromProto(pb *schema.Check) (datalog.Check, error) {
	var out datalog.Check
	for _, q := range pb.Queries {
		r, err := ruleFromProto(q)
		if err != nil {
			return datalog.Check{}, err
		}
		out.Queries = append(out.Queries, r)
	}
	switch {
	case pb.Kind == nil || *pb.Kind == 0:
		out.Kind = datalog.CheckOne
	case *pb.Kind == 1:
		out.Kind = datalog.CheckAll
	case *pb.Kind == 2:
		out.Kind = datalog.CheckReject
	default:
		return datalog.Check{}, deserializationError("invalid check kind")
	}
	return out, nil
}

// --- blocks ---

func protoFromBlock(b *Block) *schema.Block {
	out := &schema.Block{
		Symbols: b.symbols,
		Version: ptr(b.version),
	}
	if b.context != "" {
		out.Context = ptr(b.context)
	}
	for _, f := range b.facts {
		out.Facts = append(out.Facts, protoFromFact(f))
	}
	for _, r := range b.rules {
		out.Rules = append(out.Rules, protoFromRule(r))
	}
	for _, c := range b.checks {
		out.Checks = append(out.Checks, protoFromCheck(c))
	}
	for _, s := range b.scopes {
		out.Scope = append(out.Scope, protoFromScope(s))
	}
	for _, k := range b.publicKeys {
		out.PublicKeys = append(out.PublicKeys, format.PublicKeyToProto(k))
	}
	return out
}

func blockFromProto(pb *schema.Block, externalKey *crypto.PublicKey) (*Block, error) {
	version := uint32(0)
	if pb.Version != nil {
		version = *pb.Version
	}
	if version < format.MinSchemaVersion || version > format.MaxSchemaVersion {
		return nil, &format.VersionError{
			Minimum: format.MinSchemaVersion,
			Maximum: format.MaxSchemaVersion,
			Actual:  version,
		}
	}
	if externalKey != nil && version < format.Datalog32 {
		return nil, deserializationError("third-party blocks are only supported in datalog v3.2+")
	}

	out := &Block{
		symbols:     pb.Symbols,
		version:     version,
		externalKey: externalKey,
	}
	if pb.Context != nil {
		out.context = *pb.Context
	}
	for _, f := range pb.Facts {
		fact, err := factFromProto(f)
		if err != nil {
			return nil, err
		}
		out.facts = append(out.facts, fact)
	}
	for _, r := range pb.Rules {
		rule, err := ruleFromProto(r)
		if err != nil {
			return nil, err
		}
		out.rules = append(out.rules, rule)
	}
	for _, c := range pb.Checks {
		if version < format.Datalog31 && c.Kind != nil {
			return nil, deserializationError("check kinds are only supported on datalog v3.1+ blocks")
		}
		if version < format.Datalog33 && c.Kind != nil && *c.Kind == 2 {
			return nil, deserializationError("reject if is only supported in datalog v3.3+")
		}
		check, err := checkFromProto(c)
		if err != nil {
			return nil, err
		}
		out.checks = append(out.checks, check)
	}
	for _, s := range pb.Scope {
		scope, err := scopeFromProto(s)
		if err != nil {
			return nil, err
		}
		out.scopes = append(out.scopes, scope)
	}
	for _, k := range pb.PublicKeys {
		key, err := format.PublicKeyFromProto(k)
		if err != nil {
			return nil, deserializationError(err.Error())
		}
		out.publicKeys = append(out.publicKeys, key)
	}

	if detected := detectBlockVersion(out); detected > version {
		return nil, deserializationError("block uses constructs above its declared version")
	}
	return out, nil
}

// --- version detection ---

func maxVersion(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}

func termMinVersion(t datalog.Term) uint32 {
	switch x := t.(type) {
	case datalog.Null:
		return format.Datalog33
	case datalog.Array:
		return format.Datalog33
	case datalog.Map:
		return format.Datalog33
	case datalog.Set:
		v := format.MinSchemaVersion
		for _, e := range x.Elems() {
			v = maxVersion(v, termMinVersion(e))
		}
		return v
	default:
		return format.MinSchemaVersion
	}
}

func opsMinVersion(ops []datalog.Op) uint32 {
	v := format.MinSchemaVersion
	for _, op := range ops {
		switch x := op.(type) {
		case datalog.Value:
			v = maxVersion(v, termMinVersion(x.Term))
		case datalog.UnaryOp:
			switch x.Kind {
			case datalog.UnaryTypeOf, datalog.UnaryFfi:
				v = maxVersion(v, format.Datalog33)
			}
		case datalog.BinaryOp:
			switch x.Kind {
			case datalog.BinaryBitwiseAnd, datalog.BinaryBitwiseOr, datalog.BinaryBitwiseXor, datalog.BinaryNotEqual:
				v = maxVersion(v, format.Datalog31)
			case datalog.BinaryHeterogeneousEqual, datalog.BinaryHeterogeneousNotEqual,
				datalog.BinaryLazyAnd, datalog.BinaryLazyOr,
				datalog.BinaryAll, datalog.BinaryAny,
				datalog.BinaryGet, datalog.BinaryFfi, datalog.BinaryTryOr:
				v = maxVersion(v, format.Datalog33)
			}
		case datalog.ClosureOp:
			v = maxVersion(v, format.Datalog33)
			v = maxVersion(v, opsMinVersion(x.Ops))
		}
	}
	return v
}

func ruleMinVersion(r datalog.Rule) uint32 {
	v := format.MinSchemaVersion
	for _, t := range r.Head.Terms {
		v = maxVersion(v, termMinVersion(t))
	}
	for _, p := range r.Body {
		for _, t := range p.Terms {
			v = maxVersion(v, termMinVersion(t))
		}
	}
	for _, e := range r.Expressions {
		v = maxVersion(v, opsMinVersion(e.Ops))
	}
	for _, s := range r.Scopes {
		if s.Kind == datalog.ScopePublicKey {
			v = maxVersion(v, format.Datalog32)
		} else {
			v = maxVersion(v, format.Datalog31)
		}
	}
	return v
}

// detectBlockVersion computes the lowest block version able to carry the
// block's constructs. Builders stamp it; deserialization enforces it.
func detectBlockVersion(b *Block) uint32 {
	v := format.MinSchemaVersion
	for _, f := range b.facts {
		for _, t := range f.Predicate.Terms {
			v = maxVersion(v, termMinVersion(t))
		}
	}
	for _, r := range b.rules {
		v = maxVersion(v, ruleMinVersion(r))
	}
	for _, c := range b.checks {
		if c.Kind != datalog.CheckOne {
			v = maxVersion(v, format.Datalog31)
		}
		if c.Kind == datalog.CheckReject {
			v = maxVersion(v, format.Datalog33)
		}
		for _, q := range c.Queries {
			v = maxVersion(v, ruleMinVersion(q))
		}
	}
	for _, s := range b.scopes {
		if s.Kind == datalog.ScopePublicKey {
			v = maxVersion(v, format.Datalog32)
		} else {
			v = maxVersion(v, format.Datalog31)
		}
	}
	if b.externalKey != nil {
		v = maxVersion(v, format.Datalog32)
	}
	return v
}
