// Copyright 2026 The Biscuit Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package biscuit

import (
	"fmt"
	"strings"

	"github.com/eclipse-biscuit/biscuit-go/ast"
	"github.com/eclipse-biscuit/biscuit-go/crypto"
	"github.com/eclipse-biscuit/biscuit-go/datalog"
)

// Block is the decoded content of one token block. First-party blocks
// reference the token's accumulated symbol and key tables; third-party
// blocks are interned against their own tables, since their signer cannot
// know the token's, and are re-interned when loaded into a world.
type Block struct {
	symbols     []string
	publicKeys  []crypto.PublicKey
	context     string
	version     uint32
	externalKey *crypto.PublicKey
	facts       []datalog.Fact
	rules       []datalog.Rule
	checks      []datalog.Check
	scopes      []datalog.Scope
}

// Context returns the block's free-form application context.
func (b *Block) Context() string {
	return b.context
}

// Version returns the block's serialization version.
func (b *Block) Version() uint32 {
	return b.version
}

// ExternalKey returns the third-party signer key, or nil for first-party
// blocks.
func (b *Block) ExternalKey() *crypto.PublicKey {
	return b.externalKey
}

// localSymbolTable rebuilds the symbol space a third-party block was
// interned against: the defaults plus its own entries.
func (b *Block) localSymbolTable() *datalog.SymbolTable {
	t := datalog.NewSymbolTable()
	// entries of a decoded block are disjoint by construction
	_ = t.Extend(b.symbols)
	return t
}

// keyTable is a token-wide public key list; indices are positions.
type keyTable struct {
	keys []crypto.PublicKey
}

func (t *keyTable) lookup(key crypto.PublicKey) (uint64, bool) {
	for i, k := range t.keys {
		if k.Equal(key) {
			return uint64(i), true
		}
	}
	return 0, false
}

func (t *keyTable) insert(key crypto.PublicKey) uint64 {
	if i, ok := t.lookup(key); ok {
		return i
	}
	t.keys = append(t.keys, key)
	return uint64(len(t.keys) - 1)
}

func (t *keyTable) get(i uint64) (crypto.PublicKey, bool) {
	if i >= uint64(len(t.keys)) {
		return crypto.PublicKey{}, false
	}
	return t.keys[i], true
}

// KeyString implements datalog.KeyResolver.
func (t *keyTable) KeyString(i uint64) (string, bool) {
	k, ok := t.get(i)
	if !ok {
		return "", false
	}
	return k.String(), true
}

func (t *keyTable) clone() *keyTable {
	out := &keyTable{keys: make([]crypto.PublicKey, len(t.keys))}
	copy(out.keys, t.keys)
	return out
}

// translated is a block's program expressed in a target symbol/key space,
// ready to load into a world.
type translated struct {
	facts  []datalog.Fact
	rules  []datalog.Rule
	checks []datalog.Check
	scopes []datalog.Scope
}

// translate re-expresses the block in the given global symbol and key
// space. First-party blocks are already in it; third-party blocks round
// trip through the builder representation to re-intern every string,
// variable and key reference.
func (b *Block) translate(blockID int, symbols *datalog.SymbolTable, keys *keyTable) (*translated, error) {
	if b.externalKey == nil {
		return &translated{facts: b.facts, rules: b.rules, checks: b.checks, scopes: b.scopes}, nil
	}

	local := b.localSymbolTable()
	localKeys := &keyTable{keys: b.publicKeys}

	keyFromLocal := func(s datalog.Scope) (datalog.Scope, error) {
		if s.Kind != datalog.ScopePublicKey {
			return s, nil
		}
		key, ok := localKeys.get(s.Key)
		if !ok {
			return datalog.Scope{}, &MissingSymbolsError{BlockID: blockID}
		}
		return datalog.Scope{Kind: datalog.ScopePublicKey, Key: keys.insert(key)}, nil
	}
	keyConvert := func(s ast.Scope) (uint64, error) {
		return keys.insert(s.PublicKey), nil
	}

	out := &translated{}
	for _, f := range b.facts {
		af, err := astFactFromDatalog(f, local)
		if err != nil {
			return nil, &MissingSymbolsError{BlockID: blockID}
		}
		df, err := ast.ConvertFact(af, symbols)
		if err != nil {
			return nil, err
		}
		out.facts = append(out.facts, df)
	}
	for _, r := range b.rules {
		ar, err := astRuleFromDatalog(r, local, localKeys)
		if err != nil {
			return nil, &MissingSymbolsError{BlockID: blockID}
		}
		dr, err := ast.ConvertRule(ar, symbols, keyConvert)
		if err != nil {
			return nil, err
		}
		out.rules = append(out.rules, dr)
	}
	for _, c := range b.checks {
		ac, err := astCheckFromDatalog(c, local, localKeys)
		if err != nil {
			return nil, &MissingSymbolsError{BlockID: blockID}
		}
		dc, err := ast.ConvertCheck(ac, symbols, keyConvert)
		if err != nil {
			return nil, err
		}
		out.checks = append(out.checks, dc)
	}
	for _, s := range b.scopes {
		ds, err := keyFromLocal(s)
		if err != nil {
			return nil, err
		}
		out.scopes = append(out.scopes, ds)
	}
	return out, nil
}

// printSource renders the block as Datalog source.
func (b *Block) printSource(symbols datalog.SymbolResolver, keys datalog.KeyResolver) string {
	var lines []string
	for _, f := range b.facts {
		lines = append(lines, datalog.PrintFact(f, symbols)+";")
	}
	for _, r := range b.rules {
		lines = append(lines, datalog.PrintRule(r, symbols, keys)+";")
	}
	for _, c := range b.checks {
		lines = append(lines, datalog.PrintCheck(c, symbols, keys)+";")
	}
	return strings.Join(lines, "\n")
}

// --- datalog to builder conversion, used for third-party re-interning and
// query results ---

func astFactFromDatalog(f datalog.Fact, symbols datalog.SymbolResolver) (ast.Fact, error) {
	p, err := astPredicateFromDatalog(f.Predicate, symbols)
	if err != nil {
		return ast.Fact{}, err
	}
	return ast.Fact{Predicate: p}, nil
}

func astPredicateFromDatalog(p datalog.Predicate, symbols datalog.SymbolResolver) (ast.Predicate, error) {
	name, ok := symbols.Str(p.Name)
	if !ok {
		return ast.Predicate{}, fmt.Errorf("biscuit: unknown symbol %d", p.Name)
	}
	out := ast.Predicate{Name: name}
	for _, t := range p.Terms {
		at, err := ast.FromDatalog(t, symbols)
		if err != nil {
			return ast.Predicate{}, err
		}
		out.Terms = append(out.Terms, at)
	}
	return out, nil
}

func astRuleFromDatalog(r datalog.Rule, symbols datalog.SymbolResolver, keys *keyTable) (ast.Rule, error) {
	head, err := astPredicateFromDatalog(r.Head, symbols)
	if err != nil {
		return ast.Rule{}, err
	}
	out := ast.Rule{Head: head}
	for _, p := range r.Body {
		ap, err := astPredicateFromDatalog(p, symbols)
		if err != nil {
			return ast.Rule{}, err
		}
		out.Body = append(out.Body, ap)
	}
	for _, e := range r.Expressions {
		ae, err := astExpressionFromDatalog(e, symbols)
		if err != nil {
			return ast.Rule{}, err
		}
		out.Expressions = append(out.Expressions, ae)
	}
	for _, s := range r.Scopes {
		as, err := astScopeFromDatalog(s, keys)
		if err != nil {
			return ast.Rule{}, err
		}
		out.Scopes = append(out.Scopes, as)
	}
	return out, nil
}

func astScopeFromDatalog(s datalog.Scope, keys *keyTable) (ast.Scope, error) {
	switch s.Kind {
	case datalog.ScopeAuthority:
		return ast.Scope{Kind: ast.ScopeAuthority}, nil
	case datalog.ScopePrevious:
		return ast.Scope{Kind: ast.ScopePrevious}, nil
	case datalog.ScopePublicKey:
		key, ok := keys.get(s.Key)
		if !ok {
			return ast.Scope{}, fmt.Errorf("biscuit: unknown public key %d", s.Key)
		}
		return ast.Scope{Kind: ast.ScopePublicKey, PublicKey: key}, nil
	}
	return ast.Scope{}, fmt.Errorf("biscuit: unknown scope kind %d", s.Kind)
}

func astCheckFromDatalog(c datalog.Check, symbols datalog.SymbolResolver, keys *keyTable) (ast.Check, error) {
	out := ast.Check{Kind: c.Kind}
	for _, q := range c.Queries {
		aq, err := astRuleFromDatalog(q, symbols, keys)
		if err != nil {
			return ast.Check{}, err
		}
		out.Queries = append(out.Queries, aq)
	}
	return out, nil
}

func astExpressionFromDatalog(e datalog.Expression, symbols datalog.SymbolResolver) (ast.Expression, error) {
	ops, err := astOpsFromDatalog(e.Ops, symbols)
	if err != nil {
		return ast.Expression{}, err
	}
	return ast.Expression{Ops: ops}, nil
}

func astOpsFromDatalog(ops []datalog.Op, symbols datalog.SymbolResolver) ([]ast.Op, error) {
	out := make([]ast.Op, 0, len(ops))
	for _, op := range ops {
		switch x := op.(type) {
		case datalog.Value:
			t, err := ast.FromDatalog(x.Term, symbols)
			if err != nil {
				return nil, err
			}
			out = append(out, ast.OpValue{Term: t})
		case datalog.UnaryOp:
			o := ast.OpUnary{Kind: x.Kind}
			if x.Kind == datalog.UnaryFfi {
				name, ok := symbols.Str(x.FFIName)
				if !ok {
					return nil, fmt.Errorf("biscuit: unknown symbol %d", x.FFIName)
				}
				o.FFIName = name
			}
			out = append(out, o)
		case datalog.BinaryOp:
			o := ast.OpBinary{Kind: x.Kind}
			if x.Kind == datalog.BinaryFfi {
				name, ok := symbols.Str(x.FFIName)
				if !ok {
					return nil, fmt.Errorf("biscuit: unknown symbol %d", x.FFIName)
				}
				o.FFIName = name
			}
			out = append(out, o)
		case datalog.ClosureOp:
			params := make([]string, 0, len(x.Params))
			for _, p := range x.Params {
				name, ok := symbols.Str(uint64(p))
				if !ok {
					return nil, fmt.Errorf("biscuit: unknown symbol %d", p)
				}
				params = append(params, name)
			}
			inner, err := astOpsFromDatalog(x.Ops, symbols)
			if err != nil {
				return nil, err
			}
			out = append(out, ast.OpClosure{Params: params, Ops: inner})
		}
	}
	return out, nil
}
