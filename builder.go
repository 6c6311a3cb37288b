// Copyright 2026 The Biscuit Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package biscuit

import (
	"errors"
	"fmt"

	"github.com/eclipse-biscuit/biscuit-go/ast"
	"github.com/eclipse-biscuit/biscuit-go/crypto"
	"github.com/eclipse-biscuit/biscuit-go/datalog"
	"github.com/eclipse-biscuit/biscuit-go/format"
)

// BlockBuilder assembles the content of one block. Validation happens when
// the block is built: facts must be ground, rules well-formed.
type BlockBuilder struct {
	facts   []ast.Fact
	rules   []ast.Rule
	checks  []ast.Check
	scopes  []ast.Scope
	context string
}

// NewBlockBuilder returns an empty block builder.
func NewBlockBuilder() *BlockBuilder {
	return &BlockBuilder{}
}

// AddFact appends a fact.
func (b *BlockBuilder) AddFact(f ast.Fact) *BlockBuilder {
	b.facts = append(b.facts, f)
	return b
}

// AddRule appends a rule.
func (b *BlockBuilder) AddRule(r ast.Rule) *BlockBuilder {
	b.rules = append(b.rules, r)
	return b
}

// AddCheck appends a check.
func (b *BlockBuilder) AddCheck(c ast.Check) *BlockBuilder {
	b.checks = append(b.checks, c)
	return b
}

// AddScope appends a block-level trust scope element, the default scope of
// the block's rules and checks.
func (b *BlockBuilder) AddScope(s ast.Scope) *BlockBuilder {
	b.scopes = append(b.scopes, s)
	return b
}

// SetContext attaches a free-form application context string.
func (b *BlockBuilder) SetContext(ctx string) *BlockBuilder {
	b.context = ctx
	return b
}

// build interns the block content into the given symbol and key space
// (clones of the token's tables for attenuation, fresh tables for the
// authority block and third-party blocks) and serializes it.
func (b *BlockBuilder) build(symbols *datalog.SymbolTable, keys *keyTable) (*Block, []byte, error) {
	symbolBase := symbols.Len()
	keyBase := len(keys.keys)

	keyConvert := func(s ast.Scope) (uint64, error) {
		return keys.insert(s.PublicKey), nil
	}

	block := &Block{context: b.context}
	for _, f := range b.facts {
		df, err := ast.ConvertFact(f, symbols)
		if err != nil {
			return nil, nil, err
		}
		for _, t := range df.Predicate.Terms {
			if !datalog.IsGround(t) {
				return nil, nil, fmt.Errorf("biscuit: fact %s is not ground", f)
			}
		}
		block.facts = append(block.facts, df)
	}
	for _, r := range b.rules {
		dr, err := ast.ConvertRule(r, symbols, keyConvert)
		if err != nil {
			return nil, nil, err
		}
		if err := dr.Validate(); err != nil {
			return nil, nil, &InvalidBlockRuleError{Rule: r.String()}
		}
		block.rules = append(block.rules, dr)
	}
	for _, c := range b.checks {
		dc, err := ast.ConvertCheck(c, symbols, keyConvert)
		if err != nil {
			return nil, nil, err
		}
		for _, q := range dc.Queries {
			if err := q.Validate(); err != nil {
				return nil, nil, &InvalidBlockRuleError{Rule: c.String()}
			}
		}
		block.checks = append(block.checks, dc)
	}
	for _, s := range b.scopes {
		var ds datalog.Scope
		switch s.Kind {
		case ast.ScopeAuthority:
			ds = datalog.Scope{Kind: datalog.ScopeAuthority}
		case ast.ScopePrevious:
			ds = datalog.Scope{Kind: datalog.ScopePrevious}
		case ast.ScopePublicKey:
			ds = datalog.Scope{Kind: datalog.ScopePublicKey, Key: keys.insert(s.PublicKey)}
		}
		block.scopes = append(block.scopes, ds)
	}

	block.symbols = symbols.SplitOff(symbolBase)
	// restore: the split is only there to collect this block's new entries
	if err := symbols.Extend(block.symbols); err != nil {
		return nil, nil, err
	}
	block.publicKeys = append([]crypto.PublicKey{}, keys.keys[keyBase:]...)
	block.version = detectBlockVersion(block)

	return block, protoFromBlock(block).Marshal(), nil
}

// Builder assembles and signs the authority block of a new token.
type Builder struct {
	block     *BlockBuilder
	rootKeyID *uint32
}

// NewBuilder returns an empty token builder.
func NewBuilder() *Builder {
	return &Builder{block: NewBlockBuilder()}
}

// AddFact appends an authority fact.
func (b *Builder) AddFact(f ast.Fact) *Builder {
	b.block.AddFact(f)
	return b
}

// AddRule appends an authority rule.
func (b *Builder) AddRule(r ast.Rule) *Builder {
	b.block.AddRule(r)
	return b
}

// AddCheck appends an authority check.
func (b *Builder) AddCheck(c ast.Check) *Builder {
	b.block.AddCheck(c)
	return b
}

// AddScope appends an authority-level trust scope element.
func (b *Builder) AddScope(s ast.Scope) *Builder {
	b.block.AddScope(s)
	return b
}

// SetContext attaches a context string to the authority block.
func (b *Builder) SetContext(ctx string) *Builder {
	b.block.SetContext(ctx)
	return b
}

// SetRootKeyID stores a key-selection hint in the token.
func (b *Builder) SetRootKeyID(id uint32) *Builder {
	b.rootKeyID = &id
	return b
}

// Build signs the authority block with the root key and a fresh ed25519
// ephemeral pair.
func (b *Builder) Build(root *crypto.KeyPair) (*Biscuit, error) {
	next, err := crypto.Generate(crypto.Ed25519, nil)
	if err != nil {
		return nil, err
	}
	defer next.Close()
	return b.BuildWithKeyPair(root, next)
}

// BuildWithKeyPair signs the authority block with the root key, using the
// provided ephemeral pair as the chain's first next key.
func (b *Builder) BuildWithKeyPair(root, next *crypto.KeyPair) (*Biscuit, error) {
	if root == nil || next == nil {
		return nil, errors.New("biscuit: nil key pair")
	}
	symbols := datalog.NewSymbolTable()
	keys := &keyTable{}
	block, blockBytes, err := b.block.build(symbols, keys)
	if err != nil {
		return nil, err
	}

	container, err := format.New(b.rootKeyID, root, next, blockBytes)
	if err != nil {
		return nil, err
	}

	return &Biscuit{
		rootKeyID: b.rootKeyID,
		blocks:    []*Block{block},
		symbols:   symbols,
		keys:      keys,
		container: container,
	}, nil
}
