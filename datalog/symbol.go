// Copyright 2026 The Biscuit Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package datalog

import (
	"errors"
	"slices"
)

// DefaultSymbols are the strings every implementation knows without them
// being transmitted in blocks. Their indices are fixed; appending to this
// list is a wire format change.
var DefaultSymbols = []string{
	"read",
	"write",
	"resource",
	"operation",
	"right",
	"time",
	"role",
	"owner",
	"tenant",
	"namespace",
	"user",
	"team",
	"service",
	"admin",
	"email",
	"group",
	"member",
	"ip_address",
	"client",
	"client_ip",
	"domain",
	"path",
	"version",
	"cluster",
	"node",
	"hostname",
	"nonce",
	"query",
}

// DefaultSymbolsOffset is the index of the first non-default symbol. The
// range between the default table and the offset is reserved for future
// default symbols.
const DefaultSymbolsOffset = 1024

// ErrSymbolTableOverlap is returned when two symbol tables that must be
// disjoint share an entry.
var ErrSymbolTableOverlap = errors.New("datalog: symbol tables are not disjoint")

// SymbolInterner is the write side of a symbol table: SymbolTable for
// block construction, TemporarySymbolTable for evaluation-time strings.
type SymbolInterner interface {
	Insert(s string) uint64
}

// SymbolTable interns strings. Indices below DefaultSymbolsOffset resolve in
// the default table; indices at or above it resolve in the table's own
// entries, which accumulate across the blocks of a token.
type SymbolTable struct {
	symbols []string
}

// NewSymbolTable returns an empty table (default symbols only).
func NewSymbolTable() *SymbolTable {
	return &SymbolTable{}
}

// Insert interns s and returns its index, reusing the default table and any
// existing entry.
func (t *SymbolTable) Insert(s string) uint64 {
	if i, ok := t.Sym(s); ok {
		return i
	}
	t.symbols = append(t.symbols, s)
	return DefaultSymbolsOffset + uint64(len(t.symbols)-1)
}

// Sym returns the index of s if it is already interned.
func (t *SymbolTable) Sym(s string) (uint64, bool) {
	for i, d := range DefaultSymbols {
		if d == s {
			return uint64(i), true
		}
	}
	for i, e := range t.symbols {
		if e == s {
			return DefaultSymbolsOffset + uint64(i), true
		}
	}
	return 0, false
}

// Str resolves an index to its string.
func (t *SymbolTable) Str(i uint64) (string, bool) {
	if i < uint64(len(DefaultSymbols)) {
		return DefaultSymbols[i], true
	}
	if i >= DefaultSymbolsOffset && i-DefaultSymbolsOffset < uint64(len(t.symbols)) {
		return t.symbols[i-DefaultSymbolsOffset], true
	}
	return "", false
}

// Strings returns the non-default entries, in insertion order. This is what
// a block serializes.
func (t *SymbolTable) Strings() []string {
	return slices.Clone(t.symbols)
}

// Len returns the number of non-default entries.
func (t *SymbolTable) Len() int {
	return len(t.symbols)
}

// IsDisjoint reports whether no entry of other also appears in t. Block
// symbol tables must be disjoint from the accumulated token table: a block
// only serializes symbols the earlier blocks did not already carry.
func (t *SymbolTable) IsDisjoint(other *SymbolTable) bool {
	for _, s := range other.symbols {
		if slices.Contains(t.symbols, s) {
			return false
		}
	}
	return true
}

// Extend appends the entries of strs, failing on overlap.
func (t *SymbolTable) Extend(strs []string) error {
	for _, s := range strs {
		if slices.Contains(t.symbols, s) {
			return ErrSymbolTableOverlap
		}
	}
	t.symbols = append(t.symbols, strs...)
	return nil
}

// SplitOff removes and returns the entries from position n onward. Builders
// use it to recover the symbols a new block introduced on top of the token's
// accumulated table.
func (t *SymbolTable) SplitOff(n int) []string {
	tail := slices.Clone(t.symbols[n:])
	t.symbols = t.symbols[:n]
	return tail
}

// Clone returns a copy sharing no state with t.
func (t *SymbolTable) Clone() *SymbolTable {
	return &SymbolTable{symbols: slices.Clone(t.symbols)}
}

// TemporarySymbolTable layers evaluation-time strings (concatenations,
// .type() names, extern results) on top of a frozen SymbolTable. Entries are
// discarded with the table once evaluation ends, they never leak into the
// token's symbol space.
type TemporarySymbolTable struct {
	base    *SymbolTable
	offset  uint64
	symbols []string
}

// NewTemporarySymbolTable wraps base for one evaluation.
func NewTemporarySymbolTable(base *SymbolTable) *TemporarySymbolTable {
	return &TemporarySymbolTable{
		base:   base,
		offset: DefaultSymbolsOffset + uint64(base.Len()),
	}
}

// Str resolves an index against the base table, then the temporary entries.
func (t *TemporarySymbolTable) Str(i uint64) (string, bool) {
	if s, ok := t.base.Str(i); ok {
		return s, true
	}
	if i >= t.offset && i-t.offset < uint64(len(t.symbols)) {
		return t.symbols[i-t.offset], true
	}
	return "", false
}

// Insert interns s for the lifetime of the evaluation.
func (t *TemporarySymbolTable) Insert(s string) uint64 {
	if i, ok := t.base.Sym(s); ok {
		return i
	}
	for i, e := range t.symbols {
		if e == s {
			return t.offset + uint64(i)
		}
	}
	t.symbols = append(t.symbols, s)
	return t.offset + uint64(len(t.symbols)-1)
}
