// Copyright 2026 The Biscuit Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package datalog

import (
	"bytes"
	"encoding/binary"
	"sort"

	"github.com/cespare/xxhash/v2"
)

// Term is the interned form of a Datalog value. String contents are symbol
// table indices; everything else is carried inline. Terms are immutable,
// equality is structural.
type Term interface {
	// Equal reports structural equality with another term of any kind.
	Equal(other Term) bool

	// Hash returns a hash of the term, stable within a process.
	Hash() uint64

	isTerm()
}

type (
	// Variable is a rule or closure variable, identified by a symbol index.
	Variable uint32

	// Integer is a signed 64-bit integer. Arithmetic on it traps on
	// overflow instead of wrapping.
	Integer int64

	// String is an index into the symbol table.
	String uint64

	// Date is an instant, in seconds since the Unix epoch. Equality has no
	// sub-second component.
	Date uint64

	// Bytes is an octet sequence.
	Bytes []byte

	// Bool is a two-valued boolean.
	Bool bool

	// Null is the unique unit value.
	Null struct{}

	// Array is an ordered, possibly heterogeneous sequence of terms.
	Array []Term
)

// Set is an unordered, deduplicated collection of non-container scalars.
// Elements are kept in canonical order so that equality and hashing are
// positional.
type Set struct {
	elems []Term
}

// NewSet builds a set from the given elements, deduplicating and ordering
// them. Elements must be scalars (no set, array, map, null or variable);
// the caller is responsible for enforcing that, deserialization does.
func NewSet(elems []Term) Set {
	sorted := make([]Term, len(elems))
	copy(sorted, elems)
	sort.SliceStable(sorted, func(i, j int) bool {
		return termCompare(sorted[i], sorted[j]) < 0
	})
	out := sorted[:0]
	for i, e := range sorted {
		if i == 0 || termCompare(sorted[i-1], e) != 0 {
			out = append(out, e)
		}
	}
	return Set{elems: out}
}

// Len returns the number of elements.
func (s Set) Len() int { return len(s.elems) }

// Elems returns the elements in canonical order. The returned slice must not
// be modified.
func (s Set) Elems() []Term { return s.elems }

// Contains reports whether the set holds an element equal to t.
func (s Set) Contains(t Term) bool {
	for _, e := range s.elems {
		if e.Equal(t) {
			return true
		}
	}
	return false
}

// IsSuperset reports whether every element of other is in s.
func (s Set) IsSuperset(other Set) bool {
	for _, e := range other.elems {
		if !s.Contains(e) {
			return false
		}
	}
	return true
}

// Intersection returns the elements present in both sets.
func (s Set) Intersection(other Set) Set {
	var out []Term
	for _, e := range s.elems {
		if other.Contains(e) {
			out = append(out, e)
		}
	}
	return NewSet(out)
}

// Union returns the elements present in either set.
func (s Set) Union(other Set) Set {
	out := make([]Term, 0, len(s.elems)+len(other.elems))
	out = append(out, s.elems...)
	out = append(out, other.elems...)
	return NewSet(out)
}

// MapKey is a map key: an integer or an interned string.
type MapKey interface {
	// Term returns the key as a term, for closure iteration.
	Term() Term

	isMapKey()
}

// IntKey is an integer map key.
type IntKey int64

// StrKey is an interned string map key.
type StrKey uint64

func (k IntKey) isMapKey() {}
func (k StrKey) isMapKey() {}

// Term returns the key as an Integer term.
func (k IntKey) Term() Term { return Integer(k) }

// Term returns the key as a String term.
func (k StrKey) Term() Term { return String(k) }

func mapKeyCompare(a, b MapKey) int {
	switch x := a.(type) {
	case IntKey:
		y, ok := b.(IntKey)
		if !ok {
			return -1
		}
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	case StrKey:
		y, ok := b.(StrKey)
		if !ok {
			return 1
		}
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	}
	return 0
}

// MapEntry is one (key, value) pair of a Map.
type MapEntry struct {
	Key   MapKey
	Value Term
}

// Map is a collection of (key, value) pairs with integer or string keys.
// Entries are kept sorted by key; duplicate keys are rejected upstream at
// deserialization.
type Map struct {
	entries []MapEntry
}

// NewMap builds a map from entries, sorting by key. A duplicate key keeps
// the first entry; deserialization rejects duplicates before reaching here.
func NewMap(entries []MapEntry) Map {
	sorted := make([]MapEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return mapKeyCompare(sorted[i].Key, sorted[j].Key) < 0
	})
	out := sorted[:0]
	for i, e := range sorted {
		if i == 0 || mapKeyCompare(sorted[i-1].Key, e.Key) != 0 {
			out = append(out, e)
		}
	}
	return Map{entries: out}
}

// Len returns the number of entries.
func (m Map) Len() int { return len(m.entries) }

// Entries returns the entries in key order. The returned slice must not be
// modified.
func (m Map) Entries() []MapEntry { return m.entries }

// Get returns the value for key, or nil if absent.
func (m Map) Get(key MapKey) Term {
	for _, e := range m.entries {
		if mapKeyCompare(e.Key, key) == 0 {
			return e.Value
		}
	}
	return nil
}

// ContainsKey reports whether the map holds the given key.
func (m Map) ContainsKey(key MapKey) bool {
	return m.Get(key) != nil
}

func (Variable) isTerm() {}
func (Integer) isTerm()  {}
func (String) isTerm()   {}
func (Date) isTerm()     {}
func (Bytes) isTerm()    {}
func (Bool) isTerm()     {}
func (Null) isTerm()     {}
func (Set) isTerm()      {}
func (Array) isTerm()    {}
func (Map) isTerm()      {}

// Equal implements Term.
func (v Variable) Equal(other Term) bool { o, ok := other.(Variable); return ok && v == o }

// Equal implements Term.
func (i Integer) Equal(other Term) bool { o, ok := other.(Integer); return ok && i == o }

// Equal implements Term.
func (s String) Equal(other Term) bool { o, ok := other.(String); return ok && s == o }

// Equal implements Term.
func (d Date) Equal(other Term) bool { o, ok := other.(Date); return ok && d == o }

// Equal implements Term.
func (b Bytes) Equal(other Term) bool {
	o, ok := other.(Bytes)
	return ok && bytes.Equal(b, o)
}

// Equal implements Term.
func (b Bool) Equal(other Term) bool { o, ok := other.(Bool); return ok && b == o }

// Equal implements Term.
func (Null) Equal(other Term) bool { _, ok := other.(Null); return ok }

// Equal implements Term. Sets compare as mathematical sets: same elements,
// order-insensitive (elements are canonically ordered at construction).
func (s Set) Equal(other Term) bool {
	o, ok := other.(Set)
	if !ok || len(s.elems) != len(o.elems) {
		return false
	}
	for i := range s.elems {
		if !s.elems[i].Equal(o.elems[i]) {
			return false
		}
	}
	return true
}

// Equal implements Term. Arrays compare positionally.
func (a Array) Equal(other Term) bool {
	o, ok := other.(Array)
	if !ok || len(a) != len(o) {
		return false
	}
	for i := range a {
		if !a[i].Equal(o[i]) {
			return false
		}
	}
	return true
}

// Equal implements Term. Maps compare entry by entry in key order.
func (m Map) Equal(other Term) bool {
	o, ok := other.(Map)
	if !ok || len(m.entries) != len(o.entries) {
		return false
	}
	for i := range m.entries {
		if mapKeyCompare(m.entries[i].Key, o.entries[i].Key) != 0 {
			return false
		}
		if !m.entries[i].Value.Equal(o.entries[i].Value) {
			return false
		}
	}
	return true
}

// Type tags used for hashing and canonical ordering. The values follow the
// wire numbering of term variants.
const (
	tagVariable = 1
	tagInteger  = 2
	tagString   = 3
	tagDate     = 4
	tagBytes    = 5
	tagBool     = 6
	tagSet      = 7
	tagNull     = 8
	tagArray    = 9
	tagMap      = 10
)

func termTag(t Term) byte {
	switch t.(type) {
	case Variable:
		return tagVariable
	case Integer:
		return tagInteger
	case String:
		return tagString
	case Date:
		return tagDate
	case Bytes:
		return tagBytes
	case Bool:
		return tagBool
	case Set:
		return tagSet
	case Null:
		return tagNull
	case Array:
		return tagArray
	case Map:
		return tagMap
	}
	return 0
}

func hashTerm(h *xxhash.Digest, t Term) {
	var buf [9]byte
	buf[0] = termTag(t)
	switch x := t.(type) {
	case Variable:
		binary.LittleEndian.PutUint64(buf[1:], uint64(x))
		h.Write(buf[:])
	case Integer:
		binary.LittleEndian.PutUint64(buf[1:], uint64(x))
		h.Write(buf[:])
	case String:
		binary.LittleEndian.PutUint64(buf[1:], uint64(x))
		h.Write(buf[:])
	case Date:
		binary.LittleEndian.PutUint64(buf[1:], uint64(x))
		h.Write(buf[:])
	case Bytes:
		h.Write(buf[:1])
		h.Write(x)
	case Bool:
		if x {
			buf[1] = 1
		}
		h.Write(buf[:2])
	case Null:
		h.Write(buf[:1])
	case Set:
		h.Write(buf[:1])
		for _, e := range x.elems {
			hashTerm(h, e)
		}
	case Array:
		h.Write(buf[:1])
		for _, e := range x {
			hashTerm(h, e)
		}
	case Map:
		h.Write(buf[:1])
		for _, e := range x.entries {
			hashTerm(h, e.Key.Term())
			hashTerm(h, e.Value)
		}
	}
}

// Hash implements Term.
func (v Variable) Hash() uint64 { return hashOne(v) }

// Hash implements Term.
func (i Integer) Hash() uint64 { return hashOne(i) }

// Hash implements Term.
func (s String) Hash() uint64 { return hashOne(s) }

// Hash implements Term.
func (d Date) Hash() uint64 { return hashOne(d) }

// Hash implements Term.
func (b Bytes) Hash() uint64 { return hashOne(b) }

// Hash implements Term.
func (b Bool) Hash() uint64 { return hashOne(b) }

// Hash implements Term.
func (n Null) Hash() uint64 { return hashOne(n) }

// Hash implements Term.
func (s Set) Hash() uint64 { return hashOne(s) }

// Hash implements Term.
func (a Array) Hash() uint64 { return hashOne(a) }

// Hash implements Term.
func (m Map) Hash() uint64 { return hashOne(m) }

func hashOne(t Term) uint64 {
	h := xxhash.New()
	hashTerm(h, t)
	return h.Sum64()
}

// termCompare defines the canonical ordering used for set elements: by type
// tag first, then by value. Only total within the scalar kinds that sets can
// hold, but defined defensively for every variant.
func termCompare(a, b Term) int {
	ta, tb := termTag(a), termTag(b)
	if ta != tb {
		return int(ta) - int(tb)
	}
	switch x := a.(type) {
	case Variable:
		return int(int64(x) - int64(b.(Variable)))
	case Integer:
		y := b.(Integer)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	case String:
		y := b.(String)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	case Date:
		y := b.(Date)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	case Bytes:
		return bytes.Compare(x, b.(Bytes))
	case Bool:
		y := b.(Bool)
		switch {
		case !bool(x) && bool(y):
			return -1
		case bool(x) && !bool(y):
			return 1
		}
		return 0
	case Null:
		return 0
	case Set:
		y := b.(Set)
		return termSliceCompare(x.elems, y.elems)
	case Array:
		return termSliceCompare(x, b.(Array))
	case Map:
		y := b.(Map)
		if d := len(x.entries) - len(y.entries); d != 0 {
			return d
		}
		for i := range x.entries {
			if d := mapKeyCompare(x.entries[i].Key, y.entries[i].Key); d != 0 {
				return d
			}
			if d := termCompare(x.entries[i].Value, y.entries[i].Value); d != 0 {
				return d
			}
		}
		return 0
	}
	return 0
}

func termSliceCompare(a, b []Term) int {
	if d := len(a) - len(b); d != 0 {
		return d
	}
	for i := range a {
		if d := termCompare(a[i], b[i]); d != 0 {
			return d
		}
	}
	return 0
}

// typeName returns the name observable through the .type() operator.
func typeName(t Term) string {
	switch t.(type) {
	case Integer:
		return "integer"
	case String:
		return "string"
	case Date:
		return "date"
	case Bytes:
		return "bytes"
	case Bool:
		return "bool"
	case Set:
		return "set"
	case Null:
		return "null"
	case Array:
		return "array"
	case Map:
		return "map"
	}
	return ""
}

// IsGround reports whether t contains no variable, at any depth.
func IsGround(t Term) bool {
	return isGround(t)
}

// isGround reports whether t contains no variable.
func isGround(t Term) bool {
	switch x := t.(type) {
	case Variable:
		return false
	case Array:
		for _, e := range x {
			if !isGround(e) {
				return false
			}
		}
	case Map:
		for _, e := range x.entries {
			if !isGround(e.Value) {
				return false
			}
		}
	}
	return true
}
