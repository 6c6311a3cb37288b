// Copyright 2026 The Biscuit Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package datalog

import (
	"fmt"
	"math"
	"slices"
	"strings"
)

// AuthorizerOrigin is the sentinel origin of facts, rules and checks
// supplied by the authorizer at verification time.
const AuthorizerOrigin uint64 = math.MaxUint64

// Origin is the set of block ids that collectively produced a fact. Kept
// sorted and deduplicated.
type Origin struct {
	inner []uint64
}

// NewOrigin returns an origin holding the given block ids.
func NewOrigin(ids ...uint64) Origin {
	var o Origin
	for _, id := range ids {
		o.Insert(id)
	}
	return o
}

// Insert adds a block id.
func (o *Origin) Insert(id uint64) {
	i, found := slices.BinarySearch(o.inner, id)
	if !found {
		o.inner = slices.Insert(o.inner, i, id)
	}
}

// Union returns the combined origin of o and other.
func (o Origin) Union(other Origin) Origin {
	out := Origin{inner: slices.Clone(o.inner)}
	for _, id := range other.inner {
		out.Insert(id)
	}
	return out
}

// IsSuperset reports whether o contains every id of other.
func (o Origin) IsSuperset(other Origin) bool {
	for _, id := range other.inner {
		if _, found := slices.BinarySearch(o.inner, id); !found {
			return false
		}
	}
	return true
}

// Equal reports set equality.
func (o Origin) Equal(other Origin) bool {
	return slices.Equal(o.inner, other.inner)
}

// Blocks returns the block ids in ascending order. The returned slice must
// not be modified.
func (o Origin) Blocks() []uint64 {
	return o.inner
}

func (o Origin) String() string {
	parts := make([]string, 0, len(o.inner))
	for _, id := range o.inner {
		if id == AuthorizerOrigin {
			parts = append(parts, "authorizer")
		} else {
			parts = append(parts, fmt.Sprintf("%d", id))
		}
	}
	return strings.Join(parts, ", ")
}

// ScopeKind discriminates trust scope elements.
type ScopeKind int

const (
	// ScopeAuthority trusts the authority block (block 0).
	ScopeAuthority ScopeKind = iota

	// ScopePrevious trusts every block up to and including the current one.
	ScopePrevious

	// ScopePublicKey trusts every block externally signed by a given key,
	// referenced by its index in the token's public key table.
	ScopePublicKey
)

// Scope is one element of a rule's or block's trust scope.
type Scope struct {
	Kind ScopeKind

	// Key is the public key table index, meaningful for ScopePublicKey.
	Key uint64
}

// TrustedOrigins is the set of origins a rule or check may consult. A body
// predicate only unifies with facts whose origin set is a subset of it.
type TrustedOrigins struct {
	origin Origin
}

// DefaultTrustedOrigins is the implicit scope of the authority block and the
// authorizer: the authority block and the authorizer itself.
func DefaultTrustedOrigins() TrustedOrigins {
	return TrustedOrigins{origin: NewOrigin(0, AuthorizerOrigin)}
}

// TrustedOriginsFromScopes resolves a scope list into concrete origins.
// With no scopes, the defaults apply plus the current block. The current
// block and the authorizer are always trusted; `previous` expands to every
// block id up to the current one; public key scopes resolve through the
// key index to block id mapping built during token loading.
func TrustedOriginsFromScopes(ruleScopes []Scope, defaults TrustedOrigins, currentBlock uint64, keyToBlockIDs map[uint64][]uint64) TrustedOrigins {
	if len(ruleScopes) == 0 {
		origins := Origin{inner: slices.Clone(defaults.origin.inner)}
		origins.Insert(currentBlock)
		origins.Insert(AuthorizerOrigin)
		return TrustedOrigins{origin: origins}
	}

	origins := NewOrigin(AuthorizerOrigin, currentBlock)
	for _, scope := range ruleScopes {
		switch scope.Kind {
		case ScopeAuthority:
			origins.Insert(0)
		case ScopePrevious:
			if currentBlock != AuthorizerOrigin {
				for i := uint64(0); i <= currentBlock; i++ {
					origins.Insert(i)
				}
			}
		case ScopePublicKey:
			for _, id := range keyToBlockIDs[scope.Key] {
				origins.Insert(id)
			}
		}
	}
	return TrustedOrigins{origin: origins}
}

// Contains reports whether a fact with the given origin may be consumed.
func (t TrustedOrigins) Contains(factOrigin Origin) bool {
	return t.origin.IsSuperset(factOrigin)
}

// Equal reports whether two trust scopes resolve to the same origins.
func (t TrustedOrigins) Equal(other TrustedOrigins) bool {
	return t.origin.Equal(other.origin)
}

func (t TrustedOrigins) String() string {
	return t.origin.String()
}
