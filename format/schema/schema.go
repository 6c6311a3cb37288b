// Copyright 2026 The Biscuit Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package schema defines the wire messages of the Biscuit binary format and
// their protobuf codec. The message and field numbering is part of the
// cross-implementation wire contract; the codec is hand-rolled on protowire
// so the byte layout stays under test control.
package schema

// Biscuit is the top-level token envelope.
type Biscuit struct {
	RootKeyID *uint32        // field 1
	Authority *SignedBlock   // field 2, required
	Blocks    []*SignedBlock // field 3
	Proof     *Proof         // field 4, required
}

// SignedBlock carries one serialized block with its chain signature.
type SignedBlock struct {
	Block             []byte             // field 1, required
	NextKey           *PublicKey         // field 2, required
	Signature         []byte             // field 3, required
	ExternalSignature *ExternalSignature // field 4
	Version           *uint32            // field 5
}

// ExternalSignature is the third-party signature of a block.
type ExternalSignature struct {
	Signature []byte     // field 1, required
	PublicKey *PublicKey // field 2, required
}

// PublicKey pairs an algorithm tag with raw key bytes.
type PublicKey struct {
	Algorithm int32  // field 1, required: 0 = ed25519, 1 = secp256r1
	Key       []byte // field 2, required
}

// Proof terminates the chain: exactly one of the two fields is set.
type Proof struct {
	NextSecret     []byte // field 1: attenuable token
	FinalSignature []byte // field 2: sealed token
}

// Block is the structured payload of SignedBlock.Block.
type Block struct {
	Symbols    []string     // field 1
	Context    *string      // field 2
	Version    *uint32      // field 3
	Facts      []*Fact      // field 4
	Rules      []*Rule      // field 5
	Checks     []*Check     // field 6
	Scope      []*Scope     // field 7
	PublicKeys []*PublicKey // field 8
}

// Scope restricts which origins a rule or block trusts. Content is a oneof.
type Scope struct {
	ScopeType *int32 // field 1: 0 = authority, 1 = previous
	PublicKey *int64 // field 2: index into the public key table
}

// Fact wraps a ground predicate.
type Fact struct {
	Predicate *Predicate // field 1, required
}

// Rule is head <- body, expressions, scope.
type Rule struct {
	Head        *Predicate    // field 1, required
	Body        []*Predicate  // field 2
	Expressions []*Expression // field 3
	Scope       []*Scope      // field 4
}

// Check is a query disjunction with a kind.
type Check struct {
	Queries []*Rule // field 1
	Kind    *int32  // field 2: 0 = one, 1 = all, 2 = reject
}

// Predicate is a name index applied to terms.
type Predicate struct {
	Name  uint64  // field 1, required
	Terms []*Term // field 2
}

// Term is a oneof over the value variants; exactly one pointer is set.
type Term struct {
	Variable *uint32  // field 1
	Integer  *int64   // field 2
	String   *uint64  // field 3
	Date     *uint64  // field 4
	Bytes    []byte   // field 5
	Bool     *bool    // field 6
	Set      *TermSet // field 7
	Null     bool     // field 8 (Empty message presence)
	Array    *Array   // field 9
	Map      *Map     // field 10
}

// TermSet is the payload of a set term.
type TermSet struct {
	Set []*Term // field 1
}

// Array is the payload of an array term.
type Array struct {
	Array []*Term // field 1
}

// Map is the payload of a map term.
type Map struct {
	Entries []*MapEntry // field 1
}

// MapEntry is one key/value pair.
type MapEntry struct {
	Key   *MapKey // field 1, required
	Value *Term   // field 2, required
}

// MapKey is a oneof over integer and string keys.
type MapKey struct {
	Integer *int64  // field 1
	String  *uint64 // field 2
}

// Expression is a sequence of stack ops.
type Expression struct {
	Ops []*Op // field 1
}

// Op is a oneof over the op variants.
type Op struct {
	Value   *Term      // field 1
	Unary   *OpUnary   // field 2
	Binary  *OpBinary  // field 3
	Closure *OpClosure // field 4
}

// OpUnary is a unary op kind with an optional extern name.
type OpUnary struct {
	Kind    int32   // field 1, required
	FFIName *uint64 // field 2
}

// OpBinary is a binary op kind with an optional extern name.
type OpBinary struct {
	Kind    int32   // field 1, required
	FFIName *uint64 // field 2
}

// OpClosure is a parameter list with a deferred op sequence.
type OpClosure struct {
	Params []uint32 // field 1, unpacked
	Ops    []*Op    // field 2
}

// Policy is an allow/deny query disjunction.
type Policy struct {
	Queries []*Rule // field 1
	Kind    int32   // field 2, required: 0 = allow, 1 = deny
}

// AuthorizerPolicies is the snapshot form of an authorizer's own program.
type AuthorizerPolicies struct {
	Symbols  []string  // field 1
	Version  *uint32   // field 2
	Facts    []*Fact   // field 3
	Rules    []*Rule   // field 4
	Checks   []*Check  // field 5
	Policies []*Policy // field 6
}

// ThirdPartyBlockRequest is sent to an external signer: the signature of
// the token's last block, which the external signature must cover.
type ThirdPartyBlockRequest struct {
	LegacyPreviousKey *PublicKey   // field 1, deprecated
	LegacyPublicKeys  []*PublicKey // field 2, deprecated
	PreviousSignature []byte       // field 3, required
}

// ThirdPartyBlockContents is the external signer's response: the serialized
// block and its external signature.
type ThirdPartyBlockContents struct {
	Payload           []byte             // field 1, required
	ExternalSignature *ExternalSignature // field 2, required
}
