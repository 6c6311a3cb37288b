// Copyright 2026 The Biscuit Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package schema

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestBlockRoundTrip(t *testing.T) {
	block := &Block{
		Symbols: []string{"file1", "check1"},
		Context: ptr("some context"),
		Version: ptr(uint32(6)),
		Facts: []*Fact{
			{Predicate: &Predicate{Name: 4, Terms: []*Term{
				{String: ptr(uint64(1024))},
				{Integer: ptr(int64(-42))},
			}}},
			{Predicate: &Predicate{Name: 5, Terms: []*Term{
				{Date: ptr(uint64(1608542592))},
				{Bytes: []byte{0x01, 0x02, 0xab}},
				{Bool: ptr(false)},
				{Null: true},
			}}},
			{Predicate: &Predicate{Name: 6, Terms: []*Term{
				{Set: &TermSet{Set: []*Term{{Integer: ptr(int64(1))}, {Integer: ptr(int64(2))}}}},
				{Array: &Array{Array: []*Term{{String: ptr(uint64(0))}}}},
				{Map: &Map{Entries: []*MapEntry{
					{Key: &MapKey{String: ptr(uint64(1025))}, Value: &Term{Integer: ptr(int64(7))}},
					{Key: &MapKey{Integer: ptr(int64(3))}, Value: &Term{Bool: ptr(true)}},
				}}},
			}}},
		},
		Rules: []*Rule{{
			Head: &Predicate{Name: 7, Terms: []*Term{{Variable: ptr(uint32(0))}}},
			Body: []*Predicate{{Name: 2, Terms: []*Term{{Variable: ptr(uint32(0))}}}},
			Expressions: []*Expression{{Ops: []*Op{
				{Value: &Term{Variable: ptr(uint32(0))}},
				{Value: &Term{Integer: ptr(int64(0))}},
				{Binary: &OpBinary{Kind: 1}},
			}}},
			Scope: []*Scope{{ScopeType: ptr(int32(1))}},
		}},
		Checks: []*Check{{
			Queries: []*Rule{{
				Head: &Predicate{Name: 8},
				Body: []*Predicate{{Name: 2, Terms: []*Term{{Variable: ptr(uint32(1))}}}},
				Expressions: []*Expression{{Ops: []*Op{
					{Value: &Term{Set: &TermSet{Set: []*Term{{Integer: ptr(int64(1))}}}}},
					{Closure: &OpClosure{Params: []uint32{2}, Ops: []*Op{
						{Value: &Term{Variable: ptr(uint32(2))}},
						{Unary: &OpUnary{Kind: 2}},
						{Value: &Term{Integer: ptr(int64(0))}},
						{Binary: &OpBinary{Kind: 21}},
					}}},
					{Binary: &OpBinary{Kind: 25}},
				}}},
			}},
			Kind: ptr(int32(2)),
		}},
		Scope:      []*Scope{{PublicKey: ptr(int64(0))}},
		PublicKeys: []*PublicKey{{Algorithm: 0, Key: make([]byte, 32)}},
	}

	data := block.Marshal()
	var parsed Block
	if err := parsed.Unmarshal(data); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(block, &parsed); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}

	// byte-for-byte stable re-encoding
	if diff := cmp.Diff(data, parsed.Marshal()); diff != "" {
		t.Fatalf("re-encoding mismatch:\n%s", diff)
	}
}

func TestBiscuitEnvelopeRoundTrip(t *testing.T) {
	env := &Biscuit{
		RootKeyID: ptr(uint32(3)),
		Authority: &SignedBlock{
			Block:     []byte("authority block"),
			NextKey:   &PublicKey{Algorithm: 0, Key: make([]byte, 32)},
			Signature: make([]byte, 64),
			Version:   ptr(uint32(1)),
		},
		Blocks: []*SignedBlock{{
			Block:     []byte("block 1"),
			NextKey:   &PublicKey{Algorithm: 1, Key: make([]byte, 33)},
			Signature: make([]byte, 64),
			ExternalSignature: &ExternalSignature{
				Signature: make([]byte, 64),
				PublicKey: &PublicKey{Algorithm: 0, Key: make([]byte, 32)},
			},
		}},
		Proof: &Proof{NextSecret: make([]byte, 32)},
	}

	data := env.Marshal()
	var parsed Biscuit
	if err := parsed.Unmarshal(data); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(env, &parsed); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestMissingRequiredFields(t *testing.T) {
	var b Biscuit
	if err := b.Unmarshal(nil); err == nil {
		t.Fatal("expected missing field error for empty Biscuit")
	}
	var term Term
	if err := term.unmarshal(nil); err == nil {
		t.Fatal("expected missing field error for empty Term")
	}
}
