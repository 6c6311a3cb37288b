// Copyright 2026 The Biscuit Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package schema

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// ErrMissingField is wrapped by unmarshal errors reporting an absent
// required field.
var ErrMissingField = errors.New("schema: missing required field")

func missing(msg, field string) error {
	return fmt.Errorf("%w: %s.%s", ErrMissingField, msg, field)
}

func parseErr(n int) error {
	if err := protowire.ParseError(n); err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	return errors.New("schema: malformed input")
}

func appendSubMessage(b []byte, num protowire.Number, sub []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, sub)
}

func appendVarintField(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBytesField(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendStringField(b []byte, num protowire.Number, v string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

// skipField discards an unknown field, keeping the codec forward
// compatible with newer writers.
func skipField(data []byte, num protowire.Number, typ protowire.Type) ([]byte, error) {
	n := protowire.ConsumeFieldValue(num, typ, data)
	if n < 0 {
		return nil, parseErr(n)
	}
	return data[n:], nil
}

func consumeVarint(data []byte) (uint64, []byte, error) {
	v, n := protowire.ConsumeVarint(data)
	if n < 0 {
		return 0, nil, parseErr(n)
	}
	return v, data[n:], nil
}

func consumeBytes(data []byte) ([]byte, []byte, error) {
	v, n := protowire.ConsumeBytes(data)
	if n < 0 {
		return nil, nil, parseErr(n)
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, data[n:], nil
}

func ptr[T any](v T) *T { return &v }

// --- Biscuit ---

// Marshal serializes the token envelope.
func (m *Biscuit) Marshal() []byte {
	var b []byte
	if m.RootKeyID != nil {
		b = appendVarintField(b, 1, uint64(*m.RootKeyID))
	}
	b = appendSubMessage(b, 2, m.Authority.marshal())
	for _, blk := range m.Blocks {
		b = appendSubMessage(b, 3, blk.marshal())
	}
	b = appendSubMessage(b, 4, m.Proof.marshal())
	return b
}

// Unmarshal parses the token envelope.
func (m *Biscuit) Unmarshal(data []byte) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return parseErr(n)
		}
		data = data[n:]
		var err error
		switch num {
		case 1:
			var v uint64
			if v, data, err = consumeVarint(data); err != nil {
				return err
			}
			m.RootKeyID = ptr(uint32(v))
		case 2:
			var sub []byte
			if sub, data, err = consumeBytes(data); err != nil {
				return err
			}
			m.Authority = new(SignedBlock)
			if err = m.Authority.unmarshal(sub); err != nil {
				return err
			}
		case 3:
			var sub []byte
			if sub, data, err = consumeBytes(data); err != nil {
				return err
			}
			blk := new(SignedBlock)
			if err = blk.unmarshal(sub); err != nil {
				return err
			}
			m.Blocks = append(m.Blocks, blk)
		case 4:
			var sub []byte
			if sub, data, err = consumeBytes(data); err != nil {
				return err
			}
			m.Proof = new(Proof)
			if err = m.Proof.unmarshal(sub); err != nil {
				return err
			}
		default:
			if data, err = skipField(data, num, typ); err != nil {
				return err
			}
		}
	}
	if m.Authority == nil {
		return missing("Biscuit", "authority")
	}
	if m.Proof == nil {
		return missing("Biscuit", "proof")
	}
	return nil
}

func (m *SignedBlock) marshal() []byte {
	var b []byte
	b = appendBytesField(b, 1, m.Block)
	b = appendSubMessage(b, 2, m.NextKey.marshal())
	b = appendBytesField(b, 3, m.Signature)
	if m.ExternalSignature != nil {
		b = appendSubMessage(b, 4, m.ExternalSignature.marshal())
	}
	if m.Version != nil {
		b = appendVarintField(b, 5, uint64(*m.Version))
	}
	return b
}

func (m *SignedBlock) unmarshal(data []byte) error {
	seenBlock, seenSig := false, false
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return parseErr(n)
		}
		data = data[n:]
		var err error
		switch num {
		case 1:
			if m.Block, data, err = consumeBytes(data); err != nil {
				return err
			}
			seenBlock = true
		case 2:
			var sub []byte
			if sub, data, err = consumeBytes(data); err != nil {
				return err
			}
			m.NextKey = new(PublicKey)
			if err = m.NextKey.unmarshal(sub); err != nil {
				return err
			}
		case 3:
			if m.Signature, data, err = consumeBytes(data); err != nil {
				return err
			}
			seenSig = true
		case 4:
			var sub []byte
			if sub, data, err = consumeBytes(data); err != nil {
				return err
			}
			m.ExternalSignature = new(ExternalSignature)
			if err = m.ExternalSignature.unmarshal(sub); err != nil {
				return err
			}
		case 5:
			var v uint64
			if v, data, err = consumeVarint(data); err != nil {
				return err
			}
			m.Version = ptr(uint32(v))
		default:
			if data, err = skipField(data, num, typ); err != nil {
				return err
			}
		}
	}
	if !seenBlock {
		return missing("SignedBlock", "block")
	}
	if m.NextKey == nil {
		return missing("SignedBlock", "next_key")
	}
	if !seenSig {
		return missing("SignedBlock", "signature")
	}
	return nil
}

func (m *ExternalSignature) marshal() []byte {
	var b []byte
	b = appendBytesField(b, 1, m.Signature)
	b = appendSubMessage(b, 2, m.PublicKey.marshal())
	return b
}

func (m *ExternalSignature) unmarshal(data []byte) error {
	seenSig := false
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return parseErr(n)
		}
		data = data[n:]
		var err error
		switch num {
		case 1:
			if m.Signature, data, err = consumeBytes(data); err != nil {
				return err
			}
			seenSig = true
		case 2:
			var sub []byte
			if sub, data, err = consumeBytes(data); err != nil {
				return err
			}
			m.PublicKey = new(PublicKey)
			if err = m.PublicKey.unmarshal(sub); err != nil {
				return err
			}
		default:
			if data, err = skipField(data, num, typ); err != nil {
				return err
			}
		}
	}
	if !seenSig {
		return missing("ExternalSignature", "signature")
	}
	if m.PublicKey == nil {
		return missing("ExternalSignature", "public_key")
	}
	return nil
}

func (m *PublicKey) marshal() []byte {
	var b []byte
	b = appendVarintField(b, 1, uint64(uint32(m.Algorithm)))
	b = appendBytesField(b, 2, m.Key)
	return b
}

func (m *PublicKey) unmarshal(data []byte) error {
	seenKey := false
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return parseErr(n)
		}
		data = data[n:]
		var err error
		switch num {
		case 1:
			var v uint64
			if v, data, err = consumeVarint(data); err != nil {
				return err
			}
			m.Algorithm = int32(v)
		case 2:
			if m.Key, data, err = consumeBytes(data); err != nil {
				return err
			}
			seenKey = true
		default:
			if data, err = skipField(data, num, typ); err != nil {
				return err
			}
		}
	}
	if !seenKey {
		return missing("PublicKey", "key")
	}
	return nil
}

func (m *Proof) marshal() []byte {
	var b []byte
	if m.NextSecret != nil {
		b = appendBytesField(b, 1, m.NextSecret)
	}
	if m.FinalSignature != nil {
		b = appendBytesField(b, 2, m.FinalSignature)
	}
	return b
}

func (m *Proof) unmarshal(data []byte) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return parseErr(n)
		}
		data = data[n:]
		var err error
		switch num {
		case 1:
			if m.NextSecret, data, err = consumeBytes(data); err != nil {
				return err
			}
		case 2:
			if m.FinalSignature, data, err = consumeBytes(data); err != nil {
				return err
			}
		default:
			if data, err = skipField(data, num, typ); err != nil {
				return err
			}
		}
	}
	if m.NextSecret == nil && m.FinalSignature == nil {
		return missing("Proof", "content")
	}
	return nil
}

// --- Block ---

// Marshal serializes a block payload.
func (m *Block) Marshal() []byte {
	var b []byte
	for _, s := range m.Symbols {
		b = appendStringField(b, 1, s)
	}
	if m.Context != nil {
		b = appendStringField(b, 2, *m.Context)
	}
	if m.Version != nil {
		b = appendVarintField(b, 3, uint64(*m.Version))
	}
	for _, f := range m.Facts {
		b = appendSubMessage(b, 4, f.marshal())
	}
	for _, r := range m.Rules {
		b = appendSubMessage(b, 5, r.marshal())
	}
	for _, c := range m.Checks {
		b = appendSubMessage(b, 6, c.marshal())
	}
	for _, s := range m.Scope {
		b = appendSubMessage(b, 7, s.marshal())
	}
	for _, k := range m.PublicKeys {
		b = appendSubMessage(b, 8, k.marshal())
	}
	return b
}

// Unmarshal parses a block payload.
func (m *Block) Unmarshal(data []byte) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return parseErr(n)
		}
		data = data[n:]
		var err error
		switch num {
		case 1:
			var sub []byte
			if sub, data, err = consumeBytes(data); err != nil {
				return err
			}
			m.Symbols = append(m.Symbols, string(sub))
		case 2:
			var sub []byte
			if sub, data, err = consumeBytes(data); err != nil {
				return err
			}
			m.Context = ptr(string(sub))
		case 3:
			var v uint64
			if v, data, err = consumeVarint(data); err != nil {
				return err
			}
			m.Version = ptr(uint32(v))
		case 4:
			var sub []byte
			if sub, data, err = consumeBytes(data); err != nil {
				return err
			}
			f := new(Fact)
			if err = f.unmarshal(sub); err != nil {
				return err
			}
			m.Facts = append(m.Facts, f)
		case 5:
			var sub []byte
			if sub, data, err = consumeBytes(data); err != nil {
				return err
			}
			r := new(Rule)
			if err = r.unmarshal(sub); err != nil {
				return err
			}
			m.Rules = append(m.Rules, r)
		case 6:
			var sub []byte
			if sub, data, err = consumeBytes(data); err != nil {
				return err
			}
			c := new(Check)
			if err = c.unmarshal(sub); err != nil {
				return err
			}
			m.Checks = append(m.Checks, c)
		case 7:
			var sub []byte
			if sub, data, err = consumeBytes(data); err != nil {
				return err
			}
			s := new(Scope)
			if err = s.unmarshal(sub); err != nil {
				return err
			}
			m.Scope = append(m.Scope, s)
		case 8:
			var sub []byte
			if sub, data, err = consumeBytes(data); err != nil {
				return err
			}
			k := new(PublicKey)
			if err = k.unmarshal(sub); err != nil {
				return err
			}
			m.PublicKeys = append(m.PublicKeys, k)
		default:
			if data, err = skipField(data, num, typ); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *Scope) marshal() []byte {
	var b []byte
	if m.ScopeType != nil {
		b = appendVarintField(b, 1, uint64(uint32(*m.ScopeType)))
	}
	if m.PublicKey != nil {
		b = appendVarintField(b, 2, uint64(*m.PublicKey))
	}
	return b
}

func (m *Scope) unmarshal(data []byte) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return parseErr(n)
		}
		data = data[n:]
		var err error
		switch num {
		case 1:
			var v uint64
			if v, data, err = consumeVarint(data); err != nil {
				return err
			}
			m.ScopeType = ptr(int32(v))
		case 2:
			var v uint64
			if v, data, err = consumeVarint(data); err != nil {
				return err
			}
			m.PublicKey = ptr(int64(v))
		default:
			if data, err = skipField(data, num, typ); err != nil {
				return err
			}
		}
	}
	if m.ScopeType == nil && m.PublicKey == nil {
		return missing("Scope", "content")
	}
	return nil
}

func (m *Fact) marshal() []byte {
	return appendSubMessage(nil, 1, m.Predicate.marshal())
}

func (m *Fact) unmarshal(data []byte) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return parseErr(n)
		}
		data = data[n:]
		var err error
		switch num {
		case 1:
			var sub []byte
			if sub, data, err = consumeBytes(data); err != nil {
				return err
			}
			m.Predicate = new(Predicate)
			if err = m.Predicate.unmarshal(sub); err != nil {
				return err
			}
		default:
			if data, err = skipField(data, num, typ); err != nil {
				return err
			}
		}
	}
	if m.Predicate == nil {
		return missing("Fact", "predicate")
	}
	return nil
}

func (m *Rule) marshal() []byte {
	var b []byte
	b = appendSubMessage(b, 1, m.Head.marshal())
	for _, p := range m.Body {
		b = appendSubMessage(b, 2, p.marshal())
	}
	for _, e := range m.Expressions {
		b = appendSubMessage(b, 3, e.marshal())
	}
	for _, s := range m.Scope {
		b = appendSubMessage(b, 4, s.marshal())
	}
	return b
}

func (m *Rule) unmarshal(data []byte) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return parseErr(n)
		}
		data = data[n:]
		var err error
		switch num {
		case 1:
			var sub []byte
			if sub, data, err = consumeBytes(data); err != nil {
				return err
			}
			m.Head = new(Predicate)
			if err = m.Head.unmarshal(sub); err != nil {
				return err
			}
		case 2:
			var sub []byte
			if sub, data, err = consumeBytes(data); err != nil {
				return err
			}
			p := new(Predicate)
			if err = p.unmarshal(sub); err != nil {
				return err
			}
			m.Body = append(m.Body, p)
		case 3:
			var sub []byte
			if sub, data, err = consumeBytes(data); err != nil {
				return err
			}
			e := new(Expression)
			if err = e.unmarshal(sub); err != nil {
				return err
			}
			m.Expressions = append(m.Expressions, e)
		case 4:
			var sub []byte
			if sub, data, err = consumeBytes(data); err != nil {
				return err
			}
			s := new(Scope)
			if err = s.unmarshal(sub); err != nil {
				return err
			}
			m.Scope = append(m.Scope, s)
		default:
			if data, err = skipField(data, num, typ); err != nil {
				return err
			}
		}
	}
	if m.Head == nil {
		return missing("Rule", "head")
	}
	return nil
}

func (m *Check) marshal() []byte {
	var b []byte
	for _, q := range m.Queries {
		b = appendSubMessage(b, 1, q.marshal())
	}
	if m.Kind != nil {
		b = appendVarintField(b, 2, uint64(uint32(*m.Kind)))
	}
	return b
}

func (m *Check) unmarshal(data []byte) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return parseErr(n)
		}
		data = data[n:]
		var err error
		switch num {
		case 1:
			var sub []byte
			if sub, data, err = consumeBytes(data); err != nil {
				return err
			}
			q := new(Rule)
			if err = q.unmarshal(sub); err != nil {
				return err
			}
			m.Queries = append(m.Queries, q)
		case 2:
			var v uint64
			if v, data, err = consumeVarint(data); err != nil {
				return err
			}
			m.Kind = ptr(int32(v))
		default:
			if data, err = skipField(data, num, typ); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *Predicate) marshal() []byte {
	var b []byte
	b = appendVarintField(b, 1, m.Name)
	for _, t := range m.Terms {
		b = appendSubMessage(b, 2, t.marshal())
	}
	return b
}

func (m *Predicate) unmarshal(data []byte) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return parseErr(n)
		}
		data = data[n:]
		var err error
		switch num {
		case 1:
			if m.Name, data, err = consumeVarint(data); err != nil {
				return err
			}
		case 2:
			var sub []byte
			if sub, data, err = consumeBytes(data); err != nil {
				return err
			}
			t := new(Term)
			if err = t.unmarshal(sub); err != nil {
				return err
			}
			m.Terms = append(m.Terms, t)
		default:
			if data, err = skipField(data, num, typ); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *Term) marshal() []byte {
	var b []byte
	switch {
	case m.Variable != nil:
		b = appendVarintField(b, 1, uint64(*m.Variable))
	case m.Integer != nil:
		b = appendVarintField(b, 2, uint64(*m.Integer))
	case m.String != nil:
		b = appendVarintField(b, 3, *m.String)
	case m.Date != nil:
		b = appendVarintField(b, 4, *m.Date)
	case m.Bytes != nil:
		b = appendBytesField(b, 5, m.Bytes)
	case m.Bool != nil:
		var v uint64
		if *m.Bool {
			v = 1
		}
		b = appendVarintField(b, 6, v)
	case m.Set != nil:
		b = appendSubMessage(b, 7, m.Set.marshal())
	case m.Null:
		b = appendSubMessage(b, 8, nil)
	case m.Array != nil:
		b = appendSubMessage(b, 9, m.Array.marshal())
	case m.Map != nil:
		b = appendSubMessage(b, 10, m.Map.marshal())
	}
	return b
}

func (m *Term) unmarshal(data []byte) error {
	set := false
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return parseErr(n)
		}
		data = data[n:]
		var err error
		switch num {
		case 1:
			var v uint64
			if v, data, err = consumeVarint(data); err != nil {
				return err
			}
			m.Variable = ptr(uint32(v))
		case 2:
			var v uint64
			if v, data, err = consumeVarint(data); err != nil {
				return err
			}
			m.Integer = ptr(int64(v))
		case 3:
			var v uint64
			if v, data, err = consumeVarint(data); err != nil {
				return err
			}
			m.String = ptr(v)
		case 4:
			var v uint64
			if v, data, err = consumeVarint(data); err != nil {
				return err
			}
			m.Date = ptr(v)
		case 5:
			if m.Bytes, data, err = consumeBytes(data); err != nil {
				return err
			}
		case 6:
			var v uint64
			if v, data, err = consumeVarint(data); err != nil {
				return err
			}
			m.Bool = ptr(v != 0)
		case 7:
			var sub []byte
			if sub, data, err = consumeBytes(data); err != nil {
				return err
			}
			m.Set = new(TermSet)
			if err = m.Set.unmarshal(sub); err != nil {
				return err
			}
		case 8:
			if _, data, err = consumeBytes(data); err != nil {
				return err
			}
			m.Null = true
		case 9:
			var sub []byte
			if sub, data, err = consumeBytes(data); err != nil {
				return err
			}
			m.Array = new(Array)
			if err = m.Array.unmarshal(sub); err != nil {
				return err
			}
		case 10:
			var sub []byte
			if sub, data, err = consumeBytes(data); err != nil {
				return err
			}
			m.Map = new(Map)
			if err = m.Map.unmarshal(sub); err != nil {
				return err
			}
		default:
			if data, err = skipField(data, num, typ); err != nil {
				return err
			}
			continue
		}
		set = true
	}
	if !set {
		return missing("Term", "content")
	}
	return nil
}

func (m *TermSet) marshal() []byte {
	var b []byte
	for _, t := range m.Set {
		b = appendSubMessage(b, 1, t.marshal())
	}
	return b
}

func (m *TermSet) unmarshal(data []byte) error {
	return unmarshalTermList(data, &m.Set, "TermSet")
}

func (m *Array) marshal() []byte {
	var b []byte
	for _, t := range m.Array {
		b = appendSubMessage(b, 1, t.marshal())
	}
	return b
}

func (m *Array) unmarshal(data []byte) error {
	return unmarshalTermList(data, &m.Array, "Array")
}

func unmarshalTermList(data []byte, out *[]*Term, msg string) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return parseErr(n)
		}
		data = data[n:]
		var err error
		switch num {
		case 1:
			var sub []byte
			if sub, data, err = consumeBytes(data); err != nil {
				return err
			}
			t := new(Term)
			if err = t.unmarshal(sub); err != nil {
				return err
			}
			*out = append(*out, t)
		default:
			if data, err = skipField(data, num, typ); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *Map) marshal() []byte {
	var b []byte
	for _, e := range m.Entries {
		b = appendSubMessage(b, 1, e.marshal())
	}
	return b
}

func (m *Map) unmarshal(data []byte) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return parseErr(n)
		}
		data = data[n:]
		var err error
		switch num {
		case 1:
			var sub []byte
			if sub, data, err = consumeBytes(data); err != nil {
				return err
			}
			e := new(MapEntry)
			if err = e.unmarshal(sub); err != nil {
				return err
			}
			m.Entries = append(m.Entries, e)
		default:
			if data, err = skipField(data, num, typ); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *MapEntry) marshal() []byte {
	var b []byte
	b = appendSubMessage(b, 1, m.Key.marshal())
	b = appendSubMessage(b, 2, m.Value.marshal())
	return b
}

func (m *MapEntry) unmarshal(data []byte) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return parseErr(n)
		}
		data = data[n:]
		var err error
		switch num {
		case 1:
			var sub []byte
			if sub, data, err = consumeBytes(data); err != nil {
				return err
			}
			m.Key = new(MapKey)
			if err = m.Key.unmarshal(sub); err != nil {
				return err
			}
		case 2:
			var sub []byte
			if sub, data, err = consumeBytes(data); err != nil {
				return err
			}
			m.Value = new(Term)
			if err = m.Value.unmarshal(sub); err != nil {
				return err
			}
		default:
			if data, err = skipField(data, num, typ); err != nil {
				return err
			}
		}
	}
	if m.Key == nil {
		return missing("MapEntry", "key")
	}
	if m.Value == nil {
		return missing("MapEntry", "value")
	}
	return nil
}

func (m *MapKey) marshal() []byte {
	var b []byte
	if m.Integer != nil {
		b = appendVarintField(b, 1, uint64(*m.Integer))
	}
	if m.String != nil {
		b = appendVarintField(b, 2, *m.String)
	}
	return b
}

func (m *MapKey) unmarshal(data []byte) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return parseErr(n)
		}
		data = data[n:]
		var err error
		switch num {
		case 1:
			var v uint64
			if v, data, err = consumeVarint(data); err != nil {
				return err
			}
			m.Integer = ptr(int64(v))
		case 2:
			var v uint64
			if v, data, err = consumeVarint(data); err != nil {
				return err
			}
			m.String = ptr(v)
		default:
			if data, err = skipField(data, num, typ); err != nil {
				return err
			}
		}
	}
	if m.Integer == nil && m.String == nil {
		return missing("MapKey", "content")
	}
	return nil
}

func (m *Expression) marshal() []byte {
	var b []byte
	for _, op := range m.Ops {
		b = appendSubMessage(b, 1, op.marshal())
	}
	return b
}

func (m *Expression) unmarshal(data []byte) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return parseErr(n)
		}
		data = data[n:]
		var err error
		switch num {
		case 1:
			var sub []byte
			if sub, data, err = consumeBytes(data); err != nil {
				return err
			}
			op := new(Op)
			if err = op.unmarshal(sub); err != nil {
				return err
			}
			m.Ops = append(m.Ops, op)
		default:
			if data, err = skipField(data, num, typ); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *Op) marshal() []byte {
	var b []byte
	switch {
	case m.Value != nil:
		b = appendSubMessage(b, 1, m.Value.marshal())
	case m.Unary != nil:
		b = appendSubMessage(b, 2, m.Unary.marshal())
	case m.Binary != nil:
		b = appendSubMessage(b, 3, m.Binary.marshal())
	case m.Closure != nil:
		b = appendSubMessage(b, 4, m.Closure.marshal())
	}
	return b
}

func (m *Op) unmarshal(data []byte) error {
	set := false
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return parseErr(n)
		}
		data = data[n:]
		var err error
		switch num {
		case 1:
			var sub []byte
			if sub, data, err = consumeBytes(data); err != nil {
				return err
			}
			m.Value = new(Term)
			if err = m.Value.unmarshal(sub); err != nil {
				return err
			}
		case 2:
			var sub []byte
			if sub, data, err = consumeBytes(data); err != nil {
				return err
			}
			m.Unary = new(OpUnary)
			if err = m.Unary.unmarshal(sub); err != nil {
				return err
			}
		case 3:
			var sub []byte
			if sub, data, err = consumeBytes(data); err != nil {
				return err
			}
			m.Binary = new(OpBinary)
			if err = m.Binary.unmarshal(sub); err != nil {
				return err
			}
		case 4:
			var sub []byte
			if sub, data, err = consumeBytes(data); err != nil {
				return err
			}
			m.Closure = new(OpClosure)
			if err = m.Closure.unmarshal(sub); err != nil {
				return err
			}
		default:
			if data, err = skipField(data, num, typ); err != nil {
				return err
			}
			continue
		}
		set = true
	}
	if !set {
		return missing("Op", "content")
	}
	return nil
}

func (m *OpUnary) marshal() []byte {
	var b []byte
	b = appendVarintField(b, 1, uint64(uint32(m.Kind)))
	if m.FFIName != nil {
		b = appendVarintField(b, 2, *m.FFIName)
	}
	return b
}

func (m *OpUnary) unmarshal(data []byte) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return parseErr(n)
		}
		data = data[n:]
		var err error
		switch num {
		case 1:
			var v uint64
			if v, data, err = consumeVarint(data); err != nil {
				return err
			}
			m.Kind = int32(v)
		case 2:
			var v uint64
			if v, data, err = consumeVarint(data); err != nil {
				return err
			}
			m.FFIName = ptr(v)
		default:
			if data, err = skipField(data, num, typ); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *OpBinary) marshal() []byte {
	var b []byte
	b = appendVarintField(b, 1, uint64(uint32(m.Kind)))
	if m.FFIName != nil {
		b = appendVarintField(b, 2, *m.FFIName)
	}
	return b
}

func (m *OpBinary) unmarshal(data []byte) error {
	var u OpUnary
	if err := u.unmarshal(data); err != nil {
		return err
	}
	m.Kind = u.Kind
	m.FFIName = u.FFIName
	return nil
}

func (m *OpClosure) marshal() []byte {
	var b []byte
	for _, p := range m.Params {
		b = appendVarintField(b, 1, uint64(p))
	}
	for _, op := range m.Ops {
		b = appendSubMessage(b, 2, op.marshal())
	}
	return b
}

func (m *OpClosure) unmarshal(data []byte) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return parseErr(n)
		}
		data = data[n:]
		var err error
		switch num {
		case 1:
			if typ == protowire.BytesType {
				// tolerate packed encoding on read
				var sub []byte
				if sub, data, err = consumeBytes(data); err != nil {
					return err
				}
				for len(sub) > 0 {
					var v uint64
					if v, sub, err = consumeVarint(sub); err != nil {
						return err
					}
					m.Params = append(m.Params, uint32(v))
				}
				continue
			}
			var v uint64
			if v, data, err = consumeVarint(data); err != nil {
				return err
			}
			m.Params = append(m.Params, uint32(v))
		case 2:
			var sub []byte
			if sub, data, err = consumeBytes(data); err != nil {
				return err
			}
			op := new(Op)
			if err = op.unmarshal(sub); err != nil {
				return err
			}
			m.Ops = append(m.Ops, op)
		default:
			if data, err = skipField(data, num, typ); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *Policy) marshal() []byte {
	var b []byte
	for _, q := range m.Queries {
		b = appendSubMessage(b, 1, q.marshal())
	}
	b = appendVarintField(b, 2, uint64(uint32(m.Kind)))
	return b
}

func (m *Policy) unmarshal(data []byte) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return parseErr(n)
		}
		data = data[n:]
		var err error
		switch num {
		case 1:
			var sub []byte
			if sub, data, err = consumeBytes(data); err != nil {
				return err
			}
			q := new(Rule)
			if err = q.unmarshal(sub); err != nil {
				return err
			}
			m.Queries = append(m.Queries, q)
		case 2:
			var v uint64
			if v, data, err = consumeVarint(data); err != nil {
				return err
			}
			m.Kind = int32(v)
		default:
			if data, err = skipField(data, num, typ); err != nil {
				return err
			}
		}
	}
	return nil
}

// Marshal serializes an authorizer program snapshot.
func (m *AuthorizerPolicies) Marshal() []byte {
	var b []byte
	for _, s := range m.Symbols {
		b = appendStringField(b, 1, s)
	}
	if m.Version != nil {
		b = appendVarintField(b, 2, uint64(*m.Version))
	}
	for _, f := range m.Facts {
		b = appendSubMessage(b, 3, f.marshal())
	}
	for _, r := range m.Rules {
		b = appendSubMessage(b, 4, r.marshal())
	}
	for _, c := range m.Checks {
		b = appendSubMessage(b, 5, c.marshal())
	}
	for _, p := range m.Policies {
		b = appendSubMessage(b, 6, p.marshal())
	}
	return b
}

// Unmarshal parses an authorizer program snapshot.
func (m *AuthorizerPolicies) Unmarshal(data []byte) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return parseErr(n)
		}
		data = data[n:]
		var err error
		switch num {
		case 1:
			var sub []byte
			if sub, data, err = consumeBytes(data); err != nil {
				return err
			}
			m.Symbols = append(m.Symbols, string(sub))
		case 2:
			var v uint64
			if v, data, err = consumeVarint(data); err != nil {
				return err
			}
			m.Version = ptr(uint32(v))
		case 3:
			var sub []byte
			if sub, data, err = consumeBytes(data); err != nil {
				return err
			}
			f := new(Fact)
			if err = f.unmarshal(sub); err != nil {
				return err
			}
			m.Facts = append(m.Facts, f)
		case 4:
			var sub []byte
			if sub, data, err = consumeBytes(data); err != nil {
				return err
			}
			r := new(Rule)
			if err = r.unmarshal(sub); err != nil {
				return err
			}
			m.Rules = append(m.Rules, r)
		case 5:
			var sub []byte
			if sub, data, err = consumeBytes(data); err != nil {
				return err
			}
			c := new(Check)
			if err = c.unmarshal(sub); err != nil {
				return err
			}
			m.Checks = append(m.Checks, c)
		case 6:
			var sub []byte
			if sub, data, err = consumeBytes(data); err != nil {
				return err
			}
			p := new(Policy)
			if err = p.unmarshal(sub); err != nil {
				return err
			}
			m.Policies = append(m.Policies, p)
		default:
			if data, err = skipField(data, num, typ); err != nil {
				return err
			}
		}
	}
	return nil
}

// Marshal serializes a third-party block request.
func (m *ThirdPartyBlockRequest) Marshal() []byte {
	var b []byte
	if m.LegacyPreviousKey != nil {
		b = appendSubMessage(b, 1, m.LegacyPreviousKey.marshal())
	}
	for _, k := range m.LegacyPublicKeys {
		b = appendSubMessage(b, 2, k.marshal())
	}
	b = appendBytesField(b, 3, m.PreviousSignature)
	return b
}

// Unmarshal parses a third-party block request.
func (m *ThirdPartyBlockRequest) Unmarshal(data []byte) error {
	seenSig := false
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return parseErr(n)
		}
		data = data[n:]
		var err error
		switch num {
		case 1:
			var sub []byte
			if sub, data, err = consumeBytes(data); err != nil {
				return err
			}
			m.LegacyPreviousKey = new(PublicKey)
			if err = m.LegacyPreviousKey.unmarshal(sub); err != nil {
				return err
			}
		case 2:
			var sub []byte
			if sub, data, err = consumeBytes(data); err != nil {
				return err
			}
			k := new(PublicKey)
			if err = k.unmarshal(sub); err != nil {
				return err
			}
			m.LegacyPublicKeys = append(m.LegacyPublicKeys, k)
		case 3:
			if m.PreviousSignature, data, err = consumeBytes(data); err != nil {
				return err
			}
			seenSig = true
		default:
			if data, err = skipField(data, num, typ); err != nil {
				return err
			}
		}
	}
	if !seenSig {
		return missing("ThirdPartyBlockRequest", "previous_signature")
	}
	return nil
}

// Marshal serializes a third-party block response.
func (m *ThirdPartyBlockContents) Marshal() []byte {
	var b []byte
	b = appendBytesField(b, 1, m.Payload)
	b = appendSubMessage(b, 2, m.ExternalSignature.marshal())
	return b
}

// Unmarshal parses a third-party block response.
func (m *ThirdPartyBlockContents) Unmarshal(data []byte) error {
	seenPayload := false
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return parseErr(n)
		}
		data = data[n:]
		var err error
		switch num {
		case 1:
			if m.Payload, data, err = consumeBytes(data); err != nil {
				return err
			}
			seenPayload = true
		case 2:
			var sub []byte
			if sub, data, err = consumeBytes(data); err != nil {
				return err
			}
			m.ExternalSignature = new(ExternalSignature)
			if err = m.ExternalSignature.unmarshal(sub); err != nil {
				return err
			}
		default:
			if data, err = skipField(data, num, typ); err != nil {
				return err
			}
		}
	}
	if !seenPayload {
		return missing("ThirdPartyBlockContents", "payload")
	}
	if m.ExternalSignature == nil {
		return missing("ThirdPartyBlockContents", "external_signature")
	}
	return nil
}
