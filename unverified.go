// Copyright 2026 The Biscuit Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package biscuit

import (
	"encoding/base64"
	"fmt"

	"github.com/eclipse-biscuit/biscuit-go/crypto"
	"github.com/eclipse-biscuit/biscuit-go/datalog"
	"github.com/eclipse-biscuit/biscuit-go/format"
	"github.com/eclipse-biscuit/biscuit-go/format/schema"
)

// UnverifiedBiscuit is a parsed token whose signatures have NOT been
// checked. It supports inspection (block sources, revocation ids, contexts)
// but cannot be authorized; call Verify to upgrade it.
type UnverifiedBiscuit struct {
	raw       []byte
	rootKeyID *uint32
	blocks    []*Block
	symbols   *datalog.SymbolTable
	keys      *keyTable
}

// UnverifiedFromBytes parses a token without verifying any signature.
func UnverifiedFromBytes(data []byte) (*UnverifiedBiscuit, error) {
	var pb schema.Biscuit
	if err := pb.Unmarshal(data); err != nil {
		return nil, &format.DeserializationError{Msg: err.Error()}
	}

	u := &UnverifiedBiscuit{
		raw:       append([]byte{}, data...),
		rootKeyID: pb.RootKeyID,
		symbols:   datalog.NewSymbolTable(),
		keys:      &keyTable{},
	}

	signed := make([]*schema.SignedBlock, 0, len(pb.Blocks)+1)
	signed = append(signed, pb.Authority)
	signed = append(signed, pb.Blocks...)

	for i, sb := range signed {
		var blockPb schema.Block
		if err := blockPb.Unmarshal(sb.Block); err != nil {
			return nil, &format.DeserializationError{Msg: err.Error()}
		}
		var externalKey *crypto.PublicKey
		if sb.ExternalSignature != nil {
			key, err := format.PublicKeyFromProto(sb.ExternalSignature.PublicKey)
			if err != nil {
				return nil, &format.BlockSignatureDeserializationError{Msg: err.Error()}
			}
			externalKey = &key
		}
		block, err := blockFromProto(&blockPb, externalKey)
		if err != nil {
			return nil, err
		}
		if block.externalKey == nil {
			if err := u.symbols.Extend(block.symbols); err != nil {
				return nil, &format.DeserializationError{Msg: fmt.Sprintf("block %d: %v", i, err)}
			}
			for _, k := range block.publicKeys {
				u.keys.insert(k)
			}
		}
		u.blocks = append(u.blocks, block)
	}
	return u, nil
}

// UnverifiedFromBase64 parses an unverified token from its base64 envelope.
func UnverifiedFromBase64(s string) (*UnverifiedBiscuit, error) {
	data, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return nil, &format.DeserializationError{Msg: err.Error()}
	}
	return UnverifiedFromBytes(data)
}

// Verify checks the signature chain and returns the verified token.
func (u *UnverifiedBiscuit) Verify(provider RootKeyProvider) (*Biscuit, error) {
	return FromBytes(u.raw, provider)
}

// RootKeyID returns the optional key-selection hint stored in the token.
func (u *UnverifiedBiscuit) RootKeyID() *uint32 {
	return u.rootKeyID
}

// BlockCount returns the number of blocks.
func (u *UnverifiedBiscuit) BlockCount() int {
	return len(u.blocks)
}

// Context returns each block's context string, in block order.
func (u *UnverifiedBiscuit) Context() []string {
	out := make([]string, 0, len(u.blocks))
	for _, blk := range u.blocks {
		out = append(out, blk.context)
	}
	return out
}

// ExternalPublicKeys returns, for each block, the third-party signer key
// or nil.
func (u *UnverifiedBiscuit) ExternalPublicKeys() []*crypto.PublicKey {
	out := make([]*crypto.PublicKey, 0, len(u.blocks))
	for _, blk := range u.blocks {
		out = append(out, blk.externalKey)
	}
	return out
}

// BlockVersion returns the serialization version of block index.
func (u *UnverifiedBiscuit) BlockVersion(index int) (uint32, error) {
	if index < 0 || index >= len(u.blocks) {
		return 0, &format.InvalidBlockIDError{ID: index}
	}
	return u.blocks[index].version, nil
}

// PrintBlockSource renders a block's content as Datalog source.
func (u *UnverifiedBiscuit) PrintBlockSource(index int) (string, error) {
	if index < 0 || index >= len(u.blocks) {
		return "", &format.InvalidBlockIDError{ID: index}
	}
	block := u.blocks[index]
	if block.externalKey != nil {
		return block.printSource(block.localSymbolTable(), &keyTable{keys: block.publicKeys}), nil
	}
	return block.printSource(u.symbols, u.keys), nil
}
