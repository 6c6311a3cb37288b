// Copyright 2026 The Biscuit Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package biscuit implements the Biscuit bearer authorization token: a
// chain of signed blocks carrying Datalog facts, rules and checks, verified
// against a root public key and authorized by combining the token's program
// with an authorizer's own facts and policies.
//
// A token is built with Builder, attenuated offline with Append, sealed
// with Seal, and authorized with AuthorizerBuilder. Third-party blocks are
// produced with ThirdPartyRequest/AppendThirdParty.
package biscuit

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/eclipse-biscuit/biscuit-go/crypto"
	"github.com/eclipse-biscuit/biscuit-go/datalog"
	"github.com/eclipse-biscuit/biscuit-go/format"
	"github.com/eclipse-biscuit/biscuit-go/format/schema"
)

// RootKeyProvider chooses the root public key used to verify a token. The
// optional root key id stored in the token is passed as a hint for key
// rotation setups.
type RootKeyProvider interface {
	Choose(rootKeyID *uint32) (crypto.PublicKey, error)
}

// RootKeyProviderFunc adapts a function to RootKeyProvider.
type RootKeyProviderFunc func(rootKeyID *uint32) (crypto.PublicKey, error)

// Choose implements RootKeyProvider.
func (f RootKeyProviderFunc) Choose(rootKeyID *uint32) (crypto.PublicKey, error) {
	return f(rootKeyID)
}

// RootKey adapts a single public key to RootKeyProvider.
func RootKey(key crypto.PublicKey) RootKeyProvider {
	return RootKeyProviderFunc(func(*uint32) (crypto.PublicKey, error) {
		return key, nil
	})
}

// Biscuit is a parsed, signature-verified token.
type Biscuit struct {
	rootKeyID *uint32
	blocks    []*Block // authority block at index 0

	// symbols accumulated from the first-party blocks
	symbols *datalog.SymbolTable

	// keys accumulated from the first-party blocks
	keys *keyTable

	container *format.SerializedBiscuit
}

// FromBytes parses a binary token and verifies its signature chain against
// the key chosen by provider.
func FromBytes(data []byte, provider RootKeyProvider) (*Biscuit, error) {
	container, err := format.Deserialize(data, provider.Choose)
	if err != nil {
		return nil, err
	}
	return fromContainer(container)
}

// FromBase64 parses a token from its URL-safe base64 envelope.
func FromBase64(s string, provider RootKeyProvider) (*Biscuit, error) {
	data, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return nil, &format.DeserializationError{Msg: err.Error()}
	}
	return FromBytes(data, provider)
}

func fromContainer(container *format.SerializedBiscuit) (*Biscuit, error) {
	b := &Biscuit{
		rootKeyID: container.RootKeyID,
		symbols:   datalog.NewSymbolTable(),
		keys:      &keyTable{},
		container: container,
	}

	signed := make([]*format.SignedBlock, 0, len(container.Blocks)+1)
	signed = append(signed, container.Authority)
	signed = append(signed, container.Blocks...)

	for i, sb := range signed {
		var pb schema.Block
		if err := pb.Unmarshal(sb.Data); err != nil {
			return nil, &format.DeserializationError{Msg: err.Error()}
		}
		var externalKey *crypto.PublicKey
		if sb.External != nil {
			key := sb.External.PublicKey
			externalKey = &key
		}
		block, err := blockFromProto(&pb, externalKey)
		if err != nil {
			return nil, err
		}
		if block.externalKey == nil {
			if err := b.symbols.Extend(block.symbols); err != nil {
				return nil, &format.DeserializationError{Msg: fmt.Sprintf("block %d: %v", i, err)}
			}
			for _, k := range block.publicKeys {
				b.keys.insert(k)
			}
		}
		b.blocks = append(b.blocks, block)
	}
	return b, nil
}

// ToBytes serializes the token.
func (b *Biscuit) ToBytes() []byte {
	return b.container.ToBytes()
}

// ToBase64 serializes the token into its URL-safe base64 envelope.
func (b *Biscuit) ToBase64() string {
	return base64.URLEncoding.EncodeToString(b.ToBytes())
}

// RootKeyID returns the optional key-selection hint stored in the token.
func (b *Biscuit) RootKeyID() *uint32 {
	return b.rootKeyID
}

// BlockCount returns the number of blocks, at least 1.
func (b *Biscuit) BlockCount() int {
	return len(b.blocks)
}

// Context returns each block's free-form context string, in block order.
func (b *Biscuit) Context() []string {
	out := make([]string, 0, len(b.blocks))
	for _, blk := range b.blocks {
		out = append(out, blk.context)
	}
	return out
}

// RevocationIdentifiers returns each block's signature bytes, in block
// order, for blacklist consultation.
func (b *Biscuit) RevocationIdentifiers() [][]byte {
	return b.container.RevocationIdentifiers()
}

// ExternalPublicKeys returns, for each block, the third-party signer key or
// nil.
func (b *Biscuit) ExternalPublicKeys() []*crypto.PublicKey {
	out := make([]*crypto.PublicKey, 0, len(b.blocks))
	for _, blk := range b.blocks {
		out = append(out, blk.externalKey)
	}
	return out
}

// BlockVersion returns the serialization version of block index.
func (b *Biscuit) BlockVersion(index int) (uint32, error) {
	if index < 0 || index >= len(b.blocks) {
		return 0, &format.InvalidBlockIDError{ID: index}
	}
	return b.blocks[index].version, nil
}

// Sealed reports whether the token can still be attenuated.
func (b *Biscuit) Sealed() bool {
	return b.container.Sealed()
}

// Seal returns a non-attenuable copy of the token.
func (b *Biscuit) Seal() (*Biscuit, error) {
	container, err := b.container.Seal()
	if err != nil {
		return nil, err
	}
	return fromContainer(container)
}

// Append attenuates the token with a new block signed by a fresh ephemeral
// key pair.
func (b *Biscuit) Append(builder *BlockBuilder) (*Biscuit, error) {
	next, err := crypto.Generate(crypto.Ed25519, nil)
	if err != nil {
		return nil, err
	}
	defer next.Close()
	return b.AppendWithKeyPair(next, builder)
}

// AppendWithKeyPair attenuates the token using the provided ephemeral pair
// to sign the following block. The pair can be discarded immediately after
// the call.
func (b *Biscuit) AppendWithKeyPair(next *crypto.KeyPair, builder *BlockBuilder) (*Biscuit, error) {
	block, blockBytes, err := builder.build(b.symbols.Clone(), b.keys.clone())
	if err != nil {
		return nil, err
	}

	container, err := b.container.Append(next, blockBytes, nil)
	if err != nil {
		return nil, err
	}

	out := &Biscuit{
		rootKeyID: b.rootKeyID,
		blocks:    append(append([]*Block{}, b.blocks...), block),
		symbols:   b.symbols.Clone(),
		keys:      b.keys.clone(),
		container: container,
	}
	if err := out.symbols.Extend(block.symbols); err != nil {
		return nil, &format.DeserializationError{Msg: err.Error()}
	}
	for _, k := range block.publicKeys {
		out.keys.insert(k)
	}
	return out, nil
}

// PrintBlockSource renders a block's content as Datalog source. Third-party
// blocks print through their own symbol table.
func (b *Biscuit) PrintBlockSource(index int) (string, error) {
	if index < 0 || index >= len(b.blocks) {
		return "", &format.InvalidBlockIDError{ID: index}
	}
	block := b.blocks[index]
	if block.externalKey != nil {
		return block.printSource(block.localSymbolTable(), &keyTable{keys: block.publicKeys}), nil
	}
	return block.printSource(b.symbols, b.keys), nil
}

// String renders the whole token for debugging.
func (b *Biscuit) String() string {
	var sb strings.Builder
	sb.WriteString("Biscuit {\n")
	fmt.Fprintf(&sb, "    symbols: %v\n", b.symbols.Strings())
	sb.WriteString("    blocks: [\n")
	for i := range b.blocks {
		src, err := b.PrintBlockSource(i)
		if err != nil {
			src = fmt.Sprintf("<error: %v>", err)
		}
		fmt.Fprintf(&sb, "        block %d {\n", i)
		for _, line := range strings.Split(src, "\n") {
			if line != "" {
				sb.WriteString("            " + line + "\n")
			}
		}
		sb.WriteString("        }\n")
	}
	sb.WriteString("    ]\n}")
	return sb.String()
}

// keyToBlockIDs maps every key index of the given table to the blocks
// externally signed by that key, the input to trust scope resolution.
func (b *Biscuit) keyToBlockIDs(keys *keyTable) map[uint64][]uint64 {
	out := make(map[uint64][]uint64)
	for i, blk := range b.blocks {
		if blk.externalKey == nil {
			continue
		}
		if idx, ok := keys.lookup(*blk.externalKey); ok {
			out[idx] = append(out[idx], uint64(i))
		}
	}
	return out
}
