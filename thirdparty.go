// Copyright 2026 The Biscuit Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package biscuit

import (
	"github.com/eclipse-biscuit/biscuit-go/crypto"
	"github.com/eclipse-biscuit/biscuit-go/datalog"
	"github.com/eclipse-biscuit/biscuit-go/format"
	"github.com/eclipse-biscuit/biscuit-go/format/schema"
)

// ThirdPartyRequest is what a token holder sends to an external signer: the
// signature of the token's last block. The external signature must cover
// it, which pins the third-party block to one position in one chain.
type ThirdPartyRequest struct {
	previousSignature []byte
}

// ThirdPartyRequest builds the request for appending a third-party block
// to this token.
func (b *Biscuit) ThirdPartyRequest() (*ThirdPartyRequest, error) {
	if b.container.Sealed() {
		return nil, &format.SignatureError{Msg: "the token is sealed"}
	}
	return &ThirdPartyRequest{
		previousSignature: b.container.ThirdPartyRequest().PreviousSignature,
	}, nil
}

// Serialize encodes the request for transport.
func (r *ThirdPartyRequest) Serialize() []byte {
	pb := schema.ThirdPartyBlockRequest{PreviousSignature: r.previousSignature}
	return pb.Marshal()
}

// ThirdPartyRequestFromBytes decodes a transported request.
func ThirdPartyRequestFromBytes(data []byte) (*ThirdPartyRequest, error) {
	var pb schema.ThirdPartyBlockRequest
	if err := pb.Unmarshal(data); err != nil {
		return nil, &format.DeserializationError{Msg: err.Error()}
	}
	return &ThirdPartyRequest{previousSignature: pb.PreviousSignature}, nil
}

// ThirdPartyBlock is an externally signed block, ready to append to the
// token the request came from.
type ThirdPartyBlock struct {
	payload  []byte
	external crypto.ExternalSignature
}

// CreateBlock builds and signs a third-party block. The block is interned
// against its own symbol table, since the signer does not know the
// token's.
func (r *ThirdPartyRequest) CreateBlock(key *crypto.KeyPair, builder *BlockBuilder) (*ThirdPartyBlock, error) {
	block, payload, err := builder.build(datalog.NewSymbolTable(), &keyTable{})
	if err != nil {
		return nil, err
	}
	// third-party blocks are a v5 construct even when their content is not
	if block.version < format.Datalog32 {
		block.version = format.Datalog32
		payload = protoFromBlock(block).Marshal()
	}

	signature, err := key.Sign(crypto.ExternalSignaturePayload(payload, r.previousSignature))
	if err != nil {
		return nil, &format.SignatureError{Msg: err.Error()}
	}
	return &ThirdPartyBlock{
		payload:  payload,
		external: crypto.ExternalSignature{PublicKey: key.Public(), Signature: signature},
	}, nil
}

// Serialize encodes the signed block for transport.
func (b *ThirdPartyBlock) Serialize() []byte {
	pb := schema.ThirdPartyBlockContents{
		Payload: b.payload,
		ExternalSignature: &schema.ExternalSignature{
			Signature: b.external.Signature,
			PublicKey: format.PublicKeyToProto(b.external.PublicKey),
		},
	}
	return pb.Marshal()
}

// ThirdPartyBlockFromBytes decodes a transported third-party block.
func ThirdPartyBlockFromBytes(data []byte) (*ThirdPartyBlock, error) {
	var pb schema.ThirdPartyBlockContents
	if err := pb.Unmarshal(data); err != nil {
		return nil, &format.DeserializationError{Msg: err.Error()}
	}
	key, err := format.PublicKeyFromProto(pb.ExternalSignature.PublicKey)
	if err != nil {
		return nil, &format.DeserializationError{Msg: err.Error()}
	}
	return &ThirdPartyBlock{
		payload:  pb.Payload,
		external: crypto.ExternalSignature{PublicKey: key, Signature: pb.ExternalSignature.Signature},
	}, nil
}

// AppendThirdParty appends an externally signed block. externalKey is the
// signer identity the caller expects; a response signed by any other key is
// rejected before any signature verification.
func (b *Biscuit) AppendThirdParty(externalKey crypto.PublicKey, block *ThirdPartyBlock) (*Biscuit, error) {
	next, err := crypto.Generate(crypto.Ed25519, nil)
	if err != nil {
		return nil, err
	}
	defer next.Close()
	return b.AppendThirdPartyWithKeyPair(externalKey, block, next)
}

// AppendThirdPartyWithKeyPair appends an externally signed block using the
// provided ephemeral pair for the chain.
func (b *Biscuit) AppendThirdPartyWithKeyPair(externalKey crypto.PublicKey, block *ThirdPartyBlock, next *crypto.KeyPair) (*Biscuit, error) {
	if !externalKey.Equal(block.external.PublicKey) {
		return nil, &format.DeserializationError{Msg: "unexpected third-party signer key"}
	}

	previousSignature := b.container.ThirdPartyRequest().PreviousSignature
	if err := crypto.VerifyExternalSignature(block.payload, previousSignature, &block.external); err != nil {
		return nil, &format.SignatureError{Msg: "external signature verification failed"}
	}

	var pb schema.Block
	if err := pb.Unmarshal(block.payload); err != nil {
		return nil, &format.DeserializationError{Msg: err.Error()}
	}
	key := block.external.PublicKey
	decoded, err := blockFromProto(&pb, &key)
	if err != nil {
		return nil, err
	}

	container, err := b.container.Append(next, block.payload, &block.external)
	if err != nil {
		return nil, err
	}

	return &Biscuit{
		rootKeyID: b.rootKeyID,
		blocks:    append(append([]*Block{}, b.blocks...), decoded),
		symbols:   b.symbols.Clone(),
		keys:      b.keys.clone(),
		container: container,
	}, nil
}
