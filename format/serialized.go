// Copyright 2026 The Biscuit Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package format implements the Biscuit binary envelope: parsing and
// serializing the signed block sequence, verifying the signature chain
// against a root key, appending blocks, and sealing.
package format

import (
	"github.com/eclipse-biscuit/biscuit-go/crypto"
	"github.com/eclipse-biscuit/biscuit-go/format/schema"
)

// Supported block versions.
const (
	// MinSchemaVersion is the lowest block version this implementation
	// accepts.
	MinSchemaVersion uint32 = 3

	// MaxSchemaVersion is the highest block version this implementation
	// produces and accepts.
	MaxSchemaVersion uint32 = 6

	// Datalog31 is the first version with check kinds, bitwise operators
	// and rule scopes.
	Datalog31 uint32 = 4

	// Datalog32 is the first version with third-party blocks.
	Datalog32 uint32 = 5

	// Datalog33 is the first version with reject-if, closures, null,
	// arrays, maps and extern calls.
	Datalog33 uint32 = 6
)

// SignedBlock is one block of the chain in decoded form.
type SignedBlock struct {
	Data      []byte
	NextKey   crypto.PublicKey
	Signature []byte
	External  *crypto.ExternalSignature
}

// SerializedBiscuit is the decoded, signature-verified envelope of a token.
type SerializedBiscuit struct {
	RootKeyID *uint32
	Authority *SignedBlock
	Blocks    []*SignedBlock

	// exactly one of the two is set
	proofSecret []byte
	proofSeal   []byte
}

// PublicKeyFromProto decodes a wire public key.
func PublicKeyFromProto(pb *schema.PublicKey) (crypto.PublicKey, error) {
	return crypto.PublicKeyFromBytes(crypto.Algorithm(pb.Algorithm), pb.Key)
}

// PublicKeyToProto encodes a public key for the wire.
func PublicKeyToProto(k crypto.PublicKey) *schema.PublicKey {
	return &schema.PublicKey{Algorithm: int32(k.Algorithm()), Key: k.Bytes()}
}

func signedBlockFromProto(pb *schema.SignedBlock) (*SignedBlock, error) {
	nextKey, err := PublicKeyFromProto(pb.NextKey)
	if err != nil {
		return nil, &BlockSignatureDeserializationError{Msg: err.Error()}
	}
	out := &SignedBlock{
		Data:      pb.Block,
		NextKey:   nextKey,
		Signature: pb.Signature,
	}
	if pb.ExternalSignature != nil {
		externalKey, err := PublicKeyFromProto(pb.ExternalSignature.PublicKey)
		if err != nil {
			return nil, &BlockSignatureDeserializationError{Msg: err.Error()}
		}
		out.External = &crypto.ExternalSignature{
			PublicKey: externalKey,
			Signature: pb.ExternalSignature.Signature,
		}
	}
	return out, nil
}

func signedBlockToProto(b *SignedBlock) *schema.SignedBlock {
	out := &schema.SignedBlock{
		Block:     b.Data,
		NextKey:   PublicKeyToProto(b.NextKey),
		Signature: b.Signature,
	}
	if b.External != nil {
		out.ExternalSignature = &schema.ExternalSignature{
			Signature: b.External.Signature,
			PublicKey: PublicKeyToProto(b.External.PublicKey),
		}
	}
	return out
}

// Deserialize parses a binary token and verifies the whole signature chain.
// choose resolves the root public key, optionally keyed by the token's root
// key id hint. The proof discriminator is only acted on after its signature
// material verifies.
func Deserialize(data []byte, choose func(rootKeyID *uint32) (crypto.PublicKey, error)) (*SerializedBiscuit, error) {
	var pb schema.Biscuit
	if err := pb.Unmarshal(data); err != nil {
		return nil, &DeserializationError{Msg: err.Error()}
	}

	root, err := choose(pb.RootKeyID)
	if err != nil {
		return nil, err
	}

	authority, err := signedBlockFromProto(pb.Authority)
	if err != nil {
		return nil, err
	}
	blocks := make([]*SignedBlock, 0, len(pb.Blocks))
	for _, blk := range pb.Blocks {
		b, err := signedBlockFromProto(blk)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, b)
	}

	s := &SerializedBiscuit{
		RootKeyID:   pb.RootKeyID,
		Authority:   authority,
		Blocks:      blocks,
		proofSecret: pb.Proof.NextSecret,
		proofSeal:   pb.Proof.FinalSignature,
	}
	if err := s.verify(root); err != nil {
		return nil, err
	}
	return s, nil
}

// verify walks the chain from the root key, then checks the proof trailer
// and the external signatures of third-party blocks.
func (s *SerializedBiscuit) verify(root crypto.PublicKey) error {
	current := root
	if err := crypto.VerifyBlock(current, s.Authority.Data, s.Authority.External, s.Authority.NextKey, s.Authority.Signature); err != nil {
		return &SignatureError{Msg: "authority block signature verification failed"}
	}
	current = s.Authority.NextKey
	previousSignature := s.Authority.Signature

	for _, b := range s.Blocks {
		if err := crypto.VerifyBlock(current, b.Data, b.External, b.NextKey, b.Signature); err != nil {
			return &SignatureError{Msg: "block signature verification failed"}
		}
		if b.External != nil {
			if err := crypto.VerifyExternalSignature(b.Data, previousSignature, b.External); err != nil {
				return &SignatureError{Msg: "external signature verification failed"}
			}
		}
		current = b.NextKey
		previousSignature = b.Signature
	}

	last := s.lastBlock()
	switch {
	case s.proofSecret != nil:
		kp, err := crypto.NewKeyPair(last.NextKey.Algorithm(), s.proofSecret)
		if err != nil {
			return &BlockSignatureDeserializationError{Msg: err.Error()}
		}
		defer kp.Close()
		if !kp.Public().Equal(last.NextKey) {
			return &SignatureError{Msg: "the proof secret does not match the last block's public key"}
		}
	case s.proofSeal != nil:
		payload := crypto.SealSignaturePayload(last.Data, last.NextKey, last.Signature)
		if err := last.NextKey.Verify(payload, s.proofSeal); err != nil {
			return &SignatureError{Msg: "seal signature verification failed"}
		}
	default:
		return &BlockSignatureDeserializationError{Msg: "empty proof"}
	}
	return nil
}

func (s *SerializedBiscuit) lastBlock() *SignedBlock {
	if len(s.Blocks) == 0 {
		return s.Authority
	}
	return s.Blocks[len(s.Blocks)-1]
}

// New builds and signs the authority block of a fresh token. next is the
// ephemeral pair whose secret becomes the attenuation proof.
func New(rootKeyID *uint32, root *crypto.KeyPair, next *crypto.KeyPair, blockBytes []byte) (*SerializedBiscuit, error) {
	signature, err := crypto.SignBlock(root, blockBytes, nil, next.Public())
	if err != nil {
		return nil, &SignatureError{Msg: err.Error()}
	}
	return &SerializedBiscuit{
		RootKeyID: rootKeyID,
		Authority: &SignedBlock{
			Data:      blockBytes,
			NextKey:   next.Public(),
			Signature: signature,
		},
		proofSecret: next.SecretBytes(),
	}, nil
}

// Sealed reports whether the token carries a seal signature instead of an
// attenuation secret.
func (s *SerializedBiscuit) Sealed() bool {
	return s.proofSeal != nil
}

// proofKeyPair rebuilds the ephemeral pair held in the attenuable proof.
func (s *SerializedBiscuit) proofKeyPair() (*crypto.KeyPair, error) {
	if s.proofSecret == nil {
		return nil, &SignatureError{Msg: "the token is sealed"}
	}
	last := s.lastBlock()
	kp, err := crypto.NewKeyPair(last.NextKey.Algorithm(), s.proofSecret)
	if err != nil {
		return nil, &BlockSignatureDeserializationError{Msg: err.Error()}
	}
	return kp, nil
}

// Append signs a new block with the current proof secret and hands the
// proof over to next. external carries the third-party signature for
// third-party blocks.
func (s *SerializedBiscuit) Append(next *crypto.KeyPair, blockBytes []byte, external *crypto.ExternalSignature) (*SerializedBiscuit, error) {
	signer, err := s.proofKeyPair()
	if err != nil {
		return nil, err
	}
	defer signer.Close()

	signature, err := crypto.SignBlock(signer, blockBytes, external, next.Public())
	if err != nil {
		return nil, &SignatureError{Msg: err.Error()}
	}

	blocks := make([]*SignedBlock, len(s.Blocks), len(s.Blocks)+1)
	copy(blocks, s.Blocks)
	blocks = append(blocks, &SignedBlock{
		Data:      blockBytes,
		NextKey:   next.Public(),
		Signature: signature,
		External:  external,
	})

	return &SerializedBiscuit{
		RootKeyID:   s.RootKeyID,
		Authority:   s.Authority,
		Blocks:      blocks,
		proofSecret: next.SecretBytes(),
	}, nil
}

// Seal converts the attenuable proof into a terminal seal signature. The
// secret is zeroized once the signature is produced.
func (s *SerializedBiscuit) Seal() (*SerializedBiscuit, error) {
	signer, err := s.proofKeyPair()
	if err != nil {
		return nil, err
	}
	defer signer.Close()

	last := s.lastBlock()
	payload := crypto.SealSignaturePayload(last.Data, last.NextKey, last.Signature)
	signature, err := signer.Sign(payload)
	if err != nil {
		return nil, &SignatureError{Msg: err.Error()}
	}

	return &SerializedBiscuit{
		RootKeyID: s.RootKeyID,
		Authority: s.Authority,
		Blocks:    s.Blocks,
		proofSeal: signature,
	}, nil
}

// ToBytes serializes the token.
func (s *SerializedBiscuit) ToBytes() []byte {
	pb := schema.Biscuit{
		RootKeyID: s.RootKeyID,
		Authority: signedBlockToProto(s.Authority),
		Proof:     &schema.Proof{NextSecret: s.proofSecret, FinalSignature: s.proofSeal},
	}
	for _, b := range s.Blocks {
		pb.Blocks = append(pb.Blocks, signedBlockToProto(b))
	}
	return pb.Marshal()
}

// RevocationIdentifiers returns each block's signature bytes, in block
// order. Callers consult these against their blacklist.
func (s *SerializedBiscuit) RevocationIdentifiers() [][]byte {
	out := make([][]byte, 0, len(s.Blocks)+1)
	out = append(out, s.Authority.Signature)
	for _, b := range s.Blocks {
		out = append(out, b.Signature)
	}
	return out
}

// ThirdPartyRequest builds the request sent to an external signer: the
// signature of the last block, which the external signature must cover.
func (s *SerializedBiscuit) ThirdPartyRequest() *schema.ThirdPartyBlockRequest {
	return &schema.ThirdPartyBlockRequest{
		PreviousSignature: s.lastBlock().Signature,
	}
}
