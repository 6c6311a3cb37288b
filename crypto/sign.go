// Copyright 2026 The Biscuit Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package crypto

// Canonical signature payloads. The byte order is part of the wire
// contract: implementations that disagree on it reject each other's tokens
// as forged. Each payload embeds the algorithm tag as a single byte so a
// signature cannot be replayed under a different suite.

// ExternalSignature is the extra signature carried by a third-party block.
type ExternalSignature struct {
	PublicKey PublicKey
	Signature []byte
}

// BlockSignaturePayload is the payload certified by a block's signature:
//
//	block_bytes ‖ external_signature? ‖ algorithm_tag ‖ next_public_key
//
// where next is the ephemeral key whose secret will sign the following
// block.
func BlockSignaturePayload(block []byte, external *ExternalSignature, next PublicKey) []byte {
	out := make([]byte, 0, len(block)+1+len(next.bytes)+72)
	out = append(out, block...)
	if external != nil {
		out = append(out, external.Signature...)
	}
	out = append(out, byte(next.alg))
	out = append(out, next.bytes...)
	return out
}

// ExternalSignaturePayload is the payload certified by a third-party
// signer: the block bytes followed by the signature of the preceding block,
// binding the external signature to one position in one chain.
func ExternalSignaturePayload(block, previousSignature []byte) []byte {
	out := make([]byte, 0, len(block)+len(previousSignature))
	out = append(out, block...)
	out = append(out, previousSignature...)
	return out
}

// SealSignaturePayload is the payload certified by the trailer of a sealed
// token: the last block's bytes, its declared next key, and its signature.
func SealSignaturePayload(block []byte, next PublicKey, signature []byte) []byte {
	out := make([]byte, 0, len(block)+1+len(next.bytes)+len(signature))
	out = append(out, block...)
	out = append(out, byte(next.alg))
	out = append(out, next.bytes...)
	out = append(out, signature...)
	return out
}

// SignBlock signs a block payload with the chain key current at that
// position (the root key for the authority block, the previous block's
// ephemeral key otherwise).
func SignBlock(signer *KeyPair, block []byte, external *ExternalSignature, next PublicKey) ([]byte, error) {
	return signer.Sign(BlockSignaturePayload(block, external, next))
}

// VerifyBlock checks a block signature against the chain key current at
// that position.
func VerifyBlock(key PublicKey, block []byte, external *ExternalSignature, next PublicKey, signature []byte) error {
	return key.Verify(BlockSignaturePayload(block, external, next), signature)
}

// VerifyExternalSignature checks a third-party block's external signature.
func VerifyExternalSignature(block, previousSignature []byte, external *ExternalSignature) error {
	return external.PublicKey.Verify(ExternalSignaturePayload(block, previousSignature), external.Signature)
}
