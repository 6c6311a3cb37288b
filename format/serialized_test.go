// Copyright 2026 The Biscuit Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package format

import (
	"bytes"
	"errors"
	"testing"

	"github.com/eclipse-biscuit/biscuit-go/crypto"
)

func chooseKey(k crypto.PublicKey) func(*uint32) (crypto.PublicKey, error) {
	return func(*uint32) (crypto.PublicKey, error) { return k, nil }
}

func buildChain(t *testing.T, root *crypto.KeyPair, blocks ...[]byte) *SerializedBiscuit {
	t.Helper()
	next, err := crypto.Generate(crypto.Ed25519, nil)
	if err != nil {
		t.Fatal(err)
	}
	s, err := New(nil, root, next, blocks[0])
	if err != nil {
		t.Fatal(err)
	}
	for _, b := range blocks[1:] {
		next, err = crypto.Generate(crypto.Ed25519, nil)
		if err != nil {
			t.Fatal(err)
		}
		s, err = s.Append(next, b, nil)
		if err != nil {
			t.Fatal(err)
		}
	}
	return s
}

func TestChainRoundTrip(t *testing.T) {
	root, err := crypto.Generate(crypto.Ed25519, nil)
	if err != nil {
		t.Fatal(err)
	}
	s := buildChain(t, root, []byte("authority"), []byte("block 1"), []byte("block 2"))

	data := s.ToBytes()
	parsed, err := Deserialize(data, chooseKey(root.Public()))
	if err != nil {
		t.Fatal(err)
	}
	if len(parsed.Blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(parsed.Blocks))
	}
	if !bytes.Equal(parsed.ToBytes(), data) {
		t.Fatal("serialization round trip mismatch")
	}
}

func TestWrongRootKey(t *testing.T) {
	root, _ := crypto.Generate(crypto.Ed25519, nil)
	other, _ := crypto.Generate(crypto.Ed25519, nil)
	s := buildChain(t, root, []byte("authority"))

	_, err := Deserialize(s.ToBytes(), chooseKey(other.Public()))
	var sigErr *SignatureError
	if !errors.As(err, &sigErr) {
		t.Fatalf("expected signature error, got %v", err)
	}
}

func TestTamperedBlock(t *testing.T) {
	root, _ := crypto.Generate(crypto.Ed25519, nil)
	s := buildChain(t, root, []byte("authority"), []byte("block 1"))

	s.Blocks[0].Data = []byte("block 1 altered")
	_, err := Deserialize(s.ToBytes(), chooseKey(root.Public()))
	var sigErr *SignatureError
	if !errors.As(err, &sigErr) {
		t.Fatalf("expected signature error, got %v", err)
	}
}

func TestTruncatedToken(t *testing.T) {
	root, _ := crypto.Generate(crypto.Ed25519, nil)
	s := buildChain(t, root, []byte("authority"))
	data := s.ToBytes()

	_, err := Deserialize(data[:len(data)/2], chooseKey(root.Public()))
	var deserErr *DeserializationError
	if !errors.As(err, &deserErr) {
		t.Fatalf("expected deserialization error, got %v", err)
	}
}

func TestSealTerminatesChain(t *testing.T) {
	root, _ := crypto.Generate(crypto.Ed25519, nil)
	s := buildChain(t, root, []byte("authority"), []byte("block 1"))

	sealed, err := s.Seal()
	if err != nil {
		t.Fatal(err)
	}
	parsed, err := Deserialize(sealed.ToBytes(), chooseKey(root.Public()))
	if err != nil {
		t.Fatal(err)
	}
	if !parsed.Sealed() {
		t.Fatal("expected a sealed token")
	}

	// a sealed token rejects further blocks
	next, _ := crypto.Generate(crypto.Ed25519, nil)
	_, err = parsed.Append(next, []byte("block 2"), nil)
	var sigErr *SignatureError
	if !errors.As(err, &sigErr) {
		t.Fatalf("expected signature error, got %v", err)
	}

	// tampering with the seal signature fails verification
	raw := sealed.ToBytes()
	tampered := *sealed
	tampered.proofSeal = append([]byte{}, sealed.proofSeal...)
	tampered.proofSeal[0] ^= 0xff
	if _, err := Deserialize(tampered.ToBytes(), chooseKey(root.Public())); err == nil {
		t.Fatal("expected tampered seal to fail")
	}
	if _, err := Deserialize(raw, chooseKey(root.Public())); err != nil {
		t.Fatal(err)
	}
}

func TestProofSecretMismatch(t *testing.T) {
	root, _ := crypto.Generate(crypto.Ed25519, nil)
	s := buildChain(t, root, []byte("authority"))

	other, _ := crypto.Generate(crypto.Ed25519, nil)
	s.proofSecret = other.SecretBytes()
	_, err := Deserialize(s.ToBytes(), chooseKey(root.Public()))
	var sigErr *SignatureError
	if !errors.As(err, &sigErr) {
		t.Fatalf("expected signature error, got %v", err)
	}
}

func TestExternalSignatureChain(t *testing.T) {
	root, _ := crypto.Generate(crypto.Ed25519, nil)
	external, _ := crypto.Generate(crypto.Ed25519, nil)
	s := buildChain(t, root, []byte("authority"))

	blockBytes := []byte("third party block")
	payload := crypto.ExternalSignaturePayload(blockBytes, s.ThirdPartyRequest().PreviousSignature)
	extSig, err := external.Sign(payload)
	if err != nil {
		t.Fatal(err)
	}

	next, _ := crypto.Generate(crypto.Ed25519, nil)
	s2, err := s.Append(next, blockBytes, &crypto.ExternalSignature{
		PublicKey: external.Public(),
		Signature: extSig,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Deserialize(s2.ToBytes(), chooseKey(root.Public())); err != nil {
		t.Fatal(err)
	}

	// flipping a bit in the external signature fails verification
	s2.Blocks[0].External.Signature[0] ^= 0xff
	_, err = Deserialize(s2.ToBytes(), chooseKey(root.Public()))
	var sigErr *SignatureError
	if !errors.As(err, &sigErr) {
		t.Fatalf("expected signature error, got %v", err)
	}
}

func TestRevocationIdentifiers(t *testing.T) {
	root, _ := crypto.Generate(crypto.Ed25519, nil)
	s := buildChain(t, root, []byte("authority"), []byte("block 1"))

	ids := s.RevocationIdentifiers()
	if len(ids) != 2 {
		t.Fatalf("expected 2 revocation ids, got %d", len(ids))
	}
	if !bytes.Equal(ids[0], s.Authority.Signature) || !bytes.Equal(ids[1], s.Blocks[0].Signature) {
		t.Fatal("revocation ids must be the block signatures")
	}
	if bytes.Equal(ids[0], ids[1]) {
		t.Fatal("revocation ids must differ between blocks")
	}
}

func TestEcdsaChain(t *testing.T) {
	root, err := crypto.Generate(crypto.Secp256r1, nil)
	if err != nil {
		t.Fatal(err)
	}
	next, err := crypto.Generate(crypto.Secp256r1, nil)
	if err != nil {
		t.Fatal(err)
	}
	s, err := New(nil, root, next, []byte("authority"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Deserialize(s.ToBytes(), chooseKey(root.Public())); err != nil {
		t.Fatal(err)
	}
}
