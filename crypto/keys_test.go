// Copyright 2026 The Biscuit Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package crypto

import (
	"bytes"
	"errors"
	"testing"
)

// deterministicRand yields a fixed byte stream so tests are reproducible.
type deterministicRand struct {
	next byte
}

func (r *deterministicRand) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = r.next
		r.next++
	}
	return len(p), nil
}

func TestSignVerifyRoundTrip(t *testing.T) {
	for _, alg := range []Algorithm{Ed25519, Secp256r1} {
		t.Run(alg.String(), func(t *testing.T) {
			kp, err := Generate(alg, &deterministicRand{next: 1})
			if err != nil {
				t.Fatal(err)
			}
			payload := []byte("the payload")
			sig, err := kp.Sign(payload)
			if err != nil {
				t.Fatal(err)
			}
			if err := kp.Public().Verify(payload, sig); err != nil {
				t.Fatal(err)
			}
			if err := kp.Public().Verify([]byte("another payload"), sig); !errors.Is(err, ErrInvalidSignature) {
				t.Fatalf("expected invalid signature, got %v", err)
			}
		})
	}
}

func TestPublicKeyRoundTrip(t *testing.T) {
	for _, alg := range []Algorithm{Ed25519, Secp256r1} {
		kp, err := Generate(alg, &deterministicRand{next: 7})
		if err != nil {
			t.Fatal(err)
		}
		pub := kp.Public()
		restored, err := PublicKeyFromBytes(alg, pub.Bytes())
		if err != nil {
			t.Fatal(err)
		}
		if !pub.Equal(restored) {
			t.Fatalf("%v: key did not round trip", alg)
		}
	}
}

func TestKeySizes(t *testing.T) {
	if _, err := PublicKeyFromBytes(Ed25519, make([]byte, 31)); !errors.Is(err, ErrInvalidKeySize) {
		t.Fatalf("expected invalid key size, got %v", err)
	}
	if _, err := PublicKeyFromBytes(Secp256r1, make([]byte, 32)); !errors.Is(err, ErrInvalidKeySize) {
		t.Fatalf("expected invalid key size, got %v", err)
	}
	if _, err := PublicKeyFromBytes(Algorithm(9), make([]byte, 32)); !errors.Is(err, ErrUnknownAlgorithm) {
		t.Fatalf("expected unknown algorithm, got %v", err)
	}
}

func TestSecretRebuild(t *testing.T) {
	for _, alg := range []Algorithm{Ed25519, Secp256r1} {
		kp, err := Generate(alg, &deterministicRand{next: 3})
		if err != nil {
			t.Fatal(err)
		}
		rebuilt, err := NewKeyPair(alg, kp.SecretBytes())
		if err != nil {
			t.Fatal(err)
		}
		if !kp.Public().Equal(rebuilt.Public()) {
			t.Fatalf("%v: secret bytes did not rebuild the same pair", alg)
		}
	}
}

func TestAlgorithmTagInPayload(t *testing.T) {
	kp, err := Generate(Ed25519, &deterministicRand{next: 11})
	if err != nil {
		t.Fatal(err)
	}
	next, err := Generate(Ed25519, &deterministicRand{next: 12})
	if err != nil {
		t.Fatal(err)
	}

	block := []byte("block")
	payload := BlockSignaturePayload(block, nil, next.Public())

	// canonical order: block ‖ alg tag ‖ next key
	want := append(append(append([]byte{}, block...), byte(Ed25519)), next.Public().Bytes()...)
	if !bytes.Equal(payload, want) {
		t.Fatal("payload layout mismatch")
	}

	sig, err := SignBlock(kp, block, nil, next.Public())
	if err != nil {
		t.Fatal(err)
	}
	if err := VerifyBlock(kp.Public(), block, nil, next.Public(), sig); err != nil {
		t.Fatal(err)
	}

	// a different next key invalidates the signature
	other, _ := Generate(Ed25519, &deterministicRand{next: 99})
	if err := VerifyBlock(kp.Public(), block, nil, other.Public(), sig); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected invalid signature, got %v", err)
	}
}

func TestExternalSignature(t *testing.T) {
	external, err := Generate(Ed25519, &deterministicRand{next: 21})
	if err != nil {
		t.Fatal(err)
	}
	block := []byte("third party block")
	prevSig := []byte("previous signature")

	sig, err := external.Sign(ExternalSignaturePayload(block, prevSig))
	if err != nil {
		t.Fatal(err)
	}
	es := &ExternalSignature{PublicKey: external.Public(), Signature: sig}
	if err := VerifyExternalSignature(block, prevSig, es); err != nil {
		t.Fatal(err)
	}
	// binding to the previous signature: another position in the chain fails
	if err := VerifyExternalSignature(block, []byte("other signature"), es); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected invalid signature, got %v", err)
	}
}

func TestZeroize(t *testing.T) {
	kp, err := Generate(Ed25519, &deterministicRand{next: 5})
	if err != nil {
		t.Fatal(err)
	}
	kp.Close()
	for _, b := range kp.secret {
		if b != 0 {
			t.Fatal("secret was not zeroized")
		}
	}
}
