// Copyright 2026 The Biscuit Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package crypto implements the Biscuit block chain signature scheme: two
// signature suites (ed25519 and ECDSA over P-256) over canonical byte
// payloads, with an algorithm tag carried next to every key and signature.
package crypto

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math/big"
)

// Algorithm identifies a signature suite. The values are the wire encoding.
type Algorithm int32

const (
	// Ed25519 is the canonical suite: 32-byte public keys, 64-byte
	// signatures.
	Ed25519 Algorithm = 0

	// Secp256r1 is ECDSA over P-256: 33-byte compressed public keys,
	// DER-encoded signatures.
	Secp256r1 Algorithm = 1
)

func (a Algorithm) String() string {
	switch a {
	case Ed25519:
		return "ed25519"
	case Secp256r1:
		return "secp256r1"
	default:
		return fmt.Sprintf("unknown(%d)", int32(a))
	}
}

// Errors returned by key construction and signature verification.
var (
	ErrInvalidSignature = errors.New("crypto: invalid signature")
	ErrInvalidKeySize   = errors.New("crypto: invalid key size")
	ErrUnknownAlgorithm = errors.New("crypto: unknown signature algorithm")
)

// PublicKey is a verification key with its algorithm tag.
type PublicKey struct {
	alg   Algorithm
	bytes []byte

	ed    ed25519.PublicKey
	ecdsa *ecdsa.PublicKey
}

// PublicKeyFromBytes builds a key from its wire representation.
func PublicKeyFromBytes(alg Algorithm, data []byte) (PublicKey, error) {
	switch alg {
	case Ed25519:
		if len(data) != ed25519.PublicKeySize {
			return PublicKey{}, ErrInvalidKeySize
		}
		key := make([]byte, len(data))
		copy(key, data)
		return PublicKey{alg: alg, bytes: key, ed: ed25519.PublicKey(key)}, nil
	case Secp256r1:
		if len(data) != 33 {
			return PublicKey{}, ErrInvalidKeySize
		}
		x, y := elliptic.UnmarshalCompressed(elliptic.P256(), data)
		if x == nil {
			return PublicKey{}, ErrInvalidKeySize
		}
		key := make([]byte, len(data))
		copy(key, data)
		return PublicKey{
			alg:   alg,
			bytes: key,
			ecdsa: &ecdsa.PublicKey{Curve: elliptic.P256(), X: x, Y: y},
		}, nil
	default:
		return PublicKey{}, ErrUnknownAlgorithm
	}
}

// PublicKeyFromHex builds a key from its hex representation.
func PublicKeyFromHex(alg Algorithm, s string) (PublicKey, error) {
	data, err := hex.DecodeString(s)
	if err != nil {
		return PublicKey{}, fmt.Errorf("crypto: invalid hex key: %w", err)
	}
	return PublicKeyFromBytes(alg, data)
}

// Algorithm returns the key's signature suite.
func (k PublicKey) Algorithm() Algorithm {
	return k.alg
}

// Bytes returns the wire representation of the key.
func (k PublicKey) Bytes() []byte {
	out := make([]byte, len(k.bytes))
	copy(out, k.bytes)
	return out
}

// Equal reports whether two keys have the same algorithm and bytes.
func (k PublicKey) Equal(other PublicKey) bool {
	return k.alg == other.alg && subtle.ConstantTimeCompare(k.bytes, other.bytes) == 1
}

// String renders the key in the surface syntax form "alg/hex".
func (k PublicKey) String() string {
	return fmt.Sprintf("%s/%s", k.alg, hex.EncodeToString(k.bytes))
}

// Verify checks a signature over payload with the key's own algorithm. A
// malformed signature or a verification failure returns
// ErrInvalidSignature; a key with an unknown algorithm returns
// ErrUnknownAlgorithm.
func (k PublicKey) Verify(payload, signature []byte) error {
	switch k.alg {
	case Ed25519:
		if len(signature) != ed25519.SignatureSize {
			return ErrInvalidSignature
		}
		if !ed25519.Verify(k.ed, payload, signature) {
			return ErrInvalidSignature
		}
		return nil
	case Secp256r1:
		digest := sha256.Sum256(payload)
		if !ecdsa.VerifyASN1(k.ecdsa, digest[:], signature) {
			return ErrInvalidSignature
		}
		return nil
	default:
		return ErrUnknownAlgorithm
	}
}

// KeyPair is a signing key with its public half. Secret material is
// zeroized by Close; ephemeral pairs used during attenuation should be
// closed as soon as the next block is signed.
type KeyPair struct {
	alg    Algorithm
	secret []byte
	public PublicKey

	ed ed25519.PrivateKey
	ec *ecdsa.PrivateKey
}

// Generate creates a new key pair for the given suite using rng
// (crypto/rand.Reader when nil).
func Generate(alg Algorithm, rng io.Reader) (*KeyPair, error) {
	if rng == nil {
		rng = rand.Reader
	}
	switch alg {
	case Ed25519:
		var seed [ed25519.SeedSize]byte
		if _, err := io.ReadFull(rng, seed[:]); err != nil {
			return nil, err
		}
		return NewKeyPair(alg, seed[:])
	case Secp256r1:
		priv, err := ecdsa.GenerateKey(elliptic.P256(), rng)
		if err != nil {
			return nil, err
		}
		return NewKeyPair(alg, priv.D.FillBytes(make([]byte, 32)))
	default:
		return nil, ErrUnknownAlgorithm
	}
}

// NewKeyPair builds a key pair from secret bytes: a 32-byte ed25519 seed or
// a 32-byte P-256 scalar.
func NewKeyPair(alg Algorithm, secret []byte) (*KeyPair, error) {
	if len(secret) != 32 {
		return nil, ErrInvalidKeySize
	}
	sec := make([]byte, 32)
	copy(sec, secret)

	switch alg {
	case Ed25519:
		priv := ed25519.NewKeyFromSeed(sec)
		pub, err := PublicKeyFromBytes(alg, priv.Public().(ed25519.PublicKey))
		if err != nil {
			return nil, err
		}
		return &KeyPair{alg: alg, secret: sec, public: pub, ed: priv}, nil
	case Secp256r1:
		d := new(big.Int).SetBytes(sec)
		curve := elliptic.P256()
		if d.Sign() == 0 || d.Cmp(curve.Params().N) >= 0 {
			return nil, ErrInvalidKeySize
		}
		x, y := curve.ScalarBaseMult(sec)
		priv := &ecdsa.PrivateKey{
			PublicKey: ecdsa.PublicKey{Curve: curve, X: x, Y: y},
			D:         d,
		}
		pub, err := PublicKeyFromBytes(alg, elliptic.MarshalCompressed(curve, x, y))
		if err != nil {
			return nil, err
		}
		return &KeyPair{alg: alg, secret: sec, public: pub, ec: priv}, nil
	default:
		return nil, ErrUnknownAlgorithm
	}
}

// Algorithm returns the pair's signature suite.
func (kp *KeyPair) Algorithm() Algorithm {
	return kp.alg
}

// Public returns the verification half.
func (kp *KeyPair) Public() PublicKey {
	return kp.public
}

// SecretBytes returns the secret bytes (seed or scalar). The attenuable
// proof trailer transports them.
func (kp *KeyPair) SecretBytes() []byte {
	out := make([]byte, len(kp.secret))
	copy(out, kp.secret)
	return out
}

// Sign signs payload with the secret key.
func (kp *KeyPair) Sign(payload []byte) ([]byte, error) {
	switch kp.alg {
	case Ed25519:
		return ed25519.Sign(kp.ed, payload), nil
	case Secp256r1:
		digest := sha256.Sum256(payload)
		return ecdsa.SignASN1(rand.Reader, kp.ec, digest[:])
	default:
		return nil, ErrUnknownAlgorithm
	}
}

// Close zeroizes the secret material. The pair is unusable afterwards.
func (kp *KeyPair) Close() {
	for i := range kp.secret {
		kp.secret[i] = 0
	}
	if kp.ed != nil {
		for i := range kp.ed {
			kp.ed[i] = 0
		}
	}
	if kp.ec != nil {
		kp.ec.D.SetInt64(0)
	}
}
