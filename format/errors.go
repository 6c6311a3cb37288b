// Copyright 2026 The Biscuit Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package format

import (
	"fmt"
)

// SignatureError reports a signature that does not verify: a forged or
// altered block, a proof that does not match the chain, or an append on a
// sealed token.
type SignatureError struct {
	Msg string
}

func (e *SignatureError) Error() string {
	return fmt.Sprintf("format: invalid signature: %s", e.Msg)
}

// BlockSignatureDeserializationError reports signature material that could
// not be decoded (truncated signature, malformed key). Distinct from
// SignatureError so callers can tell truncated from forged.
type BlockSignatureDeserializationError struct {
	Msg string
}

func (e *BlockSignatureDeserializationError) Error() string {
	return fmt.Sprintf("format: could not deserialize block signature: %s", e.Msg)
}

// DeserializationError reports a malformed payload outside the signature
// material.
type DeserializationError struct {
	Msg string
}

func (e *DeserializationError) Error() string {
	return fmt.Sprintf("format: deserialization error: %s", e.Msg)
}

// VersionError reports a block version outside the supported range.
type VersionError struct {
	Minimum uint32
	Maximum uint32
	Actual  uint32
}

func (e *VersionError) Error() string {
	return fmt.Sprintf("format: unsupported block version %d (supported: %d to %d)", e.Actual, e.Minimum, e.Maximum)
}

// InvalidAuthorityIndexError reports an authority block found at a position
// other than 0.
type InvalidAuthorityIndexError struct {
	Index int
}

func (e *InvalidAuthorityIndexError) Error() string {
	return fmt.Sprintf("format: invalid authority block index %d", e.Index)
}

// InvalidBlockIDError reports a block index out of range.
type InvalidBlockIDError struct {
	ID int
}

func (e *InvalidBlockIDError) Error() string {
	return fmt.Sprintf("format: invalid block id %d", e.ID)
}
