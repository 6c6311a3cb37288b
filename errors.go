// Copyright 2026 The Biscuit Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package biscuit

import (
	"fmt"
	"strings"
)

// FailedCheck identifies one check that did not pass during authorization.
type FailedCheck interface {
	fmt.Stringer

	isFailedCheck()
}

// FailedBlockCheck is a failing check carried by a token block.
type FailedBlockCheck struct {
	BlockID int
	CheckID int
	Rule    string
}

func (FailedBlockCheck) isFailedCheck() {}

func (c FailedBlockCheck) String() string {
	return fmt.Sprintf("block %d check %d failed: %s", c.BlockID, c.CheckID, c.Rule)
}

// FailedAuthorizerCheck is a failing check supplied by the authorizer.
type FailedAuthorizerCheck struct {
	CheckID int
	Rule    string
}

func (FailedAuthorizerCheck) isFailedCheck() {}

func (c FailedAuthorizerCheck) String() string {
	return fmt.Sprintf("authorizer check %d failed: %s", c.CheckID, c.Rule)
}

// MatchedPolicy records which policy decided the authorization.
type MatchedPolicy struct {
	// Allow is true for an allow policy, false for a deny policy.
	Allow bool

	// Index is the policy's position in declaration order.
	Index int
}

func (p MatchedPolicy) String() string {
	if p.Allow {
		return fmt.Sprintf("allow policy %d", p.Index)
	}
	return fmt.Sprintf("deny policy %d", p.Index)
}

// UnauthorizedError is the common authorization-denied case: checks failed,
// a deny policy matched, or no policy matched at all. It always enumerates
// every failing check.
type UnauthorizedError struct {
	// Policy is the decisive policy, or nil when none matched.
	Policy *MatchedPolicy

	// Checks lists every failing check: the authority block's first, then
	// the authorizer's, then those of blocks 1..n.
	Checks []FailedCheck
}

func (e *UnauthorizedError) Error() string {
	var b strings.Builder
	b.WriteString("biscuit: authorization failed")
	if e.Policy == nil {
		b.WriteString(": no matching policy")
	} else if !e.Policy.Allow {
		fmt.Fprintf(&b, ": matched %v", *e.Policy)
	}
	for _, c := range e.Checks {
		b.WriteString("\n  ")
		b.WriteString(c.String())
	}
	return b.String()
}

// InvalidBlockRuleError reports a rule that failed static validation: a
// head or expression variable not bound by the body. The whole block is
// rejected.
type InvalidBlockRuleError struct {
	BlockID int
	Rule    string
}

func (e *InvalidBlockRuleError) Error() string {
	return fmt.Sprintf("biscuit: invalid rule in block %d: %s", e.BlockID, e.Rule)
}

// ExecutionError aborts an authorization regardless of its logic outcome:
// arithmetic overflow, division by zero, type errors, shadowed closure
// variables, undefined externs, or a run limit.
type ExecutionError struct {
	Err error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("biscuit: execution error: %v", e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// LanguageError wraps a surface-syntax error reported by a parser.
type LanguageError struct {
	Err error
}

func (e *LanguageError) Error() string {
	return fmt.Sprintf("biscuit: language error: %v", e.Err)
}

func (e *LanguageError) Unwrap() error {
	return e.Err
}

// MissingSymbolsError reports a block referencing symbol or key indices
// absent from every table in scope.
type MissingSymbolsError struct {
	BlockID int
}

func (e *MissingSymbolsError) Error() string {
	return fmt.Sprintf("biscuit: block %d references missing symbols", e.BlockID)
}
