// Copyright 2026 The Biscuit Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package ast

// Parser produces builder values from Datalog surface syntax. The parser
// itself lives outside this module; builders accept any implementation of
// this interface. Errors returned by a Parser surface as language errors,
// never as authorization failures.
type Parser interface {
	// Fact parses a single fact, e.g. `right("file1", "read")`.
	Fact(src string) (Fact, error)

	// Rule parses a single rule, e.g. `head($v) <- body($v), $v > 0`.
	Rule(src string) (Rule, error)

	// Check parses a check, e.g. `check if resource($r) or operation("read")`.
	Check(src string) (Check, error)

	// Policy parses a policy, e.g. `allow if right($r, $op)`.
	Policy(src string) (Policy, error)
}
