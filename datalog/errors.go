// Copyright 2026 The Biscuit Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package datalog

import (
	"fmt"
	"time"
)

// ErrCode classifies expression execution errors. Any of these aborts the
// whole authorization, they are never downgraded to a failed check.
type ErrCode int

const (
	// OverflowErr indicates signed 64-bit arithmetic went out of range.
	OverflowErr ErrCode = iota

	// DivideByZeroErr indicates an integer division by zero.
	DivideByZeroErr

	// InvalidTypeErr indicates an operation applied to operands of the
	// wrong type, including strict equality across different types.
	InvalidTypeErr

	// ShadowedVariableErr indicates a closure parameter reused the name of
	// a variable already bound in an enclosing scope.
	ShadowedVariableErr

	// UnknownVariableErr indicates an expression referenced a variable with
	// no binding.
	UnknownVariableErr

	// UnknownSymbolErr indicates a string index with no symbol table entry.
	UnknownSymbolErr

	// UndefinedExternErr indicates a call to an extern function that was
	// not registered.
	UndefinedExternErr

	// ExternEvalErr indicates a registered extern function returned an
	// error.
	ExternEvalErr

	// InvalidStackErr indicates a malformed op sequence (wrong arity,
	// leftover operands, closure in terminal position).
	InvalidStackErr
)

// Error is an expression execution error.
type Error struct {
	Code    ErrCode
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Is reports code equality so callers can match with errors.Is against the
// exported sentinel values.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Sentinel execution errors for errors.Is matching.
var (
	ErrOverflow         = &Error{Code: OverflowErr, Message: "integer overflow"}
	ErrDivideByZero     = &Error{Code: DivideByZeroErr, Message: "division by zero"}
	ErrInvalidType      = &Error{Code: InvalidTypeErr, Message: "invalid type on the stack"}
	ErrShadowedVariable = &Error{Code: ShadowedVariableErr, Message: "closure parameter shadows an outer variable"}
	ErrInvalidStack     = &Error{Code: InvalidStackErr, Message: "invalid expression stack"}
)

func unknownVariable(id uint32) *Error {
	return &Error{Code: UnknownVariableErr, Message: fmt.Sprintf("unknown variable %d", id)}
}

func unknownSymbol(id uint64) *Error {
	return &Error{Code: UnknownSymbolErr, Message: fmt.Sprintf("unknown symbol %d", id)}
}

func undefinedExtern(name string) *Error {
	return &Error{Code: UndefinedExternErr, Message: fmt.Sprintf("undefined extern function %q", name)}
}

func externEvalError(name, msg string) *Error {
	return &Error{Code: ExternEvalErr, Message: fmt.Sprintf("extern function %q failed: %s", name, msg)}
}

// RunLimitKind names the resource bound that was exceeded during saturation.
type RunLimitKind int

const (
	// RunLimitFacts is returned when the world produced more facts than
	// RunLimits.MaxFacts allows.
	RunLimitFacts RunLimitKind = iota

	// RunLimitIterations is returned when saturation did not reach a fixed
	// point within RunLimits.MaxIterations.
	RunLimitIterations

	// RunLimitTimeout is returned when the time budget was exhausted or the
	// caller cancelled the run.
	RunLimitTimeout
)

func (k RunLimitKind) String() string {
	switch k {
	case RunLimitFacts:
		return "too many facts"
	case RunLimitIterations:
		return "too many iterations"
	case RunLimitTimeout:
		return "timeout"
	default:
		return "unknown limit"
	}
}

// RunLimitError is returned when saturation exceeds one of the configured
// resource bounds.
type RunLimitError struct {
	Kind RunLimitKind
}

func (e *RunLimitError) Error() string {
	return fmt.Sprintf("datalog: run limit reached: %v", e.Kind)
}

// RunLimits bounds a single saturation run. The zero value is not usable,
// call DefaultRunLimits.
type RunLimits struct {
	MaxFacts      uint64
	MaxIterations uint64
	MaxTime       time.Duration

	// Clock provides the monotonic time source consulted between
	// iterations. Defaults to time.Now.
	Clock func() time.Time

	// Cancel is polled between iterations for cooperative cancellation.
	Cancel Cancel
}

// DefaultRunLimits returns the standard per-authorization bounds.
func DefaultRunLimits() RunLimits {
	return RunLimits{
		MaxFacts:      1000,
		MaxIterations: 100,
		MaxTime:       time.Millisecond,
	}
}

// Cancel allows callers to abort a saturation run in progress. The world
// polls Cancelled between iterations, in the manner of a cooperative
// scheduler; there is no preemption inside an iteration.
type Cancel interface {
	Cancelled() bool
}
