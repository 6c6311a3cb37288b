// Copyright 2026 The Biscuit Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package biscuit

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/eclipse-biscuit/biscuit-go/ast"
	"github.com/eclipse-biscuit/biscuit-go/crypto"
	"github.com/eclipse-biscuit/biscuit-go/datalog"
	"github.com/google/go-cmp/cmp"
)

// fixedRand yields a deterministic byte stream so the tests build the same
// keys on every run.
type fixedRand struct {
	next byte
}

func (r *fixedRand) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = r.next
		r.next++
	}
	return len(p), nil
}

// newTestAuthorizerBuilder raises the default time budget: the 1ms
// production default is tight enough to flake on a loaded test machine.
func newTestAuthorizerBuilder() *AuthorizerBuilder {
	limits := datalog.DefaultRunLimits()
	limits.MaxTime = 10 * time.Second
	return NewAuthorizerBuilder().WithLimits(limits)
}

func testKeyPair(t *testing.T, seed byte) *crypto.KeyPair {
	t.Helper()
	kp, err := crypto.Generate(crypto.Ed25519, &fixedRand{next: seed})
	if err != nil {
		t.Fatal(err)
	}
	return kp
}

// readCheck is `check if resource($0), operation("read"), right($0, "read")`.
func readCheck() ast.Check {
	return ast.NewCheck(ast.CheckIf, ast.NewRule(
		ast.Pred("query", ast.Variable("0")),
		ast.Pred("resource", ast.Variable("0")),
		ast.Pred("operation", ast.String("read")),
		ast.Pred("right", ast.Variable("0"), ast.String("read")),
	))
}

func basicToken(t *testing.T, root *crypto.KeyPair) *Biscuit {
	t.Helper()
	token, err := NewBuilder().
		AddFact(ast.NewFact("right", ast.String("file1"), ast.String("read"))).
		AddFact(ast.NewFact("right", ast.String("file2"), ast.String("read"))).
		AddFact(ast.NewFact("right", ast.String("file1"), ast.String("write"))).
		Build(root)
	if err != nil {
		t.Fatal(err)
	}
	token, err = token.Append(NewBlockBuilder().AddCheck(readCheck()))
	if err != nil {
		t.Fatal(err)
	}
	return token
}

func reparse(t *testing.T, token *Biscuit, root *crypto.KeyPair) *Biscuit {
	t.Helper()
	parsed, err := FromBytes(token.ToBytes(), RootKey(root.Public()))
	if err != nil {
		t.Fatal(err)
	}
	return parsed
}

func TestBasicAllow(t *testing.T) {
	root := testKeyPair(t, 1)
	token := reparse(t, basicToken(t, root), root)

	authorizer, err := newTestAuthorizerBuilder().
		AddFact(ast.NewFact("resource", ast.String("file1"))).
		AddFact(ast.NewFact("operation", ast.String("read"))).
		AllowAll().
		Build(token)
	if err != nil {
		t.Fatal(err)
	}
	idx, err := authorizer.Authorize()
	if err != nil {
		t.Fatal(err)
	}
	if idx != 0 {
		t.Fatalf("expected policy 0, got %d", idx)
	}
}

func TestBasicDenyMissingOperation(t *testing.T) {
	root := testKeyPair(t, 1)
	token := reparse(t, basicToken(t, root), root)

	authorizer, err := newTestAuthorizerBuilder().
		AddFact(ast.NewFact("resource", ast.String("file1"))).
		AllowAll().
		Build(token)
	if err != nil {
		t.Fatal(err)
	}
	_, err = authorizer.Authorize()
	var unauthorized *UnauthorizedError
	if !errors.As(err, &unauthorized) {
		t.Fatalf("expected UnauthorizedError, got %v", err)
	}
	if unauthorized.Policy == nil || !unauthorized.Policy.Allow || unauthorized.Policy.Index != 0 {
		t.Fatalf("expected matched allow policy 0, got %v", unauthorized.Policy)
	}
	want := []FailedCheck{FailedBlockCheck{
		BlockID: 1,
		CheckID: 0,
		Rule:    `check if resource($0), operation("read"), right($0, "read")`,
	}}
	if diff := cmp.Diff(want, unauthorized.Checks); diff != "" {
		t.Fatalf("failed checks mismatch (-want +got):\n%s", diff)
	}
}

func TestExpiry(t *testing.T) {
	root := testKeyPair(t, 2)
	expiry := time.Date(2018, 12, 20, 0, 0, 0, 0, time.UTC)

	token, err := NewBuilder().
		AddFact(ast.NewFact("right", ast.String("file1"), ast.String("read"))).
		Build(root)
	if err != nil {
		t.Fatal(err)
	}
	expiryCheck := ast.NewCheck(ast.CheckIf, ast.NewRule(
		ast.Pred("query", ast.Variable("t")),
		ast.Pred("time", ast.Variable("t")),
	).WithExpressions(ast.Expression{Ops: []ast.Op{
		ast.OpValue{Term: ast.Variable("t")},
		ast.OpValue{Term: ast.DateFromTime(expiry)},
		ast.OpBinary{Kind: datalog.BinaryLessOrEqual},
	}}))
	token, err = token.Append(NewBlockBuilder().AddCheck(expiryCheck))
	if err != nil {
		t.Fatal(err)
	}
	token = reparse(t, token, root)

	// before expiry: authorized
	authorizer, err := newTestAuthorizerBuilder().
		AddTime(time.Date(2018, 12, 19, 0, 0, 0, 0, time.UTC)).
		AllowAll().
		Build(token)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := authorizer.Authorize(); err != nil {
		t.Fatal(err)
	}

	// after expiry: refused
	authorizer, err = newTestAuthorizerBuilder().
		AddTime(time.Date(2020, 12, 21, 9, 23, 12, 0, time.UTC)).
		AllowAll().
		Build(token)
	if err != nil {
		t.Fatal(err)
	}
	_, err = authorizer.Authorize()
	var unauthorized *UnauthorizedError
	if !errors.As(err, &unauthorized) {
		t.Fatalf("expected UnauthorizedError, got %v", err)
	}
}

func TestRegexCheck(t *testing.T) {
	root := testKeyPair(t, 3)
	regexCheck := ast.NewCheck(ast.CheckIf, ast.NewRule(
		ast.Pred("query", ast.Variable("0")),
		ast.Pred("resource", ast.Variable("0")),
	).WithExpressions(ast.Expression{Ops: []ast.Op{
		ast.OpValue{Term: ast.Variable("0")},
		ast.OpValue{Term: ast.String("file[0-9]+.txt")},
		ast.OpBinary{Kind: datalog.BinaryRegex},
	}}))

	token, err := NewBuilder().AddCheck(regexCheck).Build(root)
	if err != nil {
		t.Fatal(err)
	}
	token = reparse(t, token, root)

	authorize := func(resource string) error {
		authorizer, err := newTestAuthorizerBuilder().
			AddFact(ast.NewFact("resource", ast.String(resource))).
			AllowAll().
			Build(token)
		if err != nil {
			t.Fatal(err)
		}
		_, err = authorizer.Authorize()
		return err
	}

	if err := authorize("file123.txt"); err != nil {
		t.Fatalf("expected allow for file123.txt, got %v", err)
	}
	err = authorize("file1")
	var unauthorized *UnauthorizedError
	if !errors.As(err, &unauthorized) {
		t.Fatalf("expected UnauthorizedError for file1, got %v", err)
	}
}

func TestOverflowAbortsAuthorization(t *testing.T) {
	root := testKeyPair(t, 4)
	overflowCheck := ast.NewCheck(ast.CheckIf, ast.NewRule(
		ast.Pred("query"),
	).WithExpressions(ast.Expression{Ops: []ast.Op{
		ast.OpValue{Term: ast.Integer(9223372036854775807)},
		ast.OpValue{Term: ast.Integer(1)},
		ast.OpBinary{Kind: datalog.BinaryAdd},
		ast.OpValue{Term: ast.Integer(0)},
		ast.OpBinary{Kind: datalog.BinaryNotEqual},
	}}))

	token, err := NewBuilder().AddCheck(overflowCheck).Build(root)
	if err != nil {
		t.Fatal(err)
	}
	token = reparse(t, token, root)

	authorizer, err := newTestAuthorizerBuilder().AllowAll().Build(token)
	if err != nil {
		t.Fatal(err)
	}
	_, err = authorizer.Authorize()
	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("expected ExecutionError, got %v", err)
	}
	if !errors.Is(execErr.Err, datalog.ErrOverflow) {
		t.Fatalf("expected overflow, got %v", execErr.Err)
	}
}

func TestThirdPartyTrust(t *testing.T) {
	root := testKeyPair(t, 5)
	external := testKeyPair(t, 6)

	// authority trusts group("admin") only from the external signer, and
	// requires right("read") from its own scope
	authorityCheck := ast.NewCheck(ast.CheckIf, ast.NewRule(
		ast.Pred("query"),
		ast.Pred("group", ast.String("admin")),
	).Trusting(ast.Scope{Kind: ast.ScopePublicKey, PublicKey: external.Public()}))

	token, err := NewBuilder().
		AddFact(ast.NewFact("right", ast.String("read"))).
		AddCheck(authorityCheck).
		Build(root)
	if err != nil {
		t.Fatal(err)
	}

	request, err := token.ThirdPartyRequest()
	if err != nil {
		t.Fatal(err)
	}
	thirdPartyBlock, err := request.CreateBlock(external, NewBlockBuilder().
		AddFact(ast.NewFact("group", ast.String("admin"))).
		AddCheck(ast.NewCheck(ast.CheckIf, ast.NewRule(
			ast.Pred("query"),
			ast.Pred("right", ast.String("read")),
		))))
	if err != nil {
		t.Fatal(err)
	}

	signed, err := token.AppendThirdParty(external.Public(), thirdPartyBlock)
	if err != nil {
		t.Fatal(err)
	}
	signed = reparse(t, signed, root)

	authorizer, err := newTestAuthorizerBuilder().AllowAll().Build(signed)
	if err != nil {
		t.Fatal(err)
	}
	idx, err := authorizer.Authorize()
	if err != nil {
		t.Fatalf("expected allow, got %v", err)
	}
	if idx != 0 {
		t.Fatalf("expected policy 0, got %d", idx)
	}

	// the same contents appended WITHOUT the external signature are not
	// trusted by the authority check
	unsigned, err := token.Append(NewBlockBuilder().
		AddFact(ast.NewFact("group", ast.String("admin"))))
	if err != nil {
		t.Fatal(err)
	}
	unsigned = reparse(t, unsigned, root)
	authorizer, err = newTestAuthorizerBuilder().AllowAll().Build(unsigned)
	if err != nil {
		t.Fatal(err)
	}
	_, err = authorizer.Authorize()
	var unauthorized *UnauthorizedError
	if !errors.As(err, &unauthorized) {
		t.Fatalf("expected UnauthorizedError, got %v", err)
	}
}

func TestAttenuationPreservesDenial(t *testing.T) {
	root := testKeyPair(t, 7)
	token := reparse(t, basicToken(t, root), root)

	authorize := func(tok *Biscuit) error {
		authorizer, err := newTestAuthorizerBuilder().
			AddFact(ast.NewFact("resource", ast.String("file9"))).
			AddFact(ast.NewFact("operation", ast.String("read"))).
			AllowAll().
			Build(tok)
		if err != nil {
			t.Fatal(err)
		}
		_, err = authorizer.Authorize()
		return err
	}

	if authorize(token) == nil {
		t.Fatal("expected denial for file9")
	}

	// any extension of a denied token is still denied
	extended, err := token.Append(NewBlockBuilder().
		AddFact(ast.NewFact("extra", ast.Integer(1))))
	if err != nil {
		t.Fatal(err)
	}
	if authorize(reparse(t, extended, root)) == nil {
		t.Fatal("expected denial for extended token")
	}
}

func TestSealedTokenStillAuthorizes(t *testing.T) {
	root := testKeyPair(t, 8)
	token := reparse(t, basicToken(t, root), root)

	sealed, err := token.Seal()
	if err != nil {
		t.Fatal(err)
	}
	parsed := reparse(t, sealed, root)
	if !parsed.Sealed() {
		t.Fatal("expected sealed token")
	}

	authorizer, err := newTestAuthorizerBuilder().
		AddFact(ast.NewFact("resource", ast.String("file1"))).
		AddFact(ast.NewFact("operation", ast.String("read"))).
		AllowAll().
		Build(parsed)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := authorizer.Authorize(); err != nil {
		t.Fatal(err)
	}

	// appending to the sealed token fails
	if _, err := parsed.Append(NewBlockBuilder().AddFact(ast.NewFact("extra", ast.Integer(1)))); err == nil {
		t.Fatal("expected append on sealed token to fail")
	}
}

func TestDeterminism(t *testing.T) {
	root := testKeyPair(t, 9)
	token := reparse(t, basicToken(t, root), root)

	var firstIdx int
	var firstChecks []FailedCheck
	for i := 0; i < 5; i++ {
		authorizer, err := newTestAuthorizerBuilder().
			AddFact(ast.NewFact("resource", ast.String("file2"))).
			AddFact(ast.NewFact("operation", ast.String("write"))).
			AllowAll().
			Build(token)
		if err != nil {
			t.Fatal(err)
		}
		_, err = authorizer.Authorize()
		var unauthorized *UnauthorizedError
		if !errors.As(err, &unauthorized) {
			t.Fatalf("expected UnauthorizedError, got %v", err)
		}
		if i == 0 {
			firstIdx = unauthorized.Policy.Index
			firstChecks = unauthorized.Checks
			continue
		}
		if unauthorized.Policy.Index != firstIdx {
			t.Fatal("policy index changed between runs")
		}
		if diff := cmp.Diff(firstChecks, unauthorized.Checks); diff != "" {
			t.Fatalf("failing checks changed between runs:\n%s", diff)
		}
	}
}

func TestSerializationRoundTrip(t *testing.T) {
	root := testKeyPair(t, 10)
	token := basicToken(t, root)

	data := token.ToBytes()
	parsed, err := FromBytes(data, RootKey(root.Public()))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(parsed.ToBytes(), data) {
		t.Fatal("byte round trip mismatch")
	}

	fromB64, err := FromBase64(token.ToBase64(), RootKey(root.Public()))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(fromB64.ToBytes(), data) {
		t.Fatal("base64 round trip mismatch")
	}
}

func TestRevocationIdentifiers(t *testing.T) {
	root := testKeyPair(t, 11)
	token := reparse(t, basicToken(t, root), root)

	ids := token.RevocationIdentifiers()
	if len(ids) != 2 {
		t.Fatalf("expected 2 revocation ids, got %d", len(ids))
	}
	if bytes.Equal(ids[0], ids[1]) {
		t.Fatal("revocation ids must be unique per block")
	}

	// the authorizer program can consult them as facts
	authorizer, err := newTestAuthorizerBuilder().
		AddFact(ast.NewFact("resource", ast.String("file1"))).
		AddFact(ast.NewFact("operation", ast.String("read"))).
		AddCheck(ast.NewCheck(ast.CheckIf, ast.NewRule(
			ast.Pred("query", ast.Variable("id")),
			ast.Pred("revocation_id", ast.Integer(0), ast.Variable("id")),
		))).
		AllowAll().
		Build(token)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := authorizer.Authorize(); err != nil {
		t.Fatal(err)
	}
}

func TestCheckAll(t *testing.T) {
	root := testKeyPair(t, 12)

	checkAll := ast.NewCheck(ast.CheckAll, ast.NewRule(
		ast.Pred("query", ast.Variable("v")),
		ast.Pred("fact", ast.Variable("v")),
	).WithExpressions(ast.Expression{Ops: []ast.Op{
		ast.OpValue{Term: ast.Variable("v")},
		ast.OpValue{Term: ast.Integer(1)},
		ast.OpBinary{Kind: datalog.BinaryLessThan},
	}}))
	token, err := NewBuilder().AddCheck(checkAll).Build(root)
	if err != nil {
		t.Fatal(err)
	}
	token = reparse(t, token, root)

	// fact(0) alone: all assignments below 1
	authorizer, err := newTestAuthorizerBuilder().
		AddFact(ast.NewFact("fact", ast.Integer(0))).
		AllowAll().
		Build(token)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := authorizer.Authorize(); err != nil {
		t.Fatal(err)
	}

	// fact(0) and fact(1): the second assignment violates the bound
	authorizer, err = newTestAuthorizerBuilder().
		AddFact(ast.NewFact("fact", ast.Integer(0))).
		AddFact(ast.NewFact("fact", ast.Integer(1))).
		AllowAll().
		Build(token)
	if err != nil {
		t.Fatal(err)
	}
	_, err = authorizer.Authorize()
	var unauthorized *UnauthorizedError
	if !errors.As(err, &unauthorized) {
		t.Fatalf("expected UnauthorizedError, got %v", err)
	}
}

func TestRejectIf(t *testing.T) {
	root := testKeyPair(t, 13)
	reject := ast.NewCheck(ast.RejectIf, ast.NewRule(
		ast.Pred("query"),
		ast.Pred("revoked", ast.Bool(true)),
	))
	token, err := NewBuilder().AddCheck(reject).Build(root)
	if err != nil {
		t.Fatal(err)
	}
	token = reparse(t, token, root)

	authorizer, err := newTestAuthorizerBuilder().AllowAll().Build(token)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := authorizer.Authorize(); err != nil {
		t.Fatal(err)
	}

	authorizer, err = newTestAuthorizerBuilder().
		AddFact(ast.NewFact("revoked", ast.Bool(true))).
		AllowAll().
		Build(token)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := authorizer.Authorize(); err == nil {
		t.Fatal("expected rejection")
	}
}

func TestDenyPolicy(t *testing.T) {
	root := testKeyPair(t, 14)
	token, err := NewBuilder().
		AddFact(ast.NewFact("right", ast.String("file1"), ast.String("read"))).
		Build(root)
	if err != nil {
		t.Fatal(err)
	}
	token = reparse(t, token, root)

	// deny first, then allow: the deny decides
	authorizer, err := newTestAuthorizerBuilder().
		DenyAll().
		AllowAll().
		Build(token)
	if err != nil {
		t.Fatal(err)
	}
	_, err = authorizer.Authorize()
	var unauthorized *UnauthorizedError
	if !errors.As(err, &unauthorized) {
		t.Fatalf("expected UnauthorizedError, got %v", err)
	}
	if unauthorized.Policy == nil || unauthorized.Policy.Allow || unauthorized.Policy.Index != 0 {
		t.Fatalf("expected deny policy 0, got %v", unauthorized.Policy)
	}

	// no policy at all: no matching policy
	authorizer, err = newTestAuthorizerBuilder().Build(token)
	if err != nil {
		t.Fatal(err)
	}
	_, err = authorizer.Authorize()
	if !errors.As(err, &unauthorized) {
		t.Fatalf("expected UnauthorizedError, got %v", err)
	}
	if unauthorized.Policy != nil {
		t.Fatalf("expected no matching policy, got %v", unauthorized.Policy)
	}
}

func TestRuleDerivation(t *testing.T) {
	root := testKeyPair(t, 15)
	// has_read($r) <- right($r, "read")
	rule := ast.NewRule(
		ast.Pred("has_read", ast.Variable("r")),
		ast.Pred("right", ast.Variable("r"), ast.String("read")),
	)
	token, err := NewBuilder().
		AddFact(ast.NewFact("right", ast.String("file1"), ast.String("read"))).
		AddFact(ast.NewFact("right", ast.String("file2"), ast.String("read"))).
		AddRule(rule).
		Build(root)
	if err != nil {
		t.Fatal(err)
	}
	token = reparse(t, token, root)

	authorizer, err := newTestAuthorizerBuilder().AllowAll().Build(token)
	if err != nil {
		t.Fatal(err)
	}
	facts, err := authorizer.Query(ast.NewRule(
		ast.Pred("readable", ast.Variable("r")),
		ast.Pred("has_read", ast.Variable("r")),
	))
	if err != nil {
		t.Fatal(err)
	}
	if len(facts) != 2 {
		t.Fatalf("expected 2 readable facts, got %d: %v", len(facts), facts)
	}
}

func TestBlockCannotForgeAuthority(t *testing.T) {
	root := testKeyPair(t, 16)
	token, err := NewBuilder().
		AddFact(ast.NewFact("right", ast.String("file1"), ast.String("read"))).
		AddCheck(ast.NewCheck(ast.CheckIf, ast.NewRule(
			ast.Pred("query"),
			ast.Pred("operation", ast.String("read")),
		))).
		Build(root)
	if err != nil {
		t.Fatal(err)
	}

	// the attenuation block tries to synthesize the operation fact the
	// authority check requires; the fact lands in the block's own origin,
	// which the authority scope does not trust
	forging, err := token.Append(NewBlockBuilder().
		AddRule(ast.NewRule(
			ast.Pred("operation", ast.String("read")),
			ast.Pred("operation", ast.Variable("any")),
		)))
	if err != nil {
		t.Fatal(err)
	}
	forging = reparse(t, forging, root)

	authorizer, err := newTestAuthorizerBuilder().
		AddFact(ast.NewFact("operation", ast.String("write"))).
		AllowAll().
		Build(forging)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := authorizer.Authorize(); err == nil {
		t.Fatal("a block must not be able to satisfy an authority check with its own derivation")
	}
}

func TestUnverifiedInspection(t *testing.T) {
	root := testKeyPair(t, 17)
	token := basicToken(t, root)

	unverified, err := UnverifiedFromBytes(token.ToBytes())
	if err != nil {
		t.Fatal(err)
	}
	if unverified.BlockCount() != token.BlockCount() {
		t.Fatal("block count mismatch")
	}
	for i := 0; i < token.BlockCount(); i++ {
		want, err := token.PrintBlockSource(i)
		if err != nil {
			t.Fatal(err)
		}
		got, err := unverified.PrintBlockSource(i)
		if err != nil {
			t.Fatal(err)
		}
		if want != got {
			t.Fatalf("block %d source mismatch:\n%s\nvs\n%s", i, want, got)
		}
	}

	verified, err := unverified.Verify(RootKey(root.Public()))
	if err != nil {
		t.Fatal(err)
	}
	if verified.BlockCount() != token.BlockCount() {
		t.Fatal("verified block count mismatch")
	}

	other := testKeyPair(t, 99)
	if _, err := unverified.Verify(RootKey(other.Public())); err == nil {
		t.Fatal("expected verification failure under the wrong root key")
	}
}

func TestRunLimitSurfacesAsExecutionError(t *testing.T) {
	root := testKeyPair(t, 18)
	token, err := NewBuilder().
		AddFact(ast.NewFact("num", ast.Integer(1))).
		Build(root)
	if err != nil {
		t.Fatal(err)
	}
	token = reparse(t, token, root)

	limits := datalog.DefaultRunLimits()
	limits.MaxFacts = 4
	limits.MaxTime = 10 * time.Second

	builder := newTestAuthorizerBuilder().WithLimits(limits).AllowAll()
	for i := 0; i < 10; i++ {
		builder.AddFact(ast.NewFact("n", ast.Integer(int64(i))))
	}
	authorizer, err := builder.Build(token)
	if err != nil {
		t.Fatal(err)
	}
	_, err = authorizer.Authorize()
	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("expected ExecutionError, got %v", err)
	}
	var limitErr *datalog.RunLimitError
	if !errors.As(execErr.Err, &limitErr) || limitErr.Kind != datalog.RunLimitFacts {
		t.Fatalf("expected fact run limit, got %v", execErr.Err)
	}
}
