// Copyright 2026 The Biscuit Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package biscuit

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/eclipse-biscuit/biscuit-go/ast"
	"github.com/eclipse-biscuit/biscuit-go/datalog"
	"github.com/eclipse-biscuit/biscuit-go/logging"
	"github.com/eclipse-biscuit/biscuit-go/metrics"
)

// AuthorizerBuilder assembles the verifier-side program: side-channel
// facts and rules, authorizer checks, and the allow/deny policies, plus the
// run limits and instrumentation.
type AuthorizerBuilder struct {
	facts    []ast.Fact
	rules    []ast.Rule
	checks   []ast.Check
	policies []ast.Policy

	limits  datalog.RunLimits
	logger  logging.Logger
	metrics metrics.Metrics
	externs map[string]datalog.ExternFunc
}

// NewAuthorizerBuilder returns an empty authorizer builder with default
// run limits.
func NewAuthorizerBuilder() *AuthorizerBuilder {
	return &AuthorizerBuilder{
		limits:  datalog.DefaultRunLimits(),
		logger:  logging.NewNoOpLogger(),
		metrics: metrics.NoOp(),
		externs: map[string]datalog.ExternFunc{},
	}
}

// AddFact appends an authorizer fact.
func (b *AuthorizerBuilder) AddFact(f ast.Fact) *AuthorizerBuilder {
	b.facts = append(b.facts, f)
	return b
}

// AddRule appends an authorizer rule.
func (b *AuthorizerBuilder) AddRule(r ast.Rule) *AuthorizerBuilder {
	b.rules = append(b.rules, r)
	return b
}

// AddCheck appends an authorizer check.
func (b *AuthorizerBuilder) AddCheck(c ast.Check) *AuthorizerBuilder {
	b.checks = append(b.checks, c)
	return b
}

// AddPolicy appends an allow/deny policy; policies decide in declaration
// order.
func (b *AuthorizerBuilder) AddPolicy(p ast.Policy) *AuthorizerBuilder {
	b.policies = append(b.policies, p)
	return b
}

// AllowAll appends an unconditional allow policy.
func (b *AuthorizerBuilder) AllowAll() *AuthorizerBuilder {
	return b.AddPolicy(ast.AllowIf(ast.True()))
}

// DenyAll appends an unconditional deny policy.
func (b *AuthorizerBuilder) DenyAll() *AuthorizerBuilder {
	return b.AddPolicy(ast.DenyIf(ast.True()))
}

// AddTime supplies the current time as a time() fact, for expiry checks.
func (b *AuthorizerBuilder) AddTime(t time.Time) *AuthorizerBuilder {
	return b.AddFact(ast.NewFact("time", ast.DateFromTime(t)))
}

// WithLimits replaces the run limits.
func (b *AuthorizerBuilder) WithLimits(limits datalog.RunLimits) *AuthorizerBuilder {
	b.limits = limits
	return b
}

// WithLogger injects a logger receiving debug traces of the run.
func (b *AuthorizerBuilder) WithLogger(logger logging.Logger) *AuthorizerBuilder {
	b.logger = logger
	return b
}

// WithMetrics injects a metrics sink.
func (b *AuthorizerBuilder) WithMetrics(m metrics.Metrics) *AuthorizerBuilder {
	b.metrics = m
	return b
}

// WithExtern registers a named extern function reachable from expressions.
func (b *AuthorizerBuilder) WithExtern(name string, fn datalog.ExternFunc) *AuthorizerBuilder {
	b.externs[name] = fn
	return b
}

type authorizerPolicy struct {
	allow   bool
	queries []datalog.Rule
}

type loadedBlock struct {
	checks []datalog.Check
	scopes []datalog.Scope
}

// Authorizer holds the combined world of one token and one authorizer
// program, ready to decide.
type Authorizer struct {
	world   *datalog.World
	symbols *datalog.SymbolTable
	keys    *keyTable
	keymap  map[uint64][]uint64

	blocks           []loadedBlock
	authorizerChecks []datalog.Check
	policies         []authorizerPolicy

	limits  datalog.RunLimits
	logger  logging.Logger
	metrics metrics.Metrics
	externs map[string]datalog.ExternFunc

	tmp *datalog.TemporarySymbolTable
	ran bool
}

// Build combines the authorizer program with the token into an Authorizer.
func (b *AuthorizerBuilder) Build(token *Biscuit) (*Authorizer, error) {
	symbols := token.symbols.Clone()
	keys := token.keys.clone()

	world := datalog.NewWorld()
	revocationID := symbols.Insert("revocation_id")
	world.ProtectPredicate(revocationID)

	// translate every block first so the key table is complete before
	// trust scopes resolve
	translatedBlocks := make([]*translated, len(token.blocks))
	for i, blk := range token.blocks {
		tr, err := blk.translate(i, symbols, keys)
		if err != nil {
			return nil, err
		}
		translatedBlocks[i] = tr
	}

	keyConvert := func(s ast.Scope) (uint64, error) {
		return keys.insert(s.PublicKey), nil
	}

	a := &Authorizer{
		world:   world,
		symbols: symbols,
		keys:    keys,
		limits:  b.limits,
		logger:  b.logger,
		metrics: b.metrics,
		externs: b.externs,
	}

	// the key table is final after authorizer conversion; defer keymap
	// resolution until the rules are registered, the world only needs it
	// at run time through the resolved TrustedOrigins, so resolve scopes
	// after converting everything that can extend the table
	type pendingRule struct {
		origin uint64
		scopes []datalog.Scope
		rule   datalog.Rule
	}
	var pending []pendingRule

	for i, tr := range translatedBlocks {
		origin := uint64(i)
		for _, f := range tr.facts {
			world.AddFact(datalog.NewOrigin(origin), f)
		}
		for _, r := range tr.rules {
			if err := r.Validate(); err != nil {
				return nil, &InvalidBlockRuleError{
					BlockID: i,
					Rule:    datalog.PrintRule(r, symbols, keys),
				}
			}
			scopes := r.Scopes
			if len(scopes) == 0 {
				scopes = tr.scopes
			}
			pending = append(pending, pendingRule{origin: origin, scopes: scopes, rule: r})
		}
		a.blocks = append(a.blocks, loadedBlock{checks: tr.checks, scopes: tr.scopes})
	}

	for _, f := range b.facts {
		df, err := ast.ConvertFact(f, symbols)
		if err != nil {
			return nil, err
		}
		if !factIsGround(df) {
			return nil, fmt.Errorf("biscuit: authorizer fact %s is not ground", f)
		}
		world.AddFact(datalog.NewOrigin(datalog.AuthorizerOrigin), df)
	}

	// revocation ids are visible to the authorizer program as facts
	for i, id := range token.RevocationIdentifiers() {
		world.AddFact(datalog.NewOrigin(datalog.AuthorizerOrigin), datalog.Fact{
			Predicate: datalog.Predicate{
				Name:  revocationID,
				Terms: []datalog.Term{datalog.Integer(i), datalog.Bytes(id)},
			},
		})
	}

	for _, r := range b.rules {
		dr, err := ast.ConvertRule(r, symbols, keyConvert)
		if err != nil {
			return nil, err
		}
		if err := dr.Validate(); err != nil {
			// -1 marks the authorizer's own program
			return nil, &InvalidBlockRuleError{BlockID: -1, Rule: r.String()}
		}
		pending = append(pending, pendingRule{
			origin: datalog.AuthorizerOrigin,
			scopes: dr.Scopes,
			rule:   dr,
		})
	}
	for _, c := range b.checks {
		dc, err := ast.ConvertCheck(c, symbols, keyConvert)
		if err != nil {
			return nil, err
		}
		a.authorizerChecks = append(a.authorizerChecks, dc)
	}
	for _, p := range b.policies {
		pol := authorizerPolicy{allow: p.Kind == ast.Allow}
		for _, q := range p.Queries {
			dq, err := ast.ConvertRule(q, symbols, keyConvert)
			if err != nil {
				return nil, err
			}
			pol.queries = append(pol.queries, dq)
		}
		a.policies = append(a.policies, pol)
	}

	a.keymap = token.keyToBlockIDs(keys)
	for _, p := range pending {
		trusted := datalog.TrustedOriginsFromScopes(p.scopes, datalog.DefaultTrustedOrigins(), p.origin, a.keymap)
		world.AddRule(p.origin, trusted, p.rule)
	}
	return a, nil
}

func factIsGround(f datalog.Fact) bool {
	for _, t := range f.Predicate.Terms {
		if !datalog.IsGround(t) {
			return false
		}
	}
	return true
}

// run saturates the world once per authorizer.
func (a *Authorizer) run() error {
	if a.ran {
		return nil
	}
	a.tmp = datalog.NewTemporarySymbolTable(a.symbols)

	timer := a.metrics.Timer(metrics.WorldRun)
	timer.Start()
	iterations, err := a.world.Run(a.tmp, a.externs, a.limits)
	timer.Stop()

	a.metrics.Counter(metrics.WorldIterations).Add(iterations)
	a.metrics.Counter(metrics.WorldFacts).Add(uint64(a.world.Facts().Len()))
	a.logger.Debug("world saturated: %d facts after %d iterations", a.world.Facts().Len(), iterations)
	if err != nil {
		return &ExecutionError{Err: err}
	}
	a.ran = true
	return nil
}

func (a *Authorizer) trustedFor(scopes []datalog.Scope, defaults []datalog.Scope, currentBlock uint64) datalog.TrustedOrigins {
	if len(scopes) == 0 {
		scopes = defaults
	}
	return datalog.TrustedOriginsFromScopes(scopes, datalog.DefaultTrustedOrigins(), currentBlock, a.keymap)
}

// evaluateCheck decides one check in the context of one block (or the
// authorizer, with currentBlock = the authorizer origin).
func (a *Authorizer) evaluateCheck(check datalog.Check, defaults []datalog.Scope, currentBlock uint64) (bool, error) {
	switch check.Kind {
	case datalog.CheckOne:
		for _, q := range check.Queries {
			trusted := a.trustedFor(q.Scopes, defaults, currentBlock)
			match, err := a.world.QueryMatch(q, trusted, a.tmp, a.externs)
			if err != nil {
				return false, err
			}
			if match {
				return true, nil
			}
		}
		return false, nil
	case datalog.CheckAll:
		for _, q := range check.Queries {
			trusted := a.trustedFor(q.Scopes, defaults, currentBlock)
			match, err := a.world.QueryMatchAll(q, trusted, a.tmp, a.externs)
			if err != nil {
				return false, err
			}
			if match {
				return true, nil
			}
		}
		return false, nil
	case datalog.CheckReject:
		for _, q := range check.Queries {
			trusted := a.trustedFor(q.Scopes, defaults, currentBlock)
			match, err := a.world.QueryMatch(q, trusted, a.tmp, a.externs)
			if err != nil {
				return false, err
			}
			if match {
				return false, nil
			}
		}
		return true, nil
	}
	return false, nil
}

// Authorize combines the token and authorizer programs and decides. On
// success it returns the index of the matching allow policy. Failed checks
// and deny policies return *UnauthorizedError; any expression execution
// error aborts with *ExecutionError regardless of the logic outcome.
func (a *Authorizer) Authorize() (int, error) {
	total := a.metrics.Timer(metrics.AuthorizeRun)
	total.Start()
	defer total.Stop()

	if err := a.run(); err != nil {
		return 0, err
	}

	var failed []FailedCheck

	appendBlockFailures := func(blockID int) error {
		block := a.blocks[blockID]
		for j, check := range block.checks {
			a.metrics.Counter(metrics.ChecksEvaluated).Incr()
			ok, err := a.evaluateCheck(check, block.scopes, uint64(blockID))
			if err != nil {
				return &ExecutionError{Err: err}
			}
			if !ok {
				failed = append(failed, FailedBlockCheck{
					BlockID: blockID,
					CheckID: j,
					Rule:    datalog.PrintCheck(check, a.symbols, a.keys),
				})
			}
		}
		return nil
	}

	// authority checks first, then the authorizer's, then each
	// attenuation block in order
	if len(a.blocks) > 0 {
		if err := appendBlockFailures(0); err != nil {
			return 0, err
		}
	}
	for j, check := range a.authorizerChecks {
		a.metrics.Counter(metrics.ChecksEvaluated).Incr()
		ok, err := a.evaluateCheck(check, nil, datalog.AuthorizerOrigin)
		if err != nil {
			return 0, &ExecutionError{Err: err}
		}
		if !ok {
			failed = append(failed, FailedAuthorizerCheck{
				CheckID: j,
				Rule:    datalog.PrintCheck(check, a.symbols, a.keys),
			})
		}
	}
	for i := 1; i < len(a.blocks); i++ {
		if err := appendBlockFailures(i); err != nil {
			return 0, err
		}
	}

	var matched *MatchedPolicy
policies:
	for i, p := range a.policies {
		a.metrics.Counter(metrics.PoliciesEvaluated).Incr()
		for _, q := range p.queries {
			trusted := a.trustedFor(q.Scopes, nil, datalog.AuthorizerOrigin)
			match, err := a.world.QueryMatch(q, trusted, a.tmp, a.externs)
			if err != nil {
				return 0, &ExecutionError{Err: err}
			}
			if match {
				matched = &MatchedPolicy{Allow: p.allow, Index: i}
				break policies
			}
		}
	}

	if len(failed) == 0 && matched != nil && matched.Allow {
		a.logger.Debug("authorized by policy %d", matched.Index)
		return matched.Index, nil
	}
	a.logger.Debug("authorization refused: %d failed checks, policy %v", len(failed), matched)
	return 0, &UnauthorizedError{Policy: matched, Checks: failed}
}

// Query evaluates one rule against the saturated world and returns the
// facts it produces. The rule runs in the authorizer's trust context.
func (a *Authorizer) Query(rule ast.Rule) ([]ast.Fact, error) {
	if err := a.run(); err != nil {
		return nil, err
	}
	keyConvert := func(s ast.Scope) (uint64, error) {
		if idx, ok := a.keys.lookup(s.PublicKey); ok {
			return idx, nil
		}
		return 0, errors.New("biscuit: unknown public key in query scope")
	}
	// intern through the temporary table: the base table is frozen once
	// evaluation has started
	dr, err := ast.ConvertRule(rule, a.tmp, keyConvert)
	if err != nil {
		return nil, err
	}
	trusted := a.trustedFor(dr.Scopes, nil, datalog.AuthorizerOrigin)
	facts, err := a.world.QueryAll(dr, trusted, a.tmp, a.externs)
	if err != nil {
		return nil, &ExecutionError{Err: err}
	}
	out := make([]ast.Fact, 0, len(facts))
	for _, f := range facts {
		af, err := astFactFromDatalog(f, a.tmp)
		if err != nil {
			return nil, err
		}
		out = append(out, af)
	}
	return out, nil
}

// PrintWorld renders the saturated fact store, mainly for debugging. It is
// empty before the first Authorize or Query call.
func (a *Authorizer) PrintWorld() string {
	var sb strings.Builder
	resolver := datalog.SymbolResolver(a.symbols)
	if a.tmp != nil {
		resolver = a.tmp
	}
	a.world.Facts().Each(func(origin datalog.Origin, f datalog.Fact) {
		fmt.Fprintf(&sb, "[%v] %s\n", origin, datalog.PrintFact(f, resolver))
	})
	return sb.String()
}
