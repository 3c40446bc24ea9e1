package rete

import (
	"sync/atomic"
	"testing"

	"github.com/codenerd-labs/rete/internal/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func personPattern(extra map[string]Constraint) Pattern {
	c := map[string]Constraint{"name": BindVar("name")}
	for k, v := range extra {
		c[k] = v
	}
	return NewPattern("Person", c)
}

func accountPattern(extra map[string]Constraint) Pattern {
	c := map[string]Constraint{"owner": BindVar("name")}
	for k, v := range extra {
		c[k] = v
	}
	return NewPattern("Account", c)
}

func TestSimpleJoin_Scenario(t *testing.T) {
	e := New()

	var fired [][]*Fact
	require.NoError(t, e.AddRule(&Rule{
		Name: "person-has-account",
		Conditions: []Condition{
			Cond(personPattern(nil)),
			Cond(accountPattern(nil)),
		},
		Action: func(facts []*Fact, bindings map[string]value.Value) error {
			fired = append(fired, facts)
			return nil
		},
	}))

	alice := e.Assert("Person", value.Attributes{"name": value.String("alice")})
	e.Assert("Account", value.Attributes{"owner": value.String("alice")})
	e.Assert("Account", value.Attributes{"owner": value.String("bob")})

	e.Run()
	require.Len(t, fired, 1)
	assert.Equal(t, alice, fired[0][0])

	bob := e.Assert("Person", value.Attributes{"name": value.String("bob")})
	e.Run()
	require.Len(t, fired, 2)
	assert.Equal(t, bob, fired[1][0])
}

func TestNegation_TogglesProduceFreshTokenEachTime(t *testing.T) {
	e := New()

	var activations int32
	require.NoError(t, e.AddRule(&Rule{
		Name: "person-without-account",
		Conditions: []Condition{
			Cond(personPattern(nil)),
			Not(accountPattern(nil)),
		},
		Action: func(facts []*Fact, bindings map[string]value.Value) error {
			atomic.AddInt32(&activations, 1)
			return nil
		},
	}))

	e.Assert("Person", value.Attributes{"name": value.String("carol")})
	e.Run()
	assert.EqualValues(t, 1, activations, "no account yet: rule should fire once")

	acct := e.Assert("Account", value.Attributes{"owner": value.String("carol")})
	pn := e.productions["person-without-account"]
	assert.Empty(t, pn.Tokens(), "an inhibiting account retracts the match")

	e.Retract(acct)
	e.Run()
	assert.EqualValues(t, 2, activations, "retracting the account re-opens the match and it fires fresh")

	acct2 := e.Assert("Account", value.Attributes{"owner": value.String("carol")})
	assert.Empty(t, pn.Tokens())
	e.Retract(acct2)
	e.Run()
	assert.EqualValues(t, 3, activations, "a second toggle cycle produces a third, independently-fired token")
}

func TestUnlinking_NoJoinWorkWhileBetaEmpty(t *testing.T) {
	e := New()

	personNoBind := NewPattern("Person", map[string]Constraint{"flag": BindVar("_unused")})
	acctNoBind := NewPattern("Account", map[string]Constraint{"region": BindVar("_unused2")})

	require.NoError(t, e.AddRule(&Rule{
		Name: "watch",
		Conditions: []Condition{
			Cond(personNoBind),
			Cond(acctNoBind),
		},
		Action: func(facts []*Fact, bindings map[string]value.Value) error { return nil },
	}))

	for i := 0; i < 1000; i++ {
		e.Assert("Account", value.Attributes{"region": value.String("east")})
	}

	am := e.alphaByKey[acctNoBind.Key()]
	require.NotNil(t, am)
	assert.Len(t, am.items, 1000)

	pn := e.productions["watch"]
	assert.Empty(t, pn.Tokens(), "no person fact exists yet, so the join side stayed unlinked")

	e.Assert("Person", value.Attributes{"flag": value.Bool(true)})
	e.Run()
	assert.Len(t, pn.Tokens(), 1000, "relinking sweeps the full existing account set exactly once")
}

func TestAlphaMemory_SharedAcrossRulesWithIdenticalPattern(t *testing.T) {
	e := New()

	require.NoError(t, e.AddRule(&Rule{
		Name:       "rule-a",
		Conditions: []Condition{Cond(personPattern(nil))},
		Action:     func(facts []*Fact, bindings map[string]value.Value) error { return nil },
	}))
	require.NoError(t, e.AddRule(&Rule{
		Name:       "rule-b",
		Conditions: []Condition{Cond(personPattern(nil))},
		Action:     func(facts []*Fact, bindings map[string]value.Value) error { return nil },
	}))

	assert.Len(t, e.alphaByKey, 1, "identical patterns across rules must share one AlphaMemory")
}

func TestPredicateConstraint_NeverShared(t *testing.T) {
	e := New()
	always := func(v value.Value) bool { return true }

	p1 := NewPattern("Person", map[string]Constraint{"age": Pred(always)})
	p2 := NewPattern("Person", map[string]Constraint{"age": Pred(always)})

	require.NoError(t, e.AddRule(&Rule{Name: "r1", Conditions: []Condition{Cond(p1)}, Action: noop}))
	require.NoError(t, e.AddRule(&Rule{Name: "r2", Conditions: []Condition{Cond(p2)}, Action: noop}))

	assert.Len(t, e.alphaByKey, 2, "predicate-bearing patterns are conservatively never shared")
}

func TestFiredBit_NeverFiresTwice(t *testing.T) {
	e := New()
	var count int
	require.NoError(t, e.AddRule(&Rule{
		Name:       "once",
		Conditions: []Condition{Cond(personPattern(nil))},
		Action: func(facts []*Fact, bindings map[string]value.Value) error {
			count++
			return nil
		},
	}))

	e.Assert("Person", value.Attributes{"name": value.String("eve")})
	e.Run()
	e.Run()
	e.Run()
	assert.Equal(t, 1, count, "a token must never fire more than once")
}

func TestActionFailure_IsolatedPerToken(t *testing.T) {
	e := New()
	var ran []string
	require.NoError(t, e.AddRule(&Rule{
		Name:       "flaky",
		Conditions: []Condition{Cond(personPattern(nil))},
		Action: func(facts []*Fact, bindings map[string]value.Value) error {
			name := bindings["name"].String()
			ran = append(ran, name)
			if name == "bad" {
				panic("boom")
			}
			return nil
		},
	}))

	e.Assert("Person", value.Attributes{"name": value.String("bad")})
	e.Assert("Person", value.Attributes{"name": value.String("good")})

	failures := e.Run()
	require.Len(t, failures, 1)
	assert.ElementsMatch(t, []string{"bad", "good"}, ran, "a panicking action must not prevent the sibling token from firing")
}

func TestAddRule_RejectsEmptyConditions(t *testing.T) {
	e := New()
	err := e.AddRule(&Rule{Name: "empty", Action: noop})
	require.Error(t, err)
}

func TestAddRule_ReplacesExistingRuleInPlace(t *testing.T) {
	e := New()
	var calls int
	require.NoError(t, e.AddRule(&Rule{
		Name:       "r",
		Conditions: []Condition{Cond(personPattern(nil))},
		Action:     func(facts []*Fact, bindings map[string]value.Value) error { calls++; return nil },
	}))
	e.Assert("Person", value.Attributes{"name": value.String("frank")})
	e.Run()
	assert.Equal(t, 1, calls)

	var replacedCalls int
	require.NoError(t, e.AddRule(&Rule{
		Name:       "r",
		Conditions: []Condition{Cond(personPattern(nil))},
		Action:     func(facts []*Fact, bindings map[string]value.Value) error { replacedCalls++; return nil },
	}))
	e.Run()
	assert.Equal(t, 1, replacedCalls, "the fresh chain replays the already-asserted fact through the new production")

	require.Len(t, e.productions, 1)
}

func TestReset_ClearsFactsButKeepsCompiledNetwork(t *testing.T) {
	e := New()
	require.NoError(t, e.AddRule(&Rule{
		Name:       "r",
		Conditions: []Condition{Cond(personPattern(nil))},
		Action:     noop,
	}))
	e.Assert("Person", value.Attributes{"name": value.String("gina")})
	require.Equal(t, 1, e.wm.Len())

	e.Reset()
	assert.Equal(t, 0, e.wm.Len())
	assert.Len(t, e.rules, 1, "rules remain registered across Reset")
	assert.Empty(t, e.productions["r"].Tokens())

	e.Assert("Person", value.Attributes{"name": value.String("henry")})
	assert.Len(t, e.productions["r"].Tokens(), 1, "the network still works after Reset")
}

func TestReset_RedrivesNegatedFirstConditionChainHead(t *testing.T) {
	e := New()
	require.NoError(t, e.AddRule(&Rule{
		Name:       "no-account-at-all",
		Conditions: []Condition{Not(accountPattern(nil))},
		Action:     noop,
	}))

	// A negated-first-condition rule's match depends only on the root
	// sentinel, produced once at AddRule time; nothing an Assert does
	// can ever create it (a matching fact only inhibits it).
	require.Len(t, e.productions["no-account-at-all"].Tokens(), 1, "fresh engine: the negation's absence token exists from AddRule")

	e.Reset()
	assert.Len(t, e.productions["no-account-at-all"].Tokens(), 1,
		"Reset must re-drive the chain head so this token is regenerated exactly as a fresh engine would produce it")

	e.Assert("Account", value.Attributes{"owner": value.String("mallory")})
	assert.Empty(t, e.productions["no-account-at-all"].Tokens(), "an asserted account still inhibits the match after Reset")
}

func noop(facts []*Fact, bindings map[string]value.Value) error { return nil }
