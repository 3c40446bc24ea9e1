package blackboard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codenerd-labs/rete/blackboard/memstore"
	"github.com/codenerd-labs/rete/internal/config"
	"github.com/codenerd-labs/rete/internal/value"
	"github.com/codenerd-labs/rete/rete"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	store, err := memstore.Open(":memory:", config.DefaultAuditConfig(), 30*24*time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewEngine(store)
}

func personPattern() rete.Pattern {
	return rete.NewPattern("Person", map[string]rete.Constraint{"name": rete.BindVar("name")})
}

func TestAssertFact_MintsUUIDAndDrivesNetwork(t *testing.T) {
	e := newTestEngine(t)

	var fired []string
	require.NoError(t, e.AddRule(&rete.Rule{
		Name:       "greet",
		Conditions: []rete.Condition{rete.Cond(personPattern())},
		Action: func(facts []*rete.Fact, bindings map[string]value.Value) error {
			fired = append(fired, bindings["name"].String())
			return nil
		},
	}))

	id, err := e.AssertFact("Person", value.Attributes{"name": value.String("alice")}, "s1")
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	e.Run()
	assert.Equal(t, []string{"alice"}, fired)

	rec, ok := e.GetFact(id)
	require.True(t, ok)
	assert.Equal(t, "Person", rec.Type)
	assert.Equal(t, "s1", rec.SessionID)
}

func TestAddRule_RecordsFiringInAuditTrailBeforeAction(t *testing.T) {
	e := newTestEngine(t)

	var actionRan bool
	var firingsSeenByAction int
	require.NoError(t, e.AddRule(&rete.Rule{
		Name:       "audited",
		Conditions: []rete.Condition{rete.Cond(personPattern())},
		Action: func(facts []*rete.Fact, bindings map[string]value.Value) error {
			actionRan = true
			firingsSeenByAction = len(e.store.(*memstore.Store).RuleFirings("audited", 0))
			return nil
		},
	}))

	id, err := e.AssertFact("Person", value.Attributes{"name": value.String("bob")}, "")
	require.NoError(t, err)
	e.Run()

	assert.True(t, actionRan)
	assert.Equal(t, 1, firingsSeenByAction, "the firing must already be in the audit trail when the action runs")
	firings := e.store.(*memstore.Store).RuleFirings("audited", 0)
	require.Len(t, firings, 1)
	assert.Equal(t, []string{id}, firings[0].FactUUIDs)
}

func TestRetractFact_RemovesFromStoreAndNetwork(t *testing.T) {
	e := newTestEngine(t)

	var activations int
	require.NoError(t, e.AddRule(&rete.Rule{
		Name:       "r",
		Conditions: []rete.Condition{rete.Cond(personPattern())},
		Action: func(facts []*rete.Fact, bindings map[string]value.Value) error {
			activations++
			return nil
		},
	}))

	id, err := e.AssertFact("Person", value.Attributes{"name": value.String("carol")}, "")
	require.NoError(t, err)
	e.Run()
	assert.Equal(t, 1, activations)

	rec, err := e.RetractFact(id)
	require.NoError(t, err)
	assert.True(t, rec.Retracted)
	assert.Nil(t, e.net.WorkingMemory().Get(rete.FactID(id)), "a retracted fact must leave the network")

	_, err = e.RetractFact(id)
	assert.Error(t, err, "retracting an already-retracted fact must fail")
}

func TestUpdateFact_PersistsAndReplacesLiveFact(t *testing.T) {
	e := newTestEngine(t)

	id, err := e.AssertFact("Person", value.Attributes{"name": value.String("dave")}, "")
	require.NoError(t, err)

	require.NoError(t, e.UpdateFact(id, value.Attributes{"name": value.String("david")}))

	f := e.net.WorkingMemory().Get(rete.FactID(id))
	require.NotNil(t, f)
	assert.Equal(t, "david", f.Attributes["name"].String())
	assert.Equal(t, rete.FactID(id), f.ID, "identity survives the retract/reassert")

	rec, ok := e.GetFact(id)
	require.True(t, ok)
	assert.Equal(t, "david", rec.Attributes["name"].String())
}

func TestUpdateFact_ReEvaluatesAlphaMembership(t *testing.T) {
	e := newTestEngine(t)

	cheap := rete.NewPattern("Product", map[string]rete.Constraint{
		"price": rete.Pred(func(v value.Value) bool { return v.Int() < 100 }),
	})
	var matched []string
	require.NoError(t, e.AddRule(&rete.Rule{
		Name:       "cheap-product",
		Conditions: []rete.Condition{rete.Cond(cheap)},
		Action: func(facts []*rete.Fact, bindings map[string]value.Value) error {
			matched = append(matched, string(facts[0].ID))
			return nil
		},
	}))

	id, err := e.AssertFact("Product", value.Attributes{"price": value.Int(50)}, "")
	require.NoError(t, err)
	e.Run()
	assert.Equal(t, []string{id}, matched, "a cheap product must match on assert")

	am := e.net.AlphaMemories()[cheap.Key()]
	require.NotNil(t, am)
	assert.Len(t, am.Items(), 1)

	require.NoError(t, e.UpdateFact(id, value.Attributes{"price": value.Int(500)}))
	assert.Empty(t, am.Items(), "an update that raises the price past the predicate must drop the fact from the alpha memory")

	require.NoError(t, e.UpdateFact(id, value.Attributes{"price": value.Int(10)}))
	assert.Len(t, am.Items(), 1, "lowering the price back under the predicate must re-add the fact")
}

func TestClearSession_RetractsOnlyTaggedFactsFromNetwork(t *testing.T) {
	e := newTestEngine(t)

	id1, err := e.AssertFact("Person", value.Attributes{"name": value.String("a")}, "s1")
	require.NoError(t, err)
	id2, err := e.AssertFact("Person", value.Attributes{"name": value.String("b")}, "other")
	require.NoError(t, err)

	n, err := e.ClearSession("s1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Nil(t, e.net.WorkingMemory().Get(rete.FactID(id1)))
	assert.NotNil(t, e.net.WorkingMemory().Get(rete.FactID(id2)))
}

func TestWarm_ReplaysActiveFactsIntoFreshNetwork(t *testing.T) {
	store, err := memstore.Open(":memory:", config.DefaultAuditConfig(), 30*24*time.Hour)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.AddFact("u1", "Person", value.Attributes{"name": value.String("eve")}, ""))
	require.NoError(t, store.AddFact("u2", "Person", value.Attributes{"name": value.String("frank")}, ""))
	_, err = store.RemoveFact("u2")
	require.NoError(t, err)

	e := NewEngine(store)
	require.NoError(t, e.Warm())

	assert.NotNil(t, e.net.WorkingMemory().Get(rete.FactID("u1")))
	assert.Nil(t, e.net.WorkingMemory().Get(rete.FactID("u2")), "a tombstoned fact must not be replayed")
}

func TestMessageQueue_PassthroughMethods(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.PostMessage("a", "topic", value.String("low"), 1)
	require.NoError(t, err)
	_, err = e.PostMessage("a", "topic", value.String("high"), 10)
	require.NoError(t, err)

	peeked := e.PeekMessages("topic", 10)
	require.Len(t, peeked, 2)

	m, ok := e.ConsumeMessage("topic", "c1")
	require.True(t, ok)
	assert.Equal(t, "high", m.Content.String())
}

func TestString_SummarizesFactAndRuleCounts(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.AddRule(&rete.Rule{
		Name:       "r",
		Conditions: []rete.Condition{rete.Cond(personPattern())},
		Action:     func(facts []*rete.Fact, bindings map[string]value.Value) error { return nil },
	}))
	_, err := e.AssertFact("Person", value.Attributes{"name": value.String("gina")}, "")
	require.NoError(t, err)

	assert.Contains(t, e.String(), "facts=1/1")
	assert.Contains(t, e.String(), "rules=1")
}
