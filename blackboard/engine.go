// Package blackboard layers UUID-identified persistent facts, an audit
// trail, and a priority message queue over a rete.Engine. See
// SPEC_FULL.md §4.11. Grounded on the teacher's internal/mangle.Engine:
// a hollow kernel (here, the RETE network) wrapped around a pluggable
// persistence hook — there ReplaceFactsForFile/LoadFacts against a
// factstore.ConcurrentFactStore, here the full Store interface.
package blackboard

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/codenerd-labs/rete/internal/logging"
	"github.com/codenerd-labs/rete/internal/reteerr"
	"github.com/codenerd-labs/rete/internal/value"
	"github.com/codenerd-labs/rete/rete"
)

// Engine is a rete.Engine whose fact identity is a durable UUID instead
// of an opaque in-process handle: every assert/update/retract goes
// through a Store first, then drives the underlying network exactly
// the way a direct WorkingMemory mutation would.
type Engine struct {
	mu    sync.Mutex
	net   *rete.Engine
	store Store
}

// NewEngine constructs a BlackboardEngine over an empty RETE network
// backed by store. Any facts already present in store are not
// automatically loaded; call Warm to hydrate the network from a
// previously-populated Store.
func NewEngine(store Store) *Engine {
	return &Engine{net: rete.New(), store: store}
}

// Network exposes the underlying rete.Engine for rule compilation
// (AddRule), Run, and read-only inspection (Rules, AlphaMemories,
// Productions, Facts).
func (e *Engine) Network() *rete.Engine { return e.net }

// Store returns the backing persistence layer.
func (e *Engine) Store() Store { return e.store }

// Warm replays every active fact currently in the Store into the RETE
// network, in the order QueryFacts returns them. Call once, before
// adding rules or driving Run, when resuming against a Store that
// already holds facts from a prior process.
func (e *Engine) Warm() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, rec := range e.store.QueryFacts(func(r FactRecord) bool { return !r.Retracted }) {
		e.net.AssertFact(&rete.Fact{ID: rete.FactID(rec.UUID), Type: rec.Type, Attributes: rec.Attributes.Clone()})
	}
	return nil
}

// AddRule compiles rule into the network, wrapping its Action so every
// firing is recorded in the Store's audit trail before the rule's own
// side effects run. A nested assert/update/retract performed inside
// the action participates in the same audit trail as any top-level
// call.
func (e *Engine) AddRule(rule *rete.Rule) error {
	original := rule.Action
	wrapped := *rule
	wrapped.Action = func(facts []*rete.Fact, bindings map[string]value.Value) error {
		uuids := make([]string, len(facts))
		for i, f := range facts {
			uuids[i] = string(f.ID)
		}
		if err := e.store.RecordFiring(rule.Name, uuids, bindings, ""); err != nil {
			logging.Get(logging.CategoryAudit).Warnf("recording firing of %s: %v", rule.Name, err)
		}
		logging.Get(logging.CategoryEngine).Debugf("rule %s fired facts=%v", rule.Name, uuids)
		if original == nil {
			return nil
		}
		return original(facts, bindings)
	}
	return e.net.AddRule(&wrapped)
}

// Run fires every eligible token exactly once, as rete.Engine.Run does;
// per-rule audit logging happens inside each wrapped Action (see
// AddRule), so Run itself is a thin passthrough.
func (e *Engine) Run() []rete.ActionFailureReport { return e.net.Run() }

// AssertFact mints a fresh UUID, persists the fact through the Store,
// and drives it into the RETE network. Returns the minted UUID.
func (e *Engine) AssertFact(factType string, attrs value.Attributes, sessionID string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := uuid.NewString()
	if err := e.store.AddFact(id, factType, attrs, sessionID); err != nil {
		return "", err
	}
	e.net.AssertFact(&rete.Fact{ID: rete.FactID(id), Type: factType, Attributes: attrs.Clone()})
	return id, nil
}

// RetractFact tombstones the fact in the Store and removes it from the
// RETE network. Returns the retracted record's last-known type and
// attributes.
func (e *Engine) RetractFact(id string) (FactRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, err := e.store.RemoveFact(id)
	if err != nil {
		return FactRecord{}, err
	}
	if f := e.net.WorkingMemory().Get(rete.FactID(id)); f != nil {
		e.net.Retract(f)
	}
	return rec, nil
}

// UpdateFact persists the new attributes through the Store, then
// retracts and re-asserts the live network fact under the same
// identity so every AlphaMemory it belongs to is re-evaluated against
// the new attributes: the invariant an AlphaMemory maintains is "the
// set of facts it holds equals the set of WorkingMemory facts matching
// its Pattern", and mutating Attributes in place without re-testing
// the pattern would leave a fact an AlphaMemory should have dropped
// (or should have newly picked up) standing in a stale state — e.g. a
// price-predicate alpha keeping a fact whose updated price no longer
// passes. Retract/reassert drives the same RightDeactivate/RightActivate
// path a fresh fact would, at the cost of momentarily breaking any
// negation inhibition the old attributes held (the retract can lift an
// inhibition and the reassert re-impose it, both synchronously within
// this call, so no Run() observes the gap).
func (e *Engine) UpdateFact(id string, attrs value.Attributes) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.store.UpdateFact(id, attrs); err != nil {
		return err
	}
	if f := e.net.WorkingMemory().Get(rete.FactID(id)); f != nil {
		e.net.Retract(f)
		e.net.AssertFact(&rete.Fact{ID: f.ID, Type: f.Type, Attributes: attrs.Clone()})
	}
	return nil
}

// ClearSession retracts every fact tagged with sessionID, both in the
// Store and in the network.
func (e *Engine) ClearSession(sessionID string) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	matching := e.store.QueryFacts(func(r FactRecord) bool { return !r.Retracted && r.SessionID == sessionID })
	n, err := e.store.ClearSession(sessionID)
	if err != nil {
		return n, err
	}
	for _, rec := range matching {
		if f := e.net.WorkingMemory().Get(rete.FactID(rec.UUID)); f != nil {
			e.net.Retract(f)
		}
	}
	return n, nil
}

// GetFact returns the Store's record for id (active or tombstoned); it
// does not consult the network.
func (e *Engine) GetFact(id string) (FactRecord, bool) { return e.store.GetFact(id) }

// PostMessage is a thin passthrough to the Store's message queue.
func (e *Engine) PostMessage(sender, topic string, content value.Value, priority int) (uint64, error) {
	return e.store.PostMessage(sender, topic, content, priority)
}

// ConsumeMessage is a thin passthrough to the Store's message queue.
func (e *Engine) ConsumeMessage(topic, consumer string) (Message, bool) {
	return e.store.ConsumeMessage(topic, consumer)
}

// PeekMessages is a thin passthrough to the Store's message queue.
func (e *Engine) PeekMessages(topic string, limit int) []Message {
	return e.store.PeekMessages(topic, limit)
}

// Close releases the backing Store.
func (e *Engine) Close() error {
	if e.store == nil {
		return reteerr.Wrap(reteerr.ErrClosed, "blackboard engine has no store", nil)
	}
	return e.store.Close()
}

// String renders a short operator-facing identity summary; useful in
// log lines and CLI output.
func (e *Engine) String() string {
	st := e.store.Stats()
	return fmt.Sprintf("BlackboardEngine{facts=%d/%d rules=%d}", st.ActiveFacts, st.TotalFacts, len(e.net.Rules()))
}
