// Package rete implements the RETE discrimination network: working
// memory, alpha/beta memories, join/negation/production nodes, and the
// Engine that compiles rules and drives activation. See SPEC_FULL.md
// §4.1-§4.7.
package rete

import (
	"sync"
	"sync/atomic"

	"github.com/codenerd-labs/rete/internal/value"
)

// FactID identifies a fact. The ephemeral engine assigns an opaque
// in-process handle; the blackboard engine assigns a UUID string.
// Either way identity never changes for the life of the fact.
type FactID string

// Fact is an immutable identity paired with a heterogeneous attribute
// bag that callers should treat as immutable once the fact is live in
// a WorkingMemory: an AlphaMemory decides membership once, at
// RightActivate/RightActivate time, so changing Attributes without
// retracting and re-asserting leaves that decision stale. The
// blackboard's update operation retracts and re-asserts under the same
// identity rather than mutating a live fact.
type Fact struct {
	ID         FactID
	Type       string
	Attributes value.Attributes
}

// Get returns the value of an attribute, or the nil Value if absent.
func (f *Fact) Get(attr string) value.Value {
	if f == nil {
		return value.Nil()
	}
	v, ok := f.Attributes[attr]
	if !ok {
		return value.Nil()
	}
	return v
}

var ephemeralCounter uint64

// NewEphemeralID mints an opaque in-process fact handle for the
// ephemeral (non-blackboard) engine.
func NewEphemeralID() FactID {
	n := atomic.AddUint64(&ephemeralCounter, 1)
	return FactID(itoa(n))
}

func itoa(n uint64) string {
	if n == 0 {
		return "f0"
	}
	buf := make([]byte, 0, 20)
	for n > 0 {
		buf = append(buf, byte('0'+n%10))
		n /= 10
	}
	// reverse
	for i, j := 0, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
	return "f" + string(buf)
}

// EventKind distinguishes WorkingMemory mutation events.
type EventKind int

const (
	EventAdd EventKind = iota
	EventRemove
)

// Event is delivered synchronously to WorkingMemory observers in the
// order the triggering mutation occurred.
type Event struct {
	Kind EventKind
	Fact *Fact
}

// Observer reacts to a WorkingMemory mutation. Observer callbacks must
// complete before the triggering Assert/Retract call returns.
type Observer func(Event)

// WorkingMemory is the authoritative set of currently-asserted facts.
// assert/retract notify every subscribed observer, in registration
// order, before returning.
type WorkingMemory struct {
	mu        sync.Mutex
	facts     map[FactID]*Fact
	observers []Observer
}

// NewWorkingMemory constructs an empty WorkingMemory.
func NewWorkingMemory() *WorkingMemory {
	return &WorkingMemory{facts: make(map[FactID]*Fact)}
}

// Subscribe registers an observer. The Engine subscribes itself as the
// one observer; the blackboard engine adds none of its own and records
// audit entries through its Store instead.
func (wm *WorkingMemory) Subscribe(o Observer) {
	wm.mu.Lock()
	defer wm.mu.Unlock()
	wm.observers = append(wm.observers, o)
}

// Assert adds a fact and emits EventAdd. Idempotent if the identity is
// already present: the second assert of the same id is a silent no-op
// (upstream callers, e.g. the blackboard, are expected to reject
// duplicate ids before reaching WorkingMemory).
func (wm *WorkingMemory) Assert(f *Fact) {
	wm.mu.Lock()
	if _, exists := wm.facts[f.ID]; exists {
		wm.mu.Unlock()
		return
	}
	wm.facts[f.ID] = f
	observers := append([]Observer(nil), wm.observers...)
	wm.mu.Unlock()

	for _, o := range observers {
		o(Event{Kind: EventAdd, Fact: f})
	}
}

// Retract removes a fact and emits EventRemove exactly once for a
// present fact. Retracting an absent fact is a no-op.
func (wm *WorkingMemory) Retract(f *Fact) {
	wm.mu.Lock()
	if _, exists := wm.facts[f.ID]; !exists {
		wm.mu.Unlock()
		return
	}
	delete(wm.facts, f.ID)
	observers := append([]Observer(nil), wm.observers...)
	wm.mu.Unlock()

	for _, o := range observers {
		o(Event{Kind: EventRemove, Fact: f})
	}
}

// Get returns the fact with the given id, or nil if not present.
func (wm *WorkingMemory) Get(id FactID) *Fact {
	wm.mu.Lock()
	defer wm.mu.Unlock()
	return wm.facts[id]
}

// Facts returns a snapshot slice of every currently-asserted fact.
// Order is unspecified.
func (wm *WorkingMemory) Facts() []*Fact {
	wm.mu.Lock()
	defer wm.mu.Unlock()
	out := make([]*Fact, 0, len(wm.facts))
	for _, f := range wm.facts {
		out = append(out, f)
	}
	return out
}

// Len reports the number of currently-asserted facts.
func (wm *WorkingMemory) Len() int {
	wm.mu.Lock()
	defer wm.mu.Unlock()
	return len(wm.facts)
}

// clear removes every fact without emitting events; used by Engine.Reset
// which rebuilds observers' downstream state directly.
func (wm *WorkingMemory) clear() {
	wm.mu.Lock()
	defer wm.mu.Unlock()
	wm.facts = make(map[FactID]*Fact)
}
