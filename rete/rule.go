package rete

import "github.com/codenerd-labs/rete/internal/value"

// Condition is a pattern plus a negated flag: a plain, user-authored
// element of a Rule's condition list. Join tests are derived
// automatically at compile time from variable reuse (see engine.go);
// authors never specify them directly.
type Condition struct {
	Pattern Pattern
	Negated bool
}

// Action is a rule's callable: it receives the matched fact tuple (in
// condition order, negated slots omitted) and the reconstructed
// variable-binding map. A non-nil return is treated as ActionFailure:
// isolated per token, never corrupting the network.
type Action func(facts []*Fact, bindings map[string]value.Value) error

// Rule is a named, prioritized condition list plus action.
type Rule struct {
	Name       string
	Priority   int
	Conditions []Condition
	Action     Action
}

// Cond builds a non-negated condition.
func Cond(p Pattern) Condition { return Condition{Pattern: p} }

// Not builds a negated condition.
func Not(p Pattern) Condition { return Condition{Pattern: p, Negated: true} }
