// Package audit implements the append-only fact-change and rule-firing
// history spec.md §4.9 describes: newest-first query lists, capped per
// spec.md §9's resolved Open Question (caps are configuration, not
// hard-coded constants). Grounded on the teacher's
// internal/logging/audit.go "events map to queryable records" design,
// retargeted from its kernel/shard/LLM taxonomy to the two event kinds
// the blackboard actually needs.
package audit

import (
	"sync"
	"time"

	"github.com/codenerd-labs/rete/internal/config"
	"github.com/codenerd-labs/rete/internal/value"
)

// FactAction distinguishes the three ways a fact's audit trail can be
// written to.
type FactAction string

const (
	ActionAssert  FactAction = "assert"
	ActionUpdate  FactAction = "update"
	ActionRetract FactAction = "retract"
)

// FactHistoryEntry is one fact-change audit record.
type FactHistoryEntry struct {
	FactUUID   string
	FactType   string
	Attributes value.Attributes
	Action     FactAction
	Timestamp  time.Time
	SessionID  string
}

// RuleFiringEntry is one rule-firing audit record.
type RuleFiringEntry struct {
	RuleName  string
	FactUUIDs []string
	Bindings  map[string]value.Value
	FiredAt   time.Time
	SessionID string
}

// Log is a capped, newest-first, in-memory audit trail. A single Log
// serves both query shapes (by uuid/rule-name, and globally) by
// keeping one global slice plus per-key slices; writes append to both
// under the same lock, so a caller observing RecordFact/RecordFiring
// return sees every query method reflect it immediately — satisfying
// "in the same atomic batch as the mutation" for the in-memory
// backend.
type Log struct {
	mu     sync.Mutex
	cfg    config.AuditConfig
	facts  []FactHistoryEntry
	firings []RuleFiringEntry
	factsByUUID map[string][]FactHistoryEntry
	firingsByRule map[string][]RuleFiringEntry
}

// New constructs an empty Log bounded by cfg's caps.
func New(cfg config.AuditConfig) *Log {
	return &Log{
		cfg:           cfg,
		factsByUUID:   make(map[string][]FactHistoryEntry),
		firingsByRule: make(map[string][]RuleFiringEntry),
	}
}

// RecordFact appends a fact-change event, newest-first, trimming to
// the configured caps.
func (l *Log) RecordFact(e FactHistoryEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.facts = prependCapped(l.facts, e, l.cfg.GlobalCap)
	per := l.factsByUUID[e.FactUUID]
	l.factsByUUID[e.FactUUID] = prependCapped(per, e, l.cfg.PerFactCap)
}

// RecordFiring appends a rule-firing event, newest-first, trimming to
// the configured caps.
func (l *Log) RecordFiring(e RuleFiringEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.firings = prependCappedFiring(l.firings, e, l.cfg.GlobalCap)
	per := l.firingsByRule[e.RuleName]
	l.firingsByRule[e.RuleName] = prependCappedFiring(per, e, l.cfg.PerRuleCap)
}

// FactHistory returns up to limit fact-change events, newest first, for
// a given uuid or (if uuid is empty) across all facts.
func (l *Log) FactHistory(uuid string, limit int) []FactHistoryEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	src := l.facts
	if uuid != "" {
		src = l.factsByUUID[uuid]
	}
	return cloneFacts(boundedSlice(src, limit))
}

// RuleFirings returns up to limit rule-firing events, newest first, for
// a given rule name or (if ruleName is empty) across all rules.
func (l *Log) RuleFirings(ruleName string, limit int) []RuleFiringEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	src := l.firings
	if ruleName != "" {
		src = l.firingsByRule[ruleName]
	}
	return cloneFirings(boundedSlice(src, limit))
}

// Count reports the number of globally-retained audit records (facts +
// firings), used by Store.Stats().
func (l *Log) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.facts) + len(l.firings)
}

func prependCapped(list []FactHistoryEntry, e FactHistoryEntry, max int) []FactHistoryEntry {
	list = append([]FactHistoryEntry{e}, list...)
	if max > 0 && len(list) > max {
		list = list[:max]
	}
	return list
}

func prependCappedFiring(list []RuleFiringEntry, e RuleFiringEntry, max int) []RuleFiringEntry {
	list = append([]RuleFiringEntry{e}, list...)
	if max > 0 && len(list) > max {
		list = list[:max]
	}
	return list
}

func boundedSlice[T any](s []T, limit int) []T {
	if limit <= 0 || limit >= len(s) {
		return s
	}
	return s[:limit]
}

func cloneFacts(s []FactHistoryEntry) []FactHistoryEntry {
	out := make([]FactHistoryEntry, len(s))
	copy(out, s)
	return out
}

func cloneFirings(s []RuleFiringEntry) []RuleFiringEntry {
	out := make([]RuleFiringEntry, len(s))
	copy(out, s)
	return out
}
