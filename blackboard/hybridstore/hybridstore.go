// Package hybridstore composes memstore (fact CRUD + messaging, for
// latency) with sqlitestore (audit trail, for durability) into a single
// blackboard.Store, per spec.md §4.8.3. Grounded on the teacher's
// internal/store/local.go composition of LocalStore (facts) with
// TraceStore (an adjacent durability-focused store) behind one facade
// with merged stats and a close that closes both.
package hybridstore

import (
	"time"

	"github.com/codenerd-labs/rete/blackboard"
	"github.com/codenerd-labs/rete/blackboard/audit"
	"github.com/codenerd-labs/rete/blackboard/memstore"
	"github.com/codenerd-labs/rete/blackboard/sqlitestore"
	"github.com/codenerd-labs/rete/internal/config"
	"github.com/codenerd-labs/rete/internal/value"
)

// Store composes a memstore.Store (facts, knowledge sources, messages)
// with a sqlitestore.Store (audit trail only).
type Store struct {
	facts *memstore.Store
	audit *sqlitestore.Store
}

// Open opens both backing stores and returns a composed Store. The
// memstore lives at memPath (":memory:" keeps it purely in-process);
// the sqlitestore lives at sqlitePath and is used exclusively for its
// fact_history/rules_fired tables.
func Open(memPath, sqlitePath string, auditCfg config.AuditConfig, retention time.Duration) (*Store, error) {
	facts, err := memstore.Open(memPath, auditCfg, retention)
	if err != nil {
		return nil, err
	}
	auditDB, err := sqlitestore.Open(sqlitePath, retention)
	if err != nil {
		facts.Close()
		return nil, err
	}
	return &Store{facts: facts, audit: auditDB}, nil
}

// FactRecord aliases blackboard.FactRecord.
type FactRecord = blackboard.FactRecord

// KnowledgeSource aliases blackboard.KnowledgeSource.
type KnowledgeSource = blackboard.KnowledgeSource

// Message aliases blackboard.Message.
type Message = blackboard.Message

// AddFact delegates to the in-memory store and mirrors the change into
// the durable audit trail.
func (s *Store) AddFact(uuid, factType string, attrs value.Attributes, sessionID string) error {
	if err := s.facts.AddFact(uuid, factType, attrs, sessionID); err != nil {
		return err
	}
	return s.recordFactChange(uuid, factType, attrs, audit.ActionAssert, sessionID)
}

func (s *Store) recordFactChange(uuid, factType string, attrs value.Attributes, action audit.FactAction, sessionID string) error {
	// The hybrid backend never mirrors fact rows into sqlitestore's facts
	// table (memstore alone owns fact CRUD); it only uses sqlitestore's
	// fact_history table for durability.
	return s.audit.RecordFactHistory(uuid, factType, attrs, action, sessionID)
}

// RemoveFact delegates to the in-memory store and mirrors the
// retraction into the durable audit trail.
func (s *Store) RemoveFact(uuid string) (FactRecord, error) {
	rec, err := s.facts.RemoveFact(uuid)
	if err != nil {
		return FactRecord{}, err
	}
	s.recordFactChange(uuid, rec.Type, rec.Attributes, audit.ActionRetract, rec.SessionID)
	return rec, nil
}

// UpdateFact delegates to the in-memory store and mirrors the change
// into the durable audit trail.
func (s *Store) UpdateFact(uuid string, attrs value.Attributes) error {
	rec, ok := s.facts.GetFact(uuid)
	if !ok {
		return s.facts.UpdateFact(uuid, attrs) // surfaces the same NotFound
	}
	if err := s.facts.UpdateFact(uuid, attrs); err != nil {
		return err
	}
	return s.recordFactChange(uuid, rec.Type, attrs, audit.ActionUpdate, rec.SessionID)
}

// GetFact delegates to the in-memory store.
func (s *Store) GetFact(uuid string) (FactRecord, bool) { return s.facts.GetFact(uuid) }

// GetFacts delegates to the in-memory store.
func (s *Store) GetFacts(factType string, match func(FactRecord) bool) []FactRecord {
	return s.facts.GetFacts(factType, match)
}

// QueryFacts delegates to the in-memory store.
func (s *Store) QueryFacts(predicate func(FactRecord) bool) []FactRecord {
	return s.facts.QueryFacts(predicate)
}

// RegisterKnowledgeSource delegates to the in-memory store.
func (s *Store) RegisterKnowledgeSource(name, description string, topics []string) error {
	return s.facts.RegisterKnowledgeSource(name, description, topics)
}

// KnowledgeSources delegates to the in-memory store.
func (s *Store) KnowledgeSources() []KnowledgeSource { return s.facts.KnowledgeSources() }

// ClearSession delegates to the in-memory store; each cleared fact is
// separately mirrored into the durable audit trail.
func (s *Store) ClearSession(sessionID string) (int, error) {
	cleared := s.facts.GetFacts("", func(r FactRecord) bool { return r.SessionID == sessionID })
	n, err := s.facts.ClearSession(sessionID)
	if err != nil {
		return n, err
	}
	for _, rec := range cleared {
		s.recordFactChange(rec.UUID, rec.Type, rec.Attributes, audit.ActionRetract, sessionID)
	}
	return n, nil
}

// Stats merges both backing stores' statistics: fact/knowledge-source/
// message figures come from memstore, audit record counts come from
// sqlitestore.
func (s *Store) Stats() blackboard.Stats {
	fs := s.facts.Stats()
	as := s.audit.Stats()
	return blackboard.Stats{
		TotalFacts:       fs.TotalFacts,
		ActiveFacts:      fs.ActiveFacts,
		KnowledgeSources: fs.KnowledgeSources,
		AuditRecords:     as.AuditRecords,
		QueuedMessages:   fs.QueuedMessages,
	}
}

// Vacuum compacts both backing stores and returns the combined count of
// physically removed records.
func (s *Store) Vacuum() (int, error) {
	n1, err := s.facts.Vacuum()
	if err != nil {
		return n1, err
	}
	n2, err := s.audit.Vacuum()
	if err != nil {
		return n1 + n2, err
	}
	return n1 + n2, nil
}

// Transaction is a passive scope: memstore and sqlitestore each manage
// their own per-call atomicity, and the hybrid composition does not
// span a single cross-backend transaction.
func (s *Store) Transaction(fn func() error) error { return fn() }

// Close closes both backing stores, in mem-then-audit order, returning
// the first error encountered.
func (s *Store) Close() error {
	err1 := s.facts.Close()
	err2 := s.audit.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// FactHistoryEntry mirrors audit.FactHistoryEntry.
type FactHistoryEntry = audit.FactHistoryEntry

// RuleFiringEntry mirrors audit.RuleFiringEntry.
type RuleFiringEntry = audit.RuleFiringEntry

// FactHistory delegates to the durable audit trail.
func (s *Store) FactHistory(uuid string, limit int) []FactHistoryEntry {
	return s.audit.FactHistory(uuid, limit)
}

// RuleFirings delegates to the durable audit trail.
func (s *Store) RuleFirings(ruleName string, limit int) []RuleFiringEntry {
	return s.audit.RuleFirings(ruleName, limit)
}

// RecordFiring delegates to the durable audit trail.
func (s *Store) RecordFiring(ruleName string, factUUIDs []string, bindings map[string]value.Value, sessionID string) error {
	return s.audit.RecordFiring(ruleName, factUUIDs, bindings, sessionID)
}

// PostMessage delegates to the in-memory store.
func (s *Store) PostMessage(sender, topic string, content value.Value, priority int) (uint64, error) {
	return s.facts.PostMessage(sender, topic, content, priority)
}

// ConsumeMessage delegates to the in-memory store.
func (s *Store) ConsumeMessage(topic, consumer string) (Message, bool) {
	return s.facts.ConsumeMessage(topic, consumer)
}

// PeekMessages delegates to the in-memory store.
func (s *Store) PeekMessages(topic string, limit int) []Message {
	return s.facts.PeekMessages(topic, limit)
}

// MessageStats delegates to the in-memory store.
func (s *Store) MessageStats() (posted int, unconsumed int) {
	return s.facts.MessageStats()
}
