// Package blackboard defines the persistence interface a BlackboardEngine
// layers under a rete.Engine, plus the shared record types its three
// concrete backends (sqlitestore, memstore, hybridstore) all speak. See
// SPEC_FULL.md §4.8.
package blackboard

import (
	"time"

	"github.com/codenerd-labs/rete/blackboard/audit"
	"github.com/codenerd-labs/rete/internal/value"
)

// FactHistoryEntry and RuleFiringEntry are the two audit event shapes
// spec.md §4.9 names; defined in the audit package and re-exported here
// so Store implementations don't need to import both packages under
// different names.
type FactHistoryEntry = audit.FactHistoryEntry
type RuleFiringEntry = audit.RuleFiringEntry

// FactRecord is a persisted fact: identity, type, attributes, optional
// session tag, timestamps, and tombstone state.
type FactRecord struct {
	UUID        string
	Type        string
	Attributes  value.Attributes
	SessionID   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Retracted   bool
	RetractedAt time.Time
}

// KnowledgeSource is a registered provenance tag for facts, per spec.md
// §4.8's register_knowledge_source.
type KnowledgeSource struct {
	Name         string
	Description  string
	Topics       []string
	Active       bool
	RegisteredAt time.Time
}

// Stats summarizes a Store's contents per spec.md §4.8's stats().
type Stats struct {
	TotalFacts       int
	ActiveFacts      int
	KnowledgeSources int
	AuditRecords     int
	QueuedMessages   int
}

// Message is a posted blackboard message; see spec.md §4.10/§6.
type Message struct {
	ID         uint64
	Sender     string
	Topic      string
	Content    value.Value
	Priority   int
	PostedAt   time.Time
	Consumed   bool
	ConsumedBy string
	ConsumedAt time.Time
}

// Store is the blackboard persistence interface: fact CRUD with
// tombstoning, knowledge-source registration, session clearing, audit
// queries, and a priority message queue. Every operation is total and
// fails with a reteerr-wrapped sentinel, never a bare backend error.
type Store interface {
	AddFact(uuid, factType string, attrs value.Attributes, sessionID string) error
	RemoveFact(uuid string) (FactRecord, error)
	UpdateFact(uuid string, attrs value.Attributes) error
	GetFact(uuid string) (FactRecord, bool)
	GetFacts(factType string, match func(FactRecord) bool) []FactRecord
	QueryFacts(predicate func(FactRecord) bool) []FactRecord

	RegisterKnowledgeSource(name, description string, topics []string) error
	KnowledgeSources() []KnowledgeSource

	ClearSession(sessionID string) (int, error)

	Stats() Stats
	Vacuum() (int, error)
	Transaction(fn func() error) error
	Close() error

	FactHistory(uuid string, limit int) []FactHistoryEntry
	RuleFirings(ruleName string, limit int) []RuleFiringEntry
	RecordFiring(ruleName string, factUUIDs []string, bindings map[string]value.Value, sessionID string) error

	PostMessage(sender, topic string, content value.Value, priority int) (uint64, error)
	ConsumeMessage(topic, consumer string) (Message, bool)
	PeekMessages(topic string, limit int) []Message
	MessageStats() (posted int, unconsumed int)
}
