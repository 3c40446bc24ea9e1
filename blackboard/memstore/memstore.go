// Package memstore implements the distributed in-memory Store backend
// of spec.md §4.8.2/§6: facts keyed by uuid with secondary indices
// (active set, per-type set, per-session set) maintained transactionally
// on every mutation, tombstoning via a flag, and vacuum as a physical
// sweep past a retention horizon. Records live at fact:{uuid} and
// ks:{name}; each set (active, all, per-type, per-session, active
// knowledge sources) is kept as one marker key per member
// (idx:active:{uuid}, idx:all:{uuid}, idx:type:{T}:{uuid},
// idx:session:{S}:{uuid}, idx:ks:active:{name}) and read by prefix
// scan; no buntdb secondary indexes are created. Built on
// github.com/tidwall/buntdb — an embeddable, transactional, index-aware
// KV store surfaced via the pack's own go.mod (2lambda123-NVIDIA-aistore);
// the teacher has no distributed/in-memory backend of its own, so this
// package is grounded on the wider example pack rather than the teacher.
//
// Message priority ordering reuses blackboard/mqueue's heap rather than
// a second from-scratch priority structure: buntdb gives this backend
// its indexed, transactional fact storage, while mqueue gives it the
// same tie-break contract (higher priority, then earlier post time)
// the durable backend implements directly in SQL.
package memstore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tidwall/buntdb"

	"github.com/codenerd-labs/rete/blackboard"
	"github.com/codenerd-labs/rete/blackboard/audit"
	"github.com/codenerd-labs/rete/blackboard/mqueue"
	"github.com/codenerd-labs/rete/internal/config"
	"github.com/codenerd-labs/rete/internal/logging"
	"github.com/codenerd-labs/rete/internal/reteerr"
	"github.com/codenerd-labs/rete/internal/value"
)

// FactRecord aliases blackboard.FactRecord.
type FactRecord = blackboard.FactRecord

// wireFact is FactRecord's JSON-on-the-wire shape stored at fact:{uuid}.
type wireFact struct {
	UUID        string           `json:"uuid"`
	Type        string           `json:"type"`
	Attributes  value.Attributes `json:"attributes"`
	SessionID   string           `json:"session_id,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
	Retracted   bool             `json:"retracted"`
	RetractedAt time.Time        `json:"retracted_at,omitempty"`
}

func toWire(r FactRecord) wireFact {
	return wireFact{
		UUID: r.UUID, Type: r.Type, Attributes: r.Attributes, SessionID: r.SessionID,
		CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt, Retracted: r.Retracted, RetractedAt: r.RetractedAt,
	}
}

func fromWire(w wireFact) FactRecord {
	return FactRecord{
		UUID: w.UUID, Type: w.Type, Attributes: w.Attributes, SessionID: w.SessionID,
		CreatedAt: w.CreatedAt, UpdatedAt: w.UpdatedAt, Retracted: w.Retracted, RetractedAt: w.RetractedAt,
	}
}

// KnowledgeSource aliases blackboard.KnowledgeSource.
type KnowledgeSource = blackboard.KnowledgeSource

// Store is the distributed in-memory blackboard backend.
type Store struct {
	db        *buntdb.DB
	queue     *mqueue.Queue
	audit     *audit.Log
	retention time.Duration
	closed    bool
}

// Open opens (creating if necessary) the buntdb database at path
// (":memory:" keeps it purely in-process, never touching disk).
func Open(path string, auditCfg config.AuditConfig, retention time.Duration) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryStore, "memstore.Open")
	defer timer.Stop()

	db, err := buntdb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("memstore: opening %s: %w", path, err)
	}
	s := &Store{
		db:        db,
		queue:     mqueue.New(),
		audit:     audit.New(auditCfg),
		retention: retention,
	}
	if err := s.rehydrateQueue(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// rehydrateQueue replays every persisted, still-unconsumed message
// (message:{id}, indexed at idx:msg:{topic}:{id}) back into the
// in-process priority heap, so a distributed deployment's queue
// survives a process restart the same way its facts already do.
func (s *Store) rehydrateQueue() error {
	var msgs []mqueue.Message
	err := s.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys("idx:msg:*", func(k, v string) bool {
			raw, err := tx.Get(msgKey(idFromMsgIdxKey(k)))
			if err != nil {
				return true
			}
			var w wireMessage
			if json.Unmarshal([]byte(raw), &w) == nil {
				msgs = append(msgs, w.toQueueMsg())
			}
			return true
		})
	})
	if err != nil {
		return err
	}
	for _, m := range msgs {
		s.queue.Restore(m)
	}
	return nil
}

func idFromMsgIdxKey(k string) uint64 {
	i := len(k) - 1
	for i >= 0 && k[i] != ':' {
		i--
	}
	var id uint64
	fmt.Sscanf(k[i+1:], "%d", &id)
	return id
}

func factKey(uuid string) string          { return "fact:" + uuid }
func activeIdxKey(uuid string) string      { return "idx:active:" + uuid }
func allIdxKey(uuid string) string         { return "idx:all:" + uuid }
func typeIdxKey(t, uuid string) string     { return "idx:type:" + t + ":" + uuid }
func sessionIdxKey(s, uuid string) string  { return "idx:session:" + s + ":" + uuid }
func ksKey(name string) string             { return "ks:" + name }
func ksActiveIdxKey(name string) string    { return "idx:ks:active:" + name }
func msgKey(id uint64) string              { return fmt.Sprintf("message:%d", id) }
func msgIdxKey(topic string, id uint64) string { return fmt.Sprintf("idx:msg:%s:%d", topic, id) }

func (s *Store) checkOpen() error {
	if s.closed {
		return reteerr.Wrap(reteerr.ErrClosed, "memstore", nil)
	}
	return nil
}

func getFact(tx *buntdb.Tx, uuid string) (FactRecord, bool) {
	raw, err := tx.Get(factKey(uuid))
	if err != nil {
		return FactRecord{}, false
	}
	var w wireFact
	if err := json.Unmarshal([]byte(raw), &w); err != nil {
		return FactRecord{}, false
	}
	return fromWire(w), true
}

func putFact(tx *buntdb.Tx, rec FactRecord) error {
	b, err := json.Marshal(toWire(rec))
	if err != nil {
		return err
	}
	_, _, err = tx.Set(factKey(rec.UUID), string(b), nil)
	return err
}

// AddFact inserts a new fact record and its indices in one buntdb
// transaction; fails with ErrDuplicateID if the uuid already exists.
func (s *Store) AddFact(uuid, factType string, attrs value.Attributes, sessionID string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	now := time.Now()
	err := s.db.Update(func(tx *buntdb.Tx) error {
		if _, ok := getFact(tx, uuid); ok {
			return reteerr.Wrap(reteerr.ErrDuplicateID, fmt.Sprintf("memstore: uuid %s", uuid), nil)
		}
		rec := FactRecord{UUID: uuid, Type: factType, Attributes: attrs, SessionID: sessionID, CreatedAt: now, UpdatedAt: now}
		if err := putFact(tx, rec); err != nil {
			return err
		}
		tx.Set(activeIdxKey(uuid), "1", nil)
		tx.Set(allIdxKey(uuid), "1", nil)
		tx.Set(typeIdxKey(factType, uuid), "1", nil)
		if sessionID != "" {
			tx.Set(sessionIdxKey(sessionID, uuid), "1", nil)
		}
		return nil
	})
	if err != nil {
		return wrapTxErr(err)
	}
	s.audit.RecordFact(audit.FactHistoryEntry{FactUUID: uuid, FactType: factType, Attributes: attrs, Action: audit.ActionAssert, Timestamp: now, SessionID: sessionID})
	return nil
}

// wrapTxErr passes through errors already tagged with a reteerr kind
// (returned by a transaction callback above via reteerr.Wrap) and wraps
// anything else — a raw buntdb failure — as ErrUnavailable.
func wrapTxErr(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(interface{ Is(error) bool }); ok {
		return err
	}
	return reteerr.Wrap(reteerr.ErrUnavailable, "memstore", err)
}

// RemoveFact soft-deletes a fact (clears the active index, keeps the
// all-facts index for vacuum) and returns its last-known state.
func (s *Store) RemoveFact(uuid string) (FactRecord, error) {
	if err := s.checkOpen(); err != nil {
		return FactRecord{}, err
	}
	var out FactRecord
	now := time.Now()
	err := s.db.Update(func(tx *buntdb.Tx) error {
		rec, ok := getFact(tx, uuid)
		if !ok {
			return reteerr.Wrap(reteerr.ErrNotFound, fmt.Sprintf("memstore: uuid %s", uuid), nil)
		}
		if rec.Retracted {
			return reteerr.Wrap(reteerr.ErrNotFound, fmt.Sprintf("memstore: uuid %s already retracted", uuid), nil)
		}
		rec.Retracted = true
		rec.RetractedAt = now
		rec.UpdatedAt = now
		if err := putFact(tx, rec); err != nil {
			return err
		}
		tx.Delete(activeIdxKey(uuid))
		out = rec
		return nil
	})
	if err != nil {
		return FactRecord{}, wrapTxErr(err)
	}
	s.audit.RecordFact(audit.FactHistoryEntry{FactUUID: out.UUID, FactType: out.Type, Attributes: out.Attributes, Action: audit.ActionRetract, Timestamp: now, SessionID: out.SessionID})
	return out, nil
}

// UpdateFact replaces an active fact's attributes in place.
func (s *Store) UpdateFact(uuid string, attrs value.Attributes) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	now := time.Now()
	var rec FactRecord
	err := s.db.Update(func(tx *buntdb.Tx) error {
		r, ok := getFact(tx, uuid)
		if !ok || r.Retracted {
			return reteerr.Wrap(reteerr.ErrNotFound, fmt.Sprintf("memstore: uuid %s", uuid), nil)
		}
		r.Attributes = attrs
		r.UpdatedAt = now
		if err := putFact(tx, r); err != nil {
			return err
		}
		rec = r
		return nil
	})
	if err != nil {
		return wrapTxErr(err)
	}
	s.audit.RecordFact(audit.FactHistoryEntry{FactUUID: rec.UUID, FactType: rec.Type, Attributes: attrs, Action: audit.ActionUpdate, Timestamp: now, SessionID: rec.SessionID})
	return nil
}

// GetFact returns the fact (active or tombstoned) with the given uuid.
func (s *Store) GetFact(uuid string) (FactRecord, bool) {
	var rec FactRecord
	var ok bool
	s.db.View(func(tx *buntdb.Tx) error {
		rec, ok = getFact(tx, uuid)
		return nil
	})
	return rec, ok
}

// GetFacts returns every active fact of factType (or every active fact
// if factType is empty) satisfying match. It scans every fact through
// the idx:all keys (via QueryFacts) and filters by type in memory; the
// per-type keys are not consulted.
func (s *Store) GetFacts(factType string, match func(FactRecord) bool) []FactRecord {
	return s.QueryFacts(func(r FactRecord) bool {
		if r.Retracted {
			return false
		}
		if factType != "" && r.Type != factType {
			return false
		}
		if match != nil && !match(r) {
			return false
		}
		return true
	})
}

// QueryFacts scans every fact (active and tombstoned) and returns those
// satisfying predicate.
func (s *Store) QueryFacts(predicate func(FactRecord) bool) []FactRecord {
	var out []FactRecord
	s.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys("idx:all:*", func(k, v string) bool {
			uuid := k[len("idx:all:"):]
			rec, ok := getFact(tx, uuid)
			if ok && (predicate == nil || predicate(rec)) {
				out = append(out, rec)
			}
			return true
		})
	})
	return out
}

// RegisterKnowledgeSource upserts a knowledge source; idempotent.
func (s *Store) RegisterKnowledgeSource(name, description string, topics []string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	err := s.db.Update(func(tx *buntdb.Tx) error {
		ks := KnowledgeSource{Name: name, Description: description, Topics: topics, Active: true, RegisteredAt: time.Now()}
		if raw, err := tx.Get(ksKey(name)); err == nil {
			var existing KnowledgeSource
			if json.Unmarshal([]byte(raw), &existing) == nil {
				ks.RegisteredAt = existing.RegisteredAt
			}
		}
		b, err := json.Marshal(ks)
		if err != nil {
			return err
		}
		tx.Set(ksKey(name), string(b), nil)
		tx.Set(ksActiveIdxKey(name), "1", nil)
		return nil
	})
	return wrapTxErr(err)
}

// KnowledgeSources returns every registered knowledge source.
func (s *Store) KnowledgeSources() []KnowledgeSource {
	var out []KnowledgeSource
	s.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys("ks:*", func(k, v string) bool {
			var ks KnowledgeSource
			if json.Unmarshal([]byte(v), &ks) == nil {
				out = append(out, ks)
			}
			return true
		})
	})
	return out
}

// ClearSession soft-deletes every active fact tagged with sessionID.
func (s *Store) ClearSession(sessionID string) (int, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	var uuids []string
	s.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys("idx:session:"+sessionID+":*", func(k, v string) bool {
			uuids = append(uuids, k[len("idx:session:"+sessionID+":"):])
			return true
		})
	})

	now := time.Now()
	var cleared []FactRecord
	err := s.db.Update(func(tx *buntdb.Tx) error {
		for _, uuid := range uuids {
			rec, ok := getFact(tx, uuid)
			if !ok || rec.Retracted {
				continue
			}
			rec.Retracted = true
			rec.RetractedAt = now
			rec.UpdatedAt = now
			if err := putFact(tx, rec); err != nil {
				return err
			}
			tx.Delete(activeIdxKey(uuid))
			cleared = append(cleared, rec)
		}
		return nil
	})
	if err != nil {
		return 0, wrapTxErr(err)
	}
	for _, rec := range cleared {
		s.audit.RecordFact(audit.FactHistoryEntry{FactUUID: rec.UUID, FactType: rec.Type, Attributes: rec.Attributes, Action: audit.ActionRetract, Timestamp: now, SessionID: sessionID})
	}
	return len(cleared), nil
}

// Stats summarizes the store's contents.
func (s *Store) Stats() blackboard.Stats {
	var st blackboard.Stats
	s.db.View(func(tx *buntdb.Tx) error {
		tx.AscendKeys("idx:all:*", func(k, v string) bool { st.TotalFacts++; return true })
		tx.AscendKeys("idx:active:*", func(k, v string) bool { st.ActiveFacts++; return true })
		tx.AscendKeys("idx:ks:active:*", func(k, v string) bool { st.KnowledgeSources++; return true })
		return nil
	})
	st.AuditRecords = s.audit.Count()
	_, unconsumed := s.queue.Stats()
	st.QueuedMessages = unconsumed
	return st
}

// Vacuum physically removes tombstoned facts whose retraction predates
// the store's configured retention horizon.
func (s *Store) Vacuum() (int, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-s.retention)
	var toDelete []string
	s.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys("idx:all:*", func(k, v string) bool {
			uuid := k[len("idx:all:"):]
			rec, ok := getFact(tx, uuid)
			if ok && rec.Retracted && rec.RetractedAt.Before(cutoff) {
				toDelete = append(toDelete, uuid)
			}
			return true
		})
	})
	if len(toDelete) == 0 {
		return 0, nil
	}
	err := s.db.Update(func(tx *buntdb.Tx) error {
		for _, uuid := range toDelete {
			rec, _ := getFact(tx, uuid)
			tx.Delete(factKey(uuid))
			tx.Delete(allIdxKey(uuid))
			tx.Delete(typeIdxKey(rec.Type, uuid))
			if rec.SessionID != "" {
				tx.Delete(sessionIdxKey(rec.SessionID, uuid))
			}
		}
		return nil
	})
	if err != nil {
		return 0, wrapTxErr(err)
	}
	logging.Get(logging.CategoryStore).Debugf("memstore: vacuumed %d tombstoned facts", len(toDelete))
	return len(toDelete), nil
}

// Transaction is a passive scope: it runs fn inline, with no enclosing
// buntdb transaction, because every exported method above opens its
// own Update/View. Each such call commits on its own; an error from fn
// does not roll back calls fn has already made.
func (s *Store) Transaction(fn func() error) error {
	return fn()
}

// Close releases the underlying buntdb handle.
func (s *Store) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// FactHistoryEntry mirrors audit.FactHistoryEntry.
type FactHistoryEntry = audit.FactHistoryEntry

// RuleFiringEntry mirrors audit.RuleFiringEntry.
type RuleFiringEntry = audit.RuleFiringEntry

// FactHistory delegates to the in-memory audit log.
func (s *Store) FactHistory(uuid string, limit int) []FactHistoryEntry {
	return s.audit.FactHistory(uuid, limit)
}

// RuleFirings delegates to the in-memory audit log.
func (s *Store) RuleFirings(ruleName string, limit int) []RuleFiringEntry {
	return s.audit.RuleFirings(ruleName, limit)
}

// RecordFiring appends a rule-firing audit record.
func (s *Store) RecordFiring(ruleName string, factUUIDs []string, bindings map[string]value.Value, sessionID string) error {
	s.audit.RecordFiring(audit.RuleFiringEntry{RuleName: ruleName, FactUUIDs: factUUIDs, Bindings: bindings, FiredAt: time.Now(), SessionID: sessionID})
	return nil
}

// Message aliases blackboard.Message.
type Message = blackboard.Message

// wireMessage is an unconsumed message's on-the-wire shape, persisted
// at message:{id} and indexed at idx:msg:{topic}:{id} so a restart can
// rehydrate the in-process priority heap (see rehydrateQueue). Entries
// are deleted once consumed: nothing in the Store interface queries
// message history, so there is no reason to keep a tombstone around.
type wireMessage struct {
	ID       uint64      `json:"id"`
	Sender   string      `json:"sender"`
	Topic    string      `json:"topic"`
	Content  value.Value `json:"content"`
	Priority int         `json:"priority"`
	PostedAt time.Time   `json:"posted_at"`
}

func (w wireMessage) toQueueMsg() mqueue.Message {
	return mqueue.Message{ID: w.ID, Sender: w.Sender, Topic: w.Topic, Content: w.Content, Priority: w.Priority, PostedAt: w.PostedAt}
}

func fromQueueMsg(m mqueue.Message) Message {
	return Message{
		ID: m.ID, Sender: m.Sender, Topic: m.Topic, Content: m.Content, Priority: m.Priority,
		PostedAt: m.PostedAt, Consumed: m.Consumed, ConsumedBy: m.ConsumedBy, ConsumedAt: m.ConsumedAt,
	}
}

// PostMessage enqueues a message on its topic's priority heap and
// persists it so the queue survives a process restart.
func (s *Store) PostMessage(sender, topic string, content value.Value, priority int) (uint64, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	postedAt := time.Now()
	id := s.queue.Post(sender, topic, content, priority, postedAt)

	w := wireMessage{ID: id, Sender: sender, Topic: topic, Content: content, Priority: priority, PostedAt: postedAt}
	b, err := json.Marshal(w)
	if err != nil {
		return id, err
	}
	err = s.db.Update(func(tx *buntdb.Tx) error {
		tx.Set(msgKey(id), string(b), nil)
		tx.Set(msgIdxKey(topic, id), "1", nil)
		return nil
	})
	if err != nil {
		return id, wrapTxErr(err)
	}
	return id, nil
}

// ConsumeMessage atomically selects and marks consumed the
// highest-priority unconsumed message on topic, then deletes its
// persisted record.
func (s *Store) ConsumeMessage(topic, consumer string) (Message, bool) {
	m, ok := s.queue.Consume(topic, consumer, time.Now())
	if !ok {
		return Message{}, false
	}
	s.db.Update(func(tx *buntdb.Tx) error {
		tx.Delete(msgKey(m.ID))
		tx.Delete(msgIdxKey(topic, m.ID))
		return nil
	})
	return fromQueueMsg(m), true
}

// PeekMessages returns up to limit highest-priority unconsumed messages
// on topic without modifying them.
func (s *Store) PeekMessages(topic string, limit int) []Message {
	msgs := s.queue.Peek(topic, limit)
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = fromQueueMsg(m)
	}
	return out
}

// MessageStats reports the total posted and currently unconsumed
// message counts.
func (s *Store) MessageStats() (posted int, unconsumed int) {
	return s.queue.Stats()
}
