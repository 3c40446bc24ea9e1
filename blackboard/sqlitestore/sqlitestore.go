// Package sqlitestore implements the durable transactional Store
// backend of spec.md §4.8.1/§6: ACID guarantees, soft-deleted facts,
// indices on fact type/session/tombstone, and an updated_at timestamp
// maintained on every mutation. Grounded on the teacher's
// internal/store/local_core.go (sql.Open + WAL/busy_timeout/
// synchronous=NORMAL pragmas, single-connection serialization) and
// internal/store/migrations.go (table-driven versioned ALTER TABLE
// migrator).
package sqlitestore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/codenerd-labs/rete/blackboard"
	"github.com/codenerd-labs/rete/blackboard/audit"
	"github.com/codenerd-labs/rete/internal/logging"
	"github.com/codenerd-labs/rete/internal/reteerr"
	"github.com/codenerd-labs/rete/internal/value"
)

// Store is the durable transactional blackboard backend.
type Store struct {
	mu        sync.Mutex
	db        *sql.DB
	closed    bool
	retention time.Duration
}

// migration mirrors the teacher's table-driven ALTER TABLE scheme: a
// column this version of the schema expects that an older on-disk
// database created with a previous version of this package may lack.
type migration struct {
	Table  string
	Column string
	Def    string
}

var pendingMigrations = []migration{
	{"facts", "retracted_at", "DATETIME"},
}

// Open opens (creating if necessary) the SQLite database at path,
// applies pragmas and schema, and returns a ready Store. retention
// bounds how long tombstoned facts survive before Vacuum physically
// removes them.
func Open(path string, retention time.Duration) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryStore, "sqlitestore.Open")
	defer timer.Stop()

	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("sqlitestore: creating directory %s: %w", dir, err)
			}
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: opening %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			logging.Get(logging.CategoryStore).Warnf("sqlitestore: pragma %q failed: %v", pragma, err)
		}
	}

	s := &Store{db: db, retention: retention}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS facts (
		uuid TEXT PRIMARY KEY,
		fact_type TEXT NOT NULL,
		attributes TEXT NOT NULL,
		session_id TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		retracted BOOLEAN NOT NULL DEFAULT 0,
		retracted_at DATETIME
	);
	CREATE INDEX IF NOT EXISTS idx_facts_type ON facts(fact_type);
	CREATE INDEX IF NOT EXISTS idx_facts_session ON facts(session_id);
	CREATE INDEX IF NOT EXISTS idx_facts_retracted ON facts(retracted);

	CREATE TABLE IF NOT EXISTS knowledge_sources (
		name TEXT PRIMARY KEY,
		description TEXT,
		topics TEXT,
		active BOOLEAN NOT NULL DEFAULT 1,
		registered_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS fact_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		fact_uuid TEXT NOT NULL,
		fact_type TEXT NOT NULL,
		attributes TEXT NOT NULL,
		action TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		session_id TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_fact_history_uuid ON fact_history(fact_uuid);

	CREATE TABLE IF NOT EXISTS rules_fired (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		rule_name TEXT NOT NULL,
		fact_uuids TEXT NOT NULL,
		bindings TEXT NOT NULL,
		fired_at DATETIME NOT NULL,
		session_id TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_rules_fired_session ON rules_fired(session_id);
	CREATE INDEX IF NOT EXISTS idx_rules_fired_name ON rules_fired(rule_name);

	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		sender TEXT NOT NULL,
		topic TEXT NOT NULL,
		content TEXT NOT NULL,
		priority INTEGER NOT NULL DEFAULT 0,
		posted_at DATETIME NOT NULL,
		consumed BOOLEAN NOT NULL DEFAULT 0,
		consumed_by TEXT,
		consumed_at DATETIME
	);
	CREATE INDEX IF NOT EXISTS idx_messages_topic ON messages(topic);
	CREATE INDEX IF NOT EXISTS idx_messages_consumed ON messages(consumed);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("sqlitestore: creating schema: %w", err)
	}

	for _, m := range pendingMigrations {
		if !s.columnExists(m.Table, m.Column) {
			stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", m.Table, m.Column, m.Def)
			if _, err := s.db.Exec(stmt); err != nil {
				logging.Get(logging.CategoryStore).Warnf("sqlitestore: migration %s.%s failed (may already exist): %v", m.Table, m.Column, err)
			}
		}
	}
	return nil
}

func (s *Store) columnExists(table, column string) bool {
	rows, err := s.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false
	}
	defer rows.Close()
	for rows.Next() {
		var (
			cid       int
			name      string
			ctype     string
			notnull   int
			dfltValue any
			pk        int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return false
		}
		if name == column {
			return true
		}
	}
	return false
}

func marshalAttrs(a value.Attributes) (string, error) {
	b, err := json.Marshal(a)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalAttrs(s string) (value.Attributes, error) {
	var a value.Attributes
	if err := json.Unmarshal([]byte(s), &a); err != nil {
		return nil, err
	}
	return a, nil
}

// FactRecord aliases blackboard.FactRecord.
type FactRecord = blackboard.FactRecord

func (s *Store) checkOpen() error {
	if s.closed {
		return reteerr.Wrap(reteerr.ErrClosed, "sqlitestore", nil)
	}
	return nil
}

// AddFact inserts a new fact row and its first fact_history entry in
// one transaction.
func (s *Store) AddFact(uuid, factType string, attrs value.Attributes, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}

	var exists int
	if err := s.db.QueryRow(`SELECT COUNT(1) FROM facts WHERE uuid = ?`, uuid).Scan(&exists); err != nil {
		return reteerr.Wrap(reteerr.ErrUnavailable, "sqlitestore: checking existence", err)
	}
	if exists > 0 {
		return reteerr.Wrap(reteerr.ErrDuplicateID, fmt.Sprintf("sqlitestore: uuid %s", uuid), nil)
	}

	attrJSON, err := marshalAttrs(attrs)
	if err != nil {
		return reteerr.Wrap(reteerr.ErrUnavailable, "sqlitestore: marshaling attributes", err)
	}
	now := time.Now()

	tx, err := s.db.Begin()
	if err != nil {
		return reteerr.Wrap(reteerr.ErrUnavailable, "sqlitestore: begin", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT INTO facts (uuid, fact_type, attributes, session_id, created_at, updated_at, retracted) VALUES (?, ?, ?, ?, ?, ?, 0)`,
		uuid, factType, attrJSON, sessionID, now, now,
	); err != nil {
		return reteerr.Wrap(reteerr.ErrUnavailable, "sqlitestore: inserting fact", err)
	}
	if err := insertHistory(tx, uuid, factType, attrJSON, audit.ActionAssert, now, sessionID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return reteerr.Wrap(reteerr.ErrUnavailable, "sqlitestore: commit", err)
	}
	return nil
}

func insertHistory(tx *sql.Tx, uuid, factType, attrJSON string, action audit.FactAction, ts time.Time, sessionID string) error {
	if _, err := tx.Exec(
		`INSERT INTO fact_history (fact_uuid, fact_type, attributes, action, timestamp, session_id) VALUES (?, ?, ?, ?, ?, ?)`,
		uuid, factType, attrJSON, string(action), ts, sessionID,
	); err != nil {
		return reteerr.Wrap(reteerr.ErrUnavailable, "sqlitestore: inserting fact_history", err)
	}
	return nil
}

// RemoveFact soft-deletes a fact (sets the tombstone columns) and
// returns its last-known type/attributes.
func (s *Store) RemoveFact(uuid string) (FactRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return FactRecord{}, err
	}

	rec, err := s.getFactLocked(uuid)
	if err != nil {
		return FactRecord{}, err
	}
	if rec.Retracted {
		return FactRecord{}, reteerr.Wrap(reteerr.ErrNotFound, fmt.Sprintf("sqlitestore: uuid %s already retracted", uuid), nil)
	}

	now := time.Now()
	tx, err := s.db.Begin()
	if err != nil {
		return FactRecord{}, reteerr.Wrap(reteerr.ErrUnavailable, "sqlitestore: begin", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`UPDATE facts SET retracted = 1, retracted_at = ?, updated_at = ? WHERE uuid = ?`,
		now, now, uuid,
	); err != nil {
		return FactRecord{}, reteerr.Wrap(reteerr.ErrUnavailable, "sqlitestore: retracting fact", err)
	}
	attrJSON, _ := marshalAttrs(rec.Attributes)
	if err := insertHistory(tx, uuid, rec.Type, attrJSON, audit.ActionRetract, now, rec.SessionID); err != nil {
		return FactRecord{}, err
	}
	if err := tx.Commit(); err != nil {
		return FactRecord{}, reteerr.Wrap(reteerr.ErrUnavailable, "sqlitestore: commit", err)
	}

	rec.Retracted = true
	rec.RetractedAt = now
	return rec, nil
}

// UpdateFact replaces an active fact's attributes and records the
// change in the audit trail.
func (s *Store) UpdateFact(uuid string, attrs value.Attributes) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}

	rec, err := s.getFactLocked(uuid)
	if err != nil {
		return err
	}
	if rec.Retracted {
		return reteerr.Wrap(reteerr.ErrNotFound, fmt.Sprintf("sqlitestore: uuid %s retracted", uuid), nil)
	}

	attrJSON, err := marshalAttrs(attrs)
	if err != nil {
		return reteerr.Wrap(reteerr.ErrUnavailable, "sqlitestore: marshaling attributes", err)
	}
	now := time.Now()

	tx, err := s.db.Begin()
	if err != nil {
		return reteerr.Wrap(reteerr.ErrUnavailable, "sqlitestore: begin", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`UPDATE facts SET attributes = ?, updated_at = ? WHERE uuid = ?`, attrJSON, now, uuid); err != nil {
		return reteerr.Wrap(reteerr.ErrUnavailable, "sqlitestore: updating fact", err)
	}
	if err := insertHistory(tx, uuid, rec.Type, attrJSON, audit.ActionUpdate, now, rec.SessionID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return reteerr.Wrap(reteerr.ErrUnavailable, "sqlitestore: commit", err)
	}
	return nil
}

func (s *Store) getFactLocked(uuid string) (FactRecord, error) {
	row := s.db.QueryRow(
		`SELECT uuid, fact_type, attributes, session_id, created_at, updated_at, retracted, retracted_at FROM facts WHERE uuid = ?`,
		uuid,
	)
	rec, err := scanFact(row)
	if err == sql.ErrNoRows {
		return FactRecord{}, reteerr.Wrap(reteerr.ErrNotFound, fmt.Sprintf("sqlitestore: uuid %s", uuid), nil)
	}
	if err != nil {
		return FactRecord{}, reteerr.Wrap(reteerr.ErrUnavailable, "sqlitestore: scanning fact", err)
	}
	return rec, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFact(row rowScanner) (FactRecord, error) {
	var (
		rec         FactRecord
		attrJSON    string
		sessionID   sql.NullString
		retractedAt sql.NullTime
		retracted   bool
	)
	if err := row.Scan(&rec.UUID, &rec.Type, &attrJSON, &sessionID, &rec.CreatedAt, &rec.UpdatedAt, &retracted, &retractedAt); err != nil {
		return FactRecord{}, err
	}
	attrs, err := unmarshalAttrs(attrJSON)
	if err != nil {
		return FactRecord{}, err
	}
	rec.Attributes = attrs
	rec.SessionID = sessionID.String
	rec.Retracted = retracted
	if retractedAt.Valid {
		rec.RetractedAt = retractedAt.Time
	}
	return rec, nil
}

// GetFact returns the fact (active or tombstoned) with the given uuid.
func (s *Store) GetFact(uuid string) (FactRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.getFactLocked(uuid)
	if err != nil {
		return FactRecord{}, false
	}
	return rec, true
}

// GetFacts returns every active fact of factType (or every active fact
// if factType is empty) satisfying match.
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
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT uuid, fact_type, attributes, session_id, created_at, updated_at, retracted, retracted_at FROM facts`)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var out []FactRecord
	for rows.Next() {
		rec, err := scanFact(rows)
		if err != nil {
			continue
		}
		if predicate == nil || predicate(rec) {
			out = append(out, rec)
		}
	}
	return out
}

// RegisterKnowledgeSource upserts a knowledge source; idempotent.
func (s *Store) RegisterKnowledgeSource(name, description string, topics []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}

	topicsJSON, err := json.Marshal(topics)
	if err != nil {
		return reteerr.Wrap(reteerr.ErrUnavailable, "sqlitestore: marshaling topics", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO knowledge_sources (name, description, topics, active, registered_at) VALUES (?, ?, ?, 1, ?)
		 ON CONFLICT(name) DO UPDATE SET description = excluded.description, topics = excluded.topics, active = 1`,
		name, description, string(topicsJSON), time.Now(),
	)
	if err != nil {
		return reteerr.Wrap(reteerr.ErrUnavailable, "sqlitestore: registering knowledge source", err)
	}
	return nil
}

// KnowledgeSource aliases blackboard.KnowledgeSource.
type KnowledgeSource = blackboard.KnowledgeSource

// KnowledgeSources returns every registered knowledge source.
func (s *Store) KnowledgeSources() []KnowledgeSource {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT name, description, topics, active, registered_at FROM knowledge_sources`)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var out []KnowledgeSource
	for rows.Next() {
		var ks KnowledgeSource
		var topicsJSON string
		if err := rows.Scan(&ks.Name, &ks.Description, &topicsJSON, &ks.Active, &ks.RegisteredAt); err != nil {
			continue
		}
		_ = json.Unmarshal([]byte(topicsJSON), &ks.Topics)
		out = append(out, ks)
	}
	return out
}

// ClearSession soft-deletes every active fact tagged with sessionID and
// returns the count retracted.
func (s *Store) ClearSession(sessionID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return 0, err
	}

	rows, err := s.db.Query(`SELECT uuid, fact_type, attributes FROM facts WHERE session_id = ? AND retracted = 0`, sessionID)
	if err != nil {
		return 0, reteerr.Wrap(reteerr.ErrUnavailable, "sqlitestore: querying session facts", err)
	}
	type pending struct{ uuid, factType, attrJSON string }
	var toRetract []pending
	for rows.Next() {
		var p pending
		if err := rows.Scan(&p.uuid, &p.factType, &p.attrJSON); err != nil {
			rows.Close()
			return 0, reteerr.Wrap(reteerr.ErrUnavailable, "sqlitestore: scanning session facts", err)
		}
		toRetract = append(toRetract, p)
	}
	rows.Close()

	if len(toRetract) == 0 {
		return 0, nil
	}

	now := time.Now()
	tx, err := s.db.Begin()
	if err != nil {
		return 0, reteerr.Wrap(reteerr.ErrUnavailable, "sqlitestore: begin", err)
	}
	defer tx.Rollback()

	for _, p := range toRetract {
		if _, err := tx.Exec(`UPDATE facts SET retracted = 1, retracted_at = ?, updated_at = ? WHERE uuid = ?`, now, now, p.uuid); err != nil {
			return 0, reteerr.Wrap(reteerr.ErrUnavailable, "sqlitestore: retracting session fact", err)
		}
		if err := insertHistory(tx, p.uuid, p.factType, p.attrJSON, audit.ActionRetract, now, sessionID); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, reteerr.Wrap(reteerr.ErrUnavailable, "sqlitestore: commit", err)
	}
	return len(toRetract), nil
}

// Stats summarizes the store's contents.
func (s *Store) Stats() blackboard.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	var st blackboard.Stats
	s.db.QueryRow(`SELECT COUNT(1) FROM facts`).Scan(&st.TotalFacts)
	s.db.QueryRow(`SELECT COUNT(1) FROM facts WHERE retracted = 0`).Scan(&st.ActiveFacts)
	s.db.QueryRow(`SELECT COUNT(1) FROM knowledge_sources WHERE active = 1`).Scan(&st.KnowledgeSources)
	var historyCount, firedCount int
	s.db.QueryRow(`SELECT COUNT(1) FROM fact_history`).Scan(&historyCount)
	s.db.QueryRow(`SELECT COUNT(1) FROM rules_fired`).Scan(&firedCount)
	st.AuditRecords = historyCount + firedCount
	s.db.QueryRow(`SELECT COUNT(1) FROM messages WHERE consumed = 0`).Scan(&st.QueuedMessages)
	return st
}

// Vacuum physically deletes tombstoned facts older than the store's
// configured retention and reclaims disk space.
func (s *Store) Vacuum() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-s.retention)
	res, err := s.db.Exec(`DELETE FROM facts WHERE retracted = 1 AND retracted_at < ?`, cutoff)
	if err != nil {
		return 0, reteerr.Wrap(reteerr.ErrUnavailable, "sqlitestore: vacuuming facts", err)
	}
	n, _ := res.RowsAffected()
	if _, err := s.db.Exec(`VACUUM`); err != nil {
		logging.Get(logging.CategoryStore).Warnf("sqlitestore: VACUUM failed: %v", err)
	}
	return int(n), nil
}

// Transaction is a passive scope: fn issues its own statements through
// the Store's exported methods, which each open and commit their own
// short-lived transaction, so each call is atomic on its own but the
// group is not: an error from fn does not roll back calls fn has
// already made. Transaction does not open an outer transaction of its
// own — doing so would hold the store's only connection
// (db.SetMaxOpenConns(1)) and deadlock against fn's own calls.
func (s *Store) Transaction(fn func() error) error { return fn() }

// Close releases the underlying database handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
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

// FactHistory returns up to limit fact-change events for uuid (or every
// fact if uuid is empty), newest first.
func (s *Store) FactHistory(uuid string, limit int) []FactHistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `SELECT fact_uuid, fact_type, attributes, action, timestamp, session_id FROM fact_history`
	args := []any{}
	if uuid != "" {
		query += ` WHERE fact_uuid = ?`
		args = append(args, uuid)
	}
	query += ` ORDER BY timestamp DESC, id DESC`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var out []FactHistoryEntry
	for rows.Next() {
		var e FactHistoryEntry
		var attrJSON, action string
		var sessionID sql.NullString
		if err := rows.Scan(&e.FactUUID, &e.FactType, &attrJSON, &action, &e.Timestamp, &sessionID); err != nil {
			continue
		}
		attrs, err := unmarshalAttrs(attrJSON)
		if err != nil {
			continue
		}
		e.Attributes = attrs
		e.Action = audit.FactAction(action)
		e.SessionID = sessionID.String
		out = append(out, e)
	}
	return out
}

// RuleFirings returns up to limit rule-firing events for ruleName (or
// every rule if ruleName is empty), newest first.
func (s *Store) RuleFirings(ruleName string, limit int) []RuleFiringEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `SELECT rule_name, fact_uuids, bindings, fired_at, session_id FROM rules_fired`
	args := []any{}
	if ruleName != "" {
		query += ` WHERE rule_name = ?`
		args = append(args, ruleName)
	}
	query += ` ORDER BY fired_at DESC, id DESC`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var out []RuleFiringEntry
	for rows.Next() {
		var e RuleFiringEntry
		var uuidsJSON, bindingsJSON string
		var sessionID sql.NullString
		if err := rows.Scan(&e.RuleName, &uuidsJSON, &bindingsJSON, &e.FiredAt, &sessionID); err != nil {
			continue
		}
		_ = json.Unmarshal([]byte(uuidsJSON), &e.FactUUIDs)
		var bindings map[string]value.Value
		_ = json.Unmarshal([]byte(bindingsJSON), &bindings)
		e.Bindings = bindings
		e.SessionID = sessionID.String
		out = append(out, e)
	}
	return out
}

// RecordFactHistory persists a standalone fact-history row without
// touching the facts table — used by hybridstore, which keeps fact
// CRUD in memstore and uses this Store purely as its durable audit
// trail.
func (s *Store) RecordFactHistory(uuid, factType string, attrs value.Attributes, action audit.FactAction, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	attrJSON, err := marshalAttrs(attrs)
	if err != nil {
		return reteerr.Wrap(reteerr.ErrUnavailable, "sqlitestore: marshaling attributes", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO fact_history (fact_uuid, fact_type, attributes, action, timestamp, session_id) VALUES (?, ?, ?, ?, ?, ?)`,
		uuid, factType, attrJSON, string(action), time.Now(), sessionID,
	)
	if err != nil {
		return reteerr.Wrap(reteerr.ErrUnavailable, "sqlitestore: recording fact history", err)
	}
	return nil
}

// RecordFiring persists a rule-firing audit record.
func (s *Store) RecordFiring(ruleName string, factUUIDs []string, bindings map[string]value.Value, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}

	uuidsJSON, err := json.Marshal(factUUIDs)
	if err != nil {
		return reteerr.Wrap(reteerr.ErrUnavailable, "sqlitestore: marshaling fact_uuids", err)
	}
	bindingsJSON, err := json.Marshal(bindings)
	if err != nil {
		return reteerr.Wrap(reteerr.ErrUnavailable, "sqlitestore: marshaling bindings", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO rules_fired (rule_name, fact_uuids, bindings, fired_at, session_id) VALUES (?, ?, ?, ?, ?)`,
		ruleName, string(uuidsJSON), string(bindingsJSON), time.Now(), sessionID,
	)
	if err != nil {
		return reteerr.Wrap(reteerr.ErrUnavailable, "sqlitestore: recording firing", err)
	}
	return nil
}

// Message aliases blackboard.Message.
type Message = blackboard.Message

// PostMessage inserts a new message row, returning its monotonic id.
func (s *Store) PostMessage(sender, topic string, content value.Value, priority int) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return 0, err
	}

	contentJSON, err := json.Marshal(content)
	if err != nil {
		return 0, reteerr.Wrap(reteerr.ErrUnavailable, "sqlitestore: marshaling message content", err)
	}
	res, err := s.db.Exec(
		`INSERT INTO messages (sender, topic, content, priority, posted_at, consumed) VALUES (?, ?, ?, ?, ?, 0)`,
		sender, topic, string(contentJSON), priority, time.Now(),
	)
	if err != nil {
		return 0, reteerr.Wrap(reteerr.ErrUnavailable, "sqlitestore: posting message", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, reteerr.Wrap(reteerr.ErrUnavailable, "sqlitestore: reading message id", err)
	}
	return uint64(id), nil
}

// ConsumeMessage atomically selects and marks consumed the
// highest-priority unconsumed message on topic. s.mu is held across
// the select-then-update sequence, so two goroutines calling it never
// receive the same message.
func (s *Store) ConsumeMessage(topic, consumer string) (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRow(
		`SELECT id, sender, topic, content, priority, posted_at FROM messages
		 WHERE topic = ? AND consumed = 0
		 ORDER BY priority DESC, posted_at ASC LIMIT 1`,
		topic,
	)
	var (
		id          int64
		sender      string
		rowTopic    string
		contentJSON string
		priority    int
		postedAt    time.Time
	)
	if err := row.Scan(&id, &sender, &rowTopic, &contentJSON, &priority, &postedAt); err != nil {
		return Message{}, false
	}

	now := time.Now()
	if _, err := s.db.Exec(`UPDATE messages SET consumed = 1, consumed_by = ?, consumed_at = ? WHERE id = ?`, consumer, now, id); err != nil {
		return Message{}, false
	}

	var content value.Value
	_ = json.Unmarshal([]byte(contentJSON), &content)
	return Message{
		ID: uint64(id), Sender: sender, Topic: rowTopic, Content: content,
		Priority: priority, PostedAt: postedAt, Consumed: true,
		ConsumedBy: consumer, ConsumedAt: now,
	}, true
}

// PeekMessages returns up to limit highest-priority unconsumed messages
// on topic without modifying them.
func (s *Store) PeekMessages(topic string, limit int) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `SELECT id, sender, topic, content, priority, posted_at FROM messages WHERE topic = ? AND consumed = 0 ORDER BY priority DESC, posted_at ASC`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}
	rows, err := s.db.Query(query, topic)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var (
			id          int64
			sender      string
			t           string
			contentJSON string
			priority    int
			postedAt    time.Time
		)
		if err := rows.Scan(&id, &sender, &t, &contentJSON, &priority, &postedAt); err != nil {
			continue
		}
		var content value.Value
		_ = json.Unmarshal([]byte(contentJSON), &content)
		out = append(out, Message{ID: uint64(id), Sender: sender, Topic: t, Content: content, Priority: priority, PostedAt: postedAt})
	}
	return out
}

// MessageStats reports the total posted and currently unconsumed
// message counts.
func (s *Store) MessageStats() (posted int, unconsumed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.db.QueryRow(`SELECT COUNT(1) FROM messages`).Scan(&posted)
	s.db.QueryRow(`SELECT COUNT(1) FROM messages WHERE consumed = 0`).Scan(&unconsumed)
	return posted, unconsumed
}
