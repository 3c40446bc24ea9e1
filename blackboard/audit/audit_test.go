package audit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codenerd-labs/rete/internal/config"
)

func TestFactHistory_NewestFirst(t *testing.T) {
	log := New(config.DefaultAuditConfig())
	base := time.Now()

	log.RecordFact(FactHistoryEntry{FactUUID: "u1", Action: ActionAssert, Timestamp: base})
	log.RecordFact(FactHistoryEntry{FactUUID: "u1", Action: ActionUpdate, Timestamp: base.Add(time.Second)})
	log.RecordFact(FactHistoryEntry{FactUUID: "u1", Action: ActionRetract, Timestamp: base.Add(2 * time.Second)})

	entries := log.FactHistory("u1", 0)
	require.Len(t, entries, 3)
	assert.Equal(t, ActionRetract, entries[0].Action)
	assert.Equal(t, ActionUpdate, entries[1].Action)
	assert.Equal(t, ActionAssert, entries[2].Action)
}

func TestFactHistory_RespectsLimitAndFilter(t *testing.T) {
	log := New(config.DefaultAuditConfig())
	base := time.Now()

	log.RecordFact(FactHistoryEntry{FactUUID: "u1", Action: ActionAssert, Timestamp: base})
	log.RecordFact(FactHistoryEntry{FactUUID: "u2", Action: ActionAssert, Timestamp: base.Add(time.Second)})
	log.RecordFact(FactHistoryEntry{FactUUID: "u1", Action: ActionUpdate, Timestamp: base.Add(2 * time.Second)})

	all := log.FactHistory("", 2)
	assert.Len(t, all, 2)

	onlyU1 := log.FactHistory("u1", 0)
	require.Len(t, onlyU1, 2)
	assert.Equal(t, "u1", onlyU1[0].FactUUID)
}

func TestPerFactCap_Trims(t *testing.T) {
	cfg := config.AuditConfig{GlobalCap: 1000, PerFactCap: 2, PerRuleCap: 1000}
	log := New(cfg)
	base := time.Now()

	for i := 0; i < 5; i++ {
		log.RecordFact(FactHistoryEntry{FactUUID: "u1", Action: ActionUpdate, Timestamp: base.Add(time.Duration(i) * time.Second)})
	}

	entries := log.FactHistory("u1", 0)
	assert.Len(t, entries, 2)
}

func TestRuleFirings_NewestFirst(t *testing.T) {
	log := New(config.DefaultAuditConfig())
	base := time.Now()

	log.RecordFiring(RuleFiringEntry{RuleName: "r1", FiredAt: base})
	log.RecordFiring(RuleFiringEntry{RuleName: "r1", FiredAt: base.Add(time.Second)})
	log.RecordFiring(RuleFiringEntry{RuleName: "r2", FiredAt: base.Add(2 * time.Second)})

	all := log.RuleFirings("", 0)
	require.Len(t, all, 3)
	assert.Equal(t, "r2", all[0].RuleName)

	r1only := log.RuleFirings("r1", 0)
	require.Len(t, r1only, 2)
}

func TestCount_SumsFactsAndFirings(t *testing.T) {
	log := New(config.DefaultAuditConfig())
	log.RecordFact(FactHistoryEntry{FactUUID: "u1", Action: ActionAssert, Timestamp: time.Now()})
	log.RecordFiring(RuleFiringEntry{RuleName: "r1", FiredAt: time.Now()})

	assert.Equal(t, 2, log.Count())
}
