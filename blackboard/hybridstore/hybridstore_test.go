package hybridstore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codenerd-labs/rete/internal/config"
	"github.com/codenerd-labs/rete/internal/reteerr"
	"github.com/codenerd-labs/rete/internal/value"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(":memory:", filepath.Join(dir, "audit.db"), config.DefaultAuditConfig(), 30*24*time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAddFact_PersistsToMemoryAndAuditsToSQLite(t *testing.T) {
	s := openTemp(t)
	attrs := value.Attributes{"name": value.String("alice")}

	require.NoError(t, s.AddFact("u1", "Person", attrs, "s1"))

	rec, ok := s.GetFact("u1")
	require.True(t, ok)
	assert.Equal(t, "Person", rec.Type)

	history := s.FactHistory("u1", 0)
	require.Len(t, history, 1)
	assert.Equal(t, "assert", string(history[0].Action))
}

func TestAddFact_DuplicateRejected(t *testing.T) {
	s := openTemp(t)
	require.NoError(t, s.AddFact("u1", "Person", value.Attributes{}, ""))

	err := s.AddFact("u1", "Person", value.Attributes{}, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, reteerr.ErrDuplicateID)
}

func TestRemoveFact_TombstonesAndRecordsHistory(t *testing.T) {
	s := openTemp(t)
	require.NoError(t, s.AddFact("u1", "Person", value.Attributes{}, ""))

	rec, err := s.RemoveFact("u1")
	require.NoError(t, err)
	assert.True(t, rec.Retracted)

	history := s.FactHistory("u1", 0)
	require.Len(t, history, 2)
	assert.Equal(t, "retract", string(history[0].Action))
	assert.Equal(t, "assert", string(history[1].Action))
}

func TestUpdateFact_MirrorsIntoAuditTrail(t *testing.T) {
	s := openTemp(t)
	require.NoError(t, s.AddFact("u1", "Person", value.Attributes{"name": value.String("alice")}, ""))
	require.NoError(t, s.UpdateFact("u1", value.Attributes{"name": value.String("alicia")}))

	rec, ok := s.GetFact("u1")
	require.True(t, ok)
	assert.Equal(t, "alicia", rec.Attributes["name"].String())

	history := s.FactHistory("u1", 0)
	require.Len(t, history, 2)
	assert.Equal(t, "update", string(history[0].Action))
}

func TestUpdateFact_UnknownSurfacesNotFound(t *testing.T) {
	s := openTemp(t)
	err := s.UpdateFact("missing", value.Attributes{})
	require.Error(t, err)
	assert.ErrorIs(t, err, reteerr.ErrNotFound)
}

func TestClearSession_RetractsTaggedFactsAndAuditsEach(t *testing.T) {
	s := openTemp(t)
	require.NoError(t, s.AddFact("u1", "Person", value.Attributes{}, "s1"))
	require.NoError(t, s.AddFact("u2", "Person", value.Attributes{}, "s1"))
	require.NoError(t, s.AddFact("u3", "Person", value.Attributes{}, "s2"))

	n, err := s.ClearSession("s1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, uuid := range []string{"u1", "u2"} {
		history := s.FactHistory(uuid, 0)
		require.Len(t, history, 2)
		assert.Equal(t, "retract", string(history[0].Action))
	}

	rec, ok := s.GetFact("u3")
	require.True(t, ok)
	assert.False(t, rec.Retracted)
}

func TestRecordFiring_DelegatesToDurableAuditTrail(t *testing.T) {
	s := openTemp(t)
	require.NoError(t, s.RecordFiring("r1", []string{"u1", "u2"}, map[string]value.Value{"x": value.Int(1)}, "s1"))

	firings := s.RuleFirings("r1", 0)
	require.Len(t, firings, 1)
	assert.Equal(t, []string{"u1", "u2"}, firings[0].FactUUIDs)
}

func TestMessageQueue_DelegatesToMemstore(t *testing.T) {
	s := openTemp(t)
	_, err := s.PostMessage("a", "topic", value.String("low"), 1)
	require.NoError(t, err)
	_, err = s.PostMessage("a", "topic", value.String("high"), 10)
	require.NoError(t, err)

	m, ok := s.ConsumeMessage("topic", "c1")
	require.True(t, ok)
	assert.Equal(t, "high", m.Content.String())

	posted, unconsumed := s.MessageStats()
	assert.Equal(t, 2, posted)
	assert.Equal(t, 1, unconsumed)
}

func TestStats_MergesFactCountsFromMemoryAndAuditCountsFromSQLite(t *testing.T) {
	s := openTemp(t)
	require.NoError(t, s.AddFact("u1", "Person", value.Attributes{}, ""))
	_, err := s.PostMessage("a", "t", value.String("x"), 1)
	require.NoError(t, err)

	st := s.Stats()
	assert.Equal(t, 1, st.TotalFacts)
	assert.Equal(t, 1, st.ActiveFacts)
	assert.Equal(t, 1, st.QueuedMessages)
	assert.GreaterOrEqual(t, st.AuditRecords, 1)
}

func TestClose_ClosesBothBackingStores(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(":memory:", filepath.Join(dir, "closed.db"), config.DefaultAuditConfig(), time.Hour)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	err = s.AddFact("u1", "Person", value.Attributes{}, "")
	require.Error(t, err)
}
