package sqlitestore

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codenerd-labs/rete/internal/reteerr"
	"github.com/codenerd-labs/rete/internal/value"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "test.db"), 30*24*time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAddFact_DuplicateRejected(t *testing.T) {
	s := openTemp(t)
	attrs := value.Attributes{"name": value.String("alice")}

	require.NoError(t, s.AddFact("u1", "Person", attrs, "s1"))
	err := s.AddFact("u1", "Person", attrs, "s1")
	require.Error(t, err)
	assert.ErrorIs(t, err, reteerr.ErrDuplicateID)
}

func TestAddFact_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "persist.db")

	s1, err := Open(path, time.Hour)
	require.NoError(t, err)
	require.NoError(t, s1.AddFact("u1", "Person", value.Attributes{"name": value.String("alice")}, ""))
	require.NoError(t, s1.Close())

	s2, err := Open(path, time.Hour)
	require.NoError(t, err)
	defer s2.Close()

	rec, ok := s2.GetFact("u1")
	require.True(t, ok)
	assert.Equal(t, "Person", rec.Type)
	assert.Equal(t, "alice", rec.Attributes["name"].String())
}

func TestRemoveFact_TombstonesAndRecordsHistory(t *testing.T) {
	s := openTemp(t)
	require.NoError(t, s.AddFact("u1", "Person", value.Attributes{"name": value.String("alice")}, ""))

	rec, err := s.RemoveFact("u1")
	require.NoError(t, err)
	assert.True(t, rec.Retracted)

	_, err = s.RemoveFact("u1")
	require.Error(t, err)
	assert.ErrorIs(t, err, reteerr.ErrNotFound)

	history := s.FactHistory("u1", 0)
	require.Len(t, history, 2)
	assert.Equal(t, "retract", string(history[0].Action))
	assert.Equal(t, "assert", string(history[1].Action))
}

func TestUpdateFact_RejectsUnknownOrRetracted(t *testing.T) {
	s := openTemp(t)
	err := s.UpdateFact("missing", value.Attributes{})
	require.Error(t, err)
	assert.ErrorIs(t, err, reteerr.ErrNotFound)

	require.NoError(t, s.AddFact("u1", "Person", value.Attributes{}, ""))
	_, err = s.RemoveFact("u1")
	require.NoError(t, err)

	err = s.UpdateFact("u1", value.Attributes{"name": value.String("bob")})
	require.Error(t, err)
	assert.ErrorIs(t, err, reteerr.ErrNotFound)
}

func TestClearSession_RetractsOnlyTaggedFacts(t *testing.T) {
	s := openTemp(t)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.AddFact(fmt.Sprintf("s1-fact-%d", i), "Person", value.Attributes{}, "s1"))
	}
	require.NoError(t, s.AddFact("other", "Person", value.Attributes{}, "s2"))

	n, err := s.ClearSession("s1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	rec, ok := s.GetFact("other")
	require.True(t, ok)
	assert.False(t, rec.Retracted)

	st := s.Stats()
	assert.Equal(t, 1, st.ActiveFacts)
}

func TestMessageQueue_ConsumeIsPriorityOrdered(t *testing.T) {
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

func TestVacuum_RemovesOldTombstonesOnly(t *testing.T) {
	s := openTemp(t)
	require.NoError(t, s.AddFact("u1", "Person", value.Attributes{}, ""))
	_, err := s.RemoveFact("u1")
	require.NoError(t, err)

	s.retention = 0
	n, err := s.Vacuum()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, ok := s.GetFact("u1")
	assert.False(t, ok)
}

func TestClose_RejectsFurtherMutation(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "closed.db"), time.Hour)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	err = s.AddFact("u1", "Person", value.Attributes{}, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, reteerr.ErrClosed)
}
