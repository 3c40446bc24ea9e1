package mqueue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codenerd-labs/rete/internal/value"
)

func TestConsume_PriorityThenPostTime(t *testing.T) {
	q := New()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	// C: priority 5, posted first.
	// B: priority 10, posted second.
	// A: priority 10, posted third (same priority as B, later post time).
	q.Post("s", "topic", value.String("C"), 5, base)
	q.Post("s", "topic", value.String("B"), 10, base.Add(time.Second))
	q.Post("s", "topic", value.String("A"), 10, base.Add(2*time.Second))

	m, ok := q.Consume("topic", "c1", base.Add(3*time.Second))
	require.True(t, ok)
	assert.Equal(t, "B", m.Content.String())

	m, ok = q.Consume("topic", "c1", base.Add(4*time.Second))
	require.True(t, ok)
	assert.Equal(t, "A", m.Content.String())

	m, ok = q.Consume("topic", "c1", base.Add(5*time.Second))
	require.True(t, ok)
	assert.Equal(t, "C", m.Content.String())

	_, ok = q.Consume("topic", "c1", base.Add(6*time.Second))
	assert.False(t, ok)
}

func TestConsume_AtMostOneConsumer(t *testing.T) {
	q := New()
	now := time.Now()
	q.Post("s", "t", value.String("x"), 1, now)

	m1, ok1 := q.Consume("t", "c1", now)
	m2, ok2 := q.Consume("t", "c2", now)

	require.True(t, ok1)
	require.False(t, ok2)
	assert.Equal(t, "c1", m1.ConsumedBy)
	assert.Equal(t, Message{}, m2)
}

func TestPeek_DoesNotConsume(t *testing.T) {
	q := New()
	now := time.Now()
	q.Post("s", "t", value.String("x"), 1, now)

	peeked := q.Peek("t", 10)
	require.Len(t, peeked, 1)
	assert.False(t, peeked[0].Consumed)

	posted, unconsumed := q.Stats()
	assert.Equal(t, 1, posted)
	assert.Equal(t, 1, unconsumed)
}

func TestPeek_DoesNotCorruptLiveHeapOrdering(t *testing.T) {
	q := New()
	now := time.Now()
	q.Post("s", "t", value.String("a"), 1, now)
	q.Post("s", "t", value.String("b"), 5, now.Add(time.Second))
	q.Post("s", "t", value.String("c"), 3, now.Add(2*time.Second))

	// Peek copies entries for its own scratch heap; if it shared the
	// live *entry pointers, heap.Init/Pop on the copy would scribble
	// over the real queue's index bookkeeping.
	_ = q.Peek("t", 10)
	_ = q.Peek("t", 1)

	m, ok := q.Consume("t", "c1", now.Add(3*time.Second))
	require.True(t, ok)
	assert.Equal(t, "b", m.Content.String(), "highest priority must still consume first after repeated peeks")

	m, ok = q.Consume("t", "c1", now.Add(4*time.Second))
	require.True(t, ok)
	assert.Equal(t, "c", m.Content.String())

	m, ok = q.Consume("t", "c1", now.Add(5*time.Second))
	require.True(t, ok)
	assert.Equal(t, "a", m.Content.String())
}

func TestStats_TracksPostedAndUnconsumed(t *testing.T) {
	q := New()
	now := time.Now()
	q.Post("s", "t", value.String("a"), 1, now)
	q.Post("s", "t", value.String("b"), 1, now)
	q.Consume("t", "c1", now)

	posted, unconsumed := q.Stats()
	assert.Equal(t, 2, posted)
	assert.Equal(t, 1, unconsumed)
}
