// Package mqueue implements the blackboard priority message queue of
// spec.md §4.10: higher priority first, ties broken by earlier post
// time, atomic consume across concurrent consumers. Standard library
// container/heap is the priority-queue primitive, the idiom the pack
// itself reaches for rather than a dedicated dependency.
package mqueue

import (
	"container/heap"
	"sync"
	"time"

	"github.com/codenerd-labs/rete/internal/value"
)

// Message is one posted blackboard message.
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

// entry is the heap element: a pointer to the shared Message record so
// Consume can mark it consumed in place without a second lookup.
type entry struct {
	msg   *Message
	index int
}

type pqueue []*entry

func (q pqueue) Len() int { return len(q) }
func (q pqueue) Less(i, j int) bool {
	if q[i].msg.Priority != q[j].msg.Priority {
		return q[i].msg.Priority > q[j].msg.Priority
	}
	return q[i].msg.PostedAt.Before(q[j].msg.PostedAt)
}
func (q pqueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index, q[j].index = i, j
}
func (q *pqueue) Push(x any) {
	e := x.(*entry)
	e.index = len(*q)
	*q = append(*q, e)
}
func (q *pqueue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*q = old[:n-1]
	return e
}

// Queue is a topic-partitioned priority queue. One heap per topic keeps
// consume/peek scans proportional to a single topic's backlog rather
// than the whole queue's.
type Queue struct {
	mu       sync.Mutex
	nextID   uint64
	byTopic  map[string]*pqueue
	posted   int
	unconsumed int
}

// New constructs an empty Queue.
func New() *Queue {
	return &Queue{byTopic: make(map[string]*pqueue)}
}

// Restore re-enqueues a previously-posted, still-unconsumed message
// exactly as given (preserving its id and posted time) and advances
// the id counter past it if necessary. Used by backends that persist
// messages out-of-process to rehydrate a Queue after a restart;
// callers must restore in any order but should not call Post for an id
// already restored.
func (q *Queue) Restore(msg Message) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if msg.ID > q.nextID {
		q.nextID = msg.ID
	}
	m := msg
	pq, ok := q.byTopic[msg.Topic]
	if !ok {
		pq = &pqueue{}
		heap.Init(pq)
		q.byTopic[msg.Topic] = pq
	}
	heap.Push(pq, &entry{msg: &m})
	q.posted++
	q.unconsumed++
}

// Post assigns the next monotonically increasing id and enqueues the
// message on its topic's heap.
func (q *Queue) Post(sender, topic string, content value.Value, priority int, postedAt time.Time) uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.nextID++
	id := q.nextID
	msg := &Message{
		ID:       id,
		Sender:   sender,
		Topic:    topic,
		Content:  content,
		Priority: priority,
		PostedAt: postedAt,
	}
	pq, ok := q.byTopic[topic]
	if !ok {
		pq = &pqueue{}
		heap.Init(pq)
		q.byTopic[topic] = pq
	}
	heap.Push(pq, &entry{msg: msg})
	q.posted++
	q.unconsumed++
	return id
}

// Consume atomically pops and marks consumed the highest-priority
// unconsumed message on topic, or reports false if the topic is empty.
func (q *Queue) Consume(topic, consumer string, consumedAt time.Time) (Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	pq, ok := q.byTopic[topic]
	if !ok || pq.Len() == 0 {
		return Message{}, false
	}
	e := heap.Pop(pq).(*entry)
	e.msg.Consumed = true
	e.msg.ConsumedBy = consumer
	e.msg.ConsumedAt = consumedAt
	q.unconsumed--
	return *e.msg, true
}

// Peek returns up to limit highest-priority unconsumed messages on
// topic without modifying the queue. limit <= 0 means unlimited.
func (q *Queue) Peek(topic string, limit int) []Message {
	q.mu.Lock()
	defer q.mu.Unlock()

	pq, ok := q.byTopic[topic]
	if !ok {
		return nil
	}
	// Copy the entry *values*, not just the slice header: heap.Init/Pop
	// on cp call Swap, which writes e.index on whatever entry it holds.
	// Reusing the live heap's *entry pointers here would corrupt the
	// real queue's index bookkeeping out from under it the moment a
	// caller does a concurrent Post/Consume, or the moment any future
	// heap.Remove/heap.Fix call site starts relying on that index.
	cp := make(pqueue, len(*pq))
	for i, e := range *pq {
		dup := *e
		cp[i] = &dup
	}
	heap.Init(&cp)

	out := make([]Message, 0, cp.Len())
	for cp.Len() > 0 {
		if limit > 0 && len(out) >= limit {
			break
		}
		e := heap.Pop(&cp).(*entry)
		out = append(out, *e.msg)
	}
	return out
}

// Stats reports the total number ever posted and the number currently
// unconsumed across every topic.
func (q *Queue) Stats() (posted int, unconsumed int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.posted, q.unconsumed
}
