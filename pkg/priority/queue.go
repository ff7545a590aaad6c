package priority

import (
	"context"
	"sync/atomic"
)

// Stats counts lane traffic since the queue was created.
type Stats struct {
	HighPush int64
	LowPush  int64
	HighPop  int64
	LowPop   int64
}

// Queue is a two-lane queue: control traffic rides the high lane so a
// cancel or utterance-end can overtake a backlog of transcript segments.
type Queue interface {
	TryPushHigh(f any) bool
	TryPushLow(f any) bool
	Pop(ctx context.Context) (any, bool)
	Stats() Stats
}

type PriorityQueue struct {
	high chan any
	low  chan any
	// fairness <= 0 starves the low lane entirely.
	fairness int

	highPush atomic.Int64
	lowPush  atomic.Int64
	highPop  atomic.Int64
	lowPop   atomic.Int64
}

func New(highCap, lowCap, fairness int) *PriorityQueue {
	if fairness <= 0 {
		fairness = 3
	}
	return &PriorityQueue{
		high:     make(chan any, highCap),
		low:      make(chan any, lowCap),
		fairness: fairness,
	}
}

func (q *PriorityQueue) TryPushHigh(f any) bool {
	select {
	case q.high <- f:
		q.highPush.Add(1)
		return true
	default:
		return false
	}
}

func (q *PriorityQueue) TryPushLow(f any) bool {
	select {
	case q.low <- f:
		q.lowPush.Add(1)
		return true
	default:
		return false
	}
}

// Pop blocks until a frame is available or ctx is cancelled, always
// draining the high lane before touching the low one.
func (q *PriorityQueue) Pop(ctx context.Context) (any, bool) {
	// High lane first, without blocking.
	select {
	case f := <-q.high:
		q.highPop.Add(1)
		return f, true
	default:
	}
	if q.fairness <= 0 {
		select {
		case f := <-q.high:
			q.highPop.Add(1)
			return f, true
		case <-ctx.Done():
			return nil, false
		}
	}
	select {
	case f := <-q.high:
		q.highPop.Add(1)
		return f, true
	case f := <-q.low:
		q.lowPop.Add(1)
		return f, true
	case <-ctx.Done():
		return nil, false
	}
}

func (q *PriorityQueue) Stats() Stats {
	return Stats{
		HighPush: q.highPush.Load(),
		LowPush:  q.lowPush.Load(),
		HighPop:  q.highPop.Load(),
		LowPop:   q.lowPop.Load(),
	}
}
