package priority

import (
	"context"
	"testing"
	"time"
)

func TestHighLaneOvertakesLow(t *testing.T) {
	q := New(4, 4, 3)
	if !q.TryPushLow("segment") {
		t.Fatalf("low push failed")
	}
	if !q.TryPushHigh("control") {
		t.Fatalf("high push failed")
	}
	got, ok := q.Pop(context.Background())
	if !ok || got != "control" {
		t.Fatalf("expected control first, got %v", got)
	}
	got, ok = q.Pop(context.Background())
	if !ok || got != "segment" {
		t.Fatalf("expected segment second, got %v", got)
	}
}

func TestPopReturnsOnCancel(t *testing.T) {
	q := New(1, 1, 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, ok := q.Pop(ctx); ok {
			t.Errorf("expected cancelled pop to report no frame")
		}
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("pop did not observe cancellation")
	}
}

func TestTryPushFullLane(t *testing.T) {
	q := New(1, 1, 3)
	if !q.TryPushHigh("a") {
		t.Fatalf("first high push failed")
	}
	if q.TryPushHigh("b") {
		t.Fatalf("expected full high lane to reject")
	}
	st := q.Stats()
	if st.HighPush != 1 {
		t.Fatalf("expected 1 high push counted, got %d", st.HighPush)
	}
}
