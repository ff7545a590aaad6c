package mock

import (
	"context"
	"testing"

	"github.com/colorcue/colorcue/pkg/frames"
)

func TestPushAndRecv(t *testing.T) {
	tr := New()
	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer tr.Stop()

	tr.PushSegment("s1", "u1", "make it blue", frames.RoleAgent, false)
	tr.PushSegment("s1", "u1", "make it blue please", frames.RoleAgent, true)

	first := (<-tr.Recv()).(frames.TranscriptFrame)
	second := (<-tr.Recv()).(frames.TranscriptFrame)
	if first.Text() != "make it blue" || first.IsFinal() {
		t.Fatalf("first = %#v", first)
	}
	if !second.IsFinal() {
		t.Fatalf("second = %#v", second)
	}
	if second.PTS() <= first.PTS() {
		t.Fatalf("expected increasing pts, got %d then %d", first.PTS(), second.PTS())
	}

	tr.PushSessionEnd("s1")
	end := (<-tr.Recv()).(frames.SystemFrame)
	if end.Name() != "session_end" {
		t.Fatalf("end = %#v", end)
	}
}

func TestSendAfterStopIsSafe(t *testing.T) {
	tr := New()
	_ = tr.Stop()
	if err := tr.Send(frames.NewSignalFrame("s1", 1, "red", "u1", false, nil)); err != nil {
		t.Fatalf("send after stop: %v", err)
	}
	tr.Push(frames.NewSignalFrame("s1", 1, "red", "u1", false, nil))
}
