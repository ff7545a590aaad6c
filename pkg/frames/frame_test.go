package frames

import "testing"

func TestTranscriptFrameMeta(t *testing.T) {
	f := NewTranscriptFrame("sess-1", 42, "hello", RoleAgent, "u1", true, map[string]string{MetaSource: "mock"})
	if f.Kind() != KindTranscript {
		t.Fatalf("kind = %s", f.Kind())
	}
	if f.PTS() != 42 || f.Text() != "hello" || f.Role() != RoleAgent || f.UtteranceID() != "u1" || !f.IsFinal() {
		t.Fatalf("fields not preserved: %#v", f)
	}
	m := f.Meta()
	if m[MetaSessionID] != "sess-1" || m[MetaSource] != "mock" {
		t.Fatalf("meta = %v", m)
	}
	// Meta returns a copy; callers must not see each other's edits.
	m[MetaSessionID] = "tampered"
	if f.Meta()[MetaSessionID] != "sess-1" {
		t.Fatalf("meta mutation leaked into frame")
	}
}

func TestSignalFrame(t *testing.T) {
	f := NewSignalFrame("sess-1", 7, "blue", "u1", true, nil)
	if f.Kind() != KindSignal || f.Label() != "blue" || f.UtteranceID() != "u1" || !f.ConfirmedFinal() {
		t.Fatalf("fields not preserved: %#v", f)
	}
	if f.Meta()[MetaSessionID] != "sess-1" {
		t.Fatalf("missing session id meta")
	}
}

func TestControlAndSystemFrames(t *testing.T) {
	c := NewControlFrame("sess-1", 1, ControlCancel, map[string]string{MetaReason: "shutdown"})
	if c.Kind() != KindControl || c.Code() != ControlCancel || c.Meta()[MetaReason] != "shutdown" {
		t.Fatalf("control frame: %#v", c)
	}
	s := NewSystemFrame("sess-1", 2, "session_end", nil)
	if s.Kind() != KindSystem || s.Name() != "session_end" {
		t.Fatalf("system frame: %#v", s)
	}
}

func TestPTSGenMonotonicPerSession(t *testing.T) {
	g := NewPTSGen()
	a1, a2 := g.Next("a"), g.Next("a")
	if a2 <= a1 {
		t.Fatalf("expected increasing pts, got %d then %d", a1, a2)
	}
	if b := g.Next("b"); b != a1 {
		t.Fatalf("expected independent counters per session")
	}
}
