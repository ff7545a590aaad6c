package extract

import (
	"errors"
	"testing"

	"github.com/colorcue/colorcue/pkg/errorsx"
	"github.com/colorcue/colorcue/pkg/frames"
	"github.com/colorcue/colorcue/pkg/metrics"
)

func newTestExtractor(t *testing.T) *Extractor {
	t.Helper()
	e, err := New(Config{
		Vocabulary: MustVocabulary("red", "blue", "green"),
		RoleFilter: frames.RoleAgent,
	})
	if err != nil {
		t.Fatalf("new extractor: %v", err)
	}
	return e
}

func segment(utteranceID, text string, final bool) frames.TranscriptFrame {
	return frames.NewTranscriptFrame("sess-1", 1, text, frames.RoleAgent, utteranceID, final, nil)
}

func signals(t *testing.T, out []frames.Frame) []frames.SignalFrame {
	t.Helper()
	var sigs []frames.SignalFrame
	for _, f := range out {
		if f.Kind() == frames.KindSignal {
			sigs = append(sigs, f.(frames.SignalFrame))
		}
	}
	return sigs
}

func TestCaseAndPunctuationInsensitiveMatch(t *testing.T) {
	e := newTestExtractor(t)
	out, err := e.Process(segment("u1", "I think BLUE!", false))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	sigs := signals(t, out)
	if len(sigs) != 1 || sigs[0].Label() != "blue" {
		t.Fatalf("expected blue signal, got %v", sigs)
	}
	if sigs[0].ConfirmedFinal() {
		t.Fatalf("expected unconfirmed signal from partial segment")
	}
}

func TestFirstMatchWins(t *testing.T) {
	e := newTestExtractor(t)
	out, _ := e.Process(segment("u1", "red and then blue", false))
	sigs := signals(t, out)
	if len(sigs) != 1 || sigs[0].Label() != "red" {
		t.Fatalf("expected first match red, got %v", sigs)
	}
}

func TestNoMatchNoEmission(t *testing.T) {
	e := newTestExtractor(t)
	out, err := e.Process(segment("u1", "hello there", false))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(signals(t, out)) != 0 {
		t.Fatalf("expected no signal, got %v", out)
	}
}

func TestRevisionStability(t *testing.T) {
	e := newTestExtractor(t)

	out, _ := e.Process(segment("u1", "it's kind of re", false))
	if len(signals(t, out)) != 0 {
		t.Fatalf("expected no signal for incomplete token")
	}

	out, _ = e.Process(segment("u1", "it's kind of red", false))
	sigs := signals(t, out)
	if len(sigs) != 1 || sigs[0].Label() != "red" {
		t.Fatalf("expected red on revision, got %v", sigs)
	}

	out, _ = e.Process(segment("u1", "it's kind of red today", true))
	if len(signals(t, out)) != 0 {
		t.Fatalf("expected no re-emission of unchanged label on final")
	}
	if e.ClosedCount() != 1 {
		t.Fatalf("expected utterance closed after final")
	}
}

func TestLabelTransitionEmitsOncePerChange(t *testing.T) {
	e := newTestExtractor(t)

	out, _ := e.Process(segment("u1", "make it red", false))
	sigs := signals(t, out)
	if len(sigs) != 1 || sigs[0].Label() != "red" {
		t.Fatalf("expected red, got %v", sigs)
	}

	// Revised text no longer leads with red.
	out, _ = e.Process(segment("u1", "make it blue actually", false))
	sigs = signals(t, out)
	if len(sigs) != 1 || sigs[0].Label() != "blue" {
		t.Fatalf("expected transition to blue, got %v", sigs)
	}

	out, _ = e.Process(segment("u1", "make it blue actually please", false))
	if len(signals(t, out)) != 0 {
		t.Fatalf("expected no consecutive repeat of blue")
	}
}

func TestClosedUtteranceStaysSilent(t *testing.T) {
	e := newTestExtractor(t)

	if _, err := e.Process(segment("u1", "green please", true)); err != nil {
		t.Fatalf("process: %v", err)
	}
	if e.OpenCount() != 0 {
		t.Fatalf("expected open state cleared on final")
	}

	// Late duplicate delivery after closure.
	out, err := e.Process(segment("u1", "now red instead", false))
	if err != nil {
		t.Fatalf("process after close: %v", err)
	}
	if len(signals(t, out)) != 0 {
		t.Fatalf("expected closed utterance to stay silent")
	}
	if e.ClosedCount() != 1 {
		t.Fatalf("expected closed set unchanged")
	}
}

func TestFinalWithoutMatchStillCloses(t *testing.T) {
	e := newTestExtractor(t)
	out, _ := e.Process(segment("u1", "nothing relevant", true))
	if len(signals(t, out)) != 0 {
		t.Fatalf("expected silence")
	}
	if e.ClosedCount() != 1 {
		t.Fatalf("expected closure even without a label")
	}
}

func TestMalformedSegmentDroppedNotFatal(t *testing.T) {
	e := newTestExtractor(t)

	out, err := e.Process(segment("", "blue", false))
	if err == nil {
		t.Fatalf("expected invalid segment error")
	}
	if !errors.Is(err, ErrInvalidSegment) {
		t.Fatalf("expected ErrInvalidSegment, got %v", err)
	}
	if !errorsx.HasReason(err, errorsx.ReasonInvalidSegment) {
		t.Fatalf("expected invalid_segment reason, got %s", errorsx.Reason(err))
	}
	if len(out) != 0 {
		t.Fatalf("expected no output for malformed segment")
	}
	if e.OpenCount() != 0 || e.ClosedCount() != 0 {
		t.Fatalf("expected state unchanged")
	}

	out, err = e.Process(segment("u2", "text then blue\xff", false))
	if err == nil || !errors.Is(err, ErrInvalidSegment) {
		t.Fatalf("expected invalid utf-8 rejection, got %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected no output for invalid utf-8")
	}

	// The stream keeps working afterwards.
	out, err = e.Process(segment("u3", "blue", false))
	if err != nil {
		t.Fatalf("process after malformed: %v", err)
	}
	if len(signals(t, out)) != 1 {
		t.Fatalf("expected extraction to continue after malformed segment")
	}
}

func TestRoleFilter(t *testing.T) {
	e := newTestExtractor(t)
	f := frames.NewTranscriptFrame("sess-1", 1, "blue", frames.RoleLocal, "u1", false, nil)
	out, err := e.Process(f)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected local speaker to be filtered out")
	}
}

func TestClosedSetBounded(t *testing.T) {
	e, err := New(Config{
		Vocabulary:          MustVocabulary("red"),
		RoleFilter:          frames.RoleAgent,
		MaxClosedUtterances: 2,
	})
	if err != nil {
		t.Fatalf("new extractor: %v", err)
	}
	for _, id := range []string{"u1", "u2", "u3"} {
		if _, err := e.Process(segment(id, "done", true)); err != nil {
			t.Fatalf("process %s: %v", id, err)
		}
	}
	if e.ClosedCount() != 2 {
		t.Fatalf("expected closed set capped at 2, got %d", e.ClosedCount())
	}
	// Recent closures are still enforced.
	out, _ := e.Process(segment("u3", "red", false))
	if len(signals(t, out)) != 0 {
		t.Fatalf("expected recently closed utterance to stay closed")
	}
}

func TestSessionEndResetsState(t *testing.T) {
	e := newTestExtractor(t)
	if _, err := e.Process(segment("u1", "red", true)); err != nil {
		t.Fatalf("process: %v", err)
	}
	if e.ClosedCount() != 1 {
		t.Fatalf("expected one closed utterance")
	}

	end := frames.NewSystemFrame("sess-1", 2, "session_end", nil)
	out, err := e.Process(end)
	if err != nil {
		t.Fatalf("process system frame: %v", err)
	}
	if len(out) != 1 || out[0].Kind() != frames.KindSystem {
		t.Fatalf("expected system frame passthrough")
	}
	if e.ClosedCount() != 0 {
		t.Fatalf("expected state reset on session end")
	}

	// A fresh session may legitimately reuse the id.
	out, _ = e.Process(segment("u1", "blue", false))
	if len(signals(t, out)) != 1 {
		t.Fatalf("expected reused id to extract in a new session")
	}
}

func TestObserverEvents(t *testing.T) {
	e := newTestExtractor(t)
	obs := metrics.NewMemoryObserver()
	e.SetObserver(obs)

	if _, err := e.Process(segment("u1", "it is blue", true)); err != nil {
		t.Fatalf("process: %v", err)
	}
	if n := len(obs.Named(metrics.EventSegmentIn)); n != 1 {
		t.Fatalf("expected 1 segment_in, got %d", n)
	}
	if n := len(obs.Named(metrics.EventSignalOut)); n != 1 {
		t.Fatalf("expected 1 signal_out, got %d", n)
	}
	if n := len(obs.Named(metrics.EventUtteranceClosed)); n != 1 {
		t.Fatalf("expected 1 utterance_closed, got %d", n)
	}

	// Late delivery is counted as a drop.
	if _, err := e.Process(segment("u1", "blue again", false)); err != nil {
		t.Fatalf("process: %v", err)
	}
	drops := obs.Named(metrics.EventSegmentDrop)
	if len(drops) != 1 || drops[0].Tags[frames.MetaReason] != "utterance_closed" {
		t.Fatalf("expected closed-drop event, got %v", drops)
	}
}
