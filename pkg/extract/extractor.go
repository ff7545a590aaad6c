package extract

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/colorcue/colorcue/pkg/errorsx"
	"github.com/colorcue/colorcue/pkg/frames"
	"github.com/colorcue/colorcue/pkg/metrics"
	"github.com/colorcue/colorcue/pkg/pipeline"
	"github.com/colorcue/colorcue/pkg/redact"
)

// ErrInvalidSegment marks a malformed transcript frame. The extractor drops
// the frame and keeps consuming the stream; it is never fatal.
var ErrInvalidSegment = errors.New("invalid segment")

type Config struct {
	Vocabulary Vocabulary
	// RoleFilter keeps only segments attributed to this speaker. Empty
	// accepts any role.
	RoleFilter frames.Role
	// Alphabet is the character class kept during tokenization.
	Alphabet string
	// MaxClosedUtterances bounds the closed-id memory per extractor.
	MaxClosedUtterances int
}

// Extractor maps a stream of transcript frames to a pruned stream of signal
// frames: at most one emission per label transition per utterance, closed
// utterances stay silent forever.
//
// Partial text for the same utterance arrives as growing or revised
// prefixes. Re-matching every delta naively would flicker or double-fire;
// first-match plus no-re-emit plus freeze-on-final is the smallest state
// machine that stays stable without buffering the whole utterance.
type Extractor struct {
	mu     sync.Mutex
	cfg    Config
	tok    Tokenizer
	open   map[string]*utteranceState
	closed *closedSet
	obs    metrics.Observer
}

func New(cfg Config) (*Extractor, error) {
	if cfg.Vocabulary.Len() == 0 {
		return nil, errorsx.Wrap(errors.New("extractor needs a vocabulary"), errorsx.ReasonVocabularyEmpty)
	}
	tok, err := NewTokenizer(cfg.Alphabet)
	if err != nil {
		return nil, err
	}
	return &Extractor{
		cfg:    cfg,
		tok:    tok,
		open:   make(map[string]*utteranceState),
		closed: newClosedSet(cfg.MaxClosedUtterances),
	}, nil
}

func (e *Extractor) Name() string { return "signal_extractor" }

func (e *Extractor) SetObserver(obs metrics.Observer) { e.obs = obs }

// SetVocabulary swaps the label set in place. Open and closed utterance state
// is untouched: already-emitted labels stay emitted, new matches use the new
// set from the next segment on.
func (e *Extractor) SetVocabulary(v Vocabulary) error {
	if v.Len() == 0 {
		return errorsx.Wrap(errors.New("vocabulary must not be empty"), errorsx.ReasonVocabularyEmpty)
	}
	e.mu.Lock()
	e.cfg.Vocabulary = v
	e.mu.Unlock()
	return nil
}

func (e *Extractor) Process(f frames.Frame) ([]frames.Frame, error) {
	switch f.Kind() {
	case frames.KindSystem:
		sf := f.(frames.SystemFrame)
		if sf.Name() == "session_end" {
			e.mu.Lock()
			e.open = make(map[string]*utteranceState)
			e.closed.Reset()
			e.mu.Unlock()
		}
		return []frames.Frame{f}, nil
	case frames.KindTranscript:
		return e.ingest(f.(frames.TranscriptFrame))
	default:
		return []frames.Frame{f}, nil
	}
}

func (e *Extractor) ingest(tf frames.TranscriptFrame) ([]frames.Frame, error) {
	meta := tf.Meta()
	if err := validate(tf); err != nil {
		slog.Warn("segment_invalid",
			"utterance_id", tf.UtteranceID(),
			"session_id", meta[frames.MetaSessionID],
			"reason_code", string(errorsx.Reason(err)),
			"error", err.Error())
		e.record(metrics.EventSegmentDrop, tf, map[string]string{frames.MetaReason: "invalid_segment"})
		return nil, err
	}
	if e.cfg.RoleFilter != "" && tf.Role() != e.cfg.RoleFilter {
		return nil, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	id := tf.UtteranceID()
	if e.closed.Has(id) {
		e.record(metrics.EventSegmentDrop, tf, map[string]string{frames.MetaReason: "utterance_closed"})
		return nil, nil
	}
	e.record(metrics.EventSegmentIn, tf, nil)

	var out []frames.Frame
	if label, ok := e.tok.FirstMatch(tf.Text(), e.cfg.Vocabulary); ok {
		st := e.open[id]
		if st == nil {
			st = &utteranceState{}
			e.open[id] = st
		}
		if label != st.lastEmitted {
			st.lastEmitted = label
			sig := e.signalFrame(tf, label)
			out = append(out, sig)
			e.record(metrics.EventSignalOut, tf, map[string]string{"label": label})
			slog.Debug("signal_extracted",
				"utterance_id", id,
				"label", label,
				"confirmed_final", tf.IsFinal(),
				"text", redact.Clip(redact.Text(tf.Text()), 120))
		}
	}

	if tf.IsFinal() {
		delete(e.open, id)
		e.closed.Add(id)
		e.record(metrics.EventUtteranceClosed, tf, nil)
	}
	return out, nil
}

func (e *Extractor) signalFrame(tf frames.TranscriptFrame, label string) frames.SignalFrame {
	meta := tf.Meta()
	sigMeta := map[string]string{
		frames.MetaUtteranceID: tf.UtteranceID(),
		frames.MetaSource:      "extractor",
	}
	if traceID := meta[frames.MetaTraceID]; traceID != "" {
		sigMeta[frames.MetaTraceID] = traceID
	}
	return frames.NewSignalFrame(meta[frames.MetaSessionID], tf.PTS(), label, tf.UtteranceID(), tf.IsFinal(), sigMeta)
}

func (e *Extractor) record(name string, tf frames.TranscriptFrame, extra map[string]string) {
	if e.obs == nil {
		return
	}
	meta := tf.Meta()
	tags := map[string]string{
		frames.MetaUtteranceID: tf.UtteranceID(),
		frames.MetaSessionID:   meta[frames.MetaSessionID],
		"component":            "extractor",
	}
	if traceID := meta[frames.MetaTraceID]; traceID != "" {
		tags[frames.MetaTraceID] = traceID
	}
	for k, v := range extra {
		tags[k] = v
	}
	e.obs.RecordEvent(metrics.MetricsEvent{
		Name: name,
		Time: time.Now(),
		Tags: tags,
	})
}

// OpenCount reports utterances with emitted labels awaiting their final.
func (e *Extractor) OpenCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.open)
}

// ClosedCount reports remembered closed utterances (bounded).
func (e *Extractor) ClosedCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed.Len()
}

func validate(tf frames.TranscriptFrame) error {
	if tf.UtteranceID() == "" {
		return errorsx.Wrap(fmt.Errorf("%w: missing utterance id", ErrInvalidSegment), errorsx.ReasonInvalidSegment)
	}
	if !utf8.ValidString(tf.Text()) {
		return errorsx.Wrap(fmt.Errorf("%w: text is not valid utf-8", ErrInvalidSegment), errorsx.ReasonInvalidSegment)
	}
	return nil
}

var _ pipeline.FrameProcessor = (*Extractor)(nil)
