package frames

import (
	"sync"
	"time"
)

type Kind string

const (
	KindTranscript Kind = "transcript"
	KindSignal     Kind = "signal"
	KindControl    Kind = "control"
	KindSystem     Kind = "system"
)

type ControlCode string

const (
	ControlCancel       ControlCode = "cancel"
	ControlFlush        ControlCode = "flush"
	ControlUtteranceEnd ControlCode = "utterance_end"
	ControlInvoke       ControlCode = "invoke"
)

// Role identifies the speaker a transcript frame is attributed to.
type Role string

const (
	RoleLocal Role = "local"
	RoleAgent Role = "remote-agent"
	RoleOther Role = "other"
)

const (
	MetaSessionID   = "session_id"
	MetaUtteranceID = "utterance_id"
	MetaTraceID     = "trace_id"
	MetaSource      = "source"
	MetaReason      = "reason"
	MetaIsFinal     = "is_final"
	MetaProcCallID  = "proc_call_id"
	MetaProcName    = "proc_name"
	MetaProcArgs    = "proc_args"
	MetaProcResult  = "proc_result"
	MetaProcStatus  = "proc_status"
	MetaProcError   = "proc_error"
	MetaIdempotency = "idempotency_key"
)

type Frame interface {
	Kind() Kind
	PTS() int64
	Meta() map[string]string
}

// TranscriptFrame carries one transcription update for an utterance. The same
// utterance id may appear on many non-final frames followed by at most one
// final frame; text is the accumulated-or-revised content so far.
type TranscriptFrame struct {
	pts         int64
	text        string
	role        Role
	utteranceID string
	final       bool
	meta        map[string]string
}

func NewTranscriptFrame(sessionID string, pts int64, text string, role Role, utteranceID string, final bool, meta map[string]string) TranscriptFrame {
	return TranscriptFrame{
		pts:         pts,
		text:        text,
		role:        role,
		utteranceID: utteranceID,
		final:       final,
		meta:        mergeMeta(sessionID, meta),
	}
}

func (t TranscriptFrame) Kind() Kind              { return KindTranscript }
func (t TranscriptFrame) PTS() int64              { return t.pts }
func (t TranscriptFrame) Meta() map[string]string { return cloneMeta(t.meta) }
func (t TranscriptFrame) Text() string            { return t.text }
func (t TranscriptFrame) Role() Role              { return t.role }
func (t TranscriptFrame) UtteranceID() string     { return t.utteranceID }
func (t TranscriptFrame) IsFinal() bool           { return t.final }

// SignalFrame is one classified signal emission for an utterance.
type SignalFrame struct {
	pts         int64
	label       string
	utteranceID string
	confirmed   bool
	meta        map[string]string
}

func NewSignalFrame(sessionID string, pts int64, label, utteranceID string, confirmedFinal bool, meta map[string]string) SignalFrame {
	return SignalFrame{
		pts:         pts,
		label:       label,
		utteranceID: utteranceID,
		confirmed:   confirmedFinal,
		meta:        mergeMeta(sessionID, meta),
	}
}

func (s SignalFrame) Kind() Kind              { return KindSignal }
func (s SignalFrame) PTS() int64              { return s.pts }
func (s SignalFrame) Meta() map[string]string { return cloneMeta(s.meta) }
func (s SignalFrame) Label() string           { return s.label }
func (s SignalFrame) UtteranceID() string     { return s.utteranceID }
func (s SignalFrame) ConfirmedFinal() bool    { return s.confirmed }

type ControlFrame struct {
	pts  int64
	code ControlCode
	meta map[string]string
}

func NewControlFrame(sessionID string, pts int64, code ControlCode, meta map[string]string) ControlFrame {
	return ControlFrame{
		pts:  pts,
		code: code,
		meta: mergeMeta(sessionID, meta),
	}
}

func (c ControlFrame) Kind() Kind              { return KindControl }
func (c ControlFrame) PTS() int64              { return c.pts }
func (c ControlFrame) Meta() map[string]string { return cloneMeta(c.meta) }
func (c ControlFrame) Code() ControlCode       { return c.code }

type SystemFrame struct {
	pts  int64
	name string
	meta map[string]string
}

func NewSystemFrame(sessionID string, pts int64, name string, meta map[string]string) SystemFrame {
	return SystemFrame{
		pts:  pts,
		name: name,
		meta: mergeMeta(sessionID, meta),
	}
}

func (s SystemFrame) Kind() Kind              { return KindSystem }
func (s SystemFrame) PTS() int64              { return s.pts }
func (s SystemFrame) Meta() map[string]string { return cloneMeta(s.meta) }
func (s SystemFrame) Name() string            { return s.name }

// PTSGen hands out monotonically increasing presentation timestamps per session.
type PTSGen struct {
	mu    sync.Mutex
	value map[string]int64
}

func NewPTSGen() *PTSGen {
	return &PTSGen{value: make(map[string]int64)}
}

func (g *PTSGen) Next(sessionID string) int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	v := g.value[sessionID] + time.Millisecond.Nanoseconds()
	g.value[sessionID] = v
	return v
}

func mergeMeta(sessionID string, meta map[string]string) map[string]string {
	out := make(map[string]string, 2+len(meta))
	if sessionID != "" {
		out[MetaSessionID] = sessionID
	}
	for k, v := range meta {
		out[k] = v
	}
	return out
}

func cloneMeta(meta map[string]string) map[string]string {
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}
