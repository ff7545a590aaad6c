package redact

import (
	"regexp"
	"strings"
	"sync/atomic"
)

var enabled atomic.Bool

var (
	emailRe  = regexp.MustCompile(`(?i)[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`)
	numberRe = regexp.MustCompile(`\b\+?\d[\d\s\-]{6,}\d\b`)
)

// SetEnabled toggles transcript redaction before logging.
func SetEnabled(v bool) {
	enabled.Store(v)
}

// Enabled returns true when redaction is active.
func Enabled() bool {
	return enabled.Load()
}

// Text masks emails and long digit runs when enabled. Transcript text goes
// through here before it reaches any log sink.
func Text(in string) string {
	if !enabled.Load() || strings.TrimSpace(in) == "" {
		return in
	}
	out := emailRe.ReplaceAllString(in, "[REDACTED_EMAIL]")
	out = numberRe.ReplaceAllString(out, "[REDACTED_NUMBER]")
	return out
}

// Clip trims text to max runes for log lines; transcripts can run long.
func Clip(in string, max int) string {
	in = strings.TrimSpace(in)
	if max <= 0 || len(in) <= max {
		return in
	}
	return in[:max] + "..."
}
