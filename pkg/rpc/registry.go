package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/colorcue/colorcue/pkg/errorsx"
)

// Proc is one invocable procedure. Handlers receive already-decoded JSON
// arguments and return a JSON-encoded result.
type Proc struct {
	Name        string
	Description string
	Handler     func(ctx context.Context, args map[string]any) (string, error)
}

type Registry interface {
	Procs() []Proc
	HandleProc(ctx context.Context, name string, args map[string]any) (string, error)
}

type ProcRegistry struct {
	mu    sync.RWMutex
	procs map[string]Proc
}

func NewProcRegistry(procs ...Proc) *ProcRegistry {
	r := &ProcRegistry{procs: make(map[string]Proc, len(procs))}
	for _, p := range procs {
		r.Register(p)
	}
	return r
}

func (r *ProcRegistry) Register(p Proc) {
	if p.Name == "" || p.Handler == nil {
		return
	}
	r.mu.Lock()
	r.procs[p.Name] = p
	r.mu.Unlock()
}

func (r *ProcRegistry) Procs() []Proc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Proc, 0, len(r.procs))
	for _, p := range r.procs {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *ProcRegistry) HandleProc(ctx context.Context, name string, args map[string]any) (string, error) {
	r.mu.RLock()
	p, ok := r.procs[name]
	r.mu.RUnlock()
	if !ok {
		return "", errorsx.Wrap(errors.New("unknown procedure "+name), errorsx.ReasonRPCUnknownProc)
	}
	return p.Handler(ctx, args)
}

var _ Registry = (*ProcRegistry)(nil)

// Vocabulary is the subset of the extraction vocabulary a procedure needs
// to validate a label argument.
type Vocabulary interface {
	Contains(label string) bool
	Labels() []string
}

type setColorResult struct {
	OK    bool   `json:"ok"`
	Color string `json:"color"`
}

// NewSetColorProc validates {"color": <label>} against the vocabulary and
// hands the accepted label to apply. The structured path enforces the same
// closed label set as transcript extraction.
func NewSetColorProc(vocab Vocabulary, apply func(ctx context.Context, color string) error) Proc {
	return Proc{
		Name:        "set_color",
		Description: "set the interface accent color to one of the known color names",
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			raw, ok := args["color"]
			if !ok {
				return "", errorsx.Wrap(errors.New("missing color argument"), errorsx.ReasonRPCInvalidPayload)
			}
			color, ok := raw.(string)
			if !ok {
				return "", errorsx.Wrap(errors.New("color must be a string"), errorsx.ReasonRPCInvalidPayload)
			}
			color = strings.ToLower(strings.TrimSpace(color))
			if !vocab.Contains(color) {
				return "", errorsx.Wrap(errors.New("unknown color "+color), errorsx.ReasonRPCInvalidPayload)
			}
			if apply != nil {
				if err := apply(ctx, color); err != nil {
					return "", errorsx.Wrap(err, errorsx.ReasonRPCInvoke)
				}
			}
			out, err := json.Marshal(setColorResult{OK: true, Color: color})
			if err != nil {
				return "", errorsx.Wrap(err, errorsx.ReasonRPCInvoke)
			}
			return string(out), nil
		},
	}
}

// NewListColorsProc reports the current vocabulary so a client can render
// its palette without hardcoding labels.
func NewListColorsProc(vocab Vocabulary) Proc {
	return Proc{
		Name:        "list_colors",
		Description: "list the color names the extractor recognizes",
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			out, err := json.Marshal(map[string]any{"colors": vocab.Labels()})
			if err != nil {
				return "", errorsx.Wrap(err, errorsx.ReasonRPCInvoke)
			}
			return string(out), nil
		},
	}
}
