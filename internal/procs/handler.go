// Package procs implements the per-output procedure-call handler through which
// callers issue out-of-band commands to a sink.
package procs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Errors returned by Handler.
var (
	ErrProcNotFound = errors.New("procedure not found")
	ErrProcExists   = errors.New("procedure already registered")
	ErrClosed       = errors.New("procedure handler closed")
)

// Params carries call arguments and results.
type Params map[string]any

// Func is a registered procedure.
type Func func(ctx context.Context, params Params) (Params, error)

// Handler is a named procedure table.
type Handler struct {
	mu     sync.RWMutex
	procs  map[string]Func
	closed bool
}

// New creates an empty handler.
func New() *Handler {
	return &Handler{procs: make(map[string]Func)}
}

// Add registers fn under name.
func (h *Handler) Add(name string, fn Func) error {
	if h == nil {
		return ErrClosed
	}
	if name == "" || fn == nil {
		return fmt.Errorf("invalid procedure %q", name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrClosed
	}
	if _, exists := h.procs[name]; exists {
		return fmt.Errorf("%w: %s", ErrProcExists, name)
	}
	h.procs[name] = fn
	return nil
}

// Call invokes the named procedure. The table lock is not held while fn runs,
// so a procedure may call back into the handler.
func (h *Handler) Call(ctx context.Context, name string, params Params) (Params, error) {
	if h == nil {
		return nil, ErrClosed
	}

	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return nil, ErrClosed
	}
	fn, ok := h.procs[name]
	h.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProcNotFound, name)
	}
	if params == nil {
		params = Params{}
	}
	return fn(ctx, params)
}

// Names returns the registered procedure names, sorted.
func (h *Handler) Names() []string {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.procs))
	for name := range h.procs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close drops every procedure. Further calls fail with ErrClosed.
func (h *Handler) Close() {
	if h == nil {
		return
	}
	h.mu.Lock()
	h.closed = true
	clear(h.procs)
	h.mu.Unlock()
}
