package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"secops-orchestrator/core/models"
)

// Handler executes one agent operation. Implementations must return promptly
// once ctx is done; the runner enforces the timeout from outside regardless.
type Handler interface {
	Execute(ctx context.Context, params models.Parameters) (models.JobResult, error)
}

// HandlerFunc adapts a function to the Handler interface
type HandlerFunc func(ctx context.Context, params models.Parameters) (models.JobResult, error)

// Execute calls f(ctx, params)
func (f HandlerFunc) Execute(ctx context.Context, params models.Parameters) (models.JobResult, error) {
	return f(ctx, params)
}

// Policy bounds how an agent kind is executed
type Policy struct {
	MaxConcurrent int           // non-terminal jobs allowed at once, 0 = unlimited
	Timeout       time.Duration // force-cancel after this long, 0 = no timeout
}

// DefaultPolicy returns the built-in policy for a kind. Incident response is
// serialised so containment actions never race on the same target.
func DefaultPolicy(kind models.AgentKind) Policy {
	switch kind {
	case models.AgentRecon:
		return Policy{MaxConcurrent: 4, Timeout: 60 * time.Second}
	case models.AgentThreatDetect:
		return Policy{MaxConcurrent: 4, Timeout: 30 * time.Second}
	case models.AgentIncidentResponse:
		return Policy{MaxConcurrent: 1, Timeout: 120 * time.Second}
	case models.AgentForensics:
		return Policy{MaxConcurrent: 4, Timeout: 30 * time.Second}
	default:
		return Policy{MaxConcurrent: 1, Timeout: 30 * time.Second}
	}
}

// Entry binds an agent kind to its handler and policy
type Entry struct {
	Kind    models.AgentKind
	Handler Handler
	Policy  Policy
}

// Registry maps agent kinds to handlers. It is populated at service start.
type Registry struct {
	mu      sync.RWMutex
	entries map[models.AgentKind]Entry
}

// New creates an empty registry
func New() *Registry {
	return &Registry{entries: make(map[models.AgentKind]Entry)}
}

// Register binds a handler to a kind, replacing any previous binding
func (r *Registry) Register(kind models.AgentKind, handler Handler, policy Policy) error {
	if handler == nil {
		return fmt.Errorf("registering %s: nil handler", kind)
	}
	if policy.MaxConcurrent < 0 || policy.Timeout < 0 {
		return fmt.Errorf("registering %s: negative policy value", kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[kind] = Entry{Kind: kind, Handler: handler, Policy: policy}
	return nil
}

// Resolve returns the entry for a kind
func (r *Registry) Resolve(kind models.AgentKind) (Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[kind]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %q", models.ErrUnknownAgent, kind)
	}
	return entry, nil
}

// Entries returns all registered entries in the canonical kind order
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]Entry, 0, len(r.entries))
	for _, kind := range models.AgentKinds {
		if e, ok := r.entries[kind]; ok {
			entries = append(entries, e)
		}
	}
	return entries
}
