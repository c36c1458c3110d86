package agents

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"secops-orchestrator/core/models"
)

// Containment applies a containment action to a target host or address
type Containment interface {
	Contain(ctx context.Context, target string, action models.ContainmentAction) error
}

// IncidentResponseAgent runs containment actions through a backend
type IncidentResponseAgent struct {
	backend Containment
	logger  *slog.Logger
}

// NewIncidentResponseAgent creates a new incident response agent
func NewIncidentResponseAgent(backend Containment, logger *slog.Logger) *IncidentResponseAgent {
	if logger == nil {
		logger = slog.Default()
	}
	if backend == nil {
		backend = NewBlocklist()
	}
	return &IncidentResponseAgent{
		backend: backend,
		logger:  logger.With("component", "incident_response_agent"),
	}
}

// Execute implements registry.Handler
func (a *IncidentResponseAgent) Execute(ctx context.Context, params models.Parameters) (models.JobResult, error) {
	p, err := paramsAs[models.IncidentResponseParams](params)
	if err != nil {
		return nil, err
	}
	action := p.Action
	if action == "" {
		action = models.ContainmentIsolate
	}

	if err := a.backend.Contain(ctx, p.Target, action); err != nil {
		return nil, fmt.Errorf("%s %s: %w", action, p.Target, err)
	}
	a.logger.Info("containment applied", "target", p.Target, "action", action)

	return models.JobResult{
		"status":  "containment_started",
		"target":  p.Target,
		"action":  string(action),
		"message": fmt.Sprintf("Containment initiated for %s.", p.Target),
	}, nil
}

// BlockEntry is one target held by a Blocklist
type BlockEntry struct {
	Target    string                   `json:"target"`
	Action    models.ContainmentAction `json:"action"`
	CreatedAt time.Time                `json:"createdAt"`
}

// Blocklist is an in-process containment backend. Containing a target that
// is already listed updates its action.
type Blocklist struct {
	mu      sync.RWMutex
	entries map[string]BlockEntry
	now     func() time.Time
}

// NewBlocklist creates an empty blocklist
func NewBlocklist() *Blocklist {
	return &Blocklist{
		entries: make(map[string]BlockEntry),
		now:     time.Now,
	}
}

// Contain implements Containment
func (b *Blocklist) Contain(ctx context.Context, target string, action models.ContainmentAction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[target] = BlockEntry{Target: target, Action: action, CreatedAt: b.now().UTC()}
	return nil
}

// Contains reports whether target is currently contained
func (b *Blocklist) Contains(target string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.entries[target]
	return ok
}

// Entries returns the contained targets sorted by name
func (b *Blocklist) Entries() []BlockEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]BlockEntry, 0, len(b.entries))
	for _, e := range b.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Target < out[j].Target })
	return out
}
