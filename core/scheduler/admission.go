package scheduler

import (
	"sync"

	"secops-orchestrator/core/models"
)

// admissionGate counts admitted, not yet terminal jobs per agent kind.
// It is the only cross-job coordination: there is no queue behind it.
type admissionGate struct {
	mu    sync.Mutex
	inUse map[models.AgentKind]int
}

func newAdmissionGate() *admissionGate {
	return &admissionGate{inUse: make(map[models.AgentKind]int)}
}

// tryAcquire takes a slot unless limit slots are taken (limit 0 = unlimited)
func (g *admissionGate) tryAcquire(kind models.AgentKind, limit int) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if limit > 0 && g.inUse[kind] >= limit {
		return false
	}
	g.inUse[kind]++
	return true
}

func (g *admissionGate) release(kind models.AgentKind) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.inUse[kind] > 0 {
		g.inUse[kind]--
	}
}

func (g *admissionGate) count(kind models.AgentKind) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inUse[kind]
}
