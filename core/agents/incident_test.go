package agents

import (
	"context"
	"errors"
	"testing"

	"secops-orchestrator/core/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingContainment struct{}

func (failingContainment) Contain(context.Context, string, models.ContainmentAction) error {
	return errors.New("firewall unreachable")
}

func TestIncidentResponseAgentContains(t *testing.T) {
	blocklist := NewBlocklist()
	agent := NewIncidentResponseAgent(blocklist, nil)

	result, err := agent.Execute(t.Context(), models.IncidentResponseParams{Target: "192.168.1.100"})
	require.NoError(t, err)
	assert.Equal(t, "containment_started", result["status"])
	assert.Equal(t, "192.168.1.100", result["target"])
	assert.Equal(t, "isolate", result["action"])
	assert.Equal(t, "Containment initiated for 192.168.1.100.", result["message"])

	assert.True(t, blocklist.Contains("192.168.1.100"))
	assert.False(t, blocklist.Contains("192.168.1.101"))
}

func TestIncidentResponseAgentBackendFailure(t *testing.T) {
	agent := NewIncidentResponseAgent(failingContainment{}, nil)

	_, err := agent.Execute(t.Context(), models.IncidentResponseParams{Target: "10.0.0.5", Action: models.ContainmentBlock})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "firewall unreachable")
}

func TestBlocklistEntries(t *testing.T) {
	b := NewBlocklist()
	require.NoError(t, b.Contain(t.Context(), "10.0.0.9", models.ContainmentIsolate))
	require.NoError(t, b.Contain(t.Context(), "10.0.0.1", models.ContainmentIsolate))
	require.NoError(t, b.Contain(t.Context(), "10.0.0.9", models.ContainmentBlock))

	entries := b.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "10.0.0.1", entries[0].Target)
	assert.Equal(t, models.ContainmentBlock, entries[1].Action)
}

func TestBlocklistHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	b := NewBlocklist()
	assert.ErrorIs(t, b.Contain(ctx, "10.0.0.1", models.ContainmentIsolate), context.Canceled)
	assert.Empty(t, b.Entries())
}
