package main

import (
	"bytes"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"secops-orchestrator/api/rest/middleware"
	"secops-orchestrator/config"
	"secops-orchestrator/core/agents"
	"secops-orchestrator/core/models"
	"secops-orchestrator/core/textgen"
	"secops-orchestrator/providers/aws"
	"secops-orchestrator/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuildContainment(t *testing.T) {
	cfg := config.Default()

	backend, err := buildContainment(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &agents.Blocklist{}, backend)

	cfg.Containment.Backend = config.ContainmentAWS
	cfg.Containment.AWS.SecurityGroupID = "sg-quarantine"
	backend, err = buildContainment(cfg, aws.NewClientWithAPI(map[string]aws.EC2API{"us-east-1": nil}))
	require.NoError(t, err)
	assert.IsType(t, &aws.Quarantine{}, backend)

	// A single group id cannot serve two regions.
	_, err = buildContainment(cfg, aws.NewClientWithAPI(map[string]aws.EC2API{"us-east-1": nil, "eu-west-1": nil}))
	assert.Error(t, err)

	_, err = buildContainment(cfg, nil)
	assert.Error(t, err)

	cfg.Containment.Backend = config.ContainmentSSH
	cfg.Containment.SSH = config.SSHConfig{
		Address:        "fw.internal:22",
		User:           "secops",
		PrivateKeyPath: t.TempDir() + "/missing_key",
		KnownHostsPath: t.TempDir() + "/known_hosts",
	}
	_, err = buildContainment(cfg, nil)
	assert.Error(t, err)
}

func TestBuildRegistry(t *testing.T) {
	cfg := config.Default()
	cfg.Agents = map[string]config.AgentPolicyConfig{
		"recon": {Timeout: 5 * time.Second},
	}

	evidence, err := storage.NewEvidenceStore(t.TempDir(), nil)
	require.NoError(t, err)

	reg, err := buildRegistry(t.Context(), cfg, evidence, textgen.Disabled{}, discardLogger())
	require.NoError(t, err)

	entries := reg.Entries()
	require.Len(t, entries, len(models.AgentKinds))
	for i, kind := range models.AgentKinds {
		assert.Equal(t, kind, entries[i].Kind)
	}

	recon, err := reg.Resolve(models.AgentRecon)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, recon.Policy.Timeout)

	ir, err := reg.Resolve(models.AgentIncidentResponse)
	require.NoError(t, err)
	assert.Equal(t, 1, ir.Policy.MaxConcurrent)
}

func TestTokenCommand(t *testing.T) {
	t.Setenv("JWT_SECRET", "cli-secret")
	t.Setenv("SECOPS_CONFIG", "")

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"token", "--sub", "analyst", "--ttl", "1h"})
	require.NoError(t, root.Execute())

	token := strings.TrimSpace(out.String())
	subject, err := middleware.NewJWTVerifier([]byte("cli-secret")).Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "analyst", subject)
}

func TestTokenCommandRequiresSubject(t *testing.T) {
	t.Setenv("JWT_SECRET", "cli-secret")

	root := newRootCmd()
	root.SetOut(io.Discard)
	root.SetArgs([]string{"token"})
	assert.Error(t, root.Execute())
}
