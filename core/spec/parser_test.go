package spec

import (
	"testing"

	"secops-orchestrator/core/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSubmission(t *testing.T) {
	kind, params, err := ParseSubmission([]byte(`{"agentKind":"recon","parameters":{"ipRange":"10.0.0.0/24"}}`))
	require.NoError(t, err)
	assert.Equal(t, models.AgentRecon, kind)
	assert.Equal(t, models.ReconParams{IPRange: "10.0.0.0/24"}, params)
}

func TestParseSubmissionAlias(t *testing.T) {
	kind, params, err := ParseSubmission([]byte(`{"agentKind":"response","parameters":{"target":" 10.0.0.5 "}}`))
	require.NoError(t, err)
	assert.Equal(t, models.AgentIncidentResponse, kind)
	assert.Equal(t, models.IncidentResponseParams{Target: "10.0.0.5", Action: models.ContainmentIsolate}, params)
}

func TestParseSubmissionErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want error
	}{
		{"malformed", `{"agentKind":`, models.ErrInvalidParameters},
		{"unknown agent", `{"agentKind":"exfiltrate","parameters":{}}`, models.ErrUnknownAgent},
		{"unknown field", `{"agentKind":"recon","parameters":{"subnet":"10.0.0.0/24"}}`, models.ErrInvalidParameters},
		{"wrong type", `{"agentKind":"threat","parameters":{"logs":"nope"}}`, models.ErrInvalidParameters},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ParseSubmission([]byte(tt.body))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestParseParameters(t *testing.T) {
	t.Run("recon snake case", func(t *testing.T) {
		p, err := ParseParameters(models.AgentRecon, []byte(`{"ip_range":"192.168.0.0/16"}`))
		require.NoError(t, err)
		assert.Equal(t, models.ReconParams{IPRange: "192.168.0.0/16"}, p)
	})

	t.Run("empty body decodes to zero value", func(t *testing.T) {
		p, err := ParseParameters(models.AgentForensics, nil)
		require.NoError(t, err)
		assert.ErrorIs(t, p.Validate(), models.ErrInvalidParameters)
	})

	t.Run("threat logs", func(t *testing.T) {
		p, err := ParseParameters(models.AgentThreatDetect, []byte(`{"logs":[{"bytes":10,"user":"alice"},{"bytes":12}]}`))
		require.NoError(t, err)
		logs := p.(models.ThreatDetectParams).Logs
		require.Len(t, logs, 2)
		assert.Equal(t, float64(10), logs[0]["bytes"])
	})

	t.Run("forensics report flag", func(t *testing.T) {
		p, err := ParseParameters(models.AgentForensics, []byte(`{"details":{"vector":"phishing"},"generateReport":true}`))
		require.NoError(t, err)
		fp := p.(models.ForensicsParams)
		assert.True(t, fp.GenerateReport)
		assert.Equal(t, "phishing", fp.Details["vector"])
	})

	t.Run("unknown kind", func(t *testing.T) {
		_, err := ParseParameters("exfiltrate", []byte(`{}`))
		assert.ErrorIs(t, err, models.ErrUnknownAgent)
	})
}
