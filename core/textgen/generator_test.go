package textgen

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureGenerator struct {
	prompt, instruction string
}

func (c *captureGenerator) Generate(_ context.Context, prompt, instruction string) (string, error) {
	c.prompt, c.instruction = prompt, instruction
	return "ok", nil
}

func TestForensicsReport(t *testing.T) {
	g := &captureGenerator{}
	out, err := ForensicsReport(t.Context(), g, "Ransomware on file server fs-02")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, ForensicsInstruction, g.instruction)
	assert.Contains(t, g.prompt, "Ransomware on file server fs-02")
	assert.Contains(t, g.prompt, "10. Recommendations")
}

func TestThreatAnalysis(t *testing.T) {
	g := &captureGenerator{}
	_, err := ThreatAnalysis(t.Context(), g, "Outbound traffic spike to 198.51.100.4")
	require.NoError(t, err)
	assert.Equal(t, ThreatAnalysisInstruction, g.instruction)
	assert.Contains(t, g.prompt, "Anomaly Description:\nOutbound traffic spike to 198.51.100.4")
}

func TestReportInputValidation(t *testing.T) {
	_, err := ForensicsReport(t.Context(), &captureGenerator{}, "   ")
	assert.Error(t, err)
	_, err = ThreatAnalysis(t.Context(), &captureGenerator{}, "")
	assert.Error(t, err)

	_, err = ThreatAnalysis(t.Context(), nil, "anomaly")
	assert.ErrorIs(t, err, ErrNotConfigured)
}
