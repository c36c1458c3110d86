package textgen

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotConfigured is returned when no generator credentials are set
	ErrNotConfigured = errors.New("text generator not configured")
	// ErrUnavailable wraps transport and upstream failures
	ErrUnavailable = errors.New("text generator unavailable")
	// ErrCredentialsRejected means the configured API key was refused
	ErrCredentialsRejected = errors.New("text generator rejected credentials")
)

// System instructions for the report operations
const (
	ForensicsInstruction      = "You are a cybersecurity forensics analyst generating an incident report."
	ThreatAnalysisInstruction = "You are a senior security operations center (SOC) analyst providing a threat analysis."
)

// Generator produces text from a prompt. Failures are always surfaced to
// the caller; there is no canned fallback output.
type Generator interface {
	Generate(ctx context.Context, prompt, systemInstruction string) (string, error)
}

// Disabled is the generator used when no API key is configured
type Disabled struct{}

// Generate always fails with ErrNotConfigured
func (Disabled) Generate(context.Context, string, string) (string, error) {
	return "", ErrNotConfigured
}

// ForensicsReport asks g for a structured incident report
func ForensicsReport(ctx context.Context, g Generator, incidentSummary string) (string, error) {
	if strings.TrimSpace(incidentSummary) == "" {
		return "", fmt.Errorf("incident summary is required")
	}
	return generate(ctx, g, forensicsPrompt(incidentSummary), ForensicsInstruction)
}

// ThreatAnalysis asks g for a brief analysis of an anomaly
func ThreatAnalysis(ctx context.Context, g Generator, anomalyDescription string) (string, error) {
	if strings.TrimSpace(anomalyDescription) == "" {
		return "", fmt.Errorf("anomaly description is required")
	}
	return generate(ctx, g, threatPrompt(anomalyDescription), ThreatAnalysisInstruction)
}

func generate(ctx context.Context, g Generator, prompt, instruction string) (string, error) {
	if g == nil {
		return "", ErrNotConfigured
	}
	return g.Generate(ctx, prompt, instruction)
}

func forensicsPrompt(summary string) string {
	var b strings.Builder
	b.WriteString("Generate a detailed forensics report based on the following incident summary.\n")
	b.WriteString("The report should be structured with sections like:\n")
	for i, section := range []string{
		"Incident ID & Timestamp",
		"Executive Summary",
		"Initial Detection Details",
		"Attacker Information (if known/speculated, e.g., IP, TTPs)",
		"Systems Affected",
		"Timeline of Events",
		"Containment & Eradication Steps",
		"Evidence Collected (brief overview)",
		"Impact Assessment",
		"Recommendations",
	} {
		fmt.Fprintf(&b, "%d. %s\n", i+1, section)
	}
	b.WriteString("\nIncident Summary:\n")
	b.WriteString(summary)
	b.WriteString("\n\nKeep the report concise but plausible for a cybersecurity context. Format for readability.\n")
	return b.String()
}

func threatPrompt(description string) string {
	var b strings.Builder
	b.WriteString("Analyze the following security anomaly and provide a brief threat analysis.\n")
	b.WriteString("Consider:\n")
	b.WriteString("- Potential threat type (e.g., malware, intrusion, data exfiltration, reconnaissance).\n")
	b.WriteString("- Possible attacker intent.\n")
	b.WriteString("- Severity/Impact level (Low, Medium, High, Critical).\n")
	b.WriteString("- Recommended immediate actions.\n")
	b.WriteString("\nAnomaly Description:\n")
	b.WriteString(description)
	b.WriteString("\n\nProvide the analysis in a clear, structured format.\n")
	return b.String()
}
