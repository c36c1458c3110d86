package spec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"secops-orchestrator/core/models"
)

// JobSubmission is the generic submission envelope accepted by POST /v1/jobs
type JobSubmission struct {
	AgentKind  string          `json:"agentKind"`
	Parameters json.RawMessage `json:"parameters"`
}

// reconPayload accepts both the camelCase body key and the snake_case form
// used as a query parameter by the original dashboard
type reconPayload struct {
	IPRange      string `json:"ipRange"`
	IPRangeSnake string `json:"ip_range"`
}

// ParseParameters decodes kind-specific JSON parameters into a typed value.
// Only the shape is checked here; semantic checks live in Parameters.Validate.
func ParseParameters(kind models.AgentKind, raw []byte) (models.Parameters, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		raw = []byte("{}")
	}

	switch kind {
	case models.AgentRecon:
		var p reconPayload
		if err := decodeStrict(raw, &p); err != nil {
			return nil, err
		}
		ipRange := p.IPRange
		if ipRange == "" {
			ipRange = p.IPRangeSnake
		}
		return models.ReconParams{IPRange: strings.TrimSpace(ipRange)}, nil

	case models.AgentThreatDetect:
		var p models.ThreatDetectParams
		if err := decodeStrict(raw, &p); err != nil {
			return nil, err
		}
		return p, nil

	case models.AgentIncidentResponse:
		var p models.IncidentResponseParams
		if err := decodeStrict(raw, &p); err != nil {
			return nil, err
		}
		p.Target = strings.TrimSpace(p.Target)
		if p.Action == "" {
			p.Action = models.ContainmentIsolate
		}
		return p, nil

	case models.AgentForensics:
		var p models.ForensicsParams
		if err := decodeStrict(raw, &p); err != nil {
			return nil, err
		}
		return p, nil

	default:
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownAgent, kind)
	}
}

// ParseSubmission decodes the generic envelope and its parameters
func ParseSubmission(body []byte) (models.AgentKind, models.Parameters, error) {
	var sub JobSubmission
	if err := json.Unmarshal(body, &sub); err != nil {
		return "", nil, fmt.Errorf("%w: malformed body: %v", models.ErrInvalidParameters, err)
	}
	kind, ok := models.ParseAgentKind(sub.AgentKind)
	if !ok {
		return "", nil, fmt.Errorf("%w: %q", models.ErrUnknownAgent, sub.AgentKind)
	}
	params, err := ParseParameters(kind, sub.Parameters)
	if err != nil {
		return kind, nil, err
	}
	return kind, params, nil
}

func decodeStrict(raw []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", models.ErrInvalidParameters, err)
	}
	return nil
}
