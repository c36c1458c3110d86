package models

import (
	"fmt"
	"net/netip"
	"strings"
)

// AgentKind identifies a security operation an agent can perform
type AgentKind string

const (
	AgentRecon            AgentKind = "recon"
	AgentThreatDetect     AgentKind = "threat-detect"
	AgentIncidentResponse AgentKind = "incident-response"
	AgentForensics        AgentKind = "forensics"
)

// AgentKinds lists every known agent kind in display order
var AgentKinds = []AgentKind{AgentRecon, AgentThreatDetect, AgentIncidentResponse, AgentForensics}

// agentAliases maps the dashboard's short agent ids onto kinds
var agentAliases = map[string]AgentKind{
	"recon":             AgentRecon,
	"threat":            AgentThreatDetect,
	"threat-detect":     AgentThreatDetect,
	"threat-detection":  AgentThreatDetect,
	"response":          AgentIncidentResponse,
	"incident":          AgentIncidentResponse,
	"incident-response": AgentIncidentResponse,
	"forensics":         AgentForensics,
}

// ParseAgentKind resolves a kind from its canonical name or a dashboard alias
func ParseAgentKind(s string) (AgentKind, bool) {
	key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-")
	kind, ok := agentAliases[key]
	return kind, ok
}

// DisplayName returns the human readable agent name used in alerts
func (k AgentKind) DisplayName() string {
	switch k {
	case AgentRecon:
		return "Recon Agent"
	case AgentThreatDetect:
		return "Threat Detection Agent"
	case AgentIncidentResponse:
		return "Incident Response Agent"
	case AgentForensics:
		return "Forensics Agent"
	default:
		return string(k)
	}
}

// Description returns a one-line summary of what the agent does
func (k AgentKind) Description() string {
	switch k {
	case AgentRecon:
		return "Scans networks and maps the attack surface."
	case AgentThreatDetect:
		return "Scores log records for anomalies that indicate intrusion."
	case AgentIncidentResponse:
		return "Runs containment actions such as isolating a host."
	case AgentForensics:
		return "Logs attack details for post-mortem analysis and reporting."
	default:
		return ""
	}
}

// Parameters is the kind-specific input of a job request
type Parameters interface {
	Kind() AgentKind
	Validate() error
}

// ReconParams are the parameters of a recon scan
type ReconParams struct {
	IPRange string `json:"ipRange"`
}

// Kind implements Parameters
func (p ReconParams) Kind() AgentKind { return AgentRecon }

// Validate requires a CIDR prefix, a single address or an inclusive "a-b" range
func (p ReconParams) Validate() error {
	if strings.TrimSpace(p.IPRange) == "" {
		return fmt.Errorf("%w: ipRange is required", ErrInvalidParameters)
	}
	if _, _, err := ParseIPRange(p.IPRange); err != nil {
		return fmt.Errorf("%w: ipRange: %v", ErrInvalidParameters, err)
	}
	return nil
}

// ParseIPRange returns the first and last address of a scan range
func ParseIPRange(s string) (netip.Addr, netip.Addr, error) {
	s = strings.TrimSpace(s)
	if strings.Contains(s, "/") {
		prefix, err := netip.ParsePrefix(s)
		if err != nil {
			return netip.Addr{}, netip.Addr{}, err
		}
		prefix = prefix.Masked()
		return prefix.Addr(), lastAddr(prefix), nil
	}
	if from, to, ok := strings.Cut(s, "-"); ok {
		first, err := netip.ParseAddr(strings.TrimSpace(from))
		if err != nil {
			return netip.Addr{}, netip.Addr{}, err
		}
		last, err := netip.ParseAddr(strings.TrimSpace(to))
		if err != nil {
			return netip.Addr{}, netip.Addr{}, err
		}
		if first.BitLen() != last.BitLen() || last.Less(first) {
			return netip.Addr{}, netip.Addr{}, fmt.Errorf("range %q is empty", s)
		}
		return first, last, nil
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, netip.Addr{}, err
	}
	return addr, addr, nil
}

// AddrInRange reports whether addr lies in the inclusive range [first, last]
func AddrInRange(addr, first, last netip.Addr) bool {
	addr = addr.Unmap()
	if addr.BitLen() != first.BitLen() {
		return false
	}
	return !addr.Less(first) && !last.Less(addr)
}

func lastAddr(prefix netip.Prefix) netip.Addr {
	b := prefix.Addr().AsSlice()
	bits := prefix.Bits()
	for i := range b {
		hostBits := len(b)*8 - bits - (len(b)-1-i)*8
		switch {
		case hostBits >= 8:
			b[i] = 0xff
		case hostBits > 0:
			b[i] |= byte(1<<hostBits) - 1
		}
	}
	addr, _ := netip.AddrFromSlice(b)
	return addr
}

// LogRecord is one structured log entry submitted for threat detection
type LogRecord map[string]interface{}

// ThreatDetectParams are the parameters of a threat detection run
type ThreatDetectParams struct {
	Logs []LogRecord `json:"logs"`
}

// Kind implements Parameters
func (p ThreatDetectParams) Kind() AgentKind { return AgentThreatDetect }

// Validate requires at least one log record
func (p ThreatDetectParams) Validate() error {
	if len(p.Logs) == 0 {
		return fmt.Errorf("%w: no log data provided", ErrInvalidParameters)
	}
	for i, rec := range p.Logs {
		if rec == nil {
			return fmt.Errorf("%w: logs[%d] is null", ErrInvalidParameters, i)
		}
	}
	return nil
}

// ContainmentAction is the kind of containment applied to a target
type ContainmentAction string

const (
	ContainmentIsolate ContainmentAction = "isolate"
	ContainmentBlock   ContainmentAction = "block"
)

// IncidentResponseParams are the parameters of a containment action
type IncidentResponseParams struct {
	Target string            `json:"target"`
	Action ContainmentAction `json:"action,omitempty"` // defaults to isolate
}

// Kind implements Parameters
func (p IncidentResponseParams) Kind() AgentKind { return AgentIncidentResponse }

// Validate requires a target and a known action
func (p IncidentResponseParams) Validate() error {
	if strings.TrimSpace(p.Target) == "" {
		return fmt.Errorf("%w: target is required", ErrInvalidParameters)
	}
	switch p.Action {
	case "", ContainmentIsolate, ContainmentBlock:
		return nil
	default:
		return fmt.Errorf("%w: unknown action %q", ErrInvalidParameters, p.Action)
	}
}

// ForensicsParams are the parameters of a forensics logging run
type ForensicsParams struct {
	Details        map[string]interface{} `json:"details"`
	GenerateReport bool                   `json:"generateReport,omitempty"`
}

// Kind implements Parameters
func (p ForensicsParams) Kind() AgentKind { return AgentForensics }

// Validate requires a non-empty details mapping
func (p ForensicsParams) Validate() error {
	if len(p.Details) == 0 {
		return fmt.Errorf("%w: details are required", ErrInvalidParameters)
	}
	return nil
}
