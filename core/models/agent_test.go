package models

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAgentKind(t *testing.T) {
	tests := []struct {
		in   string
		want AgentKind
		ok   bool
	}{
		{"recon", AgentRecon, true},
		{"Threat", AgentThreatDetect, true},
		{"threat_detection", AgentThreatDetect, true},
		{"response", AgentIncidentResponse, true},
		{" incident-response ", AgentIncidentResponse, true},
		{"forensics", AgentForensics, true},
		{"exfiltrate", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseAgentKind(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseIPRange(t *testing.T) {
	tests := []struct {
		name        string
		in          string
		first, last string
		wantErr     bool
	}{
		{name: "cidr /24", in: "10.0.0.0/24", first: "10.0.0.0", last: "10.0.0.255"},
		{name: "unmasked cidr", in: "10.0.0.17/30", first: "10.0.0.16", last: "10.0.0.19"},
		{name: "cidr /20", in: "172.16.0.0/20", first: "172.16.0.0", last: "172.16.15.255"},
		{name: "single address", in: "192.168.1.7", first: "192.168.1.7", last: "192.168.1.7"},
		{name: "dash range", in: "10.0.0.5 - 10.0.0.9", first: "10.0.0.5", last: "10.0.0.9"},
		{name: "ipv6 cidr", in: "2001:db8::/126", first: "2001:db8::", last: "2001:db8::3"},
		{name: "reversed range", in: "10.0.0.9-10.0.0.5", wantErr: true},
		{name: "mixed families", in: "10.0.0.1-::1", wantErr: true},
		{name: "garbage", in: "not-an-ip", wantErr: true},
		{name: "bad prefix", in: "10.0.0.0/33", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			first, last, err := ParseIPRange(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.first, first.String())
			assert.Equal(t, tt.last, last.String())
		})
	}
}

func TestAddrInRange(t *testing.T) {
	first := netip.MustParseAddr("10.0.0.0")
	last := netip.MustParseAddr("10.0.0.255")

	assert.True(t, AddrInRange(netip.MustParseAddr("10.0.0.0"), first, last))
	assert.True(t, AddrInRange(netip.MustParseAddr("10.0.0.255"), first, last))
	assert.True(t, AddrInRange(netip.MustParseAddr("::ffff:10.0.0.4"), first, last))
	assert.False(t, AddrInRange(netip.MustParseAddr("10.0.1.0"), first, last))
	assert.False(t, AddrInRange(netip.MustParseAddr("2001:db8::1"), first, last))
}

func TestParametersValidate(t *testing.T) {
	tests := []struct {
		name    string
		params  Parameters
		wantErr bool
	}{
		{"recon ok", ReconParams{IPRange: "10.0.0.0/24"}, false},
		{"recon empty", ReconParams{}, true},
		{"recon malformed", ReconParams{IPRange: "10.0.0.0/99"}, true},
		{"threat ok", ThreatDetectParams{Logs: []LogRecord{{"bytes": 10}}}, false},
		{"threat empty", ThreatDetectParams{}, true},
		{"threat null record", ThreatDetectParams{Logs: []LogRecord{nil}}, true},
		{"incident default action", IncidentResponseParams{Target: "10.0.0.5"}, false},
		{"incident block", IncidentResponseParams{Target: "10.0.0.5", Action: ContainmentBlock}, false},
		{"incident blank target", IncidentResponseParams{Target: "  "}, true},
		{"incident unknown action", IncidentResponseParams{Target: "10.0.0.5", Action: "wipe"}, true},
		{"forensics ok", ForensicsParams{Details: map[string]interface{}{"vector": "phishing"}}, false},
		{"forensics empty", ForensicsParams{Details: map[string]interface{}{}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.params.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidParameters)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
