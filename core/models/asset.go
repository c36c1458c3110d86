package models

// Provider represents where an inventoried asset lives
type Provider string

const (
	ProviderAWS    Provider = "aws"
	ProviderOnPrem Provider = "onprem"
)

// Asset is a host discovered by the recon agent
type Asset struct {
	Provider  Provider `json:"provider"`
	ID        string   `json:"id"`
	Name      string   `json:"name,omitempty"`
	Region    string   `json:"region,omitempty"`
	PrivateIP string   `json:"privateIp,omitempty"`
	PublicIP  string   `json:"publicIp,omitempty"`
	State     string   `json:"state,omitempty"`
	Platform  string   `json:"platform,omitempty"`
}
