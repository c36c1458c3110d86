package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"secops-orchestrator/core/models"
	"secops-orchestrator/core/registry"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	Server       ServerConfig                 `yaml:"server"`
	Database     DatabaseConfig               `yaml:"database"`
	Auth         AuthConfig                   `yaml:"auth"`
	Orchestrator OrchestratorConfig           `yaml:"orchestrator"`
	Agents       map[string]AgentPolicyConfig `yaml:"agents"`
	Recon        ReconConfig                  `yaml:"recon"`
	Threat       ThreatConfig                 `yaml:"threat"`
	Containment  ContainmentConfig            `yaml:"containment"`
	Evidence     EvidenceConfig               `yaml:"evidence"`
	TextGen      TextGenConfig                `yaml:"textgen"`
	Logging      LoggingConfig                `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            string        `yaml:"port"`
	AllowedOrigins  []string      `yaml:"allowed_origins"` // WebSocket origins, empty = same origin
	ShutdownTimeout time.Duration `yaml:"-"`

	ShutdownTimeoutRaw string `yaml:"shutdown_timeout"`
}

// DatabaseConfig selects the optional job archive. An empty URL disables it.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // postgres or sqlite
	URL    string `yaml:"url"`
}

// AuthConfig holds bearer token configuration
type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"-"`

	TokenTTLRaw string `yaml:"token_ttl"`
}

// OrchestratorConfig bounds the in-process job machinery
type OrchestratorConfig struct {
	MaxRecords      int           `yaml:"max_records"`
	AlertBuffer     int           `yaml:"alert_buffer"`
	AlertHistory    int           `yaml:"alert_history"`
	GracePeriod     time.Duration `yaml:"-"`
	MonitorInterval time.Duration `yaml:"-"`

	GracePeriodRaw     string `yaml:"grace_period"`
	MonitorIntervalRaw string `yaml:"monitor_interval"`
}

// AgentPolicyConfig overrides the built-in policy of one agent kind
type AgentPolicyConfig struct {
	MaxConcurrent *int          `yaml:"max_concurrent"`
	Timeout       time.Duration `yaml:"-"`

	TimeoutRaw string `yaml:"timeout"`
}

// ReconConfig configures the recon agent's asset inventories
type ReconConfig struct {
	AWSEnabled bool          `yaml:"aws_enabled"`
	AWSRegions []string      `yaml:"aws_regions"`
	Assets     []StaticAsset `yaml:"assets"`
}

// StaticAsset is an on-premises host listed in configuration
type StaticAsset struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	IP       string `yaml:"ip"`
	Platform string `yaml:"platform"`
}

// ThreatConfig configures the anomaly scorer
type ThreatConfig struct {
	Threshold float64 `yaml:"threshold"`
}

// Containment backends
const (
	ContainmentBlocklist = "blocklist"
	ContainmentSSH       = "ssh"
	ContainmentAWS       = "aws"
)

// ContainmentConfig selects the incident response backend
type ContainmentConfig struct {
	Backend string           `yaml:"backend"`
	SSH     SSHConfig        `yaml:"ssh"`
	AWS     QuarantineConfig `yaml:"aws"`
}

// SSHConfig configures the SSH firewall backend
type SSHConfig struct {
	Address        string `yaml:"address"`
	User           string `yaml:"user"`
	PrivateKeyPath string `yaml:"private_key_path"`
	KnownHostsPath string `yaml:"known_hosts_path"`
	IsolateCommand string `yaml:"isolate_command"`
	BlockCommand   string `yaml:"block_command"`
}

// QuarantineConfig configures EC2 security group quarantine. Security groups
// are regional: security_groups maps each region to its quarantine group,
// security_group_id is shorthand for a single-region deployment.
type QuarantineConfig struct {
	SecurityGroupID string            `yaml:"security_group_id"`
	SecurityGroups  map[string]string `yaml:"security_groups"`
}

// EvidenceConfig configures where forensics evidence is written
type EvidenceConfig struct {
	Dir string `yaml:"dir"`
}

// TextGenConfig configures the report generator
type TextGenConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8080",
			ShutdownTimeout: 15 * time.Second,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
		},
		Auth: AuthConfig{
			TokenTTL: 24 * time.Hour,
		},
		Orchestrator: OrchestratorConfig{
			MaxRecords:      10000,
			AlertBuffer:     64,
			AlertHistory:    100,
			GracePeriod:     2 * time.Second,
			MonitorInterval: 15 * time.Second,
		},
		Agents: map[string]AgentPolicyConfig{},
		Threat: ThreatConfig{
			Threshold: 3.5,
		},
		Containment: ContainmentConfig{
			Backend: ContainmentBlocklist,
		},
		Evidence: EvidenceConfig{
			Dir: "data/evidence",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file at
// path, then environment variables. ${VAR} references in the file are expanded.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnv(cfg)

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} with the variable's value, or "" if unset
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

func applyEnv(cfg *Config) {
	cfg.Server.Port = getEnv("SERVER_PORT", cfg.Server.Port)
	cfg.Database.URL = getEnv("DATABASE_URL", cfg.Database.URL)
	cfg.Database.Driver = getEnv("DATABASE_DRIVER", cfg.Database.Driver)
	cfg.Auth.JWTSecret = getEnv("JWT_SECRET", cfg.Auth.JWTSecret)
	cfg.TextGen.APIKey = getEnv("API_KEY", cfg.TextGen.APIKey)
	cfg.Logging.Level = getEnv("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getEnv("LOG_FORMAT", cfg.Logging.Format)

	if region := os.Getenv("AWS_REGION"); region != "" && len(cfg.Recon.AWSRegions) == 0 {
		cfg.Recon.AWSRegions = []string{region}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"server.shutdown_timeout", cfg.Server.ShutdownTimeoutRaw, &cfg.Server.ShutdownTimeout},
		{"auth.token_ttl", cfg.Auth.TokenTTLRaw, &cfg.Auth.TokenTTL},
		{"orchestrator.grace_period", cfg.Orchestrator.GracePeriodRaw, &cfg.Orchestrator.GracePeriod},
		{"orchestrator.monitor_interval", cfg.Orchestrator.MonitorIntervalRaw, &cfg.Orchestrator.MonitorInterval},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	for name, agent := range cfg.Agents {
		if agent.TimeoutRaw == "" {
			continue
		}
		d, err := time.ParseDuration(agent.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing agents.%s.timeout %q: %w", name, agent.TimeoutRaw, err)
		}
		agent.Timeout = d
		cfg.Agents[name] = agent
	}
	return nil
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server.port is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required (or set JWT_SECRET)")
	}
	if c.Database.URL != "" {
		switch c.Database.Driver {
		case "postgres", "sqlite":
		default:
			return fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver)
		}
	}
	if c.Orchestrator.MaxRecords < 0 {
		return fmt.Errorf("orchestrator.max_records must not be negative")
	}
	if c.Orchestrator.GracePeriod <= 0 {
		return fmt.Errorf("orchestrator.grace_period must be positive")
	}

	for name, agent := range c.Agents {
		if _, ok := models.ParseAgentKind(name); !ok {
			return fmt.Errorf("agents.%s: unknown agent kind", name)
		}
		if agent.MaxConcurrent != nil && *agent.MaxConcurrent < 0 {
			return fmt.Errorf("agents.%s.max_concurrent must not be negative", name)
		}
		if agent.Timeout < 0 {
			return fmt.Errorf("agents.%s.timeout must not be negative", name)
		}
	}

	if c.Threat.Threshold <= 0 {
		return fmt.Errorf("threat.threshold must be positive")
	}

	switch c.Containment.Backend {
	case ContainmentBlocklist:
	case ContainmentSSH:
		if c.Containment.SSH.Address == "" || c.Containment.SSH.User == "" {
			return fmt.Errorf("containment.ssh.address and containment.ssh.user are required")
		}
		if c.Containment.SSH.KnownHostsPath == "" {
			return fmt.Errorf("containment.ssh.known_hosts_path is required")
		}
	case ContainmentAWS:
		q := c.Containment.AWS
		if q.SecurityGroupID == "" && len(q.SecurityGroups) == 0 {
			return fmt.Errorf("containment.aws.security_group_id or containment.aws.security_groups is required")
		}
		if q.SecurityGroupID != "" && len(c.Recon.AWSRegions) > 1 {
			return fmt.Errorf("containment.aws.security_group_id is regional; use containment.aws.security_groups with more than one region")
		}
		for region, group := range q.SecurityGroups {
			if group == "" {
				return fmt.Errorf("containment.aws.security_groups.%s is empty", region)
			}
		}
	default:
		return fmt.Errorf("containment.backend must be blocklist, ssh or aws, got %q", c.Containment.Backend)
	}

	for i, asset := range c.Recon.Assets {
		if _, _, err := models.ParseIPRange(asset.IP); err != nil || strings.ContainsAny(asset.IP, "/-") {
			return fmt.Errorf("recon.assets[%d].ip %q is not an address", i, asset.IP)
		}
	}

	return nil
}

// Policies resolves the execution policy of every agent kind, applying
// configured overrides to the built-in defaults
func (c *Config) Policies() map[models.AgentKind]registry.Policy {
	policies := make(map[models.AgentKind]registry.Policy, len(models.AgentKinds))
	for _, kind := range models.AgentKinds {
		policies[kind] = registry.DefaultPolicy(kind)
	}
	for name, override := range c.Agents {
		kind, ok := models.ParseAgentKind(name)
		if !ok {
			continue
		}
		p := policies[kind]
		if override.MaxConcurrent != nil {
			p.MaxConcurrent = *override.MaxConcurrent
		}
		if override.Timeout > 0 {
			p.Timeout = override.Timeout
		}
		policies[kind] = p
	}
	return policies
}

// QuarantineGroups resolves the quarantine security group of each region the
// AWS client covers. The single-group shorthand only applies when exactly
// one region is in use.
func (c *Config) QuarantineGroups(regions []string) map[string]string {
	q := c.Containment.AWS
	groups := make(map[string]string, len(q.SecurityGroups)+1)
	for region, group := range q.SecurityGroups {
		groups[region] = group
	}
	if q.SecurityGroupID != "" && len(regions) == 1 {
		if _, ok := groups[regions[0]]; !ok {
			groups[regions[0]] = q.SecurityGroupID
		}
	}
	return groups
}

// StaticAssets converts the configured on-premises hosts to assets
func (c *Config) StaticAssets() []models.Asset {
	assets := make([]models.Asset, 0, len(c.Recon.Assets))
	for _, a := range c.Recon.Assets {
		assets = append(assets, models.Asset{
			Provider:  models.ProviderOnPrem,
			ID:        a.ID,
			Name:      a.Name,
			PrivateIP: a.IP,
			Platform:  a.Platform,
			State:     "registered",
		})
	}
	return assets
}
