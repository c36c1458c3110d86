package agents

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os"
	"regexp"
	"strings"
	"time"

	"secops-orchestrator/core/models"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Default firewall commands; {target} is replaced with the validated target
const (
	DefaultIsolateCommand = "sudo iptables -I FORWARD -s {target} -j DROP && sudo iptables -I FORWARD -d {target} -j DROP"
	DefaultBlockCommand   = "sudo iptables -I INPUT -s {target} -j DROP"
)

var hostnamePattern = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9-]{0,62})(\.[A-Za-z0-9]([A-Za-z0-9-]{0,62}))*$`)

// SSHConfig describes the firewall host containment commands run on
type SSHConfig struct {
	Address        string // host:port
	User           string
	PrivateKeyPath string
	KnownHostsPath string
	IsolateCommand string
	BlockCommand   string
	DialTimeout    time.Duration
}

// SSHContainment runs containment commands on a firewall host over SSH
type SSHContainment struct {
	address  string
	config   *ssh.ClientConfig
	commands map[models.ContainmentAction]string
	timeout  time.Duration
}

// NewSSHContainment creates a new SSH containment backend. Host keys are
// always verified against the known_hosts file.
func NewSSHContainment(cfg SSHConfig) (*SSHContainment, error) {
	if cfg.Address == "" || cfg.User == "" {
		return nil, errors.New("ssh containment requires address and user")
	}
	key, err := os.ReadFile(cfg.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	hostKeys, err := knownhosts.New(cfg.KnownHostsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load known hosts: %w", err)
	}

	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &SSHContainment{
		address: cfg.Address,
		config: &ssh.ClientConfig{
			User:            cfg.User,
			Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
			HostKeyCallback: hostKeys,
			Timeout:         timeout,
		},
		commands: map[models.ContainmentAction]string{
			models.ContainmentIsolate: orDefault(cfg.IsolateCommand, DefaultIsolateCommand),
			models.ContainmentBlock:   orDefault(cfg.BlockCommand, DefaultBlockCommand),
		},
		timeout: timeout,
	}, nil
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

// Contain implements Containment
func (c *SSHContainment) Contain(ctx context.Context, target string, action models.ContainmentAction) error {
	command, err := c.Command(target, action)
	if err != nil {
		return err
	}
	_, err = c.run(ctx, command)
	return err
}

// Command renders the shell command for an action on target
func (c *SSHContainment) Command(target string, action models.ContainmentAction) (string, error) {
	if !ValidTarget(target) {
		return "", fmt.Errorf("%w: target %q is not an address or hostname", models.ErrInvalidParameters, target)
	}
	tmpl, ok := c.commands[action]
	if !ok {
		return "", fmt.Errorf("%w: unknown action %q", models.ErrInvalidParameters, action)
	}
	return strings.ReplaceAll(tmpl, "{target}", target), nil
}

// ValidTarget accepts IP addresses, CIDR prefixes and DNS hostnames only,
// so a target can be substituted into a shell command verbatim
func ValidTarget(target string) bool {
	if _, err := netip.ParseAddr(target); err == nil {
		return true
	}
	if _, err := netip.ParsePrefix(target); err == nil {
		return true
	}
	return len(target) <= 253 && hostnamePattern.MatchString(target)
}

func (c *SSHContainment) run(ctx context.Context, command string) (string, error) {
	dialer := net.Dialer{Timeout: c.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.address)
	if err != nil {
		return "", fmt.Errorf("failed to connect to %s: %w", c.address, err)
	}

	// The handshake is bounded by the dial timeout and by ctx.
	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn.SetDeadline(deadline)
	stop := context.AfterFunc(ctx, func() { conn.SetDeadline(time.Unix(1, 0)) })

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, c.address, c.config)
	if !stop() {
		if err == nil {
			sshConn.Close()
		}
		conn.Close()
		return "", fmt.Errorf("ssh handshake with %s: %w", c.address, ctx.Err())
	}
	if err != nil {
		conn.Close()
		return "", fmt.Errorf("ssh handshake with %s: %w", c.address, err)
	}
	conn.SetDeadline(time.Time{})
	client := ssh.NewClient(sshConn, chans, reqs)
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("failed to open session: %w", err)
	}
	defer session.Close()

	type result struct {
		out []byte
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := session.CombinedOutput(command)
		done <- result{out: out, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return string(res.out), fmt.Errorf("command failed: %w: %s", res.err, strings.TrimSpace(string(res.out)))
		}
		return string(res.out), nil
	case <-ctx.Done():
		client.Close()
		return "", ctx.Err()
	}
}
