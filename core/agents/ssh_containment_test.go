package agents

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"secops-orchestrator/core/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// writeSSHFixtures writes a client key and a known_hosts file trusting a fresh host key
func writeSSHFixtures(t *testing.T, address string) (keyPath, knownHostsPath string) {
	t.Helper()
	dir := t.TempDir()

	_, clientKey, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	block, err := ssh.MarshalPrivateKey(clientKey, "secops")
	require.NoError(t, err)
	keyPath = filepath.Join(dir, "id_ed25519")
	require.NoError(t, os.WriteFile(keyPath, pem.EncodeToMemory(block), 0o600))

	hostPub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	sshHostPub, err := ssh.NewPublicKey(hostPub)
	require.NoError(t, err)
	knownHostsPath = filepath.Join(dir, "known_hosts")
	line := knownhosts.Line([]string{knownhosts.Normalize(address)}, sshHostPub)
	require.NoError(t, os.WriteFile(knownHostsPath, []byte(line+"\n"), 0o600))
	return keyPath, knownHostsPath
}

func TestValidTarget(t *testing.T) {
	for _, target := range []string{"10.0.0.5", "2001:db8::1", "10.0.0.0/24", "web-01", "fw.corp.example.com"} {
		assert.True(t, ValidTarget(target), target)
	}
	for _, target := range []string{"", "10.0.0.5; rm -rf /", "$(reboot)", "-host", "a b", "host_name"} {
		assert.False(t, ValidTarget(target), target)
	}
}

func TestSSHContainmentCommand(t *testing.T) {
	keyPath, knownHosts := writeSSHFixtures(t, "127.0.0.1:22")
	c, err := NewSSHContainment(SSHConfig{
		Address:        "127.0.0.1:22",
		User:           "secops",
		PrivateKeyPath: keyPath,
		KnownHostsPath: knownHosts,
		BlockCommand:   "block {target}",
	})
	require.NoError(t, err)

	cmd, err := c.Command("10.0.0.5", models.ContainmentIsolate)
	require.NoError(t, err)
	assert.Equal(t, "sudo iptables -I FORWARD -s 10.0.0.5 -j DROP && sudo iptables -I FORWARD -d 10.0.0.5 -j DROP", cmd)

	cmd, err = c.Command("10.0.0.5", models.ContainmentBlock)
	require.NoError(t, err)
	assert.Equal(t, "block 10.0.0.5", cmd)

	_, err = c.Command("10.0.0.5 && reboot", models.ContainmentBlock)
	assert.ErrorIs(t, err, models.ErrInvalidParameters)

	_, err = c.Command("10.0.0.5", "wipe")
	assert.ErrorIs(t, err, models.ErrInvalidParameters)
}

func TestNewSSHContainmentErrors(t *testing.T) {
	keyPath, knownHosts := writeSSHFixtures(t, "127.0.0.1:22")

	_, err := NewSSHContainment(SSHConfig{User: "secops", PrivateKeyPath: keyPath, KnownHostsPath: knownHosts})
	assert.Error(t, err)

	_, err = NewSSHContainment(SSHConfig{Address: "127.0.0.1:22", User: "secops", PrivateKeyPath: filepath.Join(t.TempDir(), "missing"), KnownHostsPath: knownHosts})
	assert.Error(t, err)

	_, err = NewSSHContainment(SSHConfig{Address: "127.0.0.1:22", User: "secops", PrivateKeyPath: knownHosts, KnownHostsPath: knownHosts})
	assert.Error(t, err)

	_, err = NewSSHContainment(SSHConfig{Address: "127.0.0.1:22", User: "secops", PrivateKeyPath: keyPath, KnownHostsPath: filepath.Join(t.TempDir(), "missing")})
	assert.Error(t, err)
}

func TestSSHContainmentUnreachableHost(t *testing.T) {
	keyPath, knownHosts := writeSSHFixtures(t, "127.0.0.1:1")
	c, err := NewSSHContainment(SSHConfig{
		Address:        "127.0.0.1:1",
		User:           "secops",
		PrivateKeyPath: keyPath,
		KnownHostsPath: knownHosts,
		DialTimeout:    time.Second,
	})
	require.NoError(t, err)

	err = c.Contain(t.Context(), "10.0.0.5", models.ContainmentIsolate)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect")
}

// stalledListener accepts connections and never speaks, so the SSH
// handshake waits on the server version line forever
func stalledListener(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var (
		mu    sync.Mutex
		conns []net.Conn
	)
	t.Cleanup(func() {
		ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, conn := range conns {
			conn.Close()
		}
	})

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, conn)
			mu.Unlock()
		}
	}()
	return ln.Addr().String()
}

func TestSSHContainmentHandshakeHonoursCancel(t *testing.T) {
	addr := stalledListener(t)
	keyPath, knownHosts := writeSSHFixtures(t, addr)
	c, err := NewSSHContainment(SSHConfig{
		Address:        addr,
		User:           "secops",
		PrivateKeyPath: keyPath,
		KnownHostsPath: knownHosts,
		DialTimeout:    time.Minute,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	time.AfterFunc(50*time.Millisecond, cancel)

	begin := time.Now()
	err = c.Contain(ctx, "10.0.0.5", models.ContainmentIsolate)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled), err.Error())
	assert.Less(t, time.Since(begin), time.Second)
}

func TestSSHContainmentHandshakeTimeout(t *testing.T) {
	addr := stalledListener(t)
	keyPath, knownHosts := writeSSHFixtures(t, addr)
	c, err := NewSSHContainment(SSHConfig{
		Address:        addr,
		User:           "secops",
		PrivateKeyPath: keyPath,
		KnownHostsPath: knownHosts,
		DialTimeout:    100 * time.Millisecond,
	})
	require.NoError(t, err)

	begin := time.Now()
	err = c.Contain(t.Context(), "10.0.0.5", models.ContainmentIsolate)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ssh handshake")
	assert.Less(t, time.Since(begin), time.Second)
}
