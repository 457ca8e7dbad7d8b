package sshtun

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// DefaultUser is the account instances expose over the forwarded port.
const DefaultUser = "root"

// Config holds the connection parameters for one instance session.
type Config struct {
	// Host is the forwarded address of the instance.
	Host string

	// Port is the forwarded SSH port.
	Port int

	// User is the SSH username. Defaults to DefaultUser.
	User string

	// KeyPath is the path to the PEM-encoded private key for the
	// instance. Keys issued at launch are unencrypted.
	KeyPath string

	// KnownHostsPath is the path to a known_hosts file holding exactly
	// the host keys the service reported for this instance. Connections
	// are refused unless the server presents one of them; there is no
	// trust-on-first-use and no fallback to the user's own known_hosts.
	KnownHostsPath string

	// ConnectTimeout bounds connection establishment.
	ConnectTimeout time.Duration
}

// DefaultConfig returns a Config for the given forwarded address with
// the usual instance settings filled in.
func DefaultConfig(host string, port int) *Config {
	return &Config{
		Host:           host,
		Port:           port,
		User:           DefaultUser,
		ConnectTimeout: 30 * time.Second,
	}
}

// Validate checks if the configuration is complete.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}

	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}

	if c.User == "" {
		return fmt.Errorf("user is required")
	}

	if c.KeyPath == "" {
		return fmt.Errorf("private key path is required")
	}
	if _, err := os.Stat(c.KeyPath); err != nil {
		return fmt.Errorf("private key file not found: %s", c.KeyPath)
	}

	if c.KnownHostsPath == "" {
		return fmt.Errorf("known hosts path is required")
	}
	if _, err := os.Stat(c.KnownHostsPath); err != nil {
		return fmt.Errorf("known hosts file not found: %s", c.KnownHostsPath)
	}

	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("connect timeout must be positive")
	}

	return nil
}

// buildClientConfig creates an ssh.ClientConfig from the Config.
func (c *Config) buildClientConfig() (*ssh.ClientConfig, error) {
	keyBytes, err := os.ReadFile(c.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}

	signer, err := ssh.ParsePrivateKey(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	hostKeyCallback, err := knownhosts.New(c.KnownHostsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load pinned host keys: %w", err)
	}

	return &ssh.ClientConfig{
		User:            c.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         c.ConnectTimeout,
	}, nil
}

// Address returns the formatted SSH address (host:port).
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
