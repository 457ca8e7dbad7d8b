package sshtun

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"
)

// writeTestKey generates an ED25519 keypair and writes the private key
// into a temp dir, returning its path and the public authorized_keys line.
func writeTestKey(t *testing.T) (string, string) {
	t.Helper()

	privPEM, pubAuthorized, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("failed to generate test key: %v", err)
	}

	keyPath := filepath.Join(t.TempDir(), "key.pem")
	if err := os.WriteFile(keyPath, privPEM, 0600); err != nil {
		t.Fatalf("failed to write test key: %v", err)
	}
	return keyPath, pubAuthorized
}

// writeTestKnownHosts pins the given key to 10.10.80.2:2210 in a temp file.
func writeTestKnownHosts(t *testing.T, pubAuthorized string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "known_hosts")
	if err := WriteKnownHosts(path, "10.10.80.2", 2210, []string{pubAuthorized}); err != nil {
		t.Fatalf("failed to write known hosts: %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig("10.10.80.2", 2210)

	if config.Host != "10.10.80.2" {
		t.Errorf("expected host '10.10.80.2', got '%s'", config.Host)
	}

	if config.Port != 2210 {
		t.Errorf("expected port 2210, got %d", config.Port)
	}

	if config.User != DefaultUser {
		t.Errorf("expected user '%s', got '%s'", DefaultUser, config.User)
	}

	if config.ConnectTimeout != 30*time.Second {
		t.Errorf("expected connect timeout 30s, got %v", config.ConnectTimeout)
	}
}

func TestConfigValidation(t *testing.T) {
	keyPath, pubAuthorized := writeTestKey(t)
	knownHostsPath := writeTestKnownHosts(t, pubAuthorized)

	valid := func() *Config {
		c := DefaultConfig("10.10.80.2", 2210)
		c.KeyPath = keyPath
		c.KnownHostsPath = knownHostsPath
		return c
	}

	tests := []struct {
		name        string
		modifyFunc  func(*Config)
		expectError bool
	}{
		{
			name:        "valid config",
			modifyFunc:  func(c *Config) {},
			expectError: false,
		},
		{
			name: "missing host",
			modifyFunc: func(c *Config) {
				c.Host = ""
			},
			expectError: true,
		},
		{
			name: "invalid port",
			modifyFunc: func(c *Config) {
				c.Port = 0
			},
			expectError: true,
		},
		{
			name: "port out of range",
			modifyFunc: func(c *Config) {
				c.Port = 70000
			},
			expectError: true,
		},
		{
			name: "missing user",
			modifyFunc: func(c *Config) {
				c.User = ""
			},
			expectError: true,
		},
		{
			name: "missing key path",
			modifyFunc: func(c *Config) {
				c.KeyPath = ""
			},
			expectError: true,
		},
		{
			name: "key file not found",
			modifyFunc: func(c *Config) {
				c.KeyPath = "/nonexistent/key.pem"
			},
			expectError: true,
		},
		{
			name: "missing known hosts path",
			modifyFunc: func(c *Config) {
				c.KnownHostsPath = ""
			},
			expectError: true,
		},
		{
			name: "known hosts file not found",
			modifyFunc: func(c *Config) {
				c.KnownHostsPath = "/nonexistent/known_hosts"
			},
			expectError: true,
		},
		{
			name: "zero connect timeout",
			modifyFunc: func(c *Config) {
				c.ConnectTimeout = 0
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := valid()
			tt.modifyFunc(config)

			err := config.Validate()

			if tt.expectError && err == nil {
				t.Error("expected error, got nil")
			}
			if !tt.expectError && err != nil {
				t.Errorf("expected no error, got: %v", err)
			}
		})
	}
}

func TestConfigAddress(t *testing.T) {
	config := DefaultConfig("10.10.80.2", 2210)

	expected := "10.10.80.2:2210"
	if address := config.Address(); address != expected {
		t.Errorf("expected address '%s', got '%s'", expected, address)
	}
}

func TestBuildClientConfig(t *testing.T) {
	t.Run("valid key and pinned hosts", func(t *testing.T) {
		keyPath, pubAuthorized := writeTestKey(t)
		config := DefaultConfig("10.10.80.2", 2210)
		config.KeyPath = keyPath
		config.KnownHostsPath = writeTestKnownHosts(t, pubAuthorized)

		clientConfig, err := config.buildClientConfig()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if clientConfig.User != DefaultUser {
			t.Errorf("expected user '%s', got '%s'", DefaultUser, clientConfig.User)
		}

		if len(clientConfig.Auth) != 1 {
			t.Errorf("expected 1 auth method, got %d", len(clientConfig.Auth))
		}

		if clientConfig.HostKeyCallback == nil {
			t.Error("expected a host key callback, got nil")
		}

		if clientConfig.Timeout != 30*time.Second {
			t.Errorf("expected timeout 30s, got %v", clientConfig.Timeout)
		}
	})

	t.Run("unparseable private key", func(t *testing.T) {
		keyPath := filepath.Join(t.TempDir(), "key.pem")
		if err := os.WriteFile(keyPath, []byte("not a key"), 0600); err != nil {
			t.Fatalf("failed to write file: %v", err)
		}

		_, pubAuthorized := writeTestKey(t)
		config := DefaultConfig("10.10.80.2", 2210)
		config.KeyPath = keyPath
		config.KnownHostsPath = writeTestKnownHosts(t, pubAuthorized)

		if _, err := config.buildClientConfig(); err == nil {
			t.Error("expected error for unparseable key, got nil")
		}
	})
}

func TestGeneratedKeyParses(t *testing.T) {
	privPEM, pubAuthorized, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair() error = %v", err)
	}

	signer, err := ssh.ParsePrivateKey(privPEM)
	if err != nil {
		t.Fatalf("generated private key does not parse: %v", err)
	}

	pubKey, _, _, _, err := ssh.ParseAuthorizedKey([]byte(pubAuthorized))
	if err != nil {
		t.Fatalf("generated public key does not parse: %v", err)
	}

	if signer.PublicKey().Type() != pubKey.Type() {
		t.Errorf("key type mismatch: %s vs %s", signer.PublicKey().Type(), pubKey.Type())
	}
	if pubKey.Type() != ssh.KeyAlgoED25519 {
		t.Errorf("expected %s key, got %s", ssh.KeyAlgoED25519, pubKey.Type())
	}
}
