package sshtun

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// GenerateKeypair creates a fresh ED25519 keypair, returning the
// PEM-encoded private key and the matching authorized_keys line.
func GenerateKeypair() (privPEM []byte, pubAuthorized string, err error) {
	pubKey, privKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate keypair: %w", err)
	}

	privKeyBlock, err := ssh.MarshalPrivateKey(privKey, "")
	if err != nil {
		return nil, "", fmt.Errorf("failed to marshal private key: %w", err)
	}
	privPEM = pem.EncodeToMemory(privKeyBlock)

	sshPubKey, err := ssh.NewPublicKey(pubKey)
	if err != nil {
		return nil, "", fmt.Errorf("failed to derive SSH public key: %w", err)
	}
	pubAuthorized = string(ssh.MarshalAuthorizedKey(sshPubKey))

	return privPEM, pubAuthorized, nil
}

// WriteKey writes private key material with owner-only permissions.
func WriteKey(path string, key []byte) error {
	if err := os.WriteFile(path, key, 0600); err != nil {
		return fmt.Errorf("failed to write private key: %w", err)
	}
	return nil
}

// WriteKnownHosts writes a known_hosts file pinning the given host keys
// to the given address, one record per key. hostKeys are in
// authorized_keys format, as reported by the instance detail endpoint.
func WriteKnownHosts(path, host string, port int, hostKeys []string) error {
	if len(hostKeys) == 0 {
		return fmt.Errorf("no host keys to pin")
	}

	address := net.JoinHostPort(host, strconv.Itoa(port))
	var b strings.Builder
	for _, raw := range hostKeys {
		key, _, _, _, err := ssh.ParseAuthorizedKey([]byte(raw))
		if err != nil {
			return fmt.Errorf("failed to parse host key: %w", err)
		}
		b.WriteString(knownhosts.Line([]string{address}, key))
		b.WriteByte('\n')
	}

	if err := os.WriteFile(path, []byte(b.String()), 0600); err != nil {
		return fmt.Errorf("failed to write known hosts: %w", err)
	}
	return nil
}
