// Package auth resolves the bearer token presented to the service.
// Three sources exist: a literal token, a token file, and the process
// environment. File sources can watch for rotation so long-running
// commands keep authenticating after the credential is replaced.
package auth

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/rerobots/client-go/pkg/api"
)

// Source yields the current API token. A Source's Token method has the
// signature expected by api.Config.TokenProvider.
type Source interface {
	Token() (string, error)
}

// Static is a literal token.
type Static string

// Token returns the literal token.
func (s Static) Token() (string, error) {
	if s == "" {
		return "", fmt.Errorf("empty API token")
	}
	return string(s), nil
}

// Resolve picks the token source for a command: an explicit literal
// wins, then a token file, then the environment unless ignoreEnv is
// set. The environment is captured here, once; later changes to it are
// not observed.
func Resolve(literal, tokenFile string, ignoreEnv bool, logger zerolog.Logger) (Source, error) {
	if literal != "" {
		return Static(literal), nil
	}
	if tokenFile != "" {
		return NewFileSource(tokenFile, logger)
	}
	if !ignoreEnv {
		if env := strings.TrimSpace(os.Getenv(api.TokenEnvVar)); env != "" {
			return Static(env), nil
		}
	}
	return nil, fmt.Errorf("no API token: pass one explicitly, name a token file, or set %s", api.TokenEnvVar)
}

// FileSource reads the token from a file and caches it. Call Watch to
// follow rotations of the file.
type FileSource struct {
	path   string
	logger zerolog.Logger

	mu    sync.RWMutex
	token string
}

// NewFileSource loads the token file at path. The file content is
// trimmed of surrounding whitespace; an empty file is an error.
func NewFileSource(path string, logger zerolog.Logger) (*FileSource, error) {
	f := &FileSource{
		path:   path,
		logger: logger.With().Str("component", "token-source").Logger(),
	}
	token, err := readTokenFile(path)
	if err != nil {
		return nil, err
	}
	f.token = token
	return f, nil
}

// Token returns the most recently loaded token.
func (f *FileSource) Token() (string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.token == "" {
		return "", fmt.Errorf("empty API token in %s", f.path)
	}
	return f.token, nil
}

// Path returns the watched file path.
func (f *FileSource) Path() string {
	return f.path
}

// reload re-reads the token file. A transient read failure or an empty
// file keeps the previous token so in-flight work is not broken by a
// half-written rotation.
func (f *FileSource) reload() {
	token, err := readTokenFile(f.path)
	if err != nil {
		f.logger.Warn().Err(err).Str("path", f.path).Msg("token reload failed, keeping previous token")
		return
	}

	f.mu.Lock()
	changed := token != f.token
	f.token = token
	f.mu.Unlock()

	if changed {
		f.logger.Info().Str("path", f.path).Msg("API token reloaded")
	}
}

func readTokenFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read token file: %w", err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("token file %s is empty", path)
	}
	return token, nil
}

// sameFile reports whether an event path refers to the token file.
func (f *FileSource) sameFile(eventPath string) bool {
	return filepath.Clean(eventPath) == filepath.Clean(f.path)
}
