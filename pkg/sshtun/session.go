// Package sshtun maintains the SSH channel to a launched instance:
// pinned-host-key connections to the forwarded address, remote command
// execution, and SFTP file transfer over the same connection.
package sshtun

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"

	"github.com/rerobots/client-go/pkg/telemetry"
)

// Session is a live SSH connection to an instance. Sessions are not
// safe for concurrent use; the owner serializes operations.
type Session struct {
	cfg    *Config
	logger zerolog.Logger
	meter  *telemetry.Metrics

	mu     sync.Mutex
	client *ssh.Client
	sftpc  *sftp.Client
	closed bool
}

// DialOption adjusts ambient wiring of a Session.
type DialOption func(*Session)

// WithLogger attaches a logger to the session.
func WithLogger(logger zerolog.Logger) DialOption {
	return func(s *Session) { s.logger = logger }
}

// WithMetrics attaches a metrics recorder to the session.
func WithMetrics(m *telemetry.Metrics) DialOption {
	return func(s *Session) { s.meter = m }
}

// Dial connects to the instance described by cfg. The server must
// present one of the pinned host keys or the handshake fails.
func Dial(ctx context.Context, cfg *Config, opts ...DialOption) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid session config: %w", err)
	}

	clientConfig, err := cfg.buildClientConfig()
	if err != nil {
		return nil, err
	}

	s := &Session{cfg: cfg, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}

	address := cfg.Address()
	s.logger.Debug().Str("address", address).Msg("establishing SSH connection")

	connChan := make(chan *ssh.Client, 1)
	errChan := make(chan error, 1)

	go func() {
		client, err := ssh.Dial("tcp", address, clientConfig)
		if err != nil {
			errChan <- err
			return
		}
		connChan <- client
	}()

	select {
	case <-ctx.Done():
		// Reap whatever the abandoned dial eventually produces.
		go func() {
			select {
			case client := <-connChan:
				_ = client.Close()
			case <-errChan:
			}
		}()
		return nil, fmt.Errorf("connect %s: %w", address, ctx.Err())
	case err := <-errChan:
		return nil, fmt.Errorf("connect %s: %w", address, err)
	case client := <-connChan:
		s.client = client
	}

	if s.meter != nil {
		s.meter.SessionOpened()
	}
	s.logger.Info().Str("address", address).Msg("SSH connection established")
	return s, nil
}

// Addr returns the remote address of the session.
func (s *Session) Addr() string {
	return s.cfg.Address()
}

// ExecResult captures one remote command run.
type ExecResult struct {
	// Stdout is the captured standard output, trailing whitespace trimmed.
	Stdout string

	// Stderr is the captured standard error, trailing whitespace trimmed.
	Stderr string

	// ExitCode is the remote exit status.
	ExitCode int

	// Duration is the total execution time.
	Duration time.Duration
}

// Exec runs a command on the instance and waits for it to finish. A
// nonzero remote exit status is reported in the result, not as an
// error; errors mean the command could not be run or was interrupted.
func (s *Session) Exec(ctx context.Context, cmd string) (*ExecResult, error) {
	client, err := s.conn()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	s.logger.Debug().Str("command", cmd).Msg("executing command")

	session, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	defer session.Close()

	var stdoutBuf, stderrBuf bytes.Buffer
	session.Stdout = &stdoutBuf
	session.Stderr = &stderrBuf

	doneChan := make(chan error, 1)
	go func() {
		doneChan <- session.Run(cmd)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGTERM)
		time.Sleep(100 * time.Millisecond)
		_ = session.Signal(ssh.SIGKILL)
		return nil, fmt.Errorf("exec interrupted: %w", ctx.Err())
	case runErr = <-doneChan:
	}

	result := &ExecResult{
		Stdout:   strings.TrimRight(stdoutBuf.String(), "\n"),
		Stderr:   strings.TrimRight(stderrBuf.String(), "\n"),
		Duration: time.Since(start),
	}

	if runErr != nil {
		var exitErr *ssh.ExitError
		if !errors.As(runErr, &exitErr) {
			return nil, fmt.Errorf("exec failed: %w", runErr)
		}
		result.ExitCode = exitErr.ExitStatus()
	}

	s.logger.Debug().
		Str("command", cmd).
		Int("exit_code", result.ExitCode).
		Dur("duration", result.Duration).
		Msg("command completed")

	return result, nil
}

// conn returns the underlying SSH client.
func (s *Session) conn() (*ssh.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.client == nil {
		return nil, fmt.Errorf("session is closed")
	}
	return s.client, nil
}

// Close tears down the SFTP sub-channel and the SSH connection. It is
// safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	s.logger.Debug().Str("address", s.cfg.Address()).Msg("closing SSH connection")

	if s.sftpc != nil {
		if err := s.sftpc.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to close SFTP channel")
		}
		s.sftpc = nil
	}

	err := s.client.Close()
	s.client = nil

	if s.meter != nil {
		s.meter.SessionClosed()
	}

	if err != nil {
		return fmt.Errorf("disconnect: %w", err)
	}
	return nil
}
