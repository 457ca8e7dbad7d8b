package instance

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rerobots/client-go/pkg/api"
	"github.com/rerobots/client-go/pkg/sshtun"
)

// StartSession opens the remote shell channel. The last observed status
// must be exactly READY; any other status fails locally without a
// network connection attempt. When the forwarding address or host keys
// are missing, one status refresh is forced before giving up. Host keys
// are pinned to the ones the service reported; credential files exist
// only for the duration of the dial and are removed on every path.
// Calling StartSession with a session already open is a no-op.
func (inst *Instance) StartSession(ctx context.Context) (err error) {
	if inst.sess != nil {
		return nil
	}
	ctx, finish := inst.startSpan(ctx, "start session")
	defer func() { finish(err) }()
	if inst.status != api.StatusReady {
		return api.NewValidationError("start session", fmt.Sprintf(
			"instance %s is %s, not %s", inst.id, inst.status, api.StatusReady))
	}

	if !inst.conn.complete() {
		if _, err := inst.GetStatus(ctx); err != nil {
			return err
		}
		if inst.status != api.StatusReady {
			return api.NewValidationError("start session", fmt.Sprintf(
				"instance %s became %s while connecting", inst.id, inst.status))
		}
		if !inst.conn.complete() {
			return api.NewValidationError("start session", fmt.Sprintf(
				"instance %s has no forwarding address or host keys yet", inst.id))
		}
	}

	keyPath := inst.secretKeyPath
	if keyPath == "" && len(inst.secretKey) == 0 {
		return api.NewValidationError("start session",
			"no secret key for this instance; provide one or provision without a public key")
	}

	tmpDir, err := os.MkdirTemp("", "rerobots-")
	if err != nil {
		return fmt.Errorf("create credential dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	if keyPath == "" {
		keyPath = filepath.Join(tmpDir, "key.pem")
		if err := sshtun.WriteKey(keyPath, inst.secretKey); err != nil {
			return err
		}
	}
	knownHostsPath := filepath.Join(tmpDir, "known_hosts")
	if err := sshtun.WriteKnownHosts(knownHostsPath, inst.conn.ipv4, inst.conn.port, inst.conn.hostKeys); err != nil {
		return err
	}

	cfg := sshtun.DefaultConfig(inst.conn.ipv4, inst.conn.port)
	cfg.KeyPath = keyPath
	cfg.KnownHostsPath = knownHostsPath

	sess, err := sshtun.Dial(ctx, cfg, sshtun.WithLogger(inst.logger), sshtun.WithMetrics(inst.meter))
	if err != nil {
		return err
	}
	inst.sess = sess

	inst.logger.Info().
		Str("instance_id", inst.id).
		Str("address", sess.Addr()).
		Msg("session established")
	return nil
}

// StopSession closes the remote session and its file-transfer channel.
// It is idempotent; stopping an absent session is a no-op.
func (inst *Instance) StopSession() error {
	if inst.sess == nil {
		return nil
	}
	err := inst.sess.Close()
	inst.sess = nil
	return err
}

// ExecCommand runs cmd on the instance and returns its output and exit
// code. A nonzero remote exit is reported in the result, not as an
// error; errors mean the command could not run or was interrupted.
func (inst *Instance) ExecCommand(ctx context.Context, cmd string) (*sshtun.ExecResult, error) {
	sess, err := inst.session()
	if err != nil {
		return nil, err
	}
	return sess.Exec(ctx, cmd)
}

// PutFile copies a local file onto the instance.
func (inst *Instance) PutFile(ctx context.Context, localPath, remotePath string) error {
	sess, err := inst.session()
	if err != nil {
		return err
	}
	return sess.Put(ctx, localPath, remotePath)
}

// GetFile copies a file from the instance to the local path.
func (inst *Instance) GetFile(ctx context.Context, remotePath, localPath string) error {
	sess, err := inst.session()
	if err != nil {
		return err
	}
	return sess.Get(ctx, remotePath, localPath)
}

func (inst *Instance) session() (*sshtun.Session, error) {
	if inst.sess == nil {
		return nil, api.NewValidationError("session", fmt.Sprintf(
			"no live session for instance %s; call StartSession first", inst.id))
	}
	return inst.sess, nil
}

// Terminate stops any live session best-effort, then asks the service
// to terminate the instance. A busy-instance error passes through for
// the caller to retry; Terminate itself never retries.
func (inst *Instance) Terminate(ctx context.Context) (err error) {
	ctx, finish := inst.startSpan(ctx, "terminate")
	defer func() { finish(err) }()

	if err := inst.StopSession(); err != nil {
		inst.logger.Warn().Err(err).
			Str("instance_id", inst.id).
			Msg("session close failed before terminate")
	}
	if err := inst.client.TerminateInstance(ctx, inst.id); err != nil {
		return err
	}
	inst.status = api.StatusTerminating
	inst.logger.Info().
		Str("instance_id", inst.id).
		Msg("instance terminating")
	return nil
}
