package sshtun

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/pkg/sftp"
)

// sftpClient returns the SFTP sub-channel, creating it on first use.
// The sub-channel rides the existing SSH connection and is reused until
// the session closes.
func (s *Session) sftpClient() (*sftp.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.client == nil {
		return nil, fmt.Errorf("session is closed")
	}
	if s.sftpc != nil {
		return s.sftpc, nil
	}

	sftpc, err := sftp.NewClient(s.client)
	if err != nil {
		return nil, fmt.Errorf("failed to open SFTP channel: %w", err)
	}
	s.sftpc = sftpc
	s.logger.Debug().Msg("SFTP channel opened")
	return sftpc, nil
}

// Put uploads a local file to the instance, creating parent directories
// as needed and carrying over the local permission bits.
func (s *Session) Put(ctx context.Context, localPath, remotePath string) error {
	s.logger.Debug().
		Str("local", localPath).
		Str("remote", remotePath).
		Msg("uploading file")

	localFile, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open local file: %w", err)
	}
	defer localFile.Close()

	fileInfo, err := localFile.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat local file: %w", err)
	}

	sftpc, err := s.sftpClient()
	if err != nil {
		return err
	}

	if dir := path.Dir(remotePath); dir != "." && dir != "/" {
		if err := sftpc.MkdirAll(dir); err != nil {
			return fmt.Errorf("failed to create remote directory: %w", err)
		}
	}

	remoteFile, err := sftpc.Create(remotePath)
	if err != nil {
		return fmt.Errorf("failed to create remote file: %w", err)
	}
	defer remoteFile.Close()

	written, err := copyWithContext(ctx, remoteFile, localFile)
	if err != nil {
		return fmt.Errorf("failed to copy file: %w", err)
	}

	if err := sftpc.Chmod(remotePath, fileInfo.Mode().Perm()); err != nil {
		s.logger.Warn().Err(err).Str("remote", remotePath).Msg("failed to set remote permissions")
	}

	if s.meter != nil {
		s.meter.RecordFileTransfer("upload", written)
	}
	s.logger.Info().
		Str("local", localPath).
		Str("remote", remotePath).
		Int64("bytes", written).
		Msg("file uploaded")

	return nil
}

// Get downloads a file from the instance, creating local parent
// directories as needed.
func (s *Session) Get(ctx context.Context, remotePath, localPath string) error {
	s.logger.Debug().
		Str("remote", remotePath).
		Str("local", localPath).
		Msg("downloading file")

	sftpc, err := s.sftpClient()
	if err != nil {
		return err
	}

	remoteFile, err := sftpc.Open(remotePath)
	if err != nil {
		return fmt.Errorf("failed to open remote file: %w", err)
	}
	defer remoteFile.Close()

	if dir := filepath.Dir(localPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create local directory: %w", err)
		}
	}

	localFile, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create local file: %w", err)
	}
	defer localFile.Close()

	written, err := copyWithContext(ctx, localFile, remoteFile)
	if err != nil {
		return fmt.Errorf("failed to copy file: %w", err)
	}

	if s.meter != nil {
		s.meter.RecordFileTransfer("download", written)
	}
	s.logger.Info().
		Str("remote", remotePath).
		Str("local", localPath).
		Int64("bytes", written).
		Msg("file downloaded")

	return nil
}

// copyWithContext copies data from src to dst while respecting context
// cancellation between chunks.
func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, 32*1024)
	var written int64

	for {
		select {
		case <-ctx.Done():
			return written, ctx.Err()
		default:
		}

		nr, err := src.Read(buf)
		if nr > 0 {
			nw, werr := dst.Write(buf[0:nr])
			if nw > 0 {
				written += int64(nw)
			}
			if werr != nil {
				return written, werr
			}
			if nr != nw {
				return written, io.ErrShortWrite
			}
		}
		if err != nil {
			if err == io.EOF {
				break
			}
			return written, err
		}
	}

	return written, nil
}
