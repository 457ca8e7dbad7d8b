package sshtun

import (
	"bytes"
	"context"
	"crypto/rand"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// testServer is an in-process SSH server with an exec handler that
// echoes the command back and an SFTP subsystem rooted in the real
// filesystem, so transfers land in t.TempDir.
type testServer struct {
	addr    string
	port    int
	hostPub string
	keyPath string
}

func startTestServer(t *testing.T) *testServer {
	t.Helper()

	hostPriv, hostPub, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("generate host key: %v", err)
	}
	hostSigner, err := ssh.ParsePrivateKey(hostPriv)
	if err != nil {
		t.Fatalf("parse host key: %v", err)
	}

	clientPriv, clientPub, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("generate client key: %v", err)
	}
	authorized, _, _, _, err := ssh.ParseAuthorizedKey([]byte(clientPub))
	if err != nil {
		t.Fatalf("parse client key: %v", err)
	}
	keyPath := filepath.Join(t.TempDir(), "key.pem")
	if err := WriteKey(keyPath, clientPriv); err != nil {
		t.Fatalf("write client key: %v", err)
	}

	serverConfig := &ssh.ServerConfig{
		PublicKeyCallback: func(conn ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			if !bytes.Equal(key.Marshal(), authorized.Marshal()) {
				return nil, os.ErrPermission
			}
			return &ssh.Permissions{}, nil
		},
	}
	serverConfig.AddHostKey(hostSigner)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = listener.Close() })

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go serveConn(conn, serverConfig)
		}
	}()

	tcpAddr := listener.Addr().(*net.TCPAddr)
	return &testServer{
		addr:    tcpAddr.IP.String(),
		port:    tcpAddr.Port,
		hostPub: hostPub,
		keyPath: keyPath,
	}
}

func serveConn(conn net.Conn, config *ssh.ServerConfig) {
	sshConn, chans, reqs, err := ssh.NewServerConn(conn, config)
	if err != nil {
		return
	}
	defer sshConn.Close()
	go ssh.DiscardRequests(reqs)

	for newChan := range chans {
		if newChan.ChannelType() != "session" {
			_ = newChan.Reject(ssh.UnknownChannelType, "unsupported channel type")
			continue
		}
		ch, chReqs, err := newChan.Accept()
		if err != nil {
			continue
		}
		go serveSession(ch, chReqs)
	}
}

func serveSession(ch ssh.Channel, reqs <-chan *ssh.Request) {
	defer ch.Close()

	for req := range reqs {
		switch req.Type {
		case "exec":
			var payload struct{ Command string }
			if err := ssh.Unmarshal(req.Payload, &payload); err != nil {
				_ = req.Reply(false, nil)
				continue
			}
			_ = req.Reply(true, nil)

			status := uint32(0)
			if payload.Command == "false" {
				status = 7
			} else {
				_, _ = ch.Write([]byte(payload.Command + "\n"))
			}
			_, _ = ch.SendRequest("exit-status", false,
				ssh.Marshal(struct{ Status uint32 }{status}))
			return

		case "subsystem":
			var payload struct{ Name string }
			if err := ssh.Unmarshal(req.Payload, &payload); err != nil || payload.Name != "sftp" {
				_ = req.Reply(false, nil)
				continue
			}
			_ = req.Reply(true, nil)

			server, err := sftp.NewServer(ch)
			if err != nil {
				return
			}
			_ = server.Serve()
			return

		default:
			_ = req.Reply(false, nil)
		}
	}
}

// dialTestServer connects with the server's host key pinned.
func dialTestServer(t *testing.T, srv *testServer) *Session {
	t.Helper()

	knownHostsPath := filepath.Join(t.TempDir(), "known_hosts")
	if err := WriteKnownHosts(knownHostsPath, srv.addr, srv.port, []string{srv.hostPub}); err != nil {
		t.Fatalf("WriteKnownHosts() error = %v", err)
	}

	cfg := DefaultConfig(srv.addr, srv.port)
	cfg.KeyPath = srv.keyPath
	cfg.KnownHostsPath = knownHostsPath

	sess, err := Dial(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { _ = sess.Close() })
	return sess
}

func TestPutGetRoundTrip(t *testing.T) {
	srv := startTestServer(t)
	sess := dialTestServer(t, srv)
	ctx := context.Background()

	content := make([]byte, 100*1024)
	if _, err := rand.Read(content); err != nil {
		t.Fatalf("rand: %v", err)
	}

	dir := t.TempDir()
	localPath := filepath.Join(dir, "upload.bin")
	remotePath := filepath.Join(dir, "remote", "stored.bin")
	downloadPath := filepath.Join(dir, "download.bin")
	if err := os.WriteFile(localPath, content, 0644); err != nil {
		t.Fatalf("write local file: %v", err)
	}

	if err := sess.Put(ctx, localPath, remotePath); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := sess.Get(ctx, remotePath, downloadPath); err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	got, err := os.ReadFile(downloadPath)
	if err != nil {
		t.Fatalf("read downloaded file: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("round-tripped content differs: got %d bytes, want %d", len(got), len(content))
	}
}

func TestExec(t *testing.T) {
	srv := startTestServer(t)
	sess := dialTestServer(t, srv)
	ctx := context.Background()

	res, err := sess.Exec(ctx, "echo hello")
	if err != nil {
		t.Fatalf("Exec() error = %v", err)
	}
	if res.ExitCode != 0 {
		t.Errorf("exit code = %d, want 0", res.ExitCode)
	}
	if res.Stdout != "echo hello" {
		t.Errorf("stdout = %q", res.Stdout)
	}

	res, err = sess.Exec(ctx, "false")
	if err != nil {
		t.Fatalf("Exec(false) error = %v", err)
	}
	if res.ExitCode != 7 {
		t.Errorf("exit code = %d, want 7", res.ExitCode)
	}
}

func TestDialRejectsUnpinnedHostKey(t *testing.T) {
	srv := startTestServer(t)

	_, otherPub, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair() error = %v", err)
	}
	knownHostsPath := filepath.Join(t.TempDir(), "known_hosts")
	if err := WriteKnownHosts(knownHostsPath, srv.addr, srv.port, []string{otherPub}); err != nil {
		t.Fatalf("WriteKnownHosts() error = %v", err)
	}

	cfg := DefaultConfig(srv.addr, srv.port)
	cfg.KeyPath = srv.keyPath
	cfg.KnownHostsPath = knownHostsPath

	if _, err := Dial(context.Background(), cfg); err == nil {
		t.Fatal("Dial succeeded with an unpinned host key")
	}
}

func TestCloseIdempotent(t *testing.T) {
	srv := startTestServer(t)
	sess := dialTestServer(t, srv)

	if err := sess.Close(); err != nil {
		t.Fatalf("first Close() error = %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}

	if _, err := sess.Exec(context.Background(), "echo hi"); err == nil {
		t.Error("Exec succeeded on a closed session")
	}
}
