package testutils

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"

	gssh "github.com/gliderlabs/ssh"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// CommandHandler answers a command received by the in-process SSH server.
type CommandHandler func(command string, stdin io.Reader) (output string, exitCode int)

// StreamHandler is a CommandHandler that also writes to standard error.
type StreamHandler func(command string, stdin io.Reader, stderr io.Writer) (output string, exitCode int)

// LocalSSHServer is an in-process SSH server with an SFTP subsystem backed by
// the local filesystem. It records every command it receives.
type LocalSSHServer struct {
	Address        string
	User           string
	KeyPath        string
	KnownHostsPath string

	mu       sync.Mutex
	commands []string
}

// Commands returns the commands received so far.
func (s *LocalSSHServer) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

func (s *LocalSSHServer) record(command string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands = append(s.commands, command)
}

// StartSSHServer starts a local SSH server that accepts a freshly generated
// client key and answers commands with handler.
func StartSSHServer(t *testing.T, handler CommandHandler) *LocalSSHServer {
	t.Helper()
	return StartStreamSSHServer(t, func(command string, stdin io.Reader, _ io.Writer) (string, int) {
		return handler(command, stdin)
	})
}

// StartStreamSSHServer is StartSSHServer with a handler that can write to
// standard error.
func StartStreamSSHServer(t *testing.T, handler StreamHandler) *LocalSSHServer {
	t.Helper()

	tmpDir := t.TempDir()

	clientKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate client key: %v", err)
	}
	keyPath := filepath.Join(tmpDir, "id_rsa")
	keyPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(clientKey),
	})
	if err := os.WriteFile(keyPath, keyPEM, 0600); err != nil {
		t.Fatalf("failed to write client key: %v", err)
	}
	clientPub, err := ssh.NewPublicKey(&clientKey.PublicKey)
	if err != nil {
		t.Fatalf("failed to create client public key: %v", err)
	}

	_, hostPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate host key: %v", err)
	}
	hostSigner, err := ssh.NewSignerFromKey(hostPriv)
	if err != nil {
		t.Fatalf("failed to create host signer: %v", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}

	local := &LocalSSHServer{
		Address: ln.Addr().String(),
		User:    "provisioner",
		KeyPath: keyPath,
	}

	srv := &gssh.Server{
		Handler: func(sess gssh.Session) {
			command := sess.RawCommand()
			local.record(command)
			output, code := handler(command, sess, sess.Stderr())
			io.WriteString(sess, output)
			sess.Exit(code)
		},
		PublicKeyHandler: func(_ gssh.Context, key gssh.PublicKey) bool {
			return gssh.KeysEqual(key, clientPub)
		},
		SubsystemHandlers: map[string]gssh.SubsystemHandler{
			"sftp": func(sess gssh.Session) {
				sftpServer, err := sftp.NewServer(sess)
				if err != nil {
					return
				}
				defer sftpServer.Close()
				if err := sftpServer.Serve(); err != nil && err != io.EOF {
					return
				}
			},
		},
	}
	srv.AddHostKey(hostSigner)

	go srv.Serve(ln)
	t.Cleanup(func() {
		srv.Close()
	})

	knownHostsPath := filepath.Join(tmpDir, "known_hosts")
	line := knownhosts.Line([]string{local.Address}, hostSigner.PublicKey())
	if err := os.WriteFile(knownHostsPath, []byte(line+"\n"), 0600); err != nil {
		t.Fatalf("failed to write known_hosts: %v", err)
	}
	local.KnownHostsPath = knownHostsPath

	return local
}
