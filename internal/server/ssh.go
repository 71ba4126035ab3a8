package server

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
	"golang.org/x/term"
)

type SSHServer struct {
	name           string
	address        string
	user           User
	knownHostsPath string
	opts           SSHOptions
}

type SSHOptions struct {
	UseAgent         *bool
	HandshakeTimeout time.Duration
}

const (
	defaultSSHHandshakeTimeout = 15 * time.Second
	defaultSSHPort             = "22"
	sudoNonInteractive         = "sudo -n "
	uploadFileMode             = 0o600
)

func NewSSHServer(name, address string, user User, knownHostsPath string, opts SSHOptions) *SSHServer {
	return &SSHServer{
		name:           name,
		address:        address,
		user:           user,
		knownHostsPath: knownHostsPath,
		opts:           opts,
	}
}

func (s *SSHServer) ID() string      { return s.name }
func (s *SSHServer) Address() string { return s.address }

// Sibling returns a server at another address that reuses this server's
// key material, known_hosts file and options.
func (s *SSHServer) Sibling(name, address, login string) *SSHServer {
	return NewSSHServer(name, address, s.user.As(login), s.knownHostsPath, s.opts)
}

// Execute runs command and returns its standard output. Standard error is
// kept apart and only reported with a failed command.
func (s *SSHServer) Execute(ctx context.Context, command string) (string, error) {
	return s.run(ctx, command, nil)
}

// ExecuteWithInput runs command with input on its standard input. The input
// never becomes part of the command line.
func (s *SSHServer) ExecuteWithInput(ctx context.Context, command string, input io.Reader) (string, error) {
	return s.run(ctx, command, input)
}

func (s *SSHServer) run(ctx context.Context, command string, input io.Reader) (string, error) {
	client, release, err := s.connect(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	defer session.Close()

	commandToRun := command
	if input != nil {
		session.Stdin = input
	}
	if s.user.SudoPassword != "" && strings.HasPrefix(command, sudoNonInteractive) {
		// -k makes sudo read the password even with cached credentials, so
		// it never reaches the command's input.
		commandToRun = "sudo -S -k -p '' " + strings.TrimPrefix(command, sudoNonInteractive)
		password := strings.NewReader(s.user.SudoPassword + "\n")
		if input != nil {
			session.Stdin = io.MultiReader(password, input)
		} else {
			session.Stdin = password
		}
	}

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr
	if err := session.Run(commandToRun); err != nil {
		return stdout.String(), commandError(s.name, command, stdout.String()+stderr.String(), err)
	}

	return stdout.String(), nil
}

// Upload writes content to remotePath over SFTP. The file is created with
// mode 0600 since uploads commonly carry credentials.
func (s *SSHServer) Upload(ctx context.Context, remotePath string, content []byte) error {
	client, release, err := s.connect(ctx)
	if err != nil {
		return err
	}
	defer release()

	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		return fmt.Errorf("failed to start sftp session: %w", err)
	}
	defer sftpClient.Close()

	dst, err := sftpClient.OpenFile(remotePath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return fmt.Errorf("failed to create remote file %s: %w", remotePath, err)
	}
	if err := dst.Chmod(uploadFileMode); err != nil {
		dst.Close()
		return fmt.Errorf("failed to chmod remote file %s: %w", remotePath, err)
	}
	if _, err := dst.Write(content); err != nil {
		dst.Close()
		return fmt.Errorf("failed to write remote file %s: %w", remotePath, err)
	}
	if err := dst.Close(); err != nil {
		return fmt.Errorf("failed to close remote file %s: %w", remotePath, err)
	}
	return nil
}

// ExecuteInteractive runs command on a pseudo-terminal with stdin and stdout
// attached. When stdin is a local terminal it is switched to raw mode for the
// duration of the command.
func (s *SSHServer) ExecuteInteractive(ctx context.Context, command string, stdin io.Reader, stdout io.Writer) error {
	client, release, err := s.connect(ctx)
	if err != nil {
		return err
	}
	defer release()

	session, err := client.NewSession()
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	defer session.Close()

	width, height := 80, 40
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		if w, h, err := term.GetSize(int(f.Fd())); err == nil {
			width, height = w, h
		}
		state, err := term.MakeRaw(int(f.Fd()))
		if err != nil {
			return fmt.Errorf("failed to switch terminal to raw mode: %w", err)
		}
		defer term.Restore(int(f.Fd()), state)
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	if err := session.RequestPty("xterm", height, width, modes); err != nil {
		return fmt.Errorf("failed to request pty: %w", err)
	}

	session.Stdin = stdin
	session.Stdout = stdout
	session.Stderr = stdout

	// sudo may prompt on the terminal, so -n would only get in the way.
	commandToRun := command
	if strings.HasPrefix(command, sudoNonInteractive) {
		commandToRun = "sudo " + strings.TrimPrefix(command, sudoNonInteractive)
	}
	if err := session.Run(commandToRun); err != nil {
		return commandError(s.name, command, "", err)
	}
	return nil
}

// connect dials the server and returns a client together with a release
// function that closes it. The client is closed early if ctx is cancelled.
func (s *SSHServer) connect(ctx context.Context) (*ssh.Client, func(), error) {
	addr := s.dialAddress()

	authMethods := []ssh.AuthMethod{}
	var agentConn net.Conn

	// Prefer explicit key material before falling back to the agent.
	if s.user.SSHKey != "" {
		expandedPath, err := expandPath(s.user.SSHKey)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to expand ssh key path %q: %w", s.user.SSHKey, err)
		}
		key, err := os.ReadFile(expandedPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read ssh key %q: %w", expandedPath, err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to parse ssh key %q: %w", expandedPath, err)
		}
		authMethods = append(authMethods, ssh.PublicKeys(signer))
	}

	if s.useAgent() {
		if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
			if conn, err := net.Dial("unix", sock); err == nil {
				agentConn = conn
				authMethods = append(authMethods, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
			}
		}
	}
	closeAgent := func() {
		if agentConn != nil {
			agentConn.Close()
		}
	}

	if len(authMethods) == 0 {
		return nil, nil, fmt.Errorf("no ssh authentication methods available")
	}

	knownHostsPath, err := resolveKnownHostsPath(s.knownHostsPath)
	if err != nil {
		closeAgent()
		return nil, nil, err
	}
	hostKeyCallback, err := knownhosts.New(knownHostsPath)
	if err != nil {
		closeAgent()
		return nil, nil, fmt.Errorf("failed to load known_hosts file %q: %w", knownHostsPath, err)
	}

	config := &ssh.ClientConfig{
		User:            s.user.Name,
		Auth:            authMethods,
		HostKeyCallback: hostKeyCallback,
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		closeAgent()
		return nil, nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}

	if err := applyHandshakeDeadline(ctx, conn, s.handshakeTimeout()); err != nil {
		conn.Close()
		closeAgent()
		return nil, nil, err
	}
	handshakeDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-handshakeDone:
		}
	}()

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	close(handshakeDone)
	if err != nil {
		conn.Close()
		closeAgent()
		return nil, nil, fmt.Errorf("failed to establish ssh connection to %s: %w", addr, err)
	}
	if err := clearDeadline(conn); err != nil {
		sshConn.Close()
		closeAgent()
		return nil, nil, err
	}
	client := ssh.NewClient(sshConn, chans, reqs)

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			client.Close()
		case <-done:
		}
	}()

	release := func() {
		close(done)
		client.Close()
		closeAgent()
	}
	return client, release, nil
}

func (s *SSHServer) dialAddress() string {
	if _, _, err := net.SplitHostPort(s.address); err == nil {
		return s.address
	}
	return net.JoinHostPort(strings.Trim(s.address, "[]"), defaultSSHPort)
}

func (s *SSHServer) useAgent() bool {
	if s.opts.UseAgent == nil {
		return true
	}
	return *s.opts.UseAgent
}

func (s *SSHServer) handshakeTimeout() time.Duration {
	if s.opts.HandshakeTimeout > 0 {
		return s.opts.HandshakeTimeout
	}
	return defaultSSHHandshakeTimeout
}

func applyHandshakeDeadline(ctx context.Context, conn net.Conn, timeout time.Duration) error {
	deadline, ok := handshakeDeadline(ctx, timeout)
	if !ok {
		return nil
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("set ssh handshake deadline: %w", err)
	}
	return nil
}

func clearDeadline(conn net.Conn) error {
	if err := conn.SetDeadline(time.Time{}); err != nil {
		return fmt.Errorf("clear ssh handshake deadline: %w", err)
	}
	return nil
}

func handshakeDeadline(ctx context.Context, timeout time.Duration) (time.Time, bool) {
	var deadline time.Time
	now := time.Now()
	if timeout > 0 {
		deadline = now.Add(timeout)
	}
	if ctxDeadline, ok := ctx.Deadline(); ok {
		if deadline.IsZero() || ctxDeadline.Before(deadline) {
			deadline = ctxDeadline
		}
	}
	if deadline.IsZero() {
		return time.Time{}, false
	}
	return deadline, true
}

func resolveKnownHostsPath(path string) (string, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to resolve home directory for known_hosts: %w", err)
		}
		path = filepath.Join(home, ".ssh", "known_hosts")
	}
	return expandPath(path)
}

func expandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to resolve home directory: %w", err)
		}
		return filepath.Join(home, path[2:]), nil
	}
	return path, nil
}
