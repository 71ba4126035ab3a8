package server_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tpodg/serverkit/internal/server"
	"github.com/tpodg/serverkit/internal/testutils"
)

func newLocalServer(t *testing.T, handler testutils.CommandHandler) (*testutils.LocalSSHServer, *server.SSHServer) {
	t.Helper()

	local := testutils.StartSSHServer(t, handler)
	useAgent := false
	srv := server.NewSSHServer("local", local.Address, server.User{
		Name:   local.User,
		SSHKey: local.KeyPath,
	}, local.KnownHostsPath, server.SSHOptions{UseAgent: &useAgent})
	return local, srv
}

func TestSSHServer_Execute(t *testing.T) {
	local, srv := newLocalServer(t, func(command string, _ io.Reader) (string, int) {
		if command == "echo 'hello world'" {
			return "hello world\n", 0
		}
		return "unexpected command\n", 127
	})

	output, err := srv.Execute(context.Background(), "echo 'hello world'")
	if err != nil {
		t.Fatalf("Execute failed: %v\nOutput: %s", err, output)
	}
	if output != "hello world\n" {
		t.Fatalf("expected %q, got %q", "hello world\n", output)
	}

	commands := local.Commands()
	if len(commands) != 1 || commands[0] != "echo 'hello world'" {
		t.Fatalf("unexpected recorded commands: %v", commands)
	}
}

func TestSSHServer_ExecuteNonZeroExit(t *testing.T) {
	_, srv := newLocalServer(t, func(string, io.Reader) (string, int) {
		return "E: Unable to locate package nope\n", 100
	})

	_, err := srv.Execute(context.Background(), "apt-get -yq install nope")
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var failed *server.RemoteCommandFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("expected RemoteCommandFailedError, got %T: %v", err, err)
	}
	if failed.ExitStatus != 100 {
		t.Fatalf("expected exit status 100, got %d", failed.ExitStatus)
	}
	if failed.Command != "apt-get -yq install nope" {
		t.Fatalf("unexpected command %q", failed.Command)
	}
	if !strings.Contains(failed.Output, "Unable to locate package") {
		t.Fatalf("expected output to be kept, got %q", failed.Output)
	}
	if !server.IsRemoteCommandFailed(err) {
		t.Fatal("IsRemoteCommandFailed returned false")
	}
}

func TestSSHServer_ExecuteWithSudoPassword(t *testing.T) {
	stdinCh := make(chan string, 1)
	local := testutils.StartSSHServer(t, func(command string, r io.Reader) (string, int) {
		data, _ := io.ReadAll(r)
		stdinCh <- string(data)
		return "", 0
	})
	useAgent := false
	srv := server.NewSSHServer("local", local.Address, server.User{
		Name:         local.User,
		SSHKey:       local.KeyPath,
		SudoPassword: "hunter2",
	}, local.KnownHostsPath, server.SSHOptions{UseAgent: &useAgent})

	if _, err := srv.Execute(context.Background(), "sudo -n ufw --force enable"); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	commands := local.Commands()
	if len(commands) != 1 || commands[0] != "sudo -S -k -p '' ufw --force enable" {
		t.Fatalf("unexpected recorded commands: %v", commands)
	}
	if stdin := <-stdinCh; stdin != "hunter2\n" {
		t.Fatalf("expected sudo password on stdin, got %q", stdin)
	}
}

func TestSSHServer_ExecuteKeepsStderrApart(t *testing.T) {
	local := testutils.StartStreamSSHServer(t, func(command string, _ io.Reader, stderr io.Writer) (string, int) {
		io.WriteString(stderr, "sudo: unable to resolve host web1: Name or service not known\n")
		if command == "false" {
			return "partial\n", 1
		}
		return "Defaults    requiretty\n", 0
	})
	useAgent := false
	srv := server.NewSSHServer("local", local.Address, server.User{
		Name:   local.User,
		SSHKey: local.KeyPath,
	}, local.KnownHostsPath, server.SSHOptions{UseAgent: &useAgent})

	output, err := srv.Execute(context.Background(), "cat /etc/sudoers")
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if output != "Defaults    requiretty\n" {
		t.Fatalf("expected stdout only, got %q", output)
	}

	_, err = srv.Execute(context.Background(), "false")
	var failed *server.RemoteCommandFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("expected RemoteCommandFailedError, got %T: %v", err, err)
	}
	if !strings.Contains(failed.Output, "partial") || !strings.Contains(failed.Output, "unable to resolve host") {
		t.Fatalf("expected stdout and stderr in the failure output, got %q", failed.Output)
	}
}

func TestSSHServer_ExecuteWithInput(t *testing.T) {
	stdinCh := make(chan string, 1)
	local := testutils.StartSSHServer(t, func(command string, r io.Reader) (string, int) {
		data, _ := io.ReadAll(r)
		stdinCh <- string(data)
		return "", 0
	})
	useAgent := false
	srv := server.NewSSHServer("local", local.Address, server.User{
		Name:         local.User,
		SSHKey:       local.KeyPath,
		SudoPassword: "hunter2",
	}, local.KnownHostsPath, server.SSHOptions{UseAgent: &useAgent})

	if _, err := srv.ExecuteWithInput(context.Background(), "sudo -n chpasswd", strings.NewReader("alice:s3cret\n")); err != nil {
		t.Fatalf("ExecuteWithInput failed: %v", err)
	}

	commands := local.Commands()
	if len(commands) != 1 || strings.Contains(commands[0], "s3cret") {
		t.Fatalf("expected the input to stay out of the command, got %v", commands)
	}
	if stdin := <-stdinCh; stdin != "hunter2\nalice:s3cret\n" {
		t.Fatalf("expected the sudo password before the input, got %q", stdin)
	}
}

func TestSSHServer_Upload(t *testing.T) {
	_, srv := newLocalServer(t, func(string, io.Reader) (string, int) { return "", 0 })

	target := filepath.Join(t.TempDir(), "nginx.conf")
	content := []byte("worker_processes 2;\n")
	if err := srv.Upload(context.Background(), target, content); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read uploaded file: %v", err)
	}
	if string(data) != string(content) {
		t.Fatalf("expected %q, got %q", content, data)
	}
	info, err := os.Stat(target)
	if err != nil {
		t.Fatalf("stat uploaded file: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected mode 0600, got %o", info.Mode().Perm())
	}
}

func TestSSHServer_UnknownHostKey(t *testing.T) {
	local := testutils.StartSSHServer(t, func(string, io.Reader) (string, int) { return "", 0 })

	emptyKnownHosts := filepath.Join(t.TempDir(), "known_hosts")
	if err := os.WriteFile(emptyKnownHosts, nil, 0600); err != nil {
		t.Fatalf("write known_hosts: %v", err)
	}
	useAgent := false
	srv := server.NewSSHServer("local", local.Address, server.User{
		Name:   local.User,
		SSHKey: local.KeyPath,
	}, emptyKnownHosts, server.SSHOptions{UseAgent: &useAgent})

	if _, err := srv.Execute(context.Background(), "true"); err == nil {
		t.Fatal("expected host key verification error, got nil")
	}
	if len(local.Commands()) != 0 {
		t.Fatalf("expected no commands to reach the server, got %v", local.Commands())
	}
}

func TestSSHServer_Sibling(t *testing.T) {
	srv := server.NewSSHServer("web", "10.0.0.5", server.User{
		Name:         "deploy",
		SSHKey:       "~/.ssh/id_ed25519",
		SudoPassword: "secret",
	}, "", server.SSHOptions{})

	hq := srv.Sibling("hq", "10.0.0.1:2222", "admin")
	if hq.ID() != "hq" || hq.Address() != "10.0.0.1:2222" {
		t.Fatalf("unexpected sibling %q at %q", hq.ID(), hq.Address())
	}
}
