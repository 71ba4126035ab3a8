package users

import (
	"context"
	"errors"
	"testing"

	"github.com/tpodg/serverkit/internal/server"
)

type stubServer struct {
	output string
	err    error
}

func (s *stubServer) ID() string      { return "stub" }
func (s *stubServer) Address() string { return "stub" }
func (s *stubServer) Execute(ctx context.Context, command string) (string, error) {
	return s.output, s.err
}
func (s *stubServer) Upload(ctx context.Context, remotePath string, content []byte) error {
	return nil
}

func TestLookupUserMissing(t *testing.T) {
	srv := &stubServer{err: &server.RemoteCommandFailedError{Server: "stub", Command: "getent passwd alice", ExitStatus: 2}}

	entry, err := lookupUser(context.Background(), srv, "alice")
	if err != nil {
		t.Fatalf("lookupUser returned error: %v", err)
	}
	if entry != nil {
		t.Fatalf("expected nil entry, got %+v", entry)
	}
}

func TestLookupUserPresent(t *testing.T) {
	srv := &stubServer{output: "alice:x:1000:1000::/home/alice:/bin/bash\n"}

	entry, err := lookupUser(context.Background(), srv, "alice")
	if err != nil {
		t.Fatalf("lookupUser returned error: %v", err)
	}
	if entry == nil {
		t.Fatal("expected entry, got nil")
	}
	if entry.home != "/home/alice" {
		t.Fatalf("expected home /home/alice, got %q", entry.home)
	}
}

func TestLookupUserError(t *testing.T) {
	expected := errors.New("execute failed")
	srv := &stubServer{err: expected}

	_, err := lookupUser(context.Background(), srv, "alice")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !errors.Is(err, expected) {
		t.Fatalf("expected error %v, got %v", expected, err)
	}
}

func TestPasswordStatus(t *testing.T) {
	srv := &stubServer{output: "alice P 01/01/2024 0 99999 7 -1\n"}
	status, err := PasswordStatus(context.Background(), srv, "alice")
	if err != nil {
		t.Fatalf("PasswordStatus returned error: %v", err)
	}
	if status != "P" {
		t.Fatalf("expected status P, got %q", status)
	}
}

func TestNormalizePublicKey(t *testing.T) {
	if _, err := normalizePublicKey("not a key"); err == nil {
		t.Fatal("expected error for invalid key, got nil")
	}
	if _, err := normalizePublicKey("ssh-ed25519 AAAA\nssh-rsa BBBB"); err == nil {
		t.Fatal("expected error for multi-line key, got nil")
	}
}
