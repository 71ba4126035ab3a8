package taskutil_test

import (
	"context"
	"strings"
	"testing"

	"github.com/tpodg/serverkit/internal/task/taskutil"
	"github.com/tpodg/serverkit/internal/testutils"
)

func TestSudoPrefix(t *testing.T) {
	srv := testutils.NewFakeServer("web", nil)
	prefix, err := taskutil.SudoPrefix(context.Background(), srv)
	if err != nil {
		t.Fatalf("SudoPrefix failed: %v", err)
	}
	if prefix != "sudo -n " {
		t.Fatalf("expected sudo prefix, got %q", prefix)
	}

	srv.Root = true
	prefix, err = taskutil.SudoPrefix(context.Background(), srv)
	if err != nil {
		t.Fatalf("SudoPrefix failed: %v", err)
	}
	if prefix != "" {
		t.Fatalf("expected empty prefix for root, got %q", prefix)
	}
}

func TestReadFileIfExists(t *testing.T) {
	srv := testutils.NewFakeServer("web", map[string]string{
		"/etc/aliases": "postmaster: root\n",
	})

	content, missing, err := taskutil.ReadFileIfExists(context.Background(), srv, "sudo -n ", "/etc/aliases")
	if err != nil {
		t.Fatalf("ReadFileIfExists failed: %v", err)
	}
	if missing || content != "postmaster: root\n" {
		t.Fatalf("unexpected result %q missing=%v", content, missing)
	}

	_, missing, err = taskutil.ReadFileIfExists(context.Background(), srv, "sudo -n ", "/etc/mdadm/mdadm.conf")
	if err != nil {
		t.Fatalf("ReadFileIfExists failed: %v", err)
	}
	if !missing {
		t.Fatal("expected file to be reported missing")
	}
}

func TestWriteFileInstallsUpload(t *testing.T) {
	srv := testutils.NewFakeServer("web", nil)

	err := taskutil.WriteFile(context.Background(), srv, "sudo -n ", "/home/alice/.ssh/authorized_keys",
		[]byte("ssh-ed25519 AAAA alice\n"), taskutil.FileSpec{Mode: 0o600, Owner: "alice", Group: "alice"})
	if err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	content, ok := srv.File("/home/alice/.ssh/authorized_keys")
	if !ok || content != "ssh-ed25519 AAAA alice\n" {
		t.Fatalf("unexpected file content %q (exists=%v)", content, ok)
	}

	calls := srv.Calls()
	last := calls[len(calls)-1]
	if !last.Sudo {
		t.Fatal("expected install to run with sudo")
	}
	joined := strings.Join(last.Argv, " ")
	for _, want := range []string{"install -m 600 -o alice -g alice /tmp/serverkit-", "/home/alice/.ssh/authorized_keys"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("expected %q in %q", want, joined)
		}
	}
}

func TestPathExists(t *testing.T) {
	srv := testutils.NewFakeServer("web", map[string]string{"/etc/nginx/certs/": ""})

	ok, err := taskutil.PathExists(context.Background(), srv, "", "/etc/nginx/certs")
	if err != nil || !ok {
		t.Fatalf("expected path to exist, got %v, %v", ok, err)
	}
	ok, err = taskutil.PathExists(context.Background(), srv, "", "/etc/bacula")
	if err != nil || ok {
		t.Fatalf("expected path to be missing, got %v, %v", ok, err)
	}
}
