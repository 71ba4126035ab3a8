package hardening_test

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/tpodg/serverkit/internal/sshd"
	"github.com/tpodg/serverkit/internal/task"
	"github.com/tpodg/serverkit/internal/task/hardening"
	"github.com/tpodg/serverkit/internal/task/taskutil"
	"github.com/tpodg/serverkit/internal/testutils"
)

func plan(t *testing.T, key string, explicit map[string]any) []task.Task {
	t.Helper()
	catalog, err := task.NewCatalog(hardening.Operations()...)
	if err != nil {
		t.Fatalf("NewCatalog failed: %v", err)
	}
	op, err := catalog.Lookup(key)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	tasks, err := op.Plan(explicit, nil, task.Invocation{})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	return tasks
}

func run(t *testing.T, srv *testutils.FakeServer, tasks []task.Task) string {
	t.Helper()
	var out strings.Builder
	old := taskutil.Output
	taskutil.Output = &out
	defer func() { taskutil.Output = old }()

	runner := task.NewRunner(slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := runner.Run(context.Background(), srv, tasks...); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	return out.String()
}

func TestHardenSSHD(t *testing.T) {
	srv := testutils.NewFakeServer("web", map[string]string{
		sshd.ConfigPath: "Port 22\nPermitRootLogin yes\n#PasswordAuthentication yes\n",
	})

	warnings := run(t, srv, plan(t, "harden_sshd", nil))

	content, _ := srv.File(sshd.ConfigPath)
	if content != "Port 22\nPermitRootLogin no\nPasswordAuthentication no\n" {
		t.Fatalf("unexpected sshd_config: %q", content)
	}
	if !srv.Ran("sshd", "-t") || !srv.Ran("service", "ssh", "reload") {
		t.Fatalf("expected validation and reload, got %+v", srv.Mutations())
	}
	if warnings != "" {
		t.Fatalf("unexpected warnings: %q", warnings)
	}
}

func TestHardenSSHDWarnsWhenLinesAreAbsent(t *testing.T) {
	original := "Port 22\n"
	srv := testutils.NewFakeServer("web", map[string]string{sshd.ConfigPath: original})

	warnings := run(t, srv, plan(t, "harden_sshd", map[string]any{"restart": false}))

	if content, _ := srv.File(sshd.ConfigPath); content != original {
		t.Fatalf("file changed: %q", content)
	}
	if srv.Ran("service") {
		t.Fatal("expected no reload with restart=false")
	}
	if !strings.Contains(warnings, "password authentication is enabled") {
		t.Fatalf("expected audit warning, got %q", warnings)
	}
}

func TestNormalizeRackspace(t *testing.T) {
	srv := testutils.NewFakeServer("web", map[string]string{
		hardening.SudoersPath: "Defaults    env_reset\nDefaults    requiretty\n",
	})

	run(t, srv, plan(t, "normalize_rackspace", nil))

	content, _ := srv.File(hardening.SudoersPath)
	if content != "Defaults    env_reset\n#Defaults    requiretty\n" {
		t.Fatalf("unexpected sudoers: %q", content)
	}
}

func TestNormalizeRackspaceKeepsSudoersWhenVisudoFails(t *testing.T) {
	original := "Defaults    requiretty\n"
	srv := testutils.NewFakeServer("web", map[string]string{hardening.SudoersPath: original})
	srv.FailWhen = func(argv []string) bool { return len(argv) > 0 && argv[0] == "visudo" }

	runner := task.NewRunner(slog.New(slog.NewTextHandler(io.Discard, nil)))
	err := runner.Run(context.Background(), srv, plan(t, "normalize_rackspace", nil)...)
	if err == nil {
		t.Fatal("expected the visudo check to fail the edit")
	}
	if !srv.Ran("visudo", "-cf") {
		t.Fatalf("expected visudo -cf, got %v", srv.Calls())
	}
	if content, _ := srv.File(hardening.SudoersPath); content != original {
		t.Fatalf("expected sudoers untouched, got %q", content)
	}
}

func TestDisableRootLogin(t *testing.T) {
	srv := testutils.NewFakeServer("web", nil)
	tasks := plan(t, "disable_root_login", nil)

	run(t, srv, tasks)
	if !srv.Locked["root"] {
		t.Fatal("expected root to be locked")
	}

	before := len(srv.Mutations())
	run(t, srv, tasks)
	if len(srv.Mutations()) != before {
		t.Fatal("expected a locked root account to be left alone")
	}
}
