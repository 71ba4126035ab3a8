package mail_test

import (
	"context"
	"testing"

	"github.com/tpodg/serverkit/internal/task"
	"github.com/tpodg/serverkit/internal/task/mail"
	"github.com/tpodg/serverkit/internal/testutils"
	tasktests "github.com/tpodg/serverkit/internal/testutils/task"
)

func apply(t *testing.T, srv *testutils.FakeServer, key string, ambient map[string]any) {
	t.Helper()
	tasks := tasktests.Plan(t, mail.Operations(), key, nil, ambient, task.Invocation{})
	tasktests.Run(t, context.Background(), srv, tasks)
}

func TestInstallSendmail(t *testing.T) {
	srv := testutils.NewFakeServer("web", map[string]string{mail.AliasesPath: "postmaster:    root\n"})

	apply(t, srv, "install_sendmail", map[string]any{"email": "ops@example.com"})

	if content, _ := srv.File(mail.AliasesPath); content != "postmaster:    root\nroot:           ops@example.com\n" {
		t.Fatalf("unexpected aliases: %q", content)
	}
	if !srv.Packages["sendmail"] || !srv.Ran("newaliases") {
		t.Fatalf("expected sendmail install and newaliases, got %v", tasktests.Commands(srv))
	}
}

func TestInstallSendmailRejectsBadEmail(t *testing.T) {
	op := mail.Operations()[0]
	if _, err := op.Plan(map[string]any{"email": "ops@example.com>\nroot: attacker@example.com"}, nil, task.Invocation{}); err == nil {
		t.Fatal("expected error for invalid email, got nil")
	}
}

func TestInstallRKHunter(t *testing.T) {
	original := "#MAIL-ON-WARNING=me@mydomain   root@mydomain\n" +
		"#ALLOWHIDDENDIR=/dev/.udev\n" +
		"#ALLOWHIDDENDIR=/dev/.static\n" +
		"#ALLOWHIDDENDIR=/dev/.initramfs\n"
	srv := testutils.NewFakeServer("web", map[string]string{mail.RKHunterPath: original})

	apply(t, srv, "install_rkhunter", map[string]any{"email": "ops@example.com"})

	want := "MAIL-ON-WARNING=ops@example.com\n" +
		"ALLOWHIDDENDIR=/dev/.udev\n" +
		"ALLOWHIDDENDIR=/dev/.static\n" +
		"ALLOWHIDDENDIR=/dev/.initramfs\n"
	if content, _ := srv.File(mail.RKHunterPath); content != want {
		t.Fatalf("unexpected rkhunter.conf: %q", content)
	}

	warnings := tasktests.CaptureWarnings(t)
	before := len(srv.Mutations())
	apply(t, srv, "install_rkhunter", map[string]any{"email": "ops@example.com"})
	if warnings.Len() != 0 {
		t.Fatalf("expected a clean re-run, got %q", warnings.String())
	}
	if len(srv.Mutations()) != before {
		t.Fatal("expected a re-run to change nothing")
	}
}
