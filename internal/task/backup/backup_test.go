package backup_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tpodg/serverkit/internal/server"
	"github.com/tpodg/serverkit/internal/task"
	"github.com/tpodg/serverkit/internal/task/backup"
	"github.com/tpodg/serverkit/internal/task/steps"
	"github.com/tpodg/serverkit/internal/testutils"
	tasktests "github.com/tpodg/serverkit/internal/testutils/task"
)

func writeTemplates(t *testing.T, files map[string]string) string {
	t.Helper()

	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "etc"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(root, "etc", name), []byte(content), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return root
}

func TestInstallBaculaMaster(t *testing.T) {
	files := map[string]string{}
	for _, name := range []string{
		"bacula-dir.conf", "bacula-sd.conf", "bconsole.conf", "pool_defaults.conf",
		"pool_full_defaults.conf", "pool_diff_defaults.conf", "pool_inc_defaults.conf",
	} {
		files[name] = "# " + name + " for {{ .hostname }}\n"
	}
	root := writeTemplates(t, files)
	srv := testutils.NewFakeServer("backup", nil)

	tasks := tasktests.Plan(t, backup.Operations(), "install_bacula_master",
		map[string]any{"path": root}, map[string]any{"hostname": "backup1"}, task.Invocation{})
	tasktests.Run(t, context.Background(), srv, tasks)

	for name := range files {
		content, ok := srv.File(filepath.Join(backup.BaculaDir, name))
		if !ok || content != "# "+name+" for backup1\n" {
			t.Fatalf("unexpected %s: %q", name, content)
		}
	}
	commands := tasktests.Commands(srv)
	if commands[0] != "add-apt-repository -y ppa:mario-sitz/ppa" {
		t.Fatalf("expected the PPA first, got %v", commands)
	}
	if !srv.Ran("touch", "/etc/bacula/clients/remove_me_once_deployed.conf") || !srv.Ran("chown", "-R", "bacula", backup.BaculaClientsDir) {
		t.Fatalf("expected the clients directory to be prepared, got %v", commands)
	}
	if commands[len(commands)-1] != "service bacula-director restart" {
		t.Fatalf("expected a director restart last, got %v", commands)
	}
}

func TestConfigureBaculaMasterMissingTemplate(t *testing.T) {
	root := writeTemplates(t, map[string]string{"bacula-dir.conf": "Director {}\n"})
	srv := testutils.NewFakeServer("backup", nil)

	tasks := tasktests.Plan(t, backup.Operations(), "configure_bacula_master", map[string]any{"path": root}, nil, task.Invocation{})
	if err := tasktests.NewRunner().Run(context.Background(), srv, tasks...); err == nil {
		t.Fatal("expected error for a missing template, got nil")
	}
	if srv.Ran("service", "bacula-director", "restart") {
		t.Fatal("expected no restart after a failed upload")
	}
}

func TestPathRequired(t *testing.T) {
	for _, op := range backup.Operations() {
		if op.Key == "configure_hetzner_backup" {
			continue
		}
		_, err := op.Plan(nil, nil, task.Invocation{})
		var missing *task.MissingParameterError
		if !errors.As(err, &missing) {
			t.Fatalf("%s: expected MissingParameterError, got %v", op.Key, err)
		}
	}
}

func TestInstallBaculaClient(t *testing.T) {
	root := writeTemplates(t, map[string]string{"bacula-fd.conf": "FileDaemon { Name = {{ .shortname }}-fd }\n"})
	srv := testutils.NewFakeServer("web1", nil)

	tasks := tasktests.Plan(t, backup.Operations(), "install_bacula_client",
		map[string]any{"path": root}, map[string]any{"shortname": "web1"}, task.Invocation{})
	tasktests.Run(t, context.Background(), srv, tasks)

	if content, _ := srv.File("/etc/bacula/bacula-fd.conf"); content != "FileDaemon { Name = web1-fd }\n" {
		t.Fatalf("unexpected bacula-fd.conf: %q", content)
	}
	if !srv.Packages["bacula-fd"] || !srv.Ran("service", "bacula-fd", "restart") {
		t.Fatalf("expected install and restart, got %v", tasktests.Commands(srv))
	}
}

func TestAddToBaculaMaster(t *testing.T) {
	root := writeTemplates(t, map[string]string{"bacula-master.conf": "Client { Name = {{ .shortname }}-fd }\n"})
	node := testutils.NewFakeServer("web1", nil)
	director := testutils.NewFakeServer("director", nil)
	var dialed string
	dial := func(hostString string) (server.Server, error) {
		dialed = hostString
		return director, nil
	}
	runner := tasktests.NewRunner()

	tasks := tasktests.Plan(t, backup.Operations(), "add_to_bacula_master",
		map[string]any{"shortname": "web1", "path": root, "bacula_host_string": "root@backup.example.com:22"},
		nil, task.Invocation{Dial: dial, Runner: runner})
	if err := runner.Run(context.Background(), node, tasks...); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if dialed != "root@backup.example.com:22" {
		t.Fatalf("unexpected host string %q", dialed)
	}
	if content, _ := director.File("/etc/bacula/clients/web1.conf"); content != "Client { Name = web1-fd }\n" {
		t.Fatalf("unexpected client config: %q", content)
	}
	if !director.Ran("service", "bacula-director", "restart") {
		t.Fatal("expected a director restart")
	}
	if len(node.Mutations()) != 0 {
		t.Fatalf("expected nothing on the client, got %v", tasktests.Commands(node))
	}
}

func TestAddToBaculaMasterRejectsBadShortname(t *testing.T) {
	ops := backup.Operations()
	for _, op := range ops {
		if op.Key != "add_to_bacula_master" {
			continue
		}
		_, err := op.Plan(map[string]any{"shortname": "../web1", "path": "/tmp", "bacula_host_string": "backup"}, nil, task.Invocation{})
		if err == nil {
			t.Fatal("expected error for invalid shortname, got nil")
		}
	}
}

func TestConfigureHetznerBackup(t *testing.T) {
	root := writeTemplates(t, map[string]string{
		"duplicityfilelist.conf": "- /proc\n",
		"duplicity.sh":           "#!/bin/sh\nduplicity / ftp://{{ .hostname }}\n",
	})
	srv := testutils.NewFakeServer("web1", nil)
	console := &testutils.ScriptedConsole{Confirms: []bool{true}}

	tasks := tasktests.Plan(t, backup.Operations(), "configure_hetzner_backup",
		map[string]any{
			"duplicityfilelist": filepath.Join(root, "etc", "duplicityfilelist.conf"),
			"duplicitysh":       filepath.Join(root, "etc", "duplicity.sh"),
		},
		map[string]any{"hostname": "u1.your-backup.de"}, task.Invocation{Console: console})
	tasktests.Run(t, context.Background(), srv, tasks)

	if content, _ := srv.File(backup.DuplicityScriptPath); !strings.Contains(content, "ftp://u1.your-backup.de") {
		t.Fatalf("unexpected duplicity.sh: %q", content)
	}
	executable := false
	for _, call := range srv.Mutations() {
		if strings.Contains(strings.Join(call.Argv, " "), "install -m 755 -o root -g root") &&
			call.Argv[len(call.Argv)-1] == backup.DuplicityScriptPath {
			executable = true
		}
	}
	if !executable {
		t.Fatalf("expected duplicity.sh to be installed executable, got %v", tasktests.Commands(srv))
	}
	if cron, _ := srv.File(backup.DuplicityCronPath); cron != "0 8 * * * root /usr/sbin/duplicity.sh\n" {
		t.Fatalf("unexpected cron entry: %q", cron)
	}
	if asked := console.Asked(); len(asked) != 1 {
		t.Fatalf("expected one confirmation, got %v", asked)
	}
}

func TestConfigureHetznerBackupAssumeYes(t *testing.T) {
	tasks := tasktests.Plan(t, backup.Operations(), "configure_hetzner_backup", nil, nil, task.Invocation{AssumeYes: true})
	confirm, ok := tasks[len(tasks)-1].(*steps.Confirm)
	if !ok {
		t.Fatalf("expected a confirmation last, got %T", tasks[len(tasks)-1])
	}
	needs, err := confirm.NeedsExecution(context.Background(), testutils.NewFakeServer("web1", nil))
	if err != nil || needs {
		t.Fatalf("expected the confirmation to be skipped, got %v, %v", needs, err)
	}
}
