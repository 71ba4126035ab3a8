package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/tpodg/serverkit/internal/app"
	"github.com/tpodg/serverkit/internal/config"
	"github.com/tpodg/serverkit/internal/task"
	"github.com/tpodg/serverkit/internal/task/catalog"
	"github.com/tpodg/serverkit/internal/testutils"
)

func newTestApp(t *testing.T, cfg *config.Config) *app.App {
	t.Helper()

	c, err := task.NewCatalog(catalog.Builtins()...)
	if err != nil {
		t.Fatalf("NewCatalog failed: %v", err)
	}
	return &app.App{
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Config:  cfg,
		Console: &testutils.ScriptedConsole{},
		Catalog: c,
	}
}

func startRootServer(t *testing.T) (*testutils.LocalSSHServer, config.ServerConfig) {
	t.Helper()

	local := testutils.StartSSHServer(t, func(command string, _ io.Reader) (string, int) {
		if command == "id -u" {
			return "0\n", 0
		}
		return "", 0
	})
	noAgent := false
	return local, config.ServerConfig{
		Name:           "web1",
		Address:        local.Address,
		User:           config.UserConfig{Name: local.User, SSHKey: local.KeyPath},
		KnownHostsPath: local.KnownHostsPath,
		UseAgent:       &noAgent,
	}
}

func TestRunOperation(t *testing.T) {
	local, s := startRootServer(t)
	cfg := &config.Config{
		Servers:  []config.ServerConfig{s},
		Settings: config.Settings{"rules": []any{"allow ssh"}},
	}
	kitApp := newTestApp(t, cfg)

	srv := newServer(s)
	err := runOperation(context.Background(), kitApp, s, srv, dialer(cfg, srv), "configure_ufw",
		runOptions{Sets: []string{"rules=[limit 22/tcp]"}})
	if err != nil {
		t.Fatalf("runOperation failed: %v", err)
	}

	want := []string{"ufw --force reset", "ufw limit 22/tcp", "ufw --force enable", "ufw status verbose"}
	var got []string
	for _, command := range local.Commands() {
		if command != "id -u" {
			got = append(got, command)
		}
	}
	if strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Fatalf("unexpected commands:\n got %q\nwant %q", got, want)
	}
}

func TestRunOperationMissingParameter(t *testing.T) {
	local, s := startRootServer(t)
	cfg := &config.Config{Servers: []config.ServerConfig{s}}
	kitApp := newTestApp(t, cfg)

	srv := newServer(s)
	err := runOperation(context.Background(), kitApp, s, srv, dialer(cfg, srv), "configure_ufw", runOptions{})
	var missing *task.MissingParameterError
	if !errors.As(err, &missing) || missing.Key != "rules" {
		t.Fatalf("expected MissingParameterError for rules, got %v", err)
	}
	if commands := local.Commands(); len(commands) != 0 {
		t.Fatalf("expected no remote commands, got %v", commands)
	}
}

func TestRunOperationUnknown(t *testing.T) {
	kitApp := newTestApp(t, &config.Config{})
	err := runOperation(context.Background(), kitApp, config.ServerConfig{}, nil, nil, "install_everything", runOptions{})
	if err == nil || !strings.Contains(err.Error(), "unknown operation") {
		t.Fatalf("expected unknown operation error, got %v", err)
	}
}

func TestResolveTarget(t *testing.T) {
	cfg := &config.Config{Servers: []config.ServerConfig{
		{Name: "web1", Address: "10.0.0.5", User: config.UserConfig{Name: "admin"}},
		{Name: "db1", Address: "10.0.0.6", User: config.UserConfig{Name: "admin"}},
	}}

	tests := []struct {
		name    string
		target  string
		address string
		user    string
		wantErr bool
	}{
		{name: "configured", target: "db1", address: "10.0.0.6", user: "admin"},
		{name: "host string", target: "root@203.0.113.7:2222", address: "203.0.113.7:2222", user: "root"},
		{name: "ambiguous", target: "", wantErr: true},
		{name: "no user", target: "203.0.113.7", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := resolveTarget(cfg, tt.target)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if s.Address != tt.address || s.User.Name != tt.user {
				t.Fatalf("unexpected server %+v", s)
			}
		})
	}

	single := &config.Config{Servers: cfg.Servers[:1]}
	if s, err := resolveTarget(single, ""); err != nil || s.Name != "web1" {
		t.Fatalf("expected the only server, got %+v, %v", s, err)
	}
}

func TestDialer(t *testing.T) {
	cfg := &config.Config{Servers: []config.ServerConfig{
		{Name: "hq", Address: "10.0.0.1", User: config.UserConfig{Name: "munin"}},
	}}
	primary := newServer(config.ServerConfig{Name: "web1", Address: "10.0.0.5", User: config.UserConfig{Name: "admin"}})
	dial := dialer(cfg, primary)

	hq, err := dial("hq")
	if err != nil || hq.Address() != "10.0.0.1" {
		t.Fatalf("expected the configured hq, got %v, %v", hq, err)
	}
	other, err := dial("10.0.0.9:22")
	if err != nil || other.Address() != "10.0.0.9:22" || other.ID() != "10.0.0.9:22" {
		t.Fatalf("unexpected ad-hoc server %v, %v", other, err)
	}
	if _, err := dial(""); err == nil {
		t.Fatal("expected error for an empty host string, got nil")
	}
}

func TestWriteOperations(t *testing.T) {
	kitApp := newTestApp(t, &config.Config{})
	var buf bytes.Buffer
	if err := writeOperations(&buf, kitApp.Catalog); err != nil {
		t.Fatalf("writeOperations failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != len(kitApp.Catalog.Operations()) {
		t.Fatalf("expected one line per operation, got %d", len(lines))
	}
	if !strings.HasPrefix(lines[0], "add_to_bacula_master ") {
		t.Fatalf("expected sorted output, got %q", lines[0])
	}
}

func TestDescribeOperation(t *testing.T) {
	kitApp := newTestApp(t, &config.Config{})
	op, err := kitApp.Catalog.Lookup("install_php")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}

	var buf bytes.Buffer
	if err := describeOperation(&buf, op); err != nil {
		t.Fatalf("describeOperation failed: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"install_php:", "php_service", "php5-fpm", "[php5-fpm php5-curl php5-mysql php5-gd]"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in:\n%s", want, out)
		}
	}

	op, _ = kitApp.Catalog.Lookup("configure_ufw")
	buf.Reset()
	if err := describeOperation(&buf, op); err != nil {
		t.Fatalf("describeOperation failed: %v", err)
	}
	if !strings.Contains(buf.String(), "(required)") {
		t.Errorf("expected rules to be marked required:\n%s", buf.String())
	}
}
