package sshd_test

import (
	"context"
	"reflect"
	"testing"

	"github.com/tpodg/serverkit/internal/sshd"
	"github.com/tpodg/serverkit/internal/testutils"
)

func TestEffectiveSettings(t *testing.T) {
	srv := testutils.NewFakeServer("web", map[string]string{
		sshd.ConfigPath: "PasswordAuthentication no # hardened\nPermitRootLogin no\nAllowUsers alice@*\nMatch User bob\n  PasswordAuthentication yes\n",
	})

	settings, err := sshd.EffectiveSettings(context.Background(), srv)
	if err != nil {
		t.Fatalf("EffectiveSettings failed: %v", err)
	}
	if settings[sshd.KeyPasswordAuthentication] != "no" {
		t.Fatalf("expected password authentication 'no', got %q", settings[sshd.KeyPasswordAuthentication])
	}
	if len(sshd.Weaknesses(settings)) != 0 {
		t.Fatalf("unexpected weaknesses: %v", sshd.Weaknesses(settings))
	}
}

func TestEffectiveSettingsMissingConfig(t *testing.T) {
	srv := testutils.NewFakeServer("web", nil)
	if _, err := sshd.EffectiveSettings(context.Background(), srv); err == nil {
		t.Fatal("expected error for missing config, got nil")
	}
}

func TestWeaknesses(t *testing.T) {
	tests := []struct {
		name     string
		settings map[string]string
		want     []string
	}{
		{name: "defaults", settings: map[string]string{}, want: []string{"password authentication is enabled", "root login with a password is permitted"}},
		{name: "prohibit-password", settings: map[string]string{"passwordauthentication": "no", "permitrootlogin": "prohibit-password"}},
		{name: "root allowed", settings: map[string]string{"passwordauthentication": "no", "permitrootlogin": "yes"}, want: []string{"root login with a password is permitted"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sshd.Weaknesses(tt.settings)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}
