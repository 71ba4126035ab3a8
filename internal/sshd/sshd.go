package sshd

import (
	"context"
	"fmt"

	"github.com/tpodg/serverkit/internal/server"
	"github.com/tpodg/serverkit/internal/task/taskutil"
)

const (
	ConfigPath                = "/etc/ssh/sshd_config"
	KeyPermitRootLogin        = "permitrootlogin"
	KeyPasswordAuthentication = "passwordauthentication"
	ValueNo                   = "no"
	ServiceName               = "ssh"
)

// ReadConfig returns the content of the server's sshd_config.
func ReadConfig(ctx context.Context, s server.Server) (string, error) {
	prefix, err := taskutil.SudoPrefix(ctx, s)
	if err != nil {
		return "", err
	}
	output, missing, err := taskutil.ReadFileIfExists(ctx, s, prefix, ConfigPath)
	if err != nil {
		return "", err
	}
	if missing {
		return "", fmt.Errorf("sshd config not found at %s", ConfigPath)
	}
	return output, nil
}

// EffectiveSettings parses the global settings of the server's sshd_config.
// Keys and values are lower-cased.
func EffectiveSettings(ctx context.Context, s server.Server) (map[string]string, error) {
	content, err := ReadConfig(ctx, s)
	if err != nil {
		return nil, err
	}
	settings, err := taskutil.ParseKeyValueSettings(content)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", ConfigPath, err)
	}
	return settings, nil
}

// Weaknesses lists settings that still allow password or root logins.
// Unset keys are reported because the compiled-in defaults allow both.
func Weaknesses(settings map[string]string) []string {
	var out []string
	if value, ok := settings[KeyPasswordAuthentication]; !ok || value != ValueNo {
		out = append(out, "password authentication is enabled")
	}
	if value, ok := settings[KeyPermitRootLogin]; !ok || value == "yes" {
		out = append(out, "root login with a password is permitted")
	}
	return out
}
