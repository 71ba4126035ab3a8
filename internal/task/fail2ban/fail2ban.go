package fail2ban

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tpodg/serverkit/internal/strutil"
	"github.com/tpodg/serverkit/internal/task"
	"github.com/tpodg/serverkit/internal/task/steps"
	"github.com/tpodg/serverkit/internal/task/taskutil"
)

const (
	JailConfigPath     = "/etc/fail2ban/jail.d/serverkit.conf"
	serviceName        = "fail2ban"
	continuationIndent = "          "
)

type Config struct {
	Jails map[string]Jail `yaml:"fail2ban_jails"`
}

type Jail struct {
	Enabled  *bool          `yaml:"enabled"`
	Filter   string         `yaml:"filter"`
	Port     string         `yaml:"port"`
	LogPath  task.Words     `yaml:"logpath"`
	Backend  string         `yaml:"backend"`
	MaxRetry *int           `yaml:"max_retry"`
	FindTime *time.Duration `yaml:"find_time"`
	BanTime  *time.Duration `yaml:"ban_time"`
	IgnoreIP task.Words     `yaml:"ignore_ip"`
}

// Operations returns the fail2ban operations.
func Operations() []task.Operation {
	return []task.Operation{
		task.OperationFor("install_fail2ban", "Install fail2ban and configure its jails", "install_fail2ban.yaml",
			[]task.Param{{Key: "fail2ban_jails", Description: "jails by name: port, logpath, max_retry, find_time, ban_time, ignore_ip"}},
			buildTasks),
	}
}

func buildTasks(cfg Config, inv task.Invocation) ([]task.Task, error) {
	if len(cfg.Jails) == 0 {
		return nil, &task.MissingParameterError{Operation: inv.Operation, Key: "fail2ban_jails"}
	}
	content, err := RenderJails(cfg.Jails)
	if err != nil {
		return nil, err
	}
	return []task.Task{
		steps.AptInstall(serviceName),
		&steps.WriteFile{
			Path:    JailConfigPath,
			Content: []byte(content),
			Spec:    taskutil.FileSpec{Mode: 0o644, Owner: "root", Group: "root"},
		},
		steps.Run("validate fail2ban configuration", "fail2ban-client", "-t"),
		steps.Service(serviceName, "restart"),
	}, nil
}

// RenderJails renders jails as a jail.d file with sections sorted by name.
func RenderJails(jails map[string]Jail) (string, error) {
	names := make([]string, 0, len(jails))
	for name := range jails {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf strings.Builder
	buf.WriteString("# Managed by serverkit. Manual changes may be overwritten.\n")
	for _, name := range names {
		if err := writeJail(&buf, name, jails[name]); err != nil {
			return "", err
		}
	}
	return buf.String(), nil
}

func writeJail(buf *strings.Builder, name string, jail Jail) error {
	if err := taskutil.ValidateIdentifier("fail2ban jail", name); err != nil {
		return err
	}
	for field, value := range map[string]string{"filter": jail.Filter, "port": jail.Port, "backend": jail.Backend} {
		if err := taskutil.ValidateSingleLine(jailField(name, field), value); err != nil {
			return err
		}
	}
	logPaths := strutil.CleanList(jail.LogPath)
	ignoreIPs := strutil.CleanList(jail.IgnoreIP)

	enabled := jail.Enabled == nil || *jail.Enabled
	fmt.Fprintf(buf, "\n[%s]\n", name)
	fmt.Fprintf(buf, "enabled = %s\n", strconv.FormatBool(enabled))
	writeString(buf, "filter", strings.TrimSpace(jail.Filter))
	writeString(buf, "port", strings.TrimSpace(jail.Port))
	if len(logPaths) > 0 {
		fmt.Fprintf(buf, "logpath = %s\n", logPaths[0])
		for _, path := range logPaths[1:] {
			fmt.Fprintf(buf, "%s%s\n", continuationIndent, path)
		}
	}
	writeString(buf, "backend", strings.TrimSpace(jail.Backend))
	if jail.MaxRetry != nil {
		if *jail.MaxRetry <= 0 {
			return fmt.Errorf("%s must be positive", jailField(name, "max_retry"))
		}
		fmt.Fprintf(buf, "maxretry = %d\n", *jail.MaxRetry)
	}
	for _, d := range []struct {
		key, field string
		value      *time.Duration
	}{
		{"findtime", "find_time", jail.FindTime},
		{"bantime", "ban_time", jail.BanTime},
	} {
		if d.value == nil {
			continue
		}
		if *d.value <= 0 || *d.value%time.Second != 0 {
			return fmt.Errorf("%s must be a positive number of whole seconds", jailField(name, d.field))
		}
		fmt.Fprintf(buf, "%s = %d\n", d.key, int64(*d.value/time.Second))
	}
	writeString(buf, "ignoreip", strings.Join(ignoreIPs, " "))
	return nil
}

func writeString(buf *strings.Builder, key, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(buf, "%s = %s\n", key, value)
}

func jailField(jail, field string) string {
	return fmt.Sprintf("fail2ban jail %q %s", jail, field)
}
