package hardening

import (
	"context"
	"fmt"
	"strings"

	"github.com/tpodg/serverkit/internal/server"
	"github.com/tpodg/serverkit/internal/sshd"
	"github.com/tpodg/serverkit/internal/task"
	"github.com/tpodg/serverkit/internal/task/steps"
	"github.com/tpodg/serverkit/internal/task/taskutil"
	"github.com/tpodg/serverkit/internal/task/users"
)

const (
	SudoersPath       = "/etc/sudoers"
	requireTTYDefault = "Defaults    requiretty"
)

type SSHDConfig struct {
	Restart bool `yaml:"restart"`
}

type noParams struct{}

// Operations returns the host hardening operations.
func Operations() []task.Operation {
	return []task.Operation{
		task.OperationFor("normalize_rackspace", "Allow sudo without a TTY on Rackspace images", "", nil,
			func(_ noParams, inv task.Invocation) ([]task.Task, error) {
				edits := steps.Edits{Strict: inv.Strict}
				return []task.Task{edits.Comment(SudoersPath, requireTTYDefault).CheckedWith("visudo", "-cf")}, nil
			}),
		task.OperationFor("harden_sshd", "Disable SSH password authentication and root login", "harden_sshd.yaml",
			[]task.Param{{Key: "restart", Description: "reload sshd after editing"}},
			buildHardenSSHD),
		task.OperationFor("disable_root_login", "Lock the root account password", "", nil,
			func(_ noParams, inv task.Invocation) ([]task.Task, error) {
				return []task.Task{&lockRootTask{}}, nil
			}),
	}
}

func buildHardenSSHD(cfg SSHDConfig, inv task.Invocation) ([]task.Task, error) {
	edits := steps.Edits{Strict: inv.Strict}
	tasks := []task.Task{
		edits.Replace(sshd.ConfigPath, "#PasswordAuthentication yes", "PasswordAuthentication no"),
		edits.Replace(sshd.ConfigPath, "PermitRootLogin yes", "PermitRootLogin no"),
		steps.Run("validate sshd configuration", "sshd", "-t"),
	}
	if cfg.Restart {
		tasks = append(tasks, steps.Service(sshd.ServiceName, "reload"))
	}
	tasks = append(tasks, &auditTask{})
	return tasks, nil
}

// auditTask warns when the effective sshd settings still allow password or
// root logins, which happens when the expected lines were absent.
type auditTask struct{}

func (t *auditTask) Name() string {
	return "audit sshd settings"
}

func (t *auditTask) NeedsExecution(ctx context.Context, s server.Server) (bool, error) {
	return true, nil
}

func (t *auditTask) Execute(ctx context.Context, s server.Server) error {
	settings, err := sshd.EffectiveSettings(ctx, s)
	if err != nil {
		return err
	}
	if weaknesses := sshd.Weaknesses(settings); len(weaknesses) > 0 {
		taskutil.Warnf("%s on %s: %s", sshd.ConfigPath, s.ID(), strings.Join(weaknesses, "; "))
	}
	return nil
}

type lockRootTask struct{}

func (t *lockRootTask) Name() string {
	return "lock root password"
}

func (t *lockRootTask) NeedsExecution(ctx context.Context, s server.Server) (bool, error) {
	status, err := users.PasswordStatus(ctx, s, "root")
	if err != nil {
		return false, err
	}
	return status != "L", nil
}

func (t *lockRootTask) Execute(ctx context.Context, s server.Server) error {
	prefix, err := taskutil.SudoPrefix(ctx, s)
	if err != nil {
		return err
	}
	if _, err := taskutil.Run(ctx, s, prefix, "passwd", "--lock", "root"); err != nil {
		return fmt.Errorf("lock root: %w", err)
	}
	return nil
}
