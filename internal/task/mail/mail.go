package mail

import (
	"fmt"

	"github.com/tpodg/serverkit/internal/task"
	"github.com/tpodg/serverkit/internal/task/steps"
	"github.com/tpodg/serverkit/internal/task/taskutil"
)

const (
	AliasesPath       = "/etc/aliases"
	RKHunterPath      = "/etc/rkhunter.conf"
	rkhunterMailOrig  = "#MAIL-ON-WARNING=me@mydomain   root@mydomain"
	rootAliasTemplate = "root:           %s"
)

// Hidden directories created by udev and initramfs on Ubuntu.
var rkhunterHiddenDirs = []string{
	"#ALLOWHIDDENDIR=/dev/.udev",
	"#ALLOWHIDDENDIR=/dev/.static",
	"#ALLOWHIDDENDIR=/dev/.initramfs",
}

type Config struct {
	Email string `yaml:"email"`
}

var emailParams = []task.Param{{Key: "email", Required: true, Description: "maintenance address"}}

// Operations returns the mail related operations.
func Operations() []task.Operation {
	return []task.Operation{
		task.OperationFor("install_sendmail", "Relay system mail for root to the maintenance address", "", emailParams,
			buildSendmail),
		task.OperationFor("install_rkhunter", "Install RootKit Hunter and mail its warnings", "", emailParams,
			buildRKHunter),
	}
}

func buildSendmail(cfg Config, inv task.Invocation) ([]task.Task, error) {
	if err := taskutil.ValidateEmail("email", cfg.Email); err != nil {
		return nil, err
	}
	edits := steps.Edits{Strict: inv.Strict}
	return []task.Task{
		steps.AptInstall("sendmail"),
		edits.Append(AliasesPath, fmt.Sprintf(rootAliasTemplate, cfg.Email)),
		steps.Run("rebuild mail aliases", "newaliases"),
	}, nil
}

func buildRKHunter(cfg Config, inv task.Invocation) ([]task.Task, error) {
	if err := taskutil.ValidateEmail("email", cfg.Email); err != nil {
		return nil, err
	}
	edits := steps.Edits{Strict: inv.Strict}
	tasks := []task.Task{
		steps.AptInstall("rkhunter"),
		edits.Replace(RKHunterPath, rkhunterMailOrig, "MAIL-ON-WARNING="+cfg.Email),
	}
	for _, line := range rkhunterHiddenDirs {
		tasks = append(tasks, edits.Uncomment(RKHunterPath, line))
	}
	return tasks, nil
}
