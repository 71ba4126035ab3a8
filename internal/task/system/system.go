package system

import (
	"fmt"
	"io/fs"
	"net"
	"path"
	"regexp"

	"github.com/tpodg/serverkit/internal/strutil"
	"github.com/tpodg/serverkit/internal/task"
	"github.com/tpodg/serverkit/internal/task/steps"
	"github.com/tpodg/serverkit/internal/task/taskutil"
)

const (
	HostsPath         = "/etc/hosts"
	HostnamePath      = "/etc/hostname"
	LocaltimePath     = "/etc/localtime"
	UnattendedPath    = "/etc/apt/apt.conf.d/50unattended-upgrades"
	PeriodicPath      = "/etc/apt/apt.conf.d/10periodic"
	MdadmConfigPath   = "/etc/mdadm/mdadm.conf"
	SmartmontoolsPath = "/etc/default/smartmontools"
	zoneinfoRoot      = "/usr/share/zoneinfo"
	hostnameMaxLength = 253
)

const publicFileMode fs.FileMode = 0o644

var hostnamePattern = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9-]*[A-Za-z0-9])?(\.[A-Za-z0-9]([A-Za-z0-9-]*[A-Za-z0-9])?)*$`)

type HostnameConfig struct {
	ServerIP string `yaml:"server_ip"`
	Hostname string `yaml:"hostname"`
}

type TimeConfig struct {
	Timezone string `yaml:"timezone"`
}

type LibsConfig struct {
	Packages       task.Words `yaml:"packages"`
	AdditionalLibs task.Words `yaml:"additional_libs"`
}

type EmailConfig struct {
	Email string `yaml:"email"`
}

var emailParams = []task.Param{{Key: "email", Required: true, Description: "address receiving notifications"}}

// Operations returns the base system operations.
func Operations() []task.Operation {
	return []task.Operation{
		task.OperationFor("set_hostname", "Set the server's hostname", "",
			[]task.Param{
				{Key: "server_ip", Required: true, Description: "public IP address"},
				{Key: "hostname", Required: true, Description: "fully qualified hostname"},
			},
			buildHostname),
		task.OperationFor("set_system_time", "Set the timezone and install ntp", "set_system_time.yaml",
			[]task.Param{{Key: "timezone", Description: "zoneinfo file copied to /etc/localtime"}},
			buildSystemTime),
		task.OperationFor("install_system_libs", "Install build tools and common libraries", "install_system_libs.yaml",
			[]task.Param{
				{Key: "packages", Description: "base package list"},
				{Key: "additional_libs", Description: "extra packages, list or space separated"},
			},
			buildSystemLibs),
		task.OperationFor("install_unattended_upgrades", "Install security updates automatically", "", emailParams,
			buildUnattendedUpgrades),
		task.OperationFor("raid_monitoring", "Mail RAID and SMART alerts", "", emailParams,
			buildRaidMonitoring),
	}
}

func buildHostname(cfg HostnameConfig, inv task.Invocation) ([]task.Task, error) {
	if net.ParseIP(cfg.ServerIP) == nil {
		return nil, fmt.Errorf("server_ip %q is not an IP address", cfg.ServerIP)
	}
	if len(cfg.Hostname) > hostnameMaxLength || !hostnamePattern.MatchString(cfg.Hostname) {
		return nil, fmt.Errorf("hostname %q is not a valid hostname", cfg.Hostname)
	}

	edits := steps.Edits{Strict: inv.Strict}
	return []task.Task{
		edits.Append(HostsPath, fmt.Sprintf("%s %s", cfg.ServerIP, cfg.Hostname)),
		&steps.WriteFile{
			Path:    HostnamePath,
			Content: []byte(cfg.Hostname + "\n"),
			Spec:    taskutil.FileSpec{Mode: publicFileMode},
		},
		steps.Run("apply hostname "+cfg.Hostname, "hostname", cfg.Hostname),
	}, nil
}

func buildSystemTime(cfg TimeConfig, inv task.Invocation) ([]task.Task, error) {
	zone := path.Clean(cfg.Timezone)
	if !path.IsAbs(zone) {
		zone = path.Join(zoneinfoRoot, zone)
	}
	return []task.Task{
		&steps.Command{
			Desc:   "set timezone " + zone,
			Argv:   []string{"cp", zone, LocaltimePath},
			Unless: []string{"cmp", "-s", zone, LocaltimePath},
		},
		steps.AptInstall("ntp"),
	}, nil
}

func buildSystemLibs(cfg LibsConfig, inv task.Invocation) ([]task.Task, error) {
	packages := strutil.CleanList(append(append([]string(nil), cfg.Packages...), cfg.AdditionalLibs...))
	if len(packages) == 0 {
		return nil, nil
	}
	for _, pkg := range packages {
		if err := taskutil.ValidateIdentifier("package", pkg); err != nil {
			return nil, err
		}
	}
	return []task.Task{steps.AptInstall(packages...)}, nil
}

func buildUnattendedUpgrades(cfg EmailConfig, inv task.Invocation) ([]task.Task, error) {
	if err := taskutil.ValidateEmail("email", cfg.Email); err != nil {
		return nil, err
	}
	edits := steps.Edits{Strict: inv.Strict}
	return []task.Task{
		steps.AptInstall("unattended-upgrades"),
		edits.Replace(UnattendedPath,
			`//Unattended-Upgrade::Mail "root@localhost";`,
			fmt.Sprintf(`Unattended-Upgrade::Mail "%s";`, cfg.Email)),
		edits.Replace(PeriodicPath,
			`APT::Periodic::Download-Upgradeable-Packages "0";`,
			`APT::Periodic::Download-Upgradeable-Packages "1";`),
		edits.Replace(PeriodicPath,
			`APT::Periodic::AutocleanInterval "0";`,
			`APT::Periodic::AutocleanInterval "7";`),
		edits.Append(PeriodicPath, `APT::Periodic::Unattended-Upgrade "1";`),
	}, nil
}

func buildRaidMonitoring(cfg EmailConfig, inv task.Invocation) ([]task.Task, error) {
	if err := taskutil.ValidateEmail("email", cfg.Email); err != nil {
		return nil, err
	}
	edits := steps.Edits{Strict: inv.Strict}
	return []task.Task{
		edits.Append(MdadmConfigPath, "MAILADDR "+cfg.Email),
		steps.AptInstall("smartmontools"),
		edits.Uncomment(SmartmontoolsPath, "#start_smartd=yes"),
	}, nil
}
