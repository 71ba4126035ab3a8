package web

import (
	"fmt"
	"path"

	"github.com/tpodg/serverkit/internal/strutil"
	"github.com/tpodg/serverkit/internal/task"
	"github.com/tpodg/serverkit/internal/task/steps"
	"github.com/tpodg/serverkit/internal/task/taskutil"
)

const (
	NginxConfigPath = "/etc/nginx/nginx.conf"
	CertsDir        = "/etc/nginx/certs"
	nginxPPA        = "ppa:nginx/stable"
)

type NginxConfig struct {
	NginxConf string `yaml:"nginx_conf"`
}

type SSLConfig struct {
	Hostname string `yaml:"hostname"`
	Days     int    `yaml:"days"`
}

type PHPConfig struct {
	PHPIni      string     `yaml:"php_ini"`
	PHPService  string     `yaml:"php_service"`
	PHPPPA      string     `yaml:"php_ppa"`
	PHPPackages task.Words `yaml:"php_packages"`
}

// phpHardening lists literal php.ini substitutions applied by install_php.
var phpHardening = [][2]string{
	{";cgi.fix_pathinfo=1", "cgi.fix_pathinfo=0"},
	{"; allow_call_time_pass_reference", "allow_call_time_pass_reference = Off"},
	{"; display_errors", "display_errors = Off"},
	{"; html_errors", "html_errors = Off"},
	{"; magic_quotes_gpc", "magic_quotes_gpc = Off"},
	{"; log_errors", "log_errors = On"},
}

var nginxParams = []task.Param{{Key: "nginx_conf", Description: "local nginx.conf template"}}

// Operations returns the web server operations.
func Operations() []task.Operation {
	return []task.Operation{
		task.OperationFor("install_nginx", "Install Nginx from the stable PPA and configure it", "nginx.yaml", nginxParams,
			func(cfg NginxConfig, inv task.Invocation) ([]task.Task, error) {
				return append([]task.Task{
					steps.AddRepository(nginxPPA),
					steps.AptUpdate(),
					steps.AptInstall("nginx"),
				}, configureNginx(cfg, inv)...), nil
			}),
		task.OperationFor("configure_nginx", "Upload nginx.conf and restart Nginx", "nginx.yaml", nginxParams,
			func(cfg NginxConfig, inv task.Invocation) ([]task.Task, error) {
				return configureNginx(cfg, inv), nil
			}),
		task.OperationFor("generate_selfsigned_ssl", "Generate a self-signed certificate for Nginx", "generate_selfsigned_ssl.yaml",
			[]task.Param{
				{Key: "hostname", Description: "certificate common name and file name"},
				{Key: "days", Description: "validity in days"},
			},
			buildSelfSigned),
		task.OperationFor("install_php", "Install PHP FastCGI for Nginx", "install_php.yaml",
			[]task.Param{
				{Key: "php_ini", Description: "php.ini to harden"},
				{Key: "php_service", Description: "service restarted after hardening"},
				{Key: "php_ppa", Description: "repository providing the PHP packages"},
				{Key: "php_packages", Description: "packages to install"},
			},
			buildPHP),
	}
}

func configureNginx(cfg NginxConfig, inv task.Invocation) []task.Task {
	return []task.Task{
		&steps.Template{Source: cfg.NginxConf, Dest: NginxConfigPath, Data: inv.TemplateData()},
		steps.Run("validate nginx configuration", "nginx", "-t"),
		steps.Service("nginx", "restart"),
	}
}

// CertificatePaths returns the key and certificate paths for hostname.
func CertificatePaths(hostname string) (string, string) {
	return path.Join(CertsDir, hostname+".key"), path.Join(CertsDir, hostname+".crt")
}

func buildSelfSigned(cfg SSLConfig, inv task.Invocation) ([]task.Task, error) {
	if err := taskutil.ValidateIdentifier("hostname", cfg.Hostname); err != nil {
		return nil, err
	}
	if cfg.Days <= 0 {
		return nil, fmt.Errorf("days must be positive, got %d", cfg.Days)
	}
	keyPath, certPath := CertificatePaths(cfg.Hostname)
	return []task.Task{
		steps.Mkdir(CertsDir),
		&steps.Command{
			Desc: "generate self-signed certificate " + certPath,
			Argv: []string{
				"openssl", "req", "-x509", "-nodes",
				"-newkey", "rsa:2048",
				"-days", fmt.Sprint(cfg.Days),
				"-subj", "/CN=" + cfg.Hostname,
				"-keyout", keyPath,
				"-out", certPath,
			},
			Unless: []string{"test", "-f", certPath},
		},
		steps.Run("restrict "+keyPath, "chmod", "600", keyPath),
	}, nil
}

func buildPHP(cfg PHPConfig, inv task.Invocation) ([]task.Task, error) {
	packages := strutil.CleanList(cfg.PHPPackages)
	if len(packages) == 0 {
		return nil, &task.MissingParameterError{Operation: inv.Operation, Key: "php_packages"}
	}
	if err := taskutil.ValidateIdentifier("service", cfg.PHPService); err != nil {
		return nil, err
	}

	edits := steps.Edits{Strict: inv.Strict}
	var tasks []task.Task
	if cfg.PHPPPA != "" {
		tasks = append(tasks, steps.AddRepository(cfg.PHPPPA), steps.AptUpdate())
	}
	tasks = append(tasks,
		steps.AptInstall(packages...),
		// The PHP packages pull in apache2, which must not start at boot.
		steps.Run("disable apache2 at boot", "update-rc.d", "-f", "apache2", "remove"),
	)
	for _, sub := range phpHardening {
		tasks = append(tasks, edits.Replace(cfg.PHPIni, sub[0], sub[1]))
	}
	tasks = append(tasks, steps.Service(cfg.PHPService, "restart"))
	return tasks, nil
}
