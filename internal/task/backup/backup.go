package backup

import (
	"io/fs"
	"path/filepath"

	"github.com/tpodg/serverkit/internal/task"
	"github.com/tpodg/serverkit/internal/task/steps"
	"github.com/tpodg/serverkit/internal/task/taskutil"
)

const (
	BaculaDir        = "/etc/bacula"
	BaculaClientsDir = "/etc/bacula/clients"
	baculaPPA        = "ppa:mario-sitz/ppa"
	directorService  = "bacula-director"
	placeholderConf  = "remove_me_once_deployed.conf"

	DuplicityFileListPath = "/etc/duplicityfilelist.conf"
	DuplicityScriptPath   = "/usr/sbin/duplicity.sh"
	DuplicityCronPath     = "/etc/cron.d/duplicity"

	scriptMode fs.FileMode = 0o755
)

// masterFiles are the director configuration files rendered from
// <path>/etc/ into /etc/bacula/.
var masterFiles = []string{
	"bacula-dir.conf",
	"bacula-sd.conf",
	"bconsole.conf",
	"pool_defaults.conf",
	"pool_full_defaults.conf",
	"pool_diff_defaults.conf",
	"pool_inc_defaults.conf",
}

type PathConfig struct {
	Path string `yaml:"path"`
}

type MasterConfig struct {
	Shortname        string `yaml:"shortname"`
	Path             string `yaml:"path"`
	BaculaHostString string `yaml:"bacula_host_string"`
}

type HetznerConfig struct {
	DuplicityFileList string `yaml:"duplicityfilelist"`
	DuplicitySh       string `yaml:"duplicitysh"`
}

var pathParams = []task.Param{{Key: "path", Required: true, Description: "project directory holding the etc/ templates"}}

// Operations returns the backup operations.
func Operations() []task.Operation {
	return []task.Operation{
		task.OperationFor("install_bacula_master", "Install the Bacula director and storage daemon", "", pathParams,
			func(cfg PathConfig, inv task.Invocation) ([]task.Task, error) {
				if cfg.Path == "" {
					return nil, &task.MissingParameterError{Operation: inv.Operation, Key: "path"}
				}
				return append([]task.Task{
					steps.AddRepository(baculaPPA),
					steps.AptUpdate(),
					steps.AptInstall("bacula-console", "bacula-director-pgsql", "bacula-sd-pgsql"),
					steps.Mkdir(BaculaClientsDir),
					&steps.Command{
						Desc:   "create client placeholder",
						Argv:   []string{"touch", filepath.Join(BaculaClientsDir, placeholderConf)},
						Unless: []string{"test", "-e", filepath.Join(BaculaClientsDir, placeholderConf)},
					},
					steps.Run("hand "+BaculaClientsDir+" to bacula", "chown", "-R", "bacula", BaculaClientsDir),
				}, configureMaster(cfg, inv)...), nil
			}),
		task.OperationFor("configure_bacula_master", "Upload the Bacula director configuration", "", pathParams,
			func(cfg PathConfig, inv task.Invocation) ([]task.Task, error) {
				if cfg.Path == "" {
					return nil, &task.MissingParameterError{Operation: inv.Operation, Key: "path"}
				}
				return configureMaster(cfg, inv), nil
			}),
		task.OperationFor("install_bacula_client", "Install the Bacula file daemon", "", pathParams,
			func(cfg PathConfig, inv task.Invocation) ([]task.Task, error) {
				if cfg.Path == "" {
					return nil, &task.MissingParameterError{Operation: inv.Operation, Key: "path"}
				}
				return append([]task.Task{
					steps.AddRepository(baculaPPA),
					steps.AptUpdate(),
					steps.AptInstall("bacula-fd"),
				}, configureClient(cfg, inv)...), nil
			}),
		task.OperationFor("configure_bacula_client", "Upload the Bacula file daemon configuration", "", pathParams,
			func(cfg PathConfig, inv task.Invocation) ([]task.Task, error) {
				if cfg.Path == "" {
					return nil, &task.MissingParameterError{Operation: inv.Operation, Key: "path"}
				}
				return configureClient(cfg, inv), nil
			}),
		task.OperationFor("add_to_bacula_master", "Register this server with the Bacula director", "",
			[]task.Param{
				{Key: "shortname", Required: true, Description: "client name on the director"},
				{Key: "path", Required: true, Description: "project directory holding etc/bacula-master.conf"},
				{Key: "bacula_host_string", Required: true, Description: "director host (user@host:port or a configured server)"},
			},
			buildAddToMaster),
		task.OperationFor("configure_hetzner_backup", "Back up the whole disk with Duplicity", "configure_hetzner_backup.yaml",
			[]task.Param{
				{Key: "duplicityfilelist", Description: "local exclusion list template"},
				{Key: "duplicitysh", Description: "local backup script template"},
			},
			buildHetzner),
	}
}

func templateSource(root, name string) string {
	return filepath.Join(root, "etc", name)
}

func configureMaster(cfg PathConfig, inv task.Invocation) []task.Task {
	tasks := make([]task.Task, 0, len(masterFiles)+1)
	for _, name := range masterFiles {
		tasks = append(tasks, &steps.Template{
			Source: templateSource(cfg.Path, name),
			Dest:   filepath.Join(BaculaDir, name),
			Data:   inv.TemplateData(),
		})
	}
	return append(tasks, steps.Service(directorService, "restart"))
}

func configureClient(cfg PathConfig, inv task.Invocation) []task.Task {
	return []task.Task{
		&steps.Template{
			Source: templateSource(cfg.Path, "bacula-fd.conf"),
			Dest:   filepath.Join(BaculaDir, "bacula-fd.conf"),
			Data:   inv.TemplateData(),
		},
		steps.Service("bacula-fd", "restart"),
	}
}

func buildAddToMaster(cfg MasterConfig, inv task.Invocation) ([]task.Task, error) {
	switch {
	case cfg.Path == "":
		return nil, &task.MissingParameterError{Operation: inv.Operation, Key: "path"}
	case cfg.BaculaHostString == "":
		return nil, &task.MissingParameterError{Operation: inv.Operation, Key: "bacula_host_string"}
	}
	if err := taskutil.ValidateIdentifier("shortname", cfg.Shortname); err != nil {
		return nil, err
	}
	return []task.Task{
		&steps.OnServer{
			HostString: cfg.BaculaHostString,
			Dial:       inv.Dial,
			Runner:     inv.Runner,
			Tasks: []task.Task{
				&steps.Template{
					Source: templateSource(cfg.Path, "bacula-master.conf"),
					Dest:   filepath.Join(BaculaClientsDir, cfg.Shortname+".conf"),
					Data:   inv.TemplateData(),
				},
				steps.Service(directorService, "restart"),
			},
		},
	}, nil
}

func buildHetzner(cfg HetznerConfig, inv task.Invocation) ([]task.Task, error) {
	return []task.Task{
		steps.AptInstall("duplicity", "ncftp"),
		&steps.Template{Source: cfg.DuplicityFileList, Dest: DuplicityFileListPath, Data: inv.TemplateData()},
		&steps.Template{
			Source: cfg.DuplicitySh,
			Dest:   DuplicityScriptPath,
			Data:   inv.TemplateData(),
			Spec:   taskutil.FileSpec{Mode: scriptMode, Owner: "root", Group: "root"},
		},
		steps.CronJob(DuplicityCronPath, "0 8 * * *", "root", DuplicityScriptPath),
		&steps.Confirm{
			Message:   "You need to manually run a full backup first time. Noted?",
			Console:   inv.Console,
			AssumeYes: inv.AssumeYes,
		},
	}, nil
}
