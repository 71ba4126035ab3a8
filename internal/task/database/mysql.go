package database

import (
	"fmt"

	"github.com/tpodg/serverkit/internal/strutil"
	"github.com/tpodg/serverkit/internal/task"
	"github.com/tpodg/serverkit/internal/task/steps"
	"github.com/tpodg/serverkit/internal/task/taskutil"
)

const (
	MySQLBackupDir  = "/var/backups/mysql"
	MySQLCronPath   = "/etc/cron.d/mysqldump"
	mysqlDebconfKey = "mysql-server mysql-server/root_password"
)

type MySQLConfig struct {
	DefaultPassword   string `yaml:"default_password"`
	PHPFastCGIService string `yaml:"php_fastcgi_service"`
}

func mysqlOperation() task.Operation {
	return task.OperationFor("install_mysql", "Install MySQL and schedule daily dumps", "install_mysql.yaml",
		[]task.Param{
			{Key: "default_password", Description: "initial root password, changed during secure installation"},
			{Key: "php_fastcgi_service", Description: "PHP FastCGI service restarted after installation (empty to skip)"},
		},
		buildMySQL)
}

func buildMySQL(cfg MySQLConfig, inv task.Invocation) ([]task.Task, error) {
	if cfg.DefaultPassword == "" {
		return nil, &task.MissingParameterError{Operation: inv.Operation, Key: "default_password"}
	}
	if err := taskutil.ValidateSingleLine("default_password", cfg.DefaultPassword); err != nil {
		return nil, err
	}

	rootPassword := steps.NewValue("mysql root password")

	tasks := []task.Task{
		&steps.Command{
			Desc:  "preseed mysql root password",
			Argv:  []string{"debconf-set-selections"},
			Input: preseedPassword(cfg.DefaultPassword),
		},
		steps.AptInstall("mysql-server", "mysql-client"),
		&steps.Confirm{
			Message: fmt.Sprintf("You will now start with interactive MySQL secure installation. Current root password is '%s'. "+
				"Change it and save the new one to your password manager. Then answer with default answers to all other questions. Ready?",
				cfg.DefaultPassword),
			Console:   inv.Console,
			AssumeYes: inv.AssumeYes,
		},
		&steps.Interactive{Desc: "mysql secure installation", Argv: []string{"/usr/bin/mysql_secure_installation"}},
		steps.Service("mysql", "restart"),
	}
	if cfg.PHPFastCGIService != "" {
		tasks = append(tasks, steps.Service(cfg.PHPFastCGIService, "restart"))
	}
	tasks = append(tasks,
		steps.Mkdir(MySQLBackupDir),
		steps.Secret(inv.Console, "Please enter your mysql root password so I can configure daily backups:", rootPassword),
		&steps.Deferred{
			Desc: "schedule daily mysql dumps",
			Build: func() (task.Task, error) {
				password, err := rootPassword.Get()
				if err != nil {
					return nil, err
				}
				return &steps.WriteFile{
					Desc:    "write " + MySQLCronPath,
					Path:    MySQLCronPath,
					Content: []byte(mysqlDumpCron(password)),
					Spec:    taskutil.FileSpec{Mode: secretFileMode, Owner: "root", Group: "root"},
				}, nil
			},
		},
	)
	return tasks, nil
}

func mysqlDumpCron(password string) string {
	command := strutil.Command("mysqldump", "-u", "root", "-p"+password, "--all-databases") +
		" | gzip > " + MySQLBackupDir + "/mysqldump_$(date +%Y-%m-%d).sql.gz"
	return steps.CronLine("0 7 * * *", "root", command)
}

func preseedPassword(password string) string {
	return fmt.Sprintf("%[1]s password %[2]s\n%[1]s_again password %[2]s\n", mysqlDebconfKey, password)
}
