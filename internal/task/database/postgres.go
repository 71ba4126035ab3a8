package database

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/tpodg/serverkit/internal/strutil"
	"github.com/tpodg/serverkit/internal/task"
	"github.com/tpodg/serverkit/internal/task/steps"
	"github.com/tpodg/serverkit/internal/task/taskutil"
)

const (
	PostgresBackupDir  = "/var/backups/postgresql"
	PostgresCronPath   = "/etc/cron.d/pg_dump"
	PgpassPath         = "/root/.pgpass"
	postgresUser       = "postgres"
	temporaryIdentLine = "local all postgres ident"
)

// setPasswordScript reads the password from its input and lets psql quote
// it through the :'pw' variable. Terse errors keep the statement out of the
// output.
const setPasswordScript = `IFS= read -r pw && printf '%s\n' "ALTER USER postgres WITH ENCRYPTED PASSWORD :'pw';" | ` +
	`psql -X -q -v ON_ERROR_STOP=1 -v VERBOSITY=terse -v pw="$pw" template1`

var versionPattern = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)

type PostgresConfig struct {
	PostgresVersion string `yaml:"postgres_version"`
	PostgresService string `yaml:"postgres_service"`
}

func (c PostgresConfig) validate() error {
	if !versionPattern.MatchString(c.PostgresVersion) {
		return fmt.Errorf("postgres_version %q is not a version number", c.PostgresVersion)
	}
	if c.PostgresService != "" {
		return taskutil.ValidateIdentifier("service", c.PostgresService)
	}
	return nil
}

// service defaults to the per-version init script name.
func (c PostgresConfig) service() string {
	if c.PostgresService != "" {
		return c.PostgresService
	}
	return "postgresql-" + c.PostgresVersion
}

func (c PostgresConfig) configDir() string {
	return path.Join("/etc/postgresql", c.PostgresVersion, "main")
}

func (c PostgresConfig) hbaPath() string {
	return path.Join(c.configDir(), "pg_hba.conf")
}

func (c PostgresConfig) confPath() string {
	return path.Join(c.configDir(), "postgresql.conf")
}

var postgresParams = []task.Param{
	{Key: "postgres_version", Description: "major version, selects /etc/postgresql/<version>/main"},
	{Key: "postgres_service", Description: "service name (default postgresql-<version>)"},
}

func postgresOperations() []task.Operation {
	return []task.Operation{
		task.OperationFor("install_postgres", "Install, configure and initialize PostgreSQL", "postgres.yaml", postgresParams,
			func(cfg PostgresConfig, inv task.Invocation) ([]task.Task, error) {
				if err := cfg.validate(); err != nil {
					return nil, err
				}
				tasks := []task.Task{steps.AptInstall("postgresql", "libpq-dev")}
				tasks = append(tasks, configurePostgres(cfg, inv)...)
				return append(tasks, initializePostgres(cfg, inv)...), nil
			}),
		task.OperationFor("configure_postgres", "Tune pg_hba.conf and postgresql.conf and restart", "postgres.yaml", postgresParams,
			func(cfg PostgresConfig, inv task.Invocation) ([]task.Task, error) {
				if err := cfg.validate(); err != nil {
					return nil, err
				}
				return configurePostgres(cfg, inv), nil
			}),
		task.OperationFor("initialize_postgres", "Set the postgres password and schedule daily dumps", "postgres.yaml", postgresParams,
			func(cfg PostgresConfig, inv task.Invocation) ([]task.Task, error) {
				if err := cfg.validate(); err != nil {
					return nil, err
				}
				return initializePostgres(cfg, inv), nil
			}),
	}
}

func configurePostgres(cfg PostgresConfig, inv task.Invocation) []task.Task {
	edits := steps.Edits{Strict: inv.Strict}
	return []task.Task{
		edits.Comment(cfg.hbaPath(), "local   all         postgres                          ident"),
		edits.Replace(cfg.hbaPath(),
			"local   all         all                               ident",
			"local   all         all                               md5"),
		edits.Uncomment(cfg.confPath(), "#autovacuum = on"),
		edits.Uncomment(cfg.confPath(), "#track_activities = on"),
		edits.Uncomment(cfg.confPath(), "#track_counts = on"),
		edits.Replace(cfg.confPath(), "#listen_addresses", "listen_addresses"),
		steps.Service(cfg.service(), "restart"),
	}
}

func initializePostgres(cfg PostgresConfig, inv task.Invocation) []task.Task {
	password := steps.NewValue("postgres password")
	// The backup is restored at the end, dropping the temporary rule. A
	// leftover backup means an earlier run stopped before restoring it and the
	// rule is already in place.
	prepend := `cp -p "$1" "$1.bak" && { printf '%s\n' "$2"; cat "$1.bak"; } > "$1"`
	backup := cfg.hbaPath() + ".bak"

	return []task.Task{
		&steps.Command{
			Desc:   "temporarily allow local ident access for postgres",
			Argv:   strutil.Script(prepend, cfg.hbaPath(), temporaryIdentLine),
			Unless: []string{"test", "-e", backup},
		},
		steps.Service(cfg.service(), "restart"),
		steps.Secret(inv.Console, "Enter a new database password for user `postgres`:", password),
		&steps.Deferred{
			Desc: "set postgres password",
			Build: func() (task.Task, error) {
				value, err := password.Get()
				if err != nil {
					return nil, err
				}
				return &steps.Command{
					Desc:   "set postgres password",
					Argv:   strutil.Script(setPasswordScript),
					AsUser: postgresUser,
					Input:  value + "\n",
				}, nil
			},
		},
		steps.Mkdir(PostgresBackupDir),
		&steps.Deferred{
			Desc: "write " + PgpassPath,
			Build: func() (task.Task, error) {
				value, err := password.Get()
				if err != nil {
					return nil, err
				}
				return &steps.WriteFile{
					Path:    PgpassPath,
					Content: []byte("localhost:*:*:postgres:" + escapePgpass(value) + "\n"),
					Spec:    taskutil.FileSpec{Mode: secretFileMode, Owner: "root", Group: "root"},
				}, nil
			},
		},
		steps.CronJob(PostgresCronPath, "0 7 * * *", "root",
			"pg_dumpall --username postgres --file "+PostgresBackupDir+"/postgresql_$(date +%Y-%m-%d).dump"),
		steps.Shell("restore "+cfg.hbaPath(), `mv "$1" "$2"`, backup, cfg.hbaPath()),
		steps.Service(cfg.service(), "restart"),
	}
}

// escapePgpass escapes the field separator and backslash of a .pgpass entry.
func escapePgpass(value string) string {
	return strings.NewReplacer(`\`, `\\`, ":", `\:`).Replace(value)
}
