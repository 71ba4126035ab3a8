package users

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/crypto/ssh"

	"github.com/tpodg/serverkit/internal/server"
	"github.com/tpodg/serverkit/internal/sshd"
	"github.com/tpodg/serverkit/internal/strutil"
	"github.com/tpodg/serverkit/internal/task"
	"github.com/tpodg/serverkit/internal/task/steps"
	"github.com/tpodg/serverkit/internal/task/taskutil"
)

type AccountConfig struct {
	Admin           string `yaml:"admin"`
	DefaultPassword string `yaml:"default_password"`
	PublicKey       string `yaml:"public_key"`
}

type AccountsConfig struct {
	Admins          []string          `yaml:"admins"`
	DefaultPassword string            `yaml:"default_password"`
	PublicKeys      map[string]string `yaml:"public_keys"`
}

// Operations returns the account management operations.
func Operations() []task.Operation {
	return []task.Operation{
		task.OperationFor("create_admin_account", "Create an account an admin uses to access the server", "create_admin_account.yaml",
			[]task.Param{
				{Key: "admin", Required: true, Description: "account name"},
				{Key: "default_password", Description: "initial password the admin must change"},
				{Key: "public_key", Description: "SSH public key (prompted when empty)"},
			},
			buildAccount),
		task.OperationFor("create_admin_accounts", "Create accounts for every configured admin", "create_admin_accounts.yaml",
			[]task.Param{
				{Key: "admins", Required: true, Description: "list of account names"},
				{Key: "default_password", Description: "initial password the admins must change"},
				{Key: "public_keys", Description: "map of account name to SSH public key"},
			},
			buildAccounts),
	}
}

func buildAccount(cfg AccountConfig, inv task.Invocation) ([]task.Task, error) {
	return accountTasks(strings.TrimSpace(cfg.Admin), cfg.DefaultPassword, cfg.PublicKey, inv)
}

func buildAccounts(cfg AccountsConfig, inv task.Invocation) ([]task.Task, error) {
	admins := strutil.CleanList(cfg.Admins)
	if len(admins) == 0 {
		return nil, &task.MissingParameterError{Operation: inv.Operation, Key: "admins"}
	}

	var tasks []task.Task
	for _, admin := range admins {
		t, err := accountTasks(admin, cfg.DefaultPassword, cfg.PublicKeys[admin], inv)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t...)
	}

	tasks = append(tasks, &steps.Confirm{
		Message: fmt.Sprintf("Users %s were successfully created. Notify them that they must login and change "+
			"their default password (%s) with the passwd command. Proceed?", strings.Join(admins, ", "), cfg.DefaultPassword),
		Console:   inv.Console,
		AssumeYes: inv.AssumeYes,
	})
	return tasks, nil
}

func accountTasks(name, password, publicKey string, inv task.Invocation) ([]task.Task, error) {
	if err := validateUserName(name); err != nil {
		return nil, err
	}
	if err := taskutil.ValidateSingleLine("default_password", password); err != nil {
		return nil, err
	}
	if password == "" {
		return nil, &task.MissingParameterError{Operation: inv.Operation, Key: "default_password"}
	}

	home := HomeDir(name)
	edits := steps.Edits{Strict: inv.Strict}

	key := steps.NewValue(name + "'s public key")
	var readKey task.Task
	if strings.TrimSpace(publicKey) != "" {
		key.Set(publicKey)
	} else {
		readKey = steps.Prompt(inv.Console, fmt.Sprintf("Paste %s's public key:", name), key)
	}

	tasks := []task.Task{
		&accountTask{name: name},
		&steps.Command{
			Desc:   "create " + SSHDirPath(home),
			Argv:   []string{"install", "-d", "-m", fmt.Sprintf("%o", SSHDirMode), "-o", name, "-g", name, SSHDirPath(home)},
			Unless: []string{"test", "-d", SSHDirPath(home)},
		},
	}
	if readKey != nil {
		tasks = append(tasks, readKey)
	}
	tasks = append(tasks,
		&steps.Deferred{
			Desc: "write " + AuthorizedKeysPath(home),
			Build: func() (task.Task, error) {
				value, err := key.Get()
				if err != nil {
					return nil, err
				}
				line, err := normalizePublicKey(value)
				if err != nil {
					return nil, fmt.Errorf("public key for %s: %w", name, err)
				}
				return &steps.WriteFile{
					Desc:    "write " + AuthorizedKeysPath(home),
					Path:    AuthorizedKeysPath(home),
					Content: []byte(line + "\n"),
					Spec:    taskutil.FileSpec{Mode: AuthorizedKeysMode, Owner: name, Group: name},
				}, nil
			},
		},
		edits.Append(sshd.ConfigPath, fmt.Sprintf("AllowUsers %s@*", name)),
		&groupTask{name: name, group: SudoGroup},
		&passwordTask{name: name, password: password},
	)
	return tasks, nil
}

// normalizePublicKey checks that value is a single authorized_keys entry.
func normalizePublicKey(value string) (string, error) {
	line := strings.TrimSpace(value)
	if err := taskutil.ValidateSingleLine("public_key", line); err != nil {
		return "", err
	}
	if _, _, _, _, err := ssh.ParseAuthorizedKey([]byte(line)); err != nil {
		return "", fmt.Errorf("parse authorized key: %w", err)
	}
	return line, nil
}

type accountTask struct {
	name string
}

func (t *accountTask) Name() string {
	return fmt.Sprintf("create user: %s", t.name)
}

func (t *accountTask) NeedsExecution(ctx context.Context, s server.Server) (bool, error) {
	entry, err := lookupUser(ctx, s, t.name)
	if err != nil {
		return false, err
	}
	return entry == nil, nil
}

func (t *accountTask) Execute(ctx context.Context, s server.Server) error {
	prefix, err := taskutil.SudoPrefix(ctx, s)
	if err != nil {
		return err
	}
	_, err = taskutil.Run(ctx, s, prefix, "adduser", "--disabled-password", "--gecos", "", t.name)
	return err
}

type groupTask struct {
	name  string
	group string
}

func (t *groupTask) Name() string {
	return fmt.Sprintf("add %s to group %s", t.name, t.group)
}

func (t *groupTask) NeedsExecution(ctx context.Context, s server.Server) (bool, error) {
	groups, err := lookupGroups(ctx, s, t.name)
	if err != nil {
		return false, err
	}
	return !groups[t.group], nil
}

func (t *groupTask) Execute(ctx context.Context, s server.Server) error {
	prefix, err := taskutil.SudoPrefix(ctx, s)
	if err != nil {
		return err
	}
	_, err = taskutil.Run(ctx, s, prefix, "gpasswd", "-a", t.name, t.group)
	return err
}

// passwordTask sets the initial password of an account that has none, so a
// re-run never resets a password the admin already changed.
type passwordTask struct {
	name     string
	password string
}

func (t *passwordTask) Name() string {
	return fmt.Sprintf("set initial password: %s", t.name)
}

func (t *passwordTask) NeedsExecution(ctx context.Context, s server.Server) (bool, error) {
	status, err := PasswordStatus(ctx, s, t.name)
	if err != nil {
		return false, err
	}
	return status != "P", nil
}

func (t *passwordTask) Execute(ctx context.Context, s server.Server) error {
	prefix, err := taskutil.SudoPrefix(ctx, s)
	if err != nil {
		return err
	}
	_, err = taskutil.RunWithInput(ctx, s, prefix, t.name+":"+t.password+"\n", "chpasswd")
	return err
}

type userEntry struct {
	home string
}

func lookupUser(ctx context.Context, s server.Server, name string) (*userEntry, error) {
	output, err := s.Execute(ctx, strutil.Command("getent", "passwd", name))
	if err != nil {
		if strings.TrimSpace(output) == "" && server.IsRemoteCommandFailed(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("lookup user %q: %w", name, err)
	}
	line := strings.TrimSpace(output)
	if line == "" {
		return nil, nil
	}
	fields := strings.Split(line, ":")
	if len(fields) < 6 {
		return nil, fmt.Errorf("unexpected passwd entry for %q: %s", name, line)
	}
	return &userEntry{
		home: fields[5],
	}, nil
}

func lookupGroups(ctx context.Context, s server.Server, name string) (map[string]bool, error) {
	output, err := s.Execute(ctx, strutil.Command("id", "-nG", name))
	if err != nil {
		return nil, fmt.Errorf("lookup groups for %q: %w", name, err)
	}
	groups := make(map[string]bool)
	for _, group := range strings.Fields(output) {
		groups[group] = true
	}
	return groups, nil
}

// PasswordStatus returns the second field of `passwd -S`: P (usable
// password), L (locked) or NP (no password).
func PasswordStatus(ctx context.Context, s server.Server, name string) (string, error) {
	prefix, err := taskutil.SudoPrefix(ctx, s)
	if err != nil {
		return "", err
	}
	output, err := taskutil.Run(ctx, s, prefix, "passwd", "-S", name)
	if err != nil {
		return "", fmt.Errorf("password status of %q: %w", name, err)
	}
	fields := strings.Fields(output)
	if len(fields) < 2 {
		return "", fmt.Errorf("unexpected passwd status for %q: %s", name, strings.TrimSpace(output))
	}
	return fields[1], nil
}

func validateUserName(name string) error {
	return taskutil.ValidateIdentifier("user", name)
}
