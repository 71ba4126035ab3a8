package firewall

import (
	"fmt"
	"strings"

	shlex "github.com/anmitsu/go-shlex"

	"github.com/tpodg/serverkit/internal/task"
	"github.com/tpodg/serverkit/internal/task/steps"
)

const ufwCommand = "ufw"

type Config struct {
	Rules []string `yaml:"rules"`
}

var ruleParams = []task.Param{
	{Key: "rules", Required: true, Description: `ufw rules, e.g. "allow ssh" or "ufw limit 22/tcp"`},
}

// Operations returns the firewall operations.
func Operations() []task.Operation {
	return []task.Operation{
		task.OperationFor("install_ufw", "Install and configure Uncomplicated Firewall", "", ruleParams,
			func(cfg Config, inv task.Invocation) ([]task.Task, error) {
				configure, err := configureTasks(cfg)
				if err != nil {
					return nil, err
				}
				return append([]task.Task{steps.AptInstall("ufw")}, configure...), nil
			}),
		task.OperationFor("configure_ufw", "Reset the firewall and apply the configured rules", "", ruleParams,
			func(cfg Config, inv task.Invocation) ([]task.Task, error) {
				return configureTasks(cfg)
			}),
	}
}

// configureTasks resets all rules, applies cfg.Rules in order and enables the
// firewall. An empty rule list leaves the default deny policy only.
func configureTasks(cfg Config) ([]task.Task, error) {
	tasks := []task.Task{
		steps.Run("reset firewall rules", ufwCommand, "--force", "reset"),
	}
	for _, rule := range cfg.Rules {
		argv, err := ParseRule(rule)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, steps.Run("firewall rule: "+strings.Join(argv[1:], " "), argv...))
	}
	tasks = append(tasks,
		steps.Run("enable firewall", ufwCommand, "--force", "enable"),
		&steps.Command{Desc: "show firewall status", Argv: []string{ufwCommand, "status", "verbose"}, Show: true},
	)
	return tasks, nil
}

// ParseRule splits a rule into a ufw argument vector. A leading "ufw" is
// optional.
func ParseRule(rule string) ([]string, error) {
	words, err := shlex.Split(rule, true)
	if err != nil {
		return nil, fmt.Errorf("parse firewall rule %q: %w", rule, err)
	}
	if len(words) > 0 && words[0] == ufwCommand {
		words = words[1:]
	}
	if len(words) == 0 {
		return nil, fmt.Errorf("firewall rule %q is empty", rule)
	}
	if strings.HasPrefix(words[0], "--force") {
		return nil, fmt.Errorf("firewall rule %q must not force ufw", rule)
	}
	return append([]string{ufwCommand}, words...), nil
}
