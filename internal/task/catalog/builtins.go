package catalog

import (
	"github.com/tpodg/serverkit/internal/task"
	"github.com/tpodg/serverkit/internal/task/backup"
	"github.com/tpodg/serverkit/internal/task/database"
	"github.com/tpodg/serverkit/internal/task/fail2ban"
	"github.com/tpodg/serverkit/internal/task/firewall"
	"github.com/tpodg/serverkit/internal/task/hardening"
	"github.com/tpodg/serverkit/internal/task/mail"
	"github.com/tpodg/serverkit/internal/task/monitoring"
	"github.com/tpodg/serverkit/internal/task/system"
	"github.com/tpodg/serverkit/internal/task/users"
	"github.com/tpodg/serverkit/internal/task/web"
)

// Builtins returns the built-in operations.
func Builtins() []task.Operation {
	groups := [][]task.Operation{
		users.Operations(),
		hardening.Operations(),
		fail2ban.Operations(),
		firewall.Operations(),
		system.Operations(),
		mail.Operations(),
		web.Operations(),
		database.Operations(),
		backup.Operations(),
		monitoring.Operations(),
	}

	var ops []task.Operation
	for _, group := range groups {
		ops = append(ops, group...)
	}
	return ops
}
