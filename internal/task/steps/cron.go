package steps

import (
	"fmt"
	"io/fs"
	"strings"

	"github.com/tpodg/serverkit/internal/task/taskutil"
)

const cronFileMode fs.FileMode = 0o644

// CronLine renders a cron.d entry. cron reads an unescaped '%' as a newline,
// so every '%' in command is escaped.
func CronLine(schedule, user, command string) string {
	return fmt.Sprintf("%s %s %s\n", schedule, user, strings.ReplaceAll(command, "%", `\%`))
}

// CronJob writes a single-entry /etc/cron.d file owned by root.
func CronJob(path, schedule, user, command string) *WriteFile {
	return &WriteFile{
		Desc:    "schedule " + path,
		Path:    path,
		Content: []byte(CronLine(schedule, user, command)),
		Spec:    taskutil.FileSpec{Mode: cronFileMode, Owner: "root", Group: "root"},
	}
}
