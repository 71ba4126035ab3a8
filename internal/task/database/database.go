package database

import (
	"io/fs"

	"github.com/tpodg/serverkit/internal/task"
)

const secretFileMode fs.FileMode = 0o600

// Operations returns the database server operations.
func Operations() []task.Operation {
	return append([]task.Operation{mysqlOperation()}, postgresOperations()...)
}
