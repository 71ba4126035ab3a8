package users

import (
	"io/fs"
	"path"
)

const (
	HomeRoot                           = "/home"
	SSHDirName                         = ".ssh"
	AuthorizedKeysFileName             = "authorized_keys"
	SudoGroup                          = "sudo"
	SSHDirMode             fs.FileMode = 0o700
	AuthorizedKeysMode     fs.FileMode = 0o600
)

func HomeDir(name string) string {
	return path.Join(HomeRoot, name)
}

func SSHDirPath(home string) string {
	return path.Join(home, SSHDirName)
}

func AuthorizedKeysPath(home string) string {
	return path.Join(SSHDirPath(home), AuthorizedKeysFileName)
}
