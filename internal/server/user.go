package server

// User holds SSH credentials and optional sudo password for command execution.
type User struct {
	Name         string
	SSHKey       string
	SudoPassword string
}

// As returns a copy of the credentials for another login name. The sudo
// password is dropped since it belongs to the original account.
func (u User) As(name string) User {
	if name == "" || name == u.Name {
		return u
	}
	return User{Name: name, SSHKey: u.SSHKey}
}
