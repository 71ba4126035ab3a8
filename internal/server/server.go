package server

import (
	"context"
	"io"
)

// Server represents a remote server that can be provisioned.
type Server interface {
	// ID returns a unique identifier for the server.
	ID() string
	// Address returns the connection address (IP or hostname).
	Address() string
	// Execute runs a command on the server and returns its standard output.
	// Standard error is only reported through the error of a failed command.
	Execute(ctx context.Context, command string) (string, error)
	// Upload places content at remotePath with the login user's permissions.
	Upload(ctx context.Context, remotePath string, content []byte) error
}

// InteractiveExecutor is implemented by servers that can attach a local
// terminal to a remote command running on a pseudo-terminal.
type InteractiveExecutor interface {
	ExecuteInteractive(ctx context.Context, command string, stdin io.Reader, stdout io.Writer) error
}

// InputExecutor is implemented by servers that can feed a command's standard
// input. Secrets travel this way so they stay out of command lines.
type InputExecutor interface {
	ExecuteWithInput(ctx context.Context, command string, input io.Reader) (string, error)
}

// Dialer resolves a host string (a configured server name or user@host:port)
// into a server sharing the current server's credentials.
type Dialer func(hostString string) (Server, error)

// Configurator defines the interface for applying configurations to a server.
type Configurator interface {
	// Configure applies the given configuration steps to the server.
	Configure(ctx context.Context, s Server) error
}
