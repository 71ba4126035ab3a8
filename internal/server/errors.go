package server

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/ssh"
)

// RemoteCommandFailedError is returned when a remote command exits with a
// non-zero status.
type RemoteCommandFailedError struct {
	Server     string
	Command    string
	ExitStatus int
	Output     string
}

func (e *RemoteCommandFailedError) Error() string {
	msg := fmt.Sprintf("command %q on %s exited with status %d", e.Command, e.Server, e.ExitStatus)
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += ": " + lastLine(out)
	}
	return msg
}

// IsRemoteCommandFailed reports whether err carries a non-zero remote exit.
func IsRemoteCommandFailed(err error) bool {
	var failed *RemoteCommandFailedError
	return errors.As(err, &failed)
}

func commandError(serverID, command, output string, err error) error {
	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		return &RemoteCommandFailedError{
			Server:     serverID,
			Command:    command,
			ExitStatus: exitErr.ExitStatus(),
			Output:     output,
		}
	}
	return fmt.Errorf("command %q failed: %w", command, err)
}

func lastLine(output string) string {
	if idx := strings.LastIndexByte(output, '\n'); idx >= 0 {
		return output[idx+1:]
	}
	return output
}
