package taskutil

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/tpodg/serverkit/internal/server"
	"github.com/tpodg/serverkit/internal/strutil"
)

const (
	missingFileSentinel = "__SERVERKIT_MISSING__"
	uploadDir           = "/tmp"
	uploadPrefix        = "serverkit-"
)

func SudoPrefix(ctx context.Context, s server.Server) (string, error) {
	output, err := s.Execute(ctx, "id -u")
	if err != nil {
		return "", fmt.Errorf("check for root user: %w", err)
	}
	if strings.TrimSpace(output) == "0" {
		return "", nil
	}
	return "sudo -n ", nil
}

// AsUserPrefix returns a prefix that runs a command as another account.
func AsUserPrefix(user string) string {
	return "sudo -n -u " + strutil.ShellEscape(user) + " "
}

// Run executes argv on s behind prefix.
func Run(ctx context.Context, s server.Server, prefix string, argv ...string) (string, error) {
	return s.Execute(ctx, prefix+strutil.Command(argv...))
}

// RunWithInput executes argv with input on its standard input. The input
// stays out of the command line and therefore out of errors and logs.
func RunWithInput(ctx context.Context, s server.Server, prefix, input string, argv ...string) (string, error) {
	executor, ok := s.(server.InputExecutor)
	if !ok {
		return "", fmt.Errorf("server %s cannot pass input to commands", s.ID())
	}
	return executor.ExecuteWithInput(ctx, prefix+strutil.Command(argv...), strings.NewReader(input))
}

// Succeeds runs argv and reports whether it exited with status zero. Only
// transport errors are returned.
func Succeeds(ctx context.Context, s server.Server, prefix string, argv ...string) (bool, error) {
	_, err := Run(ctx, s, prefix, argv...)
	if err == nil {
		return true, nil
	}
	if server.IsRemoteCommandFailed(err) {
		return false, nil
	}
	return false, err
}

// PathExists reports whether p exists on the server.
func PathExists(ctx context.Context, s server.Server, prefix, p string) (bool, error) {
	ok, err := Succeeds(ctx, s, prefix, "test", "-e", p)
	if err != nil {
		return false, fmt.Errorf("check path %q: %w", p, err)
	}
	return ok, nil
}

func ReadFileIfExists(ctx context.Context, s server.Server, prefix, p string) (string, bool, error) {
	marker := missingFileSentinel + ":" + p
	script := `if [ -f "$1" ]; then cat "$1"; else printf '%s' "$2"; fi`
	output, err := Run(ctx, s, prefix, strutil.Script(script, p, marker)...)
	if err != nil {
		return "", false, fmt.Errorf("read file %q: %w", p, err)
	}
	if strings.TrimSpace(output) == marker {
		return "", true, nil
	}
	return output, false, nil
}

// FileSpec describes ownership and permissions of a written file.
type FileSpec struct {
	Mode  fs.FileMode
	Owner string
	Group string
	// Preserve keeps the attributes of an existing destination file and
	// ignores Mode, Owner and Group.
	Preserve bool
	// Validate is a check run with the temporary file's path appended, such
	// as `visudo -cf`. The destination is left untouched when it fails.
	Validate []string
}

const defaultFileMode fs.FileMode = 0o644

// WriteFile uploads content to a private temporary path and moves it into
// place with privilege elevation.
func WriteFile(ctx context.Context, s server.Server, prefix, p string, content []byte, spec FileSpec) error {
	tmp := path.Join(uploadDir, uploadPrefix+uuid.NewString())
	if err := s.Upload(ctx, tmp, content); err != nil {
		return fmt.Errorf("upload %q: %w", p, err)
	}

	if len(spec.Validate) > 0 {
		check := append(append([]string(nil), spec.Validate...), tmp)
		if _, err := Run(ctx, s, prefix, check...); err != nil {
			_, _ = Run(ctx, s, "", "rm", "-f", tmp)
			return fmt.Errorf("validate %q: %w", p, err)
		}
	}

	var argv []string
	if spec.Preserve {
		argv = strutil.Script(`cat "$1" > "$2"; rc=$?; rm -f "$1"; exit $rc`, tmp, p)
	} else {
		mode := spec.Mode
		if mode == 0 {
			mode = defaultFileMode
		}
		install := []string{"install", "-m", fmt.Sprintf("%o", mode.Perm())}
		if spec.Owner != "" {
			install = append(install, "-o", spec.Owner)
		}
		if spec.Group != "" {
			install = append(install, "-g", spec.Group)
		}
		install = append(install, tmp, p)
		argv = strutil.Script(`tmp=$1; shift; "$@"; rc=$?; rm -f "$tmp"; exit $rc`, append([]string{tmp}, install...)...)
	}

	if _, err := Run(ctx, s, prefix, argv...); err != nil {
		// The temporary file belongs to the login user, so no elevation is needed.
		_, _ = Run(ctx, s, "", "rm", "-f", tmp)
		return fmt.Errorf("write file %q: %w", p, err)
	}
	return nil
}
