package testutils

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	shlex "github.com/anmitsu/go-shlex"

	"github.com/tpodg/serverkit/internal/server"
)

const missingFileMarkerPrefix = "__SERVERKIT_MISSING__:"

// Call is a command received by a FakeServer.
type Call struct {
	Command string
	Argv    []string
	Sudo    bool
	AsUser  string
	// Interactive is set for commands run on a pseudo-terminal.
	Interactive bool
	// Input is what the command received on standard input.
	Input string
}

// FakeServer is an in-memory server.Server. It keeps a map of remote files,
// understands the read and write helpers of the task packages and records
// every command.
type FakeServer struct {
	Name string
	Root bool
	// Files holds the remote filesystem content keyed by absolute path.
	Files map[string]string
	// Users maps account names to their groups. getent, adduser, gpasswd,
	// id -nG, passwd and chpasswd operate on it. root always exists.
	Users map[string][]string
	// Passwords holds passwords set through chpasswd, which reads
	// name:password lines from its input.
	Passwords map[string]string
	// Locked holds accounts locked with passwd --lock.
	Locked map[string]bool
	// Packages lists installed packages. `dpkg -s` succeeds only for these
	// and `apt-get install` adds to it.
	Packages map[string]bool
	// FailWhen makes a command exit with status 1 when it returns true.
	FailWhen func(argv []string) bool
	// Respond overrides the output of a command when it returns ok.
	Respond func(argv []string) (output string, ok bool)

	mu      sync.Mutex
	calls   []Call
	pending map[string][]byte
}

// NewFakeServer returns a non-root fake server with the given files.
func NewFakeServer(name string, files map[string]string) *FakeServer {
	if files == nil {
		files = map[string]string{}
	}
	return &FakeServer{
		Name:      name,
		Files:     files,
		Users:     map[string][]string{},
		Passwords: map[string]string{},
		Locked:    map[string]bool{},
		Packages:  map[string]bool{},
	}
}

func (f *FakeServer) ID() string      { return f.Name }
func (f *FakeServer) Address() string { return f.Name + ":22" }

// Calls returns every command received, including probes such as `id -u`.
func (f *FakeServer) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Mutations returns the commands that are neither privilege probes nor file
// reads or existence checks.
func (f *FakeServer) Mutations() []Call {
	var out []Call
	for _, call := range f.Calls() {
		if isProbe(call.Argv) {
			continue
		}
		out = append(out, call)
	}
	return out
}

// Ran reports whether a command with the given argv prefix was executed.
func (f *FakeServer) Ran(prefix ...string) bool {
	for _, call := range f.Calls() {
		if hasPrefix(call.Argv, prefix) {
			return true
		}
	}
	return false
}

// File returns the content of a remote file.
func (f *FakeServer) File(path string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	content, ok := f.Files[path]
	return content, ok
}

func (f *FakeServer) Upload(_ context.Context, remotePath string, content []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pending == nil {
		f.pending = map[string][]byte{}
	}
	f.pending[remotePath] = append([]byte(nil), content...)
	return nil
}

// ExecuteInteractive records the command and writes nothing.
func (f *FakeServer) ExecuteInteractive(_ context.Context, command string, _ io.Reader, _ io.Writer) error {
	call, err := parseCall(command)
	if err != nil {
		return err
	}
	call.Interactive = true
	_, err = f.respond(command, call)
	return err
}

// ExecuteWithInput records the input along with the command.
func (f *FakeServer) ExecuteWithInput(_ context.Context, command string, input io.Reader) (string, error) {
	call, err := parseCall(command)
	if err != nil {
		return "", err
	}
	data, err := io.ReadAll(input)
	if err != nil {
		return "", err
	}
	call.Input = string(data)
	return f.respond(command, call)
}

func (f *FakeServer) Execute(_ context.Context, command string) (string, error) {
	call, err := parseCall(command)
	if err != nil {
		return "", err
	}
	return f.respond(command, call)
}

func (f *FakeServer) respond(command string, call Call) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()

	argv := call.Argv
	if f.FailWhen != nil && f.FailWhen(argv) {
		return "failed\n", &server.RemoteCommandFailedError{Server: f.Name, Command: command, ExitStatus: 1, Output: "failed\n"}
	}
	if f.Respond != nil {
		if output, ok := f.Respond(argv); ok {
			return output, nil
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case hasPrefix(argv, []string{"id", "-u"}) && len(argv) == 2:
		if f.Root {
			return "0\n", nil
		}
		return "1000\n", nil
	case len(argv) > 0 && argv[0] == "sh" && strings.HasPrefix(argv[len(argv)-1], missingFileMarkerPrefix):
		path := argv[len(argv)-2]
		if content, ok := f.Files[path]; ok {
			return content, nil
		}
		return argv[len(argv)-1], nil
	case len(argv) == 3 && argv[0] == "test" && (argv[1] == "-e" || argv[1] == "-d" || argv[1] == "-f"):
		if f.exists(argv[2]) {
			return "", nil
		}
		return "", &server.RemoteCommandFailedError{Server: f.Name, Command: command, ExitStatus: 1}
	case hasPrefix(argv, []string{"getent", "passwd"}) && len(argv) == 3:
		if _, ok := f.Users[argv[2]]; ok || argv[2] == "root" {
			return fmt.Sprintf("%s:x:1001:1001::/home/%s:/bin/bash\n", argv[2], argv[2]), nil
		}
		return "", &server.RemoteCommandFailedError{Server: f.Name, Command: command, ExitStatus: 2}
	case hasPrefix(argv, []string{"id", "-nG"}) && len(argv) == 3:
		groups, ok := f.Users[argv[2]]
		if !ok {
			return "", &server.RemoteCommandFailedError{Server: f.Name, Command: command, ExitStatus: 1}
		}
		return strings.Join(groups, " ") + "\n", nil
	case hasPrefix(argv, []string{"passwd", "-S"}) && len(argv) == 3:
		return argv[2] + " " + f.passwordStatus(argv[2]) + " 01/01/2024 0 99999 7 -1\n", nil
	case hasPrefix(argv, []string{"passwd", "--lock"}) && len(argv) == 3:
		f.Locked[argv[2]] = true
		return "", nil
	case hasPrefix(argv, []string{"adduser"}):
		name := argv[len(argv)-1]
		f.Users[name] = []string{name}
		f.Files["/home/"+name+"/"] = ""
		return "", nil
	case hasPrefix(argv, []string{"gpasswd", "-a"}) && len(argv) == 4:
		f.Users[argv[2]] = append(f.Users[argv[2]], argv[3])
		return "", nil
	case len(argv) == 1 && argv[0] == "chpasswd":
		for _, line := range strings.Split(strings.TrimSuffix(call.Input, "\n"), "\n") {
			if name, password, ok := strings.Cut(line, ":"); ok {
				f.Passwords[name] = password
			}
		}
		return "", nil
	case len(argv) > 0 && argv[0] == "visudo":
		return "", nil
	case hasPrefix(argv, []string{"rm", "-f"}):
		for _, arg := range argv[2:] {
			delete(f.pending, arg)
			delete(f.Files, arg)
		}
		return "", nil
	case hasPrefix(argv, []string{"dpkg", "-s"}):
		for _, pkg := range argv[2:] {
			if !f.Packages[pkg] {
				return "", &server.RemoteCommandFailedError{Server: f.Name, Command: command, ExitStatus: 1}
			}
		}
		return "", nil
	}

	if i := indexOf(argv, "install"); i > 0 && argv[i-1] == "-yq" {
		if f.Packages == nil {
			f.Packages = map[string]bool{}
		}
		for _, pkg := range argv[i+1:] {
			f.Packages[pkg] = true
		}
	}

	for _, arg := range argv {
		if content, ok := f.pending[arg]; ok {
			f.Files[argv[len(argv)-1]] = string(content)
			delete(f.pending, arg)
			break
		}
	}
	if hasPrefix(argv, []string{"mkdir"}) {
		for _, arg := range argv[1:] {
			if !strings.HasPrefix(arg, "-") {
				f.Files[strings.TrimSuffix(arg, "/")+"/"] = ""
			}
		}
	}
	return "", nil
}

func (f *FakeServer) passwordStatus(name string) string {
	switch {
	case f.Locked[name]:
		return "L"
	case name == "root" || f.Passwords[name] != "":
		return "P"
	default:
		return "L"
	}
}

func (f *FakeServer) exists(path string) bool {
	path = strings.TrimSuffix(path, "/")
	for existing := range f.Files {
		if existing == path || strings.HasPrefix(existing, path+"/") {
			return true
		}
	}
	return false
}

func parseCall(command string) (Call, error) {
	call := Call{Command: command}
	rest := command
	if strings.HasPrefix(rest, "sudo -n ") {
		call.Sudo = true
		rest = strings.TrimPrefix(rest, "sudo -n ")
	}
	argv, err := shlex.Split(rest, true)
	if err != nil {
		return call, fmt.Errorf("fake server cannot parse %q: %w", command, err)
	}
	if call.Sudo && len(argv) >= 2 && argv[0] == "-u" {
		call.AsUser = argv[1]
		argv = argv[2:]
	}
	call.Argv = argv
	return call, nil
}

func isProbe(argv []string) bool {
	if len(argv) == 0 {
		return true
	}
	switch {
	case hasPrefix(argv, []string{"id"}):
		return true
	case hasPrefix(argv, []string{"test"}):
		return true
	case hasPrefix(argv, []string{"getent"}):
		return true
	case hasPrefix(argv, []string{"passwd", "-S"}):
		return true
	case hasPrefix(argv, []string{"dpkg", "-s"}):
		return true
	case argv[0] == "visudo":
		return true
	case argv[0] == "sh" && strings.HasPrefix(argv[len(argv)-1], missingFileMarkerPrefix):
		return true
	}
	return false
}

func hasPrefix(argv, prefix []string) bool {
	if len(argv) < len(prefix) {
		return false
	}
	for i, value := range prefix {
		if argv[i] != value {
			return false
		}
	}
	return true
}

func indexOf(argv []string, value string) int {
	for i, arg := range argv {
		if arg == value {
			return i
		}
	}
	return -1
}
