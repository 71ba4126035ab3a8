package strutil

import "strings"

// CleanList returns a de-duplicated list of trimmed, non-empty strings.
func CleanList(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if _, exists := seen[value]; exists {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}

// ShellEscape returns a single-quoted shell literal for value.
func ShellEscape(value string) string {
	if value == "" {
		return "''"
	}
	if isPlainWord(value) {
		return value
	}
	return "'" + strings.ReplaceAll(value, "'", `'"'"'`) + "'"
}

// Command renders an argument vector as a shell command line where every
// argument is passed through literally.
func Command(argv ...string) string {
	quoted := make([]string, len(argv))
	for i, arg := range argv {
		quoted[i] = ShellEscape(arg)
	}
	return strings.Join(quoted, " ")
}

// Script renders a `sh -c` invocation. Values are handed to the script as
// positional parameters ($1, $2, ...) and never spliced into its text.
func Script(script string, args ...string) []string {
	argv := make([]string, 0, len(args)+3)
	argv = append(argv, "sh", "-c", script, "sh")
	return append(argv, args...)
}

func isPlainWord(value string) bool {
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case strings.ContainsRune("-_./:=@,+%", r):
		default:
			return false
		}
	}
	return true
}
