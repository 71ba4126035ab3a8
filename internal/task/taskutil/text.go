package taskutil

import (
	"bufio"
	"strings"
)

const maxScanTokenSize = 1024 * 1024

func ScanLines(output string, fn func(string)) error {
	scanner := bufio.NewScanner(strings.NewReader(output))
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, maxScanTokenSize)
	for scanner.Scan() {
		fn(scanner.Text())
	}
	return scanner.Err()
}

// ParseKeyValueSettings parses "Key value" style configuration (sshd_config)
// into a map of lower-cased keys to lower-cased values. Comments are ignored,
// the first occurrence of a key wins and conditional Match blocks are skipped,
// as sshd does for its global settings.
func ParseKeyValueSettings(output string) (map[string]string, error) {
	settings := make(map[string]string)
	inMatch := false
	err := ScanLines(output, func(line string) {
		if inMatch {
			return
		}
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			return
		}
		if idx := strings.Index(trimmed, "#"); idx >= 0 {
			trimmed = strings.TrimSpace(trimmed[:idx])
		}
		fields := strings.Fields(trimmed)
		if len(fields) < 2 {
			return
		}
		key := strings.ToLower(fields[0])
		if key == "match" {
			inMatch = true
			return
		}
		if _, exists := settings[key]; exists {
			return
		}
		settings[key] = strings.ToLower(fields[1])
	})
	if err != nil {
		return nil, err
	}
	return settings, nil
}
