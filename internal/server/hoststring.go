package server

import (
	"fmt"
	"strings"
)

// ParseHostString splits a host string ("user@host:port",
// "host:port" or "host") into the login user and the dial address.
func ParseHostString(hostString string) (string, string, error) {
	value := strings.TrimSpace(hostString)
	if value == "" {
		return "", "", fmt.Errorf("empty host string")
	}

	login := ""
	if idx := strings.LastIndex(value, "@"); idx >= 0 {
		login = value[:idx]
		value = value[idx+1:]
		if login == "" {
			return "", "", fmt.Errorf("host string %q has an empty user", hostString)
		}
	}
	if value == "" || strings.ContainsAny(value, " \t/") {
		return "", "", fmt.Errorf("invalid host in host string %q", hostString)
	}
	return login, value, nil
}
