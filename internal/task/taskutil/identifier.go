package taskutil

import (
	"fmt"
	"net/mail"
	"strings"
)

func ValidateIdentifier(kind, value string) error {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fmt.Errorf("%s name cannot be empty", kind)
	}
	if trimmed != value {
		return fmt.Errorf("%s name %q has leading/trailing whitespace", kind, value)
	}
	if strings.HasPrefix(value, "-") {
		return fmt.Errorf("%s name %q cannot start with '-'", kind, value)
	}
	for _, r := range value {
		if !isSafeNameRune(r) {
			return fmt.Errorf("%s name %q contains invalid character %q", kind, value, r)
		}
	}
	return nil
}

// ValidateSingleLine rejects values that would break line-oriented config
// files.
func ValidateSingleLine(field, value string) error {
	if strings.ContainsAny(value, "\r\n") {
		return fmt.Errorf("%s cannot contain newlines", field)
	}
	return nil
}

// ValidateEmail accepts a bare address such as ops@example.com.
func ValidateEmail(field, value string) error {
	addr, err := mail.ParseAddress(value)
	if err != nil {
		return fmt.Errorf("%s %q is not an email address: %w", field, value, err)
	}
	if addr.Address != value {
		return fmt.Errorf("%s %q must be a bare address", field, value)
	}
	return nil
}

func isSafeNameRune(r rune) bool {
	return r >= 'a' && r <= 'z' ||
		r >= 'A' && r <= 'Z' ||
		r >= '0' && r <= '9' ||
		r == '-' || r == '_' || r == '.'
}
