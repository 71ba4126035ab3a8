package taskutil

import (
	"fmt"
	"strings"
)

const commentMarker = "#"

// EditOutcome describes what an in-memory file edit did.
type EditOutcome int

const (
	// EditChanged means the content was modified.
	EditChanged EditOutcome = iota
	// EditAlreadyApplied means the desired text is already present.
	EditAlreadyApplied
	// EditNoMatch means neither the original nor the desired text was found.
	EditNoMatch
)

func (o EditOutcome) String() string {
	switch o {
	case EditChanged:
		return "changed"
	case EditAlreadyApplied:
		return "already applied"
	case EditNoMatch:
		return "no match"
	default:
		return fmt.Sprintf("EditOutcome(%d)", int(o))
	}
}

// EditNoMatchError is returned in strict mode when an edit's expected text is
// absent from the remote file.
type EditNoMatchError struct {
	Path    string
	Action  string
	Pattern string
}

func (e *EditNoMatchError) Error() string {
	return fmt.Sprintf("%s %q: text %q not found", e.Action, e.Path, e.Pattern)
}

// AppendLine adds line at the end of content unless an identical line exists.
func AppendLine(content, line string) (string, EditOutcome) {
	for _, existing := range splitLines(content) {
		if existing == line {
			return content, EditAlreadyApplied
		}
	}
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return content + line + "\n", EditChanged
}

// CommentLine prefixes every line equal to line (ignoring surrounding
// whitespace) with a comment marker.
func CommentLine(content, line string) (string, EditOutcome) {
	target := strings.TrimSpace(line)
	lines := splitLines(content)
	changed := false
	applied := false
	for i, existing := range lines {
		trimmed := strings.TrimSpace(existing)
		switch {
		case trimmed == target:
			lines[i] = commentMarker + existing
			changed = true
		case uncommented(trimmed) == target:
			applied = true
		}
	}
	return outcome(content, lines, changed, applied)
}

// UncommentLine removes the comment marker from every commented line whose
// remainder equals line. line may be given with or without its marker.
func UncommentLine(content, line string) (string, EditOutcome) {
	target := uncommented(strings.TrimSpace(line))
	lines := splitLines(content)
	changed := false
	applied := false
	for i, existing := range lines {
		trimmed := strings.TrimSpace(existing)
		switch {
		case trimmed == target:
			applied = true
		case strings.HasPrefix(trimmed, commentMarker) && uncommented(trimmed) == target:
			indent := existing[:len(existing)-len(strings.TrimLeft(existing, " \t"))]
			lines[i] = indent + target
			changed = true
		}
	}
	return outcome(content, lines, changed, applied)
}

// ReplaceText substitutes every literal occurrence of before with after. No
// pattern syntax is interpreted.
func ReplaceText(content, before, after string) (string, EditOutcome) {
	if before == "" {
		return content, EditNoMatch
	}
	if strings.Contains(content, before) {
		return strings.ReplaceAll(content, before, after), EditChanged
	}
	if after != "" && strings.Contains(content, after) {
		return content, EditAlreadyApplied
	}
	return content, EditNoMatch
}

func uncommented(trimmed string) string {
	return strings.TrimSpace(strings.TrimLeft(trimmed, commentMarker))
}

func splitLines(content string) []string {
	if content == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(content, "\n"), "\n")
}

func outcome(original string, lines []string, changed, applied bool) (string, EditOutcome) {
	if changed {
		out := strings.Join(lines, "\n")
		if strings.HasSuffix(original, "\n") {
			out += "\n"
		}
		return out, EditChanged
	}
	if applied {
		return original, EditAlreadyApplied
	}
	return original, EditNoMatch
}
