package steps

import (
	"context"
	"fmt"

	"github.com/tpodg/serverkit/internal/server"
	"github.com/tpodg/serverkit/internal/task/taskutil"
)

type editAction int

const (
	actionAppend editAction = iota
	actionComment
	actionUncomment
	actionReplace
)

func (a editAction) String() string {
	switch a {
	case actionAppend:
		return "append"
	case actionComment:
		return "comment"
	case actionUncomment:
		return "uncomment"
	default:
		return "replace"
	}
}

// Edits creates file edit steps sharing one strictness setting.
type Edits struct {
	// Strict fails an edit whose text is absent from the file instead of
	// warning and moving on.
	Strict bool
}

// Append adds line to path unless an identical line exists. A missing file
// is created.
func (e Edits) Append(path, line string) *Edit {
	return &Edit{Path: path, action: actionAppend, text: line, strict: e.Strict}
}

// Comment prefixes line in path with '#'.
func (e Edits) Comment(path, line string) *Edit {
	return &Edit{Path: path, action: actionComment, text: line, strict: e.Strict}
}

// Uncomment removes the leading '#' from line in path.
func (e Edits) Uncomment(path, line string) *Edit {
	return &Edit{Path: path, action: actionUncomment, text: line, strict: e.Strict}
}

// Replace substitutes the exact text before with after in path.
func (e Edits) Replace(path, before, after string) *Edit {
	return &Edit{Path: path, action: actionReplace, text: before, with: after, strict: e.Strict}
}

// Edit is an in-place change of a remote text file. The file is read,
// transformed in memory and written back only when the content changed.
type Edit struct {
	Path string
	// Validate checks the edited content before it replaces the file. The
	// temporary file's path is appended to it.
	Validate []string
	action   editAction
	text     string
	with     string
	strict   bool
}

// CheckedWith sets the command that validates the edited file.
func (e *Edit) CheckedWith(argv ...string) *Edit {
	e.Validate = argv
	return e
}

func (e *Edit) Name() string {
	if e.action == actionReplace {
		return fmt.Sprintf("edit %s: replace %q", e.Path, e.text)
	}
	return fmt.Sprintf("edit %s: %s %q", e.Path, e.action, e.text)
}

func (e *Edit) NeedsExecution(ctx context.Context, s server.Server) (bool, error) {
	prefix, err := taskutil.SudoPrefix(ctx, s)
	if err != nil {
		return false, err
	}
	_, _, outcome, err := e.apply(ctx, s, prefix)
	if err != nil {
		return false, err
	}
	switch outcome {
	case taskutil.EditChanged:
		return true, nil
	case taskutil.EditNoMatch:
		if e.strict {
			return false, &taskutil.EditNoMatchError{Path: e.Path, Action: e.action.String(), Pattern: e.text}
		}
		taskutil.Warnf("%s: %q not found in %s, leaving the file unchanged", e.action, e.text, e.Path)
	}
	return false, nil
}

func (e *Edit) Execute(ctx context.Context, s server.Server) error {
	prefix, err := taskutil.SudoPrefix(ctx, s)
	if err != nil {
		return err
	}
	content, missing, outcome, err := e.apply(ctx, s, prefix)
	if err != nil {
		return err
	}
	if outcome != taskutil.EditChanged {
		return nil
	}
	spec := taskutil.FileSpec{Preserve: !missing, Validate: e.Validate}
	return taskutil.WriteFile(ctx, s, prefix, e.Path, []byte(content), spec)
}

func (e *Edit) apply(ctx context.Context, s server.Server, prefix string) (string, bool, taskutil.EditOutcome, error) {
	current, missing, err := taskutil.ReadFileIfExists(ctx, s, prefix, e.Path)
	if err != nil {
		return "", false, taskutil.EditNoMatch, err
	}
	if missing && e.action != actionAppend {
		return "", true, taskutil.EditNoMatch, nil
	}

	var content string
	var outcome taskutil.EditOutcome
	switch e.action {
	case actionAppend:
		content, outcome = taskutil.AppendLine(current, e.text)
	case actionComment:
		content, outcome = taskutil.CommentLine(current, e.text)
	case actionUncomment:
		content, outcome = taskutil.UncommentLine(current, e.text)
	default:
		content, outcome = taskutil.ReplaceText(current, e.text, e.with)
	}
	return content, missing, outcome, nil
}
