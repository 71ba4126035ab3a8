package steps

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/template"

	"github.com/tpodg/serverkit/internal/server"
	"github.com/tpodg/serverkit/internal/task/taskutil"
)

// WriteFile places fixed content at Path. It is skipped when the remote file
// already holds the same content.
type WriteFile struct {
	Desc    string
	Path    string
	Content []byte
	Spec    taskutil.FileSpec
}

func (w *WriteFile) Name() string {
	if w.Desc != "" {
		return w.Desc
	}
	return "write " + w.Path
}

func (w *WriteFile) NeedsExecution(ctx context.Context, s server.Server) (bool, error) {
	return contentDiffers(ctx, s, w.Path, w.Content)
}

func (w *WriteFile) Execute(ctx context.Context, s server.Server) error {
	prefix, err := taskutil.SudoPrefix(ctx, s)
	if err != nil {
		return err
	}
	return taskutil.WriteFile(ctx, s, prefix, w.Path, w.Content, w.Spec)
}

// Template renders a local text/template file against Data and uploads the
// result to Dest.
type Template struct {
	Source string
	Dest   string
	Data   map[string]any
	Spec   taskutil.FileSpec
}

func (t *Template) Name() string {
	return fmt.Sprintf("upload %s to %s", t.Source, t.Dest)
}

func (t *Template) NeedsExecution(ctx context.Context, s server.Server) (bool, error) {
	content, err := t.Render()
	if err != nil {
		return false, err
	}
	return contentDiffers(ctx, s, t.Dest, content)
}

func (t *Template) Execute(ctx context.Context, s server.Server) error {
	content, err := t.Render()
	if err != nil {
		return err
	}
	prefix, err := taskutil.SudoPrefix(ctx, s)
	if err != nil {
		return err
	}
	return taskutil.WriteFile(ctx, s, prefix, t.Dest, content, t.Spec)
}

// Render executes the local template. Referencing a key absent from Data is
// an error.
func (t *Template) Render() ([]byte, error) {
	raw, err := os.ReadFile(t.Source)
	if err != nil {
		return nil, fmt.Errorf("read template: %w", err)
	}
	tmpl, err := template.New(filepath.Base(t.Source)).Option("missingkey=error").Parse(string(raw))
	if err != nil {
		return nil, fmt.Errorf("parse template %s: %w", t.Source, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, t.Data); err != nil {
		return nil, fmt.Errorf("render template %s: %w", t.Source, err)
	}
	return buf.Bytes(), nil
}

func contentDiffers(ctx context.Context, s server.Server, path string, want []byte) (bool, error) {
	prefix, err := taskutil.SudoPrefix(ctx, s)
	if err != nil {
		return false, err
	}
	current, missing, err := taskutil.ReadFileIfExists(ctx, s, prefix, path)
	if err != nil {
		return false, err
	}
	if missing {
		return true, nil
	}
	return current != string(want), nil
}
