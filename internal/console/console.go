package console

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"
)

// ErrAborted is returned when the operator interrupts a prompt.
var ErrAborted = errors.New("prompt aborted by operator")

// Console asks the operator questions. Every call blocks until answered.
type Console interface {
	// Confirm asks a yes/no question.
	Confirm(message string) (bool, error)
	// Prompt reads a line of free text.
	Prompt(message string) (string, error)
	// Secret reads a value without echoing it.
	Secret(message string) (string, error)
}

// Terminal is a Console on the process's standard streams. It falls back to
// huh's accessible mode when stdin is not a terminal.
type Terminal struct {
	accessible bool
}

func NewTerminal() *Terminal {
	return &Terminal{
		accessible: !term.IsTerminal(int(os.Stdin.Fd())),
	}
}

func (t *Terminal) Confirm(message string) (bool, error) {
	var ok bool
	field := huh.NewConfirm().
		Title(message).
		Affirmative("Yes").
		Negative("No").
		Value(&ok)
	if err := t.run(field); err != nil {
		return false, err
	}
	return ok, nil
}

func (t *Terminal) Prompt(message string) (string, error) {
	var value string
	field := huh.NewInput().
		Title(message).
		Value(&value).
		Validate(required)
	if err := t.run(field); err != nil {
		return "", err
	}
	return strings.TrimSpace(value), nil
}

func (t *Terminal) Secret(message string) (string, error) {
	var value string
	field := huh.NewInput().
		Title(message).
		EchoMode(huh.EchoModePassword).
		Value(&value).
		Validate(required)
	if err := t.run(field); err != nil {
		return "", err
	}
	return value, nil
}

func (t *Terminal) run(field huh.Field) error {
	err := huh.NewForm(huh.NewGroup(field)).WithAccessible(t.accessible).Run()
	if errors.Is(err, huh.ErrUserAborted) {
		return ErrAborted
	}
	if err != nil {
		return fmt.Errorf("read answer: %w", err)
	}
	return nil
}

func required(value string) error {
	if strings.TrimSpace(value) == "" {
		return errors.New("a value is required")
	}
	return nil
}
