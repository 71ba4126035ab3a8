package steps

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tpodg/serverkit/internal/console"
	"github.com/tpodg/serverkit/internal/server"
)

// ErrDeclined is returned when the operator answers "no" to a confirmation.
var ErrDeclined = errors.New("declined by operator")

// Confirm blocks on a yes/no question unless AssumeYes is set.
type Confirm struct {
	Message   string
	Console   console.Console
	AssumeYes bool
}

func (c *Confirm) Name() string {
	return "confirm: " + summarize(c.Message)
}

func (c *Confirm) NeedsExecution(ctx context.Context, s server.Server) (bool, error) {
	return !c.AssumeYes, nil
}

func (c *Confirm) Execute(ctx context.Context, s server.Server) error {
	if c.Console == nil {
		return fmt.Errorf("confirmation %q needs a console (use --yes to skip it)", summarize(c.Message))
	}
	ok, err := c.Console.Confirm(c.Message)
	if err != nil {
		return err
	}
	if !ok {
		return ErrDeclined
	}
	return nil
}

// Value holds an answer read during an operation. It lives only in memory.
type Value struct {
	label string
	value string
	set   bool
}

// NewValue creates an empty value. label names it in errors.
func NewValue(label string) *Value {
	return &Value{label: label}
}

// Get returns the value or an error if it was never read.
func (v *Value) Get() (string, error) {
	if !v.set {
		return "", fmt.Errorf("%s has not been provided", v.label)
	}
	return v.value, nil
}

func (v *Value) Set(value string) {
	v.value = value
	v.set = true
}

// Input reads an answer from the console into a Value.
type Input struct {
	Message string
	Console console.Console
	Hidden  bool
	Into    *Value
}

// Prompt reads free text into v unless v already holds a value.
func Prompt(c console.Console, message string, v *Value) *Input {
	return &Input{Message: message, Console: c, Into: v}
}

// Secret reads a value without echo into v unless v already holds one.
func Secret(c console.Console, message string, v *Value) *Input {
	return &Input{Message: message, Console: c, Hidden: true, Into: v}
}

func (i *Input) Name() string {
	if i.Hidden {
		return "read secret: " + i.Into.label
	}
	return "read " + i.Into.label
}

func (i *Input) NeedsExecution(ctx context.Context, s server.Server) (bool, error) {
	return !i.Into.set, nil
}

func (i *Input) Execute(ctx context.Context, s server.Server) error {
	if i.Console == nil {
		return fmt.Errorf("reading %s needs a console", i.Into.label)
	}
	var (
		answer string
		err    error
	)
	if i.Hidden {
		answer, err = i.Console.Secret(i.Message)
	} else {
		answer, err = i.Console.Prompt(i.Message)
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", i.Into.label, err)
	}
	i.Into.Set(answer)
	return nil
}

func summarize(message string) string {
	const limit = 60
	message = strings.Join(strings.Fields(message), " ")
	runes := []rune(message)
	if len(runes) <= limit {
		return message
	}
	return string(runes[:limit]) + "..."
}
