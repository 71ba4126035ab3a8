package testutils

import (
	"fmt"
	"sync"
)

// ScriptedConsole answers prompts from fixed queues and records the
// questions it was asked.
type ScriptedConsole struct {
	Confirms []bool
	Answers  []string
	Secrets  []string

	mu    sync.Mutex
	asked []string
}

func (c *ScriptedConsole) Asked() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.asked...)
}

func (c *ScriptedConsole) Confirm(message string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.asked = append(c.asked, message)
	if len(c.Confirms) == 0 {
		return false, fmt.Errorf("unexpected confirmation: %s", message)
	}
	answer := c.Confirms[0]
	c.Confirms = c.Confirms[1:]
	return answer, nil
}

func (c *ScriptedConsole) Prompt(message string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.asked = append(c.asked, message)
	if len(c.Answers) == 0 {
		return "", fmt.Errorf("unexpected prompt: %s", message)
	}
	answer := c.Answers[0]
	c.Answers = c.Answers[1:]
	return answer, nil
}

func (c *ScriptedConsole) Secret(message string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.asked = append(c.asked, message)
	if len(c.Secrets) == 0 {
		return "", fmt.Errorf("unexpected secret prompt: %s", message)
	}
	answer := c.Secrets[0]
	c.Secrets = c.Secrets[1:]
	return answer, nil
}
