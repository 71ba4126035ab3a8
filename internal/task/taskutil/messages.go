package taskutil

import (
	"fmt"
	"io"
	"os"
)

const (
	warnColor  = "\x1b[33m"
	colorReset = "\x1b[0m"
)

// Output receives operator-facing messages.
var Output io.Writer = os.Stdout

// Warnf prints a formatted warning with a colored prefix.
func Warnf(format string, args ...any) {
	message := fmt.Sprintf(format, args...)
	fmt.Fprintf(Output, "%sWARN: %s%s\n", warnColor, message, colorReset)
}
