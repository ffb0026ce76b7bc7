// Package procutil runs the system tools used to configure interfaces and
// resolvers.
package procutil

import (
	"fmt"
	"os/exec"
	"strings"
)

// CommandError reports a tool that exited with an error, with its output.
type CommandError struct {
	Args   []string
	Output string
	Err    error
}

func (e *CommandError) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("%s: %v", strings.Join(e.Args, " "), e.Err)
	}
	return fmt.Sprintf("%s: %v: %s", strings.Join(e.Args, " "), e.Err, e.Output)
}

func (e *CommandError) Unwrap() error { return e.Err }

// Output runs name and returns its combined output.
func Output(name string, args ...string) ([]byte, error) {
	return HideWindow(exec.Command(name, args...)).CombinedOutput()
}

// Run runs name and folds its output into the error on failure.
func Run(name string, args ...string) error {
	out, err := Output(name, args...)
	if err != nil {
		return &CommandError{
			Args:   append([]string{name}, args...),
			Output: strings.TrimSpace(string(out)),
			Err:    err,
		}
	}
	return nil
}
