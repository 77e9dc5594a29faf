package system

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	ksmerrors "github.com/nace/ksm/internal/errors"
)

// Runner executes external commands. The managers in internal/container only
// talk to the system through it, so tests can substitute a recording fake.
type Runner interface {
	// Run executes a command and discards output
	Run(name string, args ...string) error
	// RunOutput executes a command and returns stdout
	RunOutput(name string, args ...string) (string, error)
	// RunCmd executes a prepared command with captured output
	RunCmd(cmd *exec.Cmd) (string, error)
	// RunAttached executes a prepared command wired to the terminal,
	// for tools that prompt for a passphrase themselves
	RunAttached(cmd *exec.Cmd) error
}

// Executor handles execution of external commands
type Executor struct {
	debug bool
	trace io.Writer
}

// NewExecutor creates a new executor
func NewExecutor(debug bool) *Executor {
	return &Executor{
		debug: debug,
		trace: os.Stderr,
	}
}

// Run executes a command and discards output
func (e *Executor) Run(name string, args ...string) error {
	_, err := e.RunOutput(name, args...)
	return err
}

// RunOutput executes a command and returns stdout
func (e *Executor) RunOutput(name string, args ...string) (string, error) {
	cmd := exec.Command(name, args...)
	return e.RunCmd(cmd)
}

// RunCmd executes a prepared command
func (e *Executor) RunCmd(cmd *exec.Cmd) (string, error) {
	e.traceCmd(cmd)

	var stdout, stderr bytes.Buffer
	if cmd.Stdout == nil {
		cmd.Stdout = &stdout
	}
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%w: %s: %v\nStderr: %s",
			ksmerrors.ErrExternalTool, cmd.Args[0], err, strings.TrimSpace(stderr.String()))
	}

	return stdout.String(), nil
}

// RunAttached executes a command with the process's stdin, stdout and stderr
func (e *Executor) RunAttached(cmd *exec.Cmd) error {
	e.traceCmd(cmd)

	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: %s: %v", ksmerrors.ErrExternalTool, cmd.Args[0], err)
	}
	return nil
}

func (e *Executor) traceCmd(cmd *exec.Cmd) {
	if e.debug {
		fmt.Fprintf(e.trace, "[DEBUG] Executing: %s\n", cmd.String())
	}
}

// CommandExists checks if a command is available in PATH
func (e *Executor) CommandExists(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

// CheckDependencies verifies required commands are available
func (e *Executor) CheckDependencies(deps []string) error {
	var missing []string
	for _, dep := range deps {
		if !e.CommandExists(dep) {
			missing = append(missing, dep)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing required commands: %s",
			ksmerrors.ErrConfiguration, strings.Join(missing, ", "))
	}
	return nil
}
