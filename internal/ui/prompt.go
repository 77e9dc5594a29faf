package ui

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Prompter is the operator at the keyboard. Workflows block on it at the
// points where a human has to pick, name or approve something.
type Prompter interface {
	// Confirm asks a yes/no question; only "y" (any case) is affirmative
	Confirm(prompt string) bool
	// ReadLine asks for a line of free text and returns it trimmed
	ReadLine(prompt string) string
}

// TerminalPrompter prompts on stderr and reads answers from stdin
type TerminalPrompter struct {
	in  *bufio.Reader
	out io.Writer
}

// NewTerminalPrompter creates a prompter bound to the process's terminal
func NewTerminalPrompter() *TerminalPrompter {
	return NewPrompter(os.Stdin, os.Stderr)
}

// NewPrompter creates a prompter over arbitrary streams
func NewPrompter(in io.Reader, out io.Writer) *TerminalPrompter {
	return &TerminalPrompter{
		in:  bufio.NewReader(in),
		out: out,
	}
}

// ReadLine prompts for a string input
func (p *TerminalPrompter) ReadLine(prompt string) string {
	fmt.Fprintf(p.out, "%s: ", prompt)
	input, _ := p.in.ReadString('\n')
	return strings.TrimSpace(input)
}

// Confirm prompts for yes/no confirmation
func (p *TerminalPrompter) Confirm(prompt string) bool {
	fmt.Fprintf(p.out, "%s [y/N]: ", prompt)
	input, _ := p.in.ReadString('\n')
	return strings.EqualFold(strings.TrimSpace(input), "y")
}

// StdinIsTerminal reports whether answers will come from a human
func StdinIsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}
