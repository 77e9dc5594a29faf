package ui

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"golang.org/x/term"
)

// Logger provides color-coded, leveled messages on stderr
type Logger struct {
	Verbose bool
	Quiet   bool
	NoColor bool

	out         io.Writer
	interactive bool
}

// NewLogger creates a logger writing to stderr
func NewLogger(verbose, quiet, noColor bool) *Logger {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		noColor = true
	}
	interactive := term.IsTerminal(int(os.Stderr.Fd()))
	return &Logger{
		Verbose:     verbose,
		Quiet:       quiet,
		NoColor:     noColor || !interactive,
		out:         os.Stderr,
		interactive: interactive,
	}
}

// NewWriterLogger creates an uncolored logger writing to w.
// Verbose is enabled so debug messages are captured as well.
func NewWriterLogger(w io.Writer) *Logger {
	return &Logger{
		Verbose: true,
		NoColor: true,
		out:     w,
	}
}

var (
	infoColor    = color.New(color.FgBlue)
	successColor = color.New(color.FgGreen)
	warningColor = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed)
	debugColor   = color.New(color.FgCyan)
	dryRunColor  = color.New(color.FgMagenta)
)

func (l *Logger) print(c *color.Color, prefix, format string, args ...interface{}) {
	line := prefix + " " + fmt.Sprintf(format, args...)
	if !l.NoColor {
		line = c.Sprint(line)
	}
	fmt.Fprintln(l.out, line)
}

// Info logs an informational message
func (l *Logger) Info(format string, args ...interface{}) {
	if l.Quiet {
		return
	}
	l.print(infoColor, "[INFO]", format, args...)
}

// Success logs a success message
func (l *Logger) Success(format string, args ...interface{}) {
	if l.Quiet {
		return
	}
	l.print(successColor, "[SUCCESS]", format, args...)
}

// Warning logs a warning message
func (l *Logger) Warning(format string, args ...interface{}) {
	l.print(warningColor, "[WARNING]", format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.print(errorColor, "[ERROR]", format, args...)
}

// Hint prints the corrective action for the error just reported
func (l *Logger) Hint(format string, args ...interface{}) {
	l.print(warningColor, "[HINT]", format, args...)
}

// Debug logs a debug message (only if verbose is enabled)
func (l *Logger) Debug(format string, args ...interface{}) {
	if !l.Verbose {
		return
	}
	l.print(debugColor, "[DEBUG]", format, args...)
}

// DryRun describes an action that a rehearsal skips. It is printed even in
// quiet mode since it is the whole output of a rehearsal.
func (l *Logger) DryRun(format string, args ...interface{}) {
	l.print(dryRunColor, "[DRY-RUN]", format, args...)
}

// Progress runs fn while showing a spinner with msg. The spinner only
// appears on an interactive stderr; otherwise msg is logged as info.
func (l *Logger) Progress(msg string, fn func() error) error {
	if !l.interactive || l.Quiet {
		l.Info("%s", msg)
		return fn()
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(l.out))
	s.Suffix = " " + msg
	s.Start()
	err := fn()
	s.Stop()

	if err != nil {
		l.Error("%s failed", msg)
		return err
	}
	l.Info("%s done", msg)
	return nil
}
