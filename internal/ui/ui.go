// Package ui formats user-facing terminal output.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

var writer io.Writer = os.Stderr

// SetWriter overrides the stderr writer (for testing). nil restores stderr.
func SetWriter(w io.Writer) {
	if w == nil {
		w = os.Stderr
	}
	writer = w
}

var (
	stdoutColor = detectColor(os.Stdout)
	stderrColor = detectColor(os.Stderr)
)

func detectColor(f *os.File) bool {
	if os.Getenv("NO_COLOR") != "" || os.Getenv("TF_BUILD") != "" {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// SetColorEnabled overrides color detection (for testing).
func SetColorEnabled(enabled bool) {
	stdoutColor = enabled
	stderrColor = enabled
}

func ansi(enabled bool, code, s string) string {
	if !enabled {
		return s
	}
	return "\033[" + code + "m" + s + "\033[0m"
}

// Bold returns s in bold (stdout).
func Bold(s string) string { return ansi(stdoutColor, "1", s) }

// Dim returns s dimmed (stdout).
func Dim(s string) string { return ansi(stdoutColor, "2", s) }

// Green returns s in green (stdout).
func Green(s string) string { return ansi(stdoutColor, "32", s) }

// Red returns s in red (stdout).
func Red(s string) string { return ansi(stdoutColor, "31", s) }

// Yellow returns s in yellow (stdout).
func Yellow(s string) string { return ansi(stdoutColor, "33", s) }

// Section writes a bold title with a thin underline.
func Section(w io.Writer, title string) {
	fmt.Fprintln(w, Bold(title))
	fmt.Fprintln(w, Dim(strings.Repeat("─", len(title))))
}

// OKTag returns a green check mark.
func OKTag() string { return Green("✓") }

// FailTag returns a red cross.
func FailTag() string { return Red("✗") }

// WarnTag returns a yellow warning sign.
func WarnTag() string { return Yellow("⚠") }

// EnabledTag renders a policy decision.
func EnabledTag(enabled bool) string {
	if enabled {
		return OKTag() + " enabled"
	}
	return Dim("disabled")
}

// Warnf prints a formatted warning to stderr.
func Warnf(format string, args ...any) {
	fmt.Fprintf(writer, "%s %s\n", ansi(stderrColor, "33", "Warning:"), fmt.Sprintf(format, args...))
}

// Error prints an error to stderr.
func Error(msg string) {
	fmt.Fprintf(writer, "%s %s\n", ansi(stderrColor, "31", "Error:"), msg)
}

// Infof prints a formatted message to stderr with no prefix.
func Infof(format string, args ...any) {
	fmt.Fprintf(writer, format+"\n", args...)
}
