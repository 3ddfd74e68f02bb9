// Package runner builds and executes NuGet client invocations.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/google/shlex"

	"github.com/majorcontext/nupush/internal/log"
)

// Overridden in tests.
var (
	lookPath = exec.LookPath
	goos     = runtime.GOOS
)

// ErrMonoNotFound is returned when a .exe client must run under mono and
// mono is not on PATH.
var ErrMonoNotFound = errors.New("mono is required to run the NuGet client on this platform but was not found on PATH")

// Command is a fully resolved client invocation.
type Command struct {
	Path string
	Args []string
	Env  []string
	Dir  string
}

// NewCommand prepares a command for clientPath. Outside Windows a .exe
// client is run through mono.
func NewCommand(clientPath string) (*Command, error) {
	if goos != "windows" && strings.EqualFold(lastExt(clientPath), ".exe") {
		mono, err := lookPath("mono")
		if err != nil {
			return nil, ErrMonoNotFound
		}
		return &Command{Path: mono, Args: []string{clientPath}}, nil
	}
	return &Command{Path: clientPath}, nil
}

func lastExt(p string) string {
	i := strings.LastIndexByte(p, '.')
	if i < 0 || strings.ContainsAny(p[i:], `/\`) {
		return ""
	}
	return p[i:]
}

// String renders the command line with secrets masked.
func (c *Command) String() string {
	parts := []string{c.Path}
	redactNext := false
	for _, a := range c.Args {
		switch {
		case redactNext:
			parts = append(parts, log.Redact(a))
			redactNext = false
		case strings.EqualFold(a, "-ApiKey"):
			parts = append(parts, a)
			redactNext = true
		default:
			parts = append(parts, a)
		}
	}
	return strings.Join(parts, " ")
}

// PushOptions describes a single "push" invocation.
type PushOptions struct {
	Package    string
	Source     string
	APIKey     string
	ConfigFile string
	Verbosity  string
	// ExtraArgs is a shell-style argument string appended verbatim.
	ExtraArgs string
}

// PushArgs returns the client arguments for opts.
func PushArgs(opts PushOptions) ([]string, error) {
	if opts.Package == "" {
		return nil, errors.New("package path is required")
	}
	if opts.Source == "" {
		return nil, errors.New("source is required")
	}

	args := []string{"push", "-NonInteractive", opts.Package, "-Source", opts.Source}
	if opts.APIKey != "" {
		args = append(args, "-ApiKey", opts.APIKey)
	}
	if opts.ConfigFile != "" {
		args = append(args, "-ConfigFile", opts.ConfigFile)
	}
	if v := strings.TrimSpace(opts.Verbosity); v != "" && v != "-" {
		args = append(args, "-Verbosity", v)
	}
	if opts.ExtraArgs != "" {
		extra, err := shlex.Split(opts.ExtraArgs)
		if err != nil {
			return nil, fmt.Errorf("parsing extra arguments: %w", err)
		}
		args = append(args, extra...)
	}
	return args, nil
}

// Executor runs a command to completion.
type Executor interface {
	Exec(ctx context.Context, cmd *Command) error
}

// ExitError reports a client that ran but exited non-zero.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("NuGet client exited with code %d", e.Code)
}

// ProcessExecutor runs commands as child processes, streaming their output.
type ProcessExecutor struct {
	Stdout io.Writer
	Stderr io.Writer
}

// Exec implements Executor.
func (p *ProcessExecutor) Exec(ctx context.Context, c *Command) error {
	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	cmd.Env = c.Env
	cmd.Dir = c.Dir
	cmd.Stdout = p.Stdout
	cmd.Stderr = p.Stderr
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	log.Debug("running NuGet client", "command", c.String())
	err := cmd.Run()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &ExitError{Code: exitErr.ExitCode()}
	}
	if err != nil {
		return fmt.Errorf("running %s: %w", c.Path, err)
	}
	return nil
}
