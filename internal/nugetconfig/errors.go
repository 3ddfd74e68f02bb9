package nugetconfig

import (
	"errors"
	"fmt"
)

// ErrClosed is returned when a TempConfig is used after Cleanup.
var ErrClosed = errors.New("temporary NuGet config already cleaned up")

// ParseError reports a structurally invalid NuGet config file.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing NuGet config %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// FSError reports a filesystem failure while managing the temporary config.
type FSError struct {
	Op   string
	Path string
	Err  error
}

func (e *FSError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FSError) Unwrap() error {
	return e.Err
}
