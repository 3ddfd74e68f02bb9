package publish

import "fmt"

// Error is a publish failure with an actionable hint for the user.
type Error struct {
	Op      string
	Package string
	Cause   error
	Hint    string
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Package != "" {
		msg = fmt.Sprintf("%s %s", e.Op, e.Package)
	}
	if e.Hint != "" {
		return fmt.Sprintf("%s: %v\n\n%s", msg, e.Cause, e.Hint)
	}
	return fmt.Sprintf("%s: %v", msg, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

const (
	hintPermissions = "Make sure the build identity has Contributor permission on the feed."
	hintNuGetPath   = "Install NuGet on the agent or pass --nuget-path."
	hintSearch      = "Check the search pattern. Relative patterns are resolved against SYSTEM_DEFAULTWORKINGDIRECTORY or the current directory."
)
