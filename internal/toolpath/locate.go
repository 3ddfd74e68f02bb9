// Package toolpath finds the NuGet client and its optional credential
// provider under the agent's home directory and, optionally, on PATH.
package toolpath

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/majorcontext/nupush/internal/log"
)

// ErrNotFound is returned when a required tool cannot be located.
var ErrNotFound = errors.New("tool not found")

// DefaultRoots are the directories, relative to the agent home directory,
// searched in order.
var DefaultRoots = []string{
	"externals/nuget",
	"agent/Worker/Tools/NuGetCredentialProvider",
	"agent/Worker/Tools",
}

// NuGetFilenames are the client file names tried in order.
var NuGetFilenames = []string{"nuget.exe", "NuGet.exe", "nuget", "NuGet"}

// CredentialProviderFilename is the credential provider plugin file name.
const CredentialProviderFilename = "CredentialProvider.TeamBuild.exe"

// Locator searches a fixed set of roots for tool binaries.
type Locator struct {
	// HomeDir is the agent home directory. Roots are skipped when empty.
	HomeDir string
	// Roots overrides DefaultRoots when non-nil.
	Roots []string

	lookPath func(string) (string, error)
	goos     string
}

// New returns a Locator rooted at the agent home directory.
func New(homeDir string) *Locator {
	return &Locator{
		HomeDir:  homeDir,
		lookPath: exec.LookPath,
		goos:     runtime.GOOS,
	}
}

func (l *Locator) roots() []string {
	if l.Roots != nil {
		return l.Roots
	}
	return DefaultRoots
}

// Locate returns the first existing file among the candidate names, checking
// every candidate in each root before moving to the next root. When nothing
// is found and fallbackToSystemPath is set, each candidate is looked up on
// PATH in order. A missing tool is reported as ("", false).
func (l *Locator) Locate(tool string, candidates []string, fallbackToSystemPath bool) (string, bool) {
	if len(candidates) == 0 {
		candidates = []string{tool}
	}
	log.Debug("looking for tool", "tool", tool, "candidates", candidates)

	if l.HomeDir != "" {
		for _, root := range l.roots() {
			for _, name := range candidates {
				full := filepath.Join(l.HomeDir, filepath.FromSlash(root), name)
				if isFile(full) {
					log.Debug("found tool", "tool", tool, "path", full)
					return full, true
				}
			}
		}
	}

	if fallbackToSystemPath && l.lookPath != nil {
		for _, name := range candidates {
			if p, err := l.lookPath(name); err == nil && p != "" {
				log.Debug("found tool on PATH", "tool", tool, "path", p)
				return p, true
			}
		}
	}

	log.Debug("tool not found", "tool", tool)
	return "", false
}

// LocateNuGet returns the client to run. A user supplied path wins and must
// exist; otherwise the agent's bundled client is searched, falling back to
// PATH off Windows.
func (l *Locator) LocateNuGet(userPath string) (string, error) {
	if userPath != "" {
		if l.goos == "windows" {
			userPath = stripQuotes(userPath)
		}
		log.Debug("using user-supplied NuGet path", "path", userPath)
		if _, err := os.Stat(userPath); err != nil {
			return "", fmt.Errorf("%w: NuGet at %s: %v", ErrNotFound, userPath, err)
		}
		return userPath, nil
	}

	p, ok := l.Locate("NuGet", NuGetFilenames, l.goos != "windows")
	if !ok {
		return "", fmt.Errorf("%w: unable to locate NuGet", ErrNotFound)
	}
	return p, nil
}

// ProviderPolicy decides whether the credential provider may be used.
type ProviderPolicy interface {
	CredentialProviderEnabled() bool
}

// LocateCredentialProvider returns the credential provider path when it is
// present and allowed by policy. Absence and policy refusal look the same to
// the caller.
func (l *Locator) LocateCredentialProvider(policy ProviderPolicy) (string, bool) {
	p, ok := l.Locate(CredentialProviderFilename, nil, false)
	if !ok {
		log.Debug("credential provider is not present")
		return "", false
	}
	if policy == nil || !policy.CredentialProviderEnabled() {
		return "", false
	}
	return p, true
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// stripQuotes removes one pair of surrounding double quotes.
func stripQuotes(s string) string {
	if len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		return s[1 : len(s)-1]
	}
	return s
}
