// Package nugetconfig manages a temporary NuGet config file holding package
// sources and prefix-scoped credentials for one client invocation. The user's
// own config is only ever read.
package nugetconfig

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/majorcontext/nupush/internal/auth"
	"github.com/majorcontext/nupush/internal/log"
)

const (
	configFileName = "NuGet.config"

	// DirPrefix starts the name of every temporary config directory.
	DirPrefix = "nupush-"

	// LockFileName is held with an exclusive lock inside the temporary
	// directory for as long as the owning TempConfig is alive.
	LockFileName = ".lock"

	// TokenUsername is the user name paired with the access token.
	TokenUsername = "VSTS"

	lockTimeout    = 10 * time.Second
	lockRetryDelay = 50 * time.Millisecond
)

// skeleton is the empty config the client itself would create.
const skeleton = `<?xml version="1.0" encoding="utf-8"?>
<configuration>
  <packageSources />
</configuration>
`

// Options configures a TempConfig.
type Options struct {
	// BaseConfigPath seeds the temporary config with a copy of this file.
	BaseConfigPath string
	// Auth scopes which sources receive credentials.
	Auth auth.Info
	// TempRoot is the parent of the temporary directory. Defaults to os.TempDir().
	TempRoot string
}

// TempConfig owns a uniquely named temporary directory and the config file in
// it. The directory is created on first use and removed by Cleanup.
// A TempConfig is not safe for concurrent use.
type TempConfig struct {
	opts    Options
	dir     string
	path    string
	lock    *flock.Flock
	created bool
	closed  bool
}

// New returns a TempConfig. Nothing touches the filesystem until the first
// mutation.
func New(opts Options) *TempConfig {
	root := opts.TempRoot
	if root == "" {
		root = os.TempDir()
	}
	dir := filepath.Join(root, DirPrefix+uuid.NewString())
	return &TempConfig{
		opts: opts,
		dir:  dir,
		path: filepath.Join(dir, configFileName),
	}
}

// With runs fn with a fresh TempConfig and always cleans it up afterwards,
// including when fn fails or panics.
func With(opts Options, fn func(*TempConfig) error) error {
	c := New(opts)
	defer c.Cleanup()
	return fn(c)
}

// Path returns the config file path passed to the client as -ConfigFile.
func (c *TempConfig) Path() string {
	return c.path
}

// Dir returns the temporary directory owned by c.
func (c *TempConfig) Dir() string {
	return c.dir
}

// EnsureCreated creates the directory and seeds the config file if it does
// not exist yet. It is idempotent.
func (c *TempConfig) EnsureCreated(ctx context.Context) error {
	if c.closed {
		return ErrClosed
	}
	if _, err := os.Stat(c.path); err == nil {
		return nil
	}

	if !c.created {
		if err := os.MkdirAll(filepath.Dir(c.dir), 0755); err != nil {
			return &FSError{Op: "creating temp root", Path: filepath.Dir(c.dir), Err: err}
		}
		if err := os.Mkdir(c.dir, 0700); err != nil {
			return &FSError{Op: "creating temp config dir", Path: c.dir, Err: err}
		}
		c.created = true

		lock := flock.New(filepath.Join(c.dir, LockFileName))
		locked, err := lock.TryLock()
		if err != nil {
			return &FSError{Op: "locking temp config dir", Path: c.dir, Err: err}
		}
		if !locked {
			return &FSError{Op: "locking temp config dir", Path: c.dir, Err: errors.New("already locked")}
		}
		c.lock = lock
	}

	seed := []byte(skeleton)
	if base := c.opts.BaseConfigPath; base != "" {
		data, err := readShared(ctx, base)
		if err != nil {
			return err
		}
		seed = data
	}

	if err := c.write(seed); err != nil {
		return err
	}
	log.Debug("created temporary NuGet config", "path", c.path, "base", c.opts.BaseConfigPath)
	return nil
}

// SetSources replaces any sources sharing a name with the incoming ones and
// adds them. Sources whose URI matches the token's prefixes also get a
// credential entry; all others get none.
func (c *TempConfig) SetSources(ctx context.Context, sources []PackageSource) error {
	for _, src := range sources {
		if src.Name == "" || src.URI == "" {
			return fmt.Errorf("package source needs a name and a URI: %+v", src)
		}
	}
	if err := c.EnsureCreated(ctx); err != nil {
		return err
	}

	doc, err := c.load()
	if err != nil {
		return err
	}

	token := c.opts.Auth.AccessToken()
	for _, src := range sources {
		// Removing first keeps a re-apply, or a repeated name, to one entry.
		doc.removeSource(src.Name)
		doc.addSource(src)

		if token != "" && c.opts.Auth.Matches(src.URI) {
			log.Debug("adding credentials for source", "source", src.Name, "uri", src.URI)
			doc.setCredential(src.Name, TokenUsername, token)
		} else {
			log.Debug("source is outside the token scope, not adding credentials", "source", src.Name, "uri", src.URI)
		}
	}
	return c.write(doc.bytes())
}

// Sources returns the package sources currently in the config.
func (c *TempConfig) Sources(ctx context.Context) ([]PackageSource, error) {
	if err := c.EnsureCreated(ctx); err != nil {
		return nil, err
	}
	doc, err := c.load()
	if err != nil {
		return nil, err
	}
	return doc.sources(), nil
}

// Credentials returns the credential entries currently in the config.
func (c *TempConfig) Credentials(ctx context.Context) ([]Credential, error) {
	if err := c.EnsureCreated(ctx); err != nil {
		return nil, err
	}
	doc, err := c.load()
	if err != nil {
		return nil, err
	}
	return doc.credentials(), nil
}

// Cleanup removes the temporary directory. It is safe to call repeatedly and
// before anything was created. Removal failures are logged, never returned.
func (c *TempConfig) Cleanup() {
	if c.closed {
		return
	}
	c.closed = true
	if !c.created {
		return
	}
	if c.lock != nil {
		if err := c.lock.Unlock(); err != nil {
			log.Debug("failed to unlock temporary NuGet config", "dir", c.dir, "error", err)
		}
		c.lock = nil
	}
	if err := os.RemoveAll(c.dir); err != nil {
		log.Warn("failed to remove temporary NuGet config", "dir", c.dir, "error", err)
		return
	}
	log.Debug("removed temporary NuGet config", "dir", c.dir)
}

func (c *TempConfig) load() (*document, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return nil, &FSError{Op: "reading temp config", Path: c.path, Err: err}
	}
	doc, err := parseDocument(bytes.NewReader(data))
	if err != nil {
		return nil, &ParseError{Path: c.path, Err: err}
	}
	return doc, nil
}

// write replaces the config file atomically so the client never sees a
// partially written file.
func (c *TempConfig) write(data []byte) error {
	tmp, err := os.CreateTemp(c.dir, configFileName+".*.tmp")
	if err != nil {
		return &FSError{Op: "writing temp config", Path: c.path, Err: err}
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &FSError{Op: "writing temp config", Path: c.path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &FSError{Op: "writing temp config", Path: c.path, Err: err}
	}
	if err := os.Rename(tmpName, c.path); err != nil {
		os.Remove(tmpName)
		return &FSError{Op: "writing temp config", Path: c.path, Err: err}
	}
	return nil
}

// readShared reads the user's config under a shared lock so a concurrent
// writer holding an exclusive lock cannot hand us a torn file.
func readShared(ctx context.Context, path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &FSError{Op: "reading base config", Path: path, Err: err}
	}
	if info.IsDir() {
		return nil, &FSError{Op: "reading base config", Path: path, Err: errors.New("is a directory")}
	}

	lock := flock.New(path, flock.SetFlag(os.O_RDONLY))
	lockCtx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()

	locked, err := lock.TryRLockContext(lockCtx, lockRetryDelay)
	if err != nil {
		return nil, &FSError{Op: "locking base config", Path: path, Err: err}
	}
	if !locked {
		return nil, &FSError{Op: "locking base config", Path: path, Err: fmt.Errorf("timeout after %v", lockTimeout)}
	}
	defer lock.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &FSError{Op: "reading base config", Path: path, Err: err}
	}
	return data, nil
}
