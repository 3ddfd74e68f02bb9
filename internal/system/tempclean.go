// Package system finds and removes temporary config directories left behind
// by runs that were killed before they could clean up. Those directories hold
// an access token, so they should not outlive the build.
package system

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gofrs/flock"
	"github.com/hashicorp/go-multierror"

	"github.com/majorcontext/nupush/internal/log"
	"github.com/majorcontext/nupush/internal/nugetconfig"
)

// OrphanedTempDir is a temporary config directory that is likely orphaned.
type OrphanedTempDir struct {
	Path    string
	ModTime time.Time
	Size    int64
}

// FindOrphanedTempDirs scans roots for temporary config directories not
// modified within minAge. Empty and duplicate roots are ignored.
func FindOrphanedTempDirs(roots []string, minAge time.Duration) ([]OrphanedTempDir, error) {
	var orphaned []OrphanedTempDir
	cutoff := time.Now().Add(-minAge)
	seen := make(map[string]bool)

	for _, root := range roots {
		if root == "" {
			continue
		}
		root = filepath.Clean(root)
		if seen[root] {
			continue
		}
		seen[root] = true

		matches, err := filepath.Glob(filepath.Join(root, nugetconfig.DirPrefix+"*"))
		if err != nil {
			return nil, fmt.Errorf("scanning %s: %w", root, err)
		}
		for _, match := range matches {
			info, err := os.Lstat(match)
			if err != nil || !info.IsDir() {
				continue
			}
			// Recently modified or locked directories belong to a running push.
			if info.ModTime().After(cutoff) || InUse(match) {
				continue
			}
			size, _ := dirSize(match)
			orphaned = append(orphaned, OrphanedTempDir{
				Path:    match,
				ModTime: info.ModTime(),
				Size:    size,
			})
		}
	}

	sort.Slice(orphaned, func(i, j int) bool { return orphaned[i].Path < orphaned[j].Path })
	return orphaned, nil
}

// CleanOrphanedTempDirs removes dirs, re-checking each one's age first so a
// push that started after the scan is left alone. It returns the skipped
// paths.
func CleanOrphanedTempDirs(dirs []OrphanedTempDir, minAge time.Duration) ([]string, error) {
	var result *multierror.Error
	var skipped []string
	cutoff := time.Now().Add(-minAge)

	for _, dir := range dirs {
		if info, err := os.Stat(dir.Path); err == nil && info.ModTime().After(cutoff) {
			skipped = append(skipped, dir.Path)
			continue
		}
		if InUse(dir.Path) {
			skipped = append(skipped, dir.Path)
			continue
		}
		if err := os.RemoveAll(dir.Path); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", dir.Path, err))
			continue
		}
		log.Debug("removed orphaned temp config", "path", dir.Path)
	}
	return skipped, result.ErrorOrNil()
}

// InUse reports whether a push still holds the lock inside dir. Directories
// without a lock file predate locking or were never fully created.
func InUse(dir string) bool {
	path := filepath.Join(dir, nugetconfig.LockFileName)
	if _, err := os.Stat(path); err != nil {
		return false
	}
	lock := flock.New(path)
	locked, err := lock.TryLock()
	if err != nil {
		log.Debug("cannot check temp config lock, assuming in use", "path", path, "error", err)
		return true
	}
	if !locked {
		return true
	}
	lock.Unlock()
	return false
}

func dirSize(path string) (int64, error) {
	var size int64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}

// FormatSize formats a byte size into a human-readable string.
func FormatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
