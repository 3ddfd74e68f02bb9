// Package search resolves a package search pattern into the files to push.
//
// A pattern is a semicolon separated list of globs. Globs prefixed with "-:"
// exclude matches, "+:" (or no prefix) include them. "**" matches any number
// of directories.
package search

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobwas/glob"
)

// ErrNoMatch is returned when a pattern matches no file.
var ErrNoMatch = errors.New("no files matched the search pattern")

const (
	includePrefix = "+:"
	excludePrefix = "-:"
	globMeta      = "*?[{"
)

type matcher struct {
	root  string
	globs []glob.Glob
}

func (m matcher) match(p string) bool {
	for _, g := range m.globs {
		if g.Match(p) {
			return true
		}
	}
	return false
}

// Resolve expands filterSpec relative to basePath and returns the matching
// regular files, sorted. Matching nothing is an error.
func Resolve(filterSpec, basePath string) ([]string, error) {
	var includes, excludes []matcher
	for _, raw := range strings.Split(filterSpec, ";") {
		pattern := strings.TrimSpace(raw)
		exclude := false
		switch {
		case strings.HasPrefix(pattern, excludePrefix):
			exclude = true
			pattern = strings.TrimSpace(pattern[len(excludePrefix):])
		case strings.HasPrefix(pattern, includePrefix):
			pattern = strings.TrimSpace(pattern[len(includePrefix):])
		}
		if pattern == "" {
			continue
		}

		m, err := compile(pattern, basePath)
		if err != nil {
			return nil, err
		}
		if exclude {
			excludes = append(excludes, m)
		} else {
			includes = append(includes, m)
		}
	}
	if len(includes) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrNoMatch, filterSpec)
	}

	found := make(map[string]struct{})
	for _, inc := range includes {
		if err := walk(inc, found); err != nil {
			return nil, err
		}
	}

	var out []string
	for p := range found {
		slashed := filepath.ToSlash(p)
		excluded := false
		for _, exc := range excludes {
			if exc.match(slashed) {
				excluded = true
				break
			}
		}
		if !excluded {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrNoMatch, filterSpec)
	}
	sort.Strings(out)

	for _, p := range out {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.Mode().IsRegular() {
			return nil, fmt.Errorf("%s is not a regular file", p)
		}
	}
	return out, nil
}

// compile roots pattern at basePath and splits off the literal directory
// prefix to walk from.
func compile(pattern, basePath string) (matcher, error) {
	if !filepath.IsAbs(pattern) {
		pattern = filepath.Join(basePath, pattern)
	}
	slashed := filepath.ToSlash(filepath.Clean(pattern))

	variants := collapseVariants(slashed)

	m := matcher{root: filepath.FromSlash(literalPrefix(slashed))}
	for _, v := range variants {
		g, err := glob.Compile(v, '/')
		if err != nil {
			return matcher{}, fmt.Errorf("invalid search pattern %q: %w", pattern, err)
		}
		m.globs = append(m.globs, g)
	}
	return m, nil
}

// collapseVariants returns pattern together with every combination of its
// "/**/" segments collapsed to "/", so that "a/**/b/**/c" also matches
// "a/b/x/c", "a/x/b/c" and "a/b/c".
func collapseVariants(pattern string) []string {
	parts := strings.Split(pattern, "/**/")
	variants := []string{parts[0]}
	for _, part := range parts[1:] {
		next := make([]string, 0, len(variants)*2)
		for _, v := range variants {
			next = append(next, v+"/**/"+part, v+"/"+part)
		}
		variants = next
	}
	return variants
}

// literalPrefix returns the leading directories of a slash pattern that
// contain no glob metacharacters.
func literalPrefix(pattern string) string {
	if !strings.ContainsAny(pattern, globMeta) {
		return pattern
	}
	idx := strings.IndexAny(pattern, globMeta)
	dir := path.Dir(pattern[:idx+1])
	if dir == "." {
		return ""
	}
	return dir
}

func walk(m matcher, found map[string]struct{}) error {
	root := m.root
	if root == "" {
		root = "."
	}
	info, err := os.Stat(root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if !info.IsDir() {
		if m.match(filepath.ToSlash(root)) {
			found[root] = struct{}{}
		}
		return nil
	}

	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if m.match(filepath.ToSlash(p)) {
			found[p] = struct{}{}
		}
		return nil
	})
}
