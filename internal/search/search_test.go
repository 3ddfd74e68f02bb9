package search

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func layout(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	for _, f := range []string{
		"out/A.1.0.0.nupkg",
		"out/A.1.0.0.symbols.nupkg",
		"out/sub/B.2.0.0.nupkg",
		"out/deep/er/C.3.0.0.nupkg",
		"src/readme.md",
	} {
		p := filepath.Join(root, filepath.FromSlash(f))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte("x"), 0644))
	}
	return root
}

func rel(t *testing.T, root string, paths []string) []string {
	t.Helper()
	out := make([]string, len(paths))
	for i, p := range paths {
		r, err := filepath.Rel(root, p)
		require.NoError(t, err)
		out[i] = filepath.ToSlash(r)
	}
	return out
}

func TestResolve(t *testing.T) {
	root := layout(t)
	tests := []struct {
		name    string
		pattern string
		want    []string
	}{
		{"single star", "out/*.nupkg", []string{"out/A.1.0.0.nupkg", "out/A.1.0.0.symbols.nupkg"}},
		{"double star", "out/**/*.nupkg", []string{
			"out/A.1.0.0.nupkg", "out/A.1.0.0.symbols.nupkg", "out/deep/er/C.3.0.0.nupkg", "out/sub/B.2.0.0.nupkg",
		}},
		{"exclude symbols", "**/*.nupkg;-:**/*.symbols.nupkg", []string{
			"out/A.1.0.0.nupkg", "out/deep/er/C.3.0.0.nupkg", "out/sub/B.2.0.0.nupkg",
		}},
		{"explicit include prefix", "+:out/sub/*.nupkg", []string{"out/sub/B.2.0.0.nupkg"}},
		{"literal file", "out/sub/B.2.0.0.nupkg", []string{"out/sub/B.2.0.0.nupkg"}},
		{"multiple includes deduplicated", "out/*.nupkg; out/A.*.nupkg", []string{"out/A.1.0.0.nupkg", "out/A.1.0.0.symbols.nupkg"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(tt.pattern, root)
			require.NoError(t, err)
			assert.Equal(t, tt.want, rel(t, root, got))
		})
	}
}

func TestResolveAbsolutePattern(t *testing.T) {
	root := layout(t)
	got, err := Resolve(filepath.Join(root, "out", "sub", "*.nupkg"), "/elsewhere")
	require.NoError(t, err)
	assert.Equal(t, []string{"out/sub/B.2.0.0.nupkg"}, rel(t, root, got))
}

func TestResolveNoMatch(t *testing.T) {
	root := layout(t)
	for _, pattern := range []string{"", ";", "missing/*.nupkg", "**/*.snupkg", "out/*.nupkg;-:out/*.nupkg", "-:out/*.nupkg"} {
		t.Run(pattern, func(t *testing.T) {
			_, err := Resolve(pattern, root)
			assert.ErrorIs(t, err, ErrNoMatch)
		})
	}
}

func TestResolveInvalidPattern(t *testing.T) {
	_, err := Resolve("out/[.nupkg", layout(t))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoMatch)
}

func TestLiteralPrefix(t *testing.T) {
	assert.Equal(t, "/a/b", literalPrefix("/a/b/*.nupkg"))
	assert.Equal(t, "/a", literalPrefix("/a/**/x"))
	assert.Equal(t, "/a/b/c.nupkg", literalPrefix("/a/b/c.nupkg"))
	assert.Equal(t, "", literalPrefix("*.nupkg"))
	assert.Equal(t, "/", literalPrefix("/*.nupkg"))
}

func TestResolveExcludesRestoredPackages(t *testing.T) {
	root := t.TempDir()
	for _, f := range []string{
		"Widgets.1.0.0.nupkg",
		"packages/sub/Newtonsoft.Json.13.0.1.nupkg",
		"packages/Direct.1.0.0.nupkg",
		"src/packages/lib/Dep.2.0.0.nupkg",
		"src/bin/Gadgets.2.0.0.nupkg",
	} {
		p := filepath.Join(root, filepath.FromSlash(f))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte("x"), 0644))
	}

	got, err := Resolve("**/*.nupkg;-:**/packages/**/*.nupkg", root)
	require.NoError(t, err)
	assert.Equal(t, []string{"Widgets.1.0.0.nupkg", "src/bin/Gadgets.2.0.0.nupkg"}, rel(t, root, got))
}

func TestCollapseVariants(t *testing.T) {
	assert.Equal(t, []string{"/a/*.nupkg"}, collapseVariants("/a/*.nupkg"))
	assert.Equal(t, []string{"/a/**/b", "/a/b"}, collapseVariants("/a/**/b"))
	assert.Equal(t, []string{
		"/r/**/packages/**/*.nupkg",
		"/r/**/packages/*.nupkg",
		"/r/packages/**/*.nupkg",
		"/r/packages/*.nupkg",
	}, collapseVariants("/r/**/packages/**/*.nupkg"))
}
