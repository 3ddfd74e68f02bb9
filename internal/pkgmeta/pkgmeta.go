// Package pkgmeta reads the identity of a NuGet package from its .nuspec
// manifest.
package pkgmeta

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zip"
)

// ErrNoManifest is returned when a package contains no .nuspec file.
var ErrNoManifest = errors.New("package has no .nuspec manifest")

// maxManifestSize bounds how much of a manifest is read.
const maxManifestSize = 4 << 20

// Metadata identifies a package.
type Metadata struct {
	ID      string
	Version string
}

type nuspec struct {
	Metadata struct {
		ID      string `xml:"id"`
		Version string `xml:"version"`
	} `xml:"metadata"`
}

// Read opens a .nupkg and returns the identity from the first .nuspec entry.
func Read(path string) (Metadata, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("opening package %s: %w", path, err)
	}
	defer zr.Close()

	meta, err := fromReader(&zr.Reader)
	if err != nil {
		return Metadata{}, fmt.Errorf("reading package %s: %w", path, err)
	}
	return meta, nil
}

// Parse is Read for a package already in memory or on another ReaderAt.
func Parse(r io.ReaderAt, size int64) (Metadata, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return Metadata{}, fmt.Errorf("opening package: %w", err)
	}
	return fromReader(zr)
}

func fromReader(zr *zip.Reader) (Metadata, error) {
	for _, f := range zr.File {
		if !strings.HasSuffix(strings.ToLower(f.Name), ".nuspec") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return Metadata{}, fmt.Errorf("opening %s: %w", f.Name, err)
		}
		defer rc.Close()
		return parseNuspec(io.LimitReader(rc, maxManifestSize))
	}
	return Metadata{}, ErrNoManifest
}

func parseNuspec(r io.Reader) (Metadata, error) {
	var manifest nuspec
	if err := xml.NewDecoder(r).Decode(&manifest); err != nil {
		return Metadata{}, fmt.Errorf("parsing nuspec: %w", err)
	}
	meta := Metadata{
		ID:      strings.TrimSpace(manifest.Metadata.ID),
		Version: strings.TrimSpace(manifest.Metadata.Version),
	}
	if meta.ID == "" || meta.Version == "" {
		return Metadata{}, errors.New("nuspec is missing id or version")
	}
	return meta, nil
}

// FeedName returns the path segment following "_packaging" in a feed URL,
// or "" when the URL is not a packaging feed URL.
func FeedName(feedURL string) string {
	segments := strings.Split(feedURL, "/")
	for i, s := range segments {
		if s == "_packaging" && i+1 < len(segments) {
			return segments[i+1]
		}
	}
	return ""
}
