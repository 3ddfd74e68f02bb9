package auth

import (
	"net/url"
	"strings"

	"github.com/majorcontext/nupush/internal/hosting"
)

// packagingLabel is the host label of the hosted packaging service, which
// serves an account's feeds at <account>.pkgs.<suffix>.
const packagingLabel = "pkgs"

// DerivePrefixes returns the URI prefixes that may receive the access token
// for collectionURI, using the default hosted suffix.
func DerivePrefixes(collectionURI string) ([]string, error) {
	return DerivePrefixesWithSuffix(collectionURI, hosting.DefaultSuffix)
}

// DerivePrefixesWithSuffix returns the collection URI itself and, on hosted
// collections, the root of the account's packaging host. Feeds live directly
// under that host regardless of the collection path. Every prefix ends in "/" so
// a prefix match cannot spill onto a longer host name. Malformed input fails
// with ErrInvalidURI.
func DerivePrefixesWithSuffix(collectionURI, suffix string) ([]string, error) {
	u, err := ParseCollectionURI(collectionURI)
	if err != nil {
		return nil, err
	}

	base := normalize(u)
	prefixes := []string{base.String()}

	host := base.Hostname()
	if hosting.HostMatches(host, suffix) {
		account, _, _ := strings.Cut(host, ".")
		pkgs := *base
		pkgs.Path = "/"
		pkgs.Host = account + "." + packagingLabel + "." + strings.Trim(suffix, ".")
		if port := base.Port(); port != "" {
			pkgs.Host += ":" + port
		}
		prefixes = appendUnique(prefixes, pkgs.String())
	}
	return prefixes, nil
}

// normalize drops everything but scheme, host and path, lower-cases the host
// and guarantees a trailing slash.
func normalize(u *url.URL) *url.URL {
	out := &url.URL{
		Scheme: strings.ToLower(u.Scheme),
		Host:   strings.ToLower(u.Host),
		Path:   u.Path,
	}
	if !strings.HasSuffix(out.Path, "/") {
		out.Path += "/"
	}
	return out
}

// MergePrefixes appends extra prefixes that are not already present, ignoring
// blanks. Used for test-only prefixes supplied through the agent.
func MergePrefixes(prefixes []string, extra ...string) []string {
	out := append([]string(nil), prefixes...)
	for _, p := range extra {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = appendUnique(out, p)
	}
	return out
}

func appendUnique(list []string, s string) []string {
	for _, existing := range list {
		if strings.EqualFold(existing, s) {
			return list
		}
	}
	return append(list, s)
}
