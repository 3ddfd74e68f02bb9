// Package nugetenv computes the process environment for a NuGet client
// invocation from the agent environment and the scoped credentials.
package nugetenv

import (
	"sort"
	"strings"

	"github.com/majorcontext/nupush/internal/auth"
	"github.com/majorcontext/nupush/internal/log"
)

// Environment variables read by the NuGet client and its credential provider.
const (
	AccessTokenVar                = "VSS_NUGET_ACCESSTOKEN"
	URIPrefixesVar                = "VSS_NUGET_URI_PREFIXES"
	CredentialProviderOverrideVar = "NUGET_CREDENTIAL_PROVIDER_OVERRIDE_DEFAULT"
	CredentialProvidersPathVar    = "NUGET_CREDENTIALPROVIDERS_PATH"
	ExtensionsPathVar             = "NUGET_EXTENSIONS_PATH"
)

// listSeparator joins prefix and provider path lists.
const listSeparator = ";"

// Settings drives environment construction for one invocation.
type Settings struct {
	Auth auth.Info
	// CredentialProviderFolder is the directory of a located credential
	// provider, or "".
	CredentialProviderFolder string
	// ExtensionsDisabled drops NUGET_EXTENSIONS_PATH. Extensions are pinned
	// to one client version and break when the agent's client is upgraded,
	// so they are only honoured with a user supplied client.
	ExtensionsDisabled bool
}

// Build returns a new environment: base with the extensions path filtered,
// the credential provider path rebuilt folder-first, and the token variables
// set. base is not modified.
func Build(base map[string]string, s Settings) map[string]string {
	env := make(map[string]string, len(base)+4)
	var originalProviderPath string

	for k, v := range base {
		switch strings.ToUpper(k) {
		case ExtensionsPathVar:
			if s.ExtensionsDisabled {
				log.Warn("ignoring NUGET_EXTENSIONS_PATH; set a NuGet path to use extensions with a pinned client")
				continue
			}
			log.Info("detected NUGET_EXTENSIONS_PATH", "value", v)
		case CredentialProvidersPathVar:
			originalProviderPath = v
			continue
		}
		env[k] = v
	}

	env[AccessTokenVar] = s.Auth.AccessToken()
	env[URIPrefixesVar] = strings.Join(s.Auth.URIPrefixes(), listSeparator)
	env[CredentialProviderOverrideVar] = "true"

	if p := joinNonEmpty(s.CredentialProviderFolder, originalProviderPath); p != "" {
		log.Debug("credential provider path", "path", p)
		env[CredentialProvidersPathVar] = p
	}
	return env
}

func joinNonEmpty(parts ...string) string {
	var out []string
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, listSeparator)
}

// FromEnviron converts os.Environ style "KEY=value" pairs to a map. Later
// duplicates win; entries without "=" are dropped.
func FromEnviron(environ []string) map[string]string {
	env := make(map[string]string, len(environ))
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		env[k] = v
	}
	return env
}

// Environ converts env to sorted "KEY=value" pairs for exec.Cmd.
func Environ(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}
