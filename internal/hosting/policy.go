// Package hosting classifies a collection as hosted or on-premises and
// decides which credential delivery mechanism the NuGet client may use.
//
// Classification is done by inspecting the collection URI only. Probing the
// server over the network is avoided because agents behind proxies frequently
// cannot reach it.
package hosting

import (
	"net/url"
	"strings"

	"github.com/majorcontext/nupush/internal/log"
)

// DefaultSuffix is the domain suffix of hosted collections.
const DefaultSuffix = "visualstudio.com"

// Override is a three-valued forcing flag. "true" forces a policy on,
// "false" forces it off, and any other value defers to the default rule.
type Override string

const (
	// NoOverride defers to the default rule.
	NoOverride Override = ""
	// ForceEnable forces the policy on.
	ForceEnable Override = "true"
	// ForceDisable forces the policy off.
	ForceDisable Override = "false"
)

// forced reports the forced value and whether the override applies.
func (o Override) forced() (enabled, ok bool) {
	switch o {
	case ForceEnable:
		return true, true
	case ForceDisable:
		return false, true
	}
	return false, false
}

// Policy evaluates credential policies for one collection.
type Policy struct {
	// CollectionURI is the base URI of the current collection.
	CollectionURI string
	// HostedSuffix overrides DefaultSuffix when set.
	HostedSuffix string
	// ForceCredentialProvider overrides the credential provider default.
	ForceCredentialProvider Override
	// ForceCredentialConfig overrides the credential config default.
	ForceCredentialConfig Override
}

func (p Policy) suffix() string {
	if p.HostedSuffix != "" {
		return p.HostedSuffix
	}
	return DefaultSuffix
}

// IsHosted reports whether the collection lives on the hosted service.
func (p Policy) IsHosted() bool {
	return IsHostedWithSuffix(p.CollectionURI, p.suffix())
}

// CredentialProviderEnabled reports whether the credential provider plugin
// may be used. It is on for on-premises servers, where it is needed to
// override NTLM with the build identity's token, and off on hosted, where the
// provider flow intermittently drops credentials.
func (p Policy) CredentialProviderEnabled() bool {
	if enabled, ok := p.ForceCredentialProvider.forced(); ok {
		log.Debug("credential provider forced by override", "enabled", enabled)
		return enabled
	}
	if p.IsHosted() {
		log.Debug("credential provider is disabled on hosted")
		return false
	}
	log.Debug("credential provider is enabled")
	return true
}

// CredentialConfigEnabled reports whether credentials may be embedded in a
// NuGet config file. Config credentials always fail against on-premises
// authentication, so they are only enabled on hosted.
func (p Policy) CredentialConfigEnabled() bool {
	if enabled, ok := p.ForceCredentialConfig.forced(); ok {
		log.Debug("credential config forced by override", "enabled", enabled)
		return enabled
	}
	if !p.IsHosted() {
		log.Debug("credential config is disabled on-premises")
		return false
	}
	log.Debug("credential config is enabled")
	return true
}

// IsHosted reports whether collectionURI belongs to the hosted service,
// using DefaultSuffix. An unparsable URI is treated as on-premises.
func IsHosted(collectionURI string) bool {
	return IsHostedWithSuffix(collectionURI, DefaultSuffix)
}

// IsHostedWithSuffix is IsHosted for a custom hosted domain suffix.
func IsHostedWithSuffix(collectionURI, suffix string) bool {
	u, err := url.Parse(collectionURI)
	if err != nil {
		log.Debug("collection URI is not parsable, assuming on-premises", "uri", collectionURI, "error", err)
		return false
	}
	return HostMatches(u.Hostname(), suffix)
}

// HostMatches reports whether host is a subdomain of suffix, ignoring case.
// The bare suffix itself does not match.
func HostMatches(host, suffix string) bool {
	if host == "" || suffix == "" {
		return false
	}
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	suffix = "." + strings.ToLower(strings.Trim(suffix, "."))
	return len(host) > len(suffix) && strings.HasSuffix(host, suffix)
}

// CredentialProviderEnabled evaluates the credential provider policy for
// collectionURI with the default hosted suffix.
func CredentialProviderEnabled(collectionURI string, override Override) bool {
	return Policy{CollectionURI: collectionURI, ForceCredentialProvider: override}.CredentialProviderEnabled()
}

// CredentialConfigEnabled evaluates the credential config policy for
// collectionURI with the default hosted suffix.
func CredentialConfigEnabled(collectionURI string, override Override) bool {
	return Policy{CollectionURI: collectionURI, ForceCredentialConfig: override}.CredentialConfigEnabled()
}
