package publish

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// FeedType selects where packages are pushed.
type FeedType string

const (
	// Internal feeds live in the current collection and use the build's token.
	Internal FeedType = "internal"
	// External feeds carry their own URL and API key.
	External FeedType = "external"
)

// ParseFeedType accepts either feed type in any case. Empty means External.
func ParseFeedType(s string) (FeedType, error) {
	switch {
	case s == "":
		return External, nil
	case strings.EqualFold(s, string(Internal)):
		return Internal, nil
	case strings.EqualFold(s, string(External)):
		return External, nil
	}
	return "", fmt.Errorf("unknown feed type %q: must be %q or %q", s, Internal, External)
}

const (
	// InternalSourceName is the source name written to the temporary config.
	InternalSourceName = "internalFeed"
	// internalAPIKey is the placeholder API key accepted by collection feeds.
	internalAPIKey = "VSTS"
)

// Options are the inputs of one publish.
type Options struct {
	SearchPattern string
	FeedType      FeedType
	// InternalFeedURL is the feed of the current collection.
	InternalFeedURL string
	// ExternalFeedURL and APIKey describe an external feed.
	ExternalFeedURL string
	APIKey          string
	// NuGetPath is a user supplied client. When empty the agent's client is
	// used and client extensions are disabled.
	NuGetPath string
	// BaseConfigPath is a NuGet.config to start from.
	BaseConfigPath       string
	Verbosity            string
	ExtraArgs            string
	PreCredProviderNuGet bool
	// BuildMetadata associates pushed packages with the build.
	BuildMetadata bool
}

// Validate reports every problem with o at once.
func (o Options) Validate() error {
	var result *multierror.Error
	if strings.TrimSpace(o.SearchPattern) == "" {
		result = multierror.Append(result, fmt.Errorf("search pattern is required"))
	}
	switch o.FeedType {
	case Internal:
		if o.InternalFeedURL == "" {
			result = multierror.Append(result, fmt.Errorf("--feed is required for internal feeds"))
		}
	case External:
		if o.ExternalFeedURL == "" {
			result = multierror.Append(result, fmt.Errorf("--external-feed-url is required for external feeds"))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("unknown feed type %q", o.FeedType))
	}
	return result.ErrorOrNil()
}
