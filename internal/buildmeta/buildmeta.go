// Package buildmeta associates pushed packages with the build that produced
// them by posting build metadata to the feed service.
package buildmeta

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/oauth2"

	"github.com/majorcontext/nupush/internal/log"
)

const (
	apiVersion      = "3.0-preview"
	protocolNuGet   = "NuGet"
	defaultMaxTries = 4
)

// PackageBuildMetadata is the request body of a build association.
type PackageBuildMetadata struct {
	PackageName       string `json:"PackageName"`
	ProtocolType      string `json:"ProtocolType"`
	BuildID           string `json:"BuildId"`
	CommitID          string `json:"CommitId"`
	BuildCollectionID string `json:"BuildCollectionId"`
	BuildProjectID    string `json:"BuildProjectId"`
	RepositoryID      string `json:"RepositoryId"`
	// BuildAccountID is null for on-premises collections.
	BuildAccountID         *string `json:"BuildAccountId"`
	OriginalPackageVersion string  `json:"OriginalPackageVersion"`
}

// Build identifies the build the packages come from.
type Build struct {
	BuildID      string
	CommitID     string
	CollectionID string
	ProjectID    string
	RepositoryID string
	AccountID    string
}

// NewMetadata combines package identity with build identity.
func NewMetadata(name, version string, b Build) PackageBuildMetadata {
	m := PackageBuildMetadata{
		PackageName:            name,
		ProtocolType:           protocolNuGet,
		BuildID:                b.BuildID,
		CommitID:               b.CommitID,
		BuildCollectionID:      b.CollectionID,
		BuildProjectID:         b.ProjectID,
		RepositoryID:           b.RepositoryID,
		OriginalPackageVersion: version,
	}
	if b.AccountID != "" {
		acct := b.AccountID
		m.BuildAccountID = &acct
	}
	return m
}

// StatusError is returned for a non-2xx response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("feed service returned %d", e.StatusCode)
	}
	return fmt.Sprintf("feed service returned %d: %s", e.StatusCode, e.Body)
}

// Client posts build metadata to a collection's packaging API.
type Client struct {
	collectionURI string
	httpClient    *http.Client
	maxTries      uint
	newBackOff    func() backoff.BackOff
}

// NewClient returns a client authenticating with a bearer access token.
func NewClient(ctx context.Context, collectionURI, accessToken string) *Client {
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})
	return &Client{
		collectionURI: strings.TrimRight(collectionURI, "/"),
		httpClient:    oauth2.NewClient(ctx, src),
		maxTries:      defaultMaxTries,
		newBackOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
	}
}

// URL returns the build association endpoint for feed.
func (c *Client) URL(feed string) string {
	return fmt.Sprintf("%s/_apis/Packaging/Feeds/%s/PackageRelationships/Builds?api-version=%s",
		c.collectionURI, url.PathEscape(feed), apiVersion)
}

// Post sends meta for feed. Server errors and transport failures are
// retried; client errors are not.
func (c *Client) Post(ctx context.Context, feed string, meta PackageBuildMetadata) error {
	if feed == "" {
		return errors.New("feed name is required")
	}
	body, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encoding build metadata: %w", err)
	}
	endpoint := c.URL(feed)
	log.Debug("posting build metadata", "url", endpoint, "package", meta.PackageName)

	op := func() (struct{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return struct{}{}, err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			_, _ = io.Copy(io.Discard, resp.Body)
			return struct{}{}, nil
		}

		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		statusErr := &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
		if resp.StatusCode < 500 {
			return struct{}{}, backoff.Permanent(statusErr)
		}
		return struct{}{}, statusErr
	}

	_, err = backoff.Retry(ctx, op,
		backoff.WithBackOff(c.newBackOff()),
		backoff.WithMaxTries(c.maxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Debug("retrying build metadata post", "error", err, "backoff", next)
		}),
	)
	if err != nil {
		return fmt.Errorf("posting build metadata for %s: %w", meta.PackageName, err)
	}
	return nil
}
