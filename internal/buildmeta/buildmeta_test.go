package buildmeta

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient(context.Background(), srv.URL+"/tfs/DefaultCollection/", "token-123")
	c.newBackOff = func() backoff.BackOff { return backoff.NewConstantBackOff(time.Millisecond) }
	return c
}

func TestNewMetadata(t *testing.T) {
	m := NewMetadata("Contoso.Lib", "1.2.3", Build{BuildID: "42", CommitID: "abc", CollectionID: "c", ProjectID: "p", RepositoryID: "r"})
	data, err := json.Marshal(m)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "Contoso.Lib", got["PackageName"])
	assert.Equal(t, "NuGet", got["ProtocolType"])
	assert.Equal(t, "42", got["BuildId"])
	assert.Equal(t, "abc", got["CommitId"])
	assert.Equal(t, "1.2.3", got["OriginalPackageVersion"])
	v, ok := got["BuildAccountId"]
	assert.True(t, ok)
	assert.Nil(t, v)

	m = NewMetadata("x", "1", Build{AccountID: "acct"})
	require.NotNil(t, m.BuildAccountID)
	assert.Equal(t, "acct", *m.BuildAccountID)
}

func TestClientURL(t *testing.T) {
	c := NewClient(context.Background(), "https://contoso.visualstudio.com/", "t")
	assert.Equal(t,
		"https://contoso.visualstudio.com/_apis/Packaging/Feeds/my%20feed/PackageRelationships/Builds?api-version=3.0-preview",
		c.URL("my feed"))
}

func TestPost(t *testing.T) {
	var received PackageBuildMetadata
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/tfs/DefaultCollection/_apis/Packaging/Feeds/feedA/PackageRelationships/Builds", r.URL.Path)
		assert.Equal(t, "3.0-preview", r.URL.Query().Get("api-version"))
		assert.Equal(t, "Bearer token-123", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &received))
		w.WriteHeader(http.StatusOK)
	})

	err := c.Post(context.Background(), "feedA", NewMetadata("Contoso.Lib", "1.0.0", Build{BuildID: "7"}))
	require.NoError(t, err)
	assert.Equal(t, "Contoso.Lib", received.PackageName)
	assert.Equal(t, "7", received.BuildID)
}

func TestPostRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusCreated)
	})

	require.NoError(t, c.Post(context.Background(), "feedA", NewMetadata("a", "1", Build{})))
	assert.Equal(t, int32(3), calls.Load())
}

func TestPostGivesUpAfterMaxTries(t *testing.T) {
	var calls atomic.Int32
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	err := c.Post(context.Background(), "feedA", NewMetadata("a", "1", Build{}))
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
	assert.Equal(t, int32(defaultMaxTries), calls.Load())
}

func TestPostClientErrorIsPermanent(t *testing.T) {
	var calls atomic.Int32
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "feed not found", http.StatusNotFound)
	})

	err := c.Post(context.Background(), "missing", NewMetadata("a", "1", Build{}))
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	assert.Contains(t, statusErr.Body, "feed not found")
	assert.Equal(t, int32(1), calls.Load())
}

func TestPostRequiresFeed(t *testing.T) {
	c := NewClient(context.Background(), "https://example.com", "t")
	assert.Error(t, c.Post(context.Background(), "", PackageBuildMetadata{}))
}
