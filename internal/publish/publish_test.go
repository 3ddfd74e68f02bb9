package publish

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/majorcontext/nupush/internal/buildmeta"
	"github.com/majorcontext/nupush/internal/config"
	"github.com/majorcontext/nupush/internal/hosting"
	"github.com/majorcontext/nupush/internal/runner"
	"github.com/majorcontext/nupush/internal/search"
	"github.com/majorcontext/nupush/internal/toolpath"
)

const (
	hostedCollection = "https://contoso.visualstudio.com/"
	onPremCollection = "https://tfs.contoso.local/tfs/DefaultCollection/"
	hostedFeed       = "https://contoso.pkgs.visualstudio.com/_packaging/feedA/nuget/v3/index.json"
	onPremFeed       = "https://tfs.contoso.local/tfs/DefaultCollection/_packaging/feedA/nuget/v3/index.json"
)

type invocation struct {
	cmd        *runner.Command
	configData string
}

type fakeExecutor struct {
	calls []invocation
	fail  error
}

func (f *fakeExecutor) Exec(ctx context.Context, cmd *runner.Command) error {
	inv := invocation{cmd: cmd}
	if cfg := argValue(cmd.Args, "-ConfigFile"); cfg != "" {
		data, err := os.ReadFile(cfg)
		if err != nil {
			return fmt.Errorf("config file missing during push: %w", err)
		}
		inv.configData = string(data)
	}
	f.calls = append(f.calls, inv)
	return f.fail
}

type fakePoster struct {
	mu    sync.Mutex
	feeds []string
	metas []buildmeta.PackageBuildMetadata
}

func (f *fakePoster) Post(ctx context.Context, feed string, meta buildmeta.PackageBuildMetadata) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.feeds = append(f.feeds, feed)
	f.metas = append(f.metas, meta)
	return nil
}

func argValue(args []string, flag string) string {
	for i, a := range args {
		if a == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func envMap(env []string) map[string]string {
	m := make(map[string]string, len(env))
	for _, kv := range env {
		k, v, _ := strings.Cut(kv, "=")
		m[k] = v
	}
	return m
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, data, 0755))
}

func nupkg(t *testing.T, id, version string) []byte {
	t.Helper()
	path := filepath.Join(t.TempDir(), "p.nupkg")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create(id + ".nuspec")
	require.NoError(t, err)
	_, err = fmt.Fprintf(w, "<package><metadata><id>%s</id><version>%s</version></metadata></package>", id, version)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

type fixture struct {
	cfg      *config.Config
	agent    string
	work     string
	temp     string
	exec     *fakeExecutor
	poster   *fakePoster
	pub      *Publisher
	packages []string
}

func newFixture(t *testing.T, collection string, withProvider bool) *fixture {
	t.Helper()
	root := t.TempDir()
	f := &fixture{
		agent:  filepath.Join(root, "agent"),
		work:   filepath.Join(root, "work"),
		temp:   filepath.Join(root, "tmp"),
		exec:   &fakeExecutor{},
		poster: &fakePoster{},
	}
	writeFile(t, filepath.Join(f.agent, "externals", "nuget", "nuget"), []byte("#!/bin/sh\n"))
	if withProvider {
		writeFile(t, filepath.Join(f.agent, "agent", "Worker", "Tools", toolpath.CredentialProviderFilename), []byte("x"))
	}
	for _, name := range []string{"A", "B"} {
		p := filepath.Join(f.work, "out", "Contoso."+name+".1.0.0.nupkg")
		writeFile(t, p, nupkg(t, "Contoso."+name, "1.0.0"))
		f.packages = append(f.packages, p)
	}
	require.NoError(t, os.MkdirAll(f.temp, 0755))

	f.cfg = config.Default()
	f.cfg.CollectionURI = collection
	f.cfg.AccessToken = "build-token"
	f.cfg.AgentHomeDir = f.agent
	f.cfg.WorkingDir = f.work
	f.cfg.TempDir = f.temp
	f.cfg.Build = config.BuildConfig{BuildID: "42", SourceVersion: "abc123"}

	f.pub = New(f.cfg, f.exec)
	f.pub.environ = func() []string {
		return []string{"PATH=/usr/bin", "NUGET_EXTENSIONS_PATH=/ext", "NUGET_CREDENTIALPROVIDERS_PATH=/orig"}
	}
	f.pub.poster = func(ctx context.Context, collectionURI, token string) MetadataPoster {
		return f.poster
	}
	return f
}

func (f *fixture) tempEntries(t *testing.T) []os.DirEntry {
	t.Helper()
	entries, err := os.ReadDir(f.temp)
	require.NoError(t, err)
	return entries
}

func TestRunInternalHostedWritesTempConfig(t *testing.T) {
	f := newFixture(t, hostedCollection, false)

	res, err := f.pub.Run(context.Background(), Options{
		SearchPattern:   "out/*.nupkg",
		FeedType:        Internal,
		InternalFeedURL: hostedFeed,
	})
	require.NoError(t, err)
	assert.Equal(t, f.packages, res.Packages)
	require.Len(t, f.exec.calls, 2)

	for i, inv := range f.exec.calls {
		args := inv.cmd.Args
		assert.Equal(t, []string{"push", "-NonInteractive", f.packages[i], "-Source", hostedFeed}, args[:5])
		assert.Equal(t, "VSTS", argValue(args, "-ApiKey"))
		assert.Equal(t, res.ConfigFile, argValue(args, "-ConfigFile"))
		assert.Contains(t, inv.configData, `key="internalFeed"`)
		assert.Contains(t, inv.configData, "ClearTextPassword")
		assert.Contains(t, inv.configData, "build-token")

		env := envMap(inv.cmd.Env)
		assert.Equal(t, "build-token", env["VSS_NUGET_ACCESSTOKEN"])
		assert.Equal(t, "https://contoso.visualstudio.com/;https://contoso.pkgs.visualstudio.com/", env["VSS_NUGET_URI_PREFIXES"])
		assert.NotContains(t, env, "NUGET_EXTENSIONS_PATH")
		assert.Equal(t, "/orig", env["NUGET_CREDENTIALPROVIDERS_PATH"])
	}

	assert.NoFileExists(t, res.ConfigFile)
	assert.Empty(t, f.tempEntries(t))
}

func TestRunOnPremUsesCredentialProvider(t *testing.T) {
	f := newFixture(t, onPremCollection, true)

	res, err := f.pub.Run(context.Background(), Options{
		SearchPattern:   "out/Contoso.A.*.nupkg",
		FeedType:        Internal,
		InternalFeedURL: onPremFeed,
	})
	require.NoError(t, err)
	assert.Empty(t, res.ConfigFile)
	require.Len(t, f.exec.calls, 1)

	cmd := f.exec.calls[0].cmd
	assert.Empty(t, argValue(cmd.Args, "-ConfigFile"))
	providerDir := filepath.Join(f.agent, "agent", "Worker", "Tools")
	assert.Equal(t, providerDir+";/orig", envMap(cmd.Env)["NUGET_CREDENTIALPROVIDERS_PATH"])
	assert.Equal(t, "true", envMap(cmd.Env)["NUGET_CREDENTIAL_PROVIDER_OVERRIDE_DEFAULT"])
}

func TestRunPreCredProviderClientGetsTempConfig(t *testing.T) {
	f := newFixture(t, onPremCollection, true)
	f.cfg.ForceCredentialConfig = hosting.ForceEnable
	userClient := filepath.Join(f.agent, "externals", "nuget", "nuget")

	res, err := f.pub.Run(context.Background(), Options{
		SearchPattern:        "out/Contoso.A.*.nupkg",
		FeedType:             Internal,
		InternalFeedURL:      onPremFeed,
		NuGetPath:            userClient,
		PreCredProviderNuGet: true,
	})
	require.NoError(t, err)
	require.Len(t, f.exec.calls, 1)

	inv := f.exec.calls[0]
	assert.Equal(t, userClient, inv.cmd.Path)
	assert.NotEmpty(t, res.ConfigFile)
	assert.Contains(t, inv.configData, "build-token")
	assert.Equal(t, "/ext", envMap(inv.cmd.Env)["NUGET_EXTENSIONS_PATH"])
	assert.Empty(t, f.tempEntries(t))
}

func TestRunCredentialConfigDisabled(t *testing.T) {
	f := newFixture(t, hostedCollection, false)
	f.cfg.ForceCredentialConfig = hosting.ForceDisable

	res, err := f.pub.Run(context.Background(), Options{
		SearchPattern:   "out/*.nupkg",
		FeedType:        Internal,
		InternalFeedURL: hostedFeed,
	})
	require.NoError(t, err)
	assert.Empty(t, res.ConfigFile)
	assert.Empty(t, f.tempEntries(t))
}

func TestRunExternal(t *testing.T) {
	f := newFixture(t, hostedCollection, false)

	_, err := f.pub.Run(context.Background(), Options{
		SearchPattern:   "out/*.nupkg",
		FeedType:        External,
		ExternalFeedURL: "https://api.nuget.org/v3/index.json",
		APIKey:          "external-key",
		Verbosity:       "detailed",
		ExtraArgs:       "-Timeout 300",
	})
	require.NoError(t, err)
	require.Len(t, f.exec.calls, 2)

	args := f.exec.calls[0].cmd.Args
	assert.Equal(t, "https://api.nuget.org/v3/index.json", argValue(args, "-Source"))
	assert.Equal(t, "external-key", argValue(args, "-ApiKey"))
	assert.Equal(t, "detailed", argValue(args, "-Verbosity"))
	assert.Equal(t, "300", argValue(args, "-Timeout"))
	assert.Empty(t, argValue(args, "-ConfigFile"))
	assert.Empty(t, f.tempEntries(t))
}

func TestRunStopsAtFirstFailure(t *testing.T) {
	f := newFixture(t, hostedCollection, false)
	f.exec.fail = &runner.ExitError{Code: 1}

	_, err := f.pub.Run(context.Background(), Options{
		SearchPattern:   "out/*.nupkg",
		FeedType:        Internal,
		InternalFeedURL: hostedFeed,
		BuildMetadata:   true,
	})
	var perr *Error
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "push", perr.Op)
	assert.Equal(t, f.packages[0], perr.Package)
	assert.Contains(t, err.Error(), "Contributor")

	var exitErr *runner.ExitError
	assert.True(t, errors.As(err, &exitErr))
	assert.Len(t, f.exec.calls, 1)
	assert.Empty(t, f.poster.feeds)
	assert.Empty(t, f.tempEntries(t))
}

func TestRunBuildMetadata(t *testing.T) {
	f := newFixture(t, hostedCollection, false)

	_, err := f.pub.Run(context.Background(), Options{
		SearchPattern:   "out/*.nupkg",
		FeedType:        Internal,
		InternalFeedURL: hostedFeed,
		BuildMetadata:   true,
	})
	require.NoError(t, err)

	f.poster.mu.Lock()
	defer f.poster.mu.Unlock()
	assert.Equal(t, []string{"feedA", "feedA"}, f.poster.feeds)
	names := []string{f.poster.metas[0].PackageName, f.poster.metas[1].PackageName}
	assert.ElementsMatch(t, []string{"Contoso.A", "Contoso.B"}, names)
	for _, m := range f.poster.metas {
		assert.Equal(t, "42", m.BuildID)
		assert.Equal(t, "abc123", m.CommitID)
		assert.Equal(t, "1.0.0", m.OriginalPackageVersion)
	}
}

func TestRunBuildMetadataSkippedForExternal(t *testing.T) {
	f := newFixture(t, hostedCollection, false)

	_, err := f.pub.Run(context.Background(), Options{
		SearchPattern:   "out/*.nupkg",
		FeedType:        External,
		ExternalFeedURL: "https://api.nuget.org/v3/index.json",
		BuildMetadata:   true,
	})
	require.NoError(t, err)
	assert.Empty(t, f.poster.feeds)
}

func TestRunNoPackages(t *testing.T) {
	f := newFixture(t, hostedCollection, false)

	_, err := f.pub.Run(context.Background(), Options{
		SearchPattern:   "missing/*.nupkg",
		FeedType:        Internal,
		InternalFeedURL: hostedFeed,
	})
	var perr *Error
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "search", perr.Op)
	assert.ErrorIs(t, err, search.ErrNoMatch)
	assert.Empty(t, f.exec.calls)
}

func TestRunMissingClient(t *testing.T) {
	f := newFixture(t, hostedCollection, false)
	t.Setenv("PATH", "")

	_, err := f.pub.Run(context.Background(), Options{
		SearchPattern:   "out/*.nupkg",
		FeedType:        Internal,
		InternalFeedURL: hostedFeed,
		NuGetPath:       filepath.Join(f.agent, "does-not-exist"),
	})
	assert.ErrorIs(t, err, toolpath.ErrNotFound)
	assert.Empty(t, f.exec.calls)
}

func TestParseFeedType(t *testing.T) {
	tests := []struct {
		in      string
		want    FeedType
		wantErr bool
	}{
		{"", External, false},
		{"internal", Internal, false},
		{"INTERNAL", Internal, false},
		{"External", External, false},
		{"private", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFeedType(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestOptionsValidate(t *testing.T) {
	assert.NoError(t, Options{SearchPattern: "*.nupkg", FeedType: Internal, InternalFeedURL: hostedFeed}.Validate())

	err := Options{FeedType: External}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "search pattern")
	assert.Contains(t, err.Error(), "--external-feed-url")

	assert.Error(t, Options{SearchPattern: "x", FeedType: "other"}.Validate())
}

func TestErrorMessage(t *testing.T) {
	e := &Error{Op: "push", Package: "a.nupkg", Cause: errors.New("exit 1"), Hint: "hint"}
	assert.Equal(t, "push a.nupkg: exit 1\n\nhint", e.Error())
	e = &Error{Op: "search", Cause: errors.New("none")}
	assert.Equal(t, "search: none", e.Error())
}
