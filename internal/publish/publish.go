// Package publish pushes NuGet packages to a feed with credentials scoped to
// the current collection.
package publish

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/majorcontext/nupush/internal/auth"
	"github.com/majorcontext/nupush/internal/buildmeta"
	"github.com/majorcontext/nupush/internal/config"
	"github.com/majorcontext/nupush/internal/log"
	"github.com/majorcontext/nupush/internal/nugetconfig"
	"github.com/majorcontext/nupush/internal/nugetenv"
	"github.com/majorcontext/nupush/internal/pkgmeta"
	"github.com/majorcontext/nupush/internal/runner"
	"github.com/majorcontext/nupush/internal/search"
	"github.com/majorcontext/nupush/internal/toolpath"
)

// MetadataPoster posts build metadata for one package.
type MetadataPoster interface {
	Post(ctx context.Context, feed string, meta buildmeta.PackageBuildMetadata) error
}

// Publisher runs a publish for one configuration.
type Publisher struct {
	cfg      *config.Config
	locator  *toolpath.Locator
	executor runner.Executor
	environ  func() []string
	poster   func(ctx context.Context, collectionURI, token string) MetadataPoster
}

// New returns a publisher that runs the client through executor.
func New(cfg *config.Config, executor runner.Executor) *Publisher {
	return &Publisher{
		cfg:      cfg,
		locator:  toolpath.New(cfg.AgentHomeDir),
		executor: executor,
		environ:  os.Environ,
		poster: func(ctx context.Context, collectionURI, token string) MetadataPoster {
			return buildmeta.NewClient(ctx, collectionURI, token)
		},
	}
}

// Result summarises a successful publish.
type Result struct {
	Packages   []string
	ConfigFile string
}

// Run pushes every package matched by opts.SearchPattern, stopping at the
// first failure. The temporary config is always removed and build
// association posts are always awaited before Run returns.
func (p *Publisher) Run(ctx context.Context, opts Options) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	workDir := p.cfg.WorkingDir
	if workDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("getting working directory: %w", err)
		}
		workDir = wd
	}
	packages, err := search.Resolve(opts.SearchPattern, workDir)
	if err != nil {
		return nil, &Error{Op: "search", Cause: err, Hint: hintSearch}
	}

	clientPath, err := p.locator.LocateNuGet(opts.NuGetPath)
	if err != nil {
		return nil, &Error{Op: "locate", Cause: err, Hint: hintNuGetPath}
	}

	policy := p.cfg.Policy()
	var providerDir string
	if providerPath, ok := p.locator.LocateCredentialProvider(policy); ok {
		providerDir = filepath.Dir(providerPath)
	} else {
		log.Info("no credential provider available on the agent")
	}

	prefixes, err := auth.DerivePrefixesWithSuffix(p.cfg.CollectionURI, p.cfg.HostedSuffix)
	if err != nil {
		return nil, err
	}
	prefixes = auth.MergePrefixes(prefixes, p.cfg.ExtraURIPrefixes...)
	log.Debug("URI prefixes", "prefixes", prefixes)
	authInfo, err := auth.NewInfo(prefixes, p.cfg.AccessToken)
	if err != nil {
		return nil, err
	}

	env := nugetenv.Build(nugetenv.FromEnviron(p.environ()), nugetenv.Settings{
		Auth:                     authInfo,
		CredentialProviderFolder: providerDir,
		ExtensionsDisabled:       opts.NuGetPath == "",
	})

	var feedURL, apiKey string
	configFile := opts.BaseConfigPath
	switch opts.FeedType {
	case Internal:
		feedURL = opts.InternalFeedURL
		apiKey = internalAPIKey
		switch {
		case !policy.CredentialConfigEnabled():
			log.Debug("not configuring credentials in NuGet.config")
		case providerDir == "" || (opts.NuGetPath != "" && opts.PreCredProviderNuGet):
			tc := nugetconfig.New(nugetconfig.Options{
				BaseConfigPath: opts.BaseConfigPath,
				Auth:           authInfo,
				TempRoot:       p.cfg.TempDir,
			})
			defer tc.Cleanup()
			err := tc.SetSources(ctx, []nugetconfig.PackageSource{{Name: InternalSourceName, URI: feedURL}})
			if err != nil {
				return nil, &Error{Op: "configure credentials", Cause: err}
			}
			configFile = tc.Path()
		}
	case External:
		feedURL = opts.ExternalFeedURL
		apiKey = opts.APIKey
	}

	var (
		tracker *buildmeta.Tracker
		poster  MetadataPoster
		build   buildmeta.Build
	)
	switch {
	case opts.BuildMetadata && opts.FeedType != Internal:
		log.Warn("build metadata is only posted to internal feeds")
	case opts.BuildMetadata:
		tracker = buildmeta.NewTracker(ctx)
		defer tracker.Wait()
		poster = p.poster(ctx, p.cfg.CollectionURI, p.cfg.AccessToken)
		build = p.build(workDir)
	}

	for _, pkg := range packages {
		if err := p.push(ctx, clientPath, pkg, feedURL, apiKey, configFile, env, opts); err != nil {
			perr := &Error{Op: "push", Package: pkg, Cause: err}
			if opts.FeedType == Internal {
				perr.Hint = hintPermissions
			}
			return nil, perr
		}
		log.Info("pushed package", "package", pkg, "feed", feedURL)

		if tracker != nil {
			p.associate(tracker, poster, pkg, feedURL, build)
		}
	}

	return &Result{Packages: packages, ConfigFile: configFile}, nil
}

func (p *Publisher) push(ctx context.Context, clientPath, pkg, feedURL, apiKey, configFile string, env map[string]string, opts Options) error {
	cmd, err := runner.NewCommand(clientPath)
	if err != nil {
		return err
	}
	args, err := runner.PushArgs(runner.PushOptions{
		Package:    pkg,
		Source:     feedURL,
		APIKey:     apiKey,
		ConfigFile: configFile,
		Verbosity:  opts.Verbosity,
		ExtraArgs:  opts.ExtraArgs,
	})
	if err != nil {
		return err
	}
	cmd.Args = append(cmd.Args, args...)
	cmd.Env = nugetenv.Environ(env)
	cmd.Dir = p.cfg.WorkingDir
	return p.executor.Exec(ctx, cmd)
}

func (p *Publisher) build(workDir string) buildmeta.Build {
	b := p.cfg.Build
	return buildmeta.Build{
		BuildID:      b.BuildID,
		CommitID:     buildmeta.ResolveCommit(b.SourceVersion, workDir),
		CollectionID: b.CollectionID,
		ProjectID:    b.ProjectID,
		RepositoryID: b.RepositoryID,
	}
}

func (p *Publisher) associate(tracker *buildmeta.Tracker, poster MetadataPoster, pkg, feedURL string, build buildmeta.Build) {
	meta, err := pkgmeta.Read(pkg)
	if err != nil {
		log.Warn("skipping build association", "package", pkg, "error", err)
		return
	}
	feed := pkgmeta.FeedName(feedURL)
	if feed == "" {
		log.Warn("skipping build association: feed name not found in URL", "feed", feedURL)
		return
	}
	md := buildmeta.NewMetadata(meta.ID, meta.Version, build)
	tracker.Submit(func(ctx context.Context) error {
		if err := poster.Post(ctx, feed, md); err != nil {
			return err
		}
		log.Info("associated package with build", "package", meta.ID, "version", meta.Version)
		return nil
	})
}
