package cli

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/majorcontext/nupush/internal/log"
	"github.com/majorcontext/nupush/internal/publish"
	"github.com/majorcontext/nupush/internal/runner"
	"github.com/majorcontext/nupush/internal/ui"
)

const envAPIKey = "NUPUSH_API_KEY"

var pushFlags struct {
	feedType             string
	feed                 string
	externalFeedURL      string
	apiKey               string
	nugetPath            string
	configFile           string
	verbosity            string
	args                 string
	preCredProviderNuGet bool
	buildMetadata        bool
}

var pushCmd = &cobra.Command{
	Use:   "push [search-pattern]",
	Short: "Push NuGet packages to a feed",
	Long: `Push every package matching the search pattern to a feed.

The pattern is a semicolon separated list of globs relative to the working
directory. Prefix a glob with -: to exclude matches. ** matches any number
of directories.

Internal feeds belong to the current collection and are authenticated with
the build's access token. External feeds take a URL and an API key.`,
	Example: `  nupush push --feed-type internal --feed https://contoso.pkgs.visualstudio.com/_packaging/main/nuget/v3/index.json
  nupush push 'out/**/*.nupkg;-:**/*.symbols.nupkg' --feed-type external --external-feed-url https://api.nuget.org/v3/index.json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPush,
}

func init() {
	rootCmd.AddCommand(pushCmd)
	f := pushCmd.Flags()
	f.StringVar(&pushFlags.feedType, "feed-type", "external", "feed type: internal or external")
	f.StringVar(&pushFlags.feed, "feed", "", "internal feed URL")
	f.StringVar(&pushFlags.externalFeedURL, "external-feed-url", "", "external feed URL")
	f.StringVar(&pushFlags.apiKey, "api-key", "", "API key for an external feed (env: "+envAPIKey+")")
	f.StringVar(&pushFlags.nugetPath, "nuget-path", "", "NuGet client to use instead of the agent's")
	f.StringVar(&pushFlags.configFile, "config-file", "", "NuGet.config to start from")
	f.StringVar(&pushFlags.verbosity, "verbosity", "", "NuGet verbosity (quiet, normal, detailed)")
	f.StringVar(&pushFlags.args, "args", "", "additional arguments passed to the NuGet client")
	f.BoolVar(&pushFlags.preCredProviderNuGet, "pre-credprovider-nuget", false, "the client given by --nuget-path predates credential providers")
	f.BoolVar(&pushFlags.buildMetadata, "build-metadata", false, "associate pushed packages with this build")
}

func runPush(cmd *cobra.Command, args []string) error {
	feedType, err := publish.ParseFeedType(pushFlags.feedType)
	if err != nil {
		return err
	}

	pattern := "**/*.nupkg;-:**/packages/**/*.nupkg;-:**/*.symbols.nupkg"
	if len(args) == 1 {
		pattern = args[0]
	}

	apiKey := pushFlags.apiKey
	if apiKey == "" {
		apiKey = os.Getenv(envAPIKey)
	}

	if feedType == publish.Internal && cfg.AccessToken == "" {
		if !ui.StdinIsTerminal() {
			return errors.New("no access token: set SYSTEM_ACCESSTOKEN or run interactively")
		}
		token, err := ui.PromptSecret("Access token")
		if err != nil {
			return err
		}
		cfg.AccessToken = token
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	pub := publish.New(cfg, &runner.ProcessExecutor{Stdout: cmd.OutOrStdout(), Stderr: cmd.ErrOrStderr()})
	res, err := pub.Run(cmd.Context(), publish.Options{
		SearchPattern:        pattern,
		FeedType:             feedType,
		InternalFeedURL:      pushFlags.feed,
		ExternalFeedURL:      pushFlags.externalFeedURL,
		APIKey:               apiKey,
		NuGetPath:            pushFlags.nugetPath,
		BaseConfigPath:       pushFlags.configFile,
		Verbosity:            pushFlags.verbosity,
		ExtraArgs:            pushFlags.args,
		PreCredProviderNuGet: pushFlags.preCredProviderNuGet,
		BuildMetadata:        pushFlags.buildMetadata,
	})
	if err != nil {
		if f := log.LogFile(); f != "" {
			ui.Infof("Debug log: %s", f)
		}
		return err
	}

	ui.Infof("%s Pushed %d package(s)", ui.OKTag(), len(res.Packages))
	return nil
}
