// Package cli implements the nupush command-line interface using Cobra.
package cli

import (
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/majorcontext/nupush/internal/config"
	"github.com/majorcontext/nupush/internal/hosting"
	"github.com/majorcontext/nupush/internal/log"
	"github.com/majorcontext/nupush/internal/ui"
)

var (
	verbose    bool
	jsonOut    bool
	configPath string

	collectionURI           string
	agentHome               string
	forceCredentialProvider string
	forceCredentialConfig   string
)

// cfg is the execution context loaded before any subcommand runs.
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "nupush",
	Short: "Publish NuGet packages with build-scoped credentials",
	Long: `nupush pushes NuGet packages from a build agent.

The build's access token is handed to the NuGet client only for URIs that
belong to the current collection, through the credential provider plugin or
a temporary NuGet.config, depending on where the collection is hosted.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		applyFlagOverrides(cmd, loaded)
		cfg = loaded

		if err := log.Init(log.Options{
			Verbose:       verbose,
			JSONFormat:    jsonOut,
			DebugDir:      config.DebugDir(),
			TaskID:        uuid.NewString(),
			RetentionDays: cfg.Debug.RetentionDays,
		}); err != nil {
			// Non-fatal: stderr logging is still set up.
			cmd.PrintErrf("Warning: failed to initialize debug logging: %v\n", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		log.Close()
	},
}

// applyFlagOverrides lets explicitly set flags win over file and environment.
func applyFlagOverrides(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("collection-uri") {
		c.CollectionURI = collectionURI
	}
	if flags.Changed("agent-home") {
		c.AgentHomeDir = agentHome
	}
	if flags.Changed("force-credential-provider") {
		c.ForceCredentialProvider = hosting.Override(forceCredentialProvider)
	}
	if flags.Changed("force-credential-config") {
		c.ForceCredentialConfig = hosting.Override(forceCredentialConfig)
	}
}

// Execute runs the root command.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		ui.Error(err.Error())
	}
	return err
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	pf.BoolVar(&jsonOut, "json", false, "log in JSON format")
	pf.StringVar(&configPath, "config", "", "config file (default ~/.nupush/config.yaml)")
	pf.StringVar(&collectionURI, "collection-uri", "", "collection URI (env: "+config.EnvCollectionURI+")")
	pf.StringVar(&agentHome, "agent-home", "", "agent home directory (env: "+config.EnvAgentHome+")")
	pf.StringVar(&forceCredentialProvider, "force-credential-provider", "", `"true" or "false" to override the credential provider default (env: `+config.EnvForceProvider+")")
	pf.StringVar(&forceCredentialConfig, "force-credential-config", "", `"true" or "false" to override the NuGet.config credential default (env: `+config.EnvForceConfig+")")
}
