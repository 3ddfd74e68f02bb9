// Package config assembles the execution context of a publish: settings from
// ~/.nupush/config.yaml overlaid with the build agent's environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	"github.com/majorcontext/nupush/internal/hosting"
)

// Agent environment variables.
const (
	EnvCollectionURI        = "SYSTEM_TEAMFOUNDATIONCOLLECTIONURI"
	EnvAccessToken          = "SYSTEM_ACCESSTOKEN"
	EnvAgentHome            = "AGENT_HOMEDIRECTORY"
	EnvForceProvider        = "NUGET_FORCEENABLECREDENTIALPROVIDER"
	EnvForceConfig          = "NUGET_FORCEENABLECREDENTIALCONFIG"
	EnvExtraPrefixes        = "NUGETTASKS_EXTRAURLPREFIXESFORTESTING"
	EnvWorkingDirectory     = "SYSTEM_DEFAULTWORKINGDIRECTORY"
	EnvBuildID              = "BUILD_BUILDID"
	EnvSourceVersion        = "BUILD_SOURCEVERSION"
	EnvCollectionID         = "SYSTEM_COLLECTIONID"
	EnvProjectID            = "SYSTEM_TEAMPROJECTID"
	EnvRepositoryID         = "BUILD_REPOSITORY_ID"
	EnvAgentTempDirectory   = "AGENT_TEMPDIRECTORY"
	EnvDebugRetentionDays   = "NUPUSH_DEBUG_RETENTION_DAYS"
	defaultRetentionDays    = 14
	extraPrefixesSeparators = ";"
)

// Config is everything a publish needs to know about where it runs.
type Config struct {
	CollectionURI string `yaml:"collection_uri,omitempty"`
	// AccessToken is only ever taken from the environment or a prompt.
	AccessToken  string `yaml:"-"`
	AgentHomeDir string `yaml:"agent_home,omitempty"`
	HostedSuffix string `yaml:"hosted_suffix,omitempty"`

	ForceCredentialProvider hosting.Override `yaml:"force_credential_provider,omitempty"`
	ForceCredentialConfig   hosting.Override `yaml:"force_credential_config,omitempty"`

	ExtraURIPrefixes []string `yaml:"extra_uri_prefixes,omitempty"`
	WorkingDir       string   `yaml:"working_directory,omitempty"`
	TempDir          string   `yaml:"temp_directory,omitempty"`

	Build BuildConfig `yaml:"-"`
	Debug DebugConfig `yaml:"debug"`
}

// BuildConfig identifies the running build.
type BuildConfig struct {
	BuildID       string
	SourceVersion string
	CollectionID  string
	ProjectID     string
	RepositoryID  string
}

// DebugConfig controls the per-task debug log.
type DebugConfig struct {
	RetentionDays int `yaml:"retention_days"`
}

// Default returns a configuration with defaults applied.
func Default() *Config {
	return &Config{
		HostedSuffix: hosting.DefaultSuffix,
		Debug:        DebugConfig{RetentionDays: defaultRetentionDays},
	}
}

// Load reads the YAML file at path, then applies environment overrides. An
// empty path means DefaultPath. A missing file is not an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	cfg.ApplyEnv(os.Getenv)
	return cfg, nil
}

// ApplyEnv overlays agent variables read through getenv. Empty variables
// leave the current value alone.
func (c *Config) ApplyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	set(&c.CollectionURI, EnvCollectionURI)
	set(&c.AccessToken, EnvAccessToken)
	set(&c.AgentHomeDir, EnvAgentHome)
	set(&c.WorkingDir, EnvWorkingDirectory)
	set(&c.TempDir, EnvAgentTempDirectory)
	set(&c.Build.BuildID, EnvBuildID)
	set(&c.Build.SourceVersion, EnvSourceVersion)
	set(&c.Build.CollectionID, EnvCollectionID)
	set(&c.Build.ProjectID, EnvProjectID)
	set(&c.Build.RepositoryID, EnvRepositoryID)

	if v := getenv(EnvForceProvider); v != "" {
		c.ForceCredentialProvider = hosting.Override(v)
	}
	if v := getenv(EnvForceConfig); v != "" {
		c.ForceCredentialConfig = hosting.Override(v)
	}
	if v := getenv(EnvExtraPrefixes); v != "" {
		c.ExtraURIPrefixes = splitList(v)
	}
	if v := getenv(EnvDebugRetentionDays); v != "" {
		if days, err := strconv.Atoi(v); err == nil {
			c.Debug.RetentionDays = days
		}
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, extraPrefixesSeparators) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Policy returns the credential policy for the configured collection.
func (c *Config) Policy() hosting.Policy {
	return hosting.Policy{
		CollectionURI:           c.CollectionURI,
		HostedSuffix:            c.HostedSuffix,
		ForceCredentialProvider: c.ForceCredentialProvider,
		ForceCredentialConfig:   c.ForceCredentialConfig,
	}
}

// Validate reports every problem with c at once.
func (c *Config) Validate() error {
	var result *multierror.Error
	if c.CollectionURI == "" {
		result = multierror.Append(result, fmt.Errorf("collection URI is not set (use --collection-uri or %s)", EnvCollectionURI))
	} else if u, err := url.Parse(c.CollectionURI); err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		result = multierror.Append(result, fmt.Errorf("collection URI %q must be an absolute http or https URI", c.CollectionURI))
	}
	if c.HostedSuffix == "" || strings.HasPrefix(c.HostedSuffix, ".") {
		result = multierror.Append(result, fmt.Errorf("hosted suffix %q must be a bare domain such as %s", c.HostedSuffix, hosting.DefaultSuffix))
	}
	for _, p := range c.ExtraURIPrefixes {
		if u, err := url.Parse(p); err != nil || u.Host == "" {
			result = multierror.Append(result, fmt.Errorf("extra URI prefix %q is not an absolute URI", p))
		}
	}
	if c.Debug.RetentionDays < 0 {
		result = multierror.Append(result, fmt.Errorf("debug.retention_days must not be negative"))
	}
	return result.ErrorOrNil()
}
