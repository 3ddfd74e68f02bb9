package cli

import (
	"bytes"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/majorcontext/nupush/internal/config"
	"github.com/majorcontext/nupush/internal/hosting"
)

func TestApplyFlagOverrides(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().StringVar(&collectionURI, "collection-uri", "", "")
	cmd.Flags().StringVar(&agentHome, "agent-home", "", "")
	cmd.Flags().StringVar(&forceCredentialProvider, "force-credential-provider", "", "")
	cmd.Flags().StringVar(&forceCredentialConfig, "force-credential-config", "", "")
	require.NoError(t, cmd.ParseFlags([]string{"--collection-uri", "https://flag.example.com/", "--force-credential-config", "false"}))

	c := config.Default()
	c.CollectionURI = "https://env.example.com/"
	c.AgentHomeDir = "/from/env"
	applyFlagOverrides(cmd, c)

	assert.Equal(t, "https://flag.example.com/", c.CollectionURI)
	assert.Equal(t, "/from/env", c.AgentHomeDir)
	assert.Equal(t, hosting.ForceDisable, c.ForceCredentialConfig)
	assert.Equal(t, hosting.NoOverride, c.ForceCredentialProvider)
}

func TestVersionCommand(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "nupush dev")
}

func TestDoctorCommand(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv(config.EnvAccessToken, "secret-token")
	t.Setenv(config.EnvAgentHome, "")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"doctor", "--collection-uri", "https://contoso.visualstudio.com/"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "https://contoso.pkgs.visualstudio.com/")
	assert.NotContains(t, out.String(), "secret-token")
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "30s", formatDuration(30*time.Second))
	assert.Equal(t, "5m", formatDuration(5*time.Minute))
	assert.Equal(t, "2.5h", formatDuration(150*time.Minute))
	assert.Equal(t, "3d", formatDuration(72*time.Hour))
}
