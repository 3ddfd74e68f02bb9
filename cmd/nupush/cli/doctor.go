package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/majorcontext/nupush/internal/doctor"
	"github.com/majorcontext/nupush/internal/ui"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Show how nupush sees this agent",
	Long: `Displays the collection classification, both credential policies, the
URI prefixes the access token is scoped to, and the NuGet client and
credential provider that a push would use.

The access token is never printed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, ui.Bold("nupush doctor"))
		fmt.Fprintln(out)
		doctor.Default(cfg).Print(out)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}
