package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/majorcontext/nupush/internal/system"
	"github.com/majorcontext/nupush/internal/ui"
)

var cleanTempCmd = &cobra.Command{
	Use:   "clean-temp",
	Short: "Remove orphaned temporary NuGet.config directories",
	Long: `Scan the temp directories for nupush-* directories left behind by pushes that
were killed before they could clean up, and remove them.

These directories contain a NuGet.config holding the build's access token.
Only directories older than --min-age (default: 1 hour) are considered.
Directories whose lock is still held by a running push are always skipped,
however old they are.`,
	Args: cobra.NoArgs,
	RunE: runCleanTemp,
}

var (
	cleanTempMinAge time.Duration
	cleanTempDryRun bool
)

func init() {
	rootCmd.AddCommand(cleanTempCmd)
	cleanTempCmd.Flags().DurationVar(&cleanTempMinAge, "min-age", time.Hour,
		"minimum age of directories to remove (e.g., 1h, 24h)")
	cleanTempCmd.Flags().BoolVar(&cleanTempDryRun, "dry-run", false,
		"show what would be removed without removing anything")
}

func runCleanTemp(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	orphaned, err := system.FindOrphanedTempDirs([]string{os.TempDir(), cfg.TempDir}, cleanTempMinAge)
	if err != nil {
		return fmt.Errorf("scanning for orphaned temp directories: %w", err)
	}
	if len(orphaned) == 0 {
		fmt.Fprintln(out, "No orphaned temporary directories found.")
		return nil
	}

	fmt.Fprintf(out, "Found %d orphaned temporary director%s:\n\n", len(orphaned), plural(len(orphaned), "y", "ies"))
	for _, dir := range orphaned {
		fmt.Fprintf(out, "  %s\n", dir.Path)
		fmt.Fprintf(out, "    Age: %s  Size: %s\n", formatDuration(time.Since(dir.ModTime)), system.FormatSize(dir.Size))
	}
	fmt.Fprintln(out)

	if cleanTempDryRun {
		fmt.Fprintln(out, "Dry run mode - nothing was removed.")
		return nil
	}

	skipped, err := system.CleanOrphanedTempDirs(orphaned, cleanTempMinAge)
	for _, path := range skipped {
		ui.Warnf("skipped %s (modified since scan)", path)
	}
	if err != nil {
		return err
	}

	removed := len(orphaned) - len(skipped)
	fmt.Fprintf(out, "Removed %d temporary director%s.\n", removed, plural(removed, "y", "ies"))
	return nil
}

func plural(count int, singular, plural string) string {
	if count == 1 {
		return singular
	}
	return plural
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%.0fm", d.Minutes())
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%.1fh", d.Hours())
	}
	return fmt.Sprintf("%.0fd", d.Hours()/24)
}
