// Package cli implements the chartdeck command surface.
package cli

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"

	"chartdeck.aero/cli/internal/interfaces/di"
)

var (
	Version = "dev" // Overridden by ldflags
)

// NewRootCommand builds the base command with all subcommands attached.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "chartdeck",
		Short: "chartdeck - offline eAIP charts with AIRAC-versioned caching",
		Long: `chartdeck keeps an offline, AIRAC-versioned mirror of your eAIP chart
library. It manages the authenticated session with the chart service,
renews access tokens in the background, and rolls the local cache over
when a new AIRAC cycle becomes effective.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate(fmt.Sprintf("{{.Name}} version {{.Version}}\nGo version: %s\n", goVersion()))

	rootCmd.PersistentFlags().String("api-url", "", "Override the chart service endpoint")

	rootCmd.AddCommand(newLoginCommand())
	rootCmd.AddCommand(newLogoutCommand())
	rootCmd.AddCommand(newStatusCommand())
	rootCmd.AddCommand(newSyncCommand())
	rootCmd.AddCommand(newCacheCommand())
	rootCmd.AddCommand(newDashboardCommand())

	return rootCmd
}

// newContainer builds the dependency container from persistent flags plus
// the given identity token (login only).
func newContainer(cmd *cobra.Command, identityToken string) (*di.Container, error) {
	apiURL, _ := cmd.Flags().GetString("api-url")
	return di.NewContainer(di.Options{
		APIEndpoint:   apiURL,
		IdentityToken: identityToken,
	})
}

func goVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		return info.GoVersion
	}
	return "unknown"
}
