package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"chartdeck.aero/cli/internal/application/services"
	"chartdeck.aero/cli/internal/core/domain"
)

// newSyncCommand creates the sync subcommand.
func newSyncCommand() *cobra.Command {
	var (
		airports  []string
		documents bool
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Mirror the chart library for the current AIRAC cycle",
		Long: `Download the airport and chart indexes for the current AIRAC cycle into
the local cache, optionally including the chart documents themselves.

Indexes are small; documents dominate cache size. Limit the download with
--airport to mirror only the fields you fly to.`,
		Example: `  chartdeck sync
  chartdeck sync --airport EDDF --airport EDDM --documents`,
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := newContainer(cmd, "")
			if err != nil {
				return err
			}
			defer container.Shutdown()

			if err := container.Start(cmd.Context()); err != nil {
				return err
			}
			if !container.Session.State().SignedIn() {
				return fmt.Errorf("not signed in: run 'chartdeck login' first")
			}
			if documents {
				if sub := container.Session.Subscription(); sub.State != "" && !sub.AllowsDownloads() {
					return fmt.Errorf("subscription %s does not include document downloads", sub.State)
				}
			}

			report, err := container.Library.Run(cmd.Context(), services.SyncOptions{
				Airports:          airports,
				DownloadDocuments: documents,
			})
			if err != nil {
				if err == domain.ErrNoCurrentVersion {
					return fmt.Errorf("no AIRAC cycle recorded yet: the backend was unreachable, try again later")
				}
				return err
			}

			fmt.Printf("✅ Synced cycle %s: %d airports, %d chart indexes", report.Cycle, report.Airports, report.Charts)
			if documents {
				fmt.Printf(", %d documents", report.Documents)
			}
			fmt.Println()
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&airports, "airport", nil, "Limit sync to the given ICAO codes (repeatable)")
	cmd.Flags().BoolVar(&documents, "documents", false, "Also download chart documents via signed URLs")

	return cmd
}
