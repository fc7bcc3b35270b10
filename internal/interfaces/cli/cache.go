package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"chartdeck.aero/cli/internal/core/domain"
)

// newCacheCommand creates the cache subcommand group.
func newCacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the versioned chart cache",
	}

	cmd.AddCommand(newCacheInfoCommand())
	cmd.AddCommand(newCacheClearCommand())

	return cmd
}

func newCacheInfoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show cached cycles and their entry counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := newContainer(cmd, "")
			if err != nil {
				return err
			}
			defer container.Shutdown()

			current, err := container.Cache.CurrentVersion()
			if err != nil {
				return err
			}
			tags, err := container.Cache.Tags()
			if err != nil {
				return err
			}

			if len(tags) == 0 && current.IsZero() {
				fmt.Println("Cache is empty.")
				return nil
			}

			for _, tag := range tags {
				count, err := container.Cache.EntryCount(tag)
				if err != nil {
					return err
				}
				marker := " "
				if tag == current {
					marker = "*"
				}
				fmt.Printf("%s %s  %d entries\n", marker, tag, count)
			}
			if size, err := container.Cache.TotalSize(); err == nil {
				fmt.Printf("\nTotal size: %s\n", formatBytes(size))
			}
			return nil
		},
	}
}

func newCacheClearCommand() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "clear [cycle]",
		Short: "Evict a cached cycle, or every non-current cycle with --all",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !all && len(args) == 0 {
				return fmt.Errorf("name a cycle to clear, or pass --all")
			}

			container, err := newContainer(cmd, "")
			if err != nil {
				return err
			}
			defer container.Shutdown()

			if len(args) == 1 {
				tag := domain.VersionTag(args[0])
				if err := container.Cache.EvictVersion(tag); err != nil {
					return err
				}
				fmt.Printf("🗑  Evicted cycle %s\n", tag)
				return nil
			}

			current, err := container.Cache.CurrentVersion()
			if err != nil {
				return err
			}
			tags, err := container.Cache.Tags()
			if err != nil {
				return err
			}
			evicted := 0
			for _, tag := range tags {
				if tag == current {
					continue
				}
				if err := container.Cache.EvictVersion(tag); err != nil {
					return err
				}
				evicted++
			}
			fmt.Printf("🗑  Evicted %d stale cycle(s); %s kept\n", evicted, current)
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Evict every cycle except the current one")

	return cmd
}
