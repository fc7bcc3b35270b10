package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"chartdeck.aero/cli/internal/core/domain"
	"chartdeck.aero/cli/internal/interfaces/di"
)

var (
	statusLabelStyle = lipgloss.NewStyle().Bold(true).Width(14)
	statusOkStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	statusWarnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	statusBadStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// newStatusCommand creates the status subcommand.
func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show session, AIRAC cycle and cache status",
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := newContainer(cmd, "")
			if err != nil {
				return err
			}
			defer container.Shutdown()

			if err := container.Start(cmd.Context()); err != nil {
				return err
			}

			printStatus(container)
			return nil
		},
	}
}

func printStatus(container *di.Container) {
	plain := !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd())

	render := func(style lipgloss.Style, s string) string {
		if plain {
			return s
		}
		return style.Render(s)
	}

	row := func(label, value string) {
		fmt.Printf("%s %s\n", render(statusLabelStyle, label), value)
	}

	state := container.Session.State()
	switch state {
	case domain.Authenticated:
		row("Session:", render(statusOkStyle, "signed in"))
	case domain.SessionError:
		row("Session:", render(statusBadStyle, "error: "+container.Session.LastError()))
	default:
		row("Session:", render(statusWarnStyle, state.String()))
	}

	if state.SignedIn() {
		if sub := container.Session.Subscription(); sub.State != "" {
			value := string(sub.State)
			if sub.Plan != "" {
				value += " (" + sub.Plan + ")"
			}
			if sub.IsExpired() {
				value = render(statusBadStyle, value)
			}
			row("Subscription:", value)
		}
		if cred := container.Tokens.Current(); !cred.AcquiredAt.IsZero() {
			row("Token age:", cred.Age().Round(time.Second).String())
		}
	}

	tag, err := container.Cache.CurrentVersion()
	switch {
	case err != nil:
		row("AIRAC cycle:", render(statusBadStyle, "unreadable: "+err.Error()))
	case tag.IsZero():
		row("AIRAC cycle:", render(statusWarnStyle, "not yet recorded"))
	default:
		row("AIRAC cycle:", tag.String())
		if count, err := container.Cache.EntryCount(tag); err == nil {
			row("Cached items:", fmt.Sprintf("%d", count))
		}
	}

	if size, err := container.Cache.TotalSize(); err == nil {
		row("Cache size:", formatBytes(size))
	}
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
