package cli

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"chartdeck.aero/cli/internal/core/domain"
	"chartdeck.aero/cli/internal/interfaces/di"
)

// newDashboardCommand creates the dashboard subcommand.
func newDashboardCommand() *cobra.Command {
	var refresh time.Duration

	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Live terminal view of session and cache state",
		Long: `Launch an interactive terminal view of the chartdeck session: sign-in
state, background token renewal, the current AIRAC cycle and cache usage.

Keyboard controls:
  r  re-validate the session now
  q  quit`,
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := newContainer(cmd, "")
			if err != nil {
				return err
			}
			defer container.Shutdown()

			if err := container.Start(cmd.Context()); err != nil {
				return err
			}

			model := newDashboardModel(container, refresh)
			program := tea.NewProgram(model, tea.WithAltScreen())
			if _, err := program.Run(); err != nil {
				return fmt.Errorf("dashboard failed: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&refresh, "refresh", time.Second, "Refresh rate for live updates")

	return cmd
}

var (
	dashTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	dashLabelStyle = lipgloss.NewStyle().Bold(true).Width(16)
	dashOkStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	dashWarnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	dashBadStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dashHelpStyle  = lipgloss.NewStyle().Faint(true)
)

// dashboardSnapshot is one refresh's worth of display state, gathered off the
// render path.
type dashboardSnapshot struct {
	state        domain.SessionState
	lastError    string
	subscription domain.SubscriptionInfo
	tokenAge     time.Duration
	timerActive  bool
	cycle        domain.VersionTag
	entries      int
	size         int64
}

type dashboardModel struct {
	container *di.Container
	refresh   time.Duration
	snapshot  dashboardSnapshot
	width     int
}

type snapshotMsg dashboardSnapshot

func newDashboardModel(container *di.Container, refresh time.Duration) dashboardModel {
	return dashboardModel{
		container: container,
		refresh:   refresh,
		snapshot:  takeSnapshot(container),
	}
}

func takeSnapshot(container *di.Container) dashboardSnapshot {
	snap := dashboardSnapshot{
		state:        container.Session.State(),
		lastError:    container.Session.LastError(),
		subscription: container.Session.Subscription(),
		timerActive:  container.Tokens.TimerActive(),
	}
	if cred := container.Tokens.Current(); !cred.AcquiredAt.IsZero() {
		snap.tokenAge = cred.Age()
	}
	if tag, err := container.Cache.CurrentVersion(); err == nil {
		snap.cycle = tag
		if count, err := container.Cache.EntryCount(tag); err == nil {
			snap.entries = count
		}
	}
	if size, err := container.Cache.TotalSize(); err == nil {
		snap.size = size
	}
	return snap
}

func (m dashboardModel) Init() tea.Cmd {
	return m.tickCmd()
}

func (m dashboardModel) tickCmd() tea.Cmd {
	return tea.Tick(m.refresh, func(time.Time) tea.Msg {
		return snapshotMsg(takeSnapshot(m.container))
	})
}

func (m dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case snapshotMsg:
		m.snapshot = dashboardSnapshot(msg)
		return m, m.tickCmd()

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			container := m.container
			return m, func() tea.Msg {
				ctx, cancel := context.WithTimeout(context.Background(), container.Config.StartupTimeout)
				defer cancel()
				container.Session.HandleForeground(ctx)
				return snapshotMsg(takeSnapshot(container))
			}
		}
	}
	return m, nil
}

func (m dashboardModel) View() string {
	snap := m.snapshot
	out := dashTitleStyle.Render("chartdeck") + "\n\n"

	row := func(label, value string) {
		out += dashLabelStyle.Render(label) + " " + value + "\n"
	}

	switch snap.state {
	case domain.Authenticated:
		row("Session:", dashOkStyle.Render("signed in"))
	case domain.Authenticating:
		row("Session:", dashWarnStyle.Render("signing in..."))
	case domain.SessionError:
		row("Session:", dashBadStyle.Render("error: "+snap.lastError))
	default:
		row("Session:", dashWarnStyle.Render("not signed in"))
	}

	if snap.state.SignedIn() {
		if snap.subscription.State != "" {
			value := string(snap.subscription.State)
			if snap.subscription.IsExpired() {
				value = dashBadStyle.Render(value)
			}
			row("Subscription:", value)
		}
		if snap.tokenAge > 0 {
			row("Token age:", snap.tokenAge.Round(time.Second).String())
		}
		if snap.timerActive {
			row("Auto-renewal:", dashOkStyle.Render("armed"))
		} else {
			row("Auto-renewal:", dashWarnStyle.Render("off (no refresh token)"))
		}
	}

	if snap.cycle.IsZero() {
		row("AIRAC cycle:", dashWarnStyle.Render("not yet recorded"))
	} else {
		row("AIRAC cycle:", snap.cycle.String())
		row("Cached items:", fmt.Sprintf("%d", snap.entries))
	}
	row("Cache size:", formatBytes(snap.size))

	out += "\n" + dashHelpStyle.Render("r: re-validate session  q: quit")
	return out
}
