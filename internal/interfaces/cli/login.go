package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"chartdeck.aero/cli/internal/core/domain"
)

// newLoginCommand creates the login subcommand.
func newLoginCommand() *cobra.Command {
	var identityToken string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with an identity token",
		Long: `Exchange a platform identity token for a chartdeck session.

The token can be passed with --identity-token or through the
CHARTDECK_IDENTITY_TOKEN environment variable. On success the session
credential is stored locally and renewed in the background.`,
		Example: `  chartdeck login --identity-token eyJhbGciOi...
  CHARTDECK_IDENTITY_TOKEN=eyJhbGciOi... chartdeck login`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if identityToken == "" {
				identityToken = os.Getenv("CHARTDECK_IDENTITY_TOKEN")
			}
			if identityToken == "" {
				return fmt.Errorf("an identity token is required: pass --identity-token or set CHARTDECK_IDENTITY_TOKEN")
			}

			container, err := newContainer(cmd, identityToken)
			if err != nil {
				return err
			}
			defer container.Shutdown()

			ctx, cancel := context.WithTimeout(cmd.Context(), container.Config.RequestTimeout)
			defer cancel()

			if err := container.Session.SignIn(ctx); err != nil {
				if msg := container.Session.LastError(); msg != "" {
					return fmt.Errorf("sign-in failed: %s", msg)
				}
				return fmt.Errorf("sign-in failed: %w", err)
			}

			fmt.Printf("✅ Signed in\n")
			if sub := container.Session.Subscription(); sub.State != "" {
				fmt.Printf("📋 Subscription: %s", sub.State)
				if sub.Plan != "" {
					fmt.Printf(" (%s)", sub.Plan)
				}
				fmt.Println()
			}

			// Record the current AIRAC cycle right away so the first sync does
			// not need another round trip.
			if tag, err := container.Rollover.Run(ctx); err == nil && !tag.IsZero() {
				fmt.Printf("🗓  Current AIRAC cycle: %s\n", tag)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&identityToken, "identity-token", "", "Platform identity token to exchange")

	return cmd
}

// newLogoutCommand creates the logout subcommand.
func newLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and erase the stored credential",
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := newContainer(cmd, "")
			if err != nil {
				return err
			}
			defer container.Shutdown()

			container.Session.SignOut()
			if container.Session.State() != domain.NotAuthenticated {
				return fmt.Errorf("sign-out did not complete")
			}

			fmt.Printf("👋 Signed out. Cached charts remain available offline.\n")
			return nil
		},
	}
}
