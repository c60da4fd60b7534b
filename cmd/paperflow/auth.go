package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/paperflow/internal/cli"
	"github.com/Veraticus/paperflow/internal/config"
	"github.com/Veraticus/paperflow/internal/googleauth"
)

func authCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "auth",
		Short: "Authenticate with Google",
		Long: `Run the interactive OAuth flow and save the resulting token.

One consent covers every API the pipeline touches: Drive, Calendar,
Tasks and Photos. The token is refreshed automatically afterwards; run
this again only if the refresh token is revoked.`,
		RunE: runAuth,
	}
}

func runAuth(cmd *cobra.Command, _ []string) error {
	settings, err := config.Load(viper.GetViper())
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	if settings.OAuth.ClientID == "" || settings.OAuth.ClientSecret == "" {
		return fmt.Errorf("oauth.client_id and oauth.client_secret are required")
	}

	slog.Info(cli.FormatTitle("Authenticating with Google..."))

	if _, err := googleauth.AuthenticateInteractive(cmd.Context(), settings.OAuth); err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}

	slog.Info(cli.FormatSuccess("Authentication complete"))
	return nil
}
