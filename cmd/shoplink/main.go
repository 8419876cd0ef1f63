package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shoplinkhq/shoplink/internal/auth"
	"github.com/shoplinkhq/shoplink/internal/config"
	"github.com/shoplinkhq/shoplink/internal/db"
)

func main() {
	root := &cobra.Command{
		Use:           "shoplink",
		Short:         "Multi-tenant chat commerce backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newMigrateCmd(), newTokenCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server",
		RunE: func(cmd *cobra.Command, args []string) error {
			runServe()
			return nil
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
			if err != nil {
				return err
			}
			if err := db.Migrate(cfg.Postgres); err != nil {
				return err
			}
			fmt.Println("migrations applied")
			return nil
		},
	}
}

func newTokenCmd() *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "token <subject>",
		Short: "Mint an admin API token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return fmt.Errorf("auth.jwt_secret is not configured")
			}
			signed, expiresAt, err := auth.GenerateToken(args[0], role, cfg.Auth.JWTSecret, cfg.Auth.TokenLifetime)
			if err != nil {
				return err
			}
			fmt.Println(signed)
			fmt.Fprintln(os.Stderr, "expires:", expiresAt.Format("2006-01-02 15:04:05 MST"))
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", auth.RoleViewer, "token role (operator or viewer)")
	return cmd
}
