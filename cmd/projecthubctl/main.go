// Command projecthubctl runs operator tasks against the same configuration as the API.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/geocoder89/projecthub/internal/app"
	"github.com/geocoder89/projecthub/internal/config"
	"github.com/geocoder89/projecthub/internal/observability"
	"github.com/spf13/cobra"
)

var (
	cfg     config.Config
	timeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "projecthubctl",
	Short: "Operator tool for projecthub",
	Long: `Operator tool for projecthub.

Reads the same environment (and optional .env) as the API server:
database, Keycloak service account, RustFS and Redis settings.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg = config.Load()
	},
}

func main() {
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "overall deadline for the command")

	rootCmd.AddCommand(migrateCmd, initRolesCmd, syncUserCmd, createAdminCmd, devTokenCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), timeout)
}

// withApp builds the full service graph for commands that touch users.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	log := observability.NewLogger(cfg.Env, cfg.LogFile)
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(ctx, a)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
