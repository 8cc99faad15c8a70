package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/geocoder89/projecthub/internal/app"
	"github.com/geocoder89/projecthub/internal/auth"
	"github.com/geocoder89/projecthub/internal/observability"
	"github.com/geocoder89/projecthub/internal/usersync"
	"github.com/spf13/cobra"
)

var initRolesCmd = &cobra.Command{
	Use:   "init-roles",
	Short: "Create the ADMIN and USER realm roles if they are missing",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		log := observability.NewLogger(cfg.Env, cfg.LogFile)
		_, dir := app.NewDirectory(cfg, nil)

		res, err := usersync.InitializeRealmRoles(ctx, dir, log)
		if err != nil {
			return err
		}
		if err := printJSON(cmd, res); err != nil {
			return err
		}
		if res.Degraded {
			return errors.New("identity provider unavailable")
		}
		return nil
	},
}

var syncUserCmd = &cobra.Command{
	Use:   "sync-user <external-id>",
	Short: "Pull one Keycloak account and its realm roles into the local store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			res, err := a.Users.SyncFromDirectory(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		})
	},
}

var adminSeed usersync.AdminSeed

var createAdminCmd = &cobra.Command{
	Use:   "create-admin",
	Short: "Create or link an administrator account",
	Long: `Create or link an administrator account.

An existing Keycloak account with the same email is granted ADMIN instead of
being recreated. Flags fall back to ADMIN_EMAIL, ADMIN_PASSWORD,
ADMIN_FIRST_NAME and ADMIN_LAST_NAME.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		seed := adminSeed
		if seed.Email == "" {
			seed.Email = cfg.AdminEmail
		}
		if seed.Password == "" {
			seed.Password = cfg.AdminPassword
		}
		if seed.FirstName == "" {
			seed.FirstName = cfg.AdminFirstName
		}
		if seed.LastName == "" {
			seed.LastName = cfg.AdminLastName
		}
		if seed.Email == "" || seed.Password == "" {
			return errors.New("an email and a password are required")
		}

		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			res, err := a.Users.EnsureAdmin(ctx, seed)
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		})
	},
}

var (
	tokenEmail string
	tokenRoles []string
)

var devTokenCmd = &cobra.Command{
	Use:   "dev-token <subject>",
	Short: "Sign an HS256 bearer token for local testing",
	Long: `Sign an HS256 bearer token for local testing.

Requires AUTH_HS256_SECRET. The subject must be the external id of a local
user for /api/auth/me and self-service document routes to resolve.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v := auth.NewVerifier(auth.VerifierConfig{
			HS256Secret: cfg.AuthHS256Secret,
			Issuer:      cfg.KeycloakIssuer(),
		})

		token, err := v.IssueDevToken(args[0], tokenEmail, tokenRoles)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	f := createAdminCmd.Flags()
	f.StringVar(&adminSeed.Email, "email", "", "admin email")
	f.StringVar(&adminSeed.Password, "password", "", "initial password")
	f.StringVar(&adminSeed.FirstName, "first-name", "", "first name")
	f.StringVar(&adminSeed.LastName, "last-name", "", "last name")

	devTokenCmd.Flags().StringVar(&tokenEmail, "email", "", "email claim")
	devTokenCmd.Flags().StringSliceVar(&tokenRoles, "role", []string{"USER"}, "realm role, repeatable")
}
