package app

import (
	"context"

	"github.com/geocoder89/projecthub/internal/identity"
	"github.com/geocoder89/projecthub/internal/usersync"
)

// SeedAdmin creates the configured administrator once. Nothing happens when
// ADMIN_EMAIL or ADMIN_PASSWORD is unset. A provider that is down is logged
// and skipped so the server still starts; the admin can be created later via
// the CLI or the identity endpoint.
func (a *App) SeedAdmin(ctx context.Context) error {
	if a.Cfg.AdminEmail == "" || a.Cfg.AdminPassword == "" {
		return nil
	}

	res, err := a.Users.EnsureAdmin(ctx, usersync.AdminSeed{
		Email:     a.Cfg.AdminEmail,
		Password:  a.Cfg.AdminPassword,
		FirstName: a.Cfg.AdminFirstName,
		LastName:  a.Cfg.AdminLastName,
	})
	if err != nil {
		if identity.Degradable(err) {
			a.Log.WarnContext(ctx, "admin.seed.skipped", "email", a.Cfg.AdminEmail, "err", err)
			return nil
		}
		return err
	}

	a.Log.InfoContext(ctx, "admin.seed.done",
		"user_id", res.User.ID,
		"account_created", res.AccountCreated,
		"user_created", res.UserCreated,
	)
	return nil
}
