package usersync_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/geocoder89/projecthub/internal/domain/user"
	"github.com/geocoder89/projecthub/internal/identity"
	"github.com/geocoder89/projecthub/internal/usersync"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestInitializeRealmRoles(t *testing.T) {
	existing := map[string]bool{"USER": true}
	dir := &fakeDirectory{
		ensureFn: func(name string) (bool, error) {
			created := !existing[name]
			existing[name] = true
			return created, nil
		},
	}

	res, err := usersync.InitializeRealmRoles(context.Background(), dir, quiet)
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if res.Degraded || strings.Join(res.Created, ",") != "ADMIN" || strings.Join(res.Existing, ",") != "USER" {
		t.Fatalf("result = %+v", res)
	}

	res, err = usersync.InitializeRealmRoles(context.Background(), dir, quiet)
	if err != nil {
		t.Fatalf("second bootstrap: %v", err)
	}
	if len(res.Created) != 0 || len(res.Existing) != 2 {
		t.Fatalf("second run should create nothing, got %+v", res)
	}
}

func TestInitializeRealmRoles_Degraded(t *testing.T) {
	tests := []struct {
		name string
		dir  *fakeDirectory
	}{
		{"ping unreachable", &fakeDirectory{pingErr: identity.ErrUnreachable}},
		{"ensure forbidden", &fakeDirectory{ensureFn: func(string) (bool, error) { return false, identity.ErrForbidden }}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := usersync.InitializeRealmRoles(context.Background(), tt.dir, quiet)
			if err != nil {
				t.Fatalf("degraded bootstrap must not fail, got %v", err)
			}
			if !res.Degraded || res.Reason == "" {
				t.Fatalf("result = %+v", res)
			}
		})
	}
}

func TestInitializeRealmRoles_UnexpectedErrorIsReturned(t *testing.T) {
	dir := &fakeDirectory{ensureFn: func(string) (bool, error) {
		return false, &identity.StatusError{Op: "create_role", Status: 400}
	}}

	if _, err := usersync.InitializeRealmRoles(context.Background(), dir, quiet); err == nil {
		t.Fatalf("want error")
	}
}

func adminSeed() usersync.AdminSeed {
	return usersync.AdminSeed{Email: "root@example.com", Password: "changeme1", FirstName: "Root", LastName: "Admin"}
}

func TestEnsureAdmin_CreatesBothSides(t *testing.T) {
	f := newFixture(t)

	var roles []string
	f.dir.createFn = func(p identity.Profile, _ string) (string, error) {
		roles = p.Roles
		return "kc-root", nil
	}

	res, err := f.svc.EnsureAdmin(context.Background(), adminSeed())
	if err != nil {
		t.Fatalf("ensure admin: %v", err)
	}
	if !res.AccountCreated || !res.UserCreated {
		t.Fatalf("result = %+v", res)
	}
	if strings.Join(roles, ",") != "ADMIN" {
		t.Fatalf("provider roles = %v", roles)
	}
	if res.User.ExternalID != "kc-root" || len(res.User.Roles) != 1 || res.User.Roles[0] != user.RoleAdmin {
		t.Fatalf("local admin = %+v", res.User)
	}
}

func TestEnsureAdmin_ReusesExistingAccountAndRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.dir.findFn = func(email string) (identity.Account, bool, error) {
		return identity.Account{ID: "kc-root", Email: email}, true, nil
	}

	first, err := f.svc.EnsureAdmin(ctx, adminSeed())
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	if first.AccountCreated || !first.UserCreated {
		t.Fatalf("first = %+v", first)
	}

	second, err := f.svc.EnsureAdmin(ctx, adminSeed())
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if second.AccountCreated || second.UserCreated || second.User.ID != first.User.ID {
		t.Fatalf("second = %+v", second)
	}

	for _, c := range f.dir.calls {
		if c == "create" {
			t.Fatalf("existing account must not be recreated: %v", f.dir.calls)
		}
	}
}

func TestEnsureAdmin_ProviderDown(t *testing.T) {
	f := newFixture(t)
	f.dir.findFn = func(string) (identity.Account, bool, error) {
		return identity.Account{}, false, identity.ErrUnreachable
	}

	_, err := f.svc.EnsureAdmin(context.Background(), adminSeed())
	if !errors.Is(err, identity.ErrUnreachable) {
		t.Fatalf("want ErrUnreachable, got %v", err)
	}
	if exists, _ := f.store.Users().ExistsByEmail(context.Background(), "root@example.com"); exists {
		t.Fatalf("no local row without a provider account")
	}
}
