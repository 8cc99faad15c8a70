package usersync

import (
	"context"
	"errors"
	"log/slog"

	"github.com/geocoder89/projecthub/internal/domain/user"
	"github.com/geocoder89/projecthub/internal/identity"
	"github.com/google/uuid"
)

var realmRoles = []struct {
	name        user.Role
	description string
}{
	{user.RoleAdmin, "Project hub administrator"},
	{user.RoleUser, "Project hub user"},
}

type BootstrapResult struct {
	Created  []string `json:"created"`
	Existing []string `json:"existing"`
	Degraded bool     `json:"degraded"`
	Reason   string   `json:"reason,omitempty"`
}

// InitializeRealmRoles makes sure the realm knows every role we hand out.
// It is safe to call repeatedly. A provider that cannot be reached or refuses
// the service account is reported as Degraded and never returned as an error;
// anything else unexpected is.
func InitializeRealmRoles(ctx context.Context, dir identity.Directory, log *slog.Logger) (BootstrapResult, error) {
	if log == nil {
		log = slog.Default()
	}
	res := BootstrapResult{Created: []string{}, Existing: []string{}}

	degrade := func(err error) (BootstrapResult, error) {
		res.Degraded = true
		res.Reason = err.Error()
		log.WarnContext(ctx, "identity.bootstrap.degraded", "err", err)
		return res, nil
	}

	if err := dir.Ping(ctx); err != nil {
		if identity.Degradable(err) {
			return degrade(err)
		}
		return res, err
	}

	for _, r := range realmRoles {
		created, err := dir.EnsureRole(ctx, string(r.name), r.description)
		if err != nil {
			if identity.Degradable(err) {
				return degrade(err)
			}
			return res, err
		}
		if created {
			res.Created = append(res.Created, string(r.name))
		} else {
			res.Existing = append(res.Existing, string(r.name))
		}
	}

	log.InfoContext(ctx, "identity.bootstrap.done", "created", res.Created, "existing", res.Existing)
	return res, nil
}

type AdminSeed struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

type AdminResult struct {
	User           user.User `json:"user"`
	AccountCreated bool      `json:"accountCreated"`
	UserCreated    bool      `json:"userCreated"`
}

// EnsureAdmin links an ADMIN account in the provider to a local ADMIN user,
// creating whichever side is missing. An existing local row is left as it is.
func (s *Service) EnsureAdmin(ctx context.Context, seed AdminSeed) (res AdminResult, err error) {
	ctx, span := s.startSpan(ctx, "ensure_admin")
	defer func() { endSpan(span, err) }()

	seed.Email = user.NormalizeEmail(seed.Email)

	acc, found, err := s.dir.FindByEmail(ctx, seed.Email)
	if err != nil {
		return AdminResult{}, remoteErr("find admin account", err)
	}

	externalID := acc.ID
	if !found {
		externalID, err = s.dir.CreateAccount(ctx, identity.Profile{
			Email:     seed.Email,
			FirstName: seed.FirstName,
			LastName:  seed.LastName,
			Roles:     []string{string(user.RoleAdmin)},
		}, seed.Password)
		if err != nil {
			return AdminResult{}, remoteErr("create admin account", err)
		}
		res.AccountCreated = true
	} else if err := s.dir.AssignRole(ctx, externalID, string(user.RoleAdmin)); err != nil {
		return AdminResult{}, remoteErr("grant admin role", err)
	}

	existing, err := s.store.GetByEmail(ctx, seed.Email)
	if err == nil {
		res.User = existing
		s.log.InfoContext(ctx, "user.admin.exists", "user_id", existing.ID, "external_id", externalID)
		return res, nil
	}
	if !errors.Is(err, user.ErrNotFound) {
		return AdminResult{}, err
	}

	now := s.now()
	created, err := s.store.Create(ctx, user.User{
		ID:         uuid.NewString(),
		ExternalID: externalID,
		LastName:   seed.LastName,
		FirstName:  seed.FirstName,
		Email:      seed.Email,
		Roles:      []user.Role{user.RoleAdmin},
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		return AdminResult{}, err
	}

	res.User = created
	res.UserCreated = true
	s.log.InfoContext(ctx, "user.admin.created", "user_id", created.ID, "external_id", externalID, "account_created", res.AccountCreated)
	return res, nil
}
