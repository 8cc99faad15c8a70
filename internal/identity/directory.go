package identity

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrUnreachable covers transport failures, timeouts, gateway statuses and an open circuit.
	ErrUnreachable = errors.New("identity provider unreachable")
	// ErrForbidden means the provider rejected our service credentials.
	ErrForbidden = errors.New("identity provider refused access")
	ErrNotFound  = errors.New("identity account not found")
	ErrConflict  = errors.New("identity account already exists")
)

// StatusError is any provider response we have no sentinel for.
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("identity %s: unexpected status %d: %s", e.Op, e.Status, e.Body)
}

// Profile is what we push to the provider for an account.
type Profile struct {
	Email     string
	FirstName string
	LastName  string
	Roles     []string
}

type Account struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Enabled   bool   `json:"enabled"`
}

type Directory interface {
	CreateAccount(ctx context.Context, p Profile, password string) (string, error)
	UpdateAccount(ctx context.Context, externalID string, p Profile) error
	DeleteAccount(ctx context.Context, externalID string) error
	AssignRole(ctx context.Context, externalID, role string) error
	RemoveRole(ctx context.Context, externalID, role string) error
	FindByEmail(ctx context.Context, email string) (Account, bool, error)
	GetAccount(ctx context.Context, externalID string) (Account, error)
	ListEffectiveRoles(ctx context.Context, externalID string) ([]string, error)
	EnsureRole(ctx context.Context, name, description string) (bool, error)
	Ping(ctx context.Context) error
}

// Degradable reports whether a create may fall back to a placeholder account.
func Degradable(err error) bool {
	return errors.Is(err, ErrUnreachable) || errors.Is(err, ErrForbidden)
}
