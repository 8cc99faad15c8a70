package user

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/geocoder89/projecthub/internal/domain/date"
	"github.com/google/uuid"
)

type Role string

const (
	RoleAdmin Role = "ADMIN"
	RoleUser  Role = "USER"
)

// placeholder prefix for external ids minted while the identity provider was out of reach
const PlaceholderPrefix = "local-"

var (
	ErrNotFound        = errors.New("user not found")
	ErrEmailTaken      = errors.New("email is already in use")
	ErrExternalIDTaken = errors.New("external id is already linked to a user")
	ErrHasProjects     = errors.New("user is still responsible for projects")
	ErrInvalidRole     = errors.New("invalid role")
	ErrNoDocument      = errors.New("user has no identity document")
)

// ParseRole accepts role names in any case.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToUpper(strings.TrimSpace(s))) {
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleUser:
		return RoleUser, nil
	default:
		return "", ErrInvalidRole
	}
}

type User struct {
	ID          string     `json:"id"`
	ExternalID  string     `json:"externalId"`
	LastName    string     `json:"lastName"`
	FirstName   string     `json:"firstName"`
	BirthDate   *date.Date `json:"birthDate,omitempty"`
	Email       string     `json:"email"`
	Phone       string     `json:"phone,omitempty"`
	DocumentURL string     `json:"documentUrl,omitempty"`
	Roles       []Role     `json:"roles"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Degraded reports whether the user was created without a provider account.
func (u User) Degraded() bool {
	return strings.HasPrefix(u.ExternalID, PlaceholderPrefix)
}

func (u User) HasRole(r Role) bool {
	for _, have := range u.Roles {
		if have == r {
			return true
		}
	}
	return false
}

// Brief is the reduced user shape embedded in project and task responses.
type Brief struct {
	ID        string `json:"id"`
	LastName  string `json:"lastName"`
	FirstName string `json:"firstName"`
	Email     string `json:"email"`
}

func (u User) Brief() Brief {
	return Brief{ID: u.ID, LastName: u.LastName, FirstName: u.FirstName, Email: u.Email}
}

// NormalizeRoles dedupes and sorts. Nil or empty input stays empty.
func NormalizeRoles(in []Role) []Role {
	seen := make(map[Role]struct{}, len(in))
	out := make([]Role, 0, len(in))

	for _, r := range in {
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// DefaultRoles returns roles, or {USER} when none were given.
func DefaultRoles(roles []Role) []Role {
	roles = NormalizeRoles(roles)
	if len(roles) == 0 {
		return []Role{RoleUser}
	}
	return roles
}

// NormalizeEmail is the form emails are stored and compared in, matching the
// provider, which lowercases usernames.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func NewPlaceholderExternalID() string {
	return PlaceholderPrefix + uuid.NewString()
}

type CreateUserRequest struct {
	LastName  string     `json:"lastName" binding:"required,max=100"`
	FirstName string     `json:"firstName" binding:"required,max=100"`
	BirthDate *date.Date `json:"birthDate"`
	Email     string     `json:"email" binding:"required,email,max=255"`
	Phone     string     `json:"phone" binding:"omitempty,max=20"`
	Password  string     `json:"password" binding:"required,min=8"`
	Roles     []Role     `json:"roles" binding:"omitempty,dive,oneof=ADMIN USER"`
}

// a full update payload; Roles is only applied when present
type UpdateUserRequest struct {
	LastName  string     `json:"lastName" binding:"required,max=100"`
	FirstName string     `json:"firstName" binding:"required,max=100"`
	BirthDate *date.Date `json:"birthDate"`
	Email     string     `json:"email" binding:"required,email,max=255"`
	Phone     string     `json:"phone" binding:"omitempty,max=20"`
	Roles     []Role     `json:"roles" binding:"omitempty,dive,oneof=ADMIN USER"`
}

type SignUpRequest struct {
	LastName  string `json:"lastName" binding:"required,max=100"`
	FirstName string `json:"firstName" binding:"required,max=100"`
	Email     string `json:"email" binding:"required,email,max=255"`
	Password  string `json:"password" binding:"required,min=8"`
}

type CreateAdminRequest struct {
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=8"`
	FirstName string `json:"firstName" binding:"required"`
	LastName  string `json:"lastName" binding:"required"`
}

// NewFromCreateRequest builds the local record; ExternalID is filled by the caller.
func NewFromCreateRequest(req CreateUserRequest, externalID string) User {
	now := time.Now().UTC()

	return User{
		ID:         uuid.NewString(),
		ExternalID: externalID,
		LastName:   req.LastName,
		FirstName:  req.FirstName,
		BirthDate:  req.BirthDate,
		Email:      req.Email,
		Phone:      req.Phone,
		Roles:      DefaultRoles(req.Roles),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}
