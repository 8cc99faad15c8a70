package usersync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/geocoder89/projecthub/internal/domain/user"
	"github.com/geocoder89/projecthub/internal/identity"
	"github.com/geocoder89/projecthub/internal/observability"
	"github.com/geocoder89/projecthub/internal/utils"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DocumentBucket is where identity documents are stored.
const DocumentBucket = "identity-documents"

// ErrSynchronizationFailed is an identity provider failure with no defined fallback.
var ErrSynchronizationFailed = errors.New("identity synchronization failed")

// Service keeps local users and identity provider accounts in agreement.
//
// Every mutation calls the provider first and only touches the local store when
// that call succeeded. Create is the one exception: when the provider is
// unreachable or refuses us, the user is stored locally with a placeholder
// external id and can be linked later.
type Service struct {
	store   Store
	dir     identity.Directory
	blobs   Blobs
	log     *slog.Logger
	metrics Metrics
	now     func() time.Time
}

func NewService(store Store, dir identity.Directory, blobs Blobs, log *slog.Logger, metrics Metrics) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:   store,
		dir:     dir,
		blobs:   blobs,
		log:     log,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) observe(flow, result string) {
	if s.metrics != nil {
		s.metrics.ObserveSync(flow, result)
	}
}

func (s *Service) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return observability.Tracer().Start(ctx, "usersync."+name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// remoteErr keeps unreachable/forbidden recognisable and folds everything else into ErrSynchronizationFailed.
func remoteErr(op string, err error) error {
	if identity.Degradable(err) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrSynchronizationFailed, err)
}

func rolesToStrings(roles []user.Role) []string {
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		out = append(out, string(r))
	}
	return out
}

func (s *Service) Create(ctx context.Context, req user.CreateUserRequest) (u user.User, err error) {
	ctx, span := s.startSpan(ctx, "create")
	defer func() { endSpan(span, err) }()

	req.Email = user.NormalizeEmail(req.Email)

	exists, err := s.store.ExistsByEmail(ctx, req.Email)
	if err != nil {
		return user.User{}, err
	}
	if exists {
		s.observe("create", "conflict")
		return user.User{}, user.ErrEmailTaken
	}

	roles := user.DefaultRoles(req.Roles)
	profile := identity.Profile{
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Roles:     rolesToStrings(roles),
	}

	degraded := false
	externalID, err := s.dir.CreateAccount(ctx, profile, req.Password)
	switch {
	case err == nil:
	case ctx.Err() != nil:
		// a caller that gave up gets no placeholder user
		s.observe("create", "canceled")
		return user.User{}, err
	case identity.Degradable(err):
		degraded = true
		externalID = user.NewPlaceholderExternalID()
		s.log.WarnContext(ctx, "user.create.degraded",
			"email", req.Email,
			"placeholder_external_id", externalID,
			"err", err,
		)
	default:
		s.observe("create", "failed")
		return user.User{}, fmt.Errorf("create account: %w: %w", ErrSynchronizationFailed, err)
	}

	u = user.NewFromCreateRequest(req, externalID)
	u.Roles = roles
	u.CreatedAt = s.now()
	u.UpdatedAt = u.CreatedAt

	created, err := s.store.Create(ctx, u)
	if err != nil {
		if !degraded {
			// no compensation: the provider account stays behind for an operator to reconcile
			s.log.ErrorContext(ctx, "user.create.orphaned_account",
				"external_id", externalID,
				"email", req.Email,
				"err", err,
			)
		}
		s.observe("create", "failed")
		return user.User{}, err
	}

	span.SetAttributes(attribute.String("user.id", created.ID), attribute.Bool("user.degraded", degraded))
	if degraded {
		s.observe("create", "degraded")
	} else {
		s.observe("create", "synced")
	}
	s.log.InfoContext(ctx, "user.created", "user_id", created.ID, "external_id", created.ExternalID, "degraded", degraded)

	return created, nil
}

// SignUp is self-registration: always the USER role.
func (s *Service) SignUp(ctx context.Context, req user.SignUpRequest) (user.User, error) {
	return s.Create(ctx, user.CreateUserRequest{
		LastName:  req.LastName,
		FirstName: req.FirstName,
		Email:     req.Email,
		Password:  req.Password,
		Roles:     []user.Role{user.RoleUser},
	})
}

func (s *Service) Update(ctx context.Context, id string, req user.UpdateUserRequest) (u user.User, err error) {
	ctx, span := s.startSpan(ctx, "update", attribute.String("user.id", id))
	defer func() { endSpan(span, err) }()

	u, err = s.store.GetByID(ctx, id)
	if err != nil {
		return user.User{}, err
	}

	// a taken email must be refused before the provider account is renamed
	req.Email = user.NormalizeEmail(req.Email)
	if req.Email != u.Email {
		owner, err := s.store.GetByEmail(ctx, req.Email)
		switch {
		case err == nil && owner.ID != u.ID:
			s.observe("update", "conflict")
			return user.User{}, user.ErrEmailTaken
		case err != nil && !errors.Is(err, user.ErrNotFound):
			return user.User{}, err
		}
	}

	err = s.dir.UpdateAccount(ctx, u.ExternalID, identity.Profile{
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		s.observe("update", "failed")
		return user.User{}, remoteErr("update account", err)
	}

	u.LastName = req.LastName
	u.FirstName = req.FirstName
	u.Email = req.Email
	u.BirthDate = req.BirthDate
	u.Phone = req.Phone
	if req.Roles != nil {
		u.Roles = user.NormalizeRoles(req.Roles)
	}
	u.UpdatedAt = s.now()

	updated, err := s.store.Update(ctx, u)
	if err != nil {
		s.log.ErrorContext(ctx, "user.update.local_failed_after_remote", "user_id", id, "external_id", u.ExternalID, "err", err)
		s.observe("update", "failed")
		return user.User{}, err
	}

	s.observe("update", "synced")
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, id string) (err error) {
	ctx, span := s.startSpan(ctx, "delete", attribute.String("user.id", id))
	defer func() { endSpan(span, err) }()

	u, err := s.store.GetByID(ctx, id)
	if err != nil {
		return err
	}

	// checked before the remote delete so a refusal leaves both sides untouched
	hasProjects, err := s.store.HasProjects(ctx, id)
	if err != nil {
		return err
	}
	if hasProjects {
		return user.ErrHasProjects
	}

	if err := s.dir.DeleteAccount(ctx, u.ExternalID); err != nil {
		s.observe("delete", "failed")
		return remoteErr("delete account", err)
	}

	if err := s.store.Delete(ctx, id); err != nil {
		s.log.ErrorContext(ctx, "user.delete.local_failed_after_remote", "user_id", id, "external_id", u.ExternalID, "err", err)
		s.observe("delete", "failed")
		return err
	}

	if u.DocumentURL != "" && s.blobs != nil {
		if err := s.blobs.Delete(ctx, u.DocumentURL); err != nil {
			s.log.WarnContext(ctx, "user.delete.document_cleanup_failed", "user_id", id, "document_url", u.DocumentURL, "err", err)
		}
	}

	s.observe("delete", "synced")
	s.log.InfoContext(ctx, "user.deleted", "user_id", id, "external_id", u.ExternalID)
	return nil
}

func (s *Service) AssignRole(ctx context.Context, id, roleName string) (user.User, error) {
	return s.changeRole(ctx, "assign_role", id, roleName, func(roles []user.Role, r user.Role) []user.Role {
		return user.NormalizeRoles(append(roles, r))
	})
}

// RemoveRole does not stop a user from ending up with no roles at all.
func (s *Service) RemoveRole(ctx context.Context, id, roleName string) (user.User, error) {
	return s.changeRole(ctx, "remove_role", id, roleName, func(roles []user.Role, r user.Role) []user.Role {
		out := make([]user.Role, 0, len(roles))
		for _, have := range roles {
			if have != r {
				out = append(out, have)
			}
		}
		return out
	})
}

func (s *Service) changeRole(ctx context.Context, flow, id, roleName string, apply func([]user.Role, user.Role) []user.Role) (u user.User, err error) {
	ctx, span := s.startSpan(ctx, flow, attribute.String("user.id", id), attribute.String("role", roleName))
	defer func() { endSpan(span, err) }()

	role, err := user.ParseRole(roleName)
	if err != nil {
		return user.User{}, err
	}

	u, err = s.store.GetByID(ctx, id)
	if err != nil {
		return user.User{}, err
	}

	if flow == "assign_role" {
		err = s.dir.AssignRole(ctx, u.ExternalID, string(role))
	} else {
		err = s.dir.RemoveRole(ctx, u.ExternalID, string(role))
	}
	if err != nil {
		s.observe(flow, "failed")
		return user.User{}, remoteErr(flow, err)
	}

	u.Roles = apply(u.Roles, role)
	u.UpdatedAt = s.now()

	updated, err := s.store.Update(ctx, u)
	if err != nil {
		s.observe(flow, "failed")
		return user.User{}, err
	}

	if len(updated.Roles) == 0 {
		s.log.WarnContext(ctx, "user.roles.empty", "user_id", id)
	}
	s.observe(flow, "synced")
	return updated, nil
}

// SyncResult says what a directory sync did locally.
type SyncResult struct {
	User    user.User `json:"user"`
	Created bool      `json:"created"`
	Changed bool      `json:"changed"`
}

// SyncFromDirectory pulls one provider account into the local store.
// Running it twice with no remote change writes nothing the second time.
func (s *Service) SyncFromDirectory(ctx context.Context, externalID string) (res SyncResult, err error) {
	ctx, span := s.startSpan(ctx, "sync", attribute.String("user.external_id", externalID))
	defer func() { endSpan(span, err) }()

	acc, err := s.dir.GetAccount(ctx, externalID)
	if err != nil {
		return SyncResult{}, remoteErr("get account", err)
	}
	remoteRoles, err := s.dir.ListEffectiveRoles(ctx, externalID)
	if err != nil {
		return SyncResult{}, remoteErr("list roles", err)
	}

	roles := make([]user.Role, 0, len(remoteRoles))
	for _, name := range remoteRoles {
		// provider built-ins like offline_access are not ours
		if r, err := user.ParseRole(name); err == nil {
			roles = append(roles, r)
		}
	}
	roles = user.DefaultRoles(roles)

	acc.Email = user.NormalizeEmail(acc.Email)

	existing, err := s.store.GetByExternalID(ctx, externalID)
	if errors.Is(err, user.ErrNotFound) {
		now := s.now()
		created, err := s.store.Create(ctx, user.User{
			ID:         uuid.NewString(),
			ExternalID: externalID,
			LastName:   acc.LastName,
			FirstName:  acc.FirstName,
			Email:      acc.Email,
			Roles:      roles,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
		if err != nil {
			return SyncResult{}, err
		}
		s.observe("sync", "created")
		return SyncResult{User: created, Created: true, Changed: true}, nil
	}
	if err != nil {
		return SyncResult{}, err
	}

	if existing.LastName == acc.LastName &&
		existing.FirstName == acc.FirstName &&
		existing.Email == acc.Email &&
		sameRoles(existing.Roles, roles) {
		s.observe("sync", "unchanged")
		return SyncResult{User: existing}, nil
	}

	existing.LastName = acc.LastName
	existing.FirstName = acc.FirstName
	existing.Email = acc.Email
	existing.Roles = roles
	existing.UpdatedAt = s.now()

	updated, err := s.store.Update(ctx, existing)
	if err != nil {
		return SyncResult{}, err
	}
	s.observe("sync", "updated")
	return SyncResult{User: updated, Changed: true}, nil
}

func sameRoles(a, b []user.Role) bool {
	a, b = user.NormalizeRoles(a), user.NormalizeRoles(b)
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// UploadDocument replaces the user's identity document. The old file is removed
// before the upload, so a failed upload leaves the user with no document.
func (s *Service) UploadDocument(ctx context.Context, id string, data []byte, filename string) (u user.User, err error) {
	ctx, span := s.startSpan(ctx, "upload_document", attribute.String("user.id", id))
	defer func() { endSpan(span, err) }()

	u, err = s.store.GetByID(ctx, id)
	if err != nil {
		return user.User{}, err
	}

	if u.DocumentURL != "" {
		if err := s.blobs.Delete(ctx, u.DocumentURL); err != nil {
			return user.User{}, fmt.Errorf("delete previous document: %w", err)
		}
	}

	fileURL, err := s.blobs.Upload(ctx, data, filename, DocumentBucket)
	if err != nil {
		return user.User{}, fmt.Errorf("upload document: %w", err)
	}

	u.DocumentURL = fileURL
	u.UpdatedAt = s.now()

	updated, err := s.store.Update(ctx, u)
	if err != nil {
		return user.User{}, err
	}

	s.log.InfoContext(ctx, "user.document.uploaded", "user_id", id, "bytes", len(data))
	return updated, nil
}

type Document struct {
	Name string
	Data []byte
}

func (s *Service) DownloadDocument(ctx context.Context, id string) (Document, error) {
	u, err := s.store.GetByID(ctx, id)
	if err != nil {
		return Document{}, err
	}
	if u.DocumentURL == "" {
		return Document{}, user.ErrNoDocument
	}

	data, err := s.blobs.Download(ctx, u.DocumentURL)
	if err != nil {
		return Document{}, fmt.Errorf("download document: %w", err)
	}
	return Document{Name: path.Base(u.DocumentURL), Data: data}, nil
}

func (s *Service) Get(ctx context.Context, id string) (user.User, error) {
	return s.store.GetByID(ctx, id)
}

func (s *Service) GetByExternalID(ctx context.Context, externalID string) (user.User, error) {
	return s.store.GetByExternalID(ctx, externalID)
}

type Page struct {
	Items      []user.User `json:"items"`
	NextCursor *string     `json:"nextCursor,omitempty"`
	HasMore    bool        `json:"hasMore"`
}

// ErrInvalidCursor is returned for a cursor we did not issue.
var ErrInvalidCursor = errors.New("invalid cursor")

func (s *Service) List(ctx context.Context, limit int, cursor string) (Page, error) {
	var after utils.UserCursor
	if cursor != "" {
		c, err := utils.DecodeUserCursor(cursor)
		if err != nil {
			return Page{}, ErrInvalidCursor
		}
		after = c
	}

	items, next, more, err := s.store.ListCursor(ctx, limit, after.CreatedAt, after.ID)
	if err != nil {
		return Page{}, err
	}
	return Page{Items: items, NextCursor: next, HasMore: more}, nil
}
