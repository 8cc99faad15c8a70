package usersync

import (
	"context"
	"time"

	"github.com/geocoder89/projecthub/internal/domain/user"
)

// Store is the local user table.
type Store interface {
	Create(ctx context.Context, u user.User) (user.User, error)
	GetByID(ctx context.Context, id string) (user.User, error)
	GetByExternalID(ctx context.Context, externalID string) (user.User, error)
	GetByEmail(ctx context.Context, email string) (user.User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	Update(ctx context.Context, u user.User) (user.User, error)
	Delete(ctx context.Context, id string) error
	HasProjects(ctx context.Context, id string) (bool, error)
	ListCursor(ctx context.Context, limit int, afterCreatedAt time.Time, afterID string) ([]user.User, *string, bool, error)
}

// Blobs holds identity documents.
type Blobs interface {
	Upload(ctx context.Context, data []byte, filename, bucket string) (string, error)
	Download(ctx context.Context, fileURL string) ([]byte, error)
	Delete(ctx context.Context, fileURL string) error
}

// Metrics counts flow outcomes; nil disables it.
type Metrics interface {
	ObserveSync(flow, result string)
}
