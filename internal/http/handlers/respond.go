package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/geocoder89/projecthub/internal/blob"
	"github.com/geocoder89/projecthub/internal/domain/project"
	"github.com/geocoder89/projecthub/internal/domain/task"
	"github.com/geocoder89/projecthub/internal/domain/user"
	"github.com/geocoder89/projecthub/internal/identity"
	"github.com/geocoder89/projecthub/internal/planning"
	"github.com/geocoder89/projecthub/internal/usersync"
	"github.com/gin-gonic/gin"
)

type APIError struct {
	Code      string      `json:"code"`
	Message   string      `json:"message"`
	RequestID string      `json:"requestId,omitempty"`
	Details   interface{} `json:"details,omitempty"`
}

func requestIDFrom(ctx *gin.Context) string {
	v, ok := ctx.Get("request_id")

	if ok {
		s, ok := v.(string)
		if ok && s != "" {
			return s
		}
	}

	// fallback header
	return ctx.GetHeader("X-Request-Id")
}

func RespondError(ctx *gin.Context, status int, code, message string, details interface{}) {
	ctx.JSON(status, gin.H{
		"error": APIError{
			Code:      code,
			Message:   message,
			RequestID: requestIDFrom(ctx),
			Details:   details,
		},
	})
}

func RespondBadRequest(ctx *gin.Context, message string, details interface{}) {
	RespondError(ctx, http.StatusBadRequest, "invalid_request", message, details)
}

func RespondNotFound(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusNotFound, "not_found", message, nil)
}

func RespondInternal(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusInternalServerError, "internal_error", message, nil)
}

func RespondConflict(ctx *gin.Context, code, message string) {
	RespondError(ctx, http.StatusConflict, code, message, nil)
}

func RespondUnauthorized(ctx *gin.Context, code, message string) {
	RespondError(ctx, http.StatusUnauthorized, code, message, nil)
}

// RespondServiceError maps service and store errors onto the error envelope.
// fallback is the message used for 500s.
func RespondServiceError(ctx *gin.Context, err error, fallback string) {
	var validationErr *planning.ValidationError
	var blobStatus *blob.StatusError

	switch {
	case errors.As(err, &validationErr):
		RespondBadRequest(ctx, "Invalid request body", gin.H{"fields": []FieldError{{
			Field:   validationErr.Field,
			Rule:    validationErr.Rule,
			Param:   validationErr.Param,
			Message: validationErr.Message,
		}}})
	case errors.Is(err, user.ErrInvalidRole):
		RespondBadRequest(ctx, "Role must be ADMIN or USER", nil)
	case errors.Is(err, task.ErrInvalidStatus):
		RespondBadRequest(ctx, "Status must be one of TODO, IN_PROGRESS, DONE", nil)
	case errors.Is(err, usersync.ErrInvalidCursor):
		RespondBadRequest(ctx, "Invalid cursor", nil)

	case errors.Is(err, user.ErrNotFound):
		RespondNotFound(ctx, "User not found")
	case errors.Is(err, user.ErrNoDocument):
		RespondNotFound(ctx, "User has no identity document")
	case errors.Is(err, project.ErrNotFound):
		RespondNotFound(ctx, "Project not found")
	case errors.Is(err, task.ErrNotFound):
		RespondNotFound(ctx, "Task not found")

	case errors.Is(err, user.ErrEmailTaken):
		RespondConflict(ctx, "email_taken", "Email is already in use.")
	case errors.Is(err, user.ErrExternalIDTaken):
		RespondConflict(ctx, "external_id_taken", "Identity account is already linked to another user.")
	case errors.Is(err, user.ErrHasProjects):
		RespondConflict(ctx, "user_has_projects", "User is still responsible for projects.")

	// checked first: a failed sync may wrap an identity error too
	case errors.Is(err, usersync.ErrSynchronizationFailed):
		logFailure(ctx, err)
		RespondError(ctx, http.StatusInternalServerError, "synchronization_failed", "Could not synchronize with the identity provider", nil)
	case errors.Is(err, identity.ErrUnreachable):
		RespondError(ctx, http.StatusServiceUnavailable, "identity_unavailable", "Identity provider is unavailable", nil)
	case errors.Is(err, identity.ErrForbidden):
		logFailure(ctx, err)
		RespondError(ctx, http.StatusBadGateway, "identity_forbidden", "Identity provider refused the request", nil)

	case errors.Is(err, blob.ErrUnavailable), errors.Is(err, blob.ErrNotFound), errors.As(err, &blobStatus):
		logFailure(ctx, err)
		RespondError(ctx, http.StatusBadGateway, "storage_unavailable", "Document storage is unavailable", nil)

	default:
		logFailure(ctx, err)
		RespondInternal(ctx, fallback)
	}
}

func logFailure(ctx *gin.Context, err error) {
	_ = ctx.Error(err)
	slog.Default().ErrorContext(ctx.Request.Context(), "request_failed", "route", ctx.FullPath(), "err", err)
}
