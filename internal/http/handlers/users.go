package handlers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/geocoder89/projecthub/internal/domain/user"
	"github.com/geocoder89/projecthub/internal/usersync"
	"github.com/gin-gonic/gin"
)

type UsersService interface {
	Create(ctx context.Context, req user.CreateUserRequest) (user.User, error)
	Get(ctx context.Context, id string) (user.User, error)
	List(ctx context.Context, limit int, cursor string) (usersync.Page, error)
	Update(ctx context.Context, id string, req user.UpdateUserRequest) (user.User, error)
	Delete(ctx context.Context, id string) error
	AssignRole(ctx context.Context, id, role string) (user.User, error)
	RemoveRole(ctx context.Context, id, role string) (user.User, error)
	UploadDocument(ctx context.Context, id string, data []byte, filename string) (user.User, error)
	DownloadDocument(ctx context.Context, id string) (usersync.Document, error)
}

type UsersHandler struct {
	svc      UsersService
	maxBytes int64
}

func NewUsersHandler(svc UsersService, maxUploadBytes int64) *UsersHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 10 << 20
	}
	return &UsersHandler{svc: svc, maxBytes: maxUploadBytes}
}

// provider calls sit behind the breaker timeout, so leave room for two of them
const syncTimeout = 15 * time.Second

func withTimeout(ctx *gin.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx.Request.Context(), d)
}

func (h *UsersHandler) CreateUser(ctx *gin.Context) {
	var req user.CreateUserRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := withTimeout(ctx, syncTimeout)
	defer cancel()

	u, err := h.svc.Create(cctx, req)
	if err != nil {
		RespondServiceError(ctx, err, "Could not create user")
		return
	}

	ctx.JSON(http.StatusCreated, u)
}

func (h *UsersHandler) ListUsers(ctx *gin.Context) {
	limit := 20
	if raw := ctx.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 100 {
			RespondBadRequest(ctx, "limit must be between 1 and 100", nil)
			return
		}
		limit = n
	}

	cctx, cancel := withTimeout(ctx, 3*time.Second)
	defer cancel()

	page, err := h.svc.List(cctx, limit, ctx.Query("cursor"))
	if err != nil {
		RespondServiceError(ctx, err, "Could not list users")
		return
	}

	ctx.JSON(http.StatusOK, page)
}

func (h *UsersHandler) GetUser(ctx *gin.Context) {
	cctx, cancel := withTimeout(ctx, 2*time.Second)
	defer cancel()

	u, err := h.svc.Get(cctx, ctx.Param("id"))
	if err != nil {
		RespondServiceError(ctx, err, "Could not fetch user")
		return
	}

	RespondJSONWithETag(ctx, http.StatusOK, u)
}

func (h *UsersHandler) UpdateUser(ctx *gin.Context) {
	var req user.UpdateUserRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := withTimeout(ctx, syncTimeout)
	defer cancel()

	u, err := h.svc.Update(cctx, ctx.Param("id"), req)
	if err != nil {
		RespondServiceError(ctx, err, "Could not update user")
		return
	}

	ctx.JSON(http.StatusOK, u)
}

func (h *UsersHandler) DeleteUser(ctx *gin.Context) {
	cctx, cancel := withTimeout(ctx, syncTimeout)
	defer cancel()

	if err := h.svc.Delete(cctx, ctx.Param("id")); err != nil {
		RespondServiceError(ctx, err, "Could not delete user")
		return
	}

	ctx.Status(http.StatusNoContent)
}

func (h *UsersHandler) AssignRole(ctx *gin.Context) {
	h.changeRole(ctx, h.svc.AssignRole, "Could not assign role")
}

func (h *UsersHandler) RemoveRole(ctx *gin.Context) {
	h.changeRole(ctx, h.svc.RemoveRole, "Could not remove role")
}

func (h *UsersHandler) changeRole(ctx *gin.Context, fn func(context.Context, string, string) (user.User, error), failMsg string) {
	cctx, cancel := withTimeout(ctx, syncTimeout)
	defer cancel()

	u, err := fn(cctx, ctx.Param("id"), ctx.Param("role"))
	if err != nil {
		RespondServiceError(ctx, err, failMsg)
		return
	}

	ctx.JSON(http.StatusOK, u)
}

func (h *UsersHandler) UploadDocument(ctx *gin.Context) {
	fh, err := ctx.FormFile("file")
	if err != nil {
		RespondBadRequest(ctx, "Multipart field \"file\" is required", gin.H{"reason": err.Error()})
		return
	}
	if fh.Size > h.maxBytes {
		RespondError(ctx, http.StatusRequestEntityTooLarge, "payload_too_large", fmt.Sprintf("Document exceeds %d bytes", h.maxBytes), nil)
		return
	}

	f, err := fh.Open()
	if err != nil {
		RespondBadRequest(ctx, "Could not read uploaded file", nil)
		return
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, h.maxBytes+1))
	if err != nil {
		RespondBadRequest(ctx, "Could not read uploaded file", nil)
		return
	}

	cctx, cancel := withTimeout(ctx, 30*time.Second)
	defer cancel()

	u, err := h.svc.UploadDocument(cctx, ctx.Param("id"), data, fh.Filename)
	if err != nil {
		RespondServiceError(ctx, err, "Could not store document")
		return
	}

	ctx.JSON(http.StatusOK, u)
}

func (h *UsersHandler) DownloadDocument(ctx *gin.Context) {
	cctx, cancel := withTimeout(ctx, 30*time.Second)
	defer cancel()

	doc, err := h.svc.DownloadDocument(cctx, ctx.Param("id"))
	if err != nil {
		RespondServiceError(ctx, err, "Could not fetch document")
		return
	}

	ctx.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.Name))
	ctx.Data(http.StatusOK, http.DetectContentType(doc.Data), doc.Data)
}
