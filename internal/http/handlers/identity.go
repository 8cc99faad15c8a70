package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/geocoder89/projecthub/internal/domain/user"
	"github.com/geocoder89/projecthub/internal/identity"
	"github.com/geocoder89/projecthub/internal/usersync"
	"github.com/gin-gonic/gin"
)

type IdentityAdmin interface {
	EnsureAdmin(ctx context.Context, seed usersync.AdminSeed) (usersync.AdminResult, error)
	SyncFromDirectory(ctx context.Context, externalID string) (usersync.SyncResult, error)
}

// IdentityHandler exposes the operator actions against the identity provider.
type IdentityHandler struct {
	admin     IdentityAdmin
	initRoles func(ctx context.Context) (usersync.BootstrapResult, error)
}

func NewIdentityHandler(admin IdentityAdmin, initRoles func(ctx context.Context) (usersync.BootstrapResult, error)) *IdentityHandler {
	return &IdentityHandler{admin: admin, initRoles: initRoles}
}

func (h *IdentityHandler) InitRoles(ctx *gin.Context) {
	cctx, cancel := withTimeout(ctx, syncTimeout)
	defer cancel()

	res, err := h.initRoles(cctx)
	if err != nil {
		RespondServiceError(ctx, err, "Could not initialize realm roles")
		return
	}

	status := http.StatusOK
	if res.Degraded {
		status = http.StatusServiceUnavailable
	}
	ctx.JSON(status, res)
}

func (h *IdentityHandler) CreateAdmin(ctx *gin.Context) {
	var req user.CreateAdminRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := withTimeout(ctx, syncTimeout)
	defer cancel()

	res, err := h.admin.EnsureAdmin(cctx, usersync.AdminSeed{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		RespondServiceError(ctx, err, "Could not create admin")
		return
	}

	status := http.StatusOK
	if res.UserCreated {
		status = http.StatusCreated
	}
	ctx.JSON(status, res)
}

func (h *IdentityHandler) SyncUser(ctx *gin.Context) {
	cctx, cancel := withTimeout(ctx, syncTimeout)
	defer cancel()

	res, err := h.admin.SyncFromDirectory(cctx, ctx.Param("externalId"))
	if errors.Is(err, identity.ErrNotFound) {
		RespondNotFound(ctx, "Identity account not found")
		return
	}
	if err != nil {
		RespondServiceError(ctx, err, "Could not synchronize user")
		return
	}

	ctx.JSON(http.StatusOK, res)
}
