package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/geocoder89/projecthub/internal/domain/user"
	"github.com/geocoder89/projecthub/internal/http/middlewares"
	"github.com/gin-gonic/gin"
)

type AccountService interface {
	SignUp(ctx context.Context, req user.SignUpRequest) (user.User, error)
	GetByExternalID(ctx context.Context, externalID string) (user.User, error)
}

type AuthHandler struct {
	accounts AccountService
}

func NewAuthHandler(accounts AccountService) *AuthHandler {
	return &AuthHandler{accounts: accounts}
}

// SignUp registers a USER. Sign-in itself happens against the identity provider.
func (h *AuthHandler) SignUp(ctx *gin.Context) {
	var req user.SignUpRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := withTimeout(ctx, syncTimeout)
	defer cancel()

	u, err := h.accounts.SignUp(cctx, req)
	if err != nil {
		RespondServiceError(ctx, err, "Could not create user")
		return
	}

	ctx.JSON(http.StatusCreated, u)
}

// Me returns the local user behind the bearer token.
func (h *AuthHandler) Me(ctx *gin.Context) {
	externalID, ok := middlewares.UserIDFromContext(ctx)
	if !ok {
		RespondUnauthorized(ctx, "unauthorized", "Missing identity context")
		return
	}

	cctx, cancel := withTimeout(ctx, 2*time.Second)
	defer cancel()

	u, err := h.accounts.GetByExternalID(cctx, externalID)
	if err != nil {
		RespondServiceError(ctx, err, "Could not fetch user")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"user":  u,
		"roles": middlewares.RolesFromContext(ctx),
	})
}
