package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/geocoder89/taskflow/internal/accounts"
	"github.com/geocoder89/taskflow/internal/domain/rbac"
	"github.com/geocoder89/taskflow/internal/domain/user"
	"github.com/geocoder89/taskflow/internal/http/middlewares"
	"github.com/gin-gonic/gin"
)

type AccountsService interface {
	Register(ctx context.Context, req user.RegisterRequest) (user.Token, error)
	Login(ctx context.Context, req user.LoginRequest) (user.Token, error)
	Logout(ctx context.Context, u user.User, token string) error
	Profile(ctx context.Context, u user.User) (accounts.Profile, error)
	AssignRole(ctx context.Context, userID int64, name rbac.RoleName) (rbac.UserRole, error)
	RemoveRole(ctx context.Context, userID int64, name rbac.RoleName) error
}

type AccountsHandler struct {
	svc AccountsService
}

func NewAccountsHandler(svc AccountsService) *AccountsHandler {
	return &AccountsHandler{svc: svc}
}

func (h *AccountsHandler) Register(ctx *gin.Context) {
	var req user.RegisterRequest

	if !BindJSON(ctx, &req) {
		return
	}

	tok, err := h.svc.Register(ctx.Request.Context(), req)
	if err != nil {
		if errors.Is(err, user.ErrEmailTaken) {
			RespondBadRequest(ctx, "Email already registered", nil)
			return
		}
		RespondInternal(ctx, err, "Could not create user")
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{"token": tok.Value})
}

func (h *AccountsHandler) Login(ctx *gin.Context) {
	var req user.LoginRequest

	if !BindJSON(ctx, &req) {
		return
	}

	tok, err := h.svc.Login(ctx.Request.Context(), req)
	if err != nil {
		if errors.Is(err, accounts.ErrInvalidCredentials) {
			RespondBadRequest(ctx, "Invalid credentials", nil)
			return
		}
		RespondInternal(ctx, err, "Could not log in")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"token": tok.Value})
}

func (h *AccountsHandler) Logout(ctx *gin.Context) {
	u, ok := middlewares.CurrentUser(ctx)
	token, hasToken := middlewares.CurrentToken(ctx)
	if !ok || !hasToken {
		RespondError(ctx, http.StatusUnauthorized, "Invalid or expired token", nil)
		return
	}

	if err := h.svc.Logout(ctx.Request.Context(), u, token); err != nil {
		if errors.Is(err, user.ErrTokenNotFound) {
			RespondNotFound(ctx, "Token not found")
			return
		}
		RespondInternal(ctx, err, "Could not log out")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"msg": "Logout successful"})
}

func (h *AccountsHandler) Me(ctx *gin.Context) {
	u, ok := middlewares.CurrentUser(ctx)
	if !ok {
		RespondError(ctx, http.StatusUnauthorized, "Invalid or expired token", nil)
		return
	}

	profile, err := h.svc.Profile(ctx.Request.Context(), u)
	if err != nil {
		RespondInternal(ctx, err, "Could not load profile")
		return
	}

	ctx.JSON(http.StatusOK, profile)
}

func (h *AccountsHandler) AssignRole(ctx *gin.Context) {
	userID, role, ok := roleParams(ctx)
	if !ok {
		return
	}

	ur, err := h.svc.AssignRole(ctx.Request.Context(), userID, role)
	if err != nil {
		respondRoleError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"user_id": ur.UserID, "role": role})
}

func (h *AccountsHandler) RemoveRole(ctx *gin.Context) {
	userID, role, ok := roleParams(ctx)
	if !ok {
		return
	}

	if err := h.svc.RemoveRole(ctx.Request.Context(), userID, role); err != nil {
		respondRoleError(ctx, err)
		return
	}

	ctx.Status(http.StatusNoContent)
}

func roleParams(ctx *gin.Context) (int64, rbac.RoleName, bool) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return 0, "", false
	}

	role := rbac.ParseRoleName(ctx.Param("role"))
	if role == "" {
		RespondBadRequest(ctx, "Role is required", nil)
		return 0, "", false
	}
	return id, role, true
}

func respondRoleError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, user.ErrNotFound):
		RespondNotFound(ctx, "User not found")
	case errors.Is(err, rbac.ErrRoleNotFound):
		RespondNotFound(ctx, "Role not found")
	default:
		RespondInternal(ctx, err, "Could not update roles")
	}
}

func parseID(ctx *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(ctx.Param(name), 10, 64)
	if err != nil || id <= 0 {
		RespondBadRequest(ctx, "Invalid "+name, gin.H{"field": name})
		return 0, false
	}
	return id, true
}
