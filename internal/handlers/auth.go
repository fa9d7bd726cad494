package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/castellanhq/castellan/internal/models"
	"github.com/castellanhq/castellan/internal/services"
	pkghttp "github.com/castellanhq/castellan/pkg/http"
	"github.com/go-chi/chi/v5"
)

// AuthServiceInterface defines the interface for auth business logic
type AuthServiceInterface interface {
	Login(ctx context.Context, username, password, ipAddress, userAgent string) (*services.LoginResult, error)
}

// DirectoryReader exposes the read-only directory lookups
type DirectoryReader interface {
	GetUser(ctx context.Context, username string) (*models.DirectoryUser, error)
	GetUserGroups(ctx context.Context, username string) ([]string, error)
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	service   AuthServiceInterface
	directory DirectoryReader
	ipConfig  *pkghttp.IPConfig
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(service AuthServiceInterface, directory DirectoryReader, ipConfig *pkghttp.IPConfig) *AuthHandler {
	return &AuthHandler{
		service:   service,
		directory: directory,
		ipConfig:  ipConfig,
	}
}

// LoginRequest represents the request body for login
type LoginRequest struct {
	Username string `json:"username" validate:"required,min=1,max=256"`
	Password string `json:"password" validate:"required"`
}

// Login handles directory login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)
	userAgent := r.UserAgent()

	result, err := h.service.Login(r.Context(), req.Username, req.Password, ipAddress, userAgent)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrAccountLocked):
			var lockout *models.LockoutStatus
			if result != nil {
				lockout = result.Lockout
			}
			pkghttp.WriteLocked(w, "Account is temporarily locked", lockout)
		case errors.Is(err, models.ErrAccountDisabled):
			// surfaced like a bad password so probing cannot distinguish them
			pkghttp.WriteUnauthorized(w, "Invalid credentials")
		case errors.Is(err, models.ErrUnauthorized):
			pkghttp.WriteUnauthorized(w, "Invalid credentials")
		default:
			pkghttp.WriteInternalError(w, "Login failed")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, result)
}

// GetUser returns the directory entry for a username
func (h *AuthHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	if username == "" {
		pkghttp.WriteBadRequest(w, "Username is required")
		return
	}

	user, err := h.directory.GetUser(r.Context(), username)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "User not found")
			return
		}
		pkghttp.WriteInternalError(w, "Directory lookup failed")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, user)
}

// GetUserGroups returns the group memberships for a username
func (h *AuthHandler) GetUserGroups(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	if username == "" {
		pkghttp.WriteBadRequest(w, "Username is required")
		return
	}

	groups, err := h.directory.GetUserGroups(r.Context(), username)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "User not found")
			return
		}
		pkghttp.WriteInternalError(w, "Directory lookup failed")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string][]string{"groups": groups})
}
