package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/castellanhq/castellan/internal/auth"
	"github.com/castellanhq/castellan/internal/models"
	pkghttp "github.com/castellanhq/castellan/pkg/http"
	"github.com/go-chi/chi/v5"
)

// LockoutServiceInterface defines the lockout operations exposed to admins
type LockoutServiceInterface interface {
	CheckLockoutStatus(ctx context.Context, username, ipAddress string) *models.LockoutStatus
	UnlockAccount(ctx context.Context, username, unlockedBy, reason string) error
	GetLockoutHistory(ctx context.Context, username string, limit int) []*models.AccountLockout
}

// AdminHandler handles lockout administration requests
type AdminHandler struct {
	lockout LockoutServiceInterface
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(lockout LockoutServiceInterface) *AdminHandler {
	return &AdminHandler{lockout: lockout}
}

// GetLockoutStatus returns the current lockout state for a username
func (h *AdminHandler) GetLockoutStatus(w http.ResponseWriter, r *http.Request) {
	username := strings.ToLower(chi.URLParam(r, "username"))
	if username == "" {
		pkghttp.WriteBadRequest(w, "Username is required")
		return
	}

	status := h.lockout.CheckLockoutStatus(r.Context(), username, r.URL.Query().Get("ip"))
	pkghttp.WriteJSON(w, http.StatusOK, status)
}

// UnlockRequest represents the request body for a manual unlock
type UnlockRequest struct {
	Username string `json:"username" validate:"required,min=1,max=256"`
	Reason   string `json:"reason" validate:"max=512"`
}

// UnlockAccount clears an active lockout and the attempt history
func (h *AdminHandler) UnlockAccount(w http.ResponseWriter, r *http.Request) {
	var req UnlockRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	username := strings.ToLower(strings.TrimSpace(req.Username))
	if err := h.lockout.UnlockAccount(r.Context(), username, claims.Username, req.Reason); err != nil {
		pkghttp.WriteInternalError(w, "Unlock failed")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"status": "unlocked", "username": username})
}

// GetLockoutHistory returns recent lockout episodes for a username
func (h *AdminHandler) GetLockoutHistory(w http.ResponseWriter, r *http.Request) {
	username := strings.ToLower(chi.URLParam(r, "username"))
	if username == "" {
		pkghttp.WriteBadRequest(w, "Username is required")
		return
	}

	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	history := h.lockout.GetLockoutHistory(r.Context(), username, limit)
	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{"username": username, "lockouts": history})
}
