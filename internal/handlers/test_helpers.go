package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/castellanhq/castellan/internal/auth"
	"github.com/castellanhq/castellan/internal/models"
	"github.com/castellanhq/castellan/internal/services"
	pkghttp "github.com/castellanhq/castellan/pkg/http"
	"github.com/stretchr/testify/assert"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithAuthContext attaches token claims for testing authenticated endpoints
func WithAuthContext(req *http.Request, username string, groups ...string) *http.Request {
	claims := &models.TokenClaims{
		Username: username,
		Groups:   groups,
	}
	return req.WithContext(auth.ContextWithClaims(req.Context(), claims))
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	contentType := w.Header().Get("Content-Type")
	assert.Equal(t, "application/json", contentType, "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

// MockAuthService implements AuthServiceInterface for testing
type MockAuthService struct {
	LoginFunc func(ctx context.Context, username, password, ipAddress, userAgent string) (*services.LoginResult, error)
}

func (m *MockAuthService) Login(ctx context.Context, username, password, ipAddress, userAgent string) (*services.LoginResult, error) {
	if m.LoginFunc == nil {
		return nil, models.ErrUnauthorized
	}
	return m.LoginFunc(ctx, username, password, ipAddress, userAgent)
}

// MockDirectoryReader implements DirectoryReader for testing
type MockDirectoryReader struct {
	GetUserFunc       func(ctx context.Context, username string) (*models.DirectoryUser, error)
	GetUserGroupsFunc func(ctx context.Context, username string) ([]string, error)
}

func (m *MockDirectoryReader) GetUser(ctx context.Context, username string) (*models.DirectoryUser, error) {
	if m.GetUserFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.GetUserFunc(ctx, username)
}

func (m *MockDirectoryReader) GetUserGroups(ctx context.Context, username string) ([]string, error) {
	if m.GetUserGroupsFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.GetUserGroupsFunc(ctx, username)
}

// MockLockoutService implements LockoutServiceInterface for testing
type MockLockoutService struct {
	CheckLockoutStatusFunc func(ctx context.Context, username, ipAddress string) *models.LockoutStatus
	UnlockAccountFunc      func(ctx context.Context, username, unlockedBy, reason string) error
	GetLockoutHistoryFunc  func(ctx context.Context, username string, limit int) []*models.AccountLockout
}

func (m *MockLockoutService) CheckLockoutStatus(ctx context.Context, username, ipAddress string) *models.LockoutStatus {
	if m.CheckLockoutStatusFunc == nil {
		return &models.LockoutStatus{}
	}
	return m.CheckLockoutStatusFunc(ctx, username, ipAddress)
}

func (m *MockLockoutService) UnlockAccount(ctx context.Context, username, unlockedBy, reason string) error {
	if m.UnlockAccountFunc == nil {
		return nil
	}
	return m.UnlockAccountFunc(ctx, username, unlockedBy, reason)
}

func (m *MockLockoutService) GetLockoutHistory(ctx context.Context, username string, limit int) []*models.AccountLockout {
	if m.GetLockoutHistoryFunc == nil {
		return []*models.AccountLockout{}
	}
	return m.GetLockoutHistoryFunc(ctx, username, limit)
}
