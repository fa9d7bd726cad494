package services_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/castellanhq/castellan/internal/models"
	"github.com/castellanhq/castellan/internal/services"
	pkglogger "github.com/castellanhq/castellan/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockDirectory implements DirectoryService for testing
type MockDirectory struct {
	users     map[string]*models.DirectoryUser
	passwords map[string]string
	groupsErr error
	userErr   error
}

func NewMockDirectory() *MockDirectory {
	return &MockDirectory{
		users:     make(map[string]*models.DirectoryUser),
		passwords: make(map[string]string),
	}
}

func (m *MockDirectory) addUser(username, password string, user *models.DirectoryUser) {
	m.users[username] = user
	m.passwords[username] = password
}

func (m *MockDirectory) Authenticate(ctx context.Context, username, password string) bool {
	stored, ok := m.passwords[username]
	return ok && stored == password
}

func (m *MockDirectory) GetUser(ctx context.Context, username string) (*models.DirectoryUser, error) {
	if m.userErr != nil {
		return nil, m.userErr
	}
	user, ok := m.users[username]
	if !ok {
		return nil, models.ErrNotFound
	}
	return user, nil
}

func (m *MockDirectory) GetUserGroups(ctx context.Context, username string) ([]string, error) {
	if m.groupsErr != nil {
		return nil, m.groupsErr
	}
	user, ok := m.users[username]
	if !ok {
		return nil, models.ErrNotFound
	}
	return user.Groups, nil
}

// MockLockoutManager implements LockoutManager for testing
type MockLockoutManager struct {
	status       *models.LockoutStatus
	recordStatus *models.LockoutStatus
	recorded     []*models.FailedLoginAttempt
	cleared      bool
}

func (m *MockLockoutManager) CheckLockoutStatus(ctx context.Context, username, ipAddress string) *models.LockoutStatus {
	if m.status != nil {
		return m.status
	}
	return &models.LockoutStatus{}
}

func (m *MockLockoutManager) RecordFailedAttempt(ctx context.Context, attempt *models.FailedLoginAttempt) *models.LockoutStatus {
	m.recorded = append(m.recorded, attempt)
	if m.recordStatus != nil {
		return m.recordStatus
	}
	return &models.LockoutStatus{FailedAttempts: len(m.recorded)}
}

func (m *MockLockoutManager) ClearFailedAttempts(ctx context.Context, username, ipAddress string) {
	m.cleared = true
}

// MockTokenIssuer implements TokenIssuer for testing
type MockTokenIssuer struct {
	err    error
	issued []string
}

func (m *MockTokenIssuer) GenerateAccessToken(username string, groups []string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.issued = append(m.issued, username)
	return "token-for-" + username, nil
}

func enabledUser(username string, groups ...string) *models.DirectoryUser {
	return &models.DirectoryUser{
		Username:          username,
		DistinguishedName: "CN=" + username + ",OU=Users,DC=example,DC=com",
		Groups:            groups,
		AccountControl:    512,
	}
}

type authFixture struct {
	directory *MockDirectory
	lockout   *MockLockoutManager
	tokens    *MockTokenIssuer
	service   *services.AuthService
}

func newAuthFixture() *authFixture {
	directory := NewMockDirectory()
	lockout := &MockLockoutManager{}
	tokens := &MockTokenIssuer{}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	service := services.NewAuthService(directory, lockout, tokens, logger, pkglogger.NewAuditLogger(logger))

	return &authFixture{directory: directory, lockout: lockout, tokens: tokens, service: service}
}

func TestAuthServiceLogin_Success(t *testing.T) {
	f := newAuthFixture()
	f.directory.addUser("jdoe", "correct-password", enabledUser("jdoe", "Domain Users", "VPN Users"))

	result, err := f.service.Login(context.Background(), "jdoe", "correct-password", "10.0.0.5", "Mozilla/5.0")
	require.NoError(t, err)

	assert.Equal(t, "token-for-jdoe", result.AccessToken)
	assert.Equal(t, "jdoe", result.User.Username)
	assert.True(t, f.lockout.cleared)
	assert.Empty(t, f.lockout.recorded)
}

func TestAuthServiceLogin_NormalizesUsername(t *testing.T) {
	f := newAuthFixture()
	f.directory.addUser("jdoe", "correct-password", enabledUser("jdoe"))

	result, err := f.service.Login(context.Background(), "  JDoe  ", "correct-password", "10.0.0.5", "")
	require.NoError(t, err)
	assert.NotEmpty(t, result.AccessToken)
}

func TestAuthServiceLogin_EmptyCredentials(t *testing.T) {
	f := newAuthFixture()

	_, err := f.service.Login(context.Background(), "", "password", "10.0.0.5", "")
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	_, err = f.service.Login(context.Background(), "jdoe", "", "10.0.0.5", "")
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	assert.Empty(t, f.lockout.recorded)
}

func TestAuthServiceLogin_BlockedWhileLocked(t *testing.T) {
	f := newAuthFixture()
	f.directory.addUser("jdoe", "correct-password", enabledUser("jdoe"))

	expires := time.Now().Add(10 * time.Minute)
	f.lockout.status = &models.LockoutStatus{
		IsLocked:         true,
		FailedAttempts:   5,
		LockoutExpiresAt: &expires,
		LockoutReason:    "Account locked after 5 failed login attempts",
	}

	result, err := f.service.Login(context.Background(), "jdoe", "correct-password", "10.0.0.5", "")
	assert.ErrorIs(t, err, models.ErrAccountLocked)

	require.NotNil(t, result)
	require.NotNil(t, result.Lockout)
	assert.True(t, result.Lockout.IsLocked)
	assert.Empty(t, result.AccessToken)

	// the blocked attempt is still recorded
	require.Len(t, f.lockout.recorded, 1)
	assert.Equal(t, models.ErrorTypeAccountLocked, f.lockout.recorded[0].ErrorType)
}

func TestAuthServiceLogin_WrongPassword(t *testing.T) {
	f := newAuthFixture()
	f.directory.addUser("jdoe", "correct-password", enabledUser("jdoe"))

	result, err := f.service.Login(context.Background(), "jdoe", "wrong-password", "10.0.0.5", "")
	assert.ErrorIs(t, err, models.ErrUnauthorized)
	assert.Nil(t, result)

	require.Len(t, f.lockout.recorded, 1)
	assert.Equal(t, models.ErrorTypeInvalidCredentials, f.lockout.recorded[0].ErrorType)
	assert.Equal(t, "10.0.0.5", f.lockout.recorded[0].IPAddress)
}

func TestAuthServiceLogin_UnknownUserRecordedAsNotFound(t *testing.T) {
	f := newAuthFixture()

	_, err := f.service.Login(context.Background(), "ghost", "password", "10.0.0.5", "")
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	require.Len(t, f.lockout.recorded, 1)
	assert.Equal(t, models.ErrorTypeUserNotFound, f.lockout.recorded[0].ErrorType)
}

func TestAuthServiceLogin_FailureTriggersLockout(t *testing.T) {
	f := newAuthFixture()
	f.directory.addUser("jdoe", "correct-password", enabledUser("jdoe"))

	expires := time.Now().Add(15 * time.Minute)
	f.lockout.recordStatus = &models.LockoutStatus{
		IsLocked:         true,
		FailedAttempts:   5,
		LockoutExpiresAt: &expires,
	}

	result, err := f.service.Login(context.Background(), "jdoe", "wrong-password", "10.0.0.5", "")
	assert.ErrorIs(t, err, models.ErrAccountLocked)
	require.NotNil(t, result)
	assert.True(t, result.Lockout.IsLocked)
}

func TestAuthServiceLogin_DisabledAccount(t *testing.T) {
	f := newAuthFixture()
	disabled := enabledUser("jdoe")
	disabled.AccountControl = 514
	f.directory.addUser("jdoe", "correct-password", disabled)

	result, err := f.service.Login(context.Background(), "jdoe", "correct-password", "10.0.0.5", "")
	assert.ErrorIs(t, err, models.ErrAccountDisabled)
	assert.Nil(t, result)

	require.Len(t, f.lockout.recorded, 1)
	assert.Equal(t, models.ErrorTypeUserInactive, f.lockout.recorded[0].ErrorType)
	assert.False(t, f.lockout.cleared)
}

func TestAuthServiceLogin_GroupLookupFallback(t *testing.T) {
	f := newAuthFixture()
	user := enabledUser("jdoe")
	user.Groups = nil
	f.directory.addUser("jdoe", "correct-password", user)

	result, err := f.service.Login(context.Background(), "jdoe", "correct-password", "10.0.0.5", "")
	require.NoError(t, err)
	assert.NotEmpty(t, result.AccessToken)
}

func TestAuthServiceLogin_GroupLookupFailureNonFatal(t *testing.T) {
	f := newAuthFixture()
	user := enabledUser("jdoe")
	user.Groups = nil
	f.directory.addUser("jdoe", "correct-password", user)
	f.directory.groupsErr = errors.New("directory timeout")

	result, err := f.service.Login(context.Background(), "jdoe", "correct-password", "10.0.0.5", "")
	require.NoError(t, err)
	assert.NotEmpty(t, result.AccessToken)
}

func TestAuthServiceLogin_UserLookupFailureStillIssuesToken(t *testing.T) {
	f := newAuthFixture()
	f.directory.addUser("jdoe", "correct-password", enabledUser("jdoe"))
	f.directory.userErr = errors.New("directory timeout")

	result, err := f.service.Login(context.Background(), "jdoe", "correct-password", "10.0.0.5", "")
	require.NoError(t, err)
	assert.NotEmpty(t, result.AccessToken)
	assert.Equal(t, "jdoe", result.User.Username)
}

func TestAuthServiceLogin_TokenFailure(t *testing.T) {
	f := newAuthFixture()
	f.directory.addUser("jdoe", "correct-password", enabledUser("jdoe"))
	f.tokens.err = errors.New("signing failed")

	result, err := f.service.Login(context.Background(), "jdoe", "correct-password", "10.0.0.5", "")
	assert.ErrorIs(t, err, models.ErrInternalServer)
	assert.Nil(t, result)
}
