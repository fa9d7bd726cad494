package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/castellanhq/castellan/internal/models"
	pkglogger "github.com/castellanhq/castellan/pkg/logger"
)

// DirectoryService defines the directory operations the login path consumes
type DirectoryService interface {
	Authenticate(ctx context.Context, username, password string) bool
	GetUser(ctx context.Context, username string) (*models.DirectoryUser, error)
	GetUserGroups(ctx context.Context, username string) ([]string, error)
}

// LockoutManager defines the lockout operations the login path consumes
type LockoutManager interface {
	CheckLockoutStatus(ctx context.Context, username, ipAddress string) *models.LockoutStatus
	RecordFailedAttempt(ctx context.Context, attempt *models.FailedLoginAttempt) *models.LockoutStatus
	ClearFailedAttempts(ctx context.Context, username, ipAddress string)
}

// TokenIssuer creates session tokens after a successful directory login
type TokenIssuer interface {
	GenerateAccessToken(username string, groups []string) (string, error)
}

// LoginResult is returned from a login attempt. Lockout is populated when the
// attempt was blocked or triggered a lockout, so the caller can surface the
// reason and expiry.
type LoginResult struct {
	AccessToken string                `json:"access_token,omitempty"`
	User        *models.DirectoryUser `json:"user,omitempty"`
	Lockout     *models.LockoutStatus `json:"lockout,omitempty"`
}

const authSourceDirectory = "directory"

// AuthService orchestrates the authentication path: lockout check, directory
// credential verification, attempt bookkeeping, and session token issuance.
type AuthService struct {
	directory DirectoryService
	lockout   LockoutManager
	tokens    TokenIssuer
	logger    *slog.Logger
	audit     *pkglogger.AuditLogger
}

// NewAuthService creates a new AuthService
func NewAuthService(
	directory DirectoryService,
	lockout LockoutManager,
	tokens TokenIssuer,
	logger *slog.Logger,
	audit *pkglogger.AuditLogger,
) *AuthService {
	return &AuthService{
		directory: directory,
		lockout:   lockout,
		tokens:    tokens,
		logger:    logger,
		audit:     audit,
	}
}

// Login verifies credentials against the directory with lockout enforcement.
// The lockout check runs before any credential verification; a bind failure
// records an attempt; a success clears the history.
func (s *AuthService) Login(ctx context.Context, username, password, ipAddress, userAgent string) (*LoginResult, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || password == "" {
		return nil, models.ErrUnauthorized
	}

	status := s.lockout.CheckLockoutStatus(ctx, username, ipAddress)
	if status.IsLocked {
		s.recordFailure(ctx, username, ipAddress, userAgent, models.ErrorTypeAccountLocked)
		s.audit.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "login_blocked",
			Username:      username,
			IPAddress:     ipAddress,
			UserAgent:     userAgent,
			AuthSource:    authSourceDirectory,
			FailureReason: string(models.ErrorTypeAccountLocked),
		})
		return &LoginResult{Lockout: status}, models.ErrAccountLocked
	}

	if !s.directory.Authenticate(ctx, username, password) {
		errorType := s.classifyFailure(ctx, username)
		status := s.recordFailure(ctx, username, ipAddress, userAgent, errorType)
		s.audit.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "login_failed",
			Username:      username,
			IPAddress:     ipAddress,
			UserAgent:     userAgent,
			AuthSource:    authSourceDirectory,
			FailureReason: string(errorType),
		})

		if status.IsLocked {
			return &LoginResult{Lockout: status}, models.ErrAccountLocked
		}
		return nil, models.ErrUnauthorized
	}

	user, err := s.directory.GetUser(ctx, username)
	if err != nil {
		s.logger.Error("failed to resolve user after successful bind",
			slog.String("username", pkglogger.SanitizedUsername(username)),
			slog.Any("error", err))
		user = &models.DirectoryUser{Username: username}
	}

	if !user.Enabled() {
		s.recordFailure(ctx, username, ipAddress, userAgent, models.ErrorTypeUserInactive)
		s.audit.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "login_failed",
			Username:      username,
			IPAddress:     ipAddress,
			UserAgent:     userAgent,
			AuthSource:    authSourceDirectory,
			FailureReason: string(models.ErrorTypeUserInactive),
		})
		return nil, models.ErrAccountDisabled
	}

	s.lockout.ClearFailedAttempts(ctx, username, ipAddress)

	groups := user.Groups
	if len(groups) == 0 {
		if groups, err = s.directory.GetUserGroups(ctx, username); err != nil {
			s.logger.Warn("failed to resolve group memberships",
				slog.String("username", pkglogger.SanitizedUsername(username)),
				slog.Any("error", err))
			groups = nil
		}
	}

	token, err := s.tokens.GenerateAccessToken(user.Username, groups)
	if err != nil {
		s.logger.Error("failed to generate access token",
			slog.String("username", pkglogger.SanitizedUsername(username)),
			slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.audit.LogAuthAttempt(pkglogger.AuditEvent{
		EventType:  "login_success",
		Username:   username,
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
		AuthSource: authSourceDirectory,
		Success:    true,
	})

	return &LoginResult{AccessToken: token, User: user}, nil
}

// classifyFailure resolves why a bind was rejected. The directory never
// reveals this to the end user; it only refines the recorded attempt.
func (s *AuthService) classifyFailure(ctx context.Context, username string) models.AttemptErrorType {
	user, err := s.directory.GetUser(ctx, username)
	switch {
	case errors.Is(err, models.ErrNotFound):
		return models.ErrorTypeUserNotFound
	case err != nil:
		return models.ErrorTypeServiceError
	case !user.Enabled():
		return models.ErrorTypeUserInactive
	default:
		return models.ErrorTypeInvalidCredentials
	}
}

func (s *AuthService) recordFailure(ctx context.Context, username, ipAddress, userAgent string, errorType models.AttemptErrorType) *models.LockoutStatus {
	return s.lockout.RecordFailedAttempt(ctx, &models.FailedLoginAttempt{
		Username:   username,
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
		AuthSource: authSourceDirectory,
		ErrorType:  errorType,
	})
}
