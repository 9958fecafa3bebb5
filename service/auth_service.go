package service

import (
	"context"
	"errors"
	"fmt"
	"go-auth-api/logger"
	"go-auth-api/model"
	"go-auth-api/repository"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
)

// SignupMessage accompanies the one-time API key in the signup response.
const SignupMessage = "User registered successfully. Save your API key, it won't be shown again."

// AuthPolicy collects the configurable rules of the auth flows.
type AuthPolicy struct {
	MinPasswordLength           int
	RequirePasswordConfirmation bool
	RotateRefreshTokens         bool

	// SigninAccessTTL applies to the token returned by signin.
	SigninAccessTTL  time.Duration
	RefreshAccessTTL time.Duration
	// RefreshTTL bounds how long a ledger row may be used.
	RefreshTTL time.Duration
}

// UserListInvalidator is notified when the set of accounts changes.
type UserListInvalidator interface {
	InvalidateUserList(ctx context.Context)
}

// Session is the outcome of a successful signin or refresh. RefreshToken is
// empty when a refresh did not rotate the token.
type Session struct {
	UserID       int
	AccessToken  string
	RefreshToken string
}

type AuthService struct {
	users       repository.IUserRepository
	ledger      repository.ITokenRepository
	hasher      *PasswordHasher
	tokens      *TokenService
	policy      AuthPolicy
	invalidator UserListInvalidator
	now         func() time.Time
}

func NewAuthService(users repository.IUserRepository, ledger repository.ITokenRepository, hasher *PasswordHasher, tokens *TokenService, policy AuthPolicy) *AuthService {
	return &AuthService{
		users:  users,
		ledger: ledger,
		hasher: hasher,
		tokens: tokens,
		policy: policy,
		now:    time.Now,
	}
}

// WithUserListInvalidator registers inv to be told about new accounts.
func (s *AuthService) WithUserListInvalidator(inv UserListInvalidator) *AuthService {
	s.invalidator = inv
	return s
}

// Policy returns the rules the service was built with.
func (s *AuthService) Policy() AuthPolicy {
	return s.policy
}

// Signup validates the request against the password policy, stores a new
// account and returns it with its plaintext API key.
func (s *AuthService) Signup(ctx context.Context, req model.SignupRequest) (*model.SignupResponse, error) {
	if err := s.validateSignup(req); err != nil {
		return nil, err
	}

	log := logger.Log.WithField("email", req.Email)

	exists, err := s.users.EmailExists(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("check email: %w", err)
	}
	if exists {
		log.Info("Signup rejected, email already registered")
		return nil, ErrEmailExists
	}

	hashed, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	apiKey, apiKeyHash, err := GenerateAPIKey()
	if err != nil {
		return nil, err
	}

	user := &model.User{
		Name:       req.Username,
		Email:      req.Email,
		Password:   hashed,
		APIKeyHash: apiKeyHash,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, ErrEmailExists
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	if s.invalidator != nil {
		s.invalidator.InvalidateUserList(ctx)
	}

	log.WithField("user_id", user.ID).Info("User registered")
	return &model.SignupResponse{
		User:    user,
		APIKey:  apiKey,
		Message: SignupMessage,
	}, nil
}

func (s *AuthService) validateSignup(req model.SignupRequest) error {
	if strings.TrimSpace(req.Username) == "" || strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return invalid("All fields are required")
	}
	if s.policy.RequirePasswordConfirmation && req.ConfirmPassword == "" {
		return invalid("All fields are required")
	}
	if utf8.RuneCountInString(req.Password) < s.policy.MinPasswordLength {
		return invalid(fmt.Sprintf("Password must be at least %d characters long", s.policy.MinPasswordLength))
	}
	if len(req.Password) > maxPasswordBytes {
		return invalid(fmt.Sprintf("Password must be at most %d bytes long", maxPasswordBytes))
	}
	if s.policy.RequirePasswordConfirmation && req.Password != req.ConfirmPassword {
		return invalid("Passwords do not match")
	}
	return nil
}

// Signin checks the credentials, issues both tokens and records the refresh
// token in the ledger. Unknown email and wrong password both yield
// ErrInvalidCredentials.
func (s *AuthService) Signin(ctx context.Context, email, password string) (*Session, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, invalid("Email and password are required")
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.hasher.CompareDummy(password)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	ok, err := s.hasher.Verify(password, user.Password)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}

	access, err := s.tokens.IssueAccess(user.ID, user.Email, s.policy.SigninAccessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := s.tokens.IssueRefresh(user.ID, user.Email)
	if err != nil {
		return nil, err
	}

	if _, err := s.ledger.Upsert(ctx, user.ID, refresh); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	logger.Log.WithField("user_id", user.ID).Info("User signed in")
	return &Session{UserID: user.ID, AccessToken: access, RefreshToken: refresh}, nil
}

// Refresh mints a new access token for the subject of a ledger-held refresh
// token. With rotation enabled the refresh token is replaced as well.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("%w: refresh token missing", ErrUnauthorized)
	}

	rec, err := s.ledger.GetByToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: refresh token not in ledger", ErrUnauthorized)
		}
		return nil, fmt.Errorf("lookup refresh token: %w", err)
	}

	claims, err := s.tokens.Verify(refreshToken, model.TokenTypeRefresh)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if claims.UserID != rec.UserID {
		return nil, fmt.Errorf("%w: refresh token subject does not match ledger", ErrUnauthorized)
	}

	log := logger.Log.WithFields(logrus.Fields{
		"user_id": rec.UserID,
		"token":   logger.Fingerprint(refreshToken),
	})

	if s.policy.RefreshTTL > 0 && s.now().Sub(rec.CreatedAt) > s.policy.RefreshTTL {
		if _, err := s.ledger.DeleteByToken(ctx, refreshToken); err != nil {
			return nil, fmt.Errorf("revoke stale refresh token: %w", err)
		}
		log.Info("Refresh token past its lifetime, revoked")
		return nil, fmt.Errorf("%w: refresh token expired", ErrUnauthorized)
	}

	access, err := s.tokens.IssueAccess(rec.UserID, claims.Email, s.policy.RefreshAccessTTL)
	if err != nil {
		return nil, err
	}
	session := &Session{UserID: rec.UserID, AccessToken: access}

	if s.policy.RotateRefreshTokens {
		next, err := s.tokens.IssueRefresh(rec.UserID, claims.Email)
		if err != nil {
			return nil, err
		}
		if _, err := s.ledger.Rotate(ctx, refreshToken, rec.UserID, next); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, fmt.Errorf("%w: refresh token revoked concurrently", ErrUnauthorized)
			}
			return nil, fmt.Errorf("rotate refresh token: %w", err)
		}
		session.RefreshToken = next
		log.Info("Refresh token rotated")
	}

	log.Info("Access token refreshed")
	return session, nil
}

// Logout revokes refreshToken. It reports whether a ledger row was removed;
// an empty or unknown token is not an error.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) (bool, error) {
	if refreshToken == "" {
		return false, nil
	}

	rec, err := s.ledger.DeleteByToken(ctx, refreshToken)
	if err != nil {
		return false, fmt.Errorf("revoke refresh token: %w", err)
	}
	if rec == nil {
		return false, nil
	}

	logger.Log.WithField("user_id", rec.UserID).Info("User logged out")
	return true, nil
}

// LogoutAll revokes every refresh token held for userID.
func (s *AuthService) LogoutAll(ctx context.Context, userID int) (int64, error) {
	n, err := s.ledger.DeleteByUserID(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("revoke refresh tokens: %w", err)
	}
	logger.Log.WithFields(logrus.Fields{"user_id": userID, "revoked": n}).Info("User logged out of all sessions")
	return n, nil
}
