package service

import (
	"errors"
	"fmt"
	"go-auth-api/logger"
	"go-auth-api/model"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	// ErrInvalidToken covers bad signatures, wrong keys, malformed tokens and
	// tokens of the wrong class.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired is returned for a correctly signed token past its expiry.
	ErrTokenExpired = errors.New("token expired")
)

// TokenConfig holds the signing material for both token classes.
type TokenConfig struct {
	AccessSecret  string
	RefreshSecret string
	Issuer        string
}

// TokenService mints and verifies HS256 access and refresh tokens. Each class
// is signed with its own secret.
type TokenService struct {
	accessKey  []byte
	refreshKey []byte
	issuer     string
	now        func() time.Time
}

func NewTokenService(cfg TokenConfig) *TokenService {
	return &TokenService{
		accessKey:  []byte(cfg.AccessSecret),
		refreshKey: []byte(cfg.RefreshSecret),
		issuer:     cfg.Issuer,
		now:        time.Now,
	}
}

// IssueAccess signs a short-lived access token that expires after ttl.
func (s *TokenService) IssueAccess(userID int, email string, ttl time.Duration) (string, error) {
	claims := s.claims(userID, email, model.TokenTypeAccess)
	claims.ExpiresAt = jwt.NewNumericDate(s.now().Add(ttl))
	return s.sign(claims, s.accessKey)
}

// IssueRefresh signs a refresh token. It carries no expiry of its own; its
// lifetime is bounded by the ledger row and the cookie.
func (s *TokenService) IssueRefresh(userID int, email string) (string, error) {
	return s.sign(s.claims(userID, email, model.TokenTypeRefresh), s.refreshKey)
}

// Verify checks the signature with the key of the given class and validates
// the registered claims.
func (s *TokenService) Verify(tokenString string, class model.TokenType) (*model.AppClaims, error) {
	key, err := s.keyFor(class)
	if err != nil {
		return nil, err
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	if class == model.TokenTypeAccess {
		opts = append(opts, jwt.WithExpirationRequired())
	}

	claims := &model.AppClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return key, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.TokenType != class || claims.UserID <= 0 {
		return nil, ErrInvalidToken
	}
	if claims.Subject != strconv.Itoa(claims.UserID) {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

func (s *TokenService) claims(userID int, email string, class model.TokenType) *model.AppClaims {
	return &model.AppClaims{
		UserID:    userID,
		Email:     email,
		TokenType: class,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   s.issuer,
			Subject:  strconv.Itoa(userID),
			IssuedAt: jwt.NewNumericDate(s.now()),
			ID:       uuid.NewString(),
		},
	}
}

func (s *TokenService) sign(claims *model.AppClaims, key []byte) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(key)
	if err != nil {
		logger.Log.WithError(err).WithFields(logrus.Fields{
			"user_id": claims.UserID,
			"typ":     claims.TokenType,
		}).Error("Failed to sign JWT")
		return "", fmt.Errorf("failed to sign token string: %w", err)
	}
	return tokenString, nil
}

func (s *TokenService) keyFor(class model.TokenType) ([]byte, error) {
	switch class {
	case model.TokenTypeAccess:
		return s.accessKey, nil
	case model.TokenTypeRefresh:
		return s.refreshKey, nil
	default:
		return nil, fmt.Errorf("%w: unknown token class %q", ErrInvalidToken, class)
	}
}
