// file: repository/token_repository.go

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"go-auth-api/logger"
	"go-auth-api/model"
	"time"

	"github.com/sirupsen/logrus"
)

// ITokenRepository defines the contract for the refresh token ledger.
type ITokenRepository interface {
	Upsert(ctx context.Context, userID int, token string) (*model.RefreshToken, error)
	GetByToken(ctx context.Context, token string) (*model.RefreshToken, error)
	DeleteByToken(ctx context.Context, token string) (*model.RefreshToken, error)
	DeleteByUserID(ctx context.Context, userID int) (int64, error)
	Rotate(ctx context.Context, oldToken string, userID int, newToken string) (*model.RefreshToken, error)
	DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// TokenRepository implements ITokenRepository.
type TokenRepository struct {
	DB *sql.DB
}

// NewTokenRepository creates a new TokenRepository.
func NewTokenRepository(db *sql.DB) *TokenRepository {
	return &TokenRepository{DB: db}
}

const upsertTokenQuery = `INSERT INTO refresh_tokens (user_id, token) VALUES ($1, $2)
	ON CONFLICT (token) DO UPDATE SET token = EXCLUDED.token
	RETURNING id, user_id, token, created_at`

// Upsert stores a refresh token for userID. Writing a token that is already in
// the ledger leaves the row as it was and returns it.
func (r *TokenRepository) Upsert(ctx context.Context, userID int, token string) (*model.RefreshToken, error) {
	log := logger.Log.WithFields(logrus.Fields{
		"user_id": userID,
		"token":   logger.Fingerprint(token),
	})
	log.Info("Executing query to upsert a refresh token")

	rec := &model.RefreshToken{}
	err := r.DB.QueryRowContext(ctx, upsertTokenQuery, userID, token).Scan(&rec.ID, &rec.UserID, &rec.Token, &rec.CreatedAt)
	if err != nil {
		log.WithError(err).Error("Failed to execute upsert refresh token query")
		return nil, err
	}
	return rec, nil
}

// GetByToken retrieves a ledger row by exact token match. Returns ErrNotFound if absent.
func (r *TokenRepository) GetByToken(ctx context.Context, token string) (*model.RefreshToken, error) {
	log := logger.Log.WithField("token", logger.Fingerprint(token))

	rec := &model.RefreshToken{}
	query := `SELECT id, user_id, token, created_at FROM refresh_tokens WHERE token = $1`
	err := r.DB.QueryRowContext(ctx, query, token).Scan(&rec.ID, &rec.UserID, &rec.Token, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		log.WithError(err).Error("Failed to execute get refresh token query")
		return nil, err
	}
	return rec, nil
}

// DeleteByToken removes the ledger row holding token and returns it.
// A nil record with a nil error means nothing matched.
func (r *TokenRepository) DeleteByToken(ctx context.Context, token string) (*model.RefreshToken, error) {
	log := logger.Log.WithField("token", logger.Fingerprint(token))
	log.Info("Executing query to delete a refresh token")

	rec := &model.RefreshToken{}
	query := `DELETE FROM refresh_tokens WHERE token = $1 RETURNING id, user_id, token, created_at`
	err := r.DB.QueryRowContext(ctx, query, token).Scan(&rec.ID, &rec.UserID, &rec.Token, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		log.WithError(err).Error("Failed to execute delete refresh token query")
		return nil, err
	}
	return rec, nil
}

// DeleteByUserID deletes all refresh tokens for a specific user.
// This is used for logging out from all sessions.
func (r *TokenRepository) DeleteByUserID(ctx context.Context, userID int) (int64, error) {
	log := logger.Log.WithField("user_id", userID)
	log.Info("Executing query to delete all refresh tokens for a user")

	query := `DELETE FROM refresh_tokens WHERE user_id = $1`
	res, err := r.DB.ExecContext(ctx, query, userID)
	if err != nil {
		log.WithError(err).Error("Failed to execute delete refresh tokens query")
		return 0, err
	}
	return res.RowsAffected()
}

// Rotate replaces oldToken with newToken in a single transaction. Returns
// ErrNotFound when oldToken is no longer in the ledger, in which case nothing
// is written.
func (r *TokenRepository) Rotate(ctx context.Context, oldToken string, userID int, newToken string) (*model.RefreshToken, error) {
	log := logger.Log.WithFields(logrus.Fields{
		"user_id":   userID,
		"old_token": logger.Fingerprint(oldToken),
		"new_token": logger.Fingerprint(newToken),
	})
	log.Info("Rotating refresh token")

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("could not begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE token = $1 AND user_id = $2`, oldToken, userID)
	if err != nil {
		log.WithError(err).Error("Failed to delete rotated refresh token")
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrNotFound
	}

	rec := &model.RefreshToken{}
	if err := tx.QueryRowContext(ctx, upsertTokenQuery, userID, newToken).Scan(&rec.ID, &rec.UserID, &rec.Token, &rec.CreatedAt); err != nil {
		log.WithError(err).Error("Failed to insert replacement refresh token")
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("could not commit transaction: %w", err)
	}
	return rec, nil
}

// DeleteCreatedBefore prunes ledger rows created before cutoff.
func (r *TokenRepository) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE created_at < $1`, cutoff)
	if err != nil {
		logger.Log.WithError(err).WithField("cutoff", cutoff).Error("Failed to prune refresh tokens")
		return 0, err
	}
	return res.RowsAffected()
}
