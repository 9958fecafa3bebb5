package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"go-auth-api/logger"
	"go-auth-api/model"
	"go-auth-api/repository"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	userListCacheKey   = "users:all"
	userListVersionKey = "users:all:version"
)

func userCacheKey(id int) string {
	return fmt.Sprintf("users:%d", id)
}

// UserService serves account listings, with an optional cache-aside layer.
type UserService struct {
	repo     repository.IUserRepository
	cache    ICacheClient
	cacheTTL time.Duration
}

// NewUserService creates a UserService. A nil cache disables caching.
func NewUserService(repo repository.IUserRepository, cache ICacheClient, cacheTTL time.Duration) *UserService {
	return &UserService{repo: repo, cache: cache, cacheTTL: cacheTTL}
}

// ListUsers returns every account. ErrNoUsers is returned when there are none.
func (s *UserService) ListUsers(ctx context.Context) ([]*model.User, error) {
	key, cacheable := s.listKey(ctx)

	var users []*model.User
	if cacheable && s.fromCache(ctx, key, &users) {
		return users, nil
	}

	users, err := s.repo.GetAllUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	if len(users) == 0 {
		return nil, ErrNoUsers
	}

	if cacheable {
		s.toCache(ctx, key, users)
	}
	return users, nil
}

// listKey names the cached listing for the current list version. A listing
// read before an invalidation is written under the old version and never
// served again.
func (s *UserService) listKey(ctx context.Context) (string, bool) {
	if s.cache == nil {
		return "", false
	}
	version, err := s.cache.Get(ctx, userListVersionKey).Result()
	switch {
	case errors.Is(err, redis.Nil):
		version = "0"
	case err != nil:
		logger.Log.WithError(err).Warn("Cache read failed, falling back to database")
		return "", false
	}
	return userListCacheKey + ":v" + version, true
}

// GetUser returns a single account or ErrUserNotFound.
func (s *UserService) GetUser(ctx context.Context, id int) (*model.User, error) {
	key := userCacheKey(id)

	var user model.User
	if s.fromCache(ctx, key, &user) {
		return &user, nil
	}

	found, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	s.toCache(ctx, key, found)
	return found, nil
}

// InvalidateUserList bumps the list version so the cached listing is no
// longer read. Old versions age out with the cache TTL.
func (s *UserService) InvalidateUserList(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Incr(ctx, userListVersionKey).Err(); err != nil {
		logger.Log.WithError(err).Warn("Failed to invalidate user list cache")
	}
}

func (s *UserService) fromCache(ctx context.Context, key string, dst any) bool {
	if s.cache == nil {
		return false
	}
	cached, err := s.cache.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Log.WithError(err).WithField("key", key).Warn("Cache read failed, falling back to database")
		}
		return false
	}
	if err := json.Unmarshal([]byte(cached), dst); err != nil {
		logger.Log.WithError(err).WithField("key", key).Warn("Discarding undecodable cache entry")
		return false
	}
	return true
}

func (s *UserService) toCache(ctx context.Context, key string, value any) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, data, s.cacheTTL).Err(); err != nil {
		logger.Log.WithError(err).WithField("key", key).Warn("Cache write failed")
	}
}
