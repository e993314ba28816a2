package tokencache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/maitracle/mindnote-server/internal/auth"
	"github.com/maitracle/mindnote-server/internal/store"
)

type Cache interface {
	Lookup(ctx context.Context, apiKey string) (int64, error)
	Put(ctx context.Context, apiKey string, userID int64) error
	Evict(ctx context.Context, apiKey string) error
}

type UserSource interface {
	GetUserByID(ctx context.Context, userID int64) (store.User, error)
	GetUserByTokenKey(ctx context.Context, key string) (store.User, error)
}

// Resolver turns an API key into its user, consulting the cache first.
// A nil cache sends every lookup to the database.
type Resolver struct {
	cache  Cache
	users  UserSource
	logger zerolog.Logger
}

func NewResolver(cache Cache, users UserSource, logger zerolog.Logger) *Resolver {
	return &Resolver{cache: cache, users: users, logger: logger}
}

// Resolve returns auth.ErrInvalidToken for keys that match no user.
// Cache failures degrade to a database lookup.
func (r *Resolver) Resolve(ctx context.Context, apiKey string) (store.User, error) {
	if r.cache != nil {
		userID, err := r.cache.Lookup(ctx, apiKey)
		switch {
		case err == nil:
			user, err := r.users.GetUserByID(ctx, userID)
			if err == nil {
				return user, nil
			}
			if !errors.Is(err, sql.ErrNoRows) {
				return store.User{}, fmt.Errorf("load cached token user: %w", err)
			}
			// The user was deleted after the entry was written.
			r.evict(ctx, apiKey)
			return store.User{}, auth.ErrInvalidToken
		case !errors.Is(err, ErrMiss):
			r.logger.Warn().Err(err).Msg("token cache lookup failed")
		}
	}

	user, err := r.users.GetUserByTokenKey(ctx, apiKey)
	if errors.Is(err, sql.ErrNoRows) {
		return store.User{}, auth.ErrInvalidToken
	}
	if err != nil {
		return store.User{}, fmt.Errorf("lookup token: %w", err)
	}

	if r.cache != nil {
		if err := r.cache.Put(ctx, apiKey, user.ID); err != nil {
			r.logger.Warn().Err(err).Msg("token cache write failed")
		}
	}
	return user, nil
}

// Forget drops a cached key, used when its user is deleted.
func (r *Resolver) Forget(ctx context.Context, apiKey string) {
	if r.cache != nil {
		r.evict(ctx, apiKey)
	}
}

func (r *Resolver) evict(ctx context.Context, apiKey string) {
	if err := r.cache.Evict(ctx, apiKey); err != nil {
		r.logger.Warn().Err(err).Msg("token cache evict failed")
	}
}
