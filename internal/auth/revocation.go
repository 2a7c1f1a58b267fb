package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RevocationStore is the durable record of revoked operator token IDs.
type RevocationStore interface {
	RevokeOperatorToken(ctx context.Context, jti string) error
	IsOperatorTokenRevoked(ctx context.Context, jti string) (bool, error)
}

const revocationKeyPrefix = "quillbooks:revoked:"

// Revoker tracks revoked operator tokens. Postgres is the source of truth;
// Redis fronts it so the check on every operator request stays cheap. A Redis
// miss falls through to the database and backfills.
type Revoker struct {
	store  RevocationStore
	redis  *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewRevoker creates a revoker. The redis client may be nil, in which case
// every check goes straight to the durable store.
func NewRevoker(store RevocationStore, rdb *redis.Client, tokenTTL time.Duration, logger zerolog.Logger) *Revoker {
	return &Revoker{
		store:  store,
		redis:  rdb,
		ttl:    tokenTTL,
		logger: logger.With().Str("component", "token-revoker").Logger(),
	}
}

// Revoke marks a token ID as revoked. The cache entry only needs to outlive
// the token itself, so it carries the token TTL.
func (r *Revoker) Revoke(ctx context.Context, jti string) error {
	if err := r.store.RevokeOperatorToken(ctx, jti); err != nil {
		return fmt.Errorf("persist revocation: %w", err)
	}
	if r.redis != nil {
		if err := r.redis.Set(ctx, revocationKeyPrefix+jti, "1", r.ttl).Err(); err != nil {
			// The durable row already exists; a cache write failure only
			// costs a database lookup later.
			r.logger.Warn().Err(err).Str("jti", jti).Msg("failed to cache revocation")
		}
	}
	return nil
}

// IsRevoked reports whether a token ID has been revoked.
func (r *Revoker) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if r.redis != nil {
		n, err := r.redis.Exists(ctx, revocationKeyPrefix+jti).Result()
		if err == nil && n > 0 {
			return true, nil
		}
		if err != nil {
			r.logger.Warn().Err(err).Msg("revocation cache unavailable, checking database")
		}
	}

	revoked, err := r.store.IsOperatorTokenRevoked(ctx, jti)
	if err != nil {
		return false, err
	}
	if revoked && r.redis != nil {
		if err := r.redis.Set(ctx, revocationKeyPrefix+jti, "1", r.ttl).Err(); err != nil {
			r.logger.Warn().Err(err).Str("jti", jti).Msg("failed to backfill revocation cache")
		}
	}
	return revoked, nil
}
