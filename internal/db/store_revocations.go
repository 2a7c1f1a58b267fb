package db

import (
	"context"
	"fmt"
	"time"
)

// RevokeOperatorToken records a revoked operator token ID. The durable row is
// the source of truth; the Redis set in front of it is a cache.
func (db *DB) RevokeOperatorToken(ctx context.Context, jti string) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO operator_token_revocations (jti, revoked_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("revoke operator token: %w", err)
	}
	return nil
}

// IsOperatorTokenRevoked reports whether a token ID has been revoked.
func (db *DB) IsOperatorTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var exists bool
	err := db.Pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM operator_token_revocations WHERE jti = $1)
	`, jti).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check operator token revocation: %w", err)
	}
	return exists, nil
}
