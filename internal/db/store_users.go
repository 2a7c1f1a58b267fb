package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/quillbooks/quillbooks/internal/models"
	"github.com/quillbooks/quillbooks/internal/qerrors"
)

// CreateUser inserts a tenant-scoped account.
func (db *DB) CreateUser(ctx context.Context, user *models.User) error {
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := db.Pool.Exec(ctx, `
		INSERT INTO users (id, tenant_id, email, password_hash, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, user.ID, user.TenantID, user.Email, user.PasswordHash, string(user.Role), user.CreatedAt, user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetUserByEmail returns the user with the given email within a tenant.
func (db *DB) GetUserByEmail(ctx context.Context, tenantID uuid.UUID, email string) (*models.User, error) {
	var u models.User
	var role string
	err := db.Pool.QueryRow(ctx, `
		SELECT id, tenant_id, email, password_hash, role, created_at, updated_at
		FROM users WHERE tenant_id = $1 AND email = $2
	`, tenantID, email).Scan(&u.ID, &u.TenantID, &u.Email, &u.PasswordHash, &role, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, qerrors.New(qerrors.KindNotFound, "user not found")
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	u.Role = models.UserRole(role)
	return &u, nil
}

// GetUserByID returns one user.
func (db *DB) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var u models.User
	var role string
	err := db.Pool.QueryRow(ctx, `
		SELECT id, tenant_id, email, password_hash, role, created_at, updated_at
		FROM users WHERE id = $1
	`, id).Scan(&u.ID, &u.TenantID, &u.Email, &u.PasswordHash, &role, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, qerrors.New(qerrors.KindNotFound, "user not found")
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	u.Role = models.UserRole(role)
	return &u, nil
}

// GetOperatorByEmail returns a platform operator account.
func (db *DB) GetOperatorByEmail(ctx context.Context, email string) (uuid.UUID, string, error) {
	var id uuid.UUID
	var hash string
	err := db.Pool.QueryRow(ctx, `
		SELECT id, password_hash FROM operators WHERE email = $1
	`, email).Scan(&id, &hash)
	if err != nil {
		if err == pgx.ErrNoRows {
			return uuid.Nil, "", qerrors.New(qerrors.KindNotFound, "operator not found")
		}
		return uuid.Nil, "", fmt.Errorf("get operator: %w", err)
	}
	return id, hash, nil
}
