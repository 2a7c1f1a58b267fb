package models

import (
	"time"

	"github.com/google/uuid"
)

// Tenant represents an isolated customer organization. Tenants are never
// hard-deleted; they are suspended instead.
type Tenant struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	Suspended  bool      `json:"suspended"`
	TrialStart time.Time `json:"trial_start"`
	TrialEnd   time.Time `json:"trial_end"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TrialExpired reports whether the trial window has passed at the given time.
// The caller supplies "now" so the server clock stays the single source of
// truth for gating decisions.
func (t *Tenant) TrialExpired(now time.Time) bool {
	return now.After(t.TrialEnd)
}

// UserRole distinguishes an ordinary tenant user from a tenant administrator.
type UserRole string

const (
	// RoleUser is an ordinary tenant user.
	RoleUser UserRole = "user"
	// RoleAdmin is a tenant administrator. Only admins may invoke
	// destructive bulk operations.
	RoleAdmin UserRole = "admin"
)

// IsValid checks whether the role is a recognized value.
func (r UserRole) IsValid() bool {
	return r == RoleUser || r == RoleAdmin
}

// User is a tenant-scoped account.
type User struct {
	ID           uuid.UUID `json:"id"`
	TenantID     uuid.UUID `json:"tenant_id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         UserRole  `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
