package models

import (
	"time"

	"github.com/google/uuid"
)

// LicenseType represents the kind of license a tenant holds.
type LicenseType string

const (
	// LicenseTrial is the implicit time-bound license every tenant starts with.
	LicenseTrial LicenseType = "trial"
	// LicenseTimeBound expires at a fixed timestamp.
	LicenseTimeBound LicenseType = "time_bound"
	// LicensePerpetual never expires.
	LicensePerpetual LicenseType = "perpetual"
)

// IsValid checks whether the type is a recognized value.
func (t LicenseType) IsValid() bool {
	switch t {
	case LicenseTrial, LicenseTimeBound, LicensePerpetual:
		return true
	}
	return false
}

// LicenseStatus is the lifecycle status of a single license record.
type LicenseStatus string

const (
	// LicenseActive is a license currently in force.
	LicenseActive LicenseStatus = "active"
	// LicenseExpired is a time-bound license whose expiry has passed.
	LicenseExpired LicenseStatus = "expired"
	// LicenseRevoked is terminal for this license; the tenant may acquire
	// a new one afterward.
	LicenseRevoked LicenseStatus = "revoked"
)

// License is one license grant for a tenant. A tenant has at most one active
// license at a time; superseded records are retained as history.
type License struct {
	ID        uuid.UUID     `json:"id"`
	TenantID  uuid.UUID     `json:"tenant_id"`
	Type      LicenseType   `json:"type"`
	Status    LicenseStatus `json:"status"`
	IssuedAt  time.Time     `json:"issued_at"`
	ExpiresAt *time.Time    `json:"expires_at,omitempty"` // nil for perpetual
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// ExpiredAt reports whether a time-bound license has lapsed at the given time.
// Perpetual licenses never expire.
func (l *License) ExpiredAt(now time.Time) bool {
	if l.ExpiresAt == nil {
		return false
	}
	return now.After(*l.ExpiresAt)
}
