package license

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/quillbooks/quillbooks/internal/models"
)

// keyPayload is the JSON structure encoded in an Ed25519-signed license key.
type keyPayload struct {
	Product   string             `json:"product"`
	TenantID  uuid.UUID          `json:"tenant_id"`
	Type      models.LicenseType `json:"type"`
	ExpiresAt int64              `json:"expires_at,omitempty"` // unix seconds, 0 for perpetual
	IssuedAt  int64              `json:"issued_at"`
}

const keyProduct = "quillbooks"

// GenerateKey signs a license grant into a portable key string of the form
// base64(payload).base64(signature). Used by operator tooling only.
func GenerateKey(priv ed25519.PrivateKey, tenantID uuid.UUID, typ models.LicenseType, expiresAt *time.Time) (string, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return "", errors.New("invalid Ed25519 private key")
	}
	if !typ.IsValid() {
		return "", fmt.Errorf("unknown license type: %s", typ)
	}
	payload := keyPayload{
		Product:  keyProduct,
		TenantID: tenantID,
		Type:     typ,
		IssuedAt: time.Now().Unix(),
	}
	if expiresAt != nil {
		payload.ExpiresAt = expiresAt.Unix()
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode license payload: %w", err)
	}
	sig := ed25519.Sign(priv, data)
	return base64.RawURLEncoding.EncodeToString(data) + "." + base64.RawURLEncoding.EncodeToString(sig), nil
}

// ParseKey decodes and verifies a signed license key, returning the license
// it grants. Only verification logic lives here; signing keys stay with the
// operator tooling.
func ParseKey(key string, pub ed25519.PublicKey) (*models.License, error) {
	if key == "" {
		return nil, errors.New("empty license key")
	}
	if len(pub) != ed25519.PublicKeySize {
		return nil, errors.New("invalid Ed25519 public key")
	}

	parts := strings.SplitN(key, ".", 2)
	if len(parts) != 2 {
		return nil, errors.New("invalid license key format: expected payload.signature")
	}
	data, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, fmt.Errorf("decode license payload: %w", err)
	}
	sig, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("decode license signature: %w", err)
	}
	if !ed25519.Verify(pub, data, sig) {
		return nil, errors.New("invalid license signature")
	}

	var payload keyPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("parse license payload: %w", err)
	}
	if payload.Product != keyProduct {
		return nil, fmt.Errorf("license key is for product %q", payload.Product)
	}
	if !payload.Type.IsValid() {
		return nil, fmt.Errorf("unknown license type: %s", payload.Type)
	}

	lic := &models.License{
		ID:       uuid.New(),
		TenantID: payload.TenantID,
		Type:     payload.Type,
		Status:   models.LicenseActive,
		IssuedAt: time.Unix(payload.IssuedAt, 0).UTC(),
	}
	if payload.ExpiresAt != 0 {
		t := time.Unix(payload.ExpiresAt, 0).UTC()
		lic.ExpiresAt = &t
	} else if payload.Type != models.LicensePerpetual {
		return nil, errors.New("non-perpetual license key missing expiry")
	}
	return lic, nil
}
