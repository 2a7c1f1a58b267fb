package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/quillbooks/quillbooks/internal/models"
	"github.com/quillbooks/quillbooks/internal/qerrors"
)

// TokenScope distinguishes the two bearer token audiences. Tenant tokens
// carry a tenant binding and a role; operator tokens carry neither and are
// individually revocable by token ID.
type TokenScope string

const (
	// ScopeTenant is a token issued to a tenant user.
	ScopeTenant TokenScope = "tenant"
	// ScopeOperator is a token issued to a platform operator.
	ScopeOperator TokenScope = "operator"
)

// Claims is the JWT claim set for both token scopes.
type Claims struct {
	Scope    TokenScope      `json:"scope"`
	TenantID uuid.UUID       `json:"tenant_id,omitempty"`
	Role     models.UserRole `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies bearer tokens with a shared HMAC secret.
type TokenIssuer struct {
	secret      []byte
	tenantTTL   time.Duration
	operatorTTL time.Duration
}

// NewTokenIssuer creates an issuer. The secret must be non-empty.
func NewTokenIssuer(secret []byte, tenantTTL, operatorTTL time.Duration) (*TokenIssuer, error) {
	if len(secret) == 0 {
		return nil, errors.New("token secret must not be empty")
	}
	return &TokenIssuer{secret: secret, tenantTTL: tenantTTL, operatorTTL: operatorTTL}, nil
}

// TenantTokenTTL returns the lifetime of issued tenant tokens.
func (i *TokenIssuer) TenantTokenTTL() time.Duration { return i.tenantTTL }

// IssueTenantToken signs a token for a tenant user.
func (i *TokenIssuer) IssueTenantToken(user *models.User) (string, error) {
	return i.sign(&Claims{
		Scope:    ScopeTenant,
		TenantID: user.TenantID,
		Role:     user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwt.NewNumericDate(time.Now().UTC().Add(i.tenantTTL)),
		},
	})
}

// IssueOperatorToken signs a token for a platform operator.
func (i *TokenIssuer) IssueOperatorToken(operatorID uuid.UUID) (string, error) {
	return i.sign(&Claims{
		Scope: ScopeOperator,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   operatorID.String(),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwt.NewNumericDate(time.Now().UTC().Add(i.operatorTTL)),
		},
	})
}

func (i *TokenIssuer) sign(claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a token, returning its claims. Expired or
// malformed tokens yield an authentication error.
func (i *TokenIssuer) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil {
		return nil, qerrors.Wrap(qerrors.KindAuth, "invalid token", err)
	}
	switch claims.Scope {
	case ScopeTenant:
		if claims.TenantID == uuid.Nil {
			return nil, qerrors.New(qerrors.KindAuth, "tenant token missing tenant binding")
		}
	case ScopeOperator:
	default:
		return nil, qerrors.New(qerrors.KindAuth, "unknown token scope")
	}
	return claims, nil
}

// UserID returns the subject as a UUID.
func (c *Claims) UserID() (uuid.UUID, error) {
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return uuid.Nil, qerrors.Wrap(qerrors.KindAuth, "malformed token subject", err)
	}
	return id, nil
}
