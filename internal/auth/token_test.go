package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillbooks/quillbooks/internal/models"
	"github.com/quillbooks/quillbooks/internal/qerrors"
)

func testIssuer(t *testing.T) *TokenIssuer {
	t.Helper()
	issuer, err := NewTokenIssuer([]byte("test-secret-0123456789"), time.Hour, 15*time.Minute)
	require.NoError(t, err)
	return issuer
}

func TestTenantTokenRoundTrip(t *testing.T) {
	issuer := testIssuer(t)
	user := &models.User{
		ID:       uuid.New(),
		TenantID: uuid.New(),
		Email:    "admin@example.com",
		Role:     models.RoleAdmin,
	}

	token, err := issuer.IssueTenantToken(user)
	require.NoError(t, err)

	claims, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, ScopeTenant, claims.Scope)
	assert.Equal(t, user.TenantID, claims.TenantID)
	assert.Equal(t, models.RoleAdmin, claims.Role)
	assert.NotEmpty(t, claims.ID)

	uid, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, user.ID, uid)
}

func TestOperatorTokenRoundTrip(t *testing.T) {
	issuer := testIssuer(t)
	opID := uuid.New()

	token, err := issuer.IssueOperatorToken(opID)
	require.NoError(t, err)

	claims, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, ScopeOperator, claims.Scope)
	assert.Equal(t, uuid.Nil, claims.TenantID)
	assert.Empty(t, claims.Role)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	issuer := testIssuer(t)
	other, err := NewTokenIssuer([]byte("different-secret-xyz"), time.Hour, time.Hour)
	require.NoError(t, err)

	token, err := issuer.IssueOperatorToken(uuid.New())
	require.NoError(t, err)

	_, err = other.Verify(token)
	require.Error(t, err)
	assert.True(t, qerrors.Is(err, qerrors.KindAuth))
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	issuer, err := NewTokenIssuer([]byte("test-secret-0123456789"), -time.Minute, -time.Minute)
	require.NoError(t, err)

	token, err := issuer.IssueOperatorToken(uuid.New())
	require.NoError(t, err)

	_, err = issuer.Verify(token)
	require.Error(t, err)
	assert.True(t, qerrors.Is(err, qerrors.KindAuth))
}

func TestVerifyRejectsGarbage(t *testing.T) {
	issuer := testIssuer(t)
	_, err := issuer.Verify("not.a.token")
	require.Error(t, err)
	assert.True(t, qerrors.Is(err, qerrors.KindAuth))
}

func TestNewTokenIssuerRequiresSecret(t *testing.T) {
	_, err := NewTokenIssuer(nil, time.Hour, time.Hour)
	assert.Error(t, err)
}

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("correct horse battery")
	require.NoError(t, err)
	assert.NoError(t, CheckPassword(hash, "correct horse battery"))
	assert.Error(t, CheckPassword(hash, "wrong password"))
}

func TestHashPasswordRejectsShort(t *testing.T) {
	_, err := HashPassword("short")
	assert.Error(t, err)
}

func TestNormalizeOrgName(t *testing.T) {
	assert.Equal(t, "Acme Ledgers", NormalizeOrgName("  Acme  Ledgers  "))
	assert.Equal(t, "Cafe Fin", NormalizeOrgName("Cafe\tFin"))
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "user@example.com", NormalizeEmail("  User@Example.COM "))
}
