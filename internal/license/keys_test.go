package license

import (
	"crypto/ed25519"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillbooks/quillbooks/internal/models"
)

func testKeyPair(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	return pub, priv
}

func TestGenerateAndParseKey(t *testing.T) {
	pub, priv := testKeyPair(t)
	tenantID := uuid.New()
	exp := time.Now().UTC().Add(365 * 24 * time.Hour).Truncate(time.Second)

	key, err := GenerateKey(priv, tenantID, models.LicenseTimeBound, &exp)
	require.NoError(t, err)

	lic, err := ParseKey(key, pub)
	require.NoError(t, err)
	assert.Equal(t, tenantID, lic.TenantID)
	assert.Equal(t, models.LicenseTimeBound, lic.Type)
	require.NotNil(t, lic.ExpiresAt)
	assert.True(t, lic.ExpiresAt.Equal(exp))
}

func TestParseKeyPerpetual(t *testing.T) {
	pub, priv := testKeyPair(t)

	key, err := GenerateKey(priv, uuid.New(), models.LicensePerpetual, nil)
	require.NoError(t, err)

	lic, err := ParseKey(key, pub)
	require.NoError(t, err)
	assert.Equal(t, models.LicensePerpetual, lic.Type)
	assert.Nil(t, lic.ExpiresAt)
}

func TestParseKeyRejectsTamperedPayload(t *testing.T) {
	pub, priv := testKeyPair(t)

	key, err := GenerateKey(priv, uuid.New(), models.LicensePerpetual, nil)
	require.NoError(t, err)

	parts := strings.SplitN(key, ".", 2)
	tampered := parts[0] + "x." + parts[1]
	_, err = ParseKey(tampered, pub)
	assert.Error(t, err)
}

func TestParseKeyRejectsWrongPublicKey(t *testing.T) {
	_, priv := testKeyPair(t)
	otherPub, _ := testKeyPair(t)

	key, err := GenerateKey(priv, uuid.New(), models.LicensePerpetual, nil)
	require.NoError(t, err)

	_, err = ParseKey(key, otherPub)
	assert.ErrorContains(t, err, "invalid license signature")
}

func TestParseKeyRejectsMalformedInput(t *testing.T) {
	pub, _ := testKeyPair(t)

	for _, key := range []string{"", "no-dot", "a.b.c extra"} {
		_, err := ParseKey(key, pub)
		assert.Error(t, err, key)
	}
}

func TestGenerateKeyRejectsMissingExpiry(t *testing.T) {
	pub, priv := testKeyPair(t)

	// A time-bound key signed without an expiry must not parse.
	key, err := GenerateKey(priv, uuid.New(), models.LicenseTimeBound, nil)
	require.NoError(t, err)
	_, err = ParseKey(key, pub)
	assert.ErrorContains(t, err, "missing expiry")
}
