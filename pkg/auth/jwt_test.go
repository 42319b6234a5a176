package auth

import (
	"testing"
	"time"

	"autobook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTRoundTrip(t *testing.T) {
	m := NewJWTManager("secret", time.Hour)
	tenant := models.TenantContext{RegionCode: "JP", OrganizationID: "org-1", Mode: models.TenantModeBusiness, UserID: "user-1"}

	token, err := m.GenerateToken(tenant)
	require.NoError(t, err)

	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, tenant, claims.Tenant())
}

func TestJWTRejects(t *testing.T) {
	m := NewJWTManager("secret", time.Hour)
	token, err := m.GenerateToken(models.TenantContext{UserID: "u"})
	require.NoError(t, err)

	_, err = NewJWTManager("other", time.Hour).ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired, err := NewJWTManager("secret", -time.Minute).GenerateToken(models.TenantContext{UserID: "u"})
	require.NoError(t, err)
	_, err = m.ValidateToken(expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = m.ValidateToken("garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestClaimsTenantDefaultsToSolo(t *testing.T) {
	c := &Claims{UserID: "u", Mode: "weird"}
	assert.Equal(t, models.TenantModeSolo, c.Tenant().Mode)
}
