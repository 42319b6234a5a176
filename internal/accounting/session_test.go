package accounting

import (
	"testing"
	"time"

	"autobook/internal/models"

	"github.com/stretchr/testify/assert"
)

type mapStore map[string]string

func (m mapStore) Get(name string) (string, bool) {
	v, ok := m[name]
	return v, ok
}

func (m mapStore) Set(name, value string, _ time.Duration) {
	m[name] = value
}

func TestCredentialsRoundTrip(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	store := mapStore{}
	in := Credentials{AccessToken: "a", RefreshToken: "r", AccountID: "realm", Expiry: now.Add(time.Hour)}

	SaveCredentials(store, models.ProviderQuickBooks, in, now)
	assert.Equal(t, "a", store["quickbooks_access_token"])

	out := LoadCredentials(store, models.ProviderQuickBooks)
	assert.False(t, out.Changed(in))
	assert.True(t, out.Connected())

	assert.False(t, LoadCredentials(store, models.ProviderXero).Connected())
	assert.False(t, LoadCredentials(nil, models.ProviderXero).Connected())
}

func TestCredentialsChanged(t *testing.T) {
	before := Credentials{AccessToken: "a", RefreshToken: "r"}
	after := before
	assert.False(t, after.Changed(before))
	after.AccessToken = "b"
	assert.True(t, after.Changed(before))
}
