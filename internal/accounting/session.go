package accounting

import (
	"time"

	"autobook/internal/models"
)

// SessionStore is the key/value handle the host application gives the core for
// provider tokens. The core only reads named values and writes refreshed ones back.
type SessionStore interface {
	Get(name string) (string, bool)
	Set(name, value string, ttl time.Duration)
}

const (
	accessTokenTTL  = time.Hour
	refreshTokenTTL = 100 * 24 * time.Hour
	accountIDTTL    = 365 * 24 * time.Hour
)

// Credentials are the OAuth tokens and the provider-side account (freee company,
// QuickBooks realm, Xero tenant) of one connection.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	AccountID    string
	Expiry       time.Time

	refreshFailed bool
}

func (c Credentials) Connected() bool {
	return c.AccessToken != ""
}

// Changed reports whether anything worth persisting differs from before.
func (c Credentials) Changed(before Credentials) bool {
	return c.AccessToken != before.AccessToken ||
		c.RefreshToken != before.RefreshToken ||
		c.AccountID != before.AccountID ||
		!c.Expiry.Equal(before.Expiry)
}

func SessionKey(p models.Provider, name string) string {
	return string(p) + "_" + name
}

func LoadCredentials(store SessionStore, p models.Provider) Credentials {
	var c Credentials
	if store == nil {
		return c
	}
	c.AccessToken, _ = store.Get(SessionKey(p, "access_token"))
	c.RefreshToken, _ = store.Get(SessionKey(p, "refresh_token"))
	c.AccountID, _ = store.Get(SessionKey(p, "account_id"))
	if raw, ok := store.Get(SessionKey(p, "token_expiry")); ok {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			c.Expiry = t
		}
	}
	return c
}

func SaveCredentials(store SessionStore, p models.Provider, c Credentials, now time.Time) {
	if store == nil {
		return
	}
	ttl := accessTokenTTL
	if !c.Expiry.IsZero() && c.Expiry.After(now) {
		ttl = c.Expiry.Sub(now)
	}
	store.Set(SessionKey(p, "access_token"), c.AccessToken, ttl)
	if c.RefreshToken != "" {
		store.Set(SessionKey(p, "refresh_token"), c.RefreshToken, refreshTokenTTL)
	}
	if c.AccountID != "" {
		store.Set(SessionKey(p, "account_id"), c.AccountID, accountIDTTL)
	}
	if !c.Expiry.IsZero() {
		store.Set(SessionKey(p, "token_expiry"), c.Expiry.UTC().Format(time.RFC3339), refreshTokenTTL)
	}
}
