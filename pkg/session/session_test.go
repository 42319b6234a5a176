package session

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestMemoryStoreTTL(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	s := NewMemoryStore(clock)

	s.Set("freee_access_token", "tok", time.Hour)
	s.Set("freee_account_id", "42", 0)

	v, ok := s.Get("freee_access_token")
	assert.True(t, ok)
	assert.Equal(t, "tok", v)

	clock.Advance(time.Hour)
	_, ok = s.Get("freee_access_token")
	assert.False(t, ok)

	v, ok = s.Get("freee_account_id")
	assert.True(t, ok)
	assert.Equal(t, "42", v)
	assert.Equal(t, map[string]string{"freee_account_id": "42"}, s.Snapshot())

	s.Set("freee_account_id", "", 0)
	_, ok = s.Get("freee_account_id")
	assert.False(t, ok)
}

func TestSealerRoundTrip(t *testing.T) {
	s := NewSealer("secret", false, zap.NewNop())

	sealed, err := s.Seal("refresh-token")
	require.NoError(t, err)
	assert.NotContains(t, sealed, "refresh-token")

	plain, err := s.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "refresh-token", plain)

	_, err = NewSealer("other", false, zap.NewNop()).Open(sealed)
	assert.ErrorIs(t, err, ErrUnsealable)

	_, err = s.Open("not base64!")
	assert.ErrorIs(t, err, ErrUnsealable)
}

func TestCookieStoreAcrossRequests(t *testing.T) {
	sealer := NewSealer("secret", false, zap.NewNop())
	app := fiber.New()
	app.Post("/set", func(c *fiber.Ctx) error {
		store := sealer.Store(c)
		store.Set("xero_access_token", "tok-1", time.Hour)
		v, _ := store.Get("xero_access_token")
		return c.SendString(v)
	})
	app.Get("/get", func(c *fiber.Ctx) error {
		v, ok := sealer.Store(c).Get("xero_access_token")
		if !ok {
			return c.SendStatus(fiber.StatusNotFound)
		}
		return c.SendString(v)
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/set", nil))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "tok-1", string(body))

	cookies := resp.Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "ab_xero_access_token", cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
	assert.NotEqual(t, "tok-1", cookies[0].Value)

	req := httptest.NewRequest(http.MethodGet, "/get", nil)
	req.AddCookie(cookies[0])
	resp, err = app.Test(req)
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "tok-1", string(body))

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/get", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy exhausted") }

func TestCookieStoreLogsSealFailure(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	sealer := NewSealer("secret", false, zap.New(core))
	sealer.random = failingReader{}

	app := fiber.New()
	app.Post("/set", func(c *fiber.Ctx) error {
		sealer.Store(c).Set("freee_refresh_token", "refresh-1", time.Hour)
		return c.SendStatus(fiber.StatusNoContent)
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/set", nil))
	require.NoError(t, err)
	assert.Empty(t, resp.Cookies())

	entries := logs.FilterMessage("Failed to seal session cookie").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "freee_refresh_token", fields["name"])
	assert.Contains(t, fields["error"], "entropy exhausted")
	assert.NotContains(t, fields, "value")
}
