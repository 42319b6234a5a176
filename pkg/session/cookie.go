package session

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	nonceSize    = 24
	cookiePrefix = "ab_"
)

var ErrUnsealable = errors.New("cookie value cannot be opened")

// Sealer encrypts values with NaCl secretbox under a key derived from a secret.
// It seals cookies and the credentials kept in the database.
type Sealer struct {
	key    [32]byte
	secure bool
	random io.Reader
	logger *zap.Logger
}

func NewSealer(secret string, secure bool, logger *zap.Logger) *Sealer {
	return &Sealer{key: sha256.Sum256([]byte(secret)), secure: secure, random: rand.Reader, logger: logger}
}

func (s *Sealer) Seal(plain string) (string, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(s.random, nonce[:]); err != nil {
		return "", fmt.Errorf("failed to read nonce: %w", err)
	}
	out := secretbox.Seal(nonce[:], []byte(plain), &nonce, &s.key)
	return base64.RawURLEncoding.EncodeToString(out), nil
}

func (s *Sealer) Open(sealed string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(sealed)
	if err != nil || len(raw) < nonceSize+secretbox.Overhead {
		return "", ErrUnsealable
	}
	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	plain, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &s.key)
	if !ok {
		return "", ErrUnsealable
	}
	return string(plain), nil
}

// Store binds the sealer to one request.
func (s *Sealer) Store(c *fiber.Ctx) *CookieStore {
	return &CookieStore{sealer: s, ctx: c, written: make(map[string]string)}
}

// CookieStore keeps each value in its own encrypted, HTTP-only cookie.
// Values set during the request are visible to later Gets of the same request.
type CookieStore struct {
	sealer  *Sealer
	ctx     *fiber.Ctx
	written map[string]string
}

func (s *CookieStore) Get(name string) (string, bool) {
	if v, ok := s.written[name]; ok {
		return v, v != ""
	}
	raw := s.ctx.Cookies(cookiePrefix + name)
	if raw == "" {
		return "", false
	}
	v, err := s.sealer.Open(raw)
	if err != nil {
		return "", false
	}
	return v, true
}

func (s *CookieStore) Set(name, value string, ttl time.Duration) {
	s.written[name] = value
	cookie := &fiber.Cookie{
		Name:     cookiePrefix + name,
		Path:     "/",
		HTTPOnly: true,
		Secure:   s.sealer.secure,
		SameSite: fiber.CookieSameSiteLaxMode,
	}
	if value == "" {
		cookie.Expires = time.Unix(0, 0)
		cookie.MaxAge = -1
		s.ctx.Cookie(cookie)
		return
	}

	sealed, err := s.sealer.Seal(value)
	if err != nil {
		s.sealer.logger.Error("Failed to seal session cookie",
			zap.String("name", name),
			zap.Error(err),
		)
		return
	}
	cookie.Value = sealed
	if ttl > 0 {
		cookie.MaxAge = int(ttl.Seconds())
	}
	s.ctx.Cookie(cookie)
}
