package auth

import (
	"errors"
	"fmt"
	"time"

	"autobook/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims carry the tenant a request acts for.
type Claims struct {
	UserID         string `json:"uid"`
	OrganizationID string `json:"org"`
	RegionCode     string `json:"region"`
	Mode           string `json:"mode"`
	jwt.RegisteredClaims
}

func (c *Claims) Tenant() models.TenantContext {
	mode := models.TenantMode(c.Mode)
	if mode != models.TenantModeBusiness {
		mode = models.TenantModeSolo
	}
	return models.TenantContext{
		RegionCode:     c.RegionCode,
		OrganizationID: c.OrganizationID,
		Mode:           mode,
		UserID:         c.UserID,
	}
}

type JWTManager struct {
	secretKey     []byte
	tokenDuration time.Duration
	issuer        string
}

func NewJWTManager(secretKey string, tokenDuration time.Duration) *JWTManager {
	return &JWTManager{
		secretKey:     []byte(secretKey),
		tokenDuration: tokenDuration,
		issuer:        "autobook",
	}
}

func (m *JWTManager) GenerateToken(tenant models.TenantContext) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID:         tenant.UserID,
		OrganizationID: tenant.OrganizationID,
		RegionCode:     tenant.RegionCode,
		Mode:           string(tenant.Mode),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    m.issuer,
			Subject:   tenant.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.tokenDuration)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func (m *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secretKey, nil
	}, jwt.WithIssuer(m.issuer))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (m *JWTManager) GetTokenDuration() time.Duration {
	return m.tokenDuration
}
