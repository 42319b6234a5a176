package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const credentialTimeout = 5 * time.Second

// ValueSealer encrypts credential values at rest.
type ValueSealer interface {
	Seal(plain string) (string, error)
	Open(sealed string) (string, error)
}

type CredentialRepository struct {
	db     *pgxpool.Pool
	sealer ValueSealer
	logger *zap.Logger
}

func NewCredentialRepository(db *pgxpool.Pool, sealer ValueSealer, logger *zap.Logger) *CredentialRepository {
	return &CredentialRepository{
		db:     db,
		sealer: sealer,
		logger: logger,
	}
}

// ForOrganization returns a session store over one organisation's stored
// provider credentials.
func (r *CredentialRepository) ForOrganization(organizationID string) *CredentialStore {
	return &CredentialStore{repo: r, org: organizationID}
}

func (r *CredentialRepository) get(ctx context.Context, org, name string) (string, bool, error) {
	query := squirrel.Select("value").
		From("provider_credentials").
		Where(squirrel.Eq{"organization_id": org, "name": name}).
		Where(squirrel.Or{squirrel.Eq{"expires_at": nil}, squirrel.Expr("expires_at > now()")}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return "", false, err
	}

	var sealed string
	err = r.db.QueryRow(ctx, sql, args...).Scan(&sealed)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	value, err := r.sealer.Open(sealed)
	if err != nil {
		return "", false, fmt.Errorf("failed to open credential %s: %w", name, err)
	}
	return value, true, nil
}

// upsertQuery seals value before it is bound to the statement.
func (r *CredentialRepository) upsertQuery(org, name, value string, expiresAt *time.Time, now time.Time) (squirrel.InsertBuilder, error) {
	sealed, err := r.sealer.Seal(value)
	if err != nil {
		return squirrel.InsertBuilder{}, fmt.Errorf("failed to seal credential %s: %w", name, err)
	}
	return squirrel.Insert("provider_credentials").
		Columns("organization_id", "name", "value", "expires_at", "updated_at").
		Values(org, name, sealed, expiresAt, now).
		Suffix("ON CONFLICT (organization_id, name) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at, updated_at = EXCLUDED.updated_at").
		PlaceholderFormat(squirrel.Dollar), nil
}

func (r *CredentialRepository) set(ctx context.Context, org, name, value string, expiresAt *time.Time) error {
	if value == "" {
		sql, args, err := squirrel.Delete("provider_credentials").
			Where(squirrel.Eq{"organization_id": org, "name": name}).
			PlaceholderFormat(squirrel.Dollar).
			ToSql()
		if err != nil {
			return err
		}
		_, err = r.db.Exec(ctx, sql, args...)
		return err
	}

	query, err := r.upsertQuery(org, name, value, expiresAt, time.Now())
	if err != nil {
		return err
	}

	sql, args, err := query.ToSql()
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, sql, args...)
	return err
}

// CredentialStore adapts the repository to the key/value session interface.
// Storage errors and values that no longer open are logged and read as missing.
type CredentialStore struct {
	repo *CredentialRepository
	org  string
}

func (s *CredentialStore) Get(name string) (string, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), credentialTimeout)
	defer cancel()

	v, ok, err := s.repo.get(ctx, s.org, name)
	if err != nil {
		s.repo.logger.Error("Failed to read provider credential",
			zap.String("organization_id", s.org),
			zap.String("name", name),
			zap.Error(err),
		)
		return "", false
	}
	return v, ok
}

func (s *CredentialStore) Set(name, value string, ttl time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), credentialTimeout)
	defer cancel()

	var expiresAt *time.Time
	if ttl > 0 {
		t := time.Now().Add(ttl)
		expiresAt = &t
	}
	if err := s.repo.set(ctx, s.org, name, value, expiresAt); err != nil {
		s.repo.logger.Error("Failed to store provider credential",
			zap.String("organization_id", s.org),
			zap.String("name", name),
			zap.Error(err),
		)
	}
}
