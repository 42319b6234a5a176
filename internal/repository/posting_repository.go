package repository

import (
	"context"
	"fmt"
	"time"

	"autobook/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// PostingRepository is an append-only log of posting attempts.
type PostingRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewPostingRepository(db *pgxpool.Pool, logger *zap.Logger) *PostingRepository {
	return &PostingRepository{
		db:     db,
		logger: logger,
	}
}

func recordBatchQuery(tenantID string, batch *models.BatchResult, now time.Time) squirrel.InsertBuilder {
	builder := squirrel.Insert("posting_results").
		Columns("id", "tenant_id", "provider", "transaction_id", "ok", "status", "http_status", "remote_id", "diagnostic_code", "message", "created_at").
		PlaceholderFormat(squirrel.Dollar)
	for _, res := range batch.Results {
		builder = builder.Values(uuid.New(), tenantID, res.Provider, res.TransactionID, res.OK, res.Status,
			res.HTTPStatus, res.RemoteID, res.DiagnosticCode, res.Message, now)
	}
	return builder
}

func postingHistoryQuery(tenantID, transactionID string) squirrel.SelectBuilder {
	return squirrel.Select("provider", "transaction_id", "ok", "status", "http_status", "remote_id", "diagnostic_code", "message").
		From("posting_results").
		Where(squirrel.Eq{"tenant_id": tenantID, "transaction_id": transactionID}).
		OrderBy("created_at DESC").
		PlaceholderFormat(squirrel.Dollar)
}

func (r *PostingRepository) RecordBatch(ctx context.Context, tenantID string, batch *models.BatchResult) error {
	if batch == nil || len(batch.Results) == 0 {
		return nil
	}

	sql, args, err := recordBatchQuery(tenantID, batch, time.Now()).ToSql()
	if err != nil {
		return err
	}

	if _, err := r.db.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("failed to record posting results: %w", err)
	}
	return nil
}

// ListByTransaction returns a tenant's posting attempts for one transaction, newest first.
func (r *PostingRepository) ListByTransaction(ctx context.Context, tenantID, transactionID string) ([]models.PostingResult, error) {
	sql, args, err := postingHistoryQuery(tenantID, transactionID).ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []models.PostingResult{}
	for rows.Next() {
		var res models.PostingResult
		if err := rows.Scan(&res.Provider, &res.TransactionID, &res.OK, &res.Status, &res.HTTPStatus,
			&res.RemoteID, &res.DiagnosticCode, &res.Message); err != nil {
			return nil, err
		}
		results = append(results, res)
	}

	return results, rows.Err()
}
