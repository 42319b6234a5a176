package repository

import (
	"context"
	"errors"
	"fmt"

	"autobook/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

var ErrDecisionNotFound = errors.New("decision not found")

var decisionColumns = []string{
	"decision_id", "transaction_id", "rank", "is_expense", "allocation_rate", "category",
	"amount", "date", "reason", "confidence", "rule_version", "model_version", "created_at",
}

// DecisionRepository keeps the current decision per tenant and transaction.
// Saving a new decision supersedes the previous one of the same tenant only.
type DecisionRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewDecisionRepository(db *pgxpool.Pool, logger *zap.Logger) *DecisionRepository {
	return &DecisionRepository{
		db:     db,
		logger: logger,
	}
}

func saveDecisionQuery(tenantID string, d *models.ClassificationDecision) squirrel.InsertBuilder {
	return squirrel.Insert("decisions").
		Columns(append([]string{"tenant_id"}, decisionColumns...)...).
		Values(tenantID, d.DecisionID, d.TransactionID, d.Rank, d.IsExpense, d.AllocationRate, d.Category,
			d.Amount, d.Date, d.Reason, d.Confidence, d.RuleVersion, d.ModelVersion, d.CreatedAt).
		Suffix(`ON CONFLICT (tenant_id, transaction_id) DO UPDATE SET
			decision_id = EXCLUDED.decision_id,
			rank = EXCLUDED.rank,
			is_expense = EXCLUDED.is_expense,
			allocation_rate = EXCLUDED.allocation_rate,
			category = EXCLUDED.category,
			amount = EXCLUDED.amount,
			date = EXCLUDED.date,
			reason = EXCLUDED.reason,
			confidence = EXCLUDED.confidence,
			rule_version = EXCLUDED.rule_version,
			model_version = EXCLUDED.model_version,
			created_at = EXCLUDED.created_at`).
		PlaceholderFormat(squirrel.Dollar)
}

func currentDecisionQuery(tenantID, transactionID string) squirrel.SelectBuilder {
	return squirrel.Select(decisionColumns...).
		From("decisions").
		Where(squirrel.Eq{"tenant_id": tenantID, "transaction_id": transactionID}).
		PlaceholderFormat(squirrel.Dollar)
}

func decisionsByRankQuery(tenantID string, rank models.Rank, limit uint64) squirrel.SelectBuilder {
	return squirrel.Select(decisionColumns...).
		From("decisions").
		Where(squirrel.Eq{"tenant_id": tenantID, "rank": rank}).
		OrderBy("created_at DESC").
		Limit(limit).
		PlaceholderFormat(squirrel.Dollar)
}

func (r *DecisionRepository) SaveCurrent(ctx context.Context, tenantID string, d *models.ClassificationDecision) error {
	sql, args, err := saveDecisionQuery(tenantID, d).ToSql()
	if err != nil {
		return err
	}

	if _, err := r.db.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("failed to save decision: %w", err)
	}
	return nil
}

func (r *DecisionRepository) GetCurrent(ctx context.Context, tenantID, transactionID string) (*models.ClassificationDecision, error) {
	sql, args, err := currentDecisionQuery(tenantID, transactionID).ToSql()
	if err != nil {
		return nil, err
	}

	d, err := scanDecision(r.db.QueryRow(ctx, sql, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDecisionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load decision: %w", err)
	}
	return d, nil
}

// ListByRank returns a tenant's newest decisions of one rank, e.g. the REVIEW backlog.
func (r *DecisionRepository) ListByRank(ctx context.Context, tenantID string, rank models.Rank, limit uint64) ([]*models.ClassificationDecision, error) {
	sql, args, err := decisionsByRankQuery(tenantID, rank, limit).ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	decisions := []*models.ClassificationDecision{}
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		decisions = append(decisions, d)
	}

	return decisions, rows.Err()
}

func scanDecision(row pgx.Row) (*models.ClassificationDecision, error) {
	var d models.ClassificationDecision
	if err := row.Scan(
		&d.DecisionID, &d.TransactionID, &d.Rank, &d.IsExpense, &d.AllocationRate, &d.Category,
		&d.Amount, &d.Date, &d.Reason, &d.Confidence, &d.RuleVersion, &d.ModelVersion, &d.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &d, nil
}
