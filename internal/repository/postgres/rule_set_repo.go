package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"invoicecheck/internal/domain"
	"invoicecheck/internal/port"
)

const ruleSetColumns = "version, definition, is_active, created_at, updated_at"

type ruleSetRepo struct {
	db *sqlx.DB
}

// NewRuleSetRepo creates a new PostgreSQL-backed RuleSetRepository.
func NewRuleSetRepo(db *sqlx.DB) port.RuleSetRepository {
	return &ruleSetRepo{db: db}
}

func (r *ruleSetRepo) Get(ctx context.Context, version string) (*domain.RuleSetRecord, error) {
	var rec domain.RuleSetRecord
	err := r.db.GetContext(ctx, &rec,
		"SELECT "+ruleSetColumns+" FROM rule_sets WHERE version = $1", version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %q", domain.ErrRuleSetNotFound, version)
		}
		return nil, fmt.Errorf("ruleSetRepo.Get: %w", err)
	}
	return &rec, nil
}

func (r *ruleSetRepo) Active(ctx context.Context) (*domain.RuleSetRecord, error) {
	var rec domain.RuleSetRecord
	err := r.db.GetContext(ctx, &rec,
		"SELECT "+ruleSetColumns+" FROM rule_sets WHERE is_active = TRUE")
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: no active rule set", domain.ErrRuleSetNotFound)
		}
		return nil, fmt.Errorf("ruleSetRepo.Active: %w", err)
	}
	return &rec, nil
}

// List returns every stored version without its definition.
func (r *ruleSetRepo) List(ctx context.Context) ([]domain.RuleSetRecord, error) {
	var recs []domain.RuleSetRecord
	err := r.db.SelectContext(ctx, &recs,
		"SELECT version, is_active, created_at, updated_at FROM rule_sets ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("ruleSetRepo.List: %w", err)
	}
	return recs, nil
}

// Save inserts a version or replaces the definition of an existing one.
// It never changes which version is active.
func (r *ruleSetRepo) Save(ctx context.Context, rec *domain.RuleSetRecord) error {
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	query := `INSERT INTO rule_sets (version, definition, is_active, created_at, updated_at)
		VALUES ($1, $2, FALSE, $3, $4)
		ON CONFLICT (version) DO UPDATE SET
			definition = EXCLUDED.definition,
			updated_at = EXCLUDED.updated_at
		RETURNING is_active, created_at`

	err := r.db.QueryRowxContext(ctx, query,
		rec.Version, rec.Definition, rec.CreatedAt, rec.UpdatedAt).
		Scan(&rec.IsActive, &rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("ruleSetRepo.Save: %w", err)
	}
	return nil
}

// Activate makes version the only active rule set.
func (r *ruleSetRepo) Activate(ctx context.Context, version string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ruleSetRepo.Activate: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		"UPDATE rule_sets SET is_active = FALSE, updated_at = $1 WHERE is_active = TRUE AND version <> $2",
		now, version); err != nil {
		return fmt.Errorf("ruleSetRepo.Activate: %w", err)
	}
	result, err := tx.ExecContext(ctx,
		"UPDATE rule_sets SET is_active = TRUE, updated_at = $1 WHERE version = $2",
		now, version)
	if err != nil {
		return fmt.Errorf("ruleSetRepo.Activate: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("%w: %q", domain.ErrRuleSetNotFound, version)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ruleSetRepo.Activate: %w", err)
	}
	return nil
}
