package postgres_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invoicecheck/internal/domain"
	"invoicecheck/internal/repository/postgres"
)

func setup(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

var columns = []string{"version", "definition", "is_active", "created_at", "updated_at"}

func TestRuleSetRepo_Get(t *testing.T) {
	db, mock := setup(t)
	repo := postgres.NewRuleSetRepo(db)
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM rule_sets WHERE version = $1")).
		WithArgs("v1").
		WillReturnRows(sqlmock.NewRows(columns).AddRow("v1", []byte("version: v1"), true, created, created))

	rec, err := repo.Get(context.Background(), "v1")
	require.NoError(t, err)
	assert.Equal(t, "v1", rec.Version)
	assert.Equal(t, []byte("version: v1"), rec.Definition)
	assert.True(t, rec.IsActive)
	assert.Equal(t, created, rec.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRuleSetRepo_Get_NotFound(t *testing.T) {
	db, mock := setup(t)
	repo := postgres.NewRuleSetRepo(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM rule_sets WHERE version = $1")).
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows(columns))

	_, err := repo.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrRuleSetNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRuleSetRepo_Active(t *testing.T) {
	db, mock := setup(t)
	repo := postgres.NewRuleSetRepo(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM rule_sets WHERE is_active = TRUE")).
		WillReturnError(errors.New("connection reset"))

	_, err := repo.Active(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrRuleSetNotFound)
	assert.Contains(t, err.Error(), "ruleSetRepo.Active")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRuleSetRepo_List(t *testing.T) {
	db, mock := setup(t)
	repo := postgres.NewRuleSetRepo(db)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT version, is_active, created_at, updated_at FROM rule_sets ORDER BY version")).
		WillReturnRows(sqlmock.NewRows([]string{"version", "is_active", "created_at", "updated_at"}).
			AddRow("v1", false, now, now).
			AddRow("v2", true, now, now))

	recs, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "v2", recs[1].Version)
	assert.True(t, recs[1].IsActive)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRuleSetRepo_Save(t *testing.T) {
	db, mock := setup(t)
	repo := postgres.NewRuleSetRepo(db)
	created := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO rule_sets")).
		WithArgs("v1", []byte("version: v1"), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"is_active", "created_at"}).AddRow(true, created))

	rec := &domain.RuleSetRecord{Version: "v1", Definition: []byte("version: v1")}
	require.NoError(t, repo.Save(context.Background(), rec))
	assert.True(t, rec.IsActive)
	assert.Equal(t, created, rec.CreatedAt)
	assert.False(t, rec.UpdatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRuleSetRepo_Activate(t *testing.T) {
	t.Run("switches active version", func(t *testing.T) {
		db, mock := setup(t)
		repo := postgres.NewRuleSetRepo(db)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("UPDATE rule_sets SET is_active = FALSE")).
			WithArgs(sqlmock.AnyArg(), "v2").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta("UPDATE rule_sets SET is_active = TRUE")).
			WithArgs(sqlmock.AnyArg(), "v2").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		require.NoError(t, repo.Activate(context.Background(), "v2"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown version rolls back", func(t *testing.T) {
		db, mock := setup(t)
		repo := postgres.NewRuleSetRepo(db)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("UPDATE rule_sets SET is_active = FALSE")).
			WithArgs(sqlmock.AnyArg(), "v9").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta("UPDATE rule_sets SET is_active = TRUE")).
			WithArgs(sqlmock.AnyArg(), "v9").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		err := repo.Activate(context.Background(), "v9")
		assert.ErrorIs(t, err, domain.ErrRuleSetNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
