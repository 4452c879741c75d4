package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"train-console/internal/domain"
)

const (
	loadQuery  = `SELECT user_id, username, is_admin, token, token_expiry, admin_api_key\s+FROM console_sessions\s+WHERE profile = \$1`
	saveQuery  = `INSERT INTO console_sessions .+ ON CONFLICT \(profile\) DO UPDATE SET`
	clearQuery = `DELETE FROM console_sessions WHERE profile = \$1`
)

var sessionColumns = []string{"user_id", "username", "is_admin", "token", "token_expiry", "admin_api_key"}

func setupCredentialRepositoryMocks(mock sqlmock.Sqlmock) {
	mock.ExpectPrepare(loadQuery).WillReturnCloseError(nil)
	mock.ExpectPrepare(saveQuery).WillReturnCloseError(nil)
	mock.ExpectPrepare(clearQuery).WillReturnCloseError(nil)
}

func newMockRepository(t *testing.T) (*CredentialRepository, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	setupCredentialRepositoryMocks(mock)

	repo, err := NewCredentialRepository(db, "")
	require.NoError(t, err)
	return repo, mock
}

func TestNewCredentialRepository(t *testing.T) {
	t.Run("successful_creation", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		assert.NotNil(t, repo)
		assert.Equal(t, DefaultProfile, repo.profile)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("fails_when_prepare_load_fails", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectPrepare(loadQuery).WillReturnError(errors.New("prepare failed"))

		repo, err := NewCredentialRepository(db, "laptop")
		require.Error(t, err)
		assert.Nil(t, repo)
		assert.Contains(t, err.Error(), "failed to prepare load statement")
	})

	t.Run("reports_missing_table", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectPrepare(loadQuery).WillReturnError(&pq.Error{Code: "42P01"})

		_, err = NewCredentialRepository(db, "laptop")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "run EnsureSchema first")
		assert.True(t, IsUndefinedTable(err))
	})

	t.Run("fails_when_prepare_save_fails", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectPrepare(loadQuery)
		mock.ExpectPrepare(saveQuery).WillReturnError(errors.New("prepare failed"))

		_, err = NewCredentialRepository(db, "laptop")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to prepare save statement")
	})
}

func TestCredentialRepository_Load(t *testing.T) {
	expiry := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("successful_retrieval", func(t *testing.T) {
		repo, mock := newMockRepository(t)

		mock.ExpectQuery(loadQuery).
			WithArgs(DefaultProfile).
			WillReturnRows(sqlmock.NewRows(sessionColumns).
				AddRow("42", "root", true, "jwt", expiry, "admin-key"))

		session, err := repo.Load(context.Background())
		require.NoError(t, err)
		assert.Equal(t, &domain.Session{
			UserID:      "42",
			Username:    "root",
			IsAdmin:     true,
			Token:       "jwt",
			TokenExpiry: expiry,
			AdminAPIKey: "admin-key",
		}, session)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no_row_means_no_session", func(t *testing.T) {
		repo, mock := newMockRepository(t)

		mock.ExpectQuery(loadQuery).
			WithArgs(DefaultProfile).
			WillReturnError(sql.ErrNoRows)

		session, err := repo.Load(context.Background())
		assert.Nil(t, session)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("database_error", func(t *testing.T) {
		repo, mock := newMockRepository(t)

		mock.ExpectQuery(loadQuery).WillReturnError(errors.New("connection reset"))

		_, err := repo.Load(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to load session")
		assert.NotErrorIs(t, err, domain.ErrSessionNotFound)
	})
}

func TestCredentialRepository_Save(t *testing.T) {
	session := &domain.Session{
		UserID:      "7",
		Username:    "asha",
		Token:       "jwt",
		TokenExpiry: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	t.Run("upserts_in_one_statement", func(t *testing.T) {
		repo, mock := newMockRepository(t)

		mock.ExpectExec(saveQuery).
			WithArgs(DefaultProfile, "7", "asha", false, "jwt", sqlmock.AnyArg(), "").
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Save(context.Background(), session))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("database_error", func(t *testing.T) {
		repo, mock := newMockRepository(t)

		mock.ExpectExec(saveQuery).WillReturnError(errors.New("check constraint"))

		err := repo.Save(context.Background(), session)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to save session")
	})
}

func TestCredentialRepository_Clear(t *testing.T) {
	t.Run("deletes_profile_row", func(t *testing.T) {
		repo, mock := newMockRepository(t)

		mock.ExpectExec(clearQuery).
			WithArgs(DefaultProfile).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Clear(context.Background()))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("clearing_nothing_is_fine", func(t *testing.T) {
		repo, mock := newMockRepository(t)

		mock.ExpectExec(clearQuery).WillReturnResult(sqlmock.NewResult(0, 0))

		assert.NoError(t, repo.Clear(context.Background()))
	})

	t.Run("database_error", func(t *testing.T) {
		repo, mock := newMockRepository(t)

		mock.ExpectExec(clearQuery).WillReturnError(errors.New("connection reset"))

		err := repo.Clear(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to clear session")
	})
}

func TestEnsureSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS console_sessions`).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, EnsureSchema(context.Background(), db))
	assert.NoError(t, mock.ExpectationsWereMet())
}
