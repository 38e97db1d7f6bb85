package database

import (
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "callai-worker/pkg/errors"
)

func newMockRepository(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	conn := &MySQLDatabase{
		db:     db,
		config: MySQLConfig{QueryTimeout: time.Second},
		logger: newTestLogger(),
	}
	return NewRepository(conn, newTestLogger()), mock
}

const reprocessLockQuery = `SELECT status FROM task WHERE id = ? FOR UPDATE`

func TestReprocessTask(t *testing.T) {
	t.Run("resets finished task", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		taskID := uuid.New()

		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(reprocessLockQuery)).
			WithArgs(taskID.String()).
			WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("failed"))
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE task SET status = ?, failed_reason = NULL WHERE id = ?`)).
			WithArgs("processing", taskID.String()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		require.NoError(t, repo.ReprocessTask(taskID))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects task already processing", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		taskID := uuid.New()

		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(reprocessLockQuery)).
			WithArgs(taskID.String()).
			WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("processing"))
		mock.ExpectRollback()

		err := repo.ReprocessTask(taskID)
		require.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrTaskAlreadyProcessing)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown task", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		taskID := uuid.New()

		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(reprocessLockQuery)).
			WithArgs(taskID.String()).
			WillReturnRows(sqlmock.NewRows([]string{"status"}))
		mock.ExpectRollback()

		err := repo.ReprocessTask(taskID)
		require.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrTaskNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
