package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moffermann/school-attendance-sub001/internal/models"
	appErrors "github.com/moffermann/school-attendance-sub001/pkg/errors"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	return sqlxdb, mock, func() {
		db.Close()
	}
}

func TestWithdrawalCreate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewWithdrawalRepository(db)

	mock.ExpectExec("INSERT INTO student_withdrawals").WillReturnResult(sqlmock.NewResult(1, 1))

	w := &models.StudentWithdrawal{StudentID: "s1", Status: models.WithdrawalInitiated}
	err := repo.Create(context.Background(), w)
	require.NoError(t, err)
	assert.NotEmpty(t, w.ID)
	assert.False(t, w.InitiatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithdrawalCreateCompletedConflict(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewWithdrawalRepository(db)

	mock.ExpectExec("INSERT INTO student_withdrawals").
		WillReturnError(&pq.Error{Code: "23505", Constraint: completedPerDayConstraint})

	w := &models.StudentWithdrawal{StudentID: "s1", Status: models.WithdrawalCompleted}
	err := repo.CreateCompleted(context.Background(), w)
	assert.True(t, appErrors.Is(err, appErrors.ErrWithdrawalConflict))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithdrawalFindActiveByStudentNone(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewWithdrawalRepository(db)

	mock.ExpectQuery("SELECT \\* FROM student_withdrawals WHERE student_id").
		WithArgs("s1", string(models.WithdrawalInitiated), string(models.WithdrawalVerified)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	w, err := repo.FindActiveByStudent(context.Background(), "s1")
	require.NoError(t, err)
	assert.Nil(t, w)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithdrawalMarkVerifiedGuardsStatus(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewWithdrawalRepository(db)

	mock.ExpectExec("UPDATE student_withdrawals SET status").WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkVerified(context.Background(), "w1", models.VerifyQRScan, nil, nil, time.Now())
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidTransition))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithdrawalCompleteHappyPath(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewWithdrawalRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE student_withdrawals SET status").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.Complete(context.Background(), "w1", nil, nil, time.Now())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithdrawalCompleteConflict(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewWithdrawalRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE student_withdrawals SET status").
		WillReturnError(&pq.Error{Code: "23505", Constraint: completedPerDayConstraint})
	mock.ExpectRollback()

	err := repo.Complete(context.Background(), "w1", nil, nil, time.Now())
	assert.True(t, appErrors.Is(err, appErrors.ErrWithdrawalConflict))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithdrawalCompleteWrongStatus(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewWithdrawalRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE student_withdrawals SET status").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Complete(context.Background(), "w1", nil, nil, time.Now())
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidTransition))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithdrawalCancelGuardsStatus(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewWithdrawalRepository(db)

	mock.ExpectExec("UPDATE student_withdrawals SET status").WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Cancel(context.Background(), "w1", "u1", "guardian cancelled at the gate", time.Now())
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidTransition))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithdrawalHasCompletedInRange(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewWithdrawalRepository(db)

	from := time.Date(2026, 3, 2, 3, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM student_withdrawals")).
		WithArgs("s1", string(models.WithdrawalCompleted), from, to).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	found, err := repo.HasCompletedInRange(context.Background(), "s1", from, to)
	require.NoError(t, err)
	assert.True(t, found)
	assert.NoError(t, mock.ExpectationsWereMet())
}
