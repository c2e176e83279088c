package repository

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moffermann/school-attendance-sub001/internal/models"
)

func TestNotificationCreateIfAbsentInserts(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	mock.ExpectExec("INSERT INTO notifications").WillReturnResult(sqlmock.NewResult(1, 1))

	n := &models.Notification{GuardianID: "g1", Channel: models.ChannelEmail, Template: models.TemplateWithdrawalSelf, ContextID: "w1", Recipient: "maria@example.com"}
	created, err := repo.CreateIfAbsent(context.Background(), n)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEmpty(t, n.ID)
	assert.Equal(t, models.NotificationPending, n.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationCreateIfAbsentDuplicateIsNoop(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	// ON CONFLICT DO NOTHING reports zero affected rows for the duplicate.
	mock.ExpectExec("INSERT INTO notifications").WillReturnResult(sqlmock.NewResult(0, 0))

	n := &models.Notification{GuardianID: "g1", Channel: models.ChannelEmail, Template: models.TemplateWithdrawalSelf, ContextID: "w1", Recipient: "maria@example.com"}
	created, err := repo.CreateIfAbsent(context.Background(), n)
	require.NoError(t, err)
	assert.False(t, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}
