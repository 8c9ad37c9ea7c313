package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-enrollment-api/internal/models"
)

func TestSettingRepositoryUpsertAndGet(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSettingRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO settings")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Upsert(context.Background(), &models.Setting{
		Key: models.SettingAdminNotifications, Value: "false", Type: models.SettingTypeBoolean,
	}))

	mock.ExpectQuery(regexp.QuoteMeta("FROM settings WHERE key = $1")).
		WithArgs(models.SettingAdminNotifications).
		WillReturnRows(sqlmock.NewRows([]string{"key", "value", "type", "description", "updated_by", "updated_at"}).
			AddRow(models.SettingAdminNotifications, "false", "BOOLEAN", "", nil, time.Now()))
	setting, err := repo.Get(context.Background(), models.SettingAdminNotifications)
	require.NoError(t, err)
	require.Equal(t, "false", setting.Value)
	require.NoError(t, mock.ExpectationsWereMet())
}
