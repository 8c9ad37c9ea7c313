package repository

import (
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

var requestCols = []string{"id", "first_name", "last_name", "email", "phone", "age", "comment", "course_id",
	"student_level", "status", "version", "created_at", "approved_date", "rejected_date"}

var courseCols = []string{"id", "title", "level", "duration", "department", "status", "term", "year", "start_date",
	"end_date", "start_time", "end_time", "meeting_time", "location", "max_students", "students", "waitlist",
	"description", "instructor", "created_at", "updated_at"}

var studentCols = []string{"id", "first_name", "last_name", "email", "phone", "status", "student_level",
	"enrollment_date", "approved_date", "created_at", "updated_at"}

func courseRow(rows *sqlmock.Rows, id, title string, students, waitlist int) *sqlmock.Rows {
	now := time.Now()
	return rows.AddRow(id, title, "Beginner", "10 weeks", "Languages", "open", "Fall", 2024, "2024-09-01",
		"2024-12-01", nil, nil, nil, nil, nil, students, waitlist, nil, nil, now, now)
}
