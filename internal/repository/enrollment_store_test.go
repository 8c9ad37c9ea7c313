package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-enrollment-api/internal/models"
)

func TestEnrollmentStoreCommitsDecision(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	store := NewEnrollmentStore(db)

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM enrollment_requests WHERE id = $1")).
		WithArgs("req-1").
		WillReturnRows(sqlmock.NewRows(requestCols).
			AddRow("req-1", "Ada", "Lovelace", "ada@example.com", "", 30, "", "c-1", "A1", "pending", 1, now, nil, nil))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollment_requests")).
		WithArgs("req-1", 1, models.RequestStatusApproved, sqlmock.AnyArg(), nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE courses")).
		WithArgs("c-1", 1, -1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.WithinTx(context.Background(), func(tx WorkflowTx) error {
		req, err := tx.GetRequest(context.Background(), "req-1")
		if err != nil {
			return err
		}
		approved := now.UTC()
		req.Status = models.RequestStatusApproved
		req.ApprovedDate = &approved
		if err := tx.UpdateRequestDecision(context.Background(), req, req.Version); err != nil {
			return err
		}
		assert.Equal(t, 2, req.Version)
		return tx.AdjustCourseCounters(context.Background(), req.CourseID, 1, -1)
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentStoreRollsBackOnStaleVersion(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	store := NewEnrollmentStore(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollment_requests SET course_id")).
		WithArgs("req-1", 3, "c-2").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := store.WithinTx(context.Background(), func(tx WorkflowTx) error {
		return tx.UpdateRequestCourse(context.Background(), "req-1", 3, "c-2")
	})
	require.ErrorIs(t, err, ErrStaleVersion)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentStoreCounterUnderflow(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	store := NewEnrollmentStore(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("students + $2 >= 0")).
		WithArgs("c-1", -1, 1).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := store.WithinTx(context.Background(), func(tx WorkflowTx) error {
		return tx.AdjustCourseCounters(context.Background(), "c-1", -1, 1)
	})
	require.ErrorIs(t, err, ErrCounterUnderflow)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentStoreStudentLookup(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	store := NewEnrollmentStore(db)

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM students WHERE email = $1")).
		WithArgs("missing@example.com").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta("FROM students WHERE email = $1")).
		WithArgs("ada@example.com").
		WillReturnRows(sqlmock.NewRows(studentCols).
			AddRow("s-1", "Ada", "Lovelace", "ada@example.com", "", "active", "A1", now, now, now, now))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO student_courses")).
		WithArgs("s-1", "c-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM student_courses")).
		WithArgs("s-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectCommit()

	err := store.WithinTx(context.Background(), func(tx WorkflowTx) error {
		lookup, err := tx.FindStudentByEmail(context.Background(), "missing@example.com")
		require.NoError(t, err)
		assert.False(t, lookup.Found)
		assert.Nil(t, lookup.Student)

		lookup, err = tx.FindStudentByEmail(context.Background(), "ada@example.com")
		require.NoError(t, err)
		require.True(t, lookup.Found)
		assert.Equal(t, "s-1", lookup.Student.ID)

		require.NoError(t, tx.AddStudentCourse(context.Background(), "s-1", "c-1"))
		total, err := tx.CountStudentCourses(context.Background(), "s-1")
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentStoreCreateRequestRollsBackOnFailure(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	store := NewEnrollmentStore(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO enrollment_requests")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE courses")).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	req := &models.EnrollmentRequest{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com", CourseID: "c-1"}
	err := store.WithinTx(context.Background(), func(tx WorkflowTx) error {
		if err := tx.CreateRequest(context.Background(), req); err != nil {
			return err
		}
		return tx.AdjustCourseCounters(context.Background(), "c-1", 0, 1)
	})
	require.ErrorContains(t, err, "connection reset")
	assert.NotEmpty(t, req.ID)
	assert.Equal(t, 1, req.Version)
	assert.Equal(t, models.RequestStatusPending, req.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}
