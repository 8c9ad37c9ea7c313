package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/course-enrollment-api/pkg/errors"
)

type mockStudentRepo struct {
	students   []models.Student
	courses    map[string][]models.Course
	coursesErr error
	lastFilter models.StudentFilter
}

func (m *mockStudentRepo) List(_ context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	m.lastFilter = filter
	out := append([]models.Student(nil), m.students...)
	return out, len(out), nil
}

func (m *mockStudentRepo) GetByID(_ context.Context, id string) (*models.Student, error) {
	for _, st := range m.students {
		if st.ID == id {
			clone := st
			return &clone, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockStudentRepo) CoursesFor(_ context.Context, ids []string) (map[string][]models.Course, error) {
	if m.coursesErr != nil {
		return nil, m.coursesErr
	}
	out := map[string][]models.Course{}
	for _, id := range ids {
		if cs, ok := m.courses[id]; ok {
			out[id] = cs
		}
	}
	return out, nil
}

func TestStudentServiceListExpandsCourses(t *testing.T) {
	repo := &mockStudentRepo{
		students: []models.Student{
			{ID: "s-1", Email: "a@x.com", Status: models.StudentStatusActive},
			{ID: "s-2", Email: "b@x.com", Status: models.StudentStatusInactive},
		},
		courses: map[string][]models.Course{"s-1": {{ID: "1", Title: "French A1"}}},
	}
	svc := NewStudentService(repo, nil)

	students, pagination, err := svc.List(context.Background(), models.StudentFilter{Page: 2, PageSize: 10})
	require.NoError(t, err)
	require.Len(t, students, 2)
	assert.Equal(t, "French A1", students[0].EnrolledCourses[0].Title)
	assert.NotNil(t, students[1].EnrolledCourses)
	assert.Empty(t, students[1].EnrolledCourses)
	assert.Equal(t, 2, pagination.Page)
	assert.Equal(t, 10, pagination.PageSize)
	assert.Equal(t, 2, pagination.TotalCount)
}

func TestStudentServiceListRejectsUnknownStatus(t *testing.T) {
	svc := NewStudentService(&mockStudentRepo{}, nil)
	_, _, err := svc.List(context.Background(), models.StudentFilter{Status: "graduated"})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestStudentServiceGet(t *testing.T) {
	repo := &mockStudentRepo{
		students: []models.Student{{ID: "s-1"}},
		courses:  map[string][]models.Course{"s-1": {{ID: "1"}, {ID: "2"}}},
	}
	svc := NewStudentService(repo, nil)

	student, err := svc.Get(context.Background(), "s-1")
	require.NoError(t, err)
	assert.Len(t, student.EnrolledCourses, 2)

	_, err = svc.Get(context.Background(), "missing")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	repo.coursesErr = errors.New("boom")
	_, err = svc.Get(context.Background(), "s-1")
	assert.True(t, errors.Is(err, appErrors.ErrInternal))
}
