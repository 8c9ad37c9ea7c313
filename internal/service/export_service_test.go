package service

import (
	"context"
	"errors"
	"io"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/course-enrollment-api/pkg/errors"
	"github.com/noah-isme/course-enrollment-api/pkg/storage"
)

type exportStudentsStub struct{ err error }

func (s exportStudentsStub) ListAll(context.Context) ([]models.Student, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []models.Student{{
		ID: "s-1", FirstName: "Ada", LastName: "Lovelace", Email: "ada@x.com",
		Status: models.StudentStatusActive, StudentLevel: "Beginner",
		EnrollmentDate: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}}, nil
}

type exportCoursesStub struct{}

func (exportCoursesStub) List(context.Context, models.CourseFilter) ([]models.Course, error) {
	limit := 12
	desc := "Intro, with commas"
	return []models.Course{{ID: "1", Title: "French A1", Level: models.CourseLevelBeginner, Students: 3, Waitlist: 1, MaxStudents: &limit, Year: 2024, Description: &desc}}, nil
}

type exportRequestsStub struct{}

func (exportRequestsStub) ListAll(context.Context) ([]models.EnrollmentRequest, error) {
	return []models.EnrollmentRequest{{ID: "r-1", FirstName: "Ada", LastName: "Lovelace", Email: "ada@x.com", CourseID: "1", Status: models.RequestStatusApproved}}, nil
}

func newExportServiceForTest(t *testing.T, students exportStudentsStub) *ExportService {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("secret", time.Hour)
	return NewExportService(ExportSources{
		Students: students,
		Courses:  exportCoursesStub{},
		Requests: exportRequestsStub{},
	}, store, signer, ExportConfig{APIPrefix: "/api"}, nil)
}

func downloadToken(t *testing.T, raw string) string {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "/api/exports/download", u.Path)
	return u.Query().Get("token")
}

func TestExportServiceStudentsCSV(t *testing.T) {
	svc := newExportServiceForTest(t, exportStudentsStub{})

	result, err := svc.Export(context.Background(), ExportStudents, "")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "/exports/students.csv", result.File)
	assert.Equal(t, "csv", result.Format)
	assert.Equal(t, 1, result.Rows)

	file, name, contentType, err := svc.Open(downloadToken(t, result.URL))
	require.NoError(t, err)
	defer file.Close()
	assert.Equal(t, "students.csv", name)
	assert.Equal(t, "text/csv", contentType)

	body, err := io.ReadAll(file)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "ID,First Name,Last Name,Email,Phone,Status,Level,Enrollment Date", lines[0])
	assert.Equal(t, "s-1,Ada,Lovelace,ada@x.com,,active,Beginner,2024-01-02T03:04:05Z", lines[1])
}

func TestExportServiceOverwritesFixedPath(t *testing.T) {
	svc := newExportServiceForTest(t, exportStudentsStub{})

	first, err := svc.Export(context.Background(), ExportCourses, "csv")
	require.NoError(t, err)
	second, err := svc.Export(context.Background(), ExportCourses, "csv")
	require.NoError(t, err)
	assert.Equal(t, first.File, second.File)

	file, _, _, err := svc.Open(downloadToken(t, second.URL))
	require.NoError(t, err)
	defer file.Close()
	body, err := io.ReadAll(file)
	require.NoError(t, err)
	assert.Contains(t, string(body), `1,French A1,"Intro, with commas",Beginner,3,1,12,2024`)
}

func TestExportServiceEnrollmentsPDF(t *testing.T) {
	svc := newExportServiceForTest(t, exportStudentsStub{})

	result, err := svc.Export(context.Background(), ExportEnrollments, "PDF")
	require.NoError(t, err)
	assert.Equal(t, "/exports/enrollments.pdf", result.File)

	file, _, contentType, err := svc.Open(downloadToken(t, result.URL))
	require.NoError(t, err)
	defer file.Close()
	assert.Equal(t, "application/pdf", contentType)
	head := make([]byte, 4)
	_, err = io.ReadFull(file, head)
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(head))
}

func TestExportServiceErrors(t *testing.T) {
	svc := newExportServiceForTest(t, exportStudentsStub{err: errors.New("db down")})

	_, err := svc.Export(context.Background(), ExportStudents, "csv")
	assert.True(t, errors.Is(err, appErrors.ErrInternal))

	_, err = svc.Export(context.Background(), "grades", "csv")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	_, err = svc.Export(context.Background(), ExportCourses, "xlsx")
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, _, _, err = svc.Open("tampered.token.value")
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
}
