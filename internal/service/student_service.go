package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/noah-isme/course-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/course-enrollment-api/pkg/errors"
)

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	GetByID(ctx context.Context, id string) (*models.Student, error)
	CoursesFor(ctx context.Context, studentIDs []string) (map[string][]models.Course, error)
}

// StudentService exposes the read side of student records. Students are written only by the enrollment workflow.
type StudentService struct {
	repo   studentRepository
	logger *zap.Logger
}

// NewStudentService constructs the student service.
func NewStudentService(repo studentRepository, logger *zap.Logger) *StudentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{repo: repo, logger: logger}
}

// List returns students with their enrolled courses expanded.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, *models.Pagination, error) {
	if filter.Status != "" && filter.Status != models.StudentStatusActive && filter.Status != models.StudentStatusInactive {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "invalid status filter")
	}
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list students")
	}
	if err := s.attachCourses(ctx, students); err != nil {
		return nil, nil, err
	}
	page, size := pageBounds(filter.Page, filter.PageSize)
	return students, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a single student with enrolled courses.
func (s *StudentService) Get(ctx context.Context, id string) (*models.Student, error) {
	student, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Internal(err, "failed to load student")
	}
	list := []models.Student{*student}
	if err := s.attachCourses(ctx, list); err != nil {
		return nil, err
	}
	return &list[0], nil
}

func (s *StudentService) attachCourses(ctx context.Context, students []models.Student) error {
	if len(students) == 0 {
		return nil
	}
	ids := make([]string, len(students))
	for i, st := range students {
		ids[i] = st.ID
	}
	courses, err := s.repo.CoursesFor(ctx, ids)
	if err != nil {
		return appErrors.Internal(err, "failed to load enrolled courses")
	}
	for i := range students {
		students[i].EnrolledCourses = courses[students[i].ID]
		if students[i].EnrolledCourses == nil {
			students[i].EnrolledCourses = []models.Course{}
		}
	}
	return nil
}
