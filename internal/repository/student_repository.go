package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/course-enrollment-api/internal/models"
)

// StudentRepository reads the roster. Writes happen only through the workflow transaction.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// List returns a page of students matching the filter plus the total match count.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	conditions := []string{"1=1"}
	args := make([]interface{}, 0, 3)
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Level != "" {
		args = append(args, filter.Level)
		conditions = append(conditions, fmt.Sprintf("student_level = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
		conditions = append(conditions, fmt.Sprintf(
			"(LOWER(first_name) LIKE $%d OR LOWER(last_name) LIKE $%d OR LOWER(email) LIKE $%d)",
			len(args), len(args), len(args)))
	}
	where := strings.Join(conditions, " AND ")

	page, size := normalisePage(filter.Page, filter.PageSize)
	query := fmt.Sprintf(`SELECT %s FROM students WHERE %s ORDER BY enrollment_date DESC, id ASC LIMIT %d OFFSET %d`,
		studentColumns, where, size, (page-1)*size)

	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM students WHERE "+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// ListAll returns every student ordered by enrollment date.
func (r *StudentRepository) ListAll(ctx context.Context) ([]models.Student, error) {
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, `SELECT `+studentColumns+` FROM students ORDER BY enrollment_date DESC, id ASC`); err != nil {
		return nil, fmt.Errorf("list all students: %w", err)
	}
	return students, nil
}

// GetByID fetches one student.
func (r *StudentRepository) GetByID(ctx context.Context, id string) (*models.Student, error) {
	var student models.Student
	if err := r.db.GetContext(ctx, &student, `SELECT `+studentColumns+` FROM students WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &student, nil
}

// IsEnrolled reports whether the student with email holds a membership in courseID.
func (r *StudentRepository) IsEnrolled(ctx context.Context, email, courseID string) (bool, error) {
	const query = `SELECT EXISTS (
	SELECT 1 FROM students s JOIN student_courses sc ON sc.student_id = s.id
	WHERE s.email = $1 AND sc.course_id = $2)`
	var enrolled bool
	if err := r.db.GetContext(ctx, &enrolled, query, email, courseID); err != nil {
		return false, fmt.Errorf("check enrollment: %w", err)
	}
	return enrolled, nil
}

// CoursesFor returns enrolled courses keyed by student id.
func (r *StudentRepository) CoursesFor(ctx context.Context, studentIDs []string) (map[string][]models.Course, error) {
	result := make(map[string][]models.Course, len(studentIDs))
	if len(studentIDs) == 0 {
		return result, nil
	}
	query, args, err := sqlx.In(`SELECT sc.student_id, c.id, c.title, c.level, c.duration, c.department, c.status, c.term,
       c.year, c.start_date, c.end_date, c.start_time, c.end_time, c.meeting_time, c.location, c.max_students,
       c.students, c.waitlist, c.description, c.instructor, c.created_at, c.updated_at
	FROM student_courses sc JOIN courses c ON c.id = sc.course_id
	WHERE sc.student_id IN (?) ORDER BY sc.student_id, sc.joined_at`, studentIDs)
	if err != nil {
		return nil, fmt.Errorf("build student course query: %w", err)
	}
	var rows []models.StudentCourse
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list student courses: %w", err)
	}
	for _, row := range rows {
		result[row.StudentID] = append(result[row.StudentID], row.Course)
	}
	return result, nil
}

// StudentSummary aggregates the roster for the dashboard.
type StudentSummary struct {
	Total  int `db:"total"`
	Active int `db:"active"`
}

// Summary returns roster totals.
func (r *StudentRepository) Summary(ctx context.Context) (*StudentSummary, error) {
	const query = `SELECT COUNT(*) AS total, COUNT(*) FILTER (WHERE status = 'active') AS active FROM students`
	var summary StudentSummary
	if err := r.db.GetContext(ctx, &summary, query); err != nil {
		return nil, fmt.Errorf("summarise students: %w", err)
	}
	return &summary, nil
}

func normalisePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 200 {
		size = 50
	}
	return page, size
}
