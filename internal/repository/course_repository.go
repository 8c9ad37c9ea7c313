package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/course-enrollment-api/internal/models"
)

// ErrCourseInUse is returned when deleting a course that requests or students still reference.
var ErrCourseInUse = errors.New("course is referenced by enrollment records")

// CourseRepository persists catalog courses and their attachments.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// List returns courses matching the filter ordered by title, attachments included.
func (r *CourseRepository) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, error) {
	builder := strings.Builder{}
	builder.WriteString(`SELECT ` + courseColumns + ` FROM courses`)
	args := make([]interface{}, 0, 3)
	conditions := make([]string, 0, 3)
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Level != "" {
		args = append(args, filter.Level)
		conditions = append(conditions, fmt.Sprintf("level = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
		conditions = append(conditions, fmt.Sprintf("(LOWER(title) LIKE $%d OR LOWER(department) LIKE $%d)", len(args), len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY title ASC, id ASC")

	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	if err := r.attachTo(ctx, courses); err != nil {
		return nil, err
	}
	return courses, nil
}

// GetByID fetches one course with its attachments.
func (r *CourseRepository) GetByID(ctx context.Context, id string) (*models.Course, error) {
	query := `SELECT ` + courseColumns + ` FROM courses WHERE id = $1`
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		return nil, err
	}
	courses := []models.Course{course}
	if err := r.attachTo(ctx, courses); err != nil {
		return nil, err
	}
	return &courses[0], nil
}

// GetByIDs returns the courses with the given ids keyed by id, without attachments.
func (r *CourseRepository) GetByIDs(ctx context.Context, ids []string) (map[string]models.Course, error) {
	result := make(map[string]models.Course, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	query, args, err := sqlx.In(`SELECT `+courseColumns+` FROM courses WHERE id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("build course lookup: %w", err)
	}
	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("get courses by ids: %w", err)
	}
	for _, course := range courses {
		result[course.ID] = course
	}
	return result, nil
}

// Create inserts the course and its attachments in one transaction.
func (r *CourseRepository) Create(ctx context.Context, course *models.Course) (err error) {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	course.CreatedAt = now
	course.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create course tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const query = `INSERT INTO courses
	(id, title, level, duration, department, status, term, year, start_date, end_date, start_time, end_time,
	 meeting_time, location, max_students, students, waitlist, description, instructor, created_at, updated_at)
	VALUES (:id, :title, :level, :duration, :department, :status, :term, :year, :start_date, :end_date, :start_time, :end_time,
	 :meeting_time, :location, :max_students, 0, 0, :description, :instructor, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("create course: %w", err)
	}
	if err = insertAttachments(ctx, tx, course); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create course: %w", err)
	}
	return nil
}

// Update rewrites the admin-editable columns and replaces the whole attachment list.
// Workflow counters are never touched here.
func (r *CourseRepository) Update(ctx context.Context, course *models.Course) (err error) {
	course.UpdatedAt = time.Now().UTC()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update course tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const query = `UPDATE courses SET title = :title, level = :level, duration = :duration, department = :department,
	status = :status, term = :term, year = :year, start_date = :start_date, end_date = :end_date,
	start_time = :start_time, end_time = :end_time, meeting_time = :meeting_time, location = :location,
	max_students = :max_students, description = :description, instructor = :instructor, updated_at = :updated_at
	WHERE id = :id`
	if _, err = tx.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("update course: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM course_attachments WHERE course_id = $1`, course.ID); err != nil {
		return fmt.Errorf("clear course attachments: %w", err)
	}
	if err = insertAttachments(ctx, tx, course); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit update course: %w", err)
	}
	return nil
}

func insertAttachments(ctx context.Context, tx *sqlx.Tx, course *models.Course) error {
	const query = `INSERT INTO course_attachments (id, course_id, position, name, url)
	VALUES (:id, :course_id, :position, :name, :url)`
	for i := range course.Attachments {
		att := &course.Attachments[i]
		att.ID = uuid.NewString()
		att.CourseID = course.ID
		att.Position = i
		if _, err := tx.NamedExecContext(ctx, query, att); err != nil {
			return fmt.Errorf("insert course attachment: %w", err)
		}
	}
	return nil
}

// Delete removes a course. Attachments cascade; referencing requests block the delete.
func (r *CourseRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM courses WHERE id = $1`, id)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" {
			return ErrCourseInUse
		}
		return fmt.Errorf("delete course: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check course delete rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *CourseRepository) attachTo(ctx context.Context, courses []models.Course) error {
	if len(courses) == 0 {
		return nil
	}
	ids := make([]string, len(courses))
	index := make(map[string]int, len(courses))
	for i := range courses {
		ids[i] = courses[i].ID
		index[courses[i].ID] = i
		courses[i].Attachments = []models.Attachment{}
	}
	query, args, err := sqlx.In(`SELECT id, course_id, position, name, url FROM course_attachments
	WHERE course_id IN (?) ORDER BY course_id, position`, ids)
	if err != nil {
		return fmt.Errorf("build attachment query: %w", err)
	}
	var attachments []models.Attachment
	if err := r.db.SelectContext(ctx, &attachments, r.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("list course attachments: %w", err)
	}
	for _, att := range attachments {
		if i, ok := index[att.CourseID]; ok {
			courses[i].Attachments = append(courses[i].Attachments, att)
		}
	}
	return nil
}

// CourseSummary aggregates the catalog for the dashboard.
type CourseSummary struct {
	Total         int `db:"total"`
	Open          int `db:"open"`
	EnrolledSeats int `db:"enrolled_seats"`
	Waitlisted    int `db:"waitlisted"`
}

// Summary returns catalog totals.
func (r *CourseRepository) Summary(ctx context.Context) (*CourseSummary, error) {
	const query = `SELECT COUNT(*) AS total,
       COUNT(*) FILTER (WHERE status = 'open') AS open,
       COALESCE(SUM(students), 0) AS enrolled_seats,
       COALESCE(SUM(waitlist), 0) AS waitlisted
	FROM courses`
	var summary CourseSummary
	if err := r.db.GetContext(ctx, &summary, query); err != nil {
		return nil, fmt.Errorf("summarise courses: %w", err)
	}
	return &summary, nil
}

// LevelCount is the number of courses at a level.
type LevelCount struct {
	Level string `db:"level"`
	Count int    `db:"count"`
}

// CountByLevel groups courses by level.
func (r *CourseRepository) CountByLevel(ctx context.Context) ([]LevelCount, error) {
	const query = `SELECT level, COUNT(*) AS count FROM courses GROUP BY level ORDER BY level`
	var counts []LevelCount
	if err := r.db.SelectContext(ctx, &counts, query); err != nil {
		return nil, fmt.Errorf("count courses by level: %w", err)
	}
	return counts, nil
}

// CounterAudit compares stored counters with the request table.
type CounterAudit struct {
	CourseID      string `db:"course_id"`
	Title         string `db:"title"`
	Students      int    `db:"students"`
	Waitlist      int    `db:"waitlist"`
	ApprovedCount int    `db:"approved_count"`
	PendingCount  int    `db:"pending_count"`
}

// AuditCounters returns stored and derived counters for every course.
func (r *CourseRepository) AuditCounters(ctx context.Context) ([]CounterAudit, error) {
	const query = `SELECT c.id AS course_id, c.title, c.students, c.waitlist,
       COUNT(er.id) FILTER (WHERE er.status = 'approved') AS approved_count,
       COUNT(er.id) FILTER (WHERE er.status = 'pending') AS pending_count
	FROM courses c
	LEFT JOIN enrollment_requests er ON er.course_id = c.id
	GROUP BY c.id, c.title, c.students, c.waitlist
	ORDER BY c.id`
	var rows []CounterAudit
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("audit course counters: %w", err)
	}
	return rows, nil
}
