package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/course-enrollment-api/internal/models"
)

var (
	// ErrStaleVersion signals that a request changed since it was read.
	ErrStaleVersion = errors.New("enrollment request version is stale")
	// ErrCounterUnderflow signals that a course's enrolled count would go negative.
	ErrCounterUnderflow = errors.New("course enrolled count would become negative")
)

const requestColumns = `id, first_name, last_name, email, phone, age, comment, course_id, student_level,
       status, version, created_at, approved_date, rejected_date`

const courseColumns = `id, title, level, duration, department, status, term, year, start_date, end_date,
       start_time, end_time, meeting_time, location, max_students, students, waitlist,
       description, instructor, created_at, updated_at`

const studentColumns = `id, first_name, last_name, email, phone, status, student_level,
       enrollment_date, approved_date, created_at, updated_at`

// WorkflowTx is the set of reads and writes one workflow transition performs atomically.
type WorkflowTx interface {
	GetRequest(ctx context.Context, id string) (*models.EnrollmentRequest, error)
	CreateRequest(ctx context.Context, req *models.EnrollmentRequest) error
	UpdateRequestDecision(ctx context.Context, req *models.EnrollmentRequest, expectedVersion int) error
	UpdateRequestCourse(ctx context.Context, id string, expectedVersion int, courseID string) error
	GetCourse(ctx context.Context, id string) (*models.Course, error)
	AdjustCourseCounters(ctx context.Context, courseID string, students, waitlist int) error
	SetCourseCounters(ctx context.Context, courseID string, students, waitlist int) error
	FindStudentByEmail(ctx context.Context, email string) (models.StudentLookup, error)
	CreateStudent(ctx context.Context, student *models.Student) error
	RefreshStudent(ctx context.Context, student *models.Student) error
	AddStudentCourse(ctx context.Context, studentID, courseID string) error
	RemoveStudentCourse(ctx context.Context, studentID, courseID string) error
	CountStudentCourses(ctx context.Context, studentID string) (int, error)
	SetStudentStatus(ctx context.Context, studentID string, status models.StudentStatus) error
	CountApprovedRequests(ctx context.Context, email, courseID, excludeID string) (int, error)
}

// EnrollmentStore runs workflow transitions inside database transactions.
type EnrollmentStore struct {
	db *sqlx.DB
}

// NewEnrollmentStore constructs the store.
func NewEnrollmentStore(db *sqlx.DB) *EnrollmentStore {
	return &EnrollmentStore{db: db}
}

// WithinTx executes fn in a transaction, committing only when fn returns nil.
func (s *EnrollmentStore) WithinTx(ctx context.Context, fn func(tx WorkflowTx) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin workflow tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(&workflowTx{tx: tx}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit workflow tx: %w", err)
	}
	return nil
}

type workflowTx struct {
	tx *sqlx.Tx
}

func (w *workflowTx) GetRequest(ctx context.Context, id string) (*models.EnrollmentRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM enrollment_requests WHERE id = $1`
	var req models.EnrollmentRequest
	if err := w.tx.GetContext(ctx, &req, query, id); err != nil {
		return nil, err
	}
	return &req, nil
}

func (w *workflowTx) CreateRequest(ctx context.Context, req *models.EnrollmentRequest) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}
	if req.Version == 0 {
		req.Version = 1
	}
	req.Status = models.RequestStatusPending
	const query = `INSERT INTO enrollment_requests
	(id, first_name, last_name, email, phone, age, comment, course_id, student_level, status, version, created_at)
	VALUES (:id, :first_name, :last_name, :email, :phone, :age, :comment, :course_id, :student_level, :status, :version, :created_at)`
	if _, err := w.tx.NamedExecContext(ctx, query, req); err != nil {
		return fmt.Errorf("create enrollment request: %w", err)
	}
	return nil
}

// UpdateRequestDecision writes status and decision timestamps when the version still matches.
func (w *workflowTx) UpdateRequestDecision(ctx context.Context, req *models.EnrollmentRequest, expectedVersion int) error {
	const query = `UPDATE enrollment_requests
	SET status = $3, approved_date = $4, rejected_date = $5, version = version + 1
	WHERE id = $1 AND version = $2`
	result, err := w.tx.ExecContext(ctx, query, req.ID, expectedVersion, req.Status, req.ApprovedDate, req.RejectedDate)
	if err != nil {
		return fmt.Errorf("update request decision: %w", err)
	}
	if err := expectOneRow(result); err != nil {
		return err
	}
	req.Version = expectedVersion + 1
	return nil
}

func (w *workflowTx) UpdateRequestCourse(ctx context.Context, id string, expectedVersion int, courseID string) error {
	const query = `UPDATE enrollment_requests SET course_id = $3, version = version + 1 WHERE id = $1 AND version = $2`
	result, err := w.tx.ExecContext(ctx, query, id, expectedVersion, courseID)
	if err != nil {
		return fmt.Errorf("update request course: %w", err)
	}
	return expectOneRow(result)
}

func expectOneRow(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check request update rows: %w", err)
	}
	if rows == 0 {
		return ErrStaleVersion
	}
	return nil
}

func (w *workflowTx) GetCourse(ctx context.Context, id string) (*models.Course, error) {
	query := `SELECT ` + courseColumns + ` FROM courses WHERE id = $1`
	var course models.Course
	if err := w.tx.GetContext(ctx, &course, query, id); err != nil {
		return nil, err
	}
	return &course, nil
}

// AdjustCourseCounters applies deltas; the waitlist is floored at zero while the enrolled count is guarded.
func (w *workflowTx) AdjustCourseCounters(ctx context.Context, courseID string, students, waitlist int) error {
	const query = `UPDATE courses
	SET students = students + $2, waitlist = GREATEST(waitlist + $3, 0), updated_at = NOW()
	WHERE id = $1 AND students + $2 >= 0`
	result, err := w.tx.ExecContext(ctx, query, courseID, students, waitlist)
	if err != nil {
		return fmt.Errorf("adjust course counters: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check course counter rows: %w", err)
	}
	if rows == 0 {
		return ErrCounterUnderflow
	}
	return nil
}

func (w *workflowTx) SetCourseCounters(ctx context.Context, courseID string, students, waitlist int) error {
	const query = `UPDATE courses SET students = $2, waitlist = $3, updated_at = NOW() WHERE id = $1`
	if _, err := w.tx.ExecContext(ctx, query, courseID, students, waitlist); err != nil {
		return fmt.Errorf("set course counters: %w", err)
	}
	return nil
}

func (w *workflowTx) FindStudentByEmail(ctx context.Context, email string) (models.StudentLookup, error) {
	query := `SELECT ` + studentColumns + ` FROM students WHERE email = $1`
	var student models.Student
	if err := w.tx.GetContext(ctx, &student, query, email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.StudentNotFound(), nil
		}
		return models.StudentLookup{}, fmt.Errorf("find student by email: %w", err)
	}
	return models.StudentFound(&student), nil
}

func (w *workflowTx) CreateStudent(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	student.CreatedAt = now
	student.UpdatedAt = now
	const query = `INSERT INTO students
	(id, first_name, last_name, email, phone, status, student_level, enrollment_date, approved_date, created_at, updated_at)
	VALUES (:id, :first_name, :last_name, :email, :phone, :status, :student_level, :enrollment_date, :approved_date, :created_at, :updated_at)`
	if _, err := w.tx.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

func (w *workflowTx) RefreshStudent(ctx context.Context, student *models.Student) error {
	student.UpdatedAt = time.Now().UTC()
	const query = `UPDATE students SET first_name = :first_name, last_name = :last_name, phone = :phone,
	student_level = :student_level, status = :status, approved_date = :approved_date, updated_at = :updated_at
	WHERE id = :id`
	if _, err := w.tx.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("refresh student: %w", err)
	}
	return nil
}

func (w *workflowTx) AddStudentCourse(ctx context.Context, studentID, courseID string) error {
	const query = `INSERT INTO student_courses (student_id, course_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`
	if _, err := w.tx.ExecContext(ctx, query, studentID, courseID); err != nil {
		return fmt.Errorf("add student course: %w", err)
	}
	return nil
}

func (w *workflowTx) RemoveStudentCourse(ctx context.Context, studentID, courseID string) error {
	const query = `DELETE FROM student_courses WHERE student_id = $1 AND course_id = $2`
	if _, err := w.tx.ExecContext(ctx, query, studentID, courseID); err != nil {
		return fmt.Errorf("remove student course: %w", err)
	}
	return nil
}

func (w *workflowTx) CountStudentCourses(ctx context.Context, studentID string) (int, error) {
	var total int
	if err := w.tx.GetContext(ctx, &total, `SELECT COUNT(*) FROM student_courses WHERE student_id = $1`, studentID); err != nil {
		return 0, fmt.Errorf("count student courses: %w", err)
	}
	return total, nil
}

func (w *workflowTx) SetStudentStatus(ctx context.Context, studentID string, status models.StudentStatus) error {
	const query = `UPDATE students SET status = $2, updated_at = NOW() WHERE id = $1`
	if _, err := w.tx.ExecContext(ctx, query, studentID, status); err != nil {
		return fmt.Errorf("set student status: %w", err)
	}
	return nil
}

func (w *workflowTx) CountApprovedRequests(ctx context.Context, email, courseID, excludeID string) (int, error) {
	const query = `SELECT COUNT(*) FROM enrollment_requests
	WHERE email = $1 AND course_id = $2 AND status = 'approved' AND id <> $3`
	var total int
	if err := w.tx.GetContext(ctx, &total, query, email, courseID, excludeID); err != nil {
		return 0, fmt.Errorf("count approved requests: %w", err)
	}
	return total, nil
}
