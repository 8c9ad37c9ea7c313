package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/course-enrollment-api/internal/models"
)

// EnrollmentRequestRepository serves read paths over enrollment requests.
type EnrollmentRequestRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRequestRepository constructs the repository.
func NewEnrollmentRequestRepository(db *sqlx.DB) *EnrollmentRequestRepository {
	return &EnrollmentRequestRepository{db: db}
}

// List returns requests newest first with the total count of matches.
func (r *EnrollmentRequestRepository) List(ctx context.Context, filter models.RequestFilter) ([]models.EnrollmentRequest, int, error) {
	conditions := []string{"1=1"}
	args := make([]interface{}, 0, 3)
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.CourseID != "" {
		args = append(args, filter.CourseID)
		conditions = append(conditions, fmt.Sprintf("course_id = $%d", len(args)))
	}
	if filter.Email != "" {
		args = append(args, strings.ToLower(filter.Email))
		conditions = append(conditions, fmt.Sprintf("email = $%d", len(args)))
	}
	where := strings.Join(conditions, " AND ")

	page, size := normalisePage(filter.Page, filter.PageSize)
	query := fmt.Sprintf(`SELECT %s FROM enrollment_requests WHERE %s ORDER BY created_at DESC, id DESC LIMIT %d OFFSET %d`,
		requestColumns, where, size, (page-1)*size)

	var requests []models.EnrollmentRequest
	if err := r.db.SelectContext(ctx, &requests, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollment requests: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM enrollment_requests WHERE "+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollment requests: %w", err)
	}
	return requests, total, nil
}

// ListAll returns every request newest first.
func (r *EnrollmentRequestRepository) ListAll(ctx context.Context) ([]models.EnrollmentRequest, error) {
	var requests []models.EnrollmentRequest
	if err := r.db.SelectContext(ctx, &requests, `SELECT `+requestColumns+` FROM enrollment_requests ORDER BY created_at DESC, id DESC`); err != nil {
		return nil, fmt.Errorf("list all enrollment requests: %w", err)
	}
	return requests, nil
}

// Recent returns the newest n requests.
func (r *EnrollmentRequestRepository) Recent(ctx context.Context, n int) ([]models.EnrollmentRequest, error) {
	var requests []models.EnrollmentRequest
	query := `SELECT ` + requestColumns + ` FROM enrollment_requests ORDER BY created_at DESC, id DESC LIMIT $1`
	if err := r.db.SelectContext(ctx, &requests, query, n); err != nil {
		return nil, fmt.Errorf("list recent enrollment requests: %w", err)
	}
	return requests, nil
}

// GetByID fetches one request.
func (r *EnrollmentRequestRepository) GetByID(ctx context.Context, id string) (*models.EnrollmentRequest, error) {
	var req models.EnrollmentRequest
	if err := r.db.GetContext(ctx, &req, `SELECT `+requestColumns+` FROM enrollment_requests WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &req, nil
}

// StatusCount is the number of requests in one status.
type StatusCount struct {
	Status models.RequestStatus `db:"status"`
	Total  int                  `db:"total"`
}

// CountByStatus groups requests by status.
func (r *EnrollmentRequestRepository) CountByStatus(ctx context.Context) ([]StatusCount, error) {
	var counts []StatusCount
	if err := r.db.SelectContext(ctx, &counts, `SELECT status, COUNT(*) AS total FROM enrollment_requests GROUP BY status`); err != nil {
		return nil, fmt.Errorf("count requests by status: %w", err)
	}
	return counts, nil
}
