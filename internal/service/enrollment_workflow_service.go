package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/course-enrollment-api/internal/dto"
	"github.com/noah-isme/course-enrollment-api/internal/models"
	"github.com/noah-isme/course-enrollment-api/internal/repository"
	appErrors "github.com/noah-isme/course-enrollment-api/pkg/errors"
	"github.com/noah-isme/course-enrollment-api/pkg/logger"
)

// Transition labels used for metrics and logs.
const (
	TransitionSubmit   = "submit"
	TransitionApprove  = "approve"
	TransitionReject   = "reject"
	TransitionFlip     = "change_status"
	TransitionReassign = "reassign"
)

// DashboardCachePattern matches every cached dashboard payload.
const DashboardCachePattern = "dash:*"

type enrollmentStore interface {
	WithinTx(ctx context.Context, fn func(tx repository.WorkflowTx) error) error
}

type requestReader interface {
	List(ctx context.Context, filter models.RequestFilter) ([]models.EnrollmentRequest, int, error)
	GetByID(ctx context.Context, id string) (*models.EnrollmentRequest, error)
}

type courseLookup interface {
	GetByIDs(ctx context.Context, ids []string) (map[string]models.Course, error)
}

type enrollmentChecker interface {
	IsEnrolled(ctx context.Context, email, courseID string) (bool, error)
}

type workflowNotifier interface {
	NotifySubmission(ctx context.Context, req *models.EnrollmentRequest, course *models.Course)
	NotifyApproval(ctx context.Context, req *models.EnrollmentRequest, course *models.Course, comment string)
	NotifyRejection(ctx context.Context, req *models.EnrollmentRequest, course *models.Course)
}

type cacheInvalidator interface {
	Invalidate(ctx context.Context, pattern string)
}

// WorkflowOptions tunes the enrollment workflow.
type WorkflowOptions struct {
	EnforceSeatLimit bool
}

// EnrollmentWorkflowService owns the request lifecycle, course counters and student membership.
type EnrollmentWorkflowService struct {
	store     enrollmentStore
	requests  requestReader
	courses   courseLookup
	students  enrollmentChecker
	notifier  workflowNotifier
	cache     cacheInvalidator
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	opts      WorkflowOptions
	now       func() time.Time
}

// NewEnrollmentWorkflowService wires the workflow engine.
func NewEnrollmentWorkflowService(
	store enrollmentStore,
	requests requestReader,
	courses courseLookup,
	students enrollmentChecker,
	notifier workflowNotifier,
	cache cacheInvalidator,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	opts WorkflowOptions,
) *EnrollmentWorkflowService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentWorkflowService{
		store:     store,
		requests:  requests,
		courses:   courses,
		students:  students,
		notifier:  notifier,
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		opts:      opts,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Submit creates a pending request and adds it to the course waitlist.
func (s *EnrollmentWorkflowService) Submit(ctx context.Context, payload dto.SubmitEnrollmentRequest) (*models.EnrollmentRequest, error) {
	payload.Email = normaliseEmail(payload.Email)
	payload.FirstName = strings.TrimSpace(payload.FirstName)
	payload.LastName = strings.TrimSpace(payload.LastName)
	if err := s.validator.Struct(payload); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	req := &models.EnrollmentRequest{
		FirstName:    payload.FirstName,
		LastName:     payload.LastName,
		Email:        payload.Email,
		Phone:        strings.TrimSpace(payload.Phone),
		Age:          payload.Age,
		Comment:      payload.Comment,
		CourseID:     payload.CourseID,
		StudentLevel: payload.StudentLevel,
		CreatedAt:    s.now(),
	}
	var course *models.Course
	err := s.store.WithinTx(ctx, func(tx repository.WorkflowTx) error {
		var err error
		if course, err = loadCourse(ctx, tx, req.CourseID); err != nil {
			return err
		}
		if course.Status == models.CourseStatusClosed {
			return appErrors.Clone(appErrors.ErrPreconditionFailed, "course is closed for enrollment")
		}
		if err := tx.CreateRequest(ctx, req); err != nil {
			return err
		}
		return tx.AdjustCourseCounters(ctx, course.ID, 0, 1)
	})
	if err != nil {
		return nil, s.translate(err, "failed to submit enrollment request")
	}

	s.committed(ctx, TransitionSubmit, req)
	s.notifier.NotifySubmission(ctx, req, course)
	return req, nil
}

// Approve moves a pending request to approved and enrolls the student.
func (s *EnrollmentWorkflowService) Approve(ctx context.Context, id string, payload dto.DecisionRequest) (*models.EnrollmentRequest, error) {
	if err := s.validator.Struct(payload); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid approval payload")
	}
	var (
		req    *models.EnrollmentRequest
		course *models.Course
	)
	err := s.store.WithinTx(ctx, func(tx repository.WorkflowTx) error {
		var err error
		if req, err = loadRequest(ctx, tx, id, payload.Version); err != nil {
			return err
		}
		if req.Status != models.RequestStatusPending {
			return invalidTransition(req.Status, TransitionApprove)
		}
		if course, err = loadCourse(ctx, tx, req.CourseID); err != nil {
			return err
		}
		return s.applyApproval(ctx, tx, req, course)
	})
	if err != nil {
		return nil, s.translate(err, "failed to approve enrollment request")
	}

	s.committed(ctx, TransitionApprove, req)
	s.notifier.NotifyApproval(ctx, req, course, payload.Comment)
	return req, nil
}

// Reject moves a pending request to rejected and releases its waitlist slot.
func (s *EnrollmentWorkflowService) Reject(ctx context.Context, id string, payload dto.DecisionRequest) (*models.EnrollmentRequest, error) {
	if err := s.validator.Struct(payload); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid rejection payload")
	}
	var (
		req    *models.EnrollmentRequest
		course *models.Course
	)
	err := s.store.WithinTx(ctx, func(tx repository.WorkflowTx) error {
		var err error
		if req, err = loadRequest(ctx, tx, id, payload.Version); err != nil {
			return err
		}
		if req.Status != models.RequestStatusPending {
			return invalidTransition(req.Status, TransitionReject)
		}
		if course, err = loadCourse(ctx, tx, req.CourseID); err != nil {
			return err
		}
		now := s.now()
		expected := req.Version
		req.Status = models.RequestStatusRejected
		req.RejectedDate = &now
		req.ApprovedDate = nil
		if err := tx.UpdateRequestDecision(ctx, req, expected); err != nil {
			return err
		}
		return tx.AdjustCourseCounters(ctx, course.ID, 0, -1)
	})
	if err != nil {
		return nil, s.translate(err, "failed to reject enrollment request")
	}

	s.committed(ctx, TransitionReject, req)
	s.notifier.NotifyRejection(ctx, req, course)
	return req, nil
}

// ChangeStatus flips a decided request between approved and rejected.
func (s *EnrollmentWorkflowService) ChangeStatus(ctx context.Context, id string, payload dto.ChangeStatusRequest) (*models.EnrollmentRequest, error) {
	if err := s.validator.Struct(payload); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload")
	}
	target := models.RequestStatus(strings.ToLower(strings.TrimSpace(payload.Status)))
	if target != models.RequestStatusApproved && target != models.RequestStatusRejected {
		return nil, appErrors.Clone(appErrors.ErrValidation, "status must be approved or rejected")
	}

	var (
		req    *models.EnrollmentRequest
		course *models.Course
	)
	err := s.store.WithinTx(ctx, func(tx repository.WorkflowTx) error {
		var err error
		if req, err = loadRequest(ctx, tx, id, payload.Version); err != nil {
			return err
		}
		if req.Status == target || req.Status == models.RequestStatusPending {
			return appErrors.Clone(appErrors.ErrInvalidTransition,
				"cannot change a "+string(req.Status)+" request to "+string(target))
		}
		if course, err = loadCourse(ctx, tx, req.CourseID); err != nil {
			return err
		}
		if target == models.RequestStatusApproved {
			return s.applyApproval(ctx, tx, req, course)
		}

		now := s.now()
		expected := req.Version
		req.Status = models.RequestStatusRejected
		req.RejectedDate = &now
		req.ApprovedDate = nil
		if err := tx.UpdateRequestDecision(ctx, req, expected); err != nil {
			return err
		}
		if err := s.detachStudent(ctx, tx, req, course.ID); err != nil {
			return err
		}
		return tx.AdjustCourseCounters(ctx, course.ID, -1, 1)
	})
	if err != nil {
		return nil, s.translate(err, "failed to change enrollment request status")
	}

	s.committed(ctx, TransitionFlip, req)
	if target == models.RequestStatusApproved {
		s.notifier.NotifyApproval(ctx, req, course, payload.Comment)
	} else {
		s.notifier.NotifyRejection(ctx, req, course)
	}
	return req, nil
}

// ReassignCourse moves a request to another course without changing its status.
func (s *EnrollmentWorkflowService) ReassignCourse(ctx context.Context, id string, payload dto.AssignCourseRequest) (*models.EnrollmentRequest, error) {
	payload.NewCourseID = strings.TrimSpace(payload.NewCourseID)
	if payload.NewCourseID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "newCourseId is required")
	}
	if err := s.validator.Struct(payload); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid reassignment payload")
	}

	var req *models.EnrollmentRequest
	err := s.store.WithinTx(ctx, func(tx repository.WorkflowTx) error {
		var err error
		if req, err = loadRequest(ctx, tx, id, payload.Version); err != nil {
			return err
		}
		if req.CourseID == payload.NewCourseID {
			return appErrors.Clone(appErrors.ErrInvalidTransition, "request already targets this course")
		}
		target, err := loadCourse(ctx, tx, payload.NewCourseID)
		if err != nil {
			return err
		}
		oldCourseID := req.CourseID

		if req.Status == models.RequestStatusApproved {
			if err := s.checkSeats(ctx, target); err != nil {
				return err
			}
			if err := s.detachStudent(ctx, tx, req, oldCourseID); err != nil {
				return err
			}
			if err := s.attachStudent(ctx, tx, req, target.ID, false); err != nil {
				return err
			}
			if err := tx.AdjustCourseCounters(ctx, oldCourseID, -1, 1); err != nil {
				return err
			}
			if err := tx.AdjustCourseCounters(ctx, target.ID, 1, -1); err != nil {
				return err
			}
		} else {
			if err := tx.AdjustCourseCounters(ctx, oldCourseID, 0, -1); err != nil {
				return err
			}
			if err := tx.AdjustCourseCounters(ctx, target.ID, 0, 1); err != nil {
				return err
			}
		}

		if err := tx.UpdateRequestCourse(ctx, req.ID, req.Version, target.ID); err != nil {
			return err
		}
		req.CourseID = target.ID
		req.Version++
		return nil
	})
	if err != nil {
		return nil, s.translate(err, "failed to reassign enrollment request")
	}

	s.committed(ctx, TransitionReassign, req)
	return req, nil
}

// CheckEnrollment reports whether a student with the email already belongs to the course.
func (s *EnrollmentWorkflowService) CheckEnrollment(ctx context.Context, payload dto.CheckEnrollmentRequest) (bool, error) {
	payload.Email = normaliseEmail(payload.Email)
	if err := s.validator.Struct(payload); err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment check payload")
	}
	enrolled, err := s.students.IsEnrolled(ctx, payload.Email, payload.CourseID)
	if err != nil {
		return false, appErrors.Internal(err, "failed to check enrollment")
	}
	return enrolled, nil
}

// ListRequests returns requests newest first with their courses expanded.
func (s *EnrollmentWorkflowService) ListRequests(ctx context.Context, filter models.RequestFilter) ([]models.RequestDetail, *models.Pagination, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "invalid status filter")
	}
	items, total, err := s.requests.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list enrollment requests")
	}
	details, err := expandRequests(ctx, s.courses, items)
	if err != nil {
		return nil, nil, err
	}
	page, size := pageBounds(filter.Page, filter.PageSize)
	return details, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// GetRequest returns one request with its course.
func (s *EnrollmentWorkflowService) GetRequest(ctx context.Context, id string) (*models.RequestDetail, error) {
	req, err := s.requests.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment request not found")
		}
		return nil, appErrors.Internal(err, "failed to load enrollment request")
	}
	details, err := expandRequests(ctx, s.courses, []models.EnrollmentRequest{*req})
	if err != nil {
		return nil, err
	}
	return &details[0], nil
}

func expandRequests(ctx context.Context, lookup courseLookup, items []models.EnrollmentRequest) ([]models.RequestDetail, error) {
	if len(items) == 0 {
		return []models.RequestDetail{}, nil
	}
	ids := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		if _, ok := seen[item.CourseID]; !ok {
			seen[item.CourseID] = struct{}{}
			ids = append(ids, item.CourseID)
		}
	}
	courses, err := lookup.GetByIDs(ctx, ids)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load request courses")
	}
	details := make([]models.RequestDetail, len(items))
	for i, item := range items {
		details[i].EnrollmentRequest = item
		if course, ok := courses[item.CourseID]; ok {
			course := course
			details[i].Course = &course
		}
	}
	return details, nil
}

// applyApproval marks req approved, enrolls the student and moves one waitlist unit into the enrolled count.
func (s *EnrollmentWorkflowService) applyApproval(ctx context.Context, tx repository.WorkflowTx, req *models.EnrollmentRequest, course *models.Course) error {
	if err := s.checkSeats(ctx, course); err != nil {
		return err
	}
	now := s.now()
	expected := req.Version
	req.Status = models.RequestStatusApproved
	req.ApprovedDate = &now
	req.RejectedDate = nil
	if err := tx.UpdateRequestDecision(ctx, req, expected); err != nil {
		return err
	}
	if err := s.attachStudent(ctx, tx, req, course.ID, true); err != nil {
		return err
	}
	return tx.AdjustCourseCounters(ctx, course.ID, 1, -1)
}

// attachStudent upserts the student by email and adds courseID to its memberships.
// refresh copies contact fields from the request, as approvals do.
func (s *EnrollmentWorkflowService) attachStudent(ctx context.Context, tx repository.WorkflowTx, req *models.EnrollmentRequest, courseID string, refresh bool) error {
	lookup, err := tx.FindStudentByEmail(ctx, req.Email)
	if err != nil {
		return err
	}
	now := s.now()

	switch {
	case !lookup.Found:
		student := &models.Student{
			FirstName:      req.FirstName,
			LastName:       req.LastName,
			Email:          req.Email,
			Phone:          req.Phone,
			Status:         models.StudentStatusActive,
			StudentLevel:   req.StudentLevel,
			EnrollmentDate: now,
			ApprovedDate:   &now,
		}
		if err := tx.CreateStudent(ctx, student); err != nil {
			return err
		}
		lookup = models.StudentFound(student)
	case refresh:
		student := lookup.Student
		student.FirstName = req.FirstName
		student.LastName = req.LastName
		student.Phone = req.Phone
		student.StudentLevel = req.StudentLevel
		student.Status = models.StudentStatusActive
		student.ApprovedDate = &now
		if err := tx.RefreshStudent(ctx, student); err != nil {
			return err
		}
	case lookup.Student.Status != models.StudentStatusActive:
		if err := tx.SetStudentStatus(ctx, lookup.Student.ID, models.StudentStatusActive); err != nil {
			return err
		}
	}
	return tx.AddStudentCourse(ctx, lookup.Student.ID, courseID)
}

// detachStudent removes courseID from the student unless another approved request still holds it,
// and deactivates the student once no memberships remain.
func (s *EnrollmentWorkflowService) detachStudent(ctx context.Context, tx repository.WorkflowTx, req *models.EnrollmentRequest, courseID string) error {
	lookup, err := tx.FindStudentByEmail(ctx, req.Email)
	if err != nil {
		return err
	}
	if !lookup.Found {
		logger.WithRequest(ctx, s.logger).Warn("approved request has no student row",
			zap.String("request_id", req.ID), zap.String("email", req.Email))
		return nil
	}
	others, err := tx.CountApprovedRequests(ctx, req.Email, courseID, req.ID)
	if err != nil {
		return err
	}
	if others == 0 {
		if err := tx.RemoveStudentCourse(ctx, lookup.Student.ID, courseID); err != nil {
			return err
		}
	}
	remaining, err := tx.CountStudentCourses(ctx, lookup.Student.ID)
	if err != nil {
		return err
	}
	if remaining == 0 {
		return tx.SetStudentStatus(ctx, lookup.Student.ID, models.StudentStatusInactive)
	}
	return nil
}

func (s *EnrollmentWorkflowService) checkSeats(ctx context.Context, course *models.Course) error {
	if !course.IsFull() {
		return nil
	}
	if s.opts.EnforceSeatLimit {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "course has no seats left")
	}
	logger.WithRequest(ctx, s.logger).Warn("course over advisory seat limit",
		zap.String("course_id", course.ID),
		zap.Int("students", course.Students),
		zap.Int("max_students", *course.MaxStudents),
	)
	return nil
}

func (s *EnrollmentWorkflowService) committed(ctx context.Context, transition string, req *models.EnrollmentRequest) {
	s.metrics.RecordTransition(transition)
	if s.cache != nil {
		s.cache.Invalidate(ctx, DashboardCachePattern)
	}
	logger.WithRequest(ctx, s.logger).Info("enrollment transition committed",
		zap.String("transition", transition),
		zap.String("enrollment_request_id", req.ID),
		zap.String("status", string(req.Status)),
		zap.String("course_id", req.CourseID),
		zap.Int("version", req.Version),
	)
}

func (s *EnrollmentWorkflowService) translate(err error, message string) error {
	var appErr *appErrors.Error
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, repository.ErrStaleVersion):
		return appErrors.Clone(appErrors.ErrConflict, "enrollment request was modified concurrently; reload and retry")
	case errors.Is(err, repository.ErrCounterUnderflow):
		return appErrors.Clone(appErrors.ErrConflict, "course counters out of sync; run reconcile")
	default:
		return appErrors.Internal(err, message)
	}
}

func loadRequest(ctx context.Context, tx repository.WorkflowTx, id string, expectedVersion *int) (*models.EnrollmentRequest, error) {
	req, err := tx.GetRequest(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment request not found")
		}
		return nil, err
	}
	if expectedVersion != nil && *expectedVersion != req.Version {
		return nil, appErrors.Clone(appErrors.ErrConflict, "enrollment request was modified; reload and retry")
	}
	return req, nil
}

func loadCourse(ctx context.Context, tx repository.WorkflowTx, id string) (*models.Course, error) {
	course, err := tx.GetCourse(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, err
	}
	return course, nil
}

func invalidTransition(from models.RequestStatus, event string) error {
	return appErrors.Clone(appErrors.ErrInvalidTransition, "cannot "+event+" a "+string(from)+" request")
}

func normaliseEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func pageBounds(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 200 {
		size = 50
	}
	return page, size
}
