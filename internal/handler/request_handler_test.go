package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-enrollment-api/internal/dto"
	"github.com/noah-isme/course-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/course-enrollment-api/pkg/errors"
)

type fakeWorkflow struct {
	err error

	lastID       string
	lastDecision dto.DecisionRequest
	lastChange   dto.ChangeStatusRequest
	lastAssign   dto.AssignCourseRequest
	lastSubmit   dto.SubmitEnrollmentRequest
	lastFilter   models.RequestFilter
	enrolled     bool
}

func (f *fakeWorkflow) Submit(_ context.Context, payload dto.SubmitEnrollmentRequest) (*models.EnrollmentRequest, error) {
	f.lastSubmit = payload
	if f.err != nil {
		return nil, f.err
	}
	return &models.EnrollmentRequest{ID: "req-1", Email: payload.Email, CourseID: payload.CourseID, Status: models.RequestStatusPending, Version: 1}, nil
}

func (f *fakeWorkflow) Approve(_ context.Context, id string, payload dto.DecisionRequest) (*models.EnrollmentRequest, error) {
	f.lastID, f.lastDecision = id, payload
	if f.err != nil {
		return nil, f.err
	}
	return &models.EnrollmentRequest{ID: id, Status: models.RequestStatusApproved}, nil
}

func (f *fakeWorkflow) Reject(_ context.Context, id string, payload dto.DecisionRequest) (*models.EnrollmentRequest, error) {
	f.lastID, f.lastDecision = id, payload
	if f.err != nil {
		return nil, f.err
	}
	return &models.EnrollmentRequest{ID: id, Status: models.RequestStatusRejected}, nil
}

func (f *fakeWorkflow) ChangeStatus(_ context.Context, id string, payload dto.ChangeStatusRequest) (*models.EnrollmentRequest, error) {
	f.lastID, f.lastChange = id, payload
	if f.err != nil {
		return nil, f.err
	}
	return &models.EnrollmentRequest{ID: id, Status: models.RequestStatus(payload.Status)}, nil
}

func (f *fakeWorkflow) ReassignCourse(_ context.Context, id string, payload dto.AssignCourseRequest) (*models.EnrollmentRequest, error) {
	f.lastID, f.lastAssign = id, payload
	if f.err != nil {
		return nil, f.err
	}
	return &models.EnrollmentRequest{ID: id, CourseID: payload.NewCourseID}, nil
}

func (f *fakeWorkflow) CheckEnrollment(context.Context, dto.CheckEnrollmentRequest) (bool, error) {
	return f.enrolled, f.err
}

func (f *fakeWorkflow) ListRequests(_ context.Context, filter models.RequestFilter) ([]models.RequestDetail, *models.Pagination, error) {
	f.lastFilter = filter
	if f.err != nil {
		return nil, nil, f.err
	}
	return []models.RequestDetail{{EnrollmentRequest: models.EnrollmentRequest{ID: "req-1"}}}, &models.Pagination{Page: 1, PageSize: 20, TotalCount: 1}, nil
}

func (f *fakeWorkflow) GetRequest(_ context.Context, id string) (*models.RequestDetail, error) {
	f.lastID = id
	if f.err != nil {
		return nil, f.err
	}
	return &models.RequestDetail{EnrollmentRequest: models.EnrollmentRequest{ID: id}}, nil
}

type responseEnvelope struct {
	Data       interface{}            `json:"data"`
	Meta       map[string]interface{} `json:"meta"`
	Pagination map[string]interface{} `json:"pagination"`
	Error      *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Status  int    `json:"status"`
	} `json:"error"`
}

func (e responseEnvelope) object() map[string]interface{} {
	m, _ := e.Data.(map[string]interface{})
	return m
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) responseEnvelope {
	t.Helper()
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return envelope
}

func jsonRequest(method, target string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestRequestHandlerApproveWithoutBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	wf := &fakeWorkflow{}
	handler := NewRequestHandler(wf)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/requests/req-1/approve", nil)
	c.Params = gin.Params{{Key: "id", Value: "req-1"}}

	handler.Approve(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "req-1", wf.lastID)
	assert.Empty(t, wf.lastDecision.Comment)
	assert.Equal(t, "approved", decodeEnvelope(t, rec).object()["status"])
}

func TestRequestHandlerApproveForwardsCommentAndVersion(t *testing.T) {
	gin.SetMode(gin.TestMode)
	wf := &fakeWorkflow{}
	handler := NewRequestHandler(wf)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = jsonRequest(http.MethodPost, "/requests/req-1/approve", map[string]interface{}{"comment": "welcome", "version": 2})
	c.Params = gin.Params{{Key: "id", Value: "req-1"}}

	handler.Approve(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "welcome", wf.lastDecision.Comment)
	require.NotNil(t, wf.lastDecision.Version)
	assert.Equal(t, 2, *wf.lastDecision.Version)
}

func TestRequestHandlerRejectMalformedBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewRequestHandler(&fakeWorkflow{})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/requests/req-1/reject", bytes.NewBufferString("{broken"))
	c.Params = gin.Params{{Key: "id", Value: "req-1"}}

	handler.Reject(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRequestHandlerMapsWorkflowErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"invalid transition", appErrors.Clone(appErrors.ErrInvalidTransition, "cannot approve a rejected request"), http.StatusConflict, "INVALID_TRANSITION"},
		{"stale version", appErrors.Clone(appErrors.ErrConflict, "request was modified concurrently"), http.StatusConflict, "CONFLICT"},
		{"missing request", appErrors.Clone(appErrors.ErrNotFound, "request not found"), http.StatusNotFound, "NOT_FOUND"},
		{"bad status", appErrors.Clone(appErrors.ErrValidation, "status must be approved or rejected"), http.StatusBadRequest, "VALIDATION_ERROR"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := NewRequestHandler(&fakeWorkflow{err: tc.err})

			rec := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(rec)
			c.Request = jsonRequest(http.MethodPut, "/requests/req-1/status", dto.ChangeStatusRequest{Status: "approved"})
			c.Params = gin.Params{{Key: "id", Value: "req-1"}}

			handler.ChangeStatus(c)

			assert.Equal(t, tc.status, rec.Code)
			envelope := decodeEnvelope(t, rec)
			require.NotNil(t, envelope.Error)
			assert.Equal(t, tc.code, envelope.Error.Code)
		})
	}
}

func TestRequestHandlerAssignCourse(t *testing.T) {
	gin.SetMode(gin.TestMode)
	wf := &fakeWorkflow{}
	handler := NewRequestHandler(wf)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = jsonRequest(http.MethodPut, "/requests/req-1/assign-course", dto.AssignCourseRequest{NewCourseID: "course-2", Comment: "moved"})
	c.Params = gin.Params{{Key: "id", Value: "req-1"}}

	handler.AssignCourse(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "course-2", wf.lastAssign.NewCourseID)
	assert.Equal(t, "moved", wf.lastAssign.Comment)
	assert.Equal(t, "course-2", decodeEnvelope(t, rec).object()["courseId"])
}

func TestRequestHandlerListFilters(t *testing.T) {
	gin.SetMode(gin.TestMode)
	wf := &fakeWorkflow{}
	handler := NewRequestHandler(wf)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/requests?status=PENDING&courseId=course-1&email=a@b.c&page=2&limit=5", nil)

	handler.List(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.RequestStatusPending, wf.lastFilter.Status)
	assert.Equal(t, "course-1", wf.lastFilter.CourseID)
	assert.Equal(t, "a@b.c", wf.lastFilter.Email)
	assert.Equal(t, 2, wf.lastFilter.Page)
	assert.Equal(t, 5, wf.lastFilter.PageSize)
	assert.EqualValues(t, 1, decodeEnvelope(t, rec).Pagination["totalCount"])
}

func TestEnrollmentHandlerSubmitAndCheck(t *testing.T) {
	gin.SetMode(gin.TestMode)
	wf := &fakeWorkflow{enrolled: true}
	handler := NewEnrollmentHandler(wf)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = jsonRequest(http.MethodPost, "/enroll", dto.SubmitEnrollmentRequest{
		FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com", CourseID: "course-1",
	})
	handler.Submit(c)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "ada@example.com", wf.lastSubmit.Email)
	assert.Equal(t, "pending", decodeEnvelope(t, rec).object()["status"])

	rec = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(rec)
	c.Request = jsonRequest(http.MethodPost, "/check-enrollment", dto.CheckEnrollmentRequest{Email: "ada@example.com", CourseID: "course-1"})
	handler.CheckEnrollment(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeEnvelope(t, rec).object()["enrolled"])
}

func TestEnrollmentHandlerSubmitPreconditionFailure(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewEnrollmentHandler(&fakeWorkflow{err: appErrors.Clone(appErrors.ErrPreconditionFailed, "course is closed")})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = jsonRequest(http.MethodPost, "/enroll", dto.SubmitEnrollmentRequest{Email: "x@example.com", CourseID: "c"})
	handler.Submit(c)

	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)
}
