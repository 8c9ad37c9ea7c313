package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-enrollment-api/internal/dto"
	"github.com/noah-isme/course-enrollment-api/internal/models"
	"github.com/noah-isme/course-enrollment-api/pkg/response"
)

type enrollmentWorkflow interface {
	Submit(ctx context.Context, payload dto.SubmitEnrollmentRequest) (*models.EnrollmentRequest, error)
	Approve(ctx context.Context, id string, payload dto.DecisionRequest) (*models.EnrollmentRequest, error)
	Reject(ctx context.Context, id string, payload dto.DecisionRequest) (*models.EnrollmentRequest, error)
	ChangeStatus(ctx context.Context, id string, payload dto.ChangeStatusRequest) (*models.EnrollmentRequest, error)
	ReassignCourse(ctx context.Context, id string, payload dto.AssignCourseRequest) (*models.EnrollmentRequest, error)
	CheckEnrollment(ctx context.Context, payload dto.CheckEnrollmentRequest) (bool, error)
	ListRequests(ctx context.Context, filter models.RequestFilter) ([]models.RequestDetail, *models.Pagination, error)
	GetRequest(ctx context.Context, id string) (*models.RequestDetail, error)
}

// EnrollmentHandler serves the public enrollment form.
type EnrollmentHandler struct {
	workflow enrollmentWorkflow
}

// NewEnrollmentHandler constructs the handler.
func NewEnrollmentHandler(workflow enrollmentWorkflow) *EnrollmentHandler {
	return &EnrollmentHandler{workflow: workflow}
}

// Submit godoc
// @Summary Submit an enrollment request
// @Tags Enrollment
// @Accept json
// @Produce json
// @Param payload body dto.SubmitEnrollmentRequest true "Enrollment form"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /enroll [post]
func (h *EnrollmentHandler) Submit(c *gin.Context) {
	var req dto.SubmitEnrollmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	created, err := h.workflow.Submit(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, created)
}

// CheckEnrollment godoc
// @Summary Check whether an email is enrolled in a course
// @Tags Enrollment
// @Accept json
// @Produce json
// @Param payload body dto.CheckEnrollmentRequest true "Lookup"
// @Success 200 {object} response.Envelope
// @Router /check-enrollment [post]
func (h *EnrollmentHandler) CheckEnrollment(c *gin.Context) {
	var req dto.CheckEnrollmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	enrolled, err := h.workflow.CheckEnrollment(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.CheckEnrollmentResponse{Enrolled: enrolled}, nil)
}
