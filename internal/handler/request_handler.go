package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-enrollment-api/internal/dto"
	"github.com/noah-isme/course-enrollment-api/internal/models"
	"github.com/noah-isme/course-enrollment-api/pkg/response"
)

// RequestHandler exposes the admin side of the enrollment workflow.
type RequestHandler struct {
	workflow enrollmentWorkflow
}

// NewRequestHandler constructs the handler.
func NewRequestHandler(workflow enrollmentWorkflow) *RequestHandler {
	return &RequestHandler{workflow: workflow}
}

// List godoc
// @Summary List enrollment requests, newest first
// @Tags Requests
// @Produce json
// @Param status query string false "pending, approved or rejected"
// @Param courseId query string false "Filter by course"
// @Param email query string false "Filter by applicant email"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /requests [get]
func (h *RequestHandler) List(c *gin.Context) {
	filter := models.RequestFilter{
		Status:   models.RequestStatus(strings.ToLower(strings.TrimSpace(c.Query("status")))),
		CourseID: strings.TrimSpace(c.Query("courseId")),
		Email:    strings.TrimSpace(c.Query("email")),
	}
	filter.Page, filter.PageSize = pageParams(c)

	items, pagination, err := h.workflow.ListRequests(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get one enrollment request with its course
// @Tags Requests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /requests/{id} [get]
func (h *RequestHandler) Get(c *gin.Context) {
	detail, err := h.workflow.GetRequest(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, detail)
}

// Approve godoc
// @Summary Approve a pending request
// @Tags Requests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.DecisionRequest false "Optional comment and version"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /requests/{id}/approve [post]
func (h *RequestHandler) Approve(c *gin.Context) {
	var req dto.DecisionRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	updated, err := h.workflow.Approve(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, updated)
}

// Reject godoc
// @Summary Reject a pending request
// @Tags Requests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.DecisionRequest false "Optional version"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /requests/{id}/reject [post]
func (h *RequestHandler) Reject(c *gin.Context) {
	var req dto.DecisionRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	updated, err := h.workflow.Reject(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, updated)
}

// ChangeStatus godoc
// @Summary Flip a decided request between approved and rejected
// @Tags Requests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.ChangeStatusRequest true "Target status"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /requests/{id}/status [put]
func (h *RequestHandler) ChangeStatus(c *gin.Context) {
	var req dto.ChangeStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	updated, err := h.workflow.ChangeStatus(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, updated)
}

// AssignCourse godoc
// @Summary Move a request to another course
// @Tags Requests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.AssignCourseRequest true "Target course"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /requests/{id}/assign-course [put]
func (h *RequestHandler) AssignCourse(c *gin.Context) {
	var req dto.AssignCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	updated, err := h.workflow.ReassignCourse(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, updated)
}
