package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-enrollment-api/internal/models"
	"github.com/noah-isme/course-enrollment-api/pkg/response"
)

type studentService interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.Student, error)
}

// StudentHandler exposes student endpoints.
type StudentHandler struct {
	students studentService
}

// NewStudentHandler constructs StudentHandler.
func NewStudentHandler(students studentService) *StudentHandler {
	return &StudentHandler{students: students}
}

// List godoc
// @Summary List students with enrolled courses
// @Tags Students
// @Produce json
// @Param status query string false "active or inactive"
// @Param level query string false "Student level"
// @Param search query string false "Search by name or email"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /students [get]
func (h *StudentHandler) List(c *gin.Context) {
	filter := models.StudentFilter{
		Status: models.StudentStatus(strings.ToLower(strings.TrimSpace(c.Query("status")))),
		Level:  strings.TrimSpace(c.Query("level")),
		Search: strings.TrimSpace(c.Query("search")),
	}
	filter.Page, filter.PageSize = pageParams(c)

	students, pagination, err := h.students.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, students, pagination)
}

// Get godoc
// @Summary Get student detail
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id} [get]
func (h *StudentHandler) Get(c *gin.Context) {
	student, err := h.students.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student, nil)
}
