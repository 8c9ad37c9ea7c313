package handler

import (
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-enrollment-api/internal/dto"
	"github.com/noah-isme/course-enrollment-api/internal/models"
	"github.com/noah-isme/course-enrollment-api/internal/service"
	"github.com/noah-isme/course-enrollment-api/pkg/canvas"
	appErrors "github.com/noah-isme/course-enrollment-api/pkg/errors"
	"github.com/noah-isme/course-enrollment-api/pkg/response"
)

type courseService interface {
	List(ctx context.Context, filter models.CourseFilter) ([]models.Course, error)
	Get(ctx context.Context, id string) (*models.Course, error)
	Create(ctx context.Context, input dto.CourseInput, files []service.UploadFile) (*models.Course, error)
	Update(ctx context.Context, id string, input dto.CourseInput, files []service.UploadFile) (*models.Course, error)
	Delete(ctx context.Context, id string) error
	CanvasCourse(ctx context.Context, sisID string) (*canvas.Course, error)
}

// CourseHandler exposes catalog endpoints.
type CourseHandler struct {
	courses courseService
}

// NewCourseHandler constructs CourseHandler.
func NewCourseHandler(courses courseService) *CourseHandler {
	return &CourseHandler{courses: courses}
}

// List godoc
// @Summary List courses
// @Tags Courses
// @Produce json
// @Param status query string false "open or closed"
// @Param level query string false "Beginner, Intermediate or Advanced"
// @Param search query string false "Search title, department or instructor"
// @Success 200 {object} response.Envelope
// @Router /courses [get]
func (h *CourseHandler) List(c *gin.Context) {
	filter := models.CourseFilter{
		Status: models.CourseStatus(strings.TrimSpace(c.Query("status"))),
		Level:  models.CourseLevel(strings.TrimSpace(c.Query("level"))),
		Search: strings.TrimSpace(c.Query("search")),
	}
	courses, err := h.courses.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, courses)
}

// Get godoc
// @Summary Get a course with attachments
// @Tags Courses
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /courses/{id} [get]
func (h *CourseHandler) Get(c *gin.Context) {
	course, err := h.courses.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, course)
}

// Create godoc
// @Summary Create a course
// @Description Accepts JSON or multipart/form-data. Multipart files are stored as attachments ahead of the JSON "attachments" field.
// @Tags Courses
// @Accept json,mpfd
// @Produce json
// @Param payload body dto.CourseInput true "Course payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 413 {object} response.Envelope
// @Router /courses [post]
func (h *CourseHandler) Create(c *gin.Context) {
	input, files, err := h.bindCourse(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	course, err := h.courses.Create(c.Request.Context(), input, files)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, course)
}

// Update godoc
// @Summary Replace a course's editable fields and attachment list
// @Tags Courses
// @Accept json,mpfd
// @Produce json
// @Param id path string true "Course ID"
// @Param payload body dto.CourseInput true "Course payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /courses/{id} [put]
func (h *CourseHandler) Update(c *gin.Context) {
	input, files, err := h.bindCourse(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	course, err := h.courses.Update(c.Request.Context(), c.Param("id"), input, files)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, course)
}

// Delete godoc
// @Summary Delete a course without enrollment requests
// @Tags Courses
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /courses/{id} [delete]
func (h *CourseHandler) Delete(c *gin.Context) {
	if err := h.courses.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"success": true})
}

// Canvas godoc
// @Summary Look up a Canvas LMS course by SIS id
// @Tags Courses
// @Produce json
// @Param sisId path string true "SIS course id"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /courses/canvas/{sisId} [get]
func (h *CourseHandler) Canvas(c *gin.Context) {
	course, err := h.courses.CanvasCourse(c.Request.Context(), c.Param("sisId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, course)
}

func (h *CourseHandler) bindCourse(c *gin.Context) (dto.CourseInput, []service.UploadFile, error) {
	var input dto.CourseInput
	if !strings.HasPrefix(c.ContentType(), "multipart/") {
		if err := c.ShouldBindJSON(&input); err != nil {
			return input, nil, invalidPayload(err)
		}
		return input, nil, nil
	}

	form, err := c.MultipartForm()
	if err != nil {
		return input, nil, invalidPayload(err)
	}
	if err := courseInputFromForm(form.Value, &input); err != nil {
		return input, nil, err
	}
	fields := make([]string, 0, len(form.File))
	for field := range form.File {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	var files []service.UploadFile
	for _, field := range fields {
		for _, fh := range form.File[field] {
			files = append(files, uploadFromHeader(fh))
		}
	}
	return input, files, nil
}

func uploadFromHeader(fh *multipart.FileHeader) service.UploadFile {
	return service.UploadFile{
		Filename: fh.Filename,
		Size:     fh.Size,
		Open: func() (io.ReadCloser, error) {
			return fh.Open()
		},
	}
}

// courseInputFromForm maps multipart text fields onto the course payload.
func courseInputFromForm(values map[string][]string, input *dto.CourseInput) error {
	get := func(key string) string {
		if v := values[key]; len(v) > 0 {
			return strings.TrimSpace(v[0])
		}
		return ""
	}
	optional := func(key string) *string {
		if v := get(key); v != "" {
			return &v
		}
		return nil
	}

	input.Title = get("title")
	input.Level = get("level")
	input.Duration = get("duration")
	input.Department = get("department")
	input.Status = get("status")
	input.Term = get("term")
	input.StartDate = get("startDate")
	input.EndDate = get("endDate")
	input.StartTime = optional("startTime")
	input.EndTime = optional("endTime")
	input.MeetingTime = optional("meetingTime")
	input.Location = optional("location")
	input.Description = optional("description")
	input.Instructor = optional("instructor")

	if raw := get("year"); raw != "" {
		year, err := strconv.Atoi(raw)
		if err != nil {
			return appErrors.Clone(appErrors.ErrValidation, "year must be a number")
		}
		input.Year = year
	}
	if raw := get("maxStudents"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			return appErrors.Clone(appErrors.ErrValidation, "maxStudents must be a number")
		}
		input.MaxStudents = &limit
	}
	for _, raw := range values["attachments"] {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		var refs []dto.AttachmentInput
		if err := json.Unmarshal([]byte(raw), &refs); err != nil {
			return appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "attachments must be a JSON array of {name,url}")
		}
		input.Attachments = append(input.Attachments, refs...)
	}
	return nil
}
