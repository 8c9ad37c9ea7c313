package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/course-enrollment-api/internal/dto"
	"github.com/noah-isme/course-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/course-enrollment-api/pkg/errors"
	"github.com/noah-isme/course-enrollment-api/pkg/export"
)

// Export dataset names accepted by Export.
const (
	ExportStudents    = "students"
	ExportCourses     = "courses"
	ExportEnrollments = "enrollments"
)

type studentExportSource interface {
	ListAll(ctx context.Context) ([]models.Student, error)
}

type courseExportSource interface {
	List(ctx context.Context, filter models.CourseFilter) ([]models.Course, error)
}

type requestExportSource interface {
	ListAll(ctx context.Context) ([]models.EnrollmentRequest, error)
}

// ExportSources groups the record readers behind each dataset.
type ExportSources struct {
	Students studentExportSource
	Courses  courseExportSource
	Requests requestExportSource
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
}

type urlSigner interface {
	Generate(relPath string) (string, time.Time, error)
	Parse(token string) (string, error)
}

type renderer interface {
	Render(data export.Dataset) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
}

// ExportService snapshots records into CSV or PDF files and issues signed download links.
type ExportService struct {
	source  ExportSources
	storage fileStorage
	signer  urlSigner
	csv     renderer
	pdf     renderer
	logger  *zap.Logger
	cfg     ExportConfig
}

// NewExportService constructs an ExportService.
func NewExportService(source ExportSources, storage fileStorage, signer urlSigner, cfg ExportConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		source:  source,
		storage: storage,
		signer:  signer,
		csv:     export.NewCSVExporter(),
		pdf:     export.NewPDFExporter(),
		logger:  logger,
		cfg:     cfg,
	}
}

// Export writes <dataset>.<ext>, overwriting the previous snapshot.
func (s *ExportService) Export(ctx context.Context, dataset, rawFormat string) (*dto.ExportResult, error) {
	format, err := export.ParseFormat(strings.ToLower(rawFormat))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "format must be csv or pdf")
	}
	data, err := s.buildDataset(ctx, dataset)
	if err != nil {
		return nil, err
	}

	var payload []byte
	switch format {
	case export.FormatPDF:
		payload, err = s.pdf.Render(data)
	default:
		payload, err = s.csv.Render(data)
	}
	if err != nil {
		return nil, appErrors.Internal(err, "failed to render export")
	}

	filename := fmt.Sprintf("%s.%s", dataset, format.Extension())
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to write export")
	}
	token, expiresAt, err := s.signer.Generate(relPath)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to sign export link")
	}

	s.logger.Info("export written", zap.String("file", relPath), zap.Int("rows", len(data.Rows)))
	return &dto.ExportResult{
		Success:   true,
		File:      "/exports/" + relPath,
		URL:       s.downloadURL(token),
		Format:    string(format),
		Rows:      len(data.Rows),
		ExpiresAt: expiresAt,
	}, nil
}

// Open resolves a signed token to the stored export file.
func (s *ExportService) Open(token string) (*os.File, string, string, error) {
	relPath, err := s.signer.Parse(token)
	if err != nil {
		return nil, "", "", appErrors.Wrap(err, appErrors.ErrForbidden.Code, appErrors.ErrForbidden.Status, "invalid or expired download link")
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, "", "", appErrors.Clone(appErrors.ErrNotFound, "export file not found")
		}
		return nil, "", "", appErrors.Internal(err, "failed to open export")
	}
	contentType := export.FormatCSV.ContentType()
	if strings.HasSuffix(relPath, "."+export.FormatPDF.Extension()) {
		contentType = export.FormatPDF.ContentType()
	}
	return file, path.Base(relPath), contentType, nil
}

func (s *ExportService) downloadURL(token string) string {
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	return fmt.Sprintf("%s/exports/download?token=%s", prefix, url.QueryEscape(token))
}

func (s *ExportService) buildDataset(ctx context.Context, dataset string) (export.Dataset, error) {
	switch dataset {
	case ExportStudents:
		return s.studentsDataset(ctx)
	case ExportCourses:
		return s.coursesDataset(ctx)
	case ExportEnrollments:
		return s.enrollmentsDataset(ctx)
	default:
		return export.Dataset{}, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("unknown export %q", dataset))
	}
}

func (s *ExportService) studentsDataset(ctx context.Context) (export.Dataset, error) {
	students, err := s.source.Students.ListAll(ctx)
	if err != nil {
		return export.Dataset{}, appErrors.Internal(err, "failed to load students")
	}
	data := export.Dataset{
		Title: "Students",
		Columns: []export.Column{
			{Key: "id", Title: "ID"},
			{Key: "firstName", Title: "First Name"},
			{Key: "lastName", Title: "Last Name"},
			{Key: "email", Title: "Email"},
			{Key: "phone", Title: "Phone"},
			{Key: "status", Title: "Status"},
			{Key: "studentLevel", Title: "Level"},
			{Key: "enrollmentDate", Title: "Enrollment Date"},
		},
		Rows: make([]map[string]string, 0, len(students)),
	}
	for _, st := range students {
		data.Rows = append(data.Rows, map[string]string{
			"id":             st.ID,
			"firstName":      st.FirstName,
			"lastName":       st.LastName,
			"email":          st.Email,
			"phone":          st.Phone,
			"status":         string(st.Status),
			"studentLevel":   st.StudentLevel,
			"enrollmentDate": formatTimestamp(st.EnrollmentDate),
		})
	}
	return data, nil
}

func (s *ExportService) coursesDataset(ctx context.Context) (export.Dataset, error) {
	courses, err := s.source.Courses.List(ctx, models.CourseFilter{})
	if err != nil {
		return export.Dataset{}, appErrors.Internal(err, "failed to load courses")
	}
	data := export.Dataset{
		Title: "Courses",
		Columns: []export.Column{
			{Key: "id", Title: "ID"},
			{Key: "name", Title: "Name"},
			{Key: "description", Title: "Description"},
			{Key: "level", Title: "Level"},
			{Key: "students", Title: "Students"},
			{Key: "waitlist", Title: "Waitlist"},
			{Key: "maxStudents", Title: "Max Students"},
			{Key: "year", Title: "Year"},
		},
		Rows: make([]map[string]string, 0, len(courses)),
	}
	for _, c := range courses {
		maxStudents := ""
		if c.MaxStudents != nil {
			maxStudents = strconv.Itoa(*c.MaxStudents)
		}
		data.Rows = append(data.Rows, map[string]string{
			"id":          c.ID,
			"name":        c.Title,
			"description": deref(c.Description),
			"level":       string(c.Level),
			"students":    strconv.Itoa(c.Students),
			"waitlist":    strconv.Itoa(c.Waitlist),
			"maxStudents": maxStudents,
			"year":        strconv.Itoa(c.Year),
		})
	}
	return data, nil
}

func (s *ExportService) enrollmentsDataset(ctx context.Context) (export.Dataset, error) {
	requests, err := s.source.Requests.ListAll(ctx)
	if err != nil {
		return export.Dataset{}, appErrors.Internal(err, "failed to load enrollment requests")
	}
	courses, err := s.source.Courses.List(ctx, models.CourseFilter{})
	if err != nil {
		return export.Dataset{}, appErrors.Internal(err, "failed to load courses")
	}
	titles := make(map[string]string, len(courses))
	for _, c := range courses {
		titles[c.ID] = c.Title
	}
	data := export.Dataset{
		Title: "Enrollments",
		Columns: []export.Column{
			{Key: "id", Title: "ID"},
			{Key: "firstName", Title: "First Name"},
			{Key: "lastName", Title: "Last Name"},
			{Key: "email", Title: "Email"},
			{Key: "courseName", Title: "Course"},
			{Key: "studentLevel", Title: "Level"},
			{Key: "status", Title: "Status"},
			{Key: "createdAt", Title: "Requested At"},
		},
		Rows: make([]map[string]string, 0, len(requests)),
	}
	for _, r := range requests {
		data.Rows = append(data.Rows, map[string]string{
			"id":           r.ID,
			"firstName":    r.FirstName,
			"lastName":     r.LastName,
			"email":        r.Email,
			"courseName":   titles[r.CourseID],
			"studentLevel": r.StudentLevel,
			"status":       string(r.Status),
			"createdAt":    formatTimestamp(r.CreatedAt),
		})
	}
	return data, nil
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
