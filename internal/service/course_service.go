package service

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/course-enrollment-api/internal/dto"
	"github.com/noah-isme/course-enrollment-api/internal/models"
	"github.com/noah-isme/course-enrollment-api/internal/repository"
	"github.com/noah-isme/course-enrollment-api/pkg/canvas"
	appErrors "github.com/noah-isme/course-enrollment-api/pkg/errors"
	"github.com/noah-isme/course-enrollment-api/pkg/storage"
)

type courseStore interface {
	List(ctx context.Context, filter models.CourseFilter) ([]models.Course, error)
	GetByID(ctx context.Context, id string) (*models.Course, error)
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, course *models.Course) error
	Delete(ctx context.Context, id string) error
}

type uploadStore interface {
	SaveStream(name string, r io.Reader, limit int64) (int64, error)
	Delete(name string) error
}

type canvasClient interface {
	CourseBySISID(ctx context.Context, sisID string) (*canvas.Course, error)
}

// UploadFile is one attachment received in a multipart course form.
type UploadFile struct {
	Filename string
	Size     int64
	Open     func() (io.ReadCloser, error)
}

// UploadOptions restricts accepted attachments.
type UploadOptions struct {
	PublicPath   string
	MaxFileSize  int64
	AllowedMIMEs []string
}

// CourseService handles catalog CRUD and attachment uploads.
type CourseService struct {
	repo      courseStore
	uploads   uploadStore
	canvas    canvasClient
	cache     cacheInvalidator
	validator *validator.Validate
	logger    *zap.Logger
	opts      UploadOptions
}

// NewCourseService constructs the service.
func NewCourseService(repo courseStore, uploads uploadStore, canvas canvasClient, cache cacheInvalidator, validate *validator.Validate, logger *zap.Logger, opts UploadOptions) *CourseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.PublicPath == "" {
		opts.PublicPath = "/uploads"
	}
	return &CourseService{repo: repo, uploads: uploads, canvas: canvas, cache: cache, validator: validate, logger: logger, opts: opts}
}

// List returns courses matching the filter.
func (s *CourseService) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, error) {
	if filter.Level != "" && !filter.Level.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid level filter")
	}
	if filter.Status != "" && filter.Status != models.CourseStatusOpen && filter.Status != models.CourseStatusClosed {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid status filter")
	}
	courses, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list courses")
	}
	return courses, nil
}

// Get returns one course with attachments.
func (s *CourseService) Get(ctx context.Context, id string) (*models.Course, error) {
	course, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Internal(err, "failed to load course")
	}
	return course, nil
}

// Create validates the form, stores uploads and persists the course.
func (s *CourseService) Create(ctx context.Context, input dto.CourseInput, files []UploadFile) (*models.Course, error) {
	if err := s.validator.Struct(input); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	course := &models.Course{}
	applyCourseInput(course, input)

	stored, err := s.storeUploads(files)
	if err != nil {
		return nil, err
	}
	course.Attachments = mergeAttachments(stored, input.Attachments)

	if err := s.repo.Create(ctx, course); err != nil {
		s.discard(stored)
		return nil, appErrors.Internal(err, "failed to create course")
	}
	s.invalidate(ctx)
	return course, nil
}

// Update rewrites the editable fields and replaces the full attachment list.
func (s *CourseService) Update(ctx context.Context, id string, input dto.CourseInput, files []UploadFile) (*models.Course, error) {
	if err := s.validator.Struct(input); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	course, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	applyCourseInput(course, input)

	stored, err := s.storeUploads(files)
	if err != nil {
		return nil, err
	}
	course.Attachments = mergeAttachments(stored, input.Attachments)

	if err := s.repo.Update(ctx, course); err != nil {
		s.discard(stored)
		return nil, appErrors.Internal(err, "failed to update course")
	}
	s.invalidate(ctx)
	return course, nil
}

// Delete removes a course that no request references.
func (s *CourseService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return appErrors.Clone(appErrors.ErrNotFound, "course not found")
		case errors.Is(err, repository.ErrCourseInUse):
			return appErrors.Clone(appErrors.ErrConflict, "course has enrollment requests and cannot be deleted")
		default:
			return appErrors.Internal(err, "failed to delete course")
		}
	}
	s.invalidate(ctx)
	return nil
}

// CanvasCourse proxies a Canvas LMS lookup by SIS course id.
func (s *CourseService) CanvasCourse(ctx context.Context, sisID string) (*canvas.Course, error) {
	if strings.TrimSpace(sisID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "sisId is required")
	}
	course, err := s.canvas.CourseBySISID(ctx, sisID)
	if err != nil {
		if errors.Is(err, canvas.ErrNotFound) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "canvas course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "canvas lookup failed")
	}
	return course, nil
}

func (s *CourseService) storeUploads(files []UploadFile) ([]models.Attachment, error) {
	stored := make([]models.Attachment, 0, len(files))
	for _, file := range files {
		att, err := s.storeUpload(file)
		if err != nil {
			s.discard(stored)
			return nil, err
		}
		stored = append(stored, att)
	}
	return stored, nil
}

func (s *CourseService) storeUpload(file UploadFile) (models.Attachment, error) {
	if s.opts.MaxFileSize > 0 && file.Size > s.opts.MaxFileSize {
		return models.Attachment{}, appErrors.Clone(appErrors.ErrPayloadTooLarge, fmt.Sprintf("%s exceeds the upload size limit", file.Filename))
	}
	src, err := file.Open()
	if err != nil {
		return models.Attachment{}, appErrors.Internal(err, "failed to read upload")
	}
	defer src.Close() //nolint:errcheck

	head := make([]byte, 3072)
	n, err := io.ReadFull(src, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return models.Attachment{}, appErrors.Internal(err, "failed to read upload")
	}
	head = head[:n]
	detected := mimetype.Detect(head)
	if !s.allowed(detected) {
		return models.Attachment{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s has unsupported type %s", file.Filename, detected.String()))
	}

	name := uuid.NewString() + "-" + sanitiseFilename(file.Filename)
	if _, err := s.uploads.SaveStream(name, io.MultiReader(bytes.NewReader(head), src), s.opts.MaxFileSize); err != nil {
		if errors.Is(err, storage.ErrTooLarge) {
			return models.Attachment{}, appErrors.Clone(appErrors.ErrPayloadTooLarge, fmt.Sprintf("%s exceeds the upload size limit", file.Filename))
		}
		return models.Attachment{}, appErrors.Internal(err, "failed to store upload")
	}
	return models.Attachment{Name: file.Filename, URL: path.Join(s.opts.PublicPath, name)}, nil
}

func (s *CourseService) allowed(detected *mimetype.MIME) bool {
	if len(s.opts.AllowedMIMEs) == 0 {
		return true
	}
	for _, allowed := range s.opts.AllowedMIMEs {
		if detected.Is(allowed) {
			return true
		}
	}
	return false
}

func (s *CourseService) discard(stored []models.Attachment) {
	for _, att := range stored {
		name := strings.TrimPrefix(att.URL, strings.TrimSuffix(s.opts.PublicPath, "/")+"/")
		if err := s.uploads.Delete(name); err != nil {
			s.logger.Warn("failed to remove orphaned upload", zap.String("name", name), zap.Error(err))
		}
	}
}

func (s *CourseService) invalidate(ctx context.Context) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, DashboardCachePattern)
	}
}

func applyCourseInput(course *models.Course, input dto.CourseInput) {
	course.Title = strings.TrimSpace(input.Title)
	course.Level = models.CourseLevel(input.Level)
	course.Duration = input.Duration
	course.Department = input.Department
	course.Status = models.CourseStatus(input.Status)
	if course.Status == "" {
		course.Status = models.CourseStatusOpen
	}
	course.Term = input.Term
	course.Year = input.Year
	course.StartDate = input.StartDate
	course.EndDate = input.EndDate
	course.StartTime = input.StartTime
	course.EndTime = input.EndTime
	course.MeetingTime = input.MeetingTime
	course.Location = input.Location
	course.MaxStudents = input.MaxStudents
	course.Description = input.Description
	course.Instructor = input.Instructor
}

// mergeAttachments lists freshly uploaded files first, then the client-supplied references.
func mergeAttachments(uploaded []models.Attachment, existing []dto.AttachmentInput) []models.Attachment {
	out := make([]models.Attachment, 0, len(uploaded)+len(existing))
	out = append(out, uploaded...)
	for _, att := range existing {
		out = append(out, models.Attachment{Name: att.Name, URL: att.URL})
	}
	return out
}

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func sanitiseFilename(name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	base = unsafeFilenameChars.ReplaceAllString(base, "_")
	base = strings.Trim(base, "._")
	if base == "" {
		return "file"
	}
	if len(base) > 100 {
		base = base[len(base)-100:]
	}
	return base
}
