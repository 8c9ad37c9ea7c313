package service

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/course-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/course-enrollment-api/pkg/errors"
	"github.com/noah-isme/course-enrollment-api/pkg/logger"
	"github.com/noah-isme/course-enrollment-api/pkg/mailer"
)

const notificationTimeout = 15 * time.Second

type settingStore interface {
	Get(ctx context.Context, key string) (*models.Setting, error)
	Upsert(ctx context.Context, setting *models.Setting) error
}

// NotificationOptions configures outgoing email content.
type NotificationOptions struct {
	DefaultEnabled bool
	AdminRecipient string
	FrontendURL    string
	Signature      string
}

// NotificationService is the best-effort notification gateway used after workflow commits.
type NotificationService struct {
	settings settingStore
	sender   mailer.Sender
	opts     NotificationOptions
	metrics  *MetricsService
	logger   *zap.Logger
}

// NewNotificationService constructs the service.
func NewNotificationService(settings settingStore, sender mailer.Sender, opts NotificationOptions, metrics *MetricsService, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{settings: settings, sender: sender, opts: opts, metrics: metrics, logger: logger}
}

// Enabled reports the persisted admin toggle, falling back to the configured default.
func (s *NotificationService) Enabled(ctx context.Context) (bool, error) {
	setting, err := s.settings.Get(ctx, models.SettingAdminNotifications)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return s.opts.DefaultEnabled, nil
		}
		return false, appErrors.Internal(err, "failed to load notification setting")
	}
	enabled, err := strconv.ParseBool(setting.Value)
	if err != nil {
		s.logger.Warn("invalid notification setting value, using default", zap.String("value", setting.Value))
		return s.opts.DefaultEnabled, nil
	}
	return enabled, nil
}

// SetEnabled persists the admin toggle.
func (s *NotificationService) SetEnabled(ctx context.Context, enabled bool, actor string) (bool, error) {
	setting := &models.Setting{
		Key:         models.SettingAdminNotifications,
		Value:       strconv.FormatBool(enabled),
		Type:        models.SettingTypeBoolean,
		Description: "Send emails on new submissions and approvals",
	}
	if actor != "" {
		setting.UpdatedBy = &actor
	}
	if err := s.settings.Upsert(ctx, setting); err != nil {
		return false, appErrors.Internal(err, "failed to update notification setting")
	}
	return enabled, nil
}

// NotifySubmission emails the administrator about a new request when the toggle is on.
func (s *NotificationService) NotifySubmission(ctx context.Context, req *models.EnrollmentRequest, course *models.Course) {
	if s.opts.AdminRecipient == "" {
		s.record(ctx, mailer.TemplateSubmission, "skipped", "", nil)
		return
	}
	if !s.gate(ctx, mailer.TemplateSubmission) {
		return
	}
	s.deliver(ctx, mailer.TemplateSubmission, s.opts.AdminRecipient, s.data(req, course, ""))
}

// NotifyApproval emails the applicant when the toggle is on. A comment adds the reassignment note.
func (s *NotificationService) NotifyApproval(ctx context.Context, req *models.EnrollmentRequest, course *models.Course, comment string) {
	if !s.gate(ctx, mailer.TemplateApproval) {
		return
	}
	s.deliver(ctx, mailer.TemplateApproval, req.Email, s.data(req, course, comment))
}

// NotifyRejection emails the applicant unconditionally.
func (s *NotificationService) NotifyRejection(ctx context.Context, req *models.EnrollmentRequest, course *models.Course) {
	s.deliver(ctx, mailer.TemplateRejection, req.Email, s.data(req, course, ""))
}

func (s *NotificationService) gate(ctx context.Context, tmpl mailer.Template) bool {
	enabled, err := s.Enabled(ctx)
	if err != nil {
		s.record(ctx, tmpl, "failed", "", err)
		return false
	}
	if !enabled {
		s.record(ctx, tmpl, "disabled", "", nil)
	}
	return enabled
}

func (s *NotificationService) deliver(ctx context.Context, tmpl mailer.Template, to string, data mailer.Data) {
	subject, body, err := mailer.Render(tmpl, data)
	if err != nil {
		s.record(ctx, tmpl, "failed", to, err)
		return
	}
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notificationTimeout)
	defer cancel()
	if err := s.sender.Send(sendCtx, mailer.Message{To: to, Subject: subject, HTML: body, Template: tmpl}); err != nil {
		s.record(ctx, tmpl, "failed", to, err)
		return
	}
	s.record(ctx, tmpl, "sent", to, nil)
}

func (s *NotificationService) record(ctx context.Context, tmpl mailer.Template, outcome, to string, err error) {
	s.metrics.RecordNotification(string(tmpl), outcome)
	if err != nil {
		logger.WithRequest(ctx, s.logger).Warn("notification failed",
			zap.String("template", string(tmpl)),
			zap.String("recipient", to),
			zap.Error(err),
		)
	}
}

func (s *NotificationService) data(req *models.EnrollmentRequest, course *models.Course, comment string) mailer.Data {
	data := mailer.Data{
		Request: mailer.RequestData{
			FirstName:    req.FirstName,
			LastName:     req.LastName,
			Email:        req.Email,
			Phone:        req.Phone,
			Age:          req.Age,
			StudentLevel: req.StudentLevel,
			Comment:      req.Comment,
		},
		Comment:     comment,
		FrontendURL: s.opts.FrontendURL,
		Signature:   s.opts.Signature,
	}
	if course != nil {
		data.Course = mailer.CourseData{
			Title:       course.Title,
			Level:       string(course.Level),
			Duration:    course.Duration,
			Term:        course.Term,
			Year:        course.Year,
			StartDate:   course.StartDate,
			EndDate:     course.EndDate,
			Location:    deref(course.Location),
			MeetingTime: deref(course.MeetingTime),
			Instructor:  deref(course.Instructor),
		}
	}
	return data
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
