package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/course-enrollment-api/internal/dto"
	"github.com/noah-isme/course-enrollment-api/internal/models"
	"github.com/noah-isme/course-enrollment-api/internal/repository"
	appErrors "github.com/noah-isme/course-enrollment-api/pkg/errors"
)

const adminDashboardCacheKey = "dash:admin"

type courseStats interface {
	Summary(ctx context.Context) (*repository.CourseSummary, error)
	CountByLevel(ctx context.Context) ([]repository.LevelCount, error)
	GetByIDs(ctx context.Context, ids []string) (map[string]models.Course, error)
}

type studentStats interface {
	Summary(ctx context.Context) (*repository.StudentSummary, error)
}

type requestStats interface {
	CountByStatus(ctx context.Context) ([]repository.StatusCount, error)
	Recent(ctx context.Context, n int) ([]models.EnrollmentRequest, error)
}

// DashboardServiceConfig tunes dashboard behaviour.
type DashboardServiceConfig struct {
	CacheTTL    time.Duration
	RecentLimit int
}

// DashboardServiceParams groups constructor dependencies.
type DashboardServiceParams struct {
	Courses  courseStats
	Students studentStats
	Requests requestStats
	Cache    *CacheService
	Logger   *zap.Logger
	Config   DashboardServiceConfig
}

// DashboardService composes the admin overview.
type DashboardService struct {
	courses  courseStats
	students studentStats
	requests requestStats
	cache    *CacheService
	logger   *zap.Logger
	now      func() time.Time
	cfg      DashboardServiceConfig
}

// NewDashboardService constructs a DashboardService with sane defaults.
func NewDashboardService(params DashboardServiceParams) *DashboardService {
	cfg := params.Config
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if cfg.RecentLimit <= 0 {
		cfg.RecentLimit = 5
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardService{
		courses:  params.Courses,
		students: params.Students,
		requests: params.Requests,
		cache:    params.Cache,
		logger:   logger,
		now:      time.Now,
		cfg:      cfg,
	}
}

// Admin returns the dashboard summary and reports whether it came from cache.
func (s *DashboardService) Admin(ctx context.Context) (*dto.AdminDashboardResponse, bool, error) {
	if summary, hit := s.tryCache(ctx); hit {
		return summary, true, nil
	}

	summary, err := s.compose(ctx)
	if err != nil {
		return nil, false, err
	}
	if err := s.cache.Set(ctx, adminDashboardCacheKey, summary, s.cfg.CacheTTL); err != nil {
		s.logger.Warn("dashboard cache write failed", zap.String("key", adminDashboardCacheKey), zap.Error(err))
	}
	return summary, false, nil
}

// tryCache treats read failures as misses.
func (s *DashboardService) tryCache(ctx context.Context) (*dto.AdminDashboardResponse, bool) {
	var cached dto.AdminDashboardResponse
	hit, err := s.cache.Get(ctx, adminDashboardCacheKey, &cached)
	if err != nil || !hit {
		return nil, false
	}
	return &cached, true
}

func (s *DashboardService) compose(ctx context.Context) (*dto.AdminDashboardResponse, error) {
	courseSummary, err := s.courses.Summary(ctx)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to summarise courses")
	}
	levels, err := s.courses.CountByLevel(ctx)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to count courses by level")
	}
	studentSummary, err := s.students.Summary(ctx)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to summarise students")
	}
	statusCounts, err := s.requests.CountByStatus(ctx)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to count requests")
	}
	recent, err := s.requests.Recent(ctx, s.cfg.RecentLimit)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load recent requests")
	}
	recentDetails, err := expandRequests(ctx, s.courses, recent)
	if err != nil {
		return nil, err
	}

	resp := &dto.AdminDashboardResponse{
		Courses: dto.CourseTotals{
			Total:         courseSummary.Total,
			Open:          courseSummary.Open,
			EnrolledSeats: courseSummary.EnrolledSeats,
			Waitlisted:    courseSummary.Waitlisted,
		},
		Students: dto.StudentTotals{
			Total:  studentSummary.Total,
			Active: studentSummary.Active,
		},
		CoursesByLevel: make([]dto.LevelCount, 0, len(levels)),
		RecentRequests: recentDetails,
		GeneratedAt:    s.now().UTC(),
	}
	for _, lc := range levels {
		resp.CoursesByLevel = append(resp.CoursesByLevel, dto.LevelCount{Level: lc.Level, Count: lc.Count})
	}
	for _, sc := range statusCounts {
		switch sc.Status {
		case models.RequestStatusPending:
			resp.Requests.Pending = sc.Total
		case models.RequestStatusApproved:
			resp.Requests.Approved = sc.Total
		case models.RequestStatusRejected:
			resp.Requests.Rejected = sc.Total
		}
	}
	return resp, nil
}
