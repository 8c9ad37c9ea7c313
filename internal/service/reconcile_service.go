package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/noah-isme/course-enrollment-api/internal/repository"
	appErrors "github.com/noah-isme/course-enrollment-api/pkg/errors"
)

type counterAuditor interface {
	AuditCounters(ctx context.Context) ([]repository.CounterAudit, error)
}

// ReconcileOptions selects what Reconcile repairs. With neither flag set it only reports.
type ReconcileOptions struct {
	Fix           bool
	ResetWaitlist bool
}

// CounterDrift describes one course whose stored counters disagree with its requests.
type CounterDrift struct {
	CourseID         string `json:"courseId"`
	Title            string `json:"title"`
	Students         int    `json:"students"`
	ApprovedRequests int    `json:"approvedRequests"`
	Waitlist         int    `json:"waitlist"`
	PendingRequests  int    `json:"pendingRequests"`
	StudentsDrift    bool   `json:"studentsDrift"`
	WaitlistShort    bool   `json:"waitlistShort"`
	Repaired         bool   `json:"repaired"`
}

// ReconcileReport summarises a reconciliation run.
type ReconcileReport struct {
	Checked int            `json:"checked"`
	Drifted []CounterDrift `json:"drifted"`
	Fixed   int            `json:"fixed"`
}

// ReconcileService recomputes course counters from the request table.
type ReconcileService struct {
	audit  counterAuditor
	store  enrollmentStore
	cache  cacheInvalidator
	logger *zap.Logger
}

// NewReconcileService constructs the service.
func NewReconcileService(audit counterAuditor, store enrollmentStore, cache cacheInvalidator, logger *zap.Logger) *ReconcileService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReconcileService{audit: audit, store: store, cache: cache, logger: logger}
}

// Reconcile compares every course and optionally repairs all drift in one transaction.
// The enrolled count must equal the approved request count. The waitlist is history dependent,
// so only a waitlist smaller than the pending request count is reported.
func (s *ReconcileService) Reconcile(ctx context.Context, opts ReconcileOptions) (*ReconcileReport, error) {
	rows, err := s.audit.AuditCounters(ctx)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to audit course counters")
	}

	report := &ReconcileReport{Checked: len(rows), Drifted: []CounterDrift{}}
	for _, row := range rows {
		drift := CounterDrift{
			CourseID:         row.CourseID,
			Title:            row.Title,
			Students:         row.Students,
			ApprovedRequests: row.ApprovedCount,
			Waitlist:         row.Waitlist,
			PendingRequests:  row.PendingCount,
			StudentsDrift:    row.Students != row.ApprovedCount,
			WaitlistShort:    row.Waitlist < row.PendingCount,
		}
		if drift.StudentsDrift || drift.WaitlistShort {
			report.Drifted = append(report.Drifted, drift)
		}
	}
	if !opts.Fix && !opts.ResetWaitlist {
		return report, nil
	}

	err = s.store.WithinTx(ctx, func(tx repository.WorkflowTx) error {
		for i := range report.Drifted {
			d := &report.Drifted[i]
			students, waitlist := d.Students, d.Waitlist
			if opts.Fix {
				students = d.ApprovedRequests
			}
			if opts.ResetWaitlist {
				waitlist = d.PendingRequests
			}
			if students == d.Students && waitlist == d.Waitlist {
				continue
			}
			if err := tx.SetCourseCounters(ctx, d.CourseID, students, waitlist); err != nil {
				return err
			}
			d.Repaired = true
			report.Fixed++
		}
		return nil
	})
	if err != nil {
		return nil, appErrors.Internal(err, "failed to repair course counters")
	}
	if report.Fixed > 0 && s.cache != nil {
		s.cache.Invalidate(ctx, DashboardCachePattern)
	}
	s.logger.Info("course counters reconciled", zap.Int("checked", report.Checked), zap.Int("drifted", len(report.Drifted)), zap.Int("fixed", report.Fixed))
	return report, nil
}
