package dashboard

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// RecentLimit is the number of enrollments listed on the dashboard.
const RecentLimit = 5

type (
	RecentEnrollment struct {
		ID           string    `json:"id" db:"id"`
		UserID       string    `json:"user_id" db:"user_id"`
		StudentName  string    `json:"student_name" db:"student_name"`
		StudentEmail string    `json:"student_email" db:"student_email"`
		CourseID     string    `json:"course_id" db:"course_id"`
		CourseTitle  string    `json:"course_title" db:"course_title"`
		Status       string    `json:"status" db:"status"`
		CreatedAt    time.Time `json:"created_at" db:"created_at"`
	}

	Stats struct {
		StudentCount           int64              `json:"student_count"`
		EnrollmentCount        int64              `json:"enrollment_count"`
		PaymentCount           int64              `json:"payment_count"`
		AssignmentCount        int64              `json:"assignment_count"`
		PendingSubmissionCount int64              `json:"pending_submission_count"`
		RecentEnrollments      []RecentEnrollment `json:"recent_enrollments"`
	}

	// Repository is a read model; every method is independent of the others.
	Repository interface {
		CountStudents(ctx context.Context) (int64, error)
		CountEnrollments(ctx context.Context) (int64, error)
		CountPayments(ctx context.Context) (int64, error)
		CountAssignments(ctx context.Context) (int64, error)
		CountPendingSubmissions(ctx context.Context) (int64, error)
		// RecentEnrollments returns the latest enrollments, newest first, ties in insertion order.
		RecentEnrollments(ctx context.Context, limit int) ([]RecentEnrollment, error)
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// ComputeStats runs the six dashboard reads concurrently and joins them.
func (svc *Service) ComputeStats(ctx context.Context) (Stats, error) {
	var stats Stats
	g, gctx := errgroup.WithContext(ctx)

	count := func(dst *int64, name string, fn func(context.Context) (int64, error)) {
		g.Go(func() error {
			n, err := fn(gctx)
			if err != nil {
				return errors.Wrapf(err, "counting %s", name)
			}
			*dst = n
			return nil
		})
	}
	count(&stats.StudentCount, "students", svc.repo.CountStudents)
	count(&stats.EnrollmentCount, "enrollments", svc.repo.CountEnrollments)
	count(&stats.PaymentCount, "payments", svc.repo.CountPayments)
	count(&stats.AssignmentCount, "assignments", svc.repo.CountAssignments)
	count(&stats.PendingSubmissionCount, "pending submissions", svc.repo.CountPendingSubmissions)
	g.Go(func() error {
		recent, err := svc.repo.RecentEnrollments(gctx, RecentLimit)
		if err != nil {
			return errors.Wrap(err, "listing recent enrollments")
		}
		stats.RecentEnrollments = recent
		return nil
	})

	if err := g.Wait(); err != nil {
		return Stats{}, err
	}

	sort.SliceStable(stats.RecentEnrollments, func(i, j int) bool {
		return stats.RecentEnrollments[i].CreatedAt.After(stats.RecentEnrollments[j].CreatedAt)
	})
	if len(stats.RecentEnrollments) > RecentLimit {
		stats.RecentEnrollments = stats.RecentEnrollments[:RecentLimit]
	}
	if stats.RecentEnrollments == nil {
		stats.RecentEnrollments = []RecentEnrollment{}
	}
	return stats, nil
}
