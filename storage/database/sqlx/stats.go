// Package sqlxrepos holds the reporting queries, written in plain SQL over sqlx.
package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core/coursework"
	"github.com/trezcool/darasa/core/dashboard"
	"github.com/trezcool/darasa/core/user"
	"github.com/trezcool/darasa/storage/database"
)

const recentEnrollmentsQuery = `
SELECT e.id, e.user_id, u.name AS student_name, u.email AS student_email,
       e.course_id, c.title AS course_title, e.status, e.created_at
FROM enrollments e
JOIN users u ON u.id = e.user_id
JOIN courses c ON c.id = e.course_id
ORDER BY e.created_at DESC, e.id ASC
LIMIT ?`

type statsRepository struct {
	db *sqlx.DB
}

var _ dashboard.Repository = (*statsRepository)(nil)

func NewStatsRepository(db *database.DB) *statsRepository {
	return &statsRepository{db: db.Sqlx}
}

func (repo *statsRepository) count(ctx context.Context, query string, args ...interface{}) (int64, error) {
	var n int64
	err := repo.db.GetContext(ctx, &n, repo.db.Rebind(query), args...)
	return n, errors.WithStack(err)
}

func (repo *statsRepository) CountStudents(ctx context.Context) (int64, error) {
	return repo.count(ctx, "SELECT COUNT(*) FROM users WHERE role = ?", user.RoleStudent.String())
}

func (repo *statsRepository) CountEnrollments(ctx context.Context) (int64, error) {
	return repo.count(ctx, "SELECT COUNT(*) FROM enrollments")
}

func (repo *statsRepository) CountPayments(ctx context.Context) (int64, error) {
	return repo.count(ctx, "SELECT COUNT(*) FROM payments")
}

func (repo *statsRepository) CountAssignments(ctx context.Context) (int64, error) {
	return repo.count(ctx, "SELECT COUNT(*) FROM assignments")
}

func (repo *statsRepository) CountPendingSubmissions(ctx context.Context) (int64, error) {
	return repo.count(ctx, "SELECT COUNT(*) FROM submissions WHERE status = ?", coursework.SubmissionPending)
}

func (repo *statsRepository) RecentEnrollments(ctx context.Context, limit int) ([]dashboard.RecentEnrollment, error) {
	recent := make([]dashboard.RecentEnrollment, 0, limit)
	err := repo.db.SelectContext(ctx, &recent, repo.db.Rebind(recentEnrollmentsQuery), limit)
	return recent, errors.Wrap(err, "listing recent enrollments")
}
