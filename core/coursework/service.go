package coursework

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"golang.org/x/sync/errgroup"

	"github.com/trezcool/darasa/core"
)

var (
	// errors
	ErrAssignmentNotFound = KindAssignment.NotFound()
	ErrResourceNotFound   = core.NewNotFoundError("resource")
	ErrSubmissionNotFound = core.NewNotFoundError("submission")
	ErrCourseNotFound     = core.NewNotFoundError("course")

	// maximum number of assignment upserts in flight for one request
	maxConcurrentAssigns = 8
)

type (
	Repository interface {
		// EntityExists reports whether an entity of kind with id exists.
		EntityExists(ctx context.Context, kind EntityKind, id string) (bool, error)
		// AssignUser inserts the (user, entity) link unless it exists; created reports an insert.
		AssignUser(ctx context.Context, kind EntityKind, entityID, userID string) (created bool, err error)
		IsAssigned(ctx context.Context, kind EntityKind, entityID, userID string) (bool, error)
		AssignedUserIDs(ctx context.Context, kind EntityKind, entityID string) ([]string, error)
		CourseExists(ctx context.Context, courseID string) (bool, error)

		CreateAssignment(ctx context.Context, a Assignment) (Assignment, error)
		GetAssignmentByID(ctx context.Context, id string) (Assignment, error)
		QueryAssignments(ctx context.Context, filter AssignmentFilter, ordering ...core.DBOrdering) ([]Assignment, error)
		CreateQuiz(ctx context.Context, q Quiz) (Quiz, error)
		CreateMaterial(ctx context.Context, m Material) (Material, error)

		CreateResource(ctx context.Context, r Resource) (Resource, error)
		GetResourceByID(ctx context.Context, id string) (Resource, error)
		QueryResources(ctx context.Context, assignmentID string) ([]Resource, error)
		DeleteResource(ctx context.Context, id string) error

		CreateSubmission(ctx context.Context, s Submission) (Submission, error)
		GetSubmissionByID(ctx context.Context, id string) (Submission, error)
		QuerySubmissions(ctx context.Context, assignmentID string) ([]Submission, error)
		UpdateSubmission(ctx context.Context, s Submission) (Submission, error)
	}

	// UserChecker resolves which user ids are unknown.
	UserChecker interface {
		MissingIDs(ctx context.Context, ids []string) ([]string, error)
	}

	// EnrollmentChecker tells whether a student may access a course's content.
	EnrollmentChecker interface {
		HasActiveEnrollment(ctx context.Context, userID, courseID string) (bool, error)
	}

	Service struct {
		repo        Repository
		users       UserChecker
		enrollments EnrollmentChecker
		files       core.FileStore
	}
)

func NewService(repo Repository, users UserChecker, enrollments EnrollmentChecker, files core.FileStore) *Service {
	return &Service{repo: repo, users: users, enrollments: enrollments, files: files}
}

// Assign links every user in userIDs to the entity. It is idempotent: already assigned
// users are left untouched and duplicate ids collapse.
// The entity is checked before anything is written; each link is then its own unit of work.
func (svc *Service) Assign(ctx context.Context, kind EntityKind, entityID string, userIDs []string) (AssignResult, error) {
	if !kind.Valid() {
		return AssignResult{}, core.NewValidationError(fmt.Errorf("unknown entity kind %q", kind))
	}
	if !core.IsID(entityID) {
		return AssignResult{}, kind.NotFound()
	}
	exists, err := svc.repo.EntityExists(ctx, kind, entityID)
	if err != nil {
		return AssignResult{}, errors.Wrapf(err, "checking %s", kind)
	}
	if !exists {
		return AssignResult{}, kind.NotFound()
	}

	ids := dedupe(userIDs)
	if len(ids) == 0 {
		return AssignResult{}, nil
	}
	if err = svc.checkUsers(ctx, ids); err != nil {
		return AssignResult{}, err
	}

	var (
		created int64
		g       errgroup.Group
	)
	g.SetLimit(maxConcurrentAssigns)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			ok, err := svc.repo.AssignUser(ctx, kind, entityID, id)
			if err != nil {
				return errors.Wrapf(err, "assigning user %s", id)
			}
			if ok {
				atomic.AddInt64(&created, 1)
			}
			return nil
		})
	}
	if err = g.Wait(); err != nil {
		return AssignResult{}, err
	}
	return AssignResult{AssignedCount: len(ids), CreatedCount: int(created)}, nil
}

type assignees struct {
	StudentIDs []string `json:"student_ids" validate:"ids"`
}

// checkUsers rejects the whole batch when an id is malformed or unknown.
func (svc *Service) checkUsers(ctx context.Context, ids []string) error {
	if err := core.ValidateStruct(assignees{StudentIDs: ids}); err != nil {
		return err
	}

	missing, err := svc.users.MissingIDs(ctx, ids)
	if err != nil {
		return errors.Wrap(err, "checking students")
	}
	if len(missing) > 0 {
		return invalidStudents("unknown student ids", missing)
	}
	return nil
}

func invalidStudents(msg string, ids []string) error {
	msg = msg + ": " + strings.Join(ids, ", ")
	return core.NewValidationError(errors.New(msg), core.FieldError{Field: "student_ids", Error: msg})
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	res := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		res = append(res, id)
	}
	return res
}

func (svc *Service) AssignedUserIDs(ctx context.Context, kind EntityKind, entityID string) ([]string, error) {
	return svc.repo.AssignedUserIDs(ctx, kind, entityID)
}

func (svc *Service) checkCourse(ctx context.Context, courseID string) error {
	exists, err := svc.repo.CourseExists(ctx, courseID)
	if err != nil {
		return errors.Wrap(err, "checking course")
	}
	if !exists {
		return ErrCourseNotFound
	}
	return nil
}

func (svc *Service) CreateAssignment(ctx context.Context, na NewAssignment) (Assignment, error) {
	na.Title = core.CleanString(na.Title)
	na.Description = strings.TrimSpace(na.Description)
	if err := core.ValidateStruct(na); err != nil {
		return Assignment{}, err
	}
	if err := svc.checkCourse(ctx, na.CourseID); err != nil {
		return Assignment{}, err
	}

	now := time.Now().UTC()
	a := Assignment{
		ID:          core.NewID(),
		CourseID:    na.CourseID,
		Title:       na.Title,
		Description: na.Description,
		DueAt:       null.TimeFromPtr(na.DueAt),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if a.DueAt.Valid {
		a.DueAt.Time = a.DueAt.Time.UTC()
	}
	return svc.repo.CreateAssignment(ctx, a)
}

func (svc *Service) GetAssignment(ctx context.Context, id string) (Assignment, error) {
	if !core.IsID(id) {
		return Assignment{}, ErrAssignmentNotFound
	}
	return svc.repo.GetAssignmentByID(ctx, id)
}

func (svc *Service) ListAssignments(ctx context.Context, filter AssignmentFilter, ordering ...core.DBOrdering) ([]Assignment, error) {
	filter.CourseID = core.CleanString(filter.CourseID)
	ordering = core.AllowedOrderings(ordering, AssignmentOrderingFields...)
	return svc.repo.QueryAssignments(ctx, filter, ordering...)
}

func (svc *Service) CreateQuiz(ctx context.Context, nq NewQuiz) (Quiz, error) {
	nq.Title = core.CleanString(nq.Title)
	if err := core.ValidateStruct(nq); err != nil {
		return Quiz{}, err
	}
	for i, q := range nq.Questions {
		if q.Answer >= len(q.Options) {
			fld := fmt.Sprintf("questions[%d].answer", i)
			return Quiz{}, core.NewValidationError(nil, core.FieldError{Field: fld, Error: "answer must be the index of an option"})
		}
	}
	if err := svc.checkCourse(ctx, nq.CourseID); err != nil {
		return Quiz{}, err
	}

	questions, err := json.Marshal(nq.Questions)
	if err != nil {
		return Quiz{}, errors.Wrap(err, "encoding questions")
	}
	now := time.Now().UTC()
	return svc.repo.CreateQuiz(ctx, Quiz{
		ID:        core.NewID(),
		CourseID:  nq.CourseID,
		Title:     nq.Title,
		Questions: questions,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

func (svc *Service) CreateMaterial(ctx context.Context, nm NewMaterial) (Material, error) {
	nm.Title = core.CleanString(nm.Title)
	nm.FileKey = strings.TrimSpace(nm.FileKey)
	if err := core.ValidateStruct(nm); err != nil {
		return Material{}, err
	}
	if err := svc.checkCourse(ctx, nm.CourseID); err != nil {
		return Material{}, err
	}

	now := time.Now().UTC()
	m := Material{
		ID:        core.NewID(),
		CourseID:  nm.CourseID,
		Title:     nm.Title,
		Content:   nm.Content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if nm.FileKey != "" {
		m.FileKey = null.StringFrom(nm.FileKey)
	}
	return svc.repo.CreateMaterial(ctx, m)
}
