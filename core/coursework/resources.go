package coursework

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/user"
)

// ReserveUploadKey hands out a fresh opaque storage key for a resource file along with
// a signed URL the client uploads to directly.
func (svc *Service) ReserveUploadKey(ctx context.Context, ru ReserveUpload) (UploadSlot, error) {
	ru.Filename = CleanFilename(ru.Filename)
	if err := core.ValidateStruct(ru); err != nil {
		return UploadSlot{}, err
	}

	key := resourceKeyPrefix + core.NewID() + "/" + ru.Filename
	signed, err := svc.files.SignUpload(ctx, key, ru.ContentType)
	if err != nil {
		return UploadSlot{}, errors.Wrap(err, "signing upload")
	}
	return UploadSlot{FileKey: key, Upload: signed}, nil
}

// AddResource registers an uploaded file on an assignment.
func (svc *Service) AddResource(ctx context.Context, assignmentID string, nr NewResource) (Resource, error) {
	nr.FileKey = strings.TrimSpace(nr.FileKey)
	nr.Filename = CleanFilename(nr.Filename)
	if err := core.ValidateStruct(nr); err != nil {
		return Resource{}, err
	}
	if !strings.HasPrefix(nr.FileKey, resourceKeyPrefix) || strings.Contains(nr.FileKey, "..") {
		return Resource{}, core.NewValidationError(nil, core.FieldError{Field: "file_key", Error: "invalid file key"})
	}
	if _, err := svc.GetAssignment(ctx, assignmentID); err != nil {
		return Resource{}, err
	}

	return svc.repo.CreateResource(ctx, Resource{
		ID:           core.NewID(),
		AssignmentID: assignmentID,
		FileKey:      nr.FileKey,
		Filename:     nr.Filename,
		CreatedAt:    time.Now().UTC(),
	})
}

func (svc *Service) ListResources(ctx context.Context, assignmentID string) ([]Resource, error) {
	if _, err := svc.GetAssignment(ctx, assignmentID); err != nil {
		return nil, err
	}
	return svc.repo.QueryResources(ctx, assignmentID)
}

// DeleteResource removes the resource row only; the stored object is left behind.
func (svc *Service) DeleteResource(ctx context.Context, id string) error {
	if !core.IsID(id) {
		return ErrResourceNotFound
	}
	return svc.repo.DeleteResource(ctx, id)
}

// ResourceDownloadURL signs a download URL for an assignment resource.
// Admins may download any resource; students need an active enrollment in the assignment's course.
func (svc *Service) ResourceDownloadURL(ctx context.Context, usr user.User, assignmentID, resourceID string) (core.SignedURL, error) {
	a, err := svc.GetAssignment(ctx, assignmentID)
	if err != nil {
		return core.SignedURL{}, err
	}
	if !usr.IsAdmin() {
		enrolled, err := svc.enrollments.HasActiveEnrollment(ctx, usr.ID, a.CourseID)
		if err != nil {
			return core.SignedURL{}, errors.Wrap(err, "checking enrollment")
		}
		if !enrolled {
			return core.SignedURL{}, core.ErrForbidden
		}
	}

	if !core.IsID(resourceID) {
		return core.SignedURL{}, ErrResourceNotFound
	}
	res, err := svc.repo.GetResourceByID(ctx, resourceID)
	if err != nil {
		return core.SignedURL{}, err
	}
	if res.AssignmentID != a.ID {
		return core.SignedURL{}, ErrResourceNotFound
	}

	signed, err := svc.files.SignDownload(ctx, res.FileKey, res.Filename)
	if err != nil {
		return core.SignedURL{}, errors.Wrap(err, "signing download")
	}
	return signed, nil
}

// Submit records a student's work on an assignment they were assigned.
func (svc *Service) Submit(ctx context.Context, usr user.User, assignmentID string, ns NewSubmission) (Submission, error) {
	ns.Content = strings.TrimSpace(ns.Content)
	ns.FileKey = strings.TrimSpace(ns.FileKey)
	if err := core.ValidateStruct(ns); err != nil {
		return Submission{}, err
	}
	if ns.Content == "" && ns.FileKey == "" {
		return Submission{}, core.NewValidationError(nil,
			core.FieldError{Field: "content", Error: "one of content or file_key is required"},
			core.FieldError{Field: "file_key", Error: "one of content or file_key is required"},
		)
	}

	a, err := svc.GetAssignment(ctx, assignmentID)
	if err != nil {
		return Submission{}, err
	}
	assigned, err := svc.repo.IsAssigned(ctx, KindAssignment, a.ID, usr.ID)
	if err != nil {
		return Submission{}, errors.Wrap(err, "checking assignment")
	}
	if !assigned {
		return Submission{}, core.ErrForbidden
	}

	s := Submission{
		ID:           core.NewID(),
		AssignmentID: a.ID,
		UserID:       usr.ID,
		Content:      ns.Content,
		Status:       SubmissionPending,
		CreatedAt:    time.Now().UTC(),
	}
	if ns.FileKey != "" {
		s.FileKey = null.StringFrom(ns.FileKey)
	}
	return svc.repo.CreateSubmission(ctx, s)
}

func (svc *Service) ListSubmissions(ctx context.Context, assignmentID string) ([]Submission, error) {
	if _, err := svc.GetAssignment(ctx, assignmentID); err != nil {
		return nil, err
	}
	return svc.repo.QuerySubmissions(ctx, assignmentID)
}

// Grade marks a submission as graded. Regrading overwrites the previous grade.
func (svc *Service) Grade(ctx context.Context, submissionID string, gs GradeSubmission) (Submission, error) {
	if err := core.ValidateStruct(gs); err != nil {
		return Submission{}, err
	}
	if !core.IsID(submissionID) {
		return Submission{}, ErrSubmissionNotFound
	}
	s, err := svc.repo.GetSubmissionByID(ctx, submissionID)
	if err != nil {
		return Submission{}, err
	}

	s.Status = SubmissionGraded
	s.Grade = null.IntFrom(*gs.Grade)
	s.Feedback = null.NewString(strings.TrimSpace(gs.Feedback), strings.TrimSpace(gs.Feedback) != "")
	s.GradedAt = null.TimeFrom(time.Now().UTC())
	return svc.repo.UpdateSubmission(ctx, s)
}
