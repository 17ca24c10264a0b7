package gormrepos

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/course"
	"github.com/trezcool/darasa/core/coursework"
	"github.com/trezcool/darasa/storage/database"
)

type courseworkRepository struct {
	db *gorm.DB
}

var _ coursework.Repository = (*courseworkRepository)(nil)

func NewCourseworkRepository(db *database.DB) *courseworkRepository {
	return &courseworkRepository{db: db.Gorm}
}

// entityModel returns the model of the entity table of kind.
func entityModel(kind coursework.EntityKind) (interface{}, error) {
	switch kind {
	case coursework.KindAssignment:
		return &coursework.Assignment{}, nil
	case coursework.KindQuiz:
		return &coursework.Quiz{}, nil
	case coursework.KindMaterial:
		return &coursework.Material{}, nil
	}
	return nil, errors.Errorf("unknown entity kind %q", kind)
}

// linkRow returns the (user, entity) link row of kind and the name of its entity column.
func linkRow(kind coursework.EntityKind, entityID, userID string, now time.Time) (interface{}, string, error) {
	switch kind {
	case coursework.KindAssignment:
		return &coursework.StudentAssignment{UserID: userID, AssignmentID: entityID, CreatedAt: now}, "assignment_id", nil
	case coursework.KindQuiz:
		return &coursework.StudentQuizAssignment{UserID: userID, QuizID: entityID, CreatedAt: now}, "quiz_id", nil
	case coursework.KindMaterial:
		return &coursework.StudentMaterialAssignment{UserID: userID, MaterialID: entityID, CreatedAt: now}, "material_id", nil
	}
	return nil, "", errors.Errorf("unknown entity kind %q", kind)
}

func (repo *courseworkRepository) EntityExists(ctx context.Context, kind coursework.EntityKind, id string) (bool, error) {
	model, err := entityModel(kind)
	if err != nil {
		return false, err
	}
	var n int64
	err = repo.db.WithContext(ctx).Model(model).Where("id = ?", id).Count(&n).Error
	return n > 0, errors.Wrapf(err, "checking %s", kind)
}

func (repo *courseworkRepository) AssignUser(ctx context.Context, kind coursework.EntityKind, entityID, userID string) (bool, error) {
	row, _, err := linkRow(kind, entityID, userID, time.Now().UTC())
	if err != nil {
		return false, err
	}
	res := repo.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(row)
	if res.Error != nil {
		return false, errors.Wrapf(res.Error, "assigning %s", kind)
	}
	return res.RowsAffected > 0, nil
}

func (repo *courseworkRepository) IsAssigned(ctx context.Context, kind coursework.EntityKind, entityID, userID string) (bool, error) {
	row, col, err := linkRow(kind, entityID, userID, time.Time{})
	if err != nil {
		return false, err
	}
	var n int64
	err = repo.db.WithContext(ctx).Model(row).Where("user_id = ? AND "+col+" = ?", userID, entityID).Count(&n).Error
	return n > 0, errors.Wrapf(err, "checking %s assignment", kind)
}

func (repo *courseworkRepository) AssignedUserIDs(ctx context.Context, kind coursework.EntityKind, entityID string) ([]string, error) {
	row, col, err := linkRow(kind, entityID, "", time.Time{})
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0)
	err = repo.db.WithContext(ctx).Model(row).Where(col+" = ?", entityID).Order("created_at ASC, user_id ASC").Pluck("user_id", &ids).Error
	return ids, errors.Wrapf(err, "listing %s assignees", kind)
}

func (repo *courseworkRepository) CourseExists(ctx context.Context, courseID string) (bool, error) {
	var n int64
	err := repo.db.WithContext(ctx).Model(&course.Course{}).Where("id = ?", courseID).Count(&n).Error
	return n > 0, errors.Wrap(err, "checking course")
}

func (repo *courseworkRepository) CreateAssignment(ctx context.Context, a coursework.Assignment) (coursework.Assignment, error) {
	err := repo.db.WithContext(ctx).Create(&a).Error
	return a, errors.Wrap(err, "creating assignment")
}

func (repo *courseworkRepository) GetAssignmentByID(ctx context.Context, id string) (coursework.Assignment, error) {
	var a coursework.Assignment
	if err := repo.db.WithContext(ctx).Where("id = ?", id).Take(&a).Error; err != nil {
		if isNotFound(err) {
			return coursework.Assignment{}, coursework.ErrAssignmentNotFound
		}
		return coursework.Assignment{}, errors.Wrap(err, "getting assignment")
	}
	return a, nil
}

func (repo *courseworkRepository) QueryAssignments(ctx context.Context, filter coursework.AssignmentFilter, ordering ...core.DBOrdering) ([]coursework.Assignment, error) {
	q := repo.db.WithContext(ctx).Model(&coursework.Assignment{})
	if filter.CourseID != "" {
		q = q.Where("course_id = ?", filter.CourseID)
	}
	assignments := make([]coursework.Assignment, 0)
	err := ordered(q, "created_at DESC, id ASC", ordering...).Find(&assignments).Error
	return assignments, errors.Wrap(err, "querying assignments")
}

func (repo *courseworkRepository) CreateQuiz(ctx context.Context, q coursework.Quiz) (coursework.Quiz, error) {
	err := repo.db.WithContext(ctx).Create(&q).Error
	return q, errors.Wrap(err, "creating quiz")
}

func (repo *courseworkRepository) CreateMaterial(ctx context.Context, m coursework.Material) (coursework.Material, error) {
	err := repo.db.WithContext(ctx).Create(&m).Error
	return m, errors.Wrap(err, "creating material")
}

func (repo *courseworkRepository) CreateResource(ctx context.Context, r coursework.Resource) (coursework.Resource, error) {
	err := repo.db.WithContext(ctx).Create(&r).Error
	return r, errors.Wrap(err, "creating resource")
}

func (repo *courseworkRepository) GetResourceByID(ctx context.Context, id string) (coursework.Resource, error) {
	var r coursework.Resource
	if err := repo.db.WithContext(ctx).Where("id = ?", id).Take(&r).Error; err != nil {
		if isNotFound(err) {
			return coursework.Resource{}, coursework.ErrResourceNotFound
		}
		return coursework.Resource{}, errors.Wrap(err, "getting resource")
	}
	return r, nil
}

func (repo *courseworkRepository) QueryResources(ctx context.Context, assignmentID string) ([]coursework.Resource, error) {
	resources := make([]coursework.Resource, 0)
	err := repo.db.WithContext(ctx).
		Where("assignment_id = ?", assignmentID).
		Order("created_at ASC, id ASC").
		Find(&resources).Error
	return resources, errors.Wrap(err, "querying resources")
}

func (repo *courseworkRepository) DeleteResource(ctx context.Context, id string) error {
	res := repo.db.WithContext(ctx).Where("id = ?", id).Delete(&coursework.Resource{})
	if res.Error != nil {
		return errors.Wrap(res.Error, "deleting resource")
	}
	if res.RowsAffected == 0 {
		return coursework.ErrResourceNotFound
	}
	return nil
}

func (repo *courseworkRepository) CreateSubmission(ctx context.Context, s coursework.Submission) (coursework.Submission, error) {
	err := repo.db.WithContext(ctx).Create(&s).Error
	return s, errors.Wrap(err, "creating submission")
}

func (repo *courseworkRepository) GetSubmissionByID(ctx context.Context, id string) (coursework.Submission, error) {
	var s coursework.Submission
	if err := repo.db.WithContext(ctx).Where("id = ?", id).Take(&s).Error; err != nil {
		if isNotFound(err) {
			return coursework.Submission{}, coursework.ErrSubmissionNotFound
		}
		return coursework.Submission{}, errors.Wrap(err, "getting submission")
	}
	return s, nil
}

func (repo *courseworkRepository) QuerySubmissions(ctx context.Context, assignmentID string) ([]coursework.Submission, error) {
	submissions := make([]coursework.Submission, 0)
	err := repo.db.WithContext(ctx).
		Where("assignment_id = ?", assignmentID).
		Order("created_at ASC, id ASC").
		Find(&submissions).Error
	return submissions, errors.Wrap(err, "querying submissions")
}

func (repo *courseworkRepository) UpdateSubmission(ctx context.Context, s coursework.Submission) (coursework.Submission, error) {
	res := repo.db.WithContext(ctx).Model(&coursework.Submission{}).Where("id = ?", s.ID).Updates(map[string]interface{}{
		"status":    s.Status,
		"grade":     s.Grade,
		"feedback":  s.Feedback,
		"graded_at": s.GradedAt,
	})
	if res.Error != nil {
		return coursework.Submission{}, errors.Wrap(res.Error, "updating submission")
	}
	if res.RowsAffected == 0 {
		return coursework.Submission{}, coursework.ErrSubmissionNotFound
	}
	return s, nil
}
