package gormrepos

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/course"
	"github.com/trezcool/darasa/storage/database"
)

type courseRepository struct {
	db *gorm.DB
}

var _ course.Repository = (*courseRepository)(nil)

func NewCourseRepository(db *database.DB) *courseRepository {
	return &courseRepository{db: db.Gorm}
}

func (repo *courseRepository) CreateCourse(ctx context.Context, c course.Course) (course.Course, error) {
	if err := repo.db.WithContext(ctx).Omit("Modules").Create(&c).Error; err != nil {
		if database.IsUniqueViolation(err) {
			return course.Course{}, course.ErrSlugExists
		}
		return course.Course{}, errors.Wrap(err, "creating course")
	}
	return c, nil
}

func (repo *courseRepository) SlugExists(ctx context.Context, slug string) (bool, error) {
	var n int64
	err := repo.db.WithContext(ctx).Model(&course.Course{}).Where("slug = ?", slug).Count(&n).Error
	return n > 0, errors.Wrap(err, "checking slug")
}

func (repo *courseRepository) QueryCourses(ctx context.Context, ordering ...core.DBOrdering) ([]course.Course, error) {
	courses := make([]course.Course, 0)
	err := ordered(repo.db.WithContext(ctx), "created_at DESC, id ASC", ordering...).Find(&courses).Error
	return courses, errors.Wrap(err, "querying courses")
}

func (repo *courseRepository) GetCourseBySlug(ctx context.Context, slug string) (course.Course, error) {
	var c course.Course
	err := repo.db.WithContext(ctx).
		Preload("Modules", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC, created_at ASC") }).
		Preload("Modules.Lessons", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC, created_at ASC") }).
		Where("slug = ?", slug).
		Take(&c).Error
	if err != nil {
		if isNotFound(err) {
			return course.Course{}, course.ErrNotFound
		}
		return course.Course{}, errors.Wrap(err, "getting course")
	}
	return c, nil
}

func (repo *courseRepository) GetCourseByID(ctx context.Context, id string) (course.Course, error) {
	var c course.Course
	if err := repo.db.WithContext(ctx).Where("id = ?", id).Take(&c).Error; err != nil {
		if isNotFound(err) {
			return course.Course{}, course.ErrNotFound
		}
		return course.Course{}, errors.Wrap(err, "getting course")
	}
	return c, nil
}

func (repo *courseRepository) CreateModule(ctx context.Context, m course.Module) (course.Module, error) {
	err := repo.db.WithContext(ctx).Omit("Lessons").Create(&m).Error
	return m, errors.Wrap(err, "creating module")
}

func (repo *courseRepository) GetModuleByID(ctx context.Context, id string) (course.Module, error) {
	var m course.Module
	if err := repo.db.WithContext(ctx).Where("id = ?", id).Take(&m).Error; err != nil {
		if isNotFound(err) {
			return course.Module{}, course.ErrModuleNotFound
		}
		return course.Module{}, errors.Wrap(err, "getting module")
	}
	return m, nil
}

func (repo *courseRepository) CountModules(ctx context.Context, courseID string) (int, error) {
	var n int64
	err := repo.db.WithContext(ctx).Model(&course.Module{}).Where("course_id = ?", courseID).Count(&n).Error
	return int(n), errors.Wrap(err, "counting modules")
}

func (repo *courseRepository) CreateLesson(ctx context.Context, l course.Lesson) (course.Lesson, error) {
	err := repo.db.WithContext(ctx).Create(&l).Error
	return l, errors.Wrap(err, "creating lesson")
}

func (repo *courseRepository) CountLessons(ctx context.Context, moduleID string) (int, error) {
	var n int64
	err := repo.db.WithContext(ctx).Model(&course.Lesson{}).Where("module_id = ?", moduleID).Count(&n).Error
	return int(n), errors.Wrap(err, "counting lessons")
}
