package course

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darasa/core"
)

var (
	// errors
	ErrNotFound       = core.NewNotFoundError("course")
	ErrModuleNotFound = core.NewNotFoundError("module")
	ErrSlugExists     = errors.New("a course with this slug already exists")

	maxSlugAttempts = 20
)

type (
	Repository interface {
		CreateCourse(ctx context.Context, c Course) (Course, error)
		SlugExists(ctx context.Context, slug string) (bool, error)
		QueryCourses(ctx context.Context, ordering ...core.DBOrdering) ([]Course, error)
		// GetCourseBySlug loads the course with its modules and lessons, in position order.
		GetCourseBySlug(ctx context.Context, slug string) (Course, error)
		GetCourseByID(ctx context.Context, id string) (Course, error)
		CreateModule(ctx context.Context, m Module) (Module, error)
		GetModuleByID(ctx context.Context, id string) (Module, error)
		CountModules(ctx context.Context, courseID string) (int, error)
		CreateLesson(ctx context.Context, l Lesson) (Lesson, error)
		CountLessons(ctx context.Context, moduleID string) (int, error)
	}

	Service struct {
		repo Repository
	}
)

var OrderingFields = []string{"title", "price", "created_at"}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Create stores a new course under a unique slug derived from its title
// ("intro-to-go", then "intro-to-go-2", ...).
func (svc *Service) Create(ctx context.Context, nc NewCourse) (Course, error) {
	nc.Clean()
	if err := core.ValidateStruct(nc); err != nil {
		return Course{}, err
	}

	now := time.Now().UTC()
	c := Course{
		ID:        core.NewID(),
		Title:     nc.Title,
		Price:     nc.Price,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if nc.Description != "" {
		c.Description = null.StringFrom(nc.Description)
	}

	base := Slugify(nc.Title)
	for i := 1; i <= maxSlugAttempts; i++ {
		c.Slug = base
		if i > 1 {
			c.Slug = base + "-" + strconv.Itoa(i)
		}
		exists, err := svc.repo.SlugExists(ctx, c.Slug)
		if err != nil {
			return Course{}, err
		}
		if exists {
			continue
		}
		created, err := svc.repo.CreateCourse(ctx, c)
		if errors.Cause(err) == ErrSlugExists {
			continue // taken concurrently
		}
		return created, err
	}
	return Course{}, core.NewValidationError(ErrSlugExists, core.FieldError{Field: "title", Error: ErrSlugExists.Error()})
}

func (svc *Service) List(ctx context.Context, ordering ...core.DBOrdering) ([]Course, error) {
	return svc.repo.QueryCourses(ctx, core.AllowedOrderings(ordering, OrderingFields...)...)
}

func (svc *Service) GetBySlug(ctx context.Context, slug string) (Course, error) {
	return svc.repo.GetCourseBySlug(ctx, core.CleanString(slug, true /* lower */))
}

func (svc *Service) GetByID(ctx context.Context, id string) (Course, error) {
	if !core.IsID(id) {
		return Course{}, ErrNotFound
	}
	return svc.repo.GetCourseByID(ctx, id)
}

// AddModule appends a module to a course; without an explicit position it goes last.
func (svc *Service) AddModule(ctx context.Context, courseID string, nm NewModule) (Module, error) {
	nm.Title = core.CleanString(nm.Title)
	if err := core.ValidateStruct(nm); err != nil {
		return Module{}, err
	}
	if _, err := svc.GetByID(ctx, courseID); err != nil {
		return Module{}, err
	}

	m := Module{ID: core.NewID(), CourseID: courseID, Title: nm.Title, CreatedAt: time.Now().UTC()}
	if nm.Position != nil {
		m.Position = *nm.Position
	} else {
		n, err := svc.repo.CountModules(ctx, courseID)
		if err != nil {
			return Module{}, err
		}
		m.Position = n
	}
	return svc.repo.CreateModule(ctx, m)
}

// AddLesson appends a lesson to a module; without an explicit position it goes last.
func (svc *Service) AddLesson(ctx context.Context, moduleID string, nl NewLesson) (Lesson, error) {
	nl.Title = core.CleanString(nl.Title)
	if err := core.ValidateStruct(nl); err != nil {
		return Lesson{}, err
	}
	if !core.IsID(moduleID) {
		return Lesson{}, ErrModuleNotFound
	}
	if _, err := svc.repo.GetModuleByID(ctx, moduleID); err != nil {
		return Lesson{}, err
	}

	l := Lesson{ID: core.NewID(), ModuleID: moduleID, Title: nl.Title, Content: nl.Content, CreatedAt: time.Now().UTC()}
	if nl.Position != nil {
		l.Position = *nl.Position
	} else {
		n, err := svc.repo.CountLessons(ctx, moduleID)
		if err != nil {
			return Lesson{}, err
		}
		l.Position = n
	}
	return svc.repo.CreateLesson(ctx, l)
}
