package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core/course"
)

type courseApi struct {
	svc *course.Service
}

func registerCourseAPI(g, admin *echo.Group, svc *course.Service) {
	api := courseApi{svc: svc}

	// public catalog
	g.GET("/courses", api.list)
	g.GET("/courses/:slug", api.retrieve)

	admin.POST("/courses", api.create)
	admin.POST("/courses/:id/modules", api.addModule)
	admin.POST("/modules/:id/lessons", api.addLesson)
}

func (api *courseApi) list(ctx echo.Context) error {
	ordering := new(Ordering)
	ordering.Bind(ctx)

	courses, err := api.svc.List(ctx.Request().Context(), ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "listing courses")
	}
	if courses == nil {
		courses = []course.Course{}
	}
	return ctx.JSON(http.StatusOK, courses)
}

func (api *courseApi) retrieve(ctx echo.Context) error {
	crs, err := api.svc.GetBySlug(ctx.Request().Context(), ctx.Param("slug"))
	if err != nil {
		return errors.Wrap(err, "getting course")
	}
	return ctx.JSON(http.StatusOK, crs)
}

func (api *courseApi) create(ctx echo.Context) error {
	var data course.NewCourse
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCourse")
	}

	crs, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating course")
	}
	return ctx.JSON(http.StatusCreated, crs)
}

func (api *courseApi) addModule(ctx echo.Context) error {
	var data course.NewModule
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewModule")
	}

	m, err := api.svc.AddModule(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "adding module")
	}
	return ctx.JSON(http.StatusCreated, m)
}

func (api *courseApi) addLesson(ctx echo.Context) error {
	var data course.NewLesson
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewLesson")
	}

	l, err := api.svc.AddLesson(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "adding lesson")
	}
	return ctx.JSON(http.StatusCreated, l)
}
