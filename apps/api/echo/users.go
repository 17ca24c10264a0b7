package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/user"
)

type userApi struct {
	svc *user.Service
}

func registerUserAPI(g, admin *echo.Group, requireRoles roleMiddleware, svc *user.Service) {
	api := userApi{svc: svc}

	g.GET("/me", api.me, requireRoles())

	ug := admin.Group("/users")
	ug.GET("", api.query)
	ug.POST("", api.ensure)
	ug.PATCH("/:id/block", api.setBlocked)
}

// Handlers

func (api *userApi) me(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, usr.Summary())
}

func (api *userApi) query(ctx echo.Context) error {
	filter, err := bindUserFilter(ctx)
	if err != nil {
		return ctx.JSON(http.StatusOK, []user.User{})
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	users, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying users")
	}
	if users == nil {
		users = []user.User{}
	}
	return ctx.JSON(http.StatusOK, users)
}

// ensure mirrors an identity-provider account locally.
func (api *userApi) ensure(ctx echo.Context) error {
	var data user.NewUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewUser")
	}

	usr, err := api.svc.EnsureUser(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "ensuring user")
	}
	return ctx.JSON(http.StatusCreated, usr)
}

func (api *userApi) setBlocked(ctx echo.Context) error {
	var data user.SetBlocked
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SetBlocked")
	}
	if err := core.ValidateStruct(data); err != nil {
		return err
	}

	admin, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	summary, err := api.svc.SetBlocked(ctx.Request().Context(), admin.ID, ctx.Param("id"), *data.Blocked)
	if err != nil {
		return errors.Wrap(err, "setting blocked flag")
	}
	return ctx.JSON(http.StatusOK, summary)
}
