package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core/dashboard"
)

func registerDashboardAPI(admin *echo.Group, svc *dashboard.Service) {
	admin.GET("/dashboard-stats", func(ctx echo.Context) error {
		stats, err := svc.ComputeStats(ctx.Request().Context())
		if err != nil {
			return errors.Wrap(err, "computing dashboard stats")
		}
		return ctx.JSON(http.StatusOK, stats)
	})
}
