package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core/contact"
)

type contactApi struct {
	svc *contact.Service
}

func registerContactAPI(g *echo.Group, limit echo.MiddlewareFunc, svc *contact.Service) {
	api := contactApi{svc: svc}

	g.POST("/contact", api.submit, limit)
	g.POST("/newsletter", api.subscribe, limit)
}

func (api *contactApi) submit(ctx echo.Context) error {
	var data contact.NewSubmission
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSubmission")
	}

	s, err := api.svc.Submit(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "submitting contact form")
	}
	return ctx.JSON(http.StatusCreated, s)
}

func (api *contactApi) subscribe(ctx echo.Context) error {
	var data contact.Subscribe
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Subscribe")
	}

	s, err := api.svc.Subscribe(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "subscribing to newsletter")
	}
	return ctx.JSON(http.StatusCreated, s)
}
