package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core/payment"
	"github.com/trezcool/darasa/core/user"
)

type VerifyPaymentResponse struct {
	Success           bool           `json:"success"`
	OrderID           string         `json:"order_id"`
	Status            payment.Status `json:"status"`
	EnrollmentCreated bool           `json:"enrollment_created"`
}

type paymentApi struct {
	svc *payment.Service
}

func registerPaymentAPI(g *echo.Group, requireRoles roleMiddleware, svc *payment.Service) {
	api := paymentApi{svc: svc}

	pg := g.Group("/payments")
	pg.POST("/orders", api.createOrder, requireRoles(user.RoleStudent))
	// idempotent; clients poll it after the checkout redirect
	pg.GET("/verify", api.verify)
}

func (api *paymentApi) createOrder(ctx echo.Context) error {
	var data payment.NewOrder
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewOrder")
	}
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}

	checkout, err := api.svc.CreateOrder(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "creating order")
	}
	return ctx.JSON(http.StatusCreated, checkout)
}

func (api *paymentApi) verify(ctx echo.Context) error {
	res, err := api.svc.Reconcile(ctx.Request().Context(), ctx.QueryParam("order_id"))
	if err != nil {
		return errors.Wrap(err, "reconciling order")
	}
	return ctx.JSON(http.StatusOK, VerifyPaymentResponse{
		Success:           res.Success(),
		OrderID:           res.OrderID,
		Status:            res.Status,
		EnrollmentCreated: res.EnrollmentCreated,
	})
}
