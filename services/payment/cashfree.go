package paymentsvc

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/payment"
)

type (
	cashfreeCustomer struct {
		ID    string `json:"customer_id"`
		Name  string `json:"customer_name,omitempty"`
		Email string `json:"customer_email,omitempty"`
		Phone string `json:"customer_phone"`
	}

	cashfreeOrderMeta struct {
		ReturnURL string `json:"return_url,omitempty"`
	}

	cashfreeOrderRequest struct {
		OrderID  string            `json:"order_id"`
		Amount   float64           `json:"order_amount"`
		Currency string            `json:"order_currency"`
		Customer cashfreeCustomer  `json:"customer_details"`
		Meta     cashfreeOrderMeta `json:"order_meta"`
		Note     string            `json:"order_note,omitempty"`
	}

	cashfreeOrder struct {
		OrderID          string  `json:"order_id"`
		Amount           float64 `json:"order_amount"`
		Currency         string  `json:"order_currency"`
		Status           string  `json:"order_status"`
		PaymentSessionID string  `json:"payment_session_id"`
		PaymentLink      string  `json:"payment_link"`
	}

	cashfreeError struct {
		Message string `json:"message"`
		Code    string `json:"code"`
		Type    string `json:"type"`
	}

	cashfreeGateway struct {
		client *resty.Client
	}
)

var _ payment.Gateway = (*cashfreeGateway)(nil)

// NewCashfreeGateway talks to the Cashfree PG orders API.
func NewCashfreeGateway(conf *core.Config) *cashfreeGateway {
	client := resty.New().
		SetBaseURL(strings.TrimRight(conf.Payment.GatewayURL, "/")).
		SetTimeout(15*time.Second).
		SetHeader("x-client-id", conf.Payment.ClientID).
		SetHeader("x-client-secret", conf.Payment.ClientSecret).
		SetHeader("x-api-version", conf.Payment.APIVersion).
		SetHeader("Accept", "application/json")
	return &cashfreeGateway{client: client}
}

func (gw *cashfreeGateway) Name() string { return "cashfree" }

func (gw *cashfreeGateway) CreateOrder(ctx context.Context, req payment.OrderRequest) (payment.GatewayCheckout, error) {
	var (
		order cashfreeOrder
		cfErr cashfreeError
	)
	// cashfree takes major units
	amount, err := strconv.ParseFloat(payment.FormatAmount(req.Amount, req.Currency), 64)
	if err != nil {
		return payment.GatewayCheckout{}, errors.Wrap(err, "cashfree: formatting amount")
	}

	resp, err := gw.client.R().
		SetContext(ctx).
		SetBody(cashfreeOrderRequest{
			OrderID:  req.OrderID,
			Amount:   amount,
			Currency: strings.ToUpper(req.Currency),
			Customer: cashfreeCustomer{
				ID:    req.Customer.ID,
				Name:  req.Customer.Name,
				Email: req.Customer.Email,
				Phone: "9999999999", // required by the API; not collected
			},
			Meta: cashfreeOrderMeta{ReturnURL: req.ReturnURL},
			Note: req.ItemName,
		}).
		SetResult(&order).
		SetError(&cfErr).
		Post("/orders")
	if err != nil {
		return payment.GatewayCheckout{}, errors.Wrap(err, "cashfree: creating order")
	}
	if resp.IsError() {
		return payment.GatewayCheckout{}, errors.Errorf("cashfree: creating order: %d %s", resp.StatusCode(), cfErr.Message)
	}
	return payment.GatewayCheckout{Token: order.PaymentSessionID, RedirectURL: order.PaymentLink}, nil
}

func (gw *cashfreeGateway) OrderStatus(ctx context.Context, orderID string) (payment.GatewayOrder, error) {
	var (
		order cashfreeOrder
		cfErr cashfreeError
	)
	resp, err := gw.client.R().
		SetContext(ctx).
		SetPathParam("orderID", orderID).
		SetResult(&order).
		SetError(&cfErr).
		Get("/orders/{orderID}")
	if err != nil {
		return payment.GatewayOrder{}, errors.Wrap(err, "cashfree: getting order")
	}
	if resp.StatusCode() == http.StatusNotFound {
		return payment.GatewayOrder{}, payment.ErrGatewayOrderNotFound
	}
	if resp.IsError() {
		return payment.GatewayOrder{}, errors.Errorf("cashfree: getting order: %d %s", resp.StatusCode(), cfErr.Message)
	}

	gwOrder := payment.GatewayOrder{
		OrderID: order.OrderID,
		Status:  cashfreeStatus(order.Status),
		Raw:     resp.Body(),
	}
	if gwOrder.Amount, err = payment.ParseAmount(strconv.FormatFloat(order.Amount, 'f', -1, 64), order.Currency); err != nil {
		return payment.GatewayOrder{}, errors.Wrap(err, "cashfree")
	}
	return gwOrder, nil
}

// cashfreeStatus maps a Cashfree order status to a payment.Status.
func cashfreeStatus(s string) payment.Status {
	switch strings.ToUpper(s) {
	case "PAID":
		return payment.StatusPaid
	case "ACTIVE":
		return payment.StatusPending
	default: // EXPIRED, TERMINATED, TERMINATION_REQUESTED
		return payment.StatusFailed
	}
}
