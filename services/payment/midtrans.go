// Package paymentsvc adapts payment providers to payment.Gateway.
package paymentsvc

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"
	"github.com/midtrans/midtrans-go/snap"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/payment"
)

// midtrans reports times in Jakarta time
var midtransLocation = time.FixedZone("WIB", 7*60*60)

type (
	snapAPI interface {
		CreateTransaction(req *snap.Request) (*snap.Response, *midtrans.Error)
	}

	coreAPI interface {
		CheckTransaction(orderID string) (*coreapi.TransactionStatusResponse, *midtrans.Error)
	}

	midtransGateway struct {
		snap snapAPI
		core coreAPI
	}
)

var _ payment.Gateway = (*midtransGateway)(nil)

// NewMidtransGateway opens Snap checkouts and checks their status with the Core API.
func NewMidtransGateway(conf *core.Config) *midtransGateway {
	env := midtrans.Sandbox
	if conf.Payment.Production {
		env = midtrans.Production
	}
	var (
		s snap.Client
		c coreapi.Client
	)
	s.New(conf.Payment.MidtransServerKey, env)
	c.New(conf.Payment.MidtransServerKey, env)
	return &midtransGateway{snap: &s, core: &c}
}

func (gw *midtransGateway) Name() string { return "midtrans" }

// The midtrans clients take no context; calls are bounded by their own HTTP timeout.
func (gw *midtransGateway) CreateOrder(_ context.Context, req payment.OrderRequest) (payment.GatewayCheckout, error) {
	first, last := splitName(req.Customer.Name)
	sreq := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  req.OrderID,
			GrossAmt: req.Amount,
		},
		CustomerDetail: &midtrans.CustomerDetails{
			FName: first,
			LName: last,
			Email: req.Customer.Email,
		},
		Items: &[]midtrans.ItemDetails{{
			ID:    req.ItemID,
			Price: req.Amount,
			Qty:   1,
			Name:  truncate(req.ItemName, 50),
		}},
	}
	if req.ReturnURL != "" {
		sreq.Callbacks = &snap.Callbacks{Finish: req.ReturnURL}
	}

	resp, mErr := gw.snap.CreateTransaction(sreq)
	if mErr != nil {
		return payment.GatewayCheckout{}, errors.Wrap(mErr, "midtrans: creating transaction")
	}
	return payment.GatewayCheckout{Token: resp.Token, RedirectURL: resp.RedirectURL}, nil
}

func (gw *midtransGateway) OrderStatus(_ context.Context, orderID string) (payment.GatewayOrder, error) {
	resp, mErr := gw.core.CheckTransaction(orderID)
	if mErr != nil {
		if mErr.StatusCode == http.StatusNotFound {
			return payment.GatewayOrder{}, payment.ErrGatewayOrderNotFound
		}
		return payment.GatewayOrder{}, errors.Wrap(mErr, "midtrans: checking transaction")
	}
	if resp.StatusCode == "404" {
		return payment.GatewayOrder{}, payment.ErrGatewayOrderNotFound
	}

	raw, err := json.Marshal(resp)
	if err != nil {
		return payment.GatewayOrder{}, errors.Wrap(err, "midtrans: encoding status")
	}
	gwOrder := payment.GatewayOrder{
		OrderID: resp.OrderID,
		Status:  midtransStatus(resp.TransactionStatus, resp.FraudStatus),
		Raw:     raw,
	}
	if resp.GrossAmount != "" {
		currency := resp.Currency
		if currency == "" {
			currency = "IDR"
		}
		if gwOrder.Amount, err = payment.ParseAmount(resp.GrossAmount, currency); err != nil {
			return payment.GatewayOrder{}, errors.Wrap(err, "midtrans")
		}
	}
	if gwOrder.Status == payment.StatusPaid {
		gwOrder.PaidAt = parseMidtransTime(resp.SettlementTime, resp.TransactionTime)
	}
	return gwOrder, nil
}

// midtransStatus maps a midtrans transaction status to a payment.Status.
func midtransStatus(transactionStatus, fraudStatus string) payment.Status {
	switch strings.ToLower(transactionStatus) {
	case "settlement":
		return payment.StatusPaid
	case "capture":
		if fraudStatus == "" || strings.EqualFold(fraudStatus, "accept") {
			return payment.StatusPaid
		}
		return payment.StatusPending // challenged
	case "pending", "authorize":
		return payment.StatusPending
	default: // deny, cancel, expire, failure, refund...
		return payment.StatusFailed
	}
}

func parseMidtransTime(values ...string) time.Time {
	for _, v := range values {
		if v == "" {
			continue
		}
		if t, err := time.ParseInLocation("2006-01-02 15:04:05", v, midtransLocation); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func splitName(name string) (first, last string) {
	parts := strings.Fields(name)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
