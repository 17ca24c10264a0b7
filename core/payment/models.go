package payment

import (
	"context"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"gorm.io/datatypes"
)

// Order statuses
const (
	OrderPending = "PENDING"
	OrderPaid    = "PAID"
)

// Enrollment statuses
const (
	EnrollmentActive    = "ACTIVE"
	EnrollmentCancelled = "CANCELLED"
)

const PaymentSuccess = "SUCCESS"

// Status is the normalized state of an order at the gateway.
type Status string

const (
	StatusPaid    Status = "PAID"
	StatusPending Status = "PENDING"
	StatusFailed  Status = "FAILED"
)

// Order records who pays for which course under a gateway order id.
type Order struct {
	ID          string    `json:"id" gorm:"primaryKey;size:36"`
	OrderID     string    `json:"order_id" gorm:"uniqueIndex"`
	UserID      string    `json:"user_id"`
	CourseID    string    `json:"course_id"`
	Amount      int64     `json:"amount"`
	Currency    string    `json:"currency"`
	Provider    string    `json:"provider"`
	Status      string    `json:"status"`
	CheckoutURL string    `json:"checkout_url"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Order) TableName() string { return "payment_orders" }

type Enrollment struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	UserID    string    `json:"user_id"`
	CourseID  string    `json:"course_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Enrollment) TableName() string { return "enrollments" }

type Payment struct {
	ID             string         `json:"id" gorm:"primaryKey;size:36"`
	OrderID        string         `json:"order_id" gorm:"uniqueIndex"`
	Amount         int64          `json:"amount"`
	Currency       string         `json:"currency"`
	Status         string         `json:"status"`
	Provider       string         `json:"provider"`
	EnrollmentID   string         `json:"enrollment_id"`
	PaidAt         null.Time      `json:"paid_at"`
	GatewayPayload datatypes.JSON `json:"-"`
	CreatedAt      time.Time      `json:"created_at"`
}

func (Payment) TableName() string { return "payments" }

type ReconcileResult struct {
	OrderID           string `json:"order_id"`
	Status            Status `json:"status"`
	EnrollmentCreated bool   `json:"enrollment_created"`
}

func (r ReconcileResult) Success() bool { return r.Status == StatusPaid }

type NewOrder struct {
	CourseID string `json:"course_id" validate:"required,uuid"`
}

type Checkout struct {
	OrderID     string `json:"order_id"`
	Token       string `json:"token,omitempty"`
	RedirectURL string `json:"redirect_url"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
}

type SweepResult struct {
	Checked int `json:"checked"`
	Paid    int `json:"paid"`
	Errors  int `json:"errors"`
}

// Gateway

var (
	// ErrGatewayOrderNotFound is returned by a Gateway that does not know an order.
	ErrGatewayOrderNotFound = errors.New("order not found at payment gateway")
)

type (
	Customer struct {
		ID    string
		Name  string
		Email string
	}

	OrderRequest struct {
		OrderID   string
		Amount    int64
		Currency  string
		ItemID    string
		ItemName  string
		Customer  Customer
		ReturnURL string
	}

	GatewayCheckout struct {
		Token       string
		RedirectURL string
	}

	GatewayOrder struct {
		OrderID string
		Status  Status
		Amount  int64
		PaidAt  time.Time
		Raw     []byte // gateway response, kept for audits
	}

	// Gateway is an external payment provider.
	// Any error other than ErrGatewayOrderNotFound is a transport failure.
	Gateway interface {
		Name() string
		CreateOrder(ctx context.Context, req OrderRequest) (GatewayCheckout, error)
		OrderStatus(ctx context.Context, orderID string) (GatewayOrder, error)
	}

	// Locker serialises work on a key across processes.
	Locker interface {
		// Lock blocks until key is held or ctx is done.
		Lock(ctx context.Context, key string) (unlock func(), err error)
	}
)

var zeroDecimalCurrencies = map[string]bool{"IDR": true, "JPY": true, "KRW": true, "VND": true}

// FormatAmount renders minor units in major units, e.g. 150000 IDR -> "150000", 1999 INR -> "19.99".
func FormatAmount(amount int64, currency string) string {
	if zeroDecimalCurrencies[strings.ToUpper(currency)] {
		return strconv.FormatInt(amount, 10)
	}
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	cents := strconv.FormatInt(amount%100, 10)
	if len(cents) == 1 {
		cents = "0" + cents
	}
	return sign + strconv.FormatInt(amount/100, 10) + "." + cents
}

// ParseAmount is the inverse of FormatAmount: "19.99" INR -> 1999.
func ParseAmount(s, currency string) (int64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, errors.Wrapf(err, "parsing amount %q", s)
	}
	if zeroDecimalCurrencies[strings.ToUpper(currency)] {
		return int64(math.Round(f)), nil
	}
	return int64(math.Round(f * 100)), nil
}
