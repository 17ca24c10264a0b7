package payment

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/course"
	"github.com/trezcool/darasa/core/user"
)

var (
	// errors
	ErrOrderNotFound   = core.NewNotFoundError("order")
	ErrAlreadyEnrolled = core.NewConflictError("you are already enrolled in this course")
	ErrNotForSale      = core.NewValidationError(nil, core.FieldError{Field: "course_id", Error: "this course is not for sale"})

	// ErrPaymentExists is returned by Repository.RecordPayment when the order was already reconciled.
	ErrPaymentExists = errors.New("payment already recorded for this order")
)

type (
	Repository interface {
		CreateOrder(ctx context.Context, o Order) (Order, error)
		DeleteOrder(ctx context.Context, id string) error
		SetCheckoutURL(ctx context.Context, id, url string) error
		GetOrderByOrderID(ctx context.Context, orderID string) (Order, error)
		// PendingOrders returns the PENDING orders created after since, oldest first.
		PendingOrders(ctx context.Context, since time.Time) ([]Order, error)
		PaymentExists(ctx context.Context, orderID string) (bool, error)
		HasActiveEnrollment(ctx context.Context, userID, courseID string) (bool, error)
		// RecordPayment atomically reuses the ACTIVE enrollment of the order's user and course
		// (or creates enr), inserts p linked to it and marks the order PAID.
		// It returns ErrPaymentExists when a payment already exists for the order.
		RecordPayment(ctx context.Context, o Order, p Payment, enr Enrollment) (enrollmentCreated bool, err error)
	}

	CourseFinder interface {
		GetByID(ctx context.Context, id string) (course.Course, error)
	}

	UserFinder interface {
		GetByID(ctx context.Context, id string) (user.User, error)
	}

	Options struct {
		Repo      Repository
		Gateway   Gateway
		Courses   CourseFinder
		Users     UserFinder
		MailSvc   core.EmailService
		Locker    Locker // optional
		Logger    core.Logger
		Currency  string
		ReturnURL string // "{order_id}" is replaced by the order id
		OrderTTL  time.Duration
	}

	Service struct {
		opts Options
	}
)

func NewService(opts Options) *Service {
	opts.Currency = strings.ToUpper(opts.Currency)
	return &Service{opts: opts}
}

func (svc *Service) HasActiveEnrollment(ctx context.Context, userID, courseID string) (bool, error) {
	return svc.opts.Repo.HasActiveEnrollment(ctx, userID, courseID)
}

// CreateOrder opens a checkout at the gateway for usr to buy a course.
func (svc *Service) CreateOrder(ctx context.Context, usr user.User, no NewOrder) (Checkout, error) {
	no.CourseID = strings.TrimSpace(no.CourseID)
	if err := core.ValidateStruct(no); err != nil {
		return Checkout{}, err
	}
	crs, err := svc.opts.Courses.GetByID(ctx, no.CourseID)
	if err != nil {
		return Checkout{}, err
	}
	if crs.Price <= 0 {
		return Checkout{}, ErrNotForSale
	}
	enrolled, err := svc.opts.Repo.HasActiveEnrollment(ctx, usr.ID, crs.ID)
	if err != nil {
		return Checkout{}, errors.Wrap(err, "checking enrollment")
	}
	if enrolled {
		return Checkout{}, ErrAlreadyEnrolled
	}

	now := time.Now().UTC()
	order, err := svc.opts.Repo.CreateOrder(ctx, Order{
		ID:        core.NewID(),
		OrderID:   core.NewID(),
		UserID:    usr.ID,
		CourseID:  crs.ID,
		Amount:    crs.Price,
		Currency:  svc.opts.Currency,
		Provider:  svc.opts.Gateway.Name(),
		Status:    OrderPending,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return Checkout{}, errors.Wrap(err, "storing order")
	}

	gwCheckout, err := svc.opts.Gateway.CreateOrder(ctx, OrderRequest{
		OrderID:   order.OrderID,
		Amount:    order.Amount,
		Currency:  order.Currency,
		ItemID:    crs.ID,
		ItemName:  crs.Title,
		Customer:  Customer{ID: usr.ID, Name: usr.Name, Email: usr.Email},
		ReturnURL: strings.ReplaceAll(svc.opts.ReturnURL, "{order_id}", order.OrderID),
	})
	if err != nil {
		if dErr := svc.opts.Repo.DeleteOrder(ctx, order.ID); dErr != nil {
			svc.opts.Logger.Error("deleting unpaid order", dErr, usr)
		}
		return Checkout{}, svc.gatewayError("creating order", order.OrderID, err)
	}
	// the checkout exists at the gateway by now, so a failed write does not fail the order
	if gwCheckout.RedirectURL != "" {
		if err = svc.opts.Repo.SetCheckoutURL(ctx, order.ID, gwCheckout.RedirectURL); err != nil {
			svc.opts.Logger.Warn("storing checkout url", err, usr, map[string]interface{}{"order_id": order.OrderID})
		}
	}

	return Checkout{
		OrderID:     order.OrderID,
		Token:       gwCheckout.Token,
		RedirectURL: gwCheckout.RedirectURL,
		Amount:      order.Amount,
		Currency:    order.Currency,
	}, nil
}

// Reconcile brings the local state of an order in line with the gateway.
// It is idempotent: once an order is paid, later calls report EnrollmentCreated=false
// without contacting the gateway. Pending and failed orders are left untouched.
func (svc *Service) Reconcile(ctx context.Context, orderID string) (ReconcileResult, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return ReconcileResult{}, ErrOrderNotFound
	}
	done := ReconcileResult{OrderID: orderID, Status: StatusPaid}

	if svc.opts.Locker != nil {
		unlock, err := svc.opts.Locker.Lock(ctx, "payment:reconcile:"+orderID)
		if err != nil {
			return ReconcileResult{}, errors.Wrap(err, "locking order")
		}
		defer unlock()
	}

	exists, err := svc.opts.Repo.PaymentExists(ctx, orderID)
	if err != nil {
		return ReconcileResult{}, errors.Wrap(err, "checking payment")
	}
	if exists {
		return done, nil
	}

	order, err := svc.opts.Repo.GetOrderByOrderID(ctx, orderID)
	if err != nil {
		return ReconcileResult{}, err
	}

	gwOrder, err := svc.opts.Gateway.OrderStatus(ctx, orderID)
	if err != nil {
		if errors.Cause(err) == ErrGatewayOrderNotFound {
			return ReconcileResult{}, ErrOrderNotFound
		}
		return ReconcileResult{}, svc.gatewayError("checking order status", orderID, err)
	}
	if gwOrder.Status != StatusPaid {
		return ReconcileResult{OrderID: orderID, Status: gwOrder.Status}, nil
	}

	amount := order.Amount
	if gwOrder.Amount != 0 && gwOrder.Amount != order.Amount {
		svc.opts.Logger.Warn("paid amount differs from order amount", map[string]interface{}{
			"order_id": orderID, "expected": order.Amount, "paid": gwOrder.Amount,
		})
		amount = gwOrder.Amount
	}
	paidAt := gwOrder.PaidAt
	if paidAt.IsZero() {
		paidAt = time.Now()
	}
	raw := gwOrder.Raw
	if len(raw) == 0 {
		raw = []byte("{}")
	}

	now := time.Now().UTC()
	enr := Enrollment{
		ID:        core.NewID(),
		UserID:    order.UserID,
		CourseID:  order.CourseID,
		Status:    EnrollmentActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	p := Payment{
		ID:             core.NewID(),
		OrderID:        orderID,
		Amount:         amount,
		Currency:       order.Currency,
		Status:         PaymentSuccess,
		Provider:       order.Provider,
		PaidAt:         null.TimeFrom(paidAt.UTC()),
		GatewayPayload: raw,
		CreatedAt:      now,
	}
	created, err := svc.opts.Repo.RecordPayment(ctx, order, p, enr)
	if err != nil {
		if errors.Cause(err) == ErrPaymentExists {
			return done, nil // reconciled concurrently
		}
		return ReconcileResult{}, errors.Wrap(err, "recording payment")
	}

	svc.sendConfirmation(ctx, order, p)
	done.EnrollmentCreated = created
	return done, nil
}

// SweepPending reconciles the pending orders younger than the order TTL.
// Failures are logged and do not stop the sweep.
func (svc *Service) SweepPending(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	orders, err := svc.opts.Repo.PendingOrders(ctx, time.Now().UTC().Add(-svc.opts.OrderTTL))
	if err != nil {
		return res, errors.Wrap(err, "listing pending orders")
	}

	for _, o := range orders {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		res.Checked++
		r, err := svc.Reconcile(ctx, o.OrderID)
		if err != nil {
			res.Errors++
			svc.opts.Logger.Warn("reconciling pending order", err, map[string]interface{}{"order_id": o.OrderID})
			continue
		}
		if r.Success() {
			res.Paid++
		}
	}
	return res, nil
}

func (svc *Service) gatewayError(action, orderID string, err error) error {
	svc.opts.Logger.Warn("payment gateway: "+action, err, map[string]interface{}{
		"order_id": orderID, "provider": svc.opts.Gateway.Name(),
	})
	return errors.Wrap(core.ErrGatewayUnavailable, action)
}

func (svc *Service) sendConfirmation(ctx context.Context, o Order, p Payment) {
	usr, err := svc.opts.Users.GetByID(ctx, o.UserID)
	if err != nil {
		svc.opts.Logger.Error("loading paying user", err, map[string]interface{}{"order_id": o.OrderID})
		return
	}
	crs, err := svc.opts.Courses.GetByID(ctx, o.CourseID)
	if err != nil {
		svc.opts.Logger.Error("loading paid course", err, usr)
		return
	}

	svc.opts.MailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      "Payment received",
		TemplateName: "payment_confirmation",
		TemplateData: map[string]interface{}{
			"Name":        usr.Name,
			"Amount":      FormatAmount(p.Amount, p.Currency),
			"Currency":    p.Currency,
			"CourseTitle": crs.Title,
			"CourseSlug":  crs.Slug,
			"OrderID":     o.OrderID,
		},
	})
}
