package payment

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/course"
	"github.com/trezcool/darasa/core/user"
)

type memRepo struct {
	mu          sync.Mutex
	orders      map[string]Order // by order id
	enrollments []Enrollment
	payments    map[string]Payment // by order id
}

var _ Repository = (*memRepo)(nil)

func newMemRepo() *memRepo {
	return &memRepo{orders: make(map[string]Order), payments: make(map[string]Payment)}
}

func (r *memRepo) CreateOrder(_ context.Context, o Order) (Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[o.OrderID] = o
	return o, nil
}

func (r *memRepo) SetCheckoutURL(_ context.Context, id, url string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, o := range r.orders {
		if o.ID == id {
			o.CheckoutURL = url
			r.orders[k] = o
		}
	}
	return nil
}

func (r *memRepo) DeleteOrder(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, o := range r.orders {
		if o.ID == id {
			delete(r.orders, k)
		}
	}
	return nil
}

func (r *memRepo) GetOrderByOrderID(_ context.Context, orderID string) (Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o, ok := r.orders[orderID]; ok {
		return o, nil
	}
	return Order{}, ErrOrderNotFound
}

func (r *memRepo) PendingOrders(_ context.Context, since time.Time) ([]Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []Order
	for _, o := range r.orders {
		if o.Status == OrderPending && o.CreatedAt.After(since) {
			res = append(res, o)
		}
	}
	return res, nil
}

func (r *memRepo) PaymentExists(_ context.Context, orderID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.payments[orderID]
	return ok, nil
}

func (r *memRepo) HasActiveEnrollment(_ context.Context, userID, courseID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activeEnrollment(userID, courseID) != nil, nil
}

func (r *memRepo) activeEnrollment(userID, courseID string) *Enrollment {
	for i, e := range r.enrollments {
		if e.UserID == userID && e.CourseID == courseID && e.Status == EnrollmentActive {
			return &r.enrollments[i]
		}
	}
	return nil
}

func (r *memRepo) RecordPayment(_ context.Context, o Order, p Payment, enr Enrollment) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.payments[p.OrderID]; ok {
		return false, ErrPaymentExists
	}
	created := false
	if active := r.activeEnrollment(o.UserID, o.CourseID); active != nil {
		p.EnrollmentID = active.ID
	} else {
		r.enrollments = append(r.enrollments, enr)
		p.EnrollmentID = enr.ID
		created = true
	}
	r.payments[p.OrderID] = p
	o.Status = OrderPaid
	r.orders[o.OrderID] = o
	return created, nil
}

type fakeGateway struct {
	mu       sync.Mutex
	statuses map[string]Status
	err      error
	calls    int
	created  []OrderRequest
}

func (g *fakeGateway) Name() string { return "fake" }

func (g *fakeGateway) CreateOrder(_ context.Context, req OrderRequest) (GatewayCheckout, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return GatewayCheckout{}, g.err
	}
	g.created = append(g.created, req)
	g.statuses[req.OrderID] = StatusPending
	return GatewayCheckout{Token: "tok-" + req.OrderID, RedirectURL: "https://pay.test/" + req.OrderID}, nil
}

func (g *fakeGateway) OrderStatus(_ context.Context, orderID string) (GatewayOrder, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.err != nil {
		return GatewayOrder{}, g.err
	}
	st, ok := g.statuses[orderID]
	if !ok {
		return GatewayOrder{}, ErrGatewayOrderNotFound
	}
	return GatewayOrder{OrderID: orderID, Status: st, Raw: []byte(`{"transaction_status":"settlement"}`)}, nil
}

func (g *fakeGateway) set(orderID string, st Status) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statuses[orderID] = st
}

type fakeCourses map[string]course.Course

func (f fakeCourses) GetByID(_ context.Context, id string) (course.Course, error) {
	if c, ok := f[id]; ok {
		return c, nil
	}
	return course.Course{}, course.ErrNotFound
}

type fakeUsers map[string]user.User

func (f fakeUsers) GetByID(_ context.Context, id string) (user.User, error) {
	if u, ok := f[id]; ok {
		return u, nil
	}
	return user.User{}, user.ErrNotFound
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []*core.EmailMessage
}

func (m *fakeMailer) SendMessages(messages ...*core.EmailMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, messages...)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

type fixture struct {
	repo    *memRepo
	gateway *fakeGateway
	mailer  *fakeMailer
	svc     *Service
	student user.User
	course  course.Course
}

func newFixture() *fixture {
	f := &fixture{
		repo:    newMemRepo(),
		gateway: &fakeGateway{statuses: make(map[string]Status)},
		mailer:  &fakeMailer{},
		student: user.User{ID: core.NewID(), Name: "Jane", Email: "jane@darasa.test", Role: user.RoleStudent},
		course:  course.Course{ID: core.NewID(), Title: "Go 101", Slug: "go-101", Price: 150000},
	}
	f.svc = NewService(Options{
		Repo:      f.repo,
		Gateway:   f.gateway,
		Courses:   fakeCourses{f.course.ID: f.course},
		Users:     fakeUsers{f.student.ID: f.student},
		MailSvc:   f.mailer,
		Logger:    nopLogger{},
		Currency:  "idr",
		ReturnURL: "https://darasa.test/payments/verify?order_id={order_id}",
		OrderTTL:  24 * time.Hour,
	})
	return f
}

func (f *fixture) order(t *testing.T) string {
	t.Helper()
	co, err := f.svc.CreateOrder(context.Background(), f.student, NewOrder{CourseID: f.course.ID})
	require.NoError(t, err)
	return co.OrderID
}

func TestService_CreateOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("checkout", func(t *testing.T) {
		f := newFixture()
		co, err := f.svc.CreateOrder(ctx, f.student, NewOrder{CourseID: f.course.ID})
		require.NoError(t, err)
		assert.Equal(t, "https://pay.test/"+co.OrderID, co.RedirectURL)
		assert.Equal(t, int64(150000), co.Amount)
		assert.Equal(t, "IDR", co.Currency)

		require.Len(t, f.gateway.created, 1)
		assert.Equal(t, "https://darasa.test/payments/verify?order_id="+co.OrderID, f.gateway.created[0].ReturnURL)
		o, err := f.repo.GetOrderByOrderID(ctx, co.OrderID)
		require.NoError(t, err)
		assert.Equal(t, OrderPending, o.Status)
		assert.Equal(t, f.student.ID, o.UserID)
		assert.Equal(t, co.RedirectURL, o.CheckoutURL)
	})

	t.Run("unknown course", func(t *testing.T) {
		f := newFixture()
		_, err := f.svc.CreateOrder(ctx, f.student, NewOrder{CourseID: core.NewID()})
		assert.Equal(t, course.ErrNotFound, err)
	})

	t.Run("already enrolled", func(t *testing.T) {
		f := newFixture()
		orderID := f.order(t)
		f.gateway.set(orderID, StatusPaid)
		_, err := f.svc.Reconcile(ctx, orderID)
		require.NoError(t, err)

		_, err = f.svc.CreateOrder(ctx, f.student, NewOrder{CourseID: f.course.ID})
		assert.Equal(t, ErrAlreadyEnrolled, err)
	})

	t.Run("gateway down", func(t *testing.T) {
		f := newFixture()
		f.gateway.err = errors.New("connection refused")
		_, err := f.svc.CreateOrder(ctx, f.student, NewOrder{CourseID: f.course.ID})
		assert.Equal(t, core.ErrGatewayUnavailable, errors.Cause(err))
		assert.Empty(t, f.repo.orders)
	})
}

func TestService_Reconcile(t *testing.T) {
	ctx := context.Background()

	t.Run("paid then idempotent", func(t *testing.T) {
		f := newFixture()
		orderID := f.order(t)
		f.gateway.set(orderID, StatusPaid)

		res, err := f.svc.Reconcile(ctx, orderID)
		require.NoError(t, err)
		assert.Equal(t, ReconcileResult{OrderID: orderID, Status: StatusPaid, EnrollmentCreated: true}, res)
		assert.Len(t, f.repo.enrollments, 1)
		assert.Len(t, f.repo.payments, 1)
		assert.Equal(t, f.repo.enrollments[0].ID, f.repo.payments[orderID].EnrollmentID)
		assert.Equal(t, OrderPaid, f.repo.orders[orderID].Status)
		require.Len(t, f.mailer.sent, 1)
		assert.Equal(t, "payment_confirmation", f.mailer.sent[0].TemplateName)

		calls := f.gateway.calls
		res, err = f.svc.Reconcile(ctx, orderID)
		require.NoError(t, err)
		assert.Equal(t, ReconcileResult{OrderID: orderID, Status: StatusPaid, EnrollmentCreated: false}, res)
		assert.Len(t, f.repo.enrollments, 1)
		assert.Len(t, f.repo.payments, 1)
		assert.Equal(t, calls, f.gateway.calls, "gateway must not be queried again")
		assert.Len(t, f.mailer.sent, 1)
	})

	t.Run("pending and failed", func(t *testing.T) {
		f := newFixture()
		orderID := f.order(t)

		res, err := f.svc.Reconcile(ctx, orderID)
		require.NoError(t, err)
		assert.Equal(t, StatusPending, res.Status)
		assert.False(t, res.Success())

		f.gateway.set(orderID, StatusFailed)
		res, err = f.svc.Reconcile(ctx, orderID)
		require.NoError(t, err)
		assert.Equal(t, StatusFailed, res.Status)
		assert.False(t, res.EnrollmentCreated)
		assert.Empty(t, f.repo.enrollments)
		assert.Empty(t, f.repo.payments)
		assert.Equal(t, OrderPending, f.repo.orders[orderID].Status)
	})

	t.Run("not found", func(t *testing.T) {
		f := newFixture()
		for _, id := range []string{"", "  ", "ORD-UNKNOWN"} {
			_, err := f.svc.Reconcile(ctx, id)
			assert.Equal(t, ErrOrderNotFound, err, id)
		}

		// known locally, unknown at the gateway
		orderID := f.order(t)
		delete(f.gateway.statuses, orderID)
		_, err := f.svc.Reconcile(ctx, orderID)
		assert.True(t, core.IsNotFound(err))
	})

	t.Run("gateway unavailable", func(t *testing.T) {
		f := newFixture()
		orderID := f.order(t)
		f.gateway.err = errors.New("i/o timeout")

		_, err := f.svc.Reconcile(ctx, orderID)
		assert.Equal(t, core.ErrGatewayUnavailable, errors.Cause(err))
		assert.Empty(t, f.repo.payments)
	})

	t.Run("reuses active enrollment", func(t *testing.T) {
		f := newFixture()
		first, second := f.order(t), ""
		// a second checkout opened before the first one was paid
		o, _ := f.repo.GetOrderByOrderID(ctx, first)
		o.ID, o.OrderID = core.NewID(), core.NewID()
		second = o.OrderID
		_, _ = f.repo.CreateOrder(ctx, o)
		f.gateway.set(first, StatusPaid)
		f.gateway.set(second, StatusPaid)

		res, err := f.svc.Reconcile(ctx, first)
		require.NoError(t, err)
		assert.True(t, res.EnrollmentCreated)
		res, err = f.svc.Reconcile(ctx, second)
		require.NoError(t, err)
		assert.False(t, res.EnrollmentCreated)
		assert.Len(t, f.repo.enrollments, 1)
		assert.Len(t, f.repo.payments, 2)
	})

	t.Run("concurrent", func(t *testing.T) {
		f := newFixture()
		orderID := f.order(t)
		f.gateway.set(orderID, StatusPaid)

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			created int
		)
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				res, err := f.svc.Reconcile(ctx, orderID)
				assert.NoError(t, err)
				if res.EnrollmentCreated {
					mu.Lock()
					created++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, created)
		assert.Len(t, f.repo.enrollments, 1)
		assert.Len(t, f.repo.payments, 1)
	})
}

func TestService_SweepPending(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	paid, pending, stale := f.order(t), f.order(t), f.order(t)
	f.gateway.set(paid, StatusPaid)

	o := f.repo.orders[stale]
	o.CreatedAt = time.Now().Add(-48 * time.Hour)
	f.repo.orders[stale] = o
	f.gateway.set(stale, StatusPaid)

	res, err := f.svc.SweepPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Checked: 2, Paid: 1}, res)
	assert.Equal(t, OrderPaid, f.repo.orders[paid].Status)
	assert.Equal(t, OrderPending, f.repo.orders[pending].Status)
	assert.Equal(t, OrderPending, f.repo.orders[stale].Status)
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "150000", FormatAmount(150000, "IDR"))
	assert.Equal(t, "19.99", FormatAmount(1999, "inr"))
	assert.Equal(t, "0.05", FormatAmount(5, "USD"))
	assert.Equal(t, "-1.50", FormatAmount(-150, "USD"))
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in       string
		currency string
		want     int64
		wantErr  bool
	}{
		{in: "150000.00", currency: "IDR", want: 150000},
		{in: "19.99", currency: "INR", want: 1999},
		{in: " 0.1 ", currency: "usd", want: 10},
		{in: "abc", currency: "IDR", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAmount(tt.in, tt.currency)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
