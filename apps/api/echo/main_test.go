package echoapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	. "github.com/trezcool/darasa/apps/api/echo"
	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/contact"
	"github.com/trezcool/darasa/core/course"
	"github.com/trezcool/darasa/core/coursework"
	"github.com/trezcool/darasa/core/dashboard"
	"github.com/trezcool/darasa/core/payment"
	"github.com/trezcool/darasa/core/user"
	emailsvc "github.com/trezcool/darasa/services/email"
	logsvc "github.com/trezcool/darasa/services/logger"
	storagesvc "github.com/trezcool/darasa/services/storage"
	"github.com/trezcool/darasa/storage/database"
	"github.com/trezcool/darasa/storage/database/gormrepos"
	sqlxrepos "github.com/trezcool/darasa/storage/database/sqlx"
	"github.com/trezcool/darasa/tests"
)

const testIssuer = "https://id.darasa.test"

type testApp struct {
	conf    *core.Config
	db      *database.DB
	server  Server
	gateway *fakeGateway
	mailSvc *emailsvc.ConsoleServiceMock
	files   *storagesvc.LocalStore
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	conf := testutil.Config()
	conf.Server.JWTIssuer = testIssuer
	conf.Storage.LocalDir = t.TempDir()
	db := testutil.PrepareDB(t, conf)

	logger := logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), conf)
	tmpls, err := core.NewEmailTemplates(conf)
	require.NoError(t, err)
	mailSvc := emailsvc.NewConsoleServiceMock(conf, tmpls, logger)
	files := storagesvc.NewLocalStore(conf, "http://localhost:8000")
	gw := newFakeGateway()

	usrRepo := gormrepos.NewUserRepository(db)
	usrSvc := user.NewService(usrRepo)
	courseSvc := course.NewService(gormrepos.NewCourseRepository(db))
	paymentSvc := payment.NewService(payment.Options{
		Repo:      gormrepos.NewPaymentRepository(db),
		Gateway:   gw,
		Courses:   courseSvc,
		Users:     usrSvc,
		MailSvc:   mailSvc,
		Logger:    logger,
		Currency:  conf.Payment.Currency,
		ReturnURL: conf.Payment.ReturnURL,
		OrderTTL:  conf.Payment.OrderTTL,
	})

	srv := NewServer(Options{
		Conf:           conf,
		Logger:         logger,
		DisableReqLogs: true,
		Guard:          user.NewGuard(usrRepo),
		UserSvc:        usrSvc,
		CourseSvc:      courseSvc,
		CourseworkSvc:  coursework.NewService(gormrepos.NewCourseworkRepository(db), usrSvc, paymentSvc, files),
		PaymentSvc:     paymentSvc,
		DashboardSvc:   dashboard.NewService(sqlxrepos.NewStatsRepository(db)),
		ContactSvc:     contact.NewService(gormrepos.NewContactRepository(db), mailSvc, conf.ContactInbox),
		Files:          files,
	})

	return &testApp{conf: conf, db: db, server: srv, gateway: gw, mailSvc: mailSvc, files: files}
}

// do runs a request against the app.
func (a *testApp) do(method, path, token string, data ...[]byte) *httptest.ResponseRecorder {
	req, rec := newAuthRequest(method, path, token, data...)
	a.server.ServeHTTP(rec, req)
	return rec
}

func (a *testApp) token(t *testing.T, usr user.User) string {
	t.Helper()
	token, err := GenerateToken(a.conf.Server.JWTSecret, NewClaims(usr, testIssuer, time.Hour))
	require.NoError(t, err)
	return token
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	if method == "" {
		method = http.MethodGet
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj(): %v", err)
	}
	return data
}

func unmarchallObj(t *testing.T, rec *httptest.ResponseRecorder, obj interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), obj); err != nil {
		t.Fatalf("unmarchallObj(%s): %v", rec.Body.String(), err)
	}
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func runHttpTests(t *testing.T, app *testApp, tests []httpTest) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := app.do(tt.method, tt.path, tt.token, tt.body)
			checkCodeAndData(t, tt, rec)
		})
	}
}

// fakeGateway is an in-memory payment provider.
type fakeGateway struct {
	mu          sync.Mutex
	orders      map[string]payment.GatewayOrder
	failing     bool
	statusCalls int
}

var _ payment.Gateway = (*fakeGateway)(nil)

func newFakeGateway() *fakeGateway {
	return &fakeGateway{orders: make(map[string]payment.GatewayOrder)}
}

func (gw *fakeGateway) Name() string { return "fake" }

func (gw *fakeGateway) CreateOrder(_ context.Context, req payment.OrderRequest) (payment.GatewayCheckout, error) {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	if gw.failing {
		return payment.GatewayCheckout{}, io.ErrUnexpectedEOF
	}
	gw.orders[req.OrderID] = payment.GatewayOrder{OrderID: req.OrderID, Status: payment.StatusPending, Amount: req.Amount}
	return payment.GatewayCheckout{Token: "tok-" + req.OrderID, RedirectURL: "https://pay.test/" + req.OrderID}, nil
}

func (gw *fakeGateway) OrderStatus(_ context.Context, orderID string) (payment.GatewayOrder, error) {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	gw.statusCalls++
	if gw.failing {
		return payment.GatewayOrder{}, io.ErrUnexpectedEOF
	}
	o, ok := gw.orders[orderID]
	if !ok {
		return payment.GatewayOrder{}, payment.ErrGatewayOrderNotFound
	}
	return o, nil
}

func (gw *fakeGateway) setStatus(orderID string, status payment.Status) {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	o := gw.orders[orderID]
	o.OrderID = orderID
	o.Status = status
	if status == payment.StatusPaid {
		o.PaidAt = time.Now()
	}
	gw.orders[orderID] = o
}

func (gw *fakeGateway) calls() int {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	return gw.statusCalls
}

func (gw *fakeGateway) setFailing(failing bool) {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	gw.failing = failing
}
