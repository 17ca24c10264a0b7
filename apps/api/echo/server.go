package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/contact"
	"github.com/trezcool/darasa/core/course"
	"github.com/trezcool/darasa/core/coursework"
	"github.com/trezcool/darasa/core/dashboard"
	"github.com/trezcool/darasa/core/payment"
	"github.com/trezcool/darasa/core/user"
	storagesvc "github.com/trezcool/darasa/services/storage"
)

type (
	Options struct {
		Conf           *core.Config
		Logger         core.Logger
		DisableReqLogs bool

		Guard         *user.Guard
		UserSvc       *user.Service
		CourseSvc     *course.Service
		CourseworkSvc *coursework.Service
		PaymentSvc    *payment.Service
		DashboardSvc  *dashboard.Service
		ContactSvc    *contact.Service
		Files         *storagesvc.LocalStore // serves /files when set
	}

	Server interface {
		http.Handler
		Start()
		Shutdown(context.Context) error
		Close() error
		Errors() <-chan error
		ShutdownSignal() <-chan os.Signal
	}

	server struct {
		opts     Options
		app      *echo.Echo
		verifier tokenVerifier
		errors   chan error
		shutdown chan os.Signal
	}
)

var _ Server = (*server)(nil)

func NewServer(opts Options) Server {
	s := &server{
		opts: opts,
		app:  echo.New(),
		verifier: tokenVerifier{
			secret: []byte(opts.Conf.Server.JWTSecret),
			issuer: opts.Conf.Server.JWTIssuer,
		},
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *server) setup() {
	conf := s.opts.Conf

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.opts.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{conf.FrontendBaseURL},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.opts.Logger, s.signalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", s.home)

	api := s.app.Group("/api", s.authenticate)
	admin := api.Group("/admin", s.requireRoles(user.RoleAdmin))

	registerCourseAPI(api, admin, s.opts.CourseSvc)
	registerCourseworkAPI(api, admin, s.requireRoles, s.opts.CourseworkSvc)
	registerUserAPI(api, admin, s.requireRoles, s.opts.UserSvc)
	registerDashboardAPI(admin, s.opts.DashboardSvc)
	registerPaymentAPI(api, s.requireRoles, s.opts.PaymentSvc)
	registerContactAPI(api, s.publicWriteLimiter(), s.opts.ContactSvc)

	if s.opts.Files != nil {
		registerFileAPI(s.app, s.opts.Files)
	}
}

// publicWriteLimiter throttles anonymous writes per client IP.
func (s *server) publicWriteLimiter() echo.MiddlewareFunc {
	if s.opts.Conf.TestMode {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	return middleware.RateLimiter(middleware.NewRateLimiterMemoryStoreWithConfig(
		middleware.RateLimiterMemoryStoreConfig{Rate: 1, Burst: 5, ExpiresIn: 10 * time.Minute},
	))
}

func (s *server) Start() {
	if err := s.app.Start(s.opts.Conf.Server.Address); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *server) Shutdown(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *server) Close() error {
	return s.app.Close()
}

func (s *server) Errors() <-chan error {
	return s.errors
}

func (s *server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

func (s *server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default: // already shutting down
	}
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.opts.Conf.AppName+" API!")
}
