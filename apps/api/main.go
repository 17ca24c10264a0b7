package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net"
	"net/http"
	_ "net/http/pprof"
	"os"
	"time"

	echoapi "github.com/trezcool/darasa/apps/api/echo"
	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/contact"
	"github.com/trezcool/darasa/core/course"
	"github.com/trezcool/darasa/core/coursework"
	"github.com/trezcool/darasa/core/dashboard"
	"github.com/trezcool/darasa/core/payment"
	"github.com/trezcool/darasa/core/user"
	emailsvc "github.com/trezcool/darasa/services/email"
	locksvc "github.com/trezcool/darasa/services/lock"
	logsvc "github.com/trezcool/darasa/services/logger"
	paymentsvc "github.com/trezcool/darasa/services/payment"
	storagesvc "github.com/trezcool/darasa/services/storage"
	"github.com/trezcool/darasa/storage/database"
	"github.com/trezcool/darasa/storage/database/gormrepos"
	sqlxrepos "github.com/trezcool/darasa/storage/database/sqlx"
)

const reconcileLockTTL = 30 * time.Second

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	dbLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	dbLogger.Enable(!conf.Debug)

	// set up DB
	db, err := setUpDB(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			dbLogger.Error("Failed to close", err)
		}
	}()

	// set up services
	tmpls, err := core.NewEmailTemplates(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("parsing email templates: %v", err), err)
	}
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf, tmpls, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, tmpls, logger)
	}

	// files go to OSS when a bucket is configured, and to disk (served by the API) otherwise
	var (
		files      core.FileStore
		localFiles *storagesvc.LocalStore
	)
	if conf.Storage.Bucket != "" {
		if files, err = storagesvc.NewOSSStore(conf); err != nil {
			logger.Fatal(fmt.Sprintf("setting up file storage: %v", err), err)
		}
	} else {
		localFiles = storagesvc.NewLocalStore(conf, apiBaseURL(conf))
		files = localFiles
	}

	gateway, err := paymentsvc.NewGateway(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up payment gateway: %v", err), err)
	}

	var locker payment.Locker
	redisClient, err := locksvc.NewRedisClient(context.Background(), conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("connecting to redis: %v", err), err)
	}
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
		locker = locksvc.NewRedisLocker(redisClient, reconcileLockTTL, logger)
	}

	usrRepo := gormrepos.NewUserRepository(db)
	usrSvc := user.NewService(usrRepo)
	courseSvc := course.NewService(gormrepos.NewCourseRepository(db))
	paymentSvc := payment.NewService(payment.Options{
		Repo:      gormrepos.NewPaymentRepository(db),
		Gateway:   gateway,
		Courses:   courseSvc,
		Users:     usrSvc,
		MailSvc:   mailSvc,
		Locker:    locker,
		Logger:    logger,
		Currency:  conf.Payment.Currency,
		ReturnURL: conf.Payment.ReturnURL,
		OrderTTL:  conf.Payment.OrderTTL,
	})

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	expvar.NewString("paymentGateway").Set(gateway.Name())

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start Payment Sweeper

	scheduler, err := payment.NewScheduler(paymentSvc, conf.Payment.SweepSchedule, logger)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up payment sweeper: %v", err), err)
	}
	scheduler.Start()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.Options{
			Conf:          conf,
			Logger:        logger,
			Guard:         user.NewGuard(usrRepo),
			UserSvc:       usrSvc,
			CourseSvc:     courseSvc,
			CourseworkSvc: coursework.NewService(gormrepos.NewCourseworkRepository(db), usrSvc, paymentSvc, files),
			PaymentSvc:    paymentSvc,
			DashboardSvc:  dashboard.NewService(sqlxrepos.NewStatsRepository(db)),
			ContactSvc:    contact.NewService(gormrepos.NewContactRepository(db), mailSvc, conf.ContactInbox),
			Files:         localFiles,
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Error(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))
	}

	// give outstanding requests and a running sweep a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
	defer cancel()

	// asking listener to shutdown and shed load
	if err = server.Shutdown(ctx); err != nil {
		logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

		if err = server.Close(); err != nil {
			logger.Error(fmt.Sprintf("could not force stop server: %v", err), err)
		}
	}
	scheduler.Stop(ctx)
}

func setUpDB(conf *core.Config) (*database.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// apiBaseURL is the public address of this server, used in locally signed file URLs.
func apiBaseURL(conf *core.Config) string {
	_, port, err := net.SplitHostPort(conf.Server.Address)
	if err != nil || port == "" {
		return "http://" + conf.Server.Host
	}
	return "http://" + net.JoinHostPort(conf.Server.Host, port)
}
