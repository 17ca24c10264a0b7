package main

import (
	"log"
	"os"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/course"
	"github.com/trezcool/darasa/core/payment"
	"github.com/trezcool/darasa/core/user"
	emailsvc "github.com/trezcool/darasa/services/email"
	logsvc "github.com/trezcool/darasa/services/logger"
	paymentsvc "github.com/trezcool/darasa/services/payment"
	"github.com/trezcool/darasa/storage/database"
	"github.com/trezcool/darasa/storage/database/gormrepos"
)

var logger *logsvc.RollbarLogger

func main() {
	conf := core.NewConfig()

	logger = logsvc.NewRollbarLogger(
		log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	// set up DB
	db, err := database.Open(conf)
	errAndDie(err)

	tmpls, err := core.NewEmailTemplates(conf)
	errAndDie(err)
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf, tmpls, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, tmpls, logger)
	}
	gateway, err := paymentsvc.NewGateway(conf)
	errAndDie(err)

	usrSvc := user.NewService(gormrepos.NewUserRepository(db))

	// start CLI
	cli := commandLine{
		conf:   conf,
		db:     db,
		usrSvc: usrSvc,
		paymentSvc: payment.NewService(payment.Options{
			Repo:      gormrepos.NewPaymentRepository(db),
			Gateway:   gateway,
			Courses:   course.NewService(gormrepos.NewCourseRepository(db)),
			Users:     usrSvc,
			MailSvc:   mailSvc,
			Logger:    logger,
			Currency:  conf.Payment.Currency,
			ReturnURL: conf.Payment.ReturnURL,
			OrderTTL:  conf.Payment.OrderTTL,
		}),
		out: os.Stdout,
	}
	err = cli.run(os.Args)
	_ = db.Close()
	if err != nil {
		if err != errHelp {
			logger.Error("command failed", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err.Error(), err)
	}
}
