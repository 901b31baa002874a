package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof" // register the /debug/pprof handlers
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	echoapi "github.com/abiaedu/portal/apps/api/echo"
	"github.com/abiaedu/portal/core"
	"github.com/abiaedu/portal/core/admin"
	"github.com/abiaedu/portal/core/approval"
	"github.com/abiaedu/portal/core/district"
	"github.com/abiaedu/portal/core/report"
	"github.com/abiaedu/portal/core/submission"
	"github.com/abiaedu/portal/core/user"
	appfs "github.com/abiaedu/portal/fs"
	emailsvc "github.com/abiaedu/portal/services/email"
	logsvc "github.com/abiaedu/portal/services/logger"
	"github.com/abiaedu/portal/storage/database"
	sqlxrepos "github.com/abiaedu/portal/storage/database/sqlx"
)

var build = "develop" // set with -ldflags "-X main.build=..."

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()
	conf.Build = build

	// set up loggers
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(conf.RollbarEnabled())

	dbLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	dbLogger.Enable(conf.RollbarEnabled())

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
	dbLogger.Info(fmt.Sprintf("Database ready : %s", conf.DatabaseAddress()))

	// set up email
	var mailSvc core.EmailService
	switch conf.Email.Backend {
	case "sendgrid":
		mailSvc = emailsvc.NewSendgridService(conf)
	case "smtp":
		mailSvc = emailsvc.NewSMTPService(conf)
	default:
		mailSvc = emailsvc.NewConsoleService(conf, stdLogger)
	}

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	if err = core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, conf.FrontendBaseURL, !conf.Debug); err != nil {
		logger.Fatal(fmt.Sprintf("parsing email templates: %v", err), err)
	}
	if err = user.LoadCommonPasswords(appfs.FS, appfs.CommonPasswordsGz); err != nil {
		logger.Error("loading common passwords", err)
	}

	// set up services
	districtSvc := district.NewService(sqlxrepos.NewDistrictRepository(db))
	submissionSvc := submission.NewService(
		sqlxrepos.NewSubmissionRepository(db),
		districtSvc,
		mailSvc,
		logger,
		validate,
		submission.Settings{
			CodeTTL:         conf.Submission.CodeTTL,
			MaxCodeAttempts: conf.Submission.MaxCodeAttempts,
			Cooldown:        conf.Submission.Cooldown,
		},
	)
	usrSvc := user.NewService(sqlxrepos.NewUserRepository(db), mailSvc, logger, validate, user.Settings{
		Secret:          conf.SecretKey,
		CodeTTL:         conf.AccountCodeTTL,
		MaxCodeAttempts: conf.AccountMaxCodeAttempts,
		ResetTimeout:    conf.PasswordResetTimeoutDelta,
	})

	adminAuth := admin.NewAuthenticatorFromConfig(conf)
	if !adminAuth.Configured() {
		logger.Warn("admin credential is not configured, admin login is disabled (see `admin hashpassword`)")
	}

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:          conf,
			Logger:        logger,
			Validate:      validate,
			Translator:    translator,
			AdminAuth:     adminAuth,
			MailSvc:       mailSvc,
			DistrictSvc:   districtSvc,
			SubmissionSvc: submissionSvc,
			ApprovalSvc:   approval.NewService(sqlxrepos.NewApprovalRepository(db), mailSvc, logger),
			ReportSvc:     report.NewService(sqlxrepos.NewReportRepository(db), conf.Report.CacheTTL),
			UserSvc:       usrSvc,
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

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Error(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

func setUpDB(conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db.DB); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
