package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/sessions"
	"github.com/kat-co/vala"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/abiaedu/portal/core"
	"github.com/abiaedu/portal/core/admin"
	"github.com/abiaedu/portal/core/approval"
	"github.com/abiaedu/portal/core/district"
	"github.com/abiaedu/portal/core/report"
	"github.com/abiaedu/portal/core/submission"
	"github.com/abiaedu/portal/core/user"
)

type (
	ServerDeps struct {
		Conf       *core.Config
		Logger     core.Logger
		Validate   *validator.Validate
		Translator ut.Translator

		// SessionStore defaults to a cookie store keyed by Conf.SecretKey.
		SessionStore sessions.Store

		AdminAuth     *admin.Authenticator
		MailSvc       core.EmailService
		DistrictSvc   *district.Service
		SubmissionSvc *submission.Service
		ApprovalSvc   *approval.Service
		ReportSvc     *report.Service
		UserSvc       user.Service
	}

	Server interface {
		http.Handler
		Start()
		Shutdown(ctx context.Context) error
		Close() error
		Errors() <-chan error
		ShutdownSignal() <-chan os.Signal
	}

	server struct {
		deps     ServerDeps
		app      *echo.Echo
		errors   chan error
		shutdown chan os.Signal
	}
)

var _ Server = (*server)(nil)

func NewServer(deps ServerDeps) Server {
	vala.BeginValidation().Validate(
		vala.IsNotNil(deps.Conf, "Conf"),
		vala.IsNotNil(deps.Logger, "Logger"),
		vala.IsNotNil(deps.Validate, "Validate"),
		vala.IsNotNil(deps.Translator, "Translator"),
		vala.IsNotNil(deps.AdminAuth, "AdminAuth"),
		vala.IsNotNil(deps.MailSvc, "MailSvc"),
		vala.IsNotNil(deps.DistrictSvc, "DistrictSvc"),
		vala.IsNotNil(deps.SubmissionSvc, "SubmissionSvc"),
		vala.IsNotNil(deps.ApprovalSvc, "ApprovalSvc"),
		vala.IsNotNil(deps.ReportSvc, "ReportSvc"),
		vala.IsNotNil(deps.UserSvc, "UserSvc"),
	).CheckAndPanic()

	if deps.SessionStore == nil {
		deps.SessionStore = NewCookieStore(deps.Conf)
	}
	s := &server{
		deps:     deps,
		app:      echo.New(),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	s.setup()
	return s
}

func (s *server) setup() {
	conf := s.deps.Conf

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !conf.TestMode {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(sessionMiddleware(s.deps.SessionStore, conf.Server.SessionName, s.deps.Logger))

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.signalShutdown)
	s.app.Debug = conf.Debug && !conf.TestMode

	s.app.GET("/", home)

	v1 := s.app.Group("/v1")
	auth := newTokenAuth(conf, s.deps.UserSvc)

	registerDistrictAPI(v1, s.deps.DistrictSvc, s.deps.ReportSvc)
	registerSubmissionAPI(v1, s.deps.SubmissionSvc)
	registerAdminAPI(v1, s.deps.AdminAuth, s.deps.ApprovalSvc, s.deps.ReportSvc, s.deps.UserSvc)
	registerExportAPI(v1, auth, s.deps.ReportSvc, s.deps.MailSvc)
	registerUserAPI(v1, auth, s.deps.UserSvc, s.deps.Validate)
}

func (s *server) Start() {
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	if err := s.app.Start(s.deps.Conf.Server.Host); err != nil && err != http.ErrServerClosed {
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
	default:
	}
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to the Abia Schools Portal API!")
}
