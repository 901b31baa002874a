package testutil

import (
	"context"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/abiaedu/portal/core"
	"github.com/abiaedu/portal/core/submission"
	"github.com/abiaedu/portal/core/user"
	appfs "github.com/abiaedu/portal/fs"
	logsvc "github.com/abiaedu/portal/services/logger"
)

var setupOnce sync.Once

// Setup loads the embedded email templates and password list. It is safe to call from every test.
func Setup(t testing.TB) {
	var err error
	setupOnce.Do(func() {
		if err = core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, "http://localhost:3000", true); err != nil {
			return
		}
		err = user.LoadCommonPasswords(appfs.FS, appfs.CommonPasswordsGz)
	})
	if err != nil {
		t.Fatalf("testutil.Setup(): %v", err)
	}
}

// Config returns the configuration used by tests.
func Config() *core.Config {
	conf := &core.Config{
		Debug:           true,
		TestMode:        true,
		Env:             "TEST",
		AppName:         "Abia Schools Portal",
		SecretKey:       "test-secret-key",
		FrontendBaseURL: "http://localhost:3000",
	}
	conf.SetDefaultFromEmail("noreply@test.test")
	conf.Server.JWTExpirationDelta = time.Hour
	conf.Server.JWTRefreshExpirationDelta = 24 * time.Hour
	conf.Server.SessionName = "abia_session"
	conf.Server.SessionMaxAge = time.Hour
	conf.Admin.Username = "admin"
	conf.Admin.MaxLoginAttempts = 5
	conf.Admin.LockoutDuration = 15 * time.Minute
	conf.Submission.CodeTTL = 10 * time.Minute
	conf.Submission.MaxCodeAttempts = 5
	conf.Submission.Cooldown = 120 * time.Second
	conf.Report.CacheTTL = 30 * time.Second
	conf.AccountCodeTTL = 30 * time.Minute
	conf.AccountMaxCodeAttempts = 5
	conf.PasswordResetTimeoutDelta = 3 * 24 * time.Hour
	return conf
}

// NewValidator returns a validator with every custom tag registered.
func NewValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	return validate, translator
}

// NewLogger returns a logger that discards everything.
func NewLogger() core.Logger {
	logger := logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), Config())
	logger.Enable(false)
	return logger
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, email, pwd, role string,
	verified, approved bool,
	createdAt ...time.Time,
) user.User {
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		ID:        uuid.NewString(),
		Name:      name,
		Email:     email,
		Role:      role,
		Verified:  verified,
		Approved:  approved,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

// CreateSubmission stores a pending submission in the given district.
func CreateSubmission(
	t *testing.T,
	repo submission.Repository,
	school string,
	districtID, enrollment, teachers int,
	submittedAt ...time.Time,
) submission.Submission {
	tstamp := time.Now().UTC()
	if len(submittedAt) > 0 {
		tstamp = submittedAt[0].UTC()
	}
	sub, err := repo.CreateSubmission(context.Background(), submission.Submission{
		SchoolName:      school,
		DistrictID:      districtID,
		EnrollmentTotal: enrollment,
		TeachersTotal:   teachers,
		SubmittedBy:     "Head Teacher",
		Email:           "head@school.test",
		Facilities:      []string{"Library"},
		SubmittedAt:     tstamp,
	})
	if err != nil {
		t.Fatalf("CreateSubmission() failed: %v", err)
	}
	return sub
}
