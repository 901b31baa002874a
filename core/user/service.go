package user

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/mail"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/abiaedu/portal/core"
)

const codeDigits = 6

var (
	// errors
	ErrNotFound         = errors.New("user not found")
	ErrEmailExists      = errors.New("a user with this email already exists")
	ErrBlocked          = errors.New("this account has been blocked")
	ErrNotVerified      = errors.New("this account's email address has not been verified")
	ErrNotApproved      = errors.New("this account is awaiting approval")
	ErrInvalidCode      = errors.New("the verification code is incorrect")
	ErrCodeExpired      = errors.New("the verification code has expired, please request a new one")
	ErrAlreadyVerified  = errors.New("this email address is already verified")
	ErrAlreadyAnalyst   = errors.New("this account already has the analyst role")
	ErrInvalidResetLink = errors.New("the password reset link is invalid or has expired")

	GenerateCode = func() (string, error) { return core.NewNumericCode(codeDigits) } // mockable
)

type (
	Repository interface {
		CreateUser(ctx context.Context, usr User) (User, error)
		GetUser(ctx context.Context, filter GetFilter) (User, error)
		UpdateUser(ctx context.Context, usr User) (User, error)
		// QueryUsers applies AND on the set QueryFilter fields; Search matches name or email, case-insensitive.
		QueryUsers(ctx context.Context, filter QueryFilter) ([]User, error)
	}

	Service interface {
		Register(ctx context.Context, nu NewUser) (User, error)
		ResendVerification(ctx context.Context, email string) error
		VerifyEmail(ctx context.Context, data VerifyEmail) (User, error)
		Authenticate(ctx context.Context, email, pwd string) (User, error)
		GetByID(ctx context.Context, id string) (User, error)
		GetByEmail(ctx context.Context, email string) (User, error)
		Query(ctx context.Context, filter QueryFilter) ([]User, error)
		Approve(ctx context.Context, id string) (User, error)
		Block(ctx context.Context, id string) (User, error)
		Unblock(ctx context.Context, id string) (User, error)
		Promote(ctx context.Context, id string) (User, error)
		ResetPassword(ctx context.Context, data ResetUserPassword) error
		RequestPasswordReset(ctx context.Context, email string) error
	}

	Settings struct {
		Secret          string
		CodeTTL         time.Duration
		MaxCodeAttempts int
		ResetTimeout    time.Duration
	}

	service struct {
		repo     Repository
		mailSvc  core.EmailService
		logger   core.Logger
		validate *validator.Validate
		settings Settings
		tokens   tokenGenerator
	}

	VerificationEmailData struct {
		Name     string
		Code     string
		ValidFor string
	}

	AccountEmailData struct {
		Name string
		Role string
	}

	PasswordResetEmailData struct {
		Name  string
		UID   string
		Token string
	}
)

var _ Service = (*service)(nil)

func NewService(
	repo Repository,
	mailSvc core.EmailService,
	logger core.Logger,
	validate *validator.Validate,
	settings Settings,
) Service {
	return newService(repo, mailSvc, logger, validate, settings)
}

func newService(
	repo Repository,
	mailSvc core.EmailService,
	logger core.Logger,
	validate *validator.Validate,
	settings Settings,
) *service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(mailSvc, "mailSvc"),
		vala.IsNotNil(logger, "logger"),
		vala.IsNotNil(validate, "validate"),
		vala.StringNotEmpty(settings.Secret, "settings.Secret"),
	).CheckAndPanic()

	if settings.CodeTTL <= 0 {
		settings.CodeTTL = 30 * time.Minute
	}
	if settings.MaxCodeAttempts <= 0 {
		settings.MaxCodeAttempts = 5
	}
	if settings.ResetTimeout <= 0 {
		settings.ResetTimeout = 3 * 24 * time.Hour
	}
	return &service{
		repo:     repo,
		mailSvc:  mailSvc,
		logger:   logger,
		validate: validate,
		settings: settings,
		tokens:   tokenGenerator{secret: []byte(settings.Secret), timeout: settings.ResetTimeout},
	}
}

// Register validates nu, stores the account unverified and emails it a verification code.
func (svc *service) Register(ctx context.Context, nu NewUser) (User, error) {
	if err := nu.Validate(svc.validate); err != nil {
		return User{}, err
	}

	now := NowFunc().UTC()
	usr := User{
		ID:        uuid.NewString(),
		Name:      nu.Name,
		Email:     nu.Email,
		Role:      nu.Role,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}
	code, err := svc.setVerificationCode(&usr, now)
	if err != nil {
		return User{}, err
	}

	usr, err = svc.repo.CreateUser(ctx, usr)
	if err != nil {
		if errors.Is(err, ErrEmailExists) {
			return User{}, core.NewValidationError(err, core.FieldError{Field: "email", Error: err.Error()})
		}
		return User{}, errors.Wrap(err, "creating user")
	}

	if err := svc.sendVerificationCode(ctx, usr, code); err != nil {
		// the account exists; the code can be requested again
		svc.logger.Warn(fmt.Sprintf("sending verification code to user %s", usr.ID), err, usr)
	}
	return usr, nil
}

// ResendVerification issues a fresh code for an unverified account.
func (svc *service) ResendVerification(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if usr.Verified {
		return core.NewValidationError(ErrAlreadyVerified, core.FieldError{Field: "email", Error: ErrAlreadyVerified.Error()})
	}

	now := NowFunc().UTC()
	code, err := svc.setVerificationCode(&usr, now)
	if err != nil {
		return err
	}
	usr.UpdatedAt = now
	if usr, err = svc.repo.UpdateUser(ctx, usr); err != nil {
		return errors.Wrap(err, "updating user")
	}
	if err := svc.sendVerificationCode(ctx, usr, code); err != nil {
		return core.NewDeliveryError(err)
	}
	return nil
}

// VerifyEmail checks the code sent at registration. Once verified the account awaits admin approval.
func (svc *service) VerifyEmail(ctx context.Context, data VerifyEmail) (User, error) {
	if err := data.Validate(svc.validate); err != nil {
		return User{}, err
	}
	usr, err := svc.GetByEmail(ctx, data.Email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return User{}, codeError(ErrInvalidCode)
		}
		return User{}, err
	}
	if usr.Verified {
		return usr, nil
	}

	now := NowFunc().UTC()
	switch {
	case usr.VerificationCodeHash == "",
		!usr.VerificationExpiresAt.Valid,
		!now.Before(usr.VerificationExpiresAt.Time),
		usr.VerificationAttempts >= svc.settings.MaxCodeAttempts:
		return User{}, codeError(ErrCodeExpired)
	}

	usr.UpdatedAt = now
	if !svc.codeMatches(usr, data.Code) {
		usr.VerificationAttempts++
		if _, err := svc.repo.UpdateUser(ctx, usr); err != nil {
			return User{}, errors.Wrap(err, "updating user")
		}
		return User{}, codeError(ErrInvalidCode)
	}

	usr.Verified = true
	usr.VerificationCodeHash = ""
	usr.VerificationExpiresAt = null.Time{}
	usr.VerificationAttempts = 0
	usr, err = svc.repo.UpdateUser(ctx, usr)
	return usr, errors.Wrap(err, "updating user")
}

// Authenticate checks credentials and the account state, then records the login.
func (svc *service) Authenticate(ctx context.Context, email, pwd string) (User, error) {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return User{}, err
	}
	if err = usr.CheckPassword(pwd); err != nil {
		return User{}, ErrNotFound
	}
	if err = usr.CanLogin(); err != nil {
		return User{}, err
	}
	usr.LastLogin = null.TimeFrom(NowFunc().UTC())
	usr, err = svc.repo.UpdateUser(ctx, usr)
	return usr, errors.Wrap(err, "setting last login")
}

func (svc *service) GetByID(ctx context.Context, id string) (User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return User{}, ErrNotFound
	}
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

func (svc *service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{Email: core.CleanString(email, true /* lower */)})
}

func (svc *service) Query(ctx context.Context, filter QueryFilter) ([]User, error) {
	filter.Clean()
	return svc.repo.QueryUsers(ctx, filter)
}

// Approve lets a verified account sign in and tells its owner.
func (svc *service) Approve(ctx context.Context, id string) (User, error) {
	usr, err := svc.GetByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	if !usr.Verified {
		return User{}, core.NewValidationError(ErrNotVerified)
	}
	if usr.Approved {
		return usr, nil
	}
	usr.Approved = true
	usr.UpdatedAt = NowFunc().UTC()
	if usr, err = svc.repo.UpdateUser(ctx, usr); err != nil {
		return User{}, errors.Wrap(err, "updating user")
	}

	msg := &core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      "Your account has been approved",
		TemplateName: "account_approved",
		TemplateData: AccountEmailData{Name: usr.Name, Role: usr.Role},
	}
	if err := svc.mailSvc.SendMessages(ctx, msg); err != nil {
		svc.logger.Warn(fmt.Sprintf("sending approval notice to user %s", usr.ID), err, usr)
	}
	return usr, nil
}

func (svc *service) Block(ctx context.Context, id string) (User, error) {
	return svc.setBlocked(ctx, id, true)
}

func (svc *service) Unblock(ctx context.Context, id string) (User, error) {
	return svc.setBlocked(ctx, id, false)
}

func (svc *service) setBlocked(ctx context.Context, id string, blocked bool) (User, error) {
	usr, err := svc.GetByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	if usr.Blocked == blocked {
		return usr, nil
	}
	usr.Blocked = blocked
	usr.UpdatedAt = NowFunc().UTC()
	usr, err = svc.repo.UpdateUser(ctx, usr)
	return usr, errors.Wrap(err, "updating user")
}

// Promote grants the analyst role to a school account.
func (svc *service) Promote(ctx context.Context, id string) (User, error) {
	usr, err := svc.GetByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	if usr.IsAnalyst() {
		return User{}, core.NewValidationError(ErrAlreadyAnalyst, core.FieldError{Field: "role", Error: ErrAlreadyAnalyst.Error()})
	}
	usr.Role = RoleAnalyst
	usr.UpdatedAt = NowFunc().UTC()
	usr, err = svc.repo.UpdateUser(ctx, usr)
	return usr, errors.Wrap(err, "updating user")
}

func (svc *service) ResetPassword(ctx context.Context, data ResetUserPassword) error {
	if err := data.Validate(svc.validate); err != nil {
		return err
	}
	id, err := decodeUID(data.UID)
	if err != nil {
		return core.NewValidationError(ErrInvalidResetLink)
	}
	usr, err := svc.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return core.NewValidationError(ErrInvalidResetLink)
		}
		return err
	}
	if err = svc.tokens.verifyToken(usr, data.Token); err != nil {
		return core.NewValidationError(ErrInvalidResetLink)
	}

	if err = usr.SetPassword(data.Password); err != nil {
		return errors.Wrap(err, "hashing password")
	}
	usr.UpdatedAt = NowFunc().UTC()
	_, err = svc.repo.UpdateUser(ctx, usr)
	return errors.Wrap(err, "updating user")
}

// RequestPasswordReset mails a reset link in the background. Unknown and blocked accounts get nothing.
func (svc *service) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if usr.Blocked {
		return nil
	}
	go svc.sendPasswordResetMail(context.Background(), usr)
	return nil
}

func (svc *service) sendPasswordResetMail(ctx context.Context, usr User) {
	msg := &core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      "Password Reset",
		TemplateName: "password_reset",
		TemplateData: PasswordResetEmailData{
			Name:  usr.Name,
			UID:   EncodeUID(usr),
			Token: svc.tokens.makeToken(usr),
		},
	}
	if err := svc.mailSvc.SendMessages(ctx, msg); err != nil {
		svc.logger.Error(fmt.Sprintf("sending password reset to user %s", usr.ID), err, usr)
	}
}

func (svc *service) setVerificationCode(usr *User, now time.Time) (string, error) {
	code, err := GenerateCode()
	if err != nil {
		return "", errors.Wrap(err, "generating code")
	}
	usr.VerificationCodeHash = core.HashCode(svc.settings.Secret, usr.ID, code)
	usr.VerificationExpiresAt = null.TimeFrom(now.Add(svc.settings.CodeTTL))
	usr.VerificationAttempts = 0
	return code, nil
}

func (svc *service) codeMatches(usr User, code string) bool {
	hash := core.HashCode(svc.settings.Secret, usr.ID, code)
	return subtle.ConstantTimeCompare([]byte(hash), []byte(usr.VerificationCodeHash)) == 1
}

func (svc *service) sendVerificationCode(ctx context.Context, usr User, code string) error {
	return svc.mailSvc.SendMessages(ctx, &core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      "Verify your email address",
		TemplateName: "account_verification",
		TemplateData: VerificationEmailData{
			Name:     usr.Name,
			Code:     code,
			ValidFor: svc.settings.CodeTTL.String(),
		},
	})
}

func codeError(err error) error {
	return core.NewValidationError(err, core.FieldError{Field: "code", Error: err.Error()})
}
