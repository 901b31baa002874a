package submission

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/abiaedu/portal/core"
	"github.com/abiaedu/portal/core/district"
)

var (
	ErrNotFound = errors.New("submission not found")

	NowFunc      = time.Now // mockable
	GenerateCode = func() (string, error) { return core.NewNumericCode(codeDigits) } // mockable
)

type (
	Repository interface {
		CreateSubmission(ctx context.Context, sub Submission) (Submission, error)
		GetSubmission(ctx context.Context, id int) (Submission, error)
	}

	DistrictResolver interface {
		Resolve(ctx context.Context, name string) (district.District, error)
	}

	Settings struct {
		CodeTTL         time.Duration
		MaxCodeAttempts int
		Cooldown        time.Duration
	}

	// Service runs the submit -> verify email -> persist pipeline.
	Service struct {
		repo      Repository
		districts DistrictResolver
		mailSvc   core.EmailService
		logger    core.Logger
		validate  *validator.Validate
		settings  Settings
		ledger    *ledger
	}

	// Confirmation is the outcome of a successful Confirm.
	Confirmation struct {
		Submission Submission `json:"submission"`
		Notified   bool       `json:"notified"`
	}

	CodeEmailData struct {
		Code       string
		SchoolName string
		ValidFor   string
	}

	NotificationData struct {
		Submission Submission
	}
)

func NewService(
	repo Repository,
	districts DistrictResolver,
	mailSvc core.EmailService,
	logger core.Logger,
	validate *validator.Validate,
	settings Settings,
) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(districts, "districts"),
		vala.IsNotNil(mailSvc, "mailSvc"),
		vala.IsNotNil(logger, "logger"),
		vala.IsNotNil(validate, "validate"),
	).CheckAndPanic()

	if settings.MaxCodeAttempts <= 0 {
		settings.MaxCodeAttempts = 5
	}
	if settings.CodeTTL <= 0 {
		settings.CodeTTL = 10 * time.Minute
	}
	return &Service{
		repo:      repo,
		districts: districts,
		mailSvc:   mailSvc,
		logger:    logger,
		validate:  validate,
		settings:  settings,
		ledger:    newLedger(settings.CodeTTL),
	}
}

// Begin validates data, emails a verification code to the submitter and stores the challenge in sess.
// Nothing is persisted until Confirm.
func (svc *Service) Begin(ctx context.Context, sess Session, data NewSubmission) (Challenge, error) {
	now := NowFunc().UTC()
	if last := sess.LastConfirmedAt(); !last.IsZero() && svc.settings.Cooldown > 0 {
		if wait := last.Add(svc.settings.Cooldown).Sub(now); wait > 0 {
			return Challenge{}, core.NewThrottledError(ErrCooldown, wait)
		}
	}

	if err := data.Validate(svc.validate); err != nil {
		return Challenge{}, err
	}

	dist, err := svc.districts.Resolve(ctx, data.District)
	if err != nil {
		if errors.Is(err, district.ErrNotFound) {
			return Challenge{}, core.NewValidationError(ErrUnknownDistrict, core.FieldError{
				Field: "district", Error: ErrUnknownDistrict.Error(),
			})
		}
		return Challenge{}, errors.Wrap(err, "resolving district")
	}
	data.District = dist.Name

	code, err := GenerateCode()
	if err != nil {
		return Challenge{}, errors.Wrap(err, "generating code")
	}
	ch := Challenge{
		ID:         uuid.NewString(),
		Code:       code,
		Email:      data.Email,
		Payload:    data,
		DistrictID: dist.ID,
		District:   dist.Name,
		IssuedAt:   now,
		ExpiresAt:  now.Add(svc.settings.CodeTTL),
	}

	msg := &core.EmailMessage{
		To:           []mail.Address{{Name: data.SubmittedBy, Address: data.Email}},
		Subject:      "Your verification code",
		TemplateName: "submission_code",
		TemplateData: CodeEmailData{
			Code:       code,
			SchoolName: data.SchoolName,
			ValidFor:   svc.settings.CodeTTL.String(),
		},
	}
	if err := svc.mailSvc.SendMessages(ctx, msg); err != nil {
		return Challenge{}, core.NewDeliveryError(err)
	}

	sess.SetChallenge(&ch)
	return ch, nil
}

// Confirm checks code against the session's challenge and, on a match, stores the submission as pending.
func (svc *Service) Confirm(ctx context.Context, sess Session, handle, code string) (Confirmation, error) {
	ch := sess.Challenge()
	if ch == nil || ch.ID != handle || ch.valid() != nil {
		return Confirmation{}, codeError(ErrNoChallenge)
	}

	now := NowFunc().UTC()
	if ch.Expired(now) {
		sess.SetChallenge(nil)
		return Confirmation{}, codeError(ErrCodeExpired)
	}

	var rejected error
	matched := ch.Matches(code)
	svc.ledger.update(ch.ID, func(rec *challengeRecord) {
		switch {
		case rec.consumed:
			rejected = ErrNoChallenge
		case rec.attempts >= svc.settings.MaxCodeAttempts:
			rejected = ErrTooManyAttempts
		case !matched:
			rec.attempts++
			rejected = ErrCodeMismatch
			if rec.attempts >= svc.settings.MaxCodeAttempts {
				rejected = ErrTooManyAttempts
			}
		default:
			rec.consumed = true
		}
	})
	if rejected != nil {
		if rejected != ErrCodeMismatch {
			sess.SetChallenge(nil)
		}
		return Confirmation{}, codeError(rejected)
	}

	p := ch.Payload
	sub, err := svc.repo.CreateSubmission(ctx, Submission{
		SchoolName:      p.SchoolName,
		DistrictID:      ch.DistrictID,
		District:        ch.District,
		EnrollmentTotal: p.EnrollmentTotal,
		TeachersTotal:   p.TeachersTotal,
		SubmittedBy:     p.SubmittedBy,
		Email:           p.Email,
		Facilities:      FacilitySet(p.Facilities),
		PhotoPath:       p.PhotoPath,
		SubmittedAt:     now,
	})
	if err != nil {
		svc.ledger.update(ch.ID, func(rec *challengeRecord) { rec.consumed = false })
		return Confirmation{}, errors.Wrap(err, "creating submission")
	}
	sess.SetChallenge(nil)
	sess.SetLastConfirmedAt(now)

	res := Confirmation{Submission: sub, Notified: true}
	msg := &core.EmailMessage{
		To:           []mail.Address{{Name: sub.SubmittedBy, Address: sub.Email}},
		Subject:      "Submission received",
		TemplateName: "submission_received",
		TemplateData: NotificationData{Submission: sub},
	}
	if err := svc.mailSvc.SendMessages(ctx, msg); err != nil {
		res.Notified = false
		svc.logger.Warn(fmt.Sprintf("sending received notification for submission %d", sub.ID), err)
	}
	return res, nil
}

func (svc *Service) Get(ctx context.Context, id int) (Submission, error) {
	return svc.repo.GetSubmission(ctx, id)
}

func codeError(err error) error {
	return core.NewValidationError(err, core.FieldError{Field: "code", Error: err.Error()})
}
