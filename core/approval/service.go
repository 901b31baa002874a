package approval

import (
	"context"
	"fmt"
	"net/mail"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/abiaedu/portal/core"
	"github.com/abiaedu/portal/core/submission"
)

// ErrAlreadyReviewed is returned when deciding on a submission that is no longer pending.
var ErrAlreadyReviewed = errors.New("submission has already been reviewed")

type (
	Repository interface {
		// ListPendingSubmissions returns submissions awaiting review, newest first.
		ListPendingSubmissions(ctx context.Context) ([]submission.Submission, error)
		// DecideSubmission atomically flips a pending submission to approved or rejected, upserts the
		// district fact when approving and records the activity. It returns submission.ErrNotFound or
		// ErrAlreadyReviewed without writing anything when the submission cannot transition.
		DecideSubmission(ctx context.Context, id int, approve bool, actor string) (submission.Submission, *Fact, error)
		ListFacts(ctx context.Context) ([]Fact, error)
		ListActivity(ctx context.Context, limit int) ([]Activity, error)
	}

	Service struct {
		repo    Repository
		mailSvc core.EmailService
		logger  core.Logger
	}

	// Decision is the outcome of Approve or Reject.
	Decision struct {
		Submission submission.Submission `json:"submission"`
		Fact       *Fact                 `json:"fact,omitempty"`
		Notified   bool                  `json:"notified"`
	}

	DecisionEmailData struct {
		Submission submission.Submission
	}
)

func NewService(repo Repository, mailSvc core.EmailService, logger core.Logger) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(mailSvc, "mailSvc"),
		vala.IsNotNil(logger, "logger"),
	).CheckAndPanic()
	return &Service{repo: repo, mailSvc: mailSvc, logger: logger}
}

func (svc *Service) ListPending(ctx context.Context) ([]submission.Submission, error) {
	return svc.repo.ListPendingSubmissions(ctx)
}

// Approve marks the submission approved and overwrites its district's fact with its counts.
func (svc *Service) Approve(ctx context.Context, id int, actor string) (Decision, error) {
	return svc.decide(ctx, id, true, actor)
}

// Reject marks the submission rejected. Facts are left untouched.
func (svc *Service) Reject(ctx context.Context, id int, actor string) (Decision, error) {
	return svc.decide(ctx, id, false, actor)
}

func (svc *Service) decide(ctx context.Context, id int, approve bool, actor string) (Decision, error) {
	sub, fact, err := svc.repo.DecideSubmission(ctx, id, approve, actor)
	if err != nil {
		return Decision{}, err
	}

	res := Decision{Submission: sub, Fact: fact, Notified: true}
	msg := &core.EmailMessage{
		To:           []mail.Address{{Name: sub.SubmittedBy, Address: sub.Email}},
		TemplateData: DecisionEmailData{Submission: sub},
	}
	if approve {
		msg.Subject = "Submission approved"
		msg.TemplateName = "submission_approved"
	} else {
		msg.Subject = "Submission rejected"
		msg.TemplateName = "submission_rejected"
	}
	if err := svc.mailSvc.SendMessages(ctx, msg); err != nil {
		res.Notified = false
		svc.logger.Warn(fmt.Sprintf("sending %s notification for submission %d", msg.TemplateName, sub.ID), err)
	}
	return res, nil
}

func (svc *Service) Facts(ctx context.Context) ([]Fact, error) {
	return svc.repo.ListFacts(ctx)
}

func (svc *Service) Activity(ctx context.Context, limit int) ([]Activity, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return svc.repo.ListActivity(ctx, limit)
}
