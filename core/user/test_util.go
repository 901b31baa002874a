package user

import (
	"context"

	"github.com/go-playground/validator/v10"

	"github.com/abiaedu/portal/core"
)

type serviceMock struct {
	*service
}

// NewServiceMock returns a Service that sends password reset emails synchronously.
func NewServiceMock(
	repo Repository,
	mailSvc core.EmailService,
	logger core.Logger,
	validate *validator.Validate,
	settings Settings,
) Service {
	return &serviceMock{service: newService(repo, mailSvc, logger, validate, settings)}
}

func (svc *serviceMock) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if usr.Blocked {
		return nil
	}
	// run synchronously
	svc.sendPasswordResetMail(ctx, usr)
	return nil
}
