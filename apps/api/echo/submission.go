package echoapi

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/abiaedu/portal/core/submission"
)

const (
	pageHome   = "home"
	pageVerify = "verify"
	pageAdmin  = "admin"
)

type submissionApi struct {
	svc *submission.Service
}

func registerSubmissionAPI(g *echo.Group, svc *submission.Service) {
	api := submissionApi{svc: svc}

	sg := g.Group("/submissions")
	sg.POST("", api.begin)
	sg.POST("/confirm", api.confirm)
}

func (api *submissionApi) begin(ctx echo.Context) error {
	var data submission.NewSubmission
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSubmission")
	}

	state := getContextSession(ctx)
	ch, err := api.svc.Begin(ctx.Request().Context(), state, data)
	if err != nil {
		return err
	}
	state.SetPage(pageVerify)

	return ctx.JSON(http.StatusAccepted, BeginResponse{
		Challenge: ch.ID,
		Email:     ch.Email,
		ExpiresAt: ch.ExpiresAt,
	})
}

func (api *submissionApi) confirm(ctx echo.Context) error {
	var data ConfirmRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ConfirmRequest")
	}

	state := getContextSession(ctx)
	res, err := api.svc.Confirm(ctx.Request().Context(), state, data.Challenge, data.Code)
	if err != nil {
		return err
	}
	state.SetPage(pageHome)

	return ctx.JSON(http.StatusCreated, res)
}

type (
	BeginResponse struct {
		Challenge string    `json:"challenge"`
		Email     string    `json:"email"`
		ExpiresAt time.Time `json:"expires_at"`
	}

	ConfirmRequest struct {
		Challenge string `json:"challenge"`
		Code      string `json:"code"`
	}
)
