package echoapi

import (
	"fmt"
	"net/http"
	"net/mail"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/abiaedu/portal/core"
	"github.com/abiaedu/portal/core/report"
)

type exportApi struct {
	auth    *tokenAuth
	svc     *report.Service
	mailSvc core.EmailService
}

func registerExportAPI(g *echo.Group, auth *tokenAuth, svc *report.Service, mailSvc core.EmailService) {
	api := exportApi{auth: auth, svc: svc, mailSvc: mailSvc}

	eg := g.Group("/exports")
	eg.GET("/submissions", api.download, auth.middleware(skipWhenAdmin), adminOrAnalystMiddleware(auth))
	eg.POST("/requests", api.request, auth.middleware(), analystMiddleware(auth))
}

func (api *exportApi) download(ctx echo.Context) error {
	var filter report.ExportFilter
	if err := ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding to ExportFilter")
	}

	sheet, err := api.svc.Export(ctx.Request().Context(), filter)
	if err != nil {
		return err
	}
	ctx.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", sheet.Filename))
	return ctx.Blob(http.StatusOK, report.ExportContentType, sheet.Content)
}

// request mails the selected submissions to the analyst as a spreadsheet attachment.
func (api *exportApi) request(ctx echo.Context) error {
	var filter report.ExportFilter
	if err := ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding to ExportFilter")
	}

	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	sheet, err := api.svc.Export(ctx.Request().Context(), filter)
	if err != nil {
		return err
	}

	msg := report.ExportMessage(mail.Address{Name: usr.Name, Address: usr.Email}, sheet)
	if err = api.mailSvc.SendMessages(ctx.Request().Context(), msg); err != nil {
		return core.NewDeliveryError(err)
	}
	return ctx.JSON(http.StatusAccepted, ExportRequestResponse{Email: usr.Email, Rows: sheet.Rows})
}

type ExportRequestResponse struct {
	Email string `json:"email"`
	Rows  int    `json:"rows"`
}
