package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/abiaedu/portal/core/district"
	"github.com/abiaedu/portal/core/report"
)

type districtApi struct {
	svc       *district.Service
	reportSvc *report.Service
}

func registerDistrictAPI(g *echo.Group, svc *district.Service, reportSvc *report.Service) {
	api := districtApi{svc: svc, reportSvc: reportSvc}

	g.GET("/districts", api.list)
	g.GET("/dashboard/districts", api.dashboard)
}

func (api *districtApi) list(ctx echo.Context) error {
	districts, err := api.svc.List(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "listing districts")
	}
	return ctx.JSON(http.StatusOK, districts)
}

func (api *districtApi) dashboard(ctx echo.Context) error {
	rows, err := api.reportSvc.DistrictSummary(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "summarizing districts")
	}
	if rows == nil {
		rows = []report.DistrictSummary{}
	}
	return ctx.JSON(http.StatusOK, rows)
}
