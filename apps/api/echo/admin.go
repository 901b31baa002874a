package echoapi

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/abiaedu/portal/core"
	"github.com/abiaedu/portal/core/admin"
	"github.com/abiaedu/portal/core/approval"
	"github.com/abiaedu/portal/core/report"
	"github.com/abiaedu/portal/core/submission"
	"github.com/abiaedu/portal/core/user"
)

type adminApi struct {
	auth        *admin.Authenticator
	approvalSvc *approval.Service
	reportSvc   *report.Service
	usrSvc      user.Service
}

func registerAdminAPI(
	g *echo.Group,
	auth *admin.Authenticator,
	approvalSvc *approval.Service,
	reportSvc *report.Service,
	usrSvc user.Service,
) {
	api := adminApi{
		auth:        auth,
		approvalSvc: approvalSvc,
		reportSvc:   reportSvc,
		usrSvc:      usrSvc,
	}

	ag := g.Group("/admin")
	ag.POST("/login", api.login)
	ag.POST("/logout", api.logout)

	// admin session required
	sg := ag.Group("", adminMiddleware())
	sg.GET("/submissions/pending", api.listPending)
	sg.POST("/submissions/:id/approve", api.approve)
	sg.POST("/submissions/:id/reject", api.reject)
	sg.GET("/facts", api.listFacts)
	sg.GET("/activity", api.listActivity)

	ug := sg.Group("/users")
	ug.GET("", api.queryUsers)
	ug.POST("/:id/approve", api.userAction(usrSvc.Approve))
	ug.POST("/:id/block", api.userAction(usrSvc.Block))
	ug.POST("/:id/unblock", api.userAction(usrSvc.Unblock))
	ug.POST("/:id/promote", api.userAction(usrSvc.Promote))
}

// Handlers

func (api *adminApi) login(ctx echo.Context) error {
	var data AdminLoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AdminLoginRequest")
	}

	state := getContextSession(ctx)
	if err := api.auth.Login(state, core.CleanString(data.Username), data.Password, core.CleanString(data.Code)); err != nil {
		return err
	}
	state.SetPage(pageAdmin)
	return ctx.JSON(http.StatusOK, AdminLoginResponse{Admin: state.Admin()})
}

func (api *adminApi) logout(ctx echo.Context) error {
	state := getContextSession(ctx)
	state.Logout()
	state.SetPage(pageHome)
	return ctx.NoContent(http.StatusNoContent)
}

func (api *adminApi) listPending(ctx echo.Context) error {
	subs, err := api.approvalSvc.ListPending(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "listing pending submissions")
	}
	if subs == nil {
		subs = []submission.Submission{}
	}
	return ctx.JSON(http.StatusOK, subs)
}

func (api *adminApi) approve(ctx echo.Context) error {
	return api.decide(ctx, api.approvalSvc.Approve)
}

func (api *adminApi) reject(ctx echo.Context) error {
	return api.decide(ctx, api.approvalSvc.Reject)
}

func (api *adminApi) decide(ctx echo.Context, decide func(context.Context, int, string) (approval.Decision, error)) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}

	res, err := decide(ctx.Request().Context(), id, getContextSession(ctx).Admin())
	if err != nil {
		return err
	}
	api.reportSvc.Invalidate()
	return ctx.JSON(http.StatusOK, res)
}

func (api *adminApi) listFacts(ctx echo.Context) error {
	facts, err := api.approvalSvc.Facts(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "listing facts")
	}
	if facts == nil {
		facts = []approval.Fact{}
	}
	return ctx.JSON(http.StatusOK, facts)
}

func (api *adminApi) listActivity(ctx echo.Context) error {
	limit, _ := strconv.Atoi(ctx.QueryParam("limit"))
	activity, err := api.approvalSvc.Activity(ctx.Request().Context(), limit)
	if err != nil {
		return errors.Wrap(err, "listing activity")
	}
	if activity == nil {
		activity = []approval.Activity{}
	}
	return ctx.JSON(http.StatusOK, activity)
}

func (api *adminApi) queryUsers(ctx echo.Context) error {
	var filter user.QueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []user.User{})
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)
	filter.Ordering = ordering.Orderings

	users, err := api.usrSvc.Query(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying users")
	}
	if users == nil {
		users = []user.User{}
	}
	return ctx.JSON(http.StatusOK, users)
}

func (api *adminApi) userAction(action func(context.Context, string) (user.User, error)) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		usr, err := action(ctx.Request().Context(), ctx.Param("id"))
		if err != nil {
			return err
		}
		return ctx.JSON(http.StatusOK, usr)
	}
}

type (
	AdminLoginRequest struct {
		Username string `json:"username"`
		Password string `json:"password"`
		Code     string `json:"code"`
	}

	AdminLoginResponse struct {
		Admin string `json:"admin"`
	}
)
