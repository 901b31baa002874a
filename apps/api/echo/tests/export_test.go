package tests

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/abiaedu/portal/apps/api/echo"
	"github.com/abiaedu/portal/core/report"
	"github.com/abiaedu/portal/core/user"
	"github.com/abiaedu/portal/services/email"
	"github.com/abiaedu/portal/tests"
)

func Test_exportApi_download(t *testing.T) {
	f := setup(t)
	now := time.Now()
	testutil.CreateSubmission(t, f.subRepo, "Ngwa High", abaNorth, 400, 20, now.Add(-time.Hour))
	testutil.CreateSubmission(t, f.subRepo, "Bende Grammar", bende, 300, 15, now)

	school := f.getToken(testutil.CreateUser(t, f.usrRepo, "Ada Eze", "ada@school.test", userPwd, user.RoleSchool, true, true))
	analyst := f.getToken(testutil.CreateUser(t, f.usrRepo, "Ike Uche", "ike@moe.test", userPwd, user.RoleAnalyst, true, true))
	unapproved := f.getToken(testutil.CreateUser(t, f.usrRepo, "Obi Kalu", "obi@moe.test", userPwd, user.RoleAnalyst, true, false))

	tests := []httpTest{
		{name: "anonymous", token: "", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "school account", token: school, wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"})},
		{name: "unapproved analyst", token: unapproved, wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: user.ErrNotApproved.Error()})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.get("/v1/exports/submissions", tt.token)
			checkCodeAndData(t, tt, rec)
		})
	}

	rec := f.get("/v1/exports/submissions", analyst)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, report.ExportContentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), report.ExportFilename)
	rows := sheetRows(t, rec.Body.Bytes())
	require.Len(t, rows, 3)
	// newest first
	assert.Equal(t, "Bende Grammar", rows[1][1])
	assert.Equal(t, "Ngwa High", rows[2][1])

	rec = f.get("/v1/exports/submissions?district=bende", analyst)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rows = sheetRows(t, rec.Body.Bytes())
	require.Len(t, rows, 2)
	assert.Equal(t, "Bende Grammar", rows[1][1])

	// an admin session needs no token
	f.loginAdmin()
	rec = f.get("/v1/exports/submissions")
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func Test_exportApi_request(t *testing.T) {
	f := setup(t)
	testutil.CreateSubmission(t, f.subRepo, "Ngwa High", abaNorth, 400, 20)
	analystUsr := testutil.CreateUser(t, f.usrRepo, "Ike Uche", "ike@moe.test", userPwd, user.RoleAnalyst, true, true)
	analyst := f.getToken(analystUsr)
	school := f.getToken(testutil.CreateUser(t, f.usrRepo, "Ada Eze", "ada@school.test", userPwd, user.RoleSchool, true, true))

	rec := f.post("/v1/exports/requests", report.ExportFilter{})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.post("/v1/exports/requests", report.ExportFilter{}, school)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// admin sessions only download
	f.loginAdmin()
	rec = f.post("/v1/exports/requests", report.ExportFilter{})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	emailsvc.ResetSentMessages()
	rec = f.post("/v1/exports/requests", report.ExportFilter{Status: "pending"}, analyst)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var res ExportRequestResponse
	decode(t, rec, &res)
	assert.Equal(t, ExportRequestResponse{Email: analystUsr.Email, Rows: 1}, res)

	msg, ok := emailsvc.LastSentMessage()
	require.True(t, ok)
	assert.Equal(t, "data_export", msg.TemplateName)
	assert.Equal(t, analystUsr.Email, msg.To[0].Address)
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, report.ExportFilename, msg.Attachments[0].Filename)
	rows := sheetRows(t, msg.Attachments[0].Content)
	assert.Len(t, rows, 2)
}

func Test_exportApi_requestDeliveryFailure(t *testing.T) {
	f := setup(t, emailsvc.NewFailingServiceMock(testutil.Config(), errSMTP, "data_export"))
	analyst := f.getToken(testutil.CreateUser(t, f.usrRepo, "Ike Uche", "ike@moe.test", userPwd, user.RoleAnalyst, true, true))

	rec := f.post("/v1/exports/requests", report.ExportFilter{}, analyst)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.JSONEq(t, `{"error": "the email could not be sent, please try again later"}`, rec.Body.String())
}
