package tests

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/crypto/bcrypt"

	. "github.com/abiaedu/portal/apps/api/echo"
	"github.com/abiaedu/portal/core"
	"github.com/abiaedu/portal/core/admin"
	"github.com/abiaedu/portal/core/approval"
	"github.com/abiaedu/portal/core/district"
	"github.com/abiaedu/portal/core/report"
	"github.com/abiaedu/portal/core/submission"
	"github.com/abiaedu/portal/core/user"
	"github.com/abiaedu/portal/services/email"
	"github.com/abiaedu/portal/storage/database/inmem"
	"github.com/abiaedu/portal/tests"
)

const (
	adminPwd = "Adm1n-Pa55!"
	userPwd  = "Tr0ub4dor&3x"

	abaNorth, abaSouth, bende = 1, 2, 4
)

var (
	errMissingToken = httpErr{Error: "missing or malformed jwt"}
	errSMTP         = errors.New("smtp: connection refused")
)

// fixture is one API server over a fresh in-memory store, plus the cookies of a single browser.
type fixture struct {
	t          *testing.T
	app        Server
	conf       *core.Config
	usrRepo    user.Repository
	subRepo    submission.Repository
	reportRepo report.Repository
	cookies    map[string]*http.Cookie
}

func setup(t *testing.T, mailSvc ...core.EmailService) *fixture {
	testutil.Setup(t)
	emailsvc.ResetSentMessages()

	conf := testutil.Config()
	hash, err := bcrypt.GenerateFromPassword([]byte(adminPwd), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("setup() failed: %v", err)
	}
	conf.Admin.PasswordHash = string(hash)

	// set up DB & repos
	db := inmemdb.Open()
	usrRepo := inmemdb.NewUserRepository(db)
	subRepo := inmemdb.NewSubmissionRepository(db)
	reportRepo := inmemdb.NewReportRepository(db)

	// set up services
	var mail core.EmailService = emailsvc.NewConsoleServiceMock(conf)
	if len(mailSvc) > 0 {
		mail = mailSvc[0]
	}
	logger := testutil.NewLogger()
	validate, translator := testutil.NewValidator()

	districtSvc := district.NewService(inmemdb.NewDistrictRepository(db))
	submissionSvc := submission.NewService(subRepo, districtSvc, mail, logger, validate, submission.Settings{
		CodeTTL:         conf.Submission.CodeTTL,
		MaxCodeAttempts: conf.Submission.MaxCodeAttempts,
		Cooldown:        conf.Submission.Cooldown,
	})
	usrSvc := user.NewServiceMock(usrRepo, mail, logger, validate, user.Settings{
		Secret:          conf.SecretKey,
		CodeTTL:         conf.AccountCodeTTL,
		MaxCodeAttempts: conf.AccountMaxCodeAttempts,
		ResetTimeout:    conf.PasswordResetTimeoutDelta,
	})

	// set up server
	app := NewServer(ServerDeps{
		Conf:          conf,
		Logger:        logger,
		Validate:      validate,
		Translator:    translator,
		AdminAuth:     admin.NewAuthenticatorFromConfig(conf),
		MailSvc:       mail,
		DistrictSvc:   districtSvc,
		SubmissionSvc: submissionSvc,
		ApprovalSvc:   approval.NewService(inmemdb.NewApprovalRepository(db), mail, logger),
		ReportSvc:     report.NewService(reportRepo, conf.Report.CacheTTL),
		UserSvc:       usrSvc,
	})

	return &fixture{
		t:          t,
		app:        app,
		conf:       conf,
		usrRepo:    usrRepo,
		subRepo:    subRepo,
		reportRepo: reportRepo,
		cookies:    make(map[string]*http.Cookie),
	}
}

// do serves one request, sending and then updating the fixture's cookies.
func (f *fixture) do(req *http.Request, rec *httptest.ResponseRecorder) *httptest.ResponseRecorder {
	for _, c := range f.cookies {
		req.AddCookie(c)
	}
	f.app.ServeHTTP(rec, req)
	for _, c := range rec.Result().Cookies() {
		if c.MaxAge < 0 {
			delete(f.cookies, c.Name)
			continue
		}
		f.cookies[c.Name] = c
	}
	return rec
}

func (f *fixture) post(path string, body interface{}, token ...string) *httptest.ResponseRecorder {
	var tok string
	if len(token) > 0 {
		tok = token[0]
	}
	req, rec := newAuthRequest(http.MethodPost, path, tok, marchallObj(f.t, body))
	return f.do(req, rec)
}

func (f *fixture) get(path string, token ...string) *httptest.ResponseRecorder {
	var tok string
	if len(token) > 0 {
		tok = token[0]
	}
	req, rec := newAuthRequest(http.MethodGet, path, tok)
	return f.do(req, rec)
}

// loginAdmin opens an admin session for the fixture's browser.
func (f *fixture) loginAdmin() {
	rec := f.post("/v1/admin/login", AdminLoginRequest{Username: "admin", Password: adminPwd})
	if rec.Code != http.StatusOK {
		f.t.Fatalf("loginAdmin() failed: %d %s", rec.Code, rec.Body.String())
	}
}

func (f *fixture) getToken(usr user.User) string {
	token, err := GenerateToken(f.conf, NewClaims(f.conf, usr))
	if err != nil {
		f.t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode(%s) failed: %v", rec.Body.String(), err)
	}
}

// sentCode returns the code of the last verification email.
func sentCode(t *testing.T) string {
	msg, ok := emailsvc.LastSentMessage()
	if !ok {
		t.Fatal("sentCode(): no email sent")
	}
	switch data := msg.TemplateData.(type) {
	case submission.CodeEmailData:
		return data.Code
	case user.VerificationEmailData:
		return data.Code
	}
	t.Fatalf("sentCode(): %q carries no code", msg.TemplateName)
	return ""
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if j1 == nil || j2 == nil {
		return false, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
