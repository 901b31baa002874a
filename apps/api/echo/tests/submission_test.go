package tests

import (
	"context"
	"net/http"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/abiaedu/portal/apps/api/echo"
	"github.com/abiaedu/portal/core/report"
	"github.com/abiaedu/portal/core/submission"
	"github.com/abiaedu/portal/services/email"
	"github.com/abiaedu/portal/tests"
)

func Test_submissionApi_begin(t *testing.T) {
	f := setup(t)
	invalid := schoolX()
	invalid.SchoolName = "  "
	invalid.TeachersTotal = 0
	unknown := schoolX()
	unknown.District = "Atlantis"

	tests := []httpTest{
		{
			name: "invalid fields", body: marchallObj(t, invalid), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{
				"school_name":    "this field is required",
				"teachers_total": "teachers_total must be greater than 0",
			}),
		},
		{
			name: "unknown district", body: marchallObj(t, unknown), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"district": submission.ErrUnknownDistrict.Error()}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(http.MethodPost, "/v1/submissions", tt.body)
			f.do(req, rec)
			checkCodeAndData(t, tt, rec)
		})
	}
	_, ok := emailsvc.LastSentMessage()
	assert.False(t, ok, "no code is sent for an invalid form")
}

func Test_submissionApi_deliveryFailure(t *testing.T) {
	f := setup(t, emailsvc.NewFailingServiceMock(testutil.Config(), errSMTP, "submission_code"))

	rec := f.post("/v1/submissions", schoolX())
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.JSONEq(t, `{"error": "the email could not be sent, please try again later"}`, rec.Body.String())
}

func Test_submissionApi_wrongCode(t *testing.T) {
	f := setup(t)

	rec := f.post("/v1/submissions", schoolX())
	require.Equal(t, http.StatusAccepted, rec.Code)
	var begin BeginResponse
	decode(t, rec, &begin)
	code := sentCode(t)
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	tests := []struct {
		name      string
		challenge string
		code      string
		wantError string
	}{
		{name: "unknown challenge", challenge: "nope", code: code, wantError: submission.ErrNoChallenge.Error()},
		{name: "mismatch", challenge: begin.Challenge, code: wrong, wantError: submission.ErrCodeMismatch.Error()},
		{name: "padded", challenge: begin.Challenge, code: " " + code, wantError: submission.ErrCodeMismatch.Error()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.post("/v1/submissions/confirm", ConfirmRequest{Challenge: tt.challenge, Code: tt.code})
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.JSONEq(t, string(marchallObj(t, map[string]string{"code": tt.wantError})), rec.Body.String())
		})
	}

	// a wrong code never creates a row
	rows, err := f.reportRepo.QuerySubmissions(context.Background(), report.Query{Status: submission.StatusAll})
	require.NoError(t, err)
	assert.Empty(t, rows)

	// the challenge survives wrong guesses until the limit
	rec = f.post("/v1/submissions/confirm", ConfirmRequest{Challenge: begin.Challenge, Code: code})
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func Test_submissionApi_tooManyAttempts(t *testing.T) {
	f := setup(t)

	rec := f.post("/v1/submissions", schoolX())
	require.Equal(t, http.StatusAccepted, rec.Code)
	var begin BeginResponse
	decode(t, rec, &begin)
	code := sentCode(t)
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	var last map[string]string
	for i := 0; i < f.conf.Submission.MaxCodeAttempts; i++ {
		rec = f.post("/v1/submissions/confirm", ConfirmRequest{Challenge: begin.Challenge, Code: wrong})
		require.Equal(t, http.StatusBadRequest, rec.Code)
		decode(t, rec, &last)
	}
	assert.Equal(t, submission.ErrTooManyAttempts.Error(), last["code"])

	rec = f.post("/v1/submissions/confirm", ConfirmRequest{Challenge: begin.Challenge, Code: code})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "the challenge is gone")
}

func Test_submissionApi_replayedCookie(t *testing.T) {
	savedCookies := func(f *fixture) map[string]*http.Cookie {
		saved := make(map[string]*http.Cookie, len(f.cookies))
		for name, c := range f.cookies {
			saved[name] = c
		}
		return saved
	}

	t.Run("after confirm", func(t *testing.T) {
		f := setup(t)
		rec := f.post("/v1/submissions", schoolX())
		require.Equal(t, http.StatusAccepted, rec.Code)
		var begin BeginResponse
		decode(t, rec, &begin)
		code := sentCode(t)
		saved := savedCookies(f)

		rec = f.post("/v1/submissions/confirm", ConfirmRequest{Challenge: begin.Challenge, Code: code})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		f.cookies = saved
		rec = f.post("/v1/submissions/confirm", ConfirmRequest{Challenge: begin.Challenge, Code: code})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, string(marchallObj(t, map[string]string{"code": submission.ErrNoChallenge.Error()})), rec.Body.String())

		rows, err := f.reportRepo.QuerySubmissions(context.Background(), report.Query{Status: submission.StatusAll})
		require.NoError(t, err)
		assert.Len(t, rows, 1)
	})

	t.Run("after too many attempts", func(t *testing.T) {
		f := setup(t)
		rec := f.post("/v1/submissions", schoolX())
		require.Equal(t, http.StatusAccepted, rec.Code)
		var begin BeginResponse
		decode(t, rec, &begin)
		code := sentCode(t)
		wrong := "000000"
		if code == wrong {
			wrong = "111111"
		}
		saved := savedCookies(f)

		for i := 0; i < f.conf.Submission.MaxCodeAttempts; i++ {
			rec = f.post("/v1/submissions/confirm", ConfirmRequest{Challenge: begin.Challenge, Code: wrong})
			require.Equal(t, http.StatusBadRequest, rec.Code)
		}

		f.cookies = saved
		rec = f.post("/v1/submissions/confirm", ConfirmRequest{Challenge: begin.Challenge, Code: code})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, string(marchallObj(t, map[string]string{"code": submission.ErrTooManyAttempts.Error()})), rec.Body.String())

		rows, err := f.reportRepo.QuerySubmissions(context.Background(), report.Query{Status: submission.StatusAll})
		require.NoError(t, err)
		assert.Empty(t, rows)
	})
}

func Test_submissionApi_cooldown(t *testing.T) {
	f := setup(t)
	f.submit(schoolX())

	rec := f.post("/v1/submissions", schoolX())
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	retry, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.True(t, retry > 0 && retry <= 120, "Retry-After = %d", retry)

	// another browser is not throttled
	f.cookies = make(map[string]*http.Cookie)
	rec = f.post("/v1/submissions", schoolX())
	assert.Equal(t, http.StatusAccepted, rec.Code)
}
