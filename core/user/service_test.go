package user_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abiaedu/portal/core"
	"github.com/abiaedu/portal/core/user"
	"github.com/abiaedu/portal/services/email"
	"github.com/abiaedu/portal/storage/database/inmem"
	"github.com/abiaedu/portal/tests"
)

const (
	testCode = "654321"
	testPwd  = "Tr0ub4dor&3x"
)

type fixture struct {
	repo user.Repository
	svc  user.Service
}

func newFixture(t *testing.T, mailSvc core.EmailService) fixture {
	testutil.Setup(t)
	emailsvc.ResetSentMessages()
	user.GenerateCode = func() (string, error) { return testCode, nil }
	t.Cleanup(func() {
		user.GenerateCode = func() (string, error) { return core.NewNumericCode(6) }
		user.NowFunc = time.Now
	})

	repo := inmemdb.NewUserRepository(inmemdb.Open())
	if mailSvc == nil {
		mailSvc = emailsvc.NewConsoleServiceMock(testutil.Config())
	}
	validate, _ := testutil.NewValidator()
	svc := user.NewServiceMock(repo, mailSvc, testutil.NewLogger(), validate, user.Settings{
		Secret:          "test-secret-key",
		CodeTTL:         30 * time.Minute,
		MaxCodeAttempts: 3,
		ResetTimeout:    3 * 24 * time.Hour,
	})
	return fixture{repo: repo, svc: svc}
}

func newUser(role string) user.NewUser {
	return user.NewUser{
		Name:            "Ngozi Okafor",
		Email:           "Ngozi@School.test",
		Role:            role,
		Password:        testPwd,
		PasswordConfirm: testPwd,
	}
}

func validationErr(t *testing.T, err error) *core.ValidationError {
	t.Helper()
	var vErr *core.ValidationError
	require.True(t, errors.As(err, &vErr), "want *core.ValidationError, got %v", err)
	return vErr
}

func TestService_Register(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	usr, err := f.svc.Register(ctx, newUser(""))
	require.NoError(t, err)
	assert.Equal(t, "ngozi@school.test", usr.Email)
	assert.Equal(t, user.RoleSchool, usr.Role)
	assert.Equal(t, user.StateRegistered, usr.State())
	assert.NotEqual(t, testCode, usr.VerificationCodeHash, "only the hash is stored")
	assert.Equal(t, core.HashCode(testutil.Config().SecretKey, usr.ID, testCode), usr.VerificationCodeHash)
	assert.NoError(t, usr.CheckPassword(testPwd))

	msg, ok := emailsvc.LastSentMessage()
	require.True(t, ok)
	assert.Equal(t, "account_verification", msg.TemplateName)
	assert.Equal(t, "ngozi@school.test", msg.To[0].Address)
	assert.Equal(t, testCode, msg.TemplateData.(user.VerificationEmailData).Code)

	_, err = f.svc.Register(ctx, newUser(user.RoleAnalyst))
	vErr := validationErr(t, err)
	assert.Equal(t, user.ErrEmailExists, vErr.Err)
	assert.Equal(t, "email", vErr.Fields[0].Field)
}

func TestService_Register_DeliveryFailure(t *testing.T) {
	f := newFixture(t, emailsvc.NewFailingServiceMock(testutil.Config(), errors.New("smtp down")))

	usr, err := f.svc.Register(context.Background(), newUser(""))
	require.NoError(t, err, "the account is kept, the code can be resent")
	assert.NotEmpty(t, usr.ID)

	err = f.svc.ResendVerification(context.Background(), usr.Email)
	var dErr *core.DeliveryError
	assert.True(t, errors.As(err, &dErr))
}

func TestService_VerifyEmail(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	usr, err := f.svc.Register(ctx, newUser(""))
	require.NoError(t, err)

	_, err = f.svc.VerifyEmail(ctx, user.VerifyEmail{Email: "nobody@school.test", Code: testCode})
	assert.Equal(t, user.ErrInvalidCode, validationErr(t, err).Err)

	_, err = f.svc.VerifyEmail(ctx, user.VerifyEmail{Email: usr.Email, Code: "000000"})
	vErr := validationErr(t, err)
	assert.Equal(t, user.ErrInvalidCode, vErr.Err)
	assert.Equal(t, "code", vErr.Fields[0].Field)

	usr, err = f.svc.VerifyEmail(ctx, user.VerifyEmail{Email: " NGOZI@school.test ", Code: testCode})
	require.NoError(t, err)
	assert.True(t, usr.Verified)
	assert.Equal(t, user.StateVerified, usr.State())
	assert.Empty(t, usr.VerificationCodeHash)
	assert.Zero(t, usr.VerificationAttempts)

	// verifying twice is harmless
	_, err = f.svc.VerifyEmail(ctx, user.VerifyEmail{Email: usr.Email, Code: "000000"})
	assert.NoError(t, err)

	err = f.svc.ResendVerification(ctx, usr.Email)
	assert.Equal(t, user.ErrAlreadyVerified, validationErr(t, err).Err)
}

func TestService_VerifyEmail_Exhausted(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	usr, err := f.svc.Register(ctx, newUser(""))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err = f.svc.VerifyEmail(ctx, user.VerifyEmail{Email: usr.Email, Code: "000000"})
		assert.Equal(t, user.ErrInvalidCode, validationErr(t, err).Err)
	}
	_, err = f.svc.VerifyEmail(ctx, user.VerifyEmail{Email: usr.Email, Code: testCode})
	assert.Equal(t, user.ErrCodeExpired, validationErr(t, err).Err)

	// a fresh code resets the attempts
	require.NoError(t, f.svc.ResendVerification(ctx, usr.Email))
	_, err = f.svc.VerifyEmail(ctx, user.VerifyEmail{Email: usr.Email, Code: testCode})
	assert.NoError(t, err)
}

func TestService_VerifyEmail_HashBoundToUser(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	first, err := f.svc.Register(ctx, newUser(""))
	require.NoError(t, err)
	other := newUser("")
	other.Email = "chidi@school.test"
	second, err := f.svc.Register(ctx, other)
	require.NoError(t, err)

	// both were sent the same code
	assert.NotEqual(t, first.VerificationCodeHash, second.VerificationCodeHash)

	second.VerificationCodeHash = first.VerificationCodeHash
	_, err = f.repo.UpdateUser(ctx, second)
	require.NoError(t, err)

	_, err = f.svc.VerifyEmail(ctx, user.VerifyEmail{Email: second.Email, Code: testCode})
	assert.Equal(t, user.ErrInvalidCode, validationErr(t, err).Err)

	_, err = f.svc.VerifyEmail(ctx, user.VerifyEmail{Email: first.Email, Code: testCode})
	assert.NoError(t, err)
}

func TestService_VerifyEmail_Expired(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	usr, err := f.svc.Register(ctx, newUser(""))
	require.NoError(t, err)

	user.NowFunc = func() time.Time { return time.Now().Add(31 * time.Minute) }
	_, err = f.svc.VerifyEmail(ctx, user.VerifyEmail{Email: usr.Email, Code: testCode})
	assert.Equal(t, user.ErrCodeExpired, validationErr(t, err).Err)
}

func TestService_Authenticate(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	pending := testutil.CreateUser(t, f.repo, "Pending", "pending@school.test", testPwd, user.RoleSchool, true, false)
	unverified := testutil.CreateUser(t, f.repo, "New", "new@school.test", testPwd, user.RoleSchool, false, false)
	active := testutil.CreateUser(t, f.repo, "Active", "active@school.test", testPwd, user.RoleAnalyst, true, true)
	blocked := testutil.CreateUser(t, f.repo, "Blocked", "blocked@school.test", testPwd, user.RoleSchool, true, true)
	_, err := f.svc.Block(ctx, blocked.ID)
	require.NoError(t, err)

	tests := []struct {
		name    string
		email   string
		pwd     string
		wantErr error
	}{
		{name: "unknown", email: "ghost@school.test", pwd: testPwd, wantErr: user.ErrNotFound},
		{name: "wrong password", email: active.Email, pwd: "nope", wantErr: user.ErrNotFound},
		{name: "unverified", email: unverified.Email, pwd: testPwd, wantErr: user.ErrNotVerified},
		{name: "not approved", email: pending.Email, pwd: testPwd, wantErr: user.ErrNotApproved},
		{name: "blocked", email: blocked.Email, pwd: testPwd, wantErr: user.ErrBlocked},
		{name: "valid", email: " ACTIVE@school.test", pwd: testPwd},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			usr, err := f.svc.Authenticate(ctx, tt.email, tt.pwd)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, active.ID, usr.ID)
			assert.True(t, usr.LastLogin.Valid)
		})
	}
}

func TestService_Approve(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	unverified := testutil.CreateUser(t, f.repo, "New", "new@school.test", testPwd, user.RoleSchool, false, false)
	verified := testutil.CreateUser(t, f.repo, "Verified", "verified@school.test", testPwd, user.RoleAnalyst, true, false)

	_, err := f.svc.Approve(ctx, unverified.ID)
	assert.Equal(t, user.ErrNotVerified, validationErr(t, err).Err)

	_, err = f.svc.Approve(ctx, "not-a-uuid")
	assert.Equal(t, user.ErrNotFound, err)

	usr, err := f.svc.Approve(ctx, verified.ID)
	require.NoError(t, err)
	assert.Equal(t, user.StateApproved, usr.State())

	msg, ok := emailsvc.LastSentMessage()
	require.True(t, ok)
	assert.Equal(t, "account_approved", msg.TemplateName)
	assert.Equal(t, user.AccountEmailData{Name: "Verified", Role: user.RoleAnalyst}, msg.TemplateData)

	// approving again sends nothing
	emailsvc.ResetSentMessages()
	_, err = f.svc.Approve(ctx, verified.ID)
	require.NoError(t, err)
	_, ok = emailsvc.LastSentMessage()
	assert.False(t, ok)
}

func TestService_BlockPromote(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	usr := testutil.CreateUser(t, f.repo, "School", "school@school.test", testPwd, user.RoleSchool, true, true)

	got, err := f.svc.Block(ctx, usr.ID)
	require.NoError(t, err)
	assert.True(t, got.Blocked)

	blocked := true
	users, err := f.svc.Query(ctx, user.QueryFilter{Blocked: &blocked})
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, usr.ID, users[0].ID)

	got, err = f.svc.Unblock(ctx, usr.ID)
	require.NoError(t, err)
	assert.False(t, got.Blocked)

	got, err = f.svc.Promote(ctx, usr.ID)
	require.NoError(t, err)
	assert.True(t, got.IsAnalyst())

	_, err = f.svc.Promote(ctx, usr.ID)
	vErr := validationErr(t, err)
	assert.Equal(t, user.ErrAlreadyAnalyst, vErr.Err)
	assert.Equal(t, "role", vErr.Fields[0].Field)
}

func TestService_Query(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	now := time.Now()
	testutil.CreateUser(t, f.repo, "Ada Eze", "ada@school.test", testPwd, user.RoleSchool, false, false, now.Add(-3*time.Hour))
	testutil.CreateUser(t, f.repo, "Bola Obi", "bola@school.test", testPwd, user.RoleAnalyst, true, false, now.Add(-2*time.Hour))
	testutil.CreateUser(t, f.repo, "Chidi Eze", "chidi@school.test", testPwd, user.RoleAnalyst, true, true, now.Add(-time.Hour))

	tests := []struct {
		name   string
		filter user.QueryFilter
		want   []string
	}{
		{name: "all newest first", want: []string{"Chidi Eze", "Bola Obi", "Ada Eze"}},
		{name: "search", filter: user.QueryFilter{Search: " eze "}, want: []string{"Chidi Eze", "Ada Eze"}},
		{name: "role", filter: user.QueryFilter{Role: "ANALYST"}, want: []string{"Chidi Eze", "Bola Obi"}},
		{name: "state", filter: user.QueryFilter{State: user.StateVerified}, want: []string{"Bola Obi"}},
		{
			name:   "ordering",
			filter: user.QueryFilter{Ordering: []core.DBOrdering{{Field: "name", Ascending: true}}},
			want:   []string{"Ada Eze", "Bola Obi", "Chidi Eze"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users, err := f.svc.Query(ctx, tt.filter)
			require.NoError(t, err)
			names := make([]string, 0, len(users))
			for _, u := range users {
				names = append(names, u.Name)
			}
			assert.Equal(t, tt.want, names)
		})
	}
}

func TestService_PasswordReset(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	usr := testutil.CreateUser(t, f.repo, "Ada", "ada@school.test", testPwd, user.RoleSchool, true, true)

	assert.Equal(t, user.ErrNotFound, f.svc.RequestPasswordReset(ctx, "ghost@school.test"))
	require.NoError(t, f.svc.RequestPasswordReset(ctx, "ADA@school.test"))

	msg, ok := emailsvc.LastSentMessage()
	require.True(t, ok)
	assert.Equal(t, "password_reset", msg.TemplateName)
	data := msg.TemplateData.(user.PasswordResetEmailData)
	assert.Equal(t, user.EncodeUID(usr), data.UID)

	newPwd := "N3w-Passw0rd#"
	err := f.svc.ResetPassword(ctx, user.ResetUserPassword{
		UID: data.UID, Token: "bad-token", Password: newPwd, PasswordConfirm: newPwd,
	})
	assert.Equal(t, user.ErrInvalidResetLink, validationErr(t, err).Err)

	reset := user.ResetUserPassword{UID: data.UID, Token: data.Token, Password: newPwd, PasswordConfirm: newPwd}
	require.NoError(t, f.svc.ResetPassword(ctx, reset))

	_, err = f.svc.Authenticate(ctx, usr.Email, testPwd)
	assert.Equal(t, user.ErrNotFound, err)
	_, err = f.svc.Authenticate(ctx, usr.Email, newPwd)
	assert.NoError(t, err)

	// the token dies with the old password
	err = f.svc.ResetPassword(ctx, reset)
	assert.Equal(t, user.ErrInvalidResetLink, validationErr(t, err).Err)
}
