package user

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abiaedu/portal/core"
	appfs "github.com/abiaedu/portal/fs"
)

func newValidator(t *testing.T) *validator.Validate {
	require.NoError(t, LoadCommonPasswords(appfs.FS, appfs.CommonPasswordsGz))
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	InitValidators(validate, translator)
	return validate
}

// failedTags returns "field:tag" for every validation failure in err.
func failedTags(err error) []string {
	var tags []string
	if errs, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range errs {
			tags = append(tags, fe.Field()+":"+fe.Tag())
		}
	}
	return tags
}

func TestNewUser_Validate(t *testing.T) {
	validate := newValidator(t)
	valid := func() NewUser {
		return NewUser{
			Name:            " Ngozi   Okafor ",
			Email:           " Ngozi.Okafor@School.TEST",
			Password:        "Tr0ub4dor&3x",
			PasswordConfirm: "Tr0ub4dor&3x",
		}
	}

	tests := []struct {
		name    string
		modify  func(nu *NewUser)
		wantErr []string
	}{
		{name: "valid", modify: func(nu *NewUser) {}},
		{name: "analyst", modify: func(nu *NewUser) { nu.Role = " Analyst " }},
		{name: "unknown role", modify: func(nu *NewUser) { nu.Role = "admin" }, wantErr: []string{"role:role"}},
		{name: "blank name", modify: func(nu *NewUser) { nu.Name = "   " }, wantErr: []string{"name:required"}},
		{name: "bad email", modify: func(nu *NewUser) { nu.Email = "ngozi" }, wantErr: []string{"email:email"}},
		{name: "confirm mismatch", modify: func(nu *NewUser) { nu.PasswordConfirm = "Tr0ub4dor&3y" }, wantErr: []string{"password_confirm:eqfield"}},
		{name: "too short", modify: setPassword("Ab1!"), wantErr: []string{"password:" + pwdMinLenTag}},
		{name: "whitespace", modify: setPassword("Abc 123!x"), wantErr: []string{"password:" + pwdNoSpaceTag}},
		{name: "all numeric", modify: setPassword("12345678"), wantErr: []string{"password:" + pwdNotAllNumTag}},
		{name: "not complex", modify: setPassword("abcdefgh1"), wantErr: []string{"password:" + pwdComplexityTag}},
		{name: "similar to name", modify: setPassword("Ngozi.Okafor1"), wantErr: []string{"password:" + pwdAttrSimTag}},
		{name: "common", modify: setPassword("Password1!"), wantErr: []string{"password:" + pwdNoCommonTag}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nu := valid()
			tt.modify(&nu)
			err := nu.Validate(validate)
			if tt.wantErr == nil {
				require.NoError(t, err)
				assert.Equal(t, "Ngozi Okafor", nu.Name)
				assert.Equal(t, "ngozi.okafor@school.test", nu.Email)
				assert.Contains(t, AllRoles, nu.Role)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantErr, failedTags(err))
		})
	}
}

func setPassword(pwd string) func(nu *NewUser) {
	return func(nu *NewUser) {
		nu.Password = pwd
		nu.PasswordConfirm = pwd
	}
}

func TestNewUser_DefaultRole(t *testing.T) {
	validate := newValidator(t)
	nu := NewUser{Name: "Ada", Email: "ada@school.test", Password: "Tr0ub4dor&3x", PasswordConfirm: "Tr0ub4dor&3x"}
	require.NoError(t, nu.Validate(validate))
	assert.Equal(t, RoleSchool, nu.Role)
}

func TestResetUserPassword_Validate(t *testing.T) {
	validate := newValidator(t)

	rp := ResetUserPassword{UID: "uid", Token: "token", Password: "qwerty", PasswordConfirm: "qwerty"}
	assert.Equal(t, []string{"password:" + pwdMinLenTag}, failedTags(rp.Validate(validate)))

	rp.Password, rp.PasswordConfirm = "Tr0ub4dor&3x", "Tr0ub4dor&3x"
	assert.NoError(t, rp.Validate(validate))
}

func TestIsCommonPassword(t *testing.T) {
	_ = newValidator(t)
	assert.True(t, isCommonPassword("QWERTY"))
	assert.True(t, isCommonPassword("password1"))
	assert.False(t, isCommonPassword("Tr0ub4dor&3x"))
}
