package user

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"
	"golang.org/x/crypto/bcrypt"

	"github.com/abiaedu/portal/core"
)

// Roles
const (
	RoleSchool  = "school"
	RoleAnalyst = "analyst"
)

// Account states, in the order an account moves through them.
const (
	StateRegistered = "registered"
	StateVerified   = "verified"
	StateApproved   = "approved"
)

var (
	AllRoles = []string{RoleSchool, RoleAnalyst}

	Roles = []Role{
		{Name: "School", Value: RoleSchool},
		{Name: "Analyst", Value: RoleAnalyst},
	}
)

type Role struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type User struct {
	ID           string    `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	Email        string    `json:"email" db:"email"`
	Role         string    `json:"role" db:"role"`
	PasswordHash []byte    `json:"-" db:"password_hash"`
	Verified     bool      `json:"verified" db:"verified"`
	Approved     bool      `json:"approved" db:"approved"`
	Blocked      bool      `json:"blocked" db:"blocked"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"` // UTC
	LastLogin    null.Time `json:"last_login" db:"last_login"` // UTC

	// pending email verification
	VerificationCodeHash  string    `json:"-" db:"verification_code_hash"`
	VerificationExpiresAt null.Time `json:"-" db:"verification_expires_at"`
	VerificationAttempts  int       `json:"-" db:"verification_attempts"`
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) IsAnalyst() bool { return u.Role == RoleAnalyst }

// State is the account's position in registered -> verified -> approved. Blocked is orthogonal.
func (u *User) State() string {
	switch {
	case u.Verified && u.Approved:
		return StateApproved
	case u.Verified:
		return StateVerified
	default:
		return StateRegistered
	}
}

// CanLogin returns why the account may not sign in, if anything.
func (u *User) CanLogin() error {
	switch {
	case u.Blocked:
		return ErrBlocked
	case !u.Verified:
		return ErrNotVerified
	case !u.Approved:
		return ErrNotApproved
	}
	return nil
}

// NewUser contains information needed to register a new User.
type NewUser struct {
	Name            string `json:"name" validate:"required,notblank,max=200"`
	Email           string `json:"email" validate:"required,email,max=254"`
	Role            string `json:"role" validate:"required,role"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
}

func (nu *NewUser) Validate(validate *validator.Validate) error {
	nu.Name = core.CollapseSpaces(nu.Name)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.Role = core.CleanString(nu.Role, true /* lower */)
	if nu.Role == "" {
		nu.Role = RoleSchool
	}
	return validate.Struct(nu)
}

type VerifyEmail struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required,len=6,numeric"`
}

func (ve *VerifyEmail) Validate(validate *validator.Validate) error {
	ve.Email = core.CleanString(ve.Email, true /* lower */)
	ve.Code = core.CleanString(ve.Code)
	return validate.Struct(ve)
}

type ResetUserPassword struct {
	Token           string `json:"token,omitempty" validate:"required"`
	UID             string `json:"uid,omitempty" validate:"required"`
	Password        string `json:"password,omitempty" validate:"required"`
	PasswordConfirm string `json:"password_confirm,omitempty" validate:"required,eqfield=Password"`
}

func (rp *ResetUserPassword) Validate(validate *validator.Validate) error {
	return validate.Struct(rp)
}

type GetFilter struct {
	ID    string
	Email string
}

type QueryFilter struct {
	Search   string           `query:"search"`
	Role     string           `query:"role"`
	State    string           `query:"state"`
	Blocked  *bool            `query:"blocked"`
	Ordering []core.DBOrdering `query:"-"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Role == "" && qf.State == "" && qf.Blocked == nil
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CollapseSpaces(qf.Search)
	qf.Role = core.CleanString(qf.Role, true /* lower */)
	qf.State = core.CleanString(qf.State, true /* lower */)
}

// Matches applies the filter to a single user.
func (qf *QueryFilter) Matches(usr User) bool {
	if qf.Role != "" && usr.Role != qf.Role {
		return false
	}
	if qf.State != "" && usr.State() != qf.State {
		return false
	}
	if qf.Blocked != nil && usr.Blocked != *qf.Blocked {
		return false
	}
	if qf.Search != "" {
		return containsFold(usr.Name, qf.Search) || containsFold(usr.Email, qf.Search)
	}
	return true
}
