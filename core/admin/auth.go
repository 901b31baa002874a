package admin

import (
	"crypto/subtle"
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/abiaedu/portal/core"
)

var (
	ErrInvalidCredentials = errors.New("invalid admin credentials")
	ErrLockedOut          = errors.New("too many failed login attempts, try again later")
	ErrNotConfigured      = errors.New("admin credential is not configured")

	NowFunc = time.Now // mockable
)

// LoginState is where consecutive failures are counted; it is the visitor's session.
type LoginState interface {
	LoginFailures() (count int, lockedUntil time.Time)
	SetLoginFailures(count int, lockedUntil time.Time)
	SetAdmin(name string)
}

type Credentials struct {
	Username     string
	PasswordHash []byte
	OTP          string // optional second factor, compared verbatim
}

// Authenticator checks the single shared admin credential.
type Authenticator struct {
	creds       Credentials
	maxAttempts int
	lockout     time.Duration
}

func NewAuthenticator(creds Credentials, maxAttempts int, lockout time.Duration) *Authenticator {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if lockout <= 0 {
		lockout = 15 * time.Minute
	}
	return &Authenticator{creds: creds, maxAttempts: maxAttempts, lockout: lockout}
}

func NewAuthenticatorFromConfig(conf *core.Config) *Authenticator {
	return NewAuthenticator(
		Credentials{
			Username:     conf.Admin.Username,
			PasswordHash: []byte(conf.Admin.PasswordHash),
			OTP:          conf.Admin.OTP,
		},
		conf.Admin.MaxLoginAttempts,
		conf.Admin.LockoutDuration,
	)
}

// Configured reports whether an admin credential was provided.
func (a *Authenticator) Configured() bool {
	return a.creds.Username != "" && len(a.creds.PasswordHash) > 0
}

// RequiresCode reports whether a one-time code is part of the credential.
func (a *Authenticator) RequiresCode() bool { return a.creds.OTP != "" }

// Login marks state as admin when the credentials match. After maxAttempts consecutive failures
// every attempt is refused until the lockout window has passed.
func (a *Authenticator) Login(state LoginState, username, password, code string) error {
	if !a.Configured() {
		return ErrNotConfigured
	}

	now := NowFunc()
	failures, lockedUntil := state.LoginFailures()
	if !lockedUntil.IsZero() {
		if now.Before(lockedUntil) {
			return core.NewThrottledError(ErrLockedOut, lockedUntil.Sub(now))
		}
		failures = 0
		lockedUntil = time.Time{}
	}

	if !a.check(username, password, code) {
		failures++
		if failures >= a.maxAttempts {
			until := now.Add(a.lockout)
			state.SetLoginFailures(0, until)
			return core.NewThrottledError(ErrLockedOut, a.lockout)
		}
		state.SetLoginFailures(failures, time.Time{})
		return ErrInvalidCredentials
	}

	state.SetLoginFailures(0, time.Time{})
	state.SetAdmin(a.creds.Username)
	return nil
}

func (a *Authenticator) check(username, password, code string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(a.creds.Username)) == 1
	pwdOK := bcrypt.CompareHashAndPassword(a.creds.PasswordHash, []byte(password)) == nil
	codeOK := a.creds.OTP == "" || subtle.ConstantTimeCompare([]byte(code), []byte(a.creds.OTP)) == 1
	return userOK && pwdOK && codeOK
}
