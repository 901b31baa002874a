package submission

import (
	"crypto/subtle"
	"errors"
	"time"
)

const codeDigits = 6

var (
	ErrNoChallenge      = errors.New("no pending verification, please submit the form again")
	ErrCodeMismatch     = errors.New("the verification code is incorrect")
	ErrCodeExpired      = errors.New("the verification code has expired, please submit the form again")
	ErrTooManyAttempts  = errors.New("too many incorrect codes, please submit the form again")
	ErrCooldown         = errors.New("please wait before submitting again")
	ErrUnknownDistrict  = errors.New("unknown district")
	errChallengeInvalid = errors.New("challenge payload is invalid")
)

// Challenge is an issued verification code together with the submission it unlocks.
// It lives in the submitter's session. Attempts and use are tracked by the service.
type Challenge struct {
	ID         string        `json:"id"`
	Code       string        `json:"code"`
	Email      string        `json:"email"`
	Payload    NewSubmission `json:"payload"`
	DistrictID int           `json:"district_id"`
	District   string        `json:"district"`
	IssuedAt   time.Time     `json:"issued_at"`
	ExpiresAt  time.Time     `json:"expires_at"`
}

func (ch *Challenge) Expired(now time.Time) bool {
	return !now.Before(ch.ExpiresAt)
}

// Matches compares code against the issued one in constant time. The comparison is exact.
func (ch *Challenge) Matches(code string) bool {
	return subtle.ConstantTimeCompare([]byte(code), []byte(ch.Code)) == 1
}

func (ch *Challenge) valid() error {
	if ch.ID == "" || len(ch.Code) != codeDigits || ch.DistrictID == 0 {
		return errChallengeInvalid
	}
	return nil
}

// Session is the per-visitor state the pipeline reads and writes.
type Session interface {
	Challenge() *Challenge
	SetChallenge(ch *Challenge)
	LastConfirmedAt() time.Time
	SetLastConfirmedAt(t time.Time)
}
