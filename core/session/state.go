package session

import (
	"encoding/json"
	"time"

	"github.com/abiaedu/portal/core/admin"
	"github.com/abiaedu/portal/core/submission"
)

// State is everything remembered about one browsing session. It is decoded at the start of each request
// and written back only when a setter changed it.
type State struct {
	data  stateData
	dirty bool
}

type stateData struct {
	Admin           string                `json:"admin,omitempty"`
	UserID          string                `json:"user_id,omitempty"`
	Page            string                `json:"page,omitempty"`
	Challenge       *submission.Challenge `json:"challenge,omitempty"`
	LastConfirmedAt time.Time             `json:"last_confirmed_at"`
	LoginFailures   int                   `json:"login_failures,omitempty"`
	LockedUntil     time.Time             `json:"locked_until"`
}

var (
	_ submission.Session = (*State)(nil)
	_ admin.LoginState   = (*State)(nil)
)

func New() *State { return new(State) }

// Decode restores a State from its encoded form. Garbage yields a fresh State.
func Decode(raw string) *State {
	s := New()
	if raw == "" {
		return s
	}
	if err := json.Unmarshal([]byte(raw), &s.data); err != nil {
		return New()
	}
	return s
}

func (s *State) Encode() (string, error) {
	b, err := json.Marshal(s.data)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Dirty reports whether the state changed since it was decoded.
func (s *State) Dirty() bool { return s.dirty }

func (s *State) IsAdmin() bool  { return s.data.Admin != "" }
func (s *State) Admin() string  { return s.data.Admin }
func (s *State) UserID() string { return s.data.UserID }
func (s *State) Page() string   { return s.data.Page }

func (s *State) SetAdmin(name string) {
	s.data.Admin = name
	s.dirty = true
}

func (s *State) SetUserID(id string) {
	s.data.UserID = id
	s.dirty = true
}

func (s *State) SetPage(page string) {
	if s.data.Page != page {
		s.data.Page = page
		s.dirty = true
	}
}

func (s *State) Challenge() *submission.Challenge { return s.data.Challenge }

func (s *State) SetChallenge(ch *submission.Challenge) {
	s.data.Challenge = ch
	s.dirty = true
}

func (s *State) LastConfirmedAt() time.Time { return s.data.LastConfirmedAt }

func (s *State) SetLastConfirmedAt(t time.Time) {
	s.data.LastConfirmedAt = t
	s.dirty = true
}

func (s *State) LoginFailures() (count int, lockedUntil time.Time) {
	return s.data.LoginFailures, s.data.LockedUntil
}

func (s *State) SetLoginFailures(count int, lockedUntil time.Time) {
	s.data.LoginFailures = count
	s.data.LockedUntil = lockedUntil
	s.dirty = true
}

// Logout forgets the admin and user identities, keeping rate-limit bookkeeping.
func (s *State) Logout() {
	s.data.Admin = ""
	s.data.UserID = ""
	s.dirty = true
}
