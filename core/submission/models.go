package submission

import (
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/abiaedu/portal/core"
)

type Status string

const (
	StatusAll      Status = "All"
	StatusPending  Status = "Pending"
	StatusApproved Status = "Approved"
	StatusRejected Status = "Rejected"
)

// ParseStatus accepts any casing of a Status; empty means StatusAll.
func ParseStatus(s string) (Status, bool) {
	switch strings.ToLower(core.CleanString(s)) {
	case "", "all":
		return StatusAll, true
	case "pending":
		return StatusPending, true
	case "approved":
		return StatusApproved, true
	case "rejected":
		return StatusRejected, true
	}
	return "", false
}

// Submission is a school's self-reported record. Approved is null while pending and is set exactly once.
type Submission struct {
	ID              int       `json:"id"`
	SchoolName      string    `json:"school_name"`
	DistrictID      int       `json:"district_id"`
	District        string    `json:"district"`
	EnrollmentTotal int       `json:"enrollment_total"`
	TeachersTotal   int       `json:"teachers_total"`
	SubmittedBy     string    `json:"submitted_by"`
	Email           string    `json:"email"`
	Facilities      []string  `json:"facilities"`
	PhotoPath       string    `json:"photo_path,omitempty"`
	SubmittedAt     time.Time `json:"submitted_at"` // UTC
	Approved        null.Bool `json:"approved"`
	ReviewedAt      null.Time `json:"reviewed_at"`
}

func (s Submission) Status() Status {
	switch {
	case !s.Approved.Valid:
		return StatusPending
	case s.Approved.Bool:
		return StatusApproved
	default:
		return StatusRejected
	}
}

func (s Submission) IsPending() bool { return !s.Approved.Valid }

// NewSubmission contains the fields a school contact enters.
type NewSubmission struct {
	SchoolName      string   `json:"school_name" validate:"required,notblank,max=200"`
	District        string   `json:"district" validate:"required,notblank,max=100"`
	EnrollmentTotal int      `json:"enrollment_total" validate:"gt=0"`
	TeachersTotal   int      `json:"teachers_total" validate:"gt=0"`
	SubmittedBy     string   `json:"submitted_by" validate:"required,notblank,max=200"`
	Email           string   `json:"email" validate:"required,email,max=254"`
	Facilities      []string `json:"facilities" validate:"max=50,dive,max=100"`
	PhotoPath       string   `json:"photo_path" validate:"omitempty,max=500"`
}

func (ns *NewSubmission) Clean() {
	ns.SchoolName = core.CollapseSpaces(ns.SchoolName)
	ns.District = core.CollapseSpaces(ns.District)
	ns.SubmittedBy = core.CollapseSpaces(ns.SubmittedBy)
	ns.Email = core.CleanString(ns.Email, true /* lower */)
	ns.Facilities = FacilitySet(ns.Facilities)
	ns.PhotoPath = core.CleanString(ns.PhotoPath)
}

func (ns *NewSubmission) Validate(validate *validator.Validate) error {
	ns.Clean()
	return validate.Struct(ns)
}

// FacilitySet normalizes a list of facilities into a set: trimmed, blanks dropped,
// duplicates removed case-insensitively (first spelling wins), sorted.
func FacilitySet(facilities []string) []string {
	set := make([]string, 0, len(facilities))
	seen := make(map[string]bool, len(facilities))
	for _, f := range facilities {
		f = core.CollapseSpaces(f)
		key := strings.ToLower(f)
		if f == "" || seen[key] {
			continue
		}
		seen[key] = true
		set = append(set, f)
	}
	sort.Slice(set, func(i, j int) bool { return strings.ToLower(set[i]) < strings.ToLower(set[j]) })
	return set
}
