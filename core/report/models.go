package report

import (
	"math"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/abiaedu/portal/core"
	"github.com/abiaedu/portal/core/district"
	"github.com/abiaedu/portal/core/submission"
)

// RatioUnavailable is reported as the pupil/teacher ratio of a district without teachers.
const RatioUnavailable = 0.0

type DistrictSummary struct {
	District        string  `json:"district"`
	EnrollmentTotal int     `json:"enrollment_total"`
	TeachersTotal   int     `json:"teachers_total"`
	Ratio           float64 `json:"pupil_teacher_ratio"`
}

// Ratio returns enrollment/teachers rounded to one decimal, or RatioUnavailable when teachers is 0.
func Ratio(enrollment, teachers int) float64 {
	if teachers == 0 {
		return RatioUnavailable
	}
	return math.Round(float64(enrollment)/float64(teachers)*10) / 10
}

// Date binds "2006-01-02" or RFC3339 query values.
type Date struct {
	time.Time
}

func (d *Date) UnmarshalParam(param string) error {
	param = strings.TrimSpace(param)
	if param == "" {
		d.Time = time.Time{}
		return nil
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, param); err == nil {
			d.Time = t
			return nil
		}
	}
	return errors.Errorf("invalid date %q", param)
}

func (d *Date) UnmarshalJSON(b []byte) error {
	return d.UnmarshalParam(strings.Trim(string(b), `"`))
}

// ExportFilter is the caller-supplied selection of submissions to export.
type ExportFilter struct {
	Districts []string `query:"district" json:"districts"`
	Status    string   `query:"status" json:"status"`
	From      Date     `query:"from" json:"from"`
	To        Date     `query:"to" json:"to"` // inclusive day
	Search    string   `query:"search" json:"search"`
}

// Query is a cleaned ExportFilter, ready for a Repository.
type Query struct {
	DistrictKeys []string // district.Normalize'd names
	Status       submission.Status
	From         time.Time // inclusive, zero = unbounded
	Until        time.Time // exclusive, zero = unbounded
	Search       string    // lower-cased
}

// Clean validates the filter and turns it into a Query.
func (f ExportFilter) Clean() (Query, error) {
	q := Query{Search: strings.ToLower(core.CollapseSpaces(f.Search))}

	status, ok := submission.ParseStatus(f.Status)
	if !ok {
		return Query{}, core.NewValidationError(nil, core.FieldError{
			Field: "status", Error: "status must be one of All, Pending, Approved, Rejected",
		})
	}
	q.Status = status

	for _, name := range f.Districts {
		if key := district.Normalize(name); key != "" {
			q.DistrictKeys = append(q.DistrictKeys, key)
		}
	}

	if !f.From.IsZero() {
		q.From = f.From.UTC()
	}
	if !f.To.IsZero() {
		to := f.To.UTC()
		// a bare date includes the whole day
		if to.Equal(to.Truncate(24 * time.Hour)) {
			to = to.Add(24 * time.Hour)
		} else {
			to = to.Add(time.Nanosecond)
		}
		q.Until = to
	}
	if !q.From.IsZero() && !q.Until.IsZero() && !q.From.Before(q.Until) {
		return Query{}, core.NewValidationError(nil, core.FieldError{Field: "from", Error: "from must be before to"})
	}
	return q, nil
}

// Matches applies the query to a single submission.
func (q Query) Matches(s submission.Submission) bool {
	if q.Status != "" && q.Status != submission.StatusAll && s.Status() != q.Status {
		return false
	}
	if len(q.DistrictKeys) > 0 {
		found := false
		for _, key := range q.DistrictKeys {
			if district.Normalize(s.District) == key {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !q.From.IsZero() && s.SubmittedAt.Before(q.From) {
		return false
	}
	if !q.Until.IsZero() && !s.SubmittedAt.Before(q.Until) {
		return false
	}
	if q.Search != "" {
		hay := strings.ToLower(s.SchoolName + "\x00" + s.SubmittedBy + "\x00" + s.Email)
		if !strings.Contains(hay, q.Search) {
			return false
		}
	}
	return true
}
